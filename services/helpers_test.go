package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/e-RicardoGama/nutriscan/config"
	"github.com/e-RicardoGama/nutriscan/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every new connection would get its own empty :memory: database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

func seedFood(t *testing.T, db *gorm.DB, name string, kcal, protein, carbs, fat float64) *models.Food {
	t.Helper()
	f := &models.Food{
		Name:             name,
		NormalizedName:   NormalizeName(name),
		Category:         "Cereais e derivados",
		EnergyKcal100g:   kcal,
		Protein100g:      protein,
		Carbohydrate100g: carbs,
		Fat100g:          fat,
	}
	require.NoError(t, db.Create(f).Error)
	return f
}

func countFoods(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Food{}).Count(&n).Error)
	return n
}

func ptr[T any](v T) *T { return &v }

// fakeEstimator answers from a fixed table and counts calls.
type fakeEstimator struct {
	mu      sync.Mutex
	replies map[string]*Estimate
	err     error
	calls   atomic.Int32
	seen    []string
	block   chan struct{}
}

func (f *fakeEstimator) Estimate(ctx context.Context, name string) (*Estimate, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, name)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if est, ok := f.replies[NormalizeName(name)]; ok {
		return est, nil
	}
	return nil, errors.New("unknown food")
}

func estimateFor(name string, kcal, protein, carbs, fat float64) *Estimate {
	return &Estimate{
		Name:             ptr(name),
		Category:         ptr("Preparações"),
		EnergyKcal100g:   setFloat(kcal),
		Protein100g:      setFloat(protein),
		Carbohydrate100g: setFloat(carbs),
		Fat100g:          setFloat(fat),
	}
}
