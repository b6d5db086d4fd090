package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/e-RicardoGama/nutriscan/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestResolver(t *testing.T, est Estimator) (*FoodResolver, *Metrics) {
	t.Helper()
	db := newTestDB(t)
	m := NewMetrics(prometheus.NewRegistry())
	return NewFoodResolver(NewGormFoodStore(db), est, ResolverOptions{
		EstimateTimeout: time.Second,
		Logger:          zaptest.NewLogger(t),
		Metrics:         m,
	}), m
}

func TestFoodResolver_Exact(t *testing.T) {
	est := &fakeEstimator{}
	r, m := newTestResolver(t, est)
	seeded := seedFood(t, r.store.(*GormFoodStore).db, "Arroz branco cozido", 128, 2.5, 28.1, 0.2)

	res, err := r.Resolve(context.Background(), "  ARROZ  branco cozido ")
	require.NoError(t, err)
	assert.Equal(t, StageExact, res.Stage)
	assert.Equal(t, seeded.ID, res.Food.ID)
	assert.Zero(t, est.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("exact")))
}

func TestFoodResolver_Fuzzy(t *testing.T) {
	est := &fakeEstimator{}
	r, _ := newTestResolver(t, est)
	db := r.store.(*GormFoodStore).db
	seedFood(t, db, "Arroz integral cozido", 124, 2.6, 25.8, 1)
	short := seedFood(t, db, "Arroz branco", 128, 2.5, 28.1, 0.2)

	res, err := r.Resolve(context.Background(), "arroz")
	require.NoError(t, err)
	assert.Equal(t, StageFuzzy, res.Stage)
	assert.Equal(t, short.ID, res.Food.ID, "equal scores prefer the shorter name")
	assert.Equal(t, 90, res.Score)
	assert.Zero(t, est.calls.Load())
}

func TestFoodResolver_FuzzyAccentInsensitive(t *testing.T) {
	r, _ := newTestResolver(t, &fakeEstimator{})
	seeded := seedFood(t, r.store.(*GormFoodStore).db, "Feijão", 76, 4.8, 13.6, 0.5)

	res, err := r.Lookup(context.Background(), "feijao")
	require.NoError(t, err)
	assert.Equal(t, StageFuzzy, res.Stage)
	assert.Equal(t, seeded.ID, res.Food.ID)
	assert.Equal(t, 100, res.Score)
}

func TestFoodResolver_BelowThresholdEstimates(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{
		"ovo frito": estimateFor("Ovo frito", 240, 15.6, 1.2, 18.6),
	}}
	r, _ := newTestResolver(t, est)
	seedFood(t, r.store.(*GormFoodStore).db, "Ovo cozido", 146, 13.3, 0.6, 9.5)

	res, err := r.Resolve(context.Background(), "Ovo frito")
	require.NoError(t, err)
	assert.Equal(t, StageEstimated, res.Stage)
	assert.Equal(t, "ovo frito", res.Food.NormalizedName)
	assert.Equal(t, models.FoodSourceEstimated, res.Food.Source)
	assert.EqualValues(t, 1, est.calls.Load())
}

func TestFoodResolver_UnseenNameCreatesOnce(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{
		"strogonoff de frango": estimateFor("Strogonoff de frango", 157, 13, 4.5, 9.6),
	}}
	r, _ := newTestResolver(t, est)
	db := r.store.(*GormFoodStore).db

	first, err := r.Resolve(context.Background(), "Strogonoff de Frango")
	require.NoError(t, err)
	assert.Equal(t, StageEstimated, first.Stage)

	second, err := r.Resolve(context.Background(), "strogonoff de frango")
	require.NoError(t, err)
	assert.Equal(t, StageExact, second.Stage)
	assert.Equal(t, first.Food.ID, second.Food.ID)

	assert.EqualValues(t, 1, est.calls.Load())
	assert.EqualValues(t, 1, countFoods(t, db))
}

func TestFoodResolver_KeyFromEstimatorName(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{
		"strogonof": estimateFor("Strogonoff de frango", 157, 13, 4.5, 9.6),
	}}
	r, _ := newTestResolver(t, est)

	res, err := r.Resolve(context.Background(), "strogonof")
	require.NoError(t, err)
	assert.Equal(t, "strogonoff de frango", res.Food.NormalizedName)
	assert.Equal(t, "Strogonoff de frango", res.Food.Name)
}

func TestFoodResolver_EstimatorFailure(t *testing.T) {
	est := &fakeEstimator{err: errors.New("quota exceeded")}
	r, m := newTestResolver(t, est)
	db := r.store.(*GormFoodStore).db

	_, err := r.Resolve(context.Background(), "acarajé")
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Zero(t, countFoods(t, db))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutionFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.estimatorCalls.WithLabelValues("error")))
}

func TestFoodResolver_EstimatorTimeout(t *testing.T) {
	est := &fakeEstimator{block: make(chan struct{})}
	r, m := newTestResolver(t, est)
	r.timeout = 20 * time.Millisecond

	_, err := r.Resolve(context.Background(), "vatapá")
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Zero(t, countFoods(t, r.store.(*GormFoodStore).db))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.estimatorCalls.WithLabelValues("timeout")))
}

func TestFoodResolver_NoEstimator(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	_, err := r.Resolve(context.Background(), "acarajé")
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestFoodResolver_EmptyName(t *testing.T) {
	est := &fakeEstimator{}
	r, _ := newTestResolver(t, est)
	_, err := r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Zero(t, est.calls.Load())
}

func TestFoodResolver_LookupNeverEstimates(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{"pamonha": estimateFor("Pamonha", 171, 2.6, 30.7, 4.8)}}
	r, _ := newTestResolver(t, est)

	_, err := r.Lookup(context.Background(), "pamonha")
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Zero(t, est.calls.Load())
}

func TestFoodResolver_ConcurrentSameNameEstimatesOnce(t *testing.T) {
	est := &fakeEstimator{
		replies: map[string]*Estimate{"moqueca": estimateFor("Moqueca", 120, 12, 3, 6.5)},
		block:   make(chan struct{}),
	}
	r, _ := newTestResolver(t, est)

	const n = 5
	var wg sync.WaitGroup
	results := make([]*Resolution, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), "Moqueca")
		}()
	}
	// let the callers pile up on the flight before the estimator answers
	require.Eventually(t, func() bool { return est.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(est.block)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Food.ID, results[i].Food.ID)
	}
	assert.EqualValues(t, 1, est.calls.Load())
	assert.EqualValues(t, 1, countFoods(t, r.store.(*GormFoodStore).db))
}

func TestFoodResolver_CancelledStarterDoesNotFailJoiners(t *testing.T) {
	est := &fakeEstimator{
		replies: map[string]*Estimate{"cuscuz paulista": estimateFor("Cuscuz paulista", 142, 4.1, 22.5, 4.2)},
		block:   make(chan struct{}),
	}
	r, _ := newTestResolver(t, est)

	ctx, cancel := context.WithCancel(context.Background())
	starterErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, "Cuscuz paulista")
		starterErr <- err
	}()
	require.Eventually(t, func() bool { return est.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	joined := make(chan *Resolution, 1)
	joinerErr := make(chan error, 1)
	go func() {
		res, err := r.Resolve(context.Background(), "cuscuz paulista")
		joined <- res
		joinerErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-starterErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the estimate")
	}

	close(est.block)
	res := <-joined
	require.NoError(t, <-joinerErr)
	require.NotNil(t, res)
	assert.Equal(t, "cuscuz paulista", res.Food.NormalizedName)
	assert.EqualValues(t, 1, est.calls.Load())
	assert.EqualValues(t, 1, countFoods(t, r.store.(*GormFoodStore).db))
}

func TestFoodResolver_LookupLeavesCountersAlone(t *testing.T) {
	r, m := newTestResolver(t, &fakeEstimator{})
	db := r.store.(*GormFoodStore).db
	seedFood(t, db, "Arroz branco cozido", 128, 2.5, 28.1, 0.2)
	seedFood(t, db, "Feijão", 76, 4.8, 13.6, 0.5)

	_, err := r.Lookup(context.Background(), "arroz branco cozido")
	require.NoError(t, err)
	_, err = r.Lookup(context.Background(), "feijao")
	require.NoError(t, err)
	assert.Zero(t, testutil.ToFloat64(m.resolutions.WithLabelValues("exact")))
	assert.Zero(t, testutil.ToFloat64(m.resolutions.WithLabelValues("fuzzy")))

	_, err = r.Resolve(context.Background(), "feijao")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("fuzzy")))
}

func TestFoodResolver_ConflictRefetches(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{"tapioca": estimateFor("Tapioca", 240, 0, 60, 0)}}
	r, _ := newTestResolver(t, est)
	db := r.store.(*GormFoodStore).db

	// another process inserts the same key between our miss and our insert
	r.store = &racingStore{FoodStore: r.store, onCreate: func() {
		seedFood(t, db, "tapioca", 336, 0.5, 82, 0.1)
	}}

	res, err := r.Resolve(context.Background(), "tapioca")
	require.NoError(t, err)
	assert.Equal(t, StageExact, res.Stage)
	assert.Equal(t, 336.0, res.Food.EnergyKcal100g, "converges on the winner's record")
	assert.EqualValues(t, 1, countFoods(t, db))
}

func TestFoodResolver_ResolveAll(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{
		"farofa": estimateFor("Farofa", 406, 2.1, 80.3, 9.1),
	}}
	r, _ := newTestResolver(t, est)
	rice := seedFood(t, r.store.(*GormFoodStore).db, "Arroz branco cozido", 128, 2.5, 28.1, 0.2)

	names := []string{"Arroz branco cozido", "farofa", "coisa estranha", "FAROFA", ""}
	out, err := r.ResolveAll(context.Background(), names)
	require.NoError(t, err)
	require.Len(t, out, len(names))

	assert.Equal(t, rice.ID, out[0].Food.ID)
	require.NotNil(t, out[1])
	assert.Equal(t, "farofa", out[1].Food.NormalizedName)
	assert.Nil(t, out[2])
	assert.Same(t, out[1], out[3], "duplicate names share one resolution")
	assert.Nil(t, out[4])
	assert.EqualValues(t, 2, est.calls.Load(), "farofa once, coisa estranha once")
}

func TestFoodFromEstimate_Defaults(t *testing.T) {
	f := FoodFromEstimate("  Bolo de Fubá ", &Estimate{})
	assert.Equal(t, "Bolo de Fubá", f.Name)
	assert.Equal(t, "bolo de fubá", f.NormalizedName)
	assert.Equal(t, "Unknown category", f.Category)
	assert.Equal(t, "unit", f.HouseholdMeasure)
	assert.Equal(t, 100.0, f.ApproxWeightG)
	assert.Zero(t, f.EnergyKcal100g)
	assert.Zero(t, f.Protein100g)
	assert.Zero(t, f.SodiumMg100g)
	assert.Equal(t, models.FoodSourceEstimated, f.Source)
}

func TestFoodFromEstimate_Clamps(t *testing.T) {
	f := FoodFromEstimate("óleo", &Estimate{
		EnergyKcal100g: setFloat(1200),
		Fat100g:        setFloat(140),
		Protein100g:    setFloat(-3),
		ApproxWeightG:  setFloat(0),
	})
	assert.Equal(t, 900.0, f.EnergyKcal100g)
	assert.Equal(t, 100.0, f.Fat100g)
	assert.Zero(t, f.Protein100g)
	assert.Equal(t, 100.0, f.ApproxWeightG)
}

// racingStore runs onCreate right before delegating the first Create.
type racingStore struct {
	FoodStore
	onCreate func()
	once     sync.Once
}

func (s *racingStore) Create(ctx context.Context, f *models.Food) error {
	s.once.Do(s.onCreate)
	return s.FoodStore.Create(ctx, f)
}
