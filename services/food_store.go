package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/e-RicardoGama/nutriscan/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrFoodNotFound  = errors.New("food not found")
	ErrDuplicateFood = errors.New("food with this normalized name already exists")
	ErrPersistence   = errors.New("persistence failure")
)

// FoodStore is the shared collection of canonical foods.
type FoodStore interface {
	FindByNormalizedName(ctx context.Context, normalized string) (*models.Food, error)
	FindByID(ctx context.Context, id uint) (*models.Food, error)
	// Candidates returns foods whose normalized name contains the query or
	// any of its significant tokens. Ranking is left to the caller.
	Candidates(ctx context.Context, normalized string, limit int) ([]models.Food, error)
	Search(ctx context.Context, q, category string, limit int) ([]models.Food, error)
	// WithAllKeywords returns foods whose normalized name contains every
	// keyword. Names starting with the first keyword come first, then the
	// shortest.
	WithAllKeywords(ctx context.Context, keywords []string, limit int) ([]models.Food, error)
	// Create inserts a new food. ErrDuplicateFood means another writer
	// already holds the normalized name.
	Create(ctx context.Context, food *models.Food) error
}

type GormFoodStore struct{ db *gorm.DB }

func NewGormFoodStore(db *gorm.DB) *GormFoodStore { return &GormFoodStore{db: db} }

func (s *GormFoodStore) FindByNormalizedName(ctx context.Context, normalized string) (*models.Food, error) {
	var f models.Food
	err := s.db.WithContext(ctx).
		Where("normalized_name = ?", normalized).
		First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFoodNotFound
		}
		return nil, fmt.Errorf("%w: find food %q: %v", ErrPersistence, normalized, err)
	}
	return &f, nil
}

func (s *GormFoodStore) FindByID(ctx context.Context, id uint) (*models.Food, error) {
	var f models.Food
	if err := s.db.WithContext(ctx).First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFoodNotFound
		}
		return nil, fmt.Errorf("%w: find food %d: %v", ErrPersistence, id, err)
	}
	return &f, nil
}

func (s *GormFoodStore) Candidates(ctx context.Context, normalized string, limit int) ([]models.Food, error) {
	if normalized == "" {
		return nil, nil
	}
	cond := s.db.Where("normalized_name LIKE ? ESCAPE '\\'", containsPattern(normalized))
	for _, t := range significantTokens(normalized) {
		cond = cond.Or("normalized_name LIKE ? ESCAPE '\\'", containsPattern(t))
	}

	var foods []models.Food
	err := s.db.WithContext(ctx).
		Where(cond).
		Order("id ASC").
		Limit(limit).
		Find(&foods).Error
	if err != nil {
		return nil, fmt.Errorf("%w: candidate query: %v", ErrPersistence, err)
	}
	return foods, nil
}

// Search is the manual lookup: substring on the name, optionally narrowed
// by category, shortest names first.
func (s *GormFoodStore) Search(ctx context.Context, q, category string, limit int) ([]models.Food, error) {
	n := NormalizeName(q)
	if n == "" {
		return []models.Food{}, nil
	}
	tx := s.db.WithContext(ctx).
		Where("normalized_name LIKE ? ESCAPE '\\'", containsPattern(n))
	if c := NormalizeName(category); c != "" {
		tx = tx.Where("LOWER(category) LIKE ? ESCAPE '\\'", containsPattern(c))
	}
	var foods []models.Food
	err := tx.
		Order("LENGTH(normalized_name) ASC, id ASC").
		Limit(limit).
		Find(&foods).Error
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %v", ErrPersistence, q, err)
	}
	return foods, nil
}

func (s *GormFoodStore) WithAllKeywords(ctx context.Context, keywords []string, limit int) ([]models.Food, error) {
	if len(keywords) == 0 {
		return []models.Food{}, nil
	}
	tx := s.db.WithContext(ctx)
	for _, k := range keywords {
		tx = tx.Where("normalized_name LIKE ? ESCAPE '\\'", containsPattern(k))
	}
	var foods []models.Food
	err := tx.
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN normalized_name LIKE ? ESCAPE '\\' THEN 0 ELSE 1 END, LENGTH(normalized_name) ASC, id ASC",
			Vars:               []any{likeEscaper.Replace(keywords[0]) + "%"},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&foods).Error
	if err != nil {
		return nil, fmt.Errorf("%w: keyword query %q: %v", ErrPersistence, keywords, err)
	}
	return foods, nil
}

func (s *GormFoodStore) Create(ctx context.Context, food *models.Food) error {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "normalized_name"}},
			DoNothing: true,
		}).
		Create(food)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateFood
		}
		return fmt.Errorf("%w: create food %q: %v", ErrPersistence, food.NormalizedName, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateFood
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
