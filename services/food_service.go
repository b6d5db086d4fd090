package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/e-RicardoGama/nutriscan/models"
)

var ErrQueryTooShort = errors.New("query too short")

const (
	minSearchLen       = 2
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type FoodService struct {
	store     FoodStore
	resolver  *FoodResolver
	estimator Estimator
}

func NewFoodService(store FoodStore, resolver *FoodResolver, estimator Estimator) *FoodService {
	return &FoodService{store: store, resolver: resolver, estimator: estimator}
}

// Search manually
func (s *FoodService) Search(ctx context.Context, q, category string, limit int) ([]models.Food, error) {
	if len([]rune(strings.TrimSpace(q))) < minSearchLen {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrQueryTooShort, minSearchLen)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)
	return s.store.Search(ctx, q, category, limit)
}

// BestMatch returns the closest stored food without estimating.
func (s *FoodService) BestMatch(ctx context.Context, name string) (*Resolution, error) {
	return s.resolver.Lookup(ctx, name)
}

// Resolve runs the full resolution, persisting an estimate if needed.
func (s *FoodService) Resolve(ctx context.Context, name string) (*Resolution, error) {
	return s.resolver.Resolve(ctx, name)
}

// SuggestNutrients shows what the estimator thinks of a name. Nothing is
// stored.
func (s *FoodService) SuggestNutrients(ctx context.Context, name string) (*models.Food, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrResolutionFailed)
	}
	if s.estimator == nil {
		return nil, ErrEstimatorUnavailable
	}
	est, err := s.estimator.Estimate(ctx, name)
	if err != nil {
		return nil, err
	}
	return FoodFromEstimate(name, est), nil
}
