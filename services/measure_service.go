package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/e-RicardoGama/nutriscan/models"
)

// MeasureService converts between grams and the household measure hint
// stored with each food. It only reads: an unknown food is not estimated.
type MeasureService struct {
	resolver *FoodResolver
	store    FoodStore
}

func NewMeasureService(resolver *FoodResolver) *MeasureService {
	return &MeasureService{resolver: resolver, store: resolver.store}
}

// GramsToMeasure returns e.g. "1.5 colher de sopa", or nil when the food is
// unknown or has no usable hint.
func (s *MeasureService) GramsToMeasure(ctx context.Context, name string, grams float64) (*string, error) {
	food, err := s.lookup(ctx, name)
	if err != nil || food == nil {
		return nil, err
	}
	if !hasMeasureHint(food) {
		return nil, nil
	}
	label := strings.TrimSpace(strings.ReplaceAll(food.HouseholdMeasure, " cheia", ""))
	out := fmt.Sprintf("%.1f %s", grams/food.ApproxWeightG, label)
	return &out, nil
}

// MeasureToGrams returns qty household units in grams, or nil.
func (s *MeasureService) MeasureToGrams(ctx context.Context, name string, qty float64) (*float64, error) {
	food, err := s.lookup(ctx, name)
	if err != nil || food == nil {
		return nil, err
	}
	if !hasMeasureHint(food) {
		return nil, nil
	}
	g := qty * food.ApproxWeightG
	return &g, nil
}

// lookup tries the resolver's read-only stages, then falls back to the
// food whose name holds every word of the query. Short queries like "ovo"
// score too low against long names to pass the fuzzy threshold.
func (s *MeasureService) lookup(ctx context.Context, name string) (*models.Food, error) {
	res, err := s.resolver.Lookup(ctx, name)
	if err == nil {
		return res.Food, nil
	}
	if !errors.Is(err, ErrResolutionFailed) {
		return nil, err
	}
	keywords := strings.Fields(NormalizeName(name))
	if len(keywords) == 0 {
		return nil, nil
	}
	foods, err := s.store.WithAllKeywords(ctx, keywords, 1)
	if err != nil || len(foods) == 0 {
		return nil, err
	}
	return &foods[0], nil
}

func hasMeasureHint(f *models.Food) bool {
	return f.ApproxWeightG > 0 && strings.TrimSpace(f.HouseholdMeasure) != ""
}
