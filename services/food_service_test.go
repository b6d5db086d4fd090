package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoodService_Search(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	db := r.store.(*GormFoodStore).db
	for i, n := range []string{"Queijo minas", "Queijo prato", "Queijo coalho"} {
		seedFood(t, db, n, float64(250+i), 20, 2, 20)
	}
	svc := NewFoodService(r.store, r, nil)

	_, err := svc.Search(context.Background(), " q ", "", 0)
	assert.ErrorIs(t, err, ErrQueryTooShort)

	foods, err := svc.Search(context.Background(), "queijo", "", 0)
	require.NoError(t, err)
	assert.Len(t, foods, 3)

	foods, err = svc.Search(context.Background(), "queijo", "", 2)
	require.NoError(t, err)
	assert.Len(t, foods, 2)
}

func TestFoodService_SuggestNutrientsDoesNotPersist(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{
		"cuscuz paulista": estimateFor("Cuscuz paulista", 142, 3.9, 17.6, 6.4),
	}}
	r, _ := newTestResolver(t, est)
	svc := NewFoodService(r.store, r, est)

	f, err := svc.SuggestNutrients(context.Background(), "Cuscuz paulista")
	require.NoError(t, err)
	assert.Equal(t, 142.0, f.EnergyKcal100g)
	assert.Zero(t, f.ID)
	assert.Zero(t, countFoods(t, r.store.(*GormFoodStore).db))

	_, err = NewFoodService(r.store, r, nil).SuggestNutrients(context.Background(), "cuscuz")
	assert.ErrorIs(t, err, ErrEstimatorUnavailable)

	_, err = svc.SuggestNutrients(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestFoodService_ResolvePersists(t *testing.T) {
	est := &fakeEstimator{replies: map[string]*Estimate{
		"pamonha": estimateFor("Pamonha", 171, 2.6, 30.7, 4.8),
	}}
	r, _ := newTestResolver(t, est)
	svc := NewFoodService(r.store, r, est)

	_, err := svc.BestMatch(context.Background(), "pamonha")
	assert.ErrorIs(t, err, ErrResolutionFailed)

	res, err := svc.Resolve(context.Background(), "pamonha")
	require.NoError(t, err)
	assert.Equal(t, StageEstimated, res.Stage)

	res, err = svc.BestMatch(context.Background(), "Pamonha")
	require.NoError(t, err)
	assert.Equal(t, StageExact, res.Stage)
}
