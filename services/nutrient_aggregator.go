package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/e-RicardoGama/nutriscan/models"

	"go.uber.org/zap"
)

// NutrientContribution is one item's share of the meal totals.
type NutrientContribution struct {
	ItemID   uint    `json:"item_id"`
	Name     string  `json:"nome"`
	Grams    float64 `json:"quantidade_g"`
	Calories float64 `json:"calorias"`
	Protein  float64 `json:"proteinas_g"`
	Carbs    float64 `json:"carboidratos_g"`
	Fat      float64 `json:"gorduras_g"`
}

type TotalsSource string

const (
	TotalsFromItems    TotalsSource = "items"
	TotalsFromSnapshot TotalsSource = "snapshot"
	TotalsEmpty        TotalsSource = "empty"
)

// NutrientTotals accumulates in full precision; use Rounded at the edge.
type NutrientTotals struct {
	Calories      float64
	Protein       float64
	Carbs         float64
	Fat           float64
	ItemCount     int
	Unresolved    int
	Source        TotalsSource
	Contributions []NutrientContribution
}

type RoundedTotals struct {
	Calories int     `json:"calorias"`
	Protein  float64 `json:"proteinas_g"`
	Carbs    float64 `json:"carboidratos_g"`
	Fat      float64 `json:"gorduras_g"`
}

// Rounded reports kcal as a whole number and macros with one decimal.
func (t NutrientTotals) Rounded() RoundedTotals {
	return RoundedTotals{
		Calories: int(math.Round(t.Calories)),
		Protein:  round1(t.Protein),
		Carbs:    round1(t.Carbs),
		Fat:      round1(t.Fat),
	}
}

func (t *NutrientTotals) add(c NutrientContribution) {
	t.Calories += c.Calories
	t.Protein += c.Protein
	t.Carbs += c.Carbs
	t.Fat += c.Fat
}

// NutrientSource is where an item's (or the meal's) numbers come from.
type NutrientSource interface{ nutrientSource() }

type StructuredSource struct{ Food *models.Food }

type SnapshotSource struct{ Totals NutrientTotals }

type UnresolvedSource struct{}

func (StructuredSource) nutrientSource() {}
func (SnapshotSource) nutrientSource()   {}
func (UnresolvedSource) nutrientSource() {}

// Scale converts a per-100g record into the contribution of grams of it.
func Scale(food *models.Food, grams float64) NutrientContribution {
	f := grams / 100
	return NutrientContribution{
		Name:     food.Name,
		Grams:    grams,
		Calories: food.EnergyKcal100g * f,
		Protein:  food.Protein100g * f,
		Carbs:    food.Carbohydrate100g * f,
		Fat:      food.Fat100g * f,
	}
}

type NutrientAggregator struct {
	store   FoodStore
	log     *zap.Logger
	metrics *Metrics
}

func NewNutrientAggregator(store FoodStore, log *zap.Logger, metrics *Metrics) *NutrientAggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &NutrientAggregator{store: store, log: log, metrics: metrics}
}

// Aggregate sums the meal's linked items. When some counted item has no
// food and the meal carries a client-supplied snapshot, the snapshot's
// meal-level totals are used instead, once, so nothing is counted twice.
// Snapshots this service wrote itself never stand in for the items: they
// were computed from the same links, only older. Items without a positive
// quantity are left out entirely.
func (a *NutrientAggregator) Aggregate(ctx context.Context, meal *models.Meal) (NutrientTotals, error) {
	totals := NutrientTotals{Source: TotalsEmpty}

	for i := range meal.Items {
		it := &meal.Items[i]
		if it.QuantityG == nil || *it.QuantityG <= 0 {
			continue
		}
		totals.ItemCount++

		src, err := a.itemSource(ctx, it)
		if err != nil {
			return NutrientTotals{}, err
		}
		switch s := src.(type) {
		case StructuredSource:
			c := Scale(s.Food, *it.QuantityG)
			c.ItemID = it.ID
			c.Name = it.Name
			totals.add(c)
			totals.Contributions = append(totals.Contributions, c)
			totals.Source = TotalsFromItems
		case UnresolvedSource:
			totals.Unresolved++
		case SnapshotSource:
			// only ever produced at meal level
		}
	}

	if totals.Unresolved == 0 {
		return totals, nil
	}

	switch s := a.mealSource(meal).(type) {
	case SnapshotSource:
		snap := s.Totals
		snap.ItemCount = totals.ItemCount
		snap.Unresolved = totals.Unresolved
		snap.Source = TotalsFromSnapshot
		return snap, nil
	case UnresolvedSource, StructuredSource:
	}
	return totals, nil
}

func (a *NutrientAggregator) itemSource(ctx context.Context, it *models.MealItem) (NutrientSource, error) {
	if it.Food != nil {
		return StructuredSource{Food: it.Food}, nil
	}
	if it.FoodID == nil {
		return UnresolvedSource{}, nil
	}
	food, err := a.store.FindByID(ctx, *it.FoodID)
	if err != nil {
		if errors.Is(err, ErrFoodNotFound) {
			a.log.Warn("meal item links a missing food",
				zap.Uint("item_id", it.ID), zap.Uint("food_id", *it.FoodID))
			return UnresolvedSource{}, nil
		}
		return nil, err
	}
	it.Food = food
	return StructuredSource{Food: food}, nil
}

func (a *NutrientAggregator) mealSource(meal *models.Meal) NutrientSource {
	if meal.AnalysisSnapshot == nil || *meal.AnalysisSnapshot == "" {
		return UnresolvedSource{}
	}
	s, err := decodeSnapshot(*meal.AnalysisSnapshot)
	if err != nil {
		a.metrics.snapshotParseFailed()
		a.log.Warn("ignoring unreadable analysis snapshot",
			zap.Uint("meal_id", meal.ID), zap.Error(err))
		return UnresolvedSource{}
	}
	if s.Origem == SnapshotOriginComputed {
		return UnresolvedSource{}
	}
	return SnapshotSource{Totals: s.totals()}
}

// SnapshotOriginComputed marks snapshots written by the analysis pass.
// Client-supplied snapshots carry no origin.
const SnapshotOriginComputed = "calculado"

// AnalysisSnapshot is the frozen result stored with a meal.
type AnalysisSnapshot struct {
	DetalhesPrato      *snapshotDetails  `json:"detalhes_prato,omitempty"`
	AnaliseNutricional snapshotNutrition `json:"analise_nutricional"`
	Timestamp          *time.Time        `json:"timestamp,omitempty"`
	Origem             string            `json:"origem,omitempty"`
}

type snapshotDetails struct {
	Alimentos []snapshotFood `json:"alimentos"`
}

type snapshotFood struct {
	Nome             string  `json:"nome"`
	QuantidadeGramas float64 `json:"quantidade_gramas"`
	Categoria        string  `json:"categoria,omitempty"`
}

type snapshotNutrition struct {
	CaloriasTotais  optFloat       `json:"calorias_totais"`
	Macronutrientes snapshotMacros `json:"macronutrientes"`
}

type snapshotMacros struct {
	ProteinasG    optFloat `json:"proteinas_g"`
	CarboidratosG optFloat `json:"carboidratos_g"`
	GordurasG     optFloat `json:"gorduras_g"`
}

// ParseSnapshot reads the meal-level totals out of a stored snapshot.
// Missing keys read as zero.
func ParseSnapshot(raw string) (NutrientTotals, error) {
	s, err := decodeSnapshot(raw)
	if err != nil {
		return NutrientTotals{}, err
	}
	return s.totals(), nil
}

func decodeSnapshot(raw string) (*AnalysisSnapshot, error) {
	var s AnalysisSnapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse analysis snapshot: %w", err)
	}
	return &s, nil
}

func (s *AnalysisSnapshot) totals() NutrientTotals {
	n := s.AnaliseNutricional
	return NutrientTotals{
		Calories: n.CaloriasTotais.Or(0),
		Protein:  n.Macronutrientes.ProteinasG.Or(0),
		Carbs:    n.Macronutrientes.CarboidratosG.Or(0),
		Fat:      n.Macronutrientes.GordurasG.Or(0),
		Source:   TotalsFromSnapshot,
	}
}

// NewAnalysisSnapshot freezes totals (unrounded) and the item list.
func NewAnalysisSnapshot(meal *models.Meal, t NutrientTotals, at time.Time) AnalysisSnapshot {
	details := &snapshotDetails{Alimentos: make([]snapshotFood, 0, len(meal.Items))}
	for _, it := range meal.Items {
		var grams float64
		if it.QuantityG != nil {
			grams = *it.QuantityG
		}
		details.Alimentos = append(details.Alimentos, snapshotFood{
			Nome:             it.Name,
			QuantidadeGramas: grams,
			Categoria:        it.Category,
		})
	}
	return AnalysisSnapshot{
		DetalhesPrato: details,
		AnaliseNutricional: snapshotNutrition{
			CaloriasTotais: setFloat(t.Calories),
			Macronutrientes: snapshotMacros{
				ProteinasG:    setFloat(t.Protein),
				CarboidratosG: setFloat(t.Carbs),
				GordurasG:     setFloat(t.Fat),
			},
		},
		Timestamp: &at,
		Origem:    SnapshotOriginComputed,
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
