package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/e-RicardoGama/nutriscan/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrMealNotFound = errors.New("meal not found")
	ErrInvalidMeal  = errors.New("invalid meal")
)

type MealItemInput struct {
	Name              string            `json:"nome" validate:"required,max=255"`
	QuantityG         *float64          `json:"quantidade_estimada_g" validate:"omitempty,gte=0"`
	Category          string            `json:"categoria_nutricional" validate:"max=100"`
	Confidence        models.Confidence `json:"confianca" validate:"omitempty,oneof=alta media baixa corrigido"`
	EstimatedCalories *float64          `json:"calorias_estimadas" validate:"omitempty,gte=0"`
	SuggestedMeasure  *string           `json:"medida_caseira_sugerida" validate:"omitempty,max=100"`
}

type MealInput struct {
	Items    []MealItemInput `json:"alimentos" validate:"required,min=1,dive"`
	ImageURL *string         `json:"imagem_url" validate:"omitempty,url,max=512"`
	// Snapshot is a previously computed analysis, kept as the fallback
	// for items that never resolve.
	Snapshot json.RawMessage `json:"analise,omitempty"`
}

type MealSummary struct {
	ID                  uint              `json:"id"`
	Tipo                MealType          `json:"tipo"`
	KcalEstimadas       int               `json:"kcal_estimadas"`
	ProteinasG          float64           `json:"proteinas_g"`
	CarboidratosG       float64           `json:"carboidratos_g"`
	GordurasG           float64           `json:"gorduras_g"`
	SuggestedName       string            `json:"suggested_name"`
	AlimentosPrincipais []string          `json:"alimentos_principais"`
	Status              models.MealStatus `json:"status"`
	ImagemURL           *string           `json:"imagem_url"`
	CriadoEm            time.Time         `json:"criado_em"`
}

type DailyConsumption struct {
	TotalCalorias       int     `json:"total_calorias"`
	TotalProteinasG     float64 `json:"total_proteinas_g"`
	TotalCarboidratosG  float64 `json:"total_carboidratos_g"`
	TotalGordurasG      float64 `json:"total_gorduras_g"`
	RefeicoesAnalisadas int     `json:"refeicoes_analisadas"`
}

type MealServiceOptions struct {
	Location *time.Location
	Events   StatusPublisher
	Logger   *zap.Logger
	Metrics  *Metrics
	Now      func() time.Time
}

type MealService struct {
	db         *gorm.DB
	resolver   *FoodResolver
	aggregator *NutrientAggregator
	events     StatusPublisher
	validate   *validator.Validate
	loc        *time.Location
	log        *zap.Logger
	metrics    *Metrics
	now        func() time.Time
}

func NewMealService(db *gorm.DB, resolver *FoodResolver, aggregator *NutrientAggregator, opts MealServiceOptions) *MealService {
	s := &MealService{
		db:         db,
		resolver:   resolver,
		aggregator: aggregator,
		events:     opts.Events,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		loc:        opts.Location,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateMeal stores the meal and its items in one transaction, pending
// analysis.
func (s *MealService) CreateMeal(ctx context.Context, ownerID uint, in MealInput) (*models.Meal, error) {
	for i := range in.Items {
		in.Items[i].Name = strings.TrimSpace(in.Items[i].Name)
	}
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeal, err)
	}

	meal := &models.Meal{
		OwnerID:   ownerID,
		Status:    models.MealStatusPending,
		ImageURL:  in.ImageURL,
		CreatedAt: s.now().UTC(),
	}
	if len(in.Snapshot) > 0 && string(in.Snapshot) != "null" {
		raw := string(in.Snapshot)
		meal.AnalysisSnapshot = &raw
	}

	items := make([]models.MealItem, len(in.Items))
	for i, it := range in.Items {
		items[i] = models.MealItem{
			Position:          i,
			Name:              it.Name,
			QuantityG:         it.QuantityG,
			Category:          it.Category,
			Confidence:        it.Confidence,
			EstimatedCalories: it.EstimatedCalories,
			SuggestedMeasure:  it.SuggestedMeasure,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(meal).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].MealID = meal.ID
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create meal: %v", ErrPersistence, err)
	}
	meal.Items = items

	s.log.Info("meal created",
		zap.Uint("meal_id", meal.ID),
		zap.Uint("owner_id", ownerID),
		zap.Int("items", len(items)))
	s.publish(meal, nil, nil)
	return meal, nil
}

// AnalyzeMeal resolves the meal's unlinked items, links them, aggregates
// and freezes the result. Any failure leaves the meal analysis_failed.
func (s *MealService) AnalyzeMeal(ctx context.Context, ownerID, mealID uint) (*MealSummary, error) {
	meal, err := s.GetMeal(ctx, ownerID, mealID)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, meal, models.MealStatusPending); err != nil {
		return nil, err
	}
	s.publish(meal, nil, nil)

	totals, err := s.analyze(ctx, meal)
	if err != nil {
		s.markFailed(ctx, meal, err)
		return nil, err
	}

	sum := s.summarize(meal, totals)
	s.metrics.mealAnalyzed(string(models.MealStatusComplete))
	s.publish(meal, &sum.KcalEstimadas, nil)
	s.log.Info("meal analyzed",
		zap.Uint("meal_id", meal.ID),
		zap.Int("kcal", sum.KcalEstimadas),
		zap.String("source", string(totals.Source)),
		zap.Int("unresolved", totals.Unresolved))
	return sum, nil
}

func (s *MealService) analyze(ctx context.Context, meal *models.Meal) (NutrientTotals, error) {
	var pending []*models.MealItem
	var names []string
	for i := range meal.Items {
		it := &meal.Items[i]
		if it.FoodID == nil && it.Name != "" {
			pending = append(pending, it)
			names = append(names, it.Name)
		}
	}

	if len(pending) > 0 {
		resolved, err := s.resolver.ResolveAll(ctx, names)
		if err != nil {
			return NutrientTotals{}, fmt.Errorf("resolve meal %d items: %w", meal.ID, err)
		}
		if err := s.linkItems(ctx, pending, resolved); err != nil {
			return NutrientTotals{}, err
		}
	}

	totals, err := s.aggregator.Aggregate(ctx, meal)
	if err != nil {
		return NutrientTotals{}, fmt.Errorf("aggregate meal %d: %w", meal.ID, err)
	}

	updates := map[string]any{"status": models.MealStatusComplete}
	var raw string
	// a client snapshot that stood in for unresolved items stays in place
	if totals.Source != TotalsFromSnapshot {
		snap, err := json.Marshal(NewAnalysisSnapshot(meal, totals, s.now().UTC()))
		if err != nil {
			return NutrientTotals{}, fmt.Errorf("encode snapshot: %w", err)
		}
		raw = string(snap)
		updates["analysis_snapshot"] = raw
	}
	err = s.db.WithContext(ctx).
		Model(&models.Meal{}).
		Where("id = ?", meal.ID).
		Updates(updates).Error
	if err != nil {
		return NutrientTotals{}, fmt.Errorf("%w: save analysis of meal %d: %v", ErrPersistence, meal.ID, err)
	}
	meal.Status = models.MealStatusComplete
	if raw != "" {
		meal.AnalysisSnapshot = &raw
	}
	return totals, nil
}

// linkItems backfills food_id for the items that resolved. Unresolved
// items stay unlinked.
func (s *MealService) linkItems(ctx context.Context, items []*models.MealItem, resolved []*Resolution) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, it := range items {
			r := resolved[i]
			if r == nil {
				s.log.Info("meal item left unresolved",
					zap.Uint("item_id", it.ID), zap.String("name", it.Name))
				continue
			}
			if err := tx.Model(&models.MealItem{}).
				Where("id = ?", it.ID).
				Update("food_id", r.Food.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: link meal items: %v", ErrPersistence, err)
	}
	for i, it := range items {
		if r := resolved[i]; r != nil {
			id := r.Food.ID
			it.FoodID = &id
			it.Food = r.Food
		}
	}
	return nil
}

func (s *MealService) setStatus(ctx context.Context, meal *models.Meal, status models.MealStatus) error {
	err := s.db.WithContext(ctx).
		Model(&models.Meal{}).
		Where("id = ?", meal.ID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("%w: set meal %d status %s: %v", ErrPersistence, meal.ID, status, err)
	}
	meal.Status = status
	return nil
}

// markFailed records analysis_failed without masking cause. It runs even
// when ctx is already done.
func (s *MealService) markFailed(ctx context.Context, meal *models.Meal, cause error) {
	s.metrics.mealAnalyzed(string(models.MealStatusFailed))
	s.log.Error("meal analysis failed", zap.Uint("meal_id", meal.ID), zap.Error(cause))

	if err := s.setStatus(context.WithoutCancel(ctx), meal, models.MealStatusFailed); err != nil {
		s.log.Error("could not record failed analysis",
			zap.Uint("meal_id", meal.ID), zap.Error(err))
		return
	}
	s.publish(meal, nil, cause)
}

func (s *MealService) GetMeal(ctx context.Context, ownerID, mealID uint) (*models.Meal, error) {
	var meal models.Meal
	err := s.withItems(s.db.WithContext(ctx)).
		Where("id = ? AND owner_id = ?", mealID, ownerID).
		First(&meal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMealNotFound
		}
		return nil, fmt.Errorf("%w: load meal %d: %v", ErrPersistence, mealID, err)
	}
	return &meal, nil
}

// GetMealSummary aggregates on read; it never resolves or writes.
func (s *MealService) GetMealSummary(ctx context.Context, ownerID, mealID uint) (*MealSummary, error) {
	meal, err := s.GetMeal(ctx, ownerID, mealID)
	if err != nil {
		return nil, err
	}
	totals, err := s.aggregator.Aggregate(ctx, meal)
	if err != nil {
		return nil, err
	}
	return s.summarize(meal, totals), nil
}

func (s *MealService) DeleteMeal(ctx context.Context, ownerID, mealID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var meal models.Meal
		if err := tx.Select("id").
			Where("id = ? AND owner_id = ?", mealID, ownerID).
			First(&meal).Error; err != nil {
			return err
		}
		if err := tx.Where("meal_id = ?", meal.ID).Delete(&models.MealItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Meal{}, meal.ID).Error
	})
	switch {
	case err == nil:
		s.log.Info("meal deleted", zap.Uint("meal_id", mealID), zap.Uint("owner_id", ownerID))
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrMealNotFound
	default:
		return fmt.Errorf("%w: delete meal %d: %v", ErrPersistence, mealID, err)
	}
}

// DailyFeed lists today's meals, newest first.
func (s *MealService) DailyFeed(ctx context.Context, ownerID uint) ([]MealSummary, error) {
	meals, err := s.todaysMeals(ctx, ownerID, "")
	if err != nil {
		return nil, err
	}
	out := make([]MealSummary, 0, len(meals))
	for i := range meals {
		totals, err := s.aggregator.Aggregate(ctx, &meals[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *s.summarize(&meals[i], totals))
	}
	return out, nil
}

// DailyConsumption sums today's analysed meals and rounds once.
func (s *MealService) DailyConsumption(ctx context.Context, ownerID uint) (*DailyConsumption, error) {
	meals, err := s.todaysMeals(ctx, ownerID, models.MealStatusComplete)
	if err != nil {
		return nil, err
	}
	var sum NutrientTotals
	for i := range meals {
		t, err := s.aggregator.Aggregate(ctx, &meals[i])
		if err != nil {
			return nil, err
		}
		sum.Calories += t.Calories
		sum.Protein += t.Protein
		sum.Carbs += t.Carbs
		sum.Fat += t.Fat
	}
	r := sum.Rounded()
	return &DailyConsumption{
		TotalCalorias:       r.Calories,
		TotalProteinasG:     r.Protein,
		TotalCarboidratosG:  r.Carbs,
		TotalGordurasG:      r.Fat,
		RefeicoesAnalisadas: len(meals),
	}, nil
}

func (s *MealService) todaysMeals(ctx context.Context, ownerID uint, status models.MealStatus) ([]models.Meal, error) {
	from, to := dayBounds(s.now(), s.loc)
	q := s.withItems(s.db.WithContext(ctx)).
		Where("owner_id = ? AND created_at >= ? AND created_at < ?", ownerID, from, to)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var meals []models.Meal
	if err := q.Order("created_at DESC, id DESC").Find(&meals).Error; err != nil {
		return nil, fmt.Errorf("%w: list meals: %v", ErrPersistence, err)
	}
	return meals, nil
}

func (s *MealService) withItems(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Items.Food")
}

func (s *MealService) summarize(meal *models.Meal, totals NutrientTotals) *MealSummary {
	names := make([]string, 0, len(meal.Items))
	for _, it := range meal.Items {
		names = append(names, it.Name)
	}
	top := make([]string, 0, 3)
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" && len(top) < 3 {
			top = append(top, n)
		}
	}
	r := totals.Rounded()
	return &MealSummary{
		ID:                  meal.ID,
		Tipo:                ClassifyTime(meal.CreatedAt.In(s.loc).Hour()),
		KcalEstimadas:       r.Calories,
		ProteinasG:          r.Protein,
		CarboidratosG:       r.Carbs,
		GordurasG:           r.Fat,
		SuggestedName:       SuggestName(names),
		AlimentosPrincipais: top,
		Status:              meal.Status,
		ImagemURL:           meal.ImageURL,
		CriadoEm:            meal.CreatedAt,
	}
}

func (s *MealService) publish(meal *models.Meal, kcal *int, cause error) {
	if s.events == nil {
		return
	}
	ev := MealEvent{MealID: meal.ID, Status: meal.Status, Calories: kcal}
	if cause != nil {
		ev.Error = cause.Error()
	}
	s.events.PublishMealStatus(meal.OwnerID, ev)
}

// dayBounds returns [midnight, next midnight) of now's day in loc, in UTC.
func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
