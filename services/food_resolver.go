package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/e-RicardoGama/nutriscan/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrResolutionFailed covers every way a name can end up without a food:
// blank input, no match and no estimate, estimator error or timeout.
// Callers proceed without a link.
var ErrResolutionFailed = errors.New("food resolution failed")

type ResolutionStage string

const (
	StageExact     ResolutionStage = "exact"
	StageFuzzy     ResolutionStage = "fuzzy"
	StageEstimated ResolutionStage = "estimated"
)

const (
	DefaultFuzzyThreshold     = 80
	DefaultEstimateTimeout    = 20 * time.Second
	DefaultResolveConcurrency = 4
	candidateLimit            = 50

	defaultEstimatedCategory = "Unknown category"
	defaultMeasureLabel      = "unit"
	defaultApproxWeightG     = 100.0
)

type Resolution struct {
	Food  *models.Food
	Stage ResolutionStage
	Score int
}

type ResolverOptions struct {
	FuzzyThreshold  int
	EstimateTimeout time.Duration
	Concurrency     int
	Logger          *zap.Logger
	Metrics         *Metrics
}

type FoodResolver struct {
	store     FoodStore
	estimator Estimator
	threshold int
	timeout   time.Duration
	workers   int
	log       *zap.Logger
	metrics   *Metrics
	flights   singleflight.Group
}

func NewFoodResolver(store FoodStore, estimator Estimator, opts ResolverOptions) *FoodResolver {
	r := &FoodResolver{
		store:     store,
		estimator: estimator,
		threshold: opts.FuzzyThreshold,
		timeout:   opts.EstimateTimeout,
		workers:   opts.Concurrency,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
	if r.threshold <= 0 {
		r.threshold = DefaultFuzzyThreshold
	}
	if r.timeout <= 0 {
		r.timeout = DefaultEstimateTimeout
	}
	if r.workers <= 0 {
		r.workers = DefaultResolveConcurrency
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Resolve maps a raw name to a canonical food: exact match, then the best
// fuzzy candidate, then a fresh estimate that gets persisted. Only the last
// stage writes.
func (r *FoodResolver) Resolve(ctx context.Context, name string) (*Resolution, error) {
	res, err := r.Lookup(ctx, name)
	if err == nil {
		r.metrics.resolved(res.Stage)
		return res, nil
	}
	if !errors.Is(err, ErrResolutionFailed) {
		return nil, err
	}
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, err
	}

	// The flight outlives any single caller: joiners keep waiting on it even
	// when the caller that started it goes away.
	flight := r.flights.DoChan(normalized, func() (any, error) {
		return r.estimateAndPersist(context.WithoutCancel(ctx), name, normalized)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-flight:
		if out.Err != nil {
			if errors.Is(out.Err, ErrResolutionFailed) {
				r.metrics.resolutionFailed()
			}
			return nil, out.Err
		}
		res = out.Val.(*Resolution)
		if out.Shared {
			r.log.Debug("estimate shared with concurrent caller", zap.String("food", normalized))
		}
	}
	r.metrics.resolved(res.Stage)
	return res, nil
}

// Lookup runs the read-only stages. It never calls the estimator and
// leaves the resolution counters alone.
func (r *FoodResolver) Lookup(ctx context.Context, name string) (*Resolution, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty name", ErrResolutionFailed)
	}

	food, err := r.store.FindByNormalizedName(ctx, normalized)
	switch {
	case err == nil:
		return &Resolution{Food: food, Stage: StageExact, Score: 100}, nil
	case !errors.Is(err, ErrFoodNotFound):
		return nil, err
	}

	best, score, err := r.bestCandidate(ctx, normalized, normalized)
	if err != nil {
		return nil, err
	}
	// accents defeat LIKE; retry on word stems before giving up
	if stems := stemQuery(normalized); (best == nil || score < r.threshold) && stems != "" && stems != normalized {
		b2, s2, err := r.bestCandidate(ctx, normalized, stems)
		if err != nil {
			return nil, err
		}
		if b2 != nil && (best == nil || s2 > score) {
			best, score = b2, s2
		}
	}
	if best != nil && score >= r.threshold {
		r.log.Debug("fuzzy match",
			zap.String("query", normalized),
			zap.String("match", best.NormalizedName),
			zap.Int("score", score))
		return &Resolution{Food: best, Stage: StageFuzzy, Score: score}, nil
	}
	if best != nil {
		r.log.Debug("no fuzzy match good enough",
			zap.String("query", normalized),
			zap.String("best", best.NormalizedName),
			zap.Int("score", score))
	}
	return nil, fmt.Errorf("%w: no match for %q", ErrResolutionFailed, normalized)
}

type scoredFood struct {
	food  models.Food
	score int
}

func (r *FoodResolver) bestCandidate(ctx context.Context, normalized, query string) (*models.Food, int, error) {
	foods, err := r.store.Candidates(ctx, query, candidateLimit)
	if err != nil {
		return nil, 0, err
	}
	if len(foods) == 0 {
		return nil, 0, nil
	}

	ranked := make([]scoredFood, 0, len(foods))
	for _, f := range foods {
		ranked = append(ranked, scoredFood{food: f, score: SimilarityScore(normalized, f.NormalizedName)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if la, lb := runeLen(a.food.NormalizedName), runeLen(b.food.NormalizedName); la != lb {
			return la < lb
		}
		return a.food.ID < b.food.ID
	})
	best := ranked[0].food
	return &best, ranked[0].score, nil
}

// stemQuery keeps the first three runes of each significant token.
func stemQuery(normalized string) string {
	var stems []string
	seen := map[string]bool{}
	for _, t := range significantTokens(normalized) {
		st := string([]rune(t)[:3])
		if !seen[st] {
			seen[st] = true
			stems = append(stems, st)
		}
	}
	return strings.Join(stems, " ")
}

func (r *FoodResolver) estimateAndPersist(ctx context.Context, raw, normalized string) (*Resolution, error) {
	// a concurrent flight may have created it between Lookup and here
	if food, err := r.store.FindByNormalizedName(ctx, normalized); err == nil {
		return &Resolution{Food: food, Stage: StageExact, Score: 100}, nil
	} else if !errors.Is(err, ErrFoodNotFound) {
		return nil, err
	}

	if r.estimator == nil {
		return nil, fmt.Errorf("%w: %v", ErrResolutionFailed, ErrEstimatorUnavailable)
	}

	ectx, cancel := context.WithTimeout(ctx, r.timeout)
	est, err := r.estimator.Estimate(ectx, strings.TrimSpace(raw))
	cancel()
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		r.metrics.estimatorCall(outcome)
		r.log.Warn("estimator failed", zap.String("food", raw), zap.Error(err))
		return nil, fmt.Errorf("%w: estimating %q: %v", ErrResolutionFailed, raw, err)
	}
	r.metrics.estimatorCall("ok")

	food := FoodFromEstimate(raw, est)
	err = r.store.Create(ctx, food)
	switch {
	case err == nil:
		r.log.Info("food estimated and stored",
			zap.String("food", food.NormalizedName),
			zap.Uint("id", food.ID),
			zap.Float64("kcal_100g", food.EnergyKcal100g))
		return &Resolution{Food: food, Stage: StageEstimated, Score: 0}, nil
	case errors.Is(err, ErrDuplicateFood):
		// another writer won; converge on its record
		existing, ferr := r.store.FindByNormalizedName(ctx, food.NormalizedName)
		if ferr != nil {
			return nil, fmt.Errorf("%w: refetch after conflict on %q: %v", ErrPersistence, food.NormalizedName, ferr)
		}
		return &Resolution{Food: existing, Stage: StageExact, Score: 100}, nil
	default:
		return nil, err
	}
}

// ResolveAll resolves the distinct names in parallel and returns one entry
// per input, in input order. Names that fail to resolve get nil; any other
// error aborts the whole pass.
func (r *FoodResolver) ResolveAll(ctx context.Context, names []string) ([]*Resolution, error) {
	keys := make([]string, 0, len(names))
	index := map[string]int{}
	for _, n := range names {
		k := NormalizeName(n)
		if _, ok := index[k]; !ok {
			index[k] = len(keys)
			keys = append(keys, k)
		}
	}

	resolved := make([]*Resolution, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, k := range keys {
		if k == "" {
			continue
		}
		raw := names[firstIndexOf(names, k)]
		i := i
		g.Go(func() error {
			res, err := r.Resolve(gctx, raw)
			if err != nil {
				if errors.Is(err, ErrResolutionFailed) {
					return nil
				}
				return err
			}
			resolved[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*Resolution, len(names))
	for i, n := range names {
		out[i] = resolved[index[NormalizeName(n)]]
	}
	return out, nil
}

func firstIndexOf(names []string, normalized string) int {
	for i, n := range names {
		if NormalizeName(n) == normalized {
			return i
		}
	}
	return 0
}

// Sanity caps: nothing has more than ~900 kcal or 100 g of a macro per 100 g.
const (
	maxKcal100g  = 900.0
	maxGrams100g = 100.0
)

// FoodFromEstimate builds a complete record from a partial estimate:
// missing numbers become 0, missing text gets a fixed placeholder. The key
// comes from the estimator's own name when it sent one.
func FoodFromEstimate(raw string, est *Estimate) *models.Food {
	name := strings.TrimSpace(raw)
	if est.Name != nil && strings.TrimSpace(*est.Name) != "" {
		name = strings.TrimSpace(*est.Name)
	}
	category := defaultEstimatedCategory
	if est.Category != nil && strings.TrimSpace(*est.Category) != "" {
		category = strings.TrimSpace(*est.Category)
	}
	measure := defaultMeasureLabel
	if est.HouseholdMeasure != nil && strings.TrimSpace(*est.HouseholdMeasure) != "" {
		measure = strings.TrimSpace(*est.HouseholdMeasure)
	}
	weight := est.ApproxWeightG.Or(defaultApproxWeightG)
	if weight <= 0 {
		weight = defaultApproxWeightG
	}

	return &models.Food{
		Name:                name,
		NormalizedName:      NormalizeName(name),
		Category:            category,
		Source:              models.FoodSourceEstimated,
		EnergyKcal100g:      clamp(est.EnergyKcal100g.Or(0), maxKcal100g),
		Protein100g:         clamp(est.Protein100g.Or(0), maxGrams100g),
		Carbohydrate100g:    clamp(est.Carbohydrate100g.Or(0), maxGrams100g),
		Fat100g:             clamp(est.Fat100g.Or(0), maxGrams100g),
		Fiber100g:           clamp(est.Fiber100g.Or(0), maxGrams100g),
		SodiumMg100g:        nonNegative(est.SodiumMg100g.Or(0)),
		PotassiumMg100g:     nonNegative(est.PotassiumMg100g.Or(0)),
		CalciumMg100g:       nonNegative(est.CalciumMg100g.Or(0)),
		IronMg100g:          nonNegative(est.IronMg100g.Or(0)),
		MagnesiumMg100g:     nonNegative(est.MagnesiumMg100g.Or(0)),
		CholesterolMg100g:   nonNegative(est.CholesterolMg100g.Or(0)),
		SaturatedFatG:       clamp(est.SaturatedFatG.Or(0), maxGrams100g),
		MonounsaturatedFatG: clamp(est.MonounsaturatedFatG.Or(0), maxGrams100g),
		PolyunsaturatedFatG: clamp(est.PolyunsaturatedFatG.Or(0), maxGrams100g),
		Units:               nonNegative(est.Units.Or(0)),
		HouseholdMeasure:    measure,
		ApproxWeightG:       weight,
	}
}

func clamp(v, hi float64) float64 {
	return min(nonNegative(v), hi)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
