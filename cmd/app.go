package main

import (
	"context"
	"errors"

	"github.com/e-RicardoGama/nutriscan/config"
	"github.com/e-RicardoGama/nutriscan/controllers"
	"github.com/e-RicardoGama/nutriscan/routes"
	"github.com/e-RicardoGama/nutriscan/services"
	"github.com/e-RicardoGama/nutriscan/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type app struct {
	router   *gin.Engine
	resolver *services.FoodResolver
}

// newApp wires the services and the router on top of the database.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate bool) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := config.Migrate(db); err != nil {
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(reg)

	store := services.NewGormFoodStore(db)
	if cfg.LLMAPIKey == "" {
		log.Warn("LLM_API_KEY not set: unknown foods will not be estimated")
	}
	estimator := services.NewLLMEstimator(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, log.Named("estimator"))
	resolver := services.NewFoodResolver(store, estimator, services.ResolverOptions{
		FuzzyThreshold:  cfg.FuzzyThreshold,
		EstimateTimeout: cfg.EstimateTimeout,
		Concurrency:     cfg.ResolveConcurrency,
		Logger:          log.Named("resolver"),
		Metrics:         metrics,
	})
	aggregator := services.NewNutrientAggregator(store, log.Named("aggregator"), metrics)
	hub := services.NewRealtimeHub(log.Named("realtime"))
	meals := services.NewMealService(db, resolver, aggregator, services.MealServiceOptions{
		Location: loc,
		Events:   hub,
		Logger:   log.Named("meals"),
		Metrics:  metrics,
	})

	var images utils.ImageUploader
	uploader, err := utils.NewS3Uploader(ctx, cfg.S3Region, cfg.S3Bucket, cfg.CDNURL)
	switch {
	case err == nil:
		images = uploader
	case errors.Is(err, utils.ErrStorageDisabled):
		log.Warn("S3_BUCKET not set: photo upload disabled")
	default:
		return nil, err
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.SetupRouter(routes.Handlers{
		Meals:       controllers.NewMealController(meals, log.Named("http")),
		Foods:       controllers.NewFoodController(services.NewFoodService(store, resolver, estimator)),
		Dashboard:   controllers.NewDashboardController(meals),
		Conversions: controllers.NewConversionController(services.NewMeasureService(resolver)),
		Images:      controllers.NewImageUploadController(images),
		Realtime:    controllers.NewRealtimeController(hub),
	}, routes.Options{
		JWTSecret: cfg.JWTSecret,
		Logger:    log.Named("http"),
		Gatherer:  reg,
	})

	return &app{router: router, resolver: resolver}, nil
}
