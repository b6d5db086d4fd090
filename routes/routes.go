package routes

import (
	"net/http"

	"github.com/e-RicardoGama/nutriscan/controllers"
	"github.com/e-RicardoGama/nutriscan/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Meals       *controllers.MealController
	Foods       *controllers.FoodController
	Dashboard   *controllers.DashboardController
	Conversions *controllers.ConversionController
	Images      *controllers.ImageUploadController
	Realtime    *controllers.RealtimeController
}

type Options struct {
	JWTSecret string
	Logger    *zap.Logger
	Gatherer  prometheus.Gatherer
}

func SetupRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestID())
	if opts.Logger != nil {
		r.Use(middlewares.RequestLogger(opts.Logger))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := middlewares.AuthMiddleware(opts.JWTSecret)

	meals := r.Group("/refeicoes")
	meals.Use(auth)
	{
		meals.POST("", h.Meals.Create)
		meals.GET("/hoje", h.Meals.Today)
		meals.POST("/imagem", h.Images.Upload)
		meals.GET("/:id", h.Meals.Get)
		meals.POST("/:id/analisar", h.Meals.Analyze)
		meals.DELETE("/:id", h.Meals.Delete)
	}

	dash := r.Group("/dashboard")
	dash.Use(auth)
	{
		dash.GET("/consumo-diario", h.Dashboard.GetDailyConsumption)
	}

	foods := r.Group("/alimentos")
	foods.Use(auth)
	{
		foods.GET("/buscar", h.Foods.Search)
		foods.GET("/buscar-por-nome", h.Foods.BestMatch)
		foods.GET("/sugerir-nutrientes", h.Foods.SuggestNutrients)
		foods.POST("/resolver", h.Foods.Resolve)
	}

	conv := r.Group("/conversoes")
	conv.Use(auth)
	{
		conv.GET("/gramas-para-caseira", h.Conversions.GramsToMeasure)
		conv.GET("/caseira-para-gramas", h.Conversions.MeasureToGrams)
	}

	ws := r.Group("/ws")
	ws.Use(auth)
	{
		ws.GET("/refeicoes", h.Realtime.MealsWS)
	}

	return r
}
