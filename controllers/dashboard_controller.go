// controllers/dashboard_controller.go
package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/e-RicardoGama/nutriscan/middlewares"
	"github.com/e-RicardoGama/nutriscan/services"
	"github.com/e-RicardoGama/nutriscan/utils"

	"github.com/gin-gonic/gin"
)

type DashboardController struct {
	Meals *services.MealService
}

func NewDashboardController(meals *services.MealService) *DashboardController {
	return &DashboardController{Meals: meals}
}

// GET /dashboard/consumo-diario
func (h *DashboardController) GetDailyConsumption(c *gin.Context) {
	userID, ok := userIDFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	out, err := h.Meals.DailyConsumption(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func userIDFromCtx(c *gin.Context) (uint, bool) {
	v, ok := c.Get(middlewares.UserIDKey)
	if !ok {
		return 0, false
	}
	switch id := v.(type) {
	case uint:
		return id, true
	case int:
		return uint(id), true
	case int64:
		return uint(id), true
	default:
		return 0, false
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// respondError maps service errors to status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrMealNotFound),
		errors.Is(err, services.ErrResolutionFailed),
		errors.Is(err, services.ErrEstimateRejected):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidMeal),
		errors.Is(err, services.ErrQueryTooShort),
		errors.Is(err, utils.ErrInvalidImage):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrEstimatorUnavailable),
		errors.Is(err, utils.ErrStorageDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrEstimateMalformed):
		status = http.StatusBadGateway
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}
