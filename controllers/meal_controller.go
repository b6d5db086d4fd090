package controllers

import (
	"errors"
	"net/http"

	"github.com/e-RicardoGama/nutriscan/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MealController struct {
	Svc *services.MealService
	Log *zap.Logger
}

func NewMealController(svc *services.MealService, log *zap.Logger) *MealController {
	if log == nil {
		log = zap.NewNop()
	}
	return &MealController{Svc: svc, Log: log}
}

// POST /refeicoes
// Saves the meal and analyses it right away. A storage failure during the
// analysis is reported as such; any other failed analysis still answers
// 201 since the meal exists and carries analysis_failed.
func (h *MealController) Create(c *gin.Context) {
	userID, ok := userIDFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body services.MealInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	meal, err := h.Svc.CreateMeal(ctx, userID, body)
	if err != nil {
		respondError(c, err)
		return
	}
	sum, err := h.Svc.AnalyzeMeal(ctx, userID, meal.ID)
	if err != nil {
		h.Log.Warn("analysis after save failed", zap.Uint("meal_id", meal.ID), zap.Error(err))
		if errors.Is(err, services.ErrPersistence) {
			respondError(c, err)
			return
		}
		if sum, err = h.Svc.GetMealSummary(ctx, userID, meal.ID); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, sum)
}

// GET /refeicoes/hoje
func (h *MealController) Today(c *gin.Context) {
	userID, ok := userIDFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	feed, err := h.Svc.DailyFeed(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

// GET /refeicoes/:id
func (h *MealController) Get(c *gin.Context) {
	userID, ok := userIDFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	sum, err := h.Svc.GetMealSummary(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// POST /refeicoes/:id/analisar
func (h *MealController) Analyze(c *gin.Context) {
	userID, ok := userIDFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	sum, err := h.Svc.AnalyzeMeal(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// DELETE /refeicoes/:id
func (h *MealController) Delete(c *gin.Context) {
	userID, ok := userIDFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Svc.DeleteMeal(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
