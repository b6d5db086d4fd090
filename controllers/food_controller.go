package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/e-RicardoGama/nutriscan/models"
	"github.com/e-RicardoGama/nutriscan/services"

	"github.com/gin-gonic/gin"
)

type FoodController struct {
	Svc *services.FoodService
}

func NewFoodController(svc *services.FoodService) *FoodController {
	return &FoodController{Svc: svc}
}

type resolvedFood struct {
	Food  *models.Food             `json:"alimento"`
	Stage services.ResolutionStage `json:"estagio"`
	Score int                      `json:"score"`
}

// GET /alimentos/buscar?q=&categoria=&limit=
func (fc *FoodController) Search(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	foods, err := fc.Svc.Search(c.Request.Context(), c.Query("q"), c.Query("categoria"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, foods)
}

// GET /alimentos/buscar-por-nome?nome=
func (fc *FoodController) BestMatch(c *gin.Context) {
	nome := strings.TrimSpace(c.Query("nome"))
	if nome == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nome is required"})
		return
	}
	res, err := fc.Svc.BestMatch(c.Request.Context(), nome)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Food)
}

// GET /alimentos/sugerir-nutrientes?nome_alimento=
func (fc *FoodController) SuggestNutrients(c *gin.Context) {
	nome := strings.TrimSpace(c.Query("nome_alimento"))
	if nome == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nome_alimento is required"})
		return
	}
	food, err := fc.Svc.SuggestNutrients(c.Request.Context(), nome)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, food)
}

// POST /alimentos/resolver
func (fc *FoodController) Resolve(c *gin.Context) {
	var body struct {
		Nome string `json:"nome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := fc.Svc.Resolve(c.Request.Context(), body.Nome)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolvedFood{Food: res.Food, Stage: res.Stage, Score: res.Score})
}
