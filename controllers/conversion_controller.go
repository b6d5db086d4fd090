package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/e-RicardoGama/nutriscan/services"

	"github.com/gin-gonic/gin"
)

type ConversionController struct {
	Svc *services.MeasureService
}

func NewConversionController(svc *services.MeasureService) *ConversionController {
	return &ConversionController{Svc: svc}
}

// GET /conversoes/gramas-para-caseira?alimento_nome=&gramas=
func (cc *ConversionController) GramsToMeasure(c *gin.Context) {
	name, qty, ok := conversionParams(c, "gramas")
	if !ok {
		return
	}
	m, err := cc.Svc.GramsToMeasure(c.Request.Context(), name, qty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"medida_sugerida": m})
}

// GET /conversoes/caseira-para-gramas?alimento_nome=&quantidade_caseira=
func (cc *ConversionController) MeasureToGrams(c *gin.Context) {
	name, qty, ok := conversionParams(c, "quantidade_caseira")
	if !ok {
		return
	}
	g, err := cc.Svc.MeasureToGrams(c.Request.Context(), name, qty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gramas_calculadas": g})
}

func conversionParams(c *gin.Context, qtyKey string) (string, float64, bool) {
	name := strings.TrimSpace(c.Query("alimento_nome"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alimento_nome is required"})
		return "", 0, false
	}
	qty, err := strconv.ParseFloat(strings.ReplaceAll(c.Query(qtyKey), ",", "."), 64)
	if err != nil || qty < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + qtyKey})
		return "", 0, false
	}
	return name, qty, true
}
