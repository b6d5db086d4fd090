package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/e-RicardoGama/nutriscan/utils"

	"github.com/gin-gonic/gin"
)

const maxImageBytes = 10 << 20

type ImageUploadController struct {
	Store utils.ImageUploader
}

func NewImageUploadController(store utils.ImageUploader) *ImageUploadController {
	return &ImageUploadController{Store: store}
}

type base64UploadRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

// POST /refeicoes/imagem
// Accepts multipart field "imagem" or a JSON data URL in image_base64.
func (ic *ImageUploadController) Upload(c *gin.Context) {
	userID, ok := userIDFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if ic.Store == nil {
		respondError(c, utils.ErrStorageDisabled)
		return
	}

	data, contentType, ok := readImage(c)
	if !ok {
		return
	}
	url, err := ic.Store.UploadMealImage(c.Request.Context(), userID, data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imagem_url": url})
}

func readImage(c *gin.Context) ([]byte, string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req base64UploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return nil, "", false
		}
		data, ct, err := utils.DecodeDataURL(req.ImageBase64)
		if err != nil {
			respondError(c, err)
			return nil, "", false
		}
		return data, ct, true
	}

	fh, err := c.FormFile("imagem")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imagem file is required"})
		return nil, "", false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return data, ct, true
}
