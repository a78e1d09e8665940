package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/extractor"
)

// ExtractHandler handles synchronous metadata extraction requests
type ExtractHandler struct {
	normalizer *extractor.Normalizer
	extractors *extractor.Registry
	logger     *zap.Logger
}

// NewExtractHandler creates a new extract handler
func NewExtractHandler(normalizer *extractor.Normalizer, extractors *extractor.Registry, logger *zap.Logger) *ExtractHandler {
	return &ExtractHandler{
		normalizer: normalizer,
		extractors: extractors,
		logger:     logger,
	}
}

// ExtractRequest represents a metadata extraction request
type ExtractRequest struct {
	URL string `json:"url" binding:"required"`
}

// ExtractResponse carries the resolved reference, the metadata, and the
// strategy log collected during extraction.
type ExtractResponse struct {
	Platform     string      `json:"platform"`
	ContentID    string      `json:"content_id"`
	CanonicalURL string      `json:"canonical_url"`
	Metadata     interface{} `json:"metadata"`
	Log          []string    `json:"log"`
}

// Extract handles POST /api/v1/extract
func (h *ExtractHandler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := h.normalizer.Normalize(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ext, err := h.extractors.ForPlatform(ref.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var messages []string
	meta, err := ext.Extract(c.Request.Context(), ref, func(msg string) {
		messages = append(messages, msg)
	})
	if err != nil {
		h.logger.Error("Extraction failed", zap.String("url", req.URL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ExtractResponse{
		Platform:     string(ref.Platform),
		ContentID:    ref.ContentID,
		CanonicalURL: ref.CanonicalURL,
		Metadata:     meta,
		Log:          messages,
	})
}
