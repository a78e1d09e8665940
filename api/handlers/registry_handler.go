package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HyIsNoob/khytool/internal/registry"
)

// RegistryHandler exposes the download history ledger
type RegistryHandler struct {
	reg    *registry.Registry
	logger *zap.Logger
}

// NewRegistryHandler creates a new registry handler
func NewRegistryHandler(reg *registry.Registry, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{
		reg:    reg,
		logger: logger,
	}
}

// ListRecords handles GET /api/v1/registry
func (h *RegistryHandler) ListRecords(c *gin.Context) {
	switch c.Query("status") {
	case "active":
		c.JSON(http.StatusOK, h.reg.Active())
	case "completed":
		c.JSON(http.StatusOK, h.reg.Completed())
	default:
		c.JSON(http.StatusOK, h.reg.GetAll())
	}
}

// GetRecord handles GET /api/v1/registry/:id
func (h *RegistryHandler) GetRecord(c *gin.Context) {
	id := c.Param("id")

	record, ok := h.reg.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// DeleteRecord handles DELETE /api/v1/registry/:id
func (h *RegistryHandler) DeleteRecord(c *gin.Context) {
	id := c.Param("id")

	if !h.reg.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}

	h.logger.Info("Registry record removed", zap.String("id", id))
	c.JSON(http.StatusOK, gin.H{"message": "record removed"})
}
