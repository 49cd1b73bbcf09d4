package handler

import (
	"net/http"

	"github.com/dpo2u/lgpdkit/internal/service"
	"github.com/gin-gonic/gin"
)

type CacheHandler struct {
	service *service.ComplianceService
}

func NewCacheHandler(service *service.ComplianceService) *CacheHandler {
	return &CacheHandler{service: service}
}

func (h *CacheHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.CachedRuns())
}

// Lookup 按 name 或 tax_id 查询缓存
func (h *CacheHandler) Lookup(c *gin.Context) {
	name := c.Query("name")
	taxID := c.Query("tax_id")
	if name == "" && taxID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name or tax_id is required"})
		return
	}

	cached, ok := h.service.LookupCache(name, taxID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Empresa não encontrada no cache"})
		return
	}
	c.JSON(http.StatusOK, cached)
}
