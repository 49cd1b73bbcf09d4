package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dpo2u/lgpdkit/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	healthProbeTimeout = 5 * time.Second
	stuckRunTimeout    = 40 * time.Minute
)

type HealthHandler struct {
	service *service.ComplianceService
}

func NewHealthHandler(service *service.ComplianceService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Health 后端连通性
func (h *HealthHandler) Health(c *gin.Context) {
	client := h.service.Client()
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	healthy := client.CheckHealth(ctx)
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"provider": client.ProviderName(),
		"model":    client.ModelName(),
		"healthy":  healthy,
	})
}
