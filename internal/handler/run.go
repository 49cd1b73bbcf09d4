package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/repository"
	"github.com/dpo2u/lgpdkit/internal/service"
	"github.com/gin-gonic/gin"
)

const defaultRunListLimit = 50

type RunHandler struct {
	service *service.ComplianceService
}

func NewRunHandler(service *service.ComplianceService) *RunHandler {
	return &RunHandler{
		service: service,
	}
}

// CreateRunRequest 公司画像加上是否忽略已完成的缓存
type CreateRunRequest struct {
	model.CompanyProfile
	Force bool `json:"force"`
}

// RunDetail 运行记录及输出目录中的文件
type RunDetail struct {
	*model.RunRecord
	Files []string `json:"files"`
}

func (h *RunHandler) Create(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.Submit(req.CompanyProfile, req.Force)
	if err != nil {
		if errors.Is(err, service.ErrInvalidProfile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if res.Cached != nil {
		c.JSON(http.StatusOK, gin.H{
			"message": "Empresa já possui adequação LGPD completa",
			"cached":  res.Cached,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": res.Run.ID, "status": res.Run.Status})
}

func (h *RunHandler) List(c *gin.Context) {
	limit := defaultRunListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := h.service.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *RunHandler) Get(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, RunDetail{RunRecord: run, Files: h.service.RunFiles(run)})
}

func (h *RunHandler) Cancel(c *gin.Context) {
	if err := h.service.CancelRun(c.Param("id")); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		case errors.Is(err, service.ErrRunNotCancelable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "run canceled"})
}

// Package 下载 pacote-final.zip
func (h *RunHandler) Package(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	if run.PackagePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "package not available"})
		return
	}
	c.FileAttachment(run.PackagePath, run.ID+".zip")
}

// QueueStatus 获取编排器状态
func (h *RunHandler) QueueStatus(c *gin.Context) {
	status := h.service.QueueStatus()
	if status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator not running"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// CleanupStuck 清理卡住的运行
func (h *RunHandler) CleanupStuck(c *gin.Context) {
	affected, err := h.service.CleanupStuckRuns(stuckRunTimeout)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"affected": affected})
}

func (h *RunHandler) lookup(c *gin.Context) (*model.RunRecord, bool) {
	run, err := h.service.GetRun(c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return run, true
}
