package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
	"gorm.io/gorm"
)

type runRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(run *model.RunRecord) error {
	return r.db.Create(run).Error
}

// Get 返回运行记录及其步骤，步骤按写入顺序排列
func (r *runRepository) Get(id string) (*model.RunRecord, error) {
	var run model.RunRecord
	err := r.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).First(&run, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// List 最近创建的运行记录，limit <= 0 时不限制
func (r *runRepository) List(limit int) ([]model.RunRecord, error) {
	var runs []model.RunRecord
	q := r.db.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&runs).Error
	return runs, err
}

func (r *runRepository) Save(run *model.RunRecord) error {
	return r.db.Omit("Steps").Save(run).Error
}

func (r *runRepository) UpdateStatus(id, status, errMsg string) error {
	result := r.db.Model(&model.RunRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":    status,
		"error_msg": errMsg,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *runRepository) MarkRunning(id, from string, startedAt time.Time) (bool, error) {
	result := r.db.Model(&model.RunRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     "running",
			"started_at": startedAt,
			"error_msg":  "",
		})
	return result.RowsAffected > 0, result.Error
}

func (r *runRepository) AddStep(step *model.StepRecord) error {
	return r.db.Create(step).Error
}

func (r *runRepository) ListSteps(runID string) ([]model.StepRecord, error) {
	var steps []model.StepRecord
	err := r.db.Where("run_id = ?", runID).Order("id").Find(&steps).Error
	return steps, err
}

// CleanupStuckRuns 进程重启后把遗留的 queued/running 记录标记为失败
func (r *runRepository) CleanupStuckRuns(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result := r.db.Model(&model.RunRecord{}).
		Where("status IN ? AND updated_at < ?", []string{"queued", "running"}, cutoff).
		Updates(map[string]interface{}{
			"status":    "failed",
			"error_msg": fmt.Sprintf("执行超时（超过 %v），已自动标记为失败", timeout),
		})
	return result.RowsAffected, result.Error
}
