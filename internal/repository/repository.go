package repository

import (
	"errors"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type RunRepository interface {
	Create(run *model.RunRecord) error
	Get(id string) (*model.RunRecord, error)
	List(limit int) ([]model.RunRecord, error)
	Save(run *model.RunRecord) error
	UpdateStatus(id, status, errMsg string) error
	// MarkRunning 仅当状态仍为 from 时迁移到 running，返回是否更新
	MarkRunning(id, from string, startedAt time.Time) (bool, error)
	AddStep(step *model.StepRecord) error
	ListSteps(runID string) ([]model.StepRecord, error)
	CleanupStuckRuns(timeout time.Duration) (int64, error)
}
