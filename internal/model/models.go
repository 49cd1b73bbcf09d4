package model

import (
	"time"
)

// RunRecord 一次合规流程执行的持久化记录
type RunRecord struct {
	ID          string       `json:"id" gorm:"primaryKey;size:36"`
	CompanyName string       `json:"company_name" gorm:"size:255;not null"`
	TaxID       string       `json:"tax_id" gorm:"size:32;index"`
	OutputDir   string       `json:"output_dir" gorm:"size:500"`
	Profile     string       `json:"-" gorm:"type:text"`                     // CompanyProfile JSON 快照
	Status      string       `json:"status" gorm:"size:50;default:pending"` // pending, queued, running, succeeded, failed, canceled
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	ErrorMsg    string       `json:"error_msg" gorm:"size:1000"`
	PackagePath string       `json:"package_path" gorm:"size:500"`
	StartedAt   *time.Time   `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Steps       []StepRecord `json:"steps,omitempty" gorm:"foreignKey:RunID"`
}

// StepRecord 单个步骤的执行结果
type StepRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RunID     string    `json:"run_id" gorm:"size:36;index;not null"`
	Step      string    `json:"step" gorm:"size:64;not null"`
	Success   bool      `json:"success"`
	File      string    `json:"file" gorm:"size:500"`
	ErrorMsg  string    `json:"error_msg" gorm:"size:1000"`
	CreatedAt time.Time `json:"created_at"`
}
