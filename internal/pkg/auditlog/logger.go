package auditlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
	"k8s.io/klog/v2"
)

// FileName 审计日志文件名
const FileName = "log-auditoria.json"

// StepGeneralFailure 流程被意外中止时记录的步骤标识
const StepGeneralFailure = "ERRO_GERAL"

// Logger 只追加的内存审计日志，流程结束时一次性落盘
type Logger struct {
	outputDir string
	mutex     sync.Mutex
	entries   []model.AuditLogEntry
	now       func() time.Time
}

func New(outputDir string) *Logger {
	return &Logger{outputDir: outputDir, now: time.Now}
}

// Log 追加一条记录；errMsg 为空表示无错误
func (l *Logger) Log(step string, success bool, input, output any, errMsg string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, model.AuditLogEntry{
		Timestamp: l.now().UTC(),
		Step:      step,
		Success:   success,
		Input:     input,
		Output:    output,
		Error:     errMsg,
	})
	if success {
		klog.V(6).Infof("[auditlog] %s 成功", step)
	} else {
		klog.Warningf("[auditlog] %s 失败: %s", step, errMsg)
	}
}

// Entries 返回当前记录的副本
func (l *Logger) Entries() []model.AuditLogEntry {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	out := make([]model.AuditLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Save 写入 <outputDir>/log-auditoria.json
func (l *Logger) Save() (string, error) {
	entries := l.Entries()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit log: %w", err)
	}
	path := filepath.Join(l.outputDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write audit log: %w", err)
	}
	return path, nil
}

func (l *Logger) Summary() model.AuditSummary {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	s := model.AuditSummary{Total: len(l.entries)}
	for _, e := range l.entries {
		if e.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
