package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// RunStatus 合规流程执行的状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"   // 已创建
	RunStatusQueued    RunStatus = "queued"    // 已入队等待
	RunStatusRunning   RunStatus = "running"   // 正在执行
	RunStatusSucceeded RunStatus = "succeeded" // 八个步骤全部成功
	RunStatusFailed    RunStatus = "failed"    // 有步骤失败或流程中止
	RunStatusCanceled  RunStatus = "canceled"  // 被取消
)

// RunTransition 状态迁移
type RunTransition struct {
	From RunStatus
	To   RunStatus
}

// RunStateMachine 运行状态机
// 终止态不允许重置，重新执行需要新建一次运行
type RunStateMachine struct {
	allowedTransitions map[RunTransition]bool
}

func NewRunStateMachine() *RunStateMachine {
	sm := &RunStateMachine{
		allowedTransitions: make(map[RunTransition]bool),
	}

	// pending -> queued -> running -> succeeded/failed
	// queued/running -> canceled
	// pending/queued -> failed（入队失败）
	transitions := []RunTransition{
		{RunStatusPending, RunStatusQueued},
		{RunStatusQueued, RunStatusRunning},
		{RunStatusRunning, RunStatusSucceeded},
		{RunStatusRunning, RunStatusFailed},

		{RunStatusPending, RunStatusFailed},
		{RunStatusQueued, RunStatusFailed},

		{RunStatusQueued, RunStatusCanceled},
		{RunStatusRunning, RunStatusCanceled},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}
	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *RunStateMachine) CanTransition(from, to RunStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[RunTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *RunStateMachine) ValidateTransition(from, to RunStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *RunStateMachine) Transition(from, to RunStatus, runID string) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("运行状态迁移被拒绝: runID=%s, %s -> %s, error=%v", runID, from, to, err)
		return err
	}
	klog.V(6).Infof("运行状态迁移成功: runID=%s, %s -> %s", runID, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid run state transition: %s -> %s", e.From, e.To)
}

// IsTerminal 判断状态是否为终止态
func IsTerminal(status RunStatus) bool {
	return status == RunStatusSucceeded || status == RunStatusFailed || status == RunStatusCanceled
}

// IsActive 判断运行是否在排队或执行中
func IsActive(status RunStatus) bool {
	return status == RunStatusQueued || status == RunStatusRunning
}
