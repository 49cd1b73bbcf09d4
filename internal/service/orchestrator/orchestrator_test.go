package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExecutor struct {
	err    error
	calls  int32
	block  chan struct{}
	ctxErr error
}

func (f *fakeExecutor) ExecuteRun(ctx context.Context, runID string) error {
	atomic.AddInt32(&f.calls, 1)
	f.ctxErr = ctx.Err()
	if f.block != nil {
		close(f.block)
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func waitCalls(executor *fakeExecutor, want int32) {
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&executor.calls) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTryDispatchMaxRetriesReached(t *testing.T) {
	executor := &fakeExecutor{}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	job := &Job{
		RunID:      "run-1",
		RetryCount: 1,
		MaxRetries: 1,
		Timeout:    10 * time.Millisecond,
	}

	o.tryDispatch(job)

	if got := o.retryQueue.Len(); got != 0 {
		t.Fatalf("retry queue should be empty, got %d", got)
	}
	if atomic.LoadInt32(&executor.calls) != 0 {
		t.Fatalf("executor should not be called, got %d", executor.calls)
	}
	if job.RetryCount != 1 {
		t.Fatalf("retry count should remain 1, got %d", job.RetryCount)
	}
}

func TestTryDispatchRunsOnce(t *testing.T) {
	executor := &fakeExecutor{}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	o.tryDispatch(NewRunJob("run-2", 10*time.Millisecond))

	waitCalls(executor, 1)
	if got := o.retryQueue.Len(); got != 0 {
		t.Fatalf("retry queue should be empty, got %d", got)
	}
	if atomic.LoadInt32(&executor.calls) != 1 {
		t.Fatalf("executor should be called once, got %d", executor.calls)
	}
}

func TestNewRunJobDefaults(t *testing.T) {
	job := NewRunJob("run-3", 0)
	if job.MaxRetries != 1 {
		t.Fatalf("run jobs must execute once, got MaxRetries=%d", job.MaxRetries)
	}
	if job.Timeout != DefaultRunTimeout {
		t.Fatalf("expected default timeout, got %v", job.Timeout)
	}
}

func TestExecuteJobStopsOnTimeout(t *testing.T) {
	executor := &fakeExecutor{err: context.DeadlineExceeded}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	job := &Job{
		RunID:      "run-4",
		RetryCount: 0,
		MaxRetries: 3,
		Timeout:    50 * time.Millisecond,
	}

	start := time.Now()
	o.executeJob(job)
	elapsed := time.Since(start)

	if atomic.LoadInt32(&executor.calls) != 1 {
		t.Fatalf("executor should be called once, got %d", executor.calls)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("executeJob took too long: %v", elapsed)
	}
}

func TestCancelRunQueuedIsSkipped(t *testing.T) {
	executor := &fakeExecutor{}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	if o.CancelRun("run-5") {
		t.Fatalf("queued run should not be reported as active")
	}
	o.tryDispatch(NewRunJob("run-5", time.Second))

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&executor.calls) != 0 {
		t.Fatalf("canceled run should not execute, got %d calls", executor.calls)
	}
}

func TestCancelRunActive(t *testing.T) {
	executor := &fakeExecutor{block: make(chan struct{})}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	done := make(chan struct{})
	go func() {
		o.executeJob(NewRunJob("run-6", time.Minute))
		close(done)
	}()

	<-executor.block
	if !o.CancelRun("run-6") {
		t.Fatalf("active run should be canceled")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop after cancel")
	}
	if st := o.GetQueueStatus(); st.ActiveRuns != 0 {
		t.Fatalf("active runs should be 0, got %d", st.ActiveRuns)
	}
}

func TestCancelBetweenDispatchAndStart(t *testing.T) {
	executor := &fakeExecutor{}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	// 已通过分发检查但尚未登记取消函数
	if o.CancelRun("run-7") {
		t.Fatalf("run is not active yet")
	}
	o.executeJob(NewRunJob("run-7", time.Minute))

	if !errors.Is(executor.ctxErr, context.Canceled) {
		t.Fatalf("run context should be canceled at start, got %v", executor.ctxErr)
	}
	o.cancelMutex.Lock()
	pending := len(o.pendingCancels)
	o.cancelMutex.Unlock()
	if pending != 0 {
		t.Fatalf("pending cancel should be consumed, got %d", pending)
	}
}
