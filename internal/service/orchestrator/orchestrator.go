package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// -----------------------------
// Job 定义
// -----------------------------
type Job struct {
	RunID      string
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
	Timeout    time.Duration
}

// -----------------------------
// RunExecutor 接口
// -----------------------------
type RunExecutor interface {
	ExecuteRun(ctx context.Context, runID string) error
}

// -----------------------------
// Orchestrator
// -----------------------------
type Orchestrator struct {
	jobQueue    *jobQueue
	retryQueue  *jobQueue
	retryTicker *time.Ticker

	pool *ants.Pool

	executor RunExecutor

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	started  atomic.Bool

	activeCancellations map[string]context.CancelFunc
	pendingCancels      map[string]bool
	cancelMutex         sync.Mutex
}

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
	ErrQueueFull           = errors.New("job queue is full")
)

// DefaultRunTimeout 单次运行的超时时间
const DefaultRunTimeout = 30 * time.Minute

const drainTimeout = time.Minute

// NewRunJob
// 说明：创建运行任务；运行会写输出目录，失败后不自动重跑，只执行一次
// 参数：runID 运行ID；timeout 小于等于 0 时使用默认超时
func NewRunJob(runID string, timeout time.Duration) *Job {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Job{
		RunID:      runID,
		EnqueuedAt: time.Now(),
		RetryCount: 0,
		MaxRetries: 1,
		Timeout:    timeout,
	}
}

// -----------------------------
// 构造函数
// -----------------------------
func NewOrchestrator(maxWorkers int, executor RunExecutor) (*Orchestrator, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	jobQ := newJobQueue(120)
	retryQ := newJobQueue(120)

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		return nil, err
	}

	return &Orchestrator{
		jobQueue:            jobQ,
		retryQueue:          retryQ,
		retryTicker:         time.NewTicker(500 * time.Millisecond),
		pool:                pool,
		activeCancellations: make(map[string]context.CancelFunc),
		pendingCancels:      make(map[string]bool),
		executor:            executor,
		ctx:                 ctx,
		cancel:              cancel,
	}, nil
}

// -----------------------------
// 启动
// -----------------------------
func (o *Orchestrator) Start() {
	o.started.Store(true)
	go o.dispatchLoop()
	go o.processRetryQueue()
}

// -----------------------------
// 停止
// -----------------------------
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		klog.V(6).Infof("Orchestrator stopping...")

		// 1. 停止接收新任务，关闭队列
		o.jobQueue.Close()
		o.retryQueue.Close()

		// 2. 等待队列中待执行的任务分发完毕；未启动时队列中的任务直接丢弃
		if o.started.Load() {
			deadline := time.Now().Add(drainTimeout)
			for o.jobQueue.Len() > 0 || o.retryQueue.Len() > 0 {
				if time.Now().After(deadline) {
					klog.Warningf("Queue drain timeout: main=%d, retry=%d", o.jobQueue.Len(), o.retryQueue.Len())
					break
				}
				time.Sleep(100 * time.Millisecond)
				klog.V(6).Infof("Waiting for queues to empty: main=%d, retry=%d", o.jobQueue.Len(), o.retryQueue.Len())
			}
		}
		o.cancel()

		// 3. 等待正在执行的长任务完成（核心适配 ants/v2）
		// 3.1 先打印当前运行中的任务数，便于排查
		runningTasks := o.pool.Running()
		if runningTasks > 0 {
			klog.V(6).Infof("Waiting for %d running runs to complete", runningTasks)
		}

		// 3.2 ReleaseTimeout 阻塞直到任务完成或超时，超时时间覆盖单次运行超时
		timeout := DefaultRunTimeout + 5*time.Minute
		rErr := o.pool.ReleaseTimeout(timeout)

		// 3.3 打印等待结果日志
		if rErr == nil {
			klog.V(6).Infof("All running tasks completed before timeout")
		} else {
			klog.Warningf("Timeout after %v: some running tasks may be forced to stop", timeout)
		}

		klog.V(6).Infof("Orchestrator stopped completely")
	})
}

// -----------------------------
// 入队任务
// -----------------------------
func (o *Orchestrator) EnqueueJob(job *Job) error {
	select {
	case <-o.ctx.Done():
		return ErrOrchestratorStopped
	default:
	}

	if err := o.jobQueue.Enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("Job queue full: runID=%s", job.RunID)
		}
		return err
	}
	klog.V(6).Infof("Job enqueued: runID=%s", job.RunID)
	return nil
}

// -----------------------------
// 取消任务
// -----------------------------
// registerCancel 登记取消函数并清除分发后到登记前到达的取消标记
// 返回 true 表示该运行已被取消，调用方应立即取消 context
func (o *Orchestrator) registerCancel(runID string, cancel context.CancelFunc) bool {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	o.activeCancellations[runID] = cancel
	if o.pendingCancels[runID] {
		delete(o.pendingCancels, runID)
		return true
	}
	return false
}

func (o *Orchestrator) unregisterCancel(runID string) {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	delete(o.activeCancellations, runID)
}

// CancelRun 取消运行
// 正在执行的运行通过 context 取消；尚在队列中的运行在分发时跳过
// 返回 true 表示取消的是正在执行的运行
func (o *Orchestrator) CancelRun(runID string) bool {
	o.cancelMutex.Lock()
	cancel, ok := o.activeCancellations[runID]
	if !ok {
		o.pendingCancels[runID] = true
	}
	o.cancelMutex.Unlock()
	if !ok {
		klog.V(6).Infof("Run not active, marked for skip: runID=%s", runID)
		return false
	}

	klog.V(6).Infof("Cancelling run: runID=%s", runID)
	cancel()
	return true
}

// takePendingCancel 判断并清除排队中的取消标记
func (o *Orchestrator) takePendingCancel(runID string) bool {
	o.cancelMutex.Lock()
	defer o.cancelMutex.Unlock()
	if o.pendingCancels[runID] {
		delete(o.pendingCancels, runID)
		return true
	}
	return false
}

// -----------------------------
// Dispatch Loop
// -----------------------------
func (o *Orchestrator) dispatchLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		default:
			job, ok := o.jobQueue.Dequeue()
			if !ok {
				// 队列已关闭且为空
				return
			}
			o.tryDispatch(job)
		}
	}
}

// -----------------------------
// Retry Queue Loop
// -----------------------------
func (o *Orchestrator) processRetryQueue() {
	defer o.retryTicker.Stop()
	// 增加协程级Panic防护，避免协程退出
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Retry queue loop panic recovered: %v", r)
		}
	}()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.retryTicker.C:
			for range 10 {
				job, ok := o.retryQueue.Dequeue()
				if !ok {
					break
				}
				// 单个任务Panic不影响整个循环
				func() {
					defer func() {
						if r := recover(); r != nil {
							klog.Errorf("Retry dispatch panic: runID=%s, err=%v",
								job.RunID, r)
						}
					}()
					o.tryDispatch(job)
				}()
			}
		}
	}
}

// -----------------------------
// Try Dispatch
// -----------------------------
// tryDispatch
// 说明：尝试分发任务到协程池执行；池提交失败时按重试上限重新入队
// 已被取消的排队任务直接丢弃
func (o *Orchestrator) tryDispatch(job *Job) {
	if o.takePendingCancel(job.RunID) {
		klog.V(6).Infof("运行已取消，跳过分发: runID=%s", job.RunID)
		return
	}
	if job.MaxRetries <= 0 || job.RetryCount >= job.MaxRetries {
		klog.Warningf("任务重试已达上限，放弃入队: runID=%s, retry=%d/%d", job.RunID, job.RetryCount, job.MaxRetries)
		return
	}
	if err := o.pool.Submit(func() {
		o.executeJob(job)
	}); err == nil {
		return
	} else {
		klog.Errorf("提交任务到协程池失败: runID=%s, err=%v", job.RunID, err)
	}

	// 提交失败不计入执行次数，重新排队
	if err := o.retryQueue.Enqueue(job); err != nil {
		klog.Errorf("任务重试入队失败: runID=%s, err=%v", job.RunID, err)
	}
}

// executeJob 统一控制重试
func (o *Orchestrator) executeJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Run panic recovered: runID=%s, err=%v", job.RunID, r)
			o.unregisterCancel(job.RunID)
		}
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()
	runCtx, manualCancel := context.WithCancel(ctx)
	defer manualCancel()

	if o.registerCancel(job.RunID, manualCancel) {
		klog.V(6).Infof("运行在启动前被取消: runID=%s", job.RunID)
		manualCancel()
	}
	defer o.unregisterCancel(job.RunID)

	for i := job.RetryCount; i < job.MaxRetries; i++ {
		job.RetryCount = i // 每次尝试前更新 RetryCount

		err := o.executor.ExecuteRun(runCtx, job.RunID)
		if err == nil {
			klog.V(6).Infof("Run completed: runID=%s", job.RunID)
			return
		}
		if i+1 >= job.MaxRetries {
			klog.Warningf("运行失败: runID=%s, attempt=%d/%d, err=%v", job.RunID, i+1, job.MaxRetries, err)
			break
		}

		backoff := time.Second << i
		if backoff > 20*time.Minute {
			backoff = 20 * time.Minute
		}

		klog.Warningf("运行重试失败: runID=%s, retry=%d/%d, err=%v, backoff=%v",
			job.RunID, i+1, job.MaxRetries, err, backoff)

		select {
		case <-runCtx.Done():
			klog.Warningf("运行被取消或超时: runID=%s", job.RunID)
			return
		case <-time.After(backoff):
		}
	}

	klog.Errorf("运行执行失败且超过重试上限: runID=%s", job.RunID)
}

// -----------------------------
// Queue Status
// -----------------------------
type QueueStatus struct {
	QueueLength   int `json:"queue_length"`
	RetryLength   int `json:"retry_length"`
	ActiveWorkers int `json:"active_workers"`
	ActiveRuns    int `json:"active_runs"`
}

func (o *Orchestrator) GetQueueStatus() *QueueStatus {
	o.cancelMutex.Lock()
	active := len(o.activeCancellations)
	o.cancelMutex.Unlock()
	return &QueueStatus{
		QueueLength:   o.jobQueue.Len(),
		RetryLength:   o.retryQueue.Len(),
		ActiveWorkers: o.pool.Running(),
		ActiveRuns:    active,
	}
}

// -----------------------------
// JobQueue (Ring Buffer) + Reject New
// -----------------------------
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, maxSize),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrOrchestratorStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull // Reject New
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *jobQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}

// -------------------- Global Orchestrator --------------------
var (
	globalOrchestrator *Orchestrator
	orchestratorOnce   sync.Once
)

func InitGlobalOrchestrator(maxWorkers int, executor RunExecutor) error {
	var initErr error
	orchestratorOnce.Do(func() {
		orch, err := NewOrchestrator(maxWorkers, executor)
		if err != nil {
			initErr = err
			return
		}
		globalOrchestrator = orch
		globalOrchestrator.Start()
		klog.V(6).Infof("Global orchestrator initialized: maxWorkers=%d", maxWorkers)
	})
	return initErr
}

func GetGlobalOrchestrator() *Orchestrator {
	return globalOrchestrator
}

func ShutdownGlobalOrchestrator() {
	if globalOrchestrator != nil {
		globalOrchestrator.Stop()
		klog.V(6).Infof("Global orchestrator shutdown")
	}
}
