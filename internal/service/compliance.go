package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dpo2u/lgpdkit/config"
	"github.com/dpo2u/lgpdkit/internal/eventbus"
	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/auditlog"
	"github.com/dpo2u/lgpdkit/internal/pkg/llm"
	"github.com/dpo2u/lgpdkit/internal/pkg/runcache"
	"github.com/dpo2u/lgpdkit/internal/repository"
	"github.com/dpo2u/lgpdkit/internal/service/orchestrator"
	"github.com/dpo2u/lgpdkit/internal/service/packager"
	"github.com/dpo2u/lgpdkit/internal/service/pipeline"
	"github.com/dpo2u/lgpdkit/internal/service/statemachine"
	"github.com/dpo2u/lgpdkit/internal/service/steps"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

const profileFileName = "empresa.json"

var (
	ErrNoRunStore       = errors.New("run store not configured")
	ErrNoOrchestrator   = errors.New("orchestrator not configured")
	ErrRunNotCancelable = errors.New("run is not active")
	ErrRunStateChanged  = errors.New("run status changed before start")
	ErrInvalidProfile   = errors.New("invalid company profile")
)

// RunOutcome 一次完整流程的结果
type RunOutcome struct {
	RunID       string                      `json:"run_id,omitempty"`
	Company     string                      `json:"company"`
	OutputDir   string                      `json:"output_dir"`
	Summary     model.AuditSummary          `json:"summary"`
	Maturity    *model.MaturityResult       `json:"maturity,omitempty"`
	Results     map[string]model.ToolResult `json:"-"`
	AuditLog    string                      `json:"audit_log,omitempty"`
	PackagePath string                      `json:"package_path,omitempty"`
	Files       []string                    `json:"files"`
	Completed   bool                        `json:"completed"`
}

// SubmitResult 提交结果：命中已完成的缓存时 Cached 非空，否则为新建运行
type SubmitResult struct {
	Run    *model.RunRecord `json:"run,omitempty"`
	Cached *model.CachedRun `json:"cached,omitempty"`
}

// CachedRunView 缓存条目及其目录是否仍可复用
type CachedRunView struct {
	model.CachedRun
	DirValid bool `json:"dir_valid"`
}

// ComplianceService 合规流程的入口，CLI、HTTP 与 MCP 共用
type ComplianceService struct {
	cfg          *config.Config
	client       llm.Client
	cache        *runcache.Cache
	runRepo      repository.RunRepository
	bus          *eventbus.StepEventBus
	stateMachine *statemachine.RunStateMachine
	orchestrator *orchestrator.Orchestrator
	now          func() time.Time
}

// NewComplianceService runRepo 与 bus 可为空（CLI 单次执行时不记录历史）
func NewComplianceService(cfg *config.Config, client llm.Client, cache *runcache.Cache, runRepo repository.RunRepository, bus *eventbus.StepEventBus) *ComplianceService {
	return &ComplianceService{
		cfg:          cfg,
		client:       client,
		cache:        cache,
		runRepo:      runRepo,
		bus:          bus,
		stateMachine: statemachine.NewRunStateMachine(),
		now:          time.Now,
	}
}

// SetOrchestrator 设置任务编排器
// 用于解决循环依赖问题
func (s *ComplianceService) SetOrchestrator(o *orchestrator.Orchestrator) {
	s.orchestrator = o
}

// SetClock 替换时间源
func (s *ComplianceService) SetClock(now func() time.Time) {
	s.now = now
}

// WithClient 返回使用另一个后端的副本，缓存与存储共享
func (s *ComplianceService) WithClient(client llm.Client) *ComplianceService {
	cp := *s
	cp.client = client
	return &cp
}

func (s *ComplianceService) Client() llm.Client { return s.client }

func (s *ComplianceService) Cache() *runcache.Cache { return s.cache }

// ResolveOutputDir 决定本次运行的输出目录
// reuse 为 true 且缓存中同一公司的目录仍然有效时复用该目录，否则生成新目录
func (s *ComplianceService) ResolveOutputDir(profile model.CompanyProfile, reuse bool) (string, bool) {
	if reuse {
		if cached, ok := s.cache.FindSimilarRun(profile.Name, profile.TaxID); ok && runcache.ValidateOutputDir(cached.OutputDir) {
			klog.V(6).Infof("[ComplianceService.ResolveOutputDir] 复用目录: %s", cached.OutputDir)
			return cached.OutputDir, true
		}
	}
	return s.cache.GenerateOutputDir(profile, ""), false
}

// Prepare 创建输出目录、写入 empresa.json，并以未完成状态写入缓存
func (s *ComplianceService) Prepare(profile model.CompanyProfile, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode company profile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, profileFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", profileFileName, err)
	}
	s.cache.SaveRun(profile, outputDir, false)
	return nil
}

// RunPipeline 执行八个步骤，保存审计日志并打包
// 全部步骤成功时把缓存条目标记为完成；流程中止时仍会保存审计日志
func (s *ComplianceService) RunPipeline(ctx context.Context, runID string, profile model.CompanyProfile, outputDir string) (*RunOutcome, error) {
	audit := auditlog.New(outputDir)
	deps := steps.Deps{LLM: s.client, Audit: audit, Now: s.now}

	p, err := pipeline.New(pipeline.DefaultDescriptors(deps), audit, s.bus)
	if err != nil {
		return nil, err
	}

	state, runErr := p.Run(ctx, runID, profile, outputDir)

	outcome := &RunOutcome{
		RunID:     runID,
		Company:   profile.Name,
		OutputDir: outputDir,
		Results:   state.Results,
		Maturity:  state.Maturity,
	}

	logPath, saveErr := audit.Save()
	if saveErr != nil {
		klog.Errorf("[ComplianceService.RunPipeline] 保存审计日志失败: %v", saveErr)
	}
	outcome.AuditLog = logPath
	outcome.Summary = audit.Summary()

	if runErr != nil {
		outcome.Files = runcache.ListGeneratedFiles(outputDir)
		return outcome, runErr
	}

	if outcome.Summary.Failed == 0 {
		s.cache.MarkCompleted(profile)
		outcome.Completed = true
	} else {
		klog.Warningf("[ComplianceService.RunPipeline] %d 个步骤失败: company=%s", outcome.Summary.Failed, profile.Name)
	}

	pkg, n, pkgErr := packager.Package(outputDir)
	if pkgErr != nil {
		klog.Warningf("[ComplianceService.RunPipeline] 打包失败: %v", pkgErr)
	} else {
		klog.V(6).Infof("[ComplianceService.RunPipeline] 打包完成: %s (%d 个文件)", pkg, n)
		outcome.PackagePath = pkg
	}
	outcome.Files = runcache.ListGeneratedFiles(outputDir)
	return outcome, nil
}

// AssessMaturity 只执行成熟度评估
func (s *ComplianceService) AssessMaturity(ctx context.Context, profile model.CompanyProfile, outputDir string) (model.ToolResult, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return model.ToolResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	audit := auditlog.New(outputDir)
	step := steps.NewMaturityStep(steps.Deps{LLM: s.client, Audit: audit, Now: s.now})
	res := step.Execute(ctx, profile, steps.Prior{}, outputDir)
	if _, err := audit.Save(); err != nil {
		klog.Warningf("[ComplianceService.AssessMaturity] 保存审计日志失败: %v", err)
	}
	return res, nil
}

// LookupCache 按名称或 CNPJ 查找缓存条目
func (s *ComplianceService) LookupCache(name, taxID string) (*CachedRunView, bool) {
	cached, ok := s.cache.FindSimilarRun(name, taxID)
	if !ok {
		return nil, false
	}
	return &CachedRunView{CachedRun: *cached, DirValid: runcache.ValidateOutputDir(cached.OutputDir)}, true
}

// CachedRuns 全部缓存条目
func (s *ComplianceService) CachedRuns() []CachedRunView {
	runs := s.cache.FindExistingRuns()
	views := make([]CachedRunView, 0, len(runs))
	for _, r := range runs {
		views = append(views, CachedRunView{CachedRun: r, DirValid: runcache.ValidateOutputDir(r.OutputDir)})
	}
	return views
}

// Submit 校验公司画像并提交异步运行
// force 为 false 且缓存中已有完成的运行时直接返回缓存条目
func (s *ComplianceService) Submit(profile model.CompanyProfile, force bool) (*SubmitResult, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if s.runRepo == nil {
		return nil, ErrNoRunStore
	}

	if !force {
		if cached, ok := s.cache.FindSimilarRun(profile.Name, profile.TaxID); ok && cached.Completed {
			klog.V(6).Infof("[ComplianceService.Submit] 已存在完成的运行: company=%s, dir=%s", profile.Name, cached.OutputDir)
			return &SubmitResult{Cached: cached}, nil
		}
	}

	snapshot, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode company profile: %w", err)
	}
	run := &model.RunRecord{
		ID:          uuid.NewString(),
		CompanyName: profile.Name,
		TaxID:       profile.TaxID,
		Profile:     string(snapshot),
		Status:      string(statemachine.RunStatusPending),
	}
	if err := s.runRepo.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if err := s.Enqueue(run); err != nil {
		return nil, err
	}
	return &SubmitResult{Run: run}, nil
}

// Enqueue 状态迁移 pending -> queued 后提交到编排器
// 入队失败时运行标记为 failed
func (s *ComplianceService) Enqueue(run *model.RunRecord) error {
	if s.orchestrator == nil {
		return ErrNoOrchestrator
	}
	oldStatus := statemachine.RunStatus(run.Status)
	if err := s.stateMachine.Transition(oldStatus, statemachine.RunStatusQueued, run.ID); err != nil {
		return fmt.Errorf("运行状态迁移失败: %w", err)
	}
	run.Status = string(statemachine.RunStatusQueued)
	if err := s.runRepo.Save(run); err != nil {
		return fmt.Errorf("更新运行状态失败: %w", err)
	}

	job := orchestrator.NewRunJob(run.ID, s.cfg.Queue.RunTimeout)
	if err := s.orchestrator.EnqueueJob(job); err != nil {
		s.finish(run, statemachine.RunStatusFailed, fmt.Sprintf("入队失败: %v", err))
		return fmt.Errorf("运行入队失败: %w", err)
	}
	return nil
}

// ExecuteRun 由编排器调用，执行一次已入队的运行
func (s *ComplianceService) ExecuteRun(ctx context.Context, runID string) error {
	klog.V(6).Infof("[ComplianceService.ExecuteRun] 开始执行: runID=%s", runID)
	if s.runRepo == nil {
		return ErrNoRunStore
	}

	run, err := s.runRepo.Get(runID)
	if err != nil {
		return fmt.Errorf("获取运行失败: %w", err)
	}

	if err := s.stateMachine.Transition(statemachine.RunStatus(run.Status), statemachine.RunStatusRunning, runID); err != nil {
		return fmt.Errorf("运行状态迁移失败: %w", err)
	}
	// 条件更新，避免覆盖并发写入的 canceled
	started := s.now()
	ok, err := s.runRepo.MarkRunning(runID, run.Status, started)
	if err != nil {
		return fmt.Errorf("更新运行状态失败: %w", err)
	}
	if !ok {
		klog.Warningf("[ComplianceService.ExecuteRun] 运行状态已变更，跳过执行: runID=%s", runID)
		return fmt.Errorf("%w: %s", ErrRunStateChanged, runID)
	}
	run.Status = string(statemachine.RunStatusRunning)
	run.StartedAt = &started
	run.ErrorMsg = ""

	var profile model.CompanyProfile
	if err := json.Unmarshal([]byte(run.Profile), &profile); err != nil {
		s.finish(run, statemachine.RunStatusFailed, fmt.Sprintf("公司画像解析失败: %v", err))
		return fmt.Errorf("failed to decode company profile: %w", err)
	}

	outputDir, _ := s.ResolveOutputDir(profile, true)
	run.OutputDir = outputDir
	if err := s.Prepare(profile, outputDir); err != nil {
		s.finish(run, statemachine.RunStatusFailed, err.Error())
		return err
	}

	outcome, runErr := s.RunPipeline(ctx, runID, profile, outputDir)
	if outcome != nil {
		run.Succeeded = outcome.Summary.Succeeded
		run.Failed = outcome.Summary.Failed
		run.PackagePath = outcome.PackagePath
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		s.finish(run, statemachine.RunStatusCanceled, runErr.Error())
		return runErr
	case runErr != nil:
		s.finish(run, statemachine.RunStatusFailed, runErr.Error())
		return runErr
	case outcome.Summary.Failed > 0:
		s.finish(run, statemachine.RunStatusFailed, fmt.Sprintf("%d etapas falharam", outcome.Summary.Failed))
		return nil
	default:
		s.finish(run, statemachine.RunStatusSucceeded, "")
		return nil
	}
}

// finish 迁移到终止态并保存，失败只记录日志
func (s *ComplianceService) finish(run *model.RunRecord, to statemachine.RunStatus, errMsg string) {
	if err := s.stateMachine.Transition(statemachine.RunStatus(run.Status), to, run.ID); err != nil {
		klog.Errorf("[ComplianceService.finish] 运行状态迁移失败: runID=%s, err=%v", run.ID, err)
		return
	}
	finished := s.now()
	run.Status = string(to)
	run.ErrorMsg = errMsg
	run.FinishedAt = &finished
	if err := s.runRepo.Save(run); err != nil {
		klog.Errorf("[ComplianceService.finish] 保存运行失败: runID=%s, err=%v", run.ID, err)
	}
}

// CancelRun 取消排队中或执行中的运行
func (s *ComplianceService) CancelRun(runID string) error {
	if s.runRepo == nil {
		return ErrNoRunStore
	}
	run, err := s.runRepo.Get(runID)
	if err != nil {
		return err
	}
	if !statemachine.IsActive(statemachine.RunStatus(run.Status)) {
		return fmt.Errorf("%w: %s", ErrRunNotCancelable, run.Status)
	}
	if s.orchestrator == nil {
		return ErrNoOrchestrator
	}

	if s.orchestrator.CancelRun(runID) {
		// 执行中的运行由 ExecuteRun 写入终止态
		return nil
	}
	s.finish(run, statemachine.RunStatusCanceled, "cancelado antes da execução")
	return nil
}

func (s *ComplianceService) GetRun(id string) (*model.RunRecord, error) {
	if s.runRepo == nil {
		return nil, ErrNoRunStore
	}
	return s.runRepo.Get(id)
}

func (s *ComplianceService) ListRuns(limit int) ([]model.RunRecord, error) {
	if s.runRepo == nil {
		return nil, ErrNoRunStore
	}
	return s.runRepo.List(limit)
}

// RunFiles 运行输出目录中的文件
func (s *ComplianceService) RunFiles(run *model.RunRecord) []string {
	if run.OutputDir == "" {
		return []string{}
	}
	return runcache.ListGeneratedFiles(run.OutputDir)
}

// QueueStatus 编排器队列状态，未配置编排器时返回 nil
func (s *ComplianceService) QueueStatus() *orchestrator.QueueStatus {
	if s.orchestrator == nil {
		return nil
	}
	return s.orchestrator.GetQueueStatus()
}

// CleanupStuckRuns 清理启动前卡住的运行
func (s *ComplianceService) CleanupStuckRuns(timeout time.Duration) (int64, error) {
	if s.runRepo == nil {
		return 0, ErrNoRunStore
	}
	return s.runRepo.CleanupStuckRuns(timeout)
}
