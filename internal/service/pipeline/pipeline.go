package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cloudwego/eino/compose"
	"github.com/dpo2u/lgpdkit/internal/eventbus"
	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/auditlog"
	"github.com/dpo2u/lgpdkit/internal/service/steps"
	"k8s.io/klog/v2"
)

var (
	ErrInvalidDescriptor = errors.New("invalid step descriptor")
	ErrOutputDirMissing  = errors.New("output directory missing")
	ErrStepPanic         = errors.New("step panicked")
)

// 步骤名称，依赖声明使用
const (
	StepMaturity          = "maturity"
	StepDataFlow          = "data-flow"
	StepLegalBasis        = "legal-basis"
	StepImpactAssessment  = "impact-assessment"
	StepPolicy            = "policy"
	StepProcessorContract = "processor-contract"
	StepIncidentPlan      = "incident-plan"
	StepFinalReport       = "final-report"
)

// StepDescriptor 声明式步骤定义，Needs 只能引用排在前面的步骤
type StepDescriptor struct {
	Name  string
	Label string
	Needs []string
	Step  steps.Step
}

// DefaultDescriptors 固定顺序的八个步骤
func DefaultDescriptors(d steps.Deps) []StepDescriptor {
	return []StepDescriptor{
		{Name: StepMaturity, Label: "Avaliando maturidade LGPD", Step: steps.NewMaturityStep(d)},
		{Name: StepDataFlow, Label: "Mapeando fluxo de dados", Step: steps.NewDataFlowStep(d)},
		{Name: StepLegalBasis, Label: "Definindo bases legais", Needs: []string{StepDataFlow}, Step: steps.NewLegalBasisStep(d)},
		{Name: StepImpactAssessment, Label: "Gerando DPIA", Needs: []string{StepMaturity, StepDataFlow}, Step: steps.NewImpactStep(d)},
		{Name: StepPolicy, Label: "Gerando Política de Privacidade", Needs: []string{StepDataFlow}, Step: steps.NewPolicyStep(d)},
		{Name: StepProcessorContract, Label: "Gerando contratos DPA", Needs: []string{StepDataFlow}, Step: steps.NewProcessorContractStep(d)},
		{Name: StepIncidentPlan, Label: "Criando plano de resposta a incidentes", Step: steps.NewIncidentPlanStep(d)},
		{Name: StepFinalReport, Label: "Gerando relatório final", Step: steps.NewFinalReportStep(d)},
	}
}

// Validate 名称唯一、步骤非空、依赖均已在前面声明
func Validate(descriptors []StepDescriptor) error {
	seen := make(map[string]bool, len(descriptors))
	for i, d := range descriptors {
		if d.Name == "" || d.Step == nil {
			return fmt.Errorf("%w: descriptor %d has no name or step", ErrInvalidDescriptor, i)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidDescriptor, d.Name)
		}
		for _, need := range d.Needs {
			if !seen[need] {
				return fmt.Errorf("%w: step %q needs %q which does not run before it", ErrInvalidDescriptor, d.Name, need)
			}
		}
		seen[d.Name] = true
	}
	return nil
}

// RunState 在链路中传递的运行状态
type RunState struct {
	RunID     string
	Profile   model.CompanyProfile
	OutputDir string
	Results   map[string]model.ToolResult
	Maturity  *model.MaturityResult
	DataFlows []model.DataFlowRecord

	abort error
}

// Pipeline 将步骤描述编译为 eino Chain 顺序执行
type Pipeline struct {
	descriptors []StepDescriptor
	audit       *auditlog.Logger
	bus         *eventbus.StepEventBus
}

func New(descriptors []StepDescriptor, audit *auditlog.Logger, bus *eventbus.StepEventBus) (*Pipeline, error) {
	if err := Validate(descriptors); err != nil {
		return nil, err
	}
	return &Pipeline{descriptors: descriptors, audit: audit, bus: bus}, nil
}

// Run 依次执行全部步骤
// 步骤内部失败不会中断流程；输出目录缺失、上下文取消或 panic 会中止并写入 ERRO_GERAL
func (p *Pipeline) Run(ctx context.Context, runID string, profile model.CompanyProfile, outputDir string) (*RunState, error) {
	klog.V(6).Infof("[Pipeline.Run] 开始执行: runID=%s, company=%s, dir=%s", runID, profile.Name, outputDir)

	state := &RunState{
		RunID:     runID,
		Profile:   profile,
		OutputDir: outputDir,
		Results:   make(map[string]model.ToolResult, len(p.descriptors)),
	}
	if err := ctx.Err(); err != nil {
		return state, p.generalFailure(profile, err)
	}

	chain := compose.NewChain[*RunState, *RunState]()
	for i, d := range p.descriptors {
		chain.AppendLambda(compose.InvokableLambda(func(ctx context.Context, st *RunState) (*RunState, error) {
			if err := p.runStep(ctx, st, i, d); err != nil {
				st.abort = err
				return st, err
			}
			return st, nil
		}))
	}

	runnable, err := chain.Compile(ctx)
	if err != nil {
		klog.Errorf("[Pipeline.Run] Chain 编译失败: %v", err)
		return state, p.generalFailure(profile, fmt.Errorf("failed to compile pipeline: %w", err))
	}
	if _, err := runnable.Invoke(ctx, state); err != nil {
		cause := state.abort
		if cause == nil {
			cause = err
		}
		return state, p.generalFailure(profile, cause)
	}

	summary := p.audit.Summary()
	klog.V(6).Infof("[Pipeline.Run] 执行完成: runID=%s, total=%d, failed=%d", runID, summary.Total, summary.Failed)
	return state, nil
}

// Succeeded 以审计日志中失败数为零作为整体成功
func (p *Pipeline) Succeeded() bool {
	return p.audit.Summary().Failed == 0
}

func (p *Pipeline) generalFailure(profile model.CompanyProfile, err error) error {
	klog.Errorf("[Pipeline.Run] 流程中止: %v", err)
	p.audit.Log(auditlog.StepGeneralFailure, false, map[string]string{"empresa": profile.Name}, nil, err.Error())
	return fmt.Errorf("pipeline aborted: %w", err)
}

func (p *Pipeline) runStep(ctx context.Context, st *RunState, index int, d StepDescriptor) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if info, statErr := os.Stat(st.OutputDir); statErr != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrOutputDirMissing, st.OutputDir)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrStepPanic, d.Name, r)
		}
	}()

	total := len(p.descriptors)
	klog.V(6).Infof("[Pipeline.runStep] %d/%d %s", index+1, total, d.Name)
	p.publish(ctx, eventbus.StepEvent{
		Type: eventbus.StepStarted, RunID: st.RunID, Step: d.Step.ID(), Label: d.Label, Index: index + 1, Total: total,
	})

	res := d.Step.Execute(ctx, st.Profile, st.prior(d.Needs), st.OutputDir)
	st.Results[d.Name] = res
	st.capture(d.Name, res)

	p.publish(ctx, eventbus.StepEvent{
		Type: eventbus.StepFinished, RunID: st.RunID, Step: d.Step.ID(), Label: d.Label, Index: index + 1, Total: total,
		Success: res.Success, File: res.File, Error: res.Error,
	})
	return nil
}

func (p *Pipeline) publish(ctx context.Context, event eventbus.StepEvent) {
	if err := p.bus.Publish(ctx, event); err != nil {
		klog.Warningf("[Pipeline.publish] 事件处理失败: type=%s, step=%s, err=%v", event.Type, event.Step, err)
	}
}

// capture 保存下游需要的结构化输出
func (st *RunState) capture(name string, res model.ToolResult) {
	switch name {
	case StepMaturity:
		if m, ok := res.Data.(model.MaturityResult); ok {
			st.Maturity = &m
		}
	case StepDataFlow:
		if flows, ok := res.Data.([]model.DataFlowRecord); ok {
			st.DataFlows = flows
		}
	}
}

// prior 只传递声明过的依赖
func (st *RunState) prior(needs []string) steps.Prior {
	var prior steps.Prior
	for _, need := range needs {
		switch need {
		case StepMaturity:
			prior.Maturity = st.Maturity
		case StepDataFlow:
			prior.DataFlows = st.DataFlows
		}
	}
	return prior
}
