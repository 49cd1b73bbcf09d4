package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dpo2u/lgpdkit/internal/eventbus"
	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/auditlog"
	"github.com/dpo2u/lgpdkit/internal/pkg/llm/llmtest"
	"github.com/dpo2u/lgpdkit/internal/service/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acmeProfile() model.CompanyProfile {
	return model.CompanyProfile{
		Name:           "Acme Ltda",
		TaxID:          "11.222.333/0001-81",
		Sector:         "Tecnologia/Software",
		Employees:      30,
		CollectsData:   true,
		UsesProcessors: true,
		Contact:        model.Contact{Responsible: "Maria Souza", Email: "dpo@acme.com"},
	}
}

// stubStep 可控结果的测试步骤
type stubStep struct {
	id     string
	result model.ToolResult
	panic  bool
	calls  int
	prior  steps.Prior
}

func (s *stubStep) ID() string { return s.id }

func (s *stubStep) Execute(_ context.Context, _ model.CompanyProfile, prior steps.Prior, _ string) model.ToolResult {
	s.calls++
	s.prior = prior
	if s.panic {
		panic("boom")
	}
	return s.result
}

func TestValidate(t *testing.T) {
	a := &stubStep{id: "A"}
	b := &stubStep{id: "B"}

	assert.NoError(t, Validate([]StepDescriptor{{Name: "a", Step: a}, {Name: "b", Needs: []string{"a"}, Step: b}}))

	err := Validate([]StepDescriptor{{Name: "a", Needs: []string{"b"}, Step: a}, {Name: "b", Step: b}})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	err = Validate([]StepDescriptor{{Name: "a", Step: a}, {Name: "a", Step: b}})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	err = Validate([]StepDescriptor{{Name: "a"}})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	err = Validate([]StepDescriptor{{Name: "a", Needs: []string{"a"}, Step: a}})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestDefaultDescriptorsOrder(t *testing.T) {
	ds := DefaultDescriptors(steps.Deps{})
	require.NoError(t, Validate(ds))
	names := make([]string, len(ds))
	ids := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
		ids[i] = d.Step.ID()
	}
	assert.Equal(t, []string{
		StepMaturity, StepDataFlow, StepLegalBasis, StepImpactAssessment,
		StepPolicy, StepProcessorContract, StepIncidentPlan, StepFinalReport,
	}, names)
	assert.Equal(t, []string{
		steps.IDMaturity, steps.IDDataFlow, steps.IDLegalBasis, steps.IDImpact,
		steps.IDPolicy, steps.IDProcessorDPA, steps.IDIncidentPlan, steps.IDFinalReport,
	}, ids)
}

func TestRunAcmeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	client := llmtest.New(llmtest.WellFormed())
	audit := auditlog.New(dir)
	bus := eventbus.NewStepEventBus()

	var mu sync.Mutex
	var finished []eventbus.StepEvent
	bus.Subscribe(eventbus.StepFinished, func(_ context.Context, e eventbus.StepEvent) error {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, e)
		return nil
	})

	deps := steps.Deps{LLM: client, Audit: audit, Now: func() time.Time { return time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC) }}
	p, err := New(DefaultDescriptors(deps), audit, bus)
	require.NoError(t, err)

	state, err := p.Run(context.Background(), "run-1", acmeProfile(), dir)
	require.NoError(t, err)

	require.NotNil(t, state.Maturity)
	assert.GreaterOrEqual(t, state.Maturity.Score, 0)
	assert.LessOrEqual(t, state.Maturity.Score, 100)
	assert.Equal(t, model.LevelForScore(state.Maturity.Score), state.Maturity.Level)

	require.NotEmpty(t, state.DataFlows)
	legal := state.Results[StepLegalBasis].Data.([]model.LegalBasisEntry)
	assert.Len(t, legal, len(state.DataFlows))

	summary := audit.Summary()
	assert.Equal(t, 8, summary.Total)
	assert.Equal(t, 0, summary.Failed)
	assert.True(t, p.Succeeded())

	assert.Equal(t, 1, client.CallCount("MATURIDADE: 69/100"))
	require.Len(t, finished, 8)
	assert.Equal(t, steps.IDFinalReport, finished[7].Step)
	assert.Equal(t, 8, finished[7].Index)

	report := state.Results[StepFinalReport].Data.(*model.FinalReport)
	assert.Contains(t, report.Documents, "inventario.csv")
	assert.Contains(t, report.Documents, "plano-incidente.txt")
	assert.FileExists(t, filepath.Join(dir, "relatorio-dpo.md"))
}

func TestRunThreadsOnlyDeclaredNeeds(t *testing.T) {
	dir := t.TempDir()
	maturity := &stubStep{id: "M", result: model.ToolResult{Success: true, Data: model.MaturityResult{Score: 42}}}
	flows := &stubStep{id: "F", result: model.ToolResult{Success: true, Data: []model.DataFlowRecord{{Activity: "x"}}}}
	needsFlows := &stubStep{id: "L", result: model.ToolResult{Success: true}}
	needsBoth := &stubStep{id: "D", result: model.ToolResult{Success: true}}

	p, err := New([]StepDescriptor{
		{Name: StepMaturity, Step: maturity},
		{Name: StepDataFlow, Step: flows},
		{Name: StepLegalBasis, Needs: []string{StepDataFlow}, Step: needsFlows},
		{Name: StepImpactAssessment, Needs: []string{StepMaturity, StepDataFlow}, Step: needsBoth},
	}, auditlog.New(dir), nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "r", acmeProfile(), dir)
	require.NoError(t, err)
	assert.Nil(t, needsFlows.prior.Maturity)
	assert.Len(t, needsFlows.prior.DataFlows, 1)
	require.NotNil(t, needsBoth.prior.Maturity)
	assert.Equal(t, 42, needsBoth.prior.Maturity.Score)
}

func TestRunContinuesAfterStepFailure(t *testing.T) {
	dir := t.TempDir()
	audit := auditlog.New(dir)
	failing := &stubStep{id: "F", result: model.ToolResult{Success: false, Error: "disk"}}
	next := &stubStep{id: "N", result: model.ToolResult{Success: true}}
	audit.Log("F", false, nil, nil, "disk")

	p, err := New([]StepDescriptor{{Name: "f", Step: failing}, {Name: "n", Step: next}}, audit, nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), "r", acmeProfile(), dir)

	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.False(t, p.Succeeded())
}

func TestRunAbortsOnMissingOutputDir(t *testing.T) {
	dir := t.TempDir()
	audit := auditlog.New(dir)
	first := &stubStep{id: "A", result: model.ToolResult{Success: true}}
	p, err := New([]StepDescriptor{{Name: "a", Step: first}}, audit, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "r", acmeProfile(), filepath.Join(dir, "gone"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputDirMissing)
	assert.Equal(t, 0, first.calls)

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, auditlog.StepGeneralFailure, entries[0].Step)
	assert.False(t, entries[0].Success)
}

func TestRunRecoversPanicAndStops(t *testing.T) {
	dir := t.TempDir()
	audit := auditlog.New(dir)
	bad := &stubStep{id: "B", panic: true}
	after := &stubStep{id: "C", result: model.ToolResult{Success: true}}
	p, err := New([]StepDescriptor{{Name: "b", Step: bad}, {Name: "c", Step: after}}, audit, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "r", acmeProfile(), dir)
	assert.ErrorIs(t, err, ErrStepPanic)
	assert.Equal(t, 0, after.calls)
	assert.Equal(t, auditlog.StepGeneralFailure, audit.Entries()[0].Step)
	assert.False(t, p.Succeeded())
}

func TestRunCanceledContext(t *testing.T) {
	dir := t.TempDir()
	step := &stubStep{id: "A", result: model.ToolResult{Success: true}}
	p, err := New([]StepDescriptor{{Name: "a", Step: step}}, auditlog.New(dir), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, "r", acmeProfile(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, step.calls)
}
