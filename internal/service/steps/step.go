package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/llm"
	"k8s.io/klog/v2"
)

// 审计日志中的步骤标识
const (
	IDMaturity        = "MATURITY_CHECK"
	IDDataFlow        = "DATA_FLOW_MAPPING"
	IDLegalBasis      = "LEGAL_BASIS_ASSIGNMENT"
	IDImpact          = "DPIA_GENERATION"
	IDPolicy          = "PRIVACY_POLICY_GENERATION"
	IDProcessorDPA    = "DPA_CONTRACT_GENERATION"
	IDIncidentPlan    = "BREACH_RESPONSE_PLAN"
	IDFinalReport     = "DPO_REPORT_GENERATION"
	dateLayoutBR      = "02/01/2006"
	defaultLegalBasis = "V - execução de contrato"
)

// Auditor 审计日志写入接口
type Auditor interface {
	Log(step string, success bool, input, output any, errMsg string)
}

// Prior 前序步骤输出，按依赖传递给后续步骤
type Prior struct {
	Maturity  *model.MaturityResult
	DataFlows []model.DataFlowRecord
}

// Step 单个文档生成步骤
// 生成或解析失败使用兜底数据，只有产物写入失败才返回 Success=false
type Step interface {
	ID() string
	Execute(ctx context.Context, profile model.CompanyProfile, prior Prior, outputDir string) model.ToolResult
}

// Deps 步骤共享依赖
type Deps struct {
	LLM   llm.Client
	Audit Auditor
	Now   func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// fail 记录失败审计并构造失败结果
func (d Deps) fail(step string, input any, err error) model.ToolResult {
	klog.Errorf("[steps.%s] 执行失败: %v", step, err)
	d.Audit.Log(step, false, input, nil, err.Error())
	return model.ToolResult{Success: false, Error: err.Error()}
}

// succeed 记录成功审计并构造成功结果
func (d Deps) succeed(step string, input, output any, file string, data any) model.ToolResult {
	klog.V(6).Infof("[steps.%s] 完成: file=%s", step, file)
	d.Audit.Log(step, true, input, output, "")
	return model.ToolResult{Success: true, File: file, Data: data}
}

// generate 调用后端；错误只记录警告，由调用方使用兜底数据
func (d Deps) generate(ctx context.Context, step, prompt string) (string, bool) {
	text, err := d.LLM.GenerateText(ctx, prompt)
	if err != nil {
		klog.Warningf("[steps.%s] 生成失败，使用兜底数据: %v", step, err)
		return "", false
	}
	return text, true
}

func writeText(outputDir, name, content string) (string, error) {
	path := filepath.Join(outputDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

func writeJSON(outputDir, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return writeText(outputDir, name, string(data))
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}

// companyBlock 提示词中的公司信息段
func companyBlock(p model.CompanyProfile) string {
	return fmt.Sprintf(`EMPRESA:
- Nome: %s
- Setor: %s
- Colaboradores: %d
- Coleta dados: %s
- Possui operadores: %s`, p.Name, p.Sector, p.Employees, yesNo(p.CollectsData), yesNo(p.UsesProcessors))
}
