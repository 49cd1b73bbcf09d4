package model

import "time"

// DataFlowRecord 单个业务活动的数据流记录
// Data 与 Access 始终非空
type DataFlowRecord struct {
	Activity    string   `json:"atividade"`
	Data        []string `json:"dados"`
	Purpose     string   `json:"finalidade"`
	LegalBasis  string   `json:"baseLegal"`
	Retention   string   `json:"retencao"`
	Access      []string `json:"acesso"`
	Destination string   `json:"destino"`
	Processor   string   `json:"operador,omitempty"`
}

// MaturityLevel 成熟度等级
type MaturityLevel string

const (
	MaturityInitial      MaturityLevel = "Inicial"
	MaturityBasic        MaturityLevel = "Básico"
	MaturityIntermediate MaturityLevel = "Intermediário"
	MaturityAdvanced     MaturityLevel = "Avançado"
)

// LevelForScore 按 40/60/80 分界映射等级
func LevelForScore(score int) MaturityLevel {
	switch {
	case score < 40:
		return MaturityInitial
	case score < 60:
		return MaturityBasic
	case score < 80:
		return MaturityIntermediate
	default:
		return MaturityAdvanced
	}
}

// MaturityAnswer 单个问题的评分
type MaturityAnswer struct {
	Question      string `json:"pergunta"`
	Score         int    `json:"resposta"`
	Justification string `json:"justificativa"`
}

type MaturityResult struct {
	Score      int              `json:"score"`
	Level      MaturityLevel    `json:"nivel"`
	Gaps       []string         `json:"gaps"`
	ActionPlan []string         `json:"planoAcao"`
	Answers    []MaturityAnswer `json:"respostas,omitempty"`
}

type LegalBasisEntry struct {
	Activity      string `json:"atividade"`
	Purpose       string `json:"finalidade"`
	LegalBasis    string `json:"baseLegal"`
	Justification string `json:"justificativa"`
}

type Risk struct {
	Type        string `json:"tipo"`
	Level       string `json:"nivel"`
	Probability string `json:"probabilidade"`
}

// ImpactAssessment DPIA 结果
type ImpactAssessment struct {
	Description   string   `json:"descricao"`
	Risks         []Risk   `json:"riscos"`
	Mitigations   []string `json:"mitigacoes"`
	ResidualScore float64  `json:"scoreResidual"`
}

type FinalReport struct {
	Company     string            `json:"empresa"`
	GeneratedAt time.Time         `json:"dataGeracao"`
	Documents   []string          `json:"documentos"`
	Summary     map[string]string `json:"resumo"`
	NextSteps   []string          `json:"proximosPassos"`
}

// ToolResult 所有步骤统一的返回结构
type ToolResult struct {
	Success bool   `json:"success"`
	File    string `json:"file,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuditLogEntry 审计日志条目
type AuditLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"etapa"`
	Success   bool      `json:"sucesso"`
	Input     any       `json:"entrada"`
	Output    any       `json:"saida,omitempty"`
	Error     string    `json:"erro,omitempty"`
}

// AuditSummary 审计汇总
type AuditSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"sucessos"`
	Failed    int `json:"erros"`
}

// CachedRun 运行缓存条目
type CachedRun struct {
	Profile       CompanyProfile `json:"empresa"`
	OutputDir     string         `json:"outputDir"`
	LastExecution time.Time      `json:"lastExecution"`
	Completed     bool           `json:"completed"`
}
