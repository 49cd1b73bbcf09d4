package steps

import (
	"context"
	"fmt"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/utils"
)

// 未评估成熟度时提示词中使用的分值
const defaultMaturityScore = 50

// ImpactStep 生成数据保护影响评估（DPIA）
type ImpactStep struct {
	deps Deps
}

func NewImpactStep(d Deps) *ImpactStep {
	return &ImpactStep{deps: d}
}

func (s *ImpactStep) ID() string { return IDImpact }

func (s *ImpactStep) Execute(ctx context.Context, profile model.CompanyProfile, prior Prior, outputDir string) model.ToolResult {
	input := map[string]any{"maturity": prior.Maturity, "dataFlow": prior.DataFlows}

	var assessment *model.ImpactAssessment
	if text, ok := s.deps.generate(ctx, IDImpact, impactPrompt(profile, prior.Maturity)); ok {
		assessment = utils.ExtractJSONObject[*model.ImpactAssessment](text, nil)
	}
	if assessment == nil {
		assessment = FallbackAssessment(profile)
	}
	if assessment.Description == "" {
		assessment.Description = FallbackAssessment(profile).Description
	}

	if _, err := writeJSON(outputDir, "dpia.json", assessment); err != nil {
		return s.deps.fail(IDImpact, input, err)
	}
	path, err := writeText(outputDir, "dpia.md", renderImpact(profile, assessment, s.deps.now()))
	if err != nil {
		return s.deps.fail(IDImpact, input, err)
	}
	return s.deps.succeed(IDImpact, input, assessment, path, assessment)
}

// FallbackAssessment 模型输出不可用时的固定风险集合
func FallbackAssessment(profile model.CompanyProfile) *model.ImpactAssessment {
	return &model.ImpactAssessment{
		Description: fmt.Sprintf("Tratamento de dados pessoais pela %s no setor %s", profile.Name, profile.Sector),
		Risks: []model.Risk{
			{Type: "Vazamento de dados", Level: "Médio", Probability: "Baixa com medidas adequadas"},
			{Type: "Acesso não autorizado", Level: "Alto", Probability: "Média sem controles"},
		},
		Mitigations: []string{
			"Implementar controles de acesso",
			"Criptografia de dados sensíveis",
			"Treinamento de equipe",
			"Monitoramento contínuo",
		},
		ResidualScore: 4,
	}
}

func impactPrompt(profile model.CompanyProfile, maturity *model.MaturityResult) string {
	score := defaultMaturityScore
	if maturity != nil {
		score = maturity.Score
	}
	return fmt.Sprintf(`Gere uma DPIA (Avaliação de Impacto à Proteção de Dados) para:

EMPRESA: %s
SETOR: %s
MATURIDADE: %d/100

Inclua:
1. Descrição do tratamento
2. Riscos identificados (Alto/Médio/Baixo)
3. Medidas de mitigação
4. Score de risco residual

Formato JSON:
{
  "descricao": "texto",
  "riscos": [{"tipo": "texto", "nivel": "Alto|Médio|Baixo", "probabilidade": "texto"}],
  "mitigacoes": ["medida1", "medida2"],
  "scoreResidual": numero_1_a_10
}`, profile.Name, profile.Sector, score)
}
