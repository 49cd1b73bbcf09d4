package steps

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/utils"
)

// MaturityQuestions 成熟度评估的十个固定问题
var MaturityQuestions = []string{
	"A empresa possui política de privacidade publicada e atualizada?",
	"Existe um encarregado (DPO) nomeado e treinado?",
	"A empresa realiza avaliação de impacto (DPIA) para novos projetos?",
	"Existe controle formal de solicitações de titulares de dados?",
	"A empresa possui contratos adequados com fornecedores que processam dados?",
	"Existe inventário atualizado de tratamento de dados pessoais?",
	"A empresa possui plano de resposta a incidentes de segurança?",
	"São realizados treinamentos regulares sobre LGPD para colaboradores?",
	"Existe processo formal para coleta e gestão de consentimentos?",
	"A empresa possui medidas técnicas adequadas de segurança?",
}

// 差距问题关键字到行动项，按顺序匹配
var actionKeywords = []struct {
	keyword string
	action  string
}{
	{"política de privacidade", "Criar/atualizar política de privacidade conforme LGPD"},
	{"encarregado", "Nomear e treinar encarregado de dados (DPO)"},
	{"DPIA", "Implementar processo de avaliação de impacto (DPIA)"},
	{"contratos", "Revisar e adequar contratos com fornecedores"},
	{"inventário", "Criar inventário completo de tratamento de dados"},
	{"incidentes", "Desenvolver plano de resposta a incidentes"},
	{"treinamento", "Implementar programa de treinamentos em LGPD"},
	{"segurança", "Implementar medidas técnicas de segurança"},
}

const (
	gapThreshold          = 7
	fallbackItemScore     = 5
	fallbackJustification = "Avaliação baseada no perfil da empresa"
)

type MaturityStep struct {
	deps Deps
}

func NewMaturityStep(d Deps) *MaturityStep {
	return &MaturityStep{deps: d}
}

func (s *MaturityStep) ID() string { return IDMaturity }

func (s *MaturityStep) Execute(ctx context.Context, profile model.CompanyProfile, _ Prior, outputDir string) model.ToolResult {
	answers := s.answer(ctx, profile)
	result := ComputeMaturity(answers)

	if _, err := writeJSON(outputDir, "maturidade.json", result); err != nil {
		return s.deps.fail(IDMaturity, profile, err)
	}
	path, err := writeText(outputDir, "maturidade.md", renderMaturity(profile, result, s.deps.now()))
	if err != nil {
		return s.deps.fail(IDMaturity, profile, err)
	}
	return s.deps.succeed(IDMaturity, profile, result, path, result)
}

// 模型回答允许小数分值
type rawAnswer struct {
	Question      string  `json:"pergunta"`
	Score         float64 `json:"resposta"`
	Justification string  `json:"justificativa"`
}

// answer 按下标把模型回答对齐到固定问题，缺失项使用兜底分值
func (s *MaturityStep) answer(ctx context.Context, profile model.CompanyProfile) []model.MaturityAnswer {
	var raw []rawAnswer
	if text, ok := s.deps.generate(ctx, IDMaturity, maturityPrompt(profile)); ok {
		raw = utils.ExtractJSONArray[[]rawAnswer](text, nil)
	}

	answers := make([]model.MaturityAnswer, len(MaturityQuestions))
	for i, q := range MaturityQuestions {
		answers[i] = model.MaturityAnswer{Question: q, Score: fallbackItemScore, Justification: fallbackJustification}
		if i < len(raw) {
			answers[i].Score = clampScore(raw[i].Score)
			if j := strings.TrimSpace(raw[i].Justification); j != "" {
				answers[i].Justification = j
			}
		}
	}
	return answers
}

func clampScore(v float64) int {
	n := int(math.Round(v))
	return max(0, min(10, n))
}

// ComputeMaturity 计算总分（各项 0-10 的均值乘 10）、等级、差距与行动计划
func ComputeMaturity(answers []model.MaturityAnswer) model.MaturityResult {
	result := model.MaturityResult{Gaps: []string{}, ActionPlan: []string{}, Answers: answers}
	if len(answers) == 0 {
		result.Level = model.LevelForScore(0)
		return result
	}

	total := 0
	for _, a := range answers {
		total += a.Score
		if a.Score < gapThreshold {
			result.Gaps = append(result.Gaps, a.Question)
		}
	}
	result.Score = int(math.Round(float64(total) / float64(len(answers)) * 10))
	result.Level = model.LevelForScore(result.Score)
	result.ActionPlan = ActionPlan(result.Gaps)
	return result
}

// ActionPlan 根据差距问题中的关键字生成行动项
func ActionPlan(gaps []string) []string {
	actions := []string{}
	for _, k := range actionKeywords {
		for _, g := range gaps {
			if strings.Contains(g, k.keyword) {
				actions = append(actions, k.action)
				break
			}
		}
	}
	return actions
}

func maturityPrompt(profile model.CompanyProfile) string {
	var questions strings.Builder
	for i, q := range MaturityQuestions {
		fmt.Fprintf(&questions, "%d. %s\n", i+1, q)
	}
	return fmt.Sprintf(`Você é um especialista em LGPD. Analise a empresa e responda as perguntas abaixo com uma nota de 0 a 10 e justificativa.

%s

Para cada pergunta, forneça:
1. Nota de 0 a 10 (baseada no perfil da empresa)
2. Justificativa técnica

PERGUNTAS:
%s
Responda no formato JSON, na mesma ordem das perguntas:
[
  {
    "pergunta": "texto da pergunta",
    "resposta": numero_0_a_10,
    "justificativa": "explicacao_técnica"
  }
]`, companyBlock(profile), questions.String())
}
