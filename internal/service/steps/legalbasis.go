package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/dpo2u/lgpdkit/internal/model"
)

// Art. 7º 罗马数字对应的说明，未列出的使用通用说明
var legalBasisJustifications = map[string]string{
	"I":  "Consentimento livre, informado e inequívoco do titular",
	"II": "Cumprimento de obrigação legal ou regulatória",
	"V":  "Execução de contrato ou procedimentos preliminares",
	"IX": "Legítimo interesse do controlador ou terceiros",
	"VI": "Exercício regular de direitos em processo judicial",
}

const genericJustification = "Base legal definida conforme análise jurídica"

// LegalBasisStep 逐个活动询问法律依据，回答按自由文本保存
type LegalBasisStep struct {
	deps Deps
}

func NewLegalBasisStep(d Deps) *LegalBasisStep {
	return &LegalBasisStep{deps: d}
}

func (s *LegalBasisStep) ID() string { return IDLegalBasis }

func (s *LegalBasisStep) Execute(ctx context.Context, _ model.CompanyProfile, prior Prior, outputDir string) model.ToolResult {
	entries := make([]model.LegalBasisEntry, 0, len(prior.DataFlows))
	for _, flow := range prior.DataFlows {
		basis := defaultLegalBasis
		if text, ok := s.deps.generate(ctx, IDLegalBasis, legalBasisPrompt(flow)); ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				basis = trimmed
			}
		}
		entries = append(entries, model.LegalBasisEntry{
			Activity:      flow.Activity,
			Purpose:       flow.Purpose,
			LegalBasis:    basis,
			Justification: Justification(basis),
		})
	}

	path, err := writeLegalBasisCSV(outputDir, entries)
	if err != nil {
		return s.deps.fail(IDLegalBasis, prior.DataFlows, err)
	}
	if _, err := writeJSON(outputDir, "bases-legais.json", entries); err != nil {
		return s.deps.fail(IDLegalBasis, prior.DataFlows, err)
	}
	return s.deps.succeed(IDLegalBasis, prior.DataFlows, entries, path, entries)
}

// Justification 取回答的第一个词作为罗马数字查表
func Justification(basis string) string {
	fields := strings.Fields(basis)
	if len(fields) == 0 {
		return genericJustification
	}
	if j, ok := legalBasisJustifications[fields[0]]; ok {
		return j
	}
	return genericJustification
}

func legalBasisPrompt(flow model.DataFlowRecord) string {
	return fmt.Sprintf(`Para a atividade "%s" com finalidade "%s",
qual a base legal mais apropriada do Art. 7º da LGPD?

Opções:
I - consentimento
II - cumprimento de obrigação legal
III - execução de políticas públicas
IV - estudos por órgão de pesquisa
V - execução de contrato
VI - exercício regular de direitos
VII - proteção da vida
VIII - tutela da saúde
IX - legítimo interesse
X - proteção do crédito

Responda apenas com o número romano e nome: "%s"`, flow.Activity, flow.Purpose, defaultLegalBasis)
}
