package steps

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
)

func renderMaturity(profile model.CompanyProfile, r model.MaturityResult, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Avaliação de Maturidade LGPD\n\n")
	fmt.Fprintf(&b, "- **Empresa:** %s\n", profile.Name)
	fmt.Fprintf(&b, "- **CNPJ:** %s\n", profile.TaxID)
	fmt.Fprintf(&b, "- **Data:** %s\n\n", now.Format(dateLayoutBR))
	fmt.Fprintf(&b, "## Score de Maturidade: %d/100\n\n", r.Score)
	fmt.Fprintf(&b, "**Nível:** %s\n\n", r.Level)

	if len(r.Answers) > 0 {
		b.WriteString("## Respostas\n\n| # | Pergunta | Nota | Justificativa |\n|---|---|---|---|\n")
		for i, a := range r.Answers {
			fmt.Fprintf(&b, "| %d | %s | %d | %s |\n", i+1, cell(a.Question), a.Score, cell(a.Justification))
		}
		b.WriteString("\n")
	}
	if len(r.Gaps) > 0 {
		b.WriteString("## Gaps Identificados\n\n")
		for _, g := range r.Gaps {
			fmt.Fprintf(&b, "- %s\n", g)
		}
		b.WriteString("\n")
	}
	if len(r.ActionPlan) > 0 {
		b.WriteString("## Plano de Ação (30 dias)\n\n")
		for i, a := range r.ActionPlan {
			fmt.Fprintf(&b, "%d. %s\n", i+1, a)
		}
	}
	return b.String()
}

func renderImpact(profile model.CompanyProfile, a *model.ImpactAssessment, now time.Time) string {
	var b strings.Builder
	b.WriteString("# DPIA - Avaliação de Impacto\n\n")
	fmt.Fprintf(&b, "- **Empresa:** %s\n", profile.Name)
	fmt.Fprintf(&b, "- **Data:** %s\n\n", now.Format(dateLayoutBR))
	fmt.Fprintf(&b, "## Descrição do Tratamento\n\n%s\n\n", a.Description)
	b.WriteString("## Riscos Identificados\n\n")
	for _, r := range a.Risks {
		fmt.Fprintf(&b, "- %s (%s) - probabilidade: %s\n", r.Type, r.Level, r.Probability)
	}
	b.WriteString("\n## Medidas de Mitigação\n\n")
	for _, m := range a.Mitigations {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	fmt.Fprintf(&b, "\n## Score de Risco Residual: %g/10\n", a.ResidualScore)
	return b.String()
}

func renderReport(r *model.FinalReport) string {
	var b strings.Builder
	b.WriteString("# Relatório de Adequação LGPD\n\n")
	fmt.Fprintf(&b, "- **Empresa:** %s\n", r.Company)
	fmt.Fprintf(&b, "- **Data:** %s\n", r.GeneratedAt.Format(dateLayoutBR))
	fmt.Fprintf(&b, "- **Status:** %s\n\n", r.Summary["status"])
	b.WriteString("## Documentos Gerados\n\n")
	for _, d := range r.Documents {
		fmt.Fprintf(&b, "- [x] %s\n", d)
	}
	b.WriteString("\n## Próximos Passos\n\n")
	for _, s := range r.NextSteps {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("\n## Recomendações\n\n")
	b.WriteString("Esta adequação representa a conformidade documental mínima.\n")
	b.WriteString("Recomenda-se revisão jurídica e implementação técnica das medidas.\n")
	b.WriteString("Acompanhamento trimestral é essencial para manutenção da conformidade.\n")
	return b.String()
}

// cell 转义 Markdown 表格单元格
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func writeDataFlowCSV(outputDir string, flows []model.DataFlowRecord) (string, error) {
	rows := [][]string{{"Atividade", "Dados Pessoais", "Finalidade", "Base Legal", "Retenção", "Acesso", "Destino", "Operador"}}
	for _, f := range flows {
		rows = append(rows, []string{
			f.Activity,
			strings.Join(f.Data, ", "),
			f.Purpose,
			f.LegalBasis,
			f.Retention,
			strings.Join(f.Access, ", "),
			f.Destination,
			f.Processor,
		})
	}
	return writeCSV(outputDir, "inventario.csv", rows)
}

func writeLegalBasisCSV(outputDir string, entries []model.LegalBasisEntry) (string, error) {
	rows := [][]string{{"Atividade", "Finalidade", "Base Legal", "Justificativa"}}
	for _, e := range entries {
		rows = append(rows, []string{e.Activity, e.Purpose, e.LegalBasis, e.Justification})
	}
	return writeCSV(outputDir, "bases-legais.csv", rows)
}

func writeCSV(outputDir, name string, rows [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return writeText(outputDir, name, buf.String())
}
