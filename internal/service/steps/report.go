package steps

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/runcache"
)

// 报告中列出的文档类型
var reportExtensions = []string{".pdf", ".csv", ".txt", ".md"}

var reportSummary = map[string]string{
	"maturidade":  "Avaliada",
	"inventario":  "Mapeado",
	"basesLegais": "Definidas",
	"dpia":        "Elaborada",
	"politica":    "Gerada",
	"contratos":   "Preparados",
	"incidentes":  "Planejado",
	"status":      "Conformidade básica alcançada",
}

var reportNextSteps = []string{
	"Publicar política de privacidade",
	"Treinar equipe sobre LGPD",
	"Implementar controles técnicos",
	"Assinar contratos com operadores",
	"Testar plano de incidentes",
	"Agendar revisão trimestral",
}

// FinalReportStep 汇总输出目录中已生成的文档
type FinalReportStep struct {
	deps Deps
}

func NewFinalReportStep(d Deps) *FinalReportStep {
	return &FinalReportStep{deps: d}
}

func (s *FinalReportStep) ID() string { return IDFinalReport }

func (s *FinalReportStep) Execute(_ context.Context, profile model.CompanyProfile, _ Prior, outputDir string) model.ToolResult {
	input := map[string]string{"empresa": profile.Name}

	report := &model.FinalReport{
		Company:     profile.Name,
		GeneratedAt: s.deps.now().UTC(),
		Documents:   ReportDocuments(outputDir),
		Summary:     maps.Clone(reportSummary),
		NextSteps:   append([]string(nil), reportNextSteps...),
	}

	if _, err := writeJSON(outputDir, "relatorio-dpo.json", report); err != nil {
		return s.deps.fail(IDFinalReport, input, err)
	}
	path, err := writeText(outputDir, "relatorio-dpo.md", renderReport(report))
	if err != nil {
		return s.deps.fail(IDFinalReport, input, err)
	}
	return s.deps.succeed(IDFinalReport, input, report, path, report)
}

// ReportDocuments 输出目录中按名称排序的文档文件
func ReportDocuments(outputDir string) []string {
	docs := []string{}
	for _, name := range runcache.ListGeneratedFiles(outputDir) {
		if slices.Contains(reportExtensions, strings.ToLower(filepath.Ext(name))) {
			docs = append(docs, name)
		}
	}
	return docs
}
