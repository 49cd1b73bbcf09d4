package mcpserver

import (
	"fmt"
	"strings"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/auditlog"
	"github.com/dpo2u/lgpdkit/internal/service"
)

const timeLayout = "02/01/2006 15:04"

func formatCached(cached *service.CachedRunView) string {
	taxID := cached.Profile.TaxID
	if taxID == "" {
		taxID = "Não informado"
	}
	status := "Adequação parcial"
	if cached.Completed {
		status = "Adequação completa"
	}
	var b strings.Builder
	b.WriteString("✅ Empresa encontrada no cache:\n")
	fmt.Fprintf(&b, "- Nome: %s\n", cached.Profile.Name)
	fmt.Fprintf(&b, "- CNPJ: %s\n", taxID)
	fmt.Fprintf(&b, "- Última execução: %s\n", cached.LastExecution.Local().Format(timeLayout))
	fmt.Fprintf(&b, "- Status: %s\n", status)
	fmt.Fprintf(&b, "- Diretório: %s", cached.OutputDir)
	if !cached.DirValid {
		b.WriteString(" (arquivos ausentes)")
	}
	return b.String()
}

func formatAlreadyCompleted(cached *service.CachedRunView) string {
	var b strings.Builder
	b.WriteString("ℹ️ Empresa já possui adequação LGPD completa!\n\n")
	fmt.Fprintf(&b, "📁 **Documentos anteriores:** %s\n", cached.OutputDir)
	fmt.Fprintf(&b, "📅 **Última execução:** %s\n\n", cached.LastExecution.Local().Format(timeLayout))
	b.WriteString("💡 Para nova adequação, use um nome ou CNPJ diferente.")
	return b.String()
}

func formatMaturity(m model.MaturityResult, file string) string {
	var b strings.Builder
	b.WriteString("✅ Avaliação de maturidade concluída!\n\n")
	b.WriteString("📊 **Resultado:**\n")
	fmt.Fprintf(&b, "- Score: %d/100\n", m.Score)
	fmt.Fprintf(&b, "- Nível: %s\n", m.Level)
	fmt.Fprintf(&b, "- Gaps identificados: %d\n\n", len(m.Gaps))
	fmt.Fprintf(&b, "📁 **Arquivo gerado:** %s\n\n", file)
	b.WriteString("🎯 **Próximos passos:**\n")
	for i, a := range m.ActionPlan {
		fmt.Fprintf(&b, "%d. %s\n", i+1, a)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCompleted(outcome *service.RunOutcome) string {
	maturity := "N/A"
	if outcome.Maturity != nil {
		maturity = fmt.Sprintf("%d", outcome.Maturity.Score)
	}

	var b strings.Builder
	b.WriteString("🎉 **Adequação LGPD Concluída com Sucesso!**\n\n")
	b.WriteString("📋 **Documentos Gerados:**\n")
	for _, doc := range outcome.Files {
		if doc == auditlog.FileName {
			continue
		}
		fmt.Fprintf(&b, "• %s\n", doc)
	}
	fmt.Fprintf(&b, "\n📁 **Local:** %s\n\n", outcome.OutputDir)
	b.WriteString("📊 **Resumo da Adequação:**\n")
	fmt.Fprintf(&b, "• Maturidade: Avaliada (%s/100)\n", maturity)
	b.WriteString("• Inventário: Mapeado\n• Bases Legais: Definidas\n• DPIA: Elaborada\n")
	b.WriteString("• Política: Gerada\n• Contratos: Preparados\n• Relatório: Finalizado\n\n")
	b.WriteString("✅ **Status:** Conformidade básica alcançada\n\n")
	b.WriteString("🎯 **Próximos Passos Recomendados:**\n")
	b.WriteString("1. Publicar política de privacidade\n2. Treinar equipe sobre LGPD\n3. Implementar controles técnicos\n")
	b.WriteString("4. Assinar contratos com operadores\n5. Testar plano de incidentes\n6. Agendar revisão trimestral\n\n")
	b.WriteString("📞 **Suporte:** Para dúvidas sobre implementação, consulte um especialista jurídico.")
	return b.String()
}
