package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
)

// IncidentPlanStep 生成事件响应计划，独立于其他步骤
type IncidentPlanStep struct {
	deps Deps
}

func NewIncidentPlanStep(d Deps) *IncidentPlanStep {
	return &IncidentPlanStep{deps: d}
}

func (s *IncidentPlanStep) ID() string { return IDIncidentPlan }

func (s *IncidentPlanStep) Execute(_ context.Context, profile model.CompanyProfile, _ Prior, outputDir string) model.ToolResult {
	input := map[string]string{"empresa": profile.Name}
	plan := IncidentPlan(profile, s.deps.now())
	path, err := writeText(outputDir, "plano-incidente.txt", plan)
	if err != nil {
		return s.deps.fail(IDIncidentPlan, input, err)
	}
	return s.deps.succeed(IDIncidentPlan, input, map[string]string{"arquivo": path}, path, plan)
}

func IncidentPlan(profile model.CompanyProfile, now time.Time) string {
	return fmt.Sprintf(`PLANO DE RESPOSTA A INCIDENTES DE DADOS
%[1]s

Data: %[2]s

1. EQUIPE DE RESPOSTA
Coordenador: %[3]s
Email: %[4]s
%[5]s
2. CLASSIFICAÇÃO DE INCIDENTES
Baixo: Acesso não autorizado limitado
Médio: Exposição de dados não sensíveis
Alto: Vazamento de dados sensíveis
Crítico: Vazamento massivo com risco aos titulares

3. PRIMEIROS 30 MINUTOS
□ Identificar e conter o incidente
□ Documentar evidências
□ Acionar equipe de resposta
□ Avaliar gravidade e impacto

4. PRIMEIRAS 2 HORAS
□ Investigar causa raiz
□ Implementar medidas corretivas
□ Preparar comunicação interna
□ Avaliar necessidade de notificação à ANPD

5. PRIMEIRAS 24 HORAS
□ Notificar ANPD (se aplicável)
□ Preparar comunicação aos titulares
□ Revisar medidas de segurança
□ Documentar lições aprendidas

6. CRITÉRIOS PARA NOTIFICAÇÃO ANPD
- Incidente de alto risco aos direitos dos titulares
- Possibilidade de danos patrimoniais, morais ou coletivos
- Vazamento de dados sensíveis
- Grande volume de titulares afetados

7. TEMPLATE DE COMUNICAÇÃO
"Informamos sobre incidente de segurança ocorrido em [data].
Dados afetados: [tipos]
Titulares impactados: [número]
Medidas adotadas: [ações]
Contato: %[4]s"

8. PÓS-INCIDENTE
□ Análise forense completa
□ Atualização de políticas
□ Treinamento adicional
□ Monitoramento reforçado
□ Relatório final

9. CONTATOS IMPORTANTES
ANPD: https://www.gov.br/anpd/
Polícia Civil - Crimes Cibernéticos
Advogado especializado em LGPD

10. REVISÃO
Este plano deve ser revisado semestralmente e testado anualmente.`,
		profile.Name,
		now.Format(dateLayoutBR),
		profile.Contact.Responsible,
		profile.Contact.Email,
		phoneLine(profile.Contact),
	)
}
