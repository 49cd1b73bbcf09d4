package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dpo2u/lgpdkit/internal/model"
)

// PolicyStep 基于数据流生成隐私政策，不调用模型
type PolicyStep struct {
	deps Deps
}

func NewPolicyStep(d Deps) *PolicyStep {
	return &PolicyStep{deps: d}
}

func (s *PolicyStep) ID() string { return IDPolicy }

func (s *PolicyStep) Execute(_ context.Context, profile model.CompanyProfile, prior Prior, outputDir string) model.ToolResult {
	input := map[string]string{"empresa": profile.Name}
	policy := PrivacyPolicy(profile, prior.DataFlows, s.deps.now())
	path, err := writeText(outputDir, "politica-privacidade.txt", policy)
	if err != nil {
		return s.deps.fail(IDPolicy, input, err)
	}
	return s.deps.succeed(IDPolicy, input, map[string]string{"arquivo": path}, path, policy)
}

// DataCategories 去重后的数据类别，保持首次出现顺序
func DataCategories(flows []model.DataFlowRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range flows {
		for _, d := range f.Data {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

func PrivacyPolicy(profile model.CompanyProfile, flows []model.DataFlowRecord, now time.Time) string {
	purposes := make([]string, 0, len(flows))
	for _, f := range flows {
		purposes = append(purposes, f.Purpose)
	}
	sharing := "Dados não são compartilhados com terceiros."
	if profile.UsesProcessors {
		sharing = "Dados podem ser compartilhados com fornecedores mediante contrato."
	}

	return fmt.Sprintf(`POLÍTICA DE PRIVACIDADE
%s

Última atualização: %s

1. DADOS COLETADOS
Coletamos os seguintes dados pessoais: %s

2. FINALIDADES
%s

3. BASE LEGAL
Tratamento baseado nas hipóteses do Art. 7º da LGPD.

4. COMPARTILHAMENTO
%s

5. DIREITOS DOS TITULARES
- Confirmação da existência de tratamento
- Acesso aos dados
- Correção de dados incompletos
- Eliminação dos dados
- Portabilidade dos dados
- Informação sobre compartilhamento
- Revogação do consentimento

6. CONTATO
Encarregado: %s
Email: %s
%s
7. SEGURANÇA
Adotamos medidas técnicas e organizacionais adequadas para proteger os dados pessoais.

8. ALTERAÇÕES
Esta política pode ser alterada a qualquer tempo, com comunicação prévia aos titulares.`,
		profile.Name,
		now.Format(dateLayoutBR),
		strings.Join(DataCategories(flows), ", "),
		strings.Join(purposes, "; "),
		sharing,
		profile.Contact.Responsible,
		profile.Contact.Email,
		phoneLine(profile.Contact),
	)
}

// phoneLine 有电话时返回带换行的电话行
func phoneLine(c model.Contact) string {
	if c.Phone == "" {
		return ""
	}
	return "Telefone: " + c.Phone + "\n"
}
