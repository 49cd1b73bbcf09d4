package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/utils"
	"k8s.io/klog/v2"
)

// 行业默认业务活动，模型未给出可用列表时使用
var sectorActivities = map[string][]string{
	"Tecnologia/Software": {
		"Cadastro de usuários",
		"Analytics e métricas",
		"Suporte técnico",
		"Marketing digital",
		"Gestão de RH",
	},
	"E-commerce/Varejo": {
		"Cadastro de clientes",
		"Processamento de pagamentos",
		"Gestão de entregas",
		"Marketing e promoções",
		"Atendimento ao cliente",
	},
	"Serviços Financeiros": {
		"Onboarding de clientes",
		"Análise de crédito",
		"Transações financeiras",
		"Compliance e auditoria",
		"Atendimento",
	},
	"Saúde": {
		"Cadastro de pacientes",
		"Prontuários médicos",
		"Agendamentos",
		"Exames e resultados",
		"Faturamento",
	},
	"Educação": {
		"Cadastro de alunos",
		"Gestão acadêmica",
		"Comunicação escolar",
		"Avaliações",
		"Recursos humanos",
	},
}

var genericActivities = []string{
	"Cadastro de clientes",
	"Recursos humanos",
	"Marketing",
	"Atendimento",
	"Administrativo",
}

var (
	fallbackData   = []string{"Nome", "Email", "Telefone"}
	fallbackAccess = []string{"Equipe responsável"}
)

const (
	notSpecified    = "Não especificado"
	toBeDefined     = "A definir"
	internalSystem  = "Sistema interno"
	fallbackPurpose = "Execução da atividade"
)

// DefaultActivities 行业默认活动列表，未知行业返回通用列表
func DefaultActivities(sector string) []string {
	if acts, ok := sectorActivities[sector]; ok {
		return append([]string(nil), acts...)
	}
	return append([]string(nil), genericActivities...)
}

type DataFlowStep struct {
	deps Deps
}

func NewDataFlowStep(d Deps) *DataFlowStep {
	return &DataFlowStep{deps: d}
}

func (s *DataFlowStep) ID() string { return IDDataFlow }

func (s *DataFlowStep) Execute(ctx context.Context, profile model.CompanyProfile, _ Prior, outputDir string) model.ToolResult {
	activities := s.activities(ctx, profile)
	flows := make([]model.DataFlowRecord, 0, len(activities))
	// 逐个活动顺序调用，保证审计与重试归属按活动顺序
	for _, activity := range activities {
		flows = append(flows, s.mapActivity(ctx, profile, activity))
	}

	if _, err := writeJSON(outputDir, "inventario.json", flows); err != nil {
		return s.deps.fail(IDDataFlow, profile, err)
	}
	path, err := writeDataFlowCSV(outputDir, flows)
	if err != nil {
		return s.deps.fail(IDDataFlow, profile, err)
	}
	return s.deps.succeed(IDDataFlow, profile, flows, path, flows)
}

func (s *DataFlowStep) activities(ctx context.Context, profile model.CompanyProfile) []string {
	text, ok := s.deps.generate(ctx, IDDataFlow, activitiesPrompt(profile))
	if !ok {
		return DefaultActivities(profile.Sector)
	}
	var activities []string
	for _, a := range utils.ExtractFirstJSONArray[[]string](text, nil) {
		if a = strings.TrimSpace(a); a != "" {
			activities = append(activities, a)
		}
	}
	if len(activities) == 0 {
		klog.Warningf("[steps.%s] 未解析到业务活动，使用行业默认列表: sector=%s", IDDataFlow, profile.Sector)
		return DefaultActivities(profile.Sector)
	}
	return activities
}

type flowDraft struct {
	Data        []string `json:"dados"`
	Purpose     string   `json:"finalidade"`
	LegalBasis  string   `json:"baseLegal"`
	Retention   string   `json:"retencao"`
	Access      []string `json:"acesso"`
	Destination string   `json:"destino"`
}

func (s *DataFlowStep) mapActivity(ctx context.Context, profile model.CompanyProfile, activity string) model.DataFlowRecord {
	processor := ""
	if profile.UsesProcessors {
		processor = toBeDefined
	}

	var draft *flowDraft
	if text, ok := s.deps.generate(ctx, IDDataFlow, flowPrompt(profile, activity)); ok {
		draft = utils.ExtractJSONObject[*flowDraft](text, nil)
	}
	if draft == nil {
		return model.DataFlowRecord{
			Activity:    activity,
			Data:        append([]string(nil), fallbackData...),
			Purpose:     fallbackPurpose,
			LegalBasis:  toBeDefined,
			Retention:   toBeDefined,
			Access:      append([]string(nil), fallbackAccess...),
			Destination: internalSystem,
			Processor:   processor,
		}
	}

	record := model.DataFlowRecord{
		Activity:    activity,
		Data:        nonEmpty(draft.Data, fallbackData),
		Purpose:     orDefault(draft.Purpose, notSpecified),
		LegalBasis:  orDefault(draft.LegalBasis, toBeDefined),
		Retention:   orDefault(draft.Retention, toBeDefined),
		Access:      nonEmpty(draft.Access, fallbackAccess),
		Destination: orDefault(draft.Destination, internalSystem),
		Processor:   processor,
	}
	return record
}

func nonEmpty(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func activitiesPrompt(profile model.CompanyProfile) string {
	return fmt.Sprintf(`Você é um especialista em mapeamento de dados pessoais para LGPD.

Analise a empresa e identifique as principais atividades que envolvem tratamento de dados pessoais:

%s

Liste as atividades típicas para este tipo de empresa que envolvem dados pessoais.

Exemplos por setor:
- E-commerce: Cadastro de clientes, Processamento de pagamentos, Marketing direto
- SaaS: Cadastro de usuários, Analytics, Suporte técnico
- Consultoria: Gestão de RH, Contratos com clientes, Relatórios

Responda apenas com uma lista JSON de strings:
["Atividade 1", "Atividade 2", "Atividade 3"]`, companyBlock(profile))
}

func flowPrompt(profile model.CompanyProfile, activity string) string {
	return fmt.Sprintf(`Você é um especialista em LGPD. Para a atividade "%s" na empresa do setor "%s", identifique:

1. Dados pessoais coletados
2. Finalidade específica
3. Base legal apropriada (Art. 7º LGPD)
4. Período de retenção
5. Quem tem acesso
6. Destino dos dados

Responda no formato JSON:
{
  "dados": ["lista", "de", "dados"],
  "finalidade": "finalidade específica",
  "baseLegal": "base legal do Art. 7º",
  "retencao": "período em anos ou até finalidade",
  "acesso": ["função1", "função2"],
  "destino": "local/sistema onde ficam armazenados"
}

Bases legais comuns:
- Execução de contrato
- Consentimento
- Legítimo interesse
- Cumprimento de obrigação legal
- Proteção da vida
- Exercício de direitos`, activity, profile.Sector)
}
