// Package llmtest 提供 llm.Client 的内存实现，供各层测试使用
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/dpo2u/lgpdkit/internal/pkg/llm"
)

// Responder 根据提示词返回生成结果
type Responder func(prompt string) (string, error)

// Client 记录全部提示词的假后端
type Client struct {
	Respond Responder
	Healthy bool
	Models  []string
	Model   string

	mutex   sync.Mutex
	prompts []string
}

var _ llm.Client = (*Client)(nil)

func New(respond Responder) *Client {
	return &Client{Respond: respond, Healthy: true, Model: "fake-model"}
}

func (c *Client) GenerateText(ctx context.Context, prompt string, _ ...llm.Option) (string, error) {
	c.mutex.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mutex.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.Respond == nil {
		return "", llm.ErrEmptyResponse
	}
	return c.Respond(prompt)
}

func (c *Client) CheckHealth(context.Context) bool { return c.Healthy }

func (c *Client) ListModels(context.Context) []string { return c.Models }

func (c *Client) EnsureModelReady(context.Context) error { return nil }

func (c *Client) ProviderName() string { return "fake" }

func (c *Client) ModelName() string { return c.Model }

// Prompts 已收到的提示词副本
func (c *Client) Prompts() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]string, len(c.prompts))
	copy(out, c.prompts)
	return out
}

// CallCount 包含指定片段的提示词数量
func (c *Client) CallCount(fragment string) int {
	n := 0
	for _, p := range c.Prompts() {
		if strings.Contains(p, fragment) {
			n++
		}
	}
	return n
}

// Fixed 对任意提示词返回同一文本
func Fixed(text string) Responder {
	return func(string) (string, error) { return text, nil }
}

// Failing 始终返回指定错误
func Failing(err error) Responder {
	return func(string) (string, error) { return "", err }
}

// WellFormed 按提示词内容返回结构正确的 JSON，模拟表现良好的模型
func WellFormed() Responder {
	return func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "PERGUNTAS:"):
			return `Segue a avaliação:
[
  {"pergunta": "q1", "resposta": 8, "justificativa": "Política publicada"},
  {"pergunta": "q2", "resposta": 7, "justificativa": "DPO nomeado"},
  {"pergunta": "q3", "resposta": 6, "justificativa": "DPIA parcial"},
  {"pergunta": "q4", "resposta": 8, "justificativa": "Canal ativo"},
  {"pergunta": "q5", "resposta": 7, "justificativa": "Contratos revisados"},
  {"pergunta": "q6", "resposta": 5, "justificativa": "Inventário incompleto"},
  {"pergunta": "q7", "resposta": 7, "justificativa": "Plano existente"},
  {"pergunta": "q8", "resposta": 6, "justificativa": "Treinamento anual"},
  {"pergunta": "q9", "resposta": 7, "justificativa": "Consentimento registrado"},
  {"pergunta": "q10", "resposta": 8, "justificativa": "Criptografia em uso"}
]`, nil
		case strings.Contains(prompt, "lista JSON de strings"):
			return `Atividades identificadas: ["Cadastro de usuários", "Suporte técnico", "Gestão de RH"]`, nil
		case strings.Contains(prompt, "identifique:"):
			return "```json\n" + `{
  "dados": ["Nome", "Email", "CPF"],
  "finalidade": "Prestação do serviço contratado",
  "baseLegal": "Execução de contrato",
  "retencao": "5 anos",
  "acesso": ["Suporte", "Financeiro"],
  "destino": "Banco de dados em nuvem"
}` + "\n```", nil
		case strings.Contains(prompt, "Art. 7º da LGPD?"):
			return "  V - execução de contrato\n", nil
		case strings.Contains(prompt, "DPIA"):
			return `{
  "descricao": "Tratamento de dados de clientes e colaboradores",
  "riscos": [{"tipo": "Vazamento de dados", "nivel": "Médio", "probabilidade": "Baixa"}],
  "mitigacoes": ["Controle de acesso", "Criptografia"],
  "scoreResidual": 3
}`, nil
		}
		return "ok", nil
	}
}
