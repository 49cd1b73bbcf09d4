package mcpserver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dpo2u/lgpdkit/config"
	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/llm"
	"github.com/dpo2u/lgpdkit/internal/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"k8s.io/klog/v2"
)

const (
	ServerName    = "dpo2u-lgpd-kit"
	ServerVersion = "1.0.0"

	ToolComplianceFull = "lgpd_compliance_full"
	ToolCheckCache     = "lgpd_check_company_cache"
	ToolMaturity       = "lgpd_maturity_assessment"
)

// ClientFactory 按调用参数创建后端，provider 为空时使用默认后端
type ClientFactory func(provider, apiKey string) (llm.Client, error)

// ContactArgs 联系人
type ContactArgs struct {
	Responsible string `json:"responsavel" jsonschema:"required,description=Nome do responsável/DPO"`
	Email       string `json:"email" jsonschema:"required,description=Email de contato"`
	Phone       string `json:"telefone,omitempty" jsonschema:"description=Telefone (opcional)"`
}

// ProfileArgs 完整流程与成熟度评估共用的参数
type ProfileArgs struct {
	Name           string      `json:"nome" jsonschema:"required,description=Nome da empresa"`
	TaxID          string      `json:"cnpj" jsonschema:"description=CNPJ da empresa"`
	Sector         string      `json:"setor" jsonschema:"required,description=Setor de atuação da empresa"`
	Employees      int         `json:"colaboradores" jsonschema:"required,description=Número de colaboradores"`
	CollectsData   bool        `json:"coletaDados" jsonschema:"required,description=Se a empresa coleta dados pessoais"`
	UsesProcessors bool        `json:"possuiOperadores" jsonschema:"required,description=Se a empresa possui operadores/fornecedores"`
	Contact        ContactArgs `json:"contato" jsonschema:"required"`
	Provider       string      `json:"provider,omitempty" jsonschema:"enum=ollama,enum=claude,enum=codex,description=Provedor de IA a ser usado"`
	APIKey         string      `json:"apiKey,omitempty" jsonschema:"description=Chave de API (para Claude ou Codex)"`
	OutputDir      string      `json:"outputDir,omitempty" jsonschema:"description=Diretório de saída (opcional)"`
}

func (a ProfileArgs) profile() model.CompanyProfile {
	return model.CompanyProfile{
		Name:           strings.TrimSpace(a.Name),
		TaxID:          strings.TrimSpace(a.TaxID),
		Sector:         a.Sector,
		Employees:      a.Employees,
		CollectsData:   a.CollectsData,
		UsesProcessors: a.UsesProcessors,
		Contact: model.Contact{
			Responsible: a.Contact.Responsible,
			Email:       a.Contact.Email,
			Phone:       a.Contact.Phone,
		},
	}
}

// CacheArgs 缓存查询参数
type CacheArgs struct {
	Name  string `json:"nome" jsonschema:"required,description=Nome da empresa"`
	TaxID string `json:"cnpj,omitempty" jsonschema:"description=CNPJ da empresa (opcional)"`
}

// Tools 三个 MCP 工具的实现
type Tools struct {
	service   *service.ComplianceService
	newClient ClientFactory
	// 同一进程内的完整流程串行执行，缓存文件只有一个写入者
	runMutex sync.Mutex
}

func NewTools(svc *service.ComplianceService, factory ClientFactory) *Tools {
	return &Tools{service: svc, newClient: factory}
}

// DefaultClientFactory 在配置基础上覆盖 provider 与 API key
func DefaultClientFactory(cfg *config.Config) ClientFactory {
	return func(provider, apiKey string) (llm.Client, error) {
		override := *cfg
		override.LLM.Provider = provider
		if apiKey != "" {
			switch strings.ToLower(provider) {
			case llm.ProviderClaude, "anthropic":
				override.LLM.AnthropicAPIKey = apiKey
			case llm.ProviderCodex, "openai":
				override.LLM.OpenAIAPIKey = apiKey
			}
		}
		// 按调用指定后端时不沿用全局模型名
		override.LLM.Model = ""
		return llm.NewClient(&override)
	}
}

// NewServer 创建 stdio MCP 服务并注册工具
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)
	tools.Register(s)
	return s
}

func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool(ToolComplianceFull,
		mcp.WithDescription("Executa processo completo de adequação LGPD para uma empresa"),
		mcp.WithInputSchema[ProfileArgs](),
	), t.handleComplianceFull)

	s.AddTool(mcp.NewTool(ToolCheckCache,
		mcp.WithDescription("Verifica se uma empresa já possui dados em cache"),
		mcp.WithInputSchema[CacheArgs](),
	), t.handleCheckCache)

	s.AddTool(mcp.NewTool(ToolMaturity,
		mcp.WithDescription("Executa apenas avaliação de maturidade LGPD"),
		mcp.WithInputSchema[ProfileArgs](),
	), t.handleMaturity)
}

// serviceFor 按调用参数选择后端
func (t *Tools) serviceFor(args ProfileArgs) (*service.ComplianceService, error) {
	if args.Provider == "" || t.newClient == nil {
		return t.service, nil
	}
	client, err := t.newClient(args.Provider, args.APIKey)
	if err != nil {
		return nil, err
	}
	return t.service.WithClient(client), nil
}

func (t *Tools) handleCheckCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CacheArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Parâmetros inválidos: %v", err)), nil
	}

	cached, ok := t.service.LookupCache(args.Name, args.TaxID)
	if !ok {
		return mcp.NewToolResultText("❌ Empresa não encontrada no cache. Será necessário executar adequação completa."), nil
	}
	return mcp.NewToolResultText(formatCached(cached)), nil
}

func (t *Tools) handleMaturity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args ProfileArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Parâmetros inválidos: %v", err)), nil
	}
	profile := args.profile()

	svc, err := t.serviceFor(args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Erro ao executar %s: %v", ToolMaturity, err)), nil
	}

	outputDir := args.OutputDir
	if outputDir == "" {
		if outputDir, err = os.MkdirTemp("", "lgpd-"); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Erro ao executar %s: %v", ToolMaturity, err)), nil
		}
	}

	res, err := svc.AssessMaturity(ctx, profile, outputDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Erro ao executar %s: %v", ToolMaturity, err)), nil
	}
	if !res.Success {
		return mcp.NewToolResultError(fmt.Sprintf("Erro na avaliação de maturidade: %s", res.Error)), nil
	}
	m, ok := res.Data.(model.MaturityResult)
	if !ok {
		return mcp.NewToolResultError("Erro na avaliação de maturidade"), nil
	}
	return mcp.NewToolResultText(formatMaturity(m, res.File)), nil
}

func (t *Tools) handleComplianceFull(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args ProfileArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Parâmetros inválidos: %v", err)), nil
	}
	profile := args.profile()
	if err := profile.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Erro ao executar %s: %v", ToolComplianceFull, err)), nil
	}

	if cached, ok := t.service.LookupCache(profile.Name, profile.TaxID); ok && cached.Completed {
		return mcp.NewToolResultText(formatAlreadyCompleted(cached)), nil
	}

	svc, err := t.serviceFor(args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Erro ao executar %s: %v", ToolComplianceFull, err)), nil
	}

	t.runMutex.Lock()
	defer t.runMutex.Unlock()

	outputDir := args.OutputDir
	if outputDir == "" {
		outputDir, _ = svc.ResolveOutputDir(profile, true)
	}
	if err := svc.Prepare(profile, outputDir); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Erro ao executar %s: %v", ToolComplianceFull, err)), nil
	}

	klog.V(6).Infof("[mcpserver.handleComplianceFull] 开始执行: company=%s, dir=%s", profile.Name, outputDir)
	outcome, err := svc.RunPipeline(ctx, "", profile, outputDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Erro ao executar %s: %v", ToolComplianceFull, err)), nil
	}
	if outcome.Summary.Failed > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("%d etapas falharam", outcome.Summary.Failed)), nil
	}
	return mcp.NewToolResultText(formatCompleted(outcome)), nil
}
