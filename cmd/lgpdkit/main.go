package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/dpo2u/lgpdkit/config"
	"github.com/dpo2u/lgpdkit/internal/eventbus"
	"github.com/dpo2u/lgpdkit/internal/model"
	"github.com/dpo2u/lgpdkit/internal/pkg/auditlog"
	"github.com/dpo2u/lgpdkit/internal/pkg/llm"
	"github.com/dpo2u/lgpdkit/internal/pkg/runcache"
	"github.com/dpo2u/lgpdkit/internal/service"
	"github.com/dpo2u/lgpdkit/internal/tui"
)

const preflightTimeout = 2 * time.Minute

func main() {
	// 初始化 klog，全局 flag 只用于日志
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg := config.GetConfig()
	var code int
	switch args[0] {
	case "adequacao":
		code = runAdequacao(cfg, args[1:], os.Stdout)
	case "cache":
		code = runCache(cfg, args[1:], os.Stdout, os.Stdin)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "comando desconhecido: %s\n\n", args[0])
		usage()
		code = 2
	}
	klog.Flush()
	os.Exit(code)
}

func usage() {
	fmt.Fprint(os.Stderr, `dpo2u-lgpd-kit - Conformidade LGPD em 1 dia

Uso:
  lgpdkit [flags de log] <comando> [opções]

Comandos:
  adequacao   Executa fluxo completo de adequação LGPD
  cache       Gerenciar cache de empresas processadas
`)
}

// adequacaoFlags 命令行覆盖项，空值表示沿用配置
type adequacaoFlags struct {
	output           string
	provider         string
	model            string
	ollamaURL        string
	anthropicAPIKey  string
	anthropicBaseURL string
	anthropicModel   string
	openAIAPIKey     string
	openAIBaseURL    string
	openAIModel      string
	profile          string
	reuse            bool
}

func parseAdequacaoFlags(cfg *config.Config, args []string) (*adequacaoFlags, error) {
	f := &adequacaoFlags{}
	fs := flag.NewFlagSet("adequacao", flag.ContinueOnError)
	fs.StringVar(&f.output, "output", cfg.Output.Dir, "Diretório de saída")
	fs.StringVar(&f.provider, "provider", cfg.LLM.Provider, "Provedor de IA (ollama|claude|codex)")
	fs.StringVar(&f.model, "model", "", "Modelo do provedor de IA")
	fs.StringVar(&f.ollamaURL, "ollama-url", "", "URL do Ollama")
	fs.StringVar(&f.anthropicAPIKey, "anthropic-api-key", "", "Chave de API para o Claude (Anthropic)")
	fs.StringVar(&f.anthropicBaseURL, "anthropic-base-url", "", "URL da API do Claude (Anthropic)")
	fs.StringVar(&f.anthropicModel, "anthropic-model", "", "Modelo padrão do Claude (Anthropic)")
	fs.StringVar(&f.openAIAPIKey, "openai-api-key", "", "Chave de API para o Codex (OpenAI)")
	fs.StringVar(&f.openAIBaseURL, "openai-base-url", "", "URL da API do Codex (OpenAI)")
	fs.StringVar(&f.openAIModel, "openai-model", "", "Modelo padrão do Codex (OpenAI)")
	fs.StringVar(&f.profile, "profile", "", "Arquivo JSON com os dados da empresa (dispensa o formulário)")
	fs.BoolVar(&f.reuse, "reuse", true, "Reutilizar diretório de execução anterior quando válido")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// apply 返回覆盖后的配置副本
func (f *adequacaoFlags) apply(cfg *config.Config) *config.Config {
	out := *cfg
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Output.Dir, f.output)
	set(&out.LLM.Provider, strings.ToLower(f.provider))
	set(&out.LLM.Model, f.model)
	set(&out.LLM.OllamaURL, f.ollamaURL)
	set(&out.LLM.AnthropicAPIKey, f.anthropicAPIKey)
	set(&out.LLM.AnthropicAPIURL, f.anthropicBaseURL)
	set(&out.LLM.AnthropicModel, f.anthropicModel)
	set(&out.LLM.OpenAIAPIKey, f.openAIAPIKey)
	set(&out.LLM.OpenAIAPIURL, f.openAIBaseURL)
	set(&out.LLM.OpenAIModel, f.openAIModel)
	return &out
}

func loadProfile(path string) (model.CompanyProfile, error) {
	var profile model.CompanyProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return profile, err
	}
	return profile, nil
}

func runAdequacao(base *config.Config, args []string, out io.Writer) int {
	flags, err := parseAdequacaoFlags(base, args)
	if err != nil {
		return 2
	}
	cfg := flags.apply(base)

	fmt.Fprintln(out, tui.TitleStyle.Render("🚀 DPO2U LGPD Kit - Adequação Completa"))
	fmt.Fprintln(out)

	client, err := llm.NewClient(cfg)
	if err != nil {
		fmt.Fprintln(out, tui.ErrorStyle.Render("❌ "+err.Error()))
		return 1
	}

	fmt.Fprintln(out, "🔍 Verificando dependências...")
	ctx, cancel := context.WithTimeout(context.Background(), preflightTimeout)
	err = llm.Preflight(ctx, client)
	cancel()
	if err != nil {
		fmt.Fprintln(out, tui.ErrorStyle.Render("❌ "+err.Error()))
		printPreflightHint(out, cfg, client, err)
		return 1
	}
	fmt.Fprintln(out, tui.SuccessStyle.Render(fmt.Sprintf("✅ Provedor %s conectado e modelo %s pronto", client.ProviderName(), client.ModelName())))
	fmt.Fprintln(out)

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		fmt.Fprintln(out, tui.ErrorStyle.Render("❌ "+err.Error()))
		return 1
	}
	cache := runcache.New(cfg.Output.Dir)
	printCachedRuns(out, cache.FindExistingRuns())

	var profile model.CompanyProfile
	if flags.profile != "" {
		profile, err = loadProfile(flags.profile)
	} else {
		profile, err = tui.RunIntake(os.Stdin, out)
	}
	if errors.Is(err, tui.ErrAborted) {
		fmt.Fprintln(out, "❌ Operação cancelada")
		return 0
	}
	if err != nil {
		fmt.Fprintln(out, tui.ErrorStyle.Render("❌ "+err.Error()))
		return 1
	}

	bus := eventbus.NewStepEventBus()
	bus.Subscribe(eventbus.StepStarted, func(_ context.Context, e eventbus.StepEvent) error {
		fmt.Fprintf(out, "%s %s...\n", tui.MutedStyle.Render(fmt.Sprintf("[%d/%d]", e.Index, e.Total)), e.Label)
		return nil
	})
	bus.Subscribe(eventbus.StepFinished, func(_ context.Context, e eventbus.StepEvent) error {
		if e.Success {
			done := e.Label
			if e.File != "" {
				done = filepath.Base(e.File)
			}
			fmt.Fprintln(out, tui.SuccessStyle.Render("  ✅ "+done))
		} else {
			fmt.Fprintln(out, tui.WarningStyle.Render("  ⚠️  "+e.Error))
		}
		return nil
	})

	svc := service.NewComplianceService(cfg, client, cache, nil, bus)
	outputDir, resumed := svc.ResolveOutputDir(profile, flags.reuse)
	if resumed {
		fmt.Fprintf(out, "📁 Usando diretório existente: %s\n", outputDir)
		if files := runcache.ListGeneratedFiles(outputDir); len(files) > 0 {
			fmt.Fprintf(out, "📄 Arquivos encontrados: %s\n", strings.Join(files, ", "))
		}
	}
	if err := svc.Prepare(profile, outputDir); err != nil {
		fmt.Fprintln(out, tui.ErrorStyle.Render("❌ "+err.Error()))
		return 1
	}
	fmt.Fprintf(out, "\n📁 Documentos serão salvos em: %s\n\n", outputDir)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	outcome, err := svc.RunPipeline(runCtx, "", profile, outputDir)
	if err != nil {
		fmt.Fprintln(out, tui.ErrorStyle.Render("❌ Erro durante execução: "+err.Error()))
		fmt.Fprintln(out, "💾 Dados da empresa foram salvos no cache para tentar novamente")
		return 1
	}

	printSummary(out, outcome)
	return 0
}

func printPreflightHint(out io.Writer, cfg *config.Config, client llm.Client, err error) {
	switch client.ProviderName() {
	case "", llm.ProviderOllama:
		if errors.Is(err, llm.ErrModelNotFound) {
			fmt.Fprintf(out, "💡 Para instalar: ollama pull %s\n", client.ModelName())
			return
		}
		fmt.Fprintf(out, "💡 Verifique se o Ollama está rodando em: %s\n", cfg.LLM.OllamaURL)
		fmt.Fprintln(out, "💡 Comando: ollama serve")
	case llm.ProviderClaude:
		fmt.Fprintln(out, "💡 Verifique se a variável ANTHROPIC_API_KEY está configurada corretamente")
	case llm.ProviderCodex:
		fmt.Fprintln(out, "💡 Verifique se a variável OPENAI_API_KEY está configurada corretamente")
	}
}

func printCachedRuns(out io.Writer, runs []model.CachedRun) {
	if len(runs) == 0 {
		return
	}
	fmt.Fprintln(out, "📋 Empresas processadas anteriormente encontradas:")
	for i, r := range runs {
		status := "⏳ Incompleta"
		if r.Completed {
			status = "✅ Concluída"
		}
		fmt.Fprintf(out, "%d. %s (%s) - %s - %s\n", i+1, r.Profile.Name, r.Profile.TaxID, status, r.LastExecution.Local().Format("02/01/2006"))
	}
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, outcome *service.RunOutcome) {
	s := outcome.Summary
	var b strings.Builder
	b.WriteString(tui.TitleStyle.Render("🎉 Adequação LGPD Concluída!"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "✅ %d/%d etapas executadas com sucesso\n", s.Succeeded, s.Total)
	if s.Failed > 0 {
		b.WriteString(tui.WarningStyle.Render(fmt.Sprintf("⚠️  %d etapas com problemas (verifique o log)", s.Failed)))
		b.WriteString("\n")
	}
	if outcome.Maturity != nil {
		fmt.Fprintf(&b, "📊 Maturidade: %d/100 (%s)\n", outcome.Maturity.Score, outcome.Maturity.Level)
	}
	fmt.Fprintf(&b, "📋 Log de auditoria salvo em: %s\n", filepath.Join(outcome.OutputDir, auditlog.FileName))
	if outcome.PackagePath != "" {
		fmt.Fprintf(&b, "📦 Pacote final: %s\n", outcome.PackagePath)
	}
	fmt.Fprintf(&b, "📁 Todos os documentos estão em: %s\n", outcome.OutputDir)
	b.WriteString("💾 Dados salvos no cache para reutilização futura")
	fmt.Fprintln(out, tui.BoxStyle.Render(b.String()))
}

func runCache(base *config.Config, args []string, out io.Writer, in io.Reader) int {
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	output := fs.String("output", base.Output.Dir, "Diretório de saída")
	clearCache := fs.Bool("clear", false, "Limpar o cache de empresas")
	yes := fs.Bool("yes", false, "Não pedir confirmação ao limpar")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cache := runcache.New(*output)
	runs := cache.FindExistingRuns()

	if *clearCache {
		if !*yes && !confirm(out, in, "⚠️  Tem certeza que deseja limpar todo o cache? (s/N) ") {
			fmt.Fprintln(out, "❌ Operação cancelada")
			return 0
		}
		if err := cache.Clear(); err != nil {
			fmt.Fprintln(out, tui.ErrorStyle.Render("❌ "+err.Error()))
			return 1
		}
		fmt.Fprintln(out, tui.SuccessStyle.Render("🗑️  Cache limpo com sucesso"))
		return 0
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "📭 Nenhuma empresa encontrada no cache")
		return 0
	}

	fmt.Fprintln(out, tui.TitleStyle.Render("📋 Empresas no cache:"))
	fmt.Fprintln(out)
	for i, r := range runs {
		status := "⏳ Incompleta"
		if r.Completed {
			status = "✅ Concluída"
		}
		filesExist := "❌"
		if runcache.ValidateOutputDir(r.OutputDir) {
			filesExist = "📁"
		}
		fmt.Fprintf(out, "%d. %s\n", i+1, r.Profile.Name)
		fmt.Fprintf(out, "   CNPJ: %s\n", r.Profile.TaxID)
		fmt.Fprintf(out, "   Status: %s\n", status)
		fmt.Fprintf(out, "   Última execução: %s\n", r.LastExecution.Local().Format("02/01/2006"))
		fmt.Fprintf(out, "   Diretório: %s %s\n", r.OutputDir, filesExist)
		fmt.Fprintf(out, "   Setor: %s\n\n", r.Profile.Sector)
	}
	return 0
}

func confirm(out io.Writer, in io.Reader, prompt string) bool {
	fmt.Fprint(out, prompt)
	var answer string
	if _, err := fmt.Fscanln(in, &answer); err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "sim", "y", "yes":
		return true
	}
	return false
}
