package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Output   OutputConfig   `yaml:"output"`
	Queue    QueueConfig    `yaml:"queue"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

// LLMConfig 文本生成后端配置
// Provider 取值 ollama / claude / codex，Model 为空时使用各后端的默认模型
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	OllamaURL string `yaml:"ollama_url"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicAPIURL string `yaml:"anthropic_api_url"`
	AnthropicModel  string `yaml:"anthropic_model"`

	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIAPIURL string `yaml:"openai_api_url"`
	OpenAIModel  string `yaml:"openai_model"`

	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"` // 0 表示使用后端默认超时
	Retries     int           `yaml:"retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers"`
	RunTimeout time.Duration `yaml:"run_timeout"` // 0 表示使用默认 30 分钟
}

// DefaultLLMRetries 默认重试次数，总尝试次数为 retries+1
const DefaultLLMRetries = 2

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 返回仅包含默认值的配置，不读取文件与环境变量
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./compliance-output/.cache/runs.db",
		},
		LLM: LLMConfig{
			Provider:        "ollama",
			OllamaURL:       "http://localhost:11434",
			AnthropicAPIURL: "https://api.anthropic.com",
			AnthropicModel:  "claude-3-5-sonnet-20241022",
			OpenAIAPIURL:    "https://api.openai.com",
			OpenAIModel:     "gpt-4o-mini",
			Temperature:     0.3,
			Retries:         DefaultLLMRetries,
			RetryDelay:      time.Second,
		},
		Output: OutputConfig{
			Dir: "./compliance-output",
		},
		Queue: QueueConfig{
			Workers: 1,
		},
	}
}

func loadConfig() *Config {
	config := Default()

	// .env 只补充未设置的环境变量
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		klog.Warningf("[config.loadConfig] 读取 .env 失败: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			klog.Warningf("[config.loadConfig] 解析配置文件失败: path=%s, err=%v", configPath, err)
		}
	}

	applyEnv(config)
	normalize(config)
	return config
}

// normalize 修正配置文件中的非法取值
func normalize(config *Config) {
	if config.LLM.Retries < 0 {
		klog.Warningf("[config.normalize] llm.retries=%d 非法，使用默认值 %d", config.LLM.Retries, DefaultLLMRetries)
		config.LLM.Retries = DefaultLLMRetries
	}
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		config.LLM.OllamaURL = url
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.LLM.AnthropicAPIKey = apiKey
	}
	if url := os.Getenv("ANTHROPIC_API_URL"); url != "" {
		config.LLM.AnthropicAPIURL = url
	}
	if model := os.Getenv("ANTHROPIC_MODEL"); model != "" {
		config.LLM.AnthropicModel = model
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.OpenAIAPIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.OpenAIAPIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.LLM.OpenAIModel = model
	}
	if retries := os.Getenv("LLM_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n >= 0 {
			config.LLM.Retries = n
		}
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if outputDir := os.Getenv("OUTPUT_DIR"); outputDir != "" {
		config.Output.Dir = outputDir
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func UpdateConfig(newCfg *Config) {
	cfg = newCfg
}
