package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSystemPrompt is the instruction record prepended to every upstream call.
const DefaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely. " +
	"When the user shares files, use their contents to answer."

// Profile is configuration to start main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol)
	LLMProvider    string // Provider identifier: openai, deepseek, zai, siliconflow, dashscope, openrouter, ollama
	LLMAPIKey      string
	LLMBaseURL     string // optional, has default per provider
	LLMModel       string
	LLMTimeout     int // request timeout in seconds (default: 120)
	LLMMaxTokens   int
	LLMTemperature float32
	SystemPrompt   string

	// Exchange admission
	MaxConcurrentExchanges int
	ExchangeRatePerMinute  int

	// AllowedOrigins lists the browser origins the API answers; empty allows any.
	AllowedOrigins []string

	Mode     string
	Addr     string
	Port     int
	UNIXSock string
	Data     string
	Driver   string
	DSN      string
	Secret   string
	LogLevel string
	Version  string
}

// Provider default configurations for LLM.
// Used when the base URL or model is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"zai": {
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Model:   "glm-4.7",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"dashscope": {
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:   "qwen-max-latest",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "deepseek/deepseek-chat",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMConfigured returns true if an upstream API key is configured.
// Local providers (ollama) work without one.
func (p *Profile) IsLLMConfigured() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

// FromEnv loads LLM and admission configuration from environment variables.
// Values already set on the profile (e.g. from flags) win over the environment.
func (p *Profile) FromEnv() {
	p.LLMProvider = firstNonEmpty(p.LLMProvider, getEnvOrDefault("DIVINECHAT_LLM_PROVIDER", "openai"))
	p.LLMAPIKey = firstNonEmpty(p.LLMAPIKey, getEnvOrDefault("DIVINECHAT_LLM_API_KEY", ""))
	p.LLMBaseURL = firstNonEmpty(p.LLMBaseURL, getEnvOrDefault("DIVINECHAT_LLM_BASE_URL", ""))
	p.LLMModel = firstNonEmpty(p.LLMModel, getEnvOrDefault("DIVINECHAT_LLM_MODEL", ""))
	if p.LLMTimeout <= 0 {
		p.LLMTimeout = getEnvOrDefaultInt("DIVINECHAT_LLM_TIMEOUT_SECONDS", 120)
	}
	if p.LLMMaxTokens <= 0 {
		p.LLMMaxTokens = getEnvOrDefaultInt("DIVINECHAT_LLM_MAX_TOKENS", 2048)
	}
	if p.LLMTemperature <= 0 {
		p.LLMTemperature = getEnvOrDefaultFloat("DIVINECHAT_LLM_TEMPERATURE", 0.7)
	}
	p.SystemPrompt = firstNonEmpty(p.SystemPrompt, getEnvOrDefault("DIVINECHAT_SYSTEM_PROMPT", DefaultSystemPrompt))

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("Unknown LLM provider, treating as generic OpenAI-compatible endpoint", "provider", p.LLMProvider)
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	if p.MaxConcurrentExchanges <= 0 {
		p.MaxConcurrentExchanges = getEnvOrDefaultInt("DIVINECHAT_MAX_CONCURRENT_EXCHANGES", 16)
	}
	if p.ExchangeRatePerMinute <= 0 {
		p.ExchangeRatePerMinute = getEnvOrDefaultInt("DIVINECHAT_EXCHANGE_RATE_PER_MINUTE", 30)
	}
	p.Secret = firstNonEmpty(p.Secret, getEnvOrDefault("DIVINECHAT_SECRET", ""))
	if len(p.AllowedOrigins) == 0 {
		p.AllowedOrigins = SplitList(os.Getenv("DIVINECHAT_ALLOWED_ORIGINS"))
	}
}

// SplitList splits a comma-separated value, dropping blank entries.
func SplitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Driver {
	case "sqlite", "postgres", "mongo":
	case "":
		p.Driver = "sqlite"
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Mode == "prod" && p.Secret == "" {
		return errors.New("secret is required in prod mode")
	}
	if p.Secret == "" {
		// Dev-only default so local tokens keep working across restarts.
		p.Secret = "divinechat-dev-secret"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "divinechat")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/divinechat"
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("divinechat_%s.db", p.Mode))
	}
	if p.Driver != "sqlite" && p.DSN == "" {
		return errors.Errorf("dsn is required for driver %s", p.Driver)
	}

	if p.MaxConcurrentExchanges <= 0 {
		p.MaxConcurrentExchanges = 16
	}
	if p.ExchangeRatePerMinute <= 0 {
		p.ExchangeRatePerMinute = 30
	}
	return nil
}

// SlogLevel maps the configured log level onto slog.
func (p *Profile) SlogLevel() slog.Level {
	switch strings.ToLower(p.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
