package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol)
	// All providers (openai, deepseek, siliconflow, ollama, zai) use the same config.
	LLMProvider string // Provider identifier: openai, deepseek, siliconflow, dashscope, openrouter, ollama, zai
	LLMAPIKey   string
	LLMBaseURL  string // Optional, has default per provider
	LLMModel    string
	LLMTimeout  int // Request timeout in seconds (default: 120)

	// Embedding configuration
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingDimensions int

	// Deferred processor knobs
	ProcessorIdleSeconds int // Conversations idle longer than this are eligible (default: 120)
	ProcessorBatchSize   int // Max conversations per run (default: 10)

	Mode    string // dev, prod, demo
	Addr    string
	Port    int
	Data    string
	Driver  string // sqlite, postgres
	DSN     string
	Version string
}

// Provider default configurations for LLM.
// Used when LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
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
	"zai": {
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Model:   "glm-4.7",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// FromEnv overrides profile fields from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnv("MINDMESH_LLM_PROVIDER", p.LLMProvider)
	p.LLMAPIKey = getEnv("MINDMESH_LLM_API_KEY", p.LLMAPIKey)
	p.LLMBaseURL = getEnv("MINDMESH_LLM_BASE_URL", p.LLMBaseURL)
	p.LLMModel = getEnv("MINDMESH_LLM_MODEL", p.LLMModel)
	p.LLMTimeout = getEnvInt("MINDMESH_LLM_TIMEOUT", p.LLMTimeout)

	p.EmbeddingAPIKey = getEnv("MINDMESH_EMBEDDING_API_KEY", p.EmbeddingAPIKey)
	p.EmbeddingBaseURL = getEnv("MINDMESH_EMBEDDING_BASE_URL", p.EmbeddingBaseURL)
	p.EmbeddingModel = getEnv("MINDMESH_EMBEDDING_MODEL", p.EmbeddingModel)
	p.EmbeddingDimensions = getEnvInt("MINDMESH_EMBEDDING_DIMENSIONS", p.EmbeddingDimensions)

	p.ProcessorIdleSeconds = getEnvInt("MINDMESH_PROCESSOR_IDLE_SECONDS", p.ProcessorIdleSeconds)
	p.ProcessorBatchSize = getEnvInt("MINDMESH_PROCESSOR_BATCH_SIZE", p.ProcessorBatchSize)

	p.Driver = getEnv("MINDMESH_DRIVER", p.Driver)
	p.DSN = getEnv("MINDMESH_DSN", p.DSN)
	p.Data = getEnv("MINDMESH_DATA", p.Data)
}

// Validate normalizes defaults and rejects unusable configurations.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q (sqlite, postgres)", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn required for postgres driver")
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		if p.Data == "" {
			p.Data = "."
		}
		absData, err := filepath.Abs(p.Data)
		if err != nil {
			return errors.Wrapf(err, "unable to resolve data directory %q", p.Data)
		}
		if _, err := os.Stat(absData); err != nil {
			return errors.Wrapf(err, "data directory %q not accessible", absData)
		}
		p.Data = absData
		p.DSN = filepath.Join(absData, fmt.Sprintf("mindmesh_%s.db", p.Mode))
	}

	if p.LLMTimeout <= 0 {
		p.LLMTimeout = 120
	}
	if p.LLMProvider != "" {
		defaults, ok := llmProviderDefaults[p.LLMProvider]
		if !ok {
			return errors.Errorf("unknown LLM provider %q", p.LLMProvider)
		}
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}
	if p.EmbeddingModel == "" {
		p.EmbeddingModel = "text-embedding-3-small"
	}
	if p.EmbeddingDimensions <= 0 {
		p.EmbeddingDimensions = 1024
	}

	if p.ProcessorIdleSeconds <= 0 {
		p.ProcessorIdleSeconds = 120
	}
	if p.ProcessorBatchSize <= 0 {
		p.ProcessorBatchSize = 10
	}
	return nil
}

// IsLLMEnabled reports whether an LLM provider is configured.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMProvider != ""
}

// IsEmbeddingEnabled reports whether semantic recall can be served.
func (p *Profile) IsEmbeddingEnabled() bool {
	return p.EmbeddingAPIKey != "" || p.EmbeddingBaseURL != ""
}
