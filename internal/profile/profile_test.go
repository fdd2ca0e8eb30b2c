package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir()}
	require.NoError(t, p.Validate())

	assert.Equal(t, "sqlite", p.Driver)
	assert.Contains(t, p.DSN, "mindmesh_dev.db")
	assert.Equal(t, 120, p.LLMTimeout)
	assert.Equal(t, 120, p.ProcessorIdleSeconds)
	assert.Equal(t, 10, p.ProcessorBatchSize)
	assert.Equal(t, "text-embedding-3-small", p.EmbeddingModel)
	assert.Equal(t, 1024, p.EmbeddingDimensions)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	p := &Profile{Mode: "dev", Driver: "mysql"}
	assert.Error(t, p.Validate())
}

func TestValidateRequiresDSNForPostgres(t *testing.T) {
	p := &Profile{Mode: "dev", Driver: "postgres"}
	assert.Error(t, p.Validate())

	p.DSN = "postgres://localhost:5432/mindmesh"
	assert.NoError(t, p.Validate())
}

func TestValidateFillsProviderDefaults(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), LLMProvider: "deepseek"}
	require.NoError(t, p.Validate())
	assert.Equal(t, "https://api.deepseek.com", p.LLMBaseURL)
	assert.Equal(t, "deepseek-chat", p.LLMModel)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	p := &Profile{Mode: "dev", Data: t.TempDir(), LLMProvider: "acme"}
	assert.Error(t, p.Validate())
}

func TestEnablementChecks(t *testing.T) {
	p := &Profile{}
	assert.False(t, p.IsLLMEnabled())
	assert.False(t, p.IsEmbeddingEnabled())

	p.LLMProvider = "openai"
	assert.True(t, p.IsLLMEnabled())

	p.EmbeddingAPIKey = "key"
	assert.True(t, p.IsEmbeddingEnabled())
}
