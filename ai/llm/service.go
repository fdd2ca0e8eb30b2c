package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/mindmesh/ai/metrics"
)

// Per-operation sampling parameters.
const (
	chatTemperature     float32 = 0.7
	classifyTemperature float32 = 0.1
	classifyMaxTokens           = 100
	piiTemperature      float32 = 0.1
	piiMaxTokens                = 256
	analyzeTemperature  float32 = 0.2
	analyzeMaxTokens            = 600
)

// Service is the typed surface over the completion endpoint. Classification,
// PII detection and analysis never raise: upstream failures collapse to the
// operation's neutral default. Chat and ChatStream surface their errors so the
// pipeline can fail the turn.
type Service interface {
	// ClassifyQuery decides triviality and response length for a user turn.
	ClassifyQuery(ctx context.Context, query string) *QueryClassification

	// Chat performs a blocking completion grounded in the optional context block.
	Chat(ctx context.Context, messages []Message, contextBlock string, length ResponseLength) (string, error)

	// ChatStream performs a streaming completion. The content channel carries
	// UTF-8 chunks and is closed on end-of-stream; a mid-stream failure is
	// delivered on the error channel instead.
	ChatStream(ctx context.Context, messages []Message, contextBlock string, length ResponseLength) (<-chan string, <-chan error)

	// DetectPII classifies a (query, response) pair for personal information.
	DetectPII(ctx context.Context, userQuery, assistantResponse string) *PIIDetection

	// AnalyzeConversation extracts topics, insights and a summary from a
	// finished conversation.
	AnalyzeConversation(ctx context.Context, messages []Message) *ConversationAnalysis
}

// Config represents LLM service configuration.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32 // default: 0.7 for chat
	Timeout     int     // request timeout in seconds (default: 120)
}

type service struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	metrics *metrics.Exporter
}

// Provider base URLs when the config leaves BaseURL empty.
var providerBaseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"ollama":      "http://localhost:11434/v1",
}

// NewService creates a new LLM Service over any OpenAI-compatible provider.
// The exporter is optional; when present every call is counted and timed by
// operation.
func NewService(cfg *Config, exporter *metrics.Exporter) (Service, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model required")
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient(timeout)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	} else if baseURL, ok := providerBaseURLs[cfg.Provider]; ok {
		clientConfig.BaseURL = baseURL
	}

	return &service{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: timeout,
		metrics: exporter,
	}, nil
}

func (s *service) record(operation string, start time.Time, success bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordLLMCall(operation, time.Since(start), success)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// systemPrompt assembles the persona plus the labeled context block.
func systemPrompt(contextBlock string) string {
	if contextBlock == "" {
		return systemPersona
	}
	return systemPersona + "\n\n" + contextLabel + "\n" + contextBlock
}

func toOpenAIMessages(system string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (s *service) ClassifyQuery(ctx context.Context, query string) *QueryClassification {
	start := time.Now()
	success := false
	defer func() { s.record("classify", start, success) }()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: classifyTemperature,
		MaxTokens:   classifyMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: classifyPrompt + query},
		},
	})
	if err != nil {
		slog.Warn("llm.classify failed", "error", err)
		return DefaultClassification()
	}
	if len(resp.Choices) == 0 {
		return DefaultClassification()
	}
	result, ok := parseClassification(resp.Choices[0].Message.Content)
	if !ok {
		slog.Warn("llm.classify returned unparseable JSON")
		return DefaultClassification()
	}
	success = true
	return result
}

func (s *service) Chat(ctx context.Context, messages []Message, contextBlock string, length ResponseLength) (string, error) {
	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: chatTemperature,
		MaxTokens:   length.TokenCap(),
		Messages:    toOpenAIMessages(systemPrompt(contextBlock), messages),
	})
	if err != nil {
		s.record("chat", start, false)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		s.record("chat", start, false)
		return "", fmt.Errorf("chat completion returned no choices")
	}
	s.record("chat", start, true)
	return resp.Choices[0].Message.Content, nil
}

func (s *service) ChatStream(ctx context.Context, messages []Message, contextBlock string, length ResponseLength) (<-chan string, <-chan error) {
	contentCh := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(errCh)

		start := time.Now()
		success := false
		defer func() { s.record("chat_stream", start, success) }()

		stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       s.model,
			Temperature: chatTemperature,
			MaxTokens:   length.TokenCap(),
			Messages:    toOpenAIMessages(systemPrompt(contextBlock), messages),
			Stream:      true,
		})
		if err != nil {
			errCh <- fmt.Errorf("chat stream open failed: %w", err)
			return
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					success = true
					return
				}
				if ctx.Err() != nil {
					return
				}
				errCh <- fmt.Errorf("chat stream failed: %w", err)
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case contentCh <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	return contentCh, errCh
}

func (s *service) DetectPII(ctx context.Context, userQuery, assistantResponse string) *PIIDetection {
	start := time.Now()
	success := false
	defer func() { s.record("pii", start, success) }()

	prompt := fmt.Sprintf("%s\nUser query:\n%s\n\nAssistant response:\n%s", piiPrompt, userQuery, assistantResponse)
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: piiTemperature,
		MaxTokens:   piiMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		slog.Warn("llm.detect_pii failed", "error", err)
		return DefaultPIIDetection()
	}
	if len(resp.Choices) == 0 {
		return DefaultPIIDetection()
	}
	result, ok := parsePIIDetection(resp.Choices[0].Message.Content)
	if !ok {
		slog.Warn("llm.detect_pii returned unparseable JSON")
		return DefaultPIIDetection()
	}
	success = true
	return result
}

func (s *service) AnalyzeConversation(ctx context.Context, messages []Message) *ConversationAnalysis {
	start := time.Now()
	success := false
	defer func() { s.record("analyze", start, success) }()

	var transcript strings.Builder
	for _, m := range messages {
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Content)
		transcript.WriteString("\n")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: analyzeTemperature,
		MaxTokens:   analyzeMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: analyzePrompt + "\nTranscript:\n" + transcript.String()},
		},
	})
	if err != nil {
		slog.Warn("llm.analyze failed", "error", err)
		return DefaultAnalysis()
	}
	if len(resp.Choices) == 0 {
		return DefaultAnalysis()
	}
	result, ok := parseAnalysis(resp.Choices[0].Message.Content)
	if !ok {
		slog.Warn("llm.analyze returned unparseable JSON")
		return DefaultAnalysis()
	}
	success = true
	return result
}
