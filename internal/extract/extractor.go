package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const systemPromptTemplate = `You extract structured data from web page content.
Respond with a single JSON object matching this schema exactly, where scalar
tags name the value type and arrays describe repeated elements:
%s
Use null for fields the page does not contain. Do not add fields.`

// Extractor pulls a structured record out of a page.
type Extractor interface {
	Extract(ctx context.Context, url string, schema Schema) (map[string]any, error)
}

// Config holds LLM connection settings.
type Config struct {
	BaseURL string
	Token   string
	Model   string
}

// LLMExtractor implements Extractor against an OpenAI-compatible chat API.
type LLMExtractor struct {
	client llms.Model
	pages  PageFetcher
	logger *zap.Logger
}

// NewLLMExtractor builds the client and wires the page fetcher.
func NewLLMExtractor(cfg Config, pages PageFetcher, logger *zap.Logger) (*LLMExtractor, error) {
	if pages == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []openai.Option{openai.WithToken(cfg.Token)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	return &LLMExtractor{client: client, pages: pages, logger: logger}, nil
}

// NewLLMExtractorWithModel injects an existing model, used by tests.
func NewLLMExtractorWithModel(client llms.Model, pages PageFetcher, logger *zap.Logger) (*LLMExtractor, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if pages == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{client: client, pages: pages, logger: logger}, nil
}

// Extract downloads url and asks the model to fill schema from its content.
func (e *LLMExtractor) Extract(ctx context.Context, url string, schema Schema) (map[string]any, error) {
	page, err := e.pages.FetchPage(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(fmt.Sprintf(systemPromptTemplate, schemaJSON)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(string(page)),
			},
		},
	}

	response, err := e.client.GenerateContent(ctx, content,
		llms.WithTemperature(0.0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(response.Choices) < 1 {
		return nil, fmt.Errorf("model returned no choices")
	}

	text := stripFences(response.Choices[0].Content)
	var result map[string]any
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		e.logger.Debug("malformed extraction response", zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	return result, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
