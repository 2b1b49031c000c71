package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatgate/internal/domain"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	OnWarning    func(reason, detail string)
}

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
}

const openAIDefaultTimeout = 60 * time.Second

const defaultOpenAIModel = "gpt-3.5-turbo"

var openAIModelCanonical = map[string]string{
	"gpt-3.5-turbo": "gpt-3.5-turbo",
	"gpt-4o-mini":   "gpt-4o-mini",
	"gpt-4o":        "gpt-4o",
	"gpt-4":         "gpt-4",
}

var openAIModelAliases = map[string]string{
	"gpt-3.5":                "gpt-3.5-turbo",
	"gpt3.5":                 "gpt-3.5-turbo",
	"gpt-3-5":                "gpt-3.5-turbo",
	"gpt-35-turbo":           "gpt-3.5-turbo",
	"gpt35-turbo":            "gpt-3.5-turbo",
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	modelInput := strings.TrimSpace(opts.Model)
	model, reason := normalizeOpenAIModel(modelInput)
	if reason != "" && opts.OnWarning != nil {
		opts.OnWarning("model_"+reason, fmt.Sprintf("requested=%s resolved=%s", coalesce(modelInput, defaultOpenAIModel), model))
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIGenerator{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
	}, nil
}

// Name identifies the provider in logs.
func (o *OpenAIGenerator) Name() string { return openAIProviderName }

// Model returns the resolved model id.
func (o *OpenAIGenerator) Model() string { return o.model }

func (o *OpenAIGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", generationError(openAIProviderName, "empty_request", errors.New("no messages"))
	}
	payload := openAIChatRequest{
		Model:       o.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    make([]openAIMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", generationError(openAIProviderName, "encode_request", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", generationError(openAIProviderName, "build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", generationError(openAIProviderName, "http_request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var out openAIChatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 300 {
		detail := fmt.Errorf("openai status %d", resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			detail = fmt.Errorf("openai status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", generationError(openAIProviderName, fmt.Sprintf("http_%d", resp.StatusCode), detail)
	}
	if decodeErr != nil {
		return "", generationError(openAIProviderName, "decode_response", decodeErr)
	}
	if len(out.Choices) == 0 {
		return "", generationError(openAIProviderName, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", generationError(openAIProviderName, "empty_response", errors.New("empty response"))
	}
	return text, nil
}

var _ domain.Generator = (*OpenAIGenerator)(nil)

// normalizeOpenAIModel resolves aliases. Unknown ids are passed through
// with reason "unrecognized" so newer models keep working.
func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return trimmed, "unrecognized"
}
