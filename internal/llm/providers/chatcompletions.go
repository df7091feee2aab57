// Package providers holds the out-of-the-box internal/llm.Provider
// implementations: a chat-completions-compatible vision backend, an
// Anthropic-style vision backend, and a local CLI-subprocess backend.
// Each is a thin adapter translating llm.Request/Response to one wire
// format; the shared sampling/retry/repair/audit policy lives entirely in
// internal/llm and is never duplicated here.
package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deskrecall/deskrecalld/internal/apperr"
	"github.com/deskrecall/deskrecalld/internal/llm"
)

// ChatCompletions implements llm.Provider against any chat-completions
// compatible HTTP API (OpenAI and its many compatible self-hosted/hosted
// mirrors) using the vision content-part convention: an array of
// {type:"text"} and {type:"image_url"} parts inside one user message.
type ChatCompletions struct {
	name       string
	httpClient *http.Client

	baseURL string
	apiKey  string
	model   string
}

// NewChatCompletions constructs an unconfigured provider; Configure must be
// called before use.
func NewChatCompletions(name string) *ChatCompletions {
	return &ChatCompletions{
		name:       name,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *ChatCompletions) Name() string { return p.name }

// Configure accepts {"base_url", "api_key", "model"}. api_key is read from
// settings only; no environment variable is consulted when it is absent.
func (p *ChatCompletions) Configure(settings map[string]any) error {
	baseURL, _ := settings["base_url"].(string)
	apiKey, _ := settings["api_key"].(string)
	model, _ := settings["model"].(string)
	if baseURL == "" {
		return apperr.New(apperr.KindConfigInvalid, "chat-completions provider requires base_url")
	}
	if model == "" {
		return apperr.New(apperr.KindConfigInvalid, "chat-completions provider requires model")
	}
	p.baseURL = baseURL
	p.model = model
	p.apiKey = apiKey
	return nil
}

func (p *ChatCompletions) IsConfigured() bool { return p.baseURL != "" && p.model != "" }

func (p *ChatCompletions) Capabilities() llm.Capabilities {
	return llm.Capabilities{AcceptsInlineImages: true, AcceptsImageURLs: true, SupportsDaySummary: true}
}

type ccContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *ccImageURLRef `json:"image_url,omitempty"`
}

type ccImageURLRef struct {
	URL string `json:"url"`
}

type ccMessage struct {
	Role    string          `json:"role"`
	Content []ccContentPart `json:"content"`
}

type ccRequest struct {
	Model    string      `json:"model"`
	Messages []ccMessage `json:"messages"`
}

type ccResponse struct {
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *ChatCompletions) Call(ctx context.Context, req llm.Request) (llm.Response, error) {
	if !p.IsConfigured() {
		return llm.Response{}, apperr.New(apperr.KindLLMAuth, "chat-completions provider not configured")
	}

	parts := []ccContentPart{{Type: "text", Text: req.UserPrompt}}
	for _, f := range req.Frames {
		parts = append(parts, ccContentPart{
			Type:     "image_url",
			ImageURL: &ccImageURLRef{URL: inlineDataURL(f)},
		})
	}

	body, err := json.Marshal(ccRequest{
		Model: p.model,
		Messages: []ccMessage{
			{Role: "system", Content: []ccContentPart{{Type: "text", Text: req.SystemPrompt}}},
			{Role: "user", Content: parts},
		},
	})
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindInternal, "marshal chat-completions request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindInternal, "build chat-completions request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMUnavailable, "chat-completions request failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMUnavailable, "read chat-completions response", err)
	}

	var parsed ccResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMBadSchema, "decode chat-completions response envelope", err)
	}

	if kind, ok := classifyStatus(httpResp.StatusCode); ok {
		msg := string(raw)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return llm.Response{}, apperr.New(kind, fmt.Sprintf("chat-completions provider returned %d: %s", httpResp.StatusCode, msg))
	}

	if len(parsed.Choices) == 0 {
		return llm.Response{}, apperr.New(apperr.KindLLMBadSchema, "chat-completions response contained no choices")
	}

	return llm.Response{
		Text:         parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// classifyStatus maps an HTTP status code to the apperr taxonomy's
// LLM-specific kinds. ok is false for 2xx responses.
func classifyStatus(status int) (apperr.Kind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.KindLLMAuth, true
	case status == http.StatusTooManyRequests:
		return apperr.KindLLMRateLimited, true
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperr.KindLLMBadSchema, true
	case status >= 500:
		return apperr.KindLLMUnavailable, true
	default:
		return apperr.KindLLMUnavailable, true
	}
}

func inlineDataURL(f llm.Frame) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(f.Bytes)
}
