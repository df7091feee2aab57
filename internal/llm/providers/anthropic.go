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

const anthropicAPIVersion = "2023-06-01"

// Anthropic implements llm.Provider against the Messages API's vision
// content-block convention: an array of {type:"text"} and
// {type:"image", source:{type:"base64", ...}} blocks, with the system
// prompt carried as a top-level field rather than a message.
type Anthropic struct {
	httpClient *http.Client

	baseURL string
	apiKey  string
	model   string
}

func NewAnthropic() *Anthropic {
	return &Anthropic{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    "https://api.anthropic.com/v1",
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Configure(settings map[string]any) error {
	apiKey, _ := settings["api_key"].(string)
	model, _ := settings["model"].(string)
	if baseURL, ok := settings["base_url"].(string); ok && baseURL != "" {
		p.baseURL = baseURL
	}
	if model == "" {
		return apperr.New(apperr.KindConfigInvalid, "anthropic provider requires model")
	}
	p.apiKey = apiKey
	p.model = model
	return nil
}

func (p *Anthropic) IsConfigured() bool { return p.apiKey != "" && p.model != "" }

func (p *Anthropic) Capabilities() llm.Capabilities {
	return llm.Capabilities{AcceptsInlineImages: true, AcceptsImageURLs: false, SupportsDaySummary: true}
}

type anthropicContentBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Anthropic) Call(ctx context.Context, req llm.Request) (llm.Response, error) {
	if !p.IsConfigured() {
		return llm.Response{}, apperr.New(apperr.KindLLMAuth, "anthropic provider not configured")
	}

	blocks := make([]anthropicContentBlock, 0, len(req.Frames)+1)
	for _, f := range req.Frames {
		blocks = append(blocks, anthropicContentBlock{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: "image/jpeg",
				Data:      base64.StdEncoding.EncodeToString(f.Bytes),
			},
		})
	}
	blocks = append(blocks, anthropicContentBlock{Type: "text", Text: req.UserPrompt})

	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		System:    req.SystemPrompt,
		MaxTokens: 4096,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindInternal, "marshal anthropic request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindInternal, "build anthropic request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMUnavailable, "anthropic request failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMUnavailable, "read anthropic response", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return llm.Response{}, apperr.Wrap(apperr.KindLLMBadSchema, "decode anthropic response envelope", err)
	}

	if kind, ok := classifyStatus(httpResp.StatusCode); ok {
		msg := string(raw)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return llm.Response{}, apperr.New(kind, fmt.Sprintf("anthropic provider returned %d: %s", httpResp.StatusCode, msg))
	}

	var text string
	for _, c := range parsed.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	if text == "" {
		return llm.Response{}, apperr.New(apperr.KindLLMBadSchema, "anthropic response contained no text content block")
	}

	return llm.Response{
		Text:         text,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}
