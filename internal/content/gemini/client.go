// Package gemini generates post text through the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "adsposter/pkg/logx"
)

const (
	DefaultBaseURL  = "https://generativelanguage.googleapis.com"
	DefaultModel    = "gemini-2.5-pro"
	DefaultLanguage = "English"

	// maxResponseSize caps the response body read (10 MB).
	maxResponseSize = 10 * 1024 * 1024
)

type Config struct {
	BaseURL      string
	APIKey       string // used when the request carries no credential
	Model        string
	Language     string
	GoogleSearch bool
	Timeout      time.Duration
}

// Client implements poster.ContentGenerator.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}
}

// Generate asks the model for a finished post about postContext.
// Empty apiKey and model fall back to the configured defaults.
func (c *Client) Generate(ctx context.Context, postContext, apiKey, model string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		apiKey = c.cfg.APIKey
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingKey
	}
	if strings.TrimSpace(model) == "" {
		model = c.cfg.Model
	}

	req := c.buildRequest(postContext)
	path := "/v1beta/models/" + url.PathEscape(model) + ":generateContent"

	start := time.Now()
	body, status, err := c.doPost(ctx, path, apiKey, req)
	if err != nil {
		return "", err
	}
	if err := mapHTTPError(status, body); err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("gemini: unmarshal response: %w", err)
	}
	text := resp.text()
	c.log.Debug("content generated",
		logx.String("model", model),
		logx.Int("chars", len(text)),
		logx.Duration("took", time.Since(start)),
	)
	if text == "" {
		if reason := resp.blockReason(); reason != "" {
			return "", fmt.Errorf("%w: %s", ErrEmptyResponse, reason)
		}
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) buildRequest(postContext string) generateRequest {
	instruction := fmt.Sprintf(
		"You write Facebook posts. Reply with the final post only, no explanations, with full hashtags.\n"+
			"Context: %s\nLanguage: %s\nStructure: content and hashtags",
		postContext, c.cfg.Language,
	)
	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: postContext}}}},
		SystemInstruction: &content{
			Parts: []part{{Text: instruction}},
		},
		GenerationConfig: &generationConfig{
			ThinkingConfig: &thinkingConfig{ThinkingBudget: -1},
		},
	}
	if c.cfg.GoogleSearch {
		req.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}
	return req
}

func (c *Client) doPost(ctx context.Context, path, apiKey string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("gemini: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, mapConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("gemini: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// ---- wire types ----

type part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generationConfig struct {
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// text joins the non-thought parts of the first candidate.
func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

func (r generateResponse) blockReason() string {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return r.PromptFeedback.BlockReason
	}
	if len(r.Candidates) > 0 {
		return r.Candidates[0].FinishReason
	}
	return ""
}
