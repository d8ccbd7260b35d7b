// Package reviewer wraps the external AI review service behind a small
// client that normalizes its failure surface into the stable error
// taxonomy. A guardrail block is an expected business outcome and comes
// back as a Review with Blocked set, never as an error.
package reviewer

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
	"github.com/DEFRA/content-reviewer-backend-sub000/internal/prompts"
)

// Reviewer is the capability the queue consumer depends on.
type Reviewer interface {
	Review(ctx context.Context, text string) (*Review, error)
}

// Review is the normalized outcome of one converse call.
type Review struct {
	Success         bool
	Blocked         bool
	Content         string
	StopReason      string
	SafetyVerdict   string
	FlaggedEntities []string
	Usage           domain.TokenUsage
}

// Config holds reviewer client configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	GuardrailID string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client calls the review model over its converse HTTP API.
type Client struct {
	client      *resty.Client
	endpoint    string
	model       string
	guardrailID string
	maxTokens   int
	temperature float64
}

// NewClient creates a reviewer client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	return &Client{
		client:      client,
		endpoint:    cfg.BaseURL + "/v1/converse",
		model:       cfg.Model,
		guardrailID: cfg.GuardrailID,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Converse API request/response structures
type converseRequest struct {
	Model       string            `json:"model"`
	Messages    []converseMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	Guardrail   string            `json:"guardrail,omitempty"`
}

type converseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type converseResponse struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Guardrail *struct {
		Action   string   `json:"action"`
		Entities []string `json:"entities,omitempty"`
	} `json:"guardrail,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

const stopReasonGuardrail = "guardrail_intervened"

// Review sends the two-message exchange (review context + content) and
// returns the normalized result. Failures come back as *Error carrying a
// taxonomy code.
func (c *Client) Review(ctx context.Context, text string) (*Review, error) {
	req := converseRequest{
		Model: c.model,
		Messages: []converseMessage{
			{Role: "system", Content: prompts.ReviewSystemPrompt},
			{Role: "user", Content: prompts.ReviewUserPrompt + text},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Guardrail:   c.guardrailID,
	}

	var resp converseResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(c.endpoint)

	if err != nil {
		return nil, classifyTransport(err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		providerType, providerMsg := "", ""
		if resp.Error != nil {
			providerType, providerMsg = resp.Error.Type, resp.Error.Message
		}
		return nil, classifyStatus(httpResp.StatusCode(), providerType, providerMsg)
	}

	review := &Review{
		Content:    resp.Content,
		StopReason: resp.StopReason,
		Usage: domain.TokenUsage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
			Total:  resp.Usage.TotalTokens,
		},
	}
	if review.Usage.Total == 0 {
		review.Usage.Total = review.Usage.Input + review.Usage.Output
	}

	if resp.Guardrail != nil {
		review.SafetyVerdict = resp.Guardrail.Action
		review.FlaggedEntities = resp.Guardrail.Entities
	}

	blocked := resp.StopReason == stopReasonGuardrail ||
		(resp.Guardrail != nil && resp.Guardrail.Action == "BLOCKED")
	if blocked {
		review.Blocked = true
		return review, nil
	}

	review.Success = true
	return review, nil
}
