package arbiter

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/resilience"
)

const systemPrompt = `You arbitrate between conflicting answers to the question
"which utility provider serves this location?". Independent data sources have
returned different providers. Pick the single most likely provider from the
offered candidates, using the sources' authority (base confidence), the
location context, and your knowledge of utility service territories.

Respond with ONLY a JSON object, no prose around it:
{"selected_candidate_name": "<exactly one of the offered candidate names>",
 "confidence": <0-100>,
 "reasoning": "<one or two sentences>"}`

// Claude is an Arbiter backed by the Anthropic Messages API.
type Claude struct {
	client    sdk.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	retry     resilience.RetryConfig
}

// ClaudeOption configures the Claude arbiter.
type ClaudeOption func(*Claude)

// WithModel overrides the model ID.
func WithModel(model string) ClaudeOption {
	return func(c *Claude) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *Claude) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxTokens sets the response token cap.
func WithMaxTokens(n int64) ClaudeOption {
	return func(c *Claude) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewClaude creates a Claude-backed arbiter. Transient API failures are
// retried once before the caller falls back to deterministic resolution.
func NewClaude(apiKey string, opts ...ClaudeOption) *Claude {
	c := &Claude{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     "claude-haiku-4-5-20251001",
		maxTokens: 512,
		timeout:   15 * time.Second,
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 500 * time.Millisecond,
			OnRetry:        resilience.RetryLogger("anthropic", "arbitrate"),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Arbitrate implements Arbiter.
func (c *Claude) Arbitrate(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "arbiter: marshal request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*sdk.Message, error) {
		return c.client.Messages.New(ctx, sdk.MessageNewParams{
			Model:     sdk.Model(c.model),
			MaxTokens: c.maxTokens,
			System: []sdk.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []sdk.MessageParam{
				sdk.NewUserMessage(sdk.NewTextBlock(string(payload))),
			},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "arbiter: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}

	zap.L().Debug("arbiter response",
		zap.String("model", c.model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	resp, err := ParseResponse(text.String())
	if err != nil {
		return nil, err
	}
	return ValidateResponse(resp, req.Offered())
}

// ParseResponse extracts the structured Response from model output text.
// Tolerates markdown code fences and surrounding prose by slicing from the
// first '{' to the last '}'.
func ParseResponse(text string) (*Response, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrEmptyResponse
	}

	var resp Response
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return nil, eris.Wrap(err, "arbiter: parse response")
	}
	return &resp, nil
}
