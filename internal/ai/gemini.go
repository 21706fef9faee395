package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxAttempts   int
	BaseDelay     time.Duration
	Timeout       time.Duration
	Temperature   float32
}

// Client talks to the Gemini generateContent REST endpoint. Generate is the
// turn orchestrator: retries with model fallback and single-hop tool calls.
type Client struct {
	cfg    Config
	http   *http.Client
	tools  *ToolRegistry
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, tools *ToolRegistry, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tools:  tools,
		logger: logger.Named("orchestrator"),
		sleep:  sleepContext,
	}
}

type Request struct {
	History           []*genai.Content
	SystemInstruction string
}

type Result struct {
	// Text is the reply as the learner sees it.
	Text string
	// StoredText is Text without inline media; Media carries those parts.
	StoredText string
	Media      []*genai.Part
	Model    string
	Attempts int
	Raw      *genai.GenerateContentResponse
	// set when the reply was produced by a tool instead of the model
	ToolCall *genai.FunctionCall
	ToolErr  error
}

type generateRequest struct {
	Contents          []*genai.Content  `json:"contents"`
	SystemInstruction *genai.Content    `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool     `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature      *float32 `json:"temperature,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

// Generate sends the history to the model. 429/503 responses are retried
// with exponential backoff; the first attempt uses the primary model and
// every retry the fallback model. A function call in the reply is executed
// through the tool registry and its result stands in for the model text.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if len(req.History) == 0 {
		return nil, errors.New("gemini: empty history")
	}

	body := generateRequest{
		Contents: req.History,
		Tools:    c.tools.Tools(),
		GenerationConfig: &generationConfig{
			Temperature: genai.Ptr(c.cfg.Temperature),
		},
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		body.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	resp, model, attempts, err := c.generateWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	res := &Result{Model: model, Attempts: attempts, Raw: resp}
	text, call, err := readCandidate(model, resp)
	if err != nil {
		return nil, err
	}

	if call == nil {
		res.Text, res.StoredText = text, text
		return res, nil
	}

	res.ToolCall = call
	start := time.Now()
	out, toolErr := c.tools.Dispatch(ctx, call)
	res.Text, res.StoredText, res.Media, res.ToolErr = out.Display(), out.Text, out.Media, toolErr
	if res.ToolErr != nil {
		c.logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.Duration("cost", time.Since(start)),
			zap.Error(res.ToolErr))
	} else {
		c.logger.Info("tool call served",
			zap.String("tool", call.Name),
			zap.Duration("cost", time.Since(start)))
	}
	return res, nil
}

func (c *Client) generateWithRetry(ctx context.Context, body generateRequest) (*genai.GenerateContentResponse, string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		model := c.cfg.Model
		if attempt > 1 && c.cfg.FallbackModel != "" {
			model = c.cfg.FallbackModel
		}

		resp, err := c.generateContent(ctx, model, body)
		if err == nil {
			return resp, model, attempt, nil
		}
		if !IsTransient(err) {
			return nil, model, attempt, err
		}
		lastErr = err
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
		c.logger.Warn("model busy, backing off",
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, model, attempt, err
		}
	}
	return nil, "", c.cfg.MaxAttempts, fmt.Errorf("gemini: giving up after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// CompleteJSON makes one JSON-mode request against the primary model with
// no tools and no retries.
func (c *Client) CompleteJSON(ctx context.Context, systemInstruction, prompt string) (string, error) {
	body := generateRequest{
		Contents: []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		GenerationConfig: &generationConfig{
			Temperature:      genai.Ptr[float32](0.4),
			ResponseMIMEType: "application/json",
		},
	}
	if systemInstruction != "" {
		body.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	resp, err := c.generateContent(ctx, c.cfg.Model, body)
	if err != nil {
		return "", err
	}
	text, _, err := readCandidate(c.cfg.Model, resp)
	return text, err
}

func (c *Client) generateContent(ctx context.Context, model string, body generateRequest) (*genai.GenerateContentResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{Model: model, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, statusError(model, resp.StatusCode, string(snippet))
	}

	var decoded genai.GenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &UpstreamError{Model: model, Message: "decode response", Cause: err}
	}
	return &decoded, nil
}

// readCandidate returns the text of the first candidate, or its first
// function call.
func readCandidate(model string, resp *genai.GenerateContentResponse) (string, *genai.FunctionCall, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil, &UpstreamError{StatusCode: http.StatusOK, Model: model, Message: "response has no candidates"}
	}

	cand := resp.Candidates[0]
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			return "", p.FunctionCall, nil
		}
		if p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", nil, &UpstreamError{
			StatusCode: http.StatusOK,
			Model:      model,
			Message:    fmt.Sprintf("response has no text (finish reason %q)", cand.FinishReason),
		}
	}
	return text, nil, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
