// Package llm implements the analysis collaborator over an OpenAI-compatible
// chat completions endpoint.
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

	"github.com/okian/drivescore/internal/domain/analysis"
	"github.com/okian/drivescore/internal/domain/scoring"
)

// Defaults for an OpenAI deployment.
const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
	defaultAttempts    = 2
)

// Client asks a chat model for a driving-style analysis.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	attempts    int
	http        *http.Client
}

var _ analysis.Analyzer = (*Client)(nil)

// Error is returned for every failed analysis. Kind is one of the analysis
// sentinel errors so callers can classify it with errors.Is.
type Error struct {
	Kind    error
	Reason  string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("analysis failed: %s: %v", e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("analysis failed: %s", e.Reason)
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Wrapped != nil {
		errs = append(errs, e.Wrapped)
	}
	return errs
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithModel sets the chat model.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		if t >= 0 {
			c.temperature = t
		}
	}
}

// WithTimeout bounds one Analyze call including retries.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxAttempts sets how many requests Analyze may make.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		attempts:    defaultAttempts,
		http:        &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze sends the scores to the model and parses its JSON answer. Parse and
// transport failures are retried until the attempts or the timeout run out.
func (c *Client) Analyze(ctx context.Context, scores scoring.Scores) (analysis.Result, error) {
	if c.apiKey == "" {
		return analysis.Result{}, &Error{Kind: analysis.ErrNotConfigured, Reason: "missing api key"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := analysis.Prompt(scores)
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		content, err := c.complete(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		res, err := parseResult(content)
		if err != nil {
			lastErr = err
			continue
		}
		return res, nil
	}

	if ctx.Err() != nil {
		return analysis.Result{}, &Error{Kind: analysis.ErrUnavailable, Reason: "deadline reached", Wrapped: ctx.Err()}
	}
	return analysis.Result{}, &Error{
		Kind:    kindOf(lastErr),
		Reason:  fmt.Sprintf("failed after %d attempts", c.attempts),
		Wrapped: lastErr,
	}
}

func kindOf(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind != nil {
		return e.Kind
	}
	return analysis.ErrUnavailable
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends a single request and returns the raw message content.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: analysis.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: analysis.ErrUnavailable, Reason: "request failed", Wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: analysis.ErrUnavailable, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &Error{Kind: analysis.ErrMalformed, Reason: "decode response", Wrapped: err}
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return "", &Error{Kind: analysis.ErrMalformed, Reason: "empty completion"}
	}
	return cr.Choices[0].Message.Content, nil
}

type course struct {
	CourseName  string `json:"course_name"`
	Description string `json:"description"`
}

// parseResult reads the JSON object in content. recommended_course may be a
// plain string or an object with a name and a description.
func parseResult(content string) (analysis.Result, error) {
	raw := extractJSON(content)
	if raw == "" {
		return analysis.Result{}, &Error{Kind: analysis.ErrMalformed, Reason: "no JSON object in completion"}
	}

	var body struct {
		DrivingStyle      string          `json:"driving_style"`
		RecommendedCourse json.RawMessage `json:"recommended_course"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return analysis.Result{}, &Error{Kind: analysis.ErrMalformed, Reason: "invalid JSON", Wrapped: err}
	}

	res := analysis.Result{DrivingStyle: strings.TrimSpace(body.DrivingStyle)}
	if len(body.RecommendedCourse) > 0 {
		var s string
		var obj course
		switch {
		case json.Unmarshal(body.RecommendedCourse, &s) == nil:
			res.RecommendedCourse = strings.TrimSpace(s)
		case json.Unmarshal(body.RecommendedCourse, &obj) == nil:
			res.RecommendedCourse = joinCourse(obj)
		}
	}

	if err := res.Validate(); err != nil {
		return analysis.Result{}, &Error{Kind: analysis.ErrMalformed, Reason: "missing field", Wrapped: err}
	}
	return res, nil
}

func joinCourse(c course) string {
	name := strings.TrimSpace(c.CourseName)
	desc := strings.TrimSpace(c.Description)
	switch {
	case name == "":
		return desc
	case desc == "":
		return name
	default:
		return name + " - " + desc
	}
}

// extractJSON finds the outermost JSON object in s, skipping braces inside
// quoted strings. Models sometimes wrap the object in prose or fences.
func extractJSON(s string) string {
	start, depth := -1, 0
	inString, escaped := false, false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
