// Package gemini wraps the hosted generative-language API behind a small,
// fakeable contract.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrAPIKeyMissing is returned when no API key is configured. No network call is made.
var ErrAPIKeyMissing = errors.New("GEMINI_API_KEY is not set")

// Request is a single generateContent call.
type Request struct {
	Model             string
	SystemInstruction string
	Turns             []Turn
	JSONResponse      bool
}

// Generator produces the concatenated text of the first candidate.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// UpstreamError is a non-success response from the API. Body is for server-side
// logs only and must never be echoed to callers.
type UpstreamError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generative API returned %d %s", e.StatusCode, e.Status)
}

// Options configures a Client.
type Options struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
}

// Client is the genai-backed Generator.
type Client struct {
	genai        *genai.Client
	defaultModel string
}

var _ Generator = (*Client)(nil)

// NewClient creates a client. An empty API key yields a client whose every
// call fails fast with ErrAPIKeyMissing.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{defaultModel: opts.DefaultModel}
	if strings.TrimSpace(opts.APIKey) == "" {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.genai = gc
	return c, nil
}

// Configured reports whether an API key was supplied.
func (c *Client) Configured() bool {
	return c != nil && c.genai != nil
}

// Generate issues one generateContent call. It does not retry.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if !c.Configured() {
		return "", ErrAPIKeyMissing
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		var role genai.Role = genai.RoleUser
		if t.Role == TurnRoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.JSONResponse {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", classify(err)
	}
	return FirstCandidateText(resp), nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return upstreamFrom(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return upstreamFrom(*apiErrPtr)
	}
	return fmt.Errorf("generate content: %w", err)
}

func upstreamFrom(apiErr genai.APIError) *UpstreamError {
	body, err := json.Marshal(apiErr)
	if err != nil {
		body = []byte(apiErr.Message)
	}
	return &UpstreamError{
		StatusCode: apiErr.Code,
		Status:     apiErr.Status,
		Body:       string(body),
	}
}

// FirstCandidateText concatenates the text parts of the first candidate.
// A response without candidates yields "".
func FirstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}
