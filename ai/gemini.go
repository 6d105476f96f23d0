// Package ai calls the Gemini image-generation backend. Failures are
// returned as structured service errors, never surfaced as panics, so the
// boundary can answer 503 instead of 500 when the backend is down.
package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tryonix/tryonix-server/apperr"
	appConfig "github.com/tryonix/tryonix-server/config"
)

const maxAttempts = 3

// Result is the raw outcome of a successful generation. The image bytes are
// in memory only and not yet persisted anywhere.
type Result struct {
	Image    []byte
	MIMEType string
	Model    string
}

// Client generates try-on images via the Gemini API.
type Client struct {
	apiKey  string
	model   string
	timeout time.Duration
	httpc   *http.Client
	logger  *slog.Logger
}

func NewClient(cfg *appConfig.Config, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.GeminiAPIKey,
		model:   cfg.GeminiModel,
		timeout: cfg.GenerateTimeout,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Generate sends the prompt plus optional reference image URLs to Gemini and
// returns the generated image bytes. With reference images the request
// targets the image-to-image try-on capability, otherwise pure
// text-to-image. Generative inference is slow, so the hard timeout is on the
// order of minutes.
func (c *Client) Generate(ctx context.Context, prompt string, refs ...string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, apperr.AIService("Try-on generation is currently unavailable", nil, err)
	}
	defer client.Close()

	parts := []genai.Part{genai.Text(prompt)}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		data, mimeType, err := c.fetchImage(ctx, ref)
		if err != nil {
			return nil, apperr.AIService("Failed to load reference image", []string{ref}, err)
		}
		parts = append(parts, genai.ImageData(formatForMIME(mimeType), data))
	}

	model := client.GenerativeModel(c.model)

	var resp *genai.GenerateContentResponse
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err = model.GenerateContent(ctx, parts...)
		if err == nil {
			break
		}
		if !isRateLimited(err) || attempt == maxAttempts {
			return nil, apperr.AIService("Try-on generation failed", []string{err.Error()}, err)
		}
		c.logger.Warn("gemini rate limited, retrying", "attempt", attempt, "error", err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, apperr.AIService("Try-on generation timed out", nil, ctx.Err())
		}
	}

	return c.extractImage(resp)
}

func (c *Client) extractImage(resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, apperr.AIService("Try-on generation returned no content", nil, nil)
	}

	var details []string
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Blob:
			return &Result{Image: p.Data, MIMEType: p.MIMEType, Model: c.model}, nil
		case genai.Text:
			// Safety refusals and similar come back as text.
			details = append(details, string(p))
		}
	}
	return nil, apperr.AIService("Try-on generation returned no image", details, nil)
}

func (c *Client) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch image, status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource exhausted")
}

func formatForMIME(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "png"):
		return "png"
	case strings.Contains(mimeType, "webp"):
		return "webp"
	default:
		return "jpeg"
	}
}
