// Package media generates and analyzes images through an
// OpenAI-compatible backend. Generated artifacts come back as raw
// bytes for the transport to attach; vision analysis turns inbound
// image attachments into text the oracle can reason over.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxAttempts = 3
	retryDelay  = time.Second

	visionMaxTokens = 100
)

// Artifact is one generated image.
type Artifact struct {
	Name string
	Data []byte
}

// Client drives the image generation and vision endpoints.
type Client struct {
	baseURL     string
	apiKey      string
	imageModel  string
	visionModel string
	imageCount  int
	imageSize   string
	httpClient  *http.Client
	logger      *slog.Logger
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithImageModel(model string) Option {
	return func(c *Client) { c.imageModel = model }
}

func WithVisionModel(model string) Option {
	return func(c *Client) { c.visionModel = model }
}

func WithImageSize(size string) Option {
	return func(c *Client) { c.imageSize = size }
}

// WithImageCount sets how many images one Generate call requests.
// Values below 1 are ignored.
func WithImageCount(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.imageCount = n
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		imageCount: 1,
		imageSize:  "1024x1024",
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generationRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type generationResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

// Generate renders prompt into zero or more artifacts. Transient
// failures are retried; exhausted retries yield an empty list, not an
// error, so a jammed backend reads as "no artifacts" to the caller.
func (c *Client) Generate(ctx context.Context, prompt string) []Artifact {
	payload, err := json.Marshal(generationRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      c.imageCount,
		Size:   c.imageSize,
	})
	if err != nil {
		return nil
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		artifacts, err := c.generateOnce(ctx, payload)
		if err == nil {
			return artifacts
		}
		c.logger.Error("image generation attempt failed", "attempt", attempt, "error", err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
		}
	}
	return nil
}

func (c *Client) generateOnce(ctx context.Context, payload []byte) ([]Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image generation status %d", resp.StatusCode)
	}

	var body generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}

	var artifacts []Artifact
	for _, img := range body.Data {
		var data []byte
		switch {
		case img.B64JSON != "":
			data, err = base64.StdEncoding.DecodeString(img.B64JSON)
			if err != nil {
				c.logger.Error("image payload decode failed", "error", err)
				continue
			}
		case img.URL != "":
			data, err = c.download(ctx, img.URL)
			if err != nil {
				c.logger.Error("image download failed", "url", img.URL, "error", err)
				continue
			}
		default:
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name: fmt.Sprintf("gen_image_%d.png", len(artifacts)),
			Data: data,
		})
	}
	return artifacts, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Analyze describes imageData using the vision model. Returns "" when
// vision is not configured or the backend stays down, never an error;
// a missing description just leaves the attachment undescribed.
func (c *Client) Analyze(ctx context.Context, imageData []byte, mimeType string) string {
	if c.visionModel == "" {
		c.logger.Warn("vision model not configured, skipping image analysis")
		return ""
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	encoded := base64.StdEncoding.EncodeToString(imageData)
	payload, err := json.Marshal(map[string]any{
		"model":      c.visionModel,
		"max_tokens": visionMaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": "You are a helpful assistant with vision capabilities."},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": "Describe this image."},
					{"type": "image_url", "image_url": map[string]string{
						"url": fmt.Sprintf("data:%s;base64,%s", mimeType, encoded),
					}},
				},
			},
		},
	})
	if err != nil {
		return ""
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		desc, err := c.analyzeOnce(ctx, payload)
		if err == nil {
			return desc
		}
		c.logger.Error("image analysis attempt failed", "attempt", attempt, "error", err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ""
			case <-time.After(retryDelay):
			}
		}
	}
	return ""
}

func (c *Client) analyzeOnce(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image analysis status %d", resp.StatusCode)
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode analysis response: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", fmt.Errorf("empty choices in analysis response")
	}
	return body.Choices[0].Message.Content, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
