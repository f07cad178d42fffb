package age

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-checkout/internal/httpc"
)

const providerClient = "http"

// Client estimates ages through a remote inference service.
//
// The service contract is POST {base}/estimate with {"image": "<base64 jpeg>"}
// answered by {"age": 31}. A missing or out-of-range age means no face signal.
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

type estimateRequest struct {
	Image string `json:"image"`
}

type estimateResponse struct {
	Age        *int    `json:"age"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewClient creates a new remote estimator.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "age.client"),
	}, nil
}

// Estimate sends the crop to the service and returns the predicted age.
func (c *Client) Estimate(ctx context.Context, face image.Image) (int, error) {
	start := time.Now()

	b64, err := EncodeImageBase64(face, c.config.JPEGQuality)
	if err != nil {
		return 0, WrapError(providerClient, fmt.Errorf("encode crop: %w", err))
	}

	body, err := json.Marshal(estimateRequest{Image: b64})
	if err != nil {
		return 0, WrapError(providerClient, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := c.doWithRetry(ctx, "/estimate", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var result estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, WrapError(providerClient, fmt.Errorf("decode response: %w", err))
	}

	if result.Age == nil || !Valid(*result.Age) {
		msg := result.Error
		if msg == "" {
			msg = "no age in response"
		}
		return 0, WrapError(providerClient, fmt.Errorf("%w: %s", ErrNoFace, msg))
	}

	c.logger.Debug("age estimated",
		"age", *result.Age,
		"confidence", result.Confidence,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return *result.Age, nil
}

// Health checks service connectivity.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return WrapError(providerClient, fmt.Errorf("create request: %w", err))
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return WrapError(providerClient, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WrapError(providerClient, parseError(resp))
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// doWithRetry posts body to path, retrying transport errors and retryable
// status codes. A non-nil response always has status 200.
func (c *Client) doWithRetry(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, WrapError(providerClient, ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(providerClient, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapError(providerClient, ctx.Err())
			}
			lastErr = WrapError(providerClient, err)
			c.logger.Warn("request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp)
		resp.Body.Close()
		lastErr = WrapError(providerClient, apiErr)

		var ae *APIError
		if !errors.As(apiErr, &ae) || !ae.IsRetryable() {
			return nil, lastErr
		}
		c.logger.Warn("retryable status", "attempt", attempt+1, "status", ae.StatusCode)
	}

	return nil, lastErr
}

// parseError reads an error body into an APIError.
func parseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// EncodeImageBase64 encodes an image to base64 JPEG format.
func EncodeImageBase64(img image.Image, quality int) (string, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
