package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/facefeed/facefeed/internal/config"
)

// Client calls the face detection HTTP service. Transient failures (network
// errors, 5xx) are retried with exponential backoff up to MaxAttempts; 4xx
// responses fail immediately.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
}

// NewClient creates a face service client from configuration.
func NewClient(cfg *config.FaceAPIConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		maxAttempts: cfg.MaxAttempts,
		backoff:     time.Duration(cfg.BackoffMillis) * time.Millisecond,
	}
}

type detectResponse struct {
	Detections []Detection `json:"detections"`
}

// Detect sends the image to the face service and returns the detected faces.
// An image with no faces returns an empty slice, not an error.
func (c *Client) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	var lastErr error
	delay := c.backoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		detections, retryable, err := c.detectOnce(ctx, image)
		if err == nil {
			return detections, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("face detection failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) detectOnce(ctx context.Context, image []byte) ([]Detection, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detect", bytes.NewReader(image))
	if err != nil {
		return nil, false, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("could not read response body: %w", err)
	}

	var result detectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, fmt.Errorf("could not unmarshal response: %w", err)
	}

	return result.Detections, false, nil
}

// readErrorBody reads up to 1KB of an error response for diagnostics.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 1024))
	if err != nil || len(body) == 0 {
		return "(no body)"
	}
	return strings.TrimSpace(string(body))
}

var _ Recognizer = (*Client)(nil)
