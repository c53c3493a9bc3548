// Package ocrclient talks to the local handwriting recognition service over
// HTTP. The service exposes a health probe and a per-page recognition
// endpoint that takes a rendered page image and returns positioned text
// blocks in pixel space.
package ocrclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"inkdex/internal/logging"
	"inkdex/internal/recognition"
)

// ErrUnavailable is returned when the service responds but reports that no
// recognition backend is loaded.
var ErrUnavailable = errors.New("ocr service has no recognition backend available")

// Options configures the client.
type Options struct {
	// BaseURL is the service root, e.g. http://localhost:8100.
	BaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxAttempts caps retries for a single recognition call. Values below 1
	// are treated as 1.
	MaxAttempts int
}

// Client is a thin HTTP client for the recognition service. Safe for
// concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts uint
	logger      *slog.Logger
}

// New constructs a client. A nil logger falls back to the no-op logger.
func New(opts Options, logger *slog.Logger) *Client {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:     opts.BaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: uint(attempts),
		logger:      logging.NewComponentLogger(logger, "ocrclient"),
	}
}

// Health describes the service's health probe response.
type Health struct {
	Status          string `json:"status"`
	VisionAvailable bool   `json:"vision_available"`
	MLXModelLoaded  bool   `json:"mlx_model_loaded"`
}

// Ready reports whether at least one recognition backend is loaded.
func (h Health) Ready() bool {
	return h.VisionAvailable || h.MLXModelLoaded
}

// Health queries the service's health endpoint.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return health, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return health, fmt.Errorf("ocr health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return health, fmt.Errorf("ocr health check: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return health, fmt.Errorf("ocr health check: decode response: %w", err)
	}
	return health, nil
}

// WaitReady polls the health endpoint until a backend is available or the
// context is canceled.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		health, err := c.Health(ctx)
		if err == nil && health.Ready() {
			return nil
		}
		if err != nil {
			c.logger.Debug("ocr service not ready", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type recognizeRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type recognizeResponse struct {
	TextBlocks []struct {
		Text       string     `json:"text"`
		BBox       [4]float64 `json:"bbox"`
		Confidence float64    `json:"confidence"`
	} `json:"text_blocks"`
}

// RecognizePage submits one rendered page image (PNG bytes) and returns the
// recognized text blocks in pixel space. Transient failures are retried up to
// the configured attempt count with exponential backoff.
func (c *Client) RecognizePage(ctx context.Context, image []byte) ([]recognition.Block, error) {
	body, err := json.Marshal(recognizeRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, err
	}

	var blocks []recognition.Block
	err = retry.Do(
		func() error {
			result, err := c.recognizeOnce(ctx, body)
			if err != nil {
				return err
			}
			blocks = result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.maxAttempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrUnavailable)
		}),
		retry.OnRetry(func(attempt uint, err error) {
			c.logger.Warn("recognition attempt failed; retrying",
				logging.Any("attempt", attempt+1),
				logging.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *Client) recognizeOnce(ctx context.Context, body []byte) ([]recognition.Block, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognize request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return nil, ErrUnavailable
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("recognize request: status %d: %s", resp.StatusCode, snippet)
	}

	var decoded recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("recognize request: decode response: %w", err)
	}

	blocks := make([]recognition.Block, 0, len(decoded.TextBlocks))
	for _, tb := range decoded.TextBlocks {
		blocks = append(blocks, recognition.Block{
			Text: tb.Text,
			Box: recognition.PixelBox{
				Left:   tb.BBox[0],
				Top:    tb.BBox[1],
				Right:  tb.BBox[2],
				Bottom: tb.BBox[3],
			},
			Confidence: tb.Confidence,
		})
	}
	return blocks, nil
}
