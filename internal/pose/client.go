// Package pose implements the pose-estimation capability against a
// self-hosted landmark service (an HTTP sidecar wrapping a pose model).
// The pipeline only sees the vision.PoseEstimator contract.
package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/infra"
	"tryon/internal/vision"
)

// Options configures the landmark-service client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the landmark service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type landmarksResponse struct {
	Detected  bool              `json:"detected"`
	Landmarks *vision.Landmarks `json:"landmarks"`
	Message   string            `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("pose: base url is required")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}, nil
}

// LocateLandmarks sends the person image to the landmark service and returns
// the detected keypoints, or nil when no person was found.
func (c *Client) LocateLandmarks(ctx context.Context, img *image.NRGBA) (*vision.Landmarks, error) {
	var body bytes.Buffer
	if err := png.Encode(&body, img); err != nil {
		return nil, fmt.Errorf("pose: encode request image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/landmarks", &body)
	if err != nil {
		return nil, fmt.Errorf("pose: build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pose: call landmark service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("pose: landmark service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed landmarksResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("pose: decode response: %w", err)
	}

	c.logger.Debug().
		Bool("detected", parsed.Detected).
		Dur("elapsed", time.Since(start)).
		Msg("pose: landmark lookup")

	if !parsed.Detected || parsed.Landmarks == nil {
		return nil, nil
	}
	return parsed.Landmarks, nil
}

var _ vision.PoseEstimator = (*Client)(nil)
