// Package detector talks to the local landmark-detection sidecar over HTTP. The
// sidecar owns the camera and the vision model; this process only consumes frames
// and landmarks.
package detector

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/capture"
	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Options configures the sidecar client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client is the sidecar HTTP client.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// detectResponse is the /detect payload.
type detectResponse struct {
	Detected bool             `json:"detected"`
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Face     []models.Point   `json:"face"`
	Pose     []models.Point   `json:"pose"`
	Hands    [][]models.Point `json:"hands"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a sidecar client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(50 * time.Millisecond).
		SetRetryMaxWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Detect posts the encoded frame and decodes the landmarks. "No detection" is
// (nil, nil); only transport or sidecar failures are errors.
func (c *Client) Detect(ctx context.Context, f capture.Frame) (*models.LandmarkFrame, error) {
	var result detectResponse
	var failure errorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(f.Data).
		SetResult(&result).
		SetError(&failure).
		Post("/detect")
	if err != nil {
		return nil, fmt.Errorf("failed to call detector: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		c.logger.Error("Detector returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", failure.Error),
		)
		return nil, fmt.Errorf("detector error: %s (status: %d)", failure.Error, resp.StatusCode())
	}

	if !result.Detected {
		return nil, nil
	}

	width, height := result.Width, result.Height
	if width == 0 {
		width = f.Width
	}
	if height == 0 {
		height = f.Height
	}
	return &models.LandmarkFrame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Width:     width,
		Height:    height,
		Face:      result.Face,
		Pose:      result.Pose,
		Hands:     result.Hands,
	}, nil
}

// OpenCamera returns a capture.Opener backed by the sidecar's camera endpoint.
// cameraIndex -1 lets the sidecar probe for the first working device.
func (c *Client) OpenCamera(cameraIndex int) capture.Opener {
	return func(ctx context.Context) (capture.Source, error) {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetQueryParam("camera", strconv.Itoa(cameraIndex)).
			Post("/camera/open")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("%w: camera %d (status: %d)", capture.ErrDeviceUnavailable, cameraIndex, resp.StatusCode())
		}
		c.logger.Info("Camera opened", zap.Int("camera_index", cameraIndex))
		return &cameraSource{client: c, now: time.Now}, nil
	}
}

// Ping checks that the sidecar is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.httpClient.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("failed to reach detector: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("detector unhealthy (status: %d)", resp.StatusCode())
	}
	return nil
}

type cameraSource struct {
	client *Client
	seq    uint64
	now    func() time.Time
}

func (s *cameraSource) Next(ctx context.Context) (capture.Frame, error) {
	resp, err := s.client.httpClient.R().
		SetContext(ctx).
		SetHeader("Accept", "image/jpeg").
		Get("/camera/frame")
	if err != nil {
		return capture.Frame{}, fmt.Errorf("failed to read frame: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNoContent:
		return capture.Frame{}, capture.ErrNoFrame
	case http.StatusServiceUnavailable, http.StatusNotFound:
		return capture.Frame{}, fmt.Errorf("%w: status %d", capture.ErrDeviceUnavailable, resp.StatusCode())
	default:
		return capture.Frame{}, fmt.Errorf("camera frame error (status: %d)", resp.StatusCode())
	}

	s.seq++
	width, _ := strconv.Atoi(resp.Header().Get("X-Frame-Width"))
	height, _ := strconv.Atoi(resp.Header().Get("X-Frame-Height"))
	return capture.Frame{
		Seq:       s.seq,
		Timestamp: s.now(),
		Width:     width,
		Height:    height,
		Data:      resp.Body(),
	}, nil
}

func (s *cameraSource) Close() error {
	resp, err := s.client.httpClient.R().Post("/camera/close")
	if err != nil {
		return fmt.Errorf("failed to close camera: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("failed to close camera (status: %d)", resp.StatusCode())
	}
	return nil
}
