// Package fal drives the fal.ai queue API for image-to-video generation.
package fal

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

	"golang.org/x/time/rate"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

const maxVideoBytes = 256 << 20

var (
	// ErrRequestFailed is returned when the queue reports a terminal failure.
	ErrRequestFailed = errors.New("fal request failed")
	// ErrEmptyResult is returned when a completed request carries no video url.
	ErrEmptyResult = errors.New("fal result has no video")
)

// VideoRequest describes one image-to-video job.
type VideoRequest struct {
	ImageURL        string
	Prompt          string
	Premium         bool
	AspectRatio     string
	DurationSeconds int
}

// Video is the downloaded clip.
type Video struct {
	Data        []byte
	ContentType string
	SourceURL   string
	RequestID   string
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type resultResponse struct {
	Video struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"video"`
}

// Client submits jobs and polls them to completion.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	standardModel string
	premiumModel  string
	pollInterval  time.Duration
	timeout       time.Duration
	limiter       *rate.Limiter
	logg          *logger.Logger
}

// NewClient builds a queue client from configuration.
func NewClient(cfg config.FalConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("fal api key is required")
	}
	if cfg.StandardModel == "" || cfg.PremiumModel == "" {
		return nil, errors.New("fal models are required")
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Client{
		httpClient:    &http.Client{Timeout: time.Minute},
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		standardModel: cfg.StandardModel,
		premiumModel:  cfg.PremiumModel,
		pollInterval:  poll,
		timeout:       cfg.Timeout,
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		logg:          logg,
	}, nil
}

// GenerateVideo submits req, waits for the queue to finish and downloads the clip.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (Video, error) {
	if req.ImageURL == "" {
		return Video{}, errors.New("fal: image url is required")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.standardModel
	if req.Premium {
		model = c.premiumModel
	}

	submitted, err := c.submit(ctx, model, req)
	if err != nil {
		return Video{}, err
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"fal_request_id": submitted.RequestID, "model": model})
		c.logg.Info(logCtx, "fal.video.submitted")
	}

	if err := c.await(ctx, submitted.StatusURL); err != nil {
		return Video{}, err
	}

	var result resultResponse
	if err := c.getJSON(ctx, submitted.ResponseURL, &result); err != nil {
		return Video{}, fmt.Errorf("fal result: %w", err)
	}
	if result.Video.URL == "" {
		return Video{}, ErrEmptyResult
	}

	data, contentType, err := c.download(ctx, result.Video.URL)
	if err != nil {
		return Video{}, err
	}
	if contentType == "" {
		contentType = result.Video.ContentType
	}
	return Video{Data: data, ContentType: contentType, SourceURL: result.Video.URL, RequestID: submitted.RequestID}, nil
}

func (c *Client) submit(ctx context.Context, model string, req VideoRequest) (submitResponse, error) {
	body := map[string]any{
		"image_url": req.ImageURL,
		"prompt":    req.Prompt,
	}
	if req.AspectRatio != "" {
		body["aspect_ratio"] = req.AspectRatio
	}
	if req.DurationSeconds > 0 {
		body["duration"] = fmt.Sprintf("%d", req.DurationSeconds)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return submitResponse{}, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return submitResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(raw))
	if err != nil {
		return submitResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return submitResponse{}, fmt.Errorf("fal submit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return submitResponse{}, statusError("fal submit", resp)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return submitResponse{}, fmt.Errorf("fal submit decode: %w", err)
	}
	if out.StatusURL == "" || out.ResponseURL == "" {
		return submitResponse{}, errors.New("fal submit: missing queue urls")
	}
	return out, nil
}

func (c *Client) await(ctx context.Context, statusURL string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status statusResponse
		if err := c.getJSON(ctx, statusURL, &status); err != nil {
			return fmt.Errorf("fal status: %w", err)
		}
		switch strings.ToUpper(status.Status) {
		case "COMPLETED":
			if status.Error != "" {
				return fmt.Errorf("%w: %s", ErrRequestFailed, status.Error)
			}
			return nil
		case "FAILED", "ERROR", "CANCELLED":
			return fmt.Errorf("%w: %s", ErrRequestFailed, status.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return statusError("fal get", resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fal download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError("fal download", resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoBytes))
	if err != nil {
		return nil, "", fmt.Errorf("fal download: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Key "+c.apiKey)
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
