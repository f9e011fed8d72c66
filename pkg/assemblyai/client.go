// Package assemblyai transcribes stored narration audio into word timings.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

// ErrTranscriptFailed is returned when the transcript job ends with status error.
var ErrTranscriptFailed = errors.New("assemblyai transcript failed")

// Word is one recognised word with millisecond offsets.
type Word struct {
	Text    string `json:"text"`
	StartMs int    `json:"start"`
	EndMs   int    `json:"end"`
}

type transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Words  []Word `json:"words"`
}

type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	timeout      time.Duration
}

func NewClient(cfg config.AssemblyAIConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("assemblyai api key is required")
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: poll,
		timeout:      cfg.Timeout,
	}, nil
}

// Transcribe submits audioURL and blocks until word timings are available.
func (c *Client) Transcribe(ctx context.Context, audioURL string) ([]Word, error) {
	if audioURL == "" {
		return nil, errors.New("assemblyai: audio url is required")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return nil, err
	}
	var job transcript
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/transcript", raw, &job); err != nil {
		return nil, fmt.Errorf("assemblyai submit: %w", err)
	}
	if job.ID == "" {
		return nil, errors.New("assemblyai submit: missing transcript id")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	statusURL := c.baseURL + "/v2/transcript/" + url.PathEscape(job.ID)
	for {
		switch job.Status {
		case "completed":
			if job.Words == nil {
				return []Word{}, nil
			}
			return job.Words, nil
		case "error":
			return nil, fmt.Errorf("%w: %s", ErrTranscriptFailed, job.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if err := c.do(ctx, http.MethodGet, statusURL, nil, &job); err != nil {
			return nil, fmt.Errorf("assemblyai poll: %w", err)
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
