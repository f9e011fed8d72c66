// Package elevenlabs is a minimal text-to-speech client.
package elevenlabs

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

	"golang.org/x/time/rate"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

const (
	maxAudioBytes = 64 << 20
	outputFormat  = "mp3_44100_128"
)

// ErrEmptyAudio is returned when the stream ends without any audio bytes.
var ErrEmptyAudio = errors.New("elevenlabs returned empty audio")

// Audio is synthesized speech.
type Audio struct {
	Data        []byte
	ContentType string
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
	limiter    *rate.Limiter
}

func NewClient(cfg config.ElevenLabsConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		modelID:    cfg.ModelID,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Synthesize voices text with voiceID and returns the full MPEG stream.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, errors.New("elevenlabs: text is required")
	}
	if strings.TrimSpace(voiceID) == "" {
		return Audio{}, errors.New("elevenlabs: voice id is required")
	}

	raw, err := json.Marshal(map[string]string{"text": text, "model_id": c.modelID})
	if err != nil {
		return Audio{}, err
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s", c.baseURL, url.PathEscape(voiceID), outputFormat)

	if err := c.limiter.Wait(ctx); err != nil {
		return Audio{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return Audio{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs tts: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Audio{}, fmt.Errorf("elevenlabs tts: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs tts read: %w", err)
	}
	if len(data) == 0 {
		return Audio{}, ErrEmptyAudio
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return Audio{Data: data, ContentType: contentType}, nil
}
