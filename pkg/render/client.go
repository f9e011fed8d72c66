// Package render submits finished videos to the external renderer and verifies its
// webhook callbacks.
package render

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

// SignatureHeader carries the hex HMAC-SHA512 of the webhook body.
const SignatureHeader = "X-Render-Signature"

var ErrInvalidSignature = errors.New("render webhook signature mismatch")

type Word struct {
	Text    string `json:"text"`
	StartMs int    `json:"startMs"`
	EndMs   int    `json:"endMs"`
}

type Scene struct {
	ClipURL   string `json:"clipUrl"`
	AudioURL  string `json:"audioUrl,omitempty"`
	Narration string `json:"narration,omitempty"`
	Words     []Word `json:"words,omitempty"`
}

// Document is the composition the renderer stitches together.
type Document struct {
	VideoID     string  `json:"videoId"`
	Title       string  `json:"title"`
	AspectRatio string  `json:"aspectRatio"`
	Music       string  `json:"music,omitempty"`
	Scenes      []Scene `json:"scenes"`
}

// Submission identifies an accepted render job.
type Submission struct {
	RenderID   string `json:"renderId"`
	BucketName string `json:"bucketName"`
}

type WebhookError struct {
	Message string `json:"message"`
}

// WebhookPayload is what the renderer posts back when a job finishes.
type WebhookPayload struct {
	Type      string         `json:"type"`
	RenderID  string         `json:"renderId"`
	VideoID   string         `json:"videoId"`
	OutputURL string         `json:"outputUrl,omitempty"`
	Errors    []WebhookError `json:"errors,omitempty"`
}

// Succeeded reports whether the payload describes a finished render.
func (p WebhookPayload) Succeeded() bool {
	return strings.EqualFold(p.Type, "success") && p.OutputURL != ""
}

// ErrorMessage joins the reported error messages.
func (p WebhookPayload) ErrorMessage() string {
	msgs := make([]string, 0, len(p.Errors))
	for _, e := range p.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) == 0 {
		if p.Type == "" {
			return "render failed"
		}
		return "render " + p.Type
	}
	return strings.Join(msgs, "; ")
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secret     string
}

func NewClient(cfg config.RenderConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("render base url is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("render webhook secret is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: time.Minute},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secret:     cfg.WebhookSecret,
	}, nil
}

// Submit posts doc for rendering and asks for a callback on webhookURL.
func (c *Client) Submit(ctx context.Context, doc Document, webhookURL string) (Submission, error) {
	raw, err := json.Marshal(map[string]any{
		"inputProps": doc,
		"webhook": map[string]string{
			"url":    webhookURL,
			"secret": c.secret,
		},
	})
	if err != nil {
		return Submission{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/renders", bytes.NewReader(raw))
	if err != nil {
		return Submission{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Submission{}, fmt.Errorf("render submit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Submission{}, fmt.Errorf("render submit: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Submission
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Submission{}, fmt.Errorf("render submit decode: %w", err)
	}
	if out.RenderID == "" {
		return Submission{}, errors.New("render submit: missing render id")
	}
	return out, nil
}

// Sign returns the signature the renderer attaches to body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC of body. A "sha512=" prefix is accepted.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return errors.New("render webhook secret not configured")
	}
	got := strings.TrimPrefix(strings.TrimSpace(header), "sha512=")
	decoded, err := hex.DecodeString(got)
	if err != nil || len(decoded) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}
