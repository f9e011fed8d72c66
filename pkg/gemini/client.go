// Package gemini wraps the Gemini generative API for structured script output
// and image generation.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

var (
	// ErrNoCandidates is returned when the model answers without any usable candidate.
	ErrNoCandidates = errors.New("gemini returned no candidates")
	// ErrNoImage is returned when an image call yields only text parts.
	ErrNoImage = errors.New("gemini returned no image data")
)

// InlineImage is an image passed to or returned from the model as raw bytes.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

type generateFunc func(ctx context.Context, modelName string, configure func(*genai.GenerativeModel), parts ...genai.Part) (*genai.GenerateContentResponse, error)

// Client issues rate limited calls against the script and image models.
type Client struct {
	generate    generateFunc
	closer      func() error
	scriptModel string
	imageModel  string
	temperature float32
	limiter     *rate.Limiter
	logg        *logger.Logger
}

// NewClient dials the Gemini API with the configured key.
func NewClient(ctx context.Context, cfg config.GeminiConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	generate := func(ctx context.Context, modelName string, configure func(*genai.GenerativeModel), parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		model := gc.GenerativeModel(modelName)
		if configure != nil {
			configure(model)
		}
		return model.GenerateContent(ctx, parts...)
	}

	return newClient(generate, gc.Close, cfg, logg), nil
}

func newClient(generate generateFunc, closer func() error, cfg config.GeminiConfig, logg *logger.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &Client{
		generate:    generate,
		closer:      closer,
		scriptModel: cfg.ScriptModel,
		imageModel:  cfg.ImageModel,
		temperature: cfg.Temperature,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		logg:        logg,
	}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// GenerateJSON asks the script model for a JSON document constrained by schema and
// returns the raw text of the first candidate.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.generate(ctx, c.scriptModel, func(m *genai.GenerativeModel) {
		m.SetTemperature(c.temperature)
		m.ResponseMIMEType = "application/json"
		m.ResponseSchema = schema
	}, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text, err := firstText(resp)
	if err != nil {
		return "", err
	}
	if c.logg != nil {
		ctx = c.logg.WithFields(ctx, map[string]any{"model": c.scriptModel, "response_bytes": len(text)})
		c.logg.Info(ctx, "gemini.script.completed")
	}
	return text, nil
}

// GenerateImage renders prompt conditioned on the reference images and returns the
// first inline image of the response.
func (c *Client) GenerateImage(ctx context.Context, prompt string, refs []InlineImage) (InlineImage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return InlineImage{}, err
	}

	parts := make([]genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		if len(ref.Data) == 0 {
			continue
		}
		parts = append(parts, genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data})
	}
	parts = append(parts, genai.Text(prompt))

	resp, err := c.generate(ctx, c.imageModel, nil, parts...)
	if err != nil {
		return InlineImage{}, fmt.Errorf("gemini generate image: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return InlineImage{}, ErrNoCandidates
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
				return InlineImage{MIMEType: blob.MIMEType, Data: blob.Data}, nil
			}
		}
	}
	return InlineImage{}, ErrNoImage
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", ErrNoCandidates
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrNoCandidates
	}
	return b.String(), nil
}
