package blueprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/generative-ai-go/genai"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

var ErrBlueprintParse = pkgerrors.New(pkgerrors.CodeBlueprintParse, "blueprint response could not be parsed")

// ParseError carries the raw model output that failed to parse.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("blueprint parse: %v", e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrBlueprintParse, e.Err}
}

// Blueprint is the structured plan returned by the script model.
type Blueprint struct {
	Title      string      `json:"title" validate:"required"`
	Characters []Character `json:"characters" validate:"required,min=1,dive"`
	Scenes     []Scene     `json:"scenes" validate:"required,min=1,dive"`
}

type Character struct {
	Name        string `json:"name" validate:"required"`
	ImagePrompt string `json:"imagePrompt" validate:"required"`
}

type Scene struct {
	CharactersInTheScene []string `json:"charactersInTheScene"`
	Narration            string   `json:"narration"`
	ImagePrompt          string   `json:"imagePrompt" validate:"required"`
	VideoPrompt          string   `json:"videoPrompt" validate:"required"`
	Angles               []Angle  `json:"angles,omitempty" validate:"omitempty,dive"`
}

type Angle struct {
	ImagePrompt string `json:"imagePrompt" validate:"required"`
	VideoPrompt string `json:"videoPrompt" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes raw strictly. One surrounding markdown fence is tolerated, anything
// else that does not match the schema fails with a *ParseError.
func Parse(raw string) (*Blueprint, error) {
	body := stripFence(raw)

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var bp Blueprint
	if err := dec.Decode(&bp); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Raw: raw, Err: errors.New("trailing data after blueprint object")}
	}
	if err := validate.Struct(bp); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	seen := make(map[string]int, len(bp.Characters))
	for i, c := range bp.Characters {
		key := models.CharacterKey(c.Name)
		if key == "" {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("character %d has a blank name", i)}
		}
		if prev, ok := seen[key]; ok {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("characters %d and %d share the name %q", prev, i, c.Name)}
		}
		seen[key] = i
	}
	return &bp, nil
}

func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s
	}
	s = strings.TrimSpace(s[nl+1:])
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// Schema is the structured output schema requested from the script model.
func Schema(multiAngle bool) *genai.Schema {
	prompt := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	sceneProps := map[string]*genai.Schema{
		"charactersInTheScene": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"narration":   prompt("voice-over for the scene, may be empty"),
		"imagePrompt": prompt("still frame description"),
		"videoPrompt": prompt("camera and subject motion"),
	}
	sceneRequired := []string{"charactersInTheScene", "narration", "imagePrompt", "videoPrompt"}
	if multiAngle {
		sceneProps["angles"] = &genai.Schema{
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"imagePrompt": prompt("alternate shot still frame"),
					"videoPrompt": prompt("alternate shot motion"),
				},
				Required: []string{"imagePrompt", "videoPrompt"},
			},
		}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": prompt("short video title"),
			"characters": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":        prompt("unique character name"),
						"imagePrompt": prompt("full body character reference"),
					},
					Required: []string{"name", "imagePrompt"},
				},
			},
			"scenes": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: sceneProps,
					Required:   sceneRequired,
				},
			},
		},
		Required: []string{"title", "characters", "scenes"},
	}
}
