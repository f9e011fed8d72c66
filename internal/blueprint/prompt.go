package blueprint

import (
	"bytes"
	"math"
	"strings"
	"text/template"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

// SceneRange returns the scene count bounds for a target duration. The dramatic
// template asks for shorter, more numerous scenes.
func SceneRange(durationSeconds int, dramatic bool) (int, int) {
	if durationSeconds <= 0 {
		return 1, 1
	}
	d := float64(durationSeconds)
	lo, hi := math.Ceil(d/10), math.Ceil(d/7)
	if dramatic {
		lo, hi = math.Ceil(d/8), math.Ceil(d/6)
	}
	return int(lo), int(hi)
}

type promptData struct {
	Prompt      string
	Style       string
	Guide       StyleGuide
	Duration    int
	AspectRatio enums.AspectRatio
	MinScenes   int
	MaxScenes   int
	MultiAngle  bool
}

var standardTemplate = template.Must(template.New("standard").Parse(`You are a storyboard writer for short AI generated videos.

Write a blueprint for a {{.Duration}} second video in {{.AspectRatio}} format based on this idea:
"""
{{.Prompt}}
"""

Visual style: {{.Style}}. {{.Guide.Visual}}
Motion style: {{.Guide.Motion}}

Rules:
- Produce between {{.MinScenes}} and {{.MaxScenes}} scenes.
- Every recurring character gets one entry in "characters" with a unique "name" and an
  "imagePrompt" describing a full body reference of that character alone.
- Each scene lists the names of the characters visible in it in "charactersInTheScene",
  spelled exactly as in "characters".
- "imagePrompt" describes the still frame of the scene, "videoPrompt" describes the camera
  and subject motion that animates it.
- "narration" is the voice-over for the scene, sized to fit the scene duration. Use an empty
  string for scenes without voice-over.
{{- if .MultiAngle}}
- Give each scene one or two "angles", alternate camera shots with their own "imagePrompt"
  and "videoPrompt".
{{- end}}
- Respond with JSON only.
`))

var dramaticTemplate = template.Must(template.New("dramatic").Parse(`You are an award winning screenwriter adapting an idea into an emotionally gripping short film.

The film runs {{.Duration}} seconds in {{.AspectRatio}} format. The idea:
"""
{{.Prompt}}
"""

Visual style: {{.Style}}. {{.Guide.Visual}}
Motion style: {{.Guide.Motion}}

Structure the story in three movements. Open on a hook that raises a question within the
first scene. Build tension through a personal stake for the protagonist. Land on a turn that
resolves the question and leaves a lingering image.

Rules:
- Produce between {{.MinScenes}} and {{.MaxScenes}} short scenes. Favor close ups and reaction
  shots at emotional beats and wide shots when the stakes change.
- Every recurring character gets one entry in "characters" with a unique "name" and an
  "imagePrompt" describing a full body reference of that character alone: age, build,
  wardrobe, palette and a defining detail.
- Each scene lists the names of the characters visible in it in "charactersInTheScene",
  spelled exactly as in "characters".
- "imagePrompt" describes the still frame including lighting and mood. "videoPrompt" describes
  the camera move and the performance that animates it.
- "narration" is an intimate voice-over line for the scene. Keep lines short enough to be
  spoken within the scene. Use an empty string where silence lands harder.
{{- if .MultiAngle}}
- Give each scene one or two "angles", alternate camera shots with their own "imagePrompt"
  and "videoPrompt".
{{- end}}
- Respond with JSON only.
`))

// BuildPrompt renders the instruction sent to the script model.
func BuildPrompt(catalog *Catalog, input CompileInput) (string, error) {
	lo, hi := SceneRange(input.DurationSeconds, input.Dramatic)
	data := promptData{
		Prompt:      strings.TrimSpace(input.Prompt),
		Style:       string(input.Style),
		Guide:       catalog.Guide(input.Style),
		Duration:    input.DurationSeconds,
		AspectRatio: input.AspectRatio,
		MinScenes:   lo,
		MaxScenes:   hi,
		MultiAngle:  input.MultiAngle,
	}
	tmpl := standardTemplate
	if input.Dramatic {
		tmpl = dramaticTemplate
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
