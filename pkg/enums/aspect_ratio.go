package enums

import "slices"

// AspectRatio is the output frame shape of a generated video.
type AspectRatio string

const (
	AspectRatioPortrait  AspectRatio = "9:16"
	AspectRatioLandscape AspectRatio = "16:9"
	AspectRatioSquare    AspectRatio = "1:1"
)

var aspectRatios = []AspectRatio{AspectRatioPortrait, AspectRatioLandscape, AspectRatioSquare}

func (a AspectRatio) IsValid() bool { return member(aspectRatios, a) }

func ParseAspectRatio(value string) (AspectRatio, error) {
	return parse("aspect ratio", aspectRatios, value)
}

// AspectRatios returns a copy of the accepted ratios, portrait first.
func AspectRatios() []AspectRatio { return slices.Clone(aspectRatios) }
