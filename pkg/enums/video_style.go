package enums

import "slices"

// VideoStyle selects the visual guidance used when compiling a blueprint.
type VideoStyle string

const (
	VideoStyleCinematic  VideoStyle = "cinematic"
	VideoStyleAnime      VideoStyle = "anime"
	VideoStyleCartoon3D  VideoStyle = "3d_cartoon"
	VideoStyleWatercolor VideoStyle = "watercolor"
	VideoStyleComic      VideoStyle = "comic"
	VideoStyleRealistic  VideoStyle = "realistic"
	VideoStyleCustom     VideoStyle = "custom"
)

// videoStyles is in display order.
var videoStyles = []VideoStyle{
	VideoStyleCinematic,
	VideoStyleAnime,
	VideoStyleCartoon3D,
	VideoStyleWatercolor,
	VideoStyleComic,
	VideoStyleRealistic,
	VideoStyleCustom,
}

func (s VideoStyle) IsValid() bool { return member(videoStyles, s) }

func ParseVideoStyle(value string) (VideoStyle, error) {
	return parse("video style", videoStyles, value)
}

func VideoStyles() []VideoStyle { return slices.Clone(videoStyles) }
