package pipeline

import (
	"github.com/angelmondragon/reelforge-backend/internal/credits"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

// Estimate is the coarse cost of finishing every missing asset of a video.
type Estimate struct {
	Characters  int `json:"characters"`
	SceneImages int `json:"scene_images"`
	SceneVideos int `json:"scene_videos"`
	SceneAudio  int `json:"scene_audio"`
	Total       int `json:"total"`
}

// EstimateCost prices what a full run would still have to generate.
func EstimateCost(video *models.Video) Estimate {
	var est Estimate
	if video == nil {
		return est
	}
	for _, c := range video.Characters {
		if !c.HasImage() {
			est.Characters += credits.CostFor(enums.AssetKindCharacterImage, video.VideoModelTier)
		}
	}
	for _, s := range video.Scenes {
		if !s.HasImage() {
			est.SceneImages += credits.CostFor(enums.AssetKindSceneImage, video.VideoModelTier)
		}
		if !s.HasClip() {
			est.SceneVideos += credits.CostFor(enums.AssetKindSceneVideo, video.VideoModelTier)
		}
		if s.NeedsAudio() {
			est.SceneAudio += credits.CostFor(enums.AssetKindSceneAudio, video.VideoModelTier)
		}
	}
	est.Total = est.Characters + est.SceneImages + est.SceneVideos + est.SceneAudio
	return est
}
