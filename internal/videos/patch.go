package videos

import (
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/reelforge-backend/pkg/db/types"
)

// CharacterPatch lists the character columns a generator may write. Nil fields are left alone.
type CharacterPatch struct {
	ImageStorageID *string
	ImageURL       *string
	InProcess      *bool
}

func (p CharacterPatch) columns() map[string]any {
	cols := map[string]any{}
	if p.ImageStorageID != nil {
		cols["image_storage_id"] = *p.ImageStorageID
	}
	if p.ImageURL != nil {
		cols["image_url"] = *p.ImageURL
	}
	if p.InProcess != nil {
		cols["in_process"] = *p.InProcess
	}
	return cols
}

// ScenePatch lists the scene columns a generator may write. Nil fields are left alone.
type ScenePatch struct {
	ImageStorageID *string
	ImageURL       *string
	ClipStorageID  *string
	ClipURL        *string
	AudioStorageID *string
	AudioURL       *string
	Words          []models.WordTiming
	ImageInProcess *bool
	VideoInProcess *bool
	AudioInProcess *bool
}

func (p ScenePatch) columns() map[string]any {
	cols := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			cols[col] = *v
		}
	}
	set("image_storage_id", p.ImageStorageID)
	set("image_url", p.ImageURL)
	set("clip_storage_id", p.ClipStorageID)
	set("clip_url", p.ClipURL)
	set("audio_storage_id", p.AudioStorageID)
	set("audio_url", p.AudioURL)
	if p.Words != nil {
		cols["words"] = dbtypes.JSONList[models.WordTiming](p.Words)
	}
	flag := func(col string, v *bool) {
		if v != nil {
			cols[col] = *v
		}
	}
	flag("image_in_process", p.ImageInProcess)
	flag("video_in_process", p.VideoInProcess)
	flag("audio_in_process", p.AudioInProcess)
	return cols
}
