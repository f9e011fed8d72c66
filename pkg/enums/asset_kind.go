package enums

// AssetKind identifies a billable generation unit.
type AssetKind string

const (
	AssetKindBlueprint      AssetKind = "blueprint"
	AssetKindCharacterImage AssetKind = "character_image"
	AssetKindSceneImage     AssetKind = "scene_image"
	AssetKindSceneVideo     AssetKind = "scene_video"
	AssetKindSceneAudio     AssetKind = "scene_audio"
)

var assetKinds = []AssetKind{
	AssetKindBlueprint,
	AssetKindCharacterImage,
	AssetKindSceneImage,
	AssetKindSceneVideo,
	AssetKindSceneAudio,
}

func (k AssetKind) IsValid() bool { return member(assetKinds, k) }
