package credits

import "github.com/angelmondragon/reelforge-backend/pkg/enums"

const (
	// AssetCost is charged for a blueprint and for every generated asset.
	AssetCost = 5
	// PremiumVideoCost replaces AssetCost for scene videos on the premium tier.
	PremiumVideoCost = 10
)

// CostFor returns the price of one asset of kind for the given video tier.
func CostFor(kind enums.AssetKind, tier enums.VideoModelTier) int {
	if kind == enums.AssetKindSceneVideo && tier.IsPremium() {
		return PremiumVideoCost
	}
	return AssetCost
}
