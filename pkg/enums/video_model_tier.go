package enums

// VideoModelTier selects the image-to-video model and its price.
type VideoModelTier string

const (
	VideoModelTierStandard VideoModelTier = "standard"
	VideoModelTierPremium  VideoModelTier = "premium"
)

var videoModelTiers = []VideoModelTier{VideoModelTierStandard, VideoModelTierPremium}

func (t VideoModelTier) IsValid() bool { return member(videoModelTiers, t) }

func (t VideoModelTier) IsPremium() bool { return t == VideoModelTierPremium }

// ParseVideoModelTier maps empty input to standard.
func ParseVideoModelTier(value string) (VideoModelTier, error) {
	if value == "" {
		return VideoModelTierStandard, nil
	}
	return parse("video model tier", videoModelTiers, value)
}
