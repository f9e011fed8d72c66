package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

func TestRetryPolicyConstant(t *testing.T) {
	p := NewRetryPolicy(config.PipelineConfig{CharacterMaxAttempts: 3, RetryDelay: 10 * time.Second})
	assert.Equal(t, 3, p.attempts())
	assert.Equal(t, 10*time.Second, p.Delay(1))
	assert.Equal(t, 10*time.Second, p.Delay(2))
	assert.Zero(t, p.Delay(0))
}

func TestRetryPolicyExponentialIsCapped(t *testing.T) {
	p := NewRetryPolicy(config.PipelineConfig{
		CharacterMaxAttempts: 5,
		RetryDelay:           time.Second,
		RetryMaxDelay:        3 * time.Second,
		ExponentialBackoff:   true,
	})
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))
	assert.Equal(t, 3*time.Second, p.Delay(4))
}

func TestRetryPolicyWithoutDelay(t *testing.T) {
	p := NewRetryPolicy(config.PipelineConfig{})
	assert.Equal(t, 1, p.attempts())
	assert.Zero(t, p.Delay(1))
	assert.Zero(t, ImmediateRetry(2).Delay(1))
	assert.Equal(t, 1, RetryPolicy{}.attempts())
}

func TestEstimateCost(t *testing.T) {
	url := "https://cdn.test/x"
	video := &models.Video{
		VideoModelTier: enums.VideoModelTierPremium,
		Characters: []models.VideoCharacter{
			{Name: "A"},
			{Name: "B", ImageURL: &url},
		},
		Scenes: []models.VideoScene{
			{Narration: "hi"},
			{ImageURL: &url, ClipURL: &url, Narration: "   "},
			{ImageURL: &url, Narration: "voiced", AudioURL: &url},
		},
	}
	est := EstimateCost(video)
	assert.Equal(t, 5, est.Characters)
	assert.Equal(t, 5, est.SceneImages)
	assert.Equal(t, 20, est.SceneVideos)
	assert.Equal(t, 5, est.SceneAudio)
	assert.Equal(t, 35, est.Total)

	assert.Zero(t, EstimateCost(nil).Total)
}
