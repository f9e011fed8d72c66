package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/generation"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

type stubAssets struct {
	character generation.CharacterImageInput
	scene     generation.SceneImageInput
	clip      generation.SceneVideoInput
	audio     generation.SceneAudioInput
	err       error
}

func (s *stubAssets) result(kind enums.AssetKind, videoID, itemID uuid.UUID) (*generation.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &generation.Result{Kind: kind, VideoID: videoID, ItemID: itemID, StorageID: "k", URL: "https://cdn/k", Version: 2, Cost: 4}, nil
}

func (s *stubAssets) CharacterImage(_ context.Context, in generation.CharacterImageInput) (*generation.Result, error) {
	s.character = in
	return s.result(enums.AssetKindCharacterImage, in.VideoID, in.CharacterID)
}

func (s *stubAssets) SceneImage(_ context.Context, in generation.SceneImageInput) (*generation.Result, error) {
	s.scene = in
	return s.result(enums.AssetKindSceneImage, in.VideoID, in.SceneID)
}

func (s *stubAssets) SceneVideo(_ context.Context, in generation.SceneVideoInput) (*generation.Result, error) {
	s.clip = in
	return s.result(enums.AssetKindSceneVideo, in.VideoID, in.SceneID)
}

func (s *stubAssets) SceneAudio(_ context.Context, in generation.SceneAudioInput) (*generation.Result, error) {
	s.audio = in
	return s.result(enums.AssetKindSceneAudio, in.VideoID, in.SceneID)
}

func TestCharacterImageRegenerate(t *testing.T) {
	userID, videoID, characterID := uuid.New(), uuid.New(), uuid.New()
	assets := &stubAssets{}
	req := newRequest(http.MethodPost, "/", `{"regenerate":true,"base_image_storage_id":" img/1 ","prompt":"add a hat"}`, userID,
		map[string]string{"videoId": videoID.String(), "characterId": characterID.String()})
	resp := httptest.NewRecorder()

	CharacterImageGenerate(assets, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	in := assets.character
	if in.UserID != userID || in.VideoID != videoID || in.CharacterID != characterID {
		t.Fatalf("unexpected ids %+v", in)
	}
	if !in.Regenerate || in.BaseImageStorageID != "img/1" || in.Prompt != "add a hat" {
		t.Fatalf("unexpected options %+v", in)
	}
	var res generation.Result
	decodeData(t, resp, &res)
	if res.Kind != enums.AssetKindCharacterImage || res.Version != 2 || res.Cost != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSceneAssetsAcceptEmptyBody(t *testing.T) {
	userID, videoID, sceneID := uuid.New(), uuid.New(), uuid.New()
	params := map[string]string{"videoId": videoID.String(), "sceneId": sceneID.String()}
	assets := &stubAssets{}

	handlers := map[string]http.HandlerFunc{
		"image": SceneImageGenerate(assets, testLogger()),
		"video": SceneVideoGenerate(assets, testLogger()),
		"audio": SceneAudioGenerate(assets, testLogger()),
	}
	for name, h := range handlers {
		resp := httptest.NewRecorder()
		h(resp, newRequest(http.MethodPost, "/", "", userID, params))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", name, resp.Code)
		}
	}
	if assets.scene.SceneID != sceneID || assets.clip.SceneID != sceneID || assets.audio.SceneID != sceneID {
		t.Fatal("scene id not forwarded to every generator")
	}
	if assets.scene.Prompt != "" || assets.audio.VoiceID != "" {
		t.Fatal("expected zero options for an empty body")
	}
}

func TestSceneAudioForwardsVoice(t *testing.T) {
	assets := &stubAssets{}
	params := map[string]string{"videoId": uuid.NewString(), "sceneId": uuid.NewString()}
	resp := httptest.NewRecorder()
	SceneAudioGenerate(assets, testLogger())(resp, newRequest(http.MethodPost, "/", `{"voice_id":"narrator-2"}`, uuid.New(), params))
	if resp.Code != http.StatusOK || assets.audio.VoiceID != "narrator-2" {
		t.Fatalf("expected voice forwarded, got %d %q", resp.Code, assets.audio.VoiceID)
	}
}

func TestAssetGenerationErrors(t *testing.T) {
	params := map[string]string{"videoId": uuid.NewString(), "sceneId": uuid.NewString()}

	short := &stubAssets{err: pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")}
	resp := httptest.NewRecorder()
	SceneVideoGenerate(short, testLogger())(resp, newRequest(http.MethodPost, "/", "", uuid.New(), params))
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	SceneImageGenerate(&stubAssets{}, testLogger())(resp, newRequest(http.MethodPost, "/", "", uuid.New(),
		map[string]string{"videoId": uuid.NewString(), "sceneId": "bad"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed scene id got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	SceneImageGenerate(&stubAssets{}, testLogger())(resp, newRequest(http.MethodPost, "/", `{"prompt":"x","extra":1}`, uuid.New(), params))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields got %d", resp.Code)
	}
}
