package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/blueprint"
	"github.com/angelmondragon/reelforge-backend/internal/pipeline"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/pagination"
)

type stubCompiler struct {
	last  blueprint.CompileInput
	calls int
	err   error
}

func (s *stubCompiler) Compile(_ context.Context, input blueprint.CompileInput) (*models.Video, error) {
	s.calls++
	s.last = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Video{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Prompt:      input.Prompt,
		Title:       "The Lighthouse",
		Style:       input.Style,
		AspectRatio: input.AspectRatio,
		Characters:  []models.VideoCharacter{{ID: uuid.New(), Name: "Ada"}},
		Scenes:      []models.VideoScene{{ID: uuid.New(), Narration: "Night falls."}},
	}, nil
}

type stubVideoRepo struct {
	video      *models.Video
	page       pagination.Page[models.Video]
	lastParams pagination.Params
	cancelErr  error
	canceled   bool
}

func (s *stubVideoRepo) FindForUser(_ context.Context, id, userID uuid.UUID) (*models.Video, error) {
	if s.video == nil || s.video.ID != id || s.video.UserID != userID {
		return nil, videos.ErrVideoNotFound
	}
	return s.video, nil
}

func (s *stubVideoRepo) ListByUser(_ context.Context, _ uuid.UUID, params pagination.Params) (pagination.Page[models.Video], error) {
	s.lastParams = params
	return s.page, nil
}

func (s *stubVideoRepo) RequestCancel(_ context.Context, _, _ uuid.UUID) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.canceled = true
	return nil
}

type stubStarter struct {
	result pipeline.StartResult
	err    error
}

func (s *stubStarter) Start(_ context.Context, _, _ uuid.UUID) (pipeline.StartResult, error) {
	return s.result, s.err
}

const validCreateBody = `{"prompt":"  a lighthouse keeper finds a map  ","style":"anime","duration_seconds":30,"aspect_ratio":"9:16","video_model_tier":"premium","multi_angle":true}`

func TestVideoCreateCompilesBlueprint(t *testing.T) {
	userID := uuid.New()
	svc := &stubCompiler{}
	req := newRequest(http.MethodPost, "/api/v1/videos", validCreateBody, userID, nil)
	resp := httptest.NewRecorder()

	VideoCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.last.UserID != userID {
		t.Fatalf("unexpected user %s", svc.last.UserID)
	}
	if svc.last.Prompt != "a lighthouse keeper finds a map" {
		t.Fatalf("prompt not sanitized: %q", svc.last.Prompt)
	}
	if svc.last.Style != enums.VideoStyleAnime || svc.last.AspectRatio != enums.AspectRatioPortrait {
		t.Fatalf("unexpected enums %s %s", svc.last.Style, svc.last.AspectRatio)
	}
	if svc.last.Tier != enums.VideoModelTierPremium || !svc.last.MultiAngle {
		t.Fatalf("unexpected options %+v", svc.last)
	}

	var body videoResponse
	decodeData(t, resp, &body)
	if body.Title != "The Lighthouse" || len(body.Characters) != 1 || len(body.Scenes) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Scenes[0].Words == nil || body.Scenes[0].CharactersInScene == nil {
		t.Fatal("expected empty arrays instead of null")
	}
}

func TestVideoCreateValidatesBody(t *testing.T) {
	cases := map[string]string{
		"missing prompt": `{"style":"anime","duration_seconds":30,"aspect_ratio":"9:16"}`,
		"bad style":      `{"prompt":"x","style":"oil","duration_seconds":30,"aspect_ratio":"9:16"}`,
		"bad ratio":      `{"prompt":"x","style":"anime","duration_seconds":30,"aspect_ratio":"4:3"}`,
		"too short":      `{"prompt":"x","style":"anime","duration_seconds":1,"aspect_ratio":"9:16"}`,
		"unknown field":  `{"prompt":"x","style":"anime","duration_seconds":30,"aspect_ratio":"9:16","scene_count":3}`,
		"bad tier":       `{"prompt":"x","style":"anime","duration_seconds":30,"aspect_ratio":"9:16","video_model_tier":"ultra"}`,
		"trailing data":  `{"prompt":"x","style":"anime","duration_seconds":30,"aspect_ratio":"9:16"}{}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCompiler{}
			resp := httptest.NewRecorder()
			VideoCreate(svc, testLogger())(resp, newRequest(http.MethodPost, "/api/v1/videos", body, uuid.New(), nil))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
			if svc.calls != 0 {
				t.Fatal("compiler should not run for an invalid body")
			}
		})
	}
}

func TestVideoCreateKeepsMultibytePromptIntact(t *testing.T) {
	prompt := strings.Repeat("漢", maxPromptLength)
	body, err := json.Marshal(map[string]any{
		"prompt":           prompt,
		"style":            "anime",
		"duration_seconds": 30,
		"aspect_ratio":     "9:16",
		"voice":            strings.Repeat("é", 150),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	svc := &stubCompiler{}
	resp := httptest.NewRecorder()
	VideoCreate(svc, testLogger())(resp, newRequest(http.MethodPost, "/api/v1/videos", string(body), uuid.New(), nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("voice over 100 runes should fail validation, got %d", resp.Code)
	}

	body, _ = json.Marshal(map[string]any{
		"prompt":           prompt,
		"style":            "anime",
		"duration_seconds": 30,
		"aspect_ratio":     "9:16",
		"voice":            strings.Repeat("é", 100),
	})
	resp = httptest.NewRecorder()
	VideoCreate(svc, testLogger())(resp, newRequest(http.MethodPost, "/api/v1/videos", string(body), uuid.New(), nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if !utf8.ValidString(svc.last.Prompt) || svc.last.Prompt != prompt {
		t.Fatalf("prompt was altered: %d bytes, valid=%v", len(svc.last.Prompt), utf8.ValidString(svc.last.Prompt))
	}
	if utf8.RuneCountInString(svc.last.Voice) != 100 || !utf8.ValidString(svc.last.Voice) {
		t.Fatalf("voice was altered: %q", svc.last.Voice)
	}
}

func TestVideoCreateRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	VideoCreate(&stubCompiler{}, testLogger())(resp, newRequest(http.MethodPost, "/api/v1/videos", validCreateBody, uuid.Nil, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestVideoCreateSurfacesInsufficientCredits(t *testing.T) {
	svc := &stubCompiler{err: pkgerrors.New(pkgerrors.CodeInsufficientCredits, "not enough credits")}
	resp := httptest.NewRecorder()
	VideoCreate(svc, testLogger())(resp, newRequest(http.MethodPost, "/api/v1/videos", validCreateBody, uuid.New(), nil))
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeInsufficientCredits) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestVideoListPassesPagination(t *testing.T) {
	repo := &stubVideoRepo{page: pagination.Page[models.Video]{
		Items:      []models.Video{{ID: uuid.New(), Title: "one"}},
		NextCursor: "next",
	}}
	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC), ID: uuid.New()})
	req := newRequest(http.MethodGet, "/api/v1/videos?limit=5&cursor="+url.QueryEscape(cursor), "", uuid.New(), nil)
	resp := httptest.NewRecorder()

	VideoList(repo, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if repo.lastParams.Limit != 5 || repo.lastParams.Cursor != cursor {
		t.Fatalf("unexpected params %+v", repo.lastParams)
	}
	var page pagination.Page[videoSummaryResponse]
	decodeData(t, resp, &page)
	if len(page.Items) != 1 || page.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestVideoListRejectsBadQuery(t *testing.T) {
	for _, target := range []string{"/api/v1/videos?limit=500", "/api/v1/videos?cursor=not-a-cursor"} {
		repo := &stubVideoRepo{}
		resp := httptest.NewRecorder()
		VideoList(repo, testLogger())(resp, newRequest(http.MethodGet, target, "", uuid.New(), nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, resp.Code)
		}
		if repo.lastParams.Limit != 0 {
			t.Fatalf("%s: repository should not be queried", target)
		}
	}
}

func TestVideoDetailScopesToOwner(t *testing.T) {
	owner := uuid.New()
	video := &models.Video{ID: uuid.New(), UserID: owner}
	repo := &stubVideoRepo{video: video}
	params := map[string]string{"videoId": video.ID.String()}

	resp := httptest.NewRecorder()
	VideoDetail(repo, testLogger())(resp, newRequest(http.MethodGet, "/", "", owner, params))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	VideoDetail(repo, testLogger())(resp, newRequest(http.MethodGet, "/", "", uuid.New(), params))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	VideoDetail(repo, testLogger())(resp, newRequest(http.MethodGet, "/", "", owner, map[string]string{"videoId": "nope"}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed id got %d", resp.Code)
	}
}

func TestVideoEstimatePricesMissingAssets(t *testing.T) {
	owner := uuid.New()
	video := &models.Video{
		ID:             uuid.New(),
		UserID:         owner,
		VideoModelTier: enums.VideoModelTierStandard,
		Characters:     []models.VideoCharacter{{Name: "Ada"}},
		Scenes:         []models.VideoScene{{Narration: "hi"}},
	}
	resp := httptest.NewRecorder()
	VideoEstimate(&stubVideoRepo{video: video}, testLogger())(resp, newRequest(http.MethodGet, "/", "", owner, map[string]string{"videoId": video.ID.String()}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var est pipeline.Estimate
	decodeData(t, resp, &est)
	if est != pipeline.EstimateCost(video) {
		t.Fatalf("unexpected estimate %+v", est)
	}
	if est.Total == 0 {
		t.Fatal("expected a non-zero estimate")
	}
}

func TestVideoGenerateStatuses(t *testing.T) {
	videoID := uuid.New()
	params := map[string]string{"videoId": videoID.String()}

	queued := &stubStarter{result: pipeline.StartResult{RunID: uuid.New()}}
	resp := httptest.NewRecorder()
	VideoGenerate(queued, testLogger())(resp, newRequest(http.MethodPost, "/", "", uuid.New(), params))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", resp.Code)
	}
	var started pipeline.StartResult
	decodeData(t, resp, &started)
	if started.RunID != queued.result.RunID {
		t.Fatalf("unexpected run id %s", started.RunID)
	}

	skipped := &stubStarter{result: pipeline.StartResult{Skipped: true}}
	resp = httptest.NewRecorder()
	VideoGenerate(skipped, testLogger())(resp, newRequest(http.MethodPost, "/", "", uuid.New(), params))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for skipped got %d", resp.Code)
	}

	running := &stubStarter{err: videos.ErrVideoAlreadyRunning}
	resp = httptest.NewRecorder()
	VideoGenerate(running, testLogger())(resp, newRequest(http.MethodPost, "/", "", uuid.New(), params))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for running video got %d", resp.Code)
	}
}

func TestVideoCancel(t *testing.T) {
	params := map[string]string{"videoId": uuid.NewString()}

	repo := &stubVideoRepo{}
	resp := httptest.NewRecorder()
	VideoCancel(repo, testLogger())(resp, newRequest(http.MethodPost, "/", "", uuid.New(), params))
	if resp.Code != http.StatusAccepted || !repo.canceled {
		t.Fatalf("expected 202 and cancel, got %d %v", resp.Code, repo.canceled)
	}

	repo = &stubVideoRepo{cancelErr: videos.ErrVideoNotRunning}
	resp = httptest.NewRecorder()
	VideoCancel(repo, testLogger())(resp, newRequest(http.MethodPost, "/", "", uuid.New(), params))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 when idle got %d", resp.Code)
	}
}
