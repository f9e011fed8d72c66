// Package generation produces single assets for a video: character stills, scene
// stills, scene clips and narration audio with word timings.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/credits"
	"github.com/angelmondragon/reelforge-backend/internal/videos"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/metrics"
	"github.com/angelmondragon/reelforge-backend/pkg/storage"
)

// maxWriteAttempts bounds how often a slot write is rebased onto a newer item version.
const maxWriteAttempts = 5

// Params wires the generator collaborators.
type Params struct {
	Videos       VideoStore
	Credits      CreditLedger
	Blob         storage.Blob
	Images       ImageModel
	Clips        VideoModel
	Speech       SpeechSynthesizer
	Transcriber  Transcriber
	KeyPrefix    string
	DefaultVoice string
	Metrics      *metrics.PipelineMetrics
	Logger       *logger.Logger
}

// Generator implements Assets.
type Generator struct {
	videos       VideoStore
	credits      CreditLedger
	blob         storage.Blob
	images       ImageModel
	clips        VideoModel
	speech       SpeechSynthesizer
	transcriber  Transcriber
	keyPrefix    string
	defaultVoice string
	metrics      *metrics.PipelineMetrics
	logg         *logger.Logger
	now          func() time.Time
}

func NewGenerator(p Params) (*Generator, error) {
	switch {
	case p.Videos == nil:
		return nil, fmt.Errorf("video store required")
	case p.Credits == nil:
		return nil, fmt.Errorf("credit ledger required")
	case p.Blob == nil:
		return nil, fmt.Errorf("blob storage required")
	case p.Images == nil:
		return nil, fmt.Errorf("image model required")
	case p.Clips == nil:
		return nil, fmt.Errorf("video model required")
	case p.Speech == nil:
		return nil, fmt.Errorf("speech synthesizer required")
	case p.Transcriber == nil:
		return nil, fmt.Errorf("transcriber required")
	}
	return &Generator{
		videos:       p.Videos,
		credits:      p.Credits,
		blob:         p.Blob,
		images:       p.Images,
		clips:        p.Clips,
		speech:       p.Speech,
		transcriber:  p.Transcriber,
		keyPrefix:    p.KeyPrefix,
		defaultVoice: p.DefaultVoice,
		metrics:      p.Metrics,
		logg:         p.Logger,
		now:          time.Now,
	}, nil
}

// Result describes the slot an asset was written to.
type Result struct {
	Kind      enums.AssetKind     `json:"kind"`
	VideoID   uuid.UUID           `json:"video_id"`
	ItemID    uuid.UUID           `json:"item_id"`
	StorageID string              `json:"storage_id"`
	URL       string              `json:"url"`
	Version   int                 `json:"version"`
	Cost      int                 `json:"cost"`
	Words     []models.WordTiming `json:"words,omitempty"`
}

type payload struct {
	data        []byte
	contentType string
}

type storedAsset struct {
	key   string
	url   string
	words []models.WordTiming
}

// slotState reads the current item version and a fingerprint of the slot being written.
type slotState func(ctx context.Context) (int, string, error)

// job is one pass through the shared generation template.
type job struct {
	kind        enums.AssetKind
	video       *models.Video
	userID      uuid.UUID
	itemID      uuid.UUID
	cost        int
	version     int
	fingerprint string

	read    slotState
	flag    func(ctx context.Context, version int, on bool) (int, error)
	produce func(ctx context.Context) (payload, error)
	// enrich runs after the bytes are stored and may fill in derived data.
	enrich func(ctx context.Context, stored *storedAsset) error
	write  func(ctx context.Context, version int, stored storedAsset) (int, error)
}

// loadVideo resolves the video for userID. Videos owned by someone else are reported
// as not found.
func (g *Generator) loadVideo(ctx context.Context, userID, videoID uuid.UUID) (*models.Video, error) {
	if userID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	video, err := g.videos.FindByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.UserID != userID {
		return nil, videos.ErrVideoNotFound
	}
	return video, nil
}

func (g *Generator) admit(ctx context.Context, userID uuid.UUID, cost int) error {
	balance, err := g.credits.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance < cost {
		return credits.InsufficientCredits(cost, balance)
	}
	return nil
}

func (g *Generator) run(ctx context.Context, j job) (res *Result, err error) {
	started := g.now()
	ctx = g.logContext(ctx, j)
	defer func() {
		g.metrics.ObserveAsset(string(j.kind), outcomeOf(err), g.now().Sub(started))
	}()

	if err := g.admit(ctx, j.userID, j.cost); err != nil {
		return nil, err
	}

	version, err := writeWithRebase(ctx, j.version, j.fingerprint, j.read, func(ctx context.Context, v int) (int, error) {
		return j.flag(ctx, v, true)
	})
	if err != nil {
		return nil, err
	}
	flagged := true
	defer func() {
		if flagged {
			g.clearFlag(context.WithoutCancel(ctx), j)
		}
	}()

	out, err := j.produce(ctx)
	if err != nil {
		return nil, err
	}
	if len(out.data) == 0 {
		return nil, ErrNoCandidatesReturned
	}

	stored, err := g.store(ctx, j, out)
	if err != nil {
		return nil, err
	}
	if j.enrich != nil {
		if err := j.enrich(ctx, &stored); err != nil {
			return nil, err
		}
	}

	version, err = writeWithRebase(ctx, version, j.fingerprint, j.read, func(ctx context.Context, v int) (int, error) {
		return j.write(ctx, v, stored)
	})
	if err != nil {
		return nil, err
	}
	flagged = false

	videoID := j.video.ID
	itemID := j.itemID
	if _, err := g.credits.Debit(ctx, credits.DebitInput{
		UserID:  j.userID,
		VideoID: &videoID,
		ItemID:  &itemID,
		Kind:    j.kind,
		Amount:  j.cost,
	}); err != nil {
		g.warn(ctx, "generation.debit.failed", err)
		return nil, err
	}
	g.metrics.AddCredits(string(j.kind), j.cost)

	if g.logg != nil {
		g.logg.Info(g.logg.WithField(ctx, "storage_id", stored.key), "generation.asset.completed")
	}
	return &Result{
		Kind:      j.kind,
		VideoID:   videoID,
		ItemID:    itemID,
		StorageID: stored.key,
		URL:       stored.url,
		Version:   version,
		Cost:      j.cost,
		Words:     stored.words,
	}, nil
}

// store sniffs the payload type, writes it to blob storage and resolves its public URL.
func (g *Generator) store(ctx context.Context, j job, out payload) (storedAsset, error) {
	detected := mimetype.Detect(out.data)
	contentType := detected.String()
	if detected.Is("application/octet-stream") && out.contentType != "" {
		contentType = out.contentType
	}
	if idx := strings.Index(contentType, ";"); idx > 0 {
		contentType = contentType[:idx]
	}

	key := storage.ObjectKey(g.keyPrefix, j.video.ID, string(j.kind), j.itemID, detected.Extension())
	obj, err := g.blob.Put(ctx, key, out.data, contentType)
	if err != nil {
		return storedAsset{}, storageFailed(err, "put object")
	}
	url := g.blob.PublicURL(obj.Key)
	if url == "" {
		return storedAsset{}, storageFailed(errors.New("empty public url"), "resolve url")
	}
	return storedAsset{key: obj.Key, url: url}, nil
}

// writeWithRebase applies a versioned patch. On a version conflict the item is re-read
// and the patch re-applied on the new version, as long as the slot fingerprint is
// unchanged. A changed slot means another writer won and the conflict is returned.
func writeWithRebase(ctx context.Context, version int, fingerprint string, read slotState, apply func(context.Context, int) (int, error)) (int, error) {
	for attempt := 1; ; attempt++ {
		next, err := apply(ctx, version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, videos.ErrVersionConflict) || attempt >= maxWriteAttempts {
			return 0, err
		}
		current, fp, readErr := read(ctx)
		if readErr != nil {
			return 0, readErr
		}
		if fp != fingerprint {
			return 0, err
		}
		version = current
	}
}

// clearFlag drops the in-process flag on whatever version the item is at now.
func (g *Generator) clearFlag(ctx context.Context, j job) {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		version, _, err := j.read(ctx)
		if err != nil {
			lastErr = err
			break
		}
		if _, err = j.flag(ctx, version, false); err == nil {
			return
		}
		lastErr = err
		if !errors.Is(err, videos.ErrVersionConflict) {
			break
		}
	}
	g.warn(ctx, "generation.flag.clear_failed", lastErr)
}

func (g *Generator) logContext(ctx context.Context, j job) context.Context {
	if g.logg == nil {
		return ctx
	}
	ctx = g.logg.WithVideoID(ctx, j.video.ID.String())
	return g.logg.WithFields(ctx, map[string]any{
		"asset_kind": j.kind,
		"item_id":    j.itemID.String(),
		"cost":       j.cost,
	})
}

func (g *Generator) warn(ctx context.Context, msg string, err error) {
	if g.logg == nil {
		return
	}
	if err != nil {
		ctx = g.logg.WithField(ctx, "error", err.Error())
	}
	g.logg.Warn(ctx, msg)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSucceeded
	case errors.Is(err, videos.ErrVersionConflict):
		return metrics.OutcomeConflict
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientCredits),
		pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized),
		pkgerrors.HasCode(err, pkgerrors.CodeNotFound),
		pkgerrors.HasCode(err, pkgerrors.CodeConflict),
		pkgerrors.HasCode(err, pkgerrors.CodeValidation):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T { return &v }
