package videos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/pagination"
)

// Repository persists videos and their keyed child rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, video *models.Video) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Video, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Video], error)

	FindCharacter(ctx context.Context, videoID, characterID uuid.UUID) (*models.VideoCharacter, error)
	FindScene(ctx context.Context, videoID, sceneID uuid.UUID) (*models.VideoScene, error)
	PatchCharacter(ctx context.Context, id uuid.UUID, expectedVersion int, patch CharacterPatch) (int, error)
	PatchScene(ctx context.Context, id uuid.UUID, expectedVersion int, patch ScenePatch) (int, error)

	StartRun(ctx context.Context, videoID, runID uuid.UUID) error
	FinishRun(ctx context.Context, videoID, runID uuid.UUID, status enums.RunStatus, runErr *string) error
	RequestCancel(ctx context.Context, videoID, userID uuid.UUID) error

	MarkRenderPending(ctx context.Context, videoID uuid.UUID, renderID, bucket string, at time.Time) error
	FinishRender(ctx context.Context, renderID string, outcome RenderOutcome) (*models.Video, bool, error)
	ListPendingRenders(ctx context.Context, requestedBefore time.Time, limit int) ([]models.Video, error)
}

// RenderOutcome is the final state reported for a render job.
type RenderOutcome struct {
	Succeeded bool
	VideoURL  string
	Error     string
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a video repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

// Create inserts the video header, then characters, scenes and angles in position order.
func (r *repository) Create(ctx context.Context, video *models.Video) error {
	if video == nil {
		return errors.New("video is required")
	}
	if video.ID == uuid.Nil {
		video.ID = uuid.New()
	}
	if video.RunStatus == "" {
		video.RunStatus = enums.RunStatusIdle
	}
	if video.RenderStatus == "" {
		video.RenderStatus = enums.RenderStatusNone
	}
	video.Version = 1

	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(video).Error; err != nil {
		return err
	}

	for i := range video.Characters {
		c := &video.Characters[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.VideoID = video.ID
		c.Position = i
		c.Version = 1
	}
	if len(video.Characters) > 0 {
		if err := db.Omit(clause.Associations).Create(&video.Characters).Error; err != nil {
			return err
		}
	}

	var angles []models.VideoSceneAngle
	for i := range video.Scenes {
		s := &video.Scenes[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.VideoID = video.ID
		s.Position = i
		s.Version = 1
		for j := range s.Angles {
			a := &s.Angles[j]
			if a.ID == uuid.Nil {
				a.ID = uuid.New()
			}
			a.SceneID = s.ID
			a.Position = j
			a.Version = 1
			angles = append(angles, *a)
		}
	}
	if len(video.Scenes) > 0 {
		if err := db.Omit(clause.Associations).Create(&video.Scenes).Error; err != nil {
			return err
		}
	}
	if len(angles) > 0 {
		if err := db.Create(&angles).Error; err != nil {
			return err
		}
	}
	return nil
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).
		Preload("Characters", byPosition).
		Preload("Scenes", byPosition).
		Preload("Scenes.Angles", byPosition).
		First(&video, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// FindForUser hides videos owned by someone else behind ErrVideoNotFound.
func (r *repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Video, error) {
	video, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if video.UserID != userID {
		return nil, ErrVideoNotFound
	}
	return video, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Video], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Video]{}, err
	}

	var rows []models.Video
	err = r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Scopes(pagination.Newest(cursor, params.Limit)).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[models.Video]{}, err
	}
	return pagination.BuildPage(rows, params.Limit, func(v models.Video) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	}), nil
}

func (r *repository) FindCharacter(ctx context.Context, videoID, characterID uuid.UUID) (*models.VideoCharacter, error) {
	var character models.VideoCharacter
	err := r.db.WithContext(ctx).First(&character, "id = ? AND video_id = ?", characterID, videoID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &character, nil
}

func (r *repository) FindScene(ctx context.Context, videoID, sceneID uuid.UUID) (*models.VideoScene, error) {
	var scene models.VideoScene
	err := r.db.WithContext(ctx).First(&scene, "id = ? AND video_id = ?", sceneID, videoID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &scene, nil
}

func (r *repository) PatchCharacter(ctx context.Context, id uuid.UUID, expectedVersion int, patch CharacterPatch) (int, error) {
	return r.patchVersioned(ctx, &models.VideoCharacter{}, id, expectedVersion, patch.columns())
}

func (r *repository) PatchScene(ctx context.Context, id uuid.UUID, expectedVersion int, patch ScenePatch) (int, error) {
	return r.patchVersioned(ctx, &models.VideoScene{}, id, expectedVersion, patch.columns())
}

// patchVersioned applies cols only when the stored version equals expected and
// returns the incremented version.
func (r *repository) patchVersioned(ctx context.Context, model any, id uuid.UUID, expected int, cols map[string]any) (int, error) {
	if len(cols) == 0 {
		return expected, nil
	}
	cols["version"] = gorm.Expr("version + 1")
	cols["updated_at"] = r.now().UTC()

	res := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", id, expected).
		UpdateColumns(cols)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 {
		return expected + 1, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrItemNotFound
	}
	return 0, ErrVersionConflict
}

// StartRun moves the video into running unless a run already owns it.
func (r *repository) StartRun(ctx context.Context, videoID, runID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ? AND run_status <> ?", videoID, enums.RunStatusRunning).
		UpdateColumns(map[string]any{
			"run_status":       enums.RunStatusRunning,
			"active_run_id":    runID,
			"run_error":        nil,
			"cancel_requested": false,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       r.now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.header(ctx, videoID); err != nil {
		return err
	}
	return ErrVideoAlreadyRunning
}

// FinishRun records the terminal state for the run that currently owns the video.
func (r *repository) FinishRun(ctx context.Context, videoID, runID uuid.UUID, status enums.RunStatus, runErr *string) error {
	if !status.IsTerminal() {
		return errors.New("finish requires a terminal status")
	}
	var errValue any
	if status == enums.RunStatusFailed && runErr != nil {
		errValue = *runErr
	}
	res := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ? AND active_run_id = ? AND run_status = ?", videoID, runID, enums.RunStatusRunning).
		UpdateColumns(map[string]any{
			"run_status":       status,
			"run_error":        errValue,
			"cancel_requested": false,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       r.now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVideoNotRunning
	}
	return nil
}

func (r *repository) RequestCancel(ctx context.Context, videoID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ? AND user_id = ? AND run_status = ?", videoID, userID, enums.RunStatusRunning).
		UpdateColumns(map[string]any{
			"cancel_requested": true,
			"updated_at":       r.now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	video, err := r.header(ctx, videoID)
	if err != nil {
		return err
	}
	if video.UserID != userID {
		return ErrVideoNotFound
	}
	return ErrVideoNotRunning
}

func (r *repository) MarkRenderPending(ctx context.Context, videoID uuid.UUID, renderID, bucket string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ? AND run_status <> ?", videoID, enums.RunStatusRunning).
		UpdateColumns(map[string]any{
			"render_id":           renderID,
			"bucket_name":         bucket,
			"render_status":       enums.RenderStatusPending,
			"render_error":        nil,
			"render_requested_at": at.UTC(),
			"video_url":           nil,
			"version":             gorm.Expr("version + 1"),
			"updated_at":          r.now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.header(ctx, videoID); err != nil {
			return err
		}
		return ErrVideoAlreadyRunning
	}
	return nil
}

// FinishRender settles a pending render. The bool is false when the render was
// already settled, so redelivered callbacks change nothing.
func (r *repository) FinishRender(ctx context.Context, renderID string, outcome RenderOutcome) (*models.Video, bool, error) {
	var video models.Video
	err := r.db.WithContext(ctx).First(&video, "render_id = ?", renderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, ErrVideoNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if video.RenderStatus != enums.RenderStatusPending {
		return &video, false, nil
	}

	cols := map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": r.now().UTC(),
	}
	if outcome.Succeeded {
		cols["render_status"] = enums.RenderStatusSucceeded
		cols["video_url"] = outcome.VideoURL
		cols["render_error"] = nil
	} else {
		cols["render_status"] = enums.RenderStatusFailed
		cols["render_error"] = outcome.Error
	}

	res := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ? AND render_status = ?", video.ID, enums.RenderStatusPending).
		UpdateColumns(cols)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return &video, false, nil
	}
	updated, err := r.header(ctx, video.ID)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func (r *repository) ListPendingRenders(ctx context.Context, requestedBefore time.Time, limit int) ([]models.Video, error) {
	var rows []models.Video
	q := r.db.WithContext(ctx).
		Where("render_status = ? AND render_requested_at < ?", enums.RenderStatusPending, requestedBefore.UTC()).
		Order("render_requested_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) header(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).First(&video, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}
