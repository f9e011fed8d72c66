package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/reelforge-backend/internal/generation"
	"github.com/angelmondragon/reelforge-backend/internal/workflow"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

// Durable step names recorded in workflow_steps.
const (
	StepScenes      = "scenes"
	StepSceneVideos = "scene-videos"

	waveCharacters = "characters"
)

var (
	errCanceled  = errors.New("canceled")
	errLeaseLost = errors.New("workflow lease lost")
)

func characterAttemptStep(attempt int) string { return fmt.Sprintf("characters.attempt.%d", attempt) }
func characterWaitStep(attempt int) string    { return fmt.Sprintf("characters.wait.%d", attempt) }

// execution is the state of one Execute call on a claimed run.
type execution struct {
	o     *Orchestrator
	run   *models.WorkflowRun
	steps map[string]bool
	video *models.Video

	mu    sync.Mutex
	spent int
}

type task struct {
	label string
	call  func(ctx context.Context) (*generation.Result, error)
}

func (e *execution) creditsSpent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.CreditsSpent + e.spent
}

// safeDrive converts a panic anywhere in the run into a failure.
func (e *execution) safeDrive(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			if e.o.logg != nil {
				logCtx := e.o.logg.WithField(ctx, "stack", string(debug.Stack()))
				e.o.logg.Error(logCtx, "pipeline.run.panic", err)
			}
		}
	}()
	return e.drive(ctx)
}

func (e *execution) drive(ctx context.Context) error {
	steps, err := e.o.runs.CompletedSteps(ctx, e.run.ID)
	if err != nil {
		return err
	}
	e.steps = steps
	if err := e.refresh(ctx); err != nil {
		return err
	}

	if err := e.characterWave(ctx); err != nil {
		return err
	}
	if err := e.checkCanceled(); err != nil {
		return err
	}
	if err := e.step(ctx, StepScenes, e.sceneWave); err != nil {
		return err
	}
	if err := e.checkCanceled(); err != nil {
		return err
	}
	return e.step(ctx, StepSceneVideos, e.clipWave)
}

func (e *execution) refresh(ctx context.Context) error {
	video, err := e.o.videos.FindByID(ctx, e.run.VideoID)
	if err != nil {
		return err
	}
	e.video = video
	return nil
}

func (e *execution) checkCanceled() error {
	if e.video != nil && e.video.CancelRequested {
		return errCanceled
	}
	return nil
}

func (e *execution) renew(ctx context.Context) error {
	err := e.o.runs.RenewLease(ctx, e.run.ID, e.o.owner, e.o.cfg.RunLease)
	if errors.Is(err, workflow.ErrLeaseHeld) {
		return fmt.Errorf("%w: %v", errLeaseLost, err)
	}
	return err
}

// step runs fn once per run. A step recorded by an earlier execution is skipped.
func (e *execution) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if e.steps[name] {
		e.log(ctx, "pipeline.step.skipped", map[string]any{"step": name})
		return nil
	}
	if err := e.renew(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.o.runs.CompleteStep(ctx, e.run.ID, name); err != nil {
		return err
	}
	e.steps[name] = true
	return nil
}

func (e *execution) characterWave(ctx context.Context) error {
	attempts := e.o.policy.attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		err := e.step(ctx, characterAttemptStep(attempt), func(ctx context.Context) error {
			return e.wave(ctx, waveCharacters, e.characterTasks())
		})
		if err != nil {
			return err
		}
		if err := e.refresh(ctx); err != nil {
			return err
		}

		pending := pendingCharacters(e.video)
		if len(pending) == 0 {
			return nil
		}
		if attempt == attempts {
			return fmt.Errorf("character generation incomplete after %d attempts: %s", attempts, strings.Join(pending, ", "))
		}

		delay := e.o.policy.Delay(attempt)
		err = e.step(ctx, characterWaitStep(attempt), func(ctx context.Context) error {
			e.log(ctx, "pipeline.characters.retry_wait", map[string]any{
				"attempt": attempt,
				"pending": pending,
				"delay":   delay.String(),
			})
			return e.o.sleep(ctx, delay)
		})
		if err != nil {
			return err
		}
		if err := e.refresh(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *execution) characterTasks() []task {
	var tasks []task
	for _, c := range e.video.Characters {
		if c.HasImage() {
			continue
		}
		input := generation.CharacterImageInput{
			UserID:      e.run.UserID,
			VideoID:     e.video.ID,
			CharacterID: c.ID,
		}
		tasks = append(tasks, task{
			label: "character " + c.Name,
			call: func(ctx context.Context) (*generation.Result, error) {
				return e.o.assets.CharacterImage(ctx, input)
			},
		})
	}
	return tasks
}

func (e *execution) sceneWave(ctx context.Context) error {
	var tasks []task
	for i := range e.video.Scenes {
		scene := &e.video.Scenes[i]
		if scene.NeedsAudio() {
			input := generation.SceneAudioInput{UserID: e.run.UserID, VideoID: e.video.ID, SceneID: scene.ID}
			tasks = append(tasks, task{
				label: fmt.Sprintf("scene %d audio", scene.Position),
				call: func(ctx context.Context) (*generation.Result, error) {
					return e.o.assets.SceneAudio(ctx, input)
				},
			})
		}
		if scene.HasImage() {
			continue
		}
		refs, missing := generation.ResolveCharacterRefs(e.video, scene)
		if len(missing) > 0 {
			e.log(ctx, "pipeline.scene.characters_unresolved", map[string]any{
				"scene_id": scene.ID.String(),
				"names":    missing,
			})
		}
		input := generation.SceneImageInput{
			UserID:              e.run.UserID,
			VideoID:             e.video.ID,
			SceneID:             scene.ID,
			ReferenceStorageIDs: refs,
		}
		tasks = append(tasks, task{
			label: fmt.Sprintf("scene %d image", scene.Position),
			call: func(ctx context.Context) (*generation.Result, error) {
				return e.o.assets.SceneImage(ctx, input)
			},
		})
	}
	if err := e.wave(ctx, StepScenes, tasks); err != nil {
		return err
	}
	return e.refresh(ctx)
}

func (e *execution) clipWave(ctx context.Context) error {
	var tasks []task
	for _, scene := range e.video.Scenes {
		if scene.HasClip() {
			continue
		}
		if !scene.HasImage() {
			e.log(ctx, "pipeline.scene.video_skipped", map[string]any{
				"scene_id": scene.ID.String(),
				"reason":   "scene image missing",
			})
			continue
		}
		input := generation.SceneVideoInput{UserID: e.run.UserID, VideoID: e.video.ID, SceneID: scene.ID}
		tasks = append(tasks, task{
			label: fmt.Sprintf("scene %d video", scene.Position),
			call: func(ctx context.Context) (*generation.Result, error) {
				return e.o.assets.SceneVideo(ctx, input)
			},
		})
	}
	if err := e.wave(ctx, StepSceneVideos, tasks); err != nil {
		return err
	}
	return e.refresh(ctx)
}

// wave fans tasks out and waits for all of them. A failed task never cancels its
// siblings. Only an insufficient credits failure is returned, once the wave settles.
func (e *execution) wave(ctx context.Context, name string, tasks []task) error {
	if len(tasks) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { e.o.metrics.ObserveWave(name, time.Since(start)) }()

	stopHeartbeat := e.heartbeat(ctx, name)

	var (
		mu   sync.Mutex
		errs error
	)
	g := new(errgroup.Group)
	g.SetLimit(e.o.cfg.MaxParallel)
	for _, t := range tasks {
		g.Go(func() error {
			res, err := e.call(ctx, t)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.label, err))
				mu.Unlock()
				return nil
			}
			e.credit(ctx, res)
			return nil
		})
	}
	_ = g.Wait()
	if err := stopHeartbeat(); err != nil {
		return err
	}

	failures := multierr.Errors(errs)
	if len(failures) > 0 {
		e.log(ctx, "pipeline.wave.errors", map[string]any{
			"wave":   name,
			"failed": len(failures),
			"tasks":  len(tasks),
			"errors": errs.Error(),
		})
	}
	for _, err := range failures {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientCredits) {
			return pkgerrors.Wrap(pkgerrors.CodeInsufficientCredits, err, describe(err))
		}
	}
	return nil
}

// heartbeat renews the lease until the returned stop func is called, so a wave that
// outlives RunLease is not handed to a second worker. Stop reports errLeaseLost when
// another owner took the run meanwhile. Other renewal failures are retried on the
// next tick.
func (e *execution) heartbeat(ctx context.Context, wave string) (stop func() error) {
	every := e.o.renewEvery
	if every <= 0 {
		return func() error { return nil }
	}
	done := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				result <- nil
				return
			case <-ctx.Done():
				result <- nil
				return
			case <-ticker.C:
				err := e.renew(ctx)
				if errors.Is(err, errLeaseLost) {
					result <- err
					return
				}
				if err != nil && e.o.logg != nil {
					e.o.logg.Error(e.o.logg.WithField(ctx, "wave", wave), "pipeline.lease.renew_failed", err)
				}
			}
		}
	}()
	return func() error {
		close(done)
		return <-result
	}
}

func (e *execution) call(ctx context.Context, t task) (res *generation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.call(ctx)
}

func (e *execution) credit(ctx context.Context, res *generation.Result) {
	if res == nil || res.Cost <= 0 {
		return
	}
	e.mu.Lock()
	e.spent += res.Cost
	e.mu.Unlock()
	// the debit already happened, so record it even when the run is shutting down
	if err := e.o.runs.AddCredits(context.WithoutCancel(ctx), e.run.ID, res.Cost); err != nil && e.o.logg != nil {
		e.o.logg.Error(ctx, "pipeline.run.credits_not_recorded", err)
	}
}

func (e *execution) log(ctx context.Context, msg string, fields map[string]any) {
	if e.o.logg == nil {
		return
	}
	e.o.logg.Info(e.o.logg.WithFields(ctx, fields), msg)
}

func pendingCharacters(video *models.Video) []string {
	var names []string
	for _, c := range video.Characters {
		if !c.HasImage() {
			names = append(names, c.Name)
		}
	}
	return names
}
