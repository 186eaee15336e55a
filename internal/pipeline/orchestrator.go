// Package pipeline owns stage-to-stage flow: which stage runs after which,
// the voiceover/images join in front of video assembly, and the one-time
// gates that keep redundant join evaluations from double-starting work.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/autovid/autovid/internal/flags"
	"github.com/autovid/autovid/internal/models"
	"github.com/autovid/autovid/internal/queue"
)

// Readiness and one-shot gate flags, keyed per project.
const (
	FlagVoiceoverReady = "voiceover_ready"
	FlagImagesReady    = "images_ready"
	FlagVideoStarted   = "video_started"
	FlagCDNEnqueued    = "cdn_enqueued"
)

// Submitter pushes a task onto its stage queue.
type Submitter interface {
	Submit(ctx context.Context, task *queue.Task) error
}

// PauseChecker reads a project's pause flag.
type PauseChecker interface {
	IsProjectPaused(ctx context.Context, projectID int64) (bool, error)
}

// Orchestrator advances projects through the stage graph. Both branches
// after chunks re-evaluate the join, so every one-time action behind it is
// gated by TryAcquire.
type Orchestrator struct {
	queue Submitter
	flags flags.Store
	pause PauseChecker
}

func NewOrchestrator(q Submitter, f flags.Store, p PauseChecker) *Orchestrator {
	return &Orchestrator{queue: q, flags: f, pause: p}
}

// StartPipeline begins a fresh run: all readiness and gate flags are
// cleared so the new run's join logic starts from scratch, then the script
// stage is enqueued. Returns the id of the submitted script task.
func (o *Orchestrator) StartPipeline(ctx context.Context, project *models.Project) (string, error) {
	keys := []string{
		flags.Key(project.ID, FlagVoiceoverReady),
		flags.Key(project.ID, FlagImagesReady),
		flags.Key(project.ID, FlagVideoStarted),
		flags.Key(project.ID, FlagCDNEnqueued),
	}
	if err := o.flags.Clear(ctx, keys...); err != nil {
		return "", fmt.Errorf("failed to clear run flags: %w", err)
	}

	task := queue.NewTask(models.StageScript, project)
	if err := o.queue.Submit(ctx, task); err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", models.StageScript, err)
	}
	log.Printf("[Pipeline] Project %d: %s enqueued", project.ID, models.StageScript)
	return task.ID.String(), nil
}

// SubmitStage enqueues one stage unit for a project. A paused project
// swallows the submission silently; resuming does not replay dropped
// submissions.
func (o *Orchestrator) SubmitStage(ctx context.Context, project *models.Project, stage models.StageName) error {
	paused, err := o.pause.IsProjectPaused(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to check pause flag: %w", err)
	}
	if paused {
		log.Printf("[Pipeline] Project %d paused, dropping %s submission", project.ID, stage)
		return nil
	}

	task := queue.NewTask(stage, project)
	if err := o.queue.Submit(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", stage, err)
	}
	log.Printf("[Pipeline] Project %d: %s enqueued", project.ID, stage)
	return nil
}

// Advance runs the continuation after a stage completed successfully.
func (o *Orchestrator) Advance(ctx context.Context, project *models.Project, completed models.StageName) error {
	switch completed {
	case models.StageScript:
		return o.SubmitStage(ctx, project, models.StageMetadata)

	case models.StageMetadata:
		return o.SubmitStage(ctx, project, models.StageChunks)

	case models.StageChunks:
		// Fan out: narration and visuals proceed independently until the
		// join in front of video assembly.
		if err := o.SubmitStage(ctx, project, models.StageVoiceover); err != nil {
			return err
		}
		return o.SubmitStage(ctx, project, models.StagePrompts)

	case models.StageVoiceover:
		if err := o.flags.MarkDone(ctx, flags.Key(project.ID, FlagVoiceoverReady)); err != nil {
			return fmt.Errorf("failed to mark voiceover ready: %w", err)
		}
		return o.maybeStartVideo(ctx, project)

	case models.StagePrompts:
		return o.SubmitStage(ctx, project, models.StageThumbnail)

	case models.StageThumbnail:
		return o.SubmitStage(ctx, project, models.StageImages)

	case models.StageImages:
		if err := o.flags.MarkDone(ctx, flags.Key(project.ID, FlagImagesReady)); err != nil {
			return fmt.Errorf("failed to mark images ready: %w", err)
		}
		return o.maybeStartVideo(ctx, project)

	case models.StageVideo:
		return o.maybeSendToCDN(ctx, project)

	case models.StageSendToCDN:
		log.Printf("[Pipeline] Project %d finished", project.ID)
		return nil
	}
	return fmt.Errorf("no continuation for stage %s", completed)
}

// maybeStartVideo evaluates the join. Either branch may get here first or
// both may get here concurrently; the video_started gate guarantees at most
// one video submission per run. The pause check runs before the gate so a
// paused project does not burn its one-shot.
func (o *Orchestrator) maybeStartVideo(ctx context.Context, project *models.Project) error {
	paused, err := o.pause.IsProjectPaused(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to check pause flag: %w", err)
	}
	if paused {
		log.Printf("[Pipeline] Project %d paused, join not evaluated", project.ID)
		return nil
	}

	if !o.flags.IsDone(ctx, flags.Key(project.ID, FlagVoiceoverReady)) ||
		!o.flags.IsDone(ctx, flags.Key(project.ID, FlagImagesReady)) {
		return nil
	}

	if !o.flags.TryAcquire(ctx, flags.Key(project.ID, FlagVideoStarted), flags.DefaultTTL) {
		return nil
	}
	return o.SubmitStage(ctx, project, models.StageVideo)
}

// maybeSendToCDN gates delivery the same way the join gates assembly.
func (o *Orchestrator) maybeSendToCDN(ctx context.Context, project *models.Project) error {
	paused, err := o.pause.IsProjectPaused(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to check pause flag: %w", err)
	}
	if paused {
		log.Printf("[Pipeline] Project %d paused, delivery not enqueued", project.ID)
		return nil
	}

	if !o.flags.TryAcquire(ctx, flags.Key(project.ID, FlagCDNEnqueued), flags.DefaultTTL) {
		return nil
	}
	return o.SubmitStage(ctx, project, models.StageSendToCDN)
}

// RetryStage resubmits one stage unit. The stage recorder clears the old
// error when the worker picks the task up, so no extra reset is needed
// here; the pause check still applies.
func (o *Orchestrator) RetryStage(ctx context.Context, project *models.Project, stage models.StageName) error {
	if !models.ValidStage(string(stage)) {
		return fmt.Errorf("unknown stage %q", stage)
	}
	return o.SubmitStage(ctx, project, stage)
}
