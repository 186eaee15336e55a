package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/autovid/autovid/internal/animation"
	"github.com/autovid/autovid/internal/config"
	"github.com/autovid/autovid/internal/db"
	"github.com/autovid/autovid/internal/models"
	"github.com/autovid/autovid/internal/queue"
	"github.com/autovid/autovid/internal/scene"
	"github.com/autovid/autovid/internal/services"
)

// imageConcurrency bounds the per-scene image generation fan-out.
const imageConcurrency = 4

// Executor runs one stage's work and records its outcome. The worker hands
// it dequeued tasks; on success the orchestrator's continuation fires.
type Executor struct {
	db     *db.DB
	orch   *Orchestrator
	openai *services.OpenAIService
	images services.ImageService
	voice  *services.VoiceoverService
	video  *animation.Manager
	cdn    *services.CDNService
	yt     *services.YouTubeService

	assetsDir string
	baseSeed  int
}

func NewExecutor(database *db.DB, orch *Orchestrator, openaiSvc *services.OpenAIService, images services.ImageService, voice *services.VoiceoverService, video *animation.Manager, cdn *services.CDNService, yt *services.YouTubeService, assetsDir string, baseSeed int) *Executor {
	return &Executor{
		db:        database,
		orch:      orch,
		openai:    openaiSvc,
		images:    images,
		voice:     voice,
		video:     video,
		cdn:       cdn,
		yt:        yt,
		assetsDir: assetsDir,
		baseSeed:  baseSeed,
	}
}

// Execute records the stage lifecycle around the stage handler and fires
// the continuation on success. A failed stage halts its chain: retry is an
// explicit operator action.
func (e *Executor) Execute(ctx context.Context, task *queue.Task) {
	project, err := e.db.GetProject(ctx, task.ProjectID)
	if err != nil {
		log.Printf("[Worker] Dropping %s task for unknown project %d: %v", task.Stage, task.ProjectID, err)
		return
	}

	if err := e.db.StartStage(ctx, project.ID, task.Stage); err != nil {
		log.Printf("[Worker] Failed to record %s start for project %d: %v", task.Stage, project.ID, err)
	}

	if err := e.runStage(ctx, project, task); err != nil {
		log.Printf("[Worker] Project %d stage %s failed: %v", project.ID, task.Stage, err)
		if dbErr := e.db.FailStage(ctx, project.ID, task.Stage, err.Error()); dbErr != nil {
			log.Printf("[Worker] Failed to record %s failure for project %d: %v", task.Stage, project.ID, dbErr)
		}
		return
	}

	if err := e.db.CompleteStage(ctx, project.ID, task.Stage); err != nil {
		log.Printf("[Worker] Failed to record %s completion for project %d: %v", task.Stage, project.ID, err)
	}
	if err := e.orch.Advance(ctx, project, task.Stage); err != nil {
		log.Printf("[Worker] Project %d continuation after %s failed: %v", project.ID, task.Stage, err)
	}
}

func (e *Executor) runStage(ctx context.Context, project *models.Project, task *queue.Task) error {
	layout := scene.NewLayout(e.assetsDir, project.ID)

	switch task.Stage {
	case models.StageScript:
		return e.runScript(ctx, layout, project)
	case models.StageMetadata:
		return e.runMetadata(ctx, layout, project)
	case models.StageChunks:
		return e.runChunks(ctx, layout, project)
	case models.StageVoiceover:
		return e.runVoiceover(ctx, layout)
	case models.StagePrompts:
		return e.runPrompts(ctx, layout, project)
	case models.StageThumbnail:
		return e.runThumbnail(ctx, layout, project)
	case models.StageImages:
		return e.runImages(ctx, layout, project)
	case models.StageVideo:
		_, err := e.video.Run(ctx, project.ID, project.VideoFormat)
		return err
	case models.StageSendToCDN:
		return e.runSendToCDN(ctx, layout, project)
	}
	return fmt.Errorf("unknown stage %q", task.Stage)
}

func (e *Executor) runScript(ctx context.Context, layout scene.Layout, project *models.Project) error {
	script, err := e.openai.GenerateScript(ctx, project.Topic, project.Chapters, project.VideoFormat)
	if err != nil {
		return err
	}
	return layout.SaveScript(script)
}

func (e *Executor) runMetadata(ctx context.Context, layout scene.Layout, project *models.Project) error {
	script, err := layout.LoadScript()
	if err != nil {
		return err
	}
	meta, err := e.openai.GenerateMetadata(ctx, project.Topic, script)
	if err != nil {
		return err
	}
	return layout.SaveMetadata(meta)
}

func (e *Executor) runChunks(ctx context.Context, layout scene.Layout, project *models.Project) error {
	script, err := layout.LoadScript()
	if err != nil {
		return err
	}
	chunks, err := e.openai.ChunkScript(ctx, script, config.FormatFor(project.VideoFormat).ChunkSec)
	if err != nil {
		return err
	}
	return layout.SaveChunks(chunks)
}

func (e *Executor) runVoiceover(ctx context.Context, layout scene.Layout) error {
	chunks, err := layout.LoadChunks()
	if err != nil {
		return err
	}
	return e.voice.GenerateAll(ctx, layout, chunks)
}

func (e *Executor) runPrompts(ctx context.Context, layout scene.Layout, project *models.Project) error {
	chunks, err := layout.LoadChunks()
	if err != nil {
		return err
	}
	prompts, err := e.openai.GeneratePrompts(ctx, project.Topic, chunks)
	if err != nil {
		return err
	}
	return layout.SavePrompts(prompts)
}

func (e *Executor) runThumbnail(ctx context.Context, layout scene.Layout, project *models.Project) error {
	meta, err := layout.LoadMetadata()
	if err != nil {
		return err
	}
	fmtCfg := config.FormatFor(project.VideoFormat)
	prompt := fmt.Sprintf(
		"Eye-catching video thumbnail for %q. Bold cinematic composition, dramatic lighting, single clear focal subject, no text.",
		meta.Title)
	return e.images.GenerateImage(ctx, prompt, e.baseSeed, fmtCfg.Width, fmtCfg.Height, layout.ThumbnailFile())
}

// runImages renders one still per scene with a bounded fan-out. Existing
// images are kept, so a retry only fills the gaps.
func (e *Executor) runImages(ctx context.Context, layout scene.Layout, project *models.Project) error {
	prompts, err := layout.LoadPrompts()
	if err != nil {
		return err
	}
	chunks, err := layout.LoadChunks()
	if err != nil {
		return err
	}

	fmtCfg := config.FormatFor(project.VideoFormat)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageConcurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			if existing := layout.FindSceneImage(chunk.ID); existing != "" {
				return nil
			}
			prompt, ok := prompts[chunk.ID]
			if !ok || prompt == "" {
				return fmt.Errorf("scene %d has no image prompt", chunk.ID)
			}
			seed := e.baseSeed + chunk.ID*1000
			if err := e.images.GenerateImage(gctx, prompt, seed, fmtCfg.Width, fmtCfg.Height, layout.SceneImage(chunk.ID)); err != nil {
				return fmt.Errorf("image for scene %d failed: %w", chunk.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Executor) runSendToCDN(ctx context.Context, layout scene.Layout, project *models.Project) error {
	meta, err := layout.LoadMetadata()
	if err != nil {
		return err
	}
	videoPath := layout.FinalVideo()
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("final video missing: %w", err)
	}

	if err := e.cdn.Deliver(ctx, project.ID, videoPath, layout.ThumbnailFile(), meta); err != nil {
		return err
	}

	if e.yt != nil {
		if _, err := e.yt.Upload(ctx, videoPath, layout.ThumbnailFile(), meta); err != nil {
			return fmt.Errorf("youtube upload failed: %w", err)
		}
	}

	// Working assets are disposable once delivery succeeded.
	for _, dir := range layout.ProjectDirs() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[CDN] Failed to clean %s: %v", dir, err)
		}
	}
	return nil
}
