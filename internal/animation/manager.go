package animation

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autovid/autovid/internal/config"
	"github.com/autovid/autovid/internal/media"
	"github.com/autovid/autovid/internal/models"
	"github.com/autovid/autovid/internal/scene"
)

const (
	// Asset rescans tolerate slow shared storage; after this many rounds a
	// scene with missing assets is a hard error.
	assetScanAttempts = 12

	// At most this many scenes animate remotely at once.
	remoteConcurrency = 2
)

// Poll intervals, overridable in tests.
var (
	assetScanInterval    = 5 * time.Second
	baseClipPollInterval = 2 * time.Second
)

// Manager builds a project's final video: base clips for every scene,
// remote animation for a selected subset, assembly in scene order.
type Manager struct {
	ffmpeg    media.Tool
	client    Client
	images    ImageGenerator
	assetsDir string
	animCfg   config.Animation
	renderers int
}

func NewManager(ffmpeg media.Tool, client Client, images ImageGenerator, assetsDir string, animCfg config.Animation, renderConcurrency int) *Manager {
	if renderConcurrency < 1 {
		renderConcurrency = 1
	}
	return &Manager{
		ffmpeg:    ffmpeg,
		client:    client,
		images:    images,
		assetsDir: assetsDir,
		animCfg:   animCfg,
		renderers: renderConcurrency,
	}
}

// Run produces the final video for a project and returns its path. The
// chunks file is rewritten with each scene's real timing interval.
func (m *Manager) Run(ctx context.Context, projectID int64, format models.VideoFormat) (string, error) {
	layout := scene.NewLayout(m.assetsDir, projectID)
	fmtCfg := config.FormatFor(format)

	chunks, err := layout.LoadChunks()
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("project %d has no chunks", projectID)
	}

	// Prompts are optional here: without them the universal animation
	// prompt applies.
	prompts, err := layout.LoadPrompts()
	if err != nil {
		prompts = nil
	}

	// Remote animation runs alongside base-clip rendering so its wall time
	// hides behind the local work. Its workers gate on base clips, so if
	// rendering fails they must be cancelled on the way out.
	remoteCtx, cancelRemote := context.WithCancel(ctx)
	defer cancelRemote()

	animated := make(map[int]string)
	var animatedMu sync.Mutex
	remoteDone := m.startRemote(remoteCtx, layout, fmtCfg, format, chunks, prompts, animated, &animatedMu)

	infos, err := m.renderBaseClips(ctx, layout, fmtCfg, chunks)
	if err != nil {
		return "", err
	}

	if err := m.waitForRemote(ctx, remoteDone); err != nil {
		return "", err
	}

	return m.assemble(ctx, layout, fmtCfg, chunks, infos, animated, &animatedMu)
}

// sceneInfo resolves one scene's assets and audio duration. Empty image or
// audio means the scene is not ready yet.
func (m *Manager) sceneInfo(ctx context.Context, layout scene.Layout, sceneID int) (scene.Info, bool, error) {
	imagePath := layout.FindSceneImage(sceneID)
	audioPath := layout.FindSceneAudio(sceneID)
	if imagePath == "" || audioPath == "" {
		return scene.Info{}, false, nil
	}
	dur, err := m.ffmpeg.Duration(ctx, audioPath)
	if err != nil {
		return scene.Info{}, false, fmt.Errorf("failed to measure scene %d audio: %w", sceneID, err)
	}
	return scene.Info{
		SceneID:    sceneID,
		ImagePath:  imagePath,
		AudioPath:  audioPath,
		OutputPath: layout.BaseClip(sceneID),
		Duration:   dur,
	}, true, nil
}

// startRemote launches the animation branch and returns a channel that
// yields its outcome: a misconfigured or unreachable endpoint is an error
// that fails the whole stage, while individual scene failures only cost
// that scene its animation.
func (m *Manager) startRemote(ctx context.Context, layout scene.Layout, fmtCfg config.Format, format models.VideoFormat, chunks []models.Chunk, prompts map[int]string, animated map[int]string, mu *sync.Mutex) <-chan error {
	done := make(chan error, 1)

	if !m.animCfg.Enabled {
		close(done)
		return done
	}
	if m.client == nil {
		done <- fmt.Errorf("animation is enabled but no remote endpoint is configured")
		close(done)
		return done
	}

	sel := scene.SelectorFor(m.animCfg.Strategy, m.animCfg.FirstN, m.animCfg.EveryNth, m.animCfg.CustomScenes)
	sceneIDs := make([]int, len(chunks))
	for i, c := range chunks {
		sceneIDs[i] = c.ID
	}
	selected := scene.SelectScenes(sel, sceneIDs, format, m.animCfg.MaxScenesShorts)
	if len(selected) == 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)

		if err := m.client.Validate(ctx); err != nil {
			done <- fmt.Errorf("animation endpoint %q failed validation: %w", m.animCfg.EndpointID, err)
			return
		}
		log.Printf("[Animation] Animating %d scene(s): %s", len(selected), sel.Describe())

		pm := NewPartManager(m.client, m.images, m.ffmpeg, m.animCfg, fmtCfg)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(remoteConcurrency)
		for _, id := range selected {
			g.Go(func() error {
				// The base clip is the scene's safety net; only a scene
				// whose fallback already exists goes out to the service.
				if err := m.waitForBaseClip(gctx, layout, id); err != nil {
					log.Printf("[Animation] Scene %d falls back to base clip: %v", id, err)
					return nil
				}
				info, ready, err := m.sceneInfo(gctx, layout, id)
				if err != nil || !ready {
					log.Printf("[Animation] Scene %d falls back to base clip: %v", id, err)
					return nil
				}
				path, err := pm.AnimateScene(gctx, layout, info, prompts)
				if err != nil {
					// One lost scene does not spoil the others.
					log.Printf("[Animation] Scene %d falls back to base clip: %v", id, err)
					return nil
				}
				mu.Lock()
				animated[id] = path
				mu.Unlock()
				log.Printf("[Animation] Scene %d animated", id)
				return nil
			})
		}
		g.Wait()
	}()
	return done
}

// waitForBaseClip blocks until the scene's base clip exists and passes the
// quick check, or the branch is cancelled.
func (m *Manager) waitForBaseClip(ctx context.Context, layout scene.Layout, sceneID int) error {
	for {
		if clip := layout.FindBaseClip(sceneID); clip != "" && m.ffmpeg.QuickCheck(clip) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseClipPollInterval):
		}
	}
}

// renderBaseClips renders the zoom clip for every scene, rendering ready
// scenes each pass while rescanning for scenes whose assets are still
// landing. A straggler delays only its own clip; scenes still missing
// assets after the last rescan fail the stage.
func (m *Manager) renderBaseClips(ctx context.Context, layout scene.Layout, fmtCfg config.Format, chunks []models.Chunk) ([]scene.Info, error) {
	if err := os.MkdirAll(layout.VideoDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create video dir: %w", err)
	}

	resolved := make(map[int]scene.Info, len(chunks))
	for attempt := 0; attempt < assetScanAttempts; attempt++ {
		var ready []scene.Info
		var missing []int
		for _, c := range chunks {
			if _, done := resolved[c.ID]; done {
				continue
			}
			info, ok, err := m.sceneInfo(ctx, layout, c.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				missing = append(missing, c.ID)
				continue
			}
			ready = append(ready, info)
		}

		if err := m.renderPool(ctx, layout, fmtCfg, ready); err != nil {
			return nil, err
		}
		for _, info := range ready {
			resolved[info.SceneID] = info
		}

		if len(missing) == 0 {
			break
		}
		log.Printf("[Video] Waiting for assets of %d scene(s): %v", len(missing), missing)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(assetScanInterval):
		}
	}

	infos := make([]scene.Info, 0, len(chunks))
	var missing []int
	for _, c := range chunks {
		info, ok := resolved[c.ID]
		if !ok {
			missing = append(missing, c.ID)
			continue
		}
		infos = append(infos, info)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("scenes missing image or audio after rescan: %v", missing)
	}
	return infos, nil
}

// renderPool renders the given scenes in a bounded pool. Existing valid
// clips are kept, so retries skip finished work.
func (m *Manager) renderPool(ctx context.Context, layout scene.Layout, fmtCfg config.Format, infos []scene.Info) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.renderers)
	for _, info := range infos {
		g.Go(func() error {
			if existing := layout.FindBaseClip(info.SceneID); existing != "" && m.ffmpeg.QuickCheck(existing) {
				return nil
			}
			log.Printf("[Video] Rendering base clip for scene %d (%.1fs)", info.SceneID, info.Duration)
			if err := m.ffmpeg.RenderZoomClip(gctx, info.ImagePath, info.AudioPath, info.OutputPath, fmtCfg.Width, fmtCfg.Height, fmtCfg.FPS, info.Duration, fmtCfg.Bitrate); err != nil {
				return fmt.Errorf("failed to render scene %d: %w", info.SceneID, err)
			}
			if !m.ffmpeg.QuickCheck(info.OutputPath) {
				return fmt.Errorf("scene %d base clip failed validation", info.SceneID)
			}
			return nil
		})
	}
	return g.Wait()
}

// waitForRemote blocks until the animation branch finishes and surfaces
// its outcome. Exceeding the overall wait budget fails the stage outright
// rather than assembling a half-animated video nobody asked for.
func (m *Manager) waitForRemote(ctx context.Context, done <-chan error) error {
	budget := time.Duration(m.animCfg.OverallWaitSec) * time.Second
	if budget <= 0 {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(budget):
		return fmt.Errorf("animation jobs on endpoint %q did not finish within %s", m.animCfg.EndpointID, budget)
	}
}

// assemble picks each scene's best clip, normalizes stragglers, joins them
// losslessly and rewrites chunk timings from the clips' real durations.
func (m *Manager) assemble(ctx context.Context, layout scene.Layout, fmtCfg config.Format, chunks []models.Chunk, infos []scene.Info, animated map[int]string, mu *sync.Mutex) (string, error) {
	clips := make([]string, 0, len(infos))
	animatedCount := 0
	for _, info := range infos {
		mu.Lock()
		clip := animated[info.SceneID]
		mu.Unlock()

		if clip != "" && m.ffmpeg.QuickCheck(clip) {
			animatedCount++
		} else {
			clip = layout.FindBaseClip(info.SceneID)
			if clip == "" {
				return "", fmt.Errorf("scene %d has no usable clip", info.SceneID)
			}
		}

		normalized, err := m.ensureConformant(ctx, clip, fmtCfg)
		if err != nil {
			return "", fmt.Errorf("scene %d: %w", info.SceneID, err)
		}
		clips = append(clips, normalized)
	}
	log.Printf("[Video] Assembling %d scene(s), %d animated", len(clips), animatedCount)

	finalPath := layout.FinalVideo()
	if err := m.ffmpeg.Concat(ctx, clips, finalPath); err != nil {
		return "", fmt.Errorf("failed to join final video: %w", err)
	}
	if !m.ffmpeg.QuickCheck(finalPath) {
		return "", fmt.Errorf("final video failed validation")
	}

	if err := m.rewriteTimings(ctx, layout, chunks, clips); err != nil {
		return "", err
	}
	return finalPath, nil
}

// ensureConformant re-encodes a clip only when its geometry or frame rate
// diverges from the target, keeping the concat step copy-only.
func (m *Manager) ensureConformant(ctx context.Context, clip string, fmtCfg config.Format) (string, error) {
	w, h, err := m.ffmpeg.Dimensions(ctx, clip)
	if err != nil {
		return "", fmt.Errorf("failed to probe clip: %w", err)
	}
	fps, err := m.ffmpeg.FrameRate(ctx, clip)
	if err != nil {
		return "", fmt.Errorf("failed to probe frame rate: %w", err)
	}
	if w == fmtCfg.Width && h == fmtCfg.Height && fps == fmtCfg.FPS {
		return clip, nil
	}

	out := strings.TrimSuffix(clip, ".mp4") + "_norm.mp4"
	log.Printf("[Video] Normalizing %s (%dx%d@%d -> %dx%d@%d)", clip, w, h, fps, fmtCfg.Width, fmtCfg.Height, fmtCfg.FPS)
	if err := m.ffmpeg.Normalize(ctx, clip, out, fmtCfg.Width, fmtCfg.Height, fmtCfg.FPS); err != nil {
		return "", fmt.Errorf("failed to normalize clip: %w", err)
	}
	return out, nil
}

// rewriteTimings replaces each chunk's time field with its half-open
// interval on the final timeline, measured from the assembled clips.
// Animated scenes may run slightly longer than their audio, so the real
// clip durations are the source of truth.
func (m *Manager) rewriteTimings(ctx context.Context, layout scene.Layout, chunks []models.Chunk, clips []string) error {
	if len(chunks) != len(clips) {
		return fmt.Errorf("chunk/clip count mismatch: %d vs %d", len(chunks), len(clips))
	}

	cursor := 0.0
	for i := range chunks {
		dur, err := m.ffmpeg.Duration(ctx, clips[i])
		if err != nil {
			return fmt.Errorf("failed to measure clip for chunk %d: %w", chunks[i].ID, err)
		}
		chunks[i].Time = models.TimeInterval(cursor, cursor+dur)
		cursor += dur
	}

	if err := layout.SaveChunks(chunks); err != nil {
		return fmt.Errorf("failed to save chunk timings: %w", err)
	}
	return nil
}
