package animation

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/autovid/autovid/internal/config"
	"github.com/autovid/autovid/internal/media"
	"github.com/autovid/autovid/internal/scene"
)

// ImageGenerator produces a still image for an animation part. The image
// services in internal/services satisfy this.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, seed, width, height int, outputPath string) error
}

// PartManager animates one scene: it plans the parts, animates each part
// remotely and merges them into a single clip carrying the scene's audio.
type PartManager struct {
	client Client
	images ImageGenerator
	ffmpeg media.Tool
	cfg    config.Animation
	format config.Format
}

func NewPartManager(client Client, images ImageGenerator, ffmpeg media.Tool, cfg config.Animation, format config.Format) *PartManager {
	return &PartManager{
		client: client,
		images: images,
		ffmpeg: ffmpeg,
		cfg:    cfg,
		format: format,
	}
}

// partSeed derives a stable per-part seed so reruns reproduce the same
// imagery while scenes and parts never collide.
func partSeed(baseSeed, sceneID, partIndex int) int {
	return baseSeed + sceneID*1000 + partIndex*100
}

// resolvePrompt picks the animation prompt for a scene. When original
// prompts are enabled and one exists for the scene, it is used with the
// motion suffix appended; otherwise the universal prompt stands alone.
func (m *PartManager) resolvePrompt(sceneID int, prompts map[int]string) string {
	if m.cfg.UseOriginalPrompts {
		if p, ok := prompts[sceneID]; ok && p != "" {
			return p + m.cfg.AnimationSuffix
		}
	}
	return m.cfg.UniversalPrompt
}

// partImage returns the still image for a part. Part 0 always reuses the
// scene's own image. Later parts get a freshly generated variation; if
// generation fails the original image is reused rather than failing the
// whole scene.
func (m *PartManager) partImage(ctx context.Context, info scene.Info, partIndex int, prompt string) string {
	if partIndex == 0 || m.images == nil {
		return info.ImagePath
	}

	outPath := scene.FindPartImage(info.ImagePath, partIndex)
	if _, err := os.Stat(outPath); err == nil {
		return outPath
	}

	seed := partSeed(m.cfg.BaseSeed, info.SceneID, partIndex)
	if err := m.images.GenerateImage(ctx, prompt, seed, m.format.Width, m.format.Height, outPath); err != nil {
		log.Printf("[Animation] Scene %d part %d image generation failed, reusing scene image: %v", info.SceneID, partIndex, err)
		return info.ImagePath
	}
	return outPath
}

// AnimateScene runs the full per-scene flow and returns the path of the
// merged, audio-carrying, normalized clip. Any part failure abandons the
// scene; the caller falls back to the base clip.
func (m *PartManager) AnimateScene(ctx context.Context, layout scene.Layout, info scene.Info, prompts map[int]string) (string, error) {
	parts := scene.PlanParts(info.Duration, m.cfg.TargetPartSec, m.cfg.MaxPartSec, m.cfg.OverlapSec)
	if len(parts) == 0 {
		return "", fmt.Errorf("scene %d has no animatable duration", info.SceneID)
	}

	prompt := m.resolvePrompt(info.SceneID, prompts)
	renderW, renderH := RenderDims(m.format.Width, m.format.Height)
	fps := m.format.FPS

	log.Printf("[Animation] Scene %d: %.1fs in %d part(s)", info.SceneID, info.Duration, len(parts))

	partPaths := make([]string, 0, len(parts))
	for _, part := range parts {
		outPath := layout.AnimatedPartClip(info.SceneID, part.Index)
		req := &PartRequest{
			ImagePath:      m.partImage(ctx, info, part.Index, prompt),
			Prompt:         prompt,
			NegativePrompt: m.cfg.NegativePrompt,
			Width:          renderW,
			Height:         renderH,
			NumFrames:      int(math.Round(part.Duration * float64(fps))),
			Seed:           partSeed(m.cfg.BaseSeed, info.SceneID, part.Index),
			OutputPath:     outPath,
		}
		if err := m.client.AnimatePart(ctx, req); err != nil {
			cleanup(partPaths)
			return "", fmt.Errorf("scene %d part %d: %w", info.SceneID, part.Index, err)
		}
		partPaths = append(partPaths, outPath)
	}

	merged, err := m.mergeParts(ctx, layout, info, partPaths)
	if err != nil {
		cleanup(partPaths)
		return "", err
	}
	return merged, nil
}

// mergeParts joins the animated parts, lays the scene's voiceover under the
// result and normalizes it to the output format.
func (m *PartManager) mergeParts(ctx context.Context, layout scene.Layout, info scene.Info, partPaths []string) (string, error) {
	finalPath := layout.AnimatedClip(info.SceneID)
	silentPath := finalPath + ".video.mp4"

	if len(partPaths) == 1 {
		if err := os.Rename(partPaths[0], silentPath); err != nil {
			return "", fmt.Errorf("failed to move scene %d part: %w", info.SceneID, err)
		}
	} else {
		if err := m.ffmpeg.Concat(ctx, partPaths, silentPath); err != nil {
			return "", fmt.Errorf("failed to join scene %d parts: %w", info.SceneID, err)
		}
		cleanup(partPaths)
	}

	withAudio := finalPath + ".audio.mp4"
	if err := m.ffmpeg.ReplaceAudio(ctx, silentPath, info.AudioPath, withAudio); err != nil {
		os.Remove(silentPath)
		return "", fmt.Errorf("failed to add audio to scene %d: %w", info.SceneID, err)
	}
	os.Remove(silentPath)

	if err := m.ffmpeg.Normalize(ctx, withAudio, finalPath, m.format.Width, m.format.Height, m.format.FPS); err != nil {
		os.Remove(withAudio)
		return "", fmt.Errorf("failed to normalize scene %d: %w", info.SceneID, err)
	}
	os.Remove(withAudio)

	if !m.ffmpeg.QuickCheck(finalPath) {
		os.Remove(finalPath)
		return "", fmt.Errorf("scene %d animated clip failed validation", info.SceneID)
	}
	return finalPath, nil
}

func cleanup(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
