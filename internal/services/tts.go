package services

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/autovid/autovid/internal/media"
	"github.com/autovid/autovid/internal/models"
	"github.com/autovid/autovid/internal/scene"
)

// ---------------------------------------------------------------------------
// TTSService — common interface for text-to-speech providers
// ---------------------------------------------------------------------------

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	// GenerateSpeech converts text into audio bytes (mp3).
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

// VoiceoverService turns a project's chunks into one audio file per scene
// plus a merged narration track.
type VoiceoverService struct {
	tts    TTSService
	ffmpeg media.Tool
}

func NewVoiceoverService(tts TTSService, ffmpeg media.Tool) *VoiceoverService {
	return &VoiceoverService{tts: tts, ffmpeg: ffmpeg}
}

// GenerateAll synthesizes speech for every chunk sequentially (the provider
// rate-limits anyway) and merges the scene tracks into merged_output.mp3.
// Scene audio that already exists is kept, so retries skip finished work.
func (s *VoiceoverService) GenerateAll(ctx context.Context, layout scene.Layout, chunks []models.Chunk) error {
	if err := os.MkdirAll(layout.AudioDir(), 0755); err != nil {
		return fmt.Errorf("failed to create audio dir: %w", err)
	}

	scenePaths := make([]string, 0, len(chunks))
	for _, c := range chunks {
		path := layout.SceneAudio(c.ID)
		if existing := layout.FindSceneAudio(c.ID); existing != "" {
			scenePaths = append(scenePaths, existing)
			continue
		}

		audio, err := s.tts.GenerateSpeech(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("voiceover for scene %d failed: %w", c.ID, err)
		}
		if err := os.WriteFile(path, audio, 0644); err != nil {
			return fmt.Errorf("failed to write scene %d audio: %w", c.ID, err)
		}
		log.Printf("[Voiceover] Scene %d synthesized (%d bytes)", c.ID, len(audio))
		scenePaths = append(scenePaths, path)
	}

	if err := s.ffmpeg.Concat(ctx, scenePaths, layout.MergedAudio()); err != nil {
		return fmt.Errorf("failed to merge narration track: %w", err)
	}
	return nil
}
