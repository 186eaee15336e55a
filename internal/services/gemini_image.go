package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Image Generation Service
// Fallback still-image provider using the Google Gen AI SDK (Imagen).
// Used when no Flux service is configured.
// ---------------------------------------------------------------------------

const geminiImageModel = "imagen-3.0-generate-002"

type GeminiImageService struct {
	apiKey string
	model  string
}

// Ensure GeminiImageService implements ImageService at compile time.
var _ ImageService = (*GeminiImageService)(nil)

func NewGeminiImageService(apiKey string) *GeminiImageService {
	return &GeminiImageService{
		apiKey: apiKey,
		model:  geminiImageModel,
	}
}

// GenerateImage renders prompt via Imagen and writes the first candidate to
// outputPath. Imagen takes an aspect ratio rather than exact pixels; the
// caller normalizes geometry downstream. Seed is accepted for interface
// parity but the hosted model does not honor it.
func (s *GeminiImageService) GenerateImage(ctx context.Context, prompt string, seed, width, height int, outputPath string) error {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatioFor(width, height),
	}

	log.Printf("[Gemini] Generating image (model=%s, ratio=%s, promptLen=%d)", s.model, config.AspectRatio, len(prompt))

	resp, err := client.Models.GenerateImages(ctx, s.model, prompt, config)
	if err != nil {
		return fmt.Errorf("gemini image generation failed: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return fmt.Errorf("gemini returned no images")
	}

	data := resp.GeneratedImages[0].Image.ImageBytes
	if len(data) == 0 {
		return fmt.Errorf("gemini returned empty image")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

func aspectRatioFor(width, height int) string {
	if height > width {
		return "9:16"
	}
	return "16:9"
}
