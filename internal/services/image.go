package services

import "context"

// ImageService — common interface for still-image providers. The pipeline
// prefers the Flux service and falls back to Gemini when Flux is not
// configured; per-part images in the animation package use the same
// interface.
type ImageService interface {
	// GenerateImage renders prompt at the given geometry and writes the
	// result to outputPath. Seed makes reruns reproducible where the
	// provider supports it.
	GenerateImage(ctx context.Context, prompt string, seed, width, height int, outputPath string) error
}
