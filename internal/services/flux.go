package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Flux Image Generation Service
// Talks to a self-hosted Flux inference server: submit a prompt, poll the
// task, download the finished image.
// ---------------------------------------------------------------------------

const (
	fluxPollInterval    = 5 * time.Second
	fluxMaxPollDuration = 5 * time.Minute
)

// FluxService handles still-image generation via a Flux HTTP service.
type FluxService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Ensure FluxService implements ImageService at compile time.
var _ ImageService = (*FluxService)(nil)

func NewFluxService(baseURL, apiKey string) *FluxService {
	return &FluxService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type fluxGenerateRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   int    `json:"seed"`
}

// GenerateImage submits the prompt, waits for the task and writes the image
// to outputPath. Implements the ImageService interface.
func (s *FluxService) GenerateImage(ctx context.Context, prompt string, seed, width, height int, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, fluxMaxPollDuration)
	defer cancel()

	taskID, err := s.submit(ctx, fluxGenerateRequest{
		Prompt: prompt,
		Width:  width,
		Height: height,
		Seed:   seed,
	})
	if err != nil {
		return fmt.Errorf("flux submit failed: %w", err)
	}
	log.Printf("[Flux] Task %s submitted (%dx%d, seed=%d, promptLen=%d)", taskID, width, height, seed, len(prompt))

	if err := s.waitForTask(ctx, taskID); err != nil {
		return err
	}
	return s.download(ctx, taskID, outputPath)
}

func (s *FluxService) submit(ctx context.Context, body fluxGenerateRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/generate", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("generate response missing task_id")
	}
	return out.TaskID, nil
}

// waitForTask polls until the task settles. The service reports upper-case
// states, so matching is case-insensitive.
func (s *FluxService) waitForTask(ctx context.Context, taskID string) error {
	ticker := time.NewTicker(fluxPollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/status/"+taskID, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to poll flux task %s: %w", taskID, err)
		}

		var out struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("failed to decode flux status: %w", decodeErr)
		}

		switch strings.ToLower(out.Status) {
		case "success":
			return nil
		case "failure", "error":
			return fmt.Errorf("flux task %s failed: %s", taskID, out.Error)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for flux task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *FluxService) download(ctx context.Context, taskID, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/download/"+taskID, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download flux result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %d for flux task %s", resp.StatusCode, taskID)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tmpPath := outputPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, outputPath)
}
