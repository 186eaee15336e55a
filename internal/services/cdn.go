package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autovid/autovid/internal/models"
)

// ---------------------------------------------------------------------------
// CDN Delivery Service
// Pushes the final video, thumbnail and publish metadata to the CDN intake
// endpoint as one multipart request.
// ---------------------------------------------------------------------------

type CDNService struct {
	baseURL string
	client  *http.Client
}

func NewCDNService(baseURL string) *CDNService {
	return &CDNService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// Deliver uploads the finished assets. The thumbnail is optional; metadata
// travels as a JSON form field.
func (s *CDNService) Deliver(ctx context.Context, projectID int64, videoPath, thumbnailPath string, meta *models.Metadata) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := attachFile(w, "video", videoPath); err != nil {
		return err
	}
	if thumbnailPath != "" {
		if _, err := os.Stat(thumbnailPath); err == nil {
			if err := attachFile(w, "thumbnail", thumbnailPath); err != nil {
				return err
			}
		}
	}

	if err := w.WriteField("project_id", fmt.Sprintf("%d", projectID)); err != nil {
		return err
	}
	if meta != nil {
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(metaJSON)); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	log.Printf("[CDN] Delivering project %d (%s)", projectID, filepath.Base(videoPath))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("cdn request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("cdn returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	log.Printf("[CDN] Project %d delivered", projectID)
	return nil
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", field, err)
	}
	return nil
}
