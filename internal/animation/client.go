// Package animation drives the remote image-to-video service and merges its
// output into per-scene clips.
package animation

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
)

// Client is the remote animation backend. One call animates one part.
type Client interface {
	// Validate probes the service before any jobs are submitted.
	Validate(ctx context.Context) error
	// AnimatePart runs submit, poll and download for one part and writes
	// the resulting clip to req.OutputPath.
	AnimatePart(ctx context.Context, req *PartRequest) error
}

// PartRequest describes one animation job. Width and Height are the
// service's render dimensions, which differ from the final output format.
type PartRequest struct {
	ImagePath      string
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	NumFrames      int
	Seed           int
	OutputPath     string
}

// RenderDims returns the service-side render dimensions for an output
// geometry. The service renders 720p and the result is normalized to the
// target format afterwards.
func RenderDims(outputWidth, outputHeight int) (int, int) {
	if outputHeight > outputWidth {
		return 720, 1280
	}
	return 1280, 720
}

// HTTPClient talks to an LTX video service exposed through a runpod proxy.
type HTTPClient struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	jobTimeout   time.Duration
}

// NewHTTPClient derives the service URL from the endpoint id. An empty or
// placeholder id means the deployment was never configured and is an error
// at construction time, not at first use.
func NewHTTPClient(endpointID string, pollInterval, jobTimeout time.Duration) (*HTTPClient, error) {
	id := strings.TrimSpace(endpointID)
	if id == "" || strings.EqualFold(id, "unknown") {
		return nil, fmt.Errorf("animation endpoint id is not configured")
	}
	return &HTTPClient{
		baseURL:      fmt.Sprintf("https://%s-8000.proxy.runpod.net", id),
		http:         &http.Client{Timeout: 120 * time.Second},
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
	}, nil
}

// newTestClient is used by tests to point at an httptest server.
func newTestClient(baseURL string, pollInterval, jobTimeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: 30 * time.Second},
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
	}
}

// Validate checks that the service host answers at all. Any HTTP response
// below 500 counts as reachable; only transport failures and server errors
// indicate a dead endpoint.
func (c *HTTPClient) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("animation service unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("animation service at %s returned %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

// AnimatePart submits the job, polls until it finishes and downloads the
// clip. The whole call is bounded by the client's job timeout.
func (c *HTTPClient) AnimatePart(ctx context.Context, req *PartRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	taskID, err := c.submit(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to submit animation job: %w", err)
	}
	log.Printf("[Animation] Submitted job %s for %s (%d frames)", taskID, filepath.Base(req.ImagePath), req.NumFrames)

	if err := c.waitForJob(ctx, taskID); err != nil {
		return err
	}
	return c.download(ctx, taskID, req.OutputPath)
}

func (c *HTTPClient) submit(ctx context.Context, req *PartRequest) (string, error) {
	img, err := os.Open(req.ImagePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("image", filepath.Base(req.ImagePath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, img); err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	fields := map[string]string{
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
		"expected_width":  fmt.Sprintf("%d", req.Width),
		"expected_height": fmt.Sprintf("%d", req.Height),
		"num_frames":      fmt.Sprintf("%d", req.NumFrames),
		"seed":            fmt.Sprintf("%d", req.Seed),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", &body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
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

// waitForJob polls status until the job leaves the pending state. The
// service reports upper-case status strings; comparison is case-insensitive.
func (c *HTTPClient) waitForJob(ctx context.Context, taskID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, detail, err := c.status(ctx, taskID)
		if err != nil {
			return fmt.Errorf("failed to poll job %s: %w", taskID, err)
		}

		switch strings.ToLower(status) {
		case "success":
			return nil
		case "failure", "error":
			return fmt.Errorf("animation job %s failed: %s", taskID, detail)
		case "pending":
			// keep waiting
		default:
			log.Printf("[Animation] Job %s reported unknown status %q, still waiting", taskID, status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for animation job %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) status(ctx context.Context, taskID string) (status, detail string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+taskID, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status returned %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("failed to decode status response: %w", err)
	}
	return out.Status, out.Error, nil
}

// download streams the finished clip to a temp file and renames it into
// place so a partially written clip is never mistaken for a finished one.
func (c *HTTPClient) download(ctx context.Context, taskID, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/"+taskID, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download job %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %d for job %s", resp.StatusCode, taskID)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tmpPath := outputPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write clip: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move clip into place: %w", err)
	}
	return nil
}
