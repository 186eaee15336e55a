package animation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/autovid/autovid/internal/config"
	"github.com/autovid/autovid/internal/models"
	"github.com/autovid/autovid/internal/scene"
)

// fakeTool stands in for ffmpeg. It creates real (tiny) files so the
// manager's filesystem probes behave, and records what it was asked to do.
type fakeTool struct {
	mu          sync.Mutex
	durations   map[string]float64 // by path; default 3.0
	badDims     map[string]bool    // clips reporting wrong geometry
	target      config.Format
	renderDelay time.Duration // simulated base-clip render time

	concatInputs []string
	normalized   []string
	rendered     []string
}

func newFakeTool(target config.Format) *fakeTool {
	return &fakeTool{
		durations: make(map[string]float64),
		badDims:   make(map[string]bool),
		target:    target,
	}
}

func (f *fakeTool) Duration(_ context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.durations[path]; ok {
		return d, nil
	}
	return 3.0, nil
}

func (f *fakeTool) Dimensions(_ context.Context, path string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badDims[path] {
		return 1280, 720, nil
	}
	return f.target.Width, f.target.Height, nil
}

func (f *fakeTool) FrameRate(_ context.Context, _ string) (int, error) {
	return f.target.FPS, nil
}

func (f *fakeTool) writeClip(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("clip"), 0644)
}

func (f *fakeTool) RenderZoomClip(_ context.Context, _, _, outputPath string, _, _, _ int, _ float64, _ string) error {
	if f.renderDelay > 0 {
		time.Sleep(f.renderDelay)
	}
	f.mu.Lock()
	f.rendered = append(f.rendered, outputPath)
	f.mu.Unlock()
	return f.writeClip(outputPath)
}

func (f *fakeTool) Concat(_ context.Context, clipPaths []string, outputPath string) error {
	f.mu.Lock()
	f.concatInputs = append([]string{}, clipPaths...)
	f.mu.Unlock()
	return f.writeClip(outputPath)
}

func (f *fakeTool) Normalize(_ context.Context, _, outputPath string, _, _, _ int) error {
	f.mu.Lock()
	f.normalized = append(f.normalized, outputPath)
	f.mu.Unlock()
	return f.writeClip(outputPath)
}

func (f *fakeTool) ReplaceAudio(_ context.Context, _, _, outputPath string) error {
	return f.writeClip(outputPath)
}

func (f *fakeTool) QuickCheck(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// fakeClient animates by writing the requested output file, or fails for
// configured image basenames.
type fakeClient struct {
	mu          sync.Mutex
	failFor     map[string]bool // image basename -> fail
	validateErr error
	requests    []*PartRequest
}

func (c *fakeClient) Validate(context.Context) error { return c.validateErr }

func (c *fakeClient) AnimatePart(_ context.Context, req *PartRequest) error {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	fail := c.failFor[filepath.Base(req.ImagePath)]
	c.mu.Unlock()
	if fail {
		return fmt.Errorf("synthetic failure")
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, []byte("animated"), 0644)
}

// fastPolls shrinks the rescan and base-clip poll intervals for the test.
func fastPolls(t *testing.T) {
	t.Helper()
	scanBefore, pollBefore := assetScanInterval, baseClipPollInterval
	assetScanInterval = 10 * time.Millisecond
	baseClipPollInterval = 10 * time.Millisecond
	t.Cleanup(func() {
		assetScanInterval = scanBefore
		baseClipPollInterval = pollBefore
	})
}

func animTestConfig() config.Animation {
	return config.Animation{
		Enabled:            true,
		EndpointID:         "testpod",
		Strategy:           "first_n",
		FirstN:             1,
		MaxScenesShorts:    3,
		TargetPartSec:      4.0,
		MaxPartSec:         5.0,
		OverlapSec:         0.2,
		UseOriginalPrompts: true,
		UniversalPrompt:    "gentle motion",
		AnimationSuffix:    ", cinematic",
		NegativePrompt:     "blurry",
		BaseSeed:           42,
		OverallWaitSec:     0, // wait for the remote branch unconditionally
	}
}

// seedProject lays down images, audio and chunks for n scenes and returns
// the layout. Audio durations come from the tool's duration map.
func seedProject(t *testing.T, tool *fakeTool, root string, n int, audioDurs []float64) scene.Layout {
	t.Helper()
	layout := scene.NewLayout(root, 1)

	chunks := make([]models.Chunk, n)
	for i := 0; i < n; i++ {
		id := i + 1
		chunks[i] = models.Chunk{ID: id, Text: fmt.Sprintf("scene %d", id), Time: ""}

		img := layout.SceneImage(id)
		if err := os.MkdirAll(filepath.Dir(img), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(img, []byte("jpg"), 0644); err != nil {
			t.Fatalf("write image: %v", err)
		}

		audio := layout.SceneAudio(id)
		if err := os.MkdirAll(filepath.Dir(audio), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(audio, []byte("mp3"), 0644); err != nil {
			t.Fatalf("write audio: %v", err)
		}
		tool.durations[audio] = audioDurs[i]
	}
	if err := layout.SaveChunks(chunks); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}
	return layout
}

func TestRunBaseClipsOnly(t *testing.T) {
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	layout := seedProject(t, tool, root, 3, []float64{3.0, 4.0, 5.0})

	// Base clip durations drive the rewritten chunk timings.
	tool.durations[layout.BaseClip(1)] = 3.0
	tool.durations[layout.BaseClip(2)] = 4.0
	tool.durations[layout.BaseClip(3)] = 5.0

	cfg := animTestConfig()
	cfg.Enabled = false
	mgr := NewManager(tool, nil, nil, root, cfg, 4)

	finalPath, err := mgr.Run(context.Background(), 1, models.FormatLong)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finalPath != layout.FinalVideo() {
		t.Errorf("final path = %q", finalPath)
	}
	if len(tool.rendered) != 3 {
		t.Errorf("expected 3 base renders, got %d", len(tool.rendered))
	}
	if len(tool.concatInputs) != 3 {
		t.Fatalf("expected 3 concat inputs, got %v", tool.concatInputs)
	}
	for i, want := range []string{layout.BaseClip(1), layout.BaseClip(2), layout.BaseClip(3)} {
		if tool.concatInputs[i] != want {
			t.Errorf("concat input %d = %q, want %q", i, tool.concatInputs[i], want)
		}
	}

	chunks, err := layout.LoadChunks()
	if err != nil {
		t.Fatalf("LoadChunks: %v", err)
	}
	wantTimes := []string{
		"00:00:00.000-00:00:03.000",
		"00:00:03.000-00:00:07.000",
		"00:00:07.000-00:00:12.000",
	}
	for i, want := range wantTimes {
		if chunks[i].Time != want {
			t.Errorf("chunk %d time = %q, want %q", i, chunks[i].Time, want)
		}
	}
}

func TestRunPrefersAnimatedClip(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	layout := seedProject(t, tool, root, 2, []float64{3.0, 3.0})

	client := &fakeClient{}
	mgr := NewManager(tool, client, nil, root, animTestConfig(), 4)

	if _, err := mgr.Run(context.Background(), 1, models.FormatLong); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tool.concatInputs) != 2 {
		t.Fatalf("expected 2 concat inputs, got %v", tool.concatInputs)
	}
	if tool.concatInputs[0] != layout.AnimatedClip(1) {
		t.Errorf("scene 1 should use animated clip, got %q", tool.concatInputs[0])
	}
	if tool.concatInputs[1] != layout.BaseClip(2) {
		t.Errorf("scene 2 should use base clip, got %q", tool.concatInputs[1])
	}

	// A 3s scene fits in one part at the service render geometry.
	if len(client.requests) != 1 {
		t.Fatalf("expected 1 animation request, got %d", len(client.requests))
	}
	req := client.requests[0]
	if req.Width != 1280 || req.Height != 720 {
		t.Errorf("render dims = %dx%d, want 1280x720", req.Width, req.Height)
	}
	if req.NumFrames != 75 {
		t.Errorf("num frames = %d, want 75", req.NumFrames)
	}
	if req.Seed != 42+1*1000 {
		t.Errorf("seed = %d", req.Seed)
	}
}

func TestRunAnimationFailureFallsBack(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	layout := seedProject(t, tool, root, 2, []float64{3.0, 3.0})

	client := &fakeClient{failFor: map[string]bool{"scene_001.jpg": true}}
	mgr := NewManager(tool, client, nil, root, animTestConfig(), 4)

	if _, err := mgr.Run(context.Background(), 1, models.FormatLong); err != nil {
		t.Fatalf("Run should survive a failed animation: %v", err)
	}
	if tool.concatInputs[0] != layout.BaseClip(1) {
		t.Errorf("scene 1 should fall back to base clip, got %q", tool.concatInputs[0])
	}
}

func TestRunNormalizesDivergentClip(t *testing.T) {
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	layout := seedProject(t, tool, root, 2, []float64{3.0, 3.0})

	cfg := animTestConfig()
	cfg.Enabled = false
	// Scene 2's base clip reports the wrong geometry.
	tool.badDims[layout.BaseClip(2)] = true

	mgr := NewManager(tool, nil, nil, root, cfg, 4)
	if _, err := mgr.Run(context.Background(), 1, models.FormatLong); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tool.normalized) != 1 {
		t.Fatalf("expected 1 normalization, got %v", tool.normalized)
	}
	if !strings.HasSuffix(tool.concatInputs[1], "_norm.mp4") {
		t.Errorf("scene 2 concat input should be normalized, got %q", tool.concatInputs[1])
	}
	if tool.concatInputs[0] == tool.concatInputs[1] {
		t.Error("scene 1 must keep its original clip")
	}
}

func TestRunFailsWhenServiceUnreachable(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	seedProject(t, tool, root, 1, []float64{3.0})

	client := &fakeClient{validateErr: errors.New("connection refused")}
	mgr := NewManager(tool, client, nil, root, animTestConfig(), 4)

	_, err := mgr.Run(context.Background(), 1, models.FormatLong)
	if err == nil {
		t.Fatal("expected error when the endpoint fails validation")
	}
	if !strings.Contains(err.Error(), "testpod") {
		t.Errorf("error should name the endpoint: %v", err)
	}
	if len(client.requests) != 0 {
		t.Errorf("no jobs should be submitted to a dead endpoint, got %d", len(client.requests))
	}
}

func TestRunFailsWhenEndpointUnconfigured(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	seedProject(t, tool, root, 1, []float64{3.0})

	// Animation on, but no client was built.
	mgr := NewManager(tool, nil, nil, root, animTestConfig(), 4)
	if _, err := mgr.Run(context.Background(), 1, models.FormatLong); err == nil {
		t.Fatal("expected error when animation is enabled without an endpoint")
	}
}

// baseCheckClient records whether the scene's base clip existed when the
// animation job was submitted.
type baseCheckClient struct {
	fakeClient
	baseClip string
	sawBase  []bool
}

func (c *baseCheckClient) AnimatePart(ctx context.Context, req *PartRequest) error {
	_, err := os.Stat(c.baseClip)
	c.mu.Lock()
	c.sawBase = append(c.sawBase, err == nil)
	c.mu.Unlock()
	return c.fakeClient.AnimatePart(ctx, req)
}

func TestRemoteSubmitsOnlyAfterBaseClip(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	tool.renderDelay = 50 * time.Millisecond
	root := t.TempDir()
	layout := seedProject(t, tool, root, 1, []float64{3.0})

	client := &baseCheckClient{baseClip: layout.BaseClip(1)}
	mgr := NewManager(tool, client, nil, root, animTestConfig(), 4)

	if _, err := mgr.Run(context.Background(), 1, models.FormatLong); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(client.sawBase) == 0 {
		t.Fatal("expected at least one animation submission")
	}
	for i, saw := range client.sawBase {
		if !saw {
			t.Errorf("submission %d happened before the base clip existed", i)
		}
	}
}

func TestRunRendersReadyScenesWhileRescanning(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	layout := seedProject(t, tool, root, 2, []float64{3.0, 3.0})

	// Scene 2's audio arrives only after the first scan pass.
	lateAudio := layout.SceneAudio(2)
	if err := os.Remove(lateAudio); err != nil {
		t.Fatalf("remove audio: %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(lateAudio, []byte("mp3"), 0644)
	}()

	cfg := animTestConfig()
	cfg.Enabled = false
	mgr := NewManager(tool, nil, nil, root, cfg, 4)
	if _, err := mgr.Run(context.Background(), 1, models.FormatLong); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tool.rendered) != 2 {
		t.Fatalf("expected 2 base renders, got %v", tool.rendered)
	}
	if tool.rendered[0] != layout.BaseClip(1) {
		t.Errorf("scene 1 should render while scene 2 is still missing, got %q first", tool.rendered[0])
	}
}

// slowClient never finishes within the test's wait budget.
type slowClient struct{}

func (slowClient) Validate(context.Context) error { return nil }

func (slowClient) AnimatePart(ctx context.Context, _ *PartRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return nil
	}
}

func TestRunFailsWhenWaitBudgetExceeded(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatLong)
	tool := newFakeTool(target)
	root := t.TempDir()
	seedProject(t, tool, root, 1, []float64{3.0})

	cfg := animTestConfig()
	cfg.OverallWaitSec = 1
	cfg.EndpointID = "coldpod"

	mgr := NewManager(tool, slowClient{}, nil, root, cfg, 4)
	_, err := mgr.Run(context.Background(), 1, models.FormatLong)
	if err == nil {
		t.Fatal("expected error when the wait budget runs out")
	}
	if !strings.Contains(err.Error(), "coldpod") {
		t.Errorf("error should name the endpoint: %v", err)
	}
}

func TestRunShortsCapsAnimatedScenes(t *testing.T) {
	fastPolls(t)
	target := config.FormatFor(models.FormatShorts)
	tool := newFakeTool(target)
	root := t.TempDir()
	seedProject(t, tool, root, 5, []float64{3, 3, 3, 3, 3})

	cfg := animTestConfig()
	cfg.FirstN = 5

	client := &fakeClient{}
	mgr := NewManager(tool, client, nil, root, cfg, 4)
	if _, err := mgr.Run(context.Background(), 1, models.FormatShorts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	scenes := make(map[string]bool)
	for _, req := range client.requests {
		scenes[filepath.Base(req.ImagePath)] = true
		if req.Width != 720 || req.Height != 1280 {
			t.Errorf("shorts render dims = %dx%d, want 720x1280", req.Width, req.Height)
		}
	}
	if len(scenes) != 3 {
		t.Errorf("shorts should animate at most 3 scenes, got %d", len(scenes))
	}
}
