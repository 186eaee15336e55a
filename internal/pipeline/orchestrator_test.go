package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/autovid/autovid/internal/flags"
	"github.com/autovid/autovid/internal/models"
	"github.com/autovid/autovid/internal/queue"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	tasks []*queue.Task
}

func (s *fakeSubmitter) Submit(_ context.Context, task *queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *fakeSubmitter) stages() []models.StageName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.StageName, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Stage
	}
	return out
}

func (s *fakeSubmitter) count(stage models.StageName) int {
	n := 0
	for _, got := range s.stages() {
		if got == stage {
			n++
		}
	}
	return n
}

type fakePause struct {
	mu     sync.Mutex
	paused map[int64]bool
}

func (p *fakePause) IsProjectPaused(_ context.Context, id int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused[id], nil
}

func (p *fakePause) set(id int64, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused == nil {
		p.paused = map[int64]bool{}
	}
	p.paused[id] = paused
}

func newTestOrchestrator() (*Orchestrator, *fakeSubmitter, *fakePause, flags.Store) {
	sub := &fakeSubmitter{}
	pause := &fakePause{}
	store := flags.NewMemoryStore()
	return NewOrchestrator(sub, store, pause), sub, pause, store
}

func testProject() *models.Project {
	return &models.Project{ID: 7, Topic: "deep sea trenches", Chapters: 3, VideoFormat: models.FormatLong}
}

func TestLinearContinuations(t *testing.T) {
	orch, sub, _, _ := newTestOrchestrator()
	ctx := context.Background()
	p := testProject()

	steps := []struct {
		completed models.StageName
		next      models.StageName
	}{
		{models.StageScript, models.StageMetadata},
		{models.StageMetadata, models.StageChunks},
		{models.StagePrompts, models.StageThumbnail},
		{models.StageThumbnail, models.StageImages},
	}
	for _, step := range steps {
		if err := orch.Advance(ctx, p, step.completed); err != nil {
			t.Fatalf("Advance(%s): %v", step.completed, err)
		}
		got := sub.stages()
		if got[len(got)-1] != step.next {
			t.Errorf("after %s expected %s, got %s", step.completed, step.next, got[len(got)-1])
		}
	}
}

func TestChunksFansOutBothBranches(t *testing.T) {
	orch, sub, _, _ := newTestOrchestrator()
	p := testProject()

	if err := orch.Advance(context.Background(), p, models.StageChunks); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if sub.count(models.StageVoiceover) != 1 || sub.count(models.StagePrompts) != 1 {
		t.Errorf("expected voiceover and prompts submissions, got %v", sub.stages())
	}
}

func TestJoinFiresOnceFromEitherBranch(t *testing.T) {
	orch, sub, _, _ := newTestOrchestrator()
	ctx := context.Background()
	p := testProject()

	// First branch done: no video yet.
	if err := orch.Advance(ctx, p, models.StageVoiceover); err != nil {
		t.Fatalf("Advance voiceover: %v", err)
	}
	if sub.count(models.StageVideo) != 0 {
		t.Fatal("video must not start with one branch pending")
	}

	// Second branch done: exactly one video.
	if err := orch.Advance(ctx, p, models.StageImages); err != nil {
		t.Fatalf("Advance images: %v", err)
	}
	if sub.count(models.StageVideo) != 1 {
		t.Fatalf("expected exactly 1 video submission, got %d", sub.count(models.StageVideo))
	}

	// Redundant re-evaluation from either branch stays a no-op.
	if err := orch.Advance(ctx, p, models.StageVoiceover); err != nil {
		t.Fatalf("redundant Advance: %v", err)
	}
	if err := orch.Advance(ctx, p, models.StageImages); err != nil {
		t.Fatalf("redundant Advance: %v", err)
	}
	if sub.count(models.StageVideo) != 1 {
		t.Errorf("rerun double-started video: %d submissions", sub.count(models.StageVideo))
	}
}

func TestJoinConcurrentBranchesStartVideoOnce(t *testing.T) {
	orch, sub, _, _ := newTestOrchestrator()
	ctx := context.Background()
	p := testProject()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		stage := models.StageVoiceover
		if i%2 == 1 {
			stage = models.StageImages
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := orch.Advance(ctx, p, stage); err != nil {
				t.Errorf("Advance: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := sub.count(models.StageVideo); got != 1 {
		t.Errorf("expected exactly 1 video submission under contention, got %d", got)
	}
}

func TestCDNEnqueuedOnce(t *testing.T) {
	orch, sub, _, _ := newTestOrchestrator()
	ctx := context.Background()
	p := testProject()

	if err := orch.Advance(ctx, p, models.StageVideo); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := orch.Advance(ctx, p, models.StageVideo); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := sub.count(models.StageSendToCDN); got != 1 {
		t.Errorf("expected exactly 1 delivery submission, got %d", got)
	}
}

func TestPauseDropsSubmissionsWithoutBurningGates(t *testing.T) {
	orch, sub, pause, _ := newTestOrchestrator()
	ctx := context.Background()
	p := testProject()
	pause.set(p.ID, true)

	// Both branch submissions dropped.
	if err := orch.Advance(ctx, p, models.StageChunks); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(sub.stages()) != 0 {
		t.Fatalf("paused project submitted work: %v", sub.stages())
	}

	// Branches complete while paused: readiness recorded, join untouched.
	if err := orch.Advance(ctx, p, models.StageVoiceover); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := orch.Advance(ctx, p, models.StageImages); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if sub.count(models.StageVideo) != 0 {
		t.Fatal("paused project started video")
	}

	// Resume does not replay, but the next join evaluation may still win
	// the gate because pausing never consumed it.
	pause.set(p.ID, false)
	if err := orch.Advance(ctx, p, models.StageImages); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if sub.count(models.StageVideo) != 1 {
		t.Errorf("gate was burned while paused: %d video submissions", sub.count(models.StageVideo))
	}
}

func TestStartPipelineClearsRunFlags(t *testing.T) {
	orch, sub, _, store := newTestOrchestrator()
	ctx := context.Background()
	p := testProject()

	// Leftovers from a previous run.
	store.MarkDone(ctx, flags.Key(p.ID, FlagVoiceoverReady))
	store.MarkDone(ctx, flags.Key(p.ID, FlagImagesReady))
	store.MarkDone(ctx, flags.Key(p.ID, FlagVideoStarted))
	store.MarkDone(ctx, flags.Key(p.ID, FlagCDNEnqueued))

	taskID, err := orch.StartPipeline(ctx, p)
	if err != nil {
		t.Fatalf("StartPipeline: %v", err)
	}
	if taskID == "" {
		t.Error("expected a task id for the script submission")
	}
	if got := sub.stages(); len(got) != 1 || got[0] != models.StageScript {
		t.Fatalf("expected script submission, got %v", got)
	}
	for _, flag := range []string{FlagVoiceoverReady, FlagImagesReady, FlagVideoStarted, FlagCDNEnqueued} {
		if store.IsDone(ctx, flags.Key(p.ID, flag)) {
			t.Errorf("flag %s survived a fresh run start", flag)
		}
	}
}

func TestRetryStageRejectsUnknownStage(t *testing.T) {
	orch, sub, _, _ := newTestOrchestrator()
	p := testProject()

	if err := orch.RetryStage(context.Background(), p, "render"); err == nil {
		t.Error("expected error for unknown stage")
	}
	if err := orch.RetryStage(context.Background(), p, models.StageImages); err != nil {
		t.Fatalf("RetryStage: %v", err)
	}
	if sub.count(models.StageImages) != 1 {
		t.Errorf("expected resubmission, got %v", sub.stages())
	}
}
