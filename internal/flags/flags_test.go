package flags

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key(42, "video_started"); got != "42:video_started" {
		t.Errorf("expected 42:video_started, got %s", got)
	}
}

func TestMarkDoneIsDone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if s.IsDone(ctx, "1:voiceover_ready") {
		t.Fatal("flag should not be set initially")
	}

	if err := s.MarkDone(ctx, "1:voiceover_ready"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	if !s.IsDone(ctx, "1:voiceover_ready") {
		t.Error("flag should be set after MarkDone")
	}

	// MarkDone is idempotent
	if err := s.MarkDone(ctx, "1:voiceover_ready"); err != nil {
		t.Fatalf("second MarkDone failed: %v", err)
	}
	if !s.IsDone(ctx, "1:voiceover_ready") {
		t.Error("flag should still be set")
	}
}

func TestTryAcquireExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const callers = 32
	var wins int64
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire(ctx, "7:video_started", time.Minute) {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner out of %d callers, got %d", callers, wins)
	}
}

func TestTryAcquireAfterClear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if !s.TryAcquire(ctx, "3:cdn_enqueued", time.Minute) {
		t.Fatal("first acquire should win")
	}
	if s.TryAcquire(ctx, "3:cdn_enqueued", time.Minute) {
		t.Fatal("second acquire should lose")
	}

	if err := s.Clear(ctx, "3:cdn_enqueued"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if !s.TryAcquire(ctx, "3:cdn_enqueued", time.Minute) {
		t.Error("acquire after clear should win again")
	}
}

func TestTryAcquireExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if !s.TryAcquire(ctx, "9:video_started", 10*time.Millisecond) {
		t.Fatal("first acquire should win")
	}

	time.Sleep(25 * time.Millisecond)

	if !s.TryAcquire(ctx, "9:video_started", time.Minute) {
		t.Error("acquire after expiry should win")
	}
}
