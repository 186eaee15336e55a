package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"25/1", 25, false},
		{"30000/1001", 30, false},
		{"24000/1001", 24, false},
		{"50/2", 25, false},
		{"25", 25, false},
		{"0/0", 0, true},
		{"garbage", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseFrameRate(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFrameRate(%q): expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFrameRate(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFrameRate(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()

	clips := []string{
		filepath.Join(dir, "scene_001.mp4"),
		filepath.Join(dir, "scene_002_animated.mp4"),
		filepath.Join(dir, "scene_003.mp4"),
	}

	listPath, err := WriteConcatList(filepath.Join(dir, "final_video.mp4"), clips)
	if err != nil {
		t.Fatalf("WriteConcatList failed: %v", err)
	}
	if listPath != filepath.Join(dir, "final_video_list.txt") {
		t.Errorf("list path = %q, want it derived from the output name", listPath)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("failed to read list: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, "file '") || !strings.HasSuffix(line, "'") {
			t.Errorf("line %d not in concat format: %q", i, line)
		}
		if !strings.Contains(line, filepath.Base(clips[i])) {
			t.Errorf("line %d should reference %s, got %q", i, filepath.Base(clips[i]), line)
		}
	}
}

// Two merges writing lists into the same directory must not clobber each
// other's list between write and read.
func TestWriteConcatListConcurrentOutputs(t *testing.T) {
	dir := t.TempDir()

	listA, err := WriteConcatList(filepath.Join(dir, "scene_001_animated.mp4"), []string{
		filepath.Join(dir, "scene_001_part_00_animated.mp4"),
		filepath.Join(dir, "scene_001_part_01_animated.mp4"),
	})
	if err != nil {
		t.Fatalf("WriteConcatList failed: %v", err)
	}
	listB, err := WriteConcatList(filepath.Join(dir, "scene_002_animated.mp4"), []string{
		filepath.Join(dir, "scene_002_part_00_animated.mp4"),
		filepath.Join(dir, "scene_002_part_01_animated.mp4"),
	})
	if err != nil {
		t.Fatalf("WriteConcatList failed: %v", err)
	}

	if listA == listB {
		t.Fatalf("both outputs got the same list path %q", listA)
	}
	data, err := os.ReadFile(listA)
	if err != nil {
		t.Fatalf("failed to read list: %v", err)
	}
	if !strings.Contains(string(data), "scene_001_part_00") || strings.Contains(string(data), "scene_002") {
		t.Errorf("scene 1 list holds the wrong parts:\n%s", data)
	}
}

func TestQuickCheck(t *testing.T) {
	dir := t.TempDir()
	tool := NewFFmpeg()

	// Missing file
	if tool.QuickCheck(filepath.Join(dir, "missing.mp4")) {
		t.Error("missing file should fail the quick check")
	}

	// Too small
	small := filepath.Join(dir, "small.mp4")
	if err := os.WriteFile(small, []byte("ftyp"), 0644); err != nil {
		t.Fatal(err)
	}
	if tool.QuickCheck(small) {
		t.Error("tiny file should fail the quick check")
	}

	// Large enough but no ftyp box
	junk := filepath.Join(dir, "junk.mp4")
	if err := os.WriteFile(junk, make([]byte, 200_000), 0644); err != nil {
		t.Fatal(err)
	}
	if tool.QuickCheck(junk) {
		t.Error("file without ftyp box should fail the quick check")
	}

	// Valid-looking mp4 head
	valid := filepath.Join(dir, "valid.mp4")
	data := make([]byte, 200_000)
	copy(data, []byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p'})
	if err := os.WriteFile(valid, data, 0644); err != nil {
		t.Fatal(err)
	}
	if !tool.QuickCheck(valid) {
		t.Error("file with ftyp box and real size should pass the quick check")
	}
}
