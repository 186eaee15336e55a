package models

import "testing"

func TestFormatTimecode(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.000"},
		{3.5, "00:00:03.500"},
		{61.25, "00:01:01.250"},
		{125.75, "00:02:05.750"},
		{3600, "01:00:00.000"},
		{3725.25, "01:02:05.250"},
	}
	for _, tt := range tests {
		if got := FormatTimecode(tt.seconds); got != tt.want {
			t.Errorf("FormatTimecode(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestTimeInterval(t *testing.T) {
	got := TimeInterval(3.0, 7.5)
	want := "00:00:03.000-00:00:07.500"
	if got != want {
		t.Errorf("TimeInterval(3, 7.5) = %q, want %q", got, want)
	}
}

func TestValidStage(t *testing.T) {
	for _, s := range AllStages {
		if !ValidStage(string(s)) {
			t.Errorf("ValidStage(%q) = false, want true", s)
		}
	}
	for _, name := range []string{"", "render", "Script", "scripts"} {
		if ValidStage(name) {
			t.Errorf("ValidStage(%q) = true, want false", name)
		}
	}
}

func TestAllStagesOrder(t *testing.T) {
	if len(AllStages) != 9 {
		t.Fatalf("expected 9 stages, got %d", len(AllStages))
	}
	if AllStages[0] != StageScript {
		t.Errorf("pipeline must start with script, got %s", AllStages[0])
	}
	if AllStages[len(AllStages)-1] != StageSendToCDN {
		t.Errorf("pipeline must end with send_to_cdn, got %s", AllStages[len(AllStages)-1])
	}
}
