package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.GetSkipForwardSecs(); got != 30 {
		t.Errorf("GetSkipForwardSecs = %d, want 30", got)
	}
	if got := cfg.GetSkipBackwardSecs(); got != 15 {
		t.Errorf("GetSkipBackwardSecs = %d, want 15", got)
	}

	cp := cfg.GetCheckpoint()
	if cp.TickSecs != 1 {
		t.Errorf("TickSecs = %d, want 1", cp.TickSecs)
	}
	if cp.BackgroundTickSecs != 3 {
		t.Errorf("BackgroundTickSecs = %d, want 3", cp.BackgroundTickSecs)
	}
	if cp.MinWriteIntervalSecs != 2 {
		t.Errorf("MinWriteIntervalSecs = %d, want 2", cp.MinWriteIntervalSecs)
	}
}

func TestExplicitValuesWin(t *testing.T) {
	cfg := &Config{
		SkipForwardSecs:  45,
		SkipBackwardSecs: 10,
		Checkpoint:       CheckpointConfig{MinWriteIntervalSecs: 5},
	}

	if got := cfg.GetSkipForwardSecs(); got != 45 {
		t.Errorf("GetSkipForwardSecs = %d, want 45", got)
	}
	if got := cfg.GetSkipBackwardSecs(); got != 10 {
		t.Errorf("GetSkipBackwardSecs = %d, want 10", got)
	}
	if got := cfg.GetCheckpoint().MinWriteIntervalSecs; got != 5 {
		t.Errorf("MinWriteIntervalSecs = %d, want 5", got)
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("expandPath(abs) = %q", got)
	}
	got := expandPath("~/data")
	if got == "~/data" || got == "" {
		t.Errorf("expandPath(~/data) = %q, tilde not expanded", got)
	}
}
