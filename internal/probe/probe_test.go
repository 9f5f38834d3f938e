package probe

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeMP3 writes n silent MPEG-1 Layer III frames (128kbps, 44.1kHz). Each
// frame is 417 bytes and carries 1152 samples.
func writeMP3(t *testing.T, n int) string {
	t.Helper()
	const frameSize = 417
	frame := make([]byte, frameSize)
	frame[0] = 0xFF
	frame[1] = 0xFB
	frame[2] = 0x90
	frame[3] = 0x64

	data := make([]byte, 0, n*frameSize)
	for i := 0; i < n; i++ {
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "test.mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestFileDuration(t *testing.T) {
	path := writeMP3(t, 100)

	res, err := File(path)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	// 100 frames * 1152 samples / 44100 Hz
	want := 100 * 1152.0 / 44100.0
	if math.Abs(res.DurationSeconds-want) > 0.01 {
		t.Errorf("DurationSeconds = %v, want ~%v", res.DurationSeconds, want)
	}
	if res.Title != "" || res.Author != "" {
		t.Errorf("untagged file produced tags %q/%q", res.Title, res.Author)
	}
}

func TestFileToleratesTrailingGarbage(t *testing.T) {
	path := writeMP3(t, 50)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	if _, err := f.Write([]byte("this is not mp3 data")); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	f.Close()

	res, err := File(path)
	if err != nil {
		t.Fatalf("File failed on trailing garbage: %v", err)
	}
	want := 50 * 1152.0 / 44100.0
	if math.Abs(res.DurationSeconds-want) > 0.01 {
		t.Errorf("DurationSeconds = %v, want ~%v", res.DurationSeconds, want)
	}
}

func TestFileErrors(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("File(missing) did not fail")
	}

	junk := filepath.Join(t.TempDir(), "junk.mp3")
	if err := os.WriteFile(junk, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := File(junk); err == nil {
		t.Error("File(junk) did not fail")
	}
}
