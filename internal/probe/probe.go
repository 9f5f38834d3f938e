// Package probe lazily measures the true duration of cached episode audio.
// Feed-declared durations are frequently wrong or absent; a frame walk over
// the MP3 gives the real one, which the store prefers once known.
package probe

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

// Result is what a probe learned about an audio file.
type Result struct {
	DurationSeconds float64
	Title           string
	Author          string
}

// File probes a local audio file: duration by MP3 frame walk, title and
// author from tags when present.
func File(path string) (Result, error) {
	dur, err := mp3Duration(path)
	if err != nil {
		return Result{}, err
	}

	res := Result{DurationSeconds: dur}
	res.Title, res.Author = readTags(path)
	return res, nil
}

// mp3Duration sums frame durations across the whole file. Skipped frames
// (ID3 blocks, junk) are tolerated; a file yielding no frames is an error.
func mp3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64
	var frames int

	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames > 0 {
				break // trailing garbage after valid audio
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
		frames++
	}

	if frames == 0 {
		return 0, errors.New("no mp3 frames found")
	}
	return total, nil
}

func readTags(path string) (title, author string) {
	f, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(meta.Title()), strings.TrimSpace(meta.Artist())
}
