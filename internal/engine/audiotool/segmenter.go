// Package audiotool wraps an external ffmpeg binary to split an audio file
// into size-bounded segments suitable for transcription upload.
package audiotool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/kewiro/bunge-digest/internal/engine"
)

// SegmentFailed wraps a non-zero ffmpeg exit with the tail of its stderr.
type SegmentFailed struct {
	ExitCode int
	Stderr   string
}

func (e *SegmentFailed) Error() string {
	return fmt.Sprintf("ffmpeg exited %d: %s", e.ExitCode, e.Stderr)
}

// defaultSegmentSeconds matches the duration-based split the original
// pipeline used (900s), chosen to comfortably keep each segment under most
// speech-to-text APIs' per-file size limit at typical speech bitrates.
const defaultSegmentSeconds = 900

// Segmenter is a scoped wrapper over a resolved ffmpeg binary.
type Segmenter struct {
	binaryPath string
}

// NewSegmenter resolves the ffmpeg binary at binaryPath, or from PATH if empty.
func NewSegmenter(binaryPath string) (*Segmenter, error) {
	resolved := binaryPath
	if resolved == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg binary not found: %w", err)
		}
		resolved = p
	} else if _, err := os.Stat(resolved); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found at %s: %w", resolved, err)
	}
	return &Segmenter{binaryPath: resolved}, nil
}

// Segment splits audioPath into segments of at most segmentSeconds duration
// each, writing them into outDir numbered NNN.<ext> so lexicographic order
// equals chronological order. Returns the ordered list of segment paths.
//
// segmentSeconds <= 0 uses the default (900s, ~15 minutes).
func (s *Segmenter) Segment(ctx context.Context, audioPath, outDir string, segmentSeconds int) ([]string, error) {
	engine.IncrSegmentRequests()

	if segmentSeconds <= 0 {
		segmentSeconds = defaultSegmentSeconds
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		engine.IncrSegmentErrors()
		return nil, fmt.Errorf("create segment dir: %w", err)
	}

	ext := filepath.Ext(audioPath)
	if ext == "" {
		ext = ".mp3"
	}
	pattern := filepath.Join(outDir, "%03d"+ext)

	args := []string{
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", segmentSeconds),
		"-reset_timestamps", "1",
		"-c", "copy",
		pattern,
	}

	cmd := exec.CommandContext(ctx, s.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		engine.IncrSegmentErrors()
		code := -1
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		}
		return nil, &SegmentFailed{ExitCode: code, Stderr: tail(stderr.String(), 2000)}
	}

	return listSegments(outDir, ext)
}

func listSegments(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ext {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths) // lexicographic == chronological by construction (NNN numbering)
	if len(paths) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no segments in %s", dir)
	}
	return paths, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
