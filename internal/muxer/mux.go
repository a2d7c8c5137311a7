package muxer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"videoredact/internal/apperr"
)

// MuxSpec describes one ffmpeg invocation: assemble a video from a frame
// file pattern, optionally copying audio through from the source.
type MuxSpec struct {
	FrameDir    string // directory containing frame_NNNNNN.jpg
	StartNumber int    // must match the first frame file actually present (spec.md §9)
	FPS         float64
	SourceAudioFrom string // source video path to copy audio from, or "" for none
	OutputPath  string
}

// MuxProgress is one parsed update from ffmpeg's progress file.
type MuxProgress struct {
	Frame int
	Speed string
	Done  bool
}

// Muxer invokes the external video muxer.
type Muxer interface {
	Mux(ctx context.Context, spec MuxSpec, onProgress func(MuxProgress)) error
}

// ffmpegMuxer shells out to ffmpeg directly via os/exec, matching the
// teacher's relay/cv/frame_extractor.go subprocess plumbing and
// original_source/app.py's run_ffmpeg_with_progress: a `-progress <file>`
// text sink polled on a fixed cadence, because that polling contract is
// exactly what spec.md §6 specifies and no wrapper library exposes it
// without hiding the cadence.
type ffmpegMuxer struct {
	binary string
}

// NewFfmpegMuxer returns a Muxer that shells out to binary ("ffmpeg" if
// empty).
func NewFfmpegMuxer(binary string) Muxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &ffmpegMuxer{binary: binary}
}

// Mux runs ffmpeg once, retrying exactly once without audio mapping if the
// first attempt's stderr mentions "audio" or "stream" (spec.md §4.G step 5,
// §7 MuxerError, scenario S4).
func (m *ffmpegMuxer) Mux(ctx context.Context, spec MuxSpec, onProgress func(MuxProgress)) error {
	err := m.runOnce(ctx, spec, onProgress)
	if err == nil {
		return nil
	}

	if shouldRetryWithoutAudio(err, spec.SourceAudioFrom != "") {
		noAudio := spec
		noAudio.SourceAudioFrom = ""
		return m.runOnce(ctx, noAudio, onProgress)
	}

	return err
}

// shouldRetryWithoutAudio reports whether a failed mux attempt should be
// retried once with audio mapping dropped (spec.md §4.G step 5, §7
// MuxerError, scenario S4): only when audio was attempted and ffmpeg's
// stderr suggests the audio stream itself was the problem.
func shouldRetryWithoutAudio(err error, hadAudio bool) bool {
	if !hadAudio {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "audio") || strings.Contains(msg, "stream")
}

func (m *ffmpegMuxer) runOnce(ctx context.Context, spec MuxSpec, onProgress func(MuxProgress)) error {
	progressFile, err := os.CreateTemp("", "videoredact-progress-*.txt")
	if err != nil {
		return fmt.Errorf("%w: create progress file: %v", apperr.ErrMuxer, err)
	}
	progressPath := progressFile.Name()
	progressFile.Close()
	defer os.Remove(progressPath)

	args := m.buildArgs(spec, progressPath)
	cmd := exec.CommandContext(ctx, m.binary, args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", apperr.ErrMuxer, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			pollProgressFile(progressPath, onProgress)
			if err != nil {
				return fmt.Errorf("%w: ffmpeg exited: %v: %s", apperr.ErrMuxer, err, stderr.String())
			}
			return nil
		case <-ticker.C:
			pollProgressFile(progressPath, onProgress)
		case <-ctx.Done():
			cmd.Process.Kill()
			return fmt.Errorf("%w: %v", apperr.ErrCancelled, ctx.Err())
		}
	}
}

func (m *ffmpegMuxer) buildArgs(spec MuxSpec, progressPath string) []string {
	pattern := filepath.Join(spec.FrameDir, "frame_%06d.jpg")

	args := []string{
		"-y",
		"-start_number", strconv.Itoa(spec.StartNumber),
		"-framerate", strconv.FormatFloat(spec.FPS, 'f', -1, 64),
		"-i", pattern,
	}

	if spec.SourceAudioFrom != "" {
		args = append(args, "-i", spec.SourceAudioFrom,
			"-map", "0:v:0", "-map", "1:a:0", "-c:a", "copy")
	}

	args = append(args,
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-progress", progressPath, "-stats_period", "0.5",
		spec.OutputPath,
	)

	return args
}

// pollProgressFile re-reads the ffmpeg progress file from the start on each
// call and invokes onProgress once with the last `frame` and `speed` values
// found in it (which may come from a block ffmpeg has not finished
// writing), reporting Done=true once it observes `progress=end` (spec.md §6).
func pollProgressFile(path string, onProgress func(MuxProgress)) {
	if onProgress == nil {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	var p MuxProgress
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "frame":
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				p.Frame = n
			}
		case "speed":
			p.Speed = strings.TrimSpace(value)
		case "progress":
			if strings.TrimSpace(value) == "end" {
				p.Done = true
			}
		}
	}

	onProgress(p)
}
