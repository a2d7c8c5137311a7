// Package muxer implements the External Tool Interface (spec.md §9,
// SPEC_FULL.md §4.H): Prober and Muxer, the two operations hidden behind
// a small interface so fakes can substitute for ffprobe/ffmpeg in tests.
package muxer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// StreamInfo is the subset of ffprobe output spec.md §6 requires.
type StreamInfo struct {
	DurationSeconds float64
	FPS             float64
	Width           int
	Height          int
	PixFmt          string
	CodecName       string
	BitRate         string
	HasAudio        bool
}

// Prober probes a source video for stream metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (StreamInfo, error)
}

// ffprobeProber wraps gopkg.in/vansante/go-ffprobe.v2, which decodes
// exactly the `ffprobe -print_format json -show_format -show_streams`
// shape spec.md §6 specifies, so this is a thin adapter rather than a
// hand-rolled JSON decoder (grounded on the livepeer-catalyst-api manifest
// in the example pack, the only pack repo that imports this library).
type ffprobeProber struct {
	binary string
}

// NewFfprobeProber returns a Prober that shells out to binary (empty
// selects "ffprobe" on PATH via the library's default).
func NewFfprobeProber(binary string) Prober {
	if binary != "" {
		ffprobe.SetFFProbeBinPath(binary)
	}
	return &ffprobeProber{binary: binary}
}

func (p *ffprobeProber) Probe(ctx context.Context, path string) (StreamInfo, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}

	info := StreamInfo{}
	if format := data.Format; format != nil {
		info.DurationSeconds = format.DurationSeconds
	}

	if v := data.FirstVideoStream(); v != nil {
		info.Width = v.Width
		info.Height = v.Height
		info.PixFmt = v.PixFmt
		info.CodecName = v.CodecName
		info.BitRate = v.BitRate
		info.FPS = parseRationalRate(v.RFrameRate)
	}

	info.HasAudio = data.FirstAudioStream() != nil

	return info, nil
}

// parseRationalRate parses ffprobe's "num/den" rational fps string
// (spec.md §6), equivalent to the original Python source's eval(r_frame_rate).
func parseRationalRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	num, errNum := strconv.ParseFloat(parts[0], 64)
	den, errDen := strconv.ParseFloat(parts[1], 64)
	if errNum != nil || errDen != nil || den == 0 {
		return 0
	}
	return num / den
}
