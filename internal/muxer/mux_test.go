package muxer

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRationalRate(t *testing.T) {
	require.Equal(t, 30.0, parseRationalRate("30/1"))
	require.Equal(t, 29.97002997002997, parseRationalRate("30000/1001"))
	require.Equal(t, 0.0, parseRationalRate("30/0"))
	require.Equal(t, 25.0, parseRationalRate("25"))
}

func TestBuildArgsWithoutAudio(t *testing.T) {
	m := &ffmpegMuxer{binary: "ffmpeg"}
	spec := MuxSpec{
		FrameDir:    "/tmp/frames",
		StartNumber: 1,
		FPS:         30,
		OutputPath:  "/tmp/out.mp4",
	}

	args := m.buildArgs(spec, "/tmp/progress.txt")
	joined := strings.Join(args, " ")

	require.Contains(t, joined, "-start_number 1")
	require.Contains(t, joined, "frame_%06d.jpg")
	require.NotContains(t, joined, "-map")
}

func TestBuildArgsWithAudioMapsStreams(t *testing.T) {
	m := &ffmpegMuxer{binary: "ffmpeg"}
	spec := MuxSpec{
		FrameDir:        "/tmp/frames",
		StartNumber:     1,
		FPS:             30,
		SourceAudioFrom: "/tmp/source.mp4",
		OutputPath:      "/tmp/out.mp4",
	}

	args := m.buildArgs(spec, "/tmp/progress.txt")
	joined := strings.Join(args, " ")

	require.Contains(t, joined, "/tmp/source.mp4")
	require.Contains(t, joined, "-map 0:v:0")
	require.Contains(t, joined, "-map 1:a:0")
	require.Contains(t, joined, "-c:a copy")
}

func TestShouldRetryWithoutAudioOnlyWhenAudioWasAttempted(t *testing.T) {
	require.False(t, shouldRetryWithoutAudio(errors.New("no matching audio stream"), false))
	require.True(t, shouldRetryWithoutAudio(errors.New("no matching audio stream"), true))
	require.True(t, shouldRetryWithoutAudio(errors.New("invalid stream specifier"), true))
	require.False(t, shouldRetryWithoutAudio(errors.New("permission denied"), true))
}

func TestPollProgressFileParsesLatestBlock(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/progress.txt"
	content := "frame=10\nspeed=1.2x\nprogress=continue\nframe=20\nspeed=1.5x\nprogress=end\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var got MuxProgress
	pollProgressFile(path, func(p MuxProgress) { got = p })

	require.Equal(t, 20, got.Frame)
	require.Equal(t, "1.5x", got.Speed)
	require.True(t, got.Done)
}
