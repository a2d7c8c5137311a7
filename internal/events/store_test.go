package events

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleLog() *EventLog {
	return &EventLog{
		VideoName: "clip.mp4",
		Frames: []FrameEvents{
			{FrameNumber: 0, Events: []Event{
				{Type: Created, RectangleID: "A", Rect: Rectangle{X: 0, Y: 0, W: 20, H: 20}},
			}},
			{FrameNumber: 50, Events: []Event{
				{Type: Moved, RectangleID: "A", Rect: Rectangle{X: 100, Y: 100, W: 20, H: 20}},
			}},
			{FrameNumber: 80, Events: []Event{
				{Type: Deleted, RectangleID: "A"},
			}},
		},
	}
}

// Property 2: load(save(L)) == L for every valid log.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	original := sampleLog()
	require.NoError(t, store.Save("clip", original))

	loaded, err := store.Load("clip.mp4", "clip")
	require.NoError(t, err)
	require.Equal(t, original, loaded)
}

func TestLoadMissingFileReturnsEmptyLog(t *testing.T) {
	store := NewStore(t.TempDir())

	loaded, err := store.Load("clip.mp4", "clip")
	require.NoError(t, err)
	require.Equal(t, "clip.mp4", loaded.VideoName)
	require.Empty(t, loaded.Frames)
}

func TestLoadRejectsUnknownEventType(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"video_name": "clip.mp4",
		"frames": [
			{ "frame_number": 0, "events": [
				{ "eventType": "rectangleTeleported", "rectangleId": "A", "x":0,"y":0,"width":10,"height":10 }
			]}
		]
	}`
	path := filepath.Join(dir, "rectangles_clip.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	store := NewStore(dir)
	_, err := store.Load("clip.mp4", "clip")
	require.Error(t, err)
}
