package events

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"videoredact/internal/apperr"
)

// Store persists and loads event logs as rectangles_<stem>.json files
// under a single root directory, grounded on original_source/app.py's
// save_rectangles/load_rectangles and the teacher's atomic-write-via-
// temp-file idiom used for its own JSON config persistence.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dir (typically Config.FramesRoot).
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) path(videoStem string) string {
	return filepath.Join(s.root, fmt.Sprintf("rectangles_%s.json", videoStem))
}

// Save serializes log to JSON and writes it atomically: write to a
// temp file in the same directory, then rename over the destination, so a
// crash mid-write never leaves a truncated event log on disk.
func (s *Store) Save(videoStem string, log *EventLog) error {
	sorted := sortedCopy(log)

	data, err := marshalLog(sorted)
	if err != nil {
		return err
	}

	dest := s.path(videoStem)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", apperr.ErrStorage, tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("%w: rename %s to %s: %v", apperr.ErrStorage, tmp, dest, err)
	}
	return nil
}

// Load reads and validates the event log for videoStem. A missing file is
// not an error: it returns an empty log, matching spec.md §4.B.
func (s *Store) Load(videoName, videoStem string) (*EventLog, error) {
	data, err := os.ReadFile(s.path(videoStem))
	if err != nil {
		if os.IsNotExist(err) {
			return &EventLog{VideoName: videoName}, nil
		}
		return nil, fmt.Errorf("%w: read event log for %s: %v", apperr.ErrStorage, videoStem, err)
	}

	log, err := unmarshalLog(data)
	if err != nil {
		return nil, err
	}
	return log, nil
}

// sortedCopy returns a copy of log with Frames sorted ascending by
// frame_number, leaving the order of events within each frame untouched
// (that order is significant — spec.md §9).
func sortedCopy(log *EventLog) *EventLog {
	out := &EventLog{VideoName: log.VideoName, Timestamp: log.Timestamp}
	out.Frames = append([]FrameEvents(nil), log.Frames...)
	sort.SliceStable(out.Frames, func(i, j int) bool {
		return out.Frames[i].FrameNumber < out.Frames[j].FrameNumber
	})
	return out
}
