// Package events implements the Rectangle Event Store: the canonical,
// persisted, ordered sequence of rectangle lifecycle events for one video.
package events

import (
	"fmt"

	"videoredact/internal/apperr"
)

// EventType discriminates the four rectangle lifecycle event shapes.
type EventType string

const (
	Created EventType = "rectangleCreated"
	Moved   EventType = "rectangleMoved"
	Resized EventType = "rectangleResized"
	Deleted EventType = "rectangleDeleted"
)

// Rectangle is an axis-aligned box in integer pixel coordinates of the
// source frame.
type Rectangle struct {
	X int
	Y int
	W int
	H int
}

// Event is a single tagged rectangle lifecycle record attached to a frame
// index. Rect is the zero value for Deleted.
type Event struct {
	Type        EventType
	RectangleID string
	Rect        Rectangle
}

// FrameEvents groups every event stored at one frame index, in the order
// they were recorded. Order within a frame is significant and is never
// re-sorted by tie-break heuristics (spec.md §9).
type FrameEvents struct {
	FrameNumber int
	Events      []Event
}

// EventLog is the in-memory working copy of one video's persisted event
// log: an ordered sequence of (frame_index, Event) pairs grouped by frame
// and sorted ascending by frame_index.
type EventLog struct {
	VideoName string
	Timestamp *int64
	Frames    []FrameEvents
}

// MaxFrameIndex returns the highest frame_index carrying any event, or -1
// for an empty log.
func (l *EventLog) MaxFrameIndex() int {
	max := -1
	for _, fe := range l.Frames {
		if fe.FrameNumber > max {
			max = fe.FrameNumber
		}
	}
	return max
}

func (e EventType) valid() bool {
	switch e {
	case Created, Moved, Resized, Deleted:
		return true
	default:
		return false
	}
}

func (e Event) validate() error {
	if !e.Type.valid() {
		return fmt.Errorf("%w: unknown eventType %q", apperr.ErrSchema, e.Type)
	}
	if e.RectangleID == "" {
		return fmt.Errorf("%w: event missing rectangleId", apperr.ErrSchema)
	}
	if e.Type != Deleted {
		if e.Rect.W <= 0 || e.Rect.H <= 0 {
			return fmt.Errorf("%w: event %s for %s has non-positive width/height", apperr.ErrSchema, e.Type, e.RectangleID)
		}
	}
	return nil
}
