// Package resolver implements the Temporal Resolver: the pure, deterministic
// fold that converts a rectangle event log into a dense per-frame "active
// rectangle set". This is the correctness-critical piece spec.md §2
// designates as the single ground truth shared by every consumer; it has no
// prior implementation in the teacher or the wider example pack, so it is
// written directly from spec.md §4.C's algorithm in the teacher's plain,
// comment-light style (relay/cv/events.go).
package resolver

import (
	"log"
	"sort"

	"videoredact/internal/events"
)

// ActiveSet maps a RectangleId to its current geometry at one frame.
type ActiveSet map[string]events.Rectangle

// Clone returns an independent copy, since Resolve hands out snapshots that
// must not alias the resolver's own running state.
func (a ActiveSet) Clone() ActiveSet {
	out := make(ActiveSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Table is the result of Resolve: ActiveSet(f) for every frame that has a
// non-empty active set. Frames omitted from the map have no active
// rectangles.
type Table map[int]ActiveSet

// At returns the ActiveSet for frame f, or an empty set if f has none.
func (t Table) At(f int) ActiveSet {
	if s, ok := t[f]; ok {
		return s
	}
	return ActiveSet{}
}

// Resolve walks frames 0..=maxFrame applying events in (frame_index,
// stored order) and snapshotting the running active set, with carry-forward
// for frames that have no events of their own. It is a pure function: given
// the same log and maxFrame it always produces the same Table (property 1,
// spec.md §8).
func Resolve(log *events.EventLog, maxFrame int) Table {
	byFrame := make(map[int][]events.Event, len(log.Frames))
	for _, fe := range log.Frames {
		if fe.FrameNumber > maxFrame {
			continue // events after max_frame are ignored
		}
		byFrame[fe.FrameNumber] = append(byFrame[fe.FrameNumber], fe.Events...)
	}

	frameNumbers := make([]int, 0, len(byFrame))
	for f := range byFrame {
		frameNumbers = append(frameNumbers, f)
	}
	sort.Ints(frameNumbers)

	table := make(Table)
	active := make(ActiveSet)
	nextEventIdx := 0

	for f := 0; f <= maxFrame; f++ {
		changed := false
		if nextEventIdx < len(frameNumbers) && frameNumbers[nextEventIdx] == f {
			for _, ev := range byFrame[f] {
				applyEvent(active, ev)
			}
			changed = true
			nextEventIdx++
		}

		if changed {
			if len(active) > 0 {
				table[f] = active.Clone()
			}
			// An emptied active set still "changes" the snapshot: if this
			// frame's events deleted every rectangle, no entry is stored
			// for f, and carry-forward from here on correctly yields
			// nothing until a later Created event repopulates it.
		} else if prev, ok := table[f-1]; ok {
			table[f] = prev // carry-forward: share the immutable snapshot
		}
	}

	return table
}

func applyEvent(active ActiveSet, ev events.Event) {
	switch ev.Type {
	case events.Created:
		if _, exists := active[ev.RectangleID]; exists {
			log.Printf("[Resolver] rectangle %s already active, Created ignored duplicate insert", ev.RectangleID)
			return
		}
		active[ev.RectangleID] = ev.Rect

	case events.Moved:
		cur, exists := active[ev.RectangleID]
		if !exists {
			log.Printf("[Resolver] Moved for unknown rectangle %s, skipped", ev.RectangleID)
			return
		}
		// Move-only updates preserve the original w,h (spec.md §4.C) so
		// tracking position updates never drift the tracked box's size.
		active[ev.RectangleID] = events.Rectangle{X: ev.Rect.X, Y: ev.Rect.Y, W: cur.W, H: cur.H}

	case events.Resized:
		if _, exists := active[ev.RectangleID]; !exists {
			log.Printf("[Resolver] Resized for unknown rectangle %s, skipped", ev.RectangleID)
			return
		}
		active[ev.RectangleID] = ev.Rect

	case events.Deleted:
		if _, exists := active[ev.RectangleID]; !exists {
			log.Printf("[Resolver] Deleted for unknown rectangle %s, skipped", ev.RectangleID)
			return
		}
		delete(active, ev.RectangleID)
	}
}
