package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"videoredact/internal/apperr"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// wireEvent mirrors the exact on-disk event shape from spec.md §6. X/Y/
// Width/Height are pointers so rectangleDeleted events (which carry none of
// them) round-trip without emitting zeroed geometry.
type wireEvent struct {
	EventType   EventType `json:"eventType" jsonschema:"enum=rectangleCreated,enum=rectangleMoved,enum=rectangleResized,enum=rectangleDeleted" jsonschema_description:"Tag discriminating the rectangle lifecycle event"`
	RectangleID string    `json:"rectangleId"`
	X           *int      `json:"x,omitempty"`
	Y           *int      `json:"y,omitempty"`
	Width       *int      `json:"width,omitempty"`
	Height      *int      `json:"height,omitempty"`
}

type wireFrame struct {
	FrameNumber int         `json:"frame_number"`
	Events      []wireEvent `json:"events"`
}

type wireLog struct {
	VideoName string      `json:"video_name"`
	Timestamp *int64      `json:"timestamp,omitempty"`
	Frames    []wireFrame `json:"frames"`
}

// Schema returns the JSON Schema describing the persisted event-log shape,
// generated the same way the teacher's VLM response schema is generated in
// server/webrtc/annotate.go, repurposed here to describe a persisted file
// instead of an LLM response.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{}
	return reflector.Reflect(&wireLog{})
}

var schemaLoader gojsonschema.JSONLoader
var schemaLoaderOnce sync.Once

// loadedSchema lazily builds the gojsonschema loader from Schema()'s output,
// mirroring the teacher's one-shot reflector.Reflect call in
// server/webrtc/annotate.go but feeding it to a validator instead of an LLM
// request.
func loadedSchema() gojsonschema.JSONLoader {
	schemaLoaderOnce.Do(func() {
		schemaLoader = gojsonschema.NewGoLoader(Schema())
	})
	return schemaLoader
}

// validateWire checks raw event-log bytes against Schema() before they are
// trusted as a wireLog, so a structurally malformed file (wrong types,
// unknown top-level shape) is rejected here rather than surfacing as a
// confusing decode or validate() error downstream.
func validateWire(data []byte) error {
	result, err := gojsonschema.Validate(loadedSchema(), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: schema validation: %v", apperr.ErrSchema, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: event log violates schema: %s", apperr.ErrSchema, strings.Join(msgs, "; "))
	}
	return nil
}

func toWire(l *EventLog) wireLog {
	w := wireLog{VideoName: l.VideoName, Timestamp: l.Timestamp}
	for _, fe := range l.Frames {
		wf := wireFrame{FrameNumber: fe.FrameNumber}
		for _, e := range fe.Events {
			we := wireEvent{EventType: e.Type, RectangleID: e.RectangleID}
			if e.Type != Deleted {
				x, y, width, height := e.Rect.X, e.Rect.Y, e.Rect.W, e.Rect.H
				we.X, we.Y, we.Width, we.Height = &x, &y, &width, &height
			}
			wf.Events = append(wf.Events, we)
		}
		w.Frames = append(w.Frames, wf)
	}
	return w
}

func fromWire(w wireLog) (*EventLog, error) {
	l := &EventLog{VideoName: w.VideoName, Timestamp: w.Timestamp}
	for _, wf := range w.Frames {
		fe := FrameEvents{FrameNumber: wf.FrameNumber}
		for _, we := range wf.Events {
			e := Event{Type: we.EventType, RectangleID: we.RectangleID}
			if we.Type() != Deleted {
				if we.X == nil || we.Y == nil || we.Width == nil || we.Height == nil {
					return nil, fmt.Errorf("%w: event %s for %s missing geometry", apperr.ErrSchema, we.EventType, we.RectangleID)
				}
				e.Rect = Rectangle{X: *we.X, Y: *we.Y, W: *we.Width, H: *we.Height}
			}
			if err := e.validate(); err != nil {
				return nil, err
			}
			fe.Events = append(fe.Events, e)
		}
		l.Frames = append(l.Frames, fe)
	}
	return l, nil
}

func (w wireEvent) Type() EventType { return w.EventType }

// marshalLog renders the log as UTF-8, pretty-printed JSON per spec.md §6.
func marshalLog(l *EventLog) ([]byte, error) {
	data, err := json.MarshalIndent(toWire(l), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal event log: %v", apperr.ErrSchema, err)
	}
	return data, nil
}

// unmarshalLog parses raw bytes into an EventLog, rejecting unknown
// eventType tags and malformed shapes as apperr.ErrSchema. Validation never
// partially commits: either the whole file loads or none does.
func unmarshalLog(data []byte) (*EventLog, error) {
	if err := validateWire(data); err != nil {
		return nil, err
	}

	var w wireLog
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: parse event log: %v", apperr.ErrSchema, err)
	}
	return fromWire(w)
}
