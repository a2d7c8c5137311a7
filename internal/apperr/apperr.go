// Package apperr defines the shared error taxonomy used across every
// pipeline component, so the Job Registry and orchestrator can classify a
// failure without string-matching component-specific messages.
package apperr

import "errors"

// Sentinel errors identifying the taxonomy from spec.md §7. Components wrap
// these with fmt.Errorf("...: %w", Sentinel) so errors.Is still matches.
var (
	// ErrInput covers missing rectangle data, bad trim windows, and
	// unknown videos. Reported, never retried.
	ErrInput = errors.New("input error")

	// ErrStorage covers filesystem I/O failures reading or writing
	// persisted state.
	ErrStorage = errors.New("storage error")

	// ErrSchema covers malformed or unrecognized persisted JSON shapes.
	ErrSchema = errors.New("schema error")

	// ErrEngine covers a per-frame decode/encode failure in the Frame
	// Processing Engine. The failing task marks the job errored and no
	// further tasks are dispatched.
	ErrEngine = errors.New("engine error")

	// ErrMuxer covers a non-zero exit from the external muxer. Retried
	// exactly once without audio mapping if stderr mentions "audio" or
	// "stream"; otherwise reported.
	ErrMuxer = errors.New("muxer error")

	// ErrTrackingLost is not a failure: it terminates a tracking sequence
	// normally when no further position can be found.
	ErrTrackingLost = errors.New("tracking lost")

	// ErrCancelled is the terminal state produced by operator
	// cancellation, distinguished from ErrEngine/ErrMuxer in job status.
	ErrCancelled = errors.New("cancelled")
)
