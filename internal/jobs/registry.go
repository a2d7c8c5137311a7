// Package jobs implements the Job Registry: a process-wide job table with
// progress and cancellation flags, grounded on server/service/registry.go's
// single-mutex "*Locked" helper convention and relay/cv/events.go's
// mutex-guarded listener broadcast pattern, adapted here to broadcast job
// progress transitions instead of CV frame events.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status enumerates a job's lifecycle states (spec.md §3).
type Status string

const (
	StatusStarting         Status = "starting"
	StatusAnalyzing        Status = "analyzing"
	StatusExtracting       Status = "extracting"
	StatusProcessingFrames Status = "processing_frames"
	StatusEncoding         Status = "encoding"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusError            Status = "error"
)

// terminal reports whether a status can never transition further.
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	default:
		return false
	}
}

// Job is the full record for one job. Mutated only under the Registry's
// lock; never removed for the process lifetime (kept for post-mortem
// inspection, spec.md §4.F).
type Job struct {
	ID        string
	Status    Status
	Progress  int // [0,100]
	Message   string
	Cancelled bool
	CreatedAt time.Time

	ProcessedFrames  int
	TotalFrames      int
	EncodingProgress int

	Err error

	ExportPath string
	Filename   string
	HasAudio   bool
}

// snapshot returns a value copy safe to hand to callers outside the lock.
func (j *Job) snapshot() Job {
	return *j
}

// Registry is the process-wide JobId -> Job table, guarded by one mutex
// held only for brief field updates, per spec.md §5.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	listeners []func(Job)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create allocates a new job in StatusStarting and returns its id.
func (r *Registry) Create() string {
	id := uuid.NewString()

	r.mu.Lock()
	job := &Job{ID: id, Status: StatusStarting, CreatedAt: time.Now()}
	r.jobs[id] = job
	r.mu.Unlock()

	r.notify(job.snapshot())
	return id
}

// Get returns a snapshot of the job, or false if it does not exist.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.snapshot(), true
}

// Update applies f to the job under the lock. A cancelled/terminal job
// never transitions back to running: f is still invoked (so progress can
// keep advancing while draining in-flight work) but Update refuses to move
// a terminal job to a non-terminal status.
func (r *Registry) Update(id string, f func(*Job)) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	prevStatus := job.Status
	f(job)
	if prevStatus.terminal() && !job.Status.terminal() {
		// Cancellation/terminal states are idempotent and terminal
		// (spec.md §5): refuse to resurrect a finished job.
		job.Status = prevStatus
	}
	snapshot := job.snapshot()
	r.mu.Unlock()

	r.notify(snapshot)
}

// MarkCancelled sets job.cancelled = true. The engine/tracker observe this
// flag on their own polling cadence; this call never blocks on them.
func (r *Registry) MarkCancelled(id string) {
	r.Update(id, func(j *Job) {
		j.Cancelled = true
	})
}

// IsCancelled is a lock-free-for-the-caller convenience used by workers
// that only need to check the flag, not mutate the record.
func (r *Registry) IsCancelled(id string) bool {
	job, ok := r.Get(id)
	return ok && job.Cancelled
}

// OnTransition registers a listener invoked (in a new goroutine, matching
// relay/cv/events.go's EmitFrameEvent) on every Create/Update call. Intended
// for the Audit Store and CLI progress display to subscribe without the
// Registry needing to know about either.
func (r *Registry) OnTransition(f func(Job)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, f)
	r.mu.Unlock()
}

func (r *Registry) notify(job Job) {
	r.mu.Lock()
	listeners := append([]func(Job){}, r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		go l(job)
	}
}
