// Package orchestrator implements the Export Orchestrator (spec.md §4.G):
// it sequences Probe -> Resolve -> Process frames -> Mux behind a single
// job, driving the Job Registry's status transitions the way
// original_source/app.py's export_blurred_async drives its own state
// machine, and server/service/registry.go's composition pattern of small,
// focused components wired together by one caller rather than a god
// object.
package orchestrator

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"videoredact/internal/apperr"
	"videoredact/internal/audit"
	"videoredact/internal/config"
	"videoredact/internal/engine"
	"videoredact/internal/events"
	"videoredact/internal/frames"
	"videoredact/internal/jobs"
	"videoredact/internal/muxer"
	"videoredact/internal/resolver"
)

// previewFrameCap bounds an explicit preview window (spec.md §4.G, §9).
const previewFrameCap = 200

// Orchestrator composes the pipeline stages behind one Export/Preview call.
type Orchestrator struct {
	Config    *config.Config
	Registry  *jobs.Registry
	EventLogs *events.Store
	Prober    muxer.Prober
	Muxer     muxer.Muxer
	Audit     *audit.Store
}

// New wires an Orchestrator from its component dependencies. Audit may be
// nil (disabled).
func New(cfg *config.Config, registry *jobs.Registry, eventLogs *events.Store, prober muxer.Prober, mux muxer.Muxer, auditStore *audit.Store) *Orchestrator {
	o := &Orchestrator{Config: cfg, Registry: registry, EventLogs: eventLogs, Prober: prober, Muxer: mux, Audit: auditStore}
	registry.OnTransition(func(j jobs.Job) {
		auditStore.RecordTransition(j.ID, string(j.Status), j.Progress, j.Message)
	})
	return o
}

// ExportRequest describes one full or windowed export.
type ExportRequest struct {
	VideoPath string // source video on disk
	VideoName string
	VideoStem string
	Trim      *engine.Trim // nil selects the full video
	Preview   bool
}

// Export runs the full pipeline for one job and returns its id immediately;
// the pipeline itself runs in a new goroutine so callers can poll the Job
// Registry for progress (spec.md §5).
func (o *Orchestrator) Export(req ExportRequest) string {
	jobID := o.Registry.Create()
	go o.run(jobID, req)
	return jobID
}

func (o *Orchestrator) run(jobID string, req ExportRequest) {
	ctx := context.Background()

	o.Registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusAnalyzing
		j.Filename = req.VideoName
	})

	info, err := o.Prober.Probe(ctx, req.VideoPath)
	if err != nil {
		o.fail(jobID, err)
		return
	}

	log, err := o.EventLogs.Load(req.VideoName, req.VideoStem)
	if err != nil {
		o.fail(jobID, err)
		return
	}

	store := frames.Open(o.Config.FramesDir(req.VideoStem))
	maxIdx, err := store.MaxIndex()
	if err != nil {
		o.fail(jobID, err)
		return
	}

	trim := engine.Trim{Start: 0, End: maxIdx}
	if req.Trim != nil {
		trim = *req.Trim
	}
	if req.Preview && trim.End-trim.Start+1 > previewFrameCap {
		trim.End = trim.Start + previewFrameCap - 1
	}

	// The Resolver always walks from frame 0 regardless of the trim
	// window, so carry-forward state entering the window is correct
	// even when the window starts mid-video (spec.md §9).
	resolveUpTo := trim.End
	if maxIdx > resolveUpTo {
		resolveUpTo = maxIdx
	}
	table := resolver.Resolve(log, resolveUpTo)

	o.Registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusExtracting
		j.HasAudio = info.HasAudio
	})

	destDir := o.Config.BlurredFramesDir(req.VideoStem, req.Preview)
	eng := engine.New(o.Config.MaxWorkers, o.Config.BlurRadius)
	if err := eng.Process(ctx, store, table, trim, destDir, o.Registry, jobID); err != nil {
		if err == apperr.ErrCancelled {
			return // Process already set StatusCancelled
		}
		o.fail(jobID, err)
		return
	}

	startNumber, err := firstFileNumber(destDir, trim.Start)
	if err != nil {
		o.fail(jobID, err)
		return
	}

	outputPath := outputPathFor(req.VideoPath, req.Preview)
	spec := muxer.MuxSpec{
		FrameDir:        destDir,
		StartNumber:     startNumber,
		FPS:             info.FPS,
		SourceAudioFrom: "",
		OutputPath:      outputPath,
	}
	if info.HasAudio {
		spec.SourceAudioFrom = req.VideoPath
	}

	o.Registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusEncoding
		j.EncodingProgress = 0
	})

	lastReport := time.Now()
	err = o.Muxer.Mux(ctx, spec, func(p muxer.MuxProgress) {
		if !p.Done && time.Since(lastReport) < 500*time.Millisecond {
			return
		}
		lastReport = time.Now()
		o.Registry.Update(jobID, func(j *jobs.Job) {
			if trim.End > trim.Start {
				j.EncodingProgress = clampPercent(100 * p.Frame / (trim.End - trim.Start + 1))
			}
			if p.Done {
				j.EncodingProgress = 100
			}
		})
	})
	if err != nil {
		o.fail(jobID, err)
		return
	}

	o.Registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusCompleted
		j.Progress = 100
		j.EncodingProgress = 100
		j.ExportPath = outputPath
	})
}

// Cancel flags jobID cancelled; the frame-processing stage observes this on
// its own polling cadence (spec.md §5). The mux stage does not check the
// flag: a job that has already reached encoding runs to completion.
func (o *Orchestrator) Cancel(jobID string) {
	o.Registry.MarkCancelled(jobID)
}

func (o *Orchestrator) fail(jobID string, err error) {
	log.Printf("[Orchestrator] job %s failed: %v", jobID, err)
	o.Registry.Update(jobID, func(j *jobs.Job) {
		j.Status = jobs.StatusError
		j.Err = err
		j.Message = err.Error()
	})
}

// firstFileNumber returns the 1-based file number of the first frame
// actually present in dir at or after startIndex, since the engine may have
// skipped frames outside the trim window entirely (spec.md §9).
func firstFileNumber(dir string, startIndex int) (int, error) {
	store := frames.Open(dir)
	indices, err := store.List()
	if err != nil {
		return 0, err
	}
	for _, idx := range indices {
		if idx >= startIndex {
			return idx + 1, nil
		}
	}
	return startIndex + 1, nil
}

func outputPathFor(sourcePath string, preview bool) string {
	ext := filepath.Ext(sourcePath)
	stem := strings.TrimSuffix(sourcePath, ext)
	if preview {
		return stem + "_preview_blurred" + ext
	}
	return stem + "_blurred" + ext
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
