// Command videoredact is the CLI composition root: it wires the Job
// Registry, Event Store, Frame Store, Audit Store, and Export Orchestrator
// together and dispatches subcommands, grounded on cmd/cli/main.go's flag
// parsing and confirm-prompt convention and cmd/server/main.go's
// composition-root wiring order (config first, stores next, services last).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"videoredact/internal/audit"
	"videoredact/internal/config"
	"videoredact/internal/engine"
	"videoredact/internal/events"
	"videoredact/internal/frames"
	"videoredact/internal/jobs"
	"videoredact/internal/muxer"
	"videoredact/internal/orchestrator"
	"videoredact/internal/tracking"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./videoredact.config.json or ~/.videoredact/config.json)")
	dropSchema := flag.Bool("drop", false, "Drop the audit database schema")
	deleteAppDir := flag.Bool("delete-app-dir", false, "Delete the application directory")
	flag.Parse()

	if flag.NArg() < 1 && !*dropSchema && !*deleteAppDir {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	auditStore, err := audit.Open(cfg.AuditDatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer auditStore.Close()

	registry := jobs.NewRegistry()
	eventStore := events.NewStore(cfg.FramesRoot)
	prober := muxer.NewFfprobeProber(cfg.FfprobeBinary)
	mux := muxer.NewFfmpegMuxer(cfg.FfmpegBinary)
	orch := orchestrator.New(cfg, registry, eventStore, prober, mux, auditStore)

	if *dropSchema {
		handleDropSchema(auditStore)
		return
	}
	if *deleteAppDir {
		handleDeleteAppDir(cfg)
		return
	}

	command := flag.Arg(0)
	switch command {
	case "export":
		handleExport(orch, flag.Args()[1:], false)
	case "preview":
		handleExport(orch, flag.Args()[1:], true)
	case "track":
		handleTrack(cfg, eventStore, auditStore, flag.Args()[1:])
	case "status":
		handleStatus(registry, flag.Args()[1:])
	case "cancel":
		handleCancel(registry, flag.Args()[1:])
	case "-drop":
		handleDropSchema(auditStore)
	case "-delete-app-dir":
		handleDeleteAppDir(cfg)
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Println("Usage: videoredact [-config path] <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  export [--start N] [--end N] <video>     Export the full redacted video")
	fmt.Println("  preview --start N [--end N] <video>       Export a capped preview window")
	fmt.Println("  track --rect X,Y,W,H --frame N [--limit N] [--debug-overlay] <video>")
	fmt.Println("  status <job-id>                           Print a job's current status (jobs live only in this process's in-memory table)")
	fmt.Println("  cancel <job-id>                           Cancel a running job (jobs live only in this process's in-memory table)")
	fmt.Println("  -drop                                     Drop the audit database schema")
	fmt.Println("  -delete-app-dir                           Delete the application directory")
}

func handleExport(orch *orchestrator.Orchestrator, args []string, preview bool) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	start := fs.Int("start", 0, "trim window start frame index")
	end := fs.Int("end", -1, "trim window end frame index (-1 selects the last frame)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		log.Fatalf("Usage: videoredact export [--start N] [--end N] <video>")
	}
	videoPath := fs.Arg(0)
	videoName := filepath.Base(videoPath)
	videoStem := strings.TrimSuffix(videoName, filepath.Ext(videoName))

	req := orchestrator.ExportRequest{
		VideoPath: videoPath,
		VideoName: videoName,
		VideoStem: videoStem,
		Preview:   preview,
	}
	if *end >= 0 || *start != 0 {
		last := *end
		if last < 0 {
			maxIdx, err := frames.Open(orch.Config.FramesDir(videoStem)).MaxIndex()
			if err != nil {
				log.Fatalf("Failed to list frames: %v", err)
			}
			last = maxIdx
		}
		req.Trim = &engine.Trim{Start: *start, End: last}
	}

	jobID := orch.Export(req)
	fmt.Printf("started job %s\n", jobID)

	for {
		job, ok := orch.Registry.Get(jobID)
		if !ok {
			log.Fatalf("job %s disappeared", jobID)
		}
		fmt.Printf("\r%-20s frames %d/%d encoding %d%%", job.Status, job.ProcessedFrames, job.TotalFrames, job.EncodingProgress)
		switch job.Status {
		case jobs.StatusCompleted:
			fmt.Printf("\ndone: %s\n", job.ExportPath)
			return
		case jobs.StatusError:
			fmt.Println()
			log.Fatalf("job failed: %v", job.Err)
		case jobs.StatusCancelled:
			fmt.Println("\ncancelled")
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func handleTrack(cfg *config.Config, eventStore *events.Store, auditStore *audit.Store, args []string) {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	rectFlag := fs.String("rect", "", "initial rectangle as X,Y,W,H")
	frame := fs.Int("frame", 0, "start frame index")
	limit := fs.Int("limit", 0, "frame limit (0 selects all remaining, capped)")
	debugOverlay := fs.Bool("debug-overlay", false, "write annotated debug frames")
	fs.Parse(args)

	if fs.NArg() < 1 || *rectFlag == "" {
		log.Fatalf("Usage: videoredact track --rect X,Y,W,H --frame N [--limit N] [--debug-overlay] <video>")
	}
	videoPath := fs.Arg(0)
	videoName := filepath.Base(videoPath)
	videoStem := strings.TrimSuffix(videoName, filepath.Ext(videoName))

	rect, err := parseRect(*rectFlag)
	if err != nil {
		log.Fatalf("Invalid --rect: %v", err)
	}

	store := frames.Open(cfg.FramesDir(videoStem))
	ocr := tracking.NewTesseractOCR(cfg.OCRLanguage)
	defer ocr.Close()

	tracker := tracking.NewTracker(store, ocr, cfg.TrackingFrameCap)
	results, err := tracker.Track(context.Background(), rect, *frame, *limit, nil, "")
	if err != nil {
		log.Fatalf("Tracking failed: %v", err)
	}

	fmt.Printf("tracked %d frames\n", len(results))
	if len(results) > 0 {
		auditStore.RecordTrackingSummary(videoStem, len(results), results[len(results)-1].Confidence)
	}
	if *debugOverlay {
		outDir := filepath.Join(cfg.FramesRoot, videoStem+"_debug_overlay")
		if err := tracking.SaveDebugOverlays(store, results, outDir); err != nil {
			log.Fatalf("Failed to write debug overlays: %v", err)
		}
		fmt.Printf("debug overlays written to %s\n", outDir)
	}

	trackedLog := eventsFromTracking(videoName, rect, results)
	if err := eventStore.Save(videoStem, trackedLog); err != nil {
		log.Fatalf("Failed to save tracked events: %v", err)
	}
}

func eventsFromTracking(videoName string, initial events.Rectangle, results []tracking.TrackingResult) *events.EventLog {
	rectangleID := "tracked-1"
	out := &events.EventLog{VideoName: videoName}
	for i, r := range results {
		ev := events.Event{Type: events.Moved, RectangleID: rectangleID, Rect: r.Rect}
		if i == 0 {
			ev.Type = events.Created
		}
		out.Frames = append(out.Frames, events.FrameEvents{FrameNumber: r.Frame, Events: []events.Event{ev}})
	}
	return out
}

func parseRect(s string) (events.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return events.Rectangle{}, fmt.Errorf("expected X,Y,W,H, got %q", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return events.Rectangle{}, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		vals[i] = v
	}
	return events.Rectangle{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}

func handleStatus(registry *jobs.Registry, args []string) {
	if len(args) < 1 {
		log.Fatalf("Usage: videoredact status <job-id>")
	}
	job, ok := registry.Get(args[0])
	if !ok {
		log.Fatalf("Unknown job: %s", args[0])
	}
	fmt.Printf("status: %s\nprogress: %d%%\nframes: %d/%d\nencoding: %d%%\n",
		job.Status, job.Progress, job.ProcessedFrames, job.TotalFrames, job.EncodingProgress)
	if job.Err != nil {
		fmt.Printf("error: %v\n", job.Err)
	}
}

func handleCancel(registry *jobs.Registry, args []string) {
	if len(args) < 1 {
		log.Fatalf("Usage: videoredact cancel <job-id>")
	}
	registry.MarkCancelled(args[0])
	fmt.Printf("cancel requested for job %s\n", args[0])
}

// confirm prompts the user for y/n confirmation.
func confirm() bool {
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func handleDeleteAppDir(cfg *config.Config) {
	if cfg.AppDir == "" {
		log.Fatalf("AppDir is not configured")
	}

	fmt.Printf("WARNING: This will delete the app directory: %s\n", cfg.AppDir)
	fmt.Print("Are you sure you want to continue? (y/n): ")

	if !confirm() {
		log.Println("Operation cancelled")
		os.Exit(0)
	}

	log.Printf("Deleting app directory: %s", cfg.AppDir)
	if err := os.RemoveAll(cfg.AppDir); err != nil {
		log.Fatalf("Failed to delete app directory: %v", err)
	}
	log.Println("App directory deleted successfully")
}

func handleDropSchema(auditStore *audit.Store) {
	fmt.Println("WARNING: This will drop the audit database schema and delete all data")
	fmt.Print("Are you sure you want to continue? (y/n): ")

	if !confirm() {
		log.Println("Operation cancelled")
		os.Exit(0)
	}

	log.Println("Dropping schema...")
	if err := auditStore.DropSchema(context.Background()); err != nil {
		log.Fatalf("Failed to drop schema: %v", err)
	}
	log.Println("Schema dropped successfully")
}
