// Package config loads and validates the process-wide application
// configuration for the video redaction pipeline.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds settings shared by every component. Fields without an
// explicit default must be present in the config file or Validate fails.
type Config struct {
	// FramesRoot is the directory under which per-video frame folders live,
	// e.g. FramesRoot/<video_stem>/frame_000001.jpg.
	FramesRoot string `json:"frames_root"`

	// BlurRadius is the default Gaussian blur radius in pixels for the
	// Frame Processing Engine when a caller does not override it.
	BlurRadius float64 `json:"blur_radius"`

	// MaxWorkers is the default worker pool size for the Frame Processing
	// Engine (spec default: 4).
	MaxWorkers int `json:"max_workers"`

	// TrackingFrameCap bounds the "all remaining" sentinel for the tracking
	// pipeline's frame_limit (spec default: 900).
	TrackingFrameCap int `json:"tracking_frame_cap"`

	// OCRLanguage is the Tesseract language code passed to gosseract.
	OCRLanguage string `json:"ocr_language"`

	// FfprobeBinary and FfmpegBinary allow overriding the binaries on PATH.
	FfprobeBinary string `json:"ffprobe_binary"`
	FfmpegBinary  string `json:"ffmpeg_binary"`

	// AuditDatabaseURL, if set, enables the best-effort Postgres audit
	// mirror (internal/audit). Empty disables it entirely.
	AuditDatabaseURL string `json:"audit_database_url,omitempty"`

	// AppDir is the application's base directory, removed by the CLI's
	// -delete-app-dir command. Required.
	AppDir string `json:"app_dir"`
}

// ConfigPath returns the default config file path: videoredact.config.json
// in the current directory, falling back to ~/.videoredact/config.json.
func ConfigPath() (string, error) {
	localPath := "videoredact.config.json"
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".videoredact", "config.json"), nil
}

// Load reads, parses, and validates the configuration from path. An empty
// path resolves via ConfigPath.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}

	return &cfg, nil
}

// Default returns a Config pre-populated with spec-mandated defaults. A
// caller unmarshalling into this still must supply FramesRoot and AppDir.
func Default() Config {
	return Config{
		BlurRadius:       12,
		MaxWorkers:       4,
		TrackingFrameCap: 900,
		OCRLanguage:      "eng",
		FfprobeBinary:    "ffprobe",
		FfmpegBinary:     "ffmpeg",
	}
}

// Validate checks that all required fields are present and internally
// consistent.
func (c *Config) Validate() error {
	var missing []string

	if c.FramesRoot == "" {
		missing = append(missing, "frames_root")
	}
	if c.AppDir == "" {
		missing = append(missing, "app_dir")
	}
	if c.MaxWorkers <= 0 {
		missing = append(missing, "max_workers")
	}
	if c.BlurRadius <= 0 {
		missing = append(missing, "blur_radius")
	}
	if c.TrackingFrameCap <= 0 {
		missing = append(missing, "tracking_frame_cap")
	}
	if c.OCRLanguage == "" {
		missing = append(missing, "ocr_language")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %v", missing)
	}

	if c.TrackingFrameCap > 900 {
		return errors.New("tracking_frame_cap must not exceed the 900-frame safety cap")
	}

	return nil
}

// Save writes the config to path, validating first.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// FramesDir returns the frame directory for a given video stem.
func (c *Config) FramesDir(videoStem string) string {
	return filepath.Join(c.FramesRoot, videoStem)
}

// BlurredFramesDir returns the blurred-output mirror directory for a video
// stem, optionally using the preview suffix.
func (c *Config) BlurredFramesDir(videoStem string, preview bool) string {
	suffix := "_blurred"
	if preview {
		suffix = "_preview_blurred"
	}
	return filepath.Join(c.FramesRoot, videoStem+suffix)
}
