package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/segstream/internal/imgcodec"
)

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Problems []string
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Problems) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, p := range e.Problems {
		sb.WriteString(fmt.Sprintf("  - %s\n", p))
	}
	return sb.String()
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateStream(errs, c.Stream)
	validateCamera(errs, c.Camera)
	validateProcessing(errs, c.Processing)

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		errs.add("http.addr is required when http.enabled=true")
	}
	if err := c.Notify.Validate(); err != nil {
		errs.add("%v", err)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs.add("logging.level %q is not a valid level", c.Logging.Level)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateStream(errs *ValidationErrors, s StreamConfig) {
	if s.Host == "" {
		errs.add("stream.host is required")
	}
	if s.Port < 1 || s.Port > 65535 {
		errs.add("stream.port must be between 1 and 65535, got %d", s.Port)
	}
	if s.MaxRetries < 1 {
		errs.add("stream.max_retries must be >= 1, got %d", s.MaxRetries)
	}
	if s.RetryDelay < 0 {
		errs.add("stream.retry_delay must not be negative")
	}
	if s.ReadBufferSize < 1 {
		errs.add("stream.read_buffer_size must be >= 1, got %d", s.ReadBufferSize)
	}
	if s.MaxRecordSize < 1 {
		errs.add("stream.max_record_size must be >= 1, got %d", s.MaxRecordSize)
	}
}

func validateCamera(errs *ValidationErrors, c CameraConfig) {
	switch c.Source {
	case "synthetic":
	case "directory":
		if c.Directory == "" {
			errs.add("camera.directory is required when camera.source=directory")
		}
	default:
		errs.add("camera.source %q must be 'synthetic' or 'directory'", c.Source)
	}
	if c.Width < 1 || c.Height < 1 {
		errs.add("camera.width and camera.height must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		errs.add("camera.fps must be positive, got %g", c.FPS)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs.add("camera.jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.MaxFrames < 0 {
		errs.add("camera.max_frames must not be negative")
	}
	if c.StatsEvery < 0 {
		errs.add("camera.stats_every must not be negative")
	}
}

func validateProcessing(errs *ValidationErrors, p ProcessingConfig) {
	if p.BatchSize < 1 {
		errs.add("processing.batch_size must be >= 1, got %d", p.BatchSize)
	}
	if p.OutputDir == "" {
		errs.add("processing.output_dir is required")
	}
	if _, err := imgcodec.New(p.OutputFormat, p.JPEGQuality); err != nil {
		errs.add("processing.output_format: %v", err)
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		errs.add("processing.jpeg_quality must be between 1 and 100, got %d", p.JPEGQuality)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		errs.add("processing.confidence_threshold must be within [0, 1], got %g", p.ConfidenceThreshold)
	}
	if _, err := p.Policy(); err != nil {
		errs.add("processing: %v", err)
	}
	if p.Workers < 1 {
		errs.add("processing.workers must be >= 1, got %d", p.Workers)
	}
	if p.Segmenter != "border" {
		errs.add("processing.segmenter %q is not supported (available: border)", p.Segmenter)
	}
}
