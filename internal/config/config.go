package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/segstream/internal/frame"
	"github.com/dgnsrekt/segstream/internal/notify"
	"github.com/dgnsrekt/segstream/internal/segment"
)

type Config struct {
	Stream     StreamConfig     `mapstructure:"stream"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Journal    JournalConfig    `mapstructure:"journal"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Notify     notify.Config    `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type StreamConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
	MaxRecordSize  int           `mapstructure:"max_record_size"`
}

// Addr returns host:port.
func (s StreamConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type CameraConfig struct {
	Source      string  `mapstructure:"source"` // synthetic or directory
	Directory   string  `mapstructure:"directory"`
	Loop        bool    `mapstructure:"loop"`
	Width       int     `mapstructure:"width"`
	Height      int     `mapstructure:"height"`
	FPS         float64 `mapstructure:"fps"`
	JPEGQuality int     `mapstructure:"jpeg_quality"`
	MaxFrames   int     `mapstructure:"max_frames"`
	StatsEvery  int     `mapstructure:"stats_every"`
}

type ProcessingConfig struct {
	BatchSize           int     `mapstructure:"batch_size"`
	OutputDir           string  `mapstructure:"output_dir"`
	OutputFormat        string  `mapstructure:"output_format"`
	JPEGQuality         int     `mapstructure:"jpeg_quality"`
	ReplacementColor    string  `mapstructure:"replacement_color"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaskPolicy          string  `mapstructure:"mask_policy"` // above or below
	Workers             int     `mapstructure:"workers"`
	Pipelined           bool    `mapstructure:"pipelined"`
	Segmenter           string  `mapstructure:"segmenter"`
	SegmenterTolerance  float64 `mapstructure:"segmenter_tolerance"`
}

// Policy builds the compositing policy from the processing settings.
func (p ProcessingConfig) Policy() (segment.Policy, error) {
	c, err := segment.ParseColor(p.ReplacementColor)
	if err != nil {
		return segment.Policy{}, err
	}
	dir, err := segment.ParseDirection(p.MaskPolicy)
	if err != nil {
		return segment.Policy{}, err
	}
	return segment.Policy{Threshold: float32(p.ConfidenceThreshold), Direction: dir, Color: c}, nil
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // defaults to <output_dir>/outcomes.jsonl.zst
}

type HTTPConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

// JournalPath resolves the outcome journal location.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Processing.OutputDir, "outcomes.jsonl.zst")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.host", "localhost")
	v.SetDefault("stream.port", 6100)
	v.SetDefault("stream.max_retries", 5)
	v.SetDefault("stream.retry_delay", "2s")
	v.SetDefault("stream.read_buffer_size", 64*1024)
	v.SetDefault("stream.max_record_size", frame.DefaultMaxRecordSize)

	v.SetDefault("camera.source", "synthetic")
	v.SetDefault("camera.directory", "")
	v.SetDefault("camera.loop", false)
	v.SetDefault("camera.width", 320)
	v.SetDefault("camera.height", 240)
	v.SetDefault("camera.fps", 5)
	v.SetDefault("camera.jpeg_quality", 85)
	v.SetDefault("camera.max_frames", 0)
	v.SetDefault("camera.stats_every", 30)

	v.SetDefault("processing.batch_size", 10)
	v.SetDefault("processing.output_dir", "output_frames")
	v.SetDefault("processing.output_format", "jpg")
	v.SetDefault("processing.jpeg_quality", 90)
	v.SetDefault("processing.replacement_color", "#c0c0c0")
	v.SetDefault("processing.confidence_threshold", 0.2)
	v.SetDefault("processing.mask_policy", "above")
	v.SetDefault("processing.workers", 1)
	v.SetDefault("processing.pipelined", false)
	v.SetDefault("processing.segmenter", "border")
	v.SetDefault("processing.segmenter_tolerance", 60)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.stats_interval", "1s")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "camera")
	v.SetDefault("notify.token", "")

	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
}

// Load reads defaults, an optional YAML file, a .env file and SEGSTREAM_*
// environment variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// A missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("SEGSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
