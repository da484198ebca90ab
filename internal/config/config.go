package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/your-org/faceoverlay/internal/overlay"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	NATS    NATSConfig    `yaml:"nats"`
	Overlay OverlayConfig `yaml:"overlay"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port" validate:"gte=1,lte=65535"`
	APIKey string `yaml:"api_key"`
}

type NATSConfig struct {
	URL string `yaml:"url" validate:"required"`
	// Consumer is the durable JetStream consumer name for detection batches.
	Consumer string `yaml:"consumer" validate:"required"`
	Workers  int    `yaml:"workers" validate:"gte=1,lte=256"`
	// PublishOverlay mirrors every rendered overlay to overlay.frames.<stream_id>.
	PublishOverlay bool `yaml:"publish_overlay"`
}

type OverlayConfig struct {
	TickRate        int            `yaml:"tick_rate" validate:"gte=1,lte=240"`
	StalenessWindow time.Duration  `yaml:"staleness_window" validate:"gte=0"`
	MaxTickDelta    time.Duration  `yaml:"max_tick_delta" validate:"gte=0"`
	Stiffness       float64        `yaml:"stiffness"`
	Damping         float64        `yaml:"damping"`
	SettleEpsilon   float64        `yaml:"settle_epsilon" validate:"gte=0"`
	OpacityFloor    float64        `yaml:"opacity_floor" validate:"gte=0,lt=1"`
	MinConfidence   float64        `yaml:"min_confidence" validate:"gte=0,lte=1"`
	ProximityIoU    float64        `yaml:"proximity_iou" validate:"gte=0,lte=1"`
	DefaultFacing   string         `yaml:"default_facing"`
	Viewport        ViewportConfig `yaml:"viewport"`
}

type ViewportConfig struct {
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	PreviewHeight float64 `yaml:"preview_height"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, then applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.Consumer == "" {
		cfg.NATS.Consumer = "overlay"
	}
	if cfg.NATS.Workers == 0 {
		cfg.NATS.Workers = 4
	}

	spring := overlay.DefaultSpring()
	smooth := overlay.DefaultSmootherOptions()
	if cfg.Overlay.TickRate == 0 {
		cfg.Overlay.TickRate = 60
	}
	if cfg.Overlay.StalenessWindow == 0 {
		cfg.Overlay.StalenessWindow = 500 * time.Millisecond
	}
	if cfg.Overlay.MaxTickDelta == 0 {
		cfg.Overlay.MaxTickDelta = smooth.MaxTickDelta
	}
	if cfg.Overlay.Stiffness == 0 {
		cfg.Overlay.Stiffness = spring.Stiffness
	}
	if cfg.Overlay.Damping == 0 {
		// Critical damping for whatever stiffness was configured.
		cfg.Overlay.Damping = 2 * math.Sqrt(cfg.Overlay.Stiffness)
	}
	if cfg.Overlay.SettleEpsilon == 0 {
		cfg.Overlay.SettleEpsilon = smooth.SettleEpsilon
	}
	if cfg.Overlay.OpacityFloor == 0 {
		cfg.Overlay.OpacityFloor = smooth.OpacityFloor
	}
	if cfg.Overlay.DefaultFacing == "" {
		cfg.Overlay.DefaultFacing = overlay.FacingBack.String()
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FO_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FO_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FO_NATS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Workers = n
		}
	}
	if v := os.Getenv("FO_NATS_PUBLISH_OVERLAY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NATS.PublishOverlay = b
		}
	}
	if v := os.Getenv("FO_TICK_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Overlay.TickRate = n
		}
	}
	if v := os.Getenv("FO_STALENESS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Overlay.StalenessWindow = d
		}
	}
	if v := os.Getenv("FO_DEFAULT_FACING"); v != "" {
		cfg.Overlay.DefaultFacing = v
	}
	if v := os.Getenv("FO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

var validate = validator.New()

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}
	if err := c.Overlay.Spring().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("overlay spring: %w", err))
	}
	if _, err := overlay.ParseFacing(c.Overlay.DefaultFacing); err != nil {
		errs = append(errs, fmt.Errorf("overlay.default_facing: %w", err))
	}
	if err := c.Overlay.Viewport.Viewport().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("overlay.viewport: %w", err))
	}
	return errors.Join(errs...)
}

// Spring returns the configured spring constants.
func (o OverlayConfig) Spring() overlay.Spring {
	return overlay.Spring{Stiffness: o.Stiffness, Damping: o.Damping}
}

// Facing returns the parsed default facing, falling back to back.
func (o OverlayConfig) Facing() overlay.Facing {
	f, err := overlay.ParseFacing(o.DefaultFacing)
	if err != nil {
		return overlay.FacingBack
	}
	return f
}

func (v ViewportConfig) Viewport() overlay.Viewport {
	return overlay.Viewport{Width: v.Width, Height: v.Height, PreviewHeight: v.PreviewHeight}
}

// SessionOptions builds the per-stream session defaults. StreamID, Clock
// and Sink are filled in by the caller.
func (o OverlayConfig) SessionOptions() overlay.Options {
	return overlay.Options{
		Facing:        o.Facing(),
		Viewport:      o.Viewport.Viewport(),
		TickRate:      o.TickRate,
		MinConfidence: o.MinConfidence,
		Tracker: overlay.TrackerOptions{
			StalenessWindow: o.StalenessWindow,
			ProximityIoU:    o.ProximityIoU,
		},
		Smoother: overlay.SmootherOptions{
			Spring:        o.Spring(),
			SettleEpsilon: o.SettleEpsilon,
			OpacityFloor:  o.OpacityFloor,
			MaxTickDelta:  o.MaxTickDelta,
		},
	}
}
