package config

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "AGENTRPC_CONFIG"

// File is the on-disk configuration of the agent process. Every key can be
// overridden with the AGENTRPC_* environment variable named in its env tag.
type File struct {
	LogLevel              string        `yaml:"log_level" toml:"log_level" env:"AGENTRPC_LOG_LEVEL"`
	LogFormat             string        `yaml:"log_format" toml:"log_format" env:"AGENTRPC_LOG_FORMAT"`
	Framing               string        `yaml:"framing" toml:"framing" env:"AGENTRPC_FRAMING"`
	HandshakeTimeout      time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout" env:"AGENTRPC_HANDSHAKE_TIMEOUT"`
	CancelGracePeriod     time.Duration `yaml:"cancel_grace_period" toml:"cancel_grace_period" env:"AGENTRPC_CANCEL_GRACE_PERIOD"`
	MaxConcurrentHandlers int           `yaml:"max_concurrent_handlers" toml:"max_concurrent_handlers" env:"AGENTRPC_MAX_CONCURRENT_HANDLERS"`
	MaxFrameSize          int           `yaml:"max_frame_size" toml:"max_frame_size" env:"AGENTRPC_MAX_FRAME_SIZE"`
	ServerName            string        `yaml:"server_name" toml:"server_name" env:"AGENTRPC_SERVER_NAME"`
	Listen                string        `yaml:"listen" toml:"listen" env:"AGENTRPC_LISTEN"`
	MetricsAddr           string        `yaml:"metrics_addr" toml:"metrics_addr" env:"AGENTRPC_METRICS_ADDR"`
}

// Defaults returns the configuration used when no file or environment
// override is present.
func Defaults() File {
	return File{
		LogLevel:          "info",
		LogFormat:         "json",
		Framing:           string(FramingLine),
		HandshakeTimeout:  DefaultHandshakeTimeout,
		CancelGracePeriod: DefaultCancelGracePeriod,
		MaxFrameSize:      DefaultMaxFrameSize,
		ServerName:        DefaultServerName,
	}
}

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. Config file (explicit path, then AGENTRPC_CONFIG); YAML or TOML by extension
//  3. AGENTRPC_* environment overrides
//  4. Validation
func Load(path string) (*File, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !stderrors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// decodeFile overlays the file at path onto cfg.
// Keys not present in the file retain their current values.
func decodeFile(path string, cfg *File) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return err
		}

		return nil

	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		return yaml.Unmarshal(data, cfg)

	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// Validate reports the first invalid setting.
func (f *File) Validate() error {
	if _, err := ParseFraming(f.Framing); err != nil {
		return err
	}

	if _, err := parseLevel(f.LogLevel); err != nil {
		return err
	}

	switch f.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", f.LogFormat)
	}

	if f.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake_timeout must not be negative, got %s", f.HandshakeTimeout)
	}

	if f.CancelGracePeriod < 0 {
		return fmt.Errorf("cancel_grace_period must not be negative, got %s", f.CancelGracePeriod)
	}

	if f.MaxConcurrentHandlers < 0 {
		return fmt.Errorf("max_concurrent_handlers must not be negative, got %d", f.MaxConcurrentHandlers)
	}

	if f.MaxFrameSize < 0 {
		return fmt.Errorf("max_frame_size must not be negative, got %d", f.MaxFrameSize)
	}

	return nil
}

// Level returns the configured log level.
func (f *File) Level() slog.Level {
	level, _ := parseLevel(f.LogLevel)

	return level
}

// Apply copies the session settings of f onto o.
func (f *File) Apply(o *Options) error {
	framing, err := ParseFraming(f.Framing)
	if err != nil {
		return err
	}

	o.Framing = framing
	o.HandshakeTimeout = f.HandshakeTimeout
	o.CancelGracePeriod = f.CancelGracePeriod
	o.MaxConcurrentHandlers = f.MaxConcurrentHandlers
	o.MaxFrameSize = f.MaxFrameSize

	if f.ServerName != "" {
		o.ServerInfo = ServerInfo{Name: f.ServerName, Version: Version}
	}

	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}

	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}

	return level, nil
}
