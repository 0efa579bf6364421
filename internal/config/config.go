// Package config provides configuration for mudra.
// Configuration is loaded from environment variables on top of defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ayusman/mudra/internal/detector"
)

const (
	// Default values
	DefaultPort            = 8080
	DefaultLogLevel        = "info"
	DefaultDataDir         = ".mudra"
	DefaultThreshold       = 0.7
	DefaultMotionThreshold = 1.0

	// Corpus backends
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDir      = "dir"

	// Environment variable names
	EnvDataDir                = "MUDRA_DATA_DIR"
	EnvLogLevel               = "MUDRA_LOG_LEVEL"
	EnvPort                   = "MUDRA_PORT"
	EnvCorpusBackend          = "MUDRA_CORPUS_BACKEND"
	EnvCorpusDir              = "MUDRA_CORPUS_DIR"
	EnvPostgresDSN            = "MUDRA_POSTGRES_DSN"
	EnvCameraID               = "MUDRA_CAMERA_ID"
	EnvMinDetectionConfidence = "MUDRA_MIN_DETECTION_CONFIDENCE"
	EnvMinTrackingConfidence  = "MUDRA_MIN_TRACKING_CONFIDENCE"
	EnvThreshold              = "MUDRA_THRESHOLD"
	EnvMinSeqLen              = "MUDRA_MIN_SEQ_LEN"
	EnvMaxSeqLen              = "MUDRA_MAX_SEQ_LEN"
	EnvModelPath              = "MUDRA_MODEL_PATH"
	EnvMetadataPath           = "MUDRA_METADATA_PATH"
	EnvPluginDir              = "MUDRA_PLUGIN_DIR"
	EnvMotionThreshold        = "MUDRA_MOTION_THRESHOLD"

	// DBFilename is the SQLite corpus inside the data directory.
	DBFilename = "mudra.db"
)

// Config is the application configuration.
type Config struct {
	DataDir  string
	LogLevel string
	Port     int

	CorpusBackend string
	// CorpusDir overrides <DataDir>/actions for the dir backend.
	CorpusDir   string
	PostgresDSN string

	CameraID int
	Detector detector.Config

	Threshold float64
	// MinSeqLen and MaxSeqLen override the model metadata when non-zero.
	MinSeqLen int
	MaxSeqLen int

	ModelPath string
	// MetadataPath defaults to metadata.json next to the model.
	MetadataPath string

	PluginDir       string
	MotionThreshold float64
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		DataDir:         defaultDataDir(),
		LogLevel:        DefaultLogLevel,
		Port:            DefaultPort,
		CorpusBackend:   BackendSQLite,
		Detector:        detector.DefaultConfig(),
		Threshold:       DefaultThreshold,
		MotionThreshold: DefaultMotionThreshold,
	}
}

// FromEnv returns Default with environment overrides applied. Invalid
// values are reported with the variable name.
func FromEnv() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int, min int) {
		v := getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		if n < min {
			errs = append(errs, fmt.Errorf("invalid %s: must be at least %d", name, min))
			return
		}
		*dst = n
	}
	unit := func(name string, dst *float64) {
		v := getenv(name)
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		if f < 0 || f > 1 {
			errs = append(errs, fmt.Errorf("invalid %s: must be between 0 and 1", name))
			return
		}
		*dst = f
	}

	str(EnvDataDir, &cfg.DataDir)
	str(EnvLogLevel, &cfg.LogLevel)
	integer(EnvPort, &cfg.Port, 1)
	str(EnvCorpusBackend, &cfg.CorpusBackend)
	str(EnvCorpusDir, &cfg.CorpusDir)
	str(EnvPostgresDSN, &cfg.PostgresDSN)
	integer(EnvCameraID, &cfg.CameraID, 0)
	unit(EnvMinDetectionConfidence, &cfg.Detector.MinDetectionConfidence)
	unit(EnvMinTrackingConfidence, &cfg.Detector.MinTrackingConfidence)
	unit(EnvThreshold, &cfg.Threshold)
	integer(EnvMinSeqLen, &cfg.MinSeqLen, 1)
	integer(EnvMaxSeqLen, &cfg.MaxSeqLen, 1)
	str(EnvModelPath, &cfg.ModelPath)
	str(EnvMetadataPath, &cfg.MetadataPath)
	str(EnvPluginDir, &cfg.PluginDir)

	if v := getenv(EnvMotionThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must be a non-negative number", EnvMotionThreshold))
		} else {
			cfg.MotionThreshold = f
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	switch c.CorpusBackend {
	case BackendSQLite, BackendDir:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvPostgresDSN, EnvCorpusBackend, BackendPostgres)
		}
	default:
		return fmt.Errorf("invalid %s: %q (want %s, %s or %s)", EnvCorpusBackend, c.CorpusBackend,
			BackendSQLite, BackendPostgres, BackendDir)
	}
	if c.MinSeqLen > 0 && c.MaxSeqLen > 0 && c.MinSeqLen > c.MaxSeqLen {
		return fmt.Errorf("invalid %s: %d exceeds %s %d", EnvMinSeqLen, c.MinSeqLen, EnvMaxSeqLen, c.MaxSeqLen)
	}
	return nil
}

// DBPath returns the SQLite corpus path.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

// ActionsDir returns the root of the directory corpus.
func (c Config) ActionsDir() string {
	if c.CorpusDir != "" {
		return c.CorpusDir
	}
	return filepath.Join(c.DataDir, "actions")
}

// PluginsDir returns the plugin directory.
func (c Config) PluginsDir() string {
	if c.PluginDir != "" {
		return c.PluginDir
	}
	return filepath.Join(c.DataDir, "plugins")
}

// ModelMetadataPath returns where the classifier metadata is read from.
func (c Config) ModelMetadataPath() string {
	if c.MetadataPath != "" {
		return c.MetadataPath
	}
	if c.ModelPath == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(c.ModelPath), "metadata.json")
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}
