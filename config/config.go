package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// DefaultPath is read when no path is given. A missing default file is not an error.
const DefaultPath = "config.yaml"

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Training  TrainingConfig  `yaml:"training"`
	Database  DatabaseConfig  `yaml:"database"`
}

type HTTPConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ArtifactsConfig struct {
	Model   string `yaml:"model"`
	Encoder string `yaml:"encoder"`
	Stats   string `yaml:"stats"`
}

type TrainingConfig struct {
	Dataset   string  `yaml:"dataset"`
	TestRatio float64 `yaml:"test_ratio"`
	Seed      int64   `yaml:"seed"`
	Neighbors int     `yaml:"neighbors"`
	Trees     int     `yaml:"trees"`
	// Workers bounds concurrent tree building; 0 uses GOMAXPROCS.
	Workers int     `yaml:"workers"`
	C       float64 `yaml:"c"`
	MaxIter int     `yaml:"max_iter"`
}

type DatabaseConfig struct {
	// Path of the SQLite training history; empty disables it.
	Path string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:           "0.0.0.0",
			Port:           5000,
			MaxUploadBytes: 32 << 20,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Artifacts: ArtifactsConfig{
			Model:   "exoplanet_classifier.json",
			Encoder: "label_encoder.json",
			Stats:   "model_stats.json",
		},
		Training: TrainingConfig{
			Dataset:   "cumulative.csv",
			TestRatio: 0.2,
			Seed:      42,
			Neighbors: 5,
			Trees:     100,
			C:         1.0,
			MaxIter:   2000,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An empty path
// reads DefaultPath if it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Port = getEnvAsInt("EXO_HTTP_PORT", c.HTTP.Port)
	c.Log.Level = getEnv("EXO_LOG_LEVEL", c.Log.Level)
	c.Database.Path = getEnv("EXO_DATABASE_PATH", c.Database.Path)
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("http.max_upload_bytes must be positive"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	if c.Artifacts.Model == "" || c.Artifacts.Encoder == "" || c.Artifacts.Stats == "" {
		errs = append(errs, errors.New("artifact paths must not be empty"))
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		errs = append(errs, fmt.Errorf("training.test_ratio %v must be in (0, 1)", c.Training.TestRatio))
	}
	if c.Training.Neighbors <= 0 {
		errs = append(errs, errors.New("training.neighbors must be positive"))
	}
	if c.Training.Trees <= 0 {
		errs = append(errs, errors.New("training.trees must be positive"))
	}
	if c.Training.Workers < 0 {
		errs = append(errs, errors.New("training.workers must not be negative"))
	}
	if c.Training.C <= 0 {
		errs = append(errs, errors.New("training.c must be positive"))
	}
	if c.Training.MaxIter <= 0 {
		errs = append(errs, errors.New("training.max_iter must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address of the prediction service.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
