package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/file2link/packer/internal/progress"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for the packer CLI and engine.
type Config struct {
	BaseDir          string          `yaml:"base_dir"`
	PublicURL        string          `yaml:"public_url"`
	DBPath           string          `yaml:"db_path"`
	SourceCategory   string          `yaml:"source_category"`
	OutputCategory   string          `yaml:"output_category"`
	MaxPartSizeMB    int             `yaml:"max_part_size_mb"`
	MaxFiles         int             `yaml:"max_files"`
	MaxTotalSize     int64           `yaml:"max_total_size"`
	BufferSize       int64           `yaml:"buffer_size"`
	CancelCheckEvery int             `yaml:"cancel_check_every"`
	SplitMode        string          `yaml:"split_mode"`
	JobTimeout       time.Duration   `yaml:"job_timeout"`
	Admission        AdmissionConfig `yaml:"admission"`
	Log              LogConfig       `yaml:"log"`
}

// AdmissionConfig defines the admission gate limits.
type AdmissionConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	CPULimit       float64       `yaml:"cpu_limit"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Split modes.
const (
	SplitEntry = "entry"
	SplitRaw   = "raw"
)

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BaseDir:          "static",
		PublicURL:        "http://localhost:8080",
		DBPath:           "packer.db",
		SourceCategory:   "download",
		OutputCategory:   "packed",
		MaxPartSizeMB:    100,
		MaxFiles:         20,
		MaxTotalSize:     2 * 1024 * 1024 * 1024, // 2GiB
		BufferSize:       1024 * 1024,            // 1MiB
		CancelCheckEvery: 8,
		SplitMode:        SplitEntry,
		JobTimeout:       10 * time.Minute,
		Admission: AdmissionConfig{
			MaxConcurrent:  1,
			CPULimit:       80,
			SampleInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	BaseDir          string              `yaml:"base_dir"`
	PublicURL        string              `yaml:"public_url"`
	DBPath           string              `yaml:"db_path"`
	SourceCategory   string              `yaml:"source_category"`
	OutputCategory   string              `yaml:"output_category"`
	MaxPartSizeMB    int                 `yaml:"max_part_size_mb"`
	MaxFiles         int                 `yaml:"max_files"`
	MaxTotalSize     string              `yaml:"max_total_size"`
	BufferSize       string              `yaml:"buffer_size"`
	CancelCheckEvery int                 `yaml:"cancel_check_every"`
	SplitMode        string              `yaml:"split_mode"`
	JobTimeout       string              `yaml:"job_timeout"`
	Admission        yamlAdmissionConfig `yaml:"admission"`
	Log              LogConfig           `yaml:"log"`
}

type yamlAdmissionConfig struct {
	MaxConcurrent  int     `yaml:"max_concurrent"`
	CPULimit       float64 `yaml:"cpu_limit"`
	SampleInterval string  `yaml:"sample_interval"`
}

// LoadFromFile loads configuration from a YAML file. Keys that are absent
// keep their defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	cfg.BaseDir = orString(yc.BaseDir, cfg.BaseDir)
	cfg.PublicURL = orString(yc.PublicURL, cfg.PublicURL)
	cfg.DBPath = orString(yc.DBPath, cfg.DBPath)
	cfg.SourceCategory = orString(yc.SourceCategory, cfg.SourceCategory)
	cfg.OutputCategory = orString(yc.OutputCategory, cfg.OutputCategory)
	cfg.SplitMode = orString(yc.SplitMode, cfg.SplitMode)
	cfg.Log.Level = orString(yc.Log.Level, cfg.Log.Level)
	cfg.Log.Format = orString(yc.Log.Format, cfg.Log.Format)

	if yc.MaxPartSizeMB != 0 {
		cfg.MaxPartSizeMB = yc.MaxPartSizeMB
	}
	if yc.MaxFiles != 0 {
		cfg.MaxFiles = yc.MaxFiles
	}
	if yc.CancelCheckEvery != 0 {
		cfg.CancelCheckEvery = yc.CancelCheckEvery
	}
	if yc.MaxTotalSize != "" {
		size, err := progress.ParseBytes(yc.MaxTotalSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse max_total_size: %w", err)
		}
		cfg.MaxTotalSize = size
	}
	if yc.BufferSize != "" {
		size, err := progress.ParseBytes(yc.BufferSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
		cfg.BufferSize = size
	}
	if yc.JobTimeout != "" {
		d, err := time.ParseDuration(yc.JobTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse job_timeout: %w", err)
		}
		cfg.JobTimeout = d
	}
	if yc.Admission.MaxConcurrent != 0 {
		cfg.Admission.MaxConcurrent = yc.Admission.MaxConcurrent
	}
	if yc.Admission.CPULimit != 0 {
		cfg.Admission.CPULimit = yc.Admission.CPULimit
	}
	if yc.Admission.SampleInterval != "" {
		d, err := time.ParseDuration(yc.Admission.SampleInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse admission.sample_interval: %w", err)
		}
		cfg.Admission.SampleInterval = d
	}

	return cfg, nil
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PACKER_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PACKER_BASE_DIR"); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv("PACKER_PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}
	if v := os.Getenv("PACKER_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PACKER_SPLIT_MODE"); v != "" {
		c.SplitMode = v
	}
	if v := os.Getenv("PACKER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PACKER_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"PACKER_MAX_PART_SIZE_MB", &c.MaxPartSizeMB},
		{"PACKER_MAX_FILES", &c.MaxFiles},
		{"PACKER_CANCEL_CHECK_EVERY", &c.CancelCheckEvery},
		{"PACKER_MAX_CONCURRENT", &c.Admission.MaxConcurrent},
	}
	for _, e := range ints {
		if v := os.Getenv(e.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", e.env, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("PACKER_MAX_TOTAL_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse PACKER_MAX_TOTAL_SIZE: %w", err)
		}
		c.MaxTotalSize = size
	}
	if v := os.Getenv("PACKER_BUFFER_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse PACKER_BUFFER_SIZE: %w", err)
		}
		c.BufferSize = size
	}
	if v := os.Getenv("PACKER_JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PACKER_JOB_TIMEOUT: %w", err)
		}
		c.JobTimeout = d
	}
	if v := os.Getenv("PACKER_CPU_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse PACKER_CPU_LIMIT: %w", err)
		}
		c.Admission.CPULimit = f
	}
	if v := os.Getenv("PACKER_CPU_SAMPLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse PACKER_CPU_SAMPLE_INTERVAL: %w", err)
		}
		c.Admission.SampleInterval = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return errors.New("config: base_dir is required")
	}
	if c.SourceCategory == "" || c.OutputCategory == "" {
		return errors.New("config: source and output categories are required")
	}
	if c.SourceCategory == c.OutputCategory {
		return errors.New("config: output category must differ from source category")
	}
	if c.MaxPartSizeMB <= 0 {
		return errors.New("config: max_part_size_mb must be positive")
	}
	if c.MaxFiles <= 0 {
		return errors.New("config: max_files must be positive")
	}
	if c.MaxTotalSize <= 0 {
		return errors.New("config: max_total_size must be positive")
	}
	if c.BufferSize <= 0 {
		return errors.New("config: buffer_size must be positive")
	}
	if c.CancelCheckEvery <= 0 {
		return errors.New("config: cancel_check_every must be positive")
	}
	if c.SplitMode != SplitEntry && c.SplitMode != SplitRaw {
		return fmt.Errorf("config: split_mode must be %q or %q, got %q", SplitEntry, SplitRaw, c.SplitMode)
	}
	if c.JobTimeout < 0 {
		return errors.New("config: job_timeout must not be negative")
	}
	if c.Admission.MaxConcurrent <= 0 {
		return errors.New("config: admission.max_concurrent must be positive")
	}
	if c.Admission.CPULimit <= 0 || c.Admission.CPULimit > 100 {
		return errors.New("config: admission.cpu_limit must be in (0, 100]")
	}
	if c.Admission.SampleInterval < 0 {
		return errors.New("config: admission.sample_interval must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	c.BaseDir = orString(override.BaseDir, c.BaseDir)
	c.PublicURL = orString(override.PublicURL, c.PublicURL)
	c.DBPath = orString(override.DBPath, c.DBPath)
	c.SourceCategory = orString(override.SourceCategory, c.SourceCategory)
	c.OutputCategory = orString(override.OutputCategory, c.OutputCategory)
	c.SplitMode = orString(override.SplitMode, c.SplitMode)
	c.Log.Level = orString(override.Log.Level, c.Log.Level)
	c.Log.Format = orString(override.Log.Format, c.Log.Format)
	if override.MaxPartSizeMB != 0 {
		c.MaxPartSizeMB = override.MaxPartSizeMB
	}
	if override.MaxFiles != 0 {
		c.MaxFiles = override.MaxFiles
	}
	if override.MaxTotalSize != 0 {
		c.MaxTotalSize = override.MaxTotalSize
	}
	if override.BufferSize != 0 {
		c.BufferSize = override.BufferSize
	}
	if override.CancelCheckEvery != 0 {
		c.CancelCheckEvery = override.CancelCheckEvery
	}
	if override.JobTimeout != 0 {
		c.JobTimeout = override.JobTimeout
	}
	if override.Admission.MaxConcurrent != 0 {
		c.Admission.MaxConcurrent = override.Admission.MaxConcurrent
	}
	if override.Admission.CPULimit != 0 {
		c.Admission.CPULimit = override.Admission.CPULimit
	}
	if override.Admission.SampleInterval != 0 {
		c.Admission.SampleInterval = override.Admission.SampleInterval
	}
	return c
}

// MaxPartSize returns the system part size ceiling in bytes.
func (c *Config) MaxPartSize() int64 {
	return int64(c.MaxPartSizeMB) * 1024 * 1024
}
