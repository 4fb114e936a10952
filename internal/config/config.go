package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Constants for default values.
const (
	DefaultPrerequisite   = "collect-ids"
	DefaultOutputDir      = "merged"
	DefaultMergePattern   = "*.csv"
	DefaultSampleInterval = time.Second
	DefaultTailLines      = 20
	DefaultLogLevel       = "info"
)

// DefaultJobs is the ordered entity list used for launch and merge order.
var DefaultJobs = []string{
	"authors", "concepts", "domains", "fields", "funders", "institutions",
	"publishers", "sources", "subfields", "topics", "works",
}

// DefaultReferenceFiles are the shared tables every job emits identically.
var DefaultReferenceFiles = []string{
	"country.csv", "region.csv", "city.csv", "institution_type.csv",
	"institution_relationship_type.csv", "source_type.csv", "work_type.csv",
	"license.csv", "language.csv",
}

// configNames are looked up in the working directory when no path is given.
var configNames = []string{"fanout.yaml", "fanout.yml", "fanout.toml"}

// Duration is a time.Duration that decodes from strings such as "750ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Worker describes the external worker command and the baseline arguments
// shared by every job.
type Worker struct {
	Command      []string          `yaml:"command" toml:"command" validate:"required,min=1,dive,required"`
	Source       string            `yaml:"source" toml:"source"`
	Schema       string            `yaml:"schema" toml:"schema"`
	IDDir        string            `yaml:"id_dir" toml:"id_dir"`
	MaxRecords   int               `yaml:"max_records" toml:"max_records" validate:"gte=0"`
	MaxFiles     int               `yaml:"max_files" toml:"max_files" validate:"gte=0"`
	UpdatedSince string            `yaml:"updated_since" toml:"updated_since" validate:"omitempty,datetime=2006-01-02"`
	UpdatedUntil string            `yaml:"updated_until" toml:"updated_until" validate:"omitempty,datetime=2006-01-02"`
	ExtraArgs    []string          `yaml:"extra_args" toml:"extra_args"`
	Env          map[string]string `yaml:"env" toml:"env"`
	Dir          string            `yaml:"dir" toml:"dir"`
}

// Config is the orchestrator configuration.
type Config struct {
	Jobs           []string `yaml:"jobs" toml:"jobs" validate:"required,min=1,unique,dive,jobname"`
	ReferenceFiles []string `yaml:"reference_files" toml:"reference_files" validate:"unique,dive,required"`
	Prerequisite   string   `yaml:"prerequisite" toml:"prerequisite" validate:"required,jobname"`
	FailFast       bool     `yaml:"fail_fast" toml:"fail_fast"`
	KeepTemp       bool     `yaml:"keep_temp" toml:"keep_temp"`
	SampleInterval Duration `yaml:"sample_interval" toml:"sample_interval"`
	TailLines      int      `yaml:"tail_lines" toml:"tail_lines" validate:"gte=0"`
	OutputDir      string   `yaml:"output_dir" toml:"output_dir" validate:"required"`
	WorkDir        string   `yaml:"work_dir" toml:"work_dir"`
	MergePattern   string   `yaml:"merge_pattern" toml:"merge_pattern" validate:"required"`
	LogLevel       string   `yaml:"log_level" toml:"log_level"`
	TUI            bool     `yaml:"tui" toml:"tui"`
	Worker         Worker   `yaml:"worker" toml:"worker"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-" toml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Jobs:           append([]string(nil), DefaultJobs...),
		ReferenceFiles: append([]string(nil), DefaultReferenceFiles...),
		Prerequisite:   DefaultPrerequisite,
		FailFast:       true,
		SampleInterval: Duration{DefaultSampleInterval},
		TailLines:      DefaultTailLines,
		OutputDir:      DefaultOutputDir,
		MergePattern:   DefaultMergePattern,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads the configuration at path on top of the defaults. An empty path
// searches the working directory; finding nothing yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = findConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	// #nosec G304 -- path is operator supplied or one of the fixed local names
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml", "":
		return yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q (expected .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// findConfigPath returns the first config file present in the working directory.
func findConfigPath() string {
	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			return name
		} else if !errors.Is(err, fs.ErrNotExist) {
			return name
		}
	}
	return ""
}
