package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dkoosis/fanout/internal/logging"
)

// CliFlags holds the values of command-line flags.
type CliFlags struct {
	ConfigPath     string
	FailFast       bool
	KeepTemp       bool
	TUI            bool
	Debug          bool
	OutputDir      string
	WorkDir        string
	LogLevel       string
	SampleInterval time.Duration
	Only           []string

	// Flags to track if they were explicitly set by the user
	FailFastSet bool
	KeepTempSet bool
	TUISet      bool
}

// Source names where a resolved value came from.
type Source string

const (
	SourceCLI     Source = "cli"
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
	SourceDefault Source = "default"
)

// Resolved is the final configuration together with resolution metadata.
type Resolved struct {
	*Config

	FailFastSource Source
	KeepTempSource Source
}

// Resolve loads the config file and applies environment variables and CLI
// flags on top, then validates the result.
func Resolve(flags CliFlags) (*Resolved, error) {
	cfg, err := Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}

	base := SourceDefault
	if cfg.Path != "" {
		base = SourceFile
	}
	res := &Resolved{Config: cfg, FailFastSource: base, KeepTempSource: base}

	if err := applyEnv(res); err != nil {
		return nil, err
	}
	applyFlags(res, flags)

	if len(flags.Only) > 0 {
		jobs, err := selectJobs(cfg.Jobs, flags.Only)
		if err != nil {
			return nil, err
		}
		cfg.Jobs = jobs
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return res, nil
}

func applyEnv(res *Resolved) error {
	if v := getEnvBool("FANOUT_FAIL_FAST"); v != nil {
		res.FailFast = *v
		res.FailFastSource = SourceEnv
	}
	if v := getEnvBool("FANOUT_KEEP_TEMP"); v != nil {
		res.KeepTemp = *v
		res.KeepTempSource = SourceEnv
	}
	if v := getEnvBool("FANOUT_TUI"); v != nil {
		res.TUI = *v
	}
	if v := os.Getenv("FANOUT_OUTPUT_DIR"); v != "" {
		res.OutputDir = v
	}
	if v := os.Getenv("FANOUT_WORK_DIR"); v != "" {
		res.WorkDir = v
	}
	if v := os.Getenv("FANOUT_LOG_LEVEL"); v != "" {
		res.LogLevel = v
	}
	if os.Getenv("FANOUT_DEBUG") != "" {
		res.LogLevel = "debug"
	}
	if v := os.Getenv("FANOUT_SAMPLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FANOUT_SAMPLE_INTERVAL: %w", err)
		}
		res.SampleInterval = Duration{d}
	}
	return nil
}

func applyFlags(res *Resolved, flags CliFlags) {
	if flags.FailFastSet {
		res.FailFast = flags.FailFast
		res.FailFastSource = SourceCLI
	}
	if flags.KeepTempSet {
		res.KeepTemp = flags.KeepTemp
		res.KeepTempSource = SourceCLI
	}
	if flags.TUISet {
		res.TUI = flags.TUI
	}
	if flags.OutputDir != "" {
		res.OutputDir = flags.OutputDir
	}
	if flags.WorkDir != "" {
		res.WorkDir = flags.WorkDir
	}
	if flags.LogLevel != "" {
		res.LogLevel = flags.LogLevel
	}
	if flags.Debug {
		res.LogLevel = "debug"
	}
	if flags.SampleInterval > 0 {
		res.SampleInterval = Duration{flags.SampleInterval}
	}
}

// selectJobs restricts jobs to the names in only, keeping configured order.
func selectJobs(jobs, only []string) ([]string, error) {
	want := make(map[string]bool, len(only))
	for _, name := range only {
		name = strings.TrimSpace(name)
		if name != "" {
			want[name] = true
		}
	}
	var out []string
	for _, name := range jobs {
		if want[name] {
			out = append(out, name)
			delete(want, name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for _, name := range only {
			if want[strings.TrimSpace(name)] {
				unknown = append(unknown, strings.TrimSpace(name))
			}
		}
		return nil, fmt.Errorf("unknown job(s) in --only: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

var jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("jobname", func(fl validator.FieldLevel) bool {
		return jobNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks the configuration for invalid states.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return describe(verrs)
		}
		return err
	}

	for _, name := range cfg.Jobs {
		if name == cfg.Prerequisite {
			return fmt.Errorf("prerequisite %q is also listed as a parallel job", name)
		}
	}
	if cfg.SampleInterval.Duration <= 0 {
		return fmt.Errorf("sample_interval must be positive, got: %s", cfg.SampleInterval)
	}
	if _, err := filepath.Match(cfg.MergePattern, ""); err != nil {
		return fmt.Errorf("invalid merge_pattern %q: %w", cfg.MergePattern, err)
	}
	if !logging.ValidLevel(cfg.LogLevel) {
		return fmt.Errorf("invalid log_level value: %s (must be: trace, debug, info, warn, error)", cfg.LogLevel)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "jobname":
			msgs = append(msgs, fmt.Sprintf("%s: %q is not a valid job name", field, fe.Value()))
		case "unique":
			msgs = append(msgs, fmt.Sprintf("%s must not contain duplicates", field))
		default:
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
			}
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// getEnvBool reads a boolean from environment variables, trying multiple keys.
// Returns nil if none are set, or a pointer to the boolean value.
func getEnvBool(keys ...string) *bool {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				return &b
			}
		}
	}
	return nil
}
