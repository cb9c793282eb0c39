package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Fatal configuration errors. The CLI matches these with errors.Is to
// decide the diagnostic; all of them terminate the run.
var (
	ErrMissingConfigFile = errors.New("missing config file")
	ErrMissingScriptFile = errors.New("missing script file")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidFieldValue = errors.New("invalid field value")
)

// Config is the resolved, validated configuration for one run. It is
// built once by Resolve and not mutated afterwards; per-job render
// contexts are shallow copies produced by Context.
type Config struct {
	Project  string
	Queue    string
	CPUs     int
	Walltime string
	Mem      string
	Workdir  string // always absolute
	Script   string // verbatim script file body
	Overload int    // work units per processor, >= 1
	Submit   string // scheduler submit command token
}

// Overrides carries CLI-supplied field values. Empty string means the
// flag was not given. Numeric fields stay strings here so a bad value
// is reported as ErrInvalidFieldValue rather than a flag-parse error.
type Overrides struct {
	Project  string
	Queue    string
	CPUs     string
	Walltime string
	Mem      string
	Workdir  string
	Overload string
	Submit   string
}

// fileConfig mirrors the YAML config document. Numeric fields decode
// into any so both `cpus: 8` and `cpus: "8"` are accepted and anything
// else is rejected with a field-naming error during coercion.
type fileConfig struct {
	Project  string `yaml:"project"`
	Queue    string `yaml:"queue"`
	CPUs     any    `yaml:"cpus"`
	Walltime string `yaml:"walltime"`
	Mem      string `yaml:"mem"`
	Workdir  string `yaml:"workdir"`
	Overload any    `yaml:"overload"`
	Submit   string `yaml:"submit"`
}

// DefaultPath resolves $XDG_CONFIG_HOME/csub/config.yaml or
// ~/.config/csub/config.yaml.
func DefaultPath() string {
	return filepath.Join(userConfigDir(), "config.yaml")
}

// DefaultTemplatePath resolves the per-user job template location.
func DefaultTemplatePath() string {
	return filepath.Join(userConfigDir(), "template.job")
}

func userConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "csub")
}

// Resolve merges the config file (explicit path, or the default
// location when path is empty) with CLI overrides, reads the script
// file body, and validates the result. Overrides always win. A missing
// file at the default location is an empty base; a missing file at an
// explicit path is fatal.
func Resolve(ov Overrides, configPath, scriptPath string) (*Config, error) {
	base, err := loadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Project:  pick(ov.Project, base.Project),
		Queue:    pick(ov.Queue, base.Queue),
		Walltime: pick(ov.Walltime, base.Walltime),
		Mem:      pick(ov.Mem, base.Mem),
		Workdir:  pick(ov.Workdir, base.Workdir),
		Submit:   pick(ov.Submit, base.Submit),
	}

	// Workdir is the one required field with a usable fallback: when
	// neither the CLI nor the file sets it, the current directory is
	// used, matching the -d flag's documented default.
	if cfg.Workdir == "" {
		cfg.Workdir = "."
	}

	cpus, cpusSet, err := mergeInt("cpus", ov.CPUs, base.CPUs)
	if err != nil {
		return nil, err
	}
	cfg.CPUs = cpus

	overload, overloadSet, err := mergeInt("overload", ov.Overload, base.Overload)
	if err != nil {
		return nil, err
	}
	if !overloadSet {
		overload = 1
	}
	cfg.Overload = overload

	if scriptPath != "" {
		body, err := os.ReadFile(scriptPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingScriptFile, scriptPath)
		}
		cfg.Script = string(body)
	}

	if err := cfg.validate(cpusSet); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}
	cfg.Workdir = abs

	if cfg.Submit == "" {
		cfg.Submit = "qsub"
	}
	return cfg, nil
}

// validate checks every required field and reports the first absent one
// in a fixed enumeration order, independent of how the value arrived.
func (c *Config) validate(cpusSet bool) error {
	required := []struct {
		name    string
		present bool
	}{
		{"project", c.Project != ""},
		{"queue", c.Queue != ""},
		{"cpus", cpusSet},
		{"walltime", c.Walltime != ""},
		{"mem", c.Mem != ""},
		{"script", c.Script != ""},
	}
	for _, f := range required {
		if !f.present {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	if c.CPUs <= 0 {
		return fmt.Errorf("%w: cpus must be > 0", ErrInvalidFieldValue)
	}
	if c.Overload < 1 {
		return fmt.Errorf("%w: overload must be >= 1", ErrInvalidFieldValue)
	}
	return nil
}

// ChunkSize is the number of input records packed into one job: the
// processor count multiplied by the overload factor.
func (c *Config) ChunkSize() int {
	return c.CPUs * c.Overload
}

// Context returns the flat key/value render context for the template.
// The generator adds the per-job keys on its own copy.
func (c *Config) Context() map[string]string {
	return map[string]string{
		"project":  c.Project,
		"queue":    c.Queue,
		"cpus":     strconv.Itoa(c.CPUs),
		"walltime": c.Walltime,
		"mem":      c.Mem,
		"workdir":  c.Workdir,
		"script":   c.Script,
	}
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			return fc, fmt.Errorf("%w: %s", ErrMissingConfigFile, path)
		}
		return fc, nil // no base config
	}
	if err := yaml.Unmarshal(content, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

func pick(cli, file string) string {
	if cli != "" {
		return cli
	}
	return file
}

// mergeInt coerces an integer field from the CLI override or, failing
// that, the raw YAML value. It reports whether the field was set at all.
func mergeInt(name, cli string, file any) (int, bool, error) {
	if cli != "" {
		n, err := strconv.Atoi(cli)
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidFieldValue, name, cli)
		}
		return n, true, nil
	}
	switch v := file.(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidFieldValue, name, v)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidFieldValue, name, file)
	}
}
