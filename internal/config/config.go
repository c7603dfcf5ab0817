// Package config loads keel configuration.
//
// Configuration is loaded from a single file named by:
//   - the --config flag passed to the command, or
//   - the KEEL_CONFIG environment variable
//
// There is no automatic discovery. Without either, the defaults apply.
// Files ending in .json or .jsonc are JSON with comments and trailing
// commas; anything else is YAML. Unknown fields are rejected.
//
// ${VAR} and ${VAR:-default} in path fields are expanded. KEEL_STATE_DIR
// expands to the configured state directory.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/roach88/keel/internal/ir"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "KEEL_CONFIG"

// Config is the configuration for the keel compiler and agent.
type Config struct {
	// Node is the name catalogs are compiled and cached for.
	// Default: the host name.
	Node string `yaml:"node" json:"node"`

	// Environment selects the manifest set under EnvironmentPath.
	// Default: production
	Environment string `yaml:"environment" json:"environment"`

	// EnvironmentPath holds one directory per environment, each with a
	// manifests/ directory and optionally a modules/ directory.
	EnvironmentPath string `yaml:"environment_path" json:"environment_path"`

	// ModulePath lists the directories searched, in order, for
	// keel:///modules/ sources. Default: the environment's modules/.
	ModulePath []string `yaml:"module_path" json:"module_path"`

	// StateDir holds the database and the run lock.
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// ContentDir holds the content store. Default: <state_dir>/content
	ContentDir string `yaml:"content_dir" json:"content_dir"`

	// Workers bounds concurrent content resolution. Default: 4
	Workers int `yaml:"workers" json:"workers"`

	// DefaultChecksum is used by declarations that name no strategy.
	// Default: sha256
	DefaultChecksum string `yaml:"default_checksum" json:"default_checksum"`

	// LogLevel is one of debug, info, warn, error. Default: info
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration used before a file is applied.
func Default() *Config {
	node, err := os.Hostname()
	if err != nil || node == "" {
		node = "localhost"
	}
	return &Config{
		Node:            node,
		Environment:     "production",
		EnvironmentPath: "/etc/keel/environments",
		StateDir:        "/var/lib/keel",
		Workers:         4,
		DefaultChecksum: string(ir.DefaultChecksum),
		LogLevel:        "info",
	}
}

// Load loads the file named by path, or by KEEL_CONFIG when path is
// empty. With neither set the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		cfg.finish()
		return cfg, cfg.Validate()
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := cfg.decode(path, data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.finish()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// decode merges the file's fields into c.
func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(c)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err := dec.Decode(c)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
}

// finish expands variables and fills in fields derived from others.
func (c *Config) finish() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}

	c.StateDir = expandVars(c.StateDir, vars)
	vars["KEEL_STATE_DIR"] = c.StateDir
	c.EnvironmentPath = expandVars(c.EnvironmentPath, vars)
	c.ContentDir = expandVars(c.ContentDir, vars)
	for i, p := range c.ModulePath {
		c.ModulePath[i] = expandVars(p, vars)
	}

	if c.ContentDir == "" {
		c.ContentDir = filepath.Join(c.StateDir, "content")
	}
	if len(c.ModulePath) == 0 {
		c.ModulePath = []string{filepath.Join(c.EnvironmentPath, c.Environment, "modules")}
	}
}

var (
	varPattern  = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)
	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Provided vars
// take precedence over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, def := parts[1], parts[2]
		if v, ok := vars[name]; ok && v != "" {
			return v
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
		return def
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if !namePattern.MatchString(c.Node) {
		errs = append(errs, fmt.Errorf("invalid node name %q", c.Node))
	}
	if !namePattern.MatchString(c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment name %q", c.Environment))
	}
	if c.EnvironmentPath == "" {
		errs = append(errs, errors.New("environment_path is required"))
	}
	if c.StateDir == "" {
		errs = append(errs, errors.New("state_dir is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if _, err := ir.ParseChecksumType(c.DefaultChecksum); err != nil {
		errs = append(errs, fmt.Errorf("default_checksum: %w", err))
	} else if ir.ChecksumType(c.DefaultChecksum).IsTimeBased() {
		errs = append(errs, fmt.Errorf("default_checksum: %s cannot apply to inline content", c.DefaultChecksum))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ManifestDir is the directory compiled for the configured environment.
func (c *Config) ManifestDir() string {
	return filepath.Join(c.EnvironmentPath, c.Environment, "manifests")
}

// DatabasePath is the SQLite database holding catalogs, state and reports.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StateDir, "keel.db")
}

// LockPath is the agent run lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "agent.lock")
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: must be debug, info, warn or error", s)
	}
}
