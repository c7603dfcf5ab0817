package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/keel/internal/ir"
)

// Scenario defines an acceptance scenario: an environment, a sequence of
// steps that change it and run the agent, and assertions on the result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Node is the node catalogs are compiled for. Default: web01
	Node string `yaml:"node,omitempty"`

	// Tokens are the version tokens handed out by the compiler, in order.
	Tokens []string `yaml:"tokens"`

	// DefaultChecksum applies to declarations that name none.
	DefaultChecksum string `yaml:"default_checksum,omitempty"`

	// Workers bounds concurrent resolution. Default: 4
	Workers int `yaml:"workers,omitempty"`

	// Modules are the initial module files, keyed by <module>/<path>.
	Modules map[string]string `yaml:"modules,omitempty"`

	// Target holds files present in the target directory before the
	// first step.
	Target map[string]string `yaml:"target,omitempty"`

	// Manifest is the initial manifest source.
	Manifest string `yaml:"manifest"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final filesystem and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step changes the environment and optionally runs one cycle.
type Step struct {
	// Manifest replaces the manifest source.
	Manifest string `yaml:"manifest,omitempty"`

	// WriteModules writes module files, keyed by <module>/<path>.
	WriteModules map[string]string `yaml:"write_modules,omitempty"`

	// TouchModules advances the timestamps of module files.
	TouchModules []string `yaml:"touch_modules,omitempty"`

	// WriteTarget writes files below the target directory.
	WriteTarget map[string]string `yaml:"write_target,omitempty"`

	// RemoveTarget removes paths below the target directory.
	RemoveTarget []string `yaml:"remove_target,omitempty"`

	// EvictContent evicts the content-store blobs holding these bytes.
	EvictContent []string `yaml:"evict_content,omitempty"`

	// Run is the cycle mode: live, cached or local. RunCompile compiles
	// the manifest without caching or applying the catalog.
	Run string `yaml:"run,omitempty"`

	// Expect validates the cycle. Only valid with Run.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a cycle. Unset fields are not
// checked; an empty list must be written as [] to be checked.
type Expect struct {
	// Status is no changes, changes applied or failures.
	Status string `yaml:"status,omitempty"`

	// Version is the applied catalog's version token.
	Version string `yaml:"version,omitempty"`

	// Changed lists "<action> <path>" entries, in report order.
	Changed []string `yaml:"changed,omitempty"`

	// Failed lists "<code> <path>" entries, in report order.
	Failed []string `yaml:"failed,omitempty"`

	// Error is a substring of the cycle error. The cycle must fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state of one target path.
type Assertion struct {
	// Type is one of file, absent, directory, mode, state.
	Type string `yaml:"type"`

	// Path is relative to the target directory.
	Path string `yaml:"path"`

	// Content is the expected file content (file).
	Content string `yaml:"content,omitempty"`

	// Mode is the expected octal permission bits (mode).
	Mode string `yaml:"mode,omitempty"`

	// Version is the expected recorded version token (state).
	Version string `yaml:"version,omitempty"`

	// Checksum is the expected recorded checksum type (state).
	Checksum string `yaml:"checksum,omitempty"`
}

// Assertion type constants.
const (
	AssertFile      = "file"
	AssertAbsent    = "absent"
	AssertDirectory = "directory"
	AssertMode      = "mode"
	AssertState     = "state"
)

// DefaultNode is used by scenarios that name no node.
const DefaultNode = "web01"

// RunCompile is the step mode of a compile that neither caches nor applies.
const RunCompile = "compile"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Node == "" {
		scenario.Node = DefaultNode
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files below dir whose base
// name (without extension) matches filter, sorted. An empty filter
// matches everything.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(path), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(s.Manifest) == "" {
		return fmt.Errorf("manifest is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.DefaultChecksum != "" {
		if _, err := ir.ParseChecksumType(s.DefaultChecksum); err != nil {
			return fmt.Errorf("default_checksum: %w", err)
		}
	}

	runs, compiles := 0, 0
	for i, step := range s.Steps {
		switch step.Run {
		case "":
			if step.Expect != nil {
				return fmt.Errorf("steps[%d]: expect requires run", i)
			}
		case string(ir.ModeLive), string(ir.ModeLocal):
			runs++
			compiles++
		case string(ir.ModeCached):
			runs++
		case RunCompile:
			compiles++
			if step.Expect != nil && (step.Expect.Status != "" || step.Expect.Changed != nil || step.Expect.Failed != nil) {
				return fmt.Errorf("steps[%d]: a compile step only expects version or error", i)
			}
		default:
			return fmt.Errorf("steps[%d]: unknown run mode %q", i, step.Run)
		}
		if step.Expect != nil && step.Expect.Status != "" {
			switch ir.RunStatus(step.Expect.Status) {
			case ir.StatusNoChanges, ir.StatusChangesApplied, ir.StatusFailures:
			default:
				return fmt.Errorf("steps[%d].expect: unknown status %q", i, step.Expect.Status)
			}
		}
	}
	if runs == 0 {
		return fmt.Errorf("at least one step must run a cycle")
	}
	if len(s.Tokens) < compiles {
		return fmt.Errorf("tokens: %d compiling steps need at least %d tokens, have %d", compiles, compiles, len(s.Tokens))
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Path == "" {
		return fmt.Errorf("assertions[%d]: path is required", index)
	}
	switch a.Type {
	case AssertFile, AssertAbsent, AssertDirectory:
	case AssertMode:
		if a.Mode == "" {
			return fmt.Errorf("assertions[%d]: mode is required for mode", index)
		}
	case AssertState:
		if a.Version == "" && a.Checksum == "" {
			return fmt.Errorf("assertions[%d]: version or checksum is required for state", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
