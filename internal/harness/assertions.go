package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/roach88/keel/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Path     string // Target path, relative to the target directory
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s %s: expected %s, got %s", e.Type, e.Path, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the harness's final
// state and returns one message per failure.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var msgs []string
	for _, a := range assertions {
		if err := evaluate(ctx, h, a); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func evaluate(ctx context.Context, h *Harness, a Assertion) error {
	path := h.targetPath(a.Path)
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Path: a.Path, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertFile:
		info, err := os.Lstat(path)
		if err != nil {
			return fail("a file", describeStatError(err))
		}
		if !info.Mode().IsRegular() {
			return fail("a file", info.Mode().Type().String())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fail("readable content", err.Error())
		}
		if string(data) != a.Content {
			return fail(strconv.Quote(a.Content), strconv.Quote(string(data)))
		}

	case AssertAbsent:
		_, err := os.Lstat(path)
		if err == nil {
			return fail("no such path", "it exists")
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fail("no such path", err.Error())
		}

	case AssertDirectory:
		info, err := os.Lstat(path)
		if err != nil {
			return fail("a directory", describeStatError(err))
		}
		if !info.IsDir() {
			return fail("a directory", "a "+info.Mode().Type().String()+" entry")
		}

	case AssertMode:
		want, err := strconv.ParseUint(a.Mode, 8, 32)
		if err != nil {
			return fmt.Errorf("mode assertion on %s: invalid mode %q", a.Path, a.Mode)
		}
		info, err := os.Lstat(path)
		if err != nil {
			return fail("mode "+a.Mode, describeStatError(err))
		}
		if got := uint64(info.Mode().Perm()); got != want {
			return fail(fmt.Sprintf("mode %04o", want), fmt.Sprintf("mode %04o", got))
		}

	case AssertState:
		st, err := h.store.GetState(ctx, path)
		if errors.Is(err, store.ErrNotFound) {
			return fail("recorded state", "no state")
		}
		if err != nil {
			return fmt.Errorf("state assertion on %s: %w", a.Path, err)
		}
		if a.Version != "" && st.VersionToken != a.Version {
			return fail("version "+a.Version, "version "+st.VersionToken)
		}
		if a.Checksum != "" && string(st.ChecksumType) != a.Checksum {
			return fail("checksum "+a.Checksum, "checksum "+string(st.ChecksumType))
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func describeStatError(err error) string {
	if errors.Is(err, fs.ErrNotExist) {
		return "no such path"
	}
	return err.Error()
}
