package compiler

import (
	"fmt"
	"path/filepath"
	"regexp"

	"cuelang.org/go/cue"

	"github.com/roach88/keel/internal/ir"
)

// DefaultNode names the node block used when a node has none of its own.
const DefaultNode = "default"

var modePattern = regexp.MustCompile(`^[0-7]{3,4}$`)

// declarationFields lists the attributes a file declaration may carry.
var declarationFields = map[string]bool{
	"path":     true,
	"source":   true,
	"content":  true,
	"ensure":   true,
	"checksum": true,
	"recurse":  true,
	"mode":     true,
}

// selectDeclarations collects the file declarations that apply to node:
// every top-level file, plus the node's own block or the default block.
func selectDeclarations(root cue.Value, node string, defaultChecksum ir.ChecksumType) ([]ir.ResourceDeclaration, error) {
	decls, err := parseFileBlock(root.LookupPath(cue.ParsePath("file")), "file", defaultChecksum)
	if err != nil {
		return nil, err
	}

	nodeVal := root.LookupPath(cue.MakePath(cue.Str("node"), cue.Str(node)))
	prefix := fmt.Sprintf("node.%s.file", node)
	if !nodeVal.Exists() {
		nodeVal = root.LookupPath(cue.MakePath(cue.Str("node"), cue.Str(DefaultNode)))
		prefix = "node.default.file"
	}
	if nodeVal.Exists() {
		nodeDecls, err := parseFileBlock(nodeVal.LookupPath(cue.ParsePath("file")), prefix, defaultChecksum)
		if err != nil {
			return nil, err
		}
		decls = append(decls, nodeDecls...)
	}

	seen := make(map[string]string, len(decls))
	for _, d := range decls {
		if other, ok := seen[d.Path]; ok {
			return nil, &CompileError{
				Field:   "path",
				Message: fmt.Sprintf("%s is managed by both %q and %q", d.Path, other, d.Title),
			}
		}
		seen[d.Path] = d.Title
	}
	return decls, nil
}

// parseFileBlock parses a struct of file declarations keyed by title.
func parseFileBlock(v cue.Value, field string, defaultChecksum ir.ChecksumType) ([]ir.ResourceDeclaration, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.ResourceDeclaration
	for iter.Next() {
		decl, err := parseDeclaration(iter.Label(), iter.Value(), field+"."+iter.Label(), defaultChecksum)
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// parseDeclaration parses one file declaration. The title is the target
// path unless a path attribute overrides it.
func parseDeclaration(title string, v cue.Value, field string, defaultChecksum ir.ChecksumType) (ir.ResourceDeclaration, error) {
	if err := v.Err(); err != nil {
		return ir.ResourceDeclaration{}, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return ir.ResourceDeclaration{}, &CompileError{Field: field, Message: "declaration must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		if !declarationFields[iter.Label()] {
			return ir.ResourceDeclaration{}, &CompileError{
				Field:   field + "." + iter.Label(),
				Message: "unknown attribute",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	decl := ir.ResourceDeclaration{Title: title, Path: title}

	if decl.Path, err = optionalString(v, "path", field, title); err != nil {
		return ir.ResourceDeclaration{}, err
	}
	if !filepath.IsAbs(decl.Path) {
		return ir.ResourceDeclaration{}, &CompileError{
			Field:   field + ".path",
			Message: fmt.Sprintf("path %q must be absolute", decl.Path),
			Pos:     v.Pos(),
		}
	}
	decl.Path = filepath.Clean(decl.Path)

	if decl.Source, err = optionalString(v, "source", field, ""); err != nil {
		return ir.ResourceDeclaration{}, err
	}

	contentVal := v.LookupPath(cue.ParsePath("content"))
	if contentVal.Exists() {
		text, err := contentVal.String()
		if err != nil {
			return ir.ResourceDeclaration{}, formatCUEError(err)
		}
		decl.Content = &text
	}

	ensure, err := optionalString(v, "ensure", field, "")
	if err != nil {
		return ir.ResourceDeclaration{}, err
	}
	if decl.Ensure, err = ir.ParseEnsure(ensure); err != nil {
		return ir.ResourceDeclaration{}, &CompileError{Field: field + ".ensure", Message: err.Error(), Pos: v.Pos()}
	}

	sum, err := optionalString(v, "checksum", field, string(defaultChecksum))
	if err != nil {
		return ir.ResourceDeclaration{}, err
	}
	if decl.Checksum, err = ir.ParseChecksumType(sum); err != nil {
		return ir.ResourceDeclaration{}, &CompileError{Field: field + ".checksum", Message: err.Error(), Pos: v.Pos()}
	}

	recurseVal := v.LookupPath(cue.ParsePath("recurse"))
	if recurseVal.Exists() {
		if decl.Recurse, err = recurseVal.Bool(); err != nil {
			return ir.ResourceDeclaration{}, formatCUEError(err)
		}
	}

	if decl.Mode, err = optionalString(v, "mode", field, ""); err != nil {
		return ir.ResourceDeclaration{}, err
	}
	if decl.Mode != "" && !modePattern.MatchString(decl.Mode) {
		return ir.ResourceDeclaration{}, &CompileError{
			Field:   field + ".mode",
			Message: fmt.Sprintf("mode %q must be octal, e.g. \"0644\"", decl.Mode),
			Pos:     v.Pos(),
		}
	}

	if err := checkDeclaration(decl, field, v); err != nil {
		return ir.ResourceDeclaration{}, err
	}
	return decl, nil
}

// checkDeclaration enforces cross-attribute rules.
func checkDeclaration(decl ir.ResourceDeclaration, field string, v cue.Value) error {
	fail := func(msg string) error {
		return &CompileError{Field: field, Message: msg, Pos: v.Pos()}
	}
	switch {
	case decl.Source != "" && decl.Content != nil:
		return fail("source and content are mutually exclusive")
	case decl.Ensure == ir.EnsurePresent && decl.Source == "" && decl.Content == nil:
		return fail("a present file needs a source or content")
	case decl.Ensure == ir.EnsureDirectory && decl.Content != nil:
		return fail("a directory cannot have content")
	case decl.Content != nil && decl.Checksum.IsTimeBased():
		return fail(fmt.Sprintf("checksum %s is not supported with inline content", decl.Checksum))
	case decl.Recurse && decl.Ensure == ir.EnsurePresent:
		return fail("recurse requires ensure: \"directory\" or \"absent\"")
	}
	return nil
}

// optionalString returns the string at name, or def when it is absent.
func optionalString(v cue.Value, name, field, def string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return def, nil
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{Field: field + "." + name, Message: "must be a concrete string", Pos: f.Pos()}
	}
	return s, nil
}
