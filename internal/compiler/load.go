package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/rulesql/internal/table"
)

// IsSpecFile reports whether path has an extension LoadFile understands.
func IsSpecFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile compiles the entity definitions in a single .cue, .yaml or .yml
// file. A CUE file is compiled on its own, without package imports; use
// cue/load for multi-file packages.
func LoadFile(path string) ([]*table.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		ctx := cuecontext.New()
		return CompileEntities(ctx.CompileBytes(data, cue.Filename(path)))
	case ".yaml", ".yml":
		return CompileYAML(path, data)
	default:
		return nil, fmt.Errorf("unsupported spec file %q: want .cue, .yaml or .yml", path)
	}
}

// LoadFiles compiles every file in order and concatenates the definitions.
// The first failing file stops the load.
func LoadFiles(paths ...string) ([]*table.Definition, error) {
	var defs []*table.Definition
	for _, path := range paths {
		fileDefs, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}
