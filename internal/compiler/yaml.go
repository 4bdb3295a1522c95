package compiler

import (
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/rulesql/internal/table"
)

// CompileYAML compiles entity definitions written as YAML with the same
// shape as the CUE form:
//
//	entity:
//	  users:
//	    table: app_users
//	    attributes:
//	      id: {create: absent, update: absent}
//	      name: {create: required}
//
// The document is converted to CUE first so positions in errors point at
// the YAML source.
func CompileYAML(filename string, data []byte) ([]*table.Definition, error) {
	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return nil, formatCUEError(err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildFile(file)
	return CompileEntities(v)
}
