package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rulesql/internal/compiler"
	"github.com/roach88/rulesql/internal/table"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the entity definitions loaded from a path.
type LoadResult struct {
	Entities  []*table.Definition
	FileCount int // Number of spec files found
}

// Entity returns the definition named name, or nil.
func (r *LoadResult) Entity(name string) *table.Definition {
	for _, def := range r.Entities {
		if def.Name == name {
			return def
		}
	}
	return nil
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads entity definitions from a single spec file or from every
// spec file in a directory tree. The .cue files of a directory are loaded
// together as one CUE package; each YAML file is compiled on its own.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadSpecs(path string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs path: %v", err)}}
	}

	if !info.IsDir() {
		if !compiler.IsSpecFile(path) {
			return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("not a spec file: %s", path)}}
		}
		defs, err := compiler.LoadFile(path)
		if err != nil {
			return nil, []error{convertCompileError(err, path)}
		}
		return &LoadResult{Entities: defs, FileCount: 1}, nil
	}

	cueFiles, yamlFiles, err := FindSpecFiles(path)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles)+len(yamlFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no spec files found in %s", path)}}
	}

	result := &LoadResult{FileCount: len(cueFiles) + len(yamlFiles)}
	var errs []error

	if len(cueFiles) > 0 {
		defs, err := loadCUEPackage(path)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return result, errs
			}
		}
		result.Entities = append(result.Entities, defs...)
	}

	for _, file := range yamlFiles {
		defs, err := compiler.LoadFile(file)
		if err != nil {
			errs = append(errs, convertCompileError(err, file))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Entities = append(result.Entities, defs...)
	}

	if len(result.Entities) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no entities found in specs"})
	}

	return result, errs
}

// loadCUEPackage builds the CUE package in dir and compiles its entities.
func loadCUEPackage(dir string) ([]*table.Definition, error) {
	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	defs, err := compiler.CompileEntities(value)
	if err != nil {
		return nil, convertCompileError(err, dir)
	}
	return defs, nil
}

// FindSpecFiles walks the directory and returns the .cue and the
// .yaml/.yml file paths, each sorted.
func FindSpecFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !compiler.IsSpecFile(path) {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".cue") {
			cueFiles = append(cueFiles, path)
		} else {
			yamlFiles = append(yamlFiles, path)
		}
		return nil
	})
	sort.Strings(cueFiles)
	sort.Strings(yamlFiles)
	return cueFiles, yamlFiles, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No spec files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Entity compile errors
	ErrCodeInvalidOperations = "E010" // Bad operations list
	ErrCodeInvalidAttribute  = "E011" // Bad attribute or requirement
	ErrCodeInvalidTable      = "E012" // Bad table field

	// Request errors
	ErrCodeUnknownEntity = "E020" // Entity not defined in specs
	ErrCodeInvalidInput  = "E021" // Bad --values/--filter JSON or operation
	ErrCodeBindFailed    = "E022" // Rule validation or rendering failed
	ErrCodeExecFailed    = "E023" // Backend rejected the statement
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "operations" || strings.HasPrefix(field, "operations["):
		return ErrCodeInvalidOperations
	case field == "attributes" || strings.HasPrefix(field, "attributes."):
		return ErrCodeInvalidAttribute
	case field == "table":
		return ErrCodeInvalidTable
	default:
		return ErrCodeGeneric
	}
}
