// Package stepsource discovers a project's steps and streams from HCL
// definition files.
//
// A definition file declares any number of blocks:
//
//	step "ListPets" {
//	  type   = "api"
//	  file   = "steps/pets.step.ts"
//	  method = "GET"
//	  path   = "/pets"
//	  body_schema = { type = "object" }
//	}
//
//	stream "pets" {
//	  storage_type = "default"
//	}
//
// Step files are resolved relative to the definition file that declares them.
package stepsource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/fsutil"
	"github.com/specialistvlad/stepship/internal/step"
)

// Extension marks definition files.
const Extension = ".hcl"

// Project is the set of definitions found by Load.
type Project struct {
	Steps   []*step.Step
	Streams []step.Stream
	Files   []string
}

// fileRoot is a struct used to decode all top-level blocks of a file.
type fileRoot struct {
	Steps   []*stepBlock   `hcl:"step,block"`
	Streams []*streamBlock `hcl:"stream,block"`
}

// Load parses every definition file under paths. Missing paths are skipped.
func Load(ctx context.Context, paths ...string) (*Project, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findDefinitionFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered definition files.", "count", len(files))

	project := &Project{Files: files}
	streams := make(map[string]string)
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, b := range root.Steps {
			s, err := translateStep(b, file)
			if err != nil {
				return nil, err
			}
			project.Steps = append(project.Steps, s)
		}
		for _, b := range root.Streams {
			if prev, dup := streams[b.Name]; dup {
				return nil, fmt.Errorf("%s: stream %q is already declared in %s", file, b.Name, prev)
			}
			streams[b.Name] = file

			s, err := translateStream(b, file)
			if err != nil {
				return nil, err
			}
			project.Streams = append(project.Streams, s)
		}
	}

	logger.Debug("Definitions loaded.", "steps", len(project.Steps), "streams", len(project.Streams))
	return project, nil
}

func findDefinitionFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		files, err := fsutil.FindFilesByExtension(path, Extension)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[abs]; !ok {
				seen[abs] = struct{}{}
				all = append(all, abs)
			}
		}
	}
	return all, nil
}
