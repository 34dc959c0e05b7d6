// Package python packages python steps.
//
// Python sources are not compiled. A step artifact holds the step file, every
// project-local module it imports and the project's requirements.txt; the
// runtime installs the requirements itself.
package python

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/specialistvlad/stepship/internal/archive"
	"github.com/specialistvlad/stepship/internal/builder"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/fsutil"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
)

// RequirementsFile is picked up from the project root when present.
const RequirementsFile = "requirements.txt"

//go:embed router_template.py
var routerSource string

var routerTemplate = template.Must(template.New("router.py").Funcs(template.FuncMap{
	"quote": pyString,
}).Parse(routerSource))

// Builder is the python StepBuilder.
type Builder struct {
	b *builder.Builder
}

var _ builder.StepBuilder = (*Builder)(nil)

// New returns a python builder registering its output with b.
func New(b *builder.Builder) *Builder {
	return &Builder{b: b}
}

// Factory adapts New to builder.Factory.
func Factory(b *builder.Builder) builder.StepBuilder {
	return New(b)
}

// Build packages one step into python/<path>.zip.
func (pb *Builder) Build(ctx context.Context, s *step.Step) error {
	paths, err := pb.b.StepArtifactPaths(s, ".py")
	if err != nil {
		return err
	}
	pb.b.RegisterStep(builder.Registration{
		BundlePath:     paths.BundlePath,
		EntrypointPath: paths.EntrypointPath,
		Step:           s,
		Type:           manifest.StepPython,
	})

	l := pb.b.Listener()
	l.OnBuildStart(s)

	size, err := pb.buildStep(ctx, s, paths)
	if err != nil {
		l.OnBuildError(s, err)
		return builder.MarkReported(err)
	}
	l.OnBuildEnd(s, size)
	return nil
}

func (pb *Builder) buildStep(ctx context.Context, s *step.Step, paths builder.ArtifactPaths) (int64, error) {
	pb.b.Listener().OnBuildProgress(s, "Resolving imports")
	sources, err := LocalImports(pb.b.ProjectDir, s.FilePath)
	if err != nil {
		return 0, fmt.Errorf("resolve imports: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Python sources resolved.", "step", s.Name(), "files", len(sources))

	pb.b.Listener().OnBuildProgress(s, "Archiving")
	a, err := archive.New(pb.b.DistPath(paths.BundlePath))
	if err != nil {
		return 0, err
	}
	defer a.Abort()

	if err := pb.appendSources(a, sources); err != nil {
		return 0, err
	}
	if err := pb.b.IncludeStaticFiles([]*step.Step{s}, a); err != nil {
		return 0, err
	}
	return a.Finalize()
}

func (pb *Builder) appendSources(a *archive.Archiver, sources []string) error {
	for _, src := range sources {
		name, err := pb.b.RelPath(src)
		if err != nil {
			return err
		}
		if a.Has(name) {
			continue
		}
		if err := a.AppendFile(src, name); err != nil {
			return err
		}
	}
	req := filepath.Join(pb.b.ProjectDir, RequirementsFile)
	if fsutil.Exists(req) && !a.Has(RequirementsFile) {
		return a.AppendFile(req, RequirementsFile)
	}
	return nil
}

type route struct {
	Module   string
	File     string
	Key      string
	StepName string
	Method   string
}

// RenderRouter renders router.py for steps. Step modules are loaded by their
// project-relative file path, so step file names need not be valid module
// names.
func (pb *Builder) RenderRouter(steps []*step.Step) ([]byte, error) {
	routes := make([]route, 0, len(steps))
	for i, s := range steps {
		rel, err := pb.b.RelPath(s.FilePath)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route{
			Module:   fmt.Sprintf("stepship_route_%d", i),
			File:     rel,
			Key:      s.Endpoint(),
			StepName: s.Name(),
			Method:   strings.ToLower(step.NormalizeMethod(s.Config.Method)),
		})
	}

	var buf bytes.Buffer
	if err := routerTemplate.Execute(&buf, struct{ Routes []route }{routes}); err != nil {
		return nil, fmt.Errorf("render python router: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildAPISteps packages router.py together with every api step and its
// imports into router-python.zip.
func (pb *Builder) BuildAPISteps(ctx context.Context, steps []*step.Step) (builder.RouterResult, error) {
	source, err := pb.RenderRouter(steps)
	if err != nil {
		return builder.RouterResult{}, err
	}

	name := builder.RouterArchiveName(step.LanguagePython)
	a, err := archive.New(pb.b.DistPath(name))
	if err != nil {
		return builder.RouterResult{}, err
	}
	defer a.Abort()

	if err := a.Append(bytes.NewReader(source), "router.py"); err != nil {
		return builder.RouterResult{}, err
	}
	for _, s := range steps {
		sources, err := LocalImports(pb.b.ProjectDir, s.FilePath)
		if err != nil {
			return builder.RouterResult{}, fmt.Errorf("step %q: resolve imports: %w", s.Name(), err)
		}
		if err := pb.appendSources(a, sources); err != nil {
			return builder.RouterResult{}, err
		}
	}
	if err := pb.b.IncludeStaticFiles(steps, a); err != nil {
		return builder.RouterResult{}, err
	}

	size, err := a.Finalize()
	if err != nil {
		return builder.RouterResult{}, err
	}
	ctxlog.FromContext(ctx).Debug("Python router packaged.", "routes", len(steps), "size", size)
	return builder.RouterResult{Size: size, Path: name}, nil
}

// pyString quotes s as a python string literal. JSON string syntax is a
// subset of python's.
func pyString(s string) (string, error) {
	b, err := json.Marshal(s)
	return string(b), err
}
