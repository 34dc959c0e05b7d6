// Package node compiles TypeScript and JavaScript steps with esbuild.
//
// Every step is bundled on its own into a zip holding the bundle, its source
// map and the step's static files. Api steps are additionally bundled together
// behind a generated router module.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	_ "embed"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/specialistvlad/stepship/internal/archive"
	"github.com/specialistvlad/stepship/internal/builder"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/fsutil"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
)

//go:embed router.ts.tmpl
var routerSource string

var routerTemplate = template.Must(template.New("router.ts").Funcs(template.FuncMap{
	"quote": jsString,
}).Parse(routerSource))

// Builder is the node StepBuilder.
type Builder struct {
	b *builder.Builder
}

var _ builder.StepBuilder = (*Builder)(nil)

// New returns a node builder registering its output with b.
func New(b *builder.Builder) *Builder {
	return &Builder{b: b}
}

// Factory adapts New to builder.Factory.
func Factory(b *builder.Builder) builder.StepBuilder {
	return New(b)
}

// Build bundles one step into node/<path>.zip.
func (nb *Builder) Build(ctx context.Context, s *step.Step) error {
	paths, err := nb.b.StepArtifactPaths(s, ".js")
	if err != nil {
		return err
	}
	nb.b.RegisterStep(builder.Registration{
		BundlePath:     paths.BundlePath,
		EntrypointPath: paths.EntrypointPath,
		Step:           s,
		Type:           manifest.StepNode,
	})

	l := nb.b.Listener()
	l.OnBuildStart(s)

	size, err := nb.buildStep(ctx, s, paths)
	if err != nil {
		l.OnBuildError(s, err)
		return builder.MarkReported(err)
	}
	l.OnBuildEnd(s, size)
	return nil
}

func (nb *Builder) buildStep(ctx context.Context, s *step.Step, paths builder.ArtifactPaths) (int64, error) {
	outJS := nb.b.DistPath(path.Join("node", paths.EntrypointPath))
	outMap := outJS + ".map"
	defer os.Remove(outJS)
	defer os.Remove(outMap)

	opts, err := nb.options(ctx)
	if err != nil {
		return 0, err
	}
	opts.EntryPoints = []string{s.FilePath}
	opts.Outfile = outJS

	nb.b.Listener().OnBuildProgress(s, "Bundling")
	if err := bundle(opts); err != nil {
		return 0, err
	}

	nb.b.Listener().OnBuildProgress(s, "Archiving")
	a, err := archive.New(nb.b.DistPath(paths.BundlePath))
	if err != nil {
		return 0, err
	}
	defer a.Abort()

	if err := a.AppendFile(outJS, paths.EntrypointPath); err != nil {
		return 0, err
	}
	if fsutil.Exists(outMap) {
		if err := a.AppendFile(outMap, paths.MapPath); err != nil {
			return 0, err
		}
	}
	if err := nb.b.IncludeStaticFiles([]*step.Step{s}, a); err != nil {
		return 0, err
	}
	return a.Finalize()
}

type route struct {
	Import   string
	Key      string
	StepName string
}

// RenderRouter renders the router module for steps. Imports are relative to
// the project directory.
func (nb *Builder) RenderRouter(steps []*step.Step) ([]byte, error) {
	routes := make([]route, 0, len(steps))
	for _, s := range steps {
		rel, err := nb.b.RelPath(s.FilePath)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route{
			Import:   "./" + rel,
			Key:      s.Endpoint(),
			StepName: s.Name(),
		})
	}

	var buf bytes.Buffer
	if err := routerTemplate.Execute(&buf, struct{ Routes []route }{routes}); err != nil {
		return nil, fmt.Errorf("render node router: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildAPISteps bundles the api steps behind one router into router-node.zip.
func (nb *Builder) BuildAPISteps(ctx context.Context, steps []*step.Step) (builder.RouterResult, error) {
	source, err := nb.RenderRouter(steps)
	if err != nil {
		return builder.RouterResult{}, err
	}

	projectDir, err := filepath.Abs(nb.b.ProjectDir)
	if err != nil {
		return builder.RouterResult{}, err
	}

	outJS := nb.b.DistPath("router.js")
	outMap := outJS + ".map"
	defer os.Remove(outJS)
	defer os.Remove(outMap)

	opts, err := nb.options(ctx)
	if err != nil {
		return builder.RouterResult{}, err
	}
	opts.Stdin = &api.StdinOptions{
		Contents:   string(source),
		ResolveDir: projectDir,
		Sourcefile: "router.ts",
		Loader:     api.LoaderTS,
	}
	opts.Outfile = outJS
	if err := bundle(opts); err != nil {
		return builder.RouterResult{}, err
	}

	name := builder.RouterArchiveName(step.LanguageNode)
	a, err := archive.New(nb.b.DistPath(name))
	if err != nil {
		return builder.RouterResult{}, err
	}
	defer a.Abort()

	if err := a.AppendFile(outJS, "router.js"); err != nil {
		return builder.RouterResult{}, err
	}
	if fsutil.Exists(outMap) {
		if err := a.AppendFile(outMap, "router.js.map"); err != nil {
			return builder.RouterResult{}, err
		}
	}
	if err := nb.b.IncludeStaticFiles(steps, a); err != nil {
		return builder.RouterResult{}, err
	}
	size, err := a.Finalize()
	if err != nil {
		return builder.RouterResult{}, err
	}
	return builder.RouterResult{Size: size, Path: name}, nil
}

// options returns the default esbuild options with the project's overrides
// applied. A broken override file is reported as a warning and ignored.
func (nb *Builder) options(ctx context.Context) (api.BuildOptions, error) {
	projectDir, err := filepath.Abs(nb.b.ProjectDir)
	if err != nil {
		return api.BuildOptions{}, err
	}
	opts := api.BuildOptions{
		AbsWorkingDir: projectDir,
		Bundle:        true,
		Sourcemap:     api.SourceMapLinked,
		Platform:      api.PlatformNode,
		Write:         true,
		LogLevel:      api.LogLevelSilent,
	}

	overrides, file, err := LoadOverrides(projectDir)
	if err != nil {
		ctxlog.FromContext(ctx).Debug("Ignoring esbuild overrides.", "file", file, "error", err)
		nb.b.Listener().OnWarning(file, fmt.Sprintf("Failed to load esbuild config from %s", file))
		return opts, nil
	}
	overrides.Apply(&opts)
	return opts, nil
}

func bundle(opts api.BuildOptions) error {
	res := api.Build(opts)
	if len(res.Errors) == 0 {
		return nil
	}
	msgs := api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return errors.New(strings.TrimSpace(strings.Join(msgs, "")))
}

func jsString(s string) (string, error) {
	b, err := json.Marshal(s)
	return string(b), err
}
