package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/fsutil"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
)

// RouterResult describes a built router artifact. Path is relative to the
// output directory.
type RouterResult struct {
	Size int64
	Path string
}

// StepBuilder compiles steps of one language.
type StepBuilder interface {
	// Build compiles a single step into its own artifact.
	Build(ctx context.Context, s *step.Step) error
	// BuildAPISteps bundles every api step of the language into one router
	// artifact.
	BuildAPISteps(ctx context.Context, steps []*step.Step) (RouterResult, error)
}

// Registration is a compiled step entry handed to RegisterStep.
type Registration struct {
	BundlePath     string
	EntrypointPath string
	Step           *step.Step
	Type           manifest.StepType
}

// Builder is the build orchestrator.
type Builder struct {
	ProjectDir string
	DistDir    string

	listener listener.BuildListener

	mu       sync.Mutex
	builders map[step.Language]StepBuilder
	steps    manifest.Steps
	streams  manifest.Streams
	routers  manifest.Routers
}

// New returns an empty Builder for the project.
func New(projectDir, distDir string, l listener.BuildListener) *Builder {
	if l == nil {
		l = listener.Nop{}
	}
	return &Builder{
		ProjectDir: projectDir,
		DistDir:    distDir,
		listener:   l,
		builders:   make(map[step.Language]StepBuilder),
		steps:      make(manifest.Steps),
		streams:    make(manifest.Streams),
		routers:    make(manifest.Routers),
	}
}

// Listener returns the listener language builders report to.
func (b *Builder) Listener() listener.BuildListener {
	return b.listener
}

// RegisterBuilder installs the builder for lang. The last registration wins.
func (b *Builder) RegisterBuilder(lang step.Language, sb StepBuilder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.builders[lang] = sb
}

func (b *Builder) builderFor(lang step.Language) (StepBuilder, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.builders[lang]
	return sb, ok
}

// RegisterStep records a compiled step in the manifest. Language builders call
// it before they start compiling, so a failed build still leaves a traceable
// entry.
func (b *Builder) RegisterStep(r Registration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps[r.BundlePath] = manifest.BuildStepConfig{
		Type:           r.Type,
		EntrypointPath: r.EntrypointPath,
		Config:         r.Step.Config,
		FilePath:       r.Step.FilePath,
	}
}

// RegisterStateStream records a stream for remote provisioning.
func (b *Builder) RegisterStateStream(stream step.Stream) {
	b.listener.OnStreamCreated(stream)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream.Name] = manifest.BuildStreamConfig{
		Name:        stream.Name,
		StorageType: stream.StorageType,
	}
}

// BuildStep compiles one step with the builder registered for its language.
// A step without a builder is skipped, not failed.
func (b *Builder) BuildStep(ctx context.Context, s *step.Step) error {
	lang := s.Language()
	sb, ok := b.builderFor(lang)
	if !ok {
		b.listener.OnBuildSkip(s, fmt.Sprintf("No builder found for type: %s", lang))
		return nil
	}

	logger := ctxlog.FromContext(ctx).With("step", s.Name(), "language", lang.String())
	logger.Debug("Building step.", "file", s.FilePath)

	if err := sb.Build(ctx, s); err != nil {
		if !IsReported(err) {
			b.listener.OnBuildError(s, err)
		}
		logger.Debug("Step build failed.", "error", err)
		return fmt.Errorf("build step %q: %w", s.Name(), err)
	}
	return nil
}

// BuildAPISteps aggregates the api steps of each language into a router
// artifact. The routers of a previous call are discarded.
func (b *Builder) BuildAPISteps(ctx context.Context, steps []*step.Step) error {
	b.mu.Lock()
	b.routers = make(manifest.Routers)
	b.mu.Unlock()

	byLang := make(map[step.Language][]*step.Step)
	for _, s := range steps {
		if s.IsAPI() {
			byLang[s.Language()] = append(byLang[s.Language()], s)
		}
	}

	for _, lang := range step.Languages {
		group := byLang[lang]
		sb, ok := b.builderFor(lang)
		if len(group) == 0 || !ok {
			continue
		}

		b.listener.OnAPIRouterBuilding(lang.String())
		res, err := sb.BuildAPISteps(ctx, group)
		if err != nil {
			return fmt.Errorf("build %s api router: %w", lang, err)
		}
		b.listener.OnAPIRouterBuilt(lang.String(), res.Size)

		b.mu.Lock()
		b.routers[lang.String()] = res.Path
		b.mu.Unlock()
	}
	return nil
}

// Manifest returns a snapshot of the accumulated manifest.
func (b *Builder) Manifest() *manifest.File {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := &manifest.File{
		Steps:   make(manifest.Steps, len(b.steps)),
		Streams: make(manifest.Streams, len(b.streams)),
		Routers: make(manifest.Routers, len(b.routers)),
	}
	for k, v := range b.steps {
		out.Steps[k] = v
	}
	for k, v := range b.streams {
		out.Streams[k] = v
	}
	for k, v := range b.routers {
		out.Routers[k] = v
	}
	return out
}

// RelPath returns path relative to the project directory with forward
// slashes. It fails for paths outside the project.
func (b *Builder) RelPath(path string) (string, error) {
	rel, err := fsutil.SlashRel(b.ProjectDir, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the project directory", path)
	}
	return rel, nil
}

// DistPath joins a slash-separated artifact path onto the output directory.
func (b *Builder) DistPath(rel string) string {
	return filepath.Join(b.DistDir, filepath.FromSlash(rel))
}

type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// MarkReported wraps err to note that OnBuildError was already called for it.
func MarkReported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// IsReported reports whether err was wrapped by MarkReported.
func IsReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}
