package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/fsutil"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/validate"
	"golang.org/x/sync/errgroup"
)

// ErrValidation is returned by Run when the steps fail validation. Nothing is
// built in that case.
var ErrValidation = errors.New("project contains invalid steps")

// Factory creates the language builder for a Builder.
type Factory func(b *Builder) StepBuilder

// Options configures a build run.
type Options struct {
	ProjectDir string
	DistDir    string
	Steps      []*step.Step
	Streams    []step.Stream
	Listener   listener.BuildListener

	// Builders lists the available language builders. A builder is only
	// registered when at least one step uses its language.
	Builders map[step.Language]Factory
}

// ManifestPath is where Run writes the manifest for distDir.
func ManifestPath(distDir string) string {
	return filepath.Join(distDir, manifest.FileName)
}

// Run performs a complete build and returns the Builder holding the
// resulting manifest.
func Run(ctx context.Context, opts Options) (*Builder, error) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()
	l := opts.Listener
	if l == nil {
		l = listener.Nop{}
	}

	res := validate.Validate(opts.ProjectDir, opts.Steps)
	for _, w := range res.Warnings {
		l.OnBuildWarning(w)
	}
	if !res.OK() {
		l.OnBuildErrors(res.Errors)
		return nil, fmt.Errorf("%w: %d error(s)", ErrValidation, len(res.Errors))
	}
	logger.Debug("Steps validated.", "steps", len(opts.Steps), "warnings", len(res.Warnings))

	if err := fsutil.ResetDir(opts.DistDir); err != nil {
		return nil, fmt.Errorf("reset output directory: %w", err)
	}

	b := New(opts.ProjectDir, opts.DistDir, l)
	used := make(map[step.Language]bool)
	for _, s := range opts.Steps {
		used[s.Language()] = true
	}
	for lang, factory := range opts.Builders {
		if used[lang] {
			b.RegisterBuilder(lang, factory(b))
			logger.Debug("Language builder registered.", "language", lang.String())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range opts.Steps {
		g.Go(func() error {
			return b.BuildStep(gctx, s)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := b.BuildAPISteps(ctx, step.FilterAPI(opts.Steps)); err != nil {
		return nil, err
	}

	for _, stream := range opts.Streams {
		if stream.StorageType == step.StorageDefault {
			b.RegisterStateStream(stream)
			continue
		}
		l.OnWarning(stream.FilePath, "Custom streams are not supported yet in the cloud")
	}

	if err := b.Manifest().Write(ManifestPath(opts.DistDir)); err != nil {
		return nil, err
	}

	logger.Info("Build finished.", "steps", len(opts.Steps), "duration", time.Since(started).String())
	return b, nil
}
