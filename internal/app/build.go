package app

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/stepship/internal/builder"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/stepsource"
)

// Build loads the step definitions of the project, builds every step into
// the dist directory and returns the written manifest.
func (a *App) Build(ctx context.Context) (*manifest.File, error) {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Build method started.")
	started := time.Now()

	project, err := stepsource.Load(ctx, a.config.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load step definitions: %w", err)
	}
	if len(project.Steps) == 0 {
		logger.Warn("No steps found, the build will be empty.", "project_dir", a.config.ProjectDir)
	}
	logger.Info("Step definitions loaded.", "steps", len(project.Steps), "streams", len(project.Streams), "files", len(project.Files))

	b, err := builder.Run(ctx, builder.Options{
		ProjectDir: a.config.ProjectDir,
		DistDir:    a.config.DistDir,
		Steps:      project.Steps,
		Streams:    project.Streams,
		Listener:   a.listener,
		Builders:   a.builders,
	})
	if err != nil {
		return nil, err
	}

	a.stage("build-completed", listener.StageSuccess, "Build completed")
	logger.Debug("App.Build method finished.", "duration", time.Since(started).String())
	return b.Manifest(), nil
}
