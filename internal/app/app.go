package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/stepship/internal/builder"
	"github.com/specialistvlad/stepship/internal/builder/node"
	"github.com/specialistvlad/stepship/internal/builder/python"
	"github.com/specialistvlad/stepship/internal/clock"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/deploy"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/step"
)

// Version is stamped into the control plane user agent. It is set at link
// time.
var Version = "dev"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	config   *Config
	logger   *slog.Logger
	listener listener.Listener

	builders   map[step.Language]builder.Factory
	httpClient *http.Client
	feed       deploy.Feed
	clock      clock.Clock
}

// Option customizes an App. Tests use them to replace the network edges.
type Option func(*App)

// WithHTTPClient sets the client used for artifact uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// WithFeed replaces the socket.io status feed.
func WithFeed(f deploy.Feed) Option {
	return func(a *App) { a.feed = f }
}

// WithClock replaces the clock driving status polling.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithBuilders replaces the language builders.
func WithBuilders(b map[step.Language]builder.Factory) Option {
	return func(a *App) { a.builders = b }
}

// NewApp is the constructor for the main application. Logs go to logW; l
// receives every build, upload and deploy event. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(logW io.Writer, cfg *Config, l listener.Listener, opts ...Option) *App {
	if l == nil {
		l = listener.Nop{}
	}
	a := &App{
		config:   cfg,
		logger:   newLogger(cfg.LogLevel, cfg.LogFormat, logW),
		listener: l,
		builders: map[step.Language]builder.Factory{
			step.LanguageNode:   node.Factory,
			step.LanguagePython: python.Factory,
		},
		httpClient: http.DefaultClient,
		clock:      clock.Real(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.feed == nil {
		a.feed = &deploy.SocketFeed{URL: cfg.FeedURL}
	}
	a.logger.Debug("App configured.", "project_dir", cfg.ProjectDir, "dist_dir", cfg.DistDir)
	return a
}

// Config returns the application's configuration.
func (a *App) Config() *Config {
	return a.config
}

func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

func (a *App) stage(id, state, message string) {
	if sl, ok := a.listener.(listener.StageListener); ok {
		sl.OnStage(id, state, message)
	}
}

type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported reports whether err has already been shown to the user through
// the listener, so callers should not print it again.
func Reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r) || errors.Is(err, builder.ErrValidation) || builder.IsReported(err)
}
