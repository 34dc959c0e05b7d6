package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/specialistvlad/stepship/internal/app"
	"github.com/specialistvlad/stepship/internal/deploy"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/render"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// runner is the part of *app.App the commands drive.
type runner interface {
	Build(ctx context.Context) (*manifest.File, error)
	Deploy(ctx context.Context) (*deploy.Result, error)
}

// Seams replaced by tests.
var (
	getenv    = os.Getenv
	newRunner = func(logW io.Writer, cfg *app.Config, l listener.Listener) runner {
		return app.NewApp(logW, cfg, l)
	}
)

type commonFlags struct {
	projectDir string
	distDir    string
	logLevel   string
	logFormat  string
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.projectDir, "project-dir", "d", ".", "Project root holding the step definitions.")
	fs.StringVar(&f.distDir, "dist-dir", "", "Output directory, relative to the project. Defaults to <project-dir>/dist.")
	fs.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&f.logFormat, "log-format", "auto", "Log output format. Options: 'text', 'json' or 'auto'.")
}

func (f *commonFlags) config() app.Config {
	return app.Config{
		ProjectDir: f.projectDir,
		DistDir:    f.distDir,
		APIBaseURL: getenv(app.EnvAPIBaseURL),
		FeedURL:    getenv(app.EnvAPIWSURL),
		LogLevel:   f.logLevel,
		LogFormat:  f.logFormat,
	}
}

// NewRootCommand assembles the stepship command tree. Progress is rendered
// to stdout, logs go to stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &commonFlags{}

	root := &cobra.Command{
		Use:           "stepship",
		Short:         "Build step projects and deploy them to the stepship cloud.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})
	flags.register(root.PersistentFlags())

	root.AddCommand(newBuildCommand(flags, stdout, stderr), newDeployCommand(flags, stdout, stderr))
	return root
}

func newBuildCommand(flags *commonFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build every step into the dist directory and write the manifest.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.NewConfig(flags.config())
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			r := newRunner(stderr, cfg, render.New(stdout, render.WithProjectDir(cfg.ProjectDir)))
			if _, err := r.Build(cmd.Context()); err != nil {
				return failure(err)
			}
			return nil
		},
	}
}

type deployFlags struct {
	apiKey        string
	versionName   string
	projectID     string
	environmentID string
	envFile       string
}

func newDeployCommand(flags *commonFlags, stdout, stderr io.Writer) *cobra.Command {
	df := &deployFlags{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build the project and deploy it as a new version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw := flags.config()
			raw.APIKey = df.apiKey
			if raw.APIKey == "" {
				raw.APIKey = getenv(app.EnvAPIKey)
			}
			raw.VersionName = df.versionName
			raw.ProjectID = df.projectID
			raw.EnvironmentID = df.environmentID
			raw.EnvFile = df.envFile

			cfg, err := app.NewConfig(raw)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			if err := cfg.ValidateDeploy(); err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			r := newRunner(stderr, cfg, render.New(stdout, render.WithProjectDir(cfg.ProjectDir)))
			if _, err := r.Deploy(cmd.Context()); err != nil {
				return failure(err)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&df.apiKey, "api-key", "k", "", "The API key for authentication. Defaults to $"+app.EnvAPIKey+".")
	fs.StringVarP(&df.versionName, "version-name", "v", "", "The version to deploy.")
	fs.StringVarP(&df.projectID, "project-id", "p", "", "Project ID.")
	fs.StringVarP(&df.environmentID, "environment-id", "s", "", "Environment ID.")
	fs.StringVarP(&df.envFile, "env-file", "e", "", "Path to an environment file whose variables are sent with the deployment.")
	return cmd
}

// failure maps a run error to exit code 1. Errors the renderer already showed
// carry no message.
func failure(err error) error {
	if app.Reported(err) {
		return &ExitError{Code: 1}
	}
	return &ExitError{Code: 1, Message: err.Error()}
}

// Run parses args and executes the selected command. Every returned error is
// an *ExitError.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	slog.Debug("CLI parser started.")
	if args == nil {
		args = []string{}
	}
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// cobra's own usage errors: unknown commands, unexpected arguments.
	return &ExitError{Code: 2, Message: err.Error()}
}
