package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/stepship/internal/cloudapi"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/deploy"
	"github.com/specialistvlad/stepship/internal/envfile"
	"github.com/specialistvlad/stepship/internal/listener"
)

// envReporter is implemented by listeners that can show the loaded
// environment keys.
type envReporter interface {
	EnvLoaded(masked []string)
}

// Deploy builds the project and ships it as a new version. It returns once
// the deployment reached a terminal status.
func (a *App) Deploy(ctx context.Context) (*deploy.Result, error) {
	if err := a.config.ValidateDeploy(); err != nil {
		return nil, err
	}
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Deploy method started.")

	m, err := a.Build(ctx)
	if err != nil {
		return nil, err
	}

	envVars, err := a.loadEnv()
	if err != nil {
		return nil, err
	}

	client := cloudapi.New(a.config.APIBaseURL, cloudapi.WithUserAgent("stepship/"+Version))
	defer func() {
		if err := client.Close(); err != nil {
			logger.Debug("Closing control plane client failed.", "error", err)
		}
	}()

	p := &deploy.Pipeline{
		API:  client,
		HTTP: a.httpClient,
		Tracker: &deploy.Tracker{
			Feed:           a.feed,
			Clock:          a.clock,
			DefaultOutputs: a.config.DefaultOutputs(),
		},
		Listener: a.listener,
	}
	res, err := p.Run(ctx, deploy.Request{
		APIKey:        a.config.APIKey,
		VersionName:   a.config.VersionName,
		EnvironmentID: a.config.EnvironmentID,
		ProjectID:     a.config.ProjectID,
		EnvVars:       envVars,
		DistDir:       a.config.DistDir,
		Manifest:      m,
	})
	if err != nil {
		return nil, &reportedError{err: err}
	}

	logger.Info("Deployment finished.", "deployment", res.Deployment.DeploymentID, "status", string(res.Final.Status))
	return res, nil
}

func (a *App) loadEnv() (map[string]string, error) {
	path := a.config.EnvFile
	if path == "" {
		return nil, nil
	}
	a.stage("load-env", listener.StageProgress, "Loading environment variables...")
	vars, err := envfile.Load(path)
	if err != nil {
		a.stage("load-env", listener.StageFailed, fmt.Sprintf("Failed to load environment file %s", path))
		return nil, &reportedError{err: fmt.Errorf("load env file: %w", err)}
	}
	if r, ok := a.listener.(envReporter); ok {
		r.EnvLoaded(envfile.MaskedKeys(vars))
	} else {
		a.stage("load-env", listener.StageSuccess, "Environment variables loaded from file")
	}
	return vars, nil
}
