package deploy

import (
	"context"
	"errors"
	"net/http"

	"github.com/specialistvlad/stepship/internal/cloudapi"
	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/upload"
)

// ControlPlane is the part of the control plane API a deployment needs.
// *cloudapi.Client implements it.
type ControlPlane interface {
	upload.Presigner
	CreateDeployment(ctx context.Context, req cloudapi.CreateDeploymentRequest) (*cloudapi.CreateDeploymentResult, error)
	StartDeployment(ctx context.Context, req cloudapi.StartDeploymentRequest) error
}

// Request describes one deployment of a finished build.
type Request struct {
	APIKey        string
	VersionName   string
	EnvironmentID string
	ProjectID     string
	EnvVars       map[string]string

	DistDir  string
	Manifest *manifest.File
}

// Result is the outcome of a successful deployment.
type Result struct {
	Deployment cloudapi.CreateDeploymentResult
	Final      status.DeployData
}

// Pipeline creates a deployment, uploads the build, starts it and tracks it.
type Pipeline struct {
	API      ControlPlane
	HTTP     *http.Client
	Tracker  *Tracker
	Listener listener.Listener
}

// Run executes the pipeline. Every failure is reported to the listener's
// OnDeployError exactly once before it is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	l := p.Listener
	if l == nil {
		l = listener.Nop{}
	}
	stage := func(id, state, msg string) {
		if sl, ok := l.(listener.StageListener); ok {
			sl.OnStage(id, state, msg)
		}
	}
	fail := func(id string, err error) error {
		stage(id, listener.StageFailed, UserMessage(err))
		if !errors.Is(err, ErrDeploymentFailed) {
			l.OnDeployError(UserMessage(err))
		}
		return err
	}
	logger := ctxlog.FromContext(ctx)

	stage("creating-deployment", listener.StageProgress, "Creating deployment...")
	dep, err := p.API.CreateDeployment(ctx, cloudapi.CreateDeploymentRequest{
		APIKey:        req.APIKey,
		VersionName:   req.VersionName,
		EnvironmentID: req.EnvironmentID,
		ProjectID:     req.ProjectID,
	})
	if err != nil {
		return nil, fail("creating-deployment", err)
	}
	stage("creating-deployment", listener.StageSuccess, "Deployment created")
	logger.Info("Deployment created.", "deployment", dep.DeploymentID, "project", dep.ProjectName, "environment", dep.EnvironmentName)

	stage("uploading-artifacts", listener.StageProgress, "Uploading artifacts...")
	up := upload.New(p.API, p.HTTP, req.DistDir, dep.DeploymentToken)
	if err := up.UploadArtifacts(ctx, req.Manifest, l); err != nil {
		return nil, fail("uploading-artifacts", err)
	}
	stage("uploading-artifacts", listener.StageSuccess, "Artifacts uploaded")

	stage("starting-deployment", listener.StageProgress, "Starting deployment...")
	err = p.API.StartDeployment(ctx, cloudapi.StartDeploymentRequest{
		DeploymentToken: dep.DeploymentToken,
		EnvVars:         nonNil(req.EnvVars),
		Steps:           req.Manifest.Steps,
		Streams:         req.Manifest.Streams,
		Routers:         req.Manifest.Routers,
	})
	if err != nil {
		return nil, fail("starting-deployment", err)
	}
	stage("starting-deployment", listener.StageSuccess, "Deployment started")
	l.OnDeployStart()

	final, err := p.Tracker.Track(ctx, dep.DeploymentID, l)
	if err != nil {
		return nil, fail("tracking-deployment", err)
	}
	return &Result{Deployment: *dep, Final: final}, nil
}

// UserMessage turns err into the message shown to the user. Control plane
// errors are reduced to the server's message.
func UserMessage(err error) string {
	var apiErr *cloudapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
