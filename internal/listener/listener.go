// Package listener defines the capability interfaces through which the build,
// upload and deploy stages report lifecycle events. Stages never render
// anything themselves; a renderer implements whichever interfaces it needs.
package listener

import (
	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/validate"
)

// BuildListener receives events from the build stage.
type BuildListener interface {
	OnBuildStart(s *step.Step)
	OnBuildProgress(s *step.Step, message string)
	OnBuildEnd(s *step.Step, size int64)
	OnBuildError(s *step.Step, err error)
	OnBuildSkip(s *step.Step, reason string)

	OnAPIRouterBuilding(language string)
	OnAPIRouterBuilt(language string, size int64)

	OnStreamCreated(stream step.Stream)

	OnWarning(id string, message string)
	OnBuildWarning(warning validate.Error)
	OnBuildErrors(errors []validate.Error)
}

// UploadListener receives events for every artifact upload. Progress is an
// integer percentage that never decreases for a given artifact.
type UploadListener interface {
	StepUploadStart(stepPath string, cfg manifest.BuildStepConfig)
	StepUploadProgress(stepPath string, cfg manifest.BuildStepConfig, progress int)
	StepUploadEnd(stepPath string, cfg manifest.BuildStepConfig)
	StepUploadError(stepPath string, cfg manifest.BuildStepConfig, err error)

	RouteUploadStart(path string, language string)
	RouteUploadProgress(path string, language string, progress int)
	RouteUploadEnd(path string, language string)
	RouteUploadError(path string, language string, err error)
}

// DeployListener receives events while a deployment is started and tracked.
type DeployListener interface {
	OnDeployStart()
	OnDeployProgress(data status.DeployData)
	OnDeployEnd(output map[string]string)
	OnDeployError(message string)
}

// Stage states reported through StageListener.
const (
	StageProgress = "progress"
	StageSuccess  = "success"
	StageFailed   = "failed"
)

// StageListener is optionally implemented by listeners that want the coarse
// pipeline milestones ("Creating deployment...", "Deployment created"). id
// groups the updates of one milestone.
type StageListener interface {
	OnStage(id, state, message string)
}

// Listener is the union a full build-and-deploy renderer implements.
type Listener interface {
	BuildListener
	UploadListener
	DeployListener
}
