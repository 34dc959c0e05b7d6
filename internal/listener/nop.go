package listener

import (
	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/validate"
)

// Nop implements Listener and ignores every event. Embed it to implement
// only the callbacks you care about.
type Nop struct{}

var _ Listener = Nop{}

// BuildListener

func (Nop) OnBuildStart(*step.Step)            {}
func (Nop) OnBuildProgress(*step.Step, string) {}
func (Nop) OnBuildEnd(*step.Step, int64)       {}
func (Nop) OnBuildError(*step.Step, error)     {}
func (Nop) OnBuildSkip(*step.Step, string)     {}
func (Nop) OnAPIRouterBuilding(string)         {}
func (Nop) OnAPIRouterBuilt(string, int64)     {}
func (Nop) OnStreamCreated(step.Stream)        {}
func (Nop) OnWarning(string, string)           {}
func (Nop) OnBuildWarning(validate.Error)      {}
func (Nop) OnBuildErrors([]validate.Error)     {}

// DeployListener

func (Nop) OnDeployStart()                     {}
func (Nop) OnDeployProgress(status.DeployData) {}
func (Nop) OnDeployEnd(map[string]string)      {}
func (Nop) OnDeployError(string)               {}

// UploadListener

func (Nop) RouteUploadStart(string, string)                          {}
func (Nop) RouteUploadProgress(string, string, int)                  {}
func (Nop) RouteUploadEnd(string, string)                            {}
func (Nop) RouteUploadError(string, string, error)                   {}
func (Nop) StepUploadStart(string, manifest.BuildStepConfig)         {}
func (Nop) StepUploadProgress(string, manifest.BuildStepConfig, int) {}
func (Nop) StepUploadEnd(string, manifest.BuildStepConfig)           {}
func (Nop) StepUploadError(string, manifest.BuildStepConfig, error)  {}
