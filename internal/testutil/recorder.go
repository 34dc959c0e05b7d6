package testutil

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/specialistvlad/stepship/internal/listener"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/validate"
)

// Recorder is a listener.Listener that records every event as a short line,
// e.g. "build-end ListPets". It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	events   []string
	progress []status.DeployData
	output   map[string]string
	errors   []validate.Error
}

var _ listener.Listener = (*Recorder)(nil)

func (r *Recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Count returns how many events start with prefix.
func (r *Recorder) Count(prefix string) int {
	n := 0
	for _, e := range r.Events() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// Has reports whether the exact event was recorded.
func (r *Recorder) Has(event string) bool {
	return slices.Contains(r.Events(), event)
}

// Progress returns every snapshot passed to OnDeployProgress.
func (r *Recorder) Progress() []status.DeployData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.progress)
}

// Output returns the map passed to OnDeployEnd.
func (r *Recorder) Output() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output
}

// ValidationErrors returns the errors passed to OnBuildErrors.
func (r *Recorder) ValidationErrors() []validate.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errors)
}

func (r *Recorder) OnBuildStart(s *step.Step) {
	r.add("build-start %s", s.Name())
}

func (r *Recorder) OnBuildProgress(s *step.Step, msg string) {
	r.add("build-progress %s %s", s.Name(), msg)
}

func (r *Recorder) OnBuildEnd(s *step.Step, size int64) {
	r.add("build-end %s", s.Name())
}

func (r *Recorder) OnBuildError(s *step.Step, err error) {
	r.add("build-error %s", s.Name())
}

func (r *Recorder) OnBuildSkip(s *step.Step, reason string) {
	r.add("build-skip %s", s.Name())
}

func (r *Recorder) OnAPIRouterBuilding(language string) {
	r.add("router-building %s", language)
}

func (r *Recorder) OnAPIRouterBuilt(language string, _ int64) {
	r.add("router-built %s", language)
}

func (r *Recorder) OnStreamCreated(stream step.Stream) {
	r.add("stream %s", stream.Name)
}

func (r *Recorder) OnWarning(id, message string) {
	r.add("warning %s: %s", id, message)
}

func (r *Recorder) OnBuildWarning(w validate.Error) {
	r.add("build-warning %s", w.RelativePath)
}

func (r *Recorder) OnBuildErrors(errs []validate.Error) {
	r.mu.Lock()
	r.errors = append(r.errors, errs...)
	r.mu.Unlock()
	r.add("build-errors %d", len(errs))
}

func (r *Recorder) StepUploadStart(p string, _ manifest.BuildStepConfig) {
	r.add("step-upload-start %s", p)
}

func (r *Recorder) StepUploadProgress(p string, _ manifest.BuildStepConfig, progress int) {
	r.add("step-upload-progress %s %d", p, progress)
}

func (r *Recorder) StepUploadEnd(p string, _ manifest.BuildStepConfig) {
	r.add("step-upload-end %s", p)
}

func (r *Recorder) StepUploadError(p string, _ manifest.BuildStepConfig, _ error) {
	r.add("step-upload-error %s", p)
}

func (r *Recorder) RouteUploadStart(p, language string) {
	r.add("route-upload-start %s", p)
}

func (r *Recorder) RouteUploadProgress(p, language string, progress int) {
	r.add("route-upload-progress %s %d", p, progress)
}

func (r *Recorder) RouteUploadEnd(p, language string) {
	r.add("route-upload-end %s", p)
}

func (r *Recorder) RouteUploadError(p, language string, _ error) {
	r.add("route-upload-error %s", p)
}

func (r *Recorder) OnDeployStart() {
	r.add("deploy-start")
}

func (r *Recorder) OnDeployProgress(data status.DeployData) {
	r.mu.Lock()
	r.progress = append(r.progress, data)
	r.mu.Unlock()
	r.add("deploy-progress %s", data.Status)
}

func (r *Recorder) OnDeployEnd(output map[string]string) {
	r.mu.Lock()
	r.output = output
	r.mu.Unlock()
	r.add("deploy-end")
}

func (r *Recorder) OnDeployError(message string) {
	r.add("deploy-error %s", message)
}

func (r *Recorder) OnStage(id, state, message string) {
	r.add("stage %s %s", id, state)
}
