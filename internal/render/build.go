package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/validate"
)

// WithProjectDir makes step paths print relative to dir.
func WithProjectDir(dir string) Option {
	return func(r *Renderer) { r.projectDir = dir }
}

func (r *Renderer) rel(path string) string {
	if r.projectDir == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(r.projectDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func (r *Renderer) stepLabel(s *step.Step) string {
	return fmt.Sprintf("%s %s", r.st.bold.Render("λ "+s.Name()), r.st.dim.Render(r.rel(s.FilePath)))
}

func (r *Renderer) OnBuildStart(s *step.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagProgress, "Building "+r.stepLabel(s)))
}

func (r *Renderer) OnBuildProgress(s *step.Step, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagProgress, fmt.Sprintf("Building %s: %s", r.stepLabel(s), message)))
}

func (r *Renderer) OnBuildEnd(s *step.Step, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSuccess, fmt.Sprintf("Built %s %s", r.stepLabel(s), r.size(size))))
}

func (r *Renderer) OnBuildError(s *step.Step, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagFailed, fmt.Sprintf("Failed to build %s", r.stepLabel(s))))
	r.println(indent(r.st.red.Render(err.Error()), "  "))
}

func (r *Renderer) OnBuildSkip(s *step.Step, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSkipped, fmt.Sprintf("Skipped %s: %s", r.stepLabel(s), reason)))
}

func (r *Renderer) OnAPIRouterBuilding(language string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagProgress, fmt.Sprintf("Building %s API router", r.st.bold.Render("⛩ "+language))))
}

func (r *Renderer) OnAPIRouterBuilt(language string, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSuccess, fmt.Sprintf("Built %s API router %s", r.st.bold.Render("⛩ "+language), r.size(size))))
}

func (r *Renderer) OnStreamCreated(stream step.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSuccess, fmt.Sprintf("Stream created %s", r.st.bold.Render("≋ "+stream.Name))))
}

func (r *Renderer) OnWarning(id string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagWarning, fmt.Sprintf("%s %s", r.st.dim.Render("["+r.rel(id)+"]"), message)))
}

func (r *Renderer) OnBuildWarning(w validate.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagWarning, fmt.Sprintf("%s %s", r.st.dim.Render("["+w.RelativePath+"]"), w.Message)))
}

// OnBuildErrors prints every validation error under a banner. The build
// stops after it.
func (r *Renderer) OnBuildErrors(errs []validate.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.st.errorBox.Render("Unable to build the project, please fix the following errors"))
	for _, e := range errs {
		r.println(fmt.Sprintf("%s %s %s", r.st.red.Render("✗ [ERROR]"), r.st.dim.Render("["+e.RelativePath+"]"), e.Message))
	}
	r.println(r.st.dim.Render("\n--------------------------------\n"))
	r.println(r.tagged(tagFailed, r.st.red.Render("Deployment canceled")))
}

func (r *Renderer) size(n int64) string {
	if n < 0 {
		n = 0
	}
	return r.st.dim.Render(humanize.IBytes(uint64(n)))
}
