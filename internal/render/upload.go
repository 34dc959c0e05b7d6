package render

import (
	"fmt"

	"github.com/specialistvlad/stepship/internal/manifest"
)

func (r *Renderer) uploadLabel(cfg manifest.BuildStepConfig) string {
	return fmt.Sprintf("%s %s", r.st.bold.Render("λ "+cfg.Config.Name), r.st.dim.Render(cfg.FilePath))
}

func (r *Renderer) routerLabel(language string) string {
	return r.st.bold.Render("⛩ "+language) + " API router"
}

func (r *Renderer) StepUploadStart(stepPath string, cfg manifest.BuildStepConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagProgress, "Uploading "+r.uploadLabel(cfg)))
}

// StepUploadProgress is silent; every artifact gets one start and one end
// line.
func (r *Renderer) StepUploadProgress(string, manifest.BuildStepConfig, int) {}

func (r *Renderer) StepUploadEnd(stepPath string, cfg manifest.BuildStepConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSuccess, "Uploaded "+r.uploadLabel(cfg)))
}

func (r *Renderer) StepUploadError(stepPath string, cfg manifest.BuildStepConfig, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagFailed, fmt.Sprintf("Failed to upload %s: %s", r.uploadLabel(cfg), r.st.red.Render(err.Error()))))
}

func (r *Renderer) RouteUploadStart(path string, language string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagProgress, "Uploading "+r.routerLabel(language)))
}

func (r *Renderer) RouteUploadProgress(string, string, int) {}

func (r *Renderer) RouteUploadEnd(path string, language string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSuccess, "Uploaded "+r.routerLabel(language)))
}

func (r *Renderer) RouteUploadError(path string, language string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagFailed, fmt.Sprintf("Failed to upload %s: %s", r.routerLabel(language), r.st.red.Render(err.Error()))))
}
