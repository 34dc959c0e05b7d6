package render

import (
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/specialistvlad/stepship/internal/listener"
)

func (r *Renderer) OnDeployStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagProgress, "Version in progress..."))
}

func (r *Renderer) OnDeployProgress(d status.DeployData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drawStatus(d)
}

// OnDeployEnd prints the deployment outputs as a two column table sorted by
// field name.
func (r *Renderer) OnDeployEnd(output map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSuccess, "Deployment process completed successfully"))
	if len(output) == 0 {
		return
	}
	r.println(r.outputTable(output))
}

func (r *Renderer) outputTable(output map[string]string) string {
	keys := make([]string, 0, len(output))
	for k := range output {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, output[k]}
	}
	cell := r.st.cell
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.st.dim).
		StyleFunc(func(row, col int) lipgloss.Style { return cell }).
		Headers("Field", "Value").
		Rows(rows...).
		String()
}

func (r *Renderer) OnDeployError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagFailed, r.st.red.Render("Deployment failed. Please check the deployment status and try again or contact support")))
	r.println(r.st.errorBox.Render(message))
}

// OnStage prints a pipeline milestone.
func (r *Renderer) OnStage(id, state, message string) {
	t := tagInfo
	switch state {
	case listener.StageProgress:
		t = tagProgress
	case listener.StageSuccess:
		t = tagSuccess
	case listener.StageFailed:
		t = tagFailed
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(t, message))
}

// EnvLoaded lists the keys loaded from an env file with their values masked.
func (r *Renderer) EnvLoaded(masked []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.println(r.tagged(tagSuccess, "Environment variables loaded from file"))
	if len(masked) > 0 {
		r.println(r.st.infoBox.Render(lipgloss.JoinVertical(lipgloss.Left, masked...)))
	}
}
