package render

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/stepship/internal/deploy/status"
)

const legend = `Legend
↳ ≡ Queue
↳ ⛩ API Gateway
↳ ⌁ Topic
↳ λ Function Handler
↳ ↺ Cron Job`

// statusTree renders d. spin is called once for every non-terminal status
// and returns the spinner frame to show.
func (r *Renderer) statusTree(d status.DeployData, spin func() string) string {
	mark := func(s status.Status) string {
		switch s {
		case status.Failed:
			return r.st.red.Render("✘")
		case status.Completed:
			return r.st.green.Render("✓")
		default:
			return r.st.dim.Render(spin())
		}
	}
	topics := func(names []string) string {
		out := make([]string, len(names))
		for i, n := range names {
			out[i] = r.st.yellow.Render("⌁ " + n)
		}
		return strings.Join(out, r.st.dim.Render(", "))
	}
	lambda := func(name string) string {
		return r.st.dim.Render("λ " + name)
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("")
	for _, e := range d.Events {
		line("[%s]   [%s] → [≡ %s] → [%s]", mark(e.Status), topics(e.Topics), e.Queue, lambda(e.StepName))
	}
	line("")

	line("[%s]   [⛩ API Gateway]", mark(d.EndpointsStatus()))
	for _, e := range d.Endpoints {
		line("[%s]    ↳ %s %s → [%s] → [%s]", mark(e.Status), e.Method, e.Path, lambda(e.StepName), topics(e.Emits))
	}
	line("")

	line("[%s]   [↺ Cron]", mark(d.CronStatus()))
	if len(d.Cron) == 0 {
		line("[%s]    ↳ No cron jobs configured", r.st.green.Render("✓"))
	}
	for _, c := range d.Cron {
		line("[%s]    ↳ %s → [%s]", mark(c.Status), c.Cron, topics(c.Emits))
	}

	line("")
	b.WriteString(legend)
	return b.String()
}

// drawStatus prints the tree for d. On a terminal the previous tree is
// erased first when nothing else was printed after it.
func (r *Renderer) drawStatus(d status.DeployData) {
	if !r.interactive {
		key := r.statusTree(d, func() string { return "…" })
		if key == r.lastTree {
			return
		}
		r.lastTree = key
	}

	tree := r.statusTree(d, r.spin)
	if r.interactive && r.treeLines > 0 {
		fmt.Fprintf(r.out, "\x1b[%dA\x1b[J", r.treeLines)
	}
	r.println(tree)
	r.treeLines = strings.Count(tree, "\n") + 1
}
