// Package render prints build, upload and deployment progress for humans. A
// Renderer implements every listener interface plus listener.StageListener
// and is safe for concurrent use, since uploads report from many goroutines.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/specialistvlad/stepship/internal/listener"
)

var (
	_ listener.Listener      = (*Renderer)(nil)
	_ listener.StageListener = (*Renderer)(nil)
)

// Renderer writes one line per event to its writer. Deployment status trees
// are redrawn in place on a terminal and printed only when they change
// otherwise.
type Renderer struct {
	mu sync.Mutex

	out         io.Writer
	st          styles
	interactive bool
	projectDir  string

	frames []string
	frame  int

	// status tree bookkeeping
	lastTree  string
	treeLines int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithInteractive overrides terminal detection.
func WithInteractive(on bool) Option {
	return func(r *Renderer) { r.interactive = on }
}

// New returns a Renderer writing to w. Colors and in-place redraws are
// enabled only when w is a terminal.
func New(w io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		out:         w,
		st:          newStyles(lipgloss.NewRenderer(w)),
		interactive: isTerminal(w),
		frames:      spinner.MiniDot.Frames,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// println writes one block of output. Anything written after a status tree
// pins that tree, so the next tree is appended instead of redrawn.
func (r *Renderer) println(s string) {
	r.treeLines = 0
	fmt.Fprintln(r.out, s)
}

func (r *Renderer) spin() string {
	f := r.frames[r.frame]
	r.frame = (r.frame + 1) % len(r.frames)
	return f
}

func (r *Renderer) tagged(t tag, msg string) string {
	return r.st.tag(t) + " " + msg
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
