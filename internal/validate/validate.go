// Package validate inspects the complete set of discovered steps for
// structural conflicts before anything is built.
package validate

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/robfig/cron/v3"
	"github.com/specialistvlad/stepship/internal/fsutil"
	"github.com/specialistvlad/stepship/internal/step"
)

// MaxNameLength is the longest step name the control plane accepts.
const MaxNameLength = 30

// cronParser accepts the standard 5-field grammar only; descriptors such as
// "@daily" and a seconds field are rejected.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Error is a single validation finding scoped to a step's source file.
type Error struct {
	RelativePath string
	Message      string
	Step         *step.Step
}

// Error implements the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.RelativePath, e.Message)
}

// Result holds the fatal errors and the advisory warnings of a validation run.
type Result struct {
	Errors   []Error
	Warnings []Error
}

// OK reports whether the result contains no errors. Warnings do not count.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Validate checks steps and returns every violation found. It never stops at
// the first failure and has no side effects.
func Validate(projectDir string, steps []*step.Step) Result {
	var res Result
	rel := func(s *step.Step) string {
		r, err := filepath.Rel(projectDir, s.FilePath)
		if err != nil {
			return s.FilePath
		}
		return filepath.ToSlash(r)
	}

	names := make(map[string]*step.Step, len(steps))
	for _, s := range steps {
		first, dup := names[s.Name()]
		if !dup {
			names[s.Name()] = s
			continue
		}
		res.Errors = append(res.Errors, Error{
			RelativePath: rel(s),
			Message:      fmt.Sprintf("Duplicate step names: %s (first defined in %s)", s.Name(), rel(first)),
			Step:         s,
		})
	}

	endpoints := make(map[string]string)
	files := make(map[string]*step.Step)
	for _, s := range steps {
		relativePath := rel(s)

		// Each built step owns its bundle, so two steps cannot share a file.
		if s.Config.Type != step.TypeNoop {
			if owner, shared := files[s.FilePath]; shared {
				res.Errors = append(res.Errors, Error{
					RelativePath: relativePath,
					Message:      fmt.Sprintf("Step file is shared by steps %s and %s, each step needs its own file", owner.Name(), s.Name()),
					Step:         s,
				})
			} else {
				files[s.FilePath] = s
			}
		}

		switch s.Config.Type {
		case step.TypeCron:
			if _, err := cronParser.Parse(s.Config.Cron); err != nil {
				res.Errors = append(res.Errors, Error{
					RelativePath: relativePath,
					Message:      fmt.Sprintf("Cron step has an invalid cron expression: %q", s.Config.Cron),
					Step:         s,
				})
			}
		case step.TypeAPI:
			endpoint := s.Endpoint()
			if other, conflict := endpoints[endpoint]; conflict {
				res.Errors = append(res.Errors, Error{
					RelativePath: relativePath,
					Message: strings.Join([]string{
						"Endpoint conflict",
						fmt.Sprintf("  %s is defined in the following files", endpoint),
						"    " + relativePath,
						"    " + other,
					}, "\n"),
					Step: s,
				})
			} else {
				endpoints[endpoint] = relativePath
			}
		}

		if utf8.RuneCountInString(s.Name()) > MaxNameLength {
			res.Errors = append(res.Errors, Error{
				RelativePath: relativePath,
				Message:      fmt.Sprintf("Step name is too long. Maximum is %d characters: %s", MaxNameLength, s.Name()),
				Step:         s,
			})
		}

		res.Warnings = append(res.Warnings, includeWarnings(s, relativePath)...)
	}

	return res
}

// includeWarnings flags static file patterns that match nothing. The build
// still succeeds; the files are simply absent from the artifact.
func includeWarnings(s *step.Step, relativePath string) []Error {
	var out []Error
	dir := filepath.Dir(s.FilePath)
	for _, pattern := range s.Config.IncludeFiles {
		matches, err := fsutil.GlobFiles(dir, pattern)
		msg := ""
		switch {
		case err != nil:
			msg = fmt.Sprintf("Static file pattern %q is invalid: %v", pattern, err)
		case len(matches) == 0:
			msg = fmt.Sprintf("Static file pattern %q matches no files", pattern)
		default:
			continue
		}
		out = append(out, Error{RelativePath: relativePath, Message: msg, Step: s})
	}
	return out
}
