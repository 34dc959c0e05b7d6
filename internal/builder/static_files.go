package builder

import (
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/stepship/internal/archive"
	"github.com/specialistvlad/stepship/internal/fsutil"
	"github.com/specialistvlad/stepship/internal/step"
)

// IncludeStaticFiles appends every file matched by the steps' IncludeFiles
// patterns to a. Entries are stored under their project-relative path; a file
// shared by several steps is added once.
func (b *Builder) IncludeStaticFiles(steps []*step.Step, a *archive.Archiver) error {
	for _, s := range steps {
		dir := filepath.Dir(s.FilePath)
		for _, pattern := range s.Config.IncludeFiles {
			matches, err := fsutil.GlobFiles(dir, pattern)
			if err != nil {
				return fmt.Errorf("step %q: %w", s.Name(), err)
			}
			for _, m := range matches {
				name, err := b.RelPath(m)
				if err != nil {
					return fmt.Errorf("step %q: static file: %w", s.Name(), err)
				}
				if a.Has(name) {
					continue
				}
				if err := a.AppendFile(m, name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
