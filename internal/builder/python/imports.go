package python

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/specialistvlad/stepship/internal/fsutil"
)

var (
	importRe = regexp.MustCompile(`^import\s+(.+)$`)
	fromRe   = regexp.MustCompile(`^from\s+(\.*)([\w.]*)\s+import\s+(.+)$`)
)

// importRef is one parsed import statement. Level counts the leading dots of
// a relative import; Names holds the imported names of a from-import.
type importRef struct {
	Level  int
	Module string
	Names  []string
}

// parseImports extracts the import statements of a python source file.
// Parenthesized and backslash-continued statements are joined first.
func parseImports(src []byte) []importRef {
	var refs []importRef
	for _, stmt := range statements(src) {
		if m := fromRe.FindStringSubmatch(stmt); m != nil {
			refs = append(refs, importRef{
				Level:  len(m[1]),
				Module: m[2],
				Names:  splitNames(strings.Trim(m[3], "() ")),
			})
			continue
		}
		if m := importRe.FindStringSubmatch(stmt); m != nil {
			for _, name := range splitNames(m[1]) {
				refs = append(refs, importRef{Module: name})
			}
		}
	}
	return refs
}

func statements(src []byte) []string {
	var (
		out     []string
		pending strings.Builder
		open    bool
	)
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)

		if open {
			pending.WriteString(" " + line)
			if strings.Contains(line, ")") {
				open = false
				out = append(out, pending.String())
				pending.Reset()
			}
			continue
		}
		if strings.HasSuffix(line, "\\") {
			pending.WriteString(strings.TrimSuffix(line, "\\") + " ")
			continue
		}
		if pending.Len() > 0 {
			line = pending.String() + " " + line
			pending.Reset()
		}
		if strings.Contains(line, "(") && !strings.Contains(line, ")") &&
			(strings.HasPrefix(line, "from ") || strings.HasPrefix(line, "import ")) {
			open = true
			pending.WriteString(line)
			continue
		}
		out = append(out, line)
	}
	return out
}

func splitNames(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if i := strings.Index(part, " as "); i >= 0 {
			part = strings.TrimSpace(part[:i])
		}
		if part != "" && part != "*" {
			names = append(names, part)
		}
	}
	return names
}

// resolver finds the project-local modules a python file depends on.
type resolver struct {
	projectDir string
	seen       map[string]bool
}

// LocalImports returns entry and every project-local python file it imports,
// transitively, as sorted absolute paths. Package __init__.py files on the way
// to an imported module are included. Imports that cannot be found in the
// project are assumed to be installed packages and ignored.
func LocalImports(projectDir, entry string) ([]string, error) {
	r := &resolver{projectDir: projectDir, seen: make(map[string]bool)}
	if err := r.visit(entry); err != nil {
		return nil, err
	}
	files := make([]string, 0, len(r.seen))
	for f := range r.seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (r *resolver) visit(file string) error {
	if r.seen[file] {
		return nil
	}
	r.seen[file] = true

	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	dir := filepath.Dir(file)
	for _, ref := range parseImports(src) {
		for _, target := range r.resolve(dir, ref) {
			if err := r.visit(target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *resolver) resolve(dir string, ref importRef) []string {
	var bases []string
	if ref.Level > 0 {
		base := dir
		for i := 1; i < ref.Level; i++ {
			base = filepath.Dir(base)
		}
		bases = []string{base}
	} else {
		bases = []string{r.projectDir, dir}
	}

	var out []string
	for _, base := range bases {
		modDir := filepath.Join(base, filepath.FromSlash(strings.ReplaceAll(ref.Module, ".", "/")))
		found := false
		if ref.Module != "" {
			if files := r.moduleFiles(base, modDir); files != nil {
				out = append(out, files...)
				found = true
			}
		}
		// "from pkg import sub" may name submodules.
		for _, name := range ref.Names {
			if files := r.moduleFiles(base, filepath.Join(modDir, name)); files != nil {
				out = append(out, files...)
				found = true
			}
		}
		if found {
			break
		}
	}
	return out
}

// moduleFiles returns the source of the module at path (path.py or
// path/__init__.py) plus the __init__.py files between base and it. It
// returns nil when the module does not exist inside the project.
func (r *resolver) moduleFiles(base, path string) []string {
	var file string
	switch {
	case isFile(path + ".py"):
		file = path + ".py"
	case isFile(filepath.Join(path, "__init__.py")):
		file = filepath.Join(path, "__init__.py")
	default:
		return nil
	}
	if !r.inProject(file) {
		return nil
	}

	files := []string{file}
	for d := filepath.Dir(file); d != base && r.inProject(d) && len(d) > len(base); d = filepath.Dir(d) {
		if init := filepath.Join(d, "__init__.py"); init != file && isFile(init) {
			files = append(files, init)
		}
	}
	return files
}

func (r *resolver) inProject(path string) bool {
	rel, err := fsutil.SlashRel(r.projectDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, "../")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
