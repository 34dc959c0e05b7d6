package builder

import (
	"path"
	"strings"

	"github.com/specialistvlad/stepship/internal/step"
)

// ArtifactPaths holds the output locations of one compiled step. All paths use
// forward slashes; EntrypointPath and MapPath are relative to the artifact
// root, BundlePath is relative to the output directory.
type ArtifactPaths struct {
	EntrypointPath string
	MapPath        string
	BundlePath     string
}

// StepArtifactPaths derives the artifact layout of s. entryExt replaces the
// source extension of the entry point (".js" for node, ".py" for python).
func (b *Builder) StepArtifactPaths(s *step.Step, entryExt string) (ArtifactPaths, error) {
	rel, err := b.RelPath(s.FilePath)
	if err != nil {
		return ArtifactPaths{}, err
	}
	stem := strings.TrimSuffix(rel, path.Ext(rel))
	entry := stem + entryExt
	return ArtifactPaths{
		EntrypointPath: entry,
		MapPath:        entry + ".map",
		BundlePath:     path.Join(s.Language().String(), stem+".zip"),
	}, nil
}

// RouterArchiveName is the router artifact name for a language.
func RouterArchiveName(lang step.Language) string {
	return "router-" + lang.String() + ".zip"
}
