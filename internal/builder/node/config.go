package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tidwall/jsonc"
)

// ConfigFiles are the project-root files checked, in order, for esbuild
// overrides. The first one present wins.
var ConfigFiles = []string{"esbuild.config.json", ".esbuildrc.json"}

// Overrides is the subset of esbuild options a project may override. The file
// may contain comments and trailing commas.
type Overrides struct {
	External   []string          `json:"external"`
	Minify     *bool             `json:"minify"`
	Define     map[string]string `json:"define"`
	Tsconfig   string            `json:"tsconfig"`
	KeepNames  *bool             `json:"keepNames"`
	MainFields []string          `json:"mainFields"`
	Conditions []string          `json:"conditions"`
}

// LoadOverrides reads the first override file found in projectDir. It returns
// the file name it read, or an empty name when none exists.
func LoadOverrides(projectDir string) (*Overrides, string, error) {
	for _, name := range ConfigFiles {
		data, err := os.ReadFile(filepath.Join(projectDir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, name, err
		}
		var o Overrides
		if err := json.Unmarshal(jsonc.ToJSON(data), &o); err != nil {
			return nil, name, fmt.Errorf("parse %s: %w", name, err)
		}
		return &o, name, nil
	}
	return nil, "", nil
}

// Apply merges the overrides into opts. Unset fields leave opts untouched.
func (o *Overrides) Apply(opts *api.BuildOptions) {
	if o == nil {
		return
	}
	if o.External != nil {
		opts.External = o.External
	}
	if o.Minify != nil {
		opts.MinifyWhitespace = *o.Minify
		opts.MinifyIdentifiers = *o.Minify
		opts.MinifySyntax = *o.Minify
	}
	if o.Define != nil {
		opts.Define = o.Define
	}
	if o.Tsconfig != "" {
		opts.Tsconfig = o.Tsconfig
	}
	if o.KeepNames != nil {
		opts.KeepNames = *o.KeepNames
	}
	if o.MainFields != nil {
		opts.MainFields = o.MainFields
	}
	if o.Conditions != nil {
		opts.Conditions = o.Conditions
	}
}
