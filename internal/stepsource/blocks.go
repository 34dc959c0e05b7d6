package stepsource

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/stepship/internal/step"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

type stepBlock struct {
	Name        string   `hcl:"name,label"`
	Type        string   `hcl:"type"`
	File        string   `hcl:"file,optional"`
	Description string   `hcl:"description,optional"`
	Flows       []string `hcl:"flows,optional"`

	Method     string         `hcl:"method,optional"`
	Path       string         `hcl:"path,optional"`
	BodySchema hcl.Expression `hcl:"body_schema,optional"`

	Subscribes []string       `hcl:"subscribes,optional"`
	Input      hcl.Expression `hcl:"input,optional"`

	Cron  string   `hcl:"cron,optional"`
	Emits []string `hcl:"emits,optional"`

	VirtualEmits      []string `hcl:"virtual_emits,optional"`
	VirtualSubscribes []string `hcl:"virtual_subscribes,optional"`

	IncludeFiles []string `hcl:"include_files,optional"`
}

type streamBlock struct {
	Name        string `hcl:"name,label"`
	StorageType string `hcl:"storage_type,optional"`
}

func translateStep(b *stepBlock, file string) (*step.Step, error) {
	t := step.Type(b.Type)
	if !t.Valid() {
		return nil, fmt.Errorf("%s: step %q has unknown type %q", file, b.Name, b.Type)
	}
	if b.File == "" && t != step.TypeNoop {
		return nil, fmt.Errorf("%s: step %q must set file", file, b.Name)
	}

	bodySchema, err := exprJSON(b.BodySchema)
	if err != nil {
		return nil, fmt.Errorf("%s: step %q: body_schema: %w", file, b.Name, err)
	}
	input, err := exprJSON(b.Input)
	if err != nil {
		return nil, fmt.Errorf("%s: step %q: input: %w", file, b.Name, err)
	}

	cfg := step.Config{
		Type:              t,
		Name:              b.Name,
		Description:       b.Description,
		Flows:             b.Flows,
		Method:            b.Method,
		Path:              b.Path,
		BodySchema:        bodySchema,
		Subscribes:        b.Subscribes,
		Input:             input,
		Cron:              b.Cron,
		Emits:             b.Emits,
		VirtualEmits:      b.VirtualEmits,
		VirtualSubscribes: b.VirtualSubscribes,
		IncludeFiles:      b.IncludeFiles,
	}

	path := file
	if b.File != "" {
		path = b.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(file), filepath.FromSlash(path))
		}
	}
	return step.New(cfg, path), nil
}

func translateStream(b *streamBlock, file string) (step.Stream, error) {
	st := step.StorageType(b.StorageType)
	switch st {
	case "":
		st = step.StorageDefault
	case step.StorageDefault, step.StorageCustom:
	default:
		return step.Stream{}, fmt.Errorf("%s: stream %q has unknown storage_type %q", file, b.Name, b.StorageType)
	}
	return step.Stream{Name: b.Name, StorageType: st, FilePath: file}, nil
}

// exprJSON evaluates a free-form attribute and encodes it as JSON. An absent
// or null attribute yields nil.
func exprJSON(expr hcl.Expression) (json.RawMessage, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("value must be known")
	}
	b, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
