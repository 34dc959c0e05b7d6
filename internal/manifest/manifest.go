// Package manifest defines the serialized description of a build: the
// compiled steps, the registered streams and the per-language router
// artifacts. The same structure is persisted next to the artifacts and sent
// to the control plane when a deployment is started.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/stepship/internal/step"
	"github.com/xeipuuv/gojsonschema"
)

// FileName is the manifest's name inside the build output directory.
const FileName = "stepship.steps.json"

// StepType is the manifest's language tag for a compiled step.
type StepType string

const (
	StepNode   StepType = "node"
	StepPython StepType = "python"
)

// BuildStepConfig is the compiled record of one step.
type BuildStepConfig struct {
	Type           StepType    `json:"type"`
	EntrypointPath string      `json:"entrypointPath"`
	Config         step.Config `json:"config"`
	FilePath       string      `json:"filePath"`
}

// BuildStreamConfig is a stream registered for remote provisioning.
type BuildStreamConfig struct {
	Name        string           `json:"name"`
	StorageType step.StorageType `json:"storageType"`
}

// Steps maps an artifact bundle path to its compiled step.
type Steps map[string]BuildStepConfig

// Streams maps a stream name to its config.
type Streams map[string]BuildStreamConfig

// Routers maps a language identifier to its router artifact path.
type Routers map[string]string

// File is the persisted manifest.
type File struct {
	Steps   Steps   `json:"steps"`
	Streams Streams `json:"streams"`
	Routers Routers `json:"routers"`
}

//go:embed schema.json
var schemaJSON []byte

var schema = gojsonschema.NewBytesLoader(schemaJSON)

// Validate checks f against the manifest JSON schema.
func (f *File) Validate() error {
	doc := gojsonschema.NewGoLoader(f.normalized())
	res, err := gojsonschema.Validate(schema, doc)
	if err != nil {
		return fmt.Errorf("manifest: validate: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("manifest: invalid:\n- %s", strings.Join(msgs, "\n- "))
}

// normalized returns a copy whose nil maps are empty, so the JSON form always
// carries all three objects.
func (f *File) normalized() *File {
	out := *f
	if out.Steps == nil {
		out.Steps = Steps{}
	}
	if out.Streams == nil {
		out.Streams = Streams{}
	}
	if out.Routers == nil {
		out.Routers = Routers{}
	}
	return &out
}

// Marshal returns the indented JSON encoding of f. Map keys are sorted, so
// the same manifest always yields the same bytes.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f.normalized()); err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Write validates f and writes it to path in one piece.
func (f *File) Write(path string) error {
	if err := f.Validate(); err != nil {
		return err
	}
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("manifest: create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// Read loads and validates the manifest at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f.normalized(), nil
}

// Artifacts lists every artifact path the manifest refers to: the step
// bundles followed by the routers.
func (f *File) Artifacts() []string {
	out := make([]string, 0, len(f.Steps)+len(f.Routers))
	for p := range f.Steps {
		out = append(out, p)
	}
	for _, p := range f.Routers {
		out = append(out, p)
	}
	return out
}
