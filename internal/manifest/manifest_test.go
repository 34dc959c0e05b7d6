package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *File {
	return &File{
		Steps: Steps{
			"node/steps/pets.step.zip": {
				Type:           "node",
				EntrypointPath: "steps/pets.step.js",
				Config:         step.Config{Type: step.TypeAPI, Name: "pets", Method: "GET", Path: "/pets"},
				FilePath:       "/project/steps/pets.step.ts",
			},
		},
		Streams: Streams{"todo": {Name: "todo", StorageType: step.StorageDefault}},
		Routers: Routers{"node": "router-node.zip"},
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dist", FileName)
	want := sample()

	require.NoError(t, want.Write(path))
	got, err := Read(path)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}
	assert.NoFileExists(t, path+".tmp")
}

func TestMarshalIsDeterministic(t *testing.T) {
	a, err := sample().Marshal()
	require.NoError(t, err)
	b, err := sample().Marshal()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmptyManifestHasAllSections(t *testing.T) {
	data, err := (&File{}).Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"steps":{},"streams":{},"routers":{}}`, string(data))
}

func TestValidateRejectsBadManifests(t *testing.T) {
	t.Run("custom stream", func(t *testing.T) {
		f := sample()
		f.Streams["x"] = BuildStreamConfig{Name: "x", StorageType: step.StorageCustom}
		assert.ErrorContains(t, f.Validate(), "manifest: invalid")
	})

	t.Run("unknown router language", func(t *testing.T) {
		f := sample()
		f.Routers["ruby"] = "router-ruby.zip"
		assert.Error(t, f.Validate())
	})

	t.Run("missing step name", func(t *testing.T) {
		f := sample()
		f.Steps["node/x.zip"] = BuildStepConfig{Type: "node", EntrypointPath: "x.js", FilePath: "/x.ts", Config: step.Config{Type: step.TypeEvent}}
		assert.Error(t, f.Validate())
	})
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Read(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = Read(bad)
	assert.ErrorContains(t, err, "decode")
}

func TestArtifacts(t *testing.T) {
	assert.ElementsMatch(t, []string{"node/steps/pets.step.zip", "router-node.zip"}, sample().Artifacts())
}
