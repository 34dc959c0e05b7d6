package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/stepship/internal/builder"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var petsProject = map[string]string{
	"steps/pets.step.ts": `
		import { label } from '../lib/label'

		export const config = { type: 'api', name: 'ListPets', method: 'GET', path: '/pets' }
		export const handler = async () => ({ status: 200, body: { label } })
	`,
	"steps/orders.step.ts": `
		export const config = { type: 'api', name: 'CreateOrder', method: 'POST', path: '/orders' }
		export const handler = async () => ({ status: 201 })
	`,
	"lib/label.ts": `
		export const label: string = 'pets'
	`,
	"steps/data/seed.json": `{"pets": []}`,
}

func newBuilder(t *testing.T, files map[string]string) (*builder.Builder, *testutil.Recorder) {
	t.Helper()
	dir := testutil.WriteProject(t, files)
	rec := &testutil.Recorder{}
	return builder.New(dir, filepath.Join(dir, "dist"), rec), rec
}

func apiStep(b *builder.Builder, name, method, path, file string) *step.Step {
	return step.New(step.Config{
		Type:   step.TypeAPI,
		Name:   name,
		Method: method,
		Path:   path,
	}, filepath.Join(b.ProjectDir, filepath.FromSlash(file)))
}

func TestBuild_BundlesStepWithStaticFiles(t *testing.T) {
	b, rec := newBuilder(t, petsProject)
	s := apiStep(b, "ListPets", "GET", "/pets", "steps/pets.step.ts")
	s.Config.IncludeFiles = []string{"data/*.json"}

	err := New(b).Build(context.Background(), s)
	require.NoError(t, err)

	zipPath := filepath.Join(b.DistDir, "node", "steps", "pets.step.zip")
	entries := testutil.ZipEntries(t, zipPath)
	require.Contains(t, entries, "steps/pets.step.js")
	assert.Contains(t, entries, "steps/pets.step.js.map")
	assert.Equal(t, `{"pets": []}`+"\n", entries["steps/data/seed.json"])
	assert.Contains(t, entries["steps/pets.step.js"], `"pets"`, "local import should be bundled")

	// Scratch outputs are removed once archived.
	_, err = os.Stat(filepath.Join(b.DistDir, "node", "steps", "pets.step.js"))
	assert.True(t, os.IsNotExist(err))

	m := b.Manifest()
	require.Contains(t, m.Steps, "node/steps/pets.step.zip")
	entry := m.Steps["node/steps/pets.step.zip"]
	assert.Equal(t, manifest.StepNode, entry.Type)
	assert.Equal(t, "steps/pets.step.js", entry.EntrypointPath)
	assert.Equal(t, s.FilePath, entry.FilePath)
	assert.Equal(t, "ListPets", entry.Config.Name)

	assert.Equal(t, []string{
		"build-start ListPets",
		"build-progress ListPets Bundling",
		"build-progress ListPets Archiving",
		"build-end ListPets",
	}, rec.Events())
}

func TestBuild_CompileErrorIsReportedOnce(t *testing.T) {
	b, rec := newBuilder(t, map[string]string{
		"steps/broken.step.ts": `export const handler = (`,
	})
	s := apiStep(b, "Broken", "GET", "/broken", "steps/broken.step.ts")

	b.RegisterBuilder(step.LanguageNode, New(b))
	err := b.BuildStep(context.Background(), s)
	require.Error(t, err)
	assert.True(t, builder.IsReported(err))
	assert.Equal(t, 1, rec.Count("build-error Broken"))

	// The step stays registered so the failure can be traced back.
	assert.Contains(t, b.Manifest().Steps, "node/steps/broken.step.zip")
	_, statErr := os.Stat(filepath.Join(b.DistDir, "node", "steps", "broken.step.zip"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRenderRouter(t *testing.T) {
	b, _ := newBuilder(t, petsProject)
	steps := []*step.Step{
		apiStep(b, "ListPets", "get", "/pets", "steps/pets.step.ts"),
		apiStep(b, "CreateOrder", "POST", "/orders", "steps/orders.step.ts"),
	}

	src, err := New(b).RenderRouter(steps)
	require.NoError(t, err)

	out := string(src)
	assert.Contains(t, out, `import * as route0 from "./steps/pets.step.ts"`)
	assert.Contains(t, out, `import * as route1 from "./steps/orders.step.ts"`)
	assert.Contains(t, out, `"GET /pets": { stepName: "ListPets", handler: route0.handler, config: route0.config },`)
	assert.Contains(t, out, `"POST /orders": { stepName: "CreateOrder", handler: route1.handler, config: route1.config },`)
}

func TestBuildAPISteps(t *testing.T) {
	b, _ := newBuilder(t, petsProject)
	steps := []*step.Step{
		apiStep(b, "ListPets", "GET", "/pets", "steps/pets.step.ts"),
		apiStep(b, "CreateOrder", "POST", "/orders", "steps/orders.step.ts"),
	}
	steps[0].Config.IncludeFiles = []string{"data/seed.json"}

	res, err := New(b).BuildAPISteps(context.Background(), steps)
	require.NoError(t, err)
	assert.Equal(t, "router-node.zip", res.Path)
	assert.Positive(t, res.Size)

	entries := testutil.ZipEntries(t, filepath.Join(b.DistDir, res.Path))
	require.Contains(t, entries, "router.js")
	assert.Contains(t, entries, "router.js.map")
	assert.Contains(t, entries, "steps/data/seed.json")
	assert.Contains(t, entries["router.js"], "GET /pets")
	assert.Contains(t, entries["router.js"], "CreateOrder")

	_, err = os.Stat(filepath.Join(b.DistDir, "router.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadOverrides(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		o, file, err := LoadOverrides(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, o)
		assert.Empty(t, file)
	})

	t.Run("jsonc", func(t *testing.T) {
		dir := testutil.WriteProject(t, map[string]string{
			".esbuildrc.json": `
				{
					// keep native deps out of the bundle
					"external": ["sharp"],
					"minify": true,
				}
			`,
		})
		o, file, err := LoadOverrides(dir)
		require.NoError(t, err)
		assert.Equal(t, ".esbuildrc.json", file)
		assert.Equal(t, []string{"sharp"}, o.External)
		require.NotNil(t, o.Minify)
		assert.True(t, *o.Minify)
	})

	t.Run("first file wins", func(t *testing.T) {
		dir := testutil.WriteProject(t, map[string]string{
			"esbuild.config.json": `{"keepNames": true}`,
			".esbuildrc.json":     `{"keepNames": false}`,
		})
		o, file, err := LoadOverrides(dir)
		require.NoError(t, err)
		assert.Equal(t, "esbuild.config.json", file)
		assert.True(t, *o.KeepNames)
	})
}

func TestBuild_BrokenOverrideFileIsAWarning(t *testing.T) {
	files := map[string]string{"esbuild.config.json": `{"external": `}
	for k, v := range petsProject {
		files[k] = v
	}
	b, rec := newBuilder(t, files)
	s := apiStep(b, "ListPets", "GET", "/pets", "steps/pets.step.ts")

	require.NoError(t, New(b).Build(context.Background(), s))
	assert.True(t, rec.Has("warning esbuild.config.json: Failed to load esbuild config from esbuild.config.json"))
}
