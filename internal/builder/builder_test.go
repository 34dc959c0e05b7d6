package builder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/stepship/internal/builder"
	"github.com/specialistvlad/stepship/internal/builder/node"
	"github.com/specialistvlad/stepship/internal/builder/python"
	"github.com/specialistvlad/stepship/internal/manifest"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mixedProject = map[string]string{
	"steps/pets.step.ts": `
		export const config = { type: 'api', name: 'ListPets', method: 'GET', path: '/pets' }
		export const handler = async () => ({ status: 200 })
	`,
	"steps/notify.step.js": `
		exports.config = { type: 'event', name: 'Notify', subscribes: ['pet.created'] }
		exports.handler = async () => {}
	`,
	"steps/orders_step.py": `
		config = {"type": "api", "name": "CreateOrder", "method": "POST", "path": "/orders"}

		async def handler(req, ctx):
		    return {"status": 201}
	`,
	"steps/flow.step.ts": `
		export const config = { type: 'noop', name: 'Flow' }
	`,
	"steps/legacy.step.rb": `puts "hi"`,
}

func mixedSteps(dir string) []*step.Step {
	at := func(p string) string { return filepath.Join(dir, filepath.FromSlash(p)) }
	return []*step.Step{
		step.New(step.Config{Type: step.TypeAPI, Name: "ListPets", Method: "GET", Path: "/pets"}, at("steps/pets.step.ts")),
		step.New(step.Config{Type: step.TypeEvent, Name: "Notify", Subscribes: []string{"pet.created"}}, at("steps/notify.step.js")),
		step.New(step.Config{Type: step.TypeAPI, Name: "CreateOrder", Method: "POST", Path: "/orders"}, at("steps/orders_step.py")),
		step.New(step.Config{Type: step.TypeNoop, Name: "Flow", VirtualEmits: []string{"pet.created"}}, at("steps/flow.step.ts")),
		step.New(step.Config{Type: step.TypeEvent, Name: "Legacy", Subscribes: []string{"x"}}, at("steps/legacy.step.rb")),
	}
}

func runOptions(dir string, rec *testutil.Recorder) builder.Options {
	return builder.Options{
		ProjectDir: dir,
		DistDir:    filepath.Join(dir, "dist"),
		Steps:      mixedSteps(dir),
		Streams: []step.Stream{
			{Name: "pets", StorageType: step.StorageDefault, FilePath: filepath.Join(dir, "streams/pets.stream.ts")},
			{Name: "audit", StorageType: step.StorageCustom, FilePath: filepath.Join(dir, "streams/audit.stream.ts")},
		},
		Listener: rec,
		Builders: map[step.Language]builder.Factory{
			step.LanguageNode:   node.Factory,
			step.LanguagePython: python.Factory,
		},
	}
}

func TestRun_BuildsMixedProject(t *testing.T) {
	dir := testutil.WriteProject(t, mixedProject)
	rec := &testutil.Recorder{}
	opts := runOptions(dir, rec)

	b, err := builder.Run(context.Background(), opts)
	require.NoError(t, err)

	got, err := manifest.Read(builder.ManifestPath(opts.DistDir))
	require.NoError(t, err)
	if diff := cmp.Diff(b.Manifest(), got); diff != "" {
		t.Errorf("persisted manifest mismatch (-want +got):\n%s", diff)
	}

	assert.ElementsMatch(t, []string{
		"node/steps/pets.step.zip",
		"node/steps/notify.step.zip",
		"python/steps/orders_step.zip",
	}, keys(got.Steps))
	assert.Equal(t, manifest.Routers{"node": "router-node.zip", "python": "router-python.zip"}, got.Routers)
	assert.Equal(t, manifest.Streams{"pets": {Name: "pets", StorageType: step.StorageDefault}}, got.Streams)

	for _, artifact := range got.Artifacts() {
		_, err := os.Stat(filepath.Join(opts.DistDir, filepath.FromSlash(artifact)))
		assert.NoError(t, err, artifact)
	}

	assert.True(t, rec.Has("build-skip Flow"))
	assert.True(t, rec.Has("build-skip Legacy"))
	assert.True(t, rec.Has("stream pets"))
	assert.True(t, rec.Has("warning "+filepath.Join(dir, "streams/audit.stream.ts")+": Custom streams are not supported yet in the cloud"))
	assert.Equal(t, []string{"router-building node", "router-built node", "router-building python", "router-built python"},
		filterPrefix(rec.Events(), "router-"))
}

func TestRun_IsIdempotent(t *testing.T) {
	dir := testutil.WriteProject(t, mixedProject)
	opts := runOptions(dir, &testutil.Recorder{})

	_, err := builder.Run(context.Background(), opts)
	require.NoError(t, err)
	first, err := os.ReadFile(builder.ManifestPath(opts.DistDir))
	require.NoError(t, err)

	// Leftovers from a previous build must not survive.
	stale := filepath.Join(opts.DistDir, "node", "stale.zip")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	_, err = builder.Run(context.Background(), opts)
	require.NoError(t, err)
	second, err := os.ReadFile(builder.ManifestPath(opts.DistDir))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ValidationAbortsBeforeBuilding(t *testing.T) {
	dir := testutil.WriteProject(t, mixedProject)
	rec := &testutil.Recorder{}
	opts := runOptions(dir, rec)
	opts.Steps = append(opts.Steps,
		step.New(step.Config{Type: step.TypeAPI, Name: "ListPets", Method: "get", Path: "/pets"}, filepath.Join(dir, "steps/pets2.step.ts")))

	_, err := builder.Run(context.Background(), opts)
	require.ErrorIs(t, err, builder.ErrValidation)

	assert.Len(t, rec.ValidationErrors(), 2, "duplicate name and endpoint conflict")
	assert.Zero(t, rec.Count("build-start"))
	_, statErr := os.Stat(builder.ManifestPath(opts.DistDir))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_RejectsStepsSharingAFile(t *testing.T) {
	dir := testutil.WriteProject(t, mixedProject)
	rec := &testutil.Recorder{}
	opts := runOptions(dir, rec)
	opts.Steps = []*step.Step{
		step.New(step.Config{Type: step.TypeAPI, Name: "ListPets", Method: "GET", Path: "/pets"}, filepath.Join(dir, "steps/pets.step.ts")),
		step.New(step.Config{Type: step.TypeAPI, Name: "GetPet", Method: "GET", Path: "/pets/:id"}, filepath.Join(dir, "steps/pets.step.ts")),
	}

	_, err := builder.Run(context.Background(), opts)
	require.ErrorIs(t, err, builder.ErrValidation)

	errs := rec.ValidationErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "steps/pets.step.ts", errs[0].RelativePath)
	assert.Zero(t, rec.Count("build-start"))
}

func TestRun_APIAndCronNodeProject(t *testing.T) {
	dir := testutil.WriteProject(t, map[string]string{
		"steps/pets.step.ts":    mixedProject["steps/pets.step.ts"],
		"steps/cleanup.step.ts": `export const handler = async () => {}`,
	})
	rec := &testutil.Recorder{}
	opts := runOptions(dir, rec)
	opts.Streams = nil
	opts.Steps = []*step.Step{
		step.New(step.Config{Type: step.TypeAPI, Name: "ListPets", Method: "GET", Path: "/pets"}, filepath.Join(dir, "steps/pets.step.ts")),
		step.New(step.Config{Type: step.TypeCron, Name: "Cleanup", Cron: "*/1 * * * *"}, filepath.Join(dir, "steps/cleanup.step.ts")),
	}

	b, err := builder.Run(context.Background(), opts)
	require.NoError(t, err)

	m := b.Manifest()
	assert.ElementsMatch(t, []string{"node/steps/pets.step.zip", "node/steps/cleanup.step.zip"}, keys(m.Steps))
	cron := m.Steps["node/steps/cleanup.step.zip"]
	assert.Equal(t, manifest.StepNode, cron.Type)
	assert.Equal(t, step.TypeCron, cron.Config.Type)
	assert.Equal(t, "*/1 * * * *", cron.Config.Cron)
	assert.Equal(t, manifest.Routers{"node": "router-node.zip"}, m.Routers)

	_, statErr := os.Stat(filepath.Join(opts.DistDir, "router-python.zip"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, []string{"router-building node", "router-built node"}, filterPrefix(rec.Events(), "router-"))
}

func TestRun_PythonBuilderOnlyWhenNeeded(t *testing.T) {
	dir := testutil.WriteProject(t, mixedProject)
	opts := runOptions(dir, &testutil.Recorder{})
	opts.Steps = opts.Steps[:2]

	var created bool
	opts.Builders[step.LanguagePython] = func(b *builder.Builder) builder.StepBuilder {
		created = true
		return python.New(b)
	}

	_, err := builder.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, created)
}

type fakeBuilder struct {
	mu     sync.Mutex
	err    error
	built  []string
	routed [][]string
	path   string
}

func (f *fakeBuilder) Build(_ context.Context, s *step.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, s.Name())
	return f.err
}

func (f *fakeBuilder) BuildAPISteps(_ context.Context, steps []*step.Step) (builder.RouterResult, error) {
	var names []string
	for _, s := range steps {
		names = append(names, s.Name())
	}
	f.routed = append(f.routed, names)
	return builder.RouterResult{Size: 1, Path: f.path}, f.err
}

func TestBuildStep(t *testing.T) {
	dir := t.TempDir()
	rec := &testutil.Recorder{}
	b := builder.New(dir, filepath.Join(dir, "dist"), rec)
	s := step.New(step.Config{Type: step.TypeEvent, Name: "Notify"}, filepath.Join(dir, "notify.step.ts"))

	t.Run("no builder skips", func(t *testing.T) {
		require.NoError(t, b.BuildStep(context.Background(), s))
		assert.True(t, rec.Has("build-skip Notify"))
	})

	t.Run("last registration wins", func(t *testing.T) {
		first, second := &fakeBuilder{}, &fakeBuilder{}
		b.RegisterBuilder(step.LanguageNode, first)
		b.RegisterBuilder(step.LanguageNode, second)

		require.NoError(t, b.BuildStep(context.Background(), s))
		assert.Empty(t, first.built)
		assert.Equal(t, []string{"Notify"}, second.built)
	})

	t.Run("errors are reported and returned", func(t *testing.T) {
		boom := errors.New("boom")
		b.RegisterBuilder(step.LanguageNode, &fakeBuilder{err: boom})

		err := b.BuildStep(context.Background(), s)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, rec.Count("build-error Notify"))
	})
}

func TestBuildAPISteps_ResetsRoutersAndGroupsByLanguage(t *testing.T) {
	dir := t.TempDir()
	b := builder.New(dir, filepath.Join(dir, "dist"), nil)
	nodeB := &fakeBuilder{path: "router-node.zip"}
	pyB := &fakeBuilder{path: "router-python.zip"}
	b.RegisterBuilder(step.LanguageNode, nodeB)
	b.RegisterBuilder(step.LanguagePython, pyB)

	api := func(name, file string) *step.Step {
		return step.New(step.Config{Type: step.TypeAPI, Name: name, Method: "GET", Path: "/" + name}, filepath.Join(dir, file))
	}
	all := []*step.Step{
		api("a", "a.step.ts"),
		api("b", "b_step.py"),
		api("c", "c.step.js"),
		step.New(step.Config{Type: step.TypeEvent, Name: "d"}, filepath.Join(dir, "d.step.ts")),
	}

	require.NoError(t, b.BuildAPISteps(context.Background(), all))
	assert.Equal(t, [][]string{{"a", "c"}}, nodeB.routed)
	assert.Equal(t, [][]string{{"b"}}, pyB.routed)
	assert.Equal(t, manifest.Routers{"node": "router-node.zip", "python": "router-python.zip"}, b.Manifest().Routers)

	require.NoError(t, b.BuildAPISteps(context.Background(), all[:1]))
	assert.Equal(t, manifest.Routers{"node": "router-node.zip"}, b.Manifest().Routers)
}

func TestStepArtifactPaths(t *testing.T) {
	dir := t.TempDir()
	b := builder.New(dir, filepath.Join(dir, "dist"), nil)

	s := step.New(step.Config{Name: "x"}, filepath.Join(dir, "steps", "pets", "list.step.ts"))
	p, err := b.StepArtifactPaths(s, ".js")
	require.NoError(t, err)
	assert.Equal(t, builder.ArtifactPaths{
		EntrypointPath: "steps/pets/list.step.js",
		MapPath:        "steps/pets/list.step.js.map",
		BundlePath:     "node/steps/pets/list.step.zip",
	}, p)

	outside := step.New(step.Config{Name: "y"}, filepath.Join(filepath.Dir(dir), "elsewhere.step.ts"))
	_, err = b.StepArtifactPaths(outside, ".js")
	assert.Error(t, err)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func filterPrefix(events []string, prefix string) []string {
	var out []string
	for _, e := range events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			out = append(out, e)
		}
	}
	return out
}
