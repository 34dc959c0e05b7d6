package deploy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/specialistvlad/stepship/internal/builder"
	"github.com/specialistvlad/stepship/internal/builder/node"
	"github.com/specialistvlad/stepship/internal/cloudapi"
	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/specialistvlad/stepship/internal/step"
	"github.com/specialistvlad/stepship/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controlPlane is an httptest stand-in for the control plane and its object
// store.
type controlPlane struct {
	srv *httptest.Server

	mu        sync.Mutex
	uploaded  map[string]int
	started   map[string]any
	createErr int
	putErr    bool
}

func newControlPlane(t *testing.T) *controlPlane {
	cp := &controlPlane{uploaded: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/deployments", func(w http.ResponseWriter, r *http.Request) {
		if cp.createErr != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(cp.createErr)
			w.Write([]byte(`{"message":"invalid api key"}`))
			return
		}
		writeJSON(w, cloudapi.CreateDeploymentResult{
			DeploymentID:    "d-1",
			DeploymentToken: "tok",
			EnvironmentName: "prod",
			ProjectName:     "pets",
			VersionName:     "v1",
		})
	})
	mux.HandleFunc("POST /v1/deployments/upload", func(w http.ResponseWriter, r *http.Request) {
		var req cloudapi.UploadRequest
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, cloudapi.UploadResult{FileInfo: cloudapi.FileInfo{PresignedURL: cp.srv.URL + "/bucket/" + req.OriginalName}})
	})
	mux.HandleFunc("PUT /bucket/", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if cp.putErr {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		cp.mu.Lock()
		cp.uploaded[strings.TrimPrefix(r.URL.Path, "/bucket/")] = len(data)
		cp.mu.Unlock()
	})
	mux.HandleFunc("POST /v1/deployments/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		cp.mu.Lock()
		cp.started = body
		cp.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	cp.srv = httptest.NewServer(mux)
	t.Cleanup(cp.srv.Close)
	return cp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func buildProject(t *testing.T) (string, *builder.Builder) {
	t.Helper()
	dir := testutil.WriteProject(t, map[string]string{
		"steps/pets.step.ts": `
			export const config = { type: 'api', name: 'ListPets', method: 'GET', path: '/pets' }
			export const handler = async () => ({ status: 200, body: [] })
		`,
		"steps/notify.step.ts": `
			export const config = { type: 'event', name: 'Notify', subscribes: ['pet.created'] }
			export const handler = async () => {}
		`,
	})
	at := func(p string) string { return filepath.Join(dir, filepath.FromSlash(p)) }
	dist := filepath.Join(dir, "dist")

	b, err := builder.Run(context.Background(), builder.Options{
		ProjectDir: dir,
		DistDir:    dist,
		Steps: []*step.Step{
			step.New(step.Config{Type: step.TypeAPI, Name: "ListPets", Method: "GET", Path: "/pets"}, at("steps/pets.step.ts")),
			step.New(step.Config{Type: step.TypeEvent, Name: "Notify", Subscribes: []string{"pet.created"}}, at("steps/notify.step.ts")),
		},
		Streams:  []step.Stream{{Name: "pets", StorageType: step.StorageDefault}},
		Builders: map[step.Language]builder.Factory{step.LanguageNode: node.Factory},
	})
	require.NoError(t, err)
	return dist, b
}

func rolloutFeed(final status.DeployData) *fakeFeed {
	return &fakeFeed{pushed: []status.DeployData{
		{ID: "d-1", Status: status.Pending},
		{ID: "d-1", Status: status.Progress, Endpoints: []status.Endpoint{{Method: "GET", Path: "/pets", StepName: "ListPets", Status: status.Progress}}},
		final,
	}}
}

func newPipeline(t *testing.T, cp *controlPlane, feed Feed, rec *testutil.Recorder) *Pipeline {
	api := cloudapi.New(cp.srv.URL)
	t.Cleanup(func() { api.Close() })
	tr, _ := newTracker(feed)
	return &Pipeline{API: api, HTTP: cp.srv.Client(), Tracker: tr, Listener: rec}
}

func TestPipeline_BuildAndDeploy(t *testing.T) {
	dist, b := buildProject(t)
	cp := newControlPlane(t)
	rec := &testutil.Recorder{}
	feed := rolloutFeed(status.DeployData{
		ID:        "d-1",
		Status:    status.Completed,
		Endpoints: []status.Endpoint{{Method: "GET", Path: "/pets", StepName: "ListPets", Status: status.Completed}},
		Events:    []status.EventListener{{Topics: []string{"pet.created"}, StepName: "Notify", Status: status.Completed}},
		Outputs:   map[string]string{"ApiGatewayUrl": "https://pets.example"},
	})

	res, err := newPipeline(t, cp, feed, rec).Run(context.Background(), Request{
		APIKey:      "key",
		VersionName: "v1",
		EnvVars:     map[string]string{"DB_URL": "postgres://"},
		DistDir:     dist,
		Manifest:    b.Manifest(),
	})
	require.NoError(t, err)
	assert.Equal(t, "d-1", res.Deployment.DeploymentID)
	assert.Equal(t, status.Completed, res.Final.Status)

	for _, artifact := range b.Manifest().Artifacts() {
		assert.Positive(t, cp.uploaded[artifact], artifact)
	}
	assert.Len(t, cp.uploaded, 3, "two bundles and the node router")

	assert.Equal(t, "tok", cp.started["deploymentToken"])
	assert.Equal(t, map[string]any{"DB_URL": "postgres://"}, cp.started["envVars"])
	assert.Equal(t, map[string]any{"node": "router-node.zip"}, cp.started["routers"])
	assert.Contains(t, cp.started["steps"], "node/steps/pets.step.zip")

	events := rec.Events()
	startAt := indexOf(events, "deploy-start")
	require.GreaterOrEqual(t, startAt, 0)
	assert.Equal(t, []string{
		"deploy-progress pending",
		"deploy-progress progress",
		"deploy-progress completed",
		"deploy-end",
	}, events[startAt+1:])
	assert.Less(t, indexOf(events, "stage uploading-artifacts success"), startAt)
	assert.Equal(t, map[string]string{"ApiGatewayUrl": "https://pets.example"}, rec.Output())
}

func TestPipeline_CreateErrorIsReported(t *testing.T) {
	dist, b := buildProject(t)
	cp := newControlPlane(t)
	cp.createErr = http.StatusUnauthorized
	rec := &testutil.Recorder{}

	_, err := newPipeline(t, cp, &fakeFeed{}, rec).Run(context.Background(), Request{APIKey: "bad", DistDir: dist, Manifest: b.Manifest()})
	require.Error(t, err)
	assert.Equal(t, "invalid api key", UserMessage(err))
	assert.Equal(t, []string{"deploy-error invalid api key"}, filter(rec.Events(), "deploy-"))
	assert.Empty(t, cp.uploaded)
}

func TestPipeline_UploadFailureStopsBeforeStart(t *testing.T) {
	dist, b := buildProject(t)
	cp := newControlPlane(t)
	cp.putErr = true
	rec := &testutil.Recorder{}

	_, err := newPipeline(t, cp, &fakeFeed{}, rec).Run(context.Background(), Request{APIKey: "key", DistDir: dist, Manifest: b.Manifest()})
	require.Error(t, err)
	assert.Nil(t, cp.started)
	assert.Equal(t, 1, rec.Count("deploy-error"))
	assert.GreaterOrEqual(t, rec.Count("step-upload-error")+rec.Count("route-upload-error"), 1)
	assert.Zero(t, rec.Count("deploy-start"))
}

func TestPipeline_FailedDeploymentReportedOnce(t *testing.T) {
	dist, b := buildProject(t)
	cp := newControlPlane(t)
	rec := &testutil.Recorder{}
	feed := rolloutFeed(status.DeployData{ID: "d-1", Status: status.Failed, Error: "image pull failed"})

	_, err := newPipeline(t, cp, feed, rec).Run(context.Background(), Request{APIKey: "key", DistDir: dist, Manifest: b.Manifest()})
	require.ErrorIs(t, err, ErrDeploymentFailed)
	assert.Equal(t, []string{"deploy-error image pull failed"}, filter(rec.Events(), "deploy-error"))
	assert.Equal(t, map[string]any{}, cp.started["envVars"])
}

func indexOf(events []string, e string) int {
	for i, v := range events {
		if v == e {
			return i
		}
	}
	return -1
}

func filter(events []string, prefix string) []string {
	var out []string
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}
