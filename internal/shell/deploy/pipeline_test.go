package deploy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/docker"
	"github.com/artpar/panelship/internal/shell/onepanel"
	"github.com/artpar/panelship/internal/shell/onepanel/onepaneltest"
	"github.com/artpar/panelship/internal/shell/store"
	"github.com/artpar/panelship/internal/shell/workers"
)

// =============================================================================
// Test Helpers
// =============================================================================

const stackPath = "/x/docker-compose.yml"

type fakeEngine struct {
	mu       sync.Mutex
	images   map[string][]docker.ImageSummary
	lists    int
	builds   []docker.BuildSpec
	saved    []string
	buildErr error
	saveErr  error
	listErr  error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{images: map[string][]docker.ImageSummary{}}
}

func (e *fakeEngine) withTags(base string, tags ...string) *fakeEngine {
	e.images[base] = append(e.images[base], docker.ImageSummary{ID: "sha256:" + base, Tags: tags})
	return e
}

func (e *fakeEngine) ListImageTags(ctx context.Context, base string) ([]docker.ImageSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lists++
	if e.listErr != nil {
		return nil, e.listErr
	}
	return e.images[base], nil
}

func (e *fakeEngine) BuildImage(ctx context.Context, spec docker.BuildSpec) (*docker.BuildResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds = append(e.builds, spec)
	if e.buildErr != nil {
		return nil, e.buildErr
	}
	return &docker.BuildResult{Log: "Successfully built"}, nil
}

func (e *fakeEngine) SaveImage(ctx context.Context, ref, dest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saved = append(e.saved, ref)
	if e.saveErr != nil {
		return e.saveErr
	}
	return os.WriteFile(dest, []byte("archive of "+ref), 0o644)
}

func (e *fakeEngine) calls() (lists, builds int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lists, len(e.builds)
}

type fixture struct {
	t        *testing.T
	engine   *fakeEngine
	store    *store.SQLiteStore
	panel    *onepaneltest.Panel
	server   *domain.RemoteHost
	tempDir  string
	pipeline *Pipeline
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	panel := onepaneltest.New(t, "secret")
	f := &fixture{
		t:       t,
		engine:  newFakeEngine(),
		store:   s,
		panel:   panel,
		tempDir: t.TempDir(),
	}
	f.server = f.addServer("H", panel)
	f.pipeline = NewPipeline(f.engine, s, OnePanelRemotes(onepanel.Factory{Logger: quietLogger()}),
		Config{TempDir: f.tempDir}, nil, quietLogger())
	return f
}

func (f *fixture) addServer(name string, panel *onepaneltest.Panel) *domain.RemoteHost {
	f.t.Helper()
	h := panel.Host(0, name)
	server, err := domain.NewRemoteHost(name, h.Host, h.Port, h.Credential)
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.CreateServer(context.Background(), server))
	return server
}

// addProject registers a project directory named name targeting the
// fixture's server and stackPath.
func (f *fixture) addProject(name string) *domain.Project {
	f.t.Helper()
	project, err := domain.NewProject(filepath.Join(f.t.TempDir(), name))
	require.NoError(f.t, err)
	project.DefaultServerID = &f.server.ID
	project.DefaultComposePath = stackPath
	require.NoError(f.t, f.store.CreateProject(context.Background(), project))
	return project
}

func (f *fixture) assertNoArtifacts() {
	f.t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(f.t, err)
	assert.Empty(f.t, entries, "temporary archive left behind")
}

// =============================================================================
// End-to-end
// =============================================================================

func TestDeploy_Success(t *testing.T) {
	f := newFixture(t)
	f.engine.withTags("svc", "svc:v1.0.0")
	f.panel.AddStack("svcstack", stackPath, "services:\n  svc:\n    image: svc:v1.0.0\n")
	project := f.addProject("svc")

	version, err := f.pipeline.Deploy(context.Background(), project.Path)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.1", version)

	assert.Equal(t, "services:\n  svc:\n    image: svc:v1.0.1\n", f.panel.File(stackPath))

	loaded, stackOps, _ := f.panel.Snapshot()
	require.Len(t, stackOps, 1)
	assert.Equal(t, onepaneltest.StackOp{Name: "svcstack", Path: stackPath, Operation: "up"}, stackOps[0])
	require.Len(t, loaded, 1)
	assert.True(t, strings.HasPrefix(loaded[0], onepanel.DefaultUploadDir+"/svc_v1.0.1_"), loaded[0])

	require.Len(t, f.engine.builds, 1)
	assert.Equal(t, project.Path, f.engine.builds[0].Dir)
	assert.Equal(t, []string{"svc:v1.0.1", "svc:latest"}, f.engine.builds[0].Tags)
	assert.Equal(t, []string{"svc:v1.0.1"}, f.engine.saved)

	f.assertNoArtifacts()
}

func TestDeploy_StageOrder(t *testing.T) {
	f := newFixture(t)
	f.panel.AddStack("svcstack", stackPath, "services:\n  svc:\n    image: svc:v1.0.0\n")
	project := f.addProject("svc")

	_, err := f.pipeline.Deploy(context.Background(), project.Path)
	require.NoError(t, err)

	_, _, requests := f.panel.Snapshot()
	assert.Equal(t, []string{
		"/files/upload",
		"/containers/image/load",
		"/containers/compose/search",
		"/files/content",
		"/files/save",
		"/containers/compose/operate",
	}, requests)
}

func TestRun_Result(t *testing.T) {
	f := newFixture(t)
	f.panel.AddStack("svcstack", stackPath, "services:\n  a:\n    image: svc:1\n  b:\n    image: svc:1\n")
	project := f.addProject("svc")

	res, err := f.pipeline.Run(context.Background(), project.Path)
	require.NoError(t, err)
	assert.Equal(t, "svc", res.Image)
	assert.Equal(t, "v1.0.0", res.Version)
	assert.Equal(t, "H", res.ServerName)
	assert.Equal(t, f.server.ID, res.ServerID)
	assert.Equal(t, "svcstack", res.StackName)
	assert.Equal(t, 2, res.References)
	assert.Equal(t, "Successfully built", res.BuildLog)
	assert.Equal(t, "services:\n  a:\n    image: svc:v1.0.0\n  b:\n    image: svc:v1.0.0\n", f.panel.File(stackPath))
}

func TestDeploy_IntegerTags(t *testing.T) {
	f := newFixture(t)
	f.engine.withTags("svc", "svc:3", "svc:latest").withTags("svc", "svc:7")
	f.panel.AddStack("svcstack", stackPath, "services:\n  svc:\n    image: svc:7\n")
	project := f.addProject("svc")

	version, err := f.pipeline.Deploy(context.Background(), project.Path)
	require.NoError(t, err)
	assert.Equal(t, "8", version)
	assert.Equal(t, "services:\n  svc:\n    image: svc:8\n", f.panel.File(stackPath))
}

func TestDeploy_BaseNameOverride(t *testing.T) {
	f := newFixture(t)
	f.panel.AddStack("stack", stackPath, "services:\n  web:\n    image: custom:v2.3.4\n")
	f.engine.withTags("custom", "custom:v2.3.4")
	project := f.addProject("Checkout-Dir")
	project.ImageBaseName = "custom"
	require.NoError(t, f.store.UpdateProject(context.Background(), project))

	version, err := f.pipeline.Deploy(context.Background(), project.Path)
	require.NoError(t, err)
	assert.Equal(t, "v2.3.5", version)
	assert.Equal(t, []string{"custom:v2.3.5", "custom:latest"}, f.engine.builds[0].Tags)
}

func TestDeploy_NoReferenceStillRestarts(t *testing.T) {
	f := newFixture(t)
	doc := "services:\n  db:\n    image: postgres:16\n"
	f.panel.AddStack("svcstack", stackPath, doc)
	project := f.addProject("svc")

	res, err := f.pipeline.Run(context.Background(), project.Path)
	require.NoError(t, err)
	assert.Equal(t, 0, res.References)
	assert.Equal(t, doc, f.panel.File(stackPath))

	_, stackOps, _ := f.panel.Snapshot()
	assert.Len(t, stackOps, 1)
}

// =============================================================================
// Preconditions
// =============================================================================

func TestDeploy_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture) string
	}{
		{
			name: "unregistered project",
			mutate: func(f *fixture) string {
				return "/nowhere/svc"
			},
		},
		{
			name: "empty path",
			mutate: func(f *fixture) string {
				return "  "
			},
		},
		{
			name: "no host",
			mutate: func(f *fixture) string {
				p := f.addProject("svc")
				p.DefaultServerID = nil
				require.NoError(f.t, f.store.UpdateProject(context.Background(), p))
				return p.Path
			},
		},
		{
			name: "no stack path",
			mutate: func(f *fixture) string {
				p := f.addProject("svc")
				p.DefaultComposePath = ""
				require.NoError(f.t, f.store.UpdateProject(context.Background(), p))
				return p.Path
			},
		},
		{
			name: "host deleted",
			mutate: func(f *fixture) string {
				p := f.addProject("svc")
				require.NoError(f.t, f.store.DeleteServer(context.Background(), f.server.ID))
				return p.Path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			path := tt.mutate(f)

			_, err := f.pipeline.Deploy(context.Background(), path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Equal(t, KindConfiguration, Kind(err))
			assert.Equal(t, StageConfigure, StageOf(err))

			lists, builds := f.engine.calls()
			assert.Zero(t, lists, "engine touched before preconditions passed")
			assert.Zero(t, builds)
			_, _, requests := f.panel.Snapshot()
			assert.Empty(t, requests)
		})
	}
}

func TestDeploy_UncleanPath(t *testing.T) {
	f := newFixture(t)
	f.panel.AddStack("svcstack", stackPath, "services:\n  svc:\n    image: svc:v1.0.0\n")
	project := f.addProject("svc")

	_, err := f.pipeline.Deploy(context.Background(), project.Path+"/")
	assert.NoError(t, err)
}

// =============================================================================
// Stage Failures
// =============================================================================

func TestDeploy_StackNotFound(t *testing.T) {
	f := newFixture(t)
	f.engine.withTags("svc", "svc:v1.0.0")
	f.panel.AddStack("other", "/y/docker-compose.yml", "services:\n  svc:\n    image: svc:v1.0.0\n")
	project := f.addProject("svc")

	_, err := f.pipeline.Deploy(context.Background(), project.Path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStackNotFound)
	assert.Equal(t, KindNotFound, Kind(err))
	assert.Equal(t, StageResolveStack, StageOf(err))

	// The image was loaded before the failure; the stack is untouched.
	loaded, stackOps, _ := f.panel.Snapshot()
	assert.Len(t, loaded, 1)
	assert.Empty(t, stackOps)
	assert.Equal(t, "services:\n  svc:\n    image: svc:v1.0.0\n", f.panel.File("/y/docker-compose.yml"))

	f.assertNoArtifacts()
}

func TestDeploy_EngineFailures(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		f := newFixture(t)
		f.engine.listErr = docker.NewDockerError("ListImageTags", "image", "svc", "daemon down", docker.ErrConnectionFailed)
		project := f.addProject("svc")

		_, err := f.pipeline.Deploy(context.Background(), project.Path)
		assert.Equal(t, StageInferVersion, StageOf(err))
		assert.Equal(t, KindTransport, Kind(err))
		_, builds := f.engine.calls()
		assert.Zero(t, builds)
	})

	t.Run("build", func(t *testing.T) {
		f := newFixture(t)
		f.engine.buildErr = docker.NewDockerError("BuildImage", "image", "svc:v1.0.0", "step 2 failed", docker.ErrBuildFailed)
		project := f.addProject("svc")

		_, err := f.pipeline.Deploy(context.Background(), project.Path)
		assert.Equal(t, StageBuild, StageOf(err))
		assert.Equal(t, KindEngine, Kind(err))
		assert.ErrorIs(t, err, docker.ErrBuildFailed)
		assert.Empty(t, f.engine.saved)
		f.assertNoArtifacts()
	})

	t.Run("save", func(t *testing.T) {
		f := newFixture(t)
		f.engine.saveErr = docker.NewDockerError("SaveImage", "image", "svc:v1.0.0", "no space", docker.ErrSaveFailed)
		project := f.addProject("svc")

		_, err := f.pipeline.Deploy(context.Background(), project.Path)
		assert.Equal(t, StagePackage, StageOf(err))
		assert.Equal(t, KindEngine, Kind(err))
		_, _, requests := f.panel.Snapshot()
		assert.Empty(t, requests)
		f.assertNoArtifacts()
	})
}

func TestPipeline_NoEngine(t *testing.T) {
	f := newFixture(t)
	project := f.addProject("svc")
	p := NewPipeline(nil, f.store, OnePanelRemotes(onepanel.Factory{Logger: quietLogger()}),
		Config{TempDir: f.tempDir}, nil, quietLogger())

	_, err := p.Run(context.Background(), project.Path)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Equal(t, StageConfigure, StageOf(err))

	_, err = p.Build(context.Background(), project.Path, "")
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	_, err = p.PushImage(context.Background(), f.server.ID, "svc:v1.0.0")
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Equal(t, KindTransport, Kind(err))

	_, _, requests := f.panel.Snapshot()
	assert.Empty(t, requests)
}

func TestDeploy_ArtifactDirMissing(t *testing.T) {
	f := newFixture(t)
	project := f.addProject("svc")
	f.pipeline.config.TempDir = filepath.Join(f.tempDir, "missing")

	_, err := f.pipeline.Deploy(context.Background(), project.Path)
	assert.Equal(t, StagePackage, StageOf(err))
	assert.Equal(t, KindIO, Kind(err))
	assert.Empty(t, f.engine.saved)
}

func TestDeploy_RemoteFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(p *onepaneltest.Panel)
		stage  Stage
		kind   ErrorKind
		loaded int
	}{
		{
			name:  "upload unauthorized",
			setup: func(p *onepaneltest.Panel) { p.FailStatus("/files/upload", 401) },
			stage: StageTransfer,
			kind:  KindAuth,
		},
		{
			name:  "upload api error",
			setup: func(p *onepaneltest.Panel) { p.FailWith("/files/upload", 500, "disk full") },
			stage: StageTransfer,
			kind:  KindAPI,
		},
		{
			name:  "load api error",
			setup: func(p *onepaneltest.Panel) { p.FailWith("/containers/image/load", 500, "load failed") },
			stage: StageActivate,
			kind:  KindAPI,
		},
		{
			name:   "stack listing bad gateway",
			setup:  func(p *onepaneltest.Panel) { p.FailStatus("/containers/compose/search", 502) },
			stage:  StageResolveStack,
			kind:   KindAPI,
			loaded: 1,
		},
		{
			name:   "read api error",
			setup:  func(p *onepaneltest.Panel) { p.FailWith("/files/content", 500, "permission denied") },
			stage:  StageFetchDefinition,
			kind:   KindAPI,
			loaded: 1,
		},
		{
			name:   "save api error",
			setup:  func(p *onepaneltest.Panel) { p.FailWith("/files/save", 500, "read-only") },
			stage:  StageWriteBack,
			kind:   KindAPI,
			loaded: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.panel.AddStack("svcstack", stackPath, "services:\n  svc:\n    image: svc:v1.0.0\n")
			tt.setup(f.panel)
			project := f.addProject("svc")

			_, err := f.pipeline.Deploy(context.Background(), project.Path)
			require.Error(t, err)
			assert.Equal(t, tt.stage, StageOf(err))
			assert.Equal(t, tt.kind, Kind(err))

			loaded, stackOps, _ := f.panel.Snapshot()
			assert.Len(t, loaded, tt.loaded)
			assert.Empty(t, stackOps)
			f.assertNoArtifacts()
		})
	}
}

func TestDeploy_RestartFailureAfterWriteBack(t *testing.T) {
	f := newFixture(t)
	f.panel.AddStack("svcstack", stackPath, "services:\n  svc:\n    image: svc:v1.0.0\n")
	f.panel.FailWith("/containers/compose/operate", 500, "compose up failed")
	f.engine.withTags("svc", "svc:v1.0.0")
	project := f.addProject("svc")

	_, err := f.pipeline.Deploy(context.Background(), project.Path)
	require.Error(t, err)
	assert.Equal(t, StageRestart, StageOf(err))

	var apiErr *onepanel.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "compose up failed", apiErr.Message)

	// Not rolled back
	assert.Equal(t, "services:\n  svc:\n    image: svc:v1.0.1\n", f.panel.File(stackPath))
	f.assertNoArtifacts()
}

func TestDeploy_WrongCredential(t *testing.T) {
	f := newFixture(t)
	f.server.Credential = "wrong"
	require.NoError(t, f.store.UpdateServer(context.Background(), f.server))
	project := f.addProject("svc")

	_, err := f.pipeline.Deploy(context.Background(), project.Path)
	assert.Equal(t, KindAuth, Kind(err))
	assert.ErrorIs(t, err, onepanel.ErrUnauthorized)
	f.assertNoArtifacts()
}

func TestDeploy_HostUnreachable(t *testing.T) {
	f := newFixture(t)
	project := f.addProject("svc")
	f.panel.Server.Close()

	_, err := f.pipeline.Deploy(context.Background(), project.Path)
	assert.Equal(t, StageTransfer, StageOf(err))
	assert.Equal(t, KindTransport, Kind(err))
	f.assertNoArtifacts()
}

// =============================================================================
// Concurrency
// =============================================================================

func TestDeploy_ConcurrentRuns(t *testing.T) {
	f := newFixture(t)
	f.panel.AddStack("alpha", "/stacks/alpha.yml", "services:\n  a:\n    image: alpha:v1.0.0\n")
	f.panel.AddStack("beta", "/stacks/beta.yml", "services:\n  b:\n    image: beta:v3.1.0\n")
	f.engine.withTags("alpha", "alpha:v1.0.0").withTags("beta", "beta:v3.1.0")

	alpha := f.addProject("alpha")
	alpha.DefaultComposePath = "/stacks/alpha.yml"
	require.NoError(t, f.store.UpdateProject(context.Background(), alpha))
	beta := f.addProject("beta")
	beta.DefaultComposePath = "/stacks/beta.yml"
	require.NoError(t, f.store.UpdateProject(context.Background(), beta))

	var wg sync.WaitGroup
	versions := make([]string, 2)
	errs := make([]error, 2)
	for i, p := range []*domain.Project{alpha, beta} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			versions[i], errs[i] = f.pipeline.Deploy(context.Background(), p.Path)
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "v1.0.1", versions[0])
	assert.Equal(t, "v3.1.1", versions[1])
	assert.Contains(t, f.panel.File("/stacks/alpha.yml"), "alpha:v1.0.1")
	assert.Contains(t, f.panel.File("/stacks/beta.yml"), "beta:v3.1.1")
	f.assertNoArtifacts()
}

// =============================================================================
// Background Runs
// =============================================================================

func TestDeployAsync_RecordsNotification(t *testing.T) {
	f := newFixture(t)
	f.panel.AddStack("svcstack", stackPath, "services:\n  svc:\n    image: svc:v1.0.0\n")
	f.engine.withTags("svc", "svc:v1.0.0")
	project := f.addProject("svc")

	dispatcher := workers.NewDispatcher(workers.DefaultDispatcherConfig(), nil, quietLogger())
	dispatcher.Start()
	defer dispatcher.Stop()

	bg := NewBackground(f.pipeline, dispatcher, f.store, quietLogger())
	handle, err := bg.DeployAsync(project.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, handle.ID)

	var notes []domain.Notification
	require.Eventually(t, func() bool {
		notes, err = f.store.ListNotifications(context.Background(), store.DefaultListOptions())
		return err == nil && len(notes) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.NotificationTypeDeploy, notes[0].Type)
	assert.Equal(t, domain.NotificationSuccess, notes[0].Status)
	assert.Equal(t, "H", notes[0].ServerName)
	assert.Contains(t, notes[0].Title, "svc:v1.0.1")
	assert.Equal(t, "services:\n  svc:\n    image: svc:v1.0.1\n", f.panel.File(stackPath))
}

func TestDeployAsync_FailureRecorded(t *testing.T) {
	f := newFixture(t)

	dispatcher := workers.NewDispatcher(workers.DefaultDispatcherConfig(), nil, quietLogger())
	dispatcher.Start()

	bg := NewBackground(f.pipeline, dispatcher, f.store, quietLogger())
	_, err := bg.DeployAsync("/not/registered")
	require.NoError(t, err, "scheduling succeeds even though the run will fail")

	dispatcher.Stop() // drains the queue

	notes, err := f.store.ListNotifications(context.Background(), store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationError, notes[0].Status)
	assert.Contains(t, notes[0].Detail, "not registered")
}

func TestDeployAsync_NotRunning(t *testing.T) {
	f := newFixture(t)
	dispatcher := workers.NewDispatcher(workers.DefaultDispatcherConfig(), nil, quietLogger())

	bg := NewBackground(f.pipeline, dispatcher, f.store, quietLogger())
	_, err := bg.DeployAsync("/src/app")
	assert.ErrorIs(t, err, workers.ErrDispatcherStopped)
}

func TestNotificationFor(t *testing.T) {
	res := &Result{ProjectPath: "/src/svc", Image: "svc", Version: "v1.0.1", ServerName: "H", StackName: "s", Duration: 1500 * time.Millisecond}

	ok := NotificationFor(res, nil)
	assert.Equal(t, "Deployed svc:v1.0.1 to H", ok.Title)
	assert.Equal(t, int64(1500), ok.DurationMs)

	failed := NotificationFor(&Result{ProjectPath: "/src/svc"}, errors.New("boom"))
	assert.Equal(t, "Deploy of /src/svc failed", failed.Title)
	assert.Equal(t, "boom", failed.Detail)
	assert.Equal(t, domain.NotificationError, failed.Status)
}
