package docker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	cli, err := NewDockerClient("")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

// Test image name prefix to identify test images
const testPrefix = "panelship-test-"

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// =============================================================================
// Pure helpers
// =============================================================================

func TestFilterByBase(t *testing.T) {
	images := []image.Summary{
		{ID: "sha256:a", RepoTags: []string{"myapp:v1.0.0", "myapp:latest"}, Created: 100, Size: 10},
		{ID: "sha256:b", RepoTags: []string{"myapp-worker:v1.0.0"}, Created: 200, Size: 20},
		{ID: "sha256:c", RepoTags: []string{"myapp:v1.0.1", "other:v9"}, Created: 300, Size: 30},
		{ID: "sha256:d", RepoTags: []string{"<none>:<none>"}, Created: 400},
	}

	got := filterByBase(images, "myapp")
	require.Len(t, got, 2)

	assert.Equal(t, "sha256:c", got[0].ID, "newest first")
	assert.Equal(t, []string{"myapp:v1.0.1"}, got[0].Tags)
	assert.Equal(t, int64(30), got[0].SizeBytes)
	assert.Equal(t, time.Unix(300, 0).UTC(), got[0].CreatedAt)

	assert.Equal(t, []string{"myapp:v1.0.0", "myapp:latest"}, got[1].Tags)
}

func TestFilterByBase_None(t *testing.T) {
	images := []image.Summary{{ID: "x", RepoTags: []string{"other:1"}}}
	assert.Empty(t, filterByBase(images, "myapp"))
}

func TestFormatPorts(t *testing.T) {
	ports := []container.Port{
		{PrivatePort: 80, PublicPort: 8080, Type: "tcp"},
		{IP: "127.0.0.1", PrivatePort: 53, PublicPort: 5353, Type: "udp"},
		{PrivatePort: 9000, Type: "tcp"},
	}

	assert.Equal(t, []string{
		"0.0.0.0:8080->80/tcp",
		"127.0.0.1:5353->53/udp",
		"9000/tcp",
	}, formatPorts(ports))
}

func TestReadDockerignore(t *testing.T) {
	dir := t.TempDir()

	patterns, err := readDockerignore(dir)
	require.NoError(t, err)
	assert.Nil(t, patterns)

	writeFile(t, dir, ".dockerignore", "# comment\n\nnode_modules\n/target/\n!target/keep.txt\n  .git  \n")
	patterns, err = readDockerignore(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"node_modules", "target", "!target/keep.txt", ".git"}, patterns)
}

func TestDockerError(t *testing.T) {
	err := NewDockerError("BuildImage", "image", "app:v1", "boom", ErrBuildFailed)
	assert.Equal(t, "BuildImage image app:v1: boom", err.Error())
	assert.True(t, errors.Is(err, ErrBuildFailed))

	err = NewDockerError("Ping", "", "", "down", ErrConnectionFailed)
	assert.Equal(t, "Ping: down", err.Error())
}

func TestUnreachableDaemon_ConnectionFailed(t *testing.T) {
	cli, err := client.NewClientWithOpts(client.WithHost("tcp://127.0.0.1:1"), client.WithVersion("1.47"))
	require.NoError(t, err)
	d := &DockerClient{cli: cli}
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = d.ListImageTags(ctx, "svc")
	assert.ErrorIs(t, err, ErrConnectionFailed)

	dir := t.TempDir()
	writeFile(t, dir, "Dockerfile", "FROM scratch\n")
	_, err = d.BuildImage(ctx, BuildSpec{Dir: dir, Tags: []string{"svc:v1.0.0"}})
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrBuildFailed)

	err = d.SaveImage(ctx, "svc:v1.0.0", filepath.Join(t.TempDir(), "svc.tar"))
	assert.ErrorIs(t, err, ErrConnectionFailed)

	_, err = d.ListContainers(ctx, true)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

// =============================================================================
// Engine Tests
// =============================================================================

func TestPing_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NoError(t, cli.Ping(context.Background()))
}

func TestInfo(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	info, err := cli.Info(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, info.ServerVersion)
}

func TestBuildImage_MissingContext(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.BuildImage(context.Background(), BuildSpec{
		Dir:  filepath.Join(t.TempDir(), "missing"),
		Tags: []string{testPrefix + "missing:v1.0.0"},
	})
	assert.ErrorIs(t, err, ErrBuildContext)
}

func TestBuildImage_NoTags(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.BuildImage(context.Background(), BuildSpec{Dir: t.TempDir()})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestBuildSaveAndList(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	base := testPrefix + "build"
	dir := t.TempDir()
	writeFile(t, dir, "Dockerfile", "FROM scratch\nCOPY hello.txt /hello.txt\n")
	writeFile(t, dir, "hello.txt", "hello\n")
	writeFile(t, dir, "ignored/big.bin", "ignored")
	writeFile(t, dir, ".dockerignore", "ignored\n")

	tags := []string{base + ":v1.0.0", base + ":latest"}
	result, err := cli.BuildImage(ctx, BuildSpec{Dir: dir, Tags: tags})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Log)
	defer cli.RemoveImage(ctx, base+":v1.0.0", true)
	defer cli.RemoveImage(ctx, base+":latest", true)

	images, err := cli.ListImageTags(ctx, base)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.ElementsMatch(t, tags, images[0].Tags)

	archivePath := filepath.Join(t.TempDir(), "image.tar")
	require.NoError(t, cli.SaveImage(ctx, base+":v1.0.0", archivePath))
	st, err := os.Stat(archivePath)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(0))
}

func TestBuildImage_Failure(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	dir := t.TempDir()
	writeFile(t, dir, "Dockerfile", "FROM scratch\nCOPY missing.txt /missing.txt\n")

	_, err := cli.BuildImage(context.Background(), BuildSpec{
		Dir:  dir,
		Tags: []string{testPrefix + "broken:v1.0.0"},
	})
	assert.ErrorIs(t, err, ErrBuildFailed)
}

func TestRemoveImage_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.RemoveImage(context.Background(), testPrefix+"nope:v0", false)
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestStartContainer_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.StartContainer(context.Background(), "panelship-does-not-exist")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestContainerLogs_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.ContainerLogs(context.Background(), "panelship-does-not-exist", 10)
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestListContainers(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.ListContainers(context.Background(), true)
	assert.NoError(t, err)
}
