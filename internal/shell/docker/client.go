package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/moby/patternmatcher/ignorefile"

	"github.com/artpar/panelship/internal/core/domain"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// DockerClient implements the Client interface using the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it automatically detects the correct socket.
func NewDockerClient(host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", "failed to create client", ErrConnectionFailed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, pingErr := cli.Ping(ctx); pingErr != nil && host == "" {
		homeDir, _ := os.UserHomeDir()
		desktop, err2 := client.NewClientWithOpts(
			client.WithHost("unix://"+homeDir+"/.docker/run/docker.sock"),
			client.WithAPIVersionNegotiation(),
		)
		if err2 == nil {
			if _, pingErr2 := desktop.Ping(ctx); pingErr2 == nil {
				cli.Close()
				return &DockerClient{cli: desktop}, nil
			}
			desktop.Close()
		}
	}

	return &DockerClient{cli: cli}, nil
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Info returns a summary of the daemon.
func (d *DockerClient) Info(ctx context.Context) (*EngineInfo, error) {
	info, err := d.cli.Info(ctx)
	if err != nil {
		return nil, NewDockerError("Info", "", "", err.Error(), ErrConnectionFailed)
	}
	return &EngineInfo{
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		Architecture:      info.Architecture,
		NCPU:              info.NCPU,
		MemTotal:          info.MemTotal,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		Images:            info.Images,
	}, nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Image Operations
// =============================================================================

// ListImages returns every local image.
func (d *DockerClient) ListImages(ctx context.Context) ([]ImageSummary, error) {
	images, err := d.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, NewDockerError("ListImages", "image", "", err.Error(), engineErr(err, err))
	}

	result := make([]ImageSummary, 0, len(images))
	for _, img := range images {
		result = append(result, toImageSummary(img, img.RepoTags))
	}
	return result, nil
}

// ListImageTags returns the local images carrying at least one tag whose
// repository is exactly base. Only matching tags are reported.
func (d *DockerClient) ListImageTags(ctx context.Context, base string) ([]ImageSummary, error) {
	if strings.TrimSpace(base) == "" {
		return nil, NewDockerError("ListImageTags", "image", "", "base name is required", ErrInvalidReference)
	}

	images, err := d.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, NewDockerError("ListImageTags", "image", base, err.Error(), engineErr(err, err))
	}
	return filterByBase(images, base), nil
}

func filterByBase(images []image.Summary, base string) []ImageSummary {
	var result []ImageSummary
	for _, img := range images {
		var tags []string
		for _, t := range img.RepoTags {
			ref, err := domain.ParseImageReference(t)
			if err != nil || ref.Base != base {
				continue
			}
			tags = append(tags, t)
		}
		if len(tags) > 0 {
			result = append(result, toImageSummary(img, tags))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func toImageSummary(img image.Summary, tags []string) ImageSummary {
	return ImageSummary{
		ID:        img.ID,
		Tags:      tags,
		CreatedAt: time.Unix(img.Created, 0).UTC(),
		SizeBytes: img.Size,
	}
}

// BuildImage builds spec.Dir and applies every tag in spec.Tags. The
// build log is returned on success; on failure the error carries the
// daemon's message and wraps ErrBuildFailed.
func (d *DockerClient) BuildImage(ctx context.Context, spec BuildSpec) (*BuildResult, error) {
	if len(spec.Tags) == 0 {
		return nil, NewDockerError("BuildImage", "image", "", "at least one tag is required", ErrInvalidReference)
	}
	tag := spec.Tags[0]

	info, err := os.Stat(spec.Dir)
	if err != nil || !info.IsDir() {
		return nil, NewDockerError("BuildImage", "image", tag, fmt.Sprintf("build context %q is not a directory", spec.Dir), ErrBuildContext)
	}

	excludes, err := readDockerignore(spec.Dir)
	if err != nil {
		return nil, NewDockerError("BuildImage", "image", tag, err.Error(), ErrBuildContext)
	}

	buildCtx, err := archive.TarWithOptions(spec.Dir, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return nil, NewDockerError("BuildImage", "image", tag, err.Error(), ErrBuildContext)
	}
	defer buildCtx.Close()

	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := d.cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        spec.Tags,
		Dockerfile:  dockerfile,
		NoCache:     spec.NoCache,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return nil, NewDockerError("BuildImage", "image", tag, err.Error(), engineErr(err, ErrBuildFailed))
	}
	defer resp.Body.Close()

	var logBuf bytes.Buffer
	var out io.Writer = &logBuf
	if spec.Output != nil {
		out = io.MultiWriter(&logBuf, spec.Output)
	}

	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return nil, NewDockerError("BuildImage", "image", tag, err.Error(), engineErr(err, ErrBuildFailed))
	}

	return &BuildResult{Log: logBuf.String()}, nil
}

// readDockerignore returns the exclusion patterns from dir/.dockerignore,
// or nil when the file does not exist.
func readDockerignore(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	return ignorefile.ReadAll(f)
}

// engineErr returns ErrConnectionFailed when err means the daemon could not
// be reached, and fallback otherwise.
func engineErr(err, fallback error) error {
	if client.IsErrConnectionFailed(err) {
		return ErrConnectionFailed
	}
	return fallback
}

// SaveImage writes ref as a tar archive at dest.
func (d *DockerClient) SaveImage(ctx context.Context, ref, dest string) error {
	reader, err := d.cli.ImageSave(ctx, []string{ref})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("SaveImage", "image", ref, "image not found", ErrImageNotFound)
		}
		return NewDockerError("SaveImage", "image", ref, err.Error(), engineErr(err, ErrSaveFailed))
	}
	defer reader.Close()

	f, err := os.Create(dest)
	if err != nil {
		return NewDockerError("SaveImage", "image", ref, err.Error(), engineErr(err, ErrSaveFailed))
	}

	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(dest)
		return NewDockerError("SaveImage", "image", ref, err.Error(), engineErr(err, ErrSaveFailed))
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return NewDockerError("SaveImage", "image", ref, err.Error(), engineErr(err, ErrSaveFailed))
	}
	return nil
}

// PullImage pulls an image from the registry.
func (d *DockerClient) PullImage(ctx context.Context, ref string) error {
	reader, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "not found") ||
			strings.Contains(errStr, "manifest unknown") ||
			strings.Contains(errStr, "repository does not exist") ||
			strings.Contains(errStr, "pull access denied") {
			return NewDockerError("PullImage", "image", ref, "image not found", ErrImageNotFound)
		}
		return NewDockerError("PullImage", "image", ref, err.Error(), engineErr(err, ErrImagePullFailed))
	}
	defer reader.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil); err != nil {
		return NewDockerError("PullImage", "image", ref, err.Error(), engineErr(err, ErrImagePullFailed))
	}
	return nil
}

// RemoveImage removes a local image by ID or reference.
func (d *DockerClient) RemoveImage(ctx context.Context, id string, force bool) error {
	_, err := d.cli.ImageRemove(ctx, id, image.RemoveOptions{Force: force, PruneChildren: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveImage", "image", id, "image not found", ErrImageNotFound)
		}
		if strings.Contains(err.Error(), "conflict") {
			return NewDockerError("RemoveImage", "image", id, "image is in use", ErrImageInUse)
		}
		return NewDockerError("RemoveImage", "image", id, err.Error(), engineErr(err, err))
	}
	return nil
}

// PruneImages removes dangling images.
func (d *DockerClient) PruneImages(ctx context.Context) (*PruneReport, error) {
	report, err := d.cli.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
	if err != nil {
		return nil, NewDockerError("PruneImages", "image", "", err.Error(), engineErr(err, err))
	}

	result := &PruneReport{SpaceReclaimed: report.SpaceReclaimed}
	for _, del := range report.ImagesDeleted {
		if del.Deleted != "" {
			result.Deleted = append(result.Deleted, del.Deleted)
		}
	}
	return result, nil
}

// =============================================================================
// Container Operations
// =============================================================================

// ListContainers returns local containers; stopped ones only when all is set.
func (d *DockerClient) ListContainers(ctx context.Context, all bool) ([]ContainerInfo, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, NewDockerError("ListContainers", "container", "", err.Error(), engineErr(err, err))
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, ContainerInfo{
			ID:        c.ID,
			Name:      name,
			Image:     c.Image,
			State:     c.State,
			Status:    c.Status,
			CreatedAt: time.Unix(c.Created, 0).UTC(),
			Ports:     formatPorts(c.Ports),
			Labels:    c.Labels,
		})
	}
	return result, nil
}

// formatPorts renders published ports the way `docker ps` does.
func formatPorts(ports []container.Port) []string {
	var out []string
	for _, p := range ports {
		port, err := nat.NewPort(p.Type, strconv.Itoa(int(p.PrivatePort)))
		if err != nil {
			continue
		}
		if p.PublicPort == 0 {
			out = append(out, string(port))
			continue
		}
		ip := p.IP
		if ip == "" {
			ip = "0.0.0.0"
		}
		out = append(out, fmt.Sprintf("%s:%d->%s", ip, p.PublicPort, port))
	}
	sort.Strings(out)
	return out
}

// StartContainer starts a stopped container.
func (d *DockerClient) StartContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StartContainer", "container", id, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("StartContainer", "container", id, err.Error(), engineErr(err, err))
	}
	return nil
}

// StopContainer stops a running container.
func (d *DockerClient) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	if err := d.cli.ContainerStop(ctx, id, stopOptions); err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StopContainer", "container", id, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("StopContainer", "container", id, err.Error(), engineErr(err, err))
	}
	return nil
}

// RemoveContainer removes a container.
func (d *DockerClient) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveContainer", "container", id, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("RemoveContainer", "container", id, err.Error(), engineErr(err, err))
	}
	return nil
}

// ContainerLogs returns the last tail lines of a container's output.
func (d *DockerClient) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	inspect, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", NewDockerError("ContainerLogs", "container", id, "container not found", ErrContainerNotFound)
		}
		return "", NewDockerError("ContainerLogs", "container", id, err.Error(), engineErr(err, err))
	}

	if tail <= 0 {
		tail = 100
	}
	reader, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", NewDockerError("ContainerLogs", "container", id, err.Error(), engineErr(err, err))
	}
	defer reader.Close()

	var buf bytes.Buffer
	if inspect.Config != nil && inspect.Config.Tty {
		_, err = io.Copy(&buf, reader)
	} else {
		_, err = stdcopy.StdCopy(&buf, &buf, reader)
	}
	if err != nil {
		return "", NewDockerError("ContainerLogs", "container", id, err.Error(), engineErr(err, err))
	}
	return buf.String(), nil
}

var _ Client = (*DockerClient)(nil)
