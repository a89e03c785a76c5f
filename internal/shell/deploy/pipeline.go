// Package deploy runs the remote deployment pipeline: build an image
// locally, ship it to a 1Panel host, and roll the project's stack onto it.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/panelship/internal/core/compose"
	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/core/version"
	"github.com/artpar/panelship/internal/shell/docker"
	"github.com/artpar/panelship/internal/shell/metrics"
	"github.com/artpar/panelship/internal/shell/onepanel"
	"github.com/artpar/panelship/internal/shell/store"
)

// =============================================================================
// Collaborators
// =============================================================================

// Engine is the local container engine.
type Engine interface {
	ListImageTags(ctx context.Context, base string) ([]docker.ImageSummary, error)
	BuildImage(ctx context.Context, spec docker.BuildSpec) (*docker.BuildResult, error)
	SaveImage(ctx context.Context, ref, dest string) error
}

// ConfigStore is the read side of the configuration store.
type ConfigStore interface {
	GetProject(ctx context.Context, path string) (*domain.Project, error)
	GetServer(ctx context.Context, id int64) (*domain.RemoteHost, error)
	ListServers(ctx context.Context) ([]domain.RemoteHost, error)
}

// Remote is the subset of the 1Panel client the pipeline drives.
type Remote interface {
	UploadFile(ctx context.Context, localPath, dir string) (string, error)
	LoadImage(ctx context.Context, remotePath string) error
	ListStacks(ctx context.Context) ([]domain.StackDescriptor, error)
	ReadFile(ctx context.Context, path string) (string, error)
	SaveFile(ctx context.Context, path, content string) error
	OperateStack(ctx context.Context, name, path string, op onepanel.StackOperation) error
}

// RemoteFactory returns a client for a stored host.
type RemoteFactory func(h domain.RemoteHost) Remote

// OnePanelRemotes adapts a onepanel.Factory to a RemoteFactory.
func OnePanelRemotes(f onepanel.Factory) RemoteFactory {
	return func(h domain.RemoteHost) Remote {
		return f.ForHost(h)
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// Config configures the pipeline.
type Config struct {
	// TempDir holds image archives while they are transferred.
	// Default: os.TempDir().
	TempDir string

	// UploadDir is the directory on the host that receives archives.
	// Default: onepanel.DefaultUploadDir.
	UploadDir string
}

// Pipeline runs deployments. It holds no per-run state, so one Pipeline
// serves concurrent runs.
type Pipeline struct {
	engine  Engine
	store   ConfigStore
	remotes RemoteFactory
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(engine Engine, s ConfigStore, remotes RemoteFactory, config Config, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if config.UploadDir == "" {
		config.UploadDir = onepanel.DefaultUploadDir
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		engine:  engine,
		store:   s,
		remotes: remotes,
		config:  config,
		metrics: m,
		logger:  logger.With("component", "deploy"),
	}
}

// Result describes a pipeline run. On failure the fields known at the
// time of failure are set.
type Result struct {
	ProjectPath string        `json:"project_path"`
	Image       string        `json:"image,omitempty"`
	Version     string        `json:"version,omitempty"`
	ServerID    int64         `json:"server_id,omitempty"`
	ServerName  string        `json:"server_name,omitempty"`
	StackName   string        `json:"stack_name,omitempty"`
	StackPath   string        `json:"stack_path,omitempty"`
	References  int           `json:"references"`
	BuildLog    string        `json:"-"`
	Duration    time.Duration `json:"duration"`
}

// Deploy runs the pipeline for the project at projectPath and returns the
// version it deployed.
func (p *Pipeline) Deploy(ctx context.Context, projectPath string) (string, error) {
	res, err := p.Run(ctx, projectPath)
	if err != nil {
		return "", err
	}
	return res.Version, nil
}

// Run runs the pipeline and returns the full result. The result is never
// nil. Errors are *StageError.
func (p *Pipeline) Run(ctx context.Context, projectPath string) (*Result, error) {
	start := time.Now()
	res := &Result{ProjectPath: projectPath}

	err := p.run(ctx, projectPath, res)
	res.Duration = time.Since(start)
	p.metrics.DeployFinished(string(Kind(err)), err)
	return res, err
}

// run is one invocation. Stages run strictly in order; the first failure
// aborts the rest.
func (p *Pipeline) run(ctx context.Context, projectPath string, res *Result) error {
	if err := p.requireEngine(); err != nil {
		return err
	}

	req, host, err := p.prepare(ctx, projectPath)
	if err != nil {
		p.logger.Warn("deploy not configured", "project", projectPath, "error", err)
		return &StageError{Stage: StageConfigure, Err: err}
	}

	res.ProjectPath = req.ProjectPath
	res.Image = req.BaseName
	res.ServerID = host.ID
	res.ServerName = host.Name
	res.StackPath = req.StackPath

	r := &run{
		pipeline:  p,
		operation: opDeploy,
		logger:    p.logger.With("project", req.ProjectPath, "image", req.BaseName, "server", host.Name),
	}
	remote := p.remotes(*host)
	r.logger.Info("deploy started", "stack_path", req.StackPath)

	// 1. Version inference
	var next string
	if err := r.stage(StageInferVersion, func() error {
		images, err := p.engine.ListImageTags(ctx, req.BaseName)
		if err != nil {
			return err
		}
		var tags []string
		for _, img := range images {
			tags = append(tags, img.Tags...)
		}
		next = version.Next(tags)
		return nil
	}); err != nil {
		return err
	}
	res.Version = next
	r.logger = r.logger.With("version", next)
	ref := req.Image(next).String()

	// 2. Build
	if err := r.stage(StageBuild, func() error {
		build, err := p.engine.BuildImage(ctx, docker.BuildSpec{
			Dir:  req.ProjectPath,
			Tags: []string{ref, req.Image("latest").String()},
		})
		if err != nil {
			return err
		}
		res.BuildLog = build.Log
		return nil
	}); err != nil {
		return err
	}

	// 3. Package. The archive is removed on every path from here on.
	var archive string
	err = r.stage(StagePackage, func() error {
		path, err := p.newArtifact(req.BaseName, next)
		if err != nil {
			return err
		}
		archive = path
		return p.engine.SaveImage(ctx, ref, path)
	})
	if archive != "" {
		defer r.removeArtifact(archive)
	}
	if err != nil {
		return err
	}

	// 4. Transfer
	var remotePath string
	if err := r.stage(StageTransfer, func() error {
		var err error
		remotePath, err = remote.UploadFile(ctx, archive, p.config.UploadDir)
		return err
	}); err != nil {
		return err
	}

	// 5. Activate image. Failures after this leave the image loaded on
	// the host with the stack unchanged.
	if err := r.stage(StageActivate, func() error {
		return remote.LoadImage(ctx, remotePath)
	}); err != nil {
		return err
	}

	// 6. Resolve stack
	var stack domain.StackDescriptor
	if err := r.stage(StageResolveStack, func() error {
		stacks, err := remote.ListStacks(ctx)
		if err != nil {
			return err
		}
		var ok bool
		if stack, ok = domain.FindStackByPath(stacks, req.StackPath); !ok {
			return fmt.Errorf("%w: %s", ErrStackNotFound, req.StackPath)
		}
		return nil
	}); err != nil {
		return err
	}
	res.StackName = stack.Name

	// 7. Fetch definition
	var content string
	if err := r.stage(StageFetchDefinition, func() error {
		var err error
		content, err = remote.ReadFile(ctx, stack.Path)
		return err
	}); err != nil {
		return err
	}

	// 8. Patch
	var patched string
	if err := r.stage(StagePatch, func() error {
		var err error
		if patched, err = compose.PatchImageVersion(content, req.BaseName, next); err != nil {
			return err
		}
		if err := compose.CheckPatched(content, patched); err != nil {
			return err
		}
		res.References = compose.CountImageReferences(content, req.BaseName)
		if res.References == 0 {
			r.logger.Warn("stack definition does not reference the image", "stack", stack.Name)
		}
		return nil
	}); err != nil {
		return err
	}

	// 9. Write back
	if err := r.stage(StageWriteBack, func() error {
		return remote.SaveFile(ctx, stack.Path, patched)
	}); err != nil {
		return err
	}

	// 10. Restart
	if err := r.stage(StageRestart, func() error {
		return remote.OperateStack(ctx, stack.Name, stack.Path, onepanel.StackUp)
	}); err != nil {
		return err
	}

	r.logger.Info("deploy completed", "stack", stack.Name, "references", res.References)
	return nil
}

// requireEngine fails at the configure stage when no engine is wired.
func (p *Pipeline) requireEngine() error {
	if p.engine == nil {
		return &StageError{Stage: StageConfigure, Err: ErrEngineUnavailable}
	}
	return nil
}

// prepare checks the preconditions. Nothing is touched before it passes.
func (p *Pipeline) prepare(ctx context.Context, projectPath string) (*domain.DeploymentRequest, *domain.RemoteHost, error) {
	path := strings.TrimSpace(projectPath)
	if path == "" {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfiguration, domain.ErrProjectPathRequired)
	}
	path = filepath.Clean(path)

	project, err := p.store.GetProject(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: project %s is not registered", ErrConfiguration, path)
		}
		return nil, nil, err
	}

	req, err := domain.NewDeploymentRequest(*project)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	host, err := p.store.GetServer(ctx, req.ServerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: remote host %d does not exist", ErrConfiguration, req.ServerID)
		}
		return nil, nil, err
	}
	return req, host, nil
}

// newArtifact reserves a local archive path for base:tag.
func (p *Pipeline) newArtifact(base, tag string) (string, error) {
	name := strings.NewReplacer("/", "_", ":", "_").Replace(base) + "_" + tag + "_*.tar"
	f, err := os.CreateTemp(p.config.TempDir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	return f.Name(), nil
}

// =============================================================================
// Stage Runner
// =============================================================================

// Operation names for stage metrics.
const (
	opDeploy = "deploy"
	opBuild  = "build"
	opPush   = "push"
)

// run carries the per-invocation logger.
type run struct {
	pipeline  *Pipeline
	operation string
	logger    *slog.Logger
}

// stage runs fn as stage s, logging and timing it and tagging its error.
func (r *run) stage(s Stage, fn func() error) error {
	start := time.Now()
	r.logger.Debug("stage started", "stage", s)

	err := fn()
	elapsed := time.Since(start)
	r.pipeline.metrics.ObserveStage(r.operation, string(s), elapsed, err)

	if err != nil {
		r.logger.Error("stage failed", "stage", s, "duration", elapsed, "error", err)
		return &StageError{Stage: s, Err: err}
	}
	r.logger.Info("stage completed", "stage", s, "duration", elapsed)
	return nil
}

// removeArtifact deletes the local archive. Failure is only logged.
func (r *run) removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("failed to remove image archive", "path", path, "error", err)
		return
	}
	r.logger.Debug("image archive removed", "path", path)
}
