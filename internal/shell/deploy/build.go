package deploy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/core/version"
	"github.com/artpar/panelship/internal/shell/docker"
	"github.com/artpar/panelship/internal/shell/store"
)

// BuildOutcome describes a local build of a project's image.
type BuildOutcome struct {
	ProjectPath string   `json:"project_path"`
	Image       string   `json:"image"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags"`
	Log         string   `json:"log"`
}

// Build builds the image of a registered project without shipping it. An
// empty tag is inferred from the local images the way Deploy does it. No
// remote host or stack needs to be configured.
func (p *Pipeline) Build(ctx context.Context, projectPath, tag string) (*BuildOutcome, error) {
	if err := p.requireEngine(); err != nil {
		return nil, err
	}
	path := strings.TrimSpace(projectPath)
	if path == "" {
		return nil, &StageError{Stage: StageConfigure, Err: fmt.Errorf("%w: %w", ErrConfiguration, domain.ErrProjectPathRequired)}
	}
	path = filepath.Clean(path)

	project, err := p.store.GetProject(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: project %s is not registered", ErrConfiguration, path)
		}
		return nil, &StageError{Stage: StageConfigure, Err: err}
	}

	base := project.BaseName()
	if base == "" {
		return nil, &StageError{Stage: StageConfigure, Err: fmt.Errorf("%w: %w", ErrConfiguration, domain.ErrBaseNameRequired)}
	}

	out := &BuildOutcome{ProjectPath: path, Image: base}
	r := &run{
		pipeline:  p,
		operation: opBuild,
		logger:    p.logger.With("project", path, "image", base),
	}

	if tag = strings.TrimSpace(tag); tag == "" {
		if err := r.stage(StageInferVersion, func() error {
			images, err := p.engine.ListImageTags(ctx, base)
			if err != nil {
				return err
			}
			var tags []string
			for _, img := range images {
				tags = append(tags, img.Tags...)
			}
			tag = version.Next(tags)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	ref, err := domain.ParseImageReference(base + ":" + tag)
	if err != nil || ref.Tag != tag {
		return nil, &StageError{Stage: StageConfigure, Err: fmt.Errorf("%w: invalid tag %q", ErrConfiguration, tag)}
	}
	out.Version = tag
	out.Tags = []string{ref.String(), ref.WithTag("latest").String()}

	if err := r.stage(StageBuild, func() error {
		res, err := p.engine.BuildImage(ctx, docker.BuildSpec{Dir: path, Tags: out.Tags})
		if err != nil {
			return err
		}
		out.Log = res.Log
		return nil
	}); err != nil {
		return nil, err
	}

	r.logger.Info("image built", "version", tag)
	return out, nil
}
