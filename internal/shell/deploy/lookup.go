package deploy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/panelship/internal/core/compose"
	"github.com/artpar/panelship/internal/core/domain"
)

// lookupConcurrency bounds the hosts scanned at once.
const lookupConcurrency = 4

// ImageDeployment is one stack on one host that references an image.
type ImageDeployment struct {
	ServerID    int64  `json:"server_id"`
	ServerName  string `json:"server_name"`
	ComposeName string `json:"compose_name"`
	ImageTag    string `json:"image_tag"` // the reference as written, e.g. "app:v1.2.0"
	Version     string `json:"version"`
}

// ImageDeployments scans every host's stack definitions for references to
// base. Hosts and files that cannot be read are skipped and logged.
func (p *Pipeline) ImageDeployments(ctx context.Context, base string) ([]ImageDeployment, error) {
	hosts, err := p.store.ListServers(ctx)
	if err != nil {
		return nil, err
	}

	perHost := make([][]ImageDeployment, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i := range hosts {
		host := hosts[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perHost[i] = p.scanHost(gctx, host, base)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	deployments := []ImageDeployment{}
	for _, found := range perHost {
		deployments = append(deployments, found...)
	}
	return deployments, nil
}

func (p *Pipeline) scanHost(ctx context.Context, host domain.RemoteHost, base string) []ImageDeployment {
	logger := p.logger.With("server", host.Name, "image", base)
	remote := p.remotes(host)

	stacks, err := remote.ListStacks(ctx)
	if err != nil {
		logger.Warn("skipping host in image lookup", "error", err)
		return nil
	}

	var found []ImageDeployment
	for _, stack := range stacks {
		if stack.Path == "" {
			continue
		}
		content, err := remote.ReadFile(ctx, stack.Path)
		if err != nil {
			logger.Warn("skipping stack in image lookup", "stack", stack.Name, "error", err)
			continue
		}
		for _, m := range compose.FindImageReferences(content, base) {
			found = append(found, ImageDeployment{
				ServerID:    host.ID,
				ServerName:  host.Name,
				ComposeName: stack.Name,
				ImageTag:    m.Image,
				Version:     m.Tag,
			})
		}
	}
	return found
}
