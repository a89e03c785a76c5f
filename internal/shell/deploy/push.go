package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/store"
)

// PushResult describes an image push.
type PushResult struct {
	Image      string `json:"image"`
	ServerID   int64  `json:"server_id"`
	ServerName string `json:"server_name"`
	RemotePath string `json:"remote_path"`
	DurationMs int64  `json:"duration_ms"`
}

// PushImage saves a local image, uploads it to a host and loads it there.
// It is stages 3 to 5 of a deploy for an arbitrary image.
func (p *Pipeline) PushImage(ctx context.Context, serverID int64, imageRef string) (*PushResult, error) {
	start := time.Now()
	res, err := p.pushImage(ctx, serverID, imageRef)
	res.DurationMs = time.Since(start).Milliseconds()
	p.metrics.PushFinished(err)
	return res, err
}

func (p *Pipeline) pushImage(ctx context.Context, serverID int64, imageRef string) (*PushResult, error) {
	res := &PushResult{Image: imageRef, ServerID: serverID}
	if err := p.requireEngine(); err != nil {
		return res, err
	}

	ref, err := domain.ParseImageReference(imageRef)
	if err != nil {
		return res, &StageError{Stage: StageConfigure, Err: fmt.Errorf("%w: %w", ErrConfiguration, err)}
	}
	res.Image = ref.String()

	host, err := p.store.GetServer(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("%w: remote host %d does not exist", ErrConfiguration, serverID)
		}
		return res, &StageError{Stage: StageConfigure, Err: err}
	}
	res.ServerName = host.Name

	r := &run{
		pipeline:  p,
		operation: opPush,
		logger:    p.logger.With("image", res.Image, "server", host.Name),
	}
	remote := p.remotes(*host)

	var archive string
	err = r.stage(StagePackage, func() error {
		path, err := p.newArtifact(ref.Base, ref.Tag)
		if err != nil {
			return err
		}
		archive = path
		return p.engine.SaveImage(ctx, res.Image, path)
	})
	if archive != "" {
		defer r.removeArtifact(archive)
	}
	if err != nil {
		return res, err
	}

	if err := r.stage(StageTransfer, func() error {
		var err error
		res.RemotePath, err = remote.UploadFile(ctx, archive, p.config.UploadDir)
		return err
	}); err != nil {
		return res, err
	}

	if err := r.stage(StageActivate, func() error {
		return remote.LoadImage(ctx, res.RemotePath)
	}); err != nil {
		return res, err
	}

	r.logger.Info("image pushed", "remote_path", res.RemotePath)
	return res, nil
}

// PushNotification builds the notification describing a push.
func PushNotification(res *PushResult, err error) *domain.Notification {
	var n *domain.Notification
	if err != nil {
		n, _ = domain.NewNotification(domain.NotificationTypePush,
			fmt.Sprintf("Push of %s failed", res.Image), err.Error(), domain.NotificationError)
	} else {
		n, _ = domain.NewNotification(domain.NotificationTypePush,
			fmt.Sprintf("Pushed %s to %s", res.Image, res.ServerName), res.RemotePath, domain.NotificationSuccess)
	}
	n.DurationMs = res.DurationMs
	n.ServerName = res.ServerName
	return n
}
