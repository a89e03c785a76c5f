package deploy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/workers"
)

// Submitter queues background jobs.
type Submitter interface {
	Submit(job workers.Job) (workers.Handle, error)
}

// NotificationSink persists notifications.
type NotificationSink interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// Background runs deployments off the caller's goroutine. The outcome of
// each run is logged and written to the notification sink.
type Background struct {
	pipeline      *Pipeline
	submitter     Submitter
	notifications NotificationSink
	logger        *slog.Logger
}

// NewBackground creates a Background over p.
func NewBackground(p *Pipeline, s Submitter, sink NotificationSink, logger *slog.Logger) *Background {
	if logger == nil {
		logger = slog.Default()
	}
	return &Background{
		pipeline:      p,
		submitter:     s,
		notifications: sink,
		logger:        logger.With("component", "deploy_async"),
	}
}

// DeployAsync schedules a deployment of projectPath and returns at once.
// The only error is a failure to schedule.
func (b *Background) DeployAsync(projectPath string) (workers.Handle, error) {
	return b.submitter.Submit(workers.Job{
		Name: "deploy " + projectPath,
		Run: func(ctx context.Context) error {
			res, err := b.pipeline.Run(ctx, projectPath)
			Notify(ctx, b.notifications, b.logger, res, err)
			return err
		},
	})
}

// Notify records the outcome of a run. Sink failures are logged only.
func Notify(ctx context.Context, sink NotificationSink, logger *slog.Logger, res *Result, err error) {
	if sink == nil {
		return
	}
	n := NotificationFor(res, err)
	if serr := sink.CreateNotification(ctx, n); serr != nil && logger != nil {
		logger.Error("failed to record deploy notification", "project", res.ProjectPath, "error", serr)
	}
}

// NotificationFor builds the notification describing a run.
func NotificationFor(res *Result, err error) *domain.Notification {
	name := res.Image
	if name == "" {
		name = res.ProjectPath
	}

	var n *domain.Notification
	if err != nil {
		n, _ = domain.NewNotification(domain.NotificationTypeDeploy,
			fmt.Sprintf("Deploy of %s failed", name), err.Error(), domain.NotificationError)
	} else {
		n, _ = domain.NewNotification(domain.NotificationTypeDeploy,
			fmt.Sprintf("Deployed %s:%s to %s", res.Image, res.Version, res.ServerName),
			fmt.Sprintf("stack %s restarted", res.StackName), domain.NotificationSuccess)
	}
	n.DurationMs = res.Duration.Milliseconds()
	n.ServerName = res.ServerName
	return n
}
