package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/vk/actiongrid/internal/notify"
	"github.com/vk/actiongrid/internal/slurm"
	"github.com/vk/actiongrid/internal/workflow"
)

// ErrWorkflowFailed is returned by Run when at least one action failed.
var ErrWorkflowFailed = errors.New("workflow finished with failed actions")

// Run executes the loaded workflow and prints a summary to the output writer.
func (a *App) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.")

	t, err := openTarget(ctx, a.model.Target)
	if err != nil {
		return fmt.Errorf("failed to open target: %w", err)
	}
	defer func() {
		if err := t.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Closing target failed.", "error", err)
		}
	}()

	sc := a.model.Scheduler
	opts := []workflow.Option{
		workflow.WithScheduler(slurm.New(slurm.WithSqueue(sc.Squeue...), slurm.WithUser(sc.User)), sc.PollInterval),
		workflow.WithObserver(notify.Log{}),
	}

	if n := a.model.Notify; n != nil {
		sio, err := notify.DialSocketIO(ctx, notify.SocketIOConfig{
			URL:       n.URL,
			Namespace: n.Namespace,
			Event:     n.Event,
			RunID:     runID,
		})
		if err != nil {
			return fmt.Errorf("failed to connect notifier: %w", err)
		}
		defer sio.Close()
		opts = append(opts, workflow.WithObserver(sio))
	}

	driver := workflow.NewDriver(a.registry, t, opts...)

	if a.cfg.StatusPort > 0 {
		status := newStatusServer(logger, driver.Snapshot)
		if err := status.start(a.cfg.StatusPort); err != nil {
			return err
		}
		defer status.shutdown(context.WithoutCancel(ctx))
	}

	logger.Info("Starting workflow.", "target", t.Name(), "actions", len(a.model.Actions))
	report, err := driver.Run(ctx, a.model)
	if err != nil {
		return fmt.Errorf("workflow aborted: %w", err)
	}
	if err := writeSummary(a.outW, report); err != nil {
		return err
	}

	counts := report.Counts()
	logger.Info("Workflow finished.",
		"succeeded", counts[action.Succeeded.String()],
		"failed", counts[action.Failed.String()],
		"ignored", counts[action.Ignored.String()])

	if report.Failed() {
		return ErrWorkflowFailed
	}
	return nil
}
