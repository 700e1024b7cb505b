package workflow

import (
	"context"
	"errors"
	"log/slog"

	"minutes/internal/logging"
	"minutes/internal/notifications"
)

func (r *Runner) notifyCompleted(ctx context.Context, logger *slog.Logger, job Job, outcome *Outcome) {
	if r.notifier == nil {
		return
	}
	summary := notifications.RunSummary{
		InputName:  job.InputName,
		OutputPath: outcome.OutputPath,
		Speakers:   outcome.Speakers,
		Segments:   outcome.Segments,
	}
	if outcome.Result != nil {
		summary.Duration = outcome.Result.Duration
	}
	if err := r.notifier.NotifyRunCompleted(ctx, summary); err != nil {
		r.logNotifyFailure(logger, "completion", err)
	}
}

func (r *Runner) notifyFailed(ctx context.Context, logger *slog.Logger, job Job, runErr error) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyRunFailed(ctx, job.InputName, runErr); err != nil {
		r.logNotifyFailure(logger, "failure", err)
	}
}

func (r *Runner) logNotifyFailure(logger *slog.Logger, kind string, err error) {
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutting down, could not send "+kind+" notification")
		return
	}
	logging.WarnWithContext(logger, kind+" notification failed", "notification_failed",
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		logging.String(logging.FieldImpact, "the run result is unaffected"),
		logging.Error(err),
	)
}
