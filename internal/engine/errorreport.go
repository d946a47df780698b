package engine

import (
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitErrorReporting wires uncaught-error and per-stream-failure forwarding
// to the configured error-reporting collaborator. A no-op when dsn is empty —
// the pipeline runs fine without it, it just loses remote visibility. Mirrors
// the original cron binary's sentry::init call (stream-pulse-cron.rs), which
// likewise tolerates an empty DSN.
func InitErrorReporting(dsn string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn: dsn,
	})
}

// ReportError forwards err to the error-reporting collaborator, tagged with
// context (e.g. video_id), and logs it locally regardless of whether
// reporting is configured. A no-op send (when no DSN was configured) is
// cheap: sentry-go's global hub is a no-op client until Init succeeds.
func ReportError(err error, tags map[string]string) {
	slog.Error("error report", slog.Any("error", err), slog.Any("tags", tags))

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// FlushErrorReporting blocks until pending error reports are sent or the
// timeout elapses. Call before process exit.
func FlushErrorReporting(timeout time.Duration) {
	sentry.Flush(timeout)
}
