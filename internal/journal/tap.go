package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/felixgeelhaar/moosbridge/internal/bridge/handle"
	"github.com/felixgeelhaar/moosbridge/internal/host"
)

// recordTimeout bounds a journal write made from a hook.
const recordTimeout = 2 * time.Second

// TapMail returns a mail callback that records each batch and then calls
// next. A failed write is logged and does not stop delivery. With a nil
// next the batch is recorded and the callback reports false.
func TapMail(store Store, app string, next bridge.MailCallback, logger *slog.Logger) bridge.MailCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return func(target handle.Handle, mail []bridge.Envelope) bool {
		entry, err := NewMailEntry(app, mail)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			err = store.Record(ctx, entry)
			cancel()
		}
		if err != nil {
			logger.Warn("failed to journal mail", "app", app, "error", err)
		}

		if next == nil {
			return false
		}
		return next(target, mail)
	}
}

// ReportPublisher records reports in a store.
type ReportPublisher struct {
	store Store
}

var _ host.ReportPublisher = (*ReportPublisher)(nil)

// NewReportPublisher creates a publisher over store. Closing the publisher
// does not close the store.
func NewReportPublisher(store Store) *ReportPublisher {
	return &ReportPublisher{store: store}
}

func (p *ReportPublisher) PublishReport(ctx context.Context, report host.Report) error {
	entry, err := NewReportEntry(report)
	if err != nil {
		return err
	}
	return p.store.Record(ctx, entry)
}

func (p *ReportPublisher) Close() error {
	return nil
}
