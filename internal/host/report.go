package host

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Report is the status an application publishes to its community.
type Report struct {
	ID         uuid.UUID         `json:"id"`
	InstanceID uuid.UUID         `json:"instance_id"`
	App        string            `json:"app"`
	Community  string            `json:"community,omitempty"`
	Iteration  int64             `json:"iteration"`
	Uptime     float64           `json:"uptime_seconds"`
	Requested  bool              `json:"requested"`
	Registered []string          `json:"registered"`
	Published  map[string]string `json:"published"`
	Time       time.Time         `json:"time"`
}

// ReportPublisher delivers reports outside the application.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report Report) error
	Close() error
}

// LogPublisher writes reports to a logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs each report at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishReport(ctx context.Context, report Report) error {
	p.logger.InfoContext(ctx, "appcast",
		"app", report.App,
		"instance_id", report.InstanceID,
		"iteration", report.Iteration,
		"uptime_seconds", report.Uptime,
		"requested", report.Requested,
		"registered", report.Registered,
		"published", len(report.Published),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}

// NoopPublisher discards reports.
type NoopPublisher struct{}

func (NoopPublisher) PublishReport(context.Context, Report) error { return nil }
func (NoopPublisher) Close() error                              { return nil }

// MultiPublisher fans a report out to several publishers. Every publisher
// is tried; the errors are joined.
type MultiPublisher []ReportPublisher

func (m MultiPublisher) PublishReport(ctx context.Context, report Report) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishReport(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
