// Package journal keeps a persistent record of what crossed the bridge: the
// translated mail batches handed to caller code and the reports the host
// published.
package journal

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/felixgeelhaar/moosbridge/internal/host"
)

// Kind tags what an entry records.
type Kind string

const (
	KindMail   Kind = "mail"
	KindReport Kind = "report"
)

// DefaultLimit is the number of entries Latest returns for a non-positive
// limit.
const DefaultLimit = 20

// Entry is one journal row.
type Entry struct {
	ID         int64           `json:"id"`
	Kind       Kind            `json:"kind"`
	App        string          `json:"app"`
	Count      int             `json:"count"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store persists entries.
type Store interface {
	// Record appends an entry and sets its ID.
	Record(ctx context.Context, entry *Entry) error

	// Latest returns up to limit entries, newest first.
	Latest(ctx context.Context, limit int) ([]Entry, error)

	Close() error
}

// NewMailEntry creates the entry of a translated batch. An empty batch is
// recorded as an empty array.
func NewMailEntry(app string, mail []bridge.Envelope) (*Entry, error) {
	if mail == nil {
		mail = []bridge.Envelope{}
	}
	payload, err := json.Marshal(mail)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mail: %w", err)
	}
	return &Entry{
		Kind:       KindMail,
		App:        app,
		Count:      len(mail),
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	}, nil
}

// NewReportEntry creates the entry of a published report.
func NewReportEntry(report host.Report) (*Entry, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return &Entry{
		Kind:       KindReport,
		App:        report.App,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	}, nil
}

// Mail decodes the batch of a mail entry.
func (e Entry) Mail() ([]bridge.Envelope, error) {
	if e.Kind != KindMail {
		return nil, fmt.Errorf("entry %d is a %s entry", e.ID, e.Kind)
	}
	var mail []bridge.Envelope
	if err := json.Unmarshal(e.Payload, &mail); err != nil {
		return nil, fmt.Errorf("failed to decode mail: %w", err)
	}
	return mail, nil
}

// Report decodes the report of a report entry.
func (e Entry) Report() (host.Report, error) {
	var report host.Report
	if e.Kind != KindReport {
		return report, fmt.Errorf("entry %d is a %s entry", e.ID, e.Kind)
	}
	if err := json.Unmarshal(e.Payload, &report); err != nil {
		return report, fmt.Errorf("failed to decode report: %w", err)
	}
	return report, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrations returns the up migrations of a dialect in order.
func migrations(dialect string) ([]string, error) {
	dir := "migrations/" + dialect
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	scripts := make([]string, 0, len(files))
	for _, file := range files {
		data, err := migrationsFS.ReadFile(dir + "/" + file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		scripts = append(scripts, string(data))
	}
	return scripts, nil
}
