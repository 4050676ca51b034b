package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"github.com/felixgeelhaar/moosbridge/internal/bridge/handle"
	"github.com/felixgeelhaar/moosbridge/internal/host"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	entries, err := store.Latest(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	mail, err := NewMailEntry("pTest", []bridge.Envelope{
		bridge.NumericEnvelope("DEPTH", 12.5),
		bridge.TextEnvelope("MODE", "SURVEY"),
	})
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, mail))
	assert.NotZero(t, mail.ID)

	report, err := NewReportEntry(host.Report{ID: uuid.New(), App: "pTest", Iteration: 3})
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, report))
	assert.Greater(t, report.ID, mail.ID)

	entries, err = store.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindReport, entries[0].Kind)
	r, err := entries[0].Report()
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Iteration)

	assert.Equal(t, KindMail, entries[1].Kind)
	assert.Equal(t, 2, entries[1].Count)
	assert.WithinDuration(t, mail.RecordedAt, entries[1].RecordedAt, time.Millisecond)
	batch, err := entries[1].Mail()
	require.NoError(t, err)
	assert.Equal(t, []bridge.Envelope{
		bridge.NumericEnvelope("DEPTH", 12.5),
		bridge.TextEnvelope("MODE", "SURVEY"),
	}, batch)

	_, err = entries[1].Report()
	assert.Error(t, err)

	entries, err = store.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	entry, err := NewMailEntry("pTest", nil)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, entry))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.Latest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `[]`, string(entries[0].Payload))
}

func TestTapMail(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	var got []bridge.Envelope
	var target handle.Handle
	next := func(h handle.Handle, mail []bridge.Envelope) bool {
		target = h
		got = mail
		return true
	}

	tapped := TapMail(store, "pTest", next, nil)
	batch := []bridge.Envelope{bridge.NumericEnvelope("DEPTH", 1)}
	assert.True(t, tapped(handle.Handle(42), batch))
	assert.Equal(t, batch, got)
	assert.Equal(t, handle.Handle(42), target)

	assert.False(t, TapMail(store, "pTest", nil, nil)(0, nil))

	entries, err := store.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Count)
	assert.Equal(t, 1, entries[1].Count)
	assert.Equal(t, "pTest", entries[1].App)
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) Record(context.Context, *Entry) error { return errors.New("disk full") }
func (failingStore) Latest(context.Context, int) ([]Entry, error) {
	return nil, nil
}
func (failingStore) Close() error { return nil }

func TestTapMail_StoreFailureStillDelivers(t *testing.T) {
	called := false
	tapped := TapMail(failingStore{}, "pTest", func(handle.Handle, []bridge.Envelope) bool {
		called = true
		return true
	}, nil)

	assert.True(t, tapped(0, []bridge.Envelope{bridge.TextEnvelope("MODE", "X")}))
	assert.True(t, called)
}

func TestReportPublisher(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	publisher := NewReportPublisher(store)

	require.NoError(t, publisher.PublishReport(ctx, host.Report{App: "pTest", Iteration: 9}))
	require.NoError(t, publisher.Close())

	entries, err := store.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pTest", entries[0].App)

	assert.Error(t, NewReportPublisher(failingStore{}).PublishReport(ctx, host.Report{}))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("MOOSBRIDGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MOOSBRIDGE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := OpenPostgres(ctx, url, 2)
	require.NoError(t, err)
	defer store.Close()

	app := "pTest-" + uuid.NewString()
	entry, err := NewMailEntry(app, []bridge.Envelope{bridge.NumericEnvelope("DEPTH", 2)})
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, entry))
	assert.NotZero(t, entry.ID)

	entries, err := store.Latest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, app, entries[0].App)
	batch, err := entries[0].Mail()
	require.NoError(t, err)
	assert.Equal(t, []bridge.Envelope{bridge.NumericEnvelope("DEPTH", 2)}, batch)

	_, err = OpenPostgres(ctx, "", 0)
	assert.Error(t, err)
}
