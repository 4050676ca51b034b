package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(msg string) Probe {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHealthRegistry(t *testing.T) {
	t.Run("empty registry is healthy", func(t *testing.T) {
		report := NewHealthRegistry().Check(context.Background())
		assert.Equal(t, HealthStatusHealthy, report.Status)
		assert.Empty(t, report.Checks)
	})

	t.Run("optional failure degrades", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("journal", true, ok)
		r.Register("appcasts", false, failing("connection refused"))

		report := r.Check(context.Background())
		assert.Equal(t, HealthStatusDegraded, report.Status)
		require.Len(t, report.Checks, 2)
		assert.Equal(t, "appcasts", report.Checks[0].Name)
		assert.Equal(t, HealthStatusDegraded, report.Checks[0].Status)
		assert.Equal(t, "connection refused", report.Checks[0].Message)
		assert.Equal(t, HealthStatusHealthy, report.Checks[1].Status)
	})

	t.Run("critical failure is unhealthy", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("appcasts", false, failing("down"))
		r.Register("comms", true, failing("down"))

		report := r.Check(context.Background())
		assert.Equal(t, HealthStatusUnhealthy, report.Status)
	})

	t.Run("register replaces", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("comms", true, failing("down"))
		r.Register("comms", true, ok)

		report := r.Check(context.Background())
		assert.Equal(t, HealthStatusHealthy, report.Status)
		assert.Len(t, report.Checks, 1)
	})
}
