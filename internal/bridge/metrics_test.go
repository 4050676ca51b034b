package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordHook(t *testing.T) {
	t.Run("records handled success", func(t *testing.T) {
		collector := NewMetricsCollector()

		collector.RecordHook(HookIterate, 10*time.Millisecond, true, true)

		m := collector.Hook(HookIterate)
		require.NotNil(t, m)
		assert.Equal(t, int64(1), m.Calls)
		assert.Equal(t, int64(1), m.Succeeded)
		assert.Equal(t, int64(0), m.Failed)
		assert.Equal(t, int64(0), m.Unhandled)
		assert.Equal(t, 10*time.Millisecond, m.AverageDuration)
	})

	t.Run("unhandled counts as failed", func(t *testing.T) {
		collector := NewMetricsCollector()

		collector.RecordHook(HookOnStartUp, time.Millisecond, false, false)

		m := collector.Hook(HookOnStartUp)
		require.NotNil(t, m)
		assert.Equal(t, int64(1), m.Failed)
		assert.Equal(t, int64(1), m.Unhandled)
	})

	t.Run("tracks min max and average", func(t *testing.T) {
		collector := NewMetricsCollector()

		collector.RecordHook(HookIterate, 100*time.Millisecond, true, true)
		collector.RecordHook(HookIterate, 50*time.Millisecond, true, true)
		collector.RecordHook(HookIterate, 300*time.Millisecond, true, true)

		m := collector.Hook(HookIterate)
		assert.Equal(t, 50*time.Millisecond, m.MinDuration)
		assert.Equal(t, 300*time.Millisecond, m.MaxDuration)
		assert.Equal(t, 150*time.Millisecond, m.AverageDuration)
	})

	t.Run("unknown hook returns nil", func(t *testing.T) {
		assert.Nil(t, NewMetricsCollector().Hook("nope"))
	})
}

func TestMetricsCollector_SnapshotAndReset(t *testing.T) {
	collector := NewMetricsCollector()
	collector.RecordHook(HookIterate, time.Millisecond, true, true)
	collector.RecordMail(3, 1)

	snap := collector.TakeSnapshot()
	assert.Len(t, snap.Hooks, 1)
	assert.Equal(t, int64(3), snap.Mail.Translated)
	assert.Equal(t, int64(1), snap.Mail.Batches)

	collector.Reset()
	assert.Empty(t, collector.TakeSnapshot().Hooks)
	assert.Equal(t, MailMetrics{}, collector.Mail())
}
