package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetrics()

	m.IncrementCounter("events_processed")
	m.IncrementCounter("events_processed")
	m.IncrementCounterBy("events_dropped", 5)
	m.SetGauge("ledger_failed_last_hour", 3)

	counters := m.GetCounters()
	require.Equal(t, int64(2), counters["events_processed"])
	require.Equal(t, int64(5), counters["events_dropped"])

	gauges := m.GetGauges()
	require.Equal(t, int64(3), gauges["ledger_failed_last_hour"])
}

func TestTimers(t *testing.T) {
	m := NewMetrics()

	m.RecordTimer("event_processing", 10*time.Millisecond)
	m.RecordTimer("event_processing", 30*time.Millisecond)

	timers := m.GetTimers()
	stats, ok := timers["event_processing"]
	require.True(t, ok)
	require.Equal(t, int64(2), stats.Count)
	require.Equal(t, int64(40), stats.TotalTimeMs)
	require.Equal(t, int64(10), stats.MinTimeMs)
	require.Equal(t, int64(30), stats.MaxTimeMs)
	require.Equal(t, float64(20), stats.AverageTimeMs)
}

func TestHealthChecks(t *testing.T) {
	m := NewMetrics()

	m.SetHealth("processing", true)
	m.SetHealth("database", false)

	checks := m.GetHealthChecks()
	require.True(t, checks["processing"])
	require.False(t, checks["database"])
}
