package ingest

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

func newTestPipeline(t *testing.T) (*Pipeline, storage.Store, *events.Bus) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	bus := events.NewBus()
	return New(store, bus, 0), store, bus
}

type replySink struct {
	mu     sync.Mutex
	frames []*protocol.Envelope
}

func (r *replySink) fn(env *protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, env)
}

func (r *replySink) all() []*protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.Envelope(nil), r.frames...)
}

func frame(t *testing.T, ch protocol.Channel, typ string, correlationID string, payload any) *protocol.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &protocol.Envelope{
		Channel:       ch,
		Type:          typ,
		TS:            protocol.NowMillis(),
		Data:          data,
		CorrelationID: correlationID,
	}
}

func TestHeartbeatUpsertsAndPongs(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	sink := &replySink{}

	p.Submit("i1", frame(t, protocol.ChannelHeartbeat, protocol.TypeHeartbeatPing, "c-42", &protocol.HeartbeatPing{
		AgentVersion: "1.2.0",
		Uptime:       300,
		Stats: &protocol.HeartbeatStats{
			CPUPercent: 42, MemoryUsed: 512, MemoryTotal: 1024, DiskUsed: 10, DiskTotal: 100,
		},
	}), sink.fn)
	p.Stop()

	hb, err := store.GetLatestHeartbeat("i1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, hb.CPUPercent)
	assert.Equal(t, types.Bytes64(1024), hb.MemoryTotal)

	// Heartbeat stats roll into the time series
	points, err := store.ListSeries("i1", types.GranularityRaw, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, points, 1)

	replies := sink.all()
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeHeartbeatPong, replies[0].Type)
	assert.Equal(t, "c-42", replies[0].CorrelationID)
}

func TestHeartbeatRecoveredEvent(t *testing.T) {
	p, store, _ := newTestPipeline(t)

	require.NoError(t, store.PutLatestHeartbeat(&types.Heartbeat{
		InstanceID: "i1",
		Timestamp:  time.Now().Add(-10 * time.Minute),
	}))

	p.Submit("i1", frame(t, protocol.ChannelHeartbeat, protocol.TypeHeartbeatPing, "", &protocol.HeartbeatPing{Uptime: 5}), nil)
	p.Stop()

	evs, err := store.ListEvents("i1", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, types.EventHeartbeatRecovered, evs[0].EventType)
}

func TestMetricsPersistedAndFannedOut(t *testing.T) {
	p, store, bus := newTestPipeline(t)
	sub := bus.Subscribe(10, "i1")
	defer bus.Unsubscribe(sub)
	sink := &replySink{}

	p.Submit("i1", frame(t, protocol.ChannelMetrics, protocol.TypeMetricsSample, "c-1", &protocol.MetricsSample{
		CPUPercent: 55, MemoryUsed: 256, MemoryTotal: 1024, DiskUsed: 10, DiskTotal: 100,
	}), sink.fn)
	p.Stop()

	points, err := store.ListSeries("i1", types.GranularityRaw, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 55.0, points[0].Fields["cpuPercent"])

	delivered := <-sub.C()
	assert.Equal(t, protocol.TypeMetricsSample, delivered.Type)

	replies := sink.all()
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeAck, replies[0].Type)
	assert.Equal(t, "c-1", replies[0].CorrelationID)
}

func TestMetricsValidationError(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	sink := &replySink{}

	p.Submit("i1", frame(t, protocol.ChannelMetrics, protocol.TypeMetricsSample, "c-9", &protocol.MetricsSample{
		CPUPercent: 150, MemoryTotal: 1024, DiskTotal: 100,
	}), sink.fn)
	p.Stop()

	replies := sink.all()
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeError, replies[0].Type)
	assert.Equal(t, "c-9", replies[0].CorrelationID)

	var errPayload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(replies[0].Data, &errPayload))
	assert.Equal(t, protocol.CodeValidation, errPayload.Code)
}

func TestLogLineDedupe(t *testing.T) {
	p, store, _ := newTestPipeline(t)

	env := frame(t, protocol.ChannelLogs, protocol.TypeLogLine, "", &protocol.LogLine{
		Level: types.LogLevelInfo, Source: types.LogSourceAgent, Message: "server started",
	})
	p.Submit("i1", env, nil)
	p.Submit("i1", env, nil)

	// A different message at the same ts survives
	other := frame(t, protocol.ChannelLogs, protocol.TypeLogLine, "", &protocol.LogLine{
		Level: types.LogLevelInfo, Source: types.LogSourceAgent, Message: "listening on :8080",
	})
	other.TS = env.TS
	p.Submit("i1", other, nil)
	p.Stop()

	logs, err := store.ListLogs("i1", time.Now().Add(-time.Minute), time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestLogBatch(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	sink := &replySink{}

	p.Submit("i1", frame(t, protocol.ChannelLogs, protocol.TypeLogBatch, "c-7", &protocol.LogBatch{
		Lines: []protocol.LogLine{
			{Level: types.LogLevelInfo, Source: types.LogSourceApp, Message: "one"},
			{Level: types.LogLevelWarn, Source: types.LogSourceApp, Message: "two"},
			{Level: types.LogLevelError, Source: types.LogSourceApp, Message: "three"},
		},
	}), sink.fn)
	p.Stop()

	logs, err := store.ListLogs("i1", time.Now().Add(-time.Minute), time.Now().Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	replies := sink.all()
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypeAck, replies[0].Type)
}

func TestEventPersistedAndFannedOut(t *testing.T) {
	p, store, bus := newTestPipeline(t)
	sub := bus.Subscribe(10, "i1")
	defer bus.Unsubscribe(sub)

	p.Submit("i1", frame(t, protocol.ChannelEvents, protocol.TypeEventInstance, "", &protocol.EventInstance{
		EventType: types.EventConnect,
	}), nil)
	p.Stop()

	evs, err := store.ListEvents("i1", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, types.EventConnect, evs[0].EventType)

	delivered := <-sub.C()
	assert.Equal(t, protocol.TypeEventInstance, delivered.Type)
}

func TestDedupeWindowExpires(t *testing.T) {
	d := newDedupeIndex()
	now := time.Now()
	d.nowFunc = func() time.Time { return now }

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.False(t, d.seen("i1", ts, "hello"))
	assert.True(t, d.seen("i1", ts, "hello"))

	// Past the window the same line is accepted again
	now = now.Add(DedupeWindow + time.Second)
	assert.False(t, d.seen("i1", ts, "hello"))
}

func TestOverflowDropsOldestLogsFirst(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	p := New(store, events.NewBus(), 2)

	q := &instanceQueue{}
	q.cond = sync.NewCond(&q.mu)

	logEnv := frame(t, protocol.ChannelLogs, protocol.TypeLogLine, "", &protocol.LogLine{
		Level: types.LogLevelInfo, Source: types.LogSourceApp, Message: "noise",
	})
	metricEnv := frame(t, protocol.ChannelMetrics, protocol.TypeMetricsSample, "", &protocol.MetricsSample{
		CPUPercent: 10, MemoryTotal: 1, DiskTotal: 1,
	})

	p.enqueue(q, item{env: logEnv})
	p.enqueue(q, item{env: metricEnv})

	// Queue is full; the oldest log frame makes room
	p.enqueue(q, item{env: metricEnv})
	require.Len(t, q.items, 2)
	assert.Equal(t, protocol.ChannelMetrics, q.items[0].env.Channel)
	assert.Equal(t, protocol.ChannelMetrics, q.items[1].env.Channel)
}

func TestOverflowCoarsensMetricsThenPauses(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	p := New(store, events.NewBus(), 2)

	q := &instanceQueue{}
	q.cond = sync.NewCond(&q.mu)

	// Two samples in the same minute
	sameMinute := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m1 := frame(t, protocol.ChannelMetrics, protocol.TypeMetricsSample, "", &protocol.MetricsSample{CPUPercent: 10, MemoryTotal: 1, DiskTotal: 1})
	m1.TS = sameMinute.UnixMilli()
	m2 := frame(t, protocol.ChannelMetrics, protocol.TypeMetricsSample, "", &protocol.MetricsSample{CPUPercent: 20, MemoryTotal: 1, DiskTotal: 1})
	m2.TS = sameMinute.Add(20 * time.Second).UnixMilli()
	m3 := frame(t, protocol.ChannelMetrics, protocol.TypeMetricsSample, "", &protocol.MetricsSample{CPUPercent: 30, MemoryTotal: 1, DiskTotal: 1})
	m3.TS = sameMinute.Add(2 * time.Minute).UnixMilli()

	p.enqueue(q, item{env: m1})
	p.enqueue(q, item{env: m2})

	// No logs to shed; the older same-minute sample is coarsened away
	p.enqueue(q, item{env: m3})
	require.Len(t, q.items, 2)
	assert.Equal(t, m2.TS, q.items[0].env.TS)
	assert.Equal(t, m3.TS, q.items[1].env.TS)

	// Distinct minutes only: nothing to coarsen, the agent gets a pause
	sink := &replySink{}
	m4 := frame(t, protocol.ChannelMetrics, protocol.TypeMetricsSample, "", &protocol.MetricsSample{CPUPercent: 40, MemoryTotal: 1, DiskTotal: 1})
	m4.TS = sameMinute.Add(4 * time.Minute).UnixMilli()
	p.enqueue(q, item{env: m4, reply: sink.fn})

	replies := sink.all()
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.TypePause, replies[0].Type)
	assert.Len(t, q.items, 2)
}

func TestHeartbeatsNeverDropped(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	p := New(store, events.NewBus(), 1)

	q := &instanceQueue{}
	q.cond = sync.NewCond(&q.mu)

	hb := frame(t, protocol.ChannelHeartbeat, protocol.TypeHeartbeatPing, "", &protocol.HeartbeatPing{})
	p.enqueue(q, item{env: hb})
	p.enqueue(q, item{env: hb})
	assert.Len(t, q.items, 2)
}
