package ingest

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/metrics"
	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

const (
	// DefaultQueueSize bounds the per-instance ingest queue
	DefaultQueueSize = 10000

	// DefaultHeartbeatPeriod is the nominal agent heartbeat cadence
	DefaultHeartbeatPeriod = 30 * time.Second
)

// ReplyFunc delivers a server frame back to the submitting agent link.
// It must not block.
type ReplyFunc func(*protocol.Envelope)

// Pipeline is the write path for agent telemetry. Frames are queued per
// instance and processed in arrival order by one worker per instance.
type Pipeline struct {
	store           storage.Store
	bus             *events.Bus
	logger          zerolog.Logger
	queueSize       int
	heartbeatPeriod time.Duration

	mu      sync.Mutex
	queues  map[string]*instanceQueue
	stopped bool
	wg      sync.WaitGroup

	dedupe *dedupeIndex
}

type item struct {
	env   *protocol.Envelope
	reply ReplyFunc
}

type instanceQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []item
	closed bool
}

// New creates an ingestion pipeline. queueSize <= 0 selects the default.
func New(store storage.Store, bus *events.Bus, queueSize int) *Pipeline {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pipeline{
		store:           store,
		bus:             bus,
		logger:          log.WithComponent("ingest"),
		queueSize:       queueSize,
		heartbeatPeriod: DefaultHeartbeatPeriod,
		queues:          make(map[string]*instanceQueue),
		dedupe:          newDedupeIndex(),
	}
}

// Submit queues one decoded frame for processing. The reply function
// receives pongs, acks, error frames and pause hints for this agent.
func (p *Pipeline) Submit(instanceID string, env *protocol.Envelope, reply ReplyFunc) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	q, ok := p.queues[instanceID]
	if !ok {
		q = &instanceQueue{}
		q.cond = sync.NewCond(&q.mu)
		p.queues[instanceID] = q
		p.wg.Add(1)
		go p.worker(instanceID, q)
	}
	p.mu.Unlock()

	p.enqueue(q, item{env: env, reply: reply})
}

// Stop closes all queues and waits for the workers to drain
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	queues := make([]*instanceQueue, 0, len(p.queues))
	for _, q := range p.queues {
		queues = append(queues, q)
	}
	p.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		q.closed = true
		q.cond.Signal()
		q.mu.Unlock()
	}
	p.wg.Wait()
}

// enqueue applies the overflow policy: oldest queued log frames are
// dropped first, then metric samples are coarsened to one per minute,
// then the agent gets a PAUSE hint. Heartbeats and events are never
// dropped and may exceed the bound.
func (p *Pipeline) enqueue(q *instanceQueue, it item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	ch := it.env.Channel
	if len(q.items) >= p.queueSize && ch != protocol.ChannelHeartbeat && ch != protocol.ChannelEvents {
		if dropOldestLog(q) {
			metrics.FramesDropped.WithLabelValues(string(protocol.ChannelLogs)).Inc()
		} else if coarsenMetrics(q) {
			metrics.FramesDropped.WithLabelValues(string(protocol.ChannelMetrics)).Inc()
		} else {
			if it.reply != nil {
				it.reply(protocol.NewPause("ingest queue full"))
			}
			// Shed the oldest shippable frame to keep the queue bounded
			if !dropOldest(q) {
				return
			}
			metrics.FramesDropped.WithLabelValues(string(ch)).Inc()
		}
	}

	q.items = append(q.items, it)
	q.cond.Signal()
}

func dropOldestLog(q *instanceQueue) bool {
	for i, queued := range q.items {
		if queued.env.Channel == protocol.ChannelLogs {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// coarsenMetrics thins queued metric samples to one per minute, oldest
// duplicate first
func coarsenMetrics(q *instanceQueue) bool {
	seen := make(map[int64]bool)
	for i := len(q.items) - 1; i >= 0; i-- {
		queued := q.items[i]
		if queued.env.Channel != protocol.ChannelMetrics || queued.env.Type != protocol.TypeMetricsSample {
			continue
		}
		minute := queued.env.Time().Truncate(time.Minute).Unix()
		if seen[minute] {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
		seen[minute] = true
	}
	return false
}

func dropOldest(q *instanceQueue) bool {
	for i, queued := range q.items {
		ch := queued.env.Channel
		if ch != protocol.ChannelHeartbeat && ch != protocol.ChannelEvents {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pipeline) worker(instanceID string, q *instanceQueue) {
	defer p.wg.Done()
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		it := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		p.process(instanceID, it)
	}
}

func (p *Pipeline) process(instanceID string, it item) {
	env := it.env
	payload, err := protocol.ParsePayload(env)
	if err != nil {
		p.replyError(it, err)
		return
	}

	switch typed := payload.(type) {
	case *protocol.HeartbeatPing:
		err = p.processHeartbeat(instanceID, env, typed, it.reply)
	case *protocol.MetricsSample:
		err = p.processMetrics(instanceID, env, typed)
	case *protocol.LogLine:
		err = p.processLogLine(instanceID, env, typed, true)
	case *protocol.LogBatch:
		err = p.processLogBatch(instanceID, env, typed)
	case *protocol.EventInstance:
		err = p.processEvent(instanceID, env, typed)
	default:
		p.replyError(it, types.Validationf("channel %s is not ingestible", env.Channel))
		return
	}

	if err != nil {
		// Persistent-state failures get one retry before surfacing
		if errors.Is(err, types.ErrInternal) || !isCallerError(err) {
			time.Sleep(50 * time.Millisecond)
			err = p.reprocess(instanceID, env, payload, it.reply)
		}
	}
	if err != nil {
		p.replyError(it, err)
		return
	}
	metrics.FramesIngested.WithLabelValues(string(env.Channel)).Inc()

	// Heartbeats answer with a pong instead of an ack
	if env.Channel != protocol.ChannelHeartbeat && env.CorrelationID != "" && it.reply != nil {
		it.reply(protocol.NewAck(env.Channel, env.CorrelationID))
	}
}

func (p *Pipeline) reprocess(instanceID string, env *protocol.Envelope, payload protocol.Payload, reply ReplyFunc) error {
	switch typed := payload.(type) {
	case *protocol.HeartbeatPing:
		return p.processHeartbeat(instanceID, env, typed, reply)
	case *protocol.MetricsSample:
		return p.processMetrics(instanceID, env, typed)
	case *protocol.LogLine:
		return p.processLogLine(instanceID, env, typed, true)
	case *protocol.LogBatch:
		return p.processLogBatch(instanceID, env, typed)
	case *protocol.EventInstance:
		return p.processEvent(instanceID, env, typed)
	}
	return nil
}

func isCallerError(err error) bool {
	if _, ok := types.IsValidation(err); ok {
		return true
	}
	return errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrMalformedFrame) ||
		errors.Is(err, types.ErrConflict)
}

func (p *Pipeline) processHeartbeat(instanceID string, env *protocol.Envelope, ping *protocol.HeartbeatPing, reply ReplyFunc) error {
	now := env.Time()

	prior, err := p.store.GetLatestHeartbeat(instanceID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}

	hb := &types.Heartbeat{InstanceID: instanceID, Timestamp: now, UptimeSeconds: ping.Uptime}
	if s := ping.Stats; s != nil {
		hb.CPUPercent = s.CPUPercent
		hb.MemoryUsed = s.MemoryUsed
		hb.MemoryTotal = s.MemoryTotal
		hb.DiskUsed = s.DiskUsed
		hb.DiskTotal = s.DiskTotal
		hb.LoadAvg1 = s.LoadAvg1
		hb.LoadAvg5 = s.LoadAvg5
		hb.LoadAvg15 = s.LoadAvg15
		hb.NetBytesSent = s.NetBytesSent
		hb.NetBytesRecv = s.NetBytesRecv
		hb.ProcessCount = s.ProcessCount
		if s.UptimeSeconds > 0 {
			hb.UptimeSeconds = s.UptimeSeconds
		}
	}
	if err := p.store.PutLatestHeartbeat(hb); err != nil {
		return err
	}
	if s := ping.Stats; s != nil {
		if err := p.store.WriteMetricSample(&types.MetricSample{
			InstanceID:    instanceID,
			Timestamp:     now,
			CPUPercent:    s.CPUPercent,
			MemoryUsed:    s.MemoryUsed,
			MemoryTotal:   s.MemoryTotal,
			DiskUsed:      s.DiskUsed,
			DiskTotal:     s.DiskTotal,
			UptimeSeconds: hb.UptimeSeconds,
			LoadAvg1:      s.LoadAvg1,
			LoadAvg5:      s.LoadAvg5,
			LoadAvg15:     s.LoadAvg15,
			NetBytesSent:  s.NetBytesSent,
			NetBytesRecv:  s.NetBytesRecv,
		}); err != nil {
			return err
		}
	}

	// An instance silent past five periods that reports again has recovered
	if prior != nil && now.Sub(prior.Timestamp) > 5*p.heartbeatPeriod {
		p.appendAndPublishEvent(instanceID, &types.Event{
			ID:         uuid.New().String(),
			InstanceID: instanceID,
			EventType:  types.EventHeartbeatRecovered,
			Timestamp:  now,
			Metadata:   map[string]string{"silentFor": now.Sub(prior.Timestamp).String()},
		})
	}

	p.bus.Publish(instanceID, env)
	if reply != nil {
		reply(protocol.NewPong(env.CorrelationID))
	}
	return nil
}

func (p *Pipeline) processMetrics(instanceID string, env *protocol.Envelope, sample *protocol.MetricsSample) error {
	if err := p.store.WriteMetricSample(&types.MetricSample{
		InstanceID:    instanceID,
		Timestamp:     env.Time(),
		CPUPercent:    sample.CPUPercent,
		MemoryUsed:    sample.MemoryUsed,
		MemoryTotal:   sample.MemoryTotal,
		DiskUsed:      sample.DiskUsed,
		DiskTotal:     sample.DiskTotal,
		UptimeSeconds: sample.UptimeSeconds,
		LoadAvg1:      sample.LoadAvg1,
		LoadAvg5:      sample.LoadAvg5,
		LoadAvg15:     sample.LoadAvg15,
		NetBytesSent:  sample.NetBytesSent,
		NetBytesRecv:  sample.NetBytesRecv,
	}); err != nil {
		return err
	}
	p.bus.Publish(instanceID, env)
	return nil
}

func (p *Pipeline) processLogLine(instanceID string, env *protocol.Envelope, line *protocol.LogLine, publish bool) error {
	ts := env.Time()
	if p.dedupe.seen(instanceID, ts, line.Message) {
		return nil
	}
	if err := p.store.AppendLog(&types.LogEntry{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		Timestamp:  ts,
		Level:      line.Level,
		Source:     line.Source,
		Message:    line.Message,
		Metadata:   line.Metadata,
	}); err != nil {
		return err
	}
	if publish {
		p.bus.Publish(instanceID, env)
	}
	return nil
}

func (p *Pipeline) processLogBatch(instanceID string, env *protocol.Envelope, batch *protocol.LogBatch) error {
	for i := range batch.Lines {
		if err := p.processLogLine(instanceID, env, &batch.Lines[i], false); err != nil {
			return err
		}
	}
	p.bus.Publish(instanceID, env)
	return nil
}

func (p *Pipeline) processEvent(instanceID string, env *protocol.Envelope, ev *protocol.EventInstance) error {
	event := &types.Event{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		EventType:  ev.EventType,
		Timestamp:  env.Time(),
		Metadata:   ev.Metadata,
	}
	if err := p.store.AppendEvent(event); err != nil {
		return err
	}
	p.bus.Publish(instanceID, env)
	return nil
}

func (p *Pipeline) appendAndPublishEvent(instanceID string, event *types.Event) {
	if err := p.store.AppendEvent(event); err != nil {
		p.logger.Error().Err(err).Str("instance_id", instanceID).Msg("Failed to append event")
		return
	}
	p.bus.Publish(instanceID, protocol.NewFrame(protocol.ChannelEvents, protocol.TypeEventInstance, instanceID, &protocol.EventInstance{
		EventType: event.EventType,
		Metadata:  event.Metadata,
	}))
}

func (p *Pipeline) replyError(it item, err error) {
	if it.reply == nil {
		return
	}
	code := protocol.CodeInternal
	var details []string
	if ve, ok := types.IsValidation(err); ok {
		code = protocol.CodeValidation
		details = ve.Details
	} else if errors.Is(err, types.ErrMalformedFrame) {
		code = protocol.CodeMalformed
	} else if errors.Is(err, types.ErrNotFound) {
		code = protocol.CodeNotFound
	}
	it.reply(protocol.NewError(it.env.Channel, code, err.Error(), details, it.env.CorrelationID))
}
