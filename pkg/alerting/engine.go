package alerting

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roosthq/roost/pkg/events"
	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/protocol"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// ruleState tracks one (rule, instance) pair through the alert machine
type ruleState struct {
	state          types.AlertState
	breachingSince time.Time
	event          *types.AlertEvent
	lastNotified   map[types.NotifyChannel]time.Time
}

// Engine evaluates alert rules on each new metric sample. State lives
// per (rule, instance): fleet-wide rules keep independent state per
// instance.
type Engine struct {
	store    storage.Store
	bus      *events.Bus
	notifier *notifier
	logger   zerolog.Logger
	nowFunc  func() time.Time

	mu     sync.Mutex
	states map[string]*ruleState

	sub    *events.Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates the alerting engine. A nil sender falls back to the
// log sink.
func NewEngine(store storage.Store, bus *events.Bus, sender Sender) *Engine {
	if sender == nil {
		sender = LogSender()
	}
	return &Engine{
		store:    store,
		bus:      bus,
		notifier: newNotifier(sender),
		logger:   log.WithComponent("alerting"),
		nowFunc:  time.Now,
		states:   make(map[string]*ruleState),
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to the fan-out bus and evaluates rules as metric
// samples arrive
func (e *Engine) Start() {
	e.sub = e.bus.Subscribe(0)
	e.wg.Add(1)
	go e.run()
	e.logger.Info().Msg("Alerting engine started")
}

// Stop detaches from the bus and waits for the evaluation loop
func (e *Engine) Stop() {
	close(e.stopCh)
	if e.sub != nil {
		e.bus.Unsubscribe(e.sub)
	}
	e.wg.Wait()
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case env, ok := <-e.sub.C():
			if !ok {
				return
			}
			if env.Channel != protocol.ChannelMetrics || env.Type != protocol.TypeMetricsSample {
				continue
			}
			if err := e.Evaluate(env.InstanceID, env.Time()); err != nil {
				e.logger.Error().Err(err).Str("instance_id", env.InstanceID).Msg("Rule evaluation failed")
			}
		}
	}
}

// Evaluate runs every enabled rule that targets the instance (or the
// fleet) against the sample window ending at now
func (e *Engine) Evaluate(instanceID string, now time.Time) error {
	rules, err := e.store.ListAlertRules()
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.TargetInstanceID != "" && rule.TargetInstanceID != instanceID {
			continue
		}
		if err := e.evaluateRule(rule, instanceID, now); err != nil {
			e.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("Rule evaluation failed")
		}
	}
	return nil
}

// windowAverages computes the mean of each condition metric over the
// rule's evaluation window
func (e *Engine) windowAverages(rule *types.AlertRule, instanceID string, now time.Time) (map[string]float64, int, error) {
	from := now.Add(-time.Duration(rule.WindowSec) * time.Second)
	points, err := e.store.ListSeries(instanceID, types.GranularityRaw, from, now)
	if err != nil {
		return nil, 0, err
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, pt := range points {
		for _, cond := range rule.Conditions {
			if v, ok := pt.Fields[cond.Metric]; ok {
				sums[cond.Metric] += v
				counts[cond.Metric]++
			}
		}
	}

	averages := make(map[string]float64, len(sums))
	for metric, sum := range sums {
		averages[metric] = sum / float64(counts[metric])
	}
	return averages, len(points), nil
}

func (e *Engine) evaluateRule(rule *types.AlertRule, instanceID string, now time.Time) error {
	averages, samples, err := e.windowAverages(rule, instanceID, now)
	if err != nil {
		return err
	}
	if samples == 0 {
		return nil
	}

	breaching, trigger := e.checkConditions(rule, averages)

	key := rule.ID + "/" + instanceID
	e.mu.Lock()
	st, ok := e.states[key]
	if !ok {
		st = &ruleState{state: types.AlertInactive, lastNotified: make(map[types.NotifyChannel]time.Time)}
		e.states[key] = st
	}
	e.mu.Unlock()

	switch st.state {
	case types.AlertInactive, types.AlertResolved:
		if !breaching {
			return nil
		}
		st.breachingSince = now
		st.state = types.AlertPending
		if rule.PendingForSec == 0 {
			return e.fire(rule, instanceID, st, trigger, averages, now)
		}
	case types.AlertPending:
		if !breaching {
			st.state = types.AlertInactive
			return nil
		}
		if now.Sub(st.breachingSince) >= time.Duration(rule.PendingForSec)*time.Second {
			return e.fire(rule, instanceID, st, trigger, averages, now)
		}
	case types.AlertFiring:
		if !breaching {
			return e.resolve(rule, st, now)
		}
		e.notify(rule, st, now)
		return e.store.PutAlertEvent(st.event)
	}
	return nil
}

// checkConditions applies the combinator and returns the first breaching
// condition as the trigger
func (e *Engine) checkConditions(rule *types.AlertRule, averages map[string]float64) (bool, *types.AlertCondition) {
	var trigger *types.AlertCondition
	met := 0
	for i, cond := range rule.Conditions {
		value, ok := averages[cond.Metric]
		if !ok {
			continue
		}
		if conditionMet(cond, value) {
			met++
			if trigger == nil {
				trigger = &rule.Conditions[i]
			}
		}
	}
	if rule.Combinator == types.CombinatorAnd {
		return met == len(rule.Conditions), trigger
	}
	return met > 0, trigger
}

func (e *Engine) fire(rule *types.AlertRule, instanceID string, st *ruleState, trigger *types.AlertCondition, averages map[string]float64, now time.Time) error {
	st.state = types.AlertFiring
	value := averages[trigger.Metric]
	st.event = &types.AlertEvent{
		ID:         uuid.New().String(),
		RuleID:     rule.ID,
		InstanceID: instanceID,
		State:      types.AlertFiring,
		Severity:   rule.Severity,
		Metric:     trigger.Metric,
		Value:      value,
		Threshold:  trigger.Threshold,
		Message:    fmt.Sprintf("%s is %g (threshold: %g)", trigger.Metric, value, trigger.Threshold),
		FiredAt:    now,
	}
	e.notify(rule, st, now)
	e.logger.Warn().
		Str("rule_id", rule.ID).
		Str("instance_id", instanceID).
		Str("message", st.event.Message).
		Msg("Alert firing")
	return e.store.PutAlertEvent(st.event)
}

func (e *Engine) resolve(rule *types.AlertRule, st *ruleState, now time.Time) error {
	st.state = types.AlertResolved
	if st.event != nil {
		resolvedAt := now
		st.event.State = types.AlertResolved
		st.event.ResolvedAt = &resolvedAt
		if err := e.store.PutAlertEvent(st.event); err != nil {
			return err
		}
	}
	e.logger.Info().Str("rule_id", rule.ID).Msg("Alert resolved")
	st.event = nil
	return nil
}

// notify emits on every configured channel, holding each channel to at
// most one notification per cooldown. Cooldown zero disables
// suppression.
func (e *Engine) notify(rule *types.AlertRule, st *ruleState, now time.Time) {
	cooldown := time.Duration(rule.CooldownSec) * time.Second
	for _, channel := range rule.Notify.Channels {
		if cooldown > 0 {
			if last, ok := st.lastNotified[channel]; ok && now.Sub(last) < cooldown {
				continue
			}
		}
		if e.notifier.dispatch(channel, rule, st.event) {
			st.lastNotified[channel] = now
		}
	}
}
