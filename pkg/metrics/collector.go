package metrics

import (
	"time"

	"github.com/roosthq/roost/pkg/fleet"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// Collector refreshes the fleet gauges from the store
type Collector struct {
	store  storage.Store
	view   *fleet.Service
	stopCh chan struct{}
}

// NewCollector creates a new collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		view:   fleet.NewService(store),
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting every 15 seconds
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectInstances()
	c.collectAlertRules()
	c.collectDrift()
	c.collectSecurity()
	c.collectTasks()
}

func (c *Collector) collectInstances() {
	instances, err := c.store.ListInstances()
	if err != nil {
		return
	}

	counts := make(map[types.Provider]map[types.InstanceStatus]int)
	for _, inst := range instances {
		if counts[inst.Provider] == nil {
			counts[inst.Provider] = make(map[types.InstanceStatus]int)
		}
		counts[inst.Provider][inst.Status]++
	}

	InstancesTotal.Reset()
	for provider, statuses := range counts {
		for status, count := range statuses {
			InstancesTotal.WithLabelValues(string(provider), string(status)).Set(float64(count))
		}
	}

	if summary, err := c.view.Summarize(); err == nil {
		InstancesStale.Set(float64(len(summary.StaleInstanceIDs)))
	}
}

func (c *Collector) collectAlertRules() {
	rules, err := c.store.ListAlertRules()
	if err != nil {
		return
	}
	enabled := 0
	for _, rule := range rules {
		if rule.Enabled {
			enabled++
		}
	}
	AlertRulesEnabled.Set(float64(enabled))
}

func (c *Collector) collectDrift() {
	reports, err := c.store.ListDriftReports("")
	if err != nil {
		return
	}
	open := 0
	for _, report := range reports {
		switch report.Status {
		case types.DriftDetected, types.DriftAcknowledged, types.DriftRemediating:
			open++
		}
	}
	DriftReportsOpen.Set(float64(open))
}

func (c *Collector) collectSecurity() {
	scores, err := c.store.ListSecurityScores()
	if err != nil || len(scores) == 0 {
		return
	}
	var sum int
	for _, score := range scores {
		sum += score.Score
	}
	FleetSecurityScore.Set(float64(sum) / float64(len(scores)))
}

func (c *Collector) collectTasks() {
	tasks, err := c.store.ListScheduledTasks()
	if err != nil {
		return
	}
	active := 0
	for _, task := range tasks {
		if task.Status == types.TaskActive {
			active++
		}
	}
	ScheduledTasksActive.Set(float64(active))
}
