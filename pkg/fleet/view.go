package fleet

import (
	"sort"
	"strings"
	"time"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// StaleAfter is how long a RUNNING instance may go without a heartbeat
// before it counts as stale
const StaleAfter = 5 * time.Minute

// MaxHolder names the instance holding the fleet maximum for a metric
type MaxHolder struct {
	InstanceID string  `json:"instanceId"`
	Value      float64 `json:"value"`
}

// Summary is the on-demand fleet view derived from the instance list
// joined with latest heartbeats
type Summary struct {
	Total      int                          `json:"total"`
	ByStatus   map[types.InstanceStatus]int `json:"byStatus"`
	ByProvider map[types.Provider]int       `json:"byProvider"`

	// Averages cover only instances with a latest heartbeat
	AvgCPUPercent    float64 `json:"avgCpuPercent"`
	AvgMemoryPercent float64 `json:"avgMemoryPercent"`
	AvgDiskPercent   float64 `json:"avgDiskPercent"`

	MaxCPU    *MaxHolder `json:"maxCpu,omitempty"`
	MaxMemory *MaxHolder `json:"maxMemory,omitempty"`
	MaxDisk   *MaxHolder `json:"maxDisk,omitempty"`

	StaleInstanceIDs []string `json:"staleInstanceIds"`
}

// ListOptions filter and order the instance list
type ListOptions struct {
	Search   string
	Status   types.InstanceStatus
	Provider types.Provider
	SortBy   string // name, status, provider, createdAt; default name
	Desc     bool
}

// InstanceRow is one fleet list entry with its latest heartbeat joined in
type InstanceRow struct {
	Instance  *types.Instance  `json:"instance"`
	Heartbeat *types.Heartbeat `json:"heartbeat,omitempty"`
	Stale     bool             `json:"stale"`
}

// Service derives fleet views and dashboard banners
type Service struct {
	store   storage.Store
	nowFunc func() time.Time
}

// NewService creates a fleet service
func NewService(store storage.Store) *Service {
	return &Service{store: store, nowFunc: time.Now}
}

func percent(used, total types.Bytes64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

func isStale(inst *types.Instance, hb *types.Heartbeat, now time.Time) bool {
	if inst.Status != types.StatusRunning {
		return false
	}
	return hb == nil || now.Sub(hb.Timestamp) > StaleAfter
}

// Summarize computes the fleet summary
func (s *Service) Summarize() (*Summary, error) {
	instances, err := s.store.ListInstances()
	if err != nil {
		return nil, err
	}
	heartbeats, err := s.store.ListLatestHeartbeats()
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	summary := &Summary{
		Total:            len(instances),
		ByStatus:         make(map[types.InstanceStatus]int),
		ByProvider:       make(map[types.Provider]int),
		StaleInstanceIDs: []string{},
	}

	var cpuSum, memSum, diskSum float64
	withHeartbeat := 0

	for _, inst := range instances {
		summary.ByStatus[inst.Status]++
		summary.ByProvider[inst.Provider]++

		hb := heartbeats[inst.ID]
		if isStale(inst, hb, now) {
			summary.StaleInstanceIDs = append(summary.StaleInstanceIDs, inst.ID)
		}
		if hb == nil {
			continue
		}
		withHeartbeat++

		memPct := percent(hb.MemoryUsed, hb.MemoryTotal)
		diskPct := percent(hb.DiskUsed, hb.DiskTotal)
		cpuSum += hb.CPUPercent
		memSum += memPct
		diskSum += diskPct

		if summary.MaxCPU == nil || hb.CPUPercent > summary.MaxCPU.Value {
			summary.MaxCPU = &MaxHolder{InstanceID: inst.ID, Value: hb.CPUPercent}
		}
		if summary.MaxMemory == nil || memPct > summary.MaxMemory.Value {
			summary.MaxMemory = &MaxHolder{InstanceID: inst.ID, Value: memPct}
		}
		if summary.MaxDisk == nil || diskPct > summary.MaxDisk.Value {
			summary.MaxDisk = &MaxHolder{InstanceID: inst.ID, Value: diskPct}
		}
	}

	if withHeartbeat > 0 {
		summary.AvgCPUPercent = cpuSum / float64(withHeartbeat)
		summary.AvgMemoryPercent = memSum / float64(withHeartbeat)
		summary.AvgDiskPercent = diskSum / float64(withHeartbeat)
	}
	sort.Strings(summary.StaleInstanceIDs)
	return summary, nil
}

// List returns the filtered, sorted instance list with heartbeats joined
func (s *Service) List(opts ListOptions) ([]*InstanceRow, error) {
	instances, err := s.store.ListInstances()
	if err != nil {
		return nil, err
	}
	heartbeats, err := s.store.ListLatestHeartbeats()
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	var rows []*InstanceRow
	for _, inst := range instances {
		if opts.Search != "" && !strings.Contains(inst.Name, opts.Search) {
			continue
		}
		if opts.Status != "" && inst.Status != opts.Status {
			continue
		}
		if opts.Provider != "" && inst.Provider != opts.Provider {
			continue
		}
		hb := heartbeats[inst.ID]
		rows = append(rows, &InstanceRow{
			Instance:  inst,
			Heartbeat: hb,
			Stale:     isStale(inst, hb, now),
		})
	}

	less := func(a, b *types.Instance) bool { return a.Name < b.Name }
	switch opts.SortBy {
	case "status":
		less = func(a, b *types.Instance) bool { return a.Status < b.Status }
	case "provider":
		less = func(a, b *types.Instance) bool { return a.Provider < b.Provider }
	case "createdAt":
		less = func(a, b *types.Instance) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if opts.Desc {
			return less(rows[j].Instance, rows[i].Instance)
		}
		return less(rows[i].Instance, rows[j].Instance)
	})
	return rows, nil
}
