package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSummarize(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }

	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i1", Name: "web-1", Provider: types.ProviderFly, Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i2", Name: "web-2", Provider: types.ProviderFly, Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i3", Name: "db-1", Provider: types.ProviderDocker, Status: types.StatusStopped}))

	require.NoError(t, store.PutLatestHeartbeat(&types.Heartbeat{
		InstanceID: "i1", Timestamp: now.Add(-time.Minute),
		CPUPercent: 40, MemoryUsed: 400, MemoryTotal: 1000, DiskUsed: 200, DiskTotal: 1000,
	}))
	require.NoError(t, store.PutLatestHeartbeat(&types.Heartbeat{
		InstanceID: "i2", Timestamp: now.Add(-10 * time.Minute),
		CPUPercent: 80, MemoryUsed: 800, MemoryTotal: 1000, DiskUsed: 600, DiskTotal: 1000,
	}))

	summary, err := svc.Summarize()
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByStatus[types.StatusRunning])
	assert.Equal(t, 1, summary.ByStatus[types.StatusStopped])
	assert.Equal(t, 2, summary.ByProvider[types.ProviderFly])
	assert.Equal(t, 1, summary.ByProvider[types.ProviderDocker])

	// Averages only over the two instances with heartbeats
	assert.InDelta(t, 60.0, summary.AvgCPUPercent, 0.001)
	assert.InDelta(t, 60.0, summary.AvgMemoryPercent, 0.001)
	assert.InDelta(t, 40.0, summary.AvgDiskPercent, 0.001)

	require.NotNil(t, summary.MaxCPU)
	assert.Equal(t, "i2", summary.MaxCPU.InstanceID)
	assert.Equal(t, 80.0, summary.MaxCPU.Value)

	// i2 is RUNNING and silent for 10 minutes; i3 is STOPPED and never counts
	assert.Equal(t, []string{"i2"}, summary.StaleInstanceIDs)
}

func TestStaleRequiresRunning(t *testing.T) {
	now := time.Now()
	hb := &types.Heartbeat{InstanceID: "i1", Timestamp: now.Add(-400 * time.Second)}

	assert.True(t, isStale(&types.Instance{Status: types.StatusRunning}, hb, now))
	assert.False(t, isStale(&types.Instance{Status: types.StatusStopped}, hb, now))
	assert.True(t, isStale(&types.Instance{Status: types.StatusRunning}, nil, now))
}

func TestListSearchAndSort(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store)

	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i1", Name: "web-1", Provider: types.ProviderFly, Status: types.StatusRunning}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i2", Name: "web-2", Provider: types.ProviderDocker, Status: types.StatusStopped}))
	require.NoError(t, store.CreateInstance(&types.Instance{ID: "i3", Name: "db-1", Provider: types.ProviderFly, Status: types.StatusRunning}))

	rows, err := svc.List(ListOptions{Search: "web"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "web-1", rows[0].Instance.Name)
	assert.Equal(t, "web-2", rows[1].Instance.Name)

	rows, err = svc.List(ListOptions{Status: types.StatusRunning})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = svc.List(ListOptions{Provider: types.ProviderDocker})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "web-2", rows[0].Instance.Name)

	rows, err = svc.List(ListOptions{Desc: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "web-2", rows[0].Instance.Name)
	assert.Equal(t, "db-1", rows[2].Instance.Name)
}

func TestBanners(t *testing.T) {
	tests := []struct {
		name string
		hb   *types.Heartbeat
		want []Banner
	}{
		{"nil heartbeat", nil, nil},
		{"all nominal", &types.Heartbeat{CPUPercent: 50, MemoryUsed: 100, MemoryTotal: 1000, DiskUsed: 100, DiskTotal: 1000}, nil},
		{
			"cpu warning above 80",
			&types.Heartbeat{CPUPercent: 81, MemoryTotal: 1000, DiskTotal: 1000},
			[]Banner{{Metric: "cpuPercent", Level: BannerWarning, Value: 81}},
		},
		{
			"cpu exactly 80 is clear",
			&types.Heartbeat{CPUPercent: 80, MemoryTotal: 1000, DiskTotal: 1000},
			nil,
		},
		{
			"cpu critical at 95",
			&types.Heartbeat{CPUPercent: 95, MemoryTotal: 1000, DiskTotal: 1000},
			[]Banner{{Metric: "cpuPercent", Level: BannerCritical, Value: 95}},
		},
		{
			"memory critical at 90",
			&types.Heartbeat{MemoryUsed: 900, MemoryTotal: 1000, DiskTotal: 1000},
			[]Banner{{Metric: "memoryPercent", Level: BannerCritical, Value: 90}},
		},
		{
			"disk warning at 85",
			&types.Heartbeat{MemoryTotal: 1000, DiskUsed: 850, DiskTotal: 1000},
			[]Banner{{Metric: "diskPercent", Level: BannerWarning, Value: 85}},
		},
		{
			"disk critical at 90",
			&types.Heartbeat{MemoryTotal: 1000, DiskUsed: 900, DiskTotal: 1000},
			[]Banner{{Metric: "diskPercent", Level: BannerCritical, Value: 90}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Banners(tt.hb))
		})
	}
}
