package fleet

import "github.com/roosthq/roost/pkg/types"

// BannerLevel is the severity of a dashboard threshold banner
type BannerLevel string

const (
	BannerWarning  BannerLevel = "warning"
	BannerCritical BannerLevel = "critical"
)

// Banner is one active threshold banner on an instance dashboard
type Banner struct {
	Metric string      `json:"metric"`
	Level  BannerLevel `json:"level"`
	Value  float64     `json:"value"`
}

// Fixed dashboard cutoffs. A banner clears when the value falls below
// the lower edge of its band.
const (
	cpuWarnAbove      = 80.0
	cpuCritAtOrAbove  = 95.0
	memCritAtOrAbove  = 90.0
	diskWarnAtOrAbove = 85.0
	diskCritAtOrAbove = 90.0
)

// Banners derives the active threshold banners from a latest heartbeat.
// A nil heartbeat yields none.
func Banners(hb *types.Heartbeat) []Banner {
	if hb == nil {
		return nil
	}
	var banners []Banner

	switch {
	case hb.CPUPercent >= cpuCritAtOrAbove:
		banners = append(banners, Banner{Metric: "cpuPercent", Level: BannerCritical, Value: hb.CPUPercent})
	case hb.CPUPercent > cpuWarnAbove:
		banners = append(banners, Banner{Metric: "cpuPercent", Level: BannerWarning, Value: hb.CPUPercent})
	}

	if memPct := percent(hb.MemoryUsed, hb.MemoryTotal); memPct >= memCritAtOrAbove {
		banners = append(banners, Banner{Metric: "memoryPercent", Level: BannerCritical, Value: memPct})
	}

	diskPct := percent(hb.DiskUsed, hb.DiskTotal)
	switch {
	case diskPct >= diskCritAtOrAbove:
		banners = append(banners, Banner{Metric: "diskPercent", Level: BannerCritical, Value: diskPct})
	case diskPct >= diskWarnAtOrAbove:
		banners = append(banners, Banner{Metric: "diskPercent", Level: BannerWarning, Value: diskPct})
	}
	return banners
}
