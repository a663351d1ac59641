package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// MaxPoints caps how many sample points one query may return
const MaxPoints = 500

// Range is a named query window with a fixed granularity
type Range string

const (
	Range1h  Range = "1h"
	Range6h  Range = "6h"
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
)

type rangeSpec struct {
	window      time.Duration
	granularity types.Granularity
}

var rangeSpecs = map[Range]rangeSpec{
	Range1h:  {time.Hour, types.Granularity1m},
	Range6h:  {6 * time.Hour, types.Granularity5m},
	Range24h: {24 * time.Hour, types.Granularity5m},
	Range7d:  {7 * 24 * time.Hour, types.Granularity1h},
	Range30d: {30 * 24 * time.Hour, types.Granularity1d},
}

// Params describes one time-series query. Either Range or the explicit
// From/To/Granularity triple must be set; an empty InstanceID queries
// the whole fleet.
type Params struct {
	InstanceID  string
	Fields      []string
	From        time.Time
	To          time.Time
	Granularity types.Granularity
	Range       Range
}

// Service resolves time-series queries against the store
type Service struct {
	store   storage.Store
	nowFunc func() time.Time
}

// NewService creates a query service
func NewService(store storage.Store) *Service {
	return &Service{store: store, nowFunc: time.Now}
}

// resolve normalizes params into an explicit window and granularity
func (s *Service) resolve(p *Params) (types.Granularity, time.Time, time.Time, error) {
	if p.Range != "" {
		spec, ok := rangeSpecs[p.Range]
		if !ok {
			return "", time.Time{}, time.Time{}, types.Validationf("unknown range %q", p.Range)
		}
		to := s.nowFunc()
		return spec.granularity, to.Add(-spec.window), to, nil
	}
	if !types.ValidGranularity(p.Granularity) {
		return "", time.Time{}, time.Time{}, types.Validationf("unknown granularity %q", p.Granularity)
	}
	if p.From.IsZero() || p.To.IsZero() || !p.From.Before(p.To) {
		return "", time.Time{}, time.Time{}, types.Validationf("from must precede to")
	}
	return p.Granularity, p.From, p.To, nil
}

// Query returns chronologically ordered sample points. Fleet queries
// (empty InstanceID) return points tagged with their instance id and
// never aggregate across instances.
func (s *Service) Query(p *Params) ([]storage.SeriesPoint, error) {
	g, from, to, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	instanceIDs := []string{p.InstanceID}
	if p.InstanceID == "" {
		instances, err := s.store.ListInstances()
		if err != nil {
			return nil, err
		}
		instanceIDs = instanceIDs[:0]
		for _, inst := range instances {
			instanceIDs = append(instanceIDs, inst.ID)
		}
	}

	total := 0
	for _, id := range instanceIDs {
		n, err := s.store.CountBuckets(id, g, from, to)
		if err != nil {
			return nil, err
		}
		total += n
	}
	if total > MaxPoints {
		return nil, fmt.Errorf("%w: query spans %d points (limit %d), widen granularity or narrow range", types.ErrTooManyPoints, total, MaxPoints)
	}

	var points []storage.SeriesPoint
	for _, id := range instanceIDs {
		series, err := s.store.ListSeries(id, g, from, to)
		if err != nil {
			return nil, err
		}
		points = append(points, series...)
	}

	if len(p.Fields) > 0 {
		wanted := make(map[string]bool, len(p.Fields))
		for _, f := range p.Fields {
			wanted[f] = true
		}
		for i := range points {
			fields := make(map[string]float64, len(p.Fields))
			for name, v := range points[i].Fields {
				if wanted[name] {
					fields[name] = v
				}
			}
			points[i].Fields = fields
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}
