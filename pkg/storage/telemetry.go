package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roosthq/roost/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// GranularityDuration returns the bucket width for a rollup granularity.
// Raw has no bucket width.
func GranularityDuration(g types.Granularity) time.Duration {
	switch g {
	case types.Granularity1m:
		return time.Minute
	case types.Granularity5m:
		return 5 * time.Minute
	case types.Granularity1h:
		return time.Hour
	case types.Granularity1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// rollupGranularities are maintained incrementally on every raw write
var rollupGranularities = []types.Granularity{
	types.Granularity1m,
	types.Granularity5m,
	types.Granularity1h,
	types.Granularity1d,
}

// MetricFields flattens a sample into the per-field map used by rollups
// and series points
func MetricFields(m *types.MetricSample) map[string]float64 {
	return map[string]float64{
		"cpuPercent":    m.CPUPercent,
		"memoryUsed":    float64(m.MemoryUsed),
		"memoryTotal":   float64(m.MemoryTotal),
		"diskUsed":      float64(m.DiskUsed),
		"diskTotal":     float64(m.DiskTotal),
		"loadAvg1":      m.LoadAvg1,
		"loadAvg5":      m.LoadAvg5,
		"loadAvg15":     m.LoadAvg15,
		"netBytesSent":  float64(m.NetBytesSent),
		"netBytesRecv":  float64(m.NetBytesRecv),
		"uptimeSeconds": float64(m.UptimeSeconds),
	}
}

func tsKey(t time.Time) []byte {
	return fmt.Appendf(nil, "%020d", t.UnixNano())
}

func seriesBucket(tx *bolt.Tx, instanceID string, g types.Granularity, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket(bucketTimeseries)
	var inst *bolt.Bucket
	var err error
	if create {
		inst, err = root.CreateBucketIfNotExists([]byte(instanceID))
		if err != nil {
			return nil, err
		}
		return inst.CreateBucketIfNotExists([]byte(g))
	}
	inst = root.Bucket([]byte(instanceID))
	if inst == nil {
		return nil, nil
	}
	return inst.Bucket([]byte(g)), nil
}

// WriteMetricSample appends a raw sample and updates the containing bucket
// of every coarser granularity in the same transaction
func (s *BoltStore) WriteMetricSample(sample *types.MetricSample) error {
	fields := MetricFields(sample)
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := seriesBucket(tx, sample.InstanceID, types.GranularityRaw, true)
		if err != nil {
			return err
		}
		data, err := json.Marshal(sample)
		if err != nil {
			return err
		}
		if err := raw.Put(tsKey(sample.Timestamp), data); err != nil {
			return err
		}

		for _, g := range rollupGranularities {
			b, err := seriesBucket(tx, sample.InstanceID, g, true)
			if err != nil {
				return err
			}
			bucketStart := sample.Timestamp.Truncate(GranularityDuration(g))
			key := tsKey(bucketStart)

			rollup := RollupBucket{BucketStart: bucketStart, Fields: make(map[string]FieldAgg)}
			if existing := b.Get(key); existing != nil {
				if err := json.Unmarshal(existing, &rollup); err != nil {
					return err
				}
			}
			for name, v := range fields {
				agg, ok := rollup.Fields[name]
				if !ok {
					agg = FieldAgg{Min: v, Max: v}
				}
				agg.Count++
				agg.Sum += v
				if v < agg.Min {
					agg.Min = v
				}
				if v > agg.Max {
					agg.Max = v
				}
				rollup.Fields[name] = agg
			}
			data, err := json.Marshal(&rollup)
			if err != nil {
				return err
			}
			if err := b.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSeries returns the points for one instance and granularity within
// [from, to], in chronological order. Rollup values are bucket averages.
func (s *BoltStore) ListSeries(instanceID string, g types.Granularity, from, to time.Time) ([]SeriesPoint, error) {
	var points []SeriesPoint
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := seriesBucket(tx, instanceID, g, false)
		if err != nil || b == nil {
			return err
		}
		c := b.Cursor()
		max := tsKey(to)
		for k, v := c.Seek(tsKey(from)); k != nil && string(k) <= string(max); k, v = c.Next() {
			if g == types.GranularityRaw {
				var sample types.MetricSample
				if err := json.Unmarshal(v, &sample); err != nil {
					return err
				}
				points = append(points, SeriesPoint{
					InstanceID: instanceID,
					Timestamp:  sample.Timestamp,
					Fields:     MetricFields(&sample),
				})
				continue
			}
			var rollup RollupBucket
			if err := json.Unmarshal(v, &rollup); err != nil {
				return err
			}
			fields := make(map[string]float64, len(rollup.Fields))
			for name, agg := range rollup.Fields {
				if agg.Count > 0 {
					fields[name] = agg.Sum / float64(agg.Count)
				}
			}
			points = append(points, SeriesPoint{
				InstanceID: instanceID,
				Timestamp:  rollup.BucketStart,
				Fields:     fields,
			})
		}
		return nil
	})
	return points, err
}

// CountBuckets counts the stored keys for one instance and granularity
// within [from, to]
func (s *BoltStore) CountBuckets(instanceID string, g types.Granularity, from, to time.Time) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := seriesBucket(tx, instanceID, g, false)
		if err != nil || b == nil {
			return err
		}
		c := b.Cursor()
		max := tsKey(to)
		for k, _ := c.Seek(tsKey(from)); k != nil && string(k) <= string(max); k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Log operations, keyed per instance by nanosecond timestamp + id

func (s *BoltStore) AppendLog(entry *types.LogEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketLogs).CreateBucketIfNotExists([]byte(entry.InstanceID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		key := fmt.Appendf(nil, "%020d/%s", entry.Timestamp.UnixNano(), entry.ID)
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListLogs(instanceID string, from, to time.Time, limit int) ([]*types.LogEntry, error) {
	var entries []*types.LogEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLogs).Bucket([]byte(instanceID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		min := fmt.Appendf(nil, "%020d", from.UnixNano())
		max := fmt.Appendf(nil, "%020d~", to.UnixNano())
		for k, v := c.Seek(min); k != nil && string(k) <= string(max); k, v = c.Next() {
			var entry types.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Event operations

func (s *BoltStore) AppendEvent(event *types.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(event.InstanceID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		key := fmt.Appendf(nil, "%020d/%s", event.Timestamp.UnixNano(), event.ID)
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListEvents(instanceID string, limit int) ([]*types.Event, error) {
	var events []*types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket([]byte(instanceID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var event types.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			events = append(events, &event)
			if limit > 0 && len(events) >= limit {
				return nil
			}
		}
		return nil
	})
	return events, err
}

// Audit log, append-only

func (s *BoltStore) AppendAudit(entry *types.AuditEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		key := fmt.Appendf(nil, "%020d/%s", entry.Timestamp.UnixNano(), entry.ID)
		return tx.Bucket(bucketAudit).Put(key, data)
	})
}

func (s *BoltStore) ListAudit(limit int) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry types.AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	return entries, err
}
