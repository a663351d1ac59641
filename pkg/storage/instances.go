package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roosthq/roost/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Instance operations

func (s *BoltStore) CreateInstance(inst *types.Instance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var dup bool
		err := tx.Bucket(bucketInstances).ForEach(func(k, v []byte) error {
			var existing types.Instance
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Name == inst.Name {
				dup = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: instance name %s already registered", types.ErrConflict, inst.Name)
		}
		return put(tx, bucketInstances, inst.ID, inst)
	})
}

func (s *BoltStore) GetInstance(id string) (*types.Instance, error) {
	var inst types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketInstances, id, &inst)
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *BoltStore) GetInstanceByName(name string) (*types.Instance, error) {
	var found *types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).ForEach(func(k, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			if inst.Name == name {
				found = &inst
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, types.ErrNotFound
	}
	return found, nil
}

func (s *BoltStore) ListInstances() ([]*types.Instance, error) {
	var instances []*types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).ForEach(func(k, v []byte) error {
			var inst types.Instance
			if err := json.Unmarshal(v, &inst); err != nil {
				return err
			}
			instances = append(instances, &inst)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances, nil
}

func (s *BoltStore) UpdateInstance(inst *types.Instance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketInstances).Get([]byte(inst.ID)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketInstances, inst.ID, inst)
	})
}

// DeleteInstance removes an instance and its latest heartbeat
func (s *BoltStore) DeleteInstance(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketInstances).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		if err := tx.Bucket(bucketInstances).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketLatestHeartbeats).Delete([]byte(id))
	})
}

// Latest heartbeat cache. A newer sample atomically replaces the prior
// one; stale arrivals (older timestamp) are ignored.

func (s *BoltStore) PutLatestHeartbeat(hb *types.Heartbeat) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLatestHeartbeats)
		if data := b.Get([]byte(hb.InstanceID)); data != nil {
			var prev types.Heartbeat
			if err := json.Unmarshal(data, &prev); err != nil {
				return err
			}
			if prev.Timestamp.After(hb.Timestamp) {
				return nil
			}
		}
		return put(tx, bucketLatestHeartbeats, hb.InstanceID, hb)
	})
}

func (s *BoltStore) GetLatestHeartbeat(instanceID string) (*types.Heartbeat, error) {
	var hb types.Heartbeat
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketLatestHeartbeats, instanceID, &hb)
	})
	if err != nil {
		return nil, err
	}
	return &hb, nil
}

func (s *BoltStore) ListLatestHeartbeats() (map[string]*types.Heartbeat, error) {
	out := make(map[string]*types.Heartbeat)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLatestHeartbeats).ForEach(func(k, v []byte) error {
			var hb types.Heartbeat
			if err := json.Unmarshal(v, &hb); err != nil {
				return err
			}
			out[string(k)] = &hb
			return nil
		})
	})
	return out, err
}

// Terminal session records (open/close markers only)

func (s *BoltStore) PutTerminalSession(sess *types.TerminalSession) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketTerminalSessions, sess.ID, sess)
	})
}

func (s *BoltStore) GetTerminalSession(id string) (*types.TerminalSession, error) {
	var sess types.TerminalSession
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketTerminalSessions, id, &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BoltStore) ListTerminalSessions(instanceID string) ([]*types.TerminalSession, error) {
	var sessions []*types.TerminalSession
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTerminalSessions).ForEach(func(k, v []byte) error {
			var sess types.TerminalSession
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			if instanceID == "" || sess.InstanceID == instanceID {
				sessions = append(sessions, &sess)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}
