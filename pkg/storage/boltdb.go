package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roosthq/roost/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketUsers            = []byte("users")
	bucketApiKeys          = []byte("api_keys")
	bucketApiKeyHashes     = []byte("api_key_hashes")
	bucketTeams            = []byte("teams")
	bucketTeamMembers      = []byte("team_members")
	bucketInstances        = []byte("instances")
	bucketLatestHeartbeats = []byte("latest_heartbeats")
	bucketTimeseries       = []byte("timeseries")
	bucketLogs             = []byte("logs")
	bucketEvents           = []byte("events")
	bucketTerminalSessions = []byte("terminal_sessions")
	bucketAlertRules       = []byte("alert_rules")
	bucketAlertEvents      = []byte("alert_events")
	bucketCostEntries      = []byte("cost_entries")
	bucketBudgets          = []byte("budgets")
	bucketBudgetAlerts     = []byte("budget_alerts")
	bucketCostAnomalies    = []byte("cost_anomalies")
	bucketRecommendations  = []byte("recommendations")
	bucketDriftReports     = []byte("drift_reports")
	bucketSuppressRules    = []byte("drift_suppress_rules")
	bucketRemediationJobs  = []byte("remediation_jobs")
	bucketSboms            = []byte("sboms")
	bucketCves             = []byte("cves")
	bucketSecretFindings   = []byte("secret_findings")
	bucketSecurityScores   = []byte("security_scores")
	bucketExtensions       = []byte("extensions")
	bucketExtInstalls      = []byte("extension_installations")
	bucketTemplates        = []byte("templates")
	bucketScheduledTasks   = []byte("scheduled_tasks")
	bucketTaskExecutions   = []byte("task_executions")
	bucketAudit            = []byte("audit")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "roost.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketUsers,
			bucketApiKeys,
			bucketApiKeyHashes,
			bucketTeams,
			bucketTeamMembers,
			bucketInstances,
			bucketLatestHeartbeats,
			bucketTimeseries,
			bucketLogs,
			bucketEvents,
			bucketTerminalSessions,
			bucketAlertRules,
			bucketAlertEvents,
			bucketCostEntries,
			bucketBudgets,
			bucketBudgetAlerts,
			bucketCostAnomalies,
			bucketRecommendations,
			bucketDriftReports,
			bucketSuppressRules,
			bucketRemediationJobs,
			bucketSboms,
			bucketCves,
			bucketSecretFindings,
			bucketSecurityScores,
			bucketExtensions,
			bucketExtInstalls,
			bucketTemplates,
			bucketScheduledTasks,
			bucketTaskExecutions,
			bucketAudit,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// put marshals v and stores it under key in bucket
func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

// get unmarshals the value under key in bucket into v
func get(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return types.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// User operations

func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		var exists bool
		err := b.ForEach(func(k, v []byte) error {
			var u types.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			if strings.EqualFold(u.Email, user.Email) {
				exists = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: email %s already registered", types.ErrConflict, user.Email)
		}
		return put(tx, bucketUsers, user.ID, user)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketUsers, id, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByEmail(email string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			if strings.EqualFold(user.Email, email) {
				found = &user
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

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var users []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, &user)
			return nil
		})
	})
	return users, err
}

func (s *BoltStore) UpdateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(user.ID)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketUsers, user.ID, user)
	})
}

// DeleteUser removes a user, cascading memberships and revoking API keys
func (s *BoltStore) DeleteUser(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		if users.Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		if err := users.Delete([]byte(id)); err != nil {
			return err
		}

		// Cascade team memberships
		members := tx.Bucket(bucketTeamMembers)
		var memberKeys [][]byte
		err := members.ForEach(func(k, v []byte) error {
			var m types.TeamMember
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.UserID == id {
				memberKeys = append(memberKeys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range memberKeys {
			if err := members.Delete(k); err != nil {
				return err
			}
		}

		// Revoke API keys
		keys := tx.Bucket(bucketApiKeys)
		hashes := tx.Bucket(bucketApiKeyHashes)
		var keyIDs [][]byte
		err = keys.ForEach(func(k, v []byte) error {
			var key types.ApiKey
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			if key.UserID == id {
				keyIDs = append(keyIDs, append([]byte(nil), k...))
				if err := hashes.Delete([]byte(key.KeyHash)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keyIDs {
			if err := keys.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// API key operations. KeyHash is not part of the JSON wire form, so keys
// are stored with an explicit hash field alongside.

type storedApiKey struct {
	types.ApiKey
	KeyHash string `json:"keyHash"`
}

func (s *BoltStore) CreateApiKey(key *types.ApiKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketApiKeyHashes).Get([]byte(key.KeyHash)) != nil {
			return fmt.Errorf("%w: duplicate key hash", types.ErrConflict)
		}
		if err := put(tx, bucketApiKeys, key.ID, &storedApiKey{ApiKey: *key, KeyHash: key.KeyHash}); err != nil {
			return err
		}
		return tx.Bucket(bucketApiKeyHashes).Put([]byte(key.KeyHash), []byte(key.ID))
	})
}

func (s *BoltStore) GetApiKey(id string) (*types.ApiKey, error) {
	var stored storedApiKey
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketApiKeys, id, &stored)
	})
	if err != nil {
		return nil, err
	}
	key := stored.ApiKey
	key.KeyHash = stored.KeyHash
	return &key, nil
}

func (s *BoltStore) GetApiKeyByHash(hash string) (*types.ApiKey, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketApiKeyHashes).Get([]byte(hash))
		if data == nil {
			return types.ErrNotFound
		}
		id = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetApiKey(id)
}

func (s *BoltStore) ListApiKeysByUser(userID string) ([]*types.ApiKey, error) {
	var keys []*types.ApiKey
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketApiKeys).ForEach(func(k, v []byte) error {
			var stored storedApiKey
			if err := json.Unmarshal(v, &stored); err != nil {
				return err
			}
			if stored.UserID == userID {
				key := stored.ApiKey
				key.KeyHash = stored.KeyHash
				keys = append(keys, &key)
			}
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) DeleteApiKey(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var stored storedApiKey
		if err := get(tx, bucketApiKeys, id, &stored); err != nil {
			return err
		}
		if err := tx.Bucket(bucketApiKeyHashes).Delete([]byte(stored.KeyHash)); err != nil {
			return err
		}
		return tx.Bucket(bucketApiKeys).Delete([]byte(id))
	})
}

// Team operations

func (s *BoltStore) CreateTeam(team *types.Team) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var dup bool
		err := tx.Bucket(bucketTeams).ForEach(func(k, v []byte) error {
			var t types.Team
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.Slug == team.Slug {
				dup = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: slug %s already in use", types.ErrConflict, team.Slug)
		}
		return put(tx, bucketTeams, team.ID, team)
	})
}

func (s *BoltStore) GetTeam(id string) (*types.Team, error) {
	var team types.Team
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketTeams, id, &team)
	})
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *BoltStore) GetTeamBySlug(slug string) (*types.Team, error) {
	var found *types.Team
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTeams).ForEach(func(k, v []byte) error {
			var team types.Team
			if err := json.Unmarshal(v, &team); err != nil {
				return err
			}
			if team.Slug == slug {
				found = &team
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

func (s *BoltStore) ListTeams() ([]*types.Team, error) {
	var teams []*types.Team
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTeams).ForEach(func(k, v []byte) error {
			var team types.Team
			if err := json.Unmarshal(v, &team); err != nil {
				return err
			}
			teams = append(teams, &team)
			return nil
		})
	})
	return teams, err
}

func (s *BoltStore) UpdateTeam(team *types.Team) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTeams).Get([]byte(team.ID)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketTeams, team.ID, team)
	})
}

// DeleteTeam removes a team and cascades its memberships
func (s *BoltStore) DeleteTeam(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTeams).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		if err := tx.Bucket(bucketTeams).Delete([]byte(id)); err != nil {
			return err
		}
		members := tx.Bucket(bucketTeamMembers)
		c := members.Cursor()
		prefix := []byte(id + "/")
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := members.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Team member operations, keyed by "teamID/userID"

func memberKey(teamID, userID string) string {
	return teamID + "/" + userID
}

func (s *BoltStore) PutTeamMember(member *types.TeamMember) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTeams).Get([]byte(member.TeamID)) == nil {
			return fmt.Errorf("%w: team %s", types.ErrNotFound, member.TeamID)
		}
		if tx.Bucket(bucketUsers).Get([]byte(member.UserID)) == nil {
			return fmt.Errorf("%w: user %s", types.ErrNotFound, member.UserID)
		}
		return put(tx, bucketTeamMembers, memberKey(member.TeamID, member.UserID), member)
	})
}

func (s *BoltStore) GetTeamMember(teamID, userID string) (*types.TeamMember, error) {
	var member types.TeamMember
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketTeamMembers, memberKey(teamID, userID), &member)
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (s *BoltStore) ListTeamMembers(teamID string) ([]*types.TeamMember, error) {
	var members []*types.TeamMember
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTeamMembers).Cursor()
		prefix := []byte(teamID + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var member types.TeamMember
			if err := json.Unmarshal(v, &member); err != nil {
				return err
			}
			members = append(members, &member)
		}
		return nil
	})
	return members, err
}

func (s *BoltStore) ListTeamsByUser(userID string) ([]*types.TeamMember, error) {
	var members []*types.TeamMember
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTeamMembers).ForEach(func(k, v []byte) error {
			var member types.TeamMember
			if err := json.Unmarshal(v, &member); err != nil {
				return err
			}
			if member.UserID == userID {
				members = append(members, &member)
			}
			return nil
		})
	})
	return members, err
}

func (s *BoltStore) DeleteTeamMember(teamID, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(memberKey(teamID, userID))
		if tx.Bucket(bucketTeamMembers).Get(key) == nil {
			return types.ErrNotFound
		}
		return tx.Bucket(bucketTeamMembers).Delete(key)
	})
}
