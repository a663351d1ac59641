package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/roosthq/roost/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Extension catalog operations, keyed by slug

func (s *BoltStore) CreateExtension(ext *types.Extension) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketExtensions).Get([]byte(ext.Slug)) != nil {
			return fmt.Errorf("%w: extension %s already exists", types.ErrConflict, ext.Slug)
		}
		return put(tx, bucketExtensions, ext.Slug, ext)
	})
}

func (s *BoltStore) GetExtensionBySlug(slug string) (*types.Extension, error) {
	var ext types.Extension
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketExtensions, slug, &ext)
	})
	if err != nil {
		return nil, err
	}
	return &ext, nil
}

func (s *BoltStore) ListExtensions() ([]*types.Extension, error) {
	var exts []*types.Extension
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExtensions).ForEach(func(k, v []byte) error {
			var ext types.Extension
			if err := json.Unmarshal(v, &ext); err != nil {
				return err
			}
			exts = append(exts, &ext)
			return nil
		})
	})
	return exts, err
}

func (s *BoltStore) UpdateExtension(ext *types.Extension) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketExtensions).Get([]byte(ext.Slug)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketExtensions, ext.Slug, ext)
	})
}

func (s *BoltStore) PutExtensionInstallation(install *types.ExtensionInstallation) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketExtInstalls, install.ID, install)
	})
}

func (s *BoltStore) ListExtensionInstallations(instanceID string) ([]*types.ExtensionInstallation, error) {
	var installs []*types.ExtensionInstallation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExtInstalls).ForEach(func(k, v []byte) error {
			var install types.ExtensionInstallation
			if err := json.Unmarshal(v, &install); err != nil {
				return err
			}
			if instanceID == "" || install.InstanceID == instanceID {
				installs = append(installs, &install)
			}
			return nil
		})
	})
	return installs, err
}

func (s *BoltStore) DeleteExtensionInstallation(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketExtInstalls).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		return tx.Bucket(bucketExtInstalls).Delete([]byte(id))
	})
}

// Deployment template operations

func (s *BoltStore) CreateTemplate(tpl *types.DeploymentTemplate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var dup bool
		err := tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			var existing types.DeploymentTemplate
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Slug == tpl.Slug {
				dup = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("%w: template slug %s already in use", types.ErrConflict, tpl.Slug)
		}
		return put(tx, bucketTemplates, tpl.ID, tpl)
	})
}

// GetTemplate resolves a template by id or slug
func (s *BoltStore) GetTemplate(idOrSlug string) (*types.DeploymentTemplate, error) {
	var found *types.DeploymentTemplate
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTemplates)
		if data := b.Get([]byte(idOrSlug)); data != nil {
			var tpl types.DeploymentTemplate
			if err := json.Unmarshal(data, &tpl); err != nil {
				return err
			}
			found = &tpl
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var tpl types.DeploymentTemplate
			if err := json.Unmarshal(v, &tpl); err != nil {
				return err
			}
			if tpl.Slug == idOrSlug {
				found = &tpl
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

func (s *BoltStore) ListTemplates() ([]*types.DeploymentTemplate, error) {
	var templates []*types.DeploymentTemplate
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(k, v []byte) error {
			var tpl types.DeploymentTemplate
			if err := json.Unmarshal(v, &tpl); err != nil {
				return err
			}
			templates = append(templates, &tpl)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

func (s *BoltStore) DeleteTemplate(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTemplates).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		return tx.Bucket(bucketTemplates).Delete([]byte(id))
	})
}

// Scheduled task operations

func (s *BoltStore) CreateScheduledTask(task *types.ScheduledTask) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketScheduledTasks, task.ID, task)
	})
}

func (s *BoltStore) GetScheduledTask(id string) (*types.ScheduledTask, error) {
	var task types.ScheduledTask
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketScheduledTasks, id, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListScheduledTasks() ([]*types.ScheduledTask, error) {
	var tasks []*types.ScheduledTask
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketScheduledTasks).ForEach(func(k, v []byte) error {
			var task types.ScheduledTask
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	return tasks, err
}

func (s *BoltStore) UpdateScheduledTask(task *types.ScheduledTask) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketScheduledTasks).Get([]byte(task.ID)) == nil {
			return types.ErrNotFound
		}
		return put(tx, bucketScheduledTasks, task.ID, task)
	})
}

func (s *BoltStore) DeleteScheduledTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketScheduledTasks).Get([]byte(id)) == nil {
			return types.ErrNotFound
		}
		return tx.Bucket(bucketScheduledTasks).Delete([]byte(id))
	})
}

func (s *BoltStore) PutTaskExecution(exec *types.TaskExecution) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketTaskExecutions, exec.ID, exec)
	})
}

func (s *BoltStore) ListTaskExecutions(taskID string, limit int) ([]*types.TaskExecution, error) {
	var execs []*types.TaskExecution
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTaskExecutions).ForEach(func(k, v []byte) error {
			var exec types.TaskExecution
			if err := json.Unmarshal(v, &exec); err != nil {
				return err
			}
			if taskID == "" || exec.TaskID == taskID {
				execs = append(execs, &exec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].StartedAt.After(execs[j].StartedAt) })
	if limit > 0 && len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}
