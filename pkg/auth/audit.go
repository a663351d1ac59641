package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/roosthq/roost/pkg/log"
	"github.com/roosthq/roost/pkg/storage"
	"github.com/roosthq/roost/pkg/types"
)

// Recorder appends audit entries. Entries are immutable once written; a
// failed append is logged but never fails the audited operation.
type Recorder struct {
	store storage.Store
}

// NewRecorder creates an audit recorder over the store
func NewRecorder(store storage.Store) *Recorder {
	return &Recorder{store: store}
}

// Record writes one audit entry
func (r *Recorder) Record(entry *types.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Outcome == "" {
		entry.Outcome = types.OutcomeAllowed
	}
	if err := r.store.AppendAudit(entry); err != nil {
		logger := log.WithComponent("audit")
		logger.Error().Err(err).
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Msg("Failed to append audit entry")
	}
}

// RecordAction is shorthand for the common allowed case
func (r *Recorder) RecordAction(actorUserID string, action types.AuditAction, resourceType, resourceID string) {
	r.Record(&types.AuditEntry{
		ActorUserID:  actorUserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
}

// RecordDenied writes an entry for an action the role matrix rejected
func (r *Recorder) RecordDenied(actorUserID string, action types.AuditAction, resourceType, resourceID string) {
	r.Record(&types.AuditEntry{
		ActorUserID:  actorUserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      types.OutcomeDenied,
	})
}
