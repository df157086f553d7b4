package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MergeDecisionStatus represents the tenant's recorded choice for a group
type MergeDecisionStatus string

const (
	MergeDecisionStatusApproved MergeDecisionStatus = "approved"
	MergeDecisionStatusRejected MergeDecisionStatus = "rejected"
)

// String returns the string representation of the status
func (s MergeDecisionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s MergeDecisionStatus) Valid() bool {
	switch s {
	case MergeDecisionStatusApproved, MergeDecisionStatusRejected:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MergeDecisionStatus
func (s *MergeDecisionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = MergeDecisionStatus(v)
	case []byte:
		*s = MergeDecisionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MergeDecisionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MergeDecisionStatus
func (s MergeDecisionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MergeDecisionStatus: %s", s)
	}
	return string(s), nil
}

// MergeDecision records the tenant's approve/reject choice for a group key,
// stamped with the suggestion version it was decided against. At most one
// decision exists per (tenant, group key); re-deciding updates in place.
type MergeDecision struct {
	ID                  uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID            uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uk_merge_decisions_tenant_group_key;index:idx_merge_decisions_tenant_status,priority:1" json:"tenant_id"`
	GroupKey            string              `gorm:"type:text;not null;uniqueIndex:uk_merge_decisions_tenant_group_key" json:"group_key"`
	Status              MergeDecisionStatus `gorm:"type:text;not null;index:idx_merge_decisions_tenant_status,priority:2" json:"status"`
	CanonicalCustomerID *uuid.UUID          `gorm:"type:uuid" json:"canonical_customer_id,omitempty"`
	SuggestionUpdatedAt time.Time           `gorm:"not null" json:"suggestion_updated_at"`
	DecidedAt           time.Time           `gorm:"not null;index:idx_merge_decisions_tenant_status,priority:3" json:"decided_at"`
	CreatedAt           time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for the model
func (MergeDecision) TableName() string {
	return "customer_merge_decisions"
}

// BeforeCreate is called before creating a new record
func (d *MergeDecision) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.UTCNow()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	return nil
}

// IsStaleFor reports whether the decision was taken against an older
// suggestion version. Stale decisions put the group back into the pending view.
func (d *MergeDecision) IsStaleFor(suggestionUpdatedAt time.Time) bool {
	return !d.SuggestionUpdatedAt.Equal(suggestionUpdatedAt)
}

// MergeDecisionFilter represents filter criteria for decision queries
type MergeDecisionFilter struct {
	ID            *uuid.UUID
	TenantID      *uuid.UUID
	GroupKey      *string
	Status        *MergeDecisionStatus
	DecidedAfter  *time.Time
	DecidedBefore *time.Time
}
