// Package models contains domain entities and business models for the identity merge engine
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SuggestionCandidate is one customer snapshot inside a suggestion payload.
// The engine only consumes CustomerID; the rest is carried for review UIs.
type SuggestionCandidate struct {
	CustomerID uuid.UUID      `json:"customerId"`
	FirstName  *string        `json:"firstName,omitempty"`
	LastName   *string        `json:"lastName,omitempty"`
	Channels   map[string]any `json:"channels,omitempty"`
}

// SuggestionPayload is the candidate snapshot produced by the external
// duplicate analyzer, stored as jsonb.
type SuggestionPayload struct {
	GroupKey       string                `json:"groupKey,omitempty"`
	Confidence     float64               `json:"confidence,omitempty"`
	NormalizedName string                `json:"normalizedName,omitempty"`
	Rationale      *string               `json:"rationale,omitempty"`
	Candidates     []SuggestionCandidate `json:"candidates"`
}

// Value implements the driver.Valuer interface for SuggestionPayload
func (p SuggestionPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for SuggestionPayload
func (p *SuggestionPayload) Scan(value any) error {
	if value == nil {
		*p = SuggestionPayload{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SuggestionPayload", value)
	}

	return json.Unmarshal(bytes, p)
}

// DistinctCandidateIDs returns the candidate customer ids with duplicates
// and nil ids removed, preserving first-seen order.
func (p SuggestionPayload) DistinctCandidateIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(p.Candidates))
	ids := make([]uuid.UUID, 0, len(p.Candidates))
	for _, c := range p.Candidates {
		if c.CustomerID == uuid.Nil {
			continue
		}
		if _, ok := seen[c.CustomerID]; ok {
			continue
		}
		seen[c.CustomerID] = struct{}{}
		ids = append(ids, c.CustomerID)
	}
	return ids
}

// MergeSuggestion is an externally produced, time-bounded proposal that a
// group of customer ids are duplicates. Rows are upserted in place per
// (tenant, group key); readers filter by expiry instead of deleting.
type MergeSuggestion struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_merge_suggestions_tenant_group_key;index:idx_merge_suggestions_tenant_updated_at,priority:1" json:"tenant_id"`
	GroupKey       string            `gorm:"type:text;not null;uniqueIndex:uk_merge_suggestions_tenant_group_key" json:"group_key"`
	Confidence     float64           `gorm:"type:numeric(5,4);not null" json:"confidence"`
	NormalizedName string            `gorm:"type:text;not null" json:"normalized_name"`
	Rationale      *string           `gorm:"type:text" json:"rationale,omitempty"`
	Payload        SuggestionPayload `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;index:idx_merge_suggestions_tenant_updated_at,priority:2" json:"updated_at"`
	ExpiresAt      time.Time         `gorm:"not null;index:idx_merge_suggestions_expires_at" json:"expires_at"`
}

// TableName returns the table name for the model
func (MergeSuggestion) TableName() string {
	return "customer_merge_suggestions"
}

// BeforeCreate is called before creating a new record
func (s *MergeSuggestion) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	return nil
}

// IsExpired reports whether the suggestion is no longer live at the given time.
func (s *MergeSuggestion) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// MergeSuggestionFilter represents filter criteria for suggestion queries
type MergeSuggestionFilter struct {
	ID            *uuid.UUID
	TenantID      *uuid.UUID
	GroupKey      *string
	ExpiresAfter  *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
}
