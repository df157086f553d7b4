package models

import (
	"time"

	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MergeLink is one edge of the resolution forest: a non-canonical customer id
// pointing at its canonical id. Each source has at most one outgoing edge
// (composite primary key), and a check constraint guards against self-links.
// Links are created or repointed inside approve transactions; the only
// deletion is the winner's own stale edge when a previously merged id
// regains canonical status.
type MergeLink struct {
	TenantID            uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_merge_links_tenant_canonical,priority:1;index:idx_merge_links_tenant_group_key,priority:1" json:"tenant_id"`
	SourceCustomerID    uuid.UUID `gorm:"type:uuid;primaryKey;check:chk_merge_links_source_ne_canonical,source_customer_id <> canonical_customer_id" json:"source_customer_id"`
	CanonicalCustomerID uuid.UUID `gorm:"type:uuid;not null;index:idx_merge_links_tenant_canonical,priority:2" json:"canonical_customer_id"`
	GroupKey            string    `gorm:"type:text;not null;index:idx_merge_links_tenant_group_key,priority:2" json:"group_key"`
	CreatedAt           time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time `gorm:"not null" json:"updated_at"`
}

// TableName returns the table name for the model
func (MergeLink) TableName() string {
	return "customer_merge_links"
}

// BeforeCreate is called before creating a new record
func (l *MergeLink) BeforeCreate(tx *gorm.DB) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	return nil
}

// MergeLinkFilter represents filter criteria for link queries
type MergeLinkFilter struct {
	TenantID            *uuid.UUID
	SourceCustomerID    *uuid.UUID
	CanonicalCustomerID *uuid.UUID
	GroupKey            *string
}
