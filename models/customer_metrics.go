package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomerMetrics is the per-customer order projection consumed by canonical
// selection. It is maintained by the ingestion pipeline; this engine only
// reads it. A customer without a row counts as zero orders and zero times.
type CustomerMetrics struct {
	TenantID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"tenant_id"`
	CustomerID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"customer_id"`
	OrdersCount int64     `gorm:"not null;default:0" json:"orders_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// TableName returns the table name for the model
func (CustomerMetrics) TableName() string {
	return "customer_order_metrics"
}

// CustomerMetricsFilter represents filter criteria for metrics queries
type CustomerMetricsFilter struct {
	TenantID   *uuid.UUID
	CustomerID *uuid.UUID
}
