// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// SuggestionUpsert carries one producer-supplied suggestion into UpsertBatch.
type SuggestionUpsert struct {
	GroupKey       string
	Confidence     float64
	NormalizedName string
	Rationale      *string
	Payload        models.SuggestionPayload
}

// PendingSuggestion is one row of the pending-merge review view.
type PendingSuggestion struct {
	ID             uuid.UUID
	GroupKey       string
	Confidence     float64
	NormalizedName string
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// MergeSuggestionRepository defines operations for duplicate-group suggestions
type MergeSuggestionRepository interface {
	Repository[models.MergeSuggestion, models.MergeSuggestionFilter]
	UpsertBatch(ctx context.Context, tenantID uuid.UUID, items []SuggestionUpsert, now, expiresAt time.Time) (int, error)
	ByGroupKey(ctx context.Context, tenantID uuid.UUID, groupKey string, now time.Time) (*models.MergeSuggestion, error)
	ListPending(ctx context.Context, tenantID uuid.UUID, now time.Time, take int) ([]PendingSuggestion, error)
}

// MergeDecisionRepository defines operations for merge decisions
type MergeDecisionRepository interface {
	Repository[models.MergeDecision, models.MergeDecisionFilter]
	ByGroupKey(ctx context.Context, tenantID uuid.UUID, groupKey string) (*models.MergeDecision, error)
	Upsert(ctx context.Context, decision *models.MergeDecision) error
}

// MergeLinkRepository defines operations for the resolution forest
type MergeLinkRepository interface {
	Repository[models.MergeLink, models.MergeLinkFilter]
	BySourceID(ctx context.Context, tenantID, sourceID uuid.UUID) (*models.MergeLink, error)
	ListBySourceIDs(ctx context.Context, tenantID uuid.UUID, sourceIDs []uuid.UUID) ([]*models.MergeLink, error)
	ListByCanonicalIDs(ctx context.Context, tenantID uuid.UUID, canonicalIDs []uuid.UUID) ([]*models.MergeLink, error)
	UpsertPointers(ctx context.Context, tenantID uuid.UUID, sourceIDs []uuid.UUID, canonicalID uuid.UUID, groupKey string, now time.Time) error
	DeleteBySourceID(ctx context.Context, tenantID, sourceID uuid.UUID) error
}

// CustomerMetricsRepository defines read access to the order metrics projection
type CustomerMetricsRepository interface {
	ByCustomerIDs(ctx context.Context, tenantID uuid.UUID, customerIDs []uuid.UUID) (map[uuid.UUID]*models.CustomerMetrics, error)
}
