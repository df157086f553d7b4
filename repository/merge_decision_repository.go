package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MergeDecisionRepositoryImpl implements MergeDecisionRepository interface
type MergeDecisionRepositoryImpl struct {
	*BaseRepository[models.MergeDecision, models.MergeDecisionFilter]
}

// NewMergeDecisionRepository creates a new merge decision repository
func NewMergeDecisionRepository(db *gorm.DB) MergeDecisionRepository {
	return &MergeDecisionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MergeDecision, models.MergeDecisionFilter](db),
	}
}

// ByGroupKey retrieves the decision for a group key, approved or rejected.
func (r *MergeDecisionRepositoryImpl) ByGroupKey(ctx context.Context, tenantID uuid.UUID, groupKey string) (*models.MergeDecision, error) {
	db := r.getDB(ctx)

	groupKey = strings.TrimSpace(groupKey)
	if groupKey == "" {
		return nil, nil
	}

	var row models.MergeDecision
	err := db.Where("tenant_id = ? AND group_key = ?", tenantID, groupKey).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find decision by group key: %w", err)
	}

	return &row, nil
}

// Upsert inserts the decision or, when the (tenant, group key) row already
// exists, overwrites its status, canonical id, version stamp and timestamps.
func (r *MergeDecisionRepositoryImpl) Upsert(ctx context.Context, decision *models.MergeDecision) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "group_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "canonical_customer_id", "suggestion_updated_at", "decided_at", "updated_at",
		}),
	}).Create(decision).Error
	if err != nil {
		return fmt.Errorf("failed to upsert decision: %w", err)
	}

	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *MergeDecisionRepositoryImpl) applyFilter(query *gorm.DB, filter models.MergeDecisionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.GroupKey != nil {
		query = query.Where("group_key = ?", *filter.GroupKey)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DecidedAfter != nil {
		query = query.Where("decided_at > ?", *filter.DecidedAfter)
	}
	if filter.DecidedBefore != nil {
		query = query.Where("decided_at < ?", *filter.DecidedBefore)
	}
	return query
}

// ByFilter retrieves decisions based on filter criteria
func (r *MergeDecisionRepositoryImpl) ByFilter(ctx context.Context, filter models.MergeDecisionFilter, orderBy string, limit, offset int) ([]*models.MergeDecision, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MergeDecision{}), filter)

	if orderBy == "" {
		orderBy = "decided_at DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.MergeDecision
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find decisions by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of decisions matching the filter
func (r *MergeDecisionRepositoryImpl) Count(ctx context.Context, filter models.MergeDecisionFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.MergeDecision{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return count, nil
}
