package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MergeLinkRepositoryImpl implements MergeLinkRepository interface
type MergeLinkRepositoryImpl struct {
	*BaseRepository[models.MergeLink, models.MergeLinkFilter]
}

// NewMergeLinkRepository creates a new merge link repository
func NewMergeLinkRepository(db *gorm.DB) MergeLinkRepository {
	return &MergeLinkRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MergeLink, models.MergeLinkFilter](db),
	}
}

// BySourceID retrieves the outgoing edge for a source customer id, nil when
// the id has no edge (i.e. it is already canonical).
func (r *MergeLinkRepositoryImpl) BySourceID(ctx context.Context, tenantID, sourceID uuid.UUID) (*models.MergeLink, error) {
	db := r.getDB(ctx)

	var row models.MergeLink
	err := db.Where("tenant_id = ? AND source_customer_id = ?", tenantID, sourceID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find link by source id: %w", err)
	}

	return &row, nil
}

// ListBySourceIDs retrieves the outgoing edges for a batch of source ids.
// Ids without an edge are simply absent from the result.
func (r *MergeLinkRepositoryImpl) ListBySourceIDs(ctx context.Context, tenantID uuid.UUID, sourceIDs []uuid.UUID) ([]*models.MergeLink, error) {
	db := r.getDB(ctx)

	if len(sourceIDs) == 0 {
		return []*models.MergeLink{}, nil
	}

	var rows []*models.MergeLink
	err := db.Where("tenant_id = ? AND source_customer_id IN ?", tenantID, sourceIDs).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list links by source ids: %w", err)
	}

	return rows, nil
}

// ListByCanonicalIDs retrieves every edge pointing at one of the given
// canonical ids. Used to expand cluster membership during approval.
func (r *MergeLinkRepositoryImpl) ListByCanonicalIDs(ctx context.Context, tenantID uuid.UUID, canonicalIDs []uuid.UUID) ([]*models.MergeLink, error) {
	db := r.getDB(ctx)

	if len(canonicalIDs) == 0 {
		return []*models.MergeLink{}, nil
	}

	var rows []*models.MergeLink
	err := db.Where("tenant_id = ? AND canonical_customer_id IN ?", tenantID, canonicalIDs).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list links by canonical ids: %w", err)
	}

	return rows, nil
}

// UpsertPointers creates or repoints one edge per source id so that each
// points directly at canonicalID. Sources equal to canonicalID are skipped
// rather than written; the table-level check constraint backs this up.
func (r *MergeLinkRepositoryImpl) UpsertPointers(ctx context.Context, tenantID uuid.UUID, sourceIDs []uuid.UUID, canonicalID uuid.UUID, groupKey string, now time.Time) error {
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

	rows := make([]models.MergeLink, 0, len(sourceIDs))
	for _, sourceID := range sourceIDs {
		if sourceID == uuid.Nil || sourceID == canonicalID {
			continue
		}
		rows = append(rows, models.MergeLink{
			TenantID:            tenantID,
			SourceCustomerID:    sourceID,
			CanonicalCustomerID: canonicalID,
			GroupKey:            groupKey,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "source_customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"canonical_customer_id", "group_key", "updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert link pointers: %w", err)
	}

	return nil
}

// DeleteBySourceID removes the outgoing edge of a customer id, if any. An
// approval calls this on the winning id so a previously merged customer that
// regains canonical status carries no stale pointer.
func (r *MergeLinkRepositoryImpl) DeleteBySourceID(ctx context.Context, tenantID, sourceID uuid.UUID) error {
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

	err = db.Where("tenant_id = ? AND source_customer_id = ?", tenantID, sourceID).
		Delete(&models.MergeLink{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete link by source id: %w", err)
	}

	return nil
}

// applyFilter applies filter criteria to a GORM query
func (r *MergeLinkRepositoryImpl) applyFilter(query *gorm.DB, filter models.MergeLinkFilter) *gorm.DB {
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.SourceCustomerID != nil {
		query = query.Where("source_customer_id = ?", *filter.SourceCustomerID)
	}
	if filter.CanonicalCustomerID != nil {
		query = query.Where("canonical_customer_id = ?", *filter.CanonicalCustomerID)
	}
	if filter.GroupKey != nil {
		query = query.Where("group_key = ?", *filter.GroupKey)
	}
	return query
}

// ByFilter retrieves links based on filter criteria
func (r *MergeLinkRepositoryImpl) ByFilter(ctx context.Context, filter models.MergeLinkFilter, orderBy string, limit, offset int) ([]*models.MergeLink, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MergeLink{}), filter)

	if orderBy == "" {
		orderBy = "updated_at DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.MergeLink
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find links by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of links matching the filter
func (r *MergeLinkRepositoryImpl) Count(ctx context.Context, filter models.MergeLinkFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.MergeLink{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}
