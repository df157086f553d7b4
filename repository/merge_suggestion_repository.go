package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MergeSuggestionRepositoryImpl implements MergeSuggestionRepository interface
type MergeSuggestionRepositoryImpl struct {
	*BaseRepository[models.MergeSuggestion, models.MergeSuggestionFilter]
}

// NewMergeSuggestionRepository creates a new merge suggestion repository
func NewMergeSuggestionRepository(db *gorm.DB) MergeSuggestionRepository {
	return &MergeSuggestionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.MergeSuggestion, models.MergeSuggestionFilter](db),
	}
}

// UpsertBatch inserts or updates one suggestion row per (tenant, group key).
// Blank group keys are skipped and confidence is clamped to [0,1]; updating
// an existing row bumps its version (updated_at) which is what marks prior
// decisions stale. Returns the number of rows written.
func (r *MergeSuggestionRepositoryImpl) UpsertBatch(ctx context.Context, tenantID uuid.UUID, items []SuggestionUpsert, now, expiresAt time.Time) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
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

	written := 0
	for _, item := range items {
		groupKey := strings.TrimSpace(item.GroupKey)
		if groupKey == "" {
			continue
		}

		confidence := item.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}

		normalizedName := item.NormalizedName
		if normalizedName == "" {
			normalizedName = groupKey
		}

		var existing models.MergeSuggestion
		err = db.Where("tenant_id = ? AND group_key = ?", tenantID, groupKey).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return written, fmt.Errorf("failed to load suggestion for upsert: %w", err)
		}

		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := models.MergeSuggestion{
				ID:             uuid.New(),
				TenantID:       tenantID,
				GroupKey:       groupKey,
				Confidence:     confidence,
				NormalizedName: normalizedName,
				Rationale:      item.Rationale,
				Payload:        item.Payload,
				CreatedAt:      now,
				UpdatedAt:      now,
				ExpiresAt:      expiresAt,
			}
			if err = db.Create(&row).Error; err != nil {
				return written, fmt.Errorf("failed to insert suggestion %s: %w", groupKey, err)
			}
		} else {
			updates := map[string]any{
				"confidence":      confidence,
				"normalized_name": normalizedName,
				"rationale":       item.Rationale,
				"payload":         item.Payload,
				"updated_at":      now,
				"expires_at":      expiresAt,
			}
			if err = db.Model(&models.MergeSuggestion{}).
				Where("tenant_id = ? AND group_key = ?", tenantID, groupKey).
				Updates(updates).Error; err != nil {
				return written, fmt.Errorf("failed to update suggestion %s: %w", groupKey, err)
			}
		}
		written++
	}

	err = nil
	return written, nil
}

// ByGroupKey retrieves the live (non-expired) suggestion for a group key.
// Returns nil when the group has no suggestion or it has aged out.
func (r *MergeSuggestionRepositoryImpl) ByGroupKey(ctx context.Context, tenantID uuid.UUID, groupKey string, now time.Time) (*models.MergeSuggestion, error) {
	db := r.getDB(ctx)

	groupKey = strings.TrimSpace(groupKey)
	if groupKey == "" {
		return nil, nil
	}

	var row models.MergeSuggestion
	err := db.Where("tenant_id = ? AND group_key = ? AND expires_at > ?", tenantID, groupKey, now).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find suggestion by group key: %w", err)
	}

	return &row, nil
}

// ListPending returns non-expired suggestions that have no decision recorded
// against their current version, newest first. A decision whose stored
// suggestion_updated_at no longer matches is stale, so its group resurfaces.
func (r *MergeSuggestionRepositoryImpl) ListPending(ctx context.Context, tenantID uuid.UUID, now time.Time, take int) ([]PendingSuggestion, error) {
	db := r.getDB(ctx)

	if take < 1 || take > utils.MaxPendingTake {
		take = utils.DefaultPendingTake
	}

	var rows []PendingSuggestion
	err := db.Model(&models.MergeSuggestion{}).
		Select("customer_merge_suggestions.id, customer_merge_suggestions.group_key, customer_merge_suggestions.confidence, customer_merge_suggestions.normalized_name, customer_merge_suggestions.updated_at, customer_merge_suggestions.expires_at").
		Joins("LEFT JOIN customer_merge_decisions d ON d.tenant_id = customer_merge_suggestions.tenant_id AND d.group_key = customer_merge_suggestions.group_key AND d.suggestion_updated_at = customer_merge_suggestions.updated_at").
		Where("customer_merge_suggestions.tenant_id = ? AND customer_merge_suggestions.expires_at > ? AND d.id IS NULL", tenantID, now).
		Order("customer_merge_suggestions.updated_at DESC").
		Limit(take).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending suggestions: %w", err)
	}

	return rows, nil
}

// applyFilter applies filter criteria to a GORM query
func (r *MergeSuggestionRepositoryImpl) applyFilter(query *gorm.DB, filter models.MergeSuggestionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.GroupKey != nil {
		query = query.Where("group_key = ?", *filter.GroupKey)
	}
	if filter.ExpiresAfter != nil {
		query = query.Where("expires_at > ?", *filter.ExpiresAfter)
	}
	if filter.UpdatedAfter != nil {
		query = query.Where("updated_at > ?", *filter.UpdatedAfter)
	}
	if filter.UpdatedBefore != nil {
		query = query.Where("updated_at < ?", *filter.UpdatedBefore)
	}
	return query
}

// ByFilter retrieves suggestions based on filter criteria
func (r *MergeSuggestionRepositoryImpl) ByFilter(ctx context.Context, filter models.MergeSuggestionFilter, orderBy string, limit, offset int) ([]*models.MergeSuggestion, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.MergeSuggestion{}), filter)

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

	var rows []*models.MergeSuggestion
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find suggestions by filter: %w", err)
	}
	return rows, nil
}

// Count returns the number of suggestions matching the filter
func (r *MergeSuggestionRepositoryImpl) Count(ctx context.Context, filter models.MergeSuggestionFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.MergeSuggestion{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count suggestions: %w", err)
	}
	return count, nil
}
