package repository

import (
	"context"
	"fmt"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerMetricsRepositoryImpl implements CustomerMetricsRepository interface
type CustomerMetricsRepositoryImpl struct {
	*BaseRepository[models.CustomerMetrics, models.CustomerMetricsFilter]
}

// NewCustomerMetricsRepository creates a new customer metrics repository
func NewCustomerMetricsRepository(db *gorm.DB) CustomerMetricsRepository {
	return &CustomerMetricsRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CustomerMetrics, models.CustomerMetricsFilter](db),
	}
}

// ByCustomerIDs retrieves the order metrics projection for a batch of
// customer ids. Customers without a row are absent from the map; canonical
// selection treats them as zero orders.
func (r *CustomerMetricsRepositoryImpl) ByCustomerIDs(ctx context.Context, tenantID uuid.UUID, customerIDs []uuid.UUID) (map[uuid.UUID]*models.CustomerMetrics, error) {
	db := r.getDB(ctx)

	result := make(map[uuid.UUID]*models.CustomerMetrics, len(customerIDs))
	if len(customerIDs) == 0 {
		return result, nil
	}

	var rows []*models.CustomerMetrics
	err := db.Where("tenant_id = ? AND customer_id IN ?", tenantID, customerIDs).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load customer metrics: %w", err)
	}

	for _, row := range rows {
		result[row.CustomerID] = row
	}
	return result, nil
}
