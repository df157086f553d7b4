// Package testing provides test utilities and database setup for testing the merge engine
package testing

import (
	"fmt"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestSuggestion creates a live suggestion for the given candidates
func (tf *TestFixtures) CreateTestSuggestion(tenantID uuid.UUID, groupKey string, candidateIDs ...uuid.UUID) (*models.MergeSuggestion, error) {
	candidates := make([]models.SuggestionCandidate, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		candidates = append(candidates, models.SuggestionCandidate{CustomerID: id})
	}

	now := utils.UTCNow()
	suggestion := &models.MergeSuggestion{
		TenantID:       tenantID,
		GroupKey:       groupKey,
		Confidence:     0.9,
		NormalizedName: groupKey,
		Payload: models.SuggestionPayload{
			GroupKey:       groupKey,
			Confidence:     0.9,
			NormalizedName: groupKey,
			Candidates:     candidates,
		},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	if err := tf.DB.DB.Create(suggestion).Error; err != nil {
		return nil, fmt.Errorf("failed to create test suggestion: %w", err)
	}
	return suggestion, nil
}

// CreateTestLink creates one merge link edge
func (tf *TestFixtures) CreateTestLink(tenantID, sourceID, canonicalID uuid.UUID, groupKey string) (*models.MergeLink, error) {
	link := &models.MergeLink{
		TenantID:            tenantID,
		SourceCustomerID:    sourceID,
		CanonicalCustomerID: canonicalID,
		GroupKey:            groupKey,
	}
	if err := tf.DB.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create test link: %w", err)
	}
	return link, nil
}

// CreateTestMetrics creates the activity projection row for one customer
func (tf *TestFixtures) CreateTestMetrics(tenantID, customerID uuid.UUID, ordersCount int64, firstSeen, lastSeen time.Time) (*models.CustomerMetrics, error) {
	metrics := &models.CustomerMetrics{
		TenantID:    tenantID,
		CustomerID:  customerID,
		OrdersCount: ordersCount,
		FirstSeenAt: firstSeen,
		LastSeenAt:  lastSeen,
	}
	if err := tf.DB.DB.Create(metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to create test metrics: %w", err)
	}
	return metrics, nil
}
