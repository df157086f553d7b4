// Package businessflow contains the business logic for the application.
package businessflow

import (
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const RequestIDKey = "X-Request-ID"

var (
	mergeApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merge_approvals_total",
			Help: "Total number of approved merge groups",
		},
		[]string{"outcome"},
	)

	mergeRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merge_rejections_total",
			Help: "Total number of rejected merge groups",
		},
	)

	mergeLinksRepointed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merge_links_repointed_total",
			Help: "Total number of merge link rows created or repointed by approvals",
		},
	)

	mergeConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "merge_conflict_retries_total",
			Help: "Total number of approve/reject transaction retries after a transient conflict",
		},
	)
)

// requireTenant validates the explicit tenant scope before any store read.
func requireTenant(tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return NewBusinessError("MISSING_TENANT_CONTEXT", "Tenant context is required", ErrMissingTenantContext)
	}
	return nil
}

// normalizeGroupKey trims the group key and rejects blank input.
func normalizeGroupKey(groupKey string) (string, error) {
	groupKey = strings.TrimSpace(groupKey)
	if groupKey == "" {
		return "", NewBusinessError("GROUP_KEY_REQUIRED", "Group key is required", ErrGroupKeyRequired)
	}
	return groupKey, nil
}
