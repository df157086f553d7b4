package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/app/dto"
	"github.com/canjrgultekin/profiqo-sub000/config"
	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/canjrgultekin/profiqo-sub000/repository"
	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// MergeFlow defines the tenant-facing merge engine operations: the pending
// review surface, the producer upsert, and the approve/reject transaction.
type MergeFlow interface {
	ListPending(ctx context.Context, tenantID uuid.UUID, take int) (*dto.ListPendingResponse, error)
	ExportPending(ctx context.Context, tenantID uuid.UUID, take int) ([]byte, error)
	GetSuggestion(ctx context.Context, tenantID uuid.UUID, groupKey string) (*dto.SuggestionDetailResponse, error)
	UpsertSuggestions(ctx context.Context, tenantID uuid.UUID, req *dto.UpsertSuggestionsRequest) (*dto.UpsertSuggestionsResponse, error)
	Approve(ctx context.Context, tenantID uuid.UUID, groupKey string) (*dto.ApproveMergeResponse, error)
	Reject(ctx context.Context, tenantID uuid.UUID, groupKey string) (*dto.RejectMergeResponse, error)
}

type MergeFlowImpl struct {
	suggestionRepo repository.MergeSuggestionRepository
	decisionRepo   repository.MergeDecisionRepository
	linkRepo       repository.MergeLinkRepository
	metricsRepo    repository.CustomerMetricsRepository
	db             *gorm.DB
	rc             *redis.Client
	mergeConfig    config.MergeConfig
}

func NewMergeFlow(
	suggestionRepo repository.MergeSuggestionRepository,
	decisionRepo repository.MergeDecisionRepository,
	linkRepo repository.MergeLinkRepository,
	metricsRepo repository.CustomerMetricsRepository,
	db *gorm.DB,
	rc *redis.Client,
	mergeConfig config.MergeConfig,
) MergeFlow {
	return &MergeFlowImpl{
		suggestionRepo: suggestionRepo,
		decisionRepo:   decisionRepo,
		linkRepo:       linkRepo,
		metricsRepo:    metricsRepo,
		db:             db,
		rc:             rc,
		mergeConfig:    mergeConfig,
	}
}

// ListPending returns the non-expired suggestions that have no decision
// recorded against their current version.
func (f *MergeFlowImpl) ListPending(ctx context.Context, tenantID uuid.UUID, take int) (*dto.ListPendingResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	if take < 1 || take > utils.MaxPendingTake {
		take = f.mergeConfig.PendingDefaultTake
	}

	rows, err := f.suggestionRepo.ListPending(ctx, tenantID, utils.UTCNow(), take)
	if err != nil {
		return nil, NewBusinessError("PENDING_LIST_FAILED", "Failed to list pending merge groups", err)
	}

	items := make([]dto.PendingGroupItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, dto.PendingGroupItem{
			ID:             r.ID.String(),
			GroupKey:       r.GroupKey,
			Confidence:     r.Confidence,
			NormalizedName: r.NormalizedName,
			UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
			ExpiresAt:      r.ExpiresAt.Format(time.RFC3339),
		})
	}

	return &dto.ListPendingResponse{
		Message: "Pending merge groups retrieved successfully",
		Items:   items,
	}, nil
}

// ExportPending renders the pending review list as an XLSX sheet for offline
// review, one row per group.
func (f *MergeFlowImpl) ExportPending(ctx context.Context, tenantID uuid.UUID, take int) ([]byte, error) {
	resp, err := f.ListPending(ctx, tenantID, take)
	if err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	sheet := file.GetSheetName(0)
	headers := []string{"Group Key", "Normalized Name", "Confidence", "Updated At", "Expires At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return nil, NewBusinessError("PENDING_EXPORT_FAILED", "Failed to build export sheet", err)
		}
	}

	for rowIdx, item := range resp.Items {
		values := []any{item.GroupKey, item.NormalizedName, item.Confidence, item.UpdatedAt, item.ExpiresAt}
		for colIdx, v := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := file.SetCellValue(sheet, cell, v); err != nil {
				return nil, NewBusinessError("PENDING_EXPORT_FAILED", "Failed to build export sheet", err)
			}
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("PENDING_EXPORT_FAILED", "Failed to serialize export sheet", err)
	}

	return buf.Bytes(), nil
}

// GetSuggestion returns the live suggestion detail for a group key.
func (f *MergeFlowImpl) GetSuggestion(ctx context.Context, tenantID uuid.UUID, groupKey string) (*dto.SuggestionDetailResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	groupKey, err := normalizeGroupKey(groupKey)
	if err != nil {
		return nil, err
	}

	suggestion, err := f.suggestionRepo.ByGroupKey(ctx, tenantID, groupKey, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("SUGGESTION_LOOKUP_FAILED", "Failed to lookup suggestion", err)
	}
	if suggestion == nil {
		return nil, NewBusinessError("SUGGESTION_NOT_FOUND", "No live suggestion for group key", ErrSuggestionNotFound)
	}

	candidates := make([]dto.SuggestionCandidateDTO, 0, len(suggestion.Payload.Candidates))
	for _, c := range suggestion.Payload.Candidates {
		candidates = append(candidates, dto.SuggestionCandidateDTO{
			CustomerID: c.CustomerID.String(),
			FirstName:  c.FirstName,
			LastName:   c.LastName,
		})
	}

	rationale := ""
	if suggestion.Rationale != nil {
		rationale = *suggestion.Rationale
	}

	return &dto.SuggestionDetailResponse{
		ID:             suggestion.ID.String(),
		GroupKey:       suggestion.GroupKey,
		Confidence:     suggestion.Confidence,
		NormalizedName: suggestion.NormalizedName,
		Rationale:      rationale,
		Candidates:     candidates,
		UpdatedAt:      suggestion.UpdatedAt.Format(time.RFC3339),
		ExpiresAt:      suggestion.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// UpsertSuggestions accepts a batch of duplicate-group proposals from the
// external producer. Existing (tenant, group key) rows are updated in place,
// which bumps their version and reopens previously decided groups.
func (f *MergeFlowImpl) UpsertSuggestions(ctx context.Context, tenantID uuid.UUID, req *dto.UpsertSuggestionsRequest) (*dto.UpsertSuggestionsResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	if req.TTLHours == 0 {
		ttl = f.mergeConfig.SuggestionTTL
	}
	if ttl <= 0 {
		return nil, NewBusinessError("SUGGESTION_TTL_INVALID", "Suggestion TTL must be positive", ErrSuggestionTTLInvalid)
	}

	items := make([]repository.SuggestionUpsert, 0, len(req.Suggestions))
	for _, s := range req.Suggestions {
		payload := models.SuggestionPayload{
			GroupKey:       s.GroupKey,
			Confidence:     s.Confidence,
			NormalizedName: s.NormalizedName,
			Rationale:      s.Rationale,
			Candidates:     make([]models.SuggestionCandidate, 0, len(s.Candidates)),
		}
		for _, c := range s.Candidates {
			id, err := uuid.Parse(c.CustomerID)
			if err != nil {
				continue
			}
			payload.Candidates = append(payload.Candidates, models.SuggestionCandidate{
				CustomerID: id,
				FirstName:  c.FirstName,
				LastName:   c.LastName,
			})
		}

		items = append(items, repository.SuggestionUpsert{
			GroupKey:       s.GroupKey,
			Confidence:     s.Confidence,
			NormalizedName: s.NormalizedName,
			Rationale:      s.Rationale,
			Payload:        payload,
		})
	}

	now := utils.UTCNow()
	accepted, err := f.suggestionRepo.UpsertBatch(ctx, tenantID, items, now, now.Add(ttl))
	if err != nil {
		return nil, NewBusinessError("SUGGESTION_UPSERT_FAILED", "Failed to upsert suggestions", err)
	}

	return &dto.UpsertSuggestionsResponse{
		Message:  "Suggestions upserted successfully",
		Accepted: accepted,
	}, nil
}

// Approve unions the clusters behind a suggestion's candidates under one
// deterministic canonical id. The whole body runs inside one transaction and
// is re-executed with fresh reads when a concurrent approval collides, so
// overlapping approvals can never commit inconsistent pointers. Re-approving
// an unchanged suggestion is idempotent.
func (f *MergeFlowImpl) Approve(ctx context.Context, tenantID uuid.UUID, groupKey string) (*dto.ApproveMergeResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	groupKey, err := normalizeGroupKey(groupKey)
	if err != nil {
		return nil, err
	}

	var canonicalID uuid.UUID
	var mergedIDs []uuid.UUID

	attempt := 0
	err = repository.WithConflictRetry(ctx, f.mergeConfig.MaxRetryAttempts, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			mergeConflictRetries.Inc()
		}

		return repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
			var err error
			canonicalID, mergedIDs, err = f.approveInTx(txCtx, tenantID, groupKey)
			return err
		})
	})
	if err != nil {
		if repository.IsTransientConflict(err) {
			mergeApprovalsTotal.WithLabelValues("conflict").Inc()
			return nil, NewBusinessError("TRANSIENT_CONFLICT", "Could not commit merge, retry", ErrTransientConflict)
		}
		if IsSuggestionNotFound(err) || IsMalformedSuggestion(err) {
			return nil, err
		}
		return nil, NewBusinessError("MERGE_APPROVE_FAILED", "Merge approval failed", err)
	}

	mergeApprovalsTotal.WithLabelValues("approved").Inc()
	mergeLinksRepointed.Add(float64(len(mergedIDs)))

	// Links changed; drop any cached resolutions for the whole membership.
	f.invalidateResolutionCache(ctx, tenantID, append(append([]uuid.UUID{}, mergedIDs...), canonicalID))

	merged := make([]string, 0, len(mergedIDs))
	for _, id := range mergedIDs {
		merged = append(merged, id.String())
	}

	return &dto.ApproveMergeResponse{
		Message:             "Merge group approved successfully",
		GroupKey:            groupKey,
		CanonicalCustomerID: canonicalID.String(),
		MergedCustomerIDs:   merged,
	}, nil
}

// approveInTx is the transactional body of Approve. Every read goes through
// the transaction from the context, so a retry re-reads everything fresh.
func (f *MergeFlowImpl) approveInTx(txCtx context.Context, tenantID uuid.UUID, groupKey string) (uuid.UUID, []uuid.UUID, error) {
	now := utils.UTCNow()

	suggestion, err := f.suggestionRepo.ByGroupKey(txCtx, tenantID, groupKey, now)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if suggestion == nil {
		return uuid.Nil, nil, NewBusinessError("SUGGESTION_NOT_FOUND", "No live suggestion for group key", ErrSuggestionNotFound)
	}

	// A payload that decodes but carries fewer than two distinct candidate
	// ids cannot describe a merge; the producer has to regenerate it.
	candidateIDs := suggestion.Payload.DistinctCandidateIDs()
	if len(candidateIDs) < 2 {
		return uuid.Nil, nil, NewBusinessErrorf("MALFORMED_SUGGESTION",
			"Suggestion %s has %d distinct candidates, need at least 2", ErrMalformedSuggestion, groupKey, len(candidateIDs))
	}

	// Union-find step: collapse every candidate to its current root. Already
	// merged candidates land on the same root, which makes re-approval a no-op
	// rewrite of identical pointers.
	roots := make([]uuid.UUID, 0, len(candidateIDs))
	seenRoots := make(map[uuid.UUID]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		root, err := f.resolveRoot(txCtx, tenantID, id)
		if err != nil {
			return uuid.Nil, nil, err
		}
		if _, ok := seenRoots[root]; !ok {
			seenRoots[root] = struct{}{}
			roots = append(roots, root)
		}
	}

	// Full membership of the clusters being unioned: the roots plus every id
	// already linked to one of them.
	memberIDs := append([]uuid.UUID{}, roots...)
	seenMembers := make(map[uuid.UUID]struct{}, len(roots))
	for _, r := range roots {
		seenMembers[r] = struct{}{}
	}
	inEdges, err := f.linkRepo.ListByCanonicalIDs(txCtx, tenantID, roots)
	if err != nil {
		return uuid.Nil, nil, err
	}
	for _, edge := range inEdges {
		if _, ok := seenMembers[edge.SourceCustomerID]; !ok {
			seenMembers[edge.SourceCustomerID] = struct{}{}
			memberIDs = append(memberIDs, edge.SourceCustomerID)
		}
	}
	for _, id := range candidateIDs {
		if _, ok := seenMembers[id]; !ok {
			seenMembers[id] = struct{}{}
			memberIDs = append(memberIDs, id)
		}
	}

	metrics, err := f.metricsRepo.ByCustomerIDs(txCtx, tenantID, memberIDs)
	if err != nil {
		return uuid.Nil, nil, err
	}

	canonicalID := SelectCanonical(memberIDs, metrics)
	if canonicalID == uuid.Nil {
		return uuid.Nil, nil, NewBusinessError("MALFORMED_SUGGESTION",
			"Suggestion has no usable candidate ids", ErrMalformedSuggestion)
	}

	// The winner can be a previous loser whose metrics overtook its old
	// canonical. Clear its own outgoing edge so repointing the rest at it
	// cannot leave a cycle or a second canonical answer.
	if err := f.linkRepo.DeleteBySourceID(txCtx, tenantID, canonicalID); err != nil {
		return uuid.Nil, nil, err
	}

	// Repoint every non-canonical member directly at the canonical id. This
	// collapses multi-hop chains to depth 1, which keeps resolution O(1).
	mergedIDs := make([]uuid.UUID, 0, len(memberIDs)-1)
	for _, id := range memberIDs {
		if id != canonicalID {
			mergedIDs = append(mergedIDs, id)
		}
	}
	if err := f.linkRepo.UpsertPointers(txCtx, tenantID, mergedIDs, canonicalID, groupKey, now); err != nil {
		return uuid.Nil, nil, err
	}

	decision := &models.MergeDecision{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		GroupKey:            groupKey,
		Status:              models.MergeDecisionStatusApproved,
		CanonicalCustomerID: &canonicalID,
		SuggestionUpdatedAt: suggestion.UpdatedAt,
		DecidedAt:           now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := f.decisionRepo.Upsert(txCtx, decision); err != nil {
		return uuid.Nil, nil, err
	}

	return canonicalID, mergedIDs, nil
}

// Reject records a rejected decision against the suggestion's current
// version and writes no links. A later suggestion update makes the decision
// stale and the group resurfaces as pending.
func (f *MergeFlowImpl) Reject(ctx context.Context, tenantID uuid.UUID, groupKey string) (*dto.RejectMergeResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	groupKey, err := normalizeGroupKey(groupKey)
	if err != nil {
		return nil, err
	}

	err = repository.WithConflictRetry(ctx, f.mergeConfig.MaxRetryAttempts, func(ctx context.Context) error {
		return repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
			now := utils.UTCNow()

			suggestion, err := f.suggestionRepo.ByGroupKey(txCtx, tenantID, groupKey, now)
			if err != nil {
				return err
			}
			if suggestion == nil {
				return NewBusinessError("SUGGESTION_NOT_FOUND", "No live suggestion for group key", ErrSuggestionNotFound)
			}

			decision := &models.MergeDecision{
				ID:                  uuid.New(),
				TenantID:            tenantID,
				GroupKey:            groupKey,
				Status:              models.MergeDecisionStatusRejected,
				CanonicalCustomerID: nil,
				SuggestionUpdatedAt: suggestion.UpdatedAt,
				DecidedAt:           now,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			return f.decisionRepo.Upsert(txCtx, decision)
		})
	})
	if err != nil {
		if repository.IsTransientConflict(err) {
			return nil, NewBusinessError("TRANSIENT_CONFLICT", "Could not commit rejection, retry", ErrTransientConflict)
		}
		if IsSuggestionNotFound(err) {
			return nil, err
		}
		return nil, NewBusinessError("MERGE_REJECT_FAILED", "Merge rejection failed", err)
	}

	mergeRejectionsTotal.Inc()

	return &dto.RejectMergeResponse{
		Message:  "Merge group rejected successfully",
		GroupKey: groupKey,
		Status:   models.MergeDecisionStatusRejected.String(),
	}, nil
}

// resolveRoot follows link edges until an id has no outgoing edge. Approvals
// keep chains at depth 1, so the walk normally terminates in one read; the
// visited set is a safety net that stops on the last id seen if the forest
// invariant were ever violated by a cycle.
func (f *MergeFlowImpl) resolveRoot(ctx context.Context, tenantID, customerID uuid.UUID) (uuid.UUID, error) {
	current := customerID
	visited := map[uuid.UUID]struct{}{current: {}}

	for {
		link, err := f.linkRepo.BySourceID(ctx, tenantID, current)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve root of %s: %w", customerID, err)
		}
		if link == nil {
			return current, nil
		}
		if _, ok := visited[link.CanonicalCustomerID]; ok {
			return current, nil
		}
		visited[link.CanonicalCustomerID] = struct{}{}
		current = link.CanonicalCustomerID
	}
}

// invalidateResolutionCache drops cached source→canonical entries after a
// commit changed the forest. Cache errors are ignored; the store remains the
// source of truth.
func (f *MergeFlowImpl) invalidateResolutionCache(ctx context.Context, tenantID uuid.UUID, customerIDs []uuid.UUID) {
	if f.rc == nil {
		return
	}

	keys := make([]string, 0, len(customerIDs))
	for _, id := range customerIDs {
		keys = append(keys, resolutionCacheKey(tenantID, id))
	}
	if len(keys) > 0 {
		_ = f.rc.Del(ctx, keys...).Err()
	}
}
