package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/app/dto"
	"github.com/canjrgultekin/profiqo-sub000/repository"
	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResolutionFlow answers the hot-path question "which id should I read or
// write for this customer". It is strictly read-only against the store.
type ResolutionFlow interface {
	ResolveCustomerID(ctx context.Context, tenantID, customerID uuid.UUID) (*dto.ResolveCustomerResponse, error)
	ResolveCustomerIDs(ctx context.Context, tenantID uuid.UUID, req *dto.ResolveBatchRequest) (*dto.ResolveBatchResponse, error)
}

type ResolutionFlowImpl struct {
	linkRepo repository.MergeLinkRepository
	rc       *redis.Client
	cacheTTL time.Duration
}

func NewResolutionFlow(linkRepo repository.MergeLinkRepository, rc *redis.Client, cacheTTL time.Duration) ResolutionFlow {
	return &ResolutionFlowImpl{
		linkRepo: linkRepo,
		rc:       rc,
		cacheTTL: cacheTTL,
	}
}

func resolutionCacheKey(tenantID, customerID uuid.UUID) string {
	return fmt.Sprintf("merge:resolve:%s:%s", tenantID, customerID)
}

// ResolveCustomerID maps one id to its canonical id. Ids with no link row
// resolve to themselves; this is not an existence check.
func (f *ResolutionFlowImpl) ResolveCustomerID(ctx context.Context, tenantID, customerID uuid.UUID) (*dto.ResolveCustomerResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if customerID == uuid.Nil {
		return nil, NewBusinessError("CUSTOMER_ID_REQUIRED", "Customer id is required", ErrCustomerIDRequired)
	}

	if canonical, ok := f.cacheGet(ctx, tenantID, customerID); ok {
		return &dto.ResolveCustomerResponse{
			CustomerID:          customerID.String(),
			CanonicalCustomerID: canonical.String(),
			Merged:              canonical != customerID,
		}, nil
	}

	canonical, err := f.walkToRoot(ctx, tenantID, customerID)
	if err != nil {
		return nil, NewBusinessError("RESOLUTION_FAILED", "Failed to resolve customer id", err)
	}
	f.cacheSet(ctx, tenantID, customerID, canonical)

	return &dto.ResolveCustomerResponse{
		CustomerID:          customerID.String(),
		CanonicalCustomerID: canonical.String(),
		Merged:              canonical != customerID,
	}, nil
}

// ResolveCustomerIDs resolves a batch with one link query per chain level,
// a single query in steady state. The response keeps the request order and
// includes identity mappings for unlinked ids.
func (f *ResolutionFlowImpl) ResolveCustomerIDs(ctx context.Context, tenantID uuid.UUID, req *dto.ResolveBatchRequest) (*dto.ResolveBatchResponse, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if len(req.CustomerIDs) > utils.MaxResolveBatchSize {
		return nil, NewBusinessErrorf("RESOLVE_BATCH_TOO_LARGE",
			"At most %d customer ids per request", ErrResolveBatchTooLarge, utils.MaxResolveBatchSize)
	}

	ids := make([]uuid.UUID, 0, len(req.CustomerIDs))
	for _, raw := range req.CustomerIDs {
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return nil, NewBusinessErrorf("CUSTOMER_ID_REQUIRED", "Invalid customer id %q", ErrCustomerIDRequired, raw)
		}
		ids = append(ids, id)
	}

	edges, err := f.loadEdges(ctx, tenantID, ids)
	if err != nil {
		return nil, NewBusinessError("RESOLUTION_FAILED", "Failed to resolve customer ids", err)
	}

	items := make([]dto.ResolveCustomerResponse, 0, len(ids))
	for _, id := range ids {
		canonical := followEdges(edges, id)
		items = append(items, dto.ResolveCustomerResponse{
			CustomerID:          id.String(),
			CanonicalCustomerID: canonical.String(),
			Merged:              canonical != id,
		})
	}

	return &dto.ResolveBatchResponse{
		Message: "Customer ids resolved successfully",
		Items:   items,
	}, nil
}

// walkToRoot follows edges until an id with no outgoing edge. Approvals keep
// depth at 1 so this is one read in steady state; legacy multi-hop rows are
// tolerated and a cycle stops on the last id seen.
func (f *ResolutionFlowImpl) walkToRoot(ctx context.Context, tenantID, customerID uuid.UUID) (uuid.UUID, error) {
	current := customerID
	visited := map[uuid.UUID]struct{}{current: {}}

	for {
		link, err := f.linkRepo.BySourceID(ctx, tenantID, current)
		if err != nil {
			return uuid.Nil, err
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

// loadEdges fetches the outgoing edges for the requested ids and then chases
// any canonical targets that still have edges of their own. Steady state is
// depth 1 so the chase makes no extra queries; legacy multi-hop rows cost one
// round per chain level.
func (f *ResolutionFlowImpl) loadEdges(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	edges := make(map[uuid.UUID]uuid.UUID, len(ids))
	queried := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		queried[id] = struct{}{}
	}

	frontier := ids
	for len(frontier) > 0 {
		links, err := f.linkRepo.ListBySourceIDs(ctx, tenantID, frontier)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			edges[link.SourceCustomerID] = link.CanonicalCustomerID
		}

		frontier = nil
		for _, canonical := range edges {
			if _, ok := queried[canonical]; !ok {
				queried[canonical] = struct{}{}
				frontier = append(frontier, canonical)
			}
		}
	}

	return edges, nil
}

// followEdges walks the in-memory edge map to the root, stopping on the last
// id seen if the rows ever formed a cycle.
func followEdges(edges map[uuid.UUID]uuid.UUID, id uuid.UUID) uuid.UUID {
	current := id
	visited := map[uuid.UUID]struct{}{current: {}}

	for {
		next, ok := edges[current]
		if !ok {
			return current
		}
		if _, seen := visited[next]; seen {
			return current
		}
		visited[next] = struct{}{}
		current = next
	}
}

func (f *ResolutionFlowImpl) cacheGet(ctx context.Context, tenantID, customerID uuid.UUID) (uuid.UUID, bool) {
	if f.rc == nil {
		return uuid.Nil, false
	}
	val, err := f.rc.Get(ctx, resolutionCacheKey(tenantID, customerID)).Result()
	if err != nil {
		return uuid.Nil, false
	}
	canonical, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false
	}
	return canonical, true
}

func (f *ResolutionFlowImpl) cacheSet(ctx context.Context, tenantID, customerID, canonical uuid.UUID) {
	if f.rc == nil || f.cacheTTL <= 0 {
		return
	}
	_ = f.rc.Set(ctx, resolutionCacheKey(tenantID, customerID), canonical.String(), f.cacheTTL).Err()
}
