// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"errors"
	"testing"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/canjrgultekin/profiqo-sub000/repository"
	testingutil "github.com/canjrgultekin/profiqo-sub000/testing"
	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireDB fails the test on any suite error but skips when no Postgres is
// reachable, so the pure-logic suites still run everywhere.
func requireDB(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, testingutil.ErrDatabaseUnavailable) {
		t.Skipf("skipping: %v", err)
	}
	require.NoError(t, err)
}

func TestMergeSuggestionRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewMergeSuggestionRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		otherTenant := uuid.New()
		now := utils.UTCNow()
		expires := now.Add(24 * time.Hour)

		candidateA := uuid.New()
		candidateB := uuid.New()

		payload := models.SuggestionPayload{
			GroupKey:   "email:jane@example.com",
			Confidence: 0.9,
			Candidates: []models.SuggestionCandidate{
				{CustomerID: candidateA},
				{CustomerID: candidateB},
			},
		}

		t.Run("UpsertBatchInsert", func(t *testing.T) {
			written, err := repo.UpsertBatch(ctx, tenantID, []repository.SuggestionUpsert{
				{GroupKey: "email:jane@example.com", Confidence: 0.9, NormalizedName: "jane doe", Payload: payload},
				{GroupKey: "   ", Confidence: 0.5, Payload: payload},                       // blank key skipped
				{GroupKey: "email:bob@example.com", Confidence: 1.7, Payload: payload},    // clamped to 1
				{GroupKey: "email:eve@example.com", Confidence: -0.2, Payload: payload},   // clamped to 0
			}, now, expires)
			require.NoError(t, err)
			assert.Equal(t, 3, written)

			row, err := repo.ByGroupKey(ctx, tenantID, "email:bob@example.com", now)
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, 1.0, row.Confidence)
			assert.Equal(t, "email:bob@example.com", row.NormalizedName, "normalized name defaults to group key")

			row, err = repo.ByGroupKey(ctx, tenantID, "email:eve@example.com", now)
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, 0.0, row.Confidence)
		})

		t.Run("UpsertBatchUpdateBumpsVersion", func(t *testing.T) {
			before, err := repo.ByGroupKey(ctx, tenantID, "email:jane@example.com", now)
			require.NoError(t, err)
			require.NotNil(t, before)

			later := now.Add(time.Hour)
			written, err := repo.UpsertBatch(ctx, tenantID, []repository.SuggestionUpsert{
				{GroupKey: "email:jane@example.com", Confidence: 0.95, NormalizedName: "jane m doe", Payload: payload},
			}, later, later.Add(24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, written)

			after, err := repo.ByGroupKey(ctx, tenantID, "email:jane@example.com", later)
			require.NoError(t, err)
			require.NotNil(t, after)
			assert.Equal(t, before.ID, after.ID, "row is updated in place, not replaced")
			assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
			assert.Equal(t, 0.95, after.Confidence)
			assert.Equal(t, "jane m doe", after.NormalizedName)
		})

		t.Run("ByGroupKeyExpired", func(t *testing.T) {
			farFuture := expires.Add(48 * time.Hour)
			row, err := repo.ByGroupKey(ctx, tenantID, "email:bob@example.com", farFuture)
			require.NoError(t, err)
			assert.Nil(t, row)
		})

		t.Run("ByGroupKeyTenantIsolation", func(t *testing.T) {
			row, err := repo.ByGroupKey(ctx, otherTenant, "email:jane@example.com", now)
			require.NoError(t, err)
			assert.Nil(t, row)
		})

		t.Run("ListPending", func(t *testing.T) {
			rows, err := repo.ListPending(ctx, tenantID, now.Add(time.Hour), 50)
			require.NoError(t, err)
			require.Len(t, rows, 3)
			// Newest version first
			assert.Equal(t, "email:jane@example.com", rows[0].GroupKey)
		})

		t.Run("ListPendingHidesDecidedCurrentVersion", func(t *testing.T) {
			decisionRepo := repository.NewMergeDecisionRepository(testDB.DB)

			suggestion, err := repo.ByGroupKey(ctx, tenantID, "email:bob@example.com", now)
			require.NoError(t, err)
			require.NotNil(t, suggestion)

			decided := utils.UTCNow()
			require.NoError(t, decisionRepo.Upsert(ctx, &models.MergeDecision{
				ID:                  uuid.New(),
				TenantID:            tenantID,
				GroupKey:            suggestion.GroupKey,
				Status:              models.MergeDecisionStatusRejected,
				SuggestionUpdatedAt: suggestion.UpdatedAt,
				DecidedAt:           decided,
				CreatedAt:           decided,
				UpdatedAt:           decided,
			}))

			rows, err := repo.ListPending(ctx, tenantID, now.Add(time.Hour), 50)
			require.NoError(t, err)
			for _, r := range rows {
				assert.NotEqual(t, "email:bob@example.com", r.GroupKey)
			}
		})

		t.Run("ListPendingResurfacesStaleDecision", func(t *testing.T) {
			// Refresh the decided suggestion; its version no longer matches the decision
			later := now.Add(2 * time.Hour)
			_, err := repo.UpsertBatch(ctx, tenantID, []repository.SuggestionUpsert{
				{GroupKey: "email:bob@example.com", Confidence: 0.8, Payload: payload},
			}, later, later.Add(24*time.Hour))
			require.NoError(t, err)

			rows, err := repo.ListPending(ctx, tenantID, later, 50)
			require.NoError(t, err)

			found := false
			for _, r := range rows {
				if r.GroupKey == "email:bob@example.com" {
					found = true
				}
			}
			assert.True(t, found, "group with stale decision must resurface")
		})

		t.Run("ListPendingClampsTake", func(t *testing.T) {
			rows, err := repo.ListPending(ctx, tenantID, now, 0)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(rows), 50)

			rows, err = repo.ListPending(ctx, tenantID, now, 2)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(rows), 2)
		})

		return nil
	})
	requireDB(t, err)
}

func TestMergeDecisionRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewMergeDecisionRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		canonical := uuid.New()
		now := utils.UTCNow()

		t.Run("UpsertInsert", func(t *testing.T) {
			err := repo.Upsert(ctx, &models.MergeDecision{
				ID:                  uuid.New(),
				TenantID:            tenantID,
				GroupKey:            "g1",
				Status:              models.MergeDecisionStatusRejected,
				SuggestionUpdatedAt: now,
				DecidedAt:           now,
				CreatedAt:           now,
				UpdatedAt:           now,
			})
			require.NoError(t, err)

			row, err := repo.ByGroupKey(ctx, tenantID, "g1")
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, models.MergeDecisionStatusRejected, row.Status)
			assert.Nil(t, row.CanonicalCustomerID)
		})

		t.Run("UpsertOverwrites", func(t *testing.T) {
			later := now.Add(time.Minute)
			err := repo.Upsert(ctx, &models.MergeDecision{
				ID:                  uuid.New(),
				TenantID:            tenantID,
				GroupKey:            "g1",
				Status:              models.MergeDecisionStatusApproved,
				CanonicalCustomerID: &canonical,
				SuggestionUpdatedAt: later,
				DecidedAt:           later,
				CreatedAt:           later,
				UpdatedAt:           later,
			})
			require.NoError(t, err)

			row, err := repo.ByGroupKey(ctx, tenantID, "g1")
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, models.MergeDecisionStatusApproved, row.Status)
			require.NotNil(t, row.CanonicalCustomerID)
			assert.Equal(t, canonical, *row.CanonicalCustomerID)

			count, err := repo.Count(ctx, models.MergeDecisionFilter{TenantID: &tenantID})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count, "one decision row per group key")
		})

		t.Run("ByGroupKeyNotFound", func(t *testing.T) {
			row, err := repo.ByGroupKey(ctx, tenantID, "missing")
			require.NoError(t, err)
			assert.Nil(t, row)
		})

		return nil
	})
	requireDB(t, err)
}

func TestMergeLinkRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewMergeLinkRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		canonical := uuid.New()
		sourceA := uuid.New()
		sourceB := uuid.New()
		now := utils.UTCNow()

		t.Run("UpsertPointers", func(t *testing.T) {
			err := repo.UpsertPointers(ctx, tenantID, []uuid.UUID{sourceA, sourceB, canonical}, canonical, "g1", now)
			require.NoError(t, err)

			link, err := repo.BySourceID(ctx, tenantID, sourceA)
			require.NoError(t, err)
			require.NotNil(t, link)
			assert.Equal(t, canonical, link.CanonicalCustomerID)

			// The canonical id itself never gets a self-pointer
			link, err = repo.BySourceID(ctx, tenantID, canonical)
			require.NoError(t, err)
			assert.Nil(t, link)
		})

		t.Run("UpsertPointersRepoints", func(t *testing.T) {
			newCanonical := uuid.New()
			err := repo.UpsertPointers(ctx, tenantID, []uuid.UUID{sourceA, sourceB, canonical}, newCanonical, "g2", now.Add(time.Minute))
			require.NoError(t, err)

			links, err := repo.ListBySourceIDs(ctx, tenantID, []uuid.UUID{sourceA, sourceB, canonical})
			require.NoError(t, err)
			require.Len(t, links, 3)
			for _, l := range links {
				assert.Equal(t, newCanonical, l.CanonicalCustomerID)
				assert.Equal(t, "g2", l.GroupKey)
			}

			inEdges, err := repo.ListByCanonicalIDs(ctx, tenantID, []uuid.UUID{newCanonical})
			require.NoError(t, err)
			assert.Len(t, inEdges, 3)
		})

		t.Run("TenantIsolation", func(t *testing.T) {
			link, err := repo.BySourceID(ctx, uuid.New(), sourceA)
			require.NoError(t, err)
			assert.Nil(t, link)
		})

		return nil
	})
	requireDB(t, err)
}

func TestCustomerMetricsRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCustomerMetricsRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		customerA := uuid.New()
		customerB := uuid.New()
		unknown := uuid.New()
		now := utils.UTCNow()

		_, err := fixtures.CreateTestMetrics(tenantID, customerA, 5, now.Add(-48*time.Hour), now)
		require.NoError(t, err)
		_, err = fixtures.CreateTestMetrics(tenantID, customerB, 2, now.Add(-24*time.Hour), now)
		require.NoError(t, err)

		t.Run("ByCustomerIDs", func(t *testing.T) {
			metrics, err := repo.ByCustomerIDs(ctx, tenantID, []uuid.UUID{customerA, customerB, unknown})
			require.NoError(t, err)
			require.Len(t, metrics, 2)
			assert.Equal(t, int64(5), metrics[customerA].OrdersCount)
			assert.Equal(t, int64(2), metrics[customerB].OrdersCount)
			assert.Nil(t, metrics[unknown])
		})

		t.Run("EmptyInput", func(t *testing.T) {
			metrics, err := repo.ByCustomerIDs(ctx, tenantID, nil)
			require.NoError(t, err)
			assert.Empty(t, metrics)
		})

		return nil
	})
	requireDB(t, err)
}
