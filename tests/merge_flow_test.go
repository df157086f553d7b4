package tests

import (
	"testing"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/app/dto"
	businessflow "github.com/canjrgultekin/profiqo-sub000/business_flow"
	"github.com/canjrgultekin/profiqo-sub000/config"
	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/canjrgultekin/profiqo-sub000/repository"
	testingutil "github.com/canjrgultekin/profiqo-sub000/testing"
	"github.com/canjrgultekin/profiqo-sub000/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newMergeFlow(db *gorm.DB) businessflow.MergeFlow {
	return businessflow.NewMergeFlow(
		repository.NewMergeSuggestionRepository(db),
		repository.NewMergeDecisionRepository(db),
		repository.NewMergeLinkRepository(db),
		repository.NewCustomerMetricsRepository(db),
		db,
		nil,
		config.MergeConfig{
			SuggestionTTL:      24 * time.Hour,
			MaxRetryAttempts:   3,
			PendingDefaultTake: 50,
		},
	)
}

func newResolutionFlow(db *gorm.DB) businessflow.ResolutionFlow {
	return businessflow.NewResolutionFlow(repository.NewMergeLinkRepository(db), nil, 0)
}

func TestMergeFlowApprove(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newMergeFlow(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		a := uuid.New()
		b := uuid.New()
		c := uuid.New()
		now := utils.UTCNow()

		// c carries the deepest order history and must survive
		_, err := fixtures.CreateTestMetrics(tenantID, a, 1, now.Add(-72*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestMetrics(tenantID, b, 3, now.Add(-48*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestMetrics(tenantID, c, 7, now.Add(-24*time.Hour), now)
		require.NoError(t, err)

		_, err = fixtures.CreateTestSuggestion(tenantID, "g-abc", a, b, c)
		require.NoError(t, err)

		t.Run("SelectsCanonicalByMetrics", func(t *testing.T) {
			res, err := flow.Approve(ctx, tenantID, "g-abc")
			require.NoError(t, err)
			assert.Equal(t, c.String(), res.CanonicalCustomerID)
			assert.ElementsMatch(t, []string{a.String(), b.String()}, res.MergedCustomerIDs)
		})

		t.Run("Idempotent", func(t *testing.T) {
			res, err := flow.Approve(ctx, tenantID, "g-abc")
			require.NoError(t, err)
			assert.Equal(t, c.String(), res.CanonicalCustomerID)
			assert.ElementsMatch(t, []string{a.String(), b.String()}, res.MergedCustomerIDs)
		})

		t.Run("RemovedFromPending", func(t *testing.T) {
			pending, err := flow.ListPending(ctx, tenantID, 50)
			require.NoError(t, err)
			for _, item := range pending.Items {
				assert.NotEqual(t, "g-abc", item.GroupKey)
			}
		})

		t.Run("NotFound", func(t *testing.T) {
			_, err := flow.Approve(ctx, tenantID, "no-such-group")
			assert.True(t, businessflow.IsSuggestionNotFound(err))
		})

		t.Run("MalformedSingleCandidate", func(t *testing.T) {
			_, err := fixtures.CreateTestSuggestion(tenantID, "g-single", a)
			require.NoError(t, err)

			_, err = flow.Approve(ctx, tenantID, "g-single")
			assert.True(t, businessflow.IsMalformedSuggestion(err))
		})

		t.Run("MalformedDuplicateCandidates", func(t *testing.T) {
			_, err := fixtures.CreateTestSuggestion(tenantID, "g-dupes", b, b, b)
			require.NoError(t, err)

			_, err = flow.Approve(ctx, tenantID, "g-dupes")
			assert.True(t, businessflow.IsMalformedSuggestion(err))
		})

		t.Run("MissingTenant", func(t *testing.T) {
			_, err := flow.Approve(ctx, uuid.Nil, "g-abc")
			assert.True(t, businessflow.IsMissingTenantContext(err))
		})

		t.Run("BlankGroupKey", func(t *testing.T) {
			_, err := flow.Approve(ctx, tenantID, "   ")
			assert.True(t, businessflow.IsGroupKeyRequired(err))
		})

		return nil
	})
	requireDB(t, err)
}

func TestMergeFlowApproveCollapsesChains(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newMergeFlow(testDB.DB)
		resolution := newResolutionFlow(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		a := uuid.New()
		b := uuid.New()
		c := uuid.New()
		now := utils.UTCNow()

		_, err := fixtures.CreateTestMetrics(tenantID, a, 1, now.Add(-72*time.Hour), now.Add(-2*time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestMetrics(tenantID, b, 3, now.Add(-48*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestMetrics(tenantID, c, 9, now.Add(-24*time.Hour), now)
		require.NoError(t, err)

		// First merge: {a, b} -> b
		_, err = fixtures.CreateTestSuggestion(tenantID, "g-ab", a, b)
		require.NoError(t, err)
		res, err := flow.Approve(ctx, tenantID, "g-ab")
		require.NoError(t, err)
		require.Equal(t, b.String(), res.CanonicalCustomerID)

		// Second merge: {b, c} -> c; a must follow b to c directly
		_, err = fixtures.CreateTestSuggestion(tenantID, "g-bc", b, c)
		require.NoError(t, err)
		res, err = flow.Approve(ctx, tenantID, "g-bc")
		require.NoError(t, err)
		assert.Equal(t, c.String(), res.CanonicalCustomerID)
		assert.ElementsMatch(t, []string{a.String(), b.String()}, res.MergedCustomerIDs,
			"members of previously merged clusters are pulled into the union")

		// Every id now resolves to c in a single hop
		for _, id := range []uuid.UUID{a, b, c} {
			resolved, err := resolution.ResolveCustomerID(ctx, tenantID, id)
			require.NoError(t, err)
			assert.Equal(t, c.String(), resolved.CanonicalCustomerID)
		}

		// Depth 1: a points straight at c, not at b
		linkRepo := repository.NewMergeLinkRepository(testDB.DB)
		link, err := linkRepo.BySourceID(ctx, tenantID, a)
		require.NoError(t, err)
		require.NotNil(t, link)
		assert.Equal(t, c, link.CanonicalCustomerID)

		// The canonical id has no outgoing edge
		link, err = linkRepo.BySourceID(ctx, tenantID, c)
		require.NoError(t, err)
		assert.Nil(t, link)

		return nil
	})
	requireDB(t, err)
}

func TestMergeFlowApprovePromotesPreviousLoser(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newMergeFlow(testDB.DB)
		resolution := newResolutionFlow(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		a := uuid.New()
		b := uuid.New()
		c := uuid.New()
		now := utils.UTCNow()

		// b wins the first merge on orders
		_, err := fixtures.CreateTestMetrics(tenantID, a, 2, now.Add(-72*time.Hour), now.Add(-2*time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestMetrics(tenantID, b, 5, now.Add(-48*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestMetrics(tenantID, c, 1, now.Add(-24*time.Hour), now)
		require.NoError(t, err)

		_, err = fixtures.CreateTestSuggestion(tenantID, "g-ab", a, b)
		require.NoError(t, err)
		res, err := flow.Approve(ctx, tenantID, "g-ab")
		require.NoError(t, err)
		require.Equal(t, b.String(), res.CanonicalCustomerID)

		// The ingestion projection moves on and a overtakes b
		err = testDB.DB.Model(&models.CustomerMetrics{}).
			Where("tenant_id = ? AND customer_id = ?", tenantID, a).
			Update("orders_count", 20).Error
		require.NoError(t, err)

		// a wins the second merge even though it lost the first one
		_, err = fixtures.CreateTestSuggestion(tenantID, "g-bc", b, c)
		require.NoError(t, err)
		res, err = flow.Approve(ctx, tenantID, "g-bc")
		require.NoError(t, err)
		assert.Equal(t, a.String(), res.CanonicalCustomerID)
		assert.ElementsMatch(t, []string{b.String(), c.String()}, res.MergedCustomerIDs)

		// The promoted winner's own stale edge is gone, so no cycle exists
		linkRepo := repository.NewMergeLinkRepository(testDB.DB)
		link, err := linkRepo.BySourceID(ctx, tenantID, a)
		require.NoError(t, err)
		assert.Nil(t, link)

		// Everyone, the old winner included, now resolves to a
		for _, id := range []uuid.UUID{a, b, c} {
			resolved, err := resolution.ResolveCustomerID(ctx, tenantID, id)
			require.NoError(t, err)
			assert.Equal(t, a.String(), resolved.CanonicalCustomerID)
		}

		return nil
	})
	requireDB(t, err)
}

func TestMergeFlowReject(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newMergeFlow(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		a := uuid.New()
		b := uuid.New()

		_, err := fixtures.CreateTestSuggestion(tenantID, "g-reject", a, b)
		require.NoError(t, err)

		t.Run("RecordsRejection", func(t *testing.T) {
			res, err := flow.Reject(ctx, tenantID, "g-reject")
			require.NoError(t, err)
			assert.Equal(t, "rejected", res.Status)

			// No links are written on rejection
			linkRepo := repository.NewMergeLinkRepository(testDB.DB)
			link, err := linkRepo.BySourceID(ctx, tenantID, a)
			require.NoError(t, err)
			assert.Nil(t, link)
		})

		t.Run("HiddenFromPending", func(t *testing.T) {
			pending, err := flow.ListPending(ctx, tenantID, 50)
			require.NoError(t, err)
			for _, item := range pending.Items {
				assert.NotEqual(t, "g-reject", item.GroupKey)
			}
		})

		t.Run("RefreshReopensGroup", func(t *testing.T) {
			rationale := "new evidence"
			_, err := flow.UpsertSuggestions(ctx, tenantID, &dto.UpsertSuggestionsRequest{
				Suggestions: []dto.UpsertSuggestionItem{{
					GroupKey:   "g-reject",
					Confidence: 0.99,
					Rationale:  &rationale,
					Candidates: []dto.CandidateRef{
						{CustomerID: a.String()},
						{CustomerID: b.String()},
					},
				}},
			})
			require.NoError(t, err)

			pending, err := flow.ListPending(ctx, tenantID, 50)
			require.NoError(t, err)

			found := false
			for _, item := range pending.Items {
				if item.GroupKey == "g-reject" {
					found = true
				}
			}
			assert.True(t, found, "refreshed suggestion makes the old decision stale")
		})

		t.Run("ApproveAfterRefresh", func(t *testing.T) {
			res, err := flow.Approve(ctx, tenantID, "g-reject")
			require.NoError(t, err)
			assert.NotEmpty(t, res.CanonicalCustomerID)
		})

		t.Run("NotFound", func(t *testing.T) {
			_, err := flow.Reject(ctx, tenantID, "missing-group")
			assert.True(t, businessflow.IsSuggestionNotFound(err))
		})

		return nil
	})
	requireDB(t, err)
}

func TestMergeFlowUpsertAndDetail(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newMergeFlow(testDB.DB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		a := uuid.New()
		b := uuid.New()
		first := "Jane"

		t.Run("UpsertAccepted", func(t *testing.T) {
			res, err := flow.UpsertSuggestions(ctx, tenantID, &dto.UpsertSuggestionsRequest{
				Suggestions: []dto.UpsertSuggestionItem{
					{
						GroupKey:       "email:jane@example.com",
						Confidence:     0.91,
						NormalizedName: "jane doe",
						Candidates: []dto.CandidateRef{
							{CustomerID: a.String(), FirstName: &first},
							{CustomerID: b.String()},
						},
					},
					{
						GroupKey:   "  ",
						Confidence: 0.5,
						Candidates: []dto.CandidateRef{{CustomerID: a.String()}},
					},
				},
			})
			require.NoError(t, err)
			assert.Equal(t, 1, res.Accepted, "blank group keys are skipped")
		})

		t.Run("Detail", func(t *testing.T) {
			detail, err := flow.GetSuggestion(ctx, tenantID, "email:jane@example.com")
			require.NoError(t, err)
			assert.Equal(t, "email:jane@example.com", detail.GroupKey)
			assert.Equal(t, "jane doe", detail.NormalizedName)
			require.Len(t, detail.Candidates, 2)
			assert.Equal(t, a.String(), detail.Candidates[0].CustomerID)
			assert.Equal(t, "Jane", *detail.Candidates[0].FirstName)
		})

		t.Run("DetailNotFound", func(t *testing.T) {
			_, err := flow.GetSuggestion(ctx, tenantID, "missing")
			assert.True(t, businessflow.IsSuggestionNotFound(err))
		})

		t.Run("ExportPending", func(t *testing.T) {
			data, err := flow.ExportPending(ctx, tenantID, 50)
			require.NoError(t, err)
			assert.NotEmpty(t, data)
			// XLSX files are zip archives
			assert.Equal(t, byte('P'), data[0])
			assert.Equal(t, byte('K'), data[1])
		})

		return nil
	})
	requireDB(t, err)
}

func TestMergeFlowListPendingTake(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := businessflow.NewMergeFlow(
			repository.NewMergeSuggestionRepository(testDB.DB),
			repository.NewMergeDecisionRepository(testDB.DB),
			repository.NewMergeLinkRepository(testDB.DB),
			repository.NewCustomerMetricsRepository(testDB.DB),
			testDB.DB,
			nil,
			config.MergeConfig{
				SuggestionTTL:      24 * time.Hour,
				MaxRetryAttempts:   3,
				PendingDefaultTake: 1,
			},
		)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		_, err := fixtures.CreateTestSuggestion(tenantID, "g1", uuid.New(), uuid.New())
		require.NoError(t, err)
		_, err = fixtures.CreateTestSuggestion(tenantID, "g2", uuid.New(), uuid.New())
		require.NoError(t, err)

		t.Run("ZeroTakeUsesConfiguredDefault", func(t *testing.T) {
			res, err := flow.ListPending(ctx, tenantID, 0)
			require.NoError(t, err)
			assert.Len(t, res.Items, 1)
		})

		t.Run("OversizedTakeUsesConfiguredDefault", func(t *testing.T) {
			res, err := flow.ListPending(ctx, tenantID, utils.MaxPendingTake+1)
			require.NoError(t, err)
			assert.Len(t, res.Items, 1)
		})

		t.Run("ExplicitTakeWithinBounds", func(t *testing.T) {
			res, err := flow.ListPending(ctx, tenantID, 10)
			require.NoError(t, err)
			assert.Len(t, res.Items, 2)
		})

		return nil
	})
	requireDB(t, err)
}

func TestResolutionFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newResolutionFlow(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		tenantID := uuid.New()
		canonical := uuid.New()
		merged := uuid.New()
		unknown := uuid.New()

		_, err := fixtures.CreateTestLink(tenantID, merged, canonical, "g1")
		require.NoError(t, err)

		t.Run("MergedID", func(t *testing.T) {
			res, err := flow.ResolveCustomerID(ctx, tenantID, merged)
			require.NoError(t, err)
			assert.Equal(t, canonical.String(), res.CanonicalCustomerID)
			assert.True(t, res.Merged)
		})

		t.Run("UnknownIDResolvesToItself", func(t *testing.T) {
			res, err := flow.ResolveCustomerID(ctx, tenantID, unknown)
			require.NoError(t, err)
			assert.Equal(t, unknown.String(), res.CanonicalCustomerID)
			assert.False(t, res.Merged)
		})

		t.Run("NilID", func(t *testing.T) {
			_, err := flow.ResolveCustomerID(ctx, tenantID, uuid.Nil)
			assert.True(t, businessflow.IsCustomerIDRequired(err))
		})

		t.Run("BatchTooLarge", func(t *testing.T) {
			ids := make([]string, utils.MaxResolveBatchSize+1)
			for i := range ids {
				ids[i] = uuid.New().String()
			}
			_, err := flow.ResolveCustomerIDs(ctx, tenantID, &dto.ResolveBatchRequest{CustomerIDs: ids})
			assert.True(t, businessflow.IsResolveBatchTooLarge(err))
		})

		t.Run("Batch", func(t *testing.T) {
			res, err := flow.ResolveCustomerIDs(ctx, tenantID, &dto.ResolveBatchRequest{
				CustomerIDs: []string{merged.String(), unknown.String(), canonical.String()},
			})
			require.NoError(t, err)
			require.Len(t, res.Items, 3)
			assert.Equal(t, canonical.String(), res.Items[0].CanonicalCustomerID)
			assert.True(t, res.Items[0].Merged)
			assert.Equal(t, unknown.String(), res.Items[1].CanonicalCustomerID)
			assert.Equal(t, canonical.String(), res.Items[2].CanonicalCustomerID)
			assert.False(t, res.Items[2].Merged)
		})

		t.Run("TenantIsolation", func(t *testing.T) {
			res, err := flow.ResolveCustomerID(ctx, uuid.New(), merged)
			require.NoError(t, err)
			assert.Equal(t, merged.String(), res.CanonicalCustomerID)
		})

		// Rows written before chain collapsing may still be multi-hop; the
		// helper has to walk them to the root instead of stopping mid-chain.
		x := uuid.New()
		y := uuid.New()
		z := uuid.New()
		_, err = fixtures.CreateTestLink(tenantID, x, y, "g-legacy")
		require.NoError(t, err)
		_, err = fixtures.CreateTestLink(tenantID, y, z, "g-legacy")
		require.NoError(t, err)

		t.Run("LegacyChainResolvesToRoot", func(t *testing.T) {
			res, err := flow.ResolveCustomerID(ctx, tenantID, x)
			require.NoError(t, err)
			assert.Equal(t, z.String(), res.CanonicalCustomerID)
			assert.True(t, res.Merged)
		})

		t.Run("LegacyChainBatch", func(t *testing.T) {
			res, err := flow.ResolveCustomerIDs(ctx, tenantID, &dto.ResolveBatchRequest{
				CustomerIDs: []string{x.String(), y.String()},
			})
			require.NoError(t, err)
			require.Len(t, res.Items, 2)
			assert.Equal(t, z.String(), res.Items[0].CanonicalCustomerID)
			assert.Equal(t, z.String(), res.Items[1].CanonicalCustomerID)
		})

		return nil
	})
	requireDB(t, err)
}
