package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestionPayloadScan(t *testing.T) {
	t.Run("ProducerWireFormat", func(t *testing.T) {
		raw := `{
			"groupKey": "email:jane@example.com",
			"confidence": 0.93,
			"normalizedName": "jane doe",
			"candidates": [
				{"customerId": "11111111-1111-1111-1111-111111111111", "firstName": "Jane"},
				{"customerId": "22222222-2222-2222-2222-222222222222", "channels": {"email": "jane@example.com"}}
			]
		}`

		var p SuggestionPayload
		require.NoError(t, p.Scan([]byte(raw)))

		assert.Equal(t, "email:jane@example.com", p.GroupKey)
		assert.InDelta(t, 0.93, p.Confidence, 1e-9)
		require.Len(t, p.Candidates, 2)
		assert.Equal(t, "Jane", *p.Candidates[0].FirstName)
		assert.Equal(t, "jane@example.com", p.Candidates[1].Channels["email"])
	})

	t.Run("NilValue", func(t *testing.T) {
		p := SuggestionPayload{GroupKey: "stale"}
		require.NoError(t, p.Scan(nil))
		assert.Empty(t, p.GroupKey)
		assert.Empty(t, p.Candidates)
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		var p SuggestionPayload
		assert.Error(t, p.Scan(42))
	})
}

func TestDistinctCandidateIDs(t *testing.T) {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	t.Run("PreservesOrderAndDropsDuplicates", func(t *testing.T) {
		p := SuggestionPayload{Candidates: []SuggestionCandidate{
			{CustomerID: b},
			{CustomerID: a},
			{CustomerID: b},
		}}
		assert.Equal(t, []uuid.UUID{b, a}, p.DistinctCandidateIDs())
	})

	t.Run("DropsNilIDs", func(t *testing.T) {
		p := SuggestionPayload{Candidates: []SuggestionCandidate{
			{CustomerID: uuid.Nil},
			{CustomerID: a},
		}}
		assert.Equal(t, []uuid.UUID{a}, p.DistinctCandidateIDs())
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		var p SuggestionPayload
		assert.Empty(t, p.DistinctCandidateIDs())
	})
}

func TestMergeSuggestionIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := &MergeSuggestion{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.IsExpired(now))

	s.ExpiresAt = now
	assert.True(t, s.IsExpired(now), "a suggestion expiring exactly now is no longer live")

	s.ExpiresAt = now.Add(-time.Minute)
	assert.True(t, s.IsExpired(now))
}

func TestMergeDecisionIsStaleFor(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := &MergeDecision{SuggestionUpdatedAt: stamp}
	assert.False(t, d.IsStaleFor(stamp))
	assert.True(t, d.IsStaleFor(stamp.Add(time.Second)), "a refreshed suggestion reopens the group")
}
