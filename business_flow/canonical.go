package businessflow

import (
	"strings"
	"time"

	"github.com/canjrgultekin/profiqo-sub000/models"
	"github.com/google/uuid"
)

// SelectCanonical picks the surviving canonical id for a cluster membership.
// Ordered criteria: highest orders count, then latest last-seen, then
// earliest first-seen, then lowest customer id. The id comparison makes the
// order total, so identical metrics can never leave the choice ambiguous or
// dependent on input ordering. Members without a metrics row count as zero
// orders with zero times.
//
// Orders count dominates so that revenue attribution stays on the identity
// with the deepest commercial history; recency breaks ties toward the
// record that is still active.
func SelectCanonical(memberIDs []uuid.UUID, metrics map[uuid.UUID]*models.CustomerMetrics) uuid.UUID {
	winner := uuid.Nil
	var winnerMetrics *models.CustomerMetrics

	for _, id := range memberIDs {
		if id == uuid.Nil {
			continue
		}
		if winner == uuid.Nil {
			winner = id
			winnerMetrics = metrics[id]
			continue
		}
		if beats(id, metrics[id], winner, winnerMetrics) {
			winner = id
			winnerMetrics = metrics[id]
		}
	}

	return winner
}

// beats reports whether candidate a ranks strictly ahead of b.
func beats(aID uuid.UUID, a *models.CustomerMetrics, bID uuid.UUID, b *models.CustomerMetrics) bool {
	aOrders, bOrders := ordersOf(a), ordersOf(b)
	if aOrders != bOrders {
		return aOrders > bOrders
	}

	aLast, bLast := lastSeenOf(a), lastSeenOf(b)
	if !aLast.Equal(bLast) {
		return aLast.After(bLast)
	}

	aFirst, bFirst := firstSeenOf(a), firstSeenOf(b)
	if !aFirst.Equal(bFirst) {
		return aFirst.Before(bFirst)
	}

	return strings.Compare(aID.String(), bID.String()) < 0
}

func ordersOf(m *models.CustomerMetrics) int64 {
	if m == nil {
		return 0
	}
	return m.OrdersCount
}

func lastSeenOf(m *models.CustomerMetrics) time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.LastSeenAt
}

func firstSeenOf(m *models.CustomerMetrics) time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.FirstSeenAt
}
