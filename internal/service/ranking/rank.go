// internal/service/ranking/rank.go
//
// The ranking composer is a pure function over listing state and the clock.
// It never reads storage and never trusts stored entitlement flags: effective
// status is recomputed from expiry timestamps on every call, so a listing
// ranks as downgraded the instant a grant lapses, even if the expiry sweep
// has not rewritten the row yet.
package ranking

import (
	"sort"
	"time"

	"sokoni-service/internal/domain/listing"
)

// Key is the orderable ranking key for one listing at one instant. Fields
// are ordered by precedence: promotion beats tier beats featured beats
// recency.
type Key struct {
	Promoted     bool      `json:"promoted"`
	TierPriority int       `json:"tier_priority"`
	Featured     bool      `json:"featured"`
	BumpedAt     time.Time `json:"bumped_at"`
}

// Compute derives the ranking key for a listing rendered at the given
// placement slot. slotID <= 0 means the surface being rendered has no
// promoted placement, so promotions contribute nothing there. Non-active
// listings and malformed grants rank as entitlement-free.
func Compute(l *listing.Listing, slotID int64, now time.Time) Key {
	if !l.Rankable() {
		return Key{BumpedAt: l.BumpedAt}
	}

	k := Key{
		TierPriority: l.TierPriorityAt(now),
		Featured:     l.FeaturedAt(now),
		BumpedAt:     l.BumpedAt,
	}
	if slotID > 0 {
		k.Promoted = l.PromotedInSlotAt(slotID, now)
	}
	return k
}

// Before reports whether k ranks ahead of other.
func (k Key) Before(other Key) bool {
	if k.Promoted != other.Promoted {
		return k.Promoted
	}
	if k.TierPriority != other.TierPriority {
		return k.TierPriority > other.TierPriority
	}
	if k.Featured != other.Featured {
		return k.Featured
	}
	return k.BumpedAt.After(other.BumpedAt)
}

// Sort orders a result page in place, best placement first. The sort is
// stable so equal keys keep their fetch order.
func Sort(listings []listing.Listing, slotID int64, now time.Time) {
	keys := make([]Key, len(listings))
	for i := range listings {
		keys[i] = Compute(&listings[i], slotID, now)
	}

	sort.SliceStable(listings, func(i, j int) bool {
		return keys[i].Before(keys[j])
	})
}
