// Package reconcile detects box spread positions in normalized option legs
// and folds them into margin snapshots. The detection predicates are
// strict: anything that is not exactly a box is ignored rather than
// partially matched.
package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
)

// Groups partitions legs by expiration date and keeps only those
// partitions that form a box spread: exactly four legs, net quantity of
// zero, and exactly two distinct strikes. Results are ordered by
// expiration.
func Groups(legs []domain.OptionLeg) []domain.BoxSpreadGroup {
	byExpiration := make(map[time.Time][]domain.OptionLeg)
	for _, leg := range legs {
		key := datemath.Midnight(leg.Expiration)
		byExpiration[key] = append(byExpiration[key], leg)
	}

	var groups []domain.BoxSpreadGroup
	for exp, members := range byExpiration {
		if g, ok := buildGroup(exp, members); ok {
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ExpirationDate.Before(groups[j].ExpirationDate)
	})
	return groups
}

func buildGroup(exp time.Time, legs []domain.OptionLeg) (domain.BoxSpreadGroup, bool) {
	if len(legs) != 4 {
		return domain.BoxSpreadGroup{}, false
	}

	netQuantity := 0
	costBasisSum := 0.0
	strikes := make(map[float64]struct{}, 2)
	for _, leg := range legs {
		netQuantity += leg.Quantity
		costBasisSum += leg.CostBasis
		strikes[leg.Strike] = struct{}{}
	}
	if netQuantity != 0 || len(strikes) != 2 {
		return domain.BoxSpreadGroup{}, false
	}

	low, high := math.Inf(1), math.Inf(-1)
	for s := range strikes {
		low = math.Min(low, s)
		high = math.Max(high, s)
	}
	quantity := abs(legs[0].Quantity)

	return domain.BoxSpreadGroup{
		ExpirationDate: exp,
		Legs:           legs,
		StrikePrice1:   low,
		StrikePrice2:   high,
		Quantity:       quantity,
		CostBasisSum:   costBasisSum,
		BoxSize:        (high - low) * 100 * float64(quantity),
	}, true
}

// DebitBalance sums the credits received across groups, exposed as the
// positive amount owed if every box were unwound today.
func DebitBalance(groups []domain.BoxSpreadGroup) float64 {
	total := 0.0
	for _, g := range groups {
		total += -g.CostBasisSum
	}
	return total
}

// Enrich attaches detected box groups and the derived debit balance to a
// snapshot.
func Enrich(snap *domain.MarginSnapshot, legs []domain.OptionLeg) {
	snap.Groups = Groups(legs)
	snap.BoxSpreadDebitBalance = DebitBalance(snap.Groups)
}

// SortAccounts orders snapshots with borrowing-capable accounts first:
// non-IRA before IRA, preserving input order within each class.
func SortAccounts(snaps []domain.MarginSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		return !snaps[i].IsIra && snaps[j].IsIra
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
