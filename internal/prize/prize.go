// Package prize ranks final scores and splits the pot between ranks.
package prize

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Score is a player's final cumulative score.
type Score struct {
	PlayerID string
	Score    int
}

// Placement is a ranked score with its payout.
type Placement struct {
	PlayerID string
	Score    int
	Position int
	Prize    int64
}

// Rank orders scores from highest to lowest. Equal scores share a position
// and the next distinct score is placed after the whole tie group, so two
// players tied first push the next score to third. Ties keep input order.
func Rank(scores []Score) []Placement {
	placements := make([]Placement, len(scores))
	for i, s := range scores {
		placements[i] = Placement{PlayerID: s.PlayerID, Score: s.Score}
	}
	slices.SortStableFunc(placements, func(a, b Placement) int {
		return b.Score - a.Score
	})
	for i := range placements {
		if i > 0 && placements[i].Score == placements[i-1].Score {
			placements[i].Position = placements[i-1].Position
			continue
		}
		placements[i].Position = i + 1
	}
	return placements
}

// Split ranks scores and pays each rank its share of pot from table, where
// table[i] is the share of rank i+1. A tie group sums the shares of the
// ranks it covers and divides them evenly. Payouts are floored to whole
// units and the remainder is not redistributed. Ranks beyond the table get
// nothing.
func Split(scores []Score, pot int64, table []float64) []Placement {
	placements := Rank(scores)
	if pot <= 0 {
		return placements
	}
	total := decimal.NewFromInt(pot)
	for i := 0; i < len(placements); {
		j := i
		for j < len(placements) && placements[j].Score == placements[i].Score {
			j++
		}
		share := decimal.Zero
		for r := i; r < j && r < len(table); r++ {
			share = share.Add(decimal.NewFromFloat(table[r]))
		}
		each := share.Mul(total).Div(decimal.NewFromInt(int64(j - i))).Floor().IntPart()
		for r := i; r < j; r++ {
			placements[r].Prize = max(each, 0)
		}
		i = j
	}
	return placements
}

// Total sums the payouts of placements.
func Total(placements []Placement) int64 {
	var sum int64
	for _, p := range placements {
		sum += p.Prize
	}
	return sum
}
