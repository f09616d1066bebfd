package ledger

import (
	"cmp"
	"slices"
)

type OpponentStat struct {
	Opponent Player
	Wins     int
	Losses   int
}

func (s OpponentStat) Total() int {
	return s.Wins + s.Losses
}

func (s OpponentStat) WinRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Total())
}

// CountOpponents tallies head-to-head results of the player against everyone who sat at the same
// table. The player wins against an opponent if the opponent finished at a numerically greater
// place. Games without a seat of the player are skipped and counted. The result is sorted by the
// number of encounters, from most to least; equal entries keep the order of first encounter.
//
// Results of the games are expected to carry their Player.
func CountOpponents(playerID uint, games []Game) (stats []OpponentStat, skipped int) {
	idx := make(map[uint]int)
	for gi := range games {
		game := &games[gi]
		own, ok := game.Seat(playerID)
		if !ok {
			skipped++
			continue
		}
		for _, r := range game.Results {
			if r.PlayerID == playerID {
				continue
			}
			i, ok := idx[r.PlayerID]
			if !ok {
				i = len(stats)
				idx[r.PlayerID] = i
				opp := r.Player
				opp.ID = r.PlayerID
				stats = append(stats, OpponentStat{Opponent: opp})
			}
			if r.Place > own.Place {
				stats[i].Wins++
			} else {
				stats[i].Losses++
			}
		}
	}
	slices.SortStableFunc(stats, func(a, b OpponentStat) int {
		return cmp.Compare(b.Total(), a.Total())
	})
	return stats, skipped
}
