package rating

import (
	"cmp"
	"slices"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/util/timeutil"
)

const (
	TypeGames      = "games"
	TypeAvgPlace   = "avg_place"
	TypeAvgScore   = "avg_score"
	TypeTotalScore = "total_score"
	TypeSeries     = "series"
)

func builtinTypes() []Type {
	return []Type{
		{ID: TypeGames, Name: "Games played", Count: countGames},
		{ID: TypeAvgPlace, Name: "Average place", Count: countAvgPlace},
		{ID: TypeAvgScore, Name: "Average score", Count: countAvgScore},
		{ID: TypeTotalScore, Name: "Total score", Count: countTotalScore},
		{ID: TypeSeries, Name: "Best series", NeedsSeries: true, Count: countSeries},
	}
}

type playerTotals struct {
	games  int
	places int
	score  int
}

// totals aggregates per-player sums, keeping players in the order of their first game.
func totals(games []ledger.Game) ([]uint, map[uint]*playerTotals) {
	var order []uint
	mp := make(map[uint]*playerTotals)
	for _, g := range games {
		for _, r := range g.Results {
			t, ok := mp[r.PlayerID]
			if !ok {
				t = &playerTotals{}
				mp[r.PlayerID] = t
				order = append(order, r.PlayerID)
			}
			t.games++
			t.places += int(r.Place)
			t.score += r.Score
		}
	}
	return order, mp
}

type GamesValue struct {
	Games int `json:"games"`
}

func countGames(_ *ledger.Rating, games []ledger.Game) []Entry {
	order, mp := totals(games)
	res := make([]Entry, 0, len(order))
	for _, id := range order {
		t := mp[id]
		res = append(res, Entry{
			PlayerID: id,
			Value:    GamesValue{Games: t.games},
			Key:      []float64{-float64(t.games)},
		})
	}
	return res
}

type AvgPlaceValue struct {
	Games    int     `json:"games"`
	AvgPlace float64 `json:"avg_place"`
}

func countAvgPlace(_ *ledger.Rating, games []ledger.Game) []Entry {
	order, mp := totals(games)
	res := make([]Entry, 0, len(order))
	for _, id := range order {
		t := mp[id]
		avg := float64(t.places) / float64(t.games)
		res = append(res, Entry{
			PlayerID: id,
			Value:    AvgPlaceValue{Games: t.games, AvgPlace: avg},
			Key:      []float64{avg, -float64(t.games)},
		})
	}
	return res
}

type AvgScoreValue struct {
	Games    int     `json:"games"`
	AvgScore float64 `json:"avg_score"`
}

func countAvgScore(_ *ledger.Rating, games []ledger.Game) []Entry {
	order, mp := totals(games)
	res := make([]Entry, 0, len(order))
	for _, id := range order {
		t := mp[id]
		avg := float64(t.score) / float64(t.games)
		res = append(res, Entry{
			PlayerID: id,
			Value:    AvgScoreValue{Games: t.games, AvgScore: avg},
			Key:      []float64{-avg, -float64(t.games)},
		})
	}
	return res
}

type TotalScoreValue struct {
	Games      int `json:"games"`
	TotalScore int `json:"total_score"`
}

func countTotalScore(_ *ledger.Rating, games []ledger.Game) []Entry {
	order, mp := totals(games)
	res := make([]Entry, 0, len(order))
	for _, id := range order {
		t := mp[id]
		res = append(res, Entry{
			PlayerID: id,
			Value:    TotalScoreValue{Games: t.games, TotalScore: t.score},
			Key:      []float64{-float64(t.score)},
		})
	}
	return res
}

type SeriesValue struct {
	AvgPlace  float64       `json:"avg_place"`
	Score     int           `json:"score"`
	Places    []int16       `json:"places"`
	StartDate timeutil.Date `json:"start_date"`
	EndDate   timeutil.Date `json:"end_date"`
}

type seat struct {
	game   *ledger.Game
	result ledger.GameResult
}

// countSeries finds for each player the run of SeriesLen consecutive games with the best average
// place, preferring the greater score sum and then the earlier run. Players with fewer games get
// no entry.
func countSeries(r *ledger.Rating, games []ledger.Game) []Entry {
	n := *r.SeriesLen
	var order []uint
	seats := make(map[uint][]seat)
	for i := range games {
		g := &games[i]
		for _, res := range g.Results {
			if _, ok := seats[res.PlayerID]; !ok {
				order = append(order, res.PlayerID)
			}
			seats[res.PlayerID] = append(seats[res.PlayerID], seat{game: g, result: res})
		}
	}

	var out []Entry
	for _, id := range order {
		ss := seats[id]
		if len(ss) < n {
			continue
		}
		places, score := 0, 0
		bestStart, bestPlaces, bestScore := -1, 0, 0
		for i, s := range ss {
			places += int(s.result.Place)
			score += s.result.Score
			if i >= n {
				places -= int(ss[i-n].result.Place)
				score -= ss[i-n].result.Score
			}
			if i < n-1 {
				continue
			}
			better := bestStart < 0 ||
				places < bestPlaces ||
				(places == bestPlaces && score > bestScore)
			if better {
				bestStart, bestPlaces, bestScore = i-n+1, places, score
			}
		}
		run := ss[bestStart : bestStart+n]
		val := SeriesValue{
			AvgPlace:  float64(bestPlaces) / float64(n),
			Score:     bestScore,
			Places:    make([]int16, n),
			StartDate: run[0].game.Date,
			EndDate:   run[n-1].game.Date,
		}
		for i, s := range run {
			val.Places[i] = s.result.Place
		}
		var gameID *uint
		if last := run[n-1].game.ID; last != 0 {
			gameID = &last
		}
		out = append(out, Entry{
			PlayerID: id,
			GameID:   gameID,
			Value:    val,
			Key:      []float64{val.AvgPlace, -float64(bestScore)},
		})
	}
	return out
}

// SortGames orders games chronologically: by date, then by addition time, then by id.
func SortGames(games []ledger.Game) {
	slices.SortStableFunc(games, func(a, b ledger.Game) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := a.AdditionTime.Compare(b.AdditionTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// FilterWindow keeps the games whose date lies within [from, to]. Nil bounds are open.
func FilterWindow(games []ledger.Game, from, to *timeutil.Date) []ledger.Game {
	res := make([]ledger.Game, 0, len(games))
	for _, g := range games {
		if from != nil && g.Date.Before(*from) {
			continue
		}
		if to != nil && g.Date.After(*to) {
			continue
		}
		res = append(res, g)
	}
	return res
}

func compareKeys(a, b []float64) int {
	for i := range min(len(a), len(b)) {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// Rank orders entries best first and assigns competition places ("1, 2, 2, 4") to the players
// that are not hidden. Hidden players get no place.
func Rank(entries []Entry, hidden map[uint]bool) (sorted []Entry, places []*int) {
	sorted = slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		return compareKeys(a.Key, b.Key)
	})
	places = make([]*int, len(sorted))
	visible := 0
	var prev *Entry
	prevPlace := 0
	for i := range sorted {
		e := &sorted[i]
		if hidden[e.PlayerID] {
			continue
		}
		visible++
		place := visible
		if prev != nil && compareKeys(prev.Key, e.Key) == 0 {
			place = prevPlace
		}
		places[i] = &place
		prev, prevPlace = e, place
	}
	return sorted, places
}
