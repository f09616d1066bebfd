package rating

import (
	"testing"
	"time"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/util/timeutil"
)

func ptr[T any](v T) *T { return &v }

// makeGame builds a game on the given day of September 2017; seats are (player, score) pairs.
func makeGame(id uint, day int, seats ...[2]int) ledger.Game {
	g := ledger.Game{
		ID:           id,
		Date:         timeutil.NewDate(2017, time.September, day),
		AdditionTime: timeutil.UTCTime(time.Date(2017, time.September, day, 20, 0, 0, int(id), time.UTC)),
	}
	for i, s := range seats {
		g.Results = append(g.Results, ledger.GameResult{
			GameID:           id,
			PlayerID:         uint(s[0]),
			Score:            s[1],
			StartingPosition: int16(i + 1),
		})
	}
	ledger.AssignPlaces(g.Results)
	return g
}

func byPlayer(entries []Entry) map[uint]Entry {
	res := make(map[uint]Entry, len(entries))
	for _, e := range entries {
		res[e.PlayerID] = e
	}
	return res
}

func sampleGames() []ledger.Game {
	return []ledger.Game{
		makeGame(1, 16, [2]int{1, 40000}, [2]int{2, 30000}, [2]int{3, 20000}, [2]int{4, 10000}),
		makeGame(2, 17, [2]int{1, 10000}, [2]int{2, 40000}, [2]int{3, 30000}, [2]int{4, 20000}),
		makeGame(3, 18, [2]int{1, 40000}, [2]int{2, 20000}),
	}
}

func TestBasicCounters(t *testing.T) {
	games := sampleGames()
	r := &ledger.Rating{}

	gp := byPlayer(countGames(r, games))
	if v := gp[1].Value.(GamesValue); v.Games != 3 {
		t.Fatalf("games: expected = 3, got = %v", v.Games)
	}
	if v := gp[4].Value.(GamesValue); v.Games != 2 {
		t.Fatalf("games: expected = 2, got = %v", v.Games)
	}

	ap := byPlayer(countAvgPlace(r, games))
	// Player 1: places 1, 4, 1.
	if v := ap[1].Value.(AvgPlaceValue); v.AvgPlace != 2 || v.Games != 3 {
		t.Fatalf("avg place: expected = 2 over 3, got = %+v", v)
	}

	as := byPlayer(countAvgScore(r, games))
	if v := as[2].Value.(AvgScoreValue); v.AvgScore != 30000 {
		t.Fatalf("avg score: expected = 30000, got = %v", v.AvgScore)
	}

	ts := byPlayer(countTotalScore(r, games))
	if v := ts[1].Value.(TotalScoreValue); v.TotalScore != 90000 || v.Games != 3 {
		t.Fatalf("total score: expected = 90000 over 3, got = %+v", v)
	}
}

func TestSeriesCounter(t *testing.T) {
	games := []ledger.Game{
		makeGame(1, 10, [2]int{1, 10000}, [2]int{2, 40000}),
		makeGame(2, 11, [2]int{1, 40000}, [2]int{2, 10000}),
		makeGame(3, 12, [2]int{1, 35000}, [2]int{2, 15000}),
		makeGame(4, 13, [2]int{1, 10000}, [2]int{2, 40000}),
		makeGame(5, 14, [2]int{1, 45000}, [2]int{3, 5000}),
	}
	r := &ledger.Rating{SeriesLen: ptr(2)}
	res := byPlayer(countSeries(r, games))

	// Player 1 wins games 2 and 3 in a row, every other run of two includes a loss.
	e := res[1]
	v := e.Value.(SeriesValue)
	if v.AvgPlace != 1 || v.Score != 75000 {
		t.Fatalf("series: expected = 1/75000, got = %v/%v", v.AvgPlace, v.Score)
	}
	if v.StartDate.String() != "2017-09-11" || v.EndDate.String() != "2017-09-12" {
		t.Fatalf("bad run: %v..%v", v.StartDate, v.EndDate)
	}
	if e.GameID == nil || *e.GameID != 3 {
		t.Fatalf("series must point at its last game, got %v", e.GameID)
	}

	// Player 3 played once and has no series.
	if _, ok := res[3]; ok {
		t.Fatalf("player with too few games must have no series")
	}
}

func TestRank(t *testing.T) {
	entries := []Entry{
		{PlayerID: 1, Key: []float64{2.5}},
		{PlayerID: 2, Key: []float64{1}},
		{PlayerID: 3, Key: []float64{2.5}},
		{PlayerID: 4, Key: []float64{0.5}},
		{PlayerID: 5, Key: []float64{3}},
	}
	sorted, places := Rank(entries, map[uint]bool{4: true})
	expected := []struct {
		id    uint
		place int
	}{{4, 0}, {2, 1}, {1, 2}, {3, 2}, {5, 4}}
	for i, e := range expected {
		if sorted[i].PlayerID != e.id {
			t.Fatalf("position %v: expected = %v, got = %v", i, e.id, sorted[i].PlayerID)
		}
		if e.place == 0 {
			if places[i] != nil {
				t.Fatalf("hidden player must have no place, got %v", *places[i])
			}
			continue
		}
		if places[i] == nil || *places[i] != e.place {
			t.Fatalf("player %v: expected = %v, got = %v", e.id, e.place, places[i])
		}
	}
}

func TestFilterWindow(t *testing.T) {
	games := sampleGames()
	from := timeutil.NewDate(2017, time.September, 17)
	to := timeutil.NewDate(2017, time.September, 17)
	if n := len(FilterWindow(games, &from, &to)); n != 1 {
		t.Fatalf("expected = 1, got = %v", n)
	}
	if n := len(FilterWindow(games, &from, nil)); n != 2 {
		t.Fatalf("expected = 2, got = %v", n)
	}
	if n := len(FilterWindow(games, nil, nil)); n != 3 {
		t.Fatalf("expected = 3, got = %v", n)
	}
}

func TestSortGames(t *testing.T) {
	games := sampleGames()
	games[0], games[2] = games[2], games[0]
	SortGames(games)
	for i, g := range games {
		if g.ID != uint(i+1) {
			t.Fatalf("position %v: expected = %v, got = %v", i, i+1, g.ID)
		}
	}
}
