package seed

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/alex65536/statboard/internal/database"
	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/util/slogx"
)

func TestScores(t *testing.T) {
	for range 1000 {
		s := Scores()
		sum := 0
		for _, v := range s[:Seats-1] {
			if v%pointsStep != 0 {
				t.Fatalf("score %v is not a multiple of %v", v, pointsStep)
			}
			sum += v
		}
		sum += s[Seats-1]
		if sum != TotalPoints {
			t.Fatalf("expected = %v, got = %v", TotalPoints, sum)
		}
	}
}

func TestFill(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(slogx.DiscardLogger(), database.Options{
		Path: filepath.Join(t.TempDir(), "seed.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	mgr := ledger.NewManager(slogx.DiscardLogger(), db)
	inst := ledger.Instance{Name: "demo"}
	if err := mgr.CreateInstance(ctx, &inst); err != nil {
		t.Fatalf("create instance: %v", err)
	}

	res, err := Fill(ctx, slogx.DiscardLogger(), mgr, inst.ID, Options{Players: 6, Games: 20, Days: 10})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	players, err := mgr.ListPlayers(ctx, inst.ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 6 || len(res.Players) != 6 {
		t.Fatalf("players: expected = 6, got = %v", len(players))
	}
	if len(res.Games) != 20 {
		t.Fatalf("games: expected = 20, got = %v", len(res.Games))
	}
	for _, g := range res.Games {
		got, err := mgr.GetGame(ctx, g.ID)
		if err != nil {
			t.Fatalf("get game: %v", err)
		}
		var places []int16
		seen := make(map[uint]bool)
		for _, r := range got.Results {
			places = append(places, r.Place)
			if seen[r.PlayerID] {
				t.Fatalf("player %v sits twice in game %v", r.PlayerID, g.ID)
			}
			seen[r.PlayerID] = true
		}
		slices.Sort(places)
		if !slices.Equal(places, []int16{1, 2, 3, 4}) {
			t.Fatalf("bad places in game %v: %v", g.ID, places)
		}
	}

	if _, err := Fill(ctx, slogx.DiscardLogger(), mgr, inst.ID, Options{Players: 3}); err == nil {
		t.Fatalf("too few players must be rejected")
	}
}
