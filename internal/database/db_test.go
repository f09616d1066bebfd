package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/rating"
	"github.com/alex65536/statboard/internal/util/slogx"
	"github.com/alex65536/statboard/internal/util/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(slogx.DiscardLogger(), Options{
		Path:   filepath.Join(t.TempDir(), "statboard.db"),
		UseWAL: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

type fixture struct {
	db      *DB
	mgr     *ledger.Manager
	inst    ledger.Instance
	players []ledger.Player
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)
	f := &fixture{
		db:  db,
		mgr: ledger.NewManager(slogx.DiscardLogger(), db),
	}
	f.inst = ledger.Instance{Name: "club", Title: "Riichi club"}
	if err := f.mgr.CreateInstance(ctx, &f.inst); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	for _, name := range names {
		p := ledger.Player{InstanceID: f.inst.ID, Name: name}
		if err := f.mgr.CreatePlayer(ctx, &p); err != nil {
			t.Fatalf("create player: %v", err)
		}
		f.players = append(f.players, p)
	}
	return f
}

func (f *fixture) game(t *testing.T, date string, players []int, scores []int) ledger.Game {
	t.Helper()
	d, err := timeutil.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	in := ledger.GameInput{InstanceID: f.inst.ID, Date: d}
	for i, p := range players {
		in.Seats = append(in.Seats, ledger.SeatInput{
			PlayerID:         f.players[p].ID,
			Score:            scores[i],
			StartingPosition: int16(i + 1),
		})
	}
	g, err := f.mgr.RecordGame(context.Background(), in)
	if err != nil {
		t.Fatalf("record game: %v", err)
	}
	return g
}

func TestRecordAndGetGame(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	g := f.game(t, "2017-09-18", []int{3, 2, 1, 0}, []int{20000, 25000, 30000, 25000})

	got, err := f.mgr.GetGame(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if got.Date.String() != "2017-09-18" {
		t.Fatalf("expected = 2017-09-18, got = %v", got.Date)
	}
	expected := []struct {
		name  string
		place int16
	}{{"dave", 4}, {"carol", 2}, {"bob", 1}, {"alice", 3}}
	if len(got.Results) != len(expected) {
		t.Fatalf("expected = %v results, got = %v", len(expected), len(got.Results))
	}
	for i, e := range expected {
		r := got.Results[i]
		if r.StartingPosition != int16(i+1) || r.Player.Name != e.name || r.Place != e.place {
			t.Fatalf("seat %v: expected = %v/%v, got = %v/%v", i+1, e.name, e.place, r.Player.Name, r.Place)
		}
	}

	if _, err := f.mgr.GetGame(context.Background(), g.ID+100); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestRecountPlacesPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol", "dave")
	g := f.game(t, "2017-09-18", []int{0, 1, 2, 3}, []int{30000, 25000, 25000, 20000})

	// Break the stored places, then recount them from the scores.
	err := f.db.UpdateGameResults(ctx, g.ID, func(results []ledger.GameResult) error {
		for i := range results {
			results[i].Place = 1
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update results: %v", err)
	}
	for range 2 {
		if err := f.mgr.RecountPlaces(ctx, g.ID); err != nil {
			t.Fatalf("recount places: %v", err)
		}
		got, err := f.mgr.GetGame(ctx, g.ID)
		if err != nil {
			t.Fatalf("get game: %v", err)
		}
		for i, r := range got.Results {
			if r.Place != int16(i+1) {
				t.Fatalf("seat %v: expected = %v, got = %v", i+1, i+1, r.Place)
			}
		}
	}

	if err := f.mgr.RecountPlaces(ctx, g.ID+100); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestMergePlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol", "dave", "bob2")
	f.game(t, "2017-09-16", []int{0, 1, 2, 3}, []int{30000, 25000, 25000, 20000})
	f.game(t, "2017-09-17", []int{0, 4, 2, 3}, []int{30000, 25000, 25000, 20000})
	f.game(t, "2017-09-18", []int{4, 0, 2, 3}, []int{30000, 25000, 25000, 20000})

	canonical, duplicate := f.players[1], f.players[4]
	before, err := f.db.CountPlayerResults(ctx, canonical.ID)
	if err != nil {
		t.Fatalf("count results: %v", err)
	}
	dupBefore, err := f.db.CountPlayerResults(ctx, duplicate.ID)
	if err != nil {
		t.Fatalf("count results: %v", err)
	}

	moved, err := f.mgr.MergePlayers(ctx, canonical.ID, duplicate.ID)
	if err != nil {
		t.Fatalf("merge players: %v", err)
	}
	if int64(moved) != dupBefore {
		t.Fatalf("moved: expected = %v, got = %v", dupBefore, moved)
	}
	after, _ := f.db.CountPlayerResults(ctx, canonical.ID)
	if after != before+dupBefore {
		t.Fatalf("canonical results: expected = %v, got = %v", before+dupBefore, after)
	}
	if n, _ := f.db.CountPlayerResults(ctx, duplicate.ID); n != 0 {
		t.Fatalf("duplicate results: expected = 0, got = %v", n)
	}
	if _, err := f.mgr.GetPlayer(ctx, duplicate.ID); err != nil {
		t.Fatalf("duplicate player must survive the merge: %v", err)
	}

	// Merging again moves nothing.
	moved, err = f.mgr.MergePlayers(ctx, canonical.ID, duplicate.ID)
	if err != nil || moved != 0 {
		t.Fatalf("second merge: expected = 0, got = %v, err = %v", moved, err)
	}
}

func TestMergePlayersErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	other := ledger.Instance{Name: "league"}
	if err := f.mgr.CreateInstance(ctx, &other); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	stranger := ledger.Player{InstanceID: other.ID, Name: "alice"}
	if err := f.mgr.CreatePlayer(ctx, &stranger); err != nil {
		t.Fatalf("create player: %v", err)
	}

	if _, err := f.mgr.MergePlayers(ctx, f.players[0].ID, f.players[0].ID); !errors.Is(err, ledger.ErrSamePlayer) {
		t.Fatalf("expected ErrSamePlayer, got %v", err)
	}
	if _, err := f.mgr.MergePlayers(ctx, f.players[0].ID, 1000); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if _, err := f.mgr.MergePlayers(ctx, f.players[0].ID, stranger.ID); !errors.Is(err, ledger.ErrInstanceMismatch) {
		t.Fatalf("expected ErrInstanceMismatch, got %v", err)
	}
}

func TestMergePlayersSharedGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "smith", "smith2", "carol")
	f.game(t, "2017-09-16", []int{0, 2}, []int{30000, 20000})
	shared := f.game(t, "2017-09-17", []int{0, 1}, []int{30000, 20000})

	_, err := f.mgr.MergePlayers(ctx, f.players[0].ID, f.players[1].ID)
	if !errors.Is(err, ledger.ErrPlayersShareGame) {
		t.Fatalf("expected ErrPlayersShareGame, got %v", err)
	}
	if n, _ := f.db.CountPlayerResults(ctx, f.players[1].ID); n != 1 {
		t.Fatalf("duplicate results: expected = 1, got = %v", n)
	}
	g, err := f.mgr.GetGame(ctx, shared.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if g.Results[0].PlayerID == g.Results[1].PlayerID {
		t.Fatalf("game %v must keep distinct players", g.ID)
	}
}

func TestOpponents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.game(t, "2017-09-16", []int{0, 1, 2, 3}, []int{30000, 25000, 25000, 20000})
	f.game(t, "2017-09-17", []int{1, 2, 3, 0}, []int{30000, 25000, 25000, 20000})
	f.game(t, "2017-09-18", []int{2, 1}, []int{30000, 25000})

	stats, err := f.mgr.Opponents(ctx, f.players[0].ID)
	if err != nil {
		t.Fatalf("opponents: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("expected = 3 opponents, got = %v", len(stats))
	}
	for _, s := range stats {
		if s.Wins != 1 || s.Losses != 1 {
			t.Fatalf("opponent %v: expected = 1/1, got = %v/%v", s.Opponent.Name, s.Wins, s.Losses)
		}
	}

	stats, err = f.mgr.Opponents(ctx, f.players[1].ID)
	if err != nil {
		t.Fatalf("opponents: %v", err)
	}
	// Newest game first: carol is met first and most often.
	if stats[0].Opponent.Name != "carol" || stats[0].Total() != 3 || stats[0].Wins != 2 {
		t.Fatalf("bad first opponent: %+v", stats[0])
	}

	if _, err := f.mgr.Opponents(ctx, 1000); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestUniqueness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice")

	dup := ledger.Player{InstanceID: f.inst.ID, Name: "alice"}
	if err := f.mgr.CreatePlayer(ctx, &dup); !errors.Is(err, ledger.ErrPlayerExists) {
		t.Fatalf("expected ErrPlayerExists, got %v", err)
	}
	other := ledger.Instance{Name: "league"}
	if err := f.mgr.CreateInstance(ctx, &other); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	same := ledger.Player{InstanceID: other.ID, Name: "alice"}
	if err := f.mgr.CreatePlayer(ctx, &same); err != nil {
		t.Fatalf("same name in other instance: %v", err)
	}

	if _, err := f.mgr.AddDomain(ctx, f.inst.ID, "Club.Example.org."); err != nil {
		t.Fatalf("add domain: %v", err)
	}
	if _, err := f.mgr.AddDomain(ctx, other.ID, "club.example.org"); !errors.Is(err, ledger.ErrDomainTaken) {
		t.Fatalf("expected ErrDomainTaken, got %v", err)
	}
	inst, err := f.mgr.ResolveDomain(ctx, "CLUB.example.org")
	if err != nil {
		t.Fatalf("resolve domain: %v", err)
	}
	if inst.ID != f.inst.ID {
		t.Fatalf("expected = %v, got = %v", f.inst.ID, inst.ID)
	}
	if _, err := f.mgr.ResolveDomain(ctx, "nowhere.org"); !errors.Is(err, ledger.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}

	// Instances may share a name; only a domain created inline can collide.
	twin := ledger.Instance{Name: "league"}
	if err := f.mgr.CreateInstance(ctx, &twin); err != nil {
		t.Fatalf("instance with the same name: %v", err)
	}
	taken := ledger.Instance{Name: "pirates", Domains: []ledger.InstanceDomain{{Name: "club.example.org"}}}
	if err := f.mgr.CreateInstance(ctx, &taken); !errors.Is(err, ledger.ErrDomainTaken) {
		t.Fatalf("expected ErrDomainTaken, got %v", err)
	}
}

func TestDeletionPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")
	g := f.game(t, "2017-09-18", []int{0, 1}, []int{30000, 20000})
	if _, err := f.mgr.AddDomain(ctx, f.inst.ID, "club.example.org"); err != nil {
		t.Fatalf("add domain: %v", err)
	}

	// Player with results is protected.
	err := f.mgr.DeletePlayer(ctx, f.players[0].ID)
	var restricted *ledger.DeleteRestrictedError
	if !errors.As(err, &restricted) || restricted.Dependents["game results"] != 1 {
		t.Fatalf("expected restricted delete, got %v", err)
	}
	// Player without references goes.
	if err := f.mgr.DeletePlayer(ctx, f.players[2].ID); err != nil {
		t.Fatalf("delete free player: %v", err)
	}
	if err := f.mgr.DeletePlayer(ctx, f.players[2].ID); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}

	// Instance with players and games is protected.
	err = f.mgr.DeleteInstance(ctx, f.inst.ID)
	if !errors.As(err, &restricted) || restricted.Dependents["players"] != 2 || restricted.Dependents["games"] != 1 {
		t.Fatalf("expected restricted delete, got %v", err)
	}

	// Deleting a game takes its results along.
	if err := f.mgr.DeleteGame(ctx, g.ID); err != nil {
		t.Fatalf("delete game: %v", err)
	}
	if n, _ := f.db.CountPlayerResults(ctx, f.players[0].ID); n != 0 {
		t.Fatalf("results: expected = 0, got = %v", n)
	}
	if err := f.mgr.DeleteGame(ctx, g.ID); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}

	for _, p := range f.players[:2] {
		if err := f.mgr.DeletePlayer(ctx, p.ID); err != nil {
			t.Fatalf("delete player: %v", err)
		}
	}
	if err := f.mgr.DeleteInstance(ctx, f.inst.ID); err != nil {
		t.Fatalf("delete instance: %v", err)
	}
	if _, err := f.mgr.ResolveDomain(ctx, "club.example.org"); !errors.Is(err, ledger.ErrInstanceNotFound) {
		t.Fatalf("domains must be deleted with instance, got %v", err)
	}
}

func newRatingManager(db *DB) *rating.Manager {
	return rating.NewManager(slogx.DiscardLogger(), rating.Config{
		DB:       db,
		Registry: rating.DefaultRegistry(),
		Backends: rating.Backends{Local: rating.NewLocalBackend(db)},
	}, rating.ManagerOptions{})
}

func TestRatingRecount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol", "dave")
	f.game(t, "2017-09-16", []int{0, 1, 2, 3}, []int{40000, 30000, 20000, 10000})
	f.game(t, "2017-09-17", []int{0, 1, 2, 3}, []int{40000, 20000, 30000, 10000})

	err := f.db.db.Model(&ledger.Player{}).Where("id = ?", f.players[3].ID).Update("hidden", true).Error
	if err != nil {
		t.Fatalf("hide player: %v", err)
	}

	rm := newRatingManager(f.db)
	r := ledger.Rating{InstanceID: f.inst.ID, RatingTypeID: rating.TypeAvgPlace}
	if err := rm.CreateRating(ctx, &r); err != nil {
		t.Fatalf("create rating: %v", err)
	}
	if r.Weight != ledger.DefaultWeight || r.State != ledger.RatingInQueue {
		t.Fatalf("bad new rating: %+v", r)
	}

	n, err := rm.RecountQueued(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recount: expected = 1, got = %v, err = %v", n, err)
	}
	got, err := rm.GetRating(ctx, r.ID)
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	if got.State != ledger.RatingActual || got.LastRecount == nil {
		t.Fatalf("expected actual rating with recount time, got %+v", got)
	}

	standings, err := rm.Standings(ctx, r.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings) != 4 {
		t.Fatalf("expected = 4 entries, got = %v", len(standings))
	}
	// bob and carol both average 2.5 over two games.
	expected := []struct {
		name  string
		place *int
	}{
		{"alice", ptr(1)},
		{"bob", ptr(2)},
		{"carol", ptr(2)},
		{"dave", nil},
	}
	for i, e := range expected {
		s := standings[i]
		if s.Player.Name != e.name {
			t.Fatalf("position %v: expected = %v, got = %v", i, e.name, s.Player.Name)
		}
		if (s.Place == nil) != (e.place == nil) || (s.Place != nil && *s.Place != *e.place) {
			t.Fatalf("%v: bad place %v", e.name, s.Place)
		}
	}
	var val rating.AvgPlaceValue
	if err := json.Unmarshal(standings[0].Value, &val); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if val.Games != 2 || val.AvgPlace != 1 {
		t.Fatalf("bad value: %+v", val)
	}

	// A new game puts the rating back into the queue.
	f.game(t, "2017-09-18", []int{3, 2}, []int{30000, 20000})
	got, _ = rm.GetRating(ctx, r.ID)
	if got.State != ledger.RatingInQueue {
		t.Fatalf("expected = %v, got = %v", ledger.RatingInQueue, got.State)
	}

	// Stats block player deletion, deleting the rating removes them.
	var restricted *ledger.DeleteRestrictedError
	if err := f.mgr.DeletePlayer(ctx, f.players[0].ID); !errors.As(err, &restricted) || restricted.Dependents["stats"] != 1 {
		t.Fatalf("expected restricted delete, got %v", err)
	}
	if err := rm.DeleteRating(ctx, r.ID); err != nil {
		t.Fatalf("delete rating: %v", err)
	}
	if _, err := rm.Standings(ctx, r.ID); !errors.Is(err, rating.ErrRatingNotFound) {
		t.Fatalf("expected ErrRatingNotFound, got %v", err)
	}
	var cnt int64
	if err := f.db.db.Model(&ledger.Stats{}).Count(&cnt).Error; err != nil || cnt != 0 {
		t.Fatalf("stats: expected = 0, got = %v, err = %v", cnt, err)
	}
}

func TestSeriesStatsReferenceGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	f.game(t, "2017-09-16", []int{0, 1}, []int{30000, 20000})
	last := f.game(t, "2017-09-17", []int{0, 1}, []int{30000, 20000})

	rm := newRatingManager(f.db)
	r := ledger.Rating{InstanceID: f.inst.ID, RatingTypeID: rating.TypeSeries, SeriesLen: ptr(2)}
	if err := rm.CreateRating(ctx, &r); err != nil {
		t.Fatalf("create rating: %v", err)
	}
	if _, err := rm.RecountQueued(ctx); err != nil {
		t.Fatalf("recount: %v", err)
	}
	standings, err := rm.Standings(ctx, r.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(standings) != 2 || standings[0].GameID == nil || *standings[0].GameID != last.ID {
		t.Fatalf("series must point at its last game: %+v", standings)
	}

	// Deleting the game drops the stats that reference it.
	if err := f.mgr.DeleteGame(ctx, last.ID); err != nil {
		t.Fatalf("delete game: %v", err)
	}
	standings, err = rm.Standings(ctx, r.ID)
	if err != nil || len(standings) != 0 {
		t.Fatalf("expected no standings, got %v, err = %v", len(standings), err)
	}
}

func TestEnsurePlayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice")
	res, err := f.db.EnsurePlayers(ctx, f.inst.ID, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("ensure players: %v", err)
	}
	if res["alice"].ID != f.players[0].ID || res["bob"].ID == 0 {
		t.Fatalf("bad players: %+v", res)
	}
	again, err := f.db.EnsurePlayers(ctx, f.inst.ID, []string{"bob"})
	if err != nil || again["bob"].ID != res["bob"].ID {
		t.Fatalf("second call must reuse players: %+v, err = %v", again, err)
	}

	for _, bad := range []string{"", " carol"} {
		if _, err := f.db.EnsurePlayers(ctx, f.inst.ID, []string{"dave", bad}); err == nil {
			t.Fatalf("name %q must be rejected", bad)
		}
	}
	if _, err := f.db.GetPlayerByName(ctx, f.inst.ID, "dave"); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("rejected batch must create nothing, got %v", err)
	}
}

func ptr[T any](v T) *T { return &v }

func TestRequeueDuringRecount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob")
	f.game(t, "2017-09-16", []int{0, 1}, []int{30000, 20000})

	r := ledger.Rating{InstanceID: f.inst.ID, RatingTypeID: rating.TypeGames, State: ledger.RatingInQueue}
	if err := f.db.CreateRating(ctx, &r); err != nil {
		t.Fatalf("create rating: %v", err)
	}
	ok, err := f.db.ClaimRating(ctx, r.ID)
	if err != nil || !ok {
		t.Fatalf("claim: expected = true, got = %v, err = %v", ok, err)
	}
	if ok, _ := f.db.ClaimRating(ctx, r.ID); ok {
		t.Fatalf("rating must not be claimed twice")
	}

	// A game recorded while counting queues the rating again.
	f.game(t, "2017-09-17", []int{0, 1}, []int{20000, 30000})
	if err := f.db.ReplaceStats(ctx, r.ID, nil, timeutil.NowUTC()); err != nil {
		t.Fatalf("replace stats: %v", err)
	}
	got, err := f.db.GetRating(ctx, r.ID)
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	if got.State != ledger.RatingInQueue || got.LastRecount == nil {
		t.Fatalf("expected = %v with recount time, got = %+v", ledger.RatingInQueue, got)
	}

	// Releasing a rating that is not counting is a no-op.
	if err := f.db.ReleaseRating(ctx, r.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, _ := f.db.GetRating(ctx, r.ID); got.State != ledger.RatingInQueue {
		t.Fatalf("expected = %v, got = %v", ledger.RatingInQueue, got.State)
	}
}
