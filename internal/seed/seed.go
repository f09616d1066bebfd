package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/util/randutil"
	"github.com/alex65536/statboard/internal/util/timeutil"
	"github.com/brianvoe/gofakeit/v6"
	petname "github.com/dustinkirkland/golang-petname"
)

const (
	Seats        = 4
	StartPoints  = 25000
	TotalPoints  = Seats * StartPoints
	pointsStep   = 100
	nameAttempts = 100
)

type Options struct {
	Players int `toml:"players"`
	Games   int `toml:"games"`
	Days    int `toml:"days"`
}

func (o *Options) FillDefaults() {
	if o.Players == 0 {
		o.Players = 12
	}
	if o.Games == 0 {
		o.Games = 50
	}
	if o.Days == 0 {
		o.Days = 90
	}
}

type Ledger interface {
	CreatePlayer(ctx context.Context, p *ledger.Player) error
	RecordGame(ctx context.Context, in ledger.GameInput) (ledger.Game, error)
}

type Result struct {
	Players []ledger.Player
	Games   []ledger.Game
}

// Scores returns random final scores of a table that sum up to TotalPoints.
func Scores() []int {
	res := make([]int, Seats)
	left := TotalPoints
	for i := range Seats - 1 {
		res[i] = gofakeit.IntRange(-100, 600) * pointsStep
		left -= res[i]
	}
	res[Seats-1] = left
	return res
}

func createPlayer(ctx context.Context, l Ledger, instanceID uint, taken *randutil.Set[string]) (ledger.Player, error) {
	for range nameAttempts {
		name := petname.Generate(2, "-")
		if !taken.Add(name) {
			continue
		}
		p := ledger.Player{
			InstanceID: instanceID,
			Name:       name,
			FullName:   gofakeit.Name(),
		}
		err := l.CreatePlayer(ctx, &p)
		if errors.Is(err, ledger.ErrPlayerExists) {
			continue
		}
		if err != nil {
			return ledger.Player{}, fmt.Errorf("create player %q: %w", name, err)
		}
		return p, nil
	}
	return ledger.Player{}, fmt.Errorf("could not pick a free player name")
}

// Fill creates fake players and games in the instance.
func Fill(ctx context.Context, log *slog.Logger, l Ledger, instanceID uint, o Options) (Result, error) {
	o.FillDefaults()
	if o.Players < Seats {
		return Result{}, fmt.Errorf("need at least %v players, got %v", Seats, o.Players)
	}

	var (
		res   Result
		names randutil.Set[string]
		ids   randutil.Set[uint]
	)
	for range o.Players {
		p, err := createPlayer(ctx, l, instanceID, &names)
		if err != nil {
			return Result{}, err
		}
		res.Players = append(res.Players, p)
		ids.Add(p.ID)
	}

	now := time.Now()
	from := now.AddDate(0, 0, -o.Days)
	for range o.Games {
		free := ids.Clone()
		seated := free.Pick(Seats)
		scores := Scores()
		in := ledger.GameInput{
			InstanceID: instanceID,
			Date:       timeutil.DateOf(gofakeit.DateRange(from, now)),
			Seats:      make([]ledger.SeatInput, Seats),
		}
		for i := range Seats {
			in.Seats[i] = ledger.SeatInput{
				PlayerID:         seated[i],
				Score:            scores[i],
				StartingPosition: int16(i + 1),
			}
		}
		g, err := l.RecordGame(ctx, in)
		if err != nil {
			return Result{}, fmt.Errorf("record game: %w", err)
		}
		res.Games = append(res.Games, g)
	}

	log.Info("instance seeded",
		slog.Uint64("instance_id", uint64(instanceID)),
		slog.Int("players", len(res.Players)),
		slog.Int("games", len(res.Games)),
	)
	return res, nil
}
