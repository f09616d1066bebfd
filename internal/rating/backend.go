package rating

import (
	"context"
	"fmt"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/pantheon"
	"github.com/alex65536/statboard/internal/util/timeutil"
)

// Backend provides the games a rating of the instance is computed from.
type Backend interface {
	Kind() ledger.StorageKind
	Games(ctx context.Context, inst ledger.Instance) ([]ledger.Game, error)
}

type LocalBackend struct {
	db GameLister
}

func NewLocalBackend(db GameLister) *LocalBackend {
	return &LocalBackend{db: db}
}

func (*LocalBackend) Kind() ledger.StorageKind { return ledger.StorageLocal }

func (b *LocalBackend) Games(ctx context.Context, inst ledger.Instance) ([]ledger.Game, error) {
	games, err := b.db.ListInstanceGames(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

type EventClient interface {
	EventGames(ctx context.Context, eventID int) ([]pantheon.Game, error)
}

// ExternalBackend reads games from Pantheon. Players are matched by name and created in the
// instance on first sight.
type ExternalBackend struct {
	client  EventClient
	players PlayerSet
}

func NewExternalBackend(client EventClient, players PlayerSet) *ExternalBackend {
	return &ExternalBackend{client: client, players: players}
}

func (*ExternalBackend) Kind() ledger.StorageKind { return ledger.StoragePantheon }

func (b *ExternalBackend) Games(ctx context.Context, inst ledger.Instance) ([]ledger.Game, error) {
	if inst.PantheonID == nil {
		return nil, fmt.Errorf("%w: instance %v has no pantheon id", ledger.ErrBadStorage, inst.ID)
	}
	src, err := b.client.EventGames(ctx, *inst.PantheonID)
	if err != nil {
		return nil, fmt.Errorf("fetch games: %w", err)
	}
	var names []string
	seen := make(map[string]struct{})
	for _, g := range src {
		for _, s := range g.Seats {
			if _, ok := seen[s.PlayerName]; !ok {
				seen[s.PlayerName] = struct{}{}
				names = append(names, s.PlayerName)
			}
		}
	}
	players, err := b.players.EnsurePlayers(ctx, inst.ID, names)
	if err != nil {
		return nil, fmt.Errorf("resolve players: %w", err)
	}

	games := make([]ledger.Game, 0, len(src))
	for _, g := range src {
		game := ledger.Game{
			InstanceID:   inst.ID,
			Date:         timeutil.DateOf(g.EndTime),
			AdditionTime: timeutil.UTCTime(g.EndTime),
			Results:      make([]ledger.GameResult, 0, len(g.Seats)),
		}
		needPlaces := false
		for _, s := range g.Seats {
			p, ok := players[s.PlayerName]
			if !ok {
				return nil, fmt.Errorf("player %q not resolved", s.PlayerName)
			}
			if s.Place <= 0 {
				needPlaces = true
			}
			game.Results = append(game.Results, ledger.GameResult{
				PlayerID:         p.ID,
				Player:           p,
				Score:            s.Score,
				Place:            s.Place,
				StartingPosition: s.StartingPosition,
			})
		}
		if needPlaces {
			ledger.AssignPlaces(game.Results)
		}
		games = append(games, game)
	}
	return games, nil
}

// Backends selects the game source by the storage kind stored in the instance.
type Backends struct {
	Local    Backend
	External Backend
}

func (b Backends) For(inst ledger.Instance) (Backend, error) {
	var res Backend
	switch inst.GameStorage {
	case ledger.StorageLocal, "":
		res = b.Local
	case ledger.StoragePantheon:
		res = b.External
	default:
		return nil, fmt.Errorf("%w: %q", ledger.ErrBadStorage, string(inst.GameStorage))
	}
	if res == nil {
		return nil, fmt.Errorf("%w: no backend for %q", ledger.ErrBadStorage, string(inst.GameStorage))
	}
	return res, nil
}
