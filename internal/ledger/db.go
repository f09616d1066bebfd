package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrGameNotFound     = errors.New("game not found")
	ErrPlayerExists     = errors.New("player with such name already exists in instance")
	ErrDomainTaken      = errors.New("domain already bound to an instance")
	ErrSamePlayer       = errors.New("cannot merge player into itself")
	ErrInstanceMismatch = errors.New("players belong to different instances")
	ErrPlayersShareGame = errors.New("players sat at the same table")
	ErrBadStorage       = errors.New("bad game storage")
	ErrDeleteRestricted = errors.New("delete restricted")
)

// DeleteRestrictedError is returned when deletion is blocked by rows that still reference the
// entity. It matches ErrDeleteRestricted.
type DeleteRestrictedError struct {
	Entity     string
	Dependents map[string]int64
}

func (e *DeleteRestrictedError) Error() string {
	parts := make([]string, 0, len(e.Dependents))
	for _, name := range []string{"ratings", "players", "games", "game results", "stats"} {
		if n := e.Dependents[name]; n != 0 {
			parts = append(parts, fmt.Sprintf("%v %v", n, name))
		}
	}
	return fmt.Sprintf("cannot delete %v: referenced by %v", e.Entity, strings.Join(parts, ", "))
}

func (e *DeleteRestrictedError) Is(target error) bool { return target == ErrDeleteRestricted }

type DB interface {
	CreateInstance(ctx context.Context, inst *Instance) error
	GetInstance(ctx context.Context, instanceID uint) (Instance, error)
	GetInstanceByDomain(ctx context.Context, domain string) (Instance, error)
	AddInstanceDomain(ctx context.Context, domain *InstanceDomain) error
	DeleteInstance(ctx context.Context, instanceID uint) error

	CreatePlayer(ctx context.Context, player *Player) error
	GetPlayer(ctx context.Context, playerID uint) (Player, error)
	GetPlayerByName(ctx context.Context, instanceID uint, name string) (Player, error)
	ListPlayers(ctx context.Context, instanceID uint) ([]Player, error)
	DeletePlayer(ctx context.Context, playerID uint) error

	CreateGame(ctx context.Context, game *Game) error
	GetGame(ctx context.Context, gameID uint) (Game, error)
	DeleteGame(ctx context.Context, gameID uint) error
	ListPlayerGames(ctx context.Context, playerID uint) ([]Game, error)
	CountPlayerResults(ctx context.Context, playerID uint) (int64, error)

	// UpdateGameResults loads the results of a game with their rows locked, lets update modify
	// them and saves every result, all within one transaction.
	UpdateGameResults(ctx context.Context, gameID uint, update func(results []GameResult) error) error
	// MergePlayers reassigns all the results of duplicate to canonical in one transaction. It fails
	// with ErrPlayersShareGame if both players sat in one game. After commit, onMoved is called
	// for every reassigned result.
	MergePlayers(ctx context.Context, canonical, duplicate Player, onMoved func(r GameResult)) (int, error)
}
