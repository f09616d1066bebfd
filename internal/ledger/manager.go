package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alex65536/statboard/internal/util/timeutil"
	"golang.org/x/sync/singleflight"
)

const MinSeats = 2

type SeatInput struct {
	PlayerID         uint
	Score            int
	StartingPosition int16
}

type GameInput struct {
	InstanceID uint
	Date       timeutil.Date
	PostedByID *uint
	Seats      []SeatInput
}

func (in *GameInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("no game date")
	}
	if len(in.Seats) < MinSeats {
		return fmt.Errorf("game must have at least %v seats", MinSeats)
	}
	players := make(map[uint]struct{}, len(in.Seats))
	positions := make(map[int16]struct{}, len(in.Seats))
	for _, s := range in.Seats {
		if _, ok := players[s.PlayerID]; ok {
			return fmt.Errorf("player %v sits twice", s.PlayerID)
		}
		players[s.PlayerID] = struct{}{}
		if _, ok := positions[s.StartingPosition]; ok {
			return fmt.Errorf("starting position %v is taken twice", s.StartingPosition)
		}
		positions[s.StartingPosition] = struct{}{}
	}
	return nil
}

type Manager struct {
	db    DB
	log   *slog.Logger
	group singleflight.Group
}

func NewManager(log *slog.Logger, db DB) *Manager {
	return &Manager{
		db:  db,
		log: log,
	}
}

func (m *Manager) CreateInstance(ctx context.Context, inst *Instance) error {
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("invalid instance: %w", err)
	}
	if err := m.db.CreateInstance(ctx, inst); err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	m.log.Info("instance created",
		slog.Uint64("instance_id", uint64(inst.ID)),
		slog.String("name", inst.Name),
		slog.String("storage", string(inst.GameStorage)),
	)
	return nil
}

func (m *Manager) GetInstance(ctx context.Context, instanceID uint) (Instance, error) {
	return m.db.GetInstance(ctx, instanceID)
}

func (m *Manager) AddDomain(ctx context.Context, instanceID uint, name string) (InstanceDomain, error) {
	name = NormalizeDomain(name)
	if name == "" {
		return InstanceDomain{}, fmt.Errorf("empty domain")
	}
	if _, err := m.db.GetInstance(ctx, instanceID); err != nil {
		return InstanceDomain{}, err
	}
	d := InstanceDomain{InstanceID: instanceID, Name: name}
	if err := m.db.AddInstanceDomain(ctx, &d); err != nil {
		return InstanceDomain{}, err
	}
	return d, nil
}

func (m *Manager) ResolveDomain(ctx context.Context, host string) (Instance, error) {
	return m.db.GetInstanceByDomain(ctx, NormalizeDomain(host))
}

func (m *Manager) DeleteInstance(ctx context.Context, instanceID uint) error {
	if err := m.db.DeleteInstance(ctx, instanceID); err != nil {
		return err
	}
	m.log.Info("instance deleted", slog.Uint64("instance_id", uint64(instanceID)))
	return nil
}

func (m *Manager) CreatePlayer(ctx context.Context, p *Player) error {
	if err := ValidatePlayerName(p.Name); err != nil {
		return fmt.Errorf("invalid player: %w", err)
	}
	if _, err := m.db.GetInstance(ctx, p.InstanceID); err != nil {
		return err
	}
	return m.db.CreatePlayer(ctx, p)
}

func (m *Manager) GetPlayer(ctx context.Context, playerID uint) (Player, error) {
	return m.db.GetPlayer(ctx, playerID)
}

func (m *Manager) GetPlayerByName(ctx context.Context, instanceID uint, name string) (Player, error) {
	return m.db.GetPlayerByName(ctx, instanceID, name)
}

func (m *Manager) ListPlayers(ctx context.Context, instanceID uint) ([]Player, error) {
	return m.db.ListPlayers(ctx, instanceID)
}

func (m *Manager) DeletePlayer(ctx context.Context, playerID uint) error {
	return m.db.DeletePlayer(ctx, playerID)
}

// RecordGame stores a new game. Places are derived from the scores.
func (m *Manager) RecordGame(ctx context.Context, in GameInput) (Game, error) {
	if err := in.Validate(); err != nil {
		return Game{}, fmt.Errorf("invalid game: %w", err)
	}
	for _, s := range in.Seats {
		p, err := m.db.GetPlayer(ctx, s.PlayerID)
		if err != nil {
			return Game{}, fmt.Errorf("get player %v: %w", s.PlayerID, err)
		}
		if p.InstanceID != in.InstanceID {
			return Game{}, fmt.Errorf("player %q: %w", p.Name, ErrInstanceMismatch)
		}
	}
	game := Game{
		InstanceID:   in.InstanceID,
		Date:         in.Date,
		AdditionTime: timeutil.NowUTC(),
		PostedByID:   in.PostedByID,
		Results:      make([]GameResult, len(in.Seats)),
	}
	for i, s := range in.Seats {
		game.Results[i] = GameResult{
			PlayerID:         s.PlayerID,
			Score:            s.Score,
			StartingPosition: s.StartingPosition,
		}
	}
	AssignPlaces(game.Results)
	if err := m.db.CreateGame(ctx, &game); err != nil {
		return Game{}, fmt.Errorf("create game: %w", err)
	}
	m.log.Info("game recorded",
		slog.Uint64("game_id", uint64(game.ID)),
		slog.Uint64("instance_id", uint64(game.InstanceID)),
		slog.String("date", game.Date.String()),
	)
	return game, nil
}

func (m *Manager) GetGame(ctx context.Context, gameID uint) (Game, error) {
	return m.db.GetGame(ctx, gameID)
}

func (m *Manager) DeleteGame(ctx context.Context, gameID uint) error {
	if err := m.db.DeleteGame(ctx, gameID); err != nil {
		return err
	}
	m.log.Info("game deleted", slog.Uint64("game_id", uint64(gameID)))
	return nil
}

// RecountPlaces derives the places of a game from its scores and saves them. Concurrent calls for
// the same game share one recount, which is not interrupted if one of the callers gives up.
func (m *Manager) RecountPlaces(ctx context.Context, gameID uint) error {
	ch := m.group.DoChan(strconv.FormatUint(uint64(gameID), 10), func() (any, error) {
		err := m.db.UpdateGameResults(context.WithoutCancel(ctx), gameID, func(results []GameResult) error {
			AssignPlaces(results)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("update results: %w", err)
		}
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
	}
	m.log.Info("places recounted", slog.Uint64("game_id", uint64(gameID)))
	return nil
}

// Opponents reports the head-to-head results of the player against every opponent met.
func (m *Manager) Opponents(ctx context.Context, playerID uint) ([]OpponentStat, error) {
	if _, err := m.db.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	games, err := m.db.ListPlayerGames(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	stats, skipped := CountOpponents(playerID, games)
	if skipped != 0 {
		m.log.Warn("games without player seat skipped",
			slog.Uint64("player_id", uint64(playerID)),
			slog.Int("skipped", skipped),
		)
	}
	return stats, nil
}

// MergePlayers moves all the game results of duplicate to canonical. The merge is atomic. The
// duplicate player itself is kept.
func (m *Manager) MergePlayers(ctx context.Context, canonicalID, duplicateID uint) (int, error) {
	if canonicalID == duplicateID {
		return 0, ErrSamePlayer
	}
	canonical, err := m.db.GetPlayer(ctx, canonicalID)
	if err != nil {
		return 0, fmt.Errorf("get canonical player: %w", err)
	}
	duplicate, err := m.db.GetPlayer(ctx, duplicateID)
	if err != nil {
		return 0, fmt.Errorf("get duplicate player: %w", err)
	}
	if canonical.InstanceID != duplicate.InstanceID {
		return 0, ErrInstanceMismatch
	}

	log := m.log.With(
		slog.Uint64("instance_id", uint64(canonical.InstanceID)),
		slog.String("old_player", duplicate.Name),
		slog.String("new_player", canonical.Name),
	)
	log.Info("merging players")
	n, err := m.db.MergePlayers(ctx, canonical, duplicate, func(r GameResult) {
		log.Info("game result reassigned", slog.Uint64("game_id", uint64(r.GameID)))
	})
	if err != nil {
		return 0, fmt.Errorf("merge players: %w", err)
	}
	log.Info("players merged", slog.Int("moved", n))
	return n, nil
}
