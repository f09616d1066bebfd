package database

import (
	"context"
	"fmt"

	"github.com/alex65536/statboard/internal/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *DB) CreateInstance(ctx context.Context, inst *ledger.Instance) error {
	err := d.db.WithContext(ctx).Omit("Admins.*").Create(inst).Error
	if err != nil {
		// Instances have no unique columns of their own, so only a domain can collide.
		if isDuplicate(err) {
			return ledger.ErrDomainTaken
		}
		return fmt.Errorf("create instance: %w", err)
	}
	return nil
}

func (d *DB) GetInstance(ctx context.Context, instanceID uint) (ledger.Instance, error) {
	var res []ledger.Instance
	err := d.db.WithContext(ctx).Preload("Domains").Where("id = ?", instanceID).Limit(1).Find(&res).Error
	if err != nil {
		return ledger.Instance{}, fmt.Errorf("get instance: %w", err)
	}
	if len(res) == 0 {
		return ledger.Instance{}, ledger.ErrInstanceNotFound
	}
	return res[0], nil
}

func (d *DB) GetInstanceByDomain(ctx context.Context, domain string) (ledger.Instance, error) {
	var domains []ledger.InstanceDomain
	err := d.db.WithContext(ctx).Where("name = ?", domain).Limit(1).Find(&domains).Error
	if err != nil {
		return ledger.Instance{}, fmt.Errorf("get domain: %w", err)
	}
	if len(domains) == 0 {
		return ledger.Instance{}, ledger.ErrInstanceNotFound
	}
	return d.GetInstance(ctx, domains[0].InstanceID)
}

func (d *DB) AddInstanceDomain(ctx context.Context, domain *ledger.InstanceDomain) error {
	err := d.db.WithContext(ctx).Create(domain).Error
	if err != nil {
		if isDuplicate(err) {
			return ledger.ErrDomainTaken
		}
		return fmt.Errorf("create domain: %w", err)
	}
	return nil
}

func (d *DB) DeleteInstance(ctx context.Context, instanceID uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst := ledger.Instance{ID: instanceID}
		var cnt int64
		if err := tx.Model(&ledger.Instance{}).Where("id = ?", instanceID).Count(&cnt).Error; err != nil {
			return fmt.Errorf("find instance: %w", err)
		}
		if cnt == 0 {
			return ledger.ErrInstanceNotFound
		}
		err := checkRestricted(tx, "instance", instanceID,
			dependent{name: "ratings", model: &ledger.Rating{}, query: "instance_id = ?"},
			dependent{name: "players", model: &ledger.Player{}, query: "instance_id = ?"},
			dependent{name: "games", model: &ledger.Game{}, query: "instance_id = ?"},
		)
		if err != nil {
			return err
		}
		if err := tx.Where("instance_id = ?", instanceID).Delete(&ledger.InstanceDomain{}).Error; err != nil {
			return fmt.Errorf("delete domains: %w", err)
		}
		if err := tx.Model(&inst).Association("Admins").Clear(); err != nil {
			return fmt.Errorf("clear admins: %w", err)
		}
		if err := tx.Delete(&inst).Error; err != nil {
			return fmt.Errorf("delete instance: %w", err)
		}
		return nil
	})
}

func (d *DB) CreatePlayer(ctx context.Context, player *ledger.Player) error {
	err := d.db.WithContext(ctx).Omit(clause.Associations).Create(player).Error
	if err != nil {
		if isDuplicate(err) {
			return ledger.ErrPlayerExists
		}
		return fmt.Errorf("create player: %w", err)
	}
	return nil
}

func (d *DB) GetPlayer(ctx context.Context, playerID uint) (ledger.Player, error) {
	var res []ledger.Player
	err := d.db.WithContext(ctx).Where("id = ?", playerID).Limit(1).Find(&res).Error
	if err != nil {
		return ledger.Player{}, fmt.Errorf("get player: %w", err)
	}
	if len(res) == 0 {
		return ledger.Player{}, ledger.ErrPlayerNotFound
	}
	return res[0], nil
}

func (d *DB) GetPlayerByName(ctx context.Context, instanceID uint, name string) (ledger.Player, error) {
	var res []ledger.Player
	err := d.db.WithContext(ctx).
		Where("instance_id = ? AND name = ?", instanceID, name).
		Limit(1).
		Find(&res).Error
	if err != nil {
		return ledger.Player{}, fmt.Errorf("get player: %w", err)
	}
	if len(res) == 0 {
		return ledger.Player{}, ledger.ErrPlayerNotFound
	}
	return res[0], nil
}

func (d *DB) ListPlayers(ctx context.Context, instanceID uint) ([]ledger.Player, error) {
	var res []ledger.Player
	err := d.db.WithContext(ctx).Where("instance_id = ?", instanceID).Order("name").Find(&res).Error
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return res, nil
}

func (d *DB) DeletePlayer(ctx context.Context, playerID uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := checkRestricted(tx, "player", playerID,
			dependent{name: "game results", model: &ledger.GameResult{}, query: "player_id = ?"},
			dependent{name: "stats", model: &ledger.Stats{}, query: "player_id = ?"},
		)
		if err != nil {
			return err
		}
		res := tx.Delete(&ledger.Player{ID: playerID})
		if res.Error != nil {
			return fmt.Errorf("delete player: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ledger.ErrPlayerNotFound
		}
		return nil
	})
}

func (d *DB) CreateGame(ctx context.Context, game *ledger.Game) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(game).Error; err != nil {
			return fmt.Errorf("create game: %w", err)
		}
		for i := range game.Results {
			game.Results[i].GameID = game.ID
		}
		if len(game.Results) != 0 {
			if err := tx.Omit(clause.Associations).Create(&game.Results).Error; err != nil {
				return fmt.Errorf("create results: %w", err)
			}
		}
		return queueRatings(tx, game.InstanceID)
	})
}

func preloadResults(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Results", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("starting_position")
	}).Preload("Results.Player")
}

func (d *DB) GetGame(ctx context.Context, gameID uint) (ledger.Game, error) {
	var res []ledger.Game
	err := preloadResults(d.db.WithContext(ctx)).Where("id = ?", gameID).Limit(1).Find(&res).Error
	if err != nil {
		return ledger.Game{}, fmt.Errorf("get game: %w", err)
	}
	if len(res) == 0 {
		return ledger.Game{}, ledger.ErrGameNotFound
	}
	return res[0], nil
}

func (d *DB) DeleteGame(ctx context.Context, gameID uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var games []ledger.Game
		if err := tx.Where("id = ?", gameID).Limit(1).Find(&games).Error; err != nil {
			return fmt.Errorf("find game: %w", err)
		}
		if len(games) == 0 {
			return ledger.ErrGameNotFound
		}
		if err := tx.Where("game_id = ?", gameID).Delete(&ledger.GameResult{}).Error; err != nil {
			return fmt.Errorf("delete results: %w", err)
		}
		if err := tx.Where("game_id = ?", gameID).Delete(&ledger.Stats{}).Error; err != nil {
			return fmt.Errorf("delete stats: %w", err)
		}
		if err := tx.Delete(&games[0]).Error; err != nil {
			return fmt.Errorf("delete game: %w", err)
		}
		return queueRatings(tx, games[0].InstanceID)
	})
}

func (d *DB) ListPlayerGames(ctx context.Context, playerID uint) ([]ledger.Game, error) {
	var res []ledger.Game
	err := preloadResults(d.db.WithContext(ctx)).
		Where("id IN (?)", d.db.Model(&ledger.GameResult{}).Select("game_id").Where("player_id = ?", playerID)).
		Order("date DESC, addition_time DESC, id DESC").
		Find(&res).Error
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return res, nil
}

func (d *DB) CountPlayerResults(ctx context.Context, playerID uint) (int64, error) {
	var cnt int64
	err := d.db.WithContext(ctx).Model(&ledger.GameResult{}).Where("player_id = ?", playerID).Count(&cnt).Error
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return cnt, nil
}

func (d *DB) UpdateGameResults(ctx context.Context, gameID uint, update func([]ledger.GameResult) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var games []ledger.Game
		if err := tx.Where("id = ?", gameID).Limit(1).Find(&games).Error; err != nil {
			return fmt.Errorf("find game: %w", err)
		}
		if len(games) == 0 {
			return ledger.ErrGameNotFound
		}
		var results []ledger.GameResult
		err := d.forUpdate(tx).Where("game_id = ?", gameID).Order("starting_position").Find(&results).Error
		if err != nil {
			return fmt.Errorf("lock results: %w", err)
		}
		if err := update(results); err != nil {
			return err
		}
		for _, r := range results {
			err := tx.Model(&ledger.GameResult{}).
				Where("id = ?", r.ID).
				Updates(map[string]any{"place": r.Place, "score": r.Score}).Error
			if err != nil {
				return fmt.Errorf("save result: %w", err)
			}
		}
		return queueRatings(tx, games[0].InstanceID)
	})
}

func (d *DB) MergePlayers(
	ctx context.Context,
	canonical, duplicate ledger.Player,
	onMoved func(ledger.GameResult),
) (int, error) {
	var moved []ledger.GameResult
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved = moved[:0]
		var results []ledger.GameResult
		err := d.forUpdate(tx).Where("player_id = ?", duplicate.ID).Order("id").Find(&results).Error
		if err != nil {
			return fmt.Errorf("find results: %w", err)
		}
		var shared int64
		err = tx.Model(&ledger.GameResult{}).
			Where("player_id = ? AND game_id IN (?)", canonical.ID,
				tx.Model(&ledger.GameResult{}).Select("game_id").Where("player_id = ?", duplicate.ID)).
			Count(&shared).Error
		if err != nil {
			return fmt.Errorf("find shared games: %w", err)
		}
		if shared != 0 {
			return fmt.Errorf("%w: %v games", ledger.ErrPlayersShareGame, shared)
		}
		for _, r := range results {
			err := tx.Model(&ledger.GameResult{}).Where("id = ?", r.ID).Update("player_id", canonical.ID).Error
			if err != nil {
				return fmt.Errorf("reassign result %v: %w", r.ID, err)
			}
			r.PlayerID = canonical.ID
			moved = append(moved, r)
		}
		return queueRatings(tx, canonical.InstanceID)
	})
	if err != nil {
		return 0, err
	}
	if onMoved != nil {
		for _, r := range moved {
			onMoved(r)
		}
	}
	return len(moved), nil
}
