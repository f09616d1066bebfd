package database

import (
	"context"
	"fmt"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/rating"
	"github.com/alex65536/statboard/internal/util/timeutil"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *DB) CreateRating(ctx context.Context, r *ledger.Rating) error {
	err := d.db.WithContext(ctx).Omit(clause.Associations).Create(r).Error
	if err != nil {
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

func (d *DB) GetRating(ctx context.Context, ratingID uint) (ledger.Rating, error) {
	var res []ledger.Rating
	err := d.db.WithContext(ctx).Where("id = ?", ratingID).Limit(1).Find(&res).Error
	if err != nil {
		return ledger.Rating{}, fmt.Errorf("get rating: %w", err)
	}
	if len(res) == 0 {
		return ledger.Rating{}, rating.ErrRatingNotFound
	}
	return res[0], nil
}

func (d *DB) ListRatings(ctx context.Context, instanceID uint, withArchived bool) ([]ledger.Rating, error) {
	var res []ledger.Rating
	tx := d.db.WithContext(ctx).Where("instance_id = ?", instanceID)
	if !withArchived {
		tx = tx.Where("archived = ?", false)
	}
	if err := tx.Order("weight, id").Find(&res).Error; err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return res, nil
}

func (d *DB) ListQueuedRatings(ctx context.Context) ([]ledger.Rating, error) {
	var res []ledger.Rating
	err := d.db.WithContext(ctx).
		Where("state = ? AND archived = ?", ledger.RatingInQueue, false).
		Order("weight, id").
		Find(&res).Error
	if err != nil {
		return nil, fmt.Errorf("list queued ratings: %w", err)
	}
	return res, nil
}

func (d *DB) SetRatingArchived(ctx context.Context, ratingID uint, archived bool) error {
	res := d.db.WithContext(ctx).Model(&ledger.Rating{}).Where("id = ?", ratingID).Update("archived", archived)
	if res.Error != nil {
		return fmt.Errorf("update rating: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return rating.ErrRatingNotFound
	}
	return nil
}

func (d *DB) DeleteRating(ctx context.Context, ratingID uint) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rating_id = ?", ratingID).Delete(&ledger.Stats{}).Error; err != nil {
			return fmt.Errorf("delete stats: %w", err)
		}
		res := tx.Delete(&ledger.Rating{ID: ratingID})
		if res.Error != nil {
			return fmt.Errorf("delete rating: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return rating.ErrRatingNotFound
		}
		return nil
	})
}

func (d *DB) QueueRatings(ctx context.Context, instanceID uint) error {
	return queueRatings(d.db.WithContext(ctx), instanceID)
}

func (d *DB) ClaimRating(ctx context.Context, ratingID uint) (bool, error) {
	res := d.db.WithContext(ctx).Model(&ledger.Rating{}).
		Where("id = ? AND state = ?", ratingID, ledger.RatingInQueue).
		Update("state", ledger.RatingCounting)
	if res.Error != nil {
		return false, fmt.Errorf("claim rating: %w", res.Error)
	}
	return res.RowsAffected != 0, nil
}

func (d *DB) ReleaseRating(ctx context.Context, ratingID uint) error {
	err := d.db.WithContext(ctx).Model(&ledger.Rating{}).
		Where("id = ? AND state = ?", ratingID, ledger.RatingCounting).
		Update("state", ledger.RatingInQueue).Error
	if err != nil {
		return fmt.Errorf("release rating: %w", err)
	}
	return nil
}

func (d *DB) ReplaceStats(ctx context.Context, ratingID uint, stats []ledger.Stats, at timeutil.UTCTime) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rating_id = ?", ratingID).Delete(&ledger.Stats{}).Error; err != nil {
			return fmt.Errorf("delete stats: %w", err)
		}
		if len(stats) != 0 {
			if err := tx.Omit(clause.Associations).CreateInBatches(stats, 500).Error; err != nil {
				return fmt.Errorf("create stats: %w", err)
			}
		}
		err := tx.Model(&ledger.Rating{}).Where("id = ?", ratingID).Update("last_recount", at).Error
		if err != nil {
			return fmt.Errorf("set recount time: %w", err)
		}
		err = tx.Model(&ledger.Rating{}).
			Where("id = ? AND state = ?", ratingID, ledger.RatingCounting).
			Update("state", ledger.RatingActual).Error
		if err != nil {
			return fmt.Errorf("set rating state: %w", err)
		}
		return nil
	})
}

func (d *DB) ListStats(ctx context.Context, ratingID uint) ([]ledger.Stats, error) {
	var res []ledger.Stats
	err := d.db.WithContext(ctx).
		Joins("Player").
		Where("stats.rating_id = ?", ratingID).
		Order("stats.place IS NULL, stats.place, stats.id").
		Find(&res).Error
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	return res, nil
}

func (d *DB) ListInstanceGames(ctx context.Context, instanceID uint) ([]ledger.Game, error) {
	var res []ledger.Game
	err := preloadResults(d.db.WithContext(ctx)).
		Where("instance_id = ?", instanceID).
		Order("date DESC, addition_time DESC, id DESC").
		Find(&res).Error
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return res, nil
}

func (d *DB) EnsurePlayers(ctx context.Context, instanceID uint, names []string) (map[string]ledger.Player, error) {
	res := make(map[string]ledger.Player, len(names))
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []ledger.Player
		if err := tx.Where("instance_id = ? AND name IN ?", instanceID, names).Find(&existing).Error; err != nil {
			return fmt.Errorf("find players: %w", err)
		}
		for _, p := range existing {
			res[p.Name] = p
		}
		for _, name := range names {
			if _, ok := res[name]; ok {
				continue
			}
			if err := ledger.ValidatePlayerName(name); err != nil {
				return fmt.Errorf("invalid player %q: %w", name, err)
			}
			p := ledger.Player{InstanceID: instanceID, Name: name}
			if err := tx.Omit(clause.Associations).Create(&p).Error; err != nil {
				return fmt.Errorf("create player %q: %w", name, err)
			}
			res[name] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
