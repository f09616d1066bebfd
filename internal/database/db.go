package database

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/rating"
	"github.com/alex65536/statboard/internal/util/slogx"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver        string        `toml:"driver"`
	Path          string        `toml:"path"`
	DSN           string        `toml:"dsn"`
	Debug         bool          `toml:"debug"`
	SlowThreshold time.Duration `toml:"slow-threshold"`
	BusyTimeout   time.Duration `toml:"busy-timeout"`
	UseWAL        bool          `toml:"use-wal"`
}

func (o *Options) FillDefaults() {
	if o.Driver == "" {
		o.Driver = DriverSQLite
	}
	if o.Path == "" {
		o.Path = "statboard.db"
	}
	if o.SlowThreshold == 0 {
		o.SlowThreshold = 200 * time.Millisecond
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = 1 * time.Minute
	}
}

type DB struct {
	db      *gorm.DB
	log     *slog.Logger
	locking bool
}

var (
	_ ledger.DB         = (*DB)(nil)
	_ rating.DB         = (*DB)(nil)
	_ rating.GameLister = (*DB)(nil)
	_ rating.PlayerSet  = (*DB)(nil)
)

func (d *DB) Close() {
	db, err := d.db.DB()
	if err != nil {
		d.log.Error("could not get underlying db", slogx.Err(err))
		return
	}
	err = db.Close()
	if err != nil {
		d.log.Error("could not close db", slogx.Err(err))
	}
}

func buildPath(o Options) string {
	var params []string
	if o.UseWAL {
		params = append(params, "_journal_mode=WAL")
		params = append(params, "_synchronous=NORMAL")
	}
	params = append(params, fmt.Sprintf("_busy_timeout=%v", o.BusyTimeout.Milliseconds()))
	params = append(params, "_foreign_keys=1")
	return o.Path + "?" + strings.Join(params, "&")
}

func dialector(o Options) (gorm.Dialector, error) {
	switch o.Driver {
	case DriverSQLite:
		return sqlite.Open(buildPath(o)), nil
	case DriverPostgres:
		if o.DSN == "" {
			return nil, fmt.Errorf("no dsn for postgres")
		}
		return postgres.Open(o.DSN), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", o.Driver)
	}
}

func New(log *slog.Logger, o Options) (*DB, error) {
	o.FillDefaults()

	dial, err := dialector(o)
	if err != nil {
		return nil, fmt.Errorf("select driver: %w", err)
	}

	log.Info("opening db", slog.String("driver", o.Driver))
	db, err := gorm.Open(dial, &gorm.Config{
		Logger:         Logger(log, o),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	d := &DB{
		db:      db,
		log:     log,
		locking: o.Driver == DriverPostgres,
	}

	log.Info("migrating db")
	if err := db.AutoMigrate(ledger.Models...); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	log.Info("db opened")
	return d, nil
}

// forUpdate locks the selected rows until the end of the transaction where the driver supports it.
func (d *DB) forUpdate(tx *gorm.DB) *gorm.DB {
	if !d.locking {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// queueRatings puts all the non-archived ratings of the instance back into the recount queue.
func queueRatings(tx *gorm.DB, instanceID uint) error {
	err := tx.Model(&ledger.Rating{}).
		Where("instance_id = ? AND archived = ?", instanceID, false).
		Update("state", ledger.RatingInQueue).Error
	if err != nil {
		return fmt.Errorf("queue ratings: %w", err)
	}
	return nil
}

type dependent struct {
	name  string
	model any
	query string
}

// checkRestricted counts the rows that block deletion of an entity and reports them as
// *ledger.DeleteRestrictedError.
func checkRestricted(tx *gorm.DB, entity string, id uint, deps ...dependent) error {
	var found map[string]int64
	for _, dep := range deps {
		var cnt int64
		if err := tx.Model(dep.model).Where(dep.query, id).Count(&cnt).Error; err != nil {
			return fmt.Errorf("count %v: %w", dep.name, err)
		}
		if cnt == 0 {
			continue
		}
		if found == nil {
			found = make(map[string]int64)
		}
		found[dep.name] = cnt
	}
	if found != nil {
		return &ledger.DeleteRestrictedError{Entity: entity, Dependents: found}
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
