package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex65536/statboard/internal/database"
	"github.com/alex65536/statboard/internal/leaderboard"
	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/pantheon"
	"github.com/alex65536/statboard/internal/rating"
	"github.com/alex65536/statboard/internal/util/slogx"
)

// env holds everything a command may need. Fields are built in the order of dependencies and
// closed in reverse.
type env struct {
	opts    Options
	log     *slog.Logger
	db      *database.DB
	ledger  *ledger.Manager
	ratings *rating.Manager
	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *env) onClose(f func()) { e.closers = append(e.closers, f) }

func openEnv(ctx context.Context) (_ *env, retErr error) {
	opts, err := loadOptions(*optsPath, rootCmd.PersistentFlags().Changed("options"))
	if err != nil {
		return nil, err
	}
	log, logCloser, err := slogx.New(opts.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	e := &env{opts: opts, log: log}
	e.onClose(func() { _ = logCloser.Close() })
	defer func() {
		if retErr != nil {
			e.Close()
		}
	}()

	db, err := database.New(log, opts.DB)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	e.db = db
	e.onClose(db.Close)
	e.ledger = ledger.NewManager(log, db)

	backends := rating.Backends{Local: rating.NewLocalBackend(db)}
	if opts.Pantheon != nil {
		client, err := pantheon.NewClient(log.With(slog.String("component", "pantheon")), *opts.Pantheon, nil)
		if err != nil {
			return nil, fmt.Errorf("create pantheon client: %w", err)
		}
		backends.External = rating.NewExternalBackend(client, db)
	}
	pub, closePub, err := leaderboard.New(ctx, log, opts.Leaderboard)
	if err != nil {
		return nil, fmt.Errorf("create leaderboard: %w", err)
	}
	e.onClose(closePub)
	e.ratings = rating.NewManager(log, rating.Config{
		DB:        db,
		Backends:  backends,
		Publisher: pub,
	}, opts.Ratings)
	e.onClose(e.ratings.Close)
	return e, nil
}
