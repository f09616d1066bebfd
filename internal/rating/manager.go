package rating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/util/slogx"
	"github.com/alex65536/statboard/internal/util/timeutil"
	"gorm.io/datatypes"
)

type ManagerOptions struct {
	RecountInterval time.Duration `toml:"recount-interval"`
	RecountTimeout  time.Duration `toml:"recount-timeout"`
}

func (o *ManagerOptions) FillDefaults() {
	if o.RecountInterval == 0 {
		o.RecountInterval = 1 * time.Minute
	}
	if o.RecountTimeout == 0 {
		o.RecountTimeout = 5 * time.Minute
	}
}

// Publisher receives the standings of every successfully recounted rating.
type Publisher interface {
	Publish(ctx context.Context, r ledger.Rating, standings []ledger.Stats) error
}

type Config struct {
	DB        DB
	Registry  *Registry
	Backends  Backends
	Publisher Publisher
}

type Manager struct {
	o        *ManagerOptions
	log      *slog.Logger
	db       DB
	reg      *Registry
	backends Backends
	pub      Publisher
	now      func() timeutil.UTCTime

	mu      sync.Mutex
	ctx     context.Context
	cancel  func()
	done    chan struct{}
	started bool
}

func NewManager(log *slog.Logger, cfg Config, o ManagerOptions) *Manager {
	o.FillDefaults()
	reg := cfg.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		o:        &o,
		log:      log,
		db:       cfg.DB,
		reg:      reg,
		backends: cfg.Backends,
		pub:      cfg.Publisher,
		now:      timeutil.NowUTC,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop that recounts queued ratings. It must be called at most once.
func (m *Manager) Start() {
	m.started = true
	go m.loop()
}

func (m *Manager) Close() {
	m.cancel()
	if m.started {
		<-m.done
	}
}

func (m *Manager) Registry() *Registry { return m.reg }

func (m *Manager) RatingName(r *ledger.Rating) string {
	return m.reg.RatingName(r)
}

func (m *Manager) CreateRating(ctx context.Context, r *ledger.Rating) error {
	if err := m.reg.Validate(r); err != nil {
		return fmt.Errorf("invalid rating: %w", err)
	}
	if _, err := m.db.GetInstance(ctx, r.InstanceID); err != nil {
		return err
	}
	if r.Weight == 0 {
		r.Weight = ledger.DefaultWeight
	}
	r.State = ledger.RatingInQueue
	r.LastRecount = nil
	if err := m.db.CreateRating(ctx, r); err != nil {
		return fmt.Errorf("create rating: %w", err)
	}
	m.log.Info("rating created",
		slog.Uint64("rating_id", uint64(r.ID)),
		slog.Uint64("instance_id", uint64(r.InstanceID)),
		slog.String("name", m.reg.RatingName(r)),
	)
	return nil
}

func (m *Manager) GetRating(ctx context.Context, ratingID uint) (ledger.Rating, error) {
	return m.db.GetRating(ctx, ratingID)
}

func (m *Manager) ListRatings(ctx context.Context, instanceID uint, withArchived bool) ([]ledger.Rating, error) {
	return m.db.ListRatings(ctx, instanceID, withArchived)
}

func (m *Manager) SetArchived(ctx context.Context, ratingID uint, archived bool) error {
	r, err := m.db.GetRating(ctx, ratingID)
	if err != nil {
		return err
	}
	if err := m.db.SetRatingArchived(ctx, ratingID, archived); err != nil {
		return fmt.Errorf("archive rating: %w", err)
	}
	if !archived {
		// The rating may have missed recounts while archived.
		return m.db.QueueRatings(ctx, r.InstanceID)
	}
	return nil
}

func (m *Manager) DeleteRating(ctx context.Context, ratingID uint) error {
	if err := m.db.DeleteRating(ctx, ratingID); err != nil {
		return err
	}
	m.log.Info("rating deleted", slog.Uint64("rating_id", uint64(ratingID)))
	return nil
}

func (m *Manager) QueueInstance(ctx context.Context, instanceID uint) error {
	if err := m.db.QueueRatings(ctx, instanceID); err != nil {
		return fmt.Errorf("queue ratings: %w", err)
	}
	return nil
}

// Standings returns the stats of the rating ordered by place.
func (m *Manager) Standings(ctx context.Context, ratingID uint) ([]ledger.Stats, error) {
	if _, err := m.db.GetRating(ctx, ratingID); err != nil {
		return nil, err
	}
	return m.db.ListStats(ctx, ratingID)
}

// RecountQueued recounts every queued rating once, in weight order. A failed rating is returned
// to the queue; the failures are joined into the returned error.
func (m *Manager) RecountQueued(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ratings, err := m.db.ListQueuedRatings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list queued ratings: %w", err)
	}
	done := 0
	var errs []error
	for _, r := range ratings {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := m.recount(ctx, r)
		if err != nil {
			m.log.Warn("could not recount rating",
				slog.Uint64("rating_id", uint64(r.ID)),
				slogx.Err(err),
			)
			errs = append(errs, fmt.Errorf("rating %v: %w", r.ID, err))
			continue
		}
		if ok {
			done++
		}
	}
	return done, errors.Join(errs...)
}

func (m *Manager) recount(ctx context.Context, r ledger.Rating) (_ bool, retErr error) {
	ctx, cancel := context.WithTimeout(ctx, m.o.RecountTimeout)
	defer cancel()

	claimed, err := m.db.ClaimRating(ctx, r.ID)
	if err != nil {
		return false, fmt.Errorf("claim rating: %w", err)
	}
	if !claimed {
		return false, nil
	}
	defer func() {
		if retErr == nil {
			return
		}
		if err := m.db.ReleaseRating(context.WithoutCancel(ctx), r.ID); err != nil {
			m.log.Error("could not return rating to queue", slog.Uint64("rating_id", uint64(r.ID)), slogx.Err(err))
		}
	}()

	now := m.now()
	stats, err := m.compute(ctx, r, now.Date())
	if err != nil {
		return false, err
	}
	if err := m.db.ReplaceStats(ctx, r.ID, stats, now); err != nil {
		return false, fmt.Errorf("replace stats: %w", err)
	}
	m.log.Info("rating recounted",
		slog.Uint64("rating_id", uint64(r.ID)),
		slog.Int("entries", len(stats)),
	)

	if m.pub != nil {
		standings, err := m.db.ListStats(ctx, r.ID)
		if err == nil {
			err = m.pub.Publish(ctx, r, standings)
		}
		if err != nil {
			m.log.Warn("could not publish standings", slog.Uint64("rating_id", uint64(r.ID)), slogx.Err(err))
		}
	}
	return true, nil
}

func (m *Manager) compute(ctx context.Context, r ledger.Rating, today timeutil.Date) ([]ledger.Stats, error) {
	typ, err := m.reg.Get(r.RatingTypeID)
	if err != nil {
		return nil, err
	}
	if typ.NeedsSeries && r.SeriesLen == nil {
		return nil, fmt.Errorf("rating type %q needs series length", typ.ID)
	}
	inst, err := m.db.GetInstance(ctx, r.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	backend, err := m.backends.For(inst)
	if err != nil {
		return nil, fmt.Errorf("select backend: %w", err)
	}
	games, err := backend.Games(ctx, inst)
	if err != nil {
		return nil, fmt.Errorf("get games: %w", err)
	}
	SortGames(games)
	from, to := r.Window(today)
	games = FilterWindow(games, from, to)

	players, err := m.db.ListPlayers(ctx, r.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	hidden := make(map[uint]bool)
	for _, p := range players {
		if p.Hidden {
			hidden[p.ID] = true
		}
	}

	entries, places := Rank(typ.Count(&r, games), hidden)
	stats := make([]ledger.Stats, len(entries))
	for i, e := range entries {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		stats[i] = ledger.Stats{
			InstanceID: r.InstanceID,
			RatingID:   r.ID,
			PlayerID:   e.PlayerID,
			Value:      datatypes.JSON(value),
			Place:      places[i],
			GameID:     e.GameID,
		}
	}
	return stats, nil
}

func (m *Manager) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.o.RecountInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
			_, err := m.RecountQueued(m.ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Warn("recount pass failed", slogx.Err(err))
			}
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}
