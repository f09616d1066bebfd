package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/rating"
	"github.com/alex65536/statboard/internal/util/slogx"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string        `toml:"addr"`
	Username string        `toml:"username"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	Prefix   string        `toml:"prefix"`
	TTL      time.Duration `toml:"ttl"`
}

func (o *Options) FillDefaults() {
	if o.Prefix == "" {
		o.Prefix = "statboard:"
	}
}

// Enabled reports whether the leaderboard is configured.
func (o Options) Enabled() bool { return o.Addr != "" }

type Noop struct{}

func (Noop) Publish(context.Context, ledger.Rating, []ledger.Stats) error { return nil }

// Redis mirrors rating standings into sorted sets, one per rating. Members are player names and
// scores are places, so ZRANGE returns the table from the top.
type Redis struct {
	o      Options
	log    *slog.Logger
	client *redis.Client
}

var (
	_ rating.Publisher = Noop{}
	_ rating.Publisher = (*Redis)(nil)
)

func NewRedis(ctx context.Context, log *slog.Logger, o Options) (*Redis, error) {
	o.FillDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Username: o.Username,
		Password: o.Password,
		DB:       o.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("connected to redis", slog.String("addr", o.Addr))
	return &Redis{o: o, log: log, client: client}, nil
}

// New returns the Redis publisher if configured and Noop otherwise.
func New(ctx context.Context, log *slog.Logger, o Options) (rating.Publisher, func(), error) {
	if !o.Enabled() {
		return Noop{}, func() {}, nil
	}
	r, err := NewRedis(ctx, log, o)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}

func (r *Redis) Close() {
	if err := r.client.Close(); err != nil {
		r.log.Warn("could not close redis client", slogx.Err(err))
	}
}

func Key(prefix string, ratingID uint) string {
	return prefix + "rating:" + strconv.FormatUint(uint64(ratingID), 10)
}

// Members converts standings into sorted set members. Entries without a place are left out.
func Members(standings []ledger.Stats) []redis.Z {
	res := make([]redis.Z, 0, len(standings))
	for _, s := range standings {
		if s.Place == nil {
			continue
		}
		res = append(res, redis.Z{Score: float64(*s.Place), Member: s.Player.Name})
	}
	return res
}

// Publish replaces the sorted set of the rating atomically.
func (r *Redis) Publish(ctx context.Context, rt ledger.Rating, standings []ledger.Stats) error {
	key := Key(r.o.Prefix, rt.ID)
	members := Members(standings)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		if len(members) != 0 {
			p.ZAdd(ctx, key, members...)
		}
		if r.o.TTL > 0 {
			p.Expire(ctx, key, r.o.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write standings: %w", err)
	}
	r.log.Debug("standings published", slog.String("key", key), slog.Int("members", len(members)))
	return nil
}

type Place struct {
	Name  string
	Place int
}

// Top reads the first n entries of the published rating.
func (r *Redis) Top(ctx context.Context, ratingID uint, n int64) ([]Place, error) {
	zs, err := r.client.ZRangeWithScores(ctx, Key(r.o.Prefix, ratingID), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read standings: %w", err)
	}
	res := make([]Place, 0, len(zs))
	for _, z := range zs {
		name, _ := z.Member.(string)
		res = append(res, Place{Name: name, Place: int(z.Score)})
	}
	return res, nil
}
