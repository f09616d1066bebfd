package rating

import (
	"context"
	"errors"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/util/timeutil"
)

var ErrRatingNotFound = errors.New("rating not found")

type DB interface {
	GetInstance(ctx context.Context, instanceID uint) (ledger.Instance, error)
	ListPlayers(ctx context.Context, instanceID uint) ([]ledger.Player, error)

	CreateRating(ctx context.Context, r *ledger.Rating) error
	GetRating(ctx context.Context, ratingID uint) (ledger.Rating, error)
	// ListRatings returns the ratings of the instance ordered by weight.
	ListRatings(ctx context.Context, instanceID uint, withArchived bool) ([]ledger.Rating, error)
	// ListQueuedRatings returns the non-archived ratings in state inqueue ordered by weight.
	ListQueuedRatings(ctx context.Context) ([]ledger.Rating, error)
	SetRatingArchived(ctx context.Context, ratingID uint, archived bool) error
	DeleteRating(ctx context.Context, ratingID uint) error
	QueueRatings(ctx context.Context, instanceID uint) error

	// ClaimRating moves the rating from inqueue to counting. It returns false if the rating was not
	// in the queue.
	ClaimRating(ctx context.Context, ratingID uint) (bool, error)
	// ReleaseRating moves the rating from counting back to inqueue.
	ReleaseRating(ctx context.Context, ratingID uint) error
	// ReplaceStats replaces all the stats of the rating and stores the recount time in one
	// transaction. The state becomes actual only if the rating is still counting, so a rating
	// queued again during the recount stays in the queue.
	ReplaceStats(ctx context.Context, ratingID uint, stats []ledger.Stats, at timeutil.UTCTime) error
	// ListStats returns the stats of the rating with players loaded, ordered by place with
	// unplaced entries last.
	ListStats(ctx context.Context, ratingID uint) ([]ledger.Stats, error)
}

type GameLister interface {
	ListInstanceGames(ctx context.Context, instanceID uint) ([]ledger.Game, error)
}

type PlayerSet interface {
	// EnsurePlayers returns the players of the instance with the given names, creating the
	// missing ones.
	EnsurePlayers(ctx context.Context, instanceID uint, names []string) (map[string]ledger.Player, error)
}
