package rating

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/alex65536/statboard/internal/ledger"
)

var ErrUnknownRatingType = errors.New("unknown rating type")

// Entry is the computed rating of one player. Entries are ranked by Key compared
// lexicographically, smaller first; entries with equal keys share a place.
type Entry struct {
	PlayerID uint
	GameID   *uint
	Value    any
	Key      []float64
}

// CountFunc computes entries over the eligible games, which come in chronological order.
type CountFunc func(r *ledger.Rating, games []ledger.Game) []Entry

type Type struct {
	ID          string
	Name        string
	NeedsSeries bool
	Count       CountFunc
}

// Registry maps rating type ids to their descriptors. It is immutable after construction.
type Registry struct {
	types map[string]*Type
	ids   []string
}

func NewRegistry(types ...Type) (*Registry, error) {
	r := &Registry{types: make(map[string]*Type, len(types))}
	for _, t := range types {
		if t.ID == "" || t.Count == nil {
			return nil, fmt.Errorf("rating type %q is incomplete", t.ID)
		}
		if len(t.ID) > 32 {
			return nil, fmt.Errorf("rating type id %q is too long", t.ID)
		}
		if _, ok := r.types[t.ID]; ok {
			return nil, fmt.Errorf("duplicate rating type %q", t.ID)
		}
		r.types[t.ID] = &t
		r.ids = append(r.ids, t.ID)
	}
	slices.Sort(r.ids)
	return r, nil
}

func DefaultRegistry() *Registry {
	r, err := NewRegistry(builtinTypes()...)
	if err != nil {
		panic("must not happen")
	}
	return r
}

func (r *Registry) Get(id string) (*Type, error) {
	t, ok := r.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRatingType, id)
	}
	return t, nil
}

func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}

func (r *Registry) Validate(rt *ledger.Rating) error {
	if err := rt.Validate(); err != nil {
		return err
	}
	t, err := r.Get(rt.RatingTypeID)
	if err != nil {
		return err
	}
	if t.NeedsSeries && rt.SeriesLen == nil {
		return fmt.Errorf("rating type %q needs series length", t.ID)
	}
	return nil
}

// RatingName returns the custom name of the rating or derives one from its type and window.
func (r *Registry) RatingName(rt *ledger.Rating) string {
	if rt.RatingName != "" {
		return rt.RatingName
	}
	var b strings.Builder
	if t, err := r.Get(rt.RatingTypeID); err == nil {
		_, _ = b.WriteString(t.Name)
	} else {
		_, _ = b.WriteString(rt.RatingTypeID)
	}
	if rt.StartDate != nil {
		_, _ = fmt.Fprintf(&b, " start: %v", rt.StartDate)
	}
	if rt.EndDate != nil {
		_, _ = fmt.Fprintf(&b, " end: %v", rt.EndDate)
	}
	if rt.DaysNumber != nil {
		_, _ = fmt.Fprintf(&b, " days: %v", *rt.DaysNumber)
	}
	if rt.SeriesLen != nil {
		_, _ = fmt.Fprintf(&b, " length: %v", *rt.SeriesLen)
	}
	return b.String()
}
