package ledger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alex65536/statboard/internal/util/timeutil"
	"gorm.io/datatypes"
)

const (
	NameMaxLen    = 256
	DefaultWeight = 999
)

type StorageKind string

const (
	StorageLocal    StorageKind = "local"
	StoragePantheon StorageKind = "pantheon"
)

func (k StorageKind) Validate() error {
	switch k {
	case StorageLocal, StoragePantheon:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrBadStorage, string(k))
	}
}

type RatingState string

const (
	RatingInQueue  RatingState = "inqueue"
	RatingCounting RatingState = "counting"
	RatingActual   RatingState = "actual"
)

func (s RatingState) PrettyString() string {
	switch s {
	case RatingInQueue:
		return "In queue for counting"
	case RatingCounting:
		return "Counting"
	case RatingActual:
		return "Actual"
	default:
		return "?"
	}
}

type User struct {
	ID       uint   `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;size:150"`
}

type Instance struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Description string
	Title       string
	GameStorage StorageKind `gorm:"size:16;default:local"`
	PantheonID  *int
	Admins      []User           `gorm:"many2many:instance_admins;constraint:OnDelete:CASCADE"`
	Domains     []InstanceDomain `gorm:"constraint:OnDelete:CASCADE"`
}

func (i *Instance) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("no instance name")
	}
	if i.GameStorage == "" {
		i.GameStorage = StorageLocal
	}
	if err := i.GameStorage.Validate(); err != nil {
		return err
	}
	if i.GameStorage == StoragePantheon && i.PantheonID == nil {
		return fmt.Errorf("%w: pantheon storage needs pantheon id", ErrBadStorage)
	}
	return nil
}

type InstanceDomain struct {
	ID         uint   `gorm:"primaryKey"`
	InstanceID uint   `gorm:"index;not null"`
	Name       string `gorm:"uniqueIndex;size:256;not null"`
}

func NormalizeDomain(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

type Rating struct {
	ID           uint     `gorm:"primaryKey"`
	InstanceID   uint     `gorm:"index;not null"`
	Instance     Instance `gorm:"constraint:OnDelete:RESTRICT"`
	RatingName   string   `gorm:"size:256"`
	RatingTypeID string   `gorm:"size:32;not null"`
	SeriesLen    *int
	StartDate    *timeutil.Date
	EndDate      *timeutil.Date
	DaysNumber   *int
	Weight       int         `gorm:"default:999;index"`
	State        RatingState `gorm:"size:16;default:inqueue;index"`
	Archived     bool
	LastRecount  *timeutil.UTCTime
}

// Validate checks the eligibility window. The rating type is checked by the rating registry.
func (r *Rating) Validate() error {
	if r.RatingTypeID == "" {
		return fmt.Errorf("no rating type")
	}
	if utf8.RuneCountInString(r.RatingName) > NameMaxLen {
		return fmt.Errorf("rating name exceeds %v runes", NameMaxLen)
	}
	if r.SeriesLen != nil && *r.SeriesLen < 1 {
		return fmt.Errorf("series length must be positive")
	}
	if r.DaysNumber != nil {
		if *r.DaysNumber < 1 {
			return fmt.Errorf("days number must be positive")
		}
		if r.StartDate != nil || r.EndDate != nil {
			return fmt.Errorf("days number cannot be combined with a date range")
		}
	}
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return fmt.Errorf("end date is before start date")
	}
	return nil
}

// Window returns the closed date interval of eligible games relative to today. Nil bounds mean
// no restriction on that side.
func (r *Rating) Window(today timeutil.Date) (from, to *timeutil.Date) {
	if r.DaysNumber != nil {
		start := today.AddDays(1 - *r.DaysNumber)
		return &start, &today
	}
	return r.StartDate, r.EndDate
}

type Stats struct {
	ID         uint           `gorm:"primaryKey"`
	InstanceID uint           `gorm:"index;not null"`
	Instance   Instance       `gorm:"constraint:OnDelete:RESTRICT"`
	RatingID   uint           `gorm:"not null;uniqueIndex:idx_stats_rating_player"`
	Rating     Rating         `gorm:"constraint:OnDelete:CASCADE"`
	PlayerID   uint           `gorm:"not null;uniqueIndex:idx_stats_rating_player"`
	Player     Player         `gorm:"constraint:OnDelete:RESTRICT"`
	Value      datatypes.JSON `gorm:"not null"`
	Place      *int
	GameID     *uint `gorm:"index"`
	Game       *Game `gorm:"constraint:OnDelete:CASCADE"`
}

func (Stats) TableName() string { return "stats" }

type Player struct {
	ID         uint     `gorm:"primaryKey"`
	InstanceID uint     `gorm:"not null;uniqueIndex:idx_player_instance_name"`
	Instance   Instance `gorm:"constraint:OnDelete:RESTRICT"`
	Name       string   `gorm:"size:256;not null;uniqueIndex:idx_player_instance_name"`
	FullName   string
	Hidden     bool
}

func ValidatePlayerName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > NameMaxLen {
		return fmt.Errorf("player name must have from 1 to %v characters", NameMaxLen)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("player name must not start or end with spaces")
	}
	return nil
}

type Game struct {
	ID           uint             `gorm:"primaryKey"`
	InstanceID   uint             `gorm:"index;not null"`
	Instance     Instance         `gorm:"constraint:OnDelete:RESTRICT"`
	Date         timeutil.Date    `gorm:"index;not null"`
	AdditionTime timeutil.UTCTime `gorm:"index;not null"`
	PostedByID   *uint
	PostedBy     *User        `gorm:"constraint:OnDelete:SET NULL"`
	Results      []GameResult `gorm:"constraint:OnDelete:CASCADE"`
}

// Seat returns the result of the given player in the game.
func (g *Game) Seat(playerID uint) (*GameResult, bool) {
	for i := range g.Results {
		if g.Results[i].PlayerID == playerID {
			return &g.Results[i], true
		}
	}
	return nil, false
}

type GameResult struct {
	ID               uint   `gorm:"primaryKey"`
	GameID           uint   `gorm:"index;not null"`
	PlayerID         uint   `gorm:"index;not null"`
	Player           Player `gorm:"constraint:OnDelete:RESTRICT"`
	Score            int    `gorm:"not null"`
	Place            int16  `gorm:"not null"`
	StartingPosition int16  `gorm:"not null"`
}

var Models = []any{
	&User{},
	&Instance{},
	&InstanceDomain{},
	&Player{},
	&Game{},
	&GameResult{},
	&Rating{},
	&Stats{},
}
