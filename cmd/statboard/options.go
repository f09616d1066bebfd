package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/alex65536/statboard/internal/database"
	"github.com/alex65536/statboard/internal/leaderboard"
	"github.com/alex65536/statboard/internal/pantheon"
	"github.com/alex65536/statboard/internal/rating"
	"github.com/alex65536/statboard/internal/seed"
	"github.com/alex65536/statboard/internal/util/slogx"
)

type Options struct {
	DB          database.Options      `toml:"db"`
	Log         slogx.Options         `toml:"log"`
	Ratings     rating.ManagerOptions `toml:"ratings"`
	Pantheon    *pantheon.Options     `toml:"pantheon"`
	Leaderboard leaderboard.Options   `toml:"leaderboard"`
	Seed        seed.Options          `toml:"seed"`
}

func (o *Options) FillDefaults() {
	o.DB.FillDefaults()
	o.Log.FillDefaults()
	o.Ratings.FillDefaults()
	if o.Pantheon != nil {
		o.Pantheon.FillDefaults()
	}
	o.Leaderboard.FillDefaults()
	o.Seed.FillDefaults()
}

// loadOptions reads the options file. A missing file is not an error unless the path was given
// explicitly.
func loadOptions(path string, explicit bool) (Options, error) {
	var opts Options
	raw, err := os.ReadFile(path)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Options{}, fmt.Errorf("read options: %w", err)
		}
		raw = nil
	}
	if err := toml.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("unmarshal options: %w", err)
	}
	opts.FillDefaults()
	return opts, nil
}
