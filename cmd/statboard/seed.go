package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/seed"
	"github.com/alex65536/statboard/internal/util/sliceutil"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed INSTANCE",
	Args:  cobra.ExactArgs(1),
	Short: "Fill the instance with fake players and games",
}

func init() {
	p := seedCmd.Flags()
	players := p.IntP("players", "p", 0, "number of players (from options if zero)")
	games := p.IntP("games", "g", 0, "number of games (from options if zero)")
	days := p.IntP("days", "d", 0, "spread the games over this many last days (from options if zero)")

	seedCmd.RunE = withEnv(func(ctx context.Context, e *env, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		o := e.opts.Seed
		if *players != 0 {
			o.Players = *players
		}
		if *games != 0 {
			o.Games = *games
		}
		if *days != 0 {
			o.Days = *days
		}
		res, err := seed.Fill(ctx, e.log, e.ledger, instanceID, o)
		if err != nil {
			return err
		}
		names := sliceutil.Map(res.Players, func(p ledger.Player) string { return p.Name })
		fmt.Printf("%v games recorded for %v\n", len(res.Games), strings.Join(names, ", "))
		return nil
	})
}
