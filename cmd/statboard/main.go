package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Version:      "indev",
	Use:          "statboard",
	Short:        "Keeps mahjong game records and player ratings",
	SilenceUsage: true,
}

var optsPath = rootCmd.PersistentFlags().StringP(
	"options", "o", "statboard.toml",
	"options file")

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return uint(id), nil
}

func main() {
	rootCmd.AddCommand(
		migrateCmd,
		createInstanceCmd,
		addDomainCmd,
		resolveDomainCmd,
		createPlayerCmd,
		playersCmd,
		recordGameCmd,
		recountPlacesCmd,
		mergePlayersCmd,
		opponentsCmd,
		deleteCmd,
		createRatingCmd,
		ratingsCmd,
		archiveRatingCmd,
		deleteRatingCmd,
		recountRatingsCmd,
		standingsCmd,
		leaderboardCmd,
		seedCmd,
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
