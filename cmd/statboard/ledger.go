package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/util/sliceutil"
	"github.com/alex65536/statboard/internal/util/style"
	"github.com/alex65536/statboard/internal/util/timeutil"
	"github.com/spf13/cobra"
)

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(style.Stdout(), 0, 4, 2, ' ', 0)
}

func title(s string) {
	fmt.Fprintln(style.Stdout(), style.WithS(s, style.Bold))
}

func withEnv(run func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return run(ctx, e, args)
	}
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Args:  cobra.ExactArgs(0),
	Short: "Create or update the database schema",
	RunE: withEnv(func(context.Context, *env, []string) error {
		fmt.Println("database is up to date")
		return nil
	}),
}

var createInstanceCmd = &cobra.Command{
	Use:   "create-instance NAME",
	Args:  cobra.ExactArgs(1),
	Short: "Create a new instance (club or league)",
}

func init() {
	p := createInstanceCmd.Flags()
	instTitle := p.StringP("title", "t", "", "instance title")
	description := p.StringP("description", "d", "", "instance description")
	storage := p.String("storage", string(ledger.StorageLocal), "game storage (local or pantheon)")
	pantheonID := p.Int("pantheon-id", 0, "pantheon event id")

	createInstanceCmd.RunE = withEnv(func(ctx context.Context, e *env, args []string) error {
		inst := ledger.Instance{
			Name:        args[0],
			Title:       *instTitle,
			Description: *description,
			GameStorage: ledger.StorageKind(*storage),
		}
		if createInstanceCmd.Flags().Changed("pantheon-id") {
			inst.PantheonID = pantheonID
		}
		if err := e.ledger.CreateInstance(ctx, &inst); err != nil {
			return err
		}
		fmt.Printf("instance %v created\n", inst.ID)
		return nil
	})
}

var addDomainCmd = &cobra.Command{
	Use:   "add-domain INSTANCE DOMAIN",
	Args:  cobra.ExactArgs(2),
	Short: "Bind a domain name to the instance",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		d, err := e.ledger.AddDomain(ctx, instanceID, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("domain %q added to instance %v\n", d.Name, instanceID)
		return nil
	}),
}

var createPlayerCmd = &cobra.Command{
	Use:   "create-player INSTANCE NAME",
	Args:  cobra.ExactArgs(2),
	Short: "Register a player in the instance",
}

func init() {
	p := createPlayerCmd.Flags()
	fullName := p.StringP("full-name", "f", "", "player full name")
	hidden := p.Bool("hidden", false, "exclude the player from rating places")

	createPlayerCmd.RunE = withEnv(func(ctx context.Context, e *env, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		pl := ledger.Player{
			InstanceID: instanceID,
			Name:       args[1],
			FullName:   *fullName,
			Hidden:     *hidden,
		}
		if err := e.ledger.CreatePlayer(ctx, &pl); err != nil {
			return err
		}
		fmt.Printf("player %v created\n", pl.ID)
		return nil
	})
}

// parseSeat parses a "name:score" seat argument.
func parseSeat(s string) (name string, score int, err error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("seat %q must look like name:score", s)
	}
	score, err = strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bad score in seat %q", s)
	}
	return s[:idx], score, nil
}

var recordGameCmd = &cobra.Command{
	Use:   "record-game INSTANCE NAME:SCORE...",
	Args:  cobra.MinimumNArgs(1 + ledger.MinSeats),
	Short: "Record a finished game",
	Long: `Record a finished game.

Seats are given in the order of starting positions, each as player name and final score.
`,
}

func init() {
	p := recordGameCmd.Flags()
	date := p.StringP("date", "d", "", "game date (YYYY-MM-DD, today if empty)")

	recordGameCmd.RunE = withEnv(func(ctx context.Context, e *env, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		in := ledger.GameInput{
			InstanceID: instanceID,
			Date:       timeutil.Today(),
		}
		if *date != "" {
			if in.Date, err = timeutil.ParseDate(*date); err != nil {
				return fmt.Errorf("parse date: %w", err)
			}
		}
		pos := int16(0)
		in.Seats, err = sliceutil.MapErr(args[1:], func(arg string) (ledger.SeatInput, error) {
			name, score, err := parseSeat(arg)
			if err != nil {
				return ledger.SeatInput{}, err
			}
			pl, err := e.ledger.GetPlayerByName(ctx, instanceID, name)
			if err != nil {
				return ledger.SeatInput{}, fmt.Errorf("find player %q: %w", name, err)
			}
			pos++
			return ledger.SeatInput{PlayerID: pl.ID, Score: score, StartingPosition: pos}, nil
		})
		if err != nil {
			return err
		}
		g, err := e.ledger.RecordGame(ctx, in)
		if err != nil {
			return err
		}
		title(fmt.Sprintf("Game %v on %v", g.ID, g.Date))
		return printResults(ctx, e, g)
	})
}

func printResults(ctx context.Context, e *env, g ledger.Game) error {
	w := newTable()
	fmt.Fprintln(w, "PLACE\tPLAYER\tSCORE\tSEAT")
	for _, r := range g.Results {
		pl, err := e.ledger.GetPlayer(ctx, r.PlayerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", r.Place, pl.Name, r.Score, r.StartingPosition)
	}
	return w.Flush()
}

var recountPlacesCmd = &cobra.Command{
	Use:   "recount-places GAME",
	Args:  cobra.ExactArgs(1),
	Short: "Derive the places of a game from its scores",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		gameID, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := e.ledger.RecountPlaces(ctx, gameID); err != nil {
			return err
		}
		g, err := e.ledger.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		return printResults(ctx, e, g)
	}),
}

var mergePlayersCmd = &cobra.Command{
	Use:   "merge-players CANONICAL DUPLICATE",
	Args:  cobra.ExactArgs(2),
	Short: "Move all the game results of the duplicate player to the canonical one",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		ids, err := sliceutil.MapErr(args, parseID)
		if err != nil {
			return err
		}
		n, err := e.ledger.MergePlayers(ctx, ids[0], ids[1])
		if err != nil {
			return err
		}
		fmt.Printf("%v game results moved\n", n)
		return nil
	}),
}

var opponentsCmd = &cobra.Command{
	Use:   "opponents PLAYER",
	Args:  cobra.ExactArgs(1),
	Short: "Show head-to-head results of the player",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		playerID, err := parseID(args[0])
		if err != nil {
			return err
		}
		stats, err := e.ledger.Opponents(ctx, playerID)
		if err != nil {
			return err
		}
		w := newTable()
		fmt.Fprintln(w, "OPPONENT\tWINS\tLOSSES\tWIN RATE")
		for _, s := range stats {
			fmt.Fprintf(w, "%v\t%v\t%v\t%.1f%%\n", s.Opponent.Name, s.Wins, s.Losses, 100*s.WinRate())
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if len(stats) == 0 {
			fmt.Fprintln(os.Stderr, style.WithSE("no games played", style.Dim))
		}
		return nil
	}),
}

var playersCmd = &cobra.Command{
	Use:   "players INSTANCE",
	Args:  cobra.ExactArgs(1),
	Short: "List the players of the instance",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		players, err := e.ledger.ListPlayers(ctx, instanceID)
		if err != nil {
			return err
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tNAME\tFULL NAME\tHIDDEN")
		for _, pl := range players {
			fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", pl.ID, pl.Name, pl.FullName, pl.Hidden)
		}
		return w.Flush()
	}),
}

var resolveDomainCmd = &cobra.Command{
	Use:   "resolve-domain HOST",
	Args:  cobra.ExactArgs(1),
	Short: "Find the instance served on the host",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		inst, err := e.ledger.ResolveDomain(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%v\t%v\t%v\n", inst.ID, inst.Name, inst.GameStorage)
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:       "delete {instance|player|game} ID",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"instance", "player", "game"},
	Short:     "Delete an entity if nothing depends on it",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		switch args[0] {
		case "instance":
			return e.ledger.DeleteInstance(ctx, id)
		case "player":
			return e.ledger.DeletePlayer(ctx, id)
		case "game":
			return e.ledger.DeleteGame(ctx, id)
		default:
			return fmt.Errorf("cannot delete %q", args[0])
		}
	}),
}
