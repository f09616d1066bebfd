package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alex65536/statboard/internal/leaderboard"
	"github.com/alex65536/statboard/internal/ledger"
	"github.com/alex65536/statboard/internal/rating"
	"github.com/alex65536/statboard/internal/util/human"
	"github.com/alex65536/statboard/internal/util/signal"
	"github.com/alex65536/statboard/internal/util/slogx"
	"github.com/alex65536/statboard/internal/util/style"
	"github.com/alex65536/statboard/internal/util/timeutil"
	"github.com/spf13/cobra"
)

var createRatingCmd = &cobra.Command{
	Use:   "create-rating INSTANCE TYPE",
	Args:  cobra.ExactArgs(2),
	Short: "Create a rating and queue it for counting",
}

func init() {
	p := createRatingCmd.Flags()
	name := p.StringP("name", "n", "", "custom rating name")
	seriesLen := p.Int("series-len", 0, "number of games in a series")
	start := p.String("start", "", "first eligible date (YYYY-MM-DD)")
	end := p.String("end", "", "last eligible date (YYYY-MM-DD)")
	days := p.Int("days", 0, "count only the games of the last N days")
	weight := p.IntP("weight", "w", ledger.DefaultWeight, "display order, lower comes first")

	createRatingCmd.Long = "Create a rating and queue it for counting.\n\nKnown types: " +
		strings.Join(ratingTypes(), ", ") + ".\n"

	parseDate := func(s string) (*timeutil.Date, error) {
		if s == "" {
			return nil, nil
		}
		d, err := timeutil.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("parse date: %w", err)
		}
		return &d, nil
	}

	createRatingCmd.RunE = withEnv(func(ctx context.Context, e *env, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		r := ledger.Rating{
			InstanceID:   instanceID,
			RatingTypeID: args[1],
			RatingName:   *name,
			Weight:       *weight,
		}
		flags := createRatingCmd.Flags()
		if flags.Changed("series-len") {
			r.SeriesLen = seriesLen
		}
		if flags.Changed("days") {
			r.DaysNumber = days
		}
		if r.StartDate, err = parseDate(*start); err != nil {
			return err
		}
		if r.EndDate, err = parseDate(*end); err != nil {
			return err
		}
		if err := e.ratings.CreateRating(ctx, &r); err != nil {
			return err
		}
		fmt.Printf("rating %v %q created\n", r.ID, e.ratings.RatingName(&r))
		return nil
	})
}

func ratingTypes() []string {
	var res []string
	reg := rating.DefaultRegistry()
	for _, id := range reg.IDs() {
		t, _ := reg.Get(id)
		res = append(res, fmt.Sprintf("%v (%v)", id, t.Name))
	}
	return res
}

var ratingsCmd = &cobra.Command{
	Use:   "ratings INSTANCE",
	Args:  cobra.ExactArgs(1),
	Short: "List the ratings of the instance",
}

func init() {
	withArchived := ratingsCmd.Flags().BoolP("archived", "a", false, "show archived ratings too")

	ratingsCmd.RunE = withEnv(func(ctx context.Context, e *env, args []string) error {
		instanceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		ratings, err := e.ratings.ListRatings(ctx, instanceID, *withArchived)
		if err != nil {
			return err
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tNAME\tSTATE\tRECOUNTED\tWEIGHT")
		for _, r := range ratings {
			var recounted *time.Time
			if r.LastRecount != nil {
				t := r.LastRecount.Local()
				recounted = &t
			}
			state := r.State.PrettyString()
			if r.Archived {
				state = "archived"
			}
			fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
				r.ID, e.ratings.RatingName(&r), state, human.Since(recounted), r.Weight)
		}
		return w.Flush()
	})
}

var archiveRatingCmd = &cobra.Command{
	Use:   "archive-rating RATING",
	Args:  cobra.ExactArgs(1),
	Short: "Archive the rating or bring it back",
}

func init() {
	undo := archiveRatingCmd.Flags().BoolP("undo", "u", false, "unarchive the rating")

	archiveRatingCmd.RunE = withEnv(func(ctx context.Context, e *env, args []string) error {
		ratingID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return e.ratings.SetArchived(ctx, ratingID, !*undo)
	})
}

var deleteRatingCmd = &cobra.Command{
	Use:   "delete-rating RATING",
	Args:  cobra.ExactArgs(1),
	Short: "Delete the rating with its stats",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		ratingID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return e.ratings.DeleteRating(ctx, ratingID)
	}),
}

var recountRatingsCmd = &cobra.Command{
	Use:   "recount-ratings",
	Args:  cobra.ExactArgs(0),
	Short: "Recount the queued ratings",
}

func init() {
	p := recountRatingsCmd.Flags()
	watch := p.BoolP("watch", "w", false, "keep running and recount the ratings as they get queued")
	queue := p.UintSlice("queue", nil, "queue all the ratings of these instances first")

	recountRatingsCmd.RunE = withEnv(func(ctx context.Context, e *env, _ []string) error {
		for _, instanceID := range *queue {
			if err := e.ratings.QueueInstance(ctx, instanceID); err != nil {
				return err
			}
		}
		if !*watch {
			n, err := e.ratings.RecountQueued(ctx)
			fmt.Printf("%v ratings recounted\n", n)
			return err
		}

		ctx, cancel := signal.NotifyContext(ctx, e.log, os.Interrupt)
		defer cancel()
		e.log.Info("watching rating queue", slog.Duration("interval", e.opts.Ratings.RecountInterval))
		e.ratings.Start()
		<-ctx.Done()
		return nil
	})
}

var standingsCmd = &cobra.Command{
	Use:   "standings RATING",
	Args:  cobra.ExactArgs(1),
	Short: "Show the standings of the rating",
	RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
		ratingID, err := parseID(args[0])
		if err != nil {
			return err
		}
		r, err := e.ratings.GetRating(ctx, ratingID)
		if err != nil {
			return err
		}
		stats, err := e.ratings.Standings(ctx, ratingID)
		if err != nil {
			return err
		}
		title(e.ratings.RatingName(&r))
		if r.State != ledger.RatingActual {
			fmt.Fprintln(os.Stderr, style.WithSE("rating is "+r.State.PrettyString()+", standings may be stale", style.Yellow))
		}
		w := newTable()
		fmt.Fprintln(w, "PLACE\tPLAYER\tVALUE")
		for _, s := range stats {
			place := "-"
			if s.Place != nil {
				place = fmt.Sprint(*s.Place)
			}
			attrs := style.Place(s.Place)
			fmt.Fprintf(w, "%v\t%v\t%v\n", place, style.WithS(s.Player.Name, attrs...), string(s.Value))
		}
		return w.Flush()
	}),
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard RATING",
	Args:  cobra.ExactArgs(1),
	Short: "Show the top of the rating as published to Redis",
}

func init() {
	top := leaderboardCmd.Flags().Int64P("top", "n", 10, "number of places to show")

	leaderboardCmd.RunE = func(cmd *cobra.Command, args []string) error {
		ratingID, err := parseID(args[0])
		if err != nil {
			return err
		}
		opts, err := loadOptions(*optsPath, rootCmd.PersistentFlags().Changed("options"))
		if err != nil {
			return err
		}
		if !opts.Leaderboard.Enabled() {
			return fmt.Errorf("leaderboard is not configured")
		}
		log, logCloser, err := slogx.New(opts.Log)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer logCloser.Close()
		ctx := cmd.Context()
		board, err := leaderboard.NewRedis(ctx, log, opts.Leaderboard)
		if err != nil {
			return err
		}
		defer board.Close()
		places, err := board.Top(ctx, ratingID, *top)
		if err != nil {
			return err
		}
		w := newTable()
		fmt.Fprintln(w, "PLACE\tPLAYER")
		for _, p := range places {
			fmt.Fprintf(w, "%v\t%v\n", p.Place, p.Name)
		}
		return w.Flush()
	}
}
