package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const cliTimeout = 10 * time.Second

var highScoreCmd = &cobra.Command{
	Use:   "highscore",
	Short: "Inspect or reset the stored high score",
}

var highScoreShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored high score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repos, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer repos.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
		defer cancel()
		score, err := repos.HighScores.HighScore(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), score)
		return nil
	},
}

var highScoreResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the stored high score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repos, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer repos.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
		defer cancel()
		if err := repos.HighScores.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "High score reset.")
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repos, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer repos.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
		defer cancel()
		sessions, err := repos.Sessions.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ENDED\tSESSION\tTYPE\tN\tSHOWN\tSCORE\tCOMPLETED")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%d\t%t\n",
				s.EndedAt.Local().Format(time.DateTime), s.SessionID, s.GameType,
				s.NBack, s.Shown, s.Total, s.Score, s.Completed)
		}
		return w.Flush()
	},
}

func init() {
	highScoreCmd.AddCommand(highScoreShowCmd, highScoreResetCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of sessions to list")
	rootCmd.AddCommand(highScoreCmd, historyCmd)
}
