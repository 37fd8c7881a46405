package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/park285/quizduel/internal/matchstore"
	"github.com/park285/quizduel/internal/pgdb"
)

func newMatchesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "matches <player>",
		Short: "Show a player's recent match results.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, _ := cmd.Flags().GetString("database-url")
			if dbURL == "" {
				return errors.New("--database-url or DATABASE_URL is required")
			}
			db, err := pgdb.Open(cmd.Context(), dbURL)
			if err != nil {
				return err
			}
			defer db.Close()

			ms, err := matchstore.NewRepository(db).RecentMatches(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range ms {
				winner := "draw"
				if m.Winner != nil {
					winner = *m.Winner
				}
				fmt.Fprintf(out, "%s  %s %d : %d %s  winner=%s\n", m.PlayedAt.Format("2006-01-02 15:04"), m.Player1, m.Score1, m.Score2, m.Player2, winner)
			}
			if len(ms) == 0 {
				fmt.Fprintln(out, "no matches")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of matches")
	return cmd
}
