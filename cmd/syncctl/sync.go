package main

import (
	"net/http"

	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show queue depth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := newAPIClient().do(http.MethodGet, "/api/v1/queue", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

// newSyncCmd runs a sync inline on the server and prints its result.
func newSyncCmd() *cobra.Command {
	var (
		season int
		league int64
		from   string
		to     string
		hours  int
		live   bool
	)
	run := func(entity string, body func() map[string]any) *cobra.Command {
		return &cobra.Command{
			Use:   entity,
			Short: "Sync " + entity + " now",
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := newAPIClient().do(http.MethodPost, "/api/v1/sync/"+entity, body())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), data)
			},
		}
	}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync synchronously, bypassing the job queue",
	}
	leagues := run("leagues", func() map[string]any {
		return map[string]any{"season": season}
	})
	teams := run("teams", func() map[string]any {
		return map[string]any{"season": season, "league_external_id": league}
	})
	fixtures := run("fixtures", func() map[string]any {
		return map[string]any{"from": from, "to": to, "league_external_id": league}
	})
	odds := run("odds", func() map[string]any {
		return map[string]any{"hours": hours, "live": live}
	})

	leagues.Flags().IntVar(&season, "season", 0, "season (0 uses the configured one)")
	teams.Flags().IntVar(&season, "season", 0, "season (0 uses the configured one)")
	teams.Flags().Int64Var(&league, "league", 0, "provider league id (0 for all active leagues)")
	fixtures.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	fixtures.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	fixtures.Flags().Int64Var(&league, "league", 0, "provider league id (0 for all active leagues)")
	odds.Flags().IntVar(&hours, "hours", 0, "look-ahead for upcoming odds")
	odds.Flags().BoolVar(&live, "live", false, "sync live odds instead")

	cmd.AddCommand(leagues, teams, fixtures, odds)
	return cmd
}
