package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/livefeed/internal/models"
	"github.com/jmylchreest/livefeed/internal/repository"
	"github.com/jmylchreest/livefeed/internal/scheduler"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and prune playback session history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent playback sessions",
	RunE:  runHistoryList,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete sessions older than the retention period",
	Long: `Delete finished sessions that ended longer ago than history.retention.
The same job runs on history.prune_schedule while playing.`,
	RunE: runHistoryPrune,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyPruneCmd)

	historyListCmd.Flags().Int("limit", 20, "maximum sessions to show, 0 for all")
	historyListCmd.Flags().Bool("json", false, "output sessions as JSON")
	historyPruneCmd.Flags().Duration("retention", 0, "override history.retention")
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := openHistory(cmd.Context(), cfg.Database, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := repository.NewSessionRepository(db.DB).List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}
	return printSessions(cmd.OutOrStdout(), sessions, time.Now())
}

func printSessions(w io.Writer, sessions []*models.Session, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSTARTED\tDURATION\tAPPENDS\tDROPS\tURL")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.State,
			s.StartedAt.Local().Format(time.DateTime),
			s.Duration(now).Round(time.Second),
			s.Appends, s.Drops, s.URL,
		)
	}
	return tw.Flush()
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	retention := cfg.History.Retention
	if cmd.Flags().Changed("retention") {
		v, err := cmd.Flags().GetDuration("retention")
		if err != nil {
			return err
		}
		retention = v
	}

	db, err := openHistory(cmd.Context(), cfg.Database, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	pruner, err := scheduler.NewPruner(repository.NewSessionRepository(db.DB), retention, cfg.History.PruneSchedule, slog.Default())
	if err != nil {
		return err
	}
	deleted, err := pruner.PruneOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sessions\n", deleted)
	return nil
}
