package cmd

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vuload/internal/storage"
	"vuload/internal/tui/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Browse previous runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		path, err := historyPath(viper.GetString("history"))
		if err != nil {
			return err
		}
		if path == "" {
			return fmt.Errorf("history is disabled")
		}
		store, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), history.Detail(*rec))
			return nil
		}

		if plain, _ := cmd.Flags().GetBool("plain"); plain {
			return printHistory(cmd.OutOrStdout(), store)
		}
		_, err = tea.NewProgram(history.NewModel(store), tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	historyCmd.Flags().Bool("plain", false, "print a plain list instead of the interactive table")
}

func printHistory(w io.Writer, store history.Lister) error {
	recs, err := store.List()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%-32s %-19s %-7s %-5s %10s %8s %10s\n", "ID", "TIME", "PLAN", "RES", "REQS", "FAILED", "P(95)")
	for _, r := range recs {
		res := "pass"
		if !r.Passed {
			res = "fail"
		}
		fmt.Fprintf(w, "%-32s %-19s %-7s %-5s %10d %7.2f%% %8.1fms\n",
			r.ID, r.Timestamp.Local().Format(time.DateTime), r.Plan, res,
			r.Summary.Requests, r.Summary.FailedRate*100, r.Summary.P95LatencyMs)
	}
	return nil
}
