package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"vuload/internal/scenario"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List the built-in plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printPlans(cmd.OutOrStdout())
	},
}

func printPlans(w io.Writer) error {
	for _, name := range scenario.PlanNames() {
		plan, err := scenario.LookupPlan(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n  %s\n", plan.Name, plan.Description)

		stages := make([]string, len(plan.Stages))
		for i, s := range plan.Stages {
			stages[i] = fmt.Sprintf("%s:%d", s.Duration, s.Target)
		}
		fmt.Fprintf(w, "  stages:     %s (total %s)\n", strings.Join(stages, " "), plan.Stages.Total())

		metrics := make([]string, 0, len(plan.Thresholds))
		for m := range plan.Thresholds {
			metrics = append(metrics, m)
		}
		sort.Strings(metrics)
		for _, m := range metrics {
			fmt.Fprintf(w, "  threshold:  %s %s\n", m, strings.Join(plan.Thresholds[m], ", "))
		}

		weights := plan.Table.Weights()
		names := make([]string, 0, len(weights))
		for n := range weights {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(w, "  scenario:   %-22s %5.1f%%\n", n, weights[n]*100)
		}
		fmt.Fprintln(w)
	}
	return nil
}
