package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/klimkalender/klimkalender-cms/pkg/blob"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/runhook"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(cmd.Context(), runhook.RunType, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTART\tDURATION\tRESULT\tDETAILS\t")
		for _, r := range runs {
			duration, result := "-", "running"
			if r.End != nil {
				duration = r.End.Sub(r.Start).Round(time.Second).String()
			}
			if r.ResultOK != nil {
				result = "ok"
				if !*r.ResultOK {
					result = "failed"
				}
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", r.ID, r.Start.In(event.Amsterdam).Format("2006-01-02 15:04:05"), duration, result, r.Details)
		}
		return w.Flush()
	},
}

var runsResultCmd = &cobra.Command{
	Use:   "result",
	Short: "Summarize the batch stored by the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, err := openBucket()
		if err != nil {
			return err
		}
		data, err := bucket.Get(cmd.Context(), blob.ResultBucket, blob.ResultKey)
		if err != nil {
			return fmt.Errorf("no stored result: %w", err)
		}

		perSource := map[string]int{}
		perClass := map[string]int{}
		records := gjson.ParseBytes(data).Array()
		for _, r := range records {
			source, _, _ := strings.Cut(r.Get("externalId").String(), ":")
			perSource[source]++
			perClass[r.Get("classification").String()]++
		}
		fmt.Printf("%d events\n", len(records))
		printCounts("source", perSource)
		printCounts("classification", perClass)
		return nil
	},
}

func printCounts(title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("by %s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-16s %d\n", k, counts[k])
	}
}

var logsCmd = &cobra.Command{
	Use:   "logs [run-id]",
	Short: "Print the audit log of the last run, or of the given run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var runID int64
		if len(args) == 1 {
			if runID, err = strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
		} else {
			last, err := st.LastRun(cmd.Context(), runhook.RunType)
			if err != nil {
				return fmt.Errorf("last run: %w", err)
			}
			runID = last.ID
		}

		lines, err := st.ListLogs(cmd.Context(), runID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Printf("%s [%s] %s\n", l.Time.In(event.Amsterdam).Format("15:04:05"), strings.ToUpper(l.Level), l.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(logsCmd)
	runsCmd.AddCommand(runsResultCmd)

	runsCmd.Flags().Int("limit", 20, "Number of runs to show")
}
