package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/event"
	"github.com/klimkalender/klimkalender-cms/pkg/reconcile"
)

var wasmCmd = &cobra.Command{
	Use:   "wasm",
	Short: "Review scraped events and apply reviewer actions",
}

var wasmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wasm events, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var want event.Status
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			if want, err = event.ParseStatus(s); err != nil {
				return err
			}
		}

		all, err := st.ListWasmEvents(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tACTION\tDATE\tCLASS\tEXTERNAL ID\tNAME\t")
		shown := 0
		for _, we := range all {
			if want != "" && we.Status != want {
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n", we.ID, we.Status, we.Action,
				we.Raw.Date.In(event.Amsterdam).Format("2006-01-02"), we.Raw.Classification, we.ExternalID, utils.Truncate(we.Raw.Name, 50))
			shown++
		}
		w.Flush()

		counts, err := st.CountWasmEvents(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("\n%d shown.", shown)
		for _, s := range event.AllStatuses {
			if counts[s] > 0 {
				fmt.Printf(" %s: %d", s, counts[s])
			}
		}
		fmt.Println()
		return nil
	},
}

var wasmShowCmd = &cobra.Command{
	Use:   "show <id|external-id>",
	Short: "Show one wasm event with its raw and accepted fields side by side",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var we *event.WasmEvent
		if id, perr := strconv.ParseInt(args[0], 10, 64); perr == nil {
			we, err = st.GetWasmEvent(cmd.Context(), id)
		} else {
			we, err = st.GetWasmEventByExternalID(cmd.Context(), args[0])
		}
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		fmt.Printf("%d %s\nstatus %s, import %s", we.ID, we.ExternalID, we.Status, we.Action)
		if we.EventID != nil {
			fmt.Printf(", event %d", *we.EventID)
		}
		fmt.Printf("\nsuggested action: %s\n\n", reconcile.DefaultAction(*we))

		changed := map[string]bool{}
		for _, f := range we.Raw.Diff(we.Accepted) {
			changed[f] = true
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tFIELD\tRAW\tACCEPTED\t")
		for _, row := range fieldRows(we.Raw, we.Accepted) {
			mark := ""
			if changed[row[0]] {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", mark, row[0], utils.Truncate(row[1], 60), utils.Truncate(row[2], 60))
		}
		return w.Flush()
	},
}

func fieldRows(raw, acc event.Fields) [][3]string {
	date := func(f event.Fields) string {
		if f.Date.IsZero() {
			return ""
		}
		return f.Date.In(event.Amsterdam).Format("2006-01-02 15:04")
	}
	return [][3]string{
		{"name", raw.Name, acc.Name},
		{"classification", string(raw.Classification), string(acc.Classification)},
		{"date", date(raw), date(acc)},
		{"hall_name", raw.HallName, acc.HallName},
		{"short_description", raw.ShortDescription, acc.ShortDescription},
		{"full_description_html", raw.FullDescriptionHTML, acc.FullDescriptionHTML},
		{"event_url", raw.EventURL, acc.EventURL},
		{"image_url", raw.ImageURL, acc.ImageURL},
		{"event_category", string(raw.Category), string(acc.Category)},
	}
}

var wasmApplyCmd = &cobra.Command{
	Use:   "apply <id> <action>",
	Short: "Apply a reviewer action (PUBLISH_AS_DRAFT, PUBLISH_AS_PUBLISHED, UPDATE_EVENT, IGNORE_ONCE, IGNORE_FOREVER, CHANGE_IMPORT_TYPE)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		action, err := reconcile.ParseAction(args[1])
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		bucket, err := openBucket()
		if err != nil {
			return err
		}
		p := &pipeline{store: st, bucket: bucket, client: newHTTPClient()}

		we, err := p.processor(utils.Log).Apply(cmd.Context(), id, action)
		if err != nil {
			return err
		}
		fmt.Printf("%d %s: status %s, import %s\n", we.ID, we.ExternalID, we.Status, we.Action)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(wasmCmd)
	wasmCmd.AddCommand(wasmListCmd)
	wasmCmd.AddCommand(wasmShowCmd)
	wasmCmd.AddCommand(wasmApplyCmd)

	wasmListCmd.Flags().String("status", "", "Only show records with this status (NEW, CHANGED, UP_TO_DATE, IGNORED, REMOVED, EVENT_PASSED)")
}
