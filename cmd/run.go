package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
)

// runCmd implements: boulderbot run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape all sources, classify the events and reconcile them with the calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer p.Close()

		res, err := p.run(cmd.Context(), true)
		if err != nil {
			return err
		}
		fmt.Println(res.Details())
		return nil
	},
}

// scrapeCmd implements: boulderbot scrape
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape and classify events and store the batch without reconciling it",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer p.Close()

		res, err := p.run(cmd.Context(), false)
		if err != nil {
			return err
		}
		printOnly, _ := cmd.Flags().GetBool("print")
		if printOnly {
			for _, ev := range res.Events {
				fmt.Printf("%s\t%s\t%s\t%s\n", ev.Date.Format("2006-01-02"), ev.Classification, ev.ExternalID, ev.Name)
			}
			return nil
		}
		fmt.Println(res.Details())
		return nil
	},
}

// processCmd implements: boulderbot process
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Reconcile the batch stored by the last scrape",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		report, err := p.processor(utils.Log).ProcessStored(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(report.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(processCmd)

	scrapeCmd.Flags().Bool("print", false, "Print the scraped events instead of a summary")
}
