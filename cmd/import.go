package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/importer"
)

// importCmd implements: boulderbot import <events.json>
var importCmd = &cobra.Command{
	Use:   "import <events.json>",
	Short: "Load a calendar export into the events, venues and tags tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		events, err := importer.Decode(f)
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		im := &importer.Importer{Store: st, Log: utils.Log}
		if skip, _ := cmd.Flags().GetBool("skip-images"); !skip {
			bucket, err := openBucket()
			if err != nil {
				return err
			}
			client := newHTTPClient()
			im.EventImages = newImageUploader(bucket, client, "event-images")
			im.VenueImages = newImageUploader(bucket, client, "venue-images")
			im.OrganizerImages = newImageUploader(bucket, client, "organizer-images")
		}

		sum, err := im.Import(cmd.Context(), events)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d events, %d skipped\n", sum.Events, sum.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("skip-images", false, "Do not copy venue, organizer and featured images")
}
