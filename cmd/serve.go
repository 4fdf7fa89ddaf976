package cmd

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klimkalender/klimkalender-cms/internal/server"
	"github.com/klimkalender/klimkalender-cms/internal/utils"
	"github.com/klimkalender/klimkalender-cms/pkg/runhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger and review API, optionally running the pipeline periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		// the scheduler and the API share this process
		trigger := exclusive(func(ctx context.Context) error {
			_, err := p.run(ctx, true)
			return err
		})

		interval := viper.GetDuration("server.interval")
		if cmd.Flags().Changed("interval") {
			interval, _ = cmd.Flags().GetDuration("interval")
		}
		if interval > 0 {
			go runPeriodically(ctx, interval, trigger)
		}

		listen := viper.GetString("server.listen")
		if cmd.Flags().Changed("listen") {
			listen, _ = cmd.Flags().GetString("listen")
		}
		srv := server.New(p.store, p.processor(utils.Log), trigger, server.Options{
			Username:     viper.GetString("server.username"),
			Password:     viper.GetString("server.password"),
			Token:        viper.GetString("server.token"),
			TriggerEvery: viper.GetDuration("server.trigger_every"),
			RunType:      runhook.RunType,
		})
		return srv.Start(ctx, listen)
	},
}

// exclusive lets one call of fn run at a time. Overlapping calls fail with
// runhook.ErrRunInProgress without waiting.
func exclusive(fn server.TriggerFunc) server.TriggerFunc {
	var mu sync.Mutex
	return func(ctx context.Context) error {
		if !mu.TryLock() {
			return runhook.ErrRunInProgress
		}
		defer mu.Unlock()
		return fn(ctx)
	}
}

func runPeriodically(ctx context.Context, interval time.Duration, trigger server.TriggerFunc) {
	utils.Log.Infof("Running the pipeline every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := trigger(ctx); err != nil {
				if errors.Is(err, runhook.ErrRunInProgress) {
					utils.Log.Warn("Skipping scheduled run: another run is in progress")
					continue
				}
				utils.Log.Errorf("Scheduled run failed: %v", err)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("interval", 0, "Run the pipeline on this interval in addition to the trigger endpoint (0 to disable)")
}
