package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcwizard/downloads"
	"mcwizard/logger"
	"mcwizard/notify"
	"mcwizard/ui"
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <modId>",
	Short: "Download a mod file into the managed mods directory",
	Long: `Downloads the newest file of a mod, or the file given with --file, into the
managed mods directory and records it in the installed-files ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modID, err := strconv.Atoi(args[0])
		if err != nil || modID <= 0 {
			return fmt.Errorf("invalid mod id %q", args[0])
		}
		fileID, _ := cmd.Flags().GetInt("file")
		noTUI, _ := cmd.Flags().GetBool("no-tui")

		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()
		if _, err := app.requireCatalog(); err != nil {
			return err
		}

		start := func(ctx context.Context) (downloads.Ticket, error) {
			if fileID > 0 {
				return app.Correlator.StartByFileID(ctx, modID, fileID)
			}
			return app.Correlator.StartLatest(ctx, modID)
		}

		var final downloads.Event
		if noTUI {
			_, final, err = watchDownload(cmd.Context(), app.Correlator, start, func(ev downloads.Event) {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%3.0f%%] %s\n", ev.Percent*100, ev.Filename)
			})
		} else {
			final, err = runDownloadTUI(cmd.Context(), app.Correlator, start)
		}
		if err != nil {
			logger.Log.Errorw("Download failed", zap.Int("mod_id", modID), zap.Error(err))
			return err
		}

		if final.Kind != downloads.EventComplete {
			return fmt.Errorf("download %s (%s)", final.Kind, final.State)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.Colorize("Installed", ui.ColorSuccess), final.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().Int("file", 0, "download this file id instead of the newest file")
	downloadCmd.Flags().Bool("no-tui", false, "print progress lines instead of the interactive view")
}

// watchDownload subscribes to c, starts a download with start and blocks until
// that download's terminal event. Progress events of the started download are
// passed to onProgress.
func watchDownload(ctx context.Context, c *downloads.Correlator, start func(context.Context) (downloads.Ticket, error), onProgress func(downloads.Event)) (downloads.Ticket, downloads.Event, error) {
	events := make(chan downloads.Event, 64)
	stopped := make(chan struct{})
	unsubscribe := c.Subscribe(notify.SinkFunc[downloads.Event](func(ev downloads.Event) error {
		select {
		case events <- ev:
		case <-stopped:
		}
		return nil
	}))
	defer func() {
		close(stopped)
		unsubscribe()
	}()

	ticket, err := start(ctx)
	if err != nil {
		return ticket, downloads.Event{}, err
	}
	for {
		select {
		case ev := <-events:
			if ev.URL != ticket.URL {
				continue
			}
			if ev.Terminal() {
				return ticket, ev, nil
			}
			if onProgress != nil {
				onProgress(ev)
			}
		case <-ctx.Done():
			return ticket, downloads.Event{}, ctx.Err()
		}
	}
}
