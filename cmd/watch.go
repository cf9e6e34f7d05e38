package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcwizard/ledger"
	"mcwizard/logger"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the ledger in sync with the mods directory",
	Long: `Watches the managed mods directory and resyncs the installed-files ledger
whenever files are added, renamed or removed. Stops on Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		w := &ledger.Watcher{
			Dir:      app.Cfg.ModsDir,
			Debounce: app.Cfg.WatchDebounce,
			Ledger:   app.Ledger,
			Log:      logger.Named("watch"),
			OnResync: func(entries []ledger.Entry) {
				fmt.Fprintf(out, "Ledger resynced: %d installed files\n", len(entries))
			},
		}
		fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", app.Cfg.ModsDir)
		if err := w.Run(cmd.Context()); err != nil {
			logger.Log.Errorw("Watcher stopped", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
