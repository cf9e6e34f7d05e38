package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mcwizard/db"
	"mcwizard/ui"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent download attempts",
	Long: `Shows recent download attempts, newest first, including downloads that
failed or could not be attributed to a mod file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		fileID, _ := cmd.Flags().GetInt("file")

		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()

		var records []db.DownloadRecord
		if fileID > 0 {
			records, err = app.History.ForFile(fileID)
		} else {
			records, err = app.History.Recent(limit)
		}
		if err != nil {
			return err
		}
		return writeHistory(cmd.OutOrStdout(), records)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "number of attempts to show")
	historyCmd.Flags().Int("file", 0, "only attempts for this file id")
}

func writeHistory(w io.Writer, records []db.DownloadRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No downloads recorded yet.")
		return err
	}
	fmt.Fprintln(w, ui.Header.Render(fmt.Sprintf("%-16s %-12s %-10s %-40s", "When", "State", "File", "Filename")))
	for _, r := range records {
		file := "-"
		if r.FileID != nil {
			file = fmt.Sprint(*r.FileID)
		}
		state := r.State
		if !r.Attributed {
			state += "*"
		}
		fmt.Fprintf(w, " %-16s %s %-10s %-40s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			ui.Colorize(fmt.Sprintf("%-12s", state), ui.StateColor(r.State)),
			file,
			truncate(r.Filename, 40))
	}
	fmt.Fprintln(w, ui.Muted.Render("* not attributed to a mod file"))
	return nil
}
