package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mcwizard/ledger"
	"mcwizard/ui"
)

// installedCmd represents the installed command
var installedCmd = &cobra.Command{
	Use:   "installed",
	Short: "List installed mod files",
	Long: `Lists the files recorded in the installed-files ledger. Entries whose file
no longer exists on disk are pruned first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()

		return writeInstalled(cmd.OutOrStdout(), app.Ledger.List(), asJSON)
	},
}

// revealCmd represents the reveal command
var revealCmd = &cobra.Command{
	Use:   "reveal <fileId>",
	Short: "Print the path of an installed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid file id %q", args[0])
		}

		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()

		path, ok := app.Ledger.PathFor(fileID)
		if !ok {
			return fmt.Errorf("file %d is not installed", fileID)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installedCmd)
	rootCmd.AddCommand(revealCmd)

	installedCmd.Flags().Bool("json", false, "print the entries as JSON")
}

func writeInstalled(w io.Writer, entries []ledger.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ledger.Store{Entries: entries})
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No installed files. Download one with `mcwizard download <modId>`.")
		return err
	}
	fmt.Fprintln(w, ui.Header.Render(fmt.Sprintf("%-10s %-10s %-40s %-20s", "Mod", "File", "Filename", "Installed")))
	for _, e := range entries {
		fmt.Fprintf(w, " %-10d %-10d %-40s %-20s\n",
			e.ModExternalID,
			e.FileID,
			truncate(e.Filename, 40),
			formatInstalledAt(e.InstalledAt))
	}
	return nil
}

func formatInstalledAt(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
