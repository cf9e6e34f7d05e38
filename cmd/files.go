package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcwizard/catalog"
	"mcwizard/logger"
	"mcwizard/ui"
)

// filesCmd represents the files command
var filesCmd = &cobra.Command{
	Use:   "files <modId>",
	Short: "List the downloadable files of a mod",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modID, err := strconv.Atoi(args[0])
		if err != nil || modID <= 0 {
			return fmt.Errorf("invalid mod id %q", args[0])
		}
		pageSize, _ := cmd.Flags().GetInt("page-size")
		index, _ := cmd.Flags().GetInt("index")
		gameVersion, _ := cmd.Flags().GetString("game-version")
		refresh, _ := cmd.Flags().GetBool("refresh")

		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()
		client, err := app.requireCatalog()
		if err != nil {
			return err
		}

		if refresh {
			if err := client.ClearCache(cmd.Context()); err != nil {
				logger.Log.Warnw("Failed to clear catalog cache", zap.Error(err))
			}
		}
		if mod, err := client.GetMod(cmd.Context(), modID); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.Title.Render(mod.Name), ui.Muted.Render(mod.Summary))
		} else {
			logger.Log.Debugw("Mod details unavailable", zap.Int("mod_id", modID), zap.Error(err))
		}

		page, err := client.GetModFiles(cmd.Context(), modID, catalog.FilesQuery{
			PageSize:    pageSize,
			Index:       index,
			GameVersion: gameVersion,
		})
		if err != nil {
			return fmt.Errorf("failed to list files of mod %d: %w", modID, err)
		}
		installed := map[int]bool{}
		for _, e := range app.Ledger.List() {
			installed[e.FileID] = true
		}
		return writeFiles(cmd.OutOrStdout(), page, installed)
	},
}

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.Flags().Int("page-size", 20, "files per page")
	filesCmd.Flags().Int("index", 0, "index of the first file")
	filesCmd.Flags().String("game-version", "", "only files for this game version")
	filesCmd.Flags().Bool("refresh", false, "drop cached catalog responses first")
}

func writeFiles(w io.Writer, page *catalog.FilesPage, installed map[int]bool) error {
	if page == nil || len(page.Data) == 0 {
		_, err := fmt.Fprintln(w, "No files found.")
		return err
	}
	fmt.Fprintln(w, ui.Header.Render(fmt.Sprintf("%-10s %-40s %-8s %-20s", "File", "Filename", "Type", "Game versions")))
	for _, f := range page.Data {
		mark := " "
		if installed[f.ID] {
			mark = ui.Colorize("✓", ui.ColorSuccess)
		}
		fmt.Fprintf(w, "%s%-10d %-40s %-8s %s\n",
			mark,
			f.ID,
			truncate(f.FileName, 40),
			f.ReleaseTypeName(),
			truncate(strings.Join(f.GameVersions, ", "), 30))
	}
	if p := page.Pagination; p != nil && p.TotalCount > p.Index+p.ResultCount {
		fmt.Fprintln(w, ui.Muted.Render(fmt.Sprintf("Showing %d-%d of %d, use --index %d for more",
			p.Index+1, p.Index+p.ResultCount, p.TotalCount, p.Index+p.ResultCount)))
	}
	return nil
}
