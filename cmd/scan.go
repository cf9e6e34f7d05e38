package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mcwizard/logger"
	"mcwizard/notify"
	"mcwizard/scanner"
	"mcwizard/ui"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <archive>",
	Short: "Inspect a mod archive",
	Long: `Lists the namespaces, items and blocks of a mod archive and extracts
texture previews into the preview cache.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		noTUI, _ := cmd.Flags().GetBool("no-tui")
		switch format {
		case "text", "json", "yaml":
		default:
			return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
		}

		app, err := bootstrap(configDir)
		if err != nil {
			return err
		}
		defer app.Close()

		var out scanner.Outcome
		if noTUI || format != "text" {
			sink := notify.SinkFunc[scanner.Progress](func(p scanner.Progress) error {
				_, err := fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", p.Percent, p.Message)
				return err
			})
			out = app.Scanner.Scan(cmd.Context(), args[0], sink)
		} else {
			out, err = runScanTUI(cmd.Context(), app.Scanner, args[0])
			if err != nil {
				return err
			}
		}

		if err := writeOutcome(cmd.OutOrStdout(), out, format); err != nil {
			return err
		}
		if !out.OK {
			logger.Log.Warnw("Scan failed", zap.String("archive", args[0]), zap.String("error", out.Error))
			return fmt.Errorf("scan failed: %s", out.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("format", "f", "text", "output format: text, json or yaml")
	scanCmd.Flags().Bool("no-tui", false, "print progress lines instead of the interactive view")
}

// writeOutcome renders out in the requested format.
func writeOutcome(w io.Writer, out scanner.Outcome, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}

	if !out.OK || out.Data == nil {
		_, err := fmt.Fprintln(w, ui.Colorize("Scan failed: "+out.Error, ui.ColorError))
		return err
	}
	_, err := io.WriteString(w, formatResult(out.Data))
	return err
}

func formatResult(r *scanner.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", ui.Title.Render("Archive:"), r.Summary.Path)
	fmt.Fprintf(&b, "%s %s\n", ui.Title.Render("Layout:"), r.Layout)
	fmt.Fprintf(&b, "%s %s\n", ui.Title.Render("Namespaces:"), strings.Join(r.Summary.Namespaces, ", "))
	for _, ns := range r.Summary.Namespaces {
		a := r.Summary.Assets[ns]
		if a == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s: %d item models, %d block models, %d textures, %d blockstates, %d lang keys\n",
			ns, len(a.Models.Item), len(a.Models.Block), len(a.Textures), len(a.Blockstates), len(a.LangKeys))
	}

	writeEntries(&b, "Items", r.Catalog.Items)
	writeEntries(&b, "Blocks", r.Catalog.Blocks)

	cached, inline := 0, 0
	for _, p := range append(append([]scanner.Preview{}, r.Previews.Items...), r.Previews.Assets...) {
		if p.FilePath != "" {
			cached++
		} else {
			inline++
		}
	}
	fmt.Fprintf(&b, "%s %d item, %d asset (%d cached, %d inline)\n",
		ui.Title.Render("Previews:"), len(r.Previews.Items), len(r.Previews.Assets), cached, inline)
	return b.String()
}

func writeEntries(b *strings.Builder, title string, entries []scanner.CatalogEntry) {
	fmt.Fprintf(b, "%s\n", ui.Title.Render(fmt.Sprintf("%s (%d):", title, len(entries))))
	for _, e := range entries {
		fmt.Fprintf(b, "  %-40s %s\n", truncate(e.ID, 40), e.DisplayName)
	}
}
