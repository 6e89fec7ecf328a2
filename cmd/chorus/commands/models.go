package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		selected := make(map[string]bool)
		for _, id := range cfg.Defaults.Models {
			selected[id] = true
		}

		type row struct {
			ID        string `json:"id"`
			Label     string `json:"label"`
			Streaming bool   `json:"streaming"`
			Selected  bool   `json:"selected"`
		}
		rows := make([]row, 0, len(cfg.Catalog()))
		for _, b := range cfg.Catalog() {
			rows = append(rows, row{
				ID:        b.ID,
				Label:     b.Label,
				Streaming: b.Streaming,
				Selected:  len(selected) == 0 || selected[b.ID],
			})
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tSTREAMING\tSELECTED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%v\t%v\n", r.ID, r.Label, r.Streaming, r.Selected)
		}
		return w.Flush()
	},
}
