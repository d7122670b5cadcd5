package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/soc2guard/internal/soc2"
)

var controlsCmd = &cobra.Command{
	Use:   "controls",
	Short: "List the controls the scanner checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		controls := soc2.Controls()

		if format == "json" {
			data, _ := json.MarshalIndent(controls, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, c := range controls {
			fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Name)
		}
		w.Flush()
		return nil
	},
}

var controlsShowCmd = &cobra.Command{
	Use:   "show <control-id>",
	Short: "Show one control's requirement text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := soc2.Lookup(soc2.ControlID(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n\n%s\n", c.ID, c.Name, c.Requirement)
		return nil
	},
}

func init() {
	controlsCmd.Flags().String("format", "table", "output format: table or json")
	controlsCmd.AddCommand(controlsShowCmd)
}
