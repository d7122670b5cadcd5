package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/soc2guard/internal/analytics"
	"github.com/lucasnoah/soc2guard/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report [scan-id]",
	Short: "Report on a recorded scan (defaults to the latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		var rec *store.ScanRecord
		if len(args) == 1 {
			rec, err = st.GetScan(args[0])
		} else {
			rec, err = st.LatestScan()
		}
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no recorded scans found")
		}

		breakdown, err := analytics.QueryControlBreakdown(st, rec.ID)
		if err != nil {
			return err
		}
		split, err := analytics.QueryMethodSplit(st, rec.ID)
		if err != nil {
			return err
		}
		hotspots, err := analytics.QueryFileHotspots(st, rec.ID, 10)
		if err != nil {
			return err
		}
		scanCost, err := analytics.QueryScanCost(st, rec.ID)
		if err != nil {
			return err
		}
		coverage, err := analytics.QueryFixCoverage(st, rec.ID)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			report := map[string]interface{}{
				"scan":              rec,
				"control_breakdown": breakdown,
				"method_split":      split,
				"file_hotspots":     hotspots,
				"cost":              scanCost,
				"fix_coverage":      coverage,
			}
			data, _ := json.MarshalIndent(report, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "scan %s (%s, %s)\n", rec.ID, rec.Mode, rec.Model)
		fmt.Fprintf(out, "files: %d total, %d scanned, %d failed\n",
			rec.FilesTotal, rec.FilesScanned, rec.FilesFailed)
		fmt.Fprintf(out, "cost: $%.4f ($%.4f per file)\n", scanCost.CostUSD, scanCost.CostPerFile)
		fmt.Fprintf(out, "detection: %d pattern, %d semantic, %d hybrid\n",
			split.Pattern, split.Semantic, split.Hybrid)
		fmt.Fprintf(out, "fixes: %d for %d violation(s), %.0f%% coverage\n\n",
			coverage.Fixes, coverage.Violations, coverage.Pct)

		if len(breakdown) == 0 {
			fmt.Fprintln(out, "No violations recorded.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONTROL\tTOTAL\tCRITICAL\tHIGH\tMEDIUM\tLOW")
		for _, b := range breakdown {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
				b.ControlID, b.Total, b.Critical, b.High, b.Medium, b.Low)
		}
		w.Flush()

		if len(hotspots) > 0 {
			fmt.Fprintln(out, "\ntop files:")
			for _, h := range hotspots {
				fmt.Fprintf(out, "  %3d  %s\n", h.Count, h.FilePath)
			}
		}
		return nil
	},
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		var err error
		path, err = store.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func init() {
	reportCmd.Flags().String("db", "", "path to the results database")
	reportCmd.Flags().String("format", "table", "output format: table or json")
}
