package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "soc2guard",
	Short: "soc2guard: SOC 2 compliance scanning for source trees",
	Long: `soc2guard scans a repository for SOC 2 compliance violations and proposes
fixes. Pattern detectors cover the control registry deterministically; smart
and analyze_all modes add model-backed semantic analysis under a per-scan
cost ceiling.

Scan results are stored in ~/.soc2guard/ (SQLite) so reports can be generated
after the fact.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(controlsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(dbCmd)
}
