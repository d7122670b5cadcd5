package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/soc2guard/internal/config"
	"github.com/lucasnoah/soc2guard/internal/cost"
	"github.com/lucasnoah/soc2guard/internal/llm"
	"github.com/lucasnoah/soc2guard/internal/runner"
	"github.com/lucasnoah/soc2guard/internal/soc2"
	"github.com/lucasnoah/soc2guard/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a source tree for compliance violations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		cfg, err := loadScanConfig(cmd)
		if err != nil {
			return err
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintln(cmd.ErrOrStderr(), "config:", e.Error())
			}
			return fmt.Errorf("invalid configuration")
		}

		var st *store.Store
		noDB, _ := cmd.Flags().GetBool("no-db")
		if !noDB {
			st, err = store.Open(cfg.Scan.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(); err != nil {
				return err
			}
		}

		var client llm.Client
		if cfg.Scan.Mode != soc2.ModeRegexOnly {
			apiKey := os.Getenv(cfg.Scan.APIKeyEnv)
			if apiKey == "" {
				return fmt.Errorf("mode %s needs an API key in $%s (or use --mode regex_only)",
					cfg.Scan.Mode, cfg.Scan.APIKeyEnv)
			}
			client = llm.NewAnthropicClient(apiKey)
		}

		onLimit, _ := cmd.Flags().GetString("on-limit")
		decide, err := limitDecision(cmd, onLimit)
		if err != nil {
			return err
		}

		r := runner.New(cfg, st, client, decide, cmd.ErrOrStderr())
		result, err := r.Run(cmd.Context(), root)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		printScanResult(cmd, result)
		return nil
	},
}

// loadScanConfig loads the config file (or defaults) and applies flag
// overrides on top.
func loadScanConfig(cmd *cobra.Command) (*config.ScanConfig, error) {
	var cfg *config.ScanConfig
	var err error
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Scan.Mode = soc2.ScanMode(mode)
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Scan.Model = model
	}
	if cmd.Flags().Changed("cost-limit") {
		cfg.Scan.CostLimitUSD, _ = cmd.Flags().GetFloat64("cost-limit")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Scan.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.Scan.DatabasePath = dbPath
	}
	return cfg, nil
}

// limitDecision maps the --on-limit flag to a decision callback. "ask"
// prompts on stderr and reads y/n from stdin; workers are paused while the
// prompt is open.
func limitDecision(cmd *cobra.Command, onLimit string) (runner.DecisionFunc, error) {
	switch onLimit {
	case "stop":
		return func(cost.LimitNotice) bool { return false }, nil
	case "continue":
		return func(cost.LimitNotice) bool { return true }, nil
	case "ask":
		return func(n cost.LimitNotice) bool {
			fmt.Fprintf(cmd.ErrOrStderr(),
				"cost $%.2f has reached the $%.2f ceiling (%d/%d files analyzed).\nraise the ceiling and continue? [y/N] ",
				n.CurrentCostUSD, n.CostLimitUSD, n.FilesAnalyzed, n.TotalFiles)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil {
				return false
			}
			answer := strings.ToLower(strings.TrimSpace(line))
			return answer == "y" || answer == "yes"
		}, nil
	default:
		return nil, fmt.Errorf("invalid --on-limit %q (stop, continue, ask)", onLimit)
	}
}

func printScanResult(cmd *cobra.Command, result *runner.ScanResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scan %s (%s)\n", result.ScanID, result.Mode)
	fmt.Fprintf(out, "files: %d total, %d scanned, %d failed\n",
		result.FilesTotal, result.FilesScanned, result.FilesFailed)
	fmt.Fprintf(out, "cost: $%.4f (%d input / %d output tokens)\n\n",
		result.Cost.TotalCostUSD, result.Cost.InputTokens, result.Cost.OutputTokens)

	if len(result.Violations) == 0 {
		fmt.Fprintln(out, "No violations found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTROL\tSEVERITY\tMETHOD\tFILE\tLINE\tDESCRIPTION")
	for _, v := range result.Violations {
		desc := v.Description
		if len(desc) > 60 {
			desc = desc[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			v.ControlID, v.Severity, v.DetectionMethod, v.FilePath, v.LineNumber, desc)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d violation(s), %d fix(es) proposed (all require review)\n",
		len(result.Violations), len(result.Fixes))
}

func init() {
	scanCmd.Flags().String("config", "", "path to a scan config file")
	scanCmd.Flags().String("mode", "", "scan mode: regex_only, smart, analyze_all")
	scanCmd.Flags().String("model", "", "model for semantic analysis and fix synthesis")
	scanCmd.Flags().Float64("cost-limit", 0, "per-scan cost ceiling in USD (0 = config default)")
	scanCmd.Flags().Int("concurrency", 0, "worker pool size (0 = config default)")
	scanCmd.Flags().String("db", "", "path to the results database")
	scanCmd.Flags().Bool("no-db", false, "skip result persistence")
	scanCmd.Flags().String("on-limit", "ask", "what to do at the cost ceiling: stop, continue, ask")
	scanCmd.Flags().String("format", "table", "output format: table or json")
}
