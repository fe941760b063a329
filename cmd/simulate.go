package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/profile"
	"github.com/sells-group/forecast-cli/internal/report"
)

// Output formats for forecast results.
const (
	formatJSON   = "json"
	formatReport = "report"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a Monte Carlo forecast",
	Long:  "Generates a company profile (or loads one with --profile-file), simulates the requested number of trajectories and prints the aggregated forecast.",
	Example: `  forecast-cli simulate --industry SaaS --size startup --market normal
  forecast-cli simulate --industry Retail --size growth --market recession --scenario pessimistic --iterations 5000 --seed 42 --format report
  forecast-cli simulate --profile-file company.yaml --periods 12 --xlsx forecast.xlsx --save`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		save, _ := cmd.Flags().GetBool("save")
		mode := "simulate"
		if save {
			mode = "store"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format != formatJSON && format != formatReport {
			return eris.Errorf("simulate: unknown format %q (want json or report)", format)
		}

		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}

		svc := newService(cfg)
		var res *forecast.Result
		if path, _ := cmd.Flags().GetString("profile-file"); path != "" {
			p, loadErr := profile.LoadFile(path)
			if loadErr != nil {
				return loadErr
			}
			res, err = svc.RunProfile(ctx, p, req)
		} else {
			res, err = svc.Run(ctx, req)
		}
		if err != nil {
			if res == nil {
				return err
			}
			// Interrupted: print what finished, but do not save it.
			zap.L().Warn("simulate: writing partial forecast",
				zap.Int("runs", res.Aggregate.Runs),
				zap.Error(err),
			)
			if werr := writeResult(os.Stdout, res, format); werr != nil {
				return werr
			}
			return err
		}

		if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
			if err := report.SaveXLSX(path, res); err != nil {
				return err
			}
			zap.L().Info("spreadsheet written", zap.String("path", path))
		}

		if save {
			st, err := initStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.SaveForecast(ctx, res); err != nil {
				return eris.Wrap(err, "simulate: save")
			}
			zap.L().Info("forecast saved", zap.String("id", res.ID))
		}

		return writeResult(os.Stdout, res, format)
	},
}

// requestFromFlags builds a forecast request from the category and
// batch flags shared by simulate and profile.
func requestFromFlags(cmd *cobra.Command) (forecast.Request, error) {
	var req forecast.Request
	req.Industry, _ = cmd.Flags().GetString("industry")
	req.Size, _ = cmd.Flags().GetString("size")
	req.MarketCondition, _ = cmd.Flags().GetString("market")
	req.Scenario, _ = cmd.Flags().GetString("scenario")

	if cmd.Flags().Changed("iterations") {
		n, _ := cmd.Flags().GetInt("iterations")
		req.Iterations = &n
	}
	if cmd.Flags().Changed("periods") {
		n, _ := cmd.Flags().GetInt("periods")
		req.Periods = &n
	}
	if cmd.Flags().Lookup("percentiles") != nil {
		req.Percentiles, _ = cmd.Flags().GetFloat64Slice("percentiles")
	}

	if cmd.Flags().Changed("seed") {
		seed, err := cmd.Flags().GetUint64("seed")
		if err != nil {
			return req, eris.Wrap(err, "parse --seed")
		}
		req.Seed = &seed
	}
	return req, nil
}

// writeResult renders a forecast as indented JSON or as the markdown report.
func writeResult(w io.Writer, res *forecast.Result, format string) error {
	switch format {
	case formatReport:
		return report.WriteMarkdown(w, res)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode result")
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

// addCategoryFlags registers the profile category flags.
func addCategoryFlags(cmd *cobra.Command) {
	cmd.Flags().String("industry", "", "industry (SaaS, Retail, Manufacturing, Biotech)")
	cmd.Flags().String("size", "", "company size (startup, growth, established)")
	cmd.Flags().String("market", "", "market condition (recession, normal, boom)")
	cmd.Flags().String("scenario", "neutral", "scenario adjustment (optimistic, neutral, pessimistic)")
	cmd.Flags().Uint64("seed", 0, "random seed (default derived from the clock)")
}

func init() {
	addCategoryFlags(simulateCmd)
	simulateCmd.Flags().Int("iterations", 0, "number of simulated runs (default from config)")
	simulateCmd.Flags().Int("periods", 0, "number of quarters to simulate (default from config)")
	simulateCmd.Flags().Float64Slice("percentiles", nil, "percentile bands to report (default from config)")
	simulateCmd.Flags().String("profile-file", "", "YAML company profile to simulate instead of generating one")
	simulateCmd.Flags().String("format", formatJSON, "output format: json or report")
	simulateCmd.Flags().String("xlsx", "", "also write the forecast workbook to this path")
	simulateCmd.Flags().Bool("save", false, "persist the forecast to the configured store")
	rootCmd.AddCommand(simulateCmd)
}
