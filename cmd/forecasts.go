package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/forecast-cli/internal/report"
	"github.com/sells-group/forecast-cli/internal/store"
)

var forecastsCmd = &cobra.Command{
	Use:   "forecasts",
	Short: "Inspect stored forecasts",
	Long:  "Commands for listing, viewing, summarizing and deleting forecasts saved with simulate --save or the HTTP API.",
}

// -- forecasts list --

var forecastsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored forecasts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := filterFromFlags(cmd)
		list, err := st.ListForecasts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "forecasts list")
		}

		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No forecasts found.")
			return nil
		}

		formatForecastsList(os.Stdout, list)
		return nil
	},
}

// -- forecasts show --

var forecastsShowCmd = &cobra.Command{
	Use:   "show <forecast-id>",
	Short: "Show a stored forecast",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.GetForecast(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "forecasts show")
		}

		if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
			if err := report.SaveXLSX(path, res); err != nil {
				return err
			}
		}

		format, _ := cmd.Flags().GetString("format")
		return writeResult(os.Stdout, res, format)
	},
}

// -- forecasts stats --

var forecastsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored forecasts by industry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := filterFromFlags(cmd)
		filter.Limit = 10000 // high limit for stats

		list, err := st.ListForecasts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "forecasts stats")
		}

		formatForecastStats(os.Stdout, computeForecastStats(list))
		return nil
	},
}

// -- forecasts delete --

var forecastsDeleteCmd = &cobra.Command{
	Use:   "delete <forecast-id>",
	Short: "Delete a stored forecast",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteForecast(ctx, args[0]); err != nil {
			return eris.Wrap(err, "forecasts delete")
		}
		fmt.Fprintf(os.Stderr, "Deleted %s\n", args[0])
		return nil
	},
}

func filterFromFlags(cmd *cobra.Command) store.ForecastFilter {
	var f store.ForecastFilter
	f.Industry, _ = cmd.Flags().GetString("industry")
	f.Size, _ = cmd.Flags().GetString("size")
	f.MarketCondition, _ = cmd.Flags().GetString("market")
	f.Scenario, _ = cmd.Flags().GetString("scenario")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	f.Offset, _ = cmd.Flags().GetInt("offset")
	return f
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("industry", "", "filter by industry")
	cmd.Flags().String("size", "", "filter by company size")
	cmd.Flags().String("market", "", "filter by market condition")
	cmd.Flags().String("scenario", "", "filter by scenario")
}

func init() {
	addFilterFlags(forecastsListCmd)
	forecastsListCmd.Flags().Int("limit", 50, "max number of forecasts to display")
	forecastsListCmd.Flags().Int("offset", 0, "number of forecasts to skip")

	forecastsShowCmd.Flags().String("format", formatJSON, "output format: json or report")
	forecastsShowCmd.Flags().String("xlsx", "", "also write the forecast workbook to this path")

	addFilterFlags(forecastsStatsCmd)

	forecastsCmd.AddCommand(forecastsListCmd)
	forecastsCmd.AddCommand(forecastsShowCmd)
	forecastsCmd.AddCommand(forecastsStatsCmd)
	forecastsCmd.AddCommand(forecastsDeleteCmd)
	rootCmd.AddCommand(forecastsCmd)
}

// industryStats holds aggregate statistics for one industry.
type industryStats struct {
	Industry          string
	Forecasts         int
	MeanBankruptcy    float64
	MeanHighGrowth    float64
	MeanProfitability float64
}

// computeForecastStats averages the headline probabilities per industry,
// sorted by industry name.
func computeForecastStats(list []store.Summary) []industryStats {
	byIndustry := make(map[string]*industryStats)
	for _, s := range list {
		st, ok := byIndustry[s.Industry]
		if !ok {
			st = &industryStats{Industry: s.Industry}
			byIndustry[s.Industry] = st
		}
		st.Forecasts++
		st.MeanBankruptcy += s.Bankruptcy
		st.MeanHighGrowth += s.HighGrowth
		st.MeanProfitability += s.Profitability
	}

	out := make([]industryStats, 0, len(byIndustry))
	for _, st := range byIndustry {
		n := float64(st.Forecasts)
		st.MeanBankruptcy /= n
		st.MeanHighGrowth /= n
		st.MeanProfitability /= n
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Industry < out[j].Industry })
	return out
}

// formatForecastsList writes a tabular list of forecasts to w.
func formatForecastsList(out io.Writer, list []store.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINDUSTRY\tSIZE\tMARKET\tSCENARIO\tRUNS\tQTRS\tBANKRUPT\tPROFITABLE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t------\t--------\t----\t----\t--------\t----------\t-------")

	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			truncateID(s.ID),
			s.Industry,
			s.Size,
			s.MarketCondition,
			s.Scenario,
			s.Iterations,
			s.Periods,
			report.FormatPercent(s.Bankruptcy),
			report.FormatPercent(s.Profitability),
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatForecastStats writes per-industry stats to w.
func formatForecastStats(out io.Writer, stats []industryStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, s := range stats {
		total += s.Forecasts
	}
	_, _ = fmt.Fprintf(w, "Total forecasts:\t%d\n", total)
	if total == 0 {
		_ = w.Flush()
		return
	}

	_, _ = fmt.Fprintln(w, "INDUSTRY\tFORECASTS\tBANKRUPTCY\tHIGH GROWTH\tPROFITABILITY")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			s.Industry,
			s.Forecasts,
			report.FormatPercent(s.MeanBankruptcy),
			report.FormatPercent(s.MeanHighGrowth),
			report.FormatPercent(s.MeanProfitability),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
