package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/forecast"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "forecast-cli",
	Short: "Monte Carlo business sustainability forecaster",
	Long:  "Generates company profiles by industry, size and market condition, simulates thousands of quarterly trajectories and reports percentile bands, KPIs and risk probabilities.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// newService builds the forecast service from the simulation config.
func newService(c *config.Config) *forecast.Service {
	return forecast.NewService(forecast.Settings{
		Iterations:    c.Simulation.DefaultIterations,
		Periods:       c.Simulation.DefaultPeriods,
		MaxIterations: c.Simulation.MaxIterations,
		Workers:       c.Simulation.Workers,
		Percentiles:   c.Simulation.Percentiles,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
