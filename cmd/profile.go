package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/model"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print a generated company profile",
	Long:  "Draws a company profile for the given industry, size and market condition. The YAML output can be edited and passed back to simulate --profile-file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("simulate"); err != nil {
			return err
		}

		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}

		p, effective, err := newService(cfg).Profile(req)
		if err != nil {
			return err
		}

		if p.CostRatio() > 1 {
			fmt.Fprintf(os.Stderr, "warning: variable, R&D and marketing costs are %.0f%% of revenue\n", p.CostRatio()*100)
		}
		fmt.Fprintf(os.Stderr, "seed: %d\n", *effective.Seed)

		format, _ := cmd.Flags().GetString("format")
		return writeProfile(os.Stdout, p, format)
	},
}

// profileDocument is the YAML layout profile.LoadFile accepts.
type profileDocument struct {
	Profile *model.CompanyProfile `yaml:"profile"`
}

// writeProfile renders a profile as YAML (nested under "profile:") or JSON.
func writeProfile(w io.Writer, p *model.CompanyProfile, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(profileDocument{Profile: p}); err != nil {
			return eris.Wrap(err, "encode profile")
		}
		return eris.Wrap(enc.Close(), "encode profile")
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(p), "encode profile")
	default:
		return eris.Errorf("unknown format %q (want yaml or json)", format)
	}
}

// profileResponse is the body returned by POST /v1/profiles.
type profileResponse struct {
	Request                 forecast.Request      `json:"request"`
	Profile                 *model.CompanyProfile `json:"profile"`
	CostRatioExceedsRevenue bool                  `json:"cost_ratio_exceeds_revenue"`
}

func init() {
	addCategoryFlags(profileCmd)
	profileCmd.Flags().String("format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(profileCmd)
}
