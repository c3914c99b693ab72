package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyphen/toggle-openfeature-go/internal/endpoint"
)

type urlList struct {
	OrganizationID string   `json:"organizationId,omitempty" yaml:"organizationId,omitempty"`
	Evaluate       []string `json:"evaluate" yaml:"evaluate"`
	Telemetry      []string `json:"telemetry" yaml:"telemetry"`
}

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Show the service URLs the provider would call",
	Long: `Print the evaluate and telemetry URLs derived from the public key, or from
--custom-urls when set, in the order they are tried.

Example:
  HYPHEN_PUBLIC_KEY=public_... toggle urls`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if cfg.PublicKey == "" && len(cfg.CustomURLs) == 0 {
			return fmt.Errorf("configuration error: a public key or custom URLs are required")
		}

		key := endpoint.PublicKey(cfg.PublicKey)
		resolver := endpoint.NewResolver(key, cfg.CustomURLs, newLogger())
		orgID, _ := key.OrgID()
		list := urlList{
			OrganizationID: orgID,
			Evaluate:       resolver.EvaluateURLs(),
			Telemetry:      resolver.TelemetryURLs(),
		}

		return printTo(os.Stdout, list, OutputFormat(format), func(w io.Writer) error {
			if list.OrganizationID != "" {
				fmt.Fprintf(w, "organization: %s\n", list.OrganizationID)
			}
			fmt.Fprintln(w, "evaluate:")
			for _, u := range list.Evaluate {
				fmt.Fprintf(w, "  %s\n", u)
			}
			fmt.Fprintln(w, "telemetry:")
			for _, u := range list.Telemetry {
				fmt.Fprintf(w, "  %s\n", u)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(urlsCmd)
}
