package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token [tenant]",
	Short: "Mint a bearer token from the server",
	Long: `Ask the server for a bearer token.

Outside production the server issues tokens freely; in production you
need an existing token or a one-time state from the identity flow.

Examples:
  lv token                 # token for the default tenant
  lv token acme            # token for tenant "acme"
  lv token --demo          # short-lived token for the shared demo tenant
  lv token acme --ttl 72h`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		demo, _ := cmd.Flags().GetBool("demo")

		var result map[string]any
		if demo {
			if err := client.post("/api/demo/token", nil, &result); err != nil {
				return err
			}
		} else {
			body := map[string]any{}
			if len(args) > 0 {
				body["tenant"] = args[0]
			}
			if ttl, _ := cmd.Flags().GetDuration("ttl"); ttl > 0 {
				body["ttl_seconds"] = int(ttl / time.Second)
			}
			if err := client.post("/api/tokens", body, &result); err != nil {
				return err
			}
		}

		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("%s\n", result["token"])
		fmt.Printf("# tenant %s, expires %s\n", result["tenant"], result["expires_at"])
		return nil
	},
}

func init() {
	tokenCmd.Flags().Bool("demo", false, "Issue a demo-tenant token (no auth required)")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default: server setting)")
	rootCmd.AddCommand(tokenCmd)
}
