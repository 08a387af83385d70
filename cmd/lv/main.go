package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoreVault/internal/config"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "lv",
	Short: "LoreVault - a multi-tenant knowledge vault with an agent on top",
	Long: `LoreVault serves a folder of Markdown notes as a searchable,
multi-tenant knowledge vault: full-text search with wikilink
resolution, an HTTP and MCP API, and an LLM "oracle" that answers
questions from the vault's contents.

Run a server with 'lv serve', then talk to it with the client
commands (search, note, status) or point an MCP client at /mcp.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		// Flags beat config file and environment.
		for flagName, key := range map[string]string{
			"server": "server",
			"token":  "token",
			"base":   "base",
		} {
			if cmd.Flags().Changed(flagName) {
				value, _ := cmd.Flags().GetString(flagName)
				config.Set(key, value)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("server", "", "Server URL (default http://127.0.0.1:8471)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for the server")
	rootCmd.PersistentFlags().String("base", "", "Vault base directory (serve only)")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
