package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/untoldecay/LoreVault/internal/types"
)

var (
	statusOKStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusBadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusHeadStyle = lipgloss.NewStyle().Bold(true)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()

		var healthz map[string]string
		if err := client.get("/healthz", &healthz); err != nil {
			if jsonOutput {
				outputJSON(map[string]any{"reachable": false, "error": err.Error()})
				return nil
			}
			fmt.Printf("%s %s\n", statusBadStyle.Render("✗"), err)
			return nil
		}

		var me map[string]string
		var health types.IndexHealth
		meErr := client.get("/api/me", &me)
		healthErr := client.get("/api/index/health", &health)

		if jsonOutput {
			out := map[string]any{"reachable": true, "server": client.base}
			if meErr == nil {
				out["tenant"] = me["tenant"]
			}
			if healthErr == nil {
				out["index"] = health
			}
			outputJSON(out)
			return nil
		}

		fmt.Printf("%s %s\n", statusOKStyle.Render("✓"), statusHeadStyle.Render(client.base))
		if meErr != nil {
			fmt.Printf("  auth: %s\n", statusBadStyle.Render(meErr.Error()))
			return nil
		}
		fmt.Printf("  tenant: %s\n", me["tenant"])
		if healthErr != nil {
			fmt.Printf("  index: %s\n", statusBadStyle.Render(healthErr.Error()))
			return nil
		}
		fmt.Printf("  notes indexed: %d\n", health.NoteCount)
		if health.LastFullRebuild != nil {
			fmt.Printf("  last full rebuild: %s\n", health.LastFullRebuild.Format("2006-01-02 15:04"))
		}
		if health.LastIncrementalUpdate != nil {
			fmt.Printf("  last update: %s\n", health.LastIncrementalUpdate.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
