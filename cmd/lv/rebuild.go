package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the search index from the vault files",
	Long: `Drop and rebuild the tenant's index rows from the notes on disk.

Use after external bulk edits, or whenever the index and vault have
drifted (a failed write, a restored backup). Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		var result map[string]int
		if err := client.post("/api/index/rebuild", nil, &result); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(result)
			return nil
		}
		fmt.Printf("Reindexed %d notes\n", result["notes_indexed"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
