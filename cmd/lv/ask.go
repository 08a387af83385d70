package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the oracle a question about the vault",
	Long: `Send a question to the oracle agent. The oracle searches and
reads the vault before answering, and cites the notes it used.

Examples:
  lv ask "what did we decide about token rotation?"
  lv ask "summarise the deploy runbook" --project infra`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		model, _ := cmd.Flags().GetString("model")

		client := newAPIClient()
		var result struct {
			Answer  string `json:"answer"`
			Sources []struct {
				Path       string `json:"path"`
				SourceType string `json:"source_type"`
			} `json:"sources"`
			TokensUsed int    `json:"tokens_used"`
			ModelUsed  string `json:"model_used"`
		}
		err := client.post("/api/oracle", map[string]any{
			"question": strings.Join(args, " "),
			"project":  project,
			"model":    model,
		}, &result)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(result)
			return nil
		}

		answer := result.Answer
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if rendered, err := glamour.Render(answer, "auto"); err == nil {
				answer = rendered
			}
		}
		fmt.Print(answer)
		if !strings.HasSuffix(answer, "\n") {
			fmt.Println()
		}

		if len(result.Sources) > 0 {
			dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
			fmt.Println(dim.Render("Sources:"))
			for _, src := range result.Sources {
				fmt.Println(dim.Render(fmt.Sprintf("  %s (%s)", src.Path, src.SourceType)))
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("project", "", "Project context for the conversation tree")
	askCmd.Flags().String("model", "", "Override the server's oracle model")
	rootCmd.AddCommand(askCmd)
}
