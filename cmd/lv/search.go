package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/untoldecay/LoreVault/internal/types"
)

var (
	searchTitleStyle = lipgloss.NewStyle().Bold(true)
	searchPathStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	searchMetaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across the vault",
	Long: `Search note titles and bodies. Results are ranked by relevance
with a bonus for recently edited notes.

Examples:
  lv search "token rotation"
  lv search deploy --limit 5
  lv search meeting --since "last tuesday"
  lv search retro --since yesterday --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		var since time.Time
		if sinceText, _ := cmd.Flags().GetString("since"); sinceText != "" {
			parsed, err := parseNaturalTime(sinceText)
			if err != nil {
				return err
			}
			since = parsed
		}

		client := newAPIClient()
		var resp struct {
			Results []types.SearchResult `json:"results"`
			Count   int                  `json:"count"`
		}
		path := fmt.Sprintf("/api/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		if err := client.get(path, &resp); err != nil {
			return err
		}

		results := resp.Results
		if !since.IsZero() {
			filtered := results[:0]
			for _, r := range results {
				if !r.Updated.Before(since) {
					filtered = append(filtered, r)
				}
			}
			results = filtered
		}

		if jsonOutput {
			outputJSON(results)
			return nil
		}
		if len(results) == 0 {
			fmt.Printf("No notes match '%s'\n", query)
			return nil
		}
		for _, r := range results {
			fmt.Printf("%s  %s\n", searchTitleStyle.Render(r.Title), searchPathStyle.Render(r.Path))
			if r.Snippet != "" {
				fmt.Printf("  %s\n", renderSnippet(r.Snippet))
			}
			fmt.Printf("  %s\n", searchMetaStyle.Render(
				fmt.Sprintf("score %.2f, updated %s", r.Score, r.Updated.Format("2006-01-02"))))
		}
		return nil
	},
}

// renderSnippet turns the index's <mark> delimiters into bold
// terminal text.
func renderSnippet(snippet string) string {
	bold := lipgloss.NewStyle().Bold(true).Underline(true)
	var out strings.Builder
	rest := snippet
	for {
		before, after, found := strings.Cut(rest, "<mark>")
		out.WriteString(before)
		if !found {
			break
		}
		marked, tail, _ := strings.Cut(after, "</mark>")
		out.WriteString(bold.Render(marked))
		rest = tail
	}
	return out.String()
}

// parseNaturalTime accepts "yesterday", "last tuesday", "3 days ago"
// and plain dates.
func parseNaturalTime(text string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(text, time.Now())
	if err != nil || result == nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q", text)
	}
	return result.Time, nil
}

func init() {
	searchCmd.Flags().IntP("limit", "n", 20, "Maximum results")
	searchCmd.Flags().String("since", "", "Only notes updated since (natural language or YYYY-MM-DD)")
	rootCmd.AddCommand(searchCmd)
}
