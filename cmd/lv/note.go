package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/untoldecay/LoreVault/internal/types"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Read and create vault notes",
}

var noteShowCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Render a note in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		var note types.Note
		if err := client.get("/api/notes/"+escapeNotePath(args[0]), &note); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(note)
			return nil
		}

		raw, _ := cmd.Flags().GetBool("raw")
		if raw || !term.IsTerminal(int(os.Stdout.Fd())) || termenv.EnvNoColor() {
			fmt.Printf("# %s\n\n%s\n", note.Title, note.Body)
			return nil
		}

		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || width <= 0 || width > 100 {
			width = 100
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return err
		}
		rendered, err := renderer.Render("# " + note.Title + "\n\n" + note.Body)
		if err != nil {
			return err
		}
		fmt.Print(rendered)
		fmt.Printf("  %s, v%d, updated %s\n", note.Path, note.Version, note.Updated.Format("2006-01-02 15:04"))
		return nil
	},
}

var noteCreateCmd = &cobra.Command{
	Use:   "create [path]",
	Short: "Create a note",
	Long: `Create a new note. With flags the note is written directly;
without them an interactive form collects path, body and tags.

Examples:
  lv note create docs/decisions/adr-007.md --body "# ADR 7"
  lv note create    # interactive`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		body, _ := cmd.Flags().GetString("body")
		tagsFlag, _ := cmd.Flags().GetStringSlice("tag")

		if path == "" || body == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("path and --body are required when not running interactively")
			}
			var tagLine string
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Path").Description("e.g. docs/ideas.md").Value(&path),
				huh.NewText().Title("Body").Description("Markdown content").Value(&body),
				huh.NewInput().Title("Tags").Description("comma separated, optional").Value(&tagLine),
			))
			if err := form.Run(); err != nil {
				return err
			}
			for _, tag := range strings.Split(tagLine, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					tagsFlag = append(tagsFlag, tag)
				}
			}
		}

		payload := map[string]any{"path": path, "body": body}
		if len(tagsFlag) > 0 {
			payload["metadata"] = map[string]any{"tags": tagsFlag}
		}

		client := newAPIClient()
		var note types.Note
		if err := client.post("/api/notes", payload, &note); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(note)
			return nil
		}
		fmt.Printf("Created %s (v%d)\n", note.Path, note.Version)
		return nil
	},
}

// escapeNotePath keeps slashes as segment separators while escaping
// everything else.
func escapeNotePath(notePath string) string {
	segments := strings.Split(notePath, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func init() {
	noteShowCmd.Flags().Bool("raw", false, "Print plain Markdown without styling")
	noteCreateCmd.Flags().String("body", "", "Note body (Markdown)")
	noteCreateCmd.Flags().StringSlice("tag", nil, "Tag to attach (repeatable)")
	noteCmd.AddCommand(noteShowCmd)
	noteCmd.AddCommand(noteCreateCmd)
	rootCmd.AddCommand(noteCmd)
}
