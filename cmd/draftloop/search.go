package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Query the reference index",
	Long: `Search the reference index and print the best-matching chunks.

Useful for checking what the writer and reviewer will actually see for
a given idea before spending generator tokens on a session.`,
	Run: func(cmd *cobra.Command, args []string) {
		query, _ := cmd.Flags().GetString("query")
		refDir, _ := cmd.Flags().GetString("references")
		storePath, _ := cmd.Flags().GetString("store")
		top, _ := cmd.Flags().GetInt("top")

		if strings.TrimSpace(query) == "" {
			fmt.Fprintf(os.Stderr, "Error: --query must not be empty\n")
			os.Exit(2)
		}

		store, err := openStore(refDir, storePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		defer store.Close()

		ctx := context.Background()
		indexed, err := store.IsIndexed(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !indexed {
			fmt.Fprintf(os.Stderr, "Error: index is empty, run 'draftloop index --references DIR' first\n")
			os.Exit(1)
		}

		snippets, err := store.Retrieve(ctx, query, top)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(snippets) == 0 {
			fmt.Println("No matches.")
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		for i, sn := range snippets {
			fmt.Printf("%s %s (chunk %d, relevance %.2f)\n",
				cyan(fmt.Sprintf("%d.", i+1)), sn.SourceID, sn.ChunkIndex, sn.Relevance)
			fmt.Println(indentPreview(sn.Text, 240))
		}
	},
}

func init() {
	searchCmd.Flags().StringP("query", "q", "", "Search query (required)")
	searchCmd.Flags().StringP("references", "r", "", "Folder whose index to search")
	searchCmd.Flags().String("store", "", "Index database file (default: .refstore.db inside the folder)")
	searchCmd.Flags().Int("top", 5, "How many chunks to return")
	searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)
}

// indentPreview trims a chunk to at most max bytes and indents every
// line for display under its result header.
func indentPreview(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) > max {
		text = text[:max] + "..."
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "   " + line
	}
	return strings.Join(lines, "\n")
}
