package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"draftloop/internal/refstore"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or rebuild the reference index for a folder",
	Long: `Index the markdown and text files of a reference folder.

The index is a SQLite database stored inside the folder (or at --store)
holding overlapping word-window chunks. run and batch build a missing
index automatically; use this command to refresh one after the folder
contents change.`,
	Run: func(cmd *cobra.Command, args []string) {
		refDir, _ := cmd.Flags().GetString("references")
		storePath, _ := cmd.Flags().GetString("store")

		store, err := openStore(refDir, storePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		defer store.Close()

		start := time.Now()
		files, chunks, err := store.Index(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Indexed %d files into %d chunks in %s\n",
			green("✓"), files, chunks, time.Since(start).Round(time.Millisecond))
	},
}

func init() {
	indexCmd.Flags().StringP("references", "r", "", "Folder of reference material to index (required)")
	indexCmd.Flags().String("store", "", "Index database file (default: .refstore.db inside the folder)")
	indexCmd.MarkFlagRequired("references")
	rootCmd.AddCommand(indexCmd)
}

// openStore opens the reference index for a folder, honoring an explicit
// database location when given.
func openStore(refDir, storePath string) (*refstore.Store, error) {
	if storePath != "" {
		return refstore.OpenAt(refDir, storePath)
	}
	if refDir == "" {
		return nil, fmt.Errorf("either --references or --store is required")
	}
	return refstore.Open(refDir)
}
