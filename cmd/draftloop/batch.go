package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"draftloop/internal/config"
	"draftloop/internal/generator"
	"draftloop/internal/loop"
	"draftloop/internal/refstore"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run drafting sessions for a file of ideas",
	Long: `Run one drafting session per line of the ideas file.

Blank lines and lines starting with # are skipped. Each idea produces a
numbered markdown file plus a metadata JSON next to it in the output
directory. Sessions run concurrently but share one generator, so the
rate limit and concurrency cap hold across the whole batch.

Batch sessions always answer reviewer questions automatically; there is
no terminal prompting. A failed session does not stop the others.`,
	Run: func(cmd *cobra.Command, args []string) {
		ideasPath, _ := cmd.Flags().GetString("ideas")
		outDir, _ := cmd.Flags().GetString("output-dir")
		refDir, _ := cmd.Flags().GetString("references")
		parallel, _ := cmd.Flags().GetInt("parallel")

		ideas, err := readIdeas(ideasPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		if len(ideas) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no ideas found in %s\n", ideasPath)
			os.Exit(2)
		}
		if parallel < 1 {
			parallel = 1
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}

		caller, err := buildCaller(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}

		if err := os.MkdirAll(outDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Set up context with cancellation
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping sessions...")
			cancel()
		}()

		var retriever loop.Retriever
		if refDir != "" {
			store, err := refstore.Open(refDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(2)
			}
			defer store.Close()
			if err := ensureIndexed(ctx, store); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			retriever = store
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s Batch started: %d idea(s), %d parallel, generator %s\n",
			green("✓"), len(ideas), parallel, cyan(caller.Name()))

		// One slot per idea, each goroutine writes only its own, so the
		// group needs no error plumbing of its own.
		outcomes := make([]batchOutcome, len(ideas))
		var g errgroup.Group
		g.SetLimit(parallel)
		for i, idea := range ideas {
			g.Go(func() error {
				outcomes[i] = runBatchSession(ctx, caller, retriever, cfg, idea, i, outDir)
				return nil
			})
		}
		g.Wait()

		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		failed := 0
		fmt.Fprintln(os.Stderr)
		for _, oc := range outcomes {
			switch {
			case oc.err != nil:
				failed++
				fmt.Fprintf(os.Stderr, "%s %s: %v\n", red("✗"), shortIdea(oc.idea), oc.err)
			case oc.state == loop.StateAccepted:
				fmt.Fprintf(os.Stderr, "%s %s: accepted, score %d (%s)\n",
					green("✓"), shortIdea(oc.idea), oc.score, oc.file)
			default:
				fmt.Fprintf(os.Stderr, "%s %s: exhausted, best score %d (%s)\n",
					yellow("⚠"), shortIdea(oc.idea), oc.score, oc.file)
			}
		}
		if failed > 0 {
			fmt.Fprintf(os.Stderr, "\n%d of %d sessions failed\n", failed, len(ideas))
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "\n%s All %d sessions completed\n", green("✓"), len(ideas))
	},
}

func init() {
	batchCmd.Flags().String("ideas", "", "File with one idea per line (required)")
	batchCmd.Flags().String("output-dir", "", "Directory for the generated documents (required)")
	batchCmd.Flags().StringP("references", "r", "", "Folder of reference material shared by all sessions")
	batchCmd.Flags().Int("parallel", 2, "How many sessions run at once")
	batchCmd.Flags().String("generator", "anthropic", "Generator backend: anthropic or openai")
	batchCmd.Flags().String("model", "", "Model name override for the backend")
	batchCmd.Flags().Int("max-iterations", 3, "Iteration budget per session")
	batchCmd.Flags().Int("accept-threshold", 90, "Minimum review score for acceptance (0-100)")
	batchCmd.MarkFlagRequired("ideas")
	batchCmd.MarkFlagRequired("output-dir")
	rootCmd.AddCommand(batchCmd)
}

type batchOutcome struct {
	idea  string
	file  string
	state loop.State
	score int
	err   error
}

func runBatchSession(ctx context.Context, caller *generator.Caller, retriever loop.Retriever, cfg config.Config, idea string, index int, outDir string) batchOutcome {
	slug := slugify(idea)
	if slug == "" {
		slug = "idea"
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("%03d-%s.md", index+1, slug))
	oc := batchOutcome{idea: idea, file: outPath}

	sc := sessionConfig(cfg)
	sc.Idea = idea
	sc.AutoAnswer = true
	sc.Observer = func(iteration, score int, draft string) {
		slog.Info("batch iteration reviewed",
			"idea", index+1, "iteration", iteration, "score", score)
	}

	ctrl, err := loop.NewController(caller, retriever, sc)
	if err != nil {
		oc.err = err
		return oc
	}

	result, err := ctrl.Run(ctx)
	if result != nil && result.Document != nil {
		if werr := os.WriteFile(outPath, []byte(result.Document.Render()), 0644); werr != nil && err == nil {
			err = werr
		}
		metaPath := strings.TrimSuffix(outPath, ".md") + ".json"
		if merr := writeMetadata(metaPath, result.Metadata); merr != nil && err == nil {
			err = merr
		}
	}
	if result != nil {
		oc.state = result.State
		oc.score = result.Metadata.Score
	}
	oc.err = err
	return oc
}

// readIdeas loads the ideas file, skipping blanks and # comments.
func readIdeas(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ideas []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ideas = append(ideas, line)
	}
	return ideas, nil
}

// slugify turns an idea into a filesystem-friendly name fragment.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= 48 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

func shortIdea(s string) string {
	if len(s) <= 60 {
		return s
	}
	return s[:60] + "..."
}
