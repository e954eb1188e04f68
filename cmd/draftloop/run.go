package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"draftloop/internal/config"
	"draftloop/internal/generator"
	"draftloop/internal/loop"
	"draftloop/internal/refstore"
)

// highIterationBudget is the budget used when the caller pins the
// acceptance bar but leaves the iteration count alone.
const highIterationBudget = 1000

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one drafting session to acceptance or exhaustion",
	Long: `Run a single drafting session for one idea.

The session drafts, reviews, patches and rewrites until the reviewer
score reaches the acceptance threshold or the iteration budget is
exhausted. Whatever happens, the best-scoring draft seen so far is the
one emitted.

When the reviewer asks clarifying questions and stdin is a terminal,
the session pauses so you can answer them. --yolo (or a non-interactive
stdin) makes the writer answer its own questions instead.

Passing --accept-threshold without --max-iterations switches to
convergence mode: the budget is raised to 1000 so the session keeps
refining until the score clears the bar.`,
	Run: func(cmd *cobra.Command, args []string) {
		idea, _ := cmd.Flags().GetString("idea")
		refDir, _ := cmd.Flags().GetString("references")
		outPath, _ := cmd.Flags().GetString("output")
		metaPath, _ := cmd.Flags().GetString("metadata-out")
		yolo, _ := cmd.Flags().GetBool("yolo")
		writerGL, _ := cmd.Flags().GetString("writer-guidelines")
		reviewerGL, _ := cmd.Flags().GetString("reviewer-guidelines")
		resumeFrom, _ := cmd.Flags().GetString("resume-from")

		if strings.TrimSpace(idea) == "" {
			fmt.Fprintf(os.Stderr, "Error: --idea must not be empty\n")
			os.Exit(2)
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

		sc := sessionConfig(cfg)
		sc.Idea = idea
		if sc.WriterGuidelines, err = readFileFlag(writerGL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: writer guidelines: %v\n", err)
			os.Exit(2)
		}
		if sc.ReviewerGuidelines, err = readFileFlag(reviewerGL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: reviewer guidelines: %v\n", err)
			os.Exit(2)
		}
		if sc.StartingDocument, err = readFileFlag(resumeFrom); err != nil {
			fmt.Fprintf(os.Stderr, "Error: resume document: %v\n", err)
			os.Exit(2)
		}

		if !yolo && term.IsTerminal(int(os.Stdin.Fd())) {
			sc.Answerer = &promptAnswerer{}
		} else {
			sc.AutoAnswer = true
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		sc.Observer = func(iteration, score int, draft string) {
			fmt.Fprintf(os.Stderr, "%s iteration %d reviewed: score %d\n", cyan("→"), iteration, score)
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(draft), 0644); err != nil {
					slog.Warn("failed to write draft snapshot", "path", outPath, "error", err)
				}
			}
		}

		// Set up context with cancellation
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Handle signals for graceful shutdown
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping after the current step...")
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

		ctrl, err := loop.NewController(caller, retriever, sc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s Session started: generator %s, threshold %d, budget %d\n",
			green("✓"), cyan(caller.Name()), sc.AcceptThreshold, sc.MaxIterations)

		result, runErr := ctrl.Run(ctx)

		// Persist whatever we have before deciding the exit code, so an
		// interrupted or failed session still leaves its best draft behind.
		if result != nil && result.Document != nil {
			rendered := result.Document.Render()
			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(rendered), 0644); err != nil {
					fmt.Fprintf(os.Stderr, "Error: failed to write document: %v\n", err)
					os.Exit(1)
				}
			} else if runErr == nil {
				fmt.Println(rendered)
			}
		}
		if metaPath != "" && result != nil {
			if err := writeMetadata(metaPath, result.Metadata); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write metadata: %v\n", err)
				os.Exit(1)
			}
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		switch {
		case runErr != nil:
			fmt.Fprintf(os.Stderr, "%s Session failed: %v\n", red("✗"), runErr)
			if errors.Is(runErr, loop.ErrInvalidConfiguration) {
				os.Exit(2)
			}
			os.Exit(1)
		case result.State == loop.StateAccepted:
			fmt.Fprintf(os.Stderr, "%s Draft accepted: score %d after %d iteration(s)\n",
				green("✓"), result.Metadata.Score, result.Metadata.Iterations)
		default:
			fmt.Fprintf(os.Stderr, "%s Iteration budget exhausted, kept best draft (score %d)\n",
				yellow("⚠"), result.Metadata.Score)
		}
	},
}

func init() {
	runCmd.Flags().StringP("idea", "i", "", "One-line idea to draft a document for (required)")
	runCmd.Flags().StringP("references", "r", "", "Folder of reference material to index and retrieve from")
	runCmd.Flags().StringP("output", "o", "", "Write the document here instead of stdout; updated after every review")
	runCmd.Flags().String("metadata-out", "", "Write session metadata JSON here")
	runCmd.Flags().String("generator", "anthropic", "Generator backend: anthropic or openai")
	runCmd.Flags().String("model", "", "Model name override for the backend")
	runCmd.Flags().Int("max-iterations", 3, "Iteration budget (draft versions) for the session")
	runCmd.Flags().Int("accept-threshold", 90, "Minimum review score for acceptance (0-100)")
	runCmd.Flags().Bool("yolo", false, "Answer reviewer questions automatically instead of prompting")
	runCmd.Flags().String("writer-guidelines", "", "File with extra guidelines for the writer prompt")
	runCmd.Flags().String("reviewer-guidelines", "", "File with extra guidelines for the reviewer prompt")
	runCmd.Flags().String("resume-from", "", "Existing markdown file to use as the starting draft")
	runCmd.MarkFlagRequired("idea")
	rootCmd.AddCommand(runCmd)
}

// loadConfig merges the config file, DRAFTLOOP_* environment variables
// and the command's own flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("generator") {
		cfg.Generator, _ = flags.GetString("generator")
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("accept-threshold") {
		cfg.AcceptThreshold, _ = flags.GetInt("accept-threshold")
	}
	if flags.Changed("max-iterations") {
		cfg.MaxIterations, _ = flags.GetInt("max-iterations")
	}

	// An explicit acceptance bar without an explicit budget means the
	// caller wants convergence, not a fixed draft count.
	if flags.Changed("accept-threshold") && !flags.Changed("max-iterations") &&
		cfg.MaxIterations < highIterationBudget {
		cfg.MaxIterations = highIterationBudget
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// buildCaller wires the configured backend with retries, the shared
// rate limiter and the concurrency cap.
func buildCaller(cfg config.Config) (*generator.Caller, error) {
	gen, err := generator.New(cfg.Generator, cfg.Model)
	if err != nil {
		return nil, err
	}
	rc := generator.DefaultRetryConfig()
	rc.MaxRetries = cfg.MaxRetries
	rc.MaxConcurrentCalls = cfg.MaxConcurrentCalls
	// Full documents take much longer than the short completions the
	// default per-request timeout is tuned for.
	rc.Timeout = 5 * time.Minute
	limiter := generator.NewLimiter(cfg.RequestsPerMinute, cfg.RateLimitWait())
	return generator.NewCaller(gen, rc, limiter), nil
}

// sessionConfig maps the CLI configuration onto a session configuration.
// Idea, guidelines and answering mode are filled in by the caller.
func sessionConfig(cfg config.Config) loop.Config {
	sc := loop.DefaultConfig()
	sc.AcceptThreshold = cfg.AcceptThreshold
	sc.MaxIterations = cfg.MaxIterations
	sc.Temperature = cfg.Temperature
	sc.MaxTokens = cfg.MaxTokens
	sc.TopK = cfg.TopK
	sc.RateLimitRetries = cfg.RateLimitRetries
	sc.RateLimitWait = cfg.RateLimitWait()
	return sc
}

// readFileFlag returns the contents of the file a flag points at, or ""
// when the flag was not set.
func readFileFlag(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ensureIndexed builds the reference index on first use.
func ensureIndexed(ctx context.Context, store *refstore.Store) error {
	indexed, err := store.IsIndexed(ctx)
	if err != nil {
		return err
	}
	if indexed {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Reference folder not indexed yet, indexing...")
	files, chunks, err := store.Index(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Indexed %d files (%d chunks)\n", files, chunks)
	return nil
}

func writeMetadata(path string, meta loop.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// promptAnswerer relays a reviewer question to the operator. Interrupt
// or EOF skips the question and the session moves on without an answer.
type promptAnswerer struct{}

func (promptAnswerer) Answer(ctx context.Context, question string) (string, error) {
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(os.Stderr, "\n%s %s\n", cyan("Reviewer asks:"), question)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("answer> "),
		Stdout:          os.Stderr,
		InterruptPrompt: "^C",
		EOFPrompt:       "skip",
	})
	if err != nil {
		return "", fmt.Errorf("failed to start prompt: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
