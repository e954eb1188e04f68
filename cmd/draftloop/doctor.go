package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/spf13/cobra"

	"draftloop/internal/config"
	"draftloop/internal/generator"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check draftloop configuration and environment health",
	Long: `Run health checks to diagnose common configuration and environment issues.

This command checks for:
- Provider API keys
- Configuration file and environment overrides
- Generator backend construction
- Reference index accessibility
- Disk space, memory and CPU headroom

Exit codes:
  0 - All checks passed
  1 - One or more checks failed (but not critical)
  2 - Critical failures that prevent draftloop from running`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		refDir, _ := cmd.Flags().GetString("references")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running draftloop health checks...\n\n")

		var failures []string
		var warnings []string
		var criticalFailures []string

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Check 1: Provider API keys
		fmt.Printf("%s Provider credentials\n", cyan("→"))
		anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
		openaiKey := os.Getenv("OPENAI_API_KEY")
		if anthropicKey == "" && openaiKey == "" {
			criticalFailures = append(criticalFailures, "Neither ANTHROPIC_API_KEY nor OPENAI_API_KEY is set")
			fmt.Printf("  %s No provider API key set\n", red("✗"))
			fmt.Printf("    Set ANTHROPIC_API_KEY or OPENAI_API_KEY\n")
		}
		for _, k := range []struct{ name, value string }{
			{"ANTHROPIC_API_KEY", anthropicKey},
			{"OPENAI_API_KEY", openaiKey},
		} {
			if k.value == "" {
				continue
			}
			fmt.Printf("  %s %s is set\n", green("✓"), k.name)
			if verbose && len(k.value) >= 14 {
				fmt.Printf("    Key: %s...%s\n", k.value[:10], k.value[len(k.value)-4:])
			}
		}

		// Check 2: Configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		cfg, err := config.Load(cfgFile)
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Invalid configuration: %v", err))
			fmt.Printf("  %s Configuration is invalid\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
			cfg = config.Default()
		} else {
			if cfgFile != "" {
				fmt.Printf("  %s Loaded config file: %s\n", green("✓"), cfgFile)
			} else {
				fmt.Printf("  %s Using defaults plus DRAFTLOOP_* overrides\n", green("✓"))
			}
			if verbose {
				fmt.Printf("    %s\n", cfg.String())
			}
		}

		// Check 3: Generator backend
		fmt.Printf("%s Generator backend\n", cyan("→"))
		gen, err := generator.New(cfg.Generator, cfg.Model)
		if err != nil {
			criticalFailures = append(criticalFailures, fmt.Sprintf("Cannot construct generator: %v", err))
			fmt.Printf("  %s Configured backend %q is not usable\n", red("✗"), cfg.Generator)
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			fmt.Printf("  %s Backend %s ready\n", green("✓"), gen.Name())
			if verbose {
				caller := generator.NewCaller(gen, generator.DefaultRetryConfig(),
					generator.NewLimiter(cfg.RequestsPerMinute, cfg.RateLimitWait()))
				fmt.Printf("    Circuit breaker: %s\n", caller.Breaker().GetState())
			}
		}

		// Check 4: Reference index
		fmt.Printf("%s Reference index\n", cyan("→"))
		if refDir == "" {
			fmt.Printf("  %s No reference folder given (pass --references to check one)\n", green("✓"))
		} else if store, err := openStore(refDir, ""); err != nil {
			failures = append(failures, fmt.Sprintf("Cannot open reference index: %v", err))
			fmt.Printf("  %s Cannot open reference index\n", red("✗"))
			if verbose {
				fmt.Printf("    Error: %v\n", err)
			}
		} else {
			sources, chunks, err := store.Stats(ctx)
			switch {
			case err != nil:
				failures = append(failures, fmt.Sprintf("Cannot query reference index: %v", err))
				fmt.Printf("  %s Cannot query reference index\n", red("✗"))
			case chunks == 0:
				warnings = append(warnings, "Reference index is empty (run: draftloop index --references "+refDir+")")
				fmt.Printf("  %s Index is empty\n", yellow("⚠"))
			default:
				fmt.Printf("  %s Index holds %d chunk(s) from %d source(s)\n", green("✓"), chunks, sources)
			}
			store.Close()
		}

		// Check 5: Disk space
		fmt.Printf("%s Disk space\n", cyan("→"))
		if usage, err := disk.UsageWithContext(ctx, "."); err != nil {
			warnings = append(warnings, fmt.Sprintf("Cannot check disk space: %v", err))
			fmt.Printf("  %s Cannot check disk space\n", yellow("⚠"))
		} else {
			freeMB := usage.Free / (1024 * 1024)
			if freeMB < 500 {
				warnings = append(warnings, fmt.Sprintf("Low disk space: %d MB free", freeMB))
				fmt.Printf("  %s Only %d MB free\n", yellow("⚠"), freeMB)
			} else {
				fmt.Printf("  %s %.1f GB free (%.0f%% used)\n", green("✓"),
					float64(usage.Free)/(1024*1024*1024), usage.UsedPercent)
			}
		}

		// Check 6: Memory
		fmt.Printf("%s Memory\n", cyan("→"))
		if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
			warnings = append(warnings, fmt.Sprintf("Cannot check memory: %v", err))
			fmt.Printf("  %s Cannot check memory\n", yellow("⚠"))
		} else if vm.UsedPercent > 90 {
			warnings = append(warnings, fmt.Sprintf("Memory pressure: %.0f%% used", vm.UsedPercent))
			fmt.Printf("  %s %.0f%% of memory in use\n", yellow("⚠"), vm.UsedPercent)
		} else {
			fmt.Printf("  %s %.1f GB available of %.1f GB\n", green("✓"),
				float64(vm.Available)/(1024*1024*1024), float64(vm.Total)/(1024*1024*1024))
		}

		// Check 7: CPU
		fmt.Printf("%s CPU\n", cyan("→"))
		if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
			warnings = append(warnings, fmt.Sprintf("Cannot check CPU: %v", err))
			fmt.Printf("  %s Cannot check CPU\n", yellow("⚠"))
		} else {
			fmt.Printf("  %s %d logical core(s)\n", green("✓"), cores)
			if avg, err := load.AvgWithContext(ctx); err == nil {
				if avg.Load1 > float64(cores) {
					warnings = append(warnings, fmt.Sprintf("System is overloaded (load %.2f on %d cores)", avg.Load1, cores))
					fmt.Printf("  %s Load average %.2f exceeds core count\n", yellow("⚠"), avg.Load1)
				} else if verbose {
					fmt.Printf("    Load average: %.2f %.2f %.2f\n", avg.Load1, avg.Load5, avg.Load15)
				}
			}
		}

		if verbose {
			if info, err := host.InfoWithContext(ctx); err == nil {
				fmt.Printf("%s Host\n", cyan("→"))
				fmt.Printf("  %s %s %s (%s), up %s\n", green("✓"),
					info.Platform, info.PlatformVersion, info.KernelArch,
					(time.Duration(info.Uptime) * time.Second).Round(time.Minute))
			}
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		totalIssues := len(criticalFailures) + len(failures) + len(warnings)
		if totalIssues == 0 {
			fmt.Printf("%s All checks passed! draftloop is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s Critical failures (%d):\n", red("✗"), len(criticalFailures))
			for _, failure := range criticalFailures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, failure := range failures {
				fmt.Printf("  • %s\n", failure)
			}
		}

		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, warning := range warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		if len(criticalFailures) > 0 {
			fmt.Printf("\n%s draftloop cannot run until critical issues are resolved.\n", red("✗"))
			os.Exit(2)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s draftloop may not work correctly. Please address the failures above.\n", yellow("⚠"))
			os.Exit(1)
		}

		fmt.Printf("\n%s draftloop should work, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	doctorCmd.Flags().StringP("references", "r", "", "Reference folder whose index to check")
	rootCmd.AddCommand(doctorCmd)
}
