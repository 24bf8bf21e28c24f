package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/factoryrun/factory/internal/factory"
	"github.com/factoryrun/factory/internal/factorylog"
	"github.com/factoryrun/factory/internal/llm"
	"github.com/factoryrun/factory/internal/workorder"
	"github.com/factoryrun/factory/internal/workspace"
)

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Println("factory 0.1.0")
		os.Exit(0)
	case "run":
		run(os.Args[2:])
	case "status":
		status(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  factory run --repo <path> --work-order <file.json> --branch <name> [--config <file.yaml>]")
	fmt.Fprintln(os.Stderr, "              [--llm-model <id>] [--llm-temperature <f>] [--max-attempts <n>]")
	fmt.Fprintln(os.Stderr, "              [--timeout-seconds <n>]")
	fmt.Fprintln(os.Stderr, "              [--create-branch|--reuse-branch] [--no-push] [--allow-verify-exempt]")
	fmt.Fprintln(os.Stderr, "              [--out <dir>]")
	fmt.Fprintln(os.Stderr, "  factory status --out <dir> --run-id <id>")
}

func status(args []string) {
	var outDir, runID string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--out":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--out requires a value")
				os.Exit(2)
			}
			outDir = args[i]
		case "--run-id":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--run-id requires a value")
				os.Exit(2)
			}
			runID = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(2)
		}
	}
	if outDir == "" || runID == "" {
		usage()
		os.Exit(2)
	}

	snap, err := factory.LoadStatus(outDir, runID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	switch snap.State {
	case factory.StatePassed:
		os.Exit(0)
	case factory.StateRunning:
		os.Exit(0)
	default:
		os.Exit(1)
	}
}

func run(args []string) {
	cfg := factory.Config{
		LLMTemperature: 0,
		Branch:         "",
		BranchMode:     workspace.BranchCreate,
		Push:           true,
	}
	var repoPath, workOrderPath, outDir, configPath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(2)
			}
			configPath = args[i]
		case "--repo":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--repo requires a value")
				os.Exit(2)
			}
			repoPath = args[i]
		case "--work-order":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--work-order requires a value")
				os.Exit(2)
			}
			workOrderPath = args[i]
		case "--llm-model":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--llm-model requires a value")
				os.Exit(2)
			}
			cfg.LLMModel = args[i]
		case "--llm-temperature":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--llm-temperature requires a value")
				os.Exit(2)
			}
			v, err := strconv.ParseFloat(args[i], 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "--llm-temperature: %v\n", err)
				os.Exit(2)
			}
			cfg.LLMTemperature = v
		case "--max-attempts":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--max-attempts requires a value")
				os.Exit(2)
			}
			v, err := strconv.Atoi(args[i])
			if err != nil || v < 1 {
				fmt.Fprintln(os.Stderr, "--max-attempts must be a positive integer")
				os.Exit(2)
			}
			cfg.MaxAttempts = v
		case "--timeout-seconds":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--timeout-seconds requires a value")
				os.Exit(2)
			}
			v, err := strconv.Atoi(args[i])
			if err != nil || v < 1 {
				fmt.Fprintln(os.Stderr, "--timeout-seconds must be a positive integer")
				os.Exit(2)
			}
			cfg.TimeoutSeconds = v
		case "--branch":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--branch requires a value")
				os.Exit(2)
			}
			cfg.Branch = args[i]
		case "--create-branch":
			cfg.BranchMode = workspace.BranchCreate
		case "--reuse-branch":
			cfg.BranchMode = workspace.BranchReuse
		case "--no-push":
			cfg.Push = false
		case "--allow-verify-exempt":
			cfg.AllowVerifyExempt = true
		case "--out":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--out requires a value")
				os.Exit(2)
			}
			outDir = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(2)
		}
	}

	if repoPath == "" || workOrderPath == "" {
		usage()
		os.Exit(2)
	}
	if outDir == "" {
		outDir = "factory-runs"
	}
	if cfg.Branch == "" {
		fmt.Fprintln(os.Stderr, "--branch is required")
		os.Exit(2)
	}

	if configPath != "" {
		fc, err := factory.LoadFileConfig(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fc.ApplyDefaults(&cfg)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 600
	}

	wo, err := workorder.Load(workOrderPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	client, err := llm.NewFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	eng := &factory.Engine{
		RepoRoot: repoPath,
		OutDir:   outDir,
		WO:       wo,
		LLM:      client,
		Config:   cfg,
		Log:      factorylog.New(os.Stderr),
	}

	summary, err := eng.Run(ctx)
	if err != nil {
		// The emergency handler in Engine.Run has already attempted
		// rollback and persisted an emergency run_summary.json whenever
		// summary is non-nil. Stdout still reports Verdict and the
		// summary path on every exit path, per the same contract as the
		// success case below.
		if summary != nil {
			fmt.Printf("Verdict: %s\n", summary.Verdict)
			fmt.Printf("run_summary=%s\n", factory.NewPaths(outDir, summary.RunID).RunSummaryPath())
		} else {
			fmt.Printf("Verdict: ERROR\n")
		}
		if ctx.Err() != nil {
			fmt.Fprintf(os.Stderr, "%v\n", context.Cause(ctx))
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Verdict: %s\n", summary.Verdict)
	fmt.Printf("run_summary=%s\n", factory.NewPaths(outDir, summary.RunID).RunSummaryPath())

	switch summary.Verdict {
	case factory.PASS:
		os.Exit(0)
	default:
		os.Exit(1)
	}
}
