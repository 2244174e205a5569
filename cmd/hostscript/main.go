package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hostscript/internal/core/config"
	"hostscript/internal/engine/classpath"
	"hostscript/internal/engine/interp"
)

var (
	configPath = flag.String("config", "./hostscript.toml", "Path to config file")
	lookup     = flag.String("lookup", "", "Resolve a simple or qualified class name and exit")
	ambiguous  = flag.Bool("ambiguous", false, "List simple names owned by more than one class")
	watch      = flag.Bool("watch", false, "Keep running and remap the classpath on change")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "0.3.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("hostscript v%s\n", VERSION)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if flag.NArg() > 0 {
		cfg.Classpath.Entries = append(cfg.Classpath.Entries, flag.Args()...)
	}

	in, err := interp.New(cfg, interp.WithFeedback(classpath.LogFeedback{}))
	if err != nil {
		slog.Error("failed to initialize interpreter", "error", err)
		os.Exit(1)
	}
	defer in.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(in)
	if err := app.Map(ctx); err != nil {
		slog.Error("classpath mapping failed", "error", err)
		os.Exit(1)
	}

	if *lookup != "" {
		report, err := app.Lookup(*lookup)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Print(formatLookup(report))
		return
	}

	summary := app.Summarize(*ambiguous)
	fmt.Print(formatSummary(summary))

	if !*watch && !cfg.Watch.Enabled {
		return
	}
	slog.Info("watching classpath", "locations", len(summary.Locations))
	if err := in.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("classpath watch failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == "./hostscript.toml" && errors.Is(err, os.ErrNotExist) {
		cfg = config.DefaultConfig()
		config.ApplyEnvOverrides(cfg)
		return cfg, nil
	}
	return nil, err
}
