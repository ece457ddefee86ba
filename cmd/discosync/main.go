// Discosync mirrors a Discogs vinyl collection into a local SQLite database
// and enriches each release with the original year of its master release.
//
// Usage:
//
//	discosync sync [--config <path>] [--enrich] [--verbose]   # full collection sync
//	discosync enrich [--config <path>] [--verbose]            # resume master-data enrichment
//	discosync status [--config <path>]                        # show config & collection state
//	discosync version                                         # print version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkoenig/discosync/internal/config"
	"github.com/dkoenig/discosync/internal/discogs"
	"github.com/dkoenig/discosync/internal/store"
	syncp "github.com/dkoenig/discosync/internal/sync"
	"github.com/dkoenig/discosync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "sync":
		return runSync(os.Args[2:])
	case "enrich":
		return runEnrich(os.Args[2:])
	case "status":
		return runStatus(os.Args[2:])
	case "version":
		fmt.Println("discosync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'discosync' for usage", cmd)
	}
}

func printUsage() error {
	fmt.Fprintln(os.Stderr, "discosync — mirror a Discogs collection into a local database")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  discosync sync [--config ...] [--enrich]  Full collection sync")
	fmt.Fprintln(os.Stderr, "  discosync enrich [--config ...]           Resume master-data enrichment")
	fmt.Fprintln(os.Stderr, "  discosync status [--config ...]           Show config & collection state")
	fmt.Fprintln(os.Stderr, "  discosync version                         Print version")
	fmt.Fprintln(os.Stderr, "")

	cfgPath, _ := config.DefaultPath()
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "No config file found at %s.\n", cfgPath)
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Subcommands -------------------------------------------------------------

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	enrich := fs.Bool("enrich", false, "start master-data enrichment after a successful sync")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, cleanup, err := newApp(*cfgPath, *verbose)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	outcome := app.syncer.Run(ctx)
	if !outcome.Success {
		return fmt.Errorf("collection sync failed: %s", outcome.Error)
	}
	app.log.Info("collection synced", "total", outcome.TotalSynced)

	if !*enrich {
		return nil
	}
	app.enricher.Start()
	return waitForEnrichment(ctx, app.log, app.enricher)
}

func runEnrich(args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, cleanup, err := newApp(*cfgPath, *verbose)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app.enricher.ResumeIfNeeded(ctx)
	return waitForEnrichment(ctx, app.log, app.enricher)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("discosync Status")
	fmt.Println("────────────────")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("  Config:     %s (invalid: %v)\n", *cfgPath, err)
		return nil
	}
	fmt.Printf("  Config:     %s ✓\n", *cfgPath)
	fmt.Printf("  Username:   %s\n", cfg.Username)
	fmt.Printf("  API:        %s\n", cfg.APIURL)

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return err
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		fmt.Printf("  Database:   not found (%s)\n", dbPath)
		return nil
	}
	fmt.Printf("  Database:   %s (%s)\n", dbPath, humanSize(info.Size()))

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	count, err := st.GetCollectionCount(ctx)
	if err != nil {
		return err
	}
	pending, err := st.GetReleasesNeedingMasterData(ctx)
	if err != nil {
		return err
	}
	enriched, err := st.GetReleasesWithOriginalYearCount(ctx)
	if err != nil {
		return err
	}
	lastSync, err := st.GetLastSyncDate(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("  Releases:   %d\n", count)
	fmt.Printf("  Enriched:   %d (%d pending)\n", enriched, len(pending))
	if lastSync.IsZero() {
		fmt.Println("  Last sync:  never")
	} else {
		fmt.Printf("  Last sync:  %s\n", lastSync.Local().Format(time.RFC1123))
	}
	return nil
}

// --- App wiring --------------------------------------------------------------

// app bundles the long-lived components shared by the subcommands.
type app struct {
	log      *slog.Logger
	store    *store.Store
	syncer   *syncp.Syncer
	enricher *syncp.Enricher
}

// newApp loads the config and constructs logger, telemetry, store, catalog
// client, and both engines. The returned cleanup closes the store and
// flushes telemetry; defer it unconditionally.
func newApp(cfgPath string, verbose bool) (*app, func(), error) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}
	logger.Info("config loaded",
		"username", cfg.Username,
		"api_url", cfg.APIURL,
		"request_interval", cfg.RequestInterval,
	)

	var shutdownTel telemetry.ShutdownFunc = func(context.Context) error { return nil }
	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdown, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			shutdownTel = shutdown
		}
	}

	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	logger.Info("database opened", "path", dbPath)

	catalog := discogs.NewClient(cfg.APIURL, cfg.Username, cfg.Token, version, cfg.RequestInterval, logger)

	a := &app{
		log:      logger,
		store:    st,
		syncer:   syncp.NewSyncer(st, catalog, logger),
		enricher: syncp.NewEnricher(st, catalog, cfg.RequestInterval, logger),
	}

	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTel(flushCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}
	return a, cleanup, nil
}

func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	return store.DefaultDBPath()
}

// waitForEnrichment blocks until the background run finishes, logging
// progress periodically. On interrupt it requests a stop and waits for the
// loop to drain.
func waitForEnrichment(ctx context.Context, logger *slog.Logger, e *syncp.Enricher) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, stopping enrichment")
			e.Stop()
			<-e.Done()
			return nil
		case <-e.Done():
			p := e.Progress()
			logger.Info("enrichment done", "completed", p.Completed, "total", p.Total)
			return nil
		case <-ticker.C:
			p := e.Progress()
			logger.Info("enrichment progress", "completed", p.Completed, "total", p.Total)
		}
	}
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
