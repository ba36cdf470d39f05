package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"netwalker/pkg/netwalker"
	"netwalker/pkg/store"
)

var (
	flagConfig         string
	flagSeeds          string
	flagDatabase       string
	flagUsername       string
	flagPassword       string
	flagEnablePassword string
	flagCredentialFile string
	flagNoPrompt       bool
	flagFromStale      int
	flagFromUnwalked   bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Path to YAML configuration (required)")
	flag.StringVar(&flagSeeds, "seeds", "", "Path to a seed file (bare hostnames/IPs, one per line)")
	flag.StringVar(&flagDatabase, "database", "", "Path to the SQLite inventory file (overrides database.database in config)")
	flag.StringVar(&flagUsername, "username", "", "Device username (overrides NETWALKER_USERNAME)")
	flag.StringVar(&flagPassword, "password", "", "Device password (overrides NETWALKER_PASSWORD)")
	flag.StringVar(&flagEnablePassword, "enable-password", "", "Device enable password (overrides NETWALKER_ENABLE_PASSWORD)")
	flag.StringVar(&flagCredentialFile, "credential-file", "", "Optional on-disk credentials file (§6 priority chain)")
	flag.BoolVar(&flagNoPrompt, "no-prompt", false, "Never fall back to an interactive TTY prompt for missing credentials")
	flag.IntVar(&flagFromStale, "from-stale", 0, "Seed the crawl from devices last seen more than N days ago instead of --seeds")
	flag.BoolVar(&flagFromUnwalked, "from-unwalked", false, "Seed the crawl from placeholder (neighbor-only) devices instead of --seeds")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "netwalker\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  netwalker --config hosts.yaml --seeds seeds.txt\n")
		fmt.Fprintf(os.Stderr, "  netwalker --config hosts.yaml --from-stale 30\n")
		fmt.Fprintf(os.Stderr, "  netwalker --config hosts.yaml --from-unwalked\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "netwalker: %v\n", err)
		os.Exit(exitCodeFromErr(err))
	}
}

func run() error {
	if flagConfig == "" {
		return errors.New("missing required --config")
	}
	cfg, err := netwalker.LoadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := flagDatabase
	if dbPath == "" {
		dbPath = cfg.Database.Database
	}
	if dbPath == "" {
		return errors.New("no database path given (--database or database.database in config)")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open inventory store: %w", err)
	}
	defer st.Close()

	seeds, err := loadSeeds(st)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return errors.New("no seeds: pass --seeds, --from-stale, or --from-unwalked")
	}

	creds, err := netwalker.LoadCredentials(netwalker.CredentialArgs{
		Username:       flagUsername,
		Password:       flagPassword,
		EnablePassword: flagEnablePassword,
	}, !flagNoPrompt)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if flagCredentialFile != "" {
		fileCreds, err := netwalker.LoadCredentialsFile(flagCredentialFile)
		if err != nil {
			return fmt.Errorf("load credential file: %w", err)
		}
		creds = mergeCredentials(creds, fileCreds)
	}

	filter := netwalker.NewFilter(netwalker.FilterCriteria{
		ExcludeHostnames:    cfg.Filtering.ExcludeHostnames,
		ExcludeIPRanges:     cfg.Filtering.ExcludeIPRanges,
		ExcludePlatforms:    cfg.Filtering.ExcludePlatforms,
		ExcludeCapabilities: cfg.Filtering.ExcludeCapabilities,
	})
	manager := netwalker.NewManager()
	sink := netwalker.NewSlogEventSink(slog.Default())

	engine := netwalker.NewEngine(cfg, manager, filter, st, netwalker.EngineOptions{
		Credentials: creds,
		Sink:        sink,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine.Run(ctx, seeds)
	return nil
}

// loadSeeds implements the three mutually-exclusive seed sources from
// spec.md §6: a seed file, or one of the two database-driven seed
// generators.
func loadSeeds(st *store.Store) ([]netwalker.PendingNode, error) {
	switch {
	case flagFromStale > 0:
		return st.SeedFromStale(flagFromStale)
	case flagFromUnwalked:
		return st.SeedUnwalked()
	case flagSeeds != "":
		path, err := filepath.Abs(flagSeeds)
		if err != nil {
			return nil, fmt.Errorf("resolve seeds path: %w", err)
		}
		return netwalker.LoadSeeds(path)
	default:
		return nil, nil
	}
}

// mergeCredentials fills any field left empty by primary from file,
// preserving the §6 priority chain (CLI/env beats the credentials file).
func mergeCredentials(primary, file netwalker.Credentials) netwalker.Credentials {
	if primary.Username == "" {
		primary.Username = file.Username
	}
	if primary.Password == "" {
		primary.Password = file.Password
	}
	if primary.EnablePassword == "" {
		primary.EnablePassword = file.EnablePassword
	}
	return primary
}

func exitCodeFromErr(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
