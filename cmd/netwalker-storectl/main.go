// Command netwalker-storectl exposes the Inventory Store's control-plane
// operations (spec.md §6) as CLI subcommands, kept separate from the
// discovery crawl entry point the way the teacher keeps its interactive
// cred/ssh/scp subcommands alongside (not inside) the TUI path.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"netwalker/pkg/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var dbPath string
	fs := flag.NewFlagSet("netwalker-storectl", flag.ContinueOnError)
	fs.StringVar(&dbPath, "database", "", "Path to the SQLite inventory file (required)")

	cmd := os.Args[1]
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "netwalker-storectl: missing required --database")
		os.Exit(1)
	}

	if err := dispatch(cmd, dbPath, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "netwalker-storectl: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(cmd, dbPath string, args []string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open inventory store: %w", err)
	}
	defer st.Close()

	switch cmd {
	case "initialize-schema":
		return st.InitializeSchema()

	case "purge-all":
		return st.PurgeAll()

	case "purge-marked":
		n, err := st.PurgeMarked()
		if err != nil {
			return err
		}
		fmt.Printf("purged %d device(s)\n", n)
		return nil

	case "mark-for-purge":
		if len(args) != 1 {
			return errors.New("usage: mark-for-purge <hostname>")
		}
		return st.MarkForPurge(args[0])

	case "cleanup-stale-links":
		if len(args) != 1 {
			return errors.New("usage: cleanup-stale-links <days>")
		}
		days, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid days %q: %w", args[0], err)
		}
		n, err := st.CleanupStaleLinks(days)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d stale link(s)\n", n)
		return nil

	case "show-status":
		counts, err := st.ShowStatus()
		if err != nil {
			return err
		}
		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Printf("%-28s %d\n", t, counts[t])
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown subcommand %q", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "netwalker-storectl\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  netwalker-storectl <subcommand> --database inventory.db [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  initialize-schema\n")
	fmt.Fprintf(os.Stderr, "  purge-all\n")
	fmt.Fprintf(os.Stderr, "  purge-marked\n")
	fmt.Fprintf(os.Stderr, "  mark-for-purge <hostname>\n")
	fmt.Fprintf(os.Stderr, "  cleanup-stale-links <days>\n")
	fmt.Fprintf(os.Stderr, "  show-status\n")
}
