package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bpepple/clu-comics-sub000/internal/index"
)

const defaultDatabaseDir = "/database"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "index.db")

	store, err := index.Open(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open index database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	switch command {
	case "stats":
		if !showStats(ctx, store) {
			os.Exit(1)
		}
	case "vacuum":
		if !runVacuum(store) {
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command))
		printUsage()
		os.Exit(1)
	}
}

func showStats(ctx context.Context, store *index.Store) bool {
	stats, err := store.CalculateStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read index stats: %v\n", err)
		return false
	}
	fmt.Printf("Indexed files:       %d\n", stats.TotalFiles)
	fmt.Printf("Indexed directories: %d\n", stats.TotalDirectories)
	return true
}

func runVacuum(store *index.Store) bool {
	fmt.Println("Vacuuming index database...")
	if err := store.Vacuum(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: vacuum failed: %v\n", err)
		return false
	}
	fmt.Println("Done.")
	return true
}

// sanitizeCommand returns a safe representation of a command string for
// display, replacing anything outside [a-zA-Z0-9_-] with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: indexctl <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  stats   Show indexed file and directory totals")
	fmt.Fprintln(os.Stderr, "  vacuum  Compact the index database file")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment:")
	fmt.Fprintln(os.Stderr, "  DATABASE_DIR  Directory containing index.db (default /database)")
}
