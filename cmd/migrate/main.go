package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"elevate.org/internal/migrate"
	"elevate.org/internal/obs"
	"elevate.org/internal/store/pg"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log := obs.Logger()
	var (
		dsn            = flag.String("dsn", os.Getenv("ELEVATE_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", envOr("ELEVATE_PG_MIGRATIONS_DIR", "ops/migrations/sql"), "Path to SQL migrations")
		seedsPath      = flag.String("seeds", envOr("ELEVATE_PG_SEEDS_DIR", "ops/seeds"), "Path to SQL seeds")
		timeout        = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up|down|seed|status")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via --dsn or ELEVATE_PG_DSN")
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), *migrationsPath, *seedsPath)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var n int
		n, err = mgr.Up(ctx)
		if err == nil {
			fmt.Printf("applied %d migration(s)\n", n)
		}
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var entries []migrate.Entry
		entries, err = mgr.Status(ctx)
		if err == nil {
			for _, e := range entries {
				state := "pending"
				if e.Applied {
					state = "applied"
				}
				fmt.Printf("%-8s %s\n", state, e.Name)
			}
		}
	default:
		log.WithField("command", cmd).Fatal("unknown command")
	}
	if err != nil {
		log.WithError(err).WithField("command", cmd).Fatal("migrate failed")
	}
}
