// Command sweep runs one expiry pass over the elevation grants and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"elevate.org/internal/dates"
	"elevate.org/internal/elevation"
	"elevate.org/internal/obs"
	"elevate.org/internal/store/pg"
)

func main() {
	log := obs.Logger()
	var (
		dsn     = flag.String("dsn", os.Getenv("ELEVATE_PG_DSN"), "PostgreSQL DSN")
		asOf    = flag.String("as-of", "", "Sweep as of this date (YYYY-MM-DD), default today UTC")
		timeout = flag.Duration("timeout", time.Minute, "Overall timeout")
		level   = flag.String("log-level", os.Getenv("ELEVATE_LOG_LEVEL"), "Log level")
	)
	flag.Parse()
	if *level != "" {
		obs.SetLevel(*level)
	}

	if *dsn == "" {
		log.Fatal("missing DSN: provide via --dsn or ELEVATE_PG_DSN")
	}
	today := dates.Of(time.Now().UTC())
	if *asOf != "" {
		d, err := dates.Parse(*asOf)
		if err != nil {
			log.WithError(err).Fatal("parse --as-of")
		}
		today = d
	}

	store, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 4})
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		log.WithError(err).Fatal("database unreachable")
	}

	res, err := elevation.NewSweeper(store.Grants()).SweepAsOf(ctx, today)
	if err != nil {
		log.WithError(err).Fatal("sweep failed")
	}
	fmt.Printf("sweep %s: completed=%d lost_races=%d\n", today, res.Completed, res.LostRaces)
}
