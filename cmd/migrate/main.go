package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"oversight.dev/internal/migrate"
	"oversight.dev/internal/obs"
	"oversight.dev/internal/store/pg"
)

func main() {
	var (
		dsn   = flag.String("dsn", os.Getenv("OVERSIGHT_STORE_PG_DSN"), "PostgreSQL DSN")
		dir   = flag.String("dir", "", "Directory of SQL migrations (default: schema embedded in the binary)")
		table = flag.String("table", "", "Bookkeeping table (default schema_migrations)")
	)
	flag.Parse()
	log := obs.InitLogger(obs.LogConfig{Level: "info", Format: "console", Output: os.Stderr})

	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or OVERSIGHT_STORE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal().Msg("usage: migrate [-dsn DSN] [-dir DIR] up|down|status")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer store.Close()

	var src fs.FS = pg.Migrations()
	if *dir != "" {
		src = os.DirFS(*dir)
	}
	mgr := migrate.NewManager(store.DB(), src, migrate.WithTable(*table))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			log.Info().Str("migration", name).Msg("applied")
		}
		if err == nil && len(applied) == 0 {
			log.Info().Msg("schema up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			log.Info().Msg("nothing to roll back")
			err = nil
		} else if err == nil {
			log.Info().Str("migration", name).Msg("rolled back")
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Str("command", cmd).Msg("migrate failed")
	}
}
