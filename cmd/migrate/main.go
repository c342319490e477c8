package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"parishnet.org/internal/migrate"
)

func main() {
	var (
		dsn           = flag.String("dsn", os.Getenv("PARISHNET_PG_DSN"), "postgres connection string")
		migrationsDir = flag.String("migrations", "ops/migrations/sql", "directory with .up.sql/.down.sql files")
		seedsDir      = flag.String("seeds", "ops/migrations/seeds", "directory with seed .sql files")
	)
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dsn ...] up|down|seed|status")
		os.Exit(2)
	}
	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: dsn is required (flag -dsn or PARISHNET_PG_DSN)")
		os.Exit(2)
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: open: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	runner := migrate.NewRunner(db, *migrationsDir, *seedsDir)

	switch cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "seed":
		err = runner.Seed(ctx)
	case "status":
		var applied []string
		applied, err = runner.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "migrate: unknown command %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
