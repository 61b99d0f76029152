package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appmigrations "github.com/wolfman30/maison-chat-platform/migrations"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

var logger = logging.New("info")

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

// Usage: migrate [up|down|force <version>|version]
func main() {
	_ = godotenv.Load()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		fatal("DATABASE_URL is required", errors.New("missing DATABASE_URL"))
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		fatal("open db", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		fatal("ping db", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		fatal("db driver", err)
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		fatal("source driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		fatal("create migrator", err)
	}
	defer func() { _, _ = m.Close() }()

	command := "up"
	if len(os.Args) >= 2 {
		command = os.Args[1]
	}

	switch command {
	case "force":
		if len(os.Args) < 3 {
			fatal("force requires a version", errors.New("missing version"))
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fatal("invalid version", err)
		}
		if err := m.Force(version); err != nil {
			fatal("force version", err)
		}
		fmt.Printf("forced version to %d\n", version)
	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatal("migrate down", err)
		}
		fmt.Println("rolled back one migration")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			fatal("read version", err)
		}
		fmt.Printf("version %d (dirty=%v)\n", version, dirty)
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			fatal("migrate up", err)
		}
		fmt.Println("migrations complete")
	default:
		fatal("unknown command", fmt.Errorf("%q", command))
	}
}
