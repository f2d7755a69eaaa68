// migrate applies the SQL files under migrations/ in lexical order,
// tracking applied versions in schema_migrations.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"tryon/internal/infra"
)

func main() {
	dir := flag.String("dir", "migrations", "directory containing .sql migration files")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fatal(err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fatal(fmt.Errorf("open database: %w", err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fatal(fmt.Errorf("ping database: %w", err))
	}

	applied, err := run(db, *dir)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("applied %d migration(s)\n", applied)
}

func run(db *sql.DB, dir string) (int, error) {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    text PRIMARY KEY,
    applied_at timestamptz NOT NULL DEFAULT now()
);`); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		version := strings.TrimSuffix(filepath.Base(file), ".sql")

		var exists bool
		if err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1);`, version,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check %s: %w", version, err)
		}
		if exists {
			continue
		}

		body, err := os.ReadFile(file)
		if err != nil {
			return applied, err
		}

		tx, err := db.Begin()
		if err != nil {
			return applied, err
		}
		if _, err := tx.Exec(string(body)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("apply %s: %w", version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1);`, version); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit %s: %w", version, err)
		}

		fmt.Println("applied", version)
		applied++
	}
	return applied, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}
