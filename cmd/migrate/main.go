package main

import (
	"database/sql"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/lib/pq"

	"github.com/n8nhost/console/internal/config"
)

func main() {
	dir := flag.String("dir", "migrations", "Directory holding the *.sql migrations")
	flag.Parse()

	if err := config.LoadConfig(os.Getenv("CONSOLE_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		log.Fatalf("Failed to create schema_migrations: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil {
		log.Fatalf("Failed to list migrations: %v", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		cwd, _ := os.Getwd()
		log.Fatalf("No migrations found in %s (working directory %s)", *dir, cwd)
	}

	applied := 0
	for _, path := range files {
		name := filepath.Base(path)

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&exists); err != nil {
			log.Fatalf("Failed to check %s: %v", name, err)
		}
		if exists {
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read migration file: %v", err)
		}

		log.Printf("Running migration %s...", name)
		tx, err := db.Begin()
		if err != nil {
			log.Fatalf("Failed to begin transaction: %v", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			log.Fatalf("Migration %s failed: %v", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			log.Fatalf("Failed to record %s: %v", name, err)
		}
		if err := tx.Commit(); err != nil {
			log.Fatalf("Failed to commit %s: %v", name, err)
		}
		applied++
	}

	log.Printf("Migrations applied successfully! (%d new)", applied)
}
