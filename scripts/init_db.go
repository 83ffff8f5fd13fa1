//go:build ignore
// +build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"lender-policy-review/internal/config"
	"lender-policy-review/internal/services/database"
)

func main() {
	fmt.Println("=== Ingestion Ledger Initialization ===")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Connect to the default 'postgres' database to create ours
	adminCfg := *cfg
	adminCfg.DBName = "postgres"
	fmt.Println("📡 Connecting to PostgreSQL server...")

	adminConn, err := pgx.Connect(ctx, adminCfg.DatabaseURL())
	if err != nil {
		fmt.Printf("❌ Failed to connect to PostgreSQL: %v\n", err)
		os.Exit(1)
	}

	var exists bool
	err = adminConn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.DBName).Scan(&exists)
	if err != nil {
		fmt.Printf("❌ Failed to check database existence: %v\n", err)
		adminConn.Close(ctx)
		os.Exit(1)
	}

	if !exists {
		fmt.Printf("📦 Creating '%s' database...\n", cfg.DBName)
		if _, err := adminConn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{cfg.DBName}.Sanitize()); err != nil {
			fmt.Printf("❌ Failed to create database: %v\n", err)
			adminConn.Close(ctx)
			os.Exit(1)
		}
		fmt.Printf("✅ Database '%s' created!\n", cfg.DBName)
	} else {
		fmt.Printf("✅ Database '%s' already exists\n", cfg.DBName)
	}
	adminConn.Close(ctx)

	db, err := database.New(ctx, cfg)
	if err != nil {
		fmt.Printf("❌ Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("🚀 Applying ingestion ledger schema...")
	repo := database.NewIngestionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		fmt.Printf("❌ Failed to apply schema: %v\n", err)
		os.Exit(1)
	}

	recent, err := repo.ListRecent(ctx, 5)
	if err != nil {
		fmt.Printf("⚠️  Warning: Could not list ingestions: %v\n", err)
	} else {
		fmt.Printf("   📦 Recent ingestions: %d\n", len(recent))
		for _, ing := range recent {
			fmt.Printf("   - %s [%s] %s\n", ing.Filename, ing.Status, ing.ExtractionID)
		}
	}

	fmt.Println()
	fmt.Println("🎉 Ledger initialization completed successfully!")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Test the connections: go run scripts/test_connection.go")
	fmt.Println("  2. Start the review server: go run ./cmd/server")
}
