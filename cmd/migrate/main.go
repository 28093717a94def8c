package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"duochat/config"
	"duochat/pkg/database"
	"duochat/pkg/logger"
)

const usage = `
duochat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create or update the schema
  status      Show store connection status and row counts
  seed        Create demo users and a sample conversation
  reset       Drop all tables and re-run migrations (DANGEROUS, postgres only)

Flags:
  -password string   Password for seeded users (default "password123")
  -no-messages       Seed users only

Examples:
  go run ./cmd/migrate up
  STORE_DRIVER=bolt go run ./cmd/migrate seed
`

func main() {
	password := flag.String("password", "password123", "Password for seeded users")
	noMessages := flag.Bool("no-messages", false, "Seed users only")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	l := logger.New(cfg.LogMode)
	defer l.Sync()

	stores, err := database.OpenStores(cfg, l)
	if err != nil {
		log.Fatalf("❌ Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer stores.Close()

	ctx := context.Background()
	switch command {
	case "up":
		runMigrationsUp(stores)
	case "status":
		showStatus(ctx, stores)
	case "seed":
		seedCfg := database.DefaultSeedConfig()
		seedCfg.Password = *password
		seedCfg.WithMessages = !*noMessages
		runSeed(ctx, stores, seedCfg)
	case "reset":
		runReset(stores)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(stores *database.Stores) {
	log.Println("🚀 Running migrations UP...")

	if err := stores.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func showStatus(ctx context.Context, stores *database.Stores) {
	log.Printf("🔍 Checking %s store status...", stores.Driver)

	if err := stores.HealthCheck(ctx); err != nil {
		log.Fatalf("❌ Store connection failed: %v", err)
	}
	log.Println("✅ Store connection: OK")

	if stores.Bolt != nil {
		users, messages, err := stores.Bolt.Counts()
		if err != nil {
			log.Printf("⚠️  Error reading counts: %v", err)
			return
		}
		log.Printf("✅ users: %d, messages: %d", users, messages)
		return
	}

	for _, table := range []string{"users", "messages", "message_reactions"} {
		if database.TableExists(stores.SQL, table) {
			var count int64
			stores.SQL.Table(table).Count(&count)
			log.Printf("✅ Table %-20s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-20s does not exist", table)
		}
	}
}

func runSeed(ctx context.Context, stores *database.Stores, cfg *database.SeedConfig) {
	log.Println("🌱 Seeding database...")

	if err := stores.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	result, err := database.Seed(ctx, stores.Users, stores.Messages, cfg)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("📊 Seed Summary:")
	for _, u := range result.Users {
		log.Printf("   - created %s (ID: %s)", u.Email, u.ID)
	}
	for _, email := range result.Skipped {
		log.Printf("   - skipped %s (already exists)", email)
	}
	log.Printf("   - Messages: %d", len(result.Messages))
	log.Println("✅ Seeding completed!")
}

func runReset(stores *database.Stores) {
	log.Println("⚠️  WARNING: This will DROP all tables and re-run migrations!")

	if err := stores.Reset(); err != nil {
		log.Fatalf("❌ Reset failed: %v", err)
	}

	log.Println("✅ Database reset completed!")
}
