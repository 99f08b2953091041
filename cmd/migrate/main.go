package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate [up|drop|seed]")
		os.Exit(1)
	}

	command := os.Args[1]

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	schema := `
	CREATE TABLE IF NOT EXISTS polls (
		id UUID PRIMARY KEY,
		question TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		is_published BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at TIMESTAMPTZ,
		allow_voting_after_expiry BOOLEAN NOT NULL DEFAULT FALSE,
		show_results_after_expiry BOOLEAN NOT NULL DEFAULT TRUE,
		auto_archive BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_polls_creator ON polls (creator_id);
	CREATE INDEX IF NOT EXISTS idx_polls_auto_archive
		ON polls (expires_at)
		WHERE is_published = TRUE AND auto_archive = TRUE;

	CREATE TABLE IF NOT EXISTS options (
		id UUID PRIMARY KEY,
		poll_id UUID NOT NULL REFERENCES polls (id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_options_poll ON options (poll_id);

	CREATE TABLE IF NOT EXISTS votes (
		id UUID PRIMARY KEY,
		voter_id TEXT NOT NULL,
		poll_id UUID NOT NULL REFERENCES polls (id) ON DELETE CASCADE,
		option_id UUID NOT NULL REFERENCES options (id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT votes_voter_poll_unique UNIQUE (voter_id, poll_id)
	);

	CREATE INDEX IF NOT EXISTS idx_votes_poll ON votes (poll_id);
	CREATE INDEX IF NOT EXISTS idx_votes_option ON votes (option_id);
	`

	_, err := conn.Exec(ctx, schema)
	return err
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		DROP TABLE IF EXISTS votes;
		DROP TABLE IF EXISTS options;
		DROP TABLE IF EXISTS polls;
	`)
	return err
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	seed := `
	INSERT INTO polls (id, question, creator_id, is_published, expires_at)
	VALUES
		('11111111-1111-1111-1111-111111111111', 'Which feature should we build next?', 'seed-admin', TRUE, now() + interval '7 days'),
		('22222222-2222-2222-2222-222222222222', 'Best day for the team demo?', 'seed-admin', FALSE, NULL)
	ON CONFLICT (id) DO NOTHING;

	INSERT INTO options (id, poll_id, text)
	VALUES
		('aaaaaaaa-1111-1111-1111-111111111111', '11111111-1111-1111-1111-111111111111', 'Dark mode'),
		('aaaaaaaa-2222-1111-1111-111111111111', '11111111-1111-1111-1111-111111111111', 'CSV export'),
		('aaaaaaaa-3333-1111-1111-111111111111', '11111111-1111-1111-1111-111111111111', 'Mobile app'),
		('bbbbbbbb-1111-2222-2222-222222222222', '22222222-2222-2222-2222-222222222222', 'Thursday'),
		('bbbbbbbb-2222-2222-2222-222222222222', '22222222-2222-2222-2222-222222222222', 'Friday')
	ON CONFLICT (id) DO NOTHING;
	`

	_, err := conn.Exec(ctx, seed)
	return err
}
