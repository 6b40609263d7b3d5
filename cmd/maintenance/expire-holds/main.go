package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-engine/internal/config"
	"github.com/smarttransit/seat-booking-engine/internal/database"
)

// Expires overdue ACTIVE holds straight in the database and frees their seats.
// Meant for use while the server is down; a running server sweeps its own holds.
func main() {
	var dbURLFlag string
	var dryRun bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&dryRun, "dry-run", false, "Only count overdue holds")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	now := time.Now().UTC()

	if dryRun {
		var overdue int
		if err := db.GetContext(ctx, &overdue,
			`SELECT COUNT(*) FROM seat_holds WHERE status = 'ACTIVE' AND expires_at <= $1`, now); err != nil {
			log.Fatalf("failed to count overdue holds: %v", err)
		}
		fmt.Printf("%d overdue holds would be expired\n", overdue)
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	repo := database.NewTripInventoryRepository(db.DB, logger)

	expired, err := repo.ExpireOverdueHolds(ctx, now)
	if err != nil {
		log.Fatalf("failed to expire holds: %v", err)
	}
	fmt.Printf("Expired %d overdue holds as of %s\n", expired, now.Format(time.RFC3339))
}
