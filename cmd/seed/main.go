package main

import (
	"log"

	"github.com/jodi-app/jodi-server/internal/config"
	"github.com/jodi-app/jodi-server/internal/db"
)

func main() {
	// Load configuration
	cfg := config.New()

	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	if err := db.SeedTestData(database); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Seeding completed.")
}
