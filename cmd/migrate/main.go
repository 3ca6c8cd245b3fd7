package main

import (
	"log"

	"github.com/joho/godotenv"

	"beeper/backend/internal/config"
	"beeper/backend/internal/db"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	log.Printf("migrations applied to %s", cfg.DBPath)
}
