package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/baxromumarov/jobradar/internal/store"
)

func main() {
	_ = godotenv.Load()

	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Database URL")
	schema := flag.String("schema", "", "Path to schema file (embedded schema when empty)")
	flag.Parse()

	if *dbURL == "" {
		log.Fatal("Database URL is required: pass -db or set DATABASE_URL")
	}

	db, err := store.NewStore(*dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(*schema); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Migrations executed successfully")
}
