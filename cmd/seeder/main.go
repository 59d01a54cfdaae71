// cmd/seeder/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/craftsquare/campaign-engine/internal/config"
	"github.com/craftsquare/campaign-engine/internal/db"
)

func main() {
	_ = godotenv.Load()

	conn, err := db.Connect(config.Load())
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	files := []string{
		"migrations/schema.sql",
		"seed/users.sql",
		"seed/products.sql",
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}

		if _, err := conn.Exec(string(content)); err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Applied: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
