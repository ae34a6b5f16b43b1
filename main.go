package main

import (
	"log"

	"github.com/joho/godotenv"

	"docredact/cmd"
	"docredact/internal/logger"
)

func main() {
	// Load environment variables; PIPELINE_* and Google credentials usually live in .env
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Default logging until the command has loaded its configuration
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute()
}
