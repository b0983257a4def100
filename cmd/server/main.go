// Package main implements the entry point for the StoryForge API server,
// which admits paid book-generation tasks, schedules their execution, and
// pushes lifecycle events to connected clients.
package main

import (
	"log"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
