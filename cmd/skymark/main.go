package main

import (
	"log"

	"github.com/skymark/skymark/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ skymark failed to start: %v", err)
	}
}
