package main

import (
	"log"

	"github.com/quorumlab/nodegate/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("nodegate failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("nodegate exited with error: %v", err)
	}
}
