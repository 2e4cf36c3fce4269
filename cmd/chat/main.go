package main

import (
	"log"

	"art-chat/internal/app"
)

func main() {
	cfg := app.LoadConfig()

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("start chat client: %v", err)
	}

	a.Start()
	app.WaitForShutdown(a)
}
