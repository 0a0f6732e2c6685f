// ./cmd/console/main.go
//
// Tail every sensor topic on the rig broker and print readings as they
// arrive. Handy for checking a collector is alive without opening the
// dashboard.
package main

import (
	"flag"
	"log"

	"github.com/viscotheque/spectackler/internal/app"
	"github.com/viscotheque/spectackler/internal/config"
)

func main() {
	configPath := flag.String("config", "spectackler_config.txt", "rig configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := app.RunConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
