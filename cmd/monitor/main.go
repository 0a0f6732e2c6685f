// ./cmd/monitor/main.go
//
// Serve the rig dashboard: relays live sensor readings from MQTT to
// browsers over websockets, with a JSON snapshot endpoint for scripts.
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

	log.Println("starting spectackler monitor")
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := app.RunMonitor(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
