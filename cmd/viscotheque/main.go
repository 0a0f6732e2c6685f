package main

import (
	"flag"
	"log"

	"github.com/viscotheque/spectackler/internal/app"
	"github.com/viscotheque/spectackler/internal/config"
)

func main() {
	configPath := flag.String("config", "spectackler_config.txt", "rig configuration file")
	logPath := flag.String("log", "", "trace log to write (must not exist)")
	statePath := flag.String("states", "-", "state program TSV, or - for stdin")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("-log is required")
	}

	log.Println("starting spectackler landscape collector")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunViscotheque(*logPath, *statePath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
