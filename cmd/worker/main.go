package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/printq/internal/report/app"
)

func main() {
	cfg := app.LoadWorkerConfig()

	flags := pflag.NewFlagSet("worker", pflag.ContinueOnError)
	flags.IntVarP(&cfg.Concurrency, "concurrency", "c", cfg.Concurrency, "concurrent renders (WORKER_CONCURRENCY)")
	flags.StringVar(&cfg.ScriptsDir, "scripts-dir", cfg.ScriptsDir, "template root (SCRIPTS_DIR)")
	flags.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "health probe port (HEALTH_PORT)")
	version := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatal(err)
	}
	if *version {
		fmt.Println(app.BuildVersion)
		return
	}

	worker, err := app.NewWorker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize worker: %v", err)
	}

	if err := worker.Run(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}
