package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/printq/internal/report/app"
)

func main() {
	cfg, err := app.LoadEdgeConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	flags := pflag.NewFlagSet("edge", pflag.ContinueOnError)
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP listen port (PORT)")
	flags.StringVar(&cfg.ScriptsDir, "scripts-dir", cfg.ScriptsDir, "template root (SCRIPTS_DIR)")
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

	edge, err := app.NewEdge(cfg)
	if err != nil {
		log.Fatalf("failed to initialize edge: %v", err)
	}

	if err := edge.Run(); err != nil {
		log.Fatalf("edge error: %v", err)
	}
}
