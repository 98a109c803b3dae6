package main

import (
	"flag"
	"fmt"
	"os"

	"agroconecta-billing/internal/config"
	"agroconecta-billing/internal/infra/db/migrations"
	"agroconecta-billing/internal/infra/logging"
)

const usage = `usage: migrate [-config config.yaml] [-dev] up|down|status`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		l := logging.New(config.LogConfig{}, *devMode)
		l.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := migrations.Up(cfg.Database.URL); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
	case "down":
		if err := migrations.Down(cfg.Database.URL); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
	case "status":
	default:
		flag.Usage()
		os.Exit(2)
	}

	version, dirty, err := migrations.Status(cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate status")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
}
