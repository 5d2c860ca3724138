package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kestrel/internal/config"
	"kestrel/internal/engine"
	"kestrel/internal/logging"
)

func main() {
	// Optional .env for environment overrides; absence is fine.
	_ = godotenv.Load()

	cfgPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			os.Stderr.WriteString("config: " + err.Error() + "\n")
			os.Exit(1)
		}
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	eng := engine.New(cfg, logger)
	eng.Start()

	<-ctx.Done()
	if err := eng.Close(); err != nil {
		logger.Error().Err(err).Msg("engine shutdown error")
	}
}
