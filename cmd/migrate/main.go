package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"pomodoro/sessions/internal/config"
	"pomodoro/sessions/internal/db"
	"pomodoro/sessions/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("configure logging")
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	applied, err := db.RunMigrations(context.Background(), database, cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	log.Info().Int("applied", applied).Msg("migrations applied successfully")
}
