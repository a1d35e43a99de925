package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/AswinBehera/staticfrontier/internal/httpserver"
	"github.com/AswinBehera/staticfrontier/internal/notify"
	"github.com/AswinBehera/staticfrontier/internal/puzzles"
	"github.com/AswinBehera/staticfrontier/internal/store"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := puzzles.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to load puzzle catalog")
	}

	// SQLite always holds the users table; it can also serve as the KV
	// backend when no Redis is configured.
	db, err := store.OpenDB(getEnv("SQLITE_DSN", "./data/app.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	var kv store.KV
	backend := getEnv("STORE_BACKEND", "sqlite")
	switch backend {
	case "redis":
		kv, err = store.NewRedis(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
	case "memory":
		kv = store.NewMemory()
	default:
		kv = store.NewSQLite(db)
	}

	srv := httpserver.New(kv, db, notify.NewLog())
	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Str("store", backend).Msg("starting static-frontier server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
