package main

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/dbconfig"
	"github.com/mcdev12/trierg/go/internal/store"
)

func setupDatabase() (*sql.DB, error) {
	dbCfg := dbconfig.NewConfigFromEnv()

	database, err := store.Open(dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	dbCfg.ConfigurePool(database)

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return database, nil
}
