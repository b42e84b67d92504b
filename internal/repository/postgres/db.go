package postgres

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"reclaim/internal/config"
)

// NewDB creates the PostgreSQL connection pool shared by the repositories.
// Pool limits come from config; analysis runs fan out one goroutine per
// document, so MaxOpen caps the whole pipeline's connection use.
func NewDB(cfg *config.DBConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetMaxIdleConns(cfg.MaxIdle)
	if cfg.ConnMaxLifetimeMins > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMins) * time.Minute)
	}
	return db, nil
}
