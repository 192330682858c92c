// Package database opens the message store: a SQLite file by default, PostgreSQL when given a URL.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/telememo/internal/logger"
	"github.com/blockedby/telememo/internal/migrator"
	"github.com/blockedby/telememo/internal/models"
	"github.com/blockedby/telememo/migrations"
)

// Dialect names as reported by gorm.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DB wraps the GORM instance and, for PostgreSQL, the pgx pool backing it.
type DB struct {
	GORM *gorm.DB
	Pool *pgxpool.Pool
}

// Open picks the backend from the dsn: postgres:// and postgresql:// URLs use PostgreSQL,
// anything else is a SQLite file path. The schema is migrated before returning.
func Open(ctx context.Context, dsn string, log *logger.Logger) (*DB, error) {
	if log == nil {
		log = logger.Get()
	}

	var (
		db  *DB
		err error
	)
	if IsPostgresURL(dsn) {
		db, err = OpenPostgres(ctx, dsn)
	} else {
		db, err = OpenSQLite(dsn)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, db.GORM); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("dialect", db.Dialect()).Msg("database: initialized")
	return db, nil
}

// IsPostgresURL reports whether dsn addresses a PostgreSQL server.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenSQLite opens (creating if needed) a SQLite database file.
// ":memory:" is accepted for tests.
func OpenSQLite(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	gormDB, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// one writer; also keeps a :memory: database alive across calls
	sqlDB.SetMaxOpenConns(1)

	return &DB{GORM: gormDB}, nil
}

// OpenPostgres creates a pgx pool and a GORM instance sharing it.
func OpenPostgres(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: stdlib.OpenDBFromPool(pool),
	}), gormConfig())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	return &DB{
		GORM: gormDB,
		Pool: pool,
	}, nil
}

// Migrate creates or updates tables from the models, then applies the embedded SQL migrations.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&models.Channel{}, &models.Message{}, &models.SyncRun{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	m, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		return err
	}
	applied, err := m.Up(ctx, db)
	if err != nil {
		return err
	}
	for _, name := range applied {
		logger.Get().Info().Str("migration", name).Msg("database: migration applied")
	}
	return backfillSearchText(ctx, db)
}

// backfillSearchText fills search_text for rows stored before the column existed.
func backfillSearchText(ctx context.Context, db *gorm.DB) error {
	const batch = 500
	for {
		var rows []models.Message
		err := db.WithContext(ctx).
			Select("channel_id", "message_id", "text").
			Where("search_text = '' AND text <> ''").
			Limit(batch).
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("backfill search text: %w", err)
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, m := range rows {
				err := tx.Model(&models.Message{}).
					Where("channel_id = ? AND message_id = ?", m.ChannelID, m.MessageID).
					UpdateColumn("search_text", models.FoldText(m.Text)).Error
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("backfill search text: %w", err)
		}
		if len(rows) < batch {
			return nil
		}
	}
}

// Dialect returns the gorm dialector name.
func (db *DB) Dialect() string {
	return db.GORM.Dialector.Name()
}

// Close closes the underlying connections.
func (db *DB) Close() {
	if sqlDB, err := db.GORM.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	sqlDB, err := db.GORM.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}
