// Package migrator applies embedded SQL migrations and records them in schema_migrations.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Record is a row of the schema_migrations table.
type Record struct {
	Name      string    `gorm:"primaryKey;size:190"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName overrides the gorm default.
func (Record) TableName() string {
	return "schema_migrations"
}

// Migrator manages database migrations.
type Migrator struct {
	migrationsFS fs.FS
}

// NewWithFS creates a new Migrator with the given filesystem.
// The fs should contain .sql migration files at its root.
func NewWithFS(migrationsFS fs.FS) (*Migrator, error) {
	if migrationsFS == nil {
		return nil, errors.New("migrationsFS cannot be nil")
	}

	return &Migrator{
		migrationsFS: migrationsFS,
	}, nil
}

// Up runs all pending migrations, each in its own transaction.
// It returns the names of the migrations applied by this call.
func (m *Migrator) Up(ctx context.Context, db *gorm.DB) ([]string, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	if err := db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := m.files()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, name := range names {
		var rec Record
		err := db.WithContext(ctx).Where("name = ?", name).Take(&rec).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return applied, fmt.Errorf("check migration %s: %w", name, err)
		}

		body, err := fs.ReadFile(m.migrationsFS, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, stmt := range splitStatements(string(body)) {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return tx.Create(&Record{Name: name, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return applied, fmt.Errorf("run migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}

	return applied, nil
}

// Version returns the name of the last applied migration, empty when none ran yet.
func (m *Migrator) Version(ctx context.Context, db *gorm.DB) (string, error) {
	if db == nil {
		return "", errors.New("db cannot be nil")
	}
	if !db.Migrator().HasTable(&Record{}) {
		return "", nil
	}

	var rec Record
	err := db.WithContext(ctx).Order("name DESC").Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("get version: %w", err)
	}
	return rec.Name, nil
}

func (m *Migrator) files() ([]string, error) {
	entries, err := fs.ReadDir(m.migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements drops comment lines and splits on semicolons.
func splitStatements(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var stmts []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
