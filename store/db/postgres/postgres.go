package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/divinechat/internal/profile"
	"github.com/hrygo/divinechat/store"
)

//go:embed migration/schema.sql
var schema string

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Open the PostgreSQL connection
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		return nil, errors.Wrap(err, "failed to open db")
	}

	// Pool sized for streaming exchanges: each commit holds a connection briefly.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the schema inside one transaction.
func (d *DB) Migrate(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start migration")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply postgres schema")
	}
	return tx.Commit()
}

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}

func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
