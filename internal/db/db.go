package db

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connect opens the database and applies migrations.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; also keeps ":memory:" databases on one connection
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates the schema for the connection's driver.
func Migrate(db *sqlx.DB) error {
	migrations := postgresMigrations
	if db.DriverName() == DriverSQLite {
		migrations = sqliteMigrations
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Printf("database migrations applied driver=%s", db.DriverName())
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            from_id TEXT NOT NULL,
            to_id TEXT NOT NULL,
            from_name TEXT NOT NULL DEFAULT '',
            to_name TEXT NOT NULL DEFAULT '',
            text TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            product_id TEXT NOT NULL DEFAULT '',
            counter_offer_product_id TEXT NOT NULL DEFAULT '',
            product_title TEXT NOT NULL DEFAULT '',
            counter_offer_product_title TEXT NOT NULL DEFAULT '',
            donation_id TEXT NOT NULL DEFAULT '',
            donation_title TEXT NOT NULL DEFAULT '',
            is_initial_offer BOOLEAN NOT NULL DEFAULT FALSE,
            confirmed_by JSONB NOT NULL DEFAULT '[]',
            status TEXT NOT NULL DEFAULT '',
            is_system BOOLEAN NOT NULL DEFAULT FALSE,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            deleted BOOLEAN NOT NULL DEFAULT FALSE
        );`,
	`CREATE INDEX IF NOT EXISTS messages_from_idx ON messages (from_id);`,
	`CREATE INDEX IF NOT EXISTS messages_to_idx ON messages (to_id);`,
	`CREATE TABLE IF NOT EXISTS user_records (
            user_id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL DEFAULT '',
            transactions JSONB NOT NULL DEFAULT '[]',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS donations (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            donor_id TEXT NOT NULL,
            recipient_id TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'available',
            delivery_date TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS products (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            title TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'available'
        );`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            from_id TEXT NOT NULL,
            to_id TEXT NOT NULL,
            from_name TEXT NOT NULL DEFAULT '',
            to_name TEXT NOT NULL DEFAULT '',
            text TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            product_id TEXT NOT NULL DEFAULT '',
            counter_offer_product_id TEXT NOT NULL DEFAULT '',
            product_title TEXT NOT NULL DEFAULT '',
            counter_offer_product_title TEXT NOT NULL DEFAULT '',
            donation_id TEXT NOT NULL DEFAULT '',
            donation_title TEXT NOT NULL DEFAULT '',
            is_initial_offer BOOLEAN NOT NULL DEFAULT FALSE,
            confirmed_by TEXT NOT NULL DEFAULT '[]',
            status TEXT NOT NULL DEFAULT '',
            is_system BOOLEAN NOT NULL DEFAULT FALSE,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            deleted BOOLEAN NOT NULL DEFAULT FALSE
        );`,
	`CREATE INDEX IF NOT EXISTS messages_from_idx ON messages (from_id);`,
	`CREATE INDEX IF NOT EXISTS messages_to_idx ON messages (to_id);`,
	`CREATE TABLE IF NOT EXISTS user_records (
            user_id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL DEFAULT '',
            transactions TEXT NOT NULL DEFAULT '[]',
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS donations (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            donor_id TEXT NOT NULL,
            recipient_id TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'available',
            delivery_date TIMESTAMP,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS products (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            title TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'available'
        );`,
}
