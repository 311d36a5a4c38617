package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Bootstrap creates every table the service needs. All statements are
// idempotent (CREATE TABLE IF NOT EXISTS) so startup can run them every
// time, including when several instances share one schema.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS patrons (
			id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			barcode     VARCHAR(32)  NOT NULL,
			pin_hash    VARCHAR(100) NOT NULL,
			role        ENUM('PATRON','STAFF') NOT NULL DEFAULT 'PATRON',
			is_active   TINYINT(1)   NOT NULL DEFAULT 1,
			created_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_patrons_barcode (barcode)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			patron_id   BIGINT UNSIGNED NOT NULL,
			token_hash  CHAR(64)  NOT NULL,
			expires_at  DATETIME  NOT NULL,
			revoked_at  DATETIME  NULL,
			created_at  DATETIME  NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			UNIQUE KEY uq_refresh_token_hash (token_hash),
			KEY idx_refresh_patron (patron_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		// One row per (event, patron); cancellation is a status change,
		// never a delete, so the unique key doubles as the upsert conflict
		// target. waitlist_position carries no unique index on purpose:
		// density is maintained by the reindexer inside the mutating
		// transaction, and a unique index would make the bulk decrement
		// order-dependent in MySQL.
		`CREATE TABLE IF NOT EXISTS event_registrations (
			id                     BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			event_id               VARCHAR(64) NOT NULL,
			patron_id              BIGINT      NOT NULL,
			status                 ENUM('REGISTERED','WAITLISTED','CANCELED') NOT NULL,
			waitlist_position      INT         NULL,
			reminder_channel       ENUM('NONE','EMAIL','SMS','BOTH') NOT NULL DEFAULT 'EMAIL',
			reminder_opt_in        TINYINT(1)  NOT NULL DEFAULT 1,
			reminder_scheduled_for DATETIME    NULL,
			reminder_sent_at       DATETIME    NULL,
			registered_at          DATETIME    NOT NULL,
			canceled_at            DATETIME    NULL,
			updated_at             DATETIME    NOT NULL,
			PRIMARY KEY (id),
			UNIQUE KEY uq_event_patron (event_id, patron_id),
			KEY idx_reg_event_status (event_id, status),
			KEY idx_reg_patron (patron_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		// Append-only audit ledger. No hard FK to event_registrations:
		// the trail is observational and must outlive source-row changes.
		`CREATE TABLE IF NOT EXISTS registration_history (
			id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			event_id    VARCHAR(64) NOT NULL,
			patron_id   BIGINT      NOT NULL,
			action      VARCHAR(32) NOT NULL,
			from_status VARCHAR(16) NULL,
			to_status   VARCHAR(16) NOT NULL,
			metadata    JSON        NULL,
			created_at  DATETIME    NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id),
			KEY idx_hist_event (event_id, created_at),
			KEY idx_hist_patron (patron_id, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
