// Package database opens the MySQL pool and creates the reservation schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// DSN builds the driver connection string.  clientFoundRows makes UPDATE
// report matched rows instead of changed rows.
func DSN(user, pass, host, port, name string) string {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, host, port, name)
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, user, pass, host, port, name string) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(user, pass, host, port, name))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trains (
		id              BIGINT       NOT NULL PRIMARY KEY,
		name            VARCHAR(128) NOT NULL,
		source          VARCHAR(128) NOT NULL,
		destination     VARCHAR(128) NOT NULL,
		departure       CHAR(5)      NOT NULL,
		arrival         CHAR(5)      NOT NULL,
		total_seats     INT          NOT NULL,
		available_seats INT          NOT NULL,
		fare            DECIMAL(10,2) NOT NULL DEFAULT 0,
		CONSTRAINT chk_trains_seats CHECK (available_seats BETWEEN 0 AND total_seats),
		INDEX idx_trains_route (source, destination)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id              BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		train_id        BIGINT       NOT NULL,
		passenger_name  VARCHAR(255) NOT NULL,
		passenger_email VARCHAR(255) NOT NULL,
		passenger_phone VARCHAR(64)  NOT NULL DEFAULT '',
		seat_number     INT          NOT NULL,
		fare            DECIMAL(10,2) NOT NULL DEFAULT 0,
		booked_at       DATETIME(6)  NOT NULL,
		status          ENUM('BOOKED','CANCELLED') NOT NULL DEFAULT 'BOOKED',
		INDEX idx_tickets_train (train_id, status, seat_number),
		INDEX idx_tickets_email (passenger_email),
		CONSTRAINT fk_tickets_train FOREIGN KEY (train_id) REFERENCES trains (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the trains and tickets tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
