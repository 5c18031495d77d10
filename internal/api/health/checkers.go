package health

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SQLiteChecker checks SQLite database connectivity.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a new SQLite health checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check verifies the SQLite database is accessible.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// NATSChecker checks the real-time broker connection.
type NATSChecker struct {
	conn *nats.Conn
}

// NewNATSChecker creates a new NATS health checker.
func NewNATSChecker(conn *nats.Conn) *NATSChecker {
	return &NATSChecker{conn: conn}
}

// Name returns the checker name.
func (c *NATSChecker) Name() string {
	return "nats"
}

// Check verifies the NATS connection is up.
func (c *NATSChecker) Check(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("nats not configured")
	}
	if status := c.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection %s", status)
	}
	return nil
}
