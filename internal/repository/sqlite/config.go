package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/rpg-bot/internal/repository"
)

var _ repository.ConfigRepository = (*ConfigDB)(nil)

// ConfigDB is the config table view of DB.
type ConfigDB struct {
	db *DB
}

// Config returns the config table repository.
func (db *DB) Config() *ConfigDB {
	return &ConfigDB{db: db}
}

// GetOrAdd returns the value stored under name. An unset name is created
// with def first; ON CONFLICT DO NOTHING keeps the insert atomic, so two
// concurrent first reads both end up returning the row that won.
func (c *ConfigDB) GetOrAdd(ctx context.Context, name, def string) (string, error) {
	_, err := c.db.conn.ExecContext(ctx,
		`INSERT INTO config (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, def,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: adding config %s: %w", name, err)
	}

	var value string
	err = c.db.conn.QueryRowContext(ctx,
		`SELECT value FROM config WHERE name = ?`, name,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("sqlite: reading config %s: %w", name, err)
	}
	return value, nil
}

// Set stores value under name, creating the row if needed.
func (c *ConfigDB) Set(ctx context.Context, name, value string) error {
	_, err := c.db.conn.ExecContext(ctx,
		`INSERT INTO config (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting config %s: %w", name, err)
	}
	return nil
}

// All returns every stored setting.
func (c *ConfigDB) All(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.conn.QueryContext(ctx, `SELECT name, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing config: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("sqlite: scanning config row: %w", err)
		}
		values[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating config: %w", err)
	}
	return values, nil
}
