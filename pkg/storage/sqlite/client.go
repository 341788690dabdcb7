// Package sqlite provides the SQLite implementation of a durable memory tier.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-node deployments. Metadata and tags are stored as JSON strings in
// TEXT fields and timestamps as integers so recency ordering is exact.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// Client implements storage.Backend using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing entries.
	tableName string

	logger zerolog.Logger
}

// Config contains configuration for creating a SQLite tier.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use.
	TableName string

	// Logger receives skipped-record warnings. Nil disables logging.
	Logger *zerolog.Logger
}

// NewClient creates a new SQLite tier client.
//
// Args:
//   - cfg: Configuration containing database path and table name
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, errors.Wrap(err, "NewSQLiteClient: failed to create directory")
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "NewSQLiteClient")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "NewSQLiteClient")
	}

	tableName := cfg.TableName
	if tableName == "" {
		tableName = "agent_memories"
	}

	client := &Client{
		db:        db,
		tableName: tableName,
		logger:    zerolog.Nop(),
	}
	if cfg.Logger != nil {
		client.logger = cfg.Logger.With().Str("tier", "sqlite").Logger()
	}

	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			agent_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0.5,
			metadata TEXT,
			tags TEXT,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "initTables")
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_agent_created ON %s(agent_id, created_at)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return errors.Wrap(err, "initTables")
	}

	return nil
}

// Name implements storage.Backend.
func (c *Client) Name() string { return "sqlite" }

// Write inserts an entry into the SQLite database.
func (c *Client) Write(ctx context.Context, entry *storage.Entry) error {
	rec, err := storage.ToRecord(entry)
	if err != nil {
		return errors.Wrap(err, "Write")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, agent_id, user_id, kind, content, importance, metadata, tags, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.tableName)

	_, err = c.db.ExecContext(ctx, query,
		rec.ID,
		rec.AgentID,
		rec.UserID,
		rec.Kind,
		rec.Content,
		rec.Importance,
		rec.Metadata,
		rec.Tags,
		rec.CreatedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "Write")
	}
	return nil
}

// Query returns the agent's entries matching opts, most recent first.
//
// Rows that cannot be decoded are skipped and logged.
func (c *Client) Query(ctx context.Context, opts *storage.QueryOptions) ([]*storage.Entry, error) {
	whereClause, args := buildWhereClause(opts)

	query := fmt.Sprintf(`
		SELECT id, agent_id, user_id, kind, content, importance, metadata, tags, created_at, expires_at
		FROM %s
		%s
		ORDER BY created_at DESC, id ASC
	`, c.tableName, whereClause)
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "Query")
	}
	defer func() { _ = rows.Close() }()

	var entries []*storage.Entry
	for rows.Next() {
		var rec storage.Record
		var metadata, tags sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.AgentID, &rec.UserID, &rec.Kind, &rec.Content,
			&rec.Importance, &metadata, &tags, &rec.CreatedAt, &rec.ExpiresAt,
		); err != nil {
			return nil, errors.Wrap(err, "Query")
		}
		rec.Metadata = metadata.String
		rec.Tags = tags.String

		entry, err := rec.ToEntry()
		if err != nil {
			c.logger.Warn().Err(err).Int64("id", rec.ID).Msg("skipping malformed record")
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "Query")
	}

	return entries, nil
}

// UpdateImportance patches the stored importance of one entry.
func (c *Client) UpdateImportance(ctx context.Context, id int64, agentID string, importance float64) error {
	query := fmt.Sprintf(`UPDATE %s SET importance = ? WHERE id = ? AND agent_id = ?`, c.tableName)

	result, err := c.db.ExecContext(ctx, query, importance, id, agentID)
	if err != nil {
		return errors.Wrap(err, "UpdateImportance")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "UpdateImportance")
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes entries created before cutoff and entries whose
// retention hint has passed.
func (c *Client) DeleteOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE agent_id = ? AND (created_at < ? OR (expires_at > 0 AND expires_at < ?))
	`, c.tableName)

	result, err := c.db.ExecContext(ctx, query, agentID, cutoff.UnixNano(), time.Now().Unix())
	if err != nil {
		return 0, errors.Wrap(err, "DeleteOlderThan")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "DeleteOlderThan")
	}
	return int(affected), nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
