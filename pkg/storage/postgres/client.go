// Package postgres provides the PostgreSQL implementation of a durable memory tier.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// Client is a PostgreSQL tier client.
type Client struct {
	db        *sql.DB
	tableName string
	logger    zerolog.Logger
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
	SSLMode   string

	// Logger receives skipped-record warnings. Nil disables logging.
	Logger *zerolog.Logger
}

// NewClient creates a new PostgreSQL client.
//
// Args:
//   - cfg: connection settings, table name and SSL mode (default "disable")
//
// Returns:
//   - *Client: PostgreSQL tier client
//   - error: when the server cannot be reached or the table cannot be created
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "NewPostgresClient")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "NewPostgresClient")
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
		client.logger = cfg.Logger.With().Str("tier", "postgres").Logger()
	}

	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			agent_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255) NOT NULL DEFAULT '',
			kind VARCHAR(64) NOT NULL,
			content TEXT NOT NULL,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			metadata JSONB,
			tags JSONB,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "initTables: create table")
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_agent_created ON %s(agent_id, created_at)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return errors.Wrap(err, "initTables: create index")
	}

	return nil
}

// Name implements storage.Backend.
func (c *Client) Name() string { return "postgres" }

// Write inserts an entry.
func (c *Client) Write(ctx context.Context, entry *storage.Entry) error {
	rec, err := storage.ToRecord(entry)
	if err != nil {
		return errors.Wrap(err, "Write")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, agent_id, user_id, kind, content, importance, metadata, tags, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.tableName)

	_, err = c.db.ExecContext(ctx, query,
		rec.ID, rec.AgentID, rec.UserID, rec.Kind, rec.Content,
		rec.Importance, rec.Metadata, rec.Tags, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "Write")
	}
	return nil
}

// Query returns the agent's entries matching opts, most recent first.
func (c *Client) Query(ctx context.Context, opts *storage.QueryOptions) ([]*storage.Entry, error) {
	whereClause, args := buildWhereClause(opts)

	query := fmt.Sprintf(`
		SELECT id, agent_id, user_id, kind, content, importance,
			COALESCE(metadata::text, ''), COALESCE(tags::text, ''), created_at, expires_at
		FROM %s
		%s
		ORDER BY created_at DESC, id ASC
	`, c.tableName, whereClause)
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
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
		if err := rows.Scan(
			&rec.ID, &rec.AgentID, &rec.UserID, &rec.Kind, &rec.Content,
			&rec.Importance, &rec.Metadata, &rec.Tags, &rec.CreatedAt, &rec.ExpiresAt,
		); err != nil {
			return nil, errors.Wrap(err, "Query")
		}

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
	query := fmt.Sprintf(`UPDATE %s SET importance = $1 WHERE id = $2 AND agent_id = $3`, c.tableName)

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

// DeleteOlderThan removes entries created before cutoff or past their retention hint.
func (c *Client) DeleteOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE agent_id = $1 AND (created_at < $2 OR (expires_at > 0 AND expires_at < $3))
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
