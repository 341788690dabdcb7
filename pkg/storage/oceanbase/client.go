// Package oceanbase provides a durable memory tier for OceanBase and other
// servers speaking the MySQL wire protocol.
package oceanbase

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/oceanbase/agentmem-go/pkg/storage"
)

// Client is an OceanBase client.
type Client struct {
	db        *sql.DB
	config    *Config
	tableName string
	logger    zerolog.Logger
}

// Config contains OceanBase configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string

	// Logger receives skipped-record warnings. Nil disables logging.
	Logger *zerolog.Logger
}

// NewClient creates a new OceanBase client. MySQL servers work the same way.
//
// Args:
//   - cfg: connection settings and table name
//
// Returns:
//   - *Client: OceanBase tier client
//   - error: when the server cannot be reached or the table cannot be created
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "NewOceanBaseClient")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "NewOceanBaseClient")
	}

	tableName := cfg.TableName
	if tableName == "" {
		tableName = "agent_memories"
	}

	client := &Client{
		db:        db,
		config:    cfg,
		tableName: tableName,
		logger:    zerolog.Nop(),
	}
	if cfg.Logger != nil {
		client.logger = cfg.Logger.With().Str("tier", "oceanbase").Logger()
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
			agent_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(128) NOT NULL DEFAULT '',
			kind VARCHAR(64) NOT NULL,
			content LONGTEXT NOT NULL,
			importance DOUBLE NOT NULL DEFAULT 0.5,
			metadata JSON,
			tags JSON,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0,
			INDEX idx_agent_created (agent_id, created_at)
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "initTables")
	}

	return nil
}

// Name implements storage.Backend.
func (c *Client) Name() string { return "oceanbase" }

// Write inserts an entry.
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
//
// MySQL reports zero affected rows when the value is unchanged, so existence
// is checked separately before reporting ErrNotFound.
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
	if affected > 0 {
		return nil
	}

	var exists int
	err = c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ? AND agent_id = ?`, c.tableName), id, agentID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "UpdateImportance")
	}
	return nil
}

// DeleteOlderThan removes entries created before cutoff or past their retention hint.
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
