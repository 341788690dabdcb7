// Package chromem provides the semantic memory tier on chromem-go, an
// embedded pure Go vector database.
//
// Every agent gets its own collection. Entry fields other than the content
// travel as string metadata, and the embedding is computed once on write and
// reused when the entry is rewritten.
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/oceanbase/agentmem-go/pkg/embedder"
	"github.com/oceanbase/agentmem-go/pkg/storage"
)

const (
	metaAgentID    = "agent_id"
	metaUserID     = "user_id"
	metaKind       = "kind"
	metaImportance = "importance"
	metaCreatedAt  = "created_at"
	metaExpiresAt  = "expires_at"
	metaTags       = "tags"
	metaMetadata   = "metadata"
)

// Config holds configuration for the semantic tier.
type Config struct {
	// PersistPath enables on-disk persistence when set.
	PersistPath string
	Compress    bool

	// Embedder computes document vectors. Required.
	Embedder embedder.Provider

	Logger *zerolog.Logger
}

// Client wraps a chromem DB as a storage.Backend.
type Client struct {
	db       *chromem.DB
	embedder embedder.Provider
	embedFn  chromem.EmbeddingFunc
	logger   zerolog.Logger

	// mu serialises rewrites, which chromem performs as delete plus add.
	mu sync.Mutex
}

// NewClient creates a semantic tier, in memory unless PersistPath is set.
//
// Args:
//   - cfg: embedder (required), optional persist path and compression
//
// Returns:
//   - *Client: semantic tier client
//   - error: when the embedder is missing or the persisted DB cannot be opened
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Embedder == nil {
		return nil, errors.New("chromem: embedder is required")
	}

	var db *chromem.DB
	if cfg.PersistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open chromem db")
		}
	} else {
		db = chromem.NewDB()
	}

	c := &Client{
		db:       db,
		embedder: cfg.Embedder,
		embedFn:  EmbeddingFunc(cfg.Embedder),
		logger:   zerolog.Nop(),
	}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.With().Str("tier", "chromem").Logger()
	}
	return c, nil
}

// EmbeddingFunc adapts an embedder.Provider to chromem's embedding hook.
func EmbeddingFunc(p embedder.Provider) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		return toFloat32(vec), nil
	}
}

// Name implements storage.Backend.
func (c *Client) Name() string { return "chromem" }

func (c *Client) collection(agentID string) (*chromem.Collection, error) {
	col, err := c.db.GetOrCreateCollection("agent_"+agentID, nil, c.embedFn)
	if err != nil {
		return nil, errors.Wrap(err, "collection")
	}
	return col, nil
}

// Write embeds the entry content and adds it to the agent's collection.
func (c *Client) Write(ctx context.Context, entry *storage.Entry) error {
	col, err := c.collection(entry.AgentID)
	if err != nil {
		return err
	}

	vec, err := c.embedFn(ctx, entry.Content)
	if err != nil {
		return errors.Wrap(err, "Write")
	}

	meta, err := encodeMetadata(entry)
	if err != nil {
		return errors.Wrap(err, "Write")
	}

	return errors.Wrap(col.AddDocument(ctx, chromem.Document{
		ID:        strconv.FormatInt(entry.ID, 10),
		Metadata:  meta,
		Embedding: vec,
		Content:   entry.Content,
	}), "Write")
}

// Query returns the agent's matching entries, most recent first.
//
// Similarity is not used for ordering: the whole collection is scanned with a
// probe vector and filtered locally.
func (c *Client) Query(ctx context.Context, opts *storage.QueryOptions) ([]*storage.Entry, error) {
	col, err := c.collection(opts.AgentID)
	if err != nil {
		return nil, err
	}

	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	docs, err := col.QueryEmbedding(ctx, c.probe(), n, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Query")
	}

	var results []*storage.Entry
	for _, doc := range docs {
		entry, err := decode(doc.ID, doc.Content, doc.Metadata)
		if err != nil {
			c.logger.Warn().Err(err).Str("id", doc.ID).Msg("skipping malformed record")
			continue
		}
		if storage.Matches(entry, opts) {
			results = append(results, entry)
		}
	}

	storage.SortRecentFirst(results)
	return storage.Truncate(results, opts.Limit), nil
}

// UpdateImportance rewrites the document with the new importance.
func (c *Client) UpdateImportance(ctx context.Context, id int64, agentID string, importance float64) error {
	col, err := c.collection(agentID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	docID := strconv.FormatInt(id, 10)
	doc, err := col.GetByID(ctx, docID)
	if err != nil {
		return storage.ErrNotFound
	}

	meta := make(map[string]string, len(doc.Metadata))
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[metaImportance] = strconv.FormatFloat(importance, 'f', -1, 64)
	doc.Metadata = meta

	if err := col.Delete(ctx, nil, nil, docID); err != nil {
		return errors.Wrap(err, "UpdateImportance")
	}
	return errors.Wrap(col.AddDocument(ctx, doc), "UpdateImportance")
}

// DeleteOlderThan removes entries created before cutoff or already expired.
func (c *Client) DeleteOlderThan(ctx context.Context, agentID string, cutoff time.Time) (int, error) {
	col, err := c.collection(agentID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := col.Count()
	if n == 0 {
		return 0, nil
	}
	docs, err := col.QueryEmbedding(ctx, c.probe(), n, nil, nil)
	if err != nil {
		return 0, errors.Wrap(err, "DeleteOlderThan")
	}

	now := time.Now()
	var ids []string
	for _, doc := range docs {
		entry, err := decode(doc.ID, doc.Content, doc.Metadata)
		if err != nil {
			continue
		}
		expired := !entry.ExpiresAt.IsZero() && entry.ExpiresAt.Before(now)
		if entry.CreatedAt.Before(cutoff) || expired {
			ids = append(ids, doc.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, errors.Wrap(err, "DeleteOlderThan")
	}
	return len(ids), nil
}

// Close closes the embedder. The chromem DB holds no open handles.
func (c *Client) Close() error {
	return c.embedder.Close()
}

// probe is a unit vector used to enumerate a collection.
func (c *Client) probe() []float32 {
	dims := c.embedder.Dimensions()
	if dims <= 0 {
		dims = 1
	}
	vec := make([]float32, dims)
	vec[0] = 1
	return vec
}

func encodeMetadata(entry *storage.Entry) (map[string]string, error) {
	rec, err := storage.ToRecord(entry)
	if err != nil {
		return nil, err
	}
	meta := map[string]string{
		metaAgentID:    rec.AgentID,
		metaUserID:     rec.UserID,
		metaKind:       rec.Kind,
		metaImportance: strconv.FormatFloat(rec.Importance, 'f', -1, 64),
		metaCreatedAt:  strconv.FormatInt(rec.CreatedAt, 10),
		metaTags:       rec.Tags,
		metaMetadata:   rec.Metadata,
	}
	if rec.ExpiresAt != 0 {
		meta[metaExpiresAt] = strconv.FormatInt(rec.ExpiresAt, 10)
	}
	return meta, nil
}

func decode(id, content string, meta map[string]string) (*storage.Entry, error) {
	entryID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errors.Wrap(storage.ErrMalformedRecord, fmt.Sprintf("id %q", id))
	}
	importance, err := strconv.ParseFloat(meta[metaImportance], 64)
	if err != nil {
		return nil, errors.Wrap(storage.ErrMalformedRecord, "importance")
	}
	createdAt, err := strconv.ParseInt(meta[metaCreatedAt], 10, 64)
	if err != nil {
		return nil, errors.Wrap(storage.ErrMalformedRecord, "created_at")
	}

	rec := storage.Record{
		ID:         entryID,
		AgentID:    meta[metaAgentID],
		UserID:     meta[metaUserID],
		Kind:       meta[metaKind],
		Content:    content,
		Importance: importance,
		Metadata:   meta[metaMetadata],
		Tags:       meta[metaTags],
		CreatedAt:  createdAt,
	}
	if raw := meta[metaExpiresAt]; raw != "" {
		rec.ExpiresAt, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrap(storage.ErrMalformedRecord, "expires_at")
		}
	}
	return rec.ToEntry()
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
