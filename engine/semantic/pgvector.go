package semantic

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// PgStore implements Store on Postgres with the pgvector extension, using
// the wire schema chunks(id serial pk, qid, text, embedding vector(D))
// with an ivfflat cosine index.
type PgStore struct {
	db   *sql.DB
	dims int
}

// NewPg connects to Postgres with the given DSN.
func NewPg(dsn string) (*PgStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("semantic: open postgres: %w", err)
	}
	db.SetMaxIdleConns(4)
	return &PgStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PgStore) Close() error { return s.db.Close() }

// Init ensures the extension, table and ANN index exist. A pre-existing
// chunks table with a different vector width fails with ErrDims.
func (s *PgStore) Init(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: invalid dims %d", dims)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("semantic: create extension: %w", err)
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunks (
  id        SERIAL PRIMARY KEY,
  qid       CHAR(16) NOT NULL,
  text      TEXT NOT NULL,
  embedding vector(%d) NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_embedding_cosine_idx
ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`, dims)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("semantic: ensure schema: %w", err)
	}

	// The table may predate this call with another width; vector's
	// atttypmod is its dimension.
	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'`).Scan(&existing)
	if err != nil {
		return fmt.Errorf("semantic: read embedding width: %w", err)
	}
	if existing != dims {
		return fmt.Errorf("%w: table chunks has %d, requested %d", ErrDims, existing, dims)
	}
	s.dims = dims
	return nil
}

// InsertMany writes chunks in a single transaction.
func (s *PgStore) InsertMany(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := validateChunks(s.dims, chunks); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("semantic: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (qid, text, embedding) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("semantic: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.EntityID, c.Text, vectorLiteral(c.Embedding)); err != nil {
			return fmt.Errorf("semantic: insert chunk %s: %w", c.EntityID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("semantic: commit %d chunks: %w", len(chunks), err)
	}
	return nil
}

// ANN performs k-NN search ordered by the cosine distance operator.
func (s *PgStore) ANN(ctx context.Context, embedding []float32, k int, threshold float32) ([]Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT qid, text, embedding <=> $1 AS distance
		FROM chunks
		ORDER BY embedding <=> $1
		LIMIT $2`,
		vectorLiteral(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("semantic: ann query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var dist float64
		if err := rows.Scan(&h.EntityID, &h.Text, &dist); err != nil {
			return nil, fmt.Errorf("semantic: scan hit: %w", err)
		}
		h.EntityID = strings.TrimRight(h.EntityID, " ")
		h.Distance = float32(dist)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semantic: ann rows: %w", err)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return belowThreshold(hits, threshold), nil
}

// vectorLiteral renders an embedding in pgvector's input syntax.
func vectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
