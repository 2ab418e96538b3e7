package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/sjproject/dartsearch/pkg/models"
)

// PG is the Postgres+pgvector implementation of VectorIndex.
type PG struct {
	pool *pgxpool.Pool
}

// NewPG creates a new index backed by the given database URL.
func NewPG(ctx context.Context, url string) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PG{pool: p}, nil
}

func (s *PG) Close() { s.pool.Close() }

// Migrate applies necessary database migrations and schema setup.
func (s *PG) Migrate(ctx context.Context, dim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS disclosure_chunks (
  id             TEXT PRIMARY KEY,
  document_id    TEXT NOT NULL,
  section_index  INT NOT NULL,
  kind           TEXT NOT NULL,
  content        TEXT NOT NULL,
  token_count    INT NOT NULL,
  overlap_prev   BOOLEAN NOT NULL DEFAULT FALSE,
  embedding      vector(%d),
  created_at     TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS disclosure_chunks_document_idx
  ON disclosure_chunks (document_id);

CREATE INDEX IF NOT EXISTS disclosure_chunks_embedding_idx
  ON disclosure_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// Replace deletes the document's prior entries and installs the new set in
// one transaction, so queries see the swap atomically.
func (s *PG) Replace(ctx context.Context, documentID string, chunks []models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM disclosure_chunks WHERE document_id = $1`, documentID); err != nil {
		return err
	}

	const q = `
		INSERT INTO disclosure_chunks (
			id, document_id, section_index, kind, content, token_count, overlap_prev, embedding, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())`
	for _, c := range chunks {
		var ev any
		if c.Embedding != nil {
			ev = pgvector.NewVector(c.Embedding)
		} else {
			ev = (*pgvector.Vector)(nil)
		}
		if _, err := tx.Exec(ctx, q,
			c.ID, c.DocumentID, c.SectionIndex, string(c.Kind), c.Text, c.TokenCount, c.OverlapWithPrev, ev,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Search returns the topN chunks of one document by cosine similarity.
func (s *PG) Search(ctx context.Context, documentID string, vec []float32, topN int) ([]models.ScoredChunk, error) {
	const q = `
SELECT id, document_id, section_index, kind, content, token_count, overlap_prev, created_at,
       1.0 - (embedding <=> $2) AS similarity
FROM disclosure_chunks
WHERE document_id = $1 AND embedding IS NOT NULL
ORDER BY embedding <=> $2
LIMIT $3`

	rows, err := s.pool.Query(ctx, q, documentID, pgvector.NewVector(vec), topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var c models.Chunk
		var kind string
		var sim float64
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.SectionIndex, &kind, &c.Text, &c.TokenCount, &c.OverlapWithPrev, &c.CreatedAt,
			&sim,
		); err != nil {
			return nil, err
		}
		c.Kind = models.SectionKind(kind)
		out = append(out, models.ScoredChunk{Chunk: c, Score: sim, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		if indexed, err := s.exists(ctx, documentID); err != nil {
			return nil, err
		} else if !indexed {
			return nil, ErrNotIndexed
		}
	}
	return out, nil
}

// Delete removes all entries for a document.
func (s *PG) Delete(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM disclosure_chunks WHERE document_id = $1`, documentID)
	return err
}

// Chunks returns every stored chunk of a document in section/ID order.
func (s *PG) Chunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	const q = `
SELECT id, document_id, section_index, kind, content, token_count, overlap_prev, created_at
FROM disclosure_chunks
WHERE document_id = $1
ORDER BY section_index, id`

	rows, err := s.pool.Query(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var kind string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SectionIndex, &kind, &c.Text, &c.TokenCount, &c.OverlapWithPrev, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Kind = models.SectionKind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotIndexed
	}
	return out, nil
}

// Stats reports document and chunk counts.
func (s *PG) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT document_id), COUNT(*) FROM disclosure_chunks`,
	).Scan(&st.Documents, &st.TotalChunks)
	return st, err
}

// Ping checks the database connectivity.
func (s *PG) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PG) exists(ctx context.Context, documentID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM disclosure_chunks WHERE document_id = $1 LIMIT 1`, documentID,
	).Scan(&one)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
