package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DocumentVector maps one vector id to the document it was produced from.
type DocumentVector struct {
	ID        int64     `json:"id"`
	DocID     string    `json:"docId"`
	VectorID  string    `json:"vectorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// DocumentVectorStore persists document-to-vector mappings.
type DocumentVectorStore interface {
	// BulkInsert writes all rows atomically.
	BulkInsert(ctx context.Context, rows []DocumentVector) error
	// Where returns the rows of a document in insertion order.
	Where(ctx context.Context, docID string) ([]DocumentVector, error)
	// DeleteForDocument removes every row of a document.
	DeleteForDocument(ctx context.Context, docID string) error
}

// DocumentVectors is the sqlite DocumentVectorStore.
type DocumentVectors struct {
	db *DB
}

func NewDocumentVectors(db *DB) *DocumentVectors {
	return &DocumentVectors{db: db}
}

// sqlite's default SQLITE_MAX_VARIABLE_NUMBER is 32766; two per row.
const insertBatch = 500

func (s *DocumentVectors) BulkInsert(ctx context.Context, rows []DocumentVector) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(rows); start += insertBatch {
			end := min(start+insertBatch, len(rows))
			chunk := rows[start:end]

			placeholders := strings.TrimSuffix(strings.Repeat("(?, ?),", len(chunk)), ",")
			args := make([]any, 0, len(chunk)*2)
			for _, r := range chunk {
				args = append(args, r.DocID, r.VectorID)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO document_vectors (doc_id, vector_id) VALUES "+placeholders, args...); err != nil {
				return fmt.Errorf("inserting document vectors: %w", err)
			}
		}
		return nil
	})
}

func (s *DocumentVectors) Where(ctx context.Context, docID string) ([]DocumentVector, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT id, doc_id, vector_id, created_at FROM document_vectors WHERE doc_id = ? ORDER BY id", docID)
	if err != nil {
		return nil, fmt.Errorf("querying document vectors: %w", err)
	}
	defer rows.Close()

	var out []DocumentVector
	for rows.Next() {
		var dv DocumentVector
		if err := rows.Scan(&dv.ID, &dv.DocID, &dv.VectorID, &dv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document vector: %w", err)
		}
		out = append(out, dv)
	}
	return out, rows.Err()
}

func (s *DocumentVectors) DeleteForDocument(ctx context.Context, docID string) error {
	if _, err := s.db.conn.ExecContext(ctx,
		"DELETE FROM document_vectors WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("deleting document vectors: %w", err)
	}
	return nil
}
