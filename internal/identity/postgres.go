package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps vectors in the identity_vectors table (pgvector column).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get loads the vector for personID.
func (p *PostgresStore) Get(ctx context.Context, personID string) (Vector, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT person_id, embedding, image_ref, updated_at
		FROM identity_vectors WHERE person_id = $1
	`, personID)
	var v Vector
	var emb pgvector.Vector
	if err := row.Scan(&v.PersonID, &emb, &v.ImageRef, &v.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Vector{}, false, nil
		}
		return Vector{}, false, err
	}
	v.Embedding = emb.Slice()
	return v, true, nil
}

// Put upserts the vector; the latest registration wins.
func (p *PostgresStore) Put(ctx context.Context, v Vector) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO identity_vectors (person_id, embedding, image_ref, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (person_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			image_ref = EXCLUDED.image_ref,
			updated_at = EXCLUDED.updated_at
	`, v.PersonID, pgvector.NewVector(v.Embedding), v.ImageRef, v.UpdatedAt)
	return err
}
