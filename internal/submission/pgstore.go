package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPgStore returns a store backed by the submissions table. The pool is
// shared and owned by the caller.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, now: time.Now}
}

func (p *PgStore) Create(ctx context.Context, n New) (Submission, error) {
	s := build(n, p.now())

	_, err := p.pool.Exec(ctx, `
		INSERT INTO submissions (id, name, email, phone, documents, images, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Name, s.Email, s.Phone, s.Documents, s.Images, s.CreatedAt)
	if err != nil {
		return Submission{}, fmt.Errorf("failed to insert submission: %w", err)
	}
	return s, nil
}

func (p *PgStore) ListNewestFirst(ctx context.Context) ([]Submission, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, name, email, phone, documents, images, created_at
		FROM submissions
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}

	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Submission, error) {
		var s Submission
		err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.Documents, &s.Images, &s.CreatedAt)
		s.CreatedAt = s.CreatedAt.UTC()
		s.Documents = nonNil(s.Documents)
		s.Images = nonNil(s.Images)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan submissions: %w", err)
	}
	if subs == nil {
		subs = []Submission{}
	}
	return subs, nil
}

func (p *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return n, nil
}
