// Package submission holds the Submission record and the stores that
// persist it, together with the write hooks used to observe creations.
package submission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("submission not found")

// Submission is one persisted form fill.
type Submission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Documents []string  `json:"documents"`
	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"createdAt"`
}

// New is the caller-supplied part of a Submission. The store assigns the
// id and the creation time.
type New struct {
	Name      string
	Email     string
	Phone     string
	Documents []string
	Images    []string
}

// Store persists submissions. Records are created once and never updated
// or deleted.
type Store interface {
	Create(ctx context.Context, n New) (Submission, error)
	// ListNewestFirst returns every record ordered by CreatedAt descending.
	ListNewestFirst(ctx context.Context) ([]Submission, error)
	Count(ctx context.Context) (int, error)
}

// build stamps a New with a fresh id and a creation time truncated to the
// precision PostgreSQL keeps, so every copy of the record compares equal.
func build(n New, now time.Time) Submission {
	return Submission{
		ID:        uuid.NewString(),
		Name:      n.Name,
		Email:     n.Email,
		Phone:     n.Phone,
		Documents: nonNil(n.Documents),
		Images:    nonNil(n.Images),
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// newerFirst reports whether a sorts before b in listing order.
func newerFirst(a, b Submission) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
