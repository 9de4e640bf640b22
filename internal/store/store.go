package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrNotFound is returned by GetAttempt for an unknown ID. Match it with errors.Is.
var ErrNotFound = eris.New("attempt not found")

// AttemptFilter specifies criteria for listing submission attempts.
type AttemptFilter struct {
	Outcome model.Outcome       `json:"outcome,omitempty"`
	Reason  model.FailureReason `json:"reason,omitempty"`
	SiteURL string              `json:"site_url,omitempty"`
	// Since restricts results to attempts started at or after this time.
	Since  time.Time `json:"since,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for submission attempts.
type Store interface {
	// SaveAttempt inserts or replaces an attempt by ID. An empty ID is assigned.
	SaveAttempt(ctx context.Context, a *model.SubmissionAttempt) error
	GetAttempt(ctx context.Context, id string) (*model.SubmissionAttempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.SubmissionAttempt, error)
	// DeleteAttemptsBefore removes attempts started before cutoff and returns the count.
	DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
