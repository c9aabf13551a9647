package ports

import (
	"context"
	"time"

	"github.com/gigisung0503/eios/internal/domain"
)

// BoardResolver lists upstream boards carrying a tag.
type BoardResolver interface {
	Boards(ctx context.Context, tag string) ([]domain.Board, error)
}

// CandidateSource reconciles pinned and board-matching items into one
// deduplicated, pin-annotated candidate set for the given window.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, boardIDs []string, since time.Time) ([]domain.Candidate, error)
}

// SignalRepository persists raw items and classification results.
type SignalRepository interface {
	// SaveRaw stores the snapshot unless a row with the same external id
	// already exists, in which case the existing row is reused.
	SaveRaw(ctx context.Context, raw domain.RawSignal) (int64, error)
	SaveProcessed(ctx context.Context, signal domain.ProcessedSignal) error
}

// Ledger records already-classified external ids, enforcing at-most-once
// processing across cycles.
type Ledger interface {
	IsProcessed(ctx context.Context, externalID string) (bool, error)
	// MarkProcessed is idempotent.
	MarkProcessed(ctx context.Context, externalID string) error
}

// ChatClient asks the configured language model for a completion.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Scheduler controls when ingestion cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
