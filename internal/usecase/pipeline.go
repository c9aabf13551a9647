package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gigisung0503/eios/internal/domain"
	"github.com/gigisung0503/eios/internal/infrastructure/eios"
	"github.com/gigisung0503/eios/internal/infrastructure/llm"
	"github.com/gigisung0503/eios/internal/parser"
	"github.com/gigisung0503/eios/internal/ports"
	"github.com/gigisung0503/eios/internal/textutil"
)

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Boards       ports.BoardResolver
	Source       ports.CandidateSource
	Repository   ports.SignalRepository
	Ledger       ports.Ledger
	Chat         ports.ChatClient
	Prompt       string
	Tags         []string
	FetchWindow  time.Duration
	RateInterval time.Duration
	Logger       *slog.Logger
}

// Pipeline implements one ingestion cycle: resolve boards per tag,
// reconcile candidates, then classify, parse, persist, and ledger each
// un-ledgered candidate strictly sequentially.
type Pipeline struct {
	boards      ports.BoardResolver
	source      ports.CandidateSource
	repository  ports.SignalRepository
	ledger      ports.Ledger
	chat        ports.ChatClient
	prompt      string
	tags        []string
	fetchWindow time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
	now         func() time.Time
}

// NewPipeline constructs the orchestration component. The rate limiter
// spaces classification calls by the configured interval; provider quota
// is shared, so per-document work is never fanned out.
func NewPipeline(deps PipelineDeps) *Pipeline {
	interval := deps.RateInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	window := deps.FetchWindow
	if window <= 0 {
		window = 5 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		boards:      deps.Boards,
		source:      deps.Source,
		repository:  deps.Repository,
		ledger:      deps.Ledger,
		chat:        deps.Chat,
		prompt:      deps.Prompt,
		tags:        deps.Tags,
		fetchWindow: window,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		logger:      logger,
		now:         time.Now,
	}
}

// RunCycle executes one ingestion cycle. A credential failure aborts the
// cycle (retried on the next scheduled run); an upstream failure on one
// tag is logged and the remaining tags still run; a failure on one
// candidate is logged and the cycle moves on.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	log := p.logger.With("run_id", uuid.NewString())
	since := p.now().UTC().Add(-p.fetchWindow)
	log.Info("cycle start", "tags", len(p.tags), "since", since.Format(time.RFC3339))

	var processed, signals int
	for _, tag := range p.tags {
		boards, err := p.boards.Boards(ctx, tag)
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("resolve boards for tag %q: %w", tag, err)
			}
			log.Error("board resolution failed, skipping tag", "tag", tag, "error", err)
			continue
		}
		if len(boards) == 0 {
			log.Warn("no boards found for tag", "tag", tag)
			continue
		}

		boardIDs := make([]string, 0, len(boards))
		for _, board := range boards {
			boardIDs = append(boardIDs, board.ID)
		}

		candidates, err := p.source.FetchCandidates(ctx, boardIDs, since)
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("fetch candidates for tag %q: %w", tag, err)
			}
			log.Error("candidate fetch failed, skipping tag", "tag", tag, "error", err)
			continue
		}

		for _, candidate := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}
			isSignal, err := p.processCandidate(ctx, log, candidate)
			if err != nil {
				if errors.Is(err, errAlreadyProcessed) {
					log.Debug("skipping already processed item", "external_id", candidate.ExternalID)
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("processing failed, skipping item", "external_id", candidate.ExternalID, "error", err)
				continue
			}
			processed++
			if isSignal {
				signals++
			}
		}
	}

	log.Info("cycle complete", "processed", processed, "signals", signals)
	return nil
}

var errAlreadyProcessed = errors.New("already processed")

// processCandidate classifies one candidate and reports whether it was
// assessed as a signal. The ledger is checked immediately before the
// classification attempt and written only after the result is persisted.
func (p *Pipeline) processCandidate(ctx context.Context, log *slog.Logger, candidate domain.Candidate) (bool, error) {
	done, err := p.ledger.IsProcessed(ctx, candidate.ExternalID)
	if err != nil {
		return false, fmt.Errorf("ledger check: %w", err)
	}
	if done {
		return false, errAlreadyProcessed
	}

	combined := textutil.Combine(candidate.TextFields()...)

	rawID, err := p.repository.SaveRaw(ctx, domain.RawSignal{
		ExternalID:                   candidate.ExternalID,
		OriginalTitle:                candidate.OriginalTitle,
		Title:                        candidate.Title,
		TranslatedDescription:        candidate.TranslatedDescription,
		TranslatedAbstractiveSummary: candidate.TranslatedAbstractiveSummary,
		AbstractiveSummary:           candidate.AbstractiveSummary,
		CombinedText:                 combined,
	})
	if err != nil {
		return false, fmt.Errorf("save raw: %w", err)
	}

	// Deliberate provider rate limiting: classification calls share quota
	// and must stay sequential.
	if err := p.limiter.Wait(ctx); err != nil {
		return false, err
	}

	answer, err := p.chat.Complete(ctx, llm.RenderPrompt(p.prompt, combined))
	if err != nil {
		// The item is still persisted and ledgered with default fields: a
		// permanent skip guarantees forward progress over indefinite retry.
		log.Error("classification failed, recording defaults", "external_id", candidate.ExternalID, "error", err)
		answer = ""
	}

	result := parser.Parse(answer)
	score := parser.ExtractScore(answer)

	if err := p.repository.SaveProcessed(ctx, domain.ProcessedSignal{
		ExternalID:         candidate.ExternalID,
		ExtractedCountries: result.Countries,
		ExtractedHazards:   result.Hazards,
		RawAssessment:      answer,
		Justification:      result.Justification,
		VulnerabilityScore: score.Vulnerability,
		CopingScore:        score.Coping,
		TotalRiskScore:     score.Total,
		IsSignal:           result.Signal,
		Pinned:             candidate.Pinned,
		Status:             domain.StatusNew,
		RawSignalID:        rawID,
	}); err != nil {
		return false, fmt.Errorf("save processed: %w", err)
	}

	if err := p.ledger.MarkProcessed(ctx, candidate.ExternalID); err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}

	log.Info("processed item",
		"external_id", candidate.ExternalID,
		"is_signal", result.Signal,
		"pinned", candidate.Pinned)
	return result.Signal == "Yes", nil
}

// isFatal reports whether the error should abort the whole cycle rather
// than just the affected tag.
func isFatal(err error) bool {
	var authErr *eios.AuthError
	return errors.As(err, &authErr)
}
