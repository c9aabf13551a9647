package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigisung0503/eios/internal/domain"
	"github.com/gigisung0503/eios/internal/infrastructure/eios"
	"github.com/gigisung0503/eios/internal/logging"
)

type fakeBoards struct {
	boards map[string][]domain.Board
	errs   map[string]error
}

func (f *fakeBoards) Boards(_ context.Context, tag string) ([]domain.Board, error) {
	if err := f.errs[tag]; err != nil {
		return nil, err
	}
	return f.boards[tag], nil
}

type fakeSource struct {
	candidates []domain.Candidate
	err        error
}

func (f *fakeSource) FetchCandidates(context.Context, []string, time.Time) ([]domain.Candidate, error) {
	return f.candidates, f.err
}

type fakeRepo struct {
	rawSaved   map[string]int64
	processed  []domain.ProcessedSignal
	failRawFor string
}

func (f *fakeRepo) SaveRaw(_ context.Context, raw domain.RawSignal) (int64, error) {
	if raw.ExternalID == f.failRawFor {
		return 0, errors.New("disk full")
	}
	if f.rawSaved == nil {
		f.rawSaved = map[string]int64{}
	}
	if id, ok := f.rawSaved[raw.ExternalID]; ok {
		return id, nil
	}
	id := int64(len(f.rawSaved) + 1)
	f.rawSaved[raw.ExternalID] = id
	return id, nil
}

func (f *fakeRepo) SaveProcessed(_ context.Context, signal domain.ProcessedSignal) error {
	f.processed = append(f.processed, signal)
	return nil
}

type fakeLedger struct {
	seen map[string]bool
}

func (f *fakeLedger) IsProcessed(_ context.Context, id string) (bool, error) {
	return f.seen[id], nil
}

func (f *fakeLedger) MarkProcessed(_ context.Context, id string) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[id] = true
	return nil
}

type fakeChat struct {
	answer string
	err    error
	calls  int
}

func (f *fakeChat) Complete(context.Context, string) (string, error) {
	f.calls++
	return f.answer, f.err
}

func newTestPipeline(deps PipelineDeps) *Pipeline {
	deps.RateInterval = time.Millisecond
	deps.Logger = logging.NewWithWriter(io.Discard, "error")
	if deps.Tags == nil {
		deps.Tags = []string{"ephem emro"}
	}
	if deps.Boards == nil {
		deps.Boards = &fakeBoards{boards: map[string][]domain.Board{
			"ephem emro": {{ID: "1"}},
		}}
	}
	return NewPipeline(deps)
}

func TestRunCycleProcessesCandidates(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	ledger := &fakeLedger{}
	chat := &fakeChat{answer: "Chad ||| Yes ||| Outbreak reported ||| Cholera"}

	pipeline := newTestPipeline(PipelineDeps{
		Source: &fakeSource{candidates: []domain.Candidate{
			{ExternalID: "a", Title: "Cholera in Chad", Pinned: true},
		}},
		Repository: repo,
		Ledger:     ledger,
		Chat:       chat,
	})

	require.NoError(t, pipeline.RunCycle(context.Background()))

	require.Len(t, repo.processed, 1)
	got := repo.processed[0]
	assert.Equal(t, "a", got.ExternalID)
	assert.Equal(t, "Chad", got.ExtractedCountries)
	assert.Equal(t, "Yes", got.IsSignal)
	assert.Equal(t, "Outbreak reported", got.Justification)
	assert.Equal(t, "Cholera", got.ExtractedHazards)
	assert.True(t, got.Pinned)
	assert.True(t, ledger.seen["a"])
}

func TestRunCycleSkipsLedgeredCandidates(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	chat := &fakeChat{answer: "x ||| No ||| y ||| z"}

	pipeline := newTestPipeline(PipelineDeps{
		Source: &fakeSource{candidates: []domain.Candidate{
			{ExternalID: "old"},
			{ExternalID: "new"},
		}},
		Repository: repo,
		Ledger:     &fakeLedger{seen: map[string]bool{"old": true}},
		Chat:       chat,
	})

	require.NoError(t, pipeline.RunCycle(context.Background()))

	assert.Equal(t, 1, chat.calls)
	require.Len(t, repo.processed, 1)
	assert.Equal(t, "new", repo.processed[0].ExternalID)
}

func TestRunCycleClassificationFailureStillLedgers(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	ledger := &fakeLedger{}

	pipeline := newTestPipeline(PipelineDeps{
		Source:     &fakeSource{candidates: []domain.Candidate{{ExternalID: "a"}}},
		Repository: repo,
		Ledger:     ledger,
		Chat:       &fakeChat{err: errors.New("upstream timeout")},
	})

	require.NoError(t, pipeline.RunCycle(context.Background()))

	// Default fields are persisted and the item is ledgered: a permanent
	// skip rather than an indefinite retry.
	require.Len(t, repo.processed, 1)
	got := repo.processed[0]
	assert.Equal(t, "No", got.IsSignal)
	assert.Empty(t, got.ExtractedCountries)
	assert.Empty(t, got.RawAssessment)
	assert.True(t, ledger.seen["a"])
}

func TestRunCycleOneBadCandidateDoesNotAbort(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{failRawFor: "bad"}
	ledger := &fakeLedger{}

	pipeline := newTestPipeline(PipelineDeps{
		Source: &fakeSource{candidates: []domain.Candidate{
			{ExternalID: "bad"},
			{ExternalID: "good"},
		}},
		Repository: repo,
		Ledger:     ledger,
		Chat:       &fakeChat{answer: "x ||| Yes ||| y ||| z"},
	})

	require.NoError(t, pipeline.RunCycle(context.Background()))

	require.Len(t, repo.processed, 1)
	assert.Equal(t, "good", repo.processed[0].ExternalID)
	assert.False(t, ledger.seen["bad"])
}

func TestRunCycleTagFailureDoesNotDropOtherTags(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}

	pipeline := newTestPipeline(PipelineDeps{
		Tags: []string{"broken", "healthy"},
		Boards: &fakeBoards{
			boards: map[string][]domain.Board{"healthy": {{ID: "1"}}},
			errs:   map[string]error{"broken": &eios.UpstreamError{Endpoint: "/Boards/by-tags", Status: "502"}},
		},
		Source:     &fakeSource{candidates: []domain.Candidate{{ExternalID: "a"}}},
		Repository: repo,
		Ledger:     &fakeLedger{},
		Chat:       &fakeChat{answer: "x ||| No ||| y ||| z"},
	})

	require.NoError(t, pipeline.RunCycle(context.Background()))
	assert.Len(t, repo.processed, 1)
}

func TestRunCycleAuthFailureIsFatal(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline(PipelineDeps{
		Tags: []string{"a", "b"},
		Boards: &fakeBoards{errs: map[string]error{
			"a": fmt.Errorf("resolve boards: %w", &eios.AuthError{Reason: "token endpoint returned 400"}),
		}},
		Source:     &fakeSource{},
		Repository: &fakeRepo{},
		Ledger:     &fakeLedger{},
		Chat:       &fakeChat{},
	})

	err := pipeline.RunCycle(context.Background())
	require.Error(t, err)

	var authErr *eios.AuthError
	assert.ErrorAs(t, err, &authErr)
}
