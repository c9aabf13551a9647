package domain

import "time"

// Board is an upstream content grouping resolved from a tag. Transient;
// never persisted by this core.
type Board struct {
	ID   string
	Tags []string
}

// Candidate is a deduplicated, pin-annotated item eligible for
// classification. Lives for one ingestion cycle.
type Candidate struct {
	ExternalID                   string
	Title                        string
	OriginalTitle                string
	TranslatedDescription        string
	TranslatedAbstractiveSummary string
	AbstractiveSummary           string
	Link                         string
	LanguageISO                  string
	PublishedAt                  string
	Pinned                       bool
}

// TextFields returns the fields combined into the classification prompt,
// in their canonical order.
func (c Candidate) TextFields() []string {
	return []string{
		c.OriginalTitle,
		c.Title,
		c.TranslatedDescription,
		c.TranslatedAbstractiveSummary,
		c.AbstractiveSummary,
	}
}

// RawSignal is the persisted snapshot of an upstream item before
// classification.
type RawSignal struct {
	ID                           int64
	ExternalID                   string
	OriginalTitle                string
	Title                        string
	TranslatedDescription        string
	TranslatedAbstractiveSummary string
	AbstractiveSummary           string
	CombinedText                 string
	CreatedAt                    time.Time
}

// ReviewStatus tracks the human triage state of a processed signal.
type ReviewStatus string

const (
	StatusNew       ReviewStatus = "new"
	StatusFlagged   ReviewStatus = "flagged"
	StatusDiscarded ReviewStatus = "discarded"
)

// ProcessedSignal is the structured classification result for one item.
// RawAssessment keeps the unparsed model output for transparency. The three
// score fields belong to the numeric-scoring response dialect and stay nil
// when the model answers in the consolidated format.
type ProcessedSignal struct {
	ID                 int64
	ExternalID         string
	ExtractedCountries string
	ExtractedHazards   string
	RawAssessment      string
	Justification      string
	VulnerabilityScore *int
	CopingScore        *int
	TotalRiskScore     *int
	IsSignal           string
	Pinned             bool
	Status             ReviewStatus
	ProcessedAt        time.Time
	RawSignalID        int64
}
