package parser

import (
	"regexp"
	"strconv"
)

// Score is the structured reading of the numeric-scoring response dialect
// used by the alternate evaluation prompt. Fields are nil when the text
// does not carry them.
type Score struct {
	Vulnerability *int
	Coping        *int
	Total         *int
	Signal        string
}

var (
	scoreExpr      = regexp.MustCompile(`(?i)vulnerability.*?(-?\d+).*?coping.*?(\d+).*?total.*?(-?\d+)`)
	totalScoreExpr = regexp.MustCompile(`(?i)total.*?score.*?(-?\d+)`)
)

// ExtractScore pulls vulnerability, coping, and total risk scores out of
// text like "Vulnerability score: -4, Coping score: 2, Total: -2". The
// signal flag derives from the total alone: Yes iff it lies in [-7, 0].
// Independent of Parse; the two response dialects never mix.
func ExtractScore(text string) Score {
	var score Score

	if m := scoreExpr.FindStringSubmatch(text); m != nil {
		score.Vulnerability = atoiRef(m[1])
		score.Coping = atoiRef(m[2])
		score.Total = atoiRef(m[3])
	} else if m := totalScoreExpr.FindStringSubmatch(text); m != nil {
		score.Total = atoiRef(m[1])
	}

	if score.Total != nil && *score.Total >= -7 && *score.Total <= 0 {
		score.Signal = "Yes"
	} else {
		score.Signal = "No"
	}
	return score
}

func atoiRef(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
