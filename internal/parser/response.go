// Package parser converts free-text model answers into structured
// classification results. The model does not reliably honor any single
// output contract, so parsing is a chain of strategies tried in order:
// an embedded JSON object, triple-bar delimited segments, then labeled
// prose. Each strategy is a pure function over the text.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Result is the structured reading of one model answer. Countries and
// Hazards are free-form joined strings, not arrays. Signal is always
// exactly "Yes" or "No".
type Result struct {
	Countries     string
	Signal        string
	Justification string
	Hazards       string
}

var jsonBlobExpr = regexp.MustCompile(`(?s)\{.*\}`)

// Parse extracts (countries, signal, justification, hazards) from a raw
// model answer. An unrecognized shape is not an error; missing fields
// resolve to empty strings and the signal flag defaults to "No".
func Parse(text string) Result {
	if text == "" {
		return Result{Signal: "No"}
	}
	if res, ok := parseJSON(text); ok {
		return res
	}
	if res, ok := parseDelimited(text); ok {
		return res
	}
	return parseLabeled(text)
}

// parseJSON handles answers carrying a brace-delimited object anywhere in
// the text. A parsed object always answers the query, even with missing
// keys; only an unparsable blob falls through to the next strategy.
func parseJSON(text string) (Result, bool) {
	blob := jsonBlobExpr.FindString(text)
	if blob == "" {
		return Result{}, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(blob), &obj); err != nil {
		return Result{}, false
	}

	countries := joinValue(pick(obj, "country_list", "countries"))
	hazards := joinValue(pick(obj, "hazard_types", "hazards"))
	justification := stringify(pick(obj, "justification", "rationale"))

	signal := ""
	switch strings.ToLower(strings.TrimSpace(stringify(pick(obj, "is_signal", "signal")))) {
	case "yes", "true", "y", "1":
		signal = "Yes"
	case "no", "false", "n", "0":
		signal = "No"
	}
	if signal == "" {
		signal = "No"
	}

	return Result{
		Countries:     strings.TrimSpace(countries),
		Signal:        signal,
		Justification: strings.TrimSpace(justification),
		Hazards:       strings.TrimSpace(hazards),
	}, true
}

// parseDelimited handles the triple-bar contract from the evaluation
// prompt: countries ||| yes/no ||| justification ||| hazards. Providers
// sometimes prepend labels like "Countries:" to each segment; those are
// stripped before assignment.
func parseDelimited(text string) (Result, bool) {
	if !strings.Contains(text, "|||") {
		return Result{}, false
	}

	parts := [4]string{}
	for i, part := range strings.Split(text, "|||") {
		if i >= len(parts) {
			break
		}
		parts[i] = strings.TrimSpace(part)
	}

	signal := "No"
	token := ""
	if fields := strings.Fields(stripLabel(parts[1])); len(fields) > 0 {
		token = strings.ToLower(fields[0])
	}
	switch {
	case strings.HasPrefix(token, "yes"):
		signal = "Yes"
	case strings.HasPrefix(token, "no"):
		signal = "No"
	default:
		// Fall back to a substring search over the whole segment.
		low := strings.ToLower(parts[1])
		if strings.Contains(low, "yes") {
			signal = "Yes"
		}
	}

	return Result{
		Countries:     stripLabel(parts[0]),
		Signal:        signal,
		Justification: stripLabel(parts[2]),
		Hazards:       stripLabel(parts[3]),
	}, true
}

var (
	dashExpr = regexp.MustCompile(`\s*[-–—]\s*`)

	countriesExpr     = regexp.MustCompile(`(?i)(?:countries|expected\s*countr(?:y|ies)|impacted\s*countries?)\s*:\s*(.+)`)
	signalExpr        = regexp.MustCompile(`(?i)(?:whether\s+the\s+information\s+is\s+(?:a\s+)?potential\s+signal|potential\s+signal|signal)\s*:\s*([A-Za-z]+)`)
	justificationExpr = regexp.MustCompile(`(?i)(?:short\s+justification|justification|rationale)\s*:\s*(.+)`)
	hazardsExpr       = regexp.MustCompile(`(?i)(?:hazard(?:\s*type)?s?|suggested\s+hazard\s*type)\s*:\s*(.+)`)
	signalHintExpr    = regexp.MustCompile(`(?i)signal[^:]{0,40}:\s*([A-Za-z]+)`)
)

// parseLabeled handles prose answers such as "Whether the information is a
// potential SIGNAL: Yes - A short justification: ...". Dash-like separators
// become line breaks so each label lookup stays within its own clause.
func parseLabeled(text string) Result {
	norm := dashExpr.ReplaceAllString(text, "\n")

	findVal := func(expr *regexp.Regexp) string {
		if m := expr.FindStringSubmatch(norm); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}

	signal := "No"
	if raw := findVal(signalExpr); raw != "" {
		signal = yesNoFromPrefix(raw)
	} else if m := signalHintExpr.FindStringSubmatch(norm); m != nil {
		signal = yesNoFromPrefix(m[1])
	}

	return Result{
		Countries:     findVal(countriesExpr),
		Signal:        signal,
		Justification: findVal(justificationExpr),
		Hazards:       findVal(hazardsExpr),
	}
}

func yesNoFromPrefix(token string) string {
	low := strings.ToLower(token)
	if strings.HasPrefix(low, "y") || strings.HasPrefix(low, "t") {
		return "Yes"
	}
	return "No"
}

// stripLabel drops a leading "Label:" prefix, keeping everything after the
// first colon.
func stripLabel(s string) string {
	if _, rest, found := strings.Cut(s, ":"); found {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(s)
}

// pick returns the first non-empty value among the candidate keys.
func pick(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				return v
			}
		default:
			return v
		}
	}
	return nil
}

// joinValue renders a string as-is and a list as a comma-separated string.
func joinValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return stringify(v)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers; render integral values without a decimal point.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
