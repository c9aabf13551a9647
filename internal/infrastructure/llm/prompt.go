package llm

import "strings"

// textPlaceholder marks where the document text lands in the evaluation
// prompt. Stored prompt overrides use the same placeholder.
const textPlaceholder = "{text}"

// DefaultPrompt is the consolidated risk-evaluation instruction: a single
// call that determines the signal flag, countries, justification, and
// hazard types with a triple-bar output contract.
const DefaultPrompt = `You are a public health intelligence analyst.
Task: Analyze raw information (news, social media, reports, summaries) in any language and determine if it likely represents a public health SIGNAL.

Definition: A SIGNAL is new or unusual information that may indicate a potential acute risk to human health and warrants further verification.

Consider as SIGNAL if any apply:
- Outbreaks or clusters of infectious disease
- Unusual symptoms, unknown etiology, or rapidly spreading illness
- Significant rise in morbidity/mortality or hospital burden
- Events in displaced populations, conflict zones, or disaster-affected areas
- Health system impact (e.g., HCW infections, medicine shortages)
- Reemerging diseases, VPD outbreaks, AMR threats
- Food/waterborne outbreaks or zoonoses with human exposure
- Natural or man-made disasters affecting health (floods, landslides, industrial spills)
- International spread potential, travel/trade restrictions, or reputational risk to WHO/authorities

Do NOT consider as SIGNAL:
- Routine seasonal illness patterns unless unusually intense
- Purely political/economic/social unrest with no health consequence
- Commentary/editorials with no factual reports
- Events resolved/controlled with no further risk
- Scientific findings without immediate health implications
- Information that does not indicate a potential acute risk to human health

Output format:
- Use ||| as a separator between fields in the output.
example of output as follows:
India ||| Yes ||| The severe rainfall in Vijayawada has caused significant waterlogging and resulted in a fatality, indicating a potential acute risk to human health. The situation involves natural disaster elements with potential health impacts due to flooding. |||environmental (flooding).

Rules:
- Use canonical country names when possible; subnational names allowed if country unknown.
- is Signal MUST be exactly "Yes" or "No" (default to "No" if uncertain).
- Keep justification short (1 sentence).
- Health Hazard Types: Use WHO standard terms (e.g., "COVID-19", "Dengue", "Malaria").
TEXT TO ANALYZE:
{text}`

// RenderPrompt substitutes the document text into the template, falling
// back to DefaultPrompt when no template is configured.
func RenderPrompt(template, text string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPrompt
	}
	return strings.ReplaceAll(template, textPlaceholder, text)
}
