// Package redact detects and replaces personally identifiable information
// in plain text using a fixed, ordered table of pattern rules.
//
// All rules are matched against the original input in a single pass and
// the resulting spans are merged before any replacement happens. Matching
// against progressively-redacted text would let one rule's replacement
// label hide text a later rule should have caught; matching the original
// avoids that ordering hazard and makes redaction idempotent.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"github.com/DEFRA/content-reviewer-backend-sub000/internal/domain"
)

// Rule pairs a named PII pattern with its replacement label.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Label   string
}

// rules is the full rule table in stable application order. Earlier rules
// win when spans overlap, so the more specific patterns come first.
var rules = []Rule{
	{
		Name:    "email",
		Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		Label:   "[REDACTED EMAIL]",
	},
	{
		Name:    "national_insurance",
		Pattern: regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`),
		Label:   "[REDACTED NI NUMBER]",
	},
	{
		Name:    "card_number",
		Pattern: regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{3,4}\b`),
		Label:   "[REDACTED CARD NUMBER]",
	},
	{
		Name:    "iban",
		Pattern: regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
		Label:   "[REDACTED IBAN]",
	},
	{
		// Constrained to calendar day/month ranges and ordered before
		// sort_code so dd-mm-yy dates are not reported as sort codes.
		Name:    "date",
		Pattern: regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])[/\-](?:0?[1-9]|1[0-2])[/\-](?:\d{4}|\d{2})\b`),
		Label:   "[REDACTED DATE]",
	},
	{
		Name:    "sort_code",
		Pattern: regexp.MustCompile(`\b\d{2}-\d{2}-\d{2}\b`),
		Label:   "[REDACTED SORT CODE]",
	},
	{
		Name:    "phone",
		Pattern: regexp.MustCompile(`(?:\+44\s?|\(?0)\d{2,4}\)?[ \-]?\d{3,4}[ \-]?\d{3,4}\b`),
		Label:   "[REDACTED PHONE]",
	},
	{
		Name:    "ip_address",
		Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		Label:   "[REDACTED IP ADDRESS]",
	},
	{
		Name:    "postcode",
		Pattern: regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]?\s?\d[A-Z]{2}\b`),
		Label:   "[REDACTED POSTCODE]",
	},
}

// patternNames returns the names of all rules in application order.
func patternNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

// Options controls a redaction pass.
type Options struct {
	// Patterns restricts the pass to the named rules. Empty means all.
	Patterns []string

	// PreserveLength replaces matches with same-length filler instead of
	// a label, for contexts that need layout preservation.
	PreserveLength bool
}

// Detection reports how many matches a single rule produced.
type Detection struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Result is the outcome of one redaction pass over one input.
type Result struct {
	RedactedText   string
	Detected       []Detection
	RedactionCount int
	HasPII         bool
}

// Report converts a Result into the PIIReport stored in job metadata.
func (r *Result) Report(original string) domain.PIIReport {
	types := make([]string, 0, len(r.Detected))
	for _, d := range r.Detected {
		types = append(types, d.Type)
	}
	return domain.PIIReport{
		HasPII:         r.HasPII,
		RedactionCount: r.RedactionCount,
		DetectedTypes:  types,
		OriginalLength: len(original),
		RedactedLength: len(r.RedactedText),
	}
}

// span is one accepted match region in the original text.
type span struct {
	start, end int
	rule       int // index into the enabled rule set
}

// Redact applies every enabled rule to text and returns the redacted
// output together with per-rule match counts. The function is pure; it
// never logs and has no side effects.
func Redact(text string, opts *Options) *Result {
	if opts == nil {
		opts = &Options{}
	}

	enabled := enabledRules(opts.Patterns)

	// Collect candidate spans from the original text for every rule.
	var spans []span
	for i, rule := range enabled {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1], rule: i})
		}
	}

	accepted := mergeSpans(spans)

	// Rebuild the output, replacing accepted spans in order.
	var b strings.Builder
	counts := make([]int, len(enabled))
	last := 0
	for _, sp := range accepted {
		b.WriteString(text[last:sp.start])
		if opts.PreserveLength {
			b.WriteString(strings.Repeat("*", sp.end-sp.start))
		} else {
			b.WriteString(enabled[sp.rule].Label)
		}
		counts[sp.rule]++
		last = sp.end
	}
	b.WriteString(text[last:])

	result := &Result{
		RedactedText:   b.String(),
		RedactionCount: len(accepted),
		HasPII:         len(accepted) > 0,
	}
	for i, rule := range enabled {
		if counts[i] > 0 {
			result.Detected = append(result.Detected, Detection{Type: rule.Name, Count: counts[i]})
		}
	}
	return result
}

// enabledRules resolves the requested pattern names against the rule
// table, preserving table order. Unknown names are ignored.
func enabledRules(names []string) []Rule {
	if len(names) == 0 {
		return rules
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var enabled []Rule
	for _, r := range rules {
		if wanted[r.Name] {
			enabled = append(enabled, r)
		}
	}
	return enabled
}

// mergeSpans sorts candidate spans and drops any span overlapping one
// already accepted. Ties on start position go to the earlier rule.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		if spans[i].rule != spans[j].rule {
			return spans[i].rule < spans[j].rule
		}
		return spans[i].end > spans[j].end
	})

	var accepted []span
	lastEnd := -1
	for _, sp := range spans {
		if sp.start < lastEnd {
			continue
		}
		accepted = append(accepted, sp)
		lastEnd = sp.end
	}
	return accepted
}
