package redact

import (
	"strings"
	"testing"
)

func TestRedact_EmailAndPhone(t *testing.T) {
	input := "Contact me at jane@example.com or 020 7946 0991"

	result := Redact(input, nil)

	if !result.HasPII {
		t.Fatal("expected PII to be detected")
	}
	if strings.Contains(result.RedactedText, "jane@example.com") {
		t.Errorf("raw email survived redaction: %q", result.RedactedText)
	}
	if strings.Contains(result.RedactedText, "020 7946 0991") {
		t.Errorf("raw phone number survived redaction: %q", result.RedactedText)
	}

	types := make(map[string]bool)
	for _, d := range result.Detected {
		types[d.Type] = true
	}
	if !types["email"] {
		t.Error("expected email to be among detected types")
	}
	if !types["phone"] {
		t.Error("expected phone to be among detected types")
	}
}

func TestRedact_Idempotent(t *testing.T) {
	inputs := []string{
		"Contact me at jane@example.com or 020 7946 0991",
		"NI number AB 12 34 56 C, postcode SW1A 1AA",
		"Card 4111 1111 1111 1111, sort code 20-00-00, born 01/02/1990",
		"Server at 192.168.0.1 emailed bob.smith+tag@department.gov.uk",
	}

	for _, input := range inputs {
		once := Redact(input, nil)
		twice := Redact(once.RedactedText, nil)
		if twice.RedactedText != once.RedactedText {
			t.Errorf("redaction not idempotent for %q:\n once: %q\ntwice: %q",
				input, once.RedactedText, twice.RedactedText)
		}
		if twice.HasPII {
			t.Errorf("second pass still detects PII in %q", once.RedactedText)
		}
	}
}

func TestRedact_CountMatchesDetections(t *testing.T) {
	input := "a@b.com and c@d.org, ring 020 7946 0991, visit 10.0.0.1 and 10.0.0.2"

	result := Redact(input, nil)

	sum := 0
	for _, d := range result.Detected {
		sum += d.Count
	}
	if result.RedactionCount != sum {
		t.Errorf("redactionCount = %d, sum of detections = %d", result.RedactionCount, sum)
	}
	if result.RedactionCount != 5 {
		t.Errorf("expected 5 redactions, got %d", result.RedactionCount)
	}
}

func TestRedact_PreserveLength(t *testing.T) {
	input := "mail jane@example.com today"

	result := Redact(input, &Options{PreserveLength: true})

	if len(result.RedactedText) != len(input) {
		t.Errorf("length changed: input %d, output %d", len(input), len(result.RedactedText))
	}
	if !strings.Contains(result.RedactedText, strings.Repeat("*", len("jane@example.com"))) {
		t.Errorf("expected same-length filler, got %q", result.RedactedText)
	}
}

func TestRedact_PatternSubset(t *testing.T) {
	input := "jane@example.com at 192.168.1.1"

	result := Redact(input, &Options{Patterns: []string{"ip_address"}})

	if !strings.Contains(result.RedactedText, "jane@example.com") {
		t.Error("email should be untouched when only ip_address is enabled")
	}
	if strings.Contains(result.RedactedText, "192.168.1.1") {
		t.Error("ip address should be redacted")
	}
	if len(result.Detected) != 1 || result.Detected[0].Type != "ip_address" {
		t.Errorf("unexpected detections: %+v", result.Detected)
	}
}

func TestRedact_OverlapResolvedAgainstOriginal(t *testing.T) {
	// The date inside the card-like digit run must not be redacted twice;
	// the earlier rule in the table claims the span.
	input := "card 4111-1111-1111-1111 end"

	result := Redact(input, nil)

	if result.RedactionCount != 1 {
		t.Errorf("expected a single redaction for overlapping patterns, got %d (%+v)",
			result.RedactionCount, result.Detected)
	}
	if result.Detected[0].Type != "card_number" {
		t.Errorf("expected card_number to win the overlap, got %q", result.Detected[0].Type)
	}
}

func TestRedact_DateSortCodeAttribution(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
	}{
		{
			name:     "dd-mm-yy reported as date",
			input:    "issued 12-03-25 by the office",
			wantType: "date",
		},
		{
			name:     "slash date reported as date",
			input:    "born 01/02/1990",
			wantType: "date",
		},
		{
			name:     "out-of-calendar pair reported as sort code",
			input:    "account sort code 70-20-33",
			wantType: "sort_code",
		},
		{
			name:     "invalid month reported as sort code",
			input:    "transfer via 20-00-00 today",
			wantType: "sort_code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Redact(tt.input, nil)
			if result.RedactionCount != 1 {
				t.Fatalf("expected one redaction, got %d (%+v)", result.RedactionCount, result.Detected)
			}
			if result.Detected[0].Type != tt.wantType {
				t.Errorf("detected type = %q, want %q", result.Detected[0].Type, tt.wantType)
			}
		})
	}
}

func TestRedact_RuleTableOrder(t *testing.T) {
	names := patternNames()

	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	for _, want := range []string{"email", "national_insurance", "card_number", "iban",
		"date", "sort_code", "phone", "ip_address", "postcode"} {
		if _, ok := pos[want]; !ok {
			t.Errorf("rule %q missing from table", want)
		}
	}
	// The attribution fix depends on date preceding sort_code.
	if pos["date"] > pos["sort_code"] {
		t.Error("date must be ordered before sort_code")
	}
	// Every published name must resolve to exactly one rule.
	if enabled := enabledRules(names); len(enabled) != len(names) {
		t.Errorf("enabledRules resolved %d of %d names", len(enabled), len(names))
	}
}

func TestRedact_NoPII(t *testing.T) {
	result := Redact("perfectly ordinary sentence", nil)

	if result.HasPII {
		t.Error("expected no PII")
	}
	if result.RedactionCount != 0 || len(result.Detected) != 0 {
		t.Errorf("unexpected detections: %+v", result)
	}
	if result.RedactedText != "perfectly ordinary sentence" {
		t.Errorf("text should be unchanged, got %q", result.RedactedText)
	}
}

func TestResult_Report(t *testing.T) {
	input := "Contact jane@example.com"
	result := Redact(input, nil)

	report := result.Report(input)

	if !report.HasPII {
		t.Error("expected hasPII in report")
	}
	if report.OriginalLength != len(input) {
		t.Errorf("originalLength = %d, want %d", report.OriginalLength, len(input))
	}
	if report.RedactedLength != len(result.RedactedText) {
		t.Errorf("redactedLength = %d, want %d", report.RedactedLength, len(result.RedactedText))
	}
	if len(report.DetectedTypes) != 1 || report.DetectedTypes[0] != "email" {
		t.Errorf("unexpected detected types: %v", report.DetectedTypes)
	}
}
