package dlp

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// InjectionFinding flags a phrase characteristic of prompt injection or
// safety-bypass attempts in ingress text.
type InjectionFinding struct {
	Kind     string
	Severity int
	Offset   int
	Length   int
}

// ScanInjection scans text for prompt-injection phrasing. Unlike PII and
// secret scans, overlapping matches are all reported — the Risk Engine only
// needs the highest severity among them, and suppressing overlaps here would
// hide distinct attack phrases that happen to share a span.
func (s *Scanner) ScanInjection(ctx context.Context, text string) []InjectionFinding {
	_, span := tracer.Start(ctx, "dlp.scan_injection")
	defer span.End()

	var findings []InjectionFinding
	for _, pattern := range s.injectionPatterns {
		for _, m := range pattern.Regex.FindAllStringIndex(text, -1) {
			findings = append(findings, InjectionFinding{
				Kind:     pattern.Name,
				Severity: pattern.Severity,
				Offset:   m[0],
				Length:   m[1] - m[0],
			})
		}
	}

	span.SetAttributes(attribute.Int("dlp.injection_count", len(findings)))
	return findings
}
