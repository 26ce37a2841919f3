package dlp

import (
	"bufio"
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// allowlistMarker suppresses a secret finding when present on the same
// line as the match.
const allowlistMarker = "allowlist secret"

// SecretFinding is one detected secret instance. Offsets are relative to
// the scanned text, not the line.
type SecretFinding struct {
	Kind   string
	Offset int
	Length int
}

// ScanSecrets detects secret-family patterns in egress text (tool writes,
// tool output). A finding is suppressed when "allowlist secret" appears on
// the same line as the match.
func (s *Scanner) ScanSecrets(ctx context.Context, text string) []SecretFinding {
	_, span := tracer.Start(ctx, "dlp.scan_secrets")
	defer span.End()

	lineStarts := lineStartOffsets(text)

	var findings []SecretFinding
	for _, pattern := range s.secretPatterns {
		for _, m := range pattern.Regex.FindAllStringIndex(text, -1) {
			start, end := m[0], m[1]
			if lineContainsAllowlist(text, lineStarts, start) {
				continue
			}
			findings = append(findings, SecretFinding{
				Kind:   pattern.Entity,
				Offset: start,
				Length: end - start,
			})
		}
	}

	span.SetAttributes(attribute.Int("dlp.secret_count", len(findings)))
	return findings
}

func lineStartOffsets(text string) []int {
	starts := []int{0}
	for i, r := range text {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineContainsAllowlist(text string, lineStarts []int, offset int) bool {
	start, end := lineBounds(text, lineStarts, offset)
	return strings.Contains(strings.ToLower(text[start:end]), allowlistMarker)
}

func lineBounds(text string, lineStarts []int, offset int) (start, end int) {
	start = 0
	for _, s := range lineStarts {
		if s <= offset {
			start = s
		} else {
			break
		}
	}
	end = len(text)
	if idx := strings.IndexByte(text[start:], '\n'); idx >= 0 {
		end = start + idx
	}
	return start, end
}

// scanReader is a streaming-friendly variant used by callers that already
// hold an *bufio.Scanner over bounded-length tool output lines.
func scanReaderLines(sc *bufio.Scanner) []string {
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}
