package dlp

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	phyotel "github.com/crozzbite/phylactery/internal/otel"
)

var tracer = phyotel.Tracer("github.com/crozzbite/phylactery/internal/dlp")

// redactionLabel maps a recognizer's supported_entity to the placeholder
// token it is redacted to: [REDACTED_EMAIL], [REDACTED_IP], [REDACTED_PCI].
var redactionLabel = map[string]string{
	"EMAIL_ADDRESS": "EMAIL",
	"IP_ADDRESS":    "IP",
	"CREDIT_CARD":   "PCI",
}

// piiOrder is the fixed evaluation order: email, then IPv4, then PCI-PAN.
// Overlaps are resolved by first match — a span claimed
// by an earlier pattern in this order cannot be claimed by a later one.
var piiOrder = []string{"EMAIL_ADDRESS", "IP_ADDRESS", "CREDIT_CARD"}

// PIIFinding is one detected, validated PII instance.
type PIIFinding struct {
	Entity string
	Value  string
	Start  int
	End    int
}

// Scanner redacts PII on ingress and detects secrets and prompt-injection
// phrasing on egress/ingress respectively.
type Scanner struct {
	piiPatterns       []CompiledPattern
	secretPatterns    []CompiledPattern
	injectionPatterns []CompiledPattern
}

// Option configures a Scanner via the functional-options pattern (teacher
// idiom: internal/classifier/pii.go's ScannerOption).
type Option func(*scannerConfig)

type scannerConfig struct {
	patternFile string
}

// WithPatternFile loads additional secret-family recognizers from a file.
// Missing files are silently skipped.
func WithPatternFile(path string) Option {
	return func(c *scannerConfig) { c.patternFile = path }
}

// NewScanner builds a Scanner from the embedded default PII and secret
// recognizers, plus any operator-configured pattern file overrides.
func NewScanner(opts ...Option) (*Scanner, error) {
	var cfg scannerConfig
	for _, o := range opts {
		o(&cfg)
	}

	pii, err := defaultPIIPatterns()
	if err != nil {
		return nil, err
	}

	secrets, err := defaultSecretPatterns()
	if err != nil {
		return nil, err
	}

	injection, err := defaultInjectionPatterns()
	if err != nil {
		return nil, err
	}

	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, err
		}
		if rf != nil {
			extra, err := Compile(rf.Recognizers)
			if err != nil {
				return nil, err
			}
			secrets = append(secrets, extra...)
		}
	}

	return &Scanner{piiPatterns: pii, secretPatterns: secrets, injectionPatterns: injection}, nil
}

// ScanPII finds validated PII instances in text without redacting.
func (s *Scanner) ScanPII(ctx context.Context, text string) []PIIFinding {
	_, span := tracer.Start(ctx, "dlp.scan_pii")
	defer span.End()

	byEntity := make(map[string][]CompiledPattern)
	for _, p := range s.piiPatterns {
		byEntity[p.Entity] = append(byEntity[p.Entity], p)
	}

	var claimed []PIIFinding
	for _, entity := range piiOrder {
		for _, pattern := range byEntity[entity] {
			for _, m := range pattern.Regex.FindAllStringIndex(text, -1) {
				start, end := m[0], m[1]
				if overlapsAny(claimed, start, end) {
					continue
				}
				value := text[start:end]
				if entity == "CREDIT_CARD" && !isValidPAN(value) {
					continue
				}
				claimed = append(claimed, PIIFinding{Entity: entity, Value: value, Start: start, End: end})
			}
		}
	}

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].Start < claimed[j].Start })

	span.SetAttributes(attribute.Int("dlp.pii_count", len(claimed)))
	return claimed
}

// Redact replaces detected PII with [REDACTED_<TYPE>] placeholders. Matches
// are replaced back-to-front so earlier offsets remain valid.
func (s *Scanner) Redact(ctx context.Context, text string) string {
	findings := s.ScanPII(ctx, text)
	if len(findings) == 0 {
		return text
	}

	result := []byte(text)
	for i := len(findings) - 1; i >= 0; i-- {
		f := findings[i]
		label, ok := redactionLabel[f.Entity]
		if !ok {
			label = f.Entity
		}
		placeholder := "[REDACTED_" + label + "]"
		result = append(result[:f.Start], append([]byte(placeholder), result[f.End:]...)...)
	}
	return string(result)
}

func overlapsAny(claimed []PIIFinding, start, end int) bool {
	for _, c := range claimed {
		if start < c.End && end > c.Start {
			return true
		}
	}
	return false
}

// isValidPAN strips separators and checks a 13-16 digit run passes Luhn.
func isValidPAN(raw string) bool {
	digits := stripNonDigits(raw)
	if len(digits) < 13 || len(digits) > 16 {
		return false
	}
	return luhnValid(digits)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// luhnValid checks whether a digit string passes the Luhn algorithm
// (ISO/IEC 7812). Grounded verbatim on internal/classifier/pii.go:luhnValid.
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
