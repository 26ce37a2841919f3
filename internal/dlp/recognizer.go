// Package dlp implements the DLP Scanner: redaction of PII from ingress
// text and detection of secrets and prompt-injection phrases in egress
// text, all driven by a shared YAML recognizer format.
package dlp

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/crozzbite/phylactery/patterns"
)

// RecognizerFile mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig is one named recognizer with one or more regex patterns.
type RecognizerConfig struct {
	Name            string          `yaml:"name"`
	SupportedEntity string          `yaml:"supported_entity"`
	Enabled         *bool           `yaml:"enabled,omitempty"`
	Patterns        []PatternConfig `yaml:"patterns,omitempty"`
	Severity        int             `yaml:"severity,omitempty"`
}

// PatternConfig is a single named regex within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name"`
	Regex string  `yaml:"regex"`
	Score float64 `yaml:"score"`
}

func (r *RecognizerConfig) isEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// CompiledPattern is a ready-to-use regex with its owning recognizer's metadata.
type CompiledPattern struct {
	Name     string
	Entity   string
	Regex    *regexp.Regexp
	Severity int
}

// ParseRecognizerFile parses recognizer YAML bytes.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("dlp: parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads a recognizer YAML file from disk. A missing file
// is not an error — callers treat it as "no additional recognizers."
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dlp: reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// Compile converts enabled recognizers into ready-to-match patterns.
func Compile(recognizers []RecognizerConfig) ([]CompiledPattern, error) {
	var out []CompiledPattern
	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		for _, p := range rec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("dlp: compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			out = append(out, CompiledPattern{
				Name:     rec.Name,
				Entity:   rec.SupportedEntity,
				Regex:    re,
				Severity: rec.Severity,
			})
		}
	}
	return out, nil
}

func loadEmbedded(data []byte) ([]CompiledPattern, error) {
	rf, err := ParseRecognizerFile(data)
	if err != nil {
		return nil, err
	}
	return Compile(rf.Recognizers)
}

func defaultPIIPatterns() ([]CompiledPattern, error) {
	return loadEmbedded(patterns.PIIEUYAML())
}

func defaultInjectionPatterns() ([]CompiledPattern, error) {
	return loadEmbedded(patterns.InjectionYAML())
}

func defaultSecretPatterns() ([]CompiledPattern, error) {
	return loadEmbedded(patterns.SecretsYAML())
}
