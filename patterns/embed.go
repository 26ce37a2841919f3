// Package patterns provides embedded default recognizer definitions.
// YAML files in this directory use the Presidio-compatible recognizer format
// with Phylactery extensions (sensitivity, countries, severity, kind).
package patterns

import _ "embed"

//go:embed pii_eu.yaml
var piiEUYAML []byte

//go:embed injection.yaml
var injectionYAML []byte

//go:embed secrets.yaml
var secretsYAML []byte

// PIIEUYAML returns the embedded default PII recognizer definitions
// (email, IPv4, PCI-Luhn).
func PIIEUYAML() []byte { return piiEUYAML }

// InjectionYAML returns the embedded default prompt-injection phrase patterns.
func InjectionYAML() []byte { return injectionYAML }

// SecretsYAML returns the embedded default secret-family detection patterns.
func SecretsYAML() []byte { return secretsYAML }
