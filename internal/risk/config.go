package risk

// Config is the operator-configured policy surface for the Risk Engine.
type Config struct {
	// WorkspaceRoot bounds all path-accepting tool arguments (step 3).
	WorkspaceRoot string

	// HoneyTokens and HoneyFiles are checked first (step 1, priority 0),
	// before any other evaluation.
	HoneyTokens []string
	HoneyFiles  []string

	// SensitiveFiles are filesystem paths that carry a built-in "high"
	// assessment even when the tool tier table would otherwise allow them.
	SensitiveFiles []string

	// WriteTools names tools whose content/path arguments are subject to
	// DLP egress scanning (step 2).
	WriteTools []string

	// ToolTiers overrides the embedded default tier table (step 4). Nil
	// or empty means "use the embedded defaults."
	ToolTiers map[string]TierSpec

	// CostCeilingPerThread is the supplemental layer 6 budget, in the same
	// unit as the cost weights in ToolTiers. Zero disables the check.
	CostCeilingPerThread float64

	// BusinessHoursOnlyTools names tools gated by BusinessHoursWindow
	// (supplemental layer 7). BusinessHoursWindow is [start, end) in the
	// hour-of-day of BusinessHoursTimezone.
	BusinessHoursOnlyTools []string
	BusinessHoursStartHour int
	BusinessHoursEndHour   int
	BusinessHoursTimezone  string
}

// TierSpec is one tool's base risk classification (step 4).
type TierSpec struct {
	Level    Level    `json:"level"`
	Decision Decision `json:"decision"`
	Cost     float64  `json:"cost"`
}

// DefaultConfig returns a Config with the baseline example tool tiers and
// no honeypots configured. Deployments are expected to override this via
// policy/config.
func DefaultConfig() Config {
	return Config{
		WriteTools: []string{"write_file", "edit_file"},
		SensitiveFiles: []string{
			".env", "id_rsa", "credentials.json", "secrets.yaml",
		},
	}
}
