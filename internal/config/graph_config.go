package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/crozzbite/phylactery/internal/risk"
)

// Viper keys for the Graph Runtime config surface. Each maps to an env
// var with the PHY_ prefix (e.g. "workspace_root" → PHY_WORKSPACE_ROOT)
// and to a YAML field in phylactery.config.yaml.
const (
	KeyPhyDataDir           = "data_dir"
	KeyWorkspaceRoot        = "workspace_root"
	KeyHMACSecret           = "hmac_secret"
	KeyEvictionThreshold    = "eviction_threshold"
	KeyRehydrationLimit     = "rehydration_limit"
	KeyApprovalTTLSeconds   = "approval_ttl_seconds"
	KeyMaxTries             = "max_tries"
	KeyDevMode              = "dev_mode"
	KeyToolTierMapFile      = "tool_tier_map_file"
	KeyHoneypotFile         = "honeypot_file"
	KeySecretPatternsFile   = "secret_patterns_file"
	KeyCostCeilingPerThread = "cost_ceiling_per_thread"
	KeyRequestsPerSecond    = "requests_per_second"
	KeyCircuitThreshold     = "circuit_threshold"
	KeyCircuitWindowSeconds = "circuit_window_seconds"
	KeyGCCronExpr           = "gc_cron_expr"
	KeyGCMaxAgeHours        = "gc_max_age_hours"
)

// Defaults mirroring risk.DefaultConfig/graph.DefaultConfig's named
// constants, duplicated here only as the viper fallback values (source of
// truth for the actual runtime defaults still lives in internal/graph and
// internal/evict).
const (
	DefaultEvictionThreshold    = 10000
	DefaultRehydrationLimit     = 50000
	DefaultApprovalTTLSeconds   = 300
	DefaultMaxTries             = 3
	DefaultRequestsPerSecond    = 5.0
	DefaultCircuitThreshold     = 5
	DefaultCircuitWindowSeconds = 60

	// DefaultGCCronExpr runs eviction-file garbage collection every six
	// hours (standard 5-field cron, no seconds field).
	DefaultGCCronExpr = "0 */6 * * *"
	// DefaultGCMaxAgeHours is how long an eviction file survives before GC
	// removes it: 7 days.
	DefaultGCMaxAgeHours = 168

	// DefaultOllamaURL is the quickstart fallback oracle endpoint used when
	// no OPENAI_API_KEY or ANTHROPIC_API_KEY is set.
	DefaultOllamaURL = "http://localhost:11434"
)

// GraphConfig is the operator-configured surface for a Graph Runtime
// deployment. It uses its own viper instance (PHY_ prefix) so it can be
// loaded independently of any other config surface a deployment wires
// alongside it.
type GraphConfig struct {
	DataDir              string
	WorkspaceRoot        string
	HMACSecret           string
	EvictionThreshold    int
	RehydrationLimit     int
	ApprovalTTLSeconds   int64
	MaxTries             int
	DevMode              bool
	CostCeilingPerThread float64
	RequestsPerSecond    float64
	CircuitThreshold     int
	CircuitWindowSeconds int
	GCCronExpr           string
	GCMaxAgeHours        int

	// Honeyfiles/Honeytokens/ToolTiers/SecretPatternFile are loaded from
	// YAML side-files rather than scalar env vars (classifier.
	// ParseRecognizerFile's loader style).
	Honeyfiles         []string
	Honeytokens        []string
	ToolTiers          map[string]risk.TierSpec
	SecretPatternsFile string

	usingDefaultHMACSecret bool
}

// UsingDefaultHMACSecret reports whether the HMAC secret was derived
// rather than explicitly configured.
func (c *GraphConfig) UsingDefaultHMACSecret() bool {
	return c.usingDefaultHMACSecret
}

func (c *GraphConfig) TokenDBPath() string {
	return filepath.Join(c.DataDir, "tokens.db")
}

// StateEncryptionKey derives the at-rest key for the State Store,
// independent of HMACSecret so rotating one never invalidates the other.
func (c *GraphConfig) StateEncryptionKey() string {
	return deriveDefaultKey(c.DataDir, "graph-state-encryption")
}

func (c *GraphConfig) StateDBPath() string {
	return filepath.Join(c.DataDir, "graph_state.db")
}

func (c *GraphConfig) AuditLogPath() string {
	return filepath.Join(c.DataDir, "audit.jsonl")
}

func (c *GraphConfig) EvictionRoot() string {
	return filepath.Join(c.DataDir, "evicted")
}

func (c *GraphConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

var graphViper = viper.New()

func init() {
	graphViper.SetEnvPrefix("PHY")
	graphViper.AutomaticEnv()
	graphViper.SetDefault(KeyEvictionThreshold, DefaultEvictionThreshold)
	graphViper.SetDefault(KeyRehydrationLimit, DefaultRehydrationLimit)
	graphViper.SetDefault(KeyApprovalTTLSeconds, DefaultApprovalTTLSeconds)
	graphViper.SetDefault(KeyMaxTries, DefaultMaxTries)
	graphViper.SetDefault(KeyRequestsPerSecond, DefaultRequestsPerSecond)
	graphViper.SetDefault(KeyCircuitThreshold, DefaultCircuitThreshold)
	graphViper.SetDefault(KeyCircuitWindowSeconds, DefaultCircuitWindowSeconds)
	graphViper.SetDefault(KeyGCCronExpr, DefaultGCCronExpr)
	graphViper.SetDefault(KeyGCMaxAgeHours, DefaultGCMaxAgeHours)
}

// honeypotFile is the YAML shape of PHY_HONEYPOT_FILE.
type honeypotFile struct {
	Honeyfiles  []string `yaml:"honeyfiles"`
	Honeytokens []string `yaml:"honeytokens"`
}

// toolTierFile is the YAML shape of PHY_TOOL_TIER_MAP_FILE.
type toolTierFile struct {
	Tiers map[string]risk.TierSpec `yaml:"tiers"`
}

// LoadGraphConfig reads the Graph Runtime config surface from viper
// (PHY_ env vars + phylactery.config.yaml) and any referenced YAML
// side-files, returning a validated GraphConfig.
func LoadGraphConfig() (*GraphConfig, error) {
	cfg := &GraphConfig{
		DataDir:              resolvePhyDataDir(),
		WorkspaceRoot:        graphViper.GetString(KeyWorkspaceRoot),
		HMACSecret:           graphViper.GetString(KeyHMACSecret),
		EvictionThreshold:    graphViper.GetInt(KeyEvictionThreshold),
		RehydrationLimit:     graphViper.GetInt(KeyRehydrationLimit),
		ApprovalTTLSeconds:   graphViper.GetInt64(KeyApprovalTTLSeconds),
		MaxTries:             graphViper.GetInt(KeyMaxTries),
		DevMode:              graphViper.GetBool(KeyDevMode),
		CostCeilingPerThread: graphViper.GetFloat64(KeyCostCeilingPerThread),
		RequestsPerSecond:    graphViper.GetFloat64(KeyRequestsPerSecond),
		CircuitThreshold:     graphViper.GetInt(KeyCircuitThreshold),
		CircuitWindowSeconds: graphViper.GetInt(KeyCircuitWindowSeconds),
		GCCronExpr:           graphViper.GetString(KeyGCCronExpr),
		GCMaxAgeHours:        graphViper.GetInt(KeyGCMaxAgeHours),
		SecretPatternsFile:   graphViper.GetString(KeySecretPatternsFile),
	}

	if cfg.WorkspaceRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.WorkspaceRoot = wd
		}
	}

	if cfg.HMACSecret == "" {
		cfg.HMACSecret = deriveDefaultKey(cfg.DataDir, "approval-token-hmac")
		cfg.usingDefaultHMACSecret = true
	}

	if path := graphViper.GetString(KeyHoneypotFile); path != "" {
		var hf honeypotFile
		if err := loadYAMLFile(path, &hf); err != nil {
			return nil, fmt.Errorf("loading honeypot file: %w", err)
		}
		cfg.Honeyfiles = hf.Honeyfiles
		cfg.Honeytokens = hf.Honeytokens
	}

	if path := graphViper.GetString(KeyToolTierMapFile); path != "" {
		var tf toolTierFile
		if err := loadYAMLFile(path, &tf); err != nil {
			return nil, fmt.Errorf("loading tool tier map: %w", err)
		}
		cfg.ToolTiers = tf.Tiers
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph configuration: %w", err)
	}
	return cfg, nil
}

// WarnIfDefaultHMACSecret logs a warning when the approval-token signing
// key was derived rather than explicitly configured.
func (c *GraphConfig) WarnIfDefaultHMACSecret() {
	if isQuickstart() {
		return
	}
	if c.usingDefaultHMACSecret {
		log.Warn().Msg("Using generated default PHY_HMAC_SECRET — set via env var or config file for production")
	}
}

func resolvePhyDataDir() string {
	if dir := graphViper.GetString(KeyPhyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phylactery"
	}
	return filepath.Join(home, ".phylactery")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. Uses SHA-256 so the full salt always
// contributes to the output regardless of path length. This is NOT
// cryptographically strong — it exists solely so a fresh install works
// out of the box while still encrypting data at rest with a
// per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("phylactery:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

// isQuickstart reports whether default-key warnings should be suppressed
// (e.g. first-time exploration, demos).
func isQuickstart() bool {
	v := os.Getenv("PHY_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func loadYAMLFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, out)
}

// RiskConfig projects the GraphConfig fields the Risk Engine consumes
// directly into a risk.Config, layering operator overrides onto
// risk.DefaultConfig().
func (c *GraphConfig) RiskConfig() risk.Config {
	rc := risk.DefaultConfig()
	rc.WorkspaceRoot = c.WorkspaceRoot
	rc.HoneyFiles = c.Honeyfiles
	rc.HoneyTokens = c.Honeytokens
	rc.CostCeilingPerThread = c.CostCeilingPerThread
	if len(c.ToolTiers) > 0 {
		rc.ToolTiers = c.ToolTiers
	}
	return rc
}

func (c *GraphConfig) validate() error {
	if c.EvictionThreshold <= 0 {
		return fmt.Errorf("eviction_threshold must be positive")
	}
	if c.RehydrationLimit < c.EvictionThreshold {
		return fmt.Errorf("rehydration_limit must be >= eviction_threshold")
	}
	if c.ApprovalTTLSeconds <= 0 {
		return fmt.Errorf("approval_ttl_seconds must be positive")
	}
	if c.MaxTries <= 0 {
		return fmt.Errorf("max_tries must be positive")
	}
	if len(c.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes; set PHY_HMAC_SECRET")
	}
	return nil
}
