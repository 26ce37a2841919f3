package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/crozzbite/phylactery/internal/agent/tools"
	"github.com/crozzbite/phylactery/internal/audit"
	"github.com/crozzbite/phylactery/internal/config"
	"github.com/crozzbite/phylactery/internal/dlp"
	"github.com/crozzbite/phylactery/internal/evict"
	"github.com/crozzbite/phylactery/internal/graph"
	"github.com/crozzbite/phylactery/internal/llm"
	"github.com/crozzbite/phylactery/internal/lock"
	"github.com/crozzbite/phylactery/internal/oracle"
	"github.com/crozzbite/phylactery/internal/risk"
	"github.com/crozzbite/phylactery/internal/server"
	"github.com/crozzbite/phylactery/internal/state"
	"github.com/crozzbite/phylactery/internal/tenant"
	"github.com/crozzbite/phylactery/internal/token"
)

var graphServePort int

var graphServeCmd = &cobra.Command{
	Use:   "graph-serve",
	Short: "Start the zero-trust execution graph's RPC surface",
	RunE:  runGraphServe,
}

func init() {
	graphServeCmd.Flags().IntVar(&graphServePort, "port", 8081, "HTTP server port")
	rootCmd.AddCommand(graphServeCmd)
}

func runGraphServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadGraphConfig()
	if err != nil {
		return fmt.Errorf("loading graph configuration: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultHMACSecret()

	scanner, err := dlp.NewScanner(dlp.WithPatternFile(cfg.SecretPatternsFile))
	if err != nil {
		return fmt.Errorf("building DLP scanner: %w", err)
	}
	riskEngine, err := risk.NewEngine(ctx, cfg.RiskConfig(), scanner)
	if err != nil {
		return fmt.Errorf("building risk engine: %w", err)
	}
	tokens, err := token.NewManager(cfg.HMACSecret, cfg.TokenDBPath())
	if err != nil {
		return fmt.Errorf("building token manager: %w", err)
	}
	auditLog, err := audit.Open(cfg.AuditLogPath())
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer auditLog.Close()
	evictStore, err := evict.NewStore(cfg.EvictionRoot())
	if err != nil {
		return fmt.Errorf("building eviction store: %w", err)
	}
	gcScheduler := evict.NewGCScheduler(evictStore, time.Duration(cfg.GCMaxAgeHours)*time.Hour)
	if err := gcScheduler.Register(cfg.GCCronExpr); err != nil {
		return fmt.Errorf("registering eviction GC job: %w", err)
	}
	gcScheduler.Start()
	defer gcScheduler.Stop()
	stateStore, err := state.Open(cfg.StateDBPath(), cfg.StateEncryptionKey())
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer stateStore.Close()
	locks := lock.NewManager(cfg.RequestsPerSecond)

	provider, model := resolveOracleProvider()
	llmOracle := oracle.NewLLMOracle(provider, model)
	toolRegistry := tools.NewRegistry()
	toolSubstrate := oracle.NewRegistrySubstrate(toolRegistry)

	runtimeCfg := graph.DefaultConfig()
	runtimeCfg.ApprovalTTLSeconds = cfg.ApprovalTTLSeconds
	runtimeCfg.MaxTries = cfg.MaxTries
	runtimeCfg.DevMode = cfg.DevMode
	runtimeCfg.CircuitThreshold = cfg.CircuitThreshold
	runtimeCfg.CircuitWindow = time.Duration(cfg.CircuitWindowSeconds) * time.Second

	rt := graph.New(runtimeCfg, tokens, riskEngine, auditLog, evictStore, stateStore, locks,
		llmOracle, llmOracle, toolSubstrate, graph.NewHookRegistry())

	apiKeys := parseAPIKeys(os.Getenv("PHY_API_KEYS"))
	if len(apiKeys) == 0 {
		log.Warn().Msg("PHY_API_KEYS not set — all graph endpoints will return 401. Set for production.")
	}
	tenantManager := tenant.NewManager(tenantsFromAPIKeys(apiKeys, cfg.RequestsPerSecond))

	srv := server.NewServer(apiKeys,
		server.WithGraphRuntime(rt),
		server.WithTenantManager(tenantManager),
		server.WithCORSOrigins([]string{"*"}),
	)

	addr := fmt.Sprintf(":%d", graphServePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", addr).Bool("dev_mode", cfg.DevMode).Msg("graph_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("graph_serve_stopped")
	return nil
}

// tenantsFromAPIKeys derives one rate-limited tenant.Tenant per distinct
// tenant_id in the apiKeys map, all sharing the configured PHY_REQUESTS_PER_SECOND.
func tenantsFromAPIKeys(apiKeys map[string]string, rps float64) []tenant.Tenant {
	seen := make(map[string]bool)
	var tenants []tenant.Tenant
	for _, tenantID := range apiKeys {
		if seen[tenantID] {
			continue
		}
		seen[tenantID] = true
		tenants = append(tenants, tenant.Tenant{ID: tenantID, RateLimit: int(rps)})
	}
	return tenants
}

// resolveOracleProvider picks an LLM provider for the Planner/Executor
// oracles from env vars, falling back to a local Ollama instance when
// no API key is configured.
func resolveOracleProvider() (llm.Provider, string) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return llm.NewOpenAIProvider(key), "gpt-4o-mini"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return llm.NewAnthropicProvider(key), "claude-3-5-haiku-latest"
	}
	return llm.NewOllamaProvider(config.DefaultOllamaURL), "llama3"
}
