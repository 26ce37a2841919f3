package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crozzbite/phylactery/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage graph runtime configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved graph runtime configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.LoadGraphConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Data directory:     %s%s\n", cfg.DataDir, existsSuffix(dirExists(cfg.DataDir)))
		fmt.Fprintf(out, "Workspace root:     %s\n", cfg.WorkspaceRoot)
		fmt.Fprintf(out, "Dev mode:           %v\n", cfg.DevMode)
		fmt.Fprintf(out, "HMAC secret:        %s\n", maskSecret(cfg.HMACSecret))
		if cfg.UsingDefaultHMACSecret() {
			fmt.Fprintf(out, "                    (generated default, not explicitly configured)\n")
		}
		fmt.Fprintf(out, "Eviction threshold: %d chars\n", cfg.EvictionThreshold)
		fmt.Fprintf(out, "Rehydration limit:  %d chars\n", cfg.RehydrationLimit)
		fmt.Fprintf(out, "Approval TTL:       %ds\n", cfg.ApprovalTTLSeconds)
		fmt.Fprintf(out, "Max tries:          %d\n", cfg.MaxTries)
		fmt.Fprintf(out, "Token DB:           %s%s\n", cfg.TokenDBPath(), existsSuffix(fileExists(cfg.TokenDBPath())))
		fmt.Fprintf(out, "State DB:           %s%s\n", cfg.StateDBPath(), existsSuffix(fileExists(cfg.StateDBPath())))
		fmt.Fprintf(out, "Audit log:          %s%s\n", cfg.AuditLogPath(), existsSuffix(fileExists(cfg.AuditLogPath())))
		fmt.Fprintf(out, "Eviction root:      %s%s\n", cfg.EvictionRoot(), existsSuffix(dirExists(cfg.EvictionRoot())))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func existsSuffix(ok bool) string {
	if ok {
		return " (exists)"
	}
	return ""
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
