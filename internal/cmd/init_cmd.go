package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new graph runtime project",
	Long:  "Creates phylactery.config.yaml and a starter tool-tier map from templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "init")
		defer span.End()

		log.Info().Msg("phylactery init - not yet implemented")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
