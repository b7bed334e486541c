package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/animus-coder/codesmith/internal/llm/configbuilder"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			reg, err := configbuilder.BuildRegistryFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("models: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(reg.Models()))
			fmt.Fprintf(out, "General model: %s, code model: %s\n", orDefault(cfg.Strategy.GeneralModel), orDefault(cfg.Strategy.CodeModel))
			fmt.Fprintf(out, "Embedding: %s/%s\n", cfg.Embedding.Type, cfg.Embedding.Model)
			fmt.Fprintf(out, "Extraction attempts: %d, metrics: %v\n", cfg.Extraction.MaxAttempts, cfg.Server.MetricsEnabled)

			if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
				return fmt.Errorf("data dir %s: %w", cfg.Storage.DataDir, err)
			}
			fmt.Fprintf(out, "Data dir: %s\n", cfg.Storage.DataDir)
			return nil
		},
	}
}

func orDefault(name string) string {
	if name == "" {
		return "(default)"
	}
	return name
}
