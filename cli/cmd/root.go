package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BDNK1/dossierflow/cli/internal/config"
	"github.com/BDNK1/dossierflow/runtime"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dossierflow",
	Short: "Dossierflow - funeral dossier intake wizard",
	Long: `Dossierflow walks through the intake pages of a funeral dossier, saving
each page to the dossier backend before advancing to the next step.

Pages are declared as YAML definitions; dropdowns are filled from the
backend's reference lists.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to dossierflow.yaml (defaults and DOSSIER_* variables apply without it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(ageCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pagesCmd)
}

// setup loads the configuration and builds the logger shared by every
// subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	if configPath == "" {
		if _, err := os.Stat("dossierflow.yaml"); err == nil {
			configPath = "dossierflow.yaml"
		}
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	l, err := runtime.NewLogger(loaded.Log.Level, loaded.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg = loaded
	logger = l
	return nil
}
