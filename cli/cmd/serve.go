package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BDNK1/dossierflow/plugins/backend"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mock dossier backend",
	Long: `Serve runs a local backend with the reference lists, the dossier
collections and the login endpoint, backed by SQLite.

Example:
  dossierflow serve
  DOSSIER_SERVER_DSN=file:dossiers.db dossierflow serve
`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := backend.OpenStore(ctx, cfg.Server)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Server.Seed {
		if err := store.Seed(ctx, nil); err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
	}

	return backend.NewServer(cfg.Server, store, logger).Run(ctx)
}
