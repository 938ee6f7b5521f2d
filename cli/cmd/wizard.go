package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BDNK1/dossierflow/cli/internal/host"
	"github.com/BDNK1/dossierflow/cli/internal/prompt"
	httpplugin "github.com/BDNK1/dossierflow/plugins/http"
	"github.com/BDNK1/dossierflow/runtime"
	"github.com/spf13/cobra"
)

var dossierID string

var wizardCmd = &cobra.Command{
	Use:   "wizard <page-id>",
	Short: "Fill in a dossier page by page",
	Long: `Wizard starts at the given page and follows the page's steps, saving
each page to the backend before moving on.

Example:
  dossierflow wizard deceased
  dossierflow wizard deceased-information --id 7f8c...
`,
	Args: cobra.ExactArgs(1),
	RunE: runWizard,
}

func init() {
	wizardCmd.Flags().StringVar(&dossierID, "id", "", "Existing dossier to load and update")
}

func runWizard(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApp(cfg.DefinitionsDir)
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	session, err := runtime.OpenFileSession(cfg.Session.Path, logger)
	if err != nil {
		return err
	}
	if !session.IsAuthenticated() {
		if cfg.API.RequireAuth {
			return fmt.Errorf("%w: log in first with 'dossierflow login'", runtime.ErrNotAuthenticated)
		}
		logger.WarnContext(ctx, "No active session, requests are sent anonymously")
	}

	client := httpplugin.New(cfg.API, session, logger)
	h := host.New(app, client, prompt.NewSurveyDriver(cmd.OutOrStdout()), cfg.Reference, logger)

	id, err := h.Run(ctx, args[0], dossierID)
	switch {
	case errors.Is(err, host.ErrStopped), errors.Is(err, prompt.ErrAborted), errors.Is(err, context.Canceled):
		if id != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Gestopt. Hervat met: dossierflow wizard %s --id %s\n", args[0], id)
		}
		return nil
	case err != nil:
		return err
	}
	return nil
}
