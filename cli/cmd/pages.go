package cmd

import (
	"fmt"
	"strings"

	"github.com/BDNK1/dossierflow/runtime"
	"github.com/spf13/cobra"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List the wizard pages in the definitions directory",
	Args:  cobra.NoArgs,
	RunE:  runPages,
}

func runPages(cmd *cobra.Command, _ []string) error {
	app, err := runtime.NewApp(cfg.DefinitionsDir)
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, p := range app.List() {
		fmt.Fprintf(out, "%-24s %-28s %s\n", p.ID, p.Path, p.Title)
		fmt.Fprintf(out, "  steps: %s\n", strings.Join(p.Steps, " > "))
	}
	return nil
}
