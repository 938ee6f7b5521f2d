package cmd

import (
	"fmt"

	"github.com/BDNK1/dossierflow/runtime"
	"github.com/spf13/cobra"
)

var ageCmd = &cobra.Command{
	Use:   "age <birth-date> [death-date]",
	Short: "Print the age in whole years",
	Long: `Age prints the age in whole years at the death date, or today when no
death date is given. Dates use YYYY-MM-DD.

Example:
  dossierflow age 1950-05-01 2024-04-30
`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAge,
}

func runAge(cmd *cobra.Command, args []string) error {
	for _, arg := range args {
		if _, ok := runtime.ParseDate(arg); !ok {
			return fmt.Errorf("invalid date %q", arg)
		}
	}

	var death string
	if len(args) > 1 {
		death = args[1]
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), runtime.CalculateAge(args[0], death))
	return err
}
