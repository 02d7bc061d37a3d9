package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [csv-file]",
	Short: "Reconcile a CSV export into the store without printing reports",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			flagCSV = args[0]
		}
		a, err := setup(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.close()
		return a.ingest(cmd.Context())
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the fixed reports over the stored listings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.close()
		return a.reports(cmd.Context())
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <unit name>",
	Short: "List stored units whose name contains the given text, ignoring case",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.close()
		return a.search(cmd.Context(), strings.Join(args, " "))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored listing ordered by external id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.close()
		return a.list(cmd.Context())
	},
}
