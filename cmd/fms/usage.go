package main

import (
	"fmt"

	"fms/internal/cli/render"

	"github.com/spf13/cobra"
)

var usageClearYes bool

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageShowCmd)
	usageCmd.AddCommand(usageClearCmd)

	usageClearCmd.Flags().BoolVarP(&usageClearYes, "yes", "y", false, "confirm clearing the usage log")
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show or clear the postpaid usage log",
}

var usageShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the usage report with the total due",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		l, err := a.accounts.Get(ctx, appCfg.Ledger.User)
		if err != nil {
			return err
		}
		records, total, err := l.Usage(ctx)
		if err != nil {
			return err
		}
		render.Usage(cmd.OutOrStdout(), records, total)
		return nil
	},
}

var usageClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the usage log after payment",
	Long: `Clear the usage log after payment. When ledger.archiveDir is configured
the log is first archived as a zstd-compressed JSON file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !usageClearYes {
			return fmt.Errorf("refusing to clear the usage log without --yes")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		l, err := a.accounts.Get(ctx, appCfg.Ledger.User)
		if err != nil {
			return err
		}
		archive, err := l.ClearUsage(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "usage log cleared")
		if archive != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "archived to %s\n", archive)
		}
		return nil
	},
}
