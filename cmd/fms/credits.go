package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(creditsCmd)
	creditsCmd.AddCommand(creditsShowCmd)
	creditsCmd.AddCommand(creditsAddCmd)
}

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show or add prepaid credits",
}

var creditsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the balance of the account",
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
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f credits\n", l.User(), l.Balance())
		return nil
	},
}

var creditsAddCmd = &cobra.Command{
	Use:   "add <amount>",
	Short: "Add credits to the account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[0], err)
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
		if err := l.Credit(ctx, amount); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %.2f credits, %s now has %.2f\n", amount, l.User(), l.Balance())
		return nil
	},
}
