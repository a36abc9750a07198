package main

import (
	"fms/internal/cli/repl"
	"fms/internal/ledger"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(replCmd)
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appCfg, appOptions{engine: true})
		if err != nil {
			return err
		}
		defer a.close()

		reader, err := repl.NewReadline(appCfg.REPL.HistoryFile)
		if err != nil {
			return err
		}
		defer reader.Close()

		var mode ledger.Mode
		if appCfg.Ledger.Mode != "" {
			if mode, err = ledger.ParseMode(appCfg.Ledger.Mode); err != nil {
				return err
			}
		}
		session, err := repl.New(ctx, repl.Options{
			Orchestrator: a.orch,
			Accounts:     a.accounts,
			User:         appCfg.Ledger.User,
			Mode:         mode,
			QuotaSeconds: appCfg.Session.QuotaSeconds,
			Defaults:     appCfg.Defaults,
			Reader:       reader,
			Out:          cmd.OutOrStdout(),
			JobOut:       cmd.OutOrStdout(),
			JobErr:       cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		return session.Run(ctx)
	},
}
