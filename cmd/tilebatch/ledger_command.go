package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tilebatch/internal/ledger"
	"tilebatch/internal/logging"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the progress ledger",
	}
	ledgerCmd.AddCommand(newLedgerResetCommand(ctx))
	ledgerCmd.AddCommand(newLedgerCompactCommand(ctx))
	return ledgerCmd
}

func newLedgerResetCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var status string

	cmd := &cobra.Command{
		Use:   "reset [tile...]",
		Short: "Forget recorded outcomes so tiles are imported again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && status == "" && len(args) == 0 {
				return errors.New("name tiles to reset, or pass --status or --all")
			}
			if all && (status != "" || len(args) > 0) {
				return errors.New("--all cannot be combined with tiles or --status")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			l, err := openLedger(cfg, logging.NewNop(), "")
			if err != nil {
				return err
			}
			defer l.Close()

			ids := args
			if status != "" {
				want := ledger.Status(status)
				switch want {
				case ledger.StatusDone, ledger.StatusFailed, ledger.StatusSkipped, ledger.StatusPending:
				default:
					return fmt.Errorf("--status: unsupported value %q", status)
				}
				for _, rec := range l.Records() {
					if rec.Status == want {
						ids = append(ids, rec.Tile)
					}
				}
				if len(ids) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No %s tiles to reset\n", status)
					return nil
				}
			}

			var removed int
			if all {
				removed, err = l.Reset()
			} else {
				removed, err = l.Reset(ids...)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d tile(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reset every tile")
	cmd.Flags().StringVar(&status, "status", "", "Reset tiles with this status (done, failed, skipped, pending)")
	return cmd
}

func newLedgerCompactCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the ledger with one line per tile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			l, err := openLedger(cfg, logging.NewNop(), "")
			if err != nil {
				return err
			}
			defer l.Close()
			if err := l.Compact(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compacted %s (%d tiles)\n", l.Path(), l.Summary().Total)
			return nil
		},
	}
}
