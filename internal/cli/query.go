package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewStateCommand creates the state command.
func NewStateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <user-id>",
		Short: "Show a user's snapshot reconciled to today",
		Long: `Show a user's snapshot reconciled to today.

Reading the state folds in any days that elapsed since the last
evaluation, so the answer is always current.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := svc.GetUserState(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "get state", err)
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if st == nil {
				return out.Success(nil, fmt.Sprintf("no ledger for %s", args[0]))
			}
			return out.Success(st, formatState(st))
		},
	}
	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "history <user-id>",
		Short:         "Show a user's full event chain",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			blocks, err := svc.GetHistory(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "get history", err)
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if len(blocks) == 0 {
				return out.Success(blocks, "no blocks")
			}

			var b strings.Builder
			for _, blk := range blocks {
				fmt.Fprintf(&b, "%4d  %-18s %s  %s\n",
					blk.Index, blk.Event.Type, blk.Event.EffectiveDay(), blk.Hash[:12])
			}
			return out.Success(blocks, strings.TrimRight(b.String(), "\n"))
		},
	}
	return cmd
}

// NewReceiptsCommand creates the receipts command.
func NewReceiptsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "receipts <user-id>",
		Short:         "Show a user's denial receipts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openService(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			receipts, err := svc.Receipts(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "get receipts", err)
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if len(receipts) == 0 {
				return out.Success(receipts, "no receipts")
			}

			var b strings.Builder
			for _, r := range receipts {
				fmt.Fprintf(&b, "%s  %-22s %-18s %s\n",
					r.DeniedAt.Format("2006-01-02 15:04:05"), r.Code, r.Action, r.ContentHash[:12])
			}
			return out.Success(receipts, strings.TrimRight(b.String(), "\n"))
		},
	}
	return cmd
}
