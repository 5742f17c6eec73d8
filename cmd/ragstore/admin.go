package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragstore/internal/rag"
)

func newNamespaceCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "namespace",
		Short: "Inspect or delete namespaces",
	}
	cmd.AddCommand(
		newExecCmd(root, "stats <namespace>", "Show the vector count of a namespace", rag.OpNamespaceStats),
		newExecCmd(root, "delete <namespace>", "Delete a namespace and all of its vectors", rag.OpDeleteNamespace),
	)
	return cmd
}

func newExecCmd(root *rootOptions, use, short string, op rag.Operation) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			out, err := a.svc.Exec(cmd.Context(), op, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newResetCmd(root *rootOptions) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every namespace and the embedding cache",
		Long: `Delete every namespace, the on-disk vector data and the embedding cache.
This cannot be undone.

Examples:
  ragstore reset --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("reset is irreversible; pass --yes to confirm")
			}
			a, err := newApp(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			res, err := a.svc.Reset(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the reset")
	return cmd
}

func newHeartbeatCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Check that the vector backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			res, err := a.svc.Heartbeat(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
