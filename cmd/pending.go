package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/ace221390/work.ink/internal/observability"
	"github.com/ace221390/work.ink/internal/store"
)

func newPendingCmd() *cobra.Command {
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect the destination waiting for the gate",
	}

	pendingCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the pending destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showPending(cmd.Context(), config.Get().Store, cmd.OutOrStdout())
		},
	})
	pendingCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop the pending destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return clearPending(cmd.Context(), config.Get().Store)
		},
	})
	return pendingCmd
}

func withHandoff(ctx context.Context, cfg config.StoreConfig, fn func(*store.Handoff) error) error {
	logger := observability.GetLogger()
	st, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Error closing store.", zap.Error(err))
		}
	}()
	return fn(store.NewHandoff(st, cfg.Key, logger))
}

func showPending(ctx context.Context, cfg config.StoreConfig, w io.Writer) error {
	return withHandoff(ctx, cfg, func(h *store.Handoff) error {
		dest, err := h.Pending(ctx)
		if err != nil {
			return err
		}
		if dest == "" {
			fmt.Fprintln(w, "(none)")
			return nil
		}
		fmt.Fprintln(w, dest)
		return nil
	})
}

func clearPending(ctx context.Context, cfg config.StoreConfig) error {
	return withHandoff(ctx, cfg, func(h *store.Handoff) error {
		return h.Clear(ctx)
	})
}
