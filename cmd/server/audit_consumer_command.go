package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/scene-continuity/internal/queue"
)

func newAuditConsumerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audit-consumer",
		Short: "Append audit events from the broker to the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			sigCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			err = queue.StartAuditConsumer(sigCtx, queue.ConsumerOptions{
				URL:     cfg.AMQPURL,
				Queue:   cfg.AuditQueue,
				LogPath: cfg.AuditLogPath,
				Logger:  logger,
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
