package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prdforge/internal/logging"
	"prdforge/internal/mcptools"
	"prdforge/internal/store"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve project and PRD tools to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.fileLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			gen, err := ctx.generator(logger)
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				logger.Info("mcp server starting", logging.String("version", Version))
				return mcptools.New(st, gen, logger).Serve(Version)
			})
		},
	}
}
