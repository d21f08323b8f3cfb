package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prdforge/internal/prd"
	"prdforge/internal/services"
	"prdforge/internal/store"
)

func newPRDCommand(ctx *commandContext) *cobra.Command {
	var title string
	var outPath string

	cmd := &cobra.Command{
		Use:   "prd <project-id>",
		Short: "Generate a PRD for a project",
		Long: "Generate a PRD from the project's stored summaries, falling back to its raw\n" +
			"transcript, and store the Markdown on the project.",
		Args: cobra.ExactArgs(1),
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
				runCtx := services.WithProjectID(cmd.Context(), args[0])
				generated, err := prd.GenerateForProject(runCtx, st, gen, args[0], title)
				if err != nil {
					return err
				}
				if outPath == "" {
					fmt.Fprint(cmd.OutOrStdout(), generated.Markdown)
					return nil
				}
				if err := os.WriteFile(outPath, []byte(generated.Markdown), 0o644); err != nil {
					return fmt.Errorf("write prd: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote PRD (version %d) to %s\n", generated.Project.Version, outPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Document title (default: project title)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write Markdown to a file instead of stdout")
	return cmd
}
