package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"prdforge/internal/pipeline"
	"prdforge/internal/server"
	"prdforge/internal/store"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var window float64
	var projectID string
	var save bool
	var outPath string

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a recording window by window",
		Long: "Split a recording into windows, transcribe each through object storage and the\n" +
			"file transcription API, and summarize windows as they finish. With --project the\n" +
			"summaries are stored on that project; --save also stores the transcript, creating\n" +
			"a project named after the file when --project is not given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := args[0]
			if info, err := os.Stat(path); err != nil {
				return fmt.Errorf("inspect %s: %w", path, err)
			} else if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}
			logger, err := ctx.fileLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			components, err := server.Build(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			if projectID != "" {
				if _, err := components.Store.GetProject(runCtx, projectID); err != nil {
					return err
				}
			} else if save {
				title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				project, err := components.Store.CreateProject(runCtx, store.NewProject{Title: title})
				if err != nil {
					return err
				}
				projectID = project.ID
				fmt.Fprintf(cmd.ErrOrStderr(), "Created project %s\n", projectID)
			}

			renderer := newEventRenderer(cmd.ErrOrStderr())
			var final *pipeline.Event
			var failure string
			events := components.Segmented(cfg, logger).Run(runCtx, pipeline.Request{
				FilePath:  path,
				ProjectID: projectID,
				Window:    window,
			})
			for ev := range events {
				renderer.Render(ev)
				switch ev.Type {
				case pipeline.EventComplete:
					final = &ev
				case pipeline.EventError:
					failure = ev.Error
				}
			}
			if final == nil {
				if failure != "" {
					return errors.New(failure)
				}
				return runCtx.Err()
			}

			if save {
				status := store.StatusTranscribed
				if _, err := components.Store.UpdateProject(runCtx, projectID, store.ProjectUpdate{RawText: &final.Text, Status: &status}); err != nil {
					return fmt.Errorf("save transcript: %w", err)
				}
			}

			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(final.Text+"\n"), 0o644); err != nil {
					return fmt.Errorf("write transcript: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote transcript to %s\n", outPath)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), final.Text)
			return nil
		},
	}

	cmd.Flags().Float64Var(&window, "window", 0, "Window length in seconds (default segmenter.window_seconds)")
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project to attach summaries to")
	cmd.Flags().BoolVar(&save, "save", false, "Store the transcript on the project")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the transcript to a file instead of stdout")
	return cmd
}
