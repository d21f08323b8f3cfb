package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"prdforge/internal/prd"
	"prdforge/internal/store"
)

const timeLayout = "2006-01-02 15:04"

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Inspect stored projects",
	}
	projectsCmd.AddCommand(newProjectsListCommand(ctx))
	projectsCmd.AddCommand(newProjectsShowCommand(ctx))
	return projectsCmd
}

func newProjectsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				projects, err := st.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if projects == nil {
						projects = []*store.Project{}
					}
					return printJSON(cmd.OutOrStdout(), projects)
				}
				out := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects")
					return nil
				}
				rows := make([][]string, 0, len(projects))
				for _, p := range projects {
					rows = append(rows, []string{
						p.ID,
						p.Title,
						statusLabel(p.Status),
						strconv.Itoa(p.Version),
						yesNo(strings.TrimSpace(p.PRDContent) != ""),
						p.UpdatedAt.Local().Format(timeLayout),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Status", "Version", "PRD", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

type projectDetail struct {
	*store.Project
	Summaries []*store.MiniSummary `json:"summaries"`
}

func newProjectsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				project, err := st.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				summaries, err := st.ListMiniSummaries(cmd.Context(), project.ID)
				if err != nil {
					return err
				}
				if asJSON {
					if summaries == nil {
						summaries = []*store.MiniSummary{}
					}
					return printJSON(cmd.OutOrStdout(), projectDetail{Project: project, Summaries: summaries})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", project.Title)
				field := func(label, value string) { fmt.Fprintf(out, "  %-12s %s\n", label+":", value) }
				field("ID", project.ID)
				field("Status", statusLabel(project.Status))
				field("Version", strconv.Itoa(project.Version))
				field("Created", project.CreatedAt.Local().Format(timeLayout))
				field("Updated", project.UpdatedAt.Local().Format(timeLayout))
				field("Transcript", fmt.Sprintf("%d characters", len([]rune(project.RawText))))
				field("PRD", yesNo(strings.TrimSpace(project.PRDContent) != ""))
				if project.AudioURL != "" {
					field("Audio", project.AudioURL)
				}

				if len(summaries) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(summaries))
				for _, s := range summaries {
					rows = append(rows, []string{prd.FormatTimestamp(s.Timestamp), s.Content})
				}
				fmt.Fprintln(out, renderTable([]string{"At", "Summary"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func statusLabel(status store.Status) string {
	return cases.Title(language.Und).String(string(status))
}
