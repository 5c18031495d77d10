package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahmetcdevelopment/task-management-api/internal/models"
)

var projectStatus string

// projectCmd represents the project command group
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project inspection commands",
	Long: `Commands for inspecting projects.

Projects are created and changed through the API. These commands read the
database file directly.

Examples:
  # List all projects
  taskctl project list

  # List projects on hold
  taskctl project list --status OnHold`,
}

// projectListCmd lists projects
var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long: `List projects in the database.

Displays project ID, name, status, priority, team size and creation date.

Example:
  taskctl project list --status InProgress`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var statuses []models.ProjectStatus
		if projectStatus != "" {
			status := models.ProjectStatus(projectStatus)
			if !status.Valid() {
				return fmt.Errorf("invalid project status %q", projectStatus)
			}
			statuses = append(statuses, status)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		var projects []*models.Project
		if len(statuses) > 0 {
			projects, err = store.Projects().ListByStatus(ctx, statuses...)
		} else {
			projects, err = store.Projects().List(ctx)
		}
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}

		out := cmd.OutOrStdout()
		if ok, err := printStructured(out, projects); err != nil || ok {
			return err
		}
		if len(projects) == 0 {
			fmt.Fprintln(out, "No projects found.")
			return nil
		}

		fmt.Fprintf(out, "\n%-36s  %-24s  %-11s  %-8s  %-5s  %s\n",
			"ID", "NAME", "STATUS", "PRIORITY", "TEAM", "CREATED")
		fmt.Fprintln(out, strings.Repeat("-", 110))
		for _, p := range projects {
			fmt.Fprintf(out, "%-36s  %-24s  %-11s  %-8s  %-5d  %s\n",
				p.ID,
				truncate(p.Name, 24),
				p.Status,
				p.Priority,
				len(p.TeamMemberIDs),
				p.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		fmt.Fprintf(out, "\nTotal: %d project(s)\n", len(projects))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd)

	projectListCmd.Flags().StringVar(&projectStatus, "status", "", "filter by status")
}
