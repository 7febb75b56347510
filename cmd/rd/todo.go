package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/researchdesk/internal/models"
	"github.com/zulandar/researchdesk/internal/todo"
)

func newTodoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todo",
		Short: "Todo management commands",
	}

	cmd.AddCommand(newTodoAddCmd())
	cmd.AddCommand(newTodoListCmd())
	cmd.AddCommand(newTodoShowCmd())
	cmd.AddCommand(newTodoUpdateCmd())
	cmd.AddCommand(newTodoDeleteCmd())
	cmd.AddCommand(newTodoCountsCmd())
	return cmd
}

func newTodoAddCmd() *cobra.Command {
	var (
		configPath  string
		description string
		url         string
		priority    string
		service     string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a new todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := todo.CreateOpts{
				Title:            args[0],
				Description:      description,
				URL:              url,
				PreferredService: service,
			}
			if priority != "" {
				p, err := models.ParsePriorityNameStrict(priority)
				if err != nil {
					return err
				}
				opts.Priority = &p
			}
			return runTodoAdd(cmd, configPath, opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	cmd.Flags().StringVar(&description, "description", "", "detailed description")
	cmd.Flags().StringVar(&url, "url", "", "reference URL")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high)")
	cmd.Flags().StringVar(&service, "service", "", "preferred research service")
	return cmd
}

func runTodoAdd(cmd *cobra.Command, configPath string, opts todo.CreateOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	td, err := todo.Create(gormDB, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created todo %s\n", td.ID)
	return nil
}

func newTodoListCmd() *cobra.Command {
	var (
		configPath string
		status     string
		priority   string
		search     string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List todos",
		Long:  "Lists todos ordered by priority, newest first. Archived todos are hidden\nunless --status archived is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := todo.Filter{Search: search, Limit: limit, Offset: offset}
			if status != "" {
				s, err := models.ParseTodoStatusStrict(status)
				if err != nil {
					return err
				}
				filter.Status = &s
			}
			if priority != "" {
				p, err := models.ParsePriorityNameStrict(priority)
				if err != nil {
					return err
				}
				filter.Priority = &p
			}
			return runTodoList(cmd, configPath, filter)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, researching, review, done, archived)")
	cmd.Flags().StringVar(&priority, "priority", "", "filter by priority (low, medium, high)")
	cmd.Flags().StringVar(&search, "search", "", "substring match across title, description, url")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum todos to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "todos to skip")
	return cmd
}

func runTodoList(cmd *cobra.Command, configPath string, filter todo.Filter) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	todos, err := todo.List(gormDB, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(todos) == 0 {
		fmt.Fprintln(out, "No todos found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRI\tCREATED")
	for _, td := range todos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			td.ID, truncate(td.Title, 40), td.Status, td.Priority.Name(),
			td.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()
	return nil
}

func newTodoShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a todo with its research history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTodoShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	return cmd
}

func runTodoShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	detail, err := todo.WithResearch(gormDB, id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if detail == nil {
		fmt.Fprintf(out, "Todo %s not found.\n", id)
		return nil
	}

	td := detail.Todo
	fmt.Fprintf(out, "ID:       %s\n", td.ID)
	fmt.Fprintf(out, "Title:    %s\n", td.Title)
	fmt.Fprintf(out, "Status:   %s\n", td.Status)
	fmt.Fprintf(out, "Priority: %s\n", td.Priority.Name())
	if td.Description != "" {
		fmt.Fprintf(out, "Description:\n  %s\n", td.Description)
	}
	if td.URL != "" {
		fmt.Fprintf(out, "URL:      %s\n", td.URL)
	}
	if td.PreferredService != "" {
		fmt.Fprintf(out, "Service:  %s\n", td.PreferredService)
	}
	fmt.Fprintf(out, "Created:  %s\n", td.CreatedAt.Format(time.RFC3339))
	if td.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", td.CompletedAt.Format(time.RFC3339))
	}

	if len(detail.Results) > 0 {
		fmt.Fprintf(out, "\nResearch results (%d):\n", len(detail.Results))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  ID\tSERVICE\tSTATUS\tDURATION\tCOMPLETED")
		for _, r := range detail.Results {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%ds\t%s\n",
				r.ID, r.Service, r.Status, r.DurationSeconds,
				r.CompletedAt.Format(time.RFC3339))
		}
		w.Flush()
	}
	return nil
}

func newTodoUpdateCmd() *cobra.Command {
	var (
		configPath  string
		title       string
		description string
		url         string
		status      string
		priority    string
		service     string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of a todo",
		Long:  "Updates only the fields given as flags; everything else is preserved.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts todo.UpdateOpts
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("url") {
				opts.URL = &url
			}
			if cmd.Flags().Changed("status") {
				s, err := models.ParseTodoStatusStrict(status)
				if err != nil {
					return err
				}
				opts.Status = &s
				if s == models.StatusDone {
					now := time.Now().UTC()
					opts.CompletedAt = &now
				}
			}
			if cmd.Flags().Changed("priority") {
				p, err := models.ParsePriorityNameStrict(priority)
				if err != nil {
					return err
				}
				opts.Priority = &p
			}
			if cmd.Flags().Changed("service") {
				opts.PreferredService = &service
			}
			return runTodoUpdate(cmd, configPath, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&url, "url", "", "new reference URL")
	cmd.Flags().StringVar(&status, "status", "", "new status (pending, researching, review, done, archived)")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority (low, medium, high)")
	cmd.Flags().StringVar(&service, "service", "", "new preferred research service")
	return cmd
}

func runTodoUpdate(cmd *cobra.Command, configPath, id string, opts todo.UpdateOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	td, err := todo.Update(gormDB, id, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if td == nil {
		fmt.Fprintf(out, "Todo %s not found.\n", id)
		return nil
	}
	fmt.Fprintf(out, "Updated todo %s (status: %s)\n", td.ID, td.Status)
	return nil
}

func newTodoDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a todo and its research history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTodoDelete(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	return cmd
}

func runTodoDelete(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	deleted, err := todo.Delete(gormDB, id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !deleted {
		fmt.Fprintf(out, "Todo %s not found.\n", id)
		return nil
	}
	fmt.Fprintf(out, "Deleted todo %s\n", id)
	return nil
}

func newTodoCountsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show todo counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTodoCounts(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	return cmd
}

func runTodoCounts(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	counts, err := todo.CountByStatus(gormDB)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	fmt.Fprintf(w, "pending\t%d\n", counts.Pending)
	fmt.Fprintf(w, "researching\t%d\n", counts.Researching)
	fmt.Fprintf(w, "review\t%d\n", counts.Review)
	fmt.Fprintf(w, "done\t%d\n", counts.Done)
	fmt.Fprintf(w, "archived\t%d\n", counts.Archived)
	fmt.Fprintf(w, "total\t%d\n", counts.Total)
	w.Flush()
	return nil
}
