package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/researchdesk/internal/models"
	"github.com/zulandar/researchdesk/internal/research"
)

func newResearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Research lifecycle commands",
	}

	cmd.AddCommand(newResearchStartCmd())
	cmd.AddCommand(newResearchProgressCmd())
	cmd.AddCommand(newResearchCompleteCmd())
	cmd.AddCommand(newResearchCancelCmd())
	cmd.AddCommand(newResearchResultsCmd())
	return cmd
}

func newResearchStartCmd() *cobra.Command {
	var (
		configPath string
		service    string
		prompt     string
	)

	cmd := &cobra.Command{
		Use:   "start <todo-id>",
		Short: "Start research for a todo",
		Long:  "Marks the todo as researching and opens a progress record for the service.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearchStart(cmd, configPath, args[0], service, prompt)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	cmd.Flags().StringVar(&service, "service", "", "research service (defaults to config)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "research prompt")
	return cmd
}

func runResearchStart(cmd *cobra.Command, configPath, todoID, service, prompt string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if service == "" {
		service = cfg.Research.DefaultService
	}

	progress, err := research.Start(gormDB, research.OpenOpts{
		TodoID:           todoID,
		Service:          service,
		Prompt:           prompt,
		EstimatedSeconds: cfg.Research.EstimatedSeconds,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if progress == nil {
		fmt.Fprintf(out, "Todo %s not found.\n", todoID)
		return nil
	}
	fmt.Fprintf(out, "Started research on %s via %s\n", todoID, service)
	return nil
}

func newResearchProgressCmd() *cobra.Command {
	var (
		configPath string
		service    string
		stage      string
		percentage int
		step       string
		remaining  int
	)

	cmd := &cobra.Command{
		Use:   "progress <todo-id>",
		Short: "Report research progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := models.ParseStageStrict(stage)
			if err != nil {
				return err
			}
			p := &models.ResearchProgress{
				TodoID:             args[0],
				Service:            service,
				Stage:              st,
				ProgressPercentage: percentage,
				CurrentStep:        step,
			}
			if cmd.Flags().Changed("remaining") {
				p.EstimatedRemaining = &remaining
			}
			return runResearchProgress(cmd, configPath, p)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	cmd.Flags().StringVar(&service, "service", "web", "research service")
	cmd.Flags().StringVar(&stage, "stage", "searching", "stage (searching, analyzing, synthesizing, completed)")
	cmd.Flags().IntVar(&percentage, "percentage", 0, "progress percentage")
	cmd.Flags().StringVar(&step, "step", "", "current step description")
	cmd.Flags().IntVar(&remaining, "remaining", 0, "estimated seconds remaining")
	return cmd
}

func runResearchProgress(cmd *cobra.Command, configPath string, p *models.ResearchProgress) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := research.UpdateProgress(gormDB, p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Progress for %s via %s: %s %d%%\n",
		p.TodoID, p.Service, p.Stage, p.ProgressPercentage)
	return nil
}

func newResearchCompleteCmd() *cobra.Command {
	var (
		configPath string
		service    string
		prompt     string
		content    string
		status     string
		startedAt  string
	)

	cmd := &cobra.Command{
		Use:   "complete <todo-id>",
		Short: "Record a research result",
		Long:  "Stores the result, moves the todo to review on success, and clears\nthe progress record. All three happen together or not at all.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := research.CompleteOpts{
				Service: service,
				Prompt:  prompt,
				Content: content,
			}
			if status != "" {
				st, err := models.ParseResultStatusStrict(status)
				if err != nil {
					return err
				}
				opts.Status = st
			}
			if startedAt != "" {
				t, err := time.Parse(time.RFC3339, startedAt)
				if err != nil {
					return fmt.Errorf("parse --started-at: %w", err)
				}
				opts.StartedAt = t
			}
			return runResearchComplete(cmd, configPath, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	cmd.Flags().StringVar(&service, "service", "web", "research service")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt the result answers")
	cmd.Flags().StringVar(&content, "content", "", "result content (required)")
	cmd.Flags().StringVar(&status, "status", "", "result status (completed, failed, timeout)")
	cmd.Flags().StringVar(&startedAt, "started-at", "", "RFC3339 start time of the attempt")
	cmd.MarkFlagRequired("content")
	return cmd
}

func runResearchComplete(cmd *cobra.Command, configPath, todoID string, opts research.CompleteOpts) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	result, err := research.Complete(gormDB, todoID, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded result %s (%s, %ds)\n",
		result.ID, result.Status, result.DurationSeconds)
	return nil
}

func newResearchCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel <todo-id>",
		Short: "Cancel in-flight research for a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearchCancel(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	return cmd
}

func runResearchCancel(cmd *cobra.Command, configPath, todoID string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	td, err := research.Cancel(gormDB, todoID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if td == nil {
		fmt.Fprintf(out, "Todo %s not found.\n", todoID)
		return nil
	}
	fmt.Fprintf(out, "Cancelled research on %s (status: %s)\n", td.ID, td.Status)
	return nil
}

func newResearchResultsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "results <todo-id>",
		Short: "List research results for a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearchResults(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to researchdesk config file")
	return cmd
}

func runResearchResults(cmd *cobra.Command, configPath, todoID string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	results, err := research.Results(gormDB, todoID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSERVICE\tSTATUS\tDURATION\tCOMPLETED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%s\n",
			r.ID, r.Service, r.Status, r.DurationSeconds,
			r.CompletedAt.Format(time.RFC3339))
	}
	w.Flush()
	return nil
}
