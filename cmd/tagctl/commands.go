package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/qs3c/autotag_server/internal/app"
	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/pkg/queue"
)

var statusOrder = []model.JobStatus{
	model.JobStatusPending,
	model.JobStatusProcessing,
	model.JobStatusCompleted,
	model.JobStatusFailed,
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show queue counts, or the details of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *app.Pipeline) error {
				if len(args) == 1 {
					job, err := p.Repos.Jobs.GetByID(cmd.Context(), args[0])
					if err != nil {
						return jobLookupError(args[0], err)
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable(
						[]string{"Field", "Value"},
						buildJobRows(job),
						[]columnAlignment{alignLeft, alignLeft},
					))
					return nil
				}

				counts, err := p.Repos.Jobs.CountByStatus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					buildStatusRows(counts),
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Reset a failed job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *app.Pipeline) error {
				jobID := args[0]
				job, err := p.Repos.Jobs.GetByID(cmd.Context(), jobID)
				if err != nil {
					return jobLookupError(jobID, err)
				}

				ok, err := p.Repos.Jobs.Reset(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("job %s is %s, only failed jobs can be retried", jobID, job.Status)
				}

				msg := &queue.WakeMessage{JobID: jobID, TeamID: job.TeamID, Reason: "retry"}
				if err := p.WakeQueue.Push(cmd.Context(), msg); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: wake message not sent: %v\n", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s reset to pending\n", jobID)
				return nil
			})
		},
	}
}

func newTickCommand(ctx *commandContext) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one dispatch tick and wait for the claimed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if batchSize > 0 {
				cfg.Queue.ClaimBatchSize = batchSize
			}

			return ctx.withPipeline(func(p *app.Pipeline) error {
				started := time.Now()
				report, tickErr := p.Dispatcher.Tick(cmd.Context())
				p.Drain(nil)

				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Claimed", "Skipped (race)", "Elapsed"},
					[][]string{{
						strconv.Itoa(report.Claimed),
						strconv.Itoa(report.SkippedDueToRace),
						time.Since(started).Round(time.Millisecond).String(),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight},
				))
				return tickErr
			})
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "n", 0, "Override queue.claim_batch_size for this tick")
	return cmd
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the cached tag taxonomy",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "invalidate <team-id>",
		Short: "Drop a team's cached taxonomy after its tags changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *app.Pipeline) error {
				if err := p.Taxonomy.Invalidate(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Taxonomy cache cleared for team %s\n", args[0])
				return nil
			})
		},
	})
	return cacheCmd
}

func jobLookupError(jobID string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("job %s not found", jobID)
	}
	return err
}

func buildStatusRows(counts map[model.JobStatus]int64) [][]string {
	rows := make([][]string, 0, len(statusOrder)+1)
	var total int64
	for _, status := range statusOrder {
		n := counts[status]
		total += n
		rows = append(rows, []string{titleCase(string(status)), strconv.FormatInt(n, 10)})
	}
	rows = append(rows, []string{"Total", strconv.FormatInt(total, 10)})
	return rows
}

func buildJobRows(job *model.TaggingJob) [][]string {
	rows := [][]string{
		{"ID", job.ID},
		{"Team", job.TeamID},
		{"Asset", job.AssetID},
		{"Status", string(job.Status)},
		{"Task type", string(job.TaskType)},
		{"Created", job.CreatedAt.Format(time.RFC3339)},
		{"Started", formatTime(job.StartsAt)},
		{"Ended", formatTime(job.EndsAt)},
	}
	if d := job.Duration(); d > 0 {
		rows = append(rows, []string{"Duration", d.Round(time.Millisecond).String()})
	}
	if len(job.Result.ScoredTags) > 0 {
		top := job.Result.ScoredTags[0]
		rows = append(rows,
			[]string{"Candidates", strconv.Itoa(len(job.Result.ScoredTags))},
			[]string{"Top tag", fmt.Sprintf("%s (%d)", strings.Join(top.TagPath, " / "), top.Score)},
		)
	}
	if job.Result.Usage != nil {
		rows = append(rows, []string{"Tokens", strconv.Itoa(job.Result.Usage.TotalTokens)})
	}
	if job.Result.Error != "" {
		rows = append(rows, []string{"Error", job.Result.Error})
	}
	return rows
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
