package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/qs3c/autotag_server/internal/model"
	"github.com/qs3c/autotag_server/internal/pkg/metrics"
	"github.com/qs3c/autotag_server/internal/repository"
)

// JobProcessor 处理单个已领取的任务
type JobProcessor interface {
	Process(ctx context.Context, job *model.TaggingJob) error
}

// DispatchReport 一次 tick 的领取结果
type DispatchReport struct {
	Claimed          int `json:"claimed"`
	SkippedDueToRace int `json:"skipped_due_to_race"`
}

// Dispatcher 领取待处理任务并在后台处理，不等待任务完成
type Dispatcher struct {
	baseCtx   context.Context
	jobRepo   *repository.JobRepository
	processor JobProcessor
	batchSize int
	wg        sync.WaitGroup
	log       *zap.SugaredLogger
}

// NewDispatcher baseCtx 决定后台任务的生命周期，与触发 tick 的请求无关
func NewDispatcher(baseCtx context.Context, jobRepo *repository.JobRepository, processor JobProcessor, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = repository.DefaultClaimBatchSize
	}
	return &Dispatcher{
		baseCtx:   baseCtx,
		jobRepo:   jobRepo,
		processor: processor,
		batchSize: batchSize,
		log:       zap.S().Named("dispatcher"),
	}
}

// Tick 领取一批任务并立即返回，已领取的任务即使领取中途出错也会被处理
func (d *Dispatcher) Tick(ctx context.Context) (DispatchReport, error) {
	claim, err := d.jobRepo.ClaimBatch(ctx, d.batchSize)
	if claim == nil {
		return DispatchReport{}, fmt.Errorf("claim batch: %w", err)
	}

	report := DispatchReport{Claimed: len(claim.Claimed), SkippedDueToRace: claim.Skipped}
	metrics.IncreaseJobsClaimed(report.Claimed)
	metrics.IncreaseJobsRaceSkipped(report.SkippedDueToRace)

	for _, job := range claim.Claimed {
		d.dispatch(job)
	}

	if report.Claimed > 0 || report.SkippedDueToRace > 0 {
		d.log.Infow("dispatch tick", "claimed", report.Claimed, "skipped_due_to_race", report.SkippedDueToRace)
	}
	if err != nil {
		return report, fmt.Errorf("claim batch: %w", err)
	}
	return report, nil
}

func (d *Dispatcher) dispatch(job *model.TaggingJob) {
	d.wg.Add(1)
	metrics.IncDispatchInFlight()
	go func() {
		defer d.wg.Done()
		defer metrics.DecDispatchInFlight()
		defer func() {
			if r := recover(); r != nil {
				d.log.Errorw("job processing panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		if err := d.processor.Process(d.baseCtx, job); err != nil {
			d.log.Errorw("job processing failed", "job_id", job.ID, "team_id", job.TeamID, "error", err)
		}
	}()
}

// Wait 等待所有已派发的任务处理结束
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
