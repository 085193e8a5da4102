package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmatic/flowmatic/engine/job"
	"github.com/flowmatic/flowmatic/pkg/logger"
)

const defaultQueueSize = 256

// WorkflowRunner executes one workflow run to completion.
type WorkflowRunner interface {
	Run(ctx context.Context, workflowID, input string) (string, error)
}

type task struct {
	jobID      string
	workflowID string
	input      string
}

// Dispatcher accepts workflow submissions, records a PENDING job, and hands
// execution to a fixed pool of workers. Submission returns as soon as the
// task is queued; callers poll the job store for progress.
type Dispatcher struct {
	jobs    *job.Store
	runner  WorkflowRunner
	log     logger.Logger
	workers int

	queue    chan task
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewDispatcher(jobs *job.Store, runner WorkflowRunner, workers int, log logger.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		jobs:    jobs,
		runner:  runner,
		log:     log,
		workers: workers,
		queue:   make(chan task, defaultQueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx, i)
	}
	d.log.Info("dispatcher started", "workers", d.workers)
}

// Stop closes the queue and waits for in-flight runs to finish. Queued
// tasks still drain; their jobs reach a terminal state before return.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

// Submit creates a PENDING job for the workflow and enqueues its execution.
func (d *Dispatcher) Submit(workflowID, input string) string {
	jobID := d.jobs.Create(workflowID)
	d.queue <- task{jobID: jobID, workflowID: workflowID, input: input}
	d.log.Debug("job submitted", "job_id", jobID, "workflow_id", workflowID)
	return jobID
}

func (d *Dispatcher) runWorker(ctx context.Context, id int) {
	defer d.wg.Done()
	log := d.log.With("worker", id)
	for t := range d.queue {
		d.execute(ctx, log, t)
	}
}

// execute runs one job to a terminal state. Nothing may escape to the
// pool: panics and errors alike end as FAILED records.
func (d *Dispatcher) execute(ctx context.Context, log logger.Logger, t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panic recovered", "job_id", t.jobID, "panic", r)
			d.fail(t.jobID, fmt.Sprintf("Processing failed: %v", r))
		}
	}()

	if err := d.jobs.Update(t.jobID, job.StatusProcessing, "Workflow started."); err != nil {
		log.Error("failed to mark job processing", "job_id", t.jobID, "error", err)
		return
	}

	runCtx := logger.ContextWithLogger(ctx, log.With("job_id", t.jobID, "workflow_id", t.workflowID))
	output, err := d.runner.Run(runCtx, t.workflowID, t.input)
	if err != nil {
		log.Error("workflow run failed", "job_id", t.jobID, "workflow_id", t.workflowID, "error", err)
		d.fail(t.jobID, "Processing failed: "+err.Error())
		return
	}

	if err := d.jobs.Update(t.jobID, job.StatusCompleted, output); err != nil {
		log.Error("failed to record job completion", "job_id", t.jobID, "error", err)
	}
}

func (d *Dispatcher) fail(jobID, message string) {
	if err := d.jobs.Update(jobID, job.StatusFailed, message); err != nil {
		d.log.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
}
