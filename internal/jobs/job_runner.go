package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"library-lending-core/internal/config"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/service"
)

const (
	JobMarkOverdueLoans   = "mark-overdue-loans"
	JobExpireReservations = "expire-reservations"
	JobSendDueReminders   = "send-due-reminders"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job already running")
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	sweeps service.SweepService
	config *config.Config

	mu      sync.Mutex
	running map[string]bool
	jobs    map[string]func(context.Context) (service.SweepResult, error)
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(sweeps service.SweepService, cfg *config.Config) *JobRunner {
	jr := &JobRunner{
		sweeps:  sweeps,
		config:  cfg,
		running: make(map[string]bool),
	}
	jr.jobs = map[string]func(context.Context) (service.SweepResult, error){
		JobMarkOverdueLoans:   jr.sweeps.SweepOverdueLoans,
		JobExpireReservations: jr.sweeps.SweepExpiredReservations,
		JobSendDueReminders:   jr.sweeps.SendDueReminders,
	}
	return jr
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// JobNames lists the jobs accepted by Run
func (jr *JobRunner) JobNames() []string {
	names := make([]string, 0, len(jr.jobs))
	for name := range jr.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job by name and waits for it to finish
func (jr *JobRunner) Run(ctx context.Context, name string) (service.SweepResult, error) {
	job, ok := jr.jobs[name]
	if !ok {
		return service.SweepResult{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return jr.runWithRecovery(ctx, name, job)
}

// RunAll runs every job once, in a fixed order (for manual execution)
func (jr *JobRunner) RunAll(ctx context.Context) error {
	var errs []error
	for _, name := range []string{JobMarkOverdueLoans, JobExpireReservations, JobSendDueReminders} {
		if _, err := jr.Run(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runWithRecovery wraps job execution with panic recovery. A job already in
// progress is not started a second time.
func (jr *JobRunner) runWithRecovery(ctx context.Context, jobName string, jobFunc func(context.Context) (service.SweepResult, error)) (result service.SweepResult, err error) {
	log := logger.WithJob(jobName, uuid.NewString())

	if !jr.acquire(jobName) {
		log.Warn("Job still running, skipping")
		return result, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	defer jr.release(jobName)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	log.Info("Starting job")
	start := time.Now()

	result, err = jobFunc(ctx)
	if err != nil {
		log.Error("Job failed", "error", err, "scanned", result.Scanned, "processed", result.Processed, "failed", result.Failed)
		return result, err
	}

	log.Info("Job completed",
		"scanned", result.Scanned,
		"processed", result.Processed,
		"failed", result.Failed,
		"duration", time.Since(start))
	return result, nil
}

func (jr *JobRunner) acquire(jobName string) bool {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	if jr.running[jobName] {
		return false
	}
	jr.running[jobName] = true
	return true
}

func (jr *JobRunner) release(jobName string) {
	jr.mu.Lock()
	defer jr.mu.Unlock()
	delete(jr.running, jobName)
}
