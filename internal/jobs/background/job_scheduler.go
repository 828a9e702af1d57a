package background

import (
	"context"
	"sync"
	"time"

	"leavedesk/internal/jobs"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const pendingChangesJobName = "apply-pending-seat-changes"

// PendingChangesRunner is satisfied by *jobs.PendingChangesJob.
type PendingChangesRunner interface {
	Run(ctx context.Context) *jobs.PendingChangesResult
}

// JobScheduler runs the in-process cron jobs. With a distributed locker only
// one replica executes each tick.
type JobScheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
	timeout   time.Duration
}

type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	locker  gocron.Locker
	timeout time.Duration
}

// WithLocker makes every job take a distributed lock before running.
func WithLocker(locker gocron.Locker) SchedulerOption {
	return func(o *schedulerOptions) { o.locker = locker }
}

// WithRunTimeout bounds a single job execution.
func WithRunTimeout(timeout time.Duration) SchedulerOption {
	return func(o *schedulerOptions) { o.timeout = timeout }
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(opts ...SchedulerOption) (*JobScheduler, error) {
	options := schedulerOptions{timeout: 10 * time.Minute}
	for _, opt := range opts {
		opt(&options)
	}

	var schedulerOpts []gocron.SchedulerOption
	if options.locker != nil {
		schedulerOpts = append(schedulerOpts, gocron.WithDistributedLocker(options.locker))
	}

	scheduler, err := gocron.NewScheduler(schedulerOpts...)
	if err != nil {
		return nil, err
	}

	return &JobScheduler{
		scheduler: scheduler,
		jobs:      make(map[string]gocron.Job),
		timeout:   options.timeout,
	}, nil
}

// RegisterPendingChanges schedules the apply-pending job on a crontab expression.
func (js *JobScheduler) RegisterPendingChanges(schedule string, runner PendingChangesRunner) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(js.runPendingChanges, runner),
		gocron.WithName(pendingChangesJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	js.jobs[pendingChangesJobName] = job
	log.Info().Str("job", pendingChangesJobName).Str("schedule", schedule).Msg("registered background job")
	return nil
}

func (js *JobScheduler) runPendingChanges(runner PendingChangesRunner) {
	ctx, cancel := context.WithTimeout(context.Background(), js.timeout)
	defer cancel()

	start := time.Now()
	result := runner.Run(ctx)
	log.Info().
		Str("job", pendingChangesJobName).
		Bool("success", result.Success).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Dur("duration", time.Since(start)).
		Msg("background job finished")
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	log.Info().Int("jobs", len(js.jobs)).Msg("starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Info().Msg("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := make(map[string]interface{})
	status["total_jobs"] = len(js.jobs)
	names := make([]string, 0, len(js.jobs))
	next := make(map[string]time.Time, len(js.jobs))

	for name, job := range js.jobs {
		names = append(names, name)
		if run, err := job.NextRun(); err == nil {
			next[name] = run
		}
	}

	status["jobs"] = names
	status["next_runs"] = next

	return status
}
