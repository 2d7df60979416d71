package maintenance

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/pkg/metrics"
	"github.com/amc-simulator/amc_simulator/pkg/tracing"
)

// ErrUnknownJob is returned when a job name is not registered
var ErrUnknownJob = errors.New("unknown maintenance job")

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Job is one calendar-scheduled maintenance task. An empty schedule means
// the job only runs when triggered by name. Run returns a JSON-serializable
// report of what it did, recorded on the RunResult.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) (interface{}, error)
}

// Config holds scheduler settings
type Config struct {
	Timezone   string        // IANA zone the cron specs are evaluated in
	JobTimeout time.Duration // upper bound for a single run, also the lock TTL
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Timezone:   "UTC",
		JobTimeout: 30 * time.Minute,
	}
}

// RunResult describes one finished run
type RunResult struct {
	Job       string        `json:"job"`
	Trigger   string        `json:"trigger"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Report    interface{}   `json:"report,omitempty"`
}

// JobInfo is the registry view of a job
type JobInfo struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastRun  *RunResult `json:"last_run,omitempty"`
	Running  bool       `json:"running"`
}

type registeredJob struct {
	job     Job
	entryID cron.EntryID
	running bool
	last    *RunResult
}

// zapCronLogger adapts zap to cron's Printf logger
type zapCronLogger struct {
	logger *zap.Logger
}

func (l *zapCronLogger) Printf(format string, args ...interface{}) {
	l.logger.Sugar().Debugf(format, args...)
}

// Scheduler runs maintenance jobs on cron schedules. Runs are guarded by
// a distributed lock so only one replica executes a given job at a time.
// Job failures and panics are logged and recorded, never propagated.
type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	config Config
	logger *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]*registeredJob
	running bool
}

// NewScheduler creates a scheduler. Specs use six fields, seconds first.
func NewScheduler(config Config, locker Locker, logger *zap.Logger) (*Scheduler, error) {
	if config.Timezone == "" {
		config.Timezone = "UTC"
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", config.Timezone, err)
	}
	if locker == nil {
		locker = NoopLocker{}
	}

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(location),
		cron.WithLogger(cron.VerbosePrintfLogger(&zapCronLogger{logger: logger})),
	)

	return &Scheduler{
		cron:   c,
		locker: locker,
		config: config,
		logger: logger,
		jobs:   make(map[string]*registeredJob),
	}, nil
}

// Register adds a job. Jobs with a schedule are armed immediately and fire
// once the scheduler is started.
func (s *Scheduler) Register(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("maintenance job %s already registered", job.Name())
	}

	reg := &registeredJob{job: job}
	if job.Schedule() != "" {
		id, err := s.cron.AddFunc(job.Schedule(), func() {
			s.execute(context.Background(), reg, "schedule")
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule(), job.Name(), err)
		}
		reg.entryID = id
	}
	s.jobs[job.Name()] = reg

	s.logger.Info("Maintenance job registered",
		zap.String("job", job.Name()),
		zap.String("schedule", job.Schedule()))
	return nil
}

// Start begins firing scheduled jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("Maintenance scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop stops firing new runs and waits for running ones until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.logger.Info("Maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Maintenance scheduler shutdown timed out")
		return ctx.Err()
	}
}

// RunJob runs the named job now. The job's own failure is reported in the
// result; only an unknown name is an error.
func (s *Scheduler) RunJob(ctx context.Context, name string) (RunResult, error) {
	s.mu.RLock()
	reg, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(context.WithoutCancel(ctx), reg, "manual"), nil
}

// Jobs lists registered jobs sorted by name
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, reg := range s.jobs {
		info := JobInfo{Name: name, Schedule: reg.job.Schedule(), Running: reg.running}
		if reg.entryID != 0 {
			if next := s.cron.Entry(reg.entryID).Next; !next.IsZero() {
				info.NextRun = &next
			}
		}
		if reg.last != nil {
			last := *reg.last
			info.LastRun = &last
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lockKey(job string) string {
	return "amc:maintenance:" + job
}

func (s *Scheduler) execute(ctx context.Context, reg *registeredJob, trigger string) (result RunResult) {
	name := reg.job.Name()
	result = RunResult{Job: name, Trigger: trigger, StartedAt: time.Now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	unlock, acquired, err := s.locker.TryLock(ctx, lockKey(name), s.config.JobTimeout)
	if err != nil || !acquired {
		result.Status = StatusSkipped
		if err != nil {
			result.Error = err.Error()
		}
		metrics.RecordMaintenanceRun(name, StatusSkipped, 0)
		s.logger.Info("Maintenance job skipped, lock held elsewhere",
			zap.String("job", name),
			zap.String("trigger", trigger),
			zap.Error(err))
		s.record(reg, result)
		return result
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release maintenance lock", zap.String("job", name), zap.Error(err))
		}
	}()

	s.setRunning(reg, true)
	metrics.MaintenanceRunsInProgress.WithLabelValues(name).Inc()
	ctx, span := tracing.StartTaskSpan(ctx, "maintenance."+name)

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			s.logger.Error("Recovered from panic in maintenance job",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}

		result.Duration = time.Since(result.StartedAt)
		result.Status = StatusSuccess
		if runErr != nil {
			result.Status = StatusFailed
			result.Error = runErr.Error()
			s.logger.Error("Maintenance job failed",
				zap.String("job", name),
				zap.String("trigger", trigger),
				zap.Duration("duration", result.Duration),
				zap.Error(runErr))
		} else {
			s.logger.Info("Maintenance job completed",
				zap.String("job", name),
				zap.String("trigger", trigger),
				zap.Duration("duration", result.Duration))
		}

		tracing.EndSpan(span, runErr)
		metrics.MaintenanceRunsInProgress.WithLabelValues(name).Dec()
		metrics.RecordMaintenanceRun(name, result.Status, result.Duration.Seconds())
		s.setRunning(reg, false)
		s.record(reg, result)
	}()

	s.logger.Info("Executing maintenance job", zap.String("job", name), zap.String("trigger", trigger))
	result.Report, runErr = reg.job.Run(ctx)
	return result
}

func (s *Scheduler) setRunning(reg *registeredJob, running bool) {
	s.mu.Lock()
	reg.running = running
	s.mu.Unlock()
}

func (s *Scheduler) record(reg *registeredJob, result RunResult) {
	s.mu.Lock()
	reg.last = &result
	s.mu.Unlock()
}
