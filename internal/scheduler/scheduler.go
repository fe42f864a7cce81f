package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// JobStats reports one job's history.
type JobStats struct {
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
	LastRun  time.Time `json:"last_run"`
	LastErr  string    `json:"last_error,omitempty"`
	Running  bool      `json:"running"`
}

// Scheduler dispatches due jobs to workers.
type Scheduler struct {
	jobs   []Job
	config *Config
	logger *zap.Logger
	now    func() time.Time

	// Worker pool state
	mu            sync.Mutex
	activeWorkers int
	stats         map[string]*JobStats

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new scheduler. Each job's interval may be overridden by cfg.
func New(cfg *Config, logger *zap.Logger, jobs ...Job) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sch := &Scheduler{
		config: cfg,
		logger: logger,
		now:    time.Now,
		stats:  make(map[string]*JobStats, len(jobs)),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, j := range jobs {
		j.Every = cfg.IntervalFor(j.Name, j.Every)
		sch.jobs = append(sch.jobs, j)
		sch.stats[j.Name] = &JobStats{}
	}
	return sch
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.schedulerLoop()
	sch.logger.Info("scheduler started", zap.Int("jobs", len(sch.jobs)))
}

// Stop cancels running jobs and waits for them to return.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.logger.Info("scheduler stopped")
}

// schedulerLoop dispatches due jobs on every tick, starting immediately.
func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.Tick)
	defer ticker.Stop()

	sch.pollAndDispatch()
	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.pollAndDispatch()
		}
	}
}

// pollAndDispatch starts every due job that is not already running, up to GlobalMax.
func (sch *Scheduler) pollAndDispatch() {
	now := sch.now()

	sch.mu.Lock()
	defer sch.mu.Unlock()

	for _, job := range sch.jobs {
		if sch.activeWorkers >= sch.config.GlobalMax {
			return
		}
		st := sch.stats[job.Name]
		if st.Running || (!st.LastRun.IsZero() && now.Sub(st.LastRun) < job.Every) {
			continue
		}

		st.Running = true
		st.LastRun = now
		sch.activeWorkers++

		sch.wg.Add(1)
		go sch.runWorker(job)
	}
}

// runWorker executes one job run.
func (sch *Scheduler) runWorker(job Job) {
	defer sch.wg.Done()

	start := sch.now()
	err := job.Run(sch.ctx)

	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.activeWorkers--

	st := sch.stats[job.Name]
	st.Running = false
	st.Runs++
	if err != nil {
		st.Failures++
		st.LastErr = err.Error()
		sch.logger.Warn("job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	st.LastErr = ""
	sch.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", sch.now().Sub(start)))
}

// Stats returns a snapshot of every job's history.
func (sch *Scheduler) Stats() map[string]JobStats {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	out := make(map[string]JobStats, len(sch.stats))
	for k, v := range sch.stats {
		out[k] = *v
	}
	return out
}

// ActiveWorkers returns the number of jobs running now.
func (sch *Scheduler) ActiveWorkers() int {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return sch.activeWorkers
}
