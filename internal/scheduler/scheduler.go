package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	cron "github.com/robfig/cron/v3"
)

const DefaultSpec = "@every 5m"

// Job runs under a per-run timeout; errors are logged and never stop the schedule.
type Job struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
}

// New registers every job on the same spec. An empty spec uses DefaultSpec.
func New(spec string, jobs ...Job) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	c := cron.New()
	for _, job := range jobs {
		job := job
		if job.Timeout <= 0 {
			job.Timeout = 30 * time.Second
		}
		if _, err := c.AddFunc(spec, func() { runJob(job) }); err != nil {
			return nil, fmt.Errorf("schedule %s with %q: %w", job.Name, spec, err)
		}
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[scheduler] started with %d jobs", len(s.cron.Entries()))
}

// Stop waits for running jobs or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		log.Printf("[scheduler] WARN: stop timed out with jobs still running")
	}
}

// RunNow executes every job once, synchronously.
func RunNow(jobs ...Job) {
	for _, job := range jobs {
		if job.Timeout <= 0 {
			job.Timeout = 30 * time.Second
		}
		runJob(job)
	}
}

func runJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()

	startedAt := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("[scheduler] WARN: job=%s failed after %s: %v", job.Name, time.Since(startedAt).Round(time.Millisecond), err)
		return
	}
	log.Printf("[scheduler] job=%s done in %s", job.Name, time.Since(startedAt).Round(time.Millisecond))
}
