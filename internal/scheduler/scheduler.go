package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/beacon-lab/project-beacon/internal/processors"
	"github.com/beacon-lab/project-beacon/internal/queue"
)

// Scheduler drives one goroutine per job, ticking at the job's interval and
// enqueueing its descriptor.
type Scheduler struct {
	jobs []Job
	pub  message.Publisher
}

// New creates a scheduler over the loaded jobs.
func New(jobs []Job, pub message.Publisher) *Scheduler {
	return &Scheduler{jobs: jobs, pub: pub}
}

// Start runs every job loop until the context is cancelled. Each job fires
// once immediately, then on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	if len(s.jobs) == 0 {
		slog.Info("[Scheduler] No jobs configured")
		return
	}

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
	slog.Info("[Scheduler] Started", "jobs", len(s.jobs))
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Job scheduled", "job", job.Name, "kind", job.Kind, "interval", job.Interval)

	s.fire(ctx, job)
	for {
		select {
		case <-ticker.C:
			s.fire(ctx, job)
		case <-ctx.Done():
			slog.Info("[Scheduler] Job stopped", "job", job.Name)
			return
		}
	}
}

// fire enqueues one run of the job. Enqueue failures are logged and retried
// on the next tick; the descriptors are idempotent.
func (s *Scheduler) fire(ctx context.Context, job Job) {
	if err := s.enqueue(job); err != nil {
		slog.Error("[Scheduler] Failed to enqueue job", "job", job.Name, "error", err)
		return
	}
	slog.Debug("[Scheduler] Job enqueued", "job", job.Name, "kind", job.Kind)
}

func (s *Scheduler) enqueue(job Job) error {
	switch job.Kind {
	case KindCMSImport:
		batchSize := 0
		if raw := job.Params["batch_size"]; raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("job %q: invalid batch_size: %w", job.Name, err)
			}
			batchSize = n
		}
		return queue.PublishJSON(s.pub, queue.TopicCMSSync, processors.CMSJob{
			Action:     processors.CMSActionImportAll,
			DatabaseID: job.Params["database_id"],
			BatchSize:  batchSize,
			Force:      job.Params["force"] == "true",
		})

	case KindDailySummary:
		return queue.PublishJSON(s.pub, queue.TopicSummary, map[string]string{
			"job": job.Name,
		})

	default:
		return fmt.Errorf("job %q: unsupported kind %q", job.Name, job.Kind)
	}
}
