// Package maintenance runs scheduled housekeeping jobs.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"fleet-status-backend/config"
)

const pruneTimeout = 10 * time.Minute

// Pruner deletes closed intervals that ended before a cutoff.
type Pruner interface {
	PruneIntervals(ctx context.Context, before time.Time) (int64, error)
}

// Retention prunes old closed intervals on a cron schedule.
type Retention struct {
	cfg     config.RetentionConfig
	pruner  Pruner
	cron    *cron.Cron
	running int32
	now     func() time.Time
}

// NewRetention creates the retention job. It is inert when keep_days <= 0.
func NewRetention(cfg config.RetentionConfig, pruner Pruner) *Retention {
	return &Retention{
		cfg:    cfg,
		pruner: pruner,
		cron: cron.New(
			cron.WithLogger(cron.VerbosePrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))),
		),
		now: time.Now,
	}
}

// Enabled reports whether intervals are ever pruned.
func (r *Retention) Enabled() bool {
	return r.cfg.KeepDays > 0
}

// Start schedules the job. Stop must be called to release the scheduler.
func (r *Retention) Start() error {
	if !r.Enabled() {
		log.Println("Retention is disabled (keep_days <= 0). Not scheduling.")
		return nil
	}
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.run); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()
	log.Printf("Retention scheduled (%s), keeping %d days of intervals", r.cfg.Schedule, r.cfg.KeepDays)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		log.Printf("Retention run failed: %v", err)
	}
}

// RunOnce prunes intervals that ended more than keep_days ago.
// It returns 0 without pruning when another run is in progress.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		log.Println("Previous retention run still in progress. Skipping this run.")
		return 0, nil
	}
	defer atomic.StoreInt32(&r.running, 0)

	before := r.now().UTC().AddDate(0, 0, -r.cfg.KeepDays)
	n, err := r.pruner.PruneIntervals(ctx, before)
	if err != nil {
		return 0, err
	}
	log.Printf("Retention pruned %d intervals that ended before %s", n, before.Format(time.RFC3339))
	return n, nil
}
