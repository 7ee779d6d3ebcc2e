package taskqueue

import (
	"context"
	"errors"
	"time"

	"safemigrator/job"
	"safemigrator/lock"
	"safemigrator/logger"
	"safemigrator/models"
	"safemigrator/settings"
)

// Engine is what the driver drives; *job.Engine implements it.
type Engine interface {
	Run(ctx context.Context, o *settings.Overrides) (*models.BatchReport, error)
	Reprocess(ctx context.Context, ids []models.AssetID) ([]models.Outcome, error)
	Rollback(ctx context.Context, id models.AssetID) (models.Outcome, error)
	Commit(ctx context.Context, id models.AssetID) (models.Outcome, error)
	CommitAll(ctx context.Context) ([]models.Outcome, error)
}

var _ Engine = (*job.Engine)(nil)

// Driver is the periodic-task hook: each Tick drains queued requests and
// then runs one batch, all within Budget.
type Driver struct {
	engine Engine
	queue  *DBQueue

	Interval time.Duration
	Budget   time.Duration
	// AutoBatch runs a batch on every tick even with nothing queued.
	AutoBatch bool

	now func() time.Time
}

func NewDriver(engine Engine, queue *DBQueue, interval, budget time.Duration) *Driver {
	return &Driver{engine: engine, queue: queue, Interval: interval, Budget: budget, AutoBatch: true, now: time.Now}
}

// Tick does one slice of work and returns the batch report, if a batch
// ran.
func (d *Driver) Tick(ctx context.Context) (*models.BatchReport, error) {
	start := d.now()
	ranBatch := false

	if d.queue != nil {
		reqs, err := d.queue.Pending()
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			if ctx.Err() != nil || d.exhausted(start) {
				logger.Infow("tick budget spent, requests left for next tick", "left", len(reqs))
				return nil, nil
			}
			report, err := d.handle(ctx, r, start)
			if errors.Is(err, lock.ErrHeld) {
				return nil, err
			}
			if err != nil {
				logger.Errorw("queued request failed", "id", r.ID, "op", r.Op, "error", err)
			}
			if report != nil {
				ranBatch = true
			}
			if derr := d.queue.Delete(r); derr != nil {
				return nil, derr
			}
		}
	}
	if ranBatch || !d.AutoBatch || d.exhausted(start) || ctx.Err() != nil {
		return nil, nil
	}
	return d.engine.Run(ctx, d.overrides(start, nil))
}

func (d *Driver) exhausted(start time.Time) bool {
	return d.Budget > 0 && d.now().Sub(start) >= d.Budget
}

// overrides caps the batch at what is left of the tick budget.
func (d *Driver) overrides(start time.Time, o *settings.Overrides) *settings.Overrides {
	if d.Budget <= 0 {
		return o
	}
	out := settings.Overrides{}
	if o != nil {
		out = *o
	}
	left := d.Budget - d.now().Sub(start)
	if left <= 0 {
		left = time.Nanosecond
	}
	budget := left.String()
	out.TimeBudget = &budget
	return &out
}

func (d *Driver) handle(ctx context.Context, r Request, start time.Time) (*models.BatchReport, error) {
	logger.Infow("handling queued request", "id", r.ID, "op", r.Op, "assets", r.AssetIDs)
	var err error
	switch r.Op {
	case OpBatch:
		return d.engine.Run(ctx, d.overrides(start, r.Overrides))
	case OpReprocess:
		_, err = d.engine.Reprocess(ctx, r.AssetIDs)
	case OpRollback:
		_, err = d.engine.Rollback(ctx, r.AssetIDs[0])
	case OpCommit:
		_, err = d.engine.Commit(ctx, r.AssetIDs[0])
	case OpCommitAll:
		_, err = d.engine.CommitAll(ctx)
	default:
		err = r.Validate()
	}
	return nil, err
}

// Start calls Tick every Interval until ctx is done.
func (d *Driver) Start(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	logger.Infof("background driver started (interval %s, budget %s)", d.Interval, d.Budget)
	for {
		select {
		case <-ctx.Done():
			logger.Info("background driver stopped")
			return
		case <-ticker.C:
			report, err := d.Tick(ctx)
			if err != nil {
				logger.Warnw("tick failed", "error", err)
				continue
			}
			if report != nil && len(report.Outcomes) > 0 {
				logger.Infow("tick processed assets", "run", report.RunID, "processed", len(report.Outcomes), "succeeded", report.Succeeded())
			}
		}
	}
}
