// Package success keeps the per-asset report records written when an asset
// is relinked, and the aggregate statistics.
package success

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safemigrator/cms"
	"safemigrator/failures"
	"safemigrator/logger"
	"safemigrator/models"
)

// Reporter is safe for concurrent use within one process. Counters are
// read-modify-written through the host, so two processes must not share a
// store without the coordinator lock.
type Reporter struct {
	records cms.Records
	mu      sync.Mutex
	now     func() time.Time
}

func New(records cms.Records) *Reporter {
	return &Reporter{records: records, now: time.Now}
}

// Write stores the report of an asset that just reached relinked and adds
// it to the aggregate counters.
func (r *Reporter) Write(ctx context.Context, rep models.Report) error {
	if rep.Timestamp.IsZero() {
		rep.Timestamp = r.now()
	}
	if err := r.records.SetReport(ctx, rep); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	logger.Infow("report written", "asset", rep.AssetID, "map", rep.MapSize,
		"docs", rep.DocsUpdated, "meta", rep.MetaUpdated, "options", rep.OptsUpdated)
	return r.update(ctx, func(s *models.Statistics) {
		s.Converted++
		s.BytesSaved += rep.BytesBefore - rep.BytesAfter
	})
}

// Get returns the asset's report, or nil when it has none.
func (r *Reporter) Get(ctx context.Context, id models.AssetID) (*models.Report, error) {
	return r.records.GetReport(ctx, id)
}

// RolledBack removes the asset's report and takes it out of the counters.
func (r *Reporter) RolledBack(ctx context.Context, id models.AssetID) error {
	rep, err := r.records.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if err := r.records.DeleteReport(ctx, id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return r.update(ctx, func(s *models.Statistics) {
		s.RolledBack++
		if rep != nil {
			s.Converted--
			s.BytesSaved -= rep.BytesBefore - rep.BytesAfter
		}
	})
}

func (r *Reporter) Committed(ctx context.Context) error {
	return r.update(ctx, func(s *models.Statistics) { s.Committed++ })
}

// Failed counts one asset landing in a failure sink.
func (r *Reporter) Failed(ctx context.Context, kind failures.Kind) error {
	return r.update(ctx, func(s *models.Statistics) {
		s.Failed++
		if s.FailedBy == nil {
			s.FailedBy = map[string]int64{}
		}
		s.FailedBy[string(kind)]++
	})
}

func (r *Reporter) Skipped(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}
	return r.update(ctx, func(s *models.Statistics) { s.Skipped += int64(n) })
}

func (r *Reporter) Statistics(ctx context.Context) (models.Statistics, error) {
	return r.records.GetStatistics(ctx)
}

func (r *Reporter) update(ctx context.Context, fn func(*models.Statistics)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.records.GetStatistics(ctx)
	if err != nil {
		return fmt.Errorf("load statistics: %w", err)
	}
	fn(&s)
	s.UpdatedAt = r.now()
	if err := r.records.SetStatistics(ctx, s); err != nil {
		return fmt.Errorf("store statistics: %w", err)
	}
	return nil
}
