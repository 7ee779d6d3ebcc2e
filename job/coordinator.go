package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safemigrator/cms"
	"safemigrator/failures"
	"safemigrator/logger"
	"safemigrator/models"
	"safemigrator/settings"
)

// SourceMimeTypes are the media types a batch converts from.
var SourceMimeTypes = []string{"image/jpeg", "image/png", "image/gif"}

var candidateStates = []models.Lifecycle{
	models.LifecycleUnset,
	models.LifecycleSelected,
	models.LifecycleConverted,
	models.LifecycleConvertFailed,
	models.LifecycleMetadataFailed,
}

// Run processes up to batch_size eligible assets in ascending id order.
// A single asset's failure never stops the batch; cancellation and the
// time budget are only honoured between assets.
func (e *Engine) Run(ctx context.Context, o *settings.Overrides) (*models.BatchReport, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := e.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if s, err = s.Apply(o); err != nil {
		return nil, err
	}
	if !e.codec.Supports(s.TargetFormat) {
		return nil, failures.New(failures.KindCodecCapabilityMissing, failures.StepEncode,
			fmt.Sprintf("no encoder available for %s", s.TargetFormat))
	}

	start := e.now()
	report := &models.BatchReport{
		RunID:        uuid.NewString(),
		StartedAt:    start,
		TargetFormat: s.TargetFormat,
	}
	ids, skipped, err := e.candidates(ctx, s)
	if err != nil {
		return nil, err
	}
	report.Eligible = len(ids)
	report.Skipped = skipped
	logger.Infow("batch started", "run", report.RunID, "eligible", len(ids), "skipped", len(skipped),
		"batch_size", s.BatchSize, "format", s.TargetFormat, "validation", s.Validation)

	for i, id := range ids {
		if i >= s.BatchSize {
			break
		}
		if ctx.Err() != nil {
			report.Stopped = "cancelled"
			break
		}
		if s.TimeBudget > 0 && e.now().Sub(start) >= s.TimeBudget {
			report.Stopped = "time budget exhausted"
			break
		}
		// an asset in flight finishes even if the batch is cancelled
		state, err := e.drive(context.WithoutCancel(ctx), id, s)
		report.Outcomes = append(report.Outcomes, outcome(id, state, err))
	}

	report.FinishedAt = e.now()
	logger.Infow("batch finished", "run", report.RunID, "processed", len(report.Outcomes),
		"succeeded", report.Succeeded(), "stopped", report.Stopped,
		"took", report.FinishedAt.Sub(start).Round(time.Millisecond))
	return report, nil
}

// candidates lists eligible asset ids in ascending order, and the ids
// excluded by skip rules.
func (e *Engine) candidates(ctx context.Context, s settings.Settings) ([]models.AssetID, []models.AssetID, error) {
	rules := s.Rules()
	var ids, skipped []models.AssetID
	filter := cms.AssetFilter{MimeTypes: SourceMimeTypes, Statuses: candidateStates}
	err := e.host.ListAssets(ctx, filter, func(id models.AssetID) error {
		a, err := e.host.GetAsset(ctx, id)
		if err != nil {
			logger.Warnw("candidate unreadable", "asset", id, "error", err)
			return nil
		}
		if rules.Skip(a.Meta.File, a.MimeType) {
			skipped = append(skipped, id)
			return nil
		}
		state, err := e.host.GetLifecycle(ctx, id)
		if err != nil {
			return err
		}
		if state.IsFailure() {
			rec, err := e.host.GetError(ctx, id)
			if err != nil {
				return err
			}
			if rec != nil && rec.Retries >= s.MaxRetries {
				return nil
			}
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list candidates: %w", err)
	}
	return ids, skipped, nil
}
