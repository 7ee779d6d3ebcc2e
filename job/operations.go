package job

import (
	"context"
	"fmt"

	"safemigrator/failures"
	"safemigrator/layout"
	"safemigrator/logger"
	"safemigrator/models"
	"safemigrator/urlmap"
)

// Reprocess retries assets sitting in a failure sink. Assets in any other
// state get an invalid_state outcome and are left alone.
func (e *Engine) Reprocess(ctx context.Context, ids []models.AssetID) ([]models.Outcome, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := e.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if !e.codec.Supports(s.TargetFormat) {
		return nil, failures.New(failures.KindCodecCapabilityMissing, failures.StepEncode,
			fmt.Sprintf("no encoder available for %s", s.TargetFormat))
	}

	out := make([]models.Outcome, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		state, err := e.host.GetLifecycle(ctx, id)
		if err != nil {
			out = append(out, outcome(id, state, err))
			continue
		}
		if !state.IsFailure() {
			out = append(out, outcome(id, state, failures.New(failures.KindInvalidState, failures.StepEncode,
				fmt.Sprintf("asset %d is %s, not a failure state", id, state))))
			continue
		}
		state, err = e.drive(context.WithoutCancel(ctx), id, s)
		out = append(out, outcome(id, state, err))
	}
	return out, nil
}

// Rollback undoes a relinked asset: the content stores get the inverse
// map, the originals come back from the backup, the converted files are
// deleted and the previous metadata is restored.
func (e *Engine) Rollback(ctx context.Context, id models.AssetID) (models.Outcome, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return models.Outcome{AssetID: id}, err
	}
	defer release()

	state, err := e.rollback(context.WithoutCancel(ctx), id)
	return outcome(id, state, err), err
}

func (e *Engine) rollback(ctx context.Context, id models.AssetID) (models.Lifecycle, error) {
	state, err := e.host.GetLifecycle(ctx, id)
	if err != nil {
		return state, err
	}
	if state != models.LifecycleRelinked {
		return state, failures.New(failures.KindRollbackUnavailable, failures.StepRollback,
			fmt.Sprintf("asset %d is %s; only relinked assets can be rolled back", id, state))
	}
	entry, err := e.backups.Get(ctx, id)
	if err != nil {
		return state, err
	}
	if entry == nil {
		return state, failures.New(failures.KindRollbackUnavailable, failures.StepRollback,
			fmt.Sprintf("asset %d has no backup", id))
	}
	if err := e.backups.Check(entry); err != nil {
		return state, err
	}

	fwd, err := urlmap.FromPairs(entry.Pairs)
	if err != nil {
		return state, err
	}
	inv, err := fwd.Inverse()
	if err != nil {
		return state, err
	}
	counts, err := e.rewriter.Apply(ctx, inv.Replacer())
	if err != nil {
		return state, failures.Wrap(failures.KindRewriteFailed, failures.StepRollback, "inverse rewrite", err)
	}

	if err := e.backups.Restore(ctx, entry); err != nil {
		return state, err
	}
	for _, rel := range entry.Converted {
		if err := layout.Delete(e.layout.Abs(rel)); err != nil {
			logger.Warnw("converted file not deleted", "asset", id, "file", rel, "error", err)
		}
	}
	prev := entry.Previous
	if err := e.host.SetAssetMetadata(ctx, id, prev.Meta, prev.MimeType, prev.URL); err != nil {
		return state, failures.Wrap(failures.KindRewriteFailed, failures.StepRollback, "restore asset metadata", err)
	}
	if err := e.reporter.RolledBack(ctx, id); err != nil {
		logger.Warnw("report not removed", "asset", id, "error", err)
	}
	if err := e.backups.Clear(ctx, id); err != nil {
		return state, fmt.Errorf("clear backup entry: %w", err)
	}
	if err := e.transition(ctx, id, state, models.LifecycleSelected, failures.StepRollback); err != nil {
		return state, err
	}
	logger.Infow("asset rolled back", "asset", id, "updates", counts.Total(), "files", len(entry.Files))
	return models.LifecycleSelected, nil
}

// Commit deletes a relinked asset's backup, archiving it first when
// archive sinks are configured.
func (e *Engine) Commit(ctx context.Context, id models.AssetID) (models.Outcome, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return models.Outcome{AssetID: id}, err
	}
	defer release()

	state, err := e.commit(ctx, id)
	return outcome(id, state, err), err
}

// CommitAll commits every asset that still has a backup. Failures are
// reported per asset.
func (e *Engine) CommitAll(ctx context.Context) ([]models.Outcome, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var ids []models.AssetID
	if err := e.host.ListBackups(ctx, func(b models.BackupEntry) error {
		ids = append(ids, b.AssetID)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := make([]models.Outcome, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		state, err := e.commit(ctx, id)
		out = append(out, outcome(id, state, err))
	}
	return out, nil
}

func (e *Engine) commit(ctx context.Context, id models.AssetID) (models.Lifecycle, error) {
	state, err := e.host.GetLifecycle(ctx, id)
	if err != nil {
		return state, err
	}
	if state != models.LifecycleRelinked {
		return state, failures.New(failures.KindInvalidState, failures.StepCommit,
			fmt.Sprintf("asset %d is %s; only relinked assets can be committed", id, state))
	}
	entry, err := e.backups.Get(ctx, id)
	if err != nil {
		return state, err
	}
	if entry != nil {
		if err := e.backups.Commit(ctx, entry); err != nil {
			return state, err
		}
	}
	if err := e.transition(ctx, id, state, models.LifecycleCommitted, failures.StepCommit); err != nil {
		return state, err
	}
	if err := e.reporter.Committed(ctx); err != nil {
		logger.Warnw("statistics update failed", "error", err)
	}
	return models.LifecycleCommitted, nil
}
