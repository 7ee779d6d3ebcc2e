package job

import (
	"context"
	"fmt"

	"safemigrator/encoder"
	"safemigrator/failures"
	"safemigrator/layout"
	"safemigrator/logger"
	"safemigrator/models"
	"safemigrator/settings"
	"safemigrator/urlmap"
)

// drive takes one asset from wherever it is to a stopping state. The
// returned error is the asset-level failure, if any; the returned state is
// always what is persisted.
func (e *Engine) drive(ctx context.Context, id models.AssetID, s settings.Settings) (models.Lifecycle, error) {
	state, err := e.host.GetLifecycle(ctx, id)
	if err != nil {
		return state, fmt.Errorf("read lifecycle of %d: %w", id, err)
	}
	switch {
	case state == models.LifecycleUnset:
		if err := e.transition(ctx, id, state, models.LifecycleSelected, failures.StepEncode); err != nil {
			return state, err
		}
		state = models.LifecycleSelected
	case state.IsFailure():
		if err := e.retry(ctx, id, state); err != nil {
			return state, err
		}
		state = models.LifecycleSelected
	case state == models.LifecycleSelected, state == models.LifecycleConverted:
		logger.Infow("resuming asset", "asset", id, "state", state)
	default:
		return state, failures.New(failures.KindInvalidState, failures.StepEncode,
			fmt.Sprintf("asset %d is %s", id, state))
	}
	return e.convert(ctx, id, state, s)
}

// retry moves a failure-sink asset back to selected, bumping its retry
// counter and keeping the previous error in the history.
func (e *Engine) retry(ctx context.Context, id models.AssetID, state models.Lifecycle) error {
	prev, err := e.host.GetError(ctx, id)
	if err != nil {
		return fmt.Errorf("read error record of %d: %w", id, err)
	}
	if err := e.host.SetError(ctx, id, failures.ForRetry(prev, e.now())); err != nil {
		return fmt.Errorf("persist error record of %d: %w", id, err)
	}
	return e.transition(ctx, id, state, models.LifecycleSelected, failures.StepEncode)
}

func encodeOptions(s settings.Settings) encoder.EncodeOptions {
	return encoder.EncodeOptions{
		Quality: s.QualityFor(s.TargetFormat),
		Method:  s.WebPMethod,
		Speed:   s.AVIFSpeed,
		Effort:  s.JXLEffort,
		Box: encoder.BoundingBox{
			Enabled: s.BoundingBoxEnable,
			Mode:    s.BoundingBoxMode,
			Width:   s.BoundingBoxWidth,
			Height:  s.BoundingBoxHeight,
		},
	}
}

func (e *Engine) totalSize(files []string) int64 {
	var n int64
	for _, rel := range files {
		n += layout.FileSize(e.layout.Abs(rel))
	}
	return n
}

// convert runs encode, size regeneration, URL map, rewrite, backup and
// report for an asset in selected (or a resumed converted).
func (e *Engine) convert(ctx context.Context, id models.AssetID, state models.Lifecycle, s settings.Settings) (models.Lifecycle, error) {
	a, err := e.host.GetAsset(ctx, id)
	if err != nil {
		return e.fail(ctx, id, state, models.LifecycleConvertFailed,
			failures.Wrap(failures.KindInvalidSource, failures.StepEncode, "load asset", err))
	}
	src := e.layout.OriginalOf(a)

	info, err := e.probe(src)
	if err != nil {
		return e.fail(ctx, id, state, models.LifecycleConvertFailed, err)
	}
	if info.MultiFrame {
		if err := e.transition(ctx, id, state, models.LifecycleSkippedAnimated, failures.StepEncode); err != nil {
			return state, err
		}
		if err := e.reporter.Skipped(ctx, 1); err != nil {
			logger.Warnw("statistics update failed", "error", err)
		}
		return models.LifecycleSkippedAnimated, nil
	}
	if s.CheckFilenameDimensions {
		e.dims.Check(ctx, id, a.Meta.File, info.Width, info.Height)
		for _, size := range a.Meta.Sizes {
			rel := a.Meta.SizeRel(size)
			si, err := e.probe(e.layout.Abs(rel))
			if err != nil {
				logger.Debugw("size not decodable, dimension check skipped", "asset", id, "file", rel, "error", err)
				continue
			}
			e.dims.Check(ctx, id, rel, si.Width, si.Height)
		}
	}

	convertedRel := layout.ConvertedPath(a.Meta.File, s.Extension())
	if err := e.codec.Encode(ctx, src, e.layout.Abs(convertedRel), s.TargetFormat, encodeOptions(s)); err != nil {
		return e.fail(ctx, id, state, models.LifecycleConvertFailed, err)
	}
	if err := e.transition(ctx, id, state, models.LifecycleConverted, failures.StepEncode); err != nil {
		return state, err
	}
	state = models.LifecycleConverted

	newMeta, err := e.host.RegenerateSizes(ctx, id, e.layout.Abs(convertedRel))
	if err != nil {
		return e.fail(ctx, id, state, models.LifecycleMetadataFailed,
			failures.Wrap(failures.KindMetadataRegenerateFailed, failures.StepMetadata, "regenerate sizes", err))
	}
	newURL := e.layout.URL(newMeta.File)
	m, err := urlmap.Build(e.layout, a.Snapshot(), newMeta, newURL)
	if err != nil {
		return e.fail(ctx, id, state, models.LifecycleMetadataFailed, err)
	}

	r := m.Replacer()
	counts, err := e.rewriter.Apply(ctx, r)
	if err != nil {
		return e.fail(ctx, id, state, models.LifecycleMetadataFailed, err)
	}
	residual, err := e.rewriter.HasAny(ctx, r)
	if err != nil {
		logger.Warnw("could not check for remaining references", "asset", id, "error", err)
	} else if residual {
		logger.Warnw("old references remain after rewrite", "asset", id)
	}

	originals := a.Meta.Files()
	bytesBefore := e.totalSize(originals)
	var stashed *models.BackupEntry
	if s.Validation {
		entry := models.BackupEntry{Previous: a.Snapshot(), Converted: newMeta.Files(), Pairs: m.Export()}
		b, err := e.backups.Stash(ctx, id, originals, entry)
		if err != nil {
			return e.fail(ctx, id, state, models.LifecycleMetadataFailed, err)
		}
		stashed = &b
	}
	if err := e.host.SetAssetMetadata(ctx, id, newMeta, s.MimeType(), newURL); err != nil {
		e.unstash(ctx, id, stashed)
		return e.fail(ctx, id, state, models.LifecycleMetadataFailed,
			failures.Wrap(failures.KindRewriteFailed, failures.StepMetadata, "store asset metadata", err))
	}
	if err := e.transition(ctx, id, state, models.LifecycleRelinked, failures.StepCommit); err != nil {
		// Source metadata back, so the coordinator lists the asset again.
		prev := a.Snapshot()
		if merr := e.host.SetAssetMetadata(ctx, id, prev.Meta, prev.MimeType, prev.URL); merr != nil {
			logger.Errorw("could not restore asset metadata", "asset", id, "error", merr)
		}
		e.unstash(ctx, id, stashed)
		return e.fail(ctx, id, state, models.LifecycleMetadataFailed,
			failures.Wrap(failures.KindRewriteFailed, failures.StepCommit, "persist relinked state", err))
	}
	state = models.LifecycleRelinked
	if !s.Validation {
		if err := e.backups.Discard(originals); err != nil {
			logger.Warnw("originals not fully deleted", "asset", id, "error", err)
		}
	}

	rep := models.Report{
		AssetID:      id,
		Timestamp:    e.now(),
		TargetFormat: s.TargetFormat,
		MapSize:      m.Len(),
		DocsUpdated:  counts.DocsUpdated(),
		MetaUpdated:  counts.MetaUpdated,
		OptsUpdated:  counts.OptionsUpdated(),
		Documents:    counts.Documents,
		MetaKeys:     counts.MetaKeys,
		Options:      counts.Options,
		BytesBefore:  bytesBefore,
		BytesAfter:   e.totalSize(newMeta.Files()),
		Validation:   s.Validation,
		Residual:     residual,
	}
	if rec, err := e.host.GetError(ctx, id); err == nil && rec != nil {
		rep.Retries = rec.Retries
	}
	if err := e.reporter.Write(ctx, rep); err != nil {
		logger.Errorw("report not written", "asset", id, "error", err)
	}

	if !s.Validation {
		// A failed commit leaves the asset relinked with no backup. Commit
		// finishes it.
		if err := e.transition(ctx, id, state, models.LifecycleCommitted, failures.StepCommit); err != nil {
			logger.Errorw("asset relinked but not committed", "asset", id, "error", err)
			return state, err
		}
		state = models.LifecycleCommitted
		if err := e.reporter.Committed(ctx); err != nil {
			logger.Warnw("statistics update failed", "error", err)
		}
	}
	if err := e.host.ClearError(ctx, id); err != nil {
		logger.Warnw("could not clear error record", "asset", id, "error", err)
	}
	logger.Infow("asset migrated", "asset", id, "state", state, "format", s.TargetFormat,
		"map", m.Len(), "updates", counts.Total())
	return state, nil
}

// unstash moves stashed originals back and forgets the backup entry. A nil
// entry means nothing was stashed.
func (e *Engine) unstash(ctx context.Context, id models.AssetID, stashed *models.BackupEntry) {
	if stashed == nil {
		return
	}
	if err := e.backups.Restore(ctx, stashed); err != nil {
		logger.Errorw("could not restore originals", "asset", id, "error", err)
		return
	}
	if err := e.backups.Clear(ctx, id); err != nil {
		logger.Warnw("could not clear backup entry", "asset", id, "error", err)
	}
}
