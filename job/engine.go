// Package job drives assets through the migration lifecycle: the per-asset
// state machine, the batch coordinator, and the reprocess, rollback and
// commit operations.
package job

import (
	"context"
	"fmt"
	"time"

	"safemigrator/backup"
	"safemigrator/cms"
	"safemigrator/dimensions"
	"safemigrator/encoder"
	"safemigrator/failures"
	"safemigrator/layout"
	"safemigrator/lock"
	"safemigrator/logger"
	"safemigrator/models"
	"safemigrator/rewrite"
	"safemigrator/settings"
	"safemigrator/success"
)

// Codec is the part of the encoder registry the engine needs.
type Codec interface {
	Supports(format string) bool
	Encode(ctx context.Context, src, dst, format string, opts encoder.EncodeOptions) error
}

// Options wires an Engine. Host, Layout and Codec are required.
type Options struct {
	Host     cms.Host
	Layout   *layout.Layout
	Codec    Codec
	Locker   lock.Locker
	Archiver backup.Archiver
}

type Engine struct {
	host     cms.Host
	layout   *layout.Layout
	codec    Codec
	locker   lock.Locker
	backups  *backup.Manager
	reporter *success.Reporter
	dims     *dimensions.Validator
	rewriter *rewrite.Rewriter

	probe func(path string) (encoder.ProbeInfo, error)
	now   func() time.Time
}

func New(o Options) *Engine {
	locker := o.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	e := &Engine{
		host:     o.Host,
		layout:   o.Layout,
		codec:    o.Codec,
		locker:   locker,
		backups:  backup.NewManager(o.Layout, o.Host),
		reporter: success.New(o.Host),
		dims:     dimensions.New(o.Host),
		rewriter: rewrite.New(o.Host),
		probe:    encoder.Probe,
		now:      time.Now,
	}
	if o.Archiver != nil {
		e.backups.SetArchiver(o.Archiver)
	}
	return e
}

func (e *Engine) Reporter() *success.Reporter { return e.reporter }

func (e *Engine) Dimensions() *dimensions.Validator { return e.dims }

// Settings returns the saved settings, or the defaults.
func (e *Engine) Settings(ctx context.Context) (settings.Settings, error) {
	s, _, err := e.host.LoadSettings(ctx)
	if err != nil {
		return s, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// SaveSettings validates and persists s.
func (e *Engine) SaveSettings(ctx context.Context, s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return e.host.SaveSettings(ctx, s)
}

// Error returns the asset's persisted error record, or nil.
func (e *Engine) Error(ctx context.Context, id models.AssetID) (*failures.Record, error) {
	return e.host.GetError(ctx, id)
}

// Report returns the asset's conversion report, or nil.
func (e *Engine) Report(ctx context.Context, id models.AssetID) (*models.Report, error) {
	return e.reporter.Get(ctx, id)
}

func (e *Engine) Statistics(ctx context.Context) (models.Statistics, error) {
	return e.reporter.Statistics(ctx)
}

// DimensionIssues lists the recorded filename dimension mismatches.
func (e *Engine) DimensionIssues(ctx context.Context) ([]models.DimensionIssue, error) {
	return e.dims.List(ctx)
}

func (e *Engine) Lifecycle(ctx context.Context, id models.AssetID) (models.Lifecycle, error) {
	return e.host.GetLifecycle(ctx, id)
}

// transition persists from -> to, refusing edges the lifecycle does not
// allow.
func (e *Engine) transition(ctx context.Context, id models.AssetID, from, to models.Lifecycle, step failures.Step) error {
	if !models.CanTransition(from, to) {
		return failures.New(failures.KindInvalidState, step,
			fmt.Sprintf("asset %d cannot go from %s to %s", id, from, to))
	}
	if err := e.host.SetLifecycle(ctx, id, to); err != nil {
		return fmt.Errorf("persist lifecycle of %d: %w", id, err)
	}
	logger.Infow("asset transition", "asset", id, "from", from, "to", to)
	return nil
}

// fail records err and moves the asset into sink.
func (e *Engine) fail(ctx context.Context, id models.AssetID, from, sink models.Lifecycle, err error) (models.Lifecycle, error) {
	prev, gerr := e.host.GetError(ctx, id)
	if gerr != nil {
		logger.Warnw("could not read error record", "asset", id, "error", gerr)
	}
	rec := failures.NewRecord(prev, err, e.now())
	if serr := e.host.SetError(ctx, id, rec); serr != nil {
		logger.Errorw("could not persist error record", "asset", id, "error", serr)
	}
	if terr := e.transition(ctx, id, from, sink, rec.Step); terr != nil {
		logger.Errorw("could not move asset to failure state", "asset", id, "state", sink, "error", terr)
		return from, err
	}
	if rerr := e.reporter.Failed(ctx, rec.Kind); rerr != nil {
		logger.Warnw("statistics update failed", "error", rerr)
	}
	logger.Warnw("asset failed", "asset", id, "state", sink, "kind", rec.Kind, "step", rec.Step, "message", rec.Message)
	return sink, err
}

func outcome(id models.AssetID, state models.Lifecycle, err error) models.Outcome {
	o := models.Outcome{AssetID: id, State: state}
	if err != nil {
		o.Kind = string(failures.KindOf(err))
		o.Message = err.Error()
		return o
	}
	o.Success = state == models.LifecycleRelinked || state == models.LifecycleCommitted
	return o
}
