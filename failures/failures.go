package failures

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	KindUnsupportedFormat        Kind = "unsupported_format"
	KindInvalidSource            Kind = "invalid_source"
	KindEncodeFailed             Kind = "encode_failed"
	KindMetadataRegenerateFailed Kind = "metadata_regenerate_failed"
	KindMapAmbiguous             Kind = "map_ambiguous"
	KindRewriteFailed            Kind = "rewrite_failed"
	KindBackupMoveFailed         Kind = "backup_move_failed"
	KindRollbackConflict         Kind = "rollback_conflict"
	KindRollbackUnavailable      Kind = "rollback_unavailable"
	KindCodecCapabilityMissing   Kind = "codec_capability_missing"
	KindResizeFailed             Kind = "resize_failed"
	KindInvalidState             Kind = "invalid_state"
)

// Step names the phase of the per-asset pipeline where a failure happened.
type Step string

const (
	StepEncode   Step = "encode"
	StepMetadata Step = "metadata"
	StepRewrite  Step = "rewrite"
	StepBackup   Step = "backup"
	StepRollback Step = "rollback"
	StepCommit   Step = "commit"
)

// Error is the error type every asset-level failure is reported with.
type Error struct {
	Kind    Kind
	Step    Step
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error.
func New(kind Kind, step Step, msg string) *Error {
	return &Error{Kind: kind, Step: step, Message: msg}
}

// Wrap builds an *Error around cause. A nil cause returns nil.
func Wrap(kind Kind, step Step, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Step: step, Message: msg, Cause: cause}
}

// As extracts the *Error from err's chain, or nil.
func As(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

// KindOf returns the failure kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	if fe := As(err); fe != nil {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Record is the persisted error record of one asset.
type Record struct {
	Step      Step      `json:"step"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Retries   int       `json:"retries"`
	Timestamp time.Time `json:"timestamp"`
	History   []Record  `json:"history,omitempty"`
}

// Pending reports whether the record only carries retry bookkeeping and no
// failure yet.
func (r *Record) Pending() bool {
	return r != nil && r.Kind == ""
}

// NewRecord builds the record for err on top of the previous record (which
// may be nil). Retry count and history are carried over.
func NewRecord(prev *Record, err error, now time.Time) Record {
	rec := Record{Timestamp: now, Message: err.Error()}
	if fe := As(err); fe != nil {
		rec.Kind = fe.Kind
		rec.Step = fe.Step
		rec.Message = fe.Message
		if fe.Cause != nil {
			rec.Message = fmt.Sprintf("%s: %v", fe.Message, fe.Cause)
		}
	} else {
		rec.Kind = KindEncodeFailed
		rec.Step = StepEncode
	}
	if prev != nil {
		rec.Retries = prev.Retries
		rec.History = prev.History
	}
	return rec
}

// ForRetry returns the record to persist when prev is being retried: the
// counter goes up and prev itself moves into the history.
func ForRetry(prev *Record, now time.Time) Record {
	if prev == nil {
		return Record{Retries: 1, Timestamp: now}
	}
	past := *prev
	past.History = nil
	history := make([]Record, 0, len(prev.History)+1)
	history = append(history, prev.History...)
	if !prev.Pending() {
		history = append(history, past)
	}
	return Record{Retries: prev.Retries + 1, Timestamp: now, History: history}
}
