// Package cms defines what the migration engine needs from the host CMS.
// The host owns every data store; the engine only goes through these
// interfaces.
package cms

import (
	"context"
	"errors"

	"safemigrator/failures"
	"safemigrator/models"
	"safemigrator/settings"
	"safemigrator/value"
)

// ErrNotFound is returned by getters when the record does not exist.
var ErrNotFound = errors.New("not found")

// AssetFilter selects assets by media type and lifecycle state. Empty
// slices match everything; LifecycleUnset in Statuses matches assets that
// were never touched.
type AssetFilter struct {
	MimeTypes []string
	Statuses  []models.Lifecycle
}

// Match reports whether an asset with the given media type and state
// passes the filter.
func (f AssetFilter) Match(mime string, state models.Lifecycle) bool {
	if len(f.MimeTypes) > 0 && !contains(f.MimeTypes, mime) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, state) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Assets is the host's media store.
type Assets interface {
	// ListAssets calls fn for each matching asset in ascending id order.
	// Returning an error from fn stops the iteration and is returned.
	ListAssets(ctx context.Context, f AssetFilter, fn func(models.AssetID) error) error
	GetAsset(ctx context.Context, id models.AssetID) (*models.Asset, error)
	SetAssetMetadata(ctx context.Context, id models.AssetID, meta models.Metadata, mimeType, url string) error
	// RegenerateSizes renders every derived size from newSource (an
	// absolute path) and returns the metadata describing them. It does not
	// persist anything.
	RegenerateSizes(ctx context.Context, id models.AssetID, newSource string) (models.Metadata, error)
}

// Lifecycles persists the per-asset state and error record.
type Lifecycles interface {
	GetLifecycle(ctx context.Context, id models.AssetID) (models.Lifecycle, error)
	SetLifecycle(ctx context.Context, id models.AssetID, state models.Lifecycle) error
	// GetError returns nil, nil when no record exists.
	GetError(ctx context.Context, id models.AssetID) (*failures.Record, error)
	SetError(ctx context.Context, id models.AssetID, rec failures.Record) error
	ClearError(ctx context.Context, id models.AssetID) error
}

// Content is the three stores URLs are rewritten in, plus the host's
// nested blob codec.
type Content interface {
	// IterateDocumentsWith streams documents whose body contains substr.
	IterateDocumentsWith(ctx context.Context, substr string, fn func(id int64, body string) error) error
	UpdateDocument(ctx context.Context, id int64, body string) error
	IterateMetadataRows(ctx context.Context, fn func(owner int64, key string, raw []byte) error) error
	UpdateMetadata(ctx context.Context, owner int64, key string, raw []byte) error
	IterateOptions(ctx context.Context, fn func(name string, raw []byte) error) error
	UpdateOption(ctx context.Context, name string, raw []byte) error

	DecodeValue(raw []byte) (value.Value, bool)
	EncodeValue(v value.Value) ([]byte, error)
}

// Records keeps the engine's own bookkeeping in the host.
type Records interface {
	// GetBackup returns nil, nil when the asset has no backup.
	GetBackup(ctx context.Context, id models.AssetID) (*models.BackupEntry, error)
	SetBackup(ctx context.Context, e models.BackupEntry) error
	ClearBackup(ctx context.Context, id models.AssetID) error
	// ListBackups calls fn for each asset that still has a backup, in
	// ascending id order.
	ListBackups(ctx context.Context, fn func(models.BackupEntry) error) error

	// GetReport returns nil, nil when no report exists.
	GetReport(ctx context.Context, id models.AssetID) (*models.Report, error)
	SetReport(ctx context.Context, r models.Report) error
	DeleteReport(ctx context.Context, id models.AssetID) error

	GetStatistics(ctx context.Context) (models.Statistics, error)
	SetStatistics(ctx context.Context, s models.Statistics) error

	AppendDimensionIssue(ctx context.Context, issue models.DimensionIssue) error
	ListDimensionIssues(ctx context.Context) ([]models.DimensionIssue, error)

	// LoadSettings reports false when no settings were saved yet.
	LoadSettings(ctx context.Context) (settings.Settings, bool, error)
	SaveSettings(ctx context.Context, s settings.Settings) error
}

// Host is the complete adapter.
type Host interface {
	Assets
	Lifecycles
	Content
	Records
}

// Codec adapts a Content's blob codec to value.Codec.
type Codec struct{ C Content }

func (c Codec) Decode(raw []byte) (value.Value, bool) { return c.C.DecodeValue(raw) }

func (c Codec) Encode(v value.Value) ([]byte, error) { return c.C.EncodeValue(v) }
