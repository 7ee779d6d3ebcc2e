package models

import "time"

// Report is the audit record written when an asset reaches relinked.
type Report struct {
	AssetID      AssetID            `json:"asset_id"`
	Timestamp    time.Time          `json:"timestamp"`
	TargetFormat string             `json:"target_format"`
	MapSize      int                `json:"map_size"`
	DocsUpdated  int                `json:"docs_updated"`
	MetaUpdated  int                `json:"meta_updated"`
	OptsUpdated  int                `json:"options_updated"`
	Documents    []int64            `json:"documents,omitempty"`
	MetaKeys     map[int64][]string `json:"meta_keys,omitempty"`
	Options      []string           `json:"options,omitempty"`
	BytesBefore  int64              `json:"bytes_before"`
	BytesAfter   int64              `json:"bytes_after"`
	Validation   bool               `json:"validation"`
	Retries      int                `json:"retries,omitempty"`
	Residual     bool               `json:"residual,omitempty"`
}

// Statistics are the aggregate counters maintained by the reporter.
type Statistics struct {
	Converted  int64            `json:"converted"`
	Committed  int64            `json:"committed"`
	RolledBack int64            `json:"rolled_back"`
	Failed     int64            `json:"failed"`
	Skipped    int64            `json:"skipped"`
	BytesSaved int64            `json:"bytes_saved"`
	FailedBy   map[string]int64 `json:"failed_by,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// DimensionIssue is one filename/actual dimension mismatch.
type DimensionIssue struct {
	AssetID        AssetID   `json:"asset_id"`
	File           string    `json:"file"`
	DeclaredWidth  int       `json:"declared_width"`
	DeclaredHeight int       `json:"declared_height"`
	ActualWidth    int       `json:"actual_width"`
	ActualHeight   int       `json:"actual_height"`
	Timestamp      time.Time `json:"timestamp"`
}
