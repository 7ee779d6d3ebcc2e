package pebblehost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"safemigrator/failures"
	"safemigrator/models"
	"safemigrator/settings"
)

func (h *Host) GetError(ctx context.Context, id models.AssetID) (*failures.Record, error) {
	var rec failures.Record
	ok, err := h.getJSON(idKey(prefixErr, int64(id)), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (h *Host) SetError(ctx context.Context, id models.AssetID, rec failures.Record) error {
	return h.setJSON(idKey(prefixErr, int64(id)), rec)
}

func (h *Host) ClearError(ctx context.Context, id models.AssetID) error {
	return h.del(idKey(prefixErr, int64(id)))
}

func (h *Host) GetBackup(ctx context.Context, id models.AssetID) (*models.BackupEntry, error) {
	var e models.BackupEntry
	ok, err := h.getJSON(idKey(prefixBackup, int64(id)), &e)
	if err != nil || !ok {
		return nil, err
	}
	return &e, nil
}

func (h *Host) SetBackup(ctx context.Context, e models.BackupEntry) error {
	return h.setJSON(idKey(prefixBackup, int64(e.AssetID)), e)
}

func (h *Host) ClearBackup(ctx context.Context, id models.AssetID) error {
	return h.del(idKey(prefixBackup, int64(id)))
}

func (h *Host) ListBackups(ctx context.Context, fn func(models.BackupEntry) error) error {
	rows, err := h.scan(ctx, prefixBackup)
	if err != nil {
		return err
	}
	for _, row := range rows {
		var e models.BackupEntry
		if err := json.Unmarshal(row.val, &e); err != nil {
			continue // Skip invalid records
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) GetReport(ctx context.Context, id models.AssetID) (*models.Report, error) {
	var r models.Report
	ok, err := h.getJSON(idKey(prefixReport, int64(id)), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func (h *Host) SetReport(ctx context.Context, r models.Report) error {
	return h.setJSON(idKey(prefixReport, int64(r.AssetID)), r)
}

func (h *Host) DeleteReport(ctx context.Context, id models.AssetID) error {
	return h.del(idKey(prefixReport, int64(id)))
}

func (h *Host) GetStatistics(ctx context.Context) (models.Statistics, error) {
	var s models.Statistics
	_, err := h.getJSON([]byte(keyStats), &s)
	return s, err
}

func (h *Host) SetStatistics(ctx context.Context, s models.Statistics) error {
	return h.setJSON([]byte(keyStats), s)
}

func (h *Host) AppendDimensionIssue(ctx context.Context, issue models.DimensionIssue) error {
	if issue.Timestamp.IsZero() {
		issue.Timestamp = time.Now()
	}
	key := fmt.Sprintf("%s%020d/%020d", prefixDimLog, issue.Timestamp.UnixNano(), issue.AssetID)
	return h.setJSON([]byte(key), issue)
}

func (h *Host) ListDimensionIssues(ctx context.Context) ([]models.DimensionIssue, error) {
	rows, err := h.scan(ctx, prefixDimLog)
	if err != nil {
		return nil, err
	}
	var out []models.DimensionIssue
	for _, row := range rows {
		var issue models.DimensionIssue
		if err := json.Unmarshal(row.val, &issue); err != nil {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

func (h *Host) LoadSettings(ctx context.Context) (settings.Settings, bool, error) {
	s := settings.Default()
	ok, err := h.getJSON([]byte(keySettings), &s)
	return s, ok, err
}

func (h *Host) SaveSettings(ctx context.Context, s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return h.setJSON([]byte(keySettings), s)
}
