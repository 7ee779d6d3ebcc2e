package models

import "time"

// BackupFile pairs an uploads-relative original location with the absolute
// path the file was moved to.
type BackupFile struct {
	Original string `json:"original"`
	Stored   string `json:"stored"`
}

// BackupEntry tracks a relinked asset whose originals are still kept.
// Previous, Converted and Pairs carry what rollback needs to undo the
// migration.
type BackupEntry struct {
	AssetID   AssetID      `json:"asset_id"`
	Timestamp time.Time    `json:"timestamp"`
	Dir       string       `json:"dir"`
	Files     []BackupFile `json:"files"`
	Previous  Snapshot     `json:"previous"`
	Converted []string     `json:"converted"`
	Pairs     [][2]string  `json:"pairs"`
}
