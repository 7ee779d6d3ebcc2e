package models

import "time"

// Outcome is the result of driving one asset (or one operation on it).
type Outcome struct {
	AssetID AssetID   `json:"asset_id"`
	State   Lifecycle `json:"state"`
	Success bool      `json:"success"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// BatchReport summarises one coordinator run.
type BatchReport struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	TargetFormat string    `json:"target_format"`
	Eligible     int       `json:"eligible"`
	Skipped      []AssetID `json:"skipped,omitempty"`
	Outcomes     []Outcome `json:"outcomes"`
	Stopped      string    `json:"stopped,omitempty"`
}

// Succeeded counts outcomes that reached relinked or committed.
func (b *BatchReport) Succeeded() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Result is the envelope every exposed operation returns.
type Result struct {
	Success bool      `json:"success"`
	Summary string    `json:"summary"`
	Items   []Outcome `json:"items,omitempty"`
}
