// Package taskqueue runs the migration in the background: a persistent
// queue of operator requests and a cooperative driver that works through
// it and then through the next batch on every tick.
package taskqueue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"safemigrator/models"
	"safemigrator/settings"
)

// Request operations.
const (
	OpBatch     = "batch"
	OpReprocess = "reprocess"
	OpRollback  = "rollback"
	OpCommit    = "commit"
	OpCommitAll = "commit_all"
)

var ErrBadRequest = errors.New("invalid request")

// Request is one queued operation.
type Request struct {
	ID         string              `json:"id"`
	Op         string              `json:"op"`
	AssetIDs   []models.AssetID    `json:"asset_ids,omitempty"`
	Overrides  *settings.Overrides `json:"overrides,omitempty"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// Validate checks that the operation is known and has the ids it needs.
func (r Request) Validate() error {
	switch r.Op {
	case OpBatch, OpCommitAll:
		return nil
	case OpReprocess:
		if len(r.AssetIDs) == 0 {
			return fmt.Errorf("%w: reprocess needs asset_ids", ErrBadRequest)
		}
		return nil
	case OpRollback, OpCommit:
		if len(r.AssetIDs) != 1 {
			return fmt.Errorf("%w: %s needs exactly one asset id", ErrBadRequest, r.Op)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown op %q", ErrBadRequest, r.Op)
}

const reqPrefix = "req/"

// DBQueue is a small wrapper around a Pebble DB instance holding queued
// requests in enqueue order.
type DBQueue struct {
	DB       *pebble.DB
	DataFile string
}

// OpenQueue opens (or creates) a pebble DB at the given dataFile path and
// returns a DBQueue wrapper.
func OpenQueue(dataFile string) (*DBQueue, error) {
	db, err := pebble.Open(dataFile, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}
	return &DBQueue{DB: db, DataFile: dataFile}, nil
}

func key(r Request) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", reqPrefix, r.EnqueuedAt.UnixNano(), r.ID))
}

// Enqueue validates and stores r, assigning its id and timestamp.
func (q *DBQueue) Enqueue(r Request) (Request, error) {
	if err := r.Validate(); err != nil {
		return r, err
	}
	r.ID = uuid.NewString()
	r.EnqueuedAt = time.Now()
	data, err := json.Marshal(r)
	if err != nil {
		return r, fmt.Errorf("failed to marshal request: %w", err)
	}
	return r, q.DB.Set(key(r), data, pebble.Sync)
}

// Pending returns the queued requests, oldest first.
func (q *DBQueue) Pending() ([]Request, error) {
	iter, err := q.DB.NewIter(&pebble.IterOptions{
		LowerBound: []byte(reqPrefix),
		UpperBound: []byte("req0"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Request
	for iter.First(); iter.Valid(); iter.Next() {
		var r Request
		if err := json.Unmarshal(bytes.Clone(iter.Value()), &r); err != nil {
			continue // Skip invalid records
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// Delete removes a request once it has been handled.
func (q *DBQueue) Delete(r Request) error {
	return q.DB.Delete(key(r), pebble.Sync)
}

// Close closes the underlying DB.
func (q *DBQueue) Close() error {
	return q.DB.Close()
}

// Cancel removes the pending request with the given id. It reports false
// when no such request is queued.
func (q *DBQueue) Cancel(id string) (bool, error) {
	reqs, err := q.Pending()
	if err != nil {
		return false, err
	}
	for _, r := range reqs {
		if r.ID == id {
			return true, q.Delete(r)
		}
	}
	return false, nil
}
