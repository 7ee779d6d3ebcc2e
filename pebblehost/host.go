// Package pebblehost is a self-contained CMS host on Pebble. It stores
// assets, documents, key/value metadata and options the way a PHP CMS
// does (nested values as serialize() blobs) and implements cms.Host.
package pebblehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"safemigrator/cms"
	"safemigrator/encoder"
	"safemigrator/layout"
	"safemigrator/models"
)

const (
	prefixAsset   = "asset/"
	prefixAttMeta = "attmeta/"
	prefixLife    = "life/"
	prefixErr     = "err/"
	prefixDoc     = "doc/"
	prefixMeta    = "meta/"
	prefixOpt     = "opt/"
	prefixBackup  = "backup/"
	prefixReport  = "report/"
	prefixDimLog  = "dimlog/"
	keyStats      = "stats"
	keySettings   = "settings"

	idWidth = 20
)

// SizeRenderer renders one derived size of an image.
type SizeRenderer interface {
	Render(ctx context.Context, src, dst, format string, w, h int, crop bool, opts encoder.EncodeOptions) (int, int, error)
	Dimensions(ctx context.Context, path, format string) (int, int, error)
}

// SizeSpec is a named size the host knows how to produce.
type SizeSpec struct {
	Name   string
	Width  int
	Height int
	Crop   bool
}

// DefaultSizes mirrors the stock sizes of a typical CMS install.
var DefaultSizes = []SizeSpec{
	{Name: "thumbnail", Width: 150, Height: 150, Crop: true},
	{Name: "medium", Width: 300, Height: 300},
	{Name: "medium_large", Width: 768},
	{Name: "large", Width: 1024, Height: 1024},
}

// Host is the Pebble-backed reference host.
type Host struct {
	db       *pebble.DB
	layout   *layout.Layout
	renderer SizeRenderer
	sizes    []SizeSpec

	// SizeQuality is the encoder quality used for regenerated sizes.
	SizeQuality int
}

var _ cms.Host = (*Host)(nil)

// Open opens (or creates) the host database at dbPath.
func Open(dbPath string, l *layout.Layout, renderer SizeRenderer) (*Host, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open host store: %w", err)
	}
	return &Host{db: db, layout: l, renderer: renderer, sizes: DefaultSizes, SizeQuality: 82}, nil
}

// SetSizes replaces the known size specs.
func (h *Host) SetSizes(specs []SizeSpec) { h.sizes = specs }

func (h *Host) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

func idKey(prefix string, id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, id))
}

// get copies the value out of Pebble. Missing keys return cms.ErrNotFound.
func (h *Host) get(key []byte) ([]byte, error) {
	data, closer, err := h.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, cms.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(data), nil
}

func (h *Host) set(key, val []byte) error {
	return h.db.Set(key, val, pebble.Sync)
}

func (h *Host) del(key []byte) error {
	return h.db.Delete(key, pebble.Sync)
}

func (h *Host) getJSON(key []byte, v interface{}) (bool, error) {
	data, err := h.get(key)
	if errors.Is(err, cms.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (h *Host) setJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return h.set(key, data)
}

type kv struct {
	key []byte
	val []byte
}

// scan returns every pair under prefix in key order. Pairs are copied so
// callers may write to the store while consuming them.
func (h *Host) scan(ctx context.Context, prefix string) ([]kv, error) {
	lower := []byte(prefix)
	upper := append([]byte(prefix[:len(prefix)-1]), prefix[len(prefix)-1]+1)
	iter, err := h.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var out []kv
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, kv{key: bytes.Clone(iter.Key()), val: bytes.Clone(iter.Value())})
	}
	return out, iter.Error()
}

// parseID reads the zero-padded id following prefix.
func parseID(key []byte, prefix string) (int64, error) {
	rest := key[len(prefix):]
	if len(rest) < idWidth {
		return 0, fmt.Errorf("short key %q", key)
	}
	return strconv.ParseInt(string(rest[:idWidth]), 10, 64)
}

// GetLifecycle returns LifecycleUnset for assets never touched.
func (h *Host) GetLifecycle(ctx context.Context, id models.AssetID) (models.Lifecycle, error) {
	data, err := h.get(idKey(prefixLife, int64(id)))
	if errors.Is(err, cms.ErrNotFound) {
		return models.LifecycleUnset, nil
	}
	if err != nil {
		return "", err
	}
	return models.Lifecycle(data), nil
}

func (h *Host) SetLifecycle(ctx context.Context, id models.AssetID, state models.Lifecycle) error {
	if state == models.LifecycleUnset {
		return h.del(idKey(prefixLife, int64(id)))
	}
	return h.set(idKey(prefixLife, int64(id)), []byte(state))
}
