package pebblehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"safemigrator/cms"
	"safemigrator/encoder"
	"safemigrator/layout"
	"safemigrator/models"
	"safemigrator/phpserialize"
	"safemigrator/settings"
	"safemigrator/value"
)

// assetRecord is the asset row without its metadata blob.
type assetRecord struct {
	ID       models.AssetID `json:"id"`
	MimeType string         `json:"mime_type"`
	URL      string         `json:"url"`
	Parent   int64          `json:"parent,omitempty"`
	Title    string         `json:"title,omitempty"`
}

// MetadataValue renders metadata as the host's nested blob.
func MetadataValue(m models.Metadata) value.Value {
	sizes := make([]value.Entry, 0, len(m.Sizes))
	for _, s := range m.Sizes {
		entries := []value.Entry{
			value.KV("file", value.NewString(s.File)),
			value.KV("width", value.NewInt(int64(s.Width))),
			value.KV("height", value.NewInt(int64(s.Height))),
		}
		if s.MimeType != "" {
			entries = append(entries, value.KV("mime-type", value.NewString(s.MimeType)))
		}
		sizes = append(sizes, value.KV(s.Name, value.NewMap(entries...)))
	}
	entries := []value.Entry{
		value.KV("width", value.NewInt(int64(m.Width))),
		value.KV("height", value.NewInt(int64(m.Height))),
		value.KV("file", value.NewString(m.File)),
	}
	if m.FileSize > 0 {
		entries = append(entries, value.KV("filesize", value.NewInt(m.FileSize)))
	}
	entries = append(entries, value.KV("sizes", value.NewMap(sizes...)))
	return value.NewMap(entries...)
}

// MetadataFromValue is the inverse of MetadataValue. Unknown keys are
// ignored.
func MetadataFromValue(v value.Value) (models.Metadata, error) {
	if v.Kind() != value.Map {
		return models.Metadata{}, fmt.Errorf("metadata is %s, not a map", v.Kind())
	}
	var m models.Metadata
	if f, ok := v.Get("file"); ok {
		m.File = f.Str()
	}
	m.Width = int(intOf(v, "width"))
	m.Height = int(intOf(v, "height"))
	m.FileSize = intOf(v, "filesize")
	if sizes, ok := v.Get("sizes"); ok {
		for _, e := range sizes.Entries() {
			s := models.Size{Name: e.Key, Width: int(intOf(e.Value, "width")), Height: int(intOf(e.Value, "height"))}
			if f, ok := e.Value.Get("file"); ok {
				s.File = f.Str()
			}
			if mt, ok := e.Value.Get("mime-type"); ok {
				s.MimeType = mt.Str()
			}
			m.Sizes = append(m.Sizes, s)
		}
	}
	return m, nil
}

func intOf(v value.Value, key string) int64 {
	f, ok := v.Get(key)
	if !ok {
		return 0
	}
	switch f.Kind() {
	case value.Int:
		return f.Int()
	case value.Float:
		return int64(f.Float())
	}
	return 0
}

// PutAsset creates or replaces an asset together with its metadata.
func (h *Host) PutAsset(ctx context.Context, a models.Asset) error {
	rec := assetRecord{ID: a.ID, MimeType: a.MimeType, URL: a.URL, Parent: a.Parent, Title: a.Title}
	if rec.URL == "" {
		rec.URL = h.layout.URL(a.Meta.File)
	}
	if err := h.setJSON(idKey(prefixAsset, int64(a.ID)), rec); err != nil {
		return err
	}
	return h.putMetadata(a.ID, a.Meta)
}

func (h *Host) putMetadata(id models.AssetID, m models.Metadata) error {
	raw, err := phpserialize.Encode(MetadataValue(m))
	if err != nil {
		return err
	}
	return h.set(idKey(prefixAttMeta, int64(id)), raw)
}

func (h *Host) GetAsset(ctx context.Context, id models.AssetID) (*models.Asset, error) {
	var rec assetRecord
	ok, err := h.getJSON(idKey(prefixAsset, int64(id)), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("asset %d: %w", id, cms.ErrNotFound)
	}
	a := &models.Asset{ID: rec.ID, MimeType: rec.MimeType, URL: rec.URL, Parent: rec.Parent, Title: rec.Title}
	raw, err := h.get(idKey(prefixAttMeta, int64(id)))
	if errors.Is(err, cms.ErrNotFound) {
		return a, nil
	}
	if err != nil {
		return nil, err
	}
	v, err := phpserialize.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("asset %d metadata: %w", id, err)
	}
	if a.Meta, err = MetadataFromValue(v); err != nil {
		return nil, fmt.Errorf("asset %d metadata: %w", id, err)
	}
	return a, nil
}

func (h *Host) ListAssets(ctx context.Context, f cms.AssetFilter, fn func(models.AssetID) error) error {
	rows, err := h.scan(ctx, prefixAsset)
	if err != nil {
		return err
	}
	var ids []models.AssetID
	for _, row := range rows {
		var rec assetRecord
		if err := json.Unmarshal(row.val, &rec); err != nil {
			continue
		}
		state, err := h.GetLifecycle(ctx, rec.ID)
		if err != nil {
			return err
		}
		if f.Match(rec.MimeType, state) {
			ids = append(ids, rec.ID)
		}
	}
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) SetAssetMetadata(ctx context.Context, id models.AssetID, meta models.Metadata, mimeType, url string) error {
	var rec assetRecord
	ok, err := h.getJSON(idKey(prefixAsset, int64(id)), &rec)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("asset %d: %w", id, cms.ErrNotFound)
	}
	rec.MimeType = mimeType
	rec.URL = url
	if err := h.putMetadata(id, meta); err != nil {
		return err
	}
	return h.setJSON(idKey(prefixAsset, int64(id)), rec)
}

func (h *Host) spec(name string) (SizeSpec, bool) {
	for _, s := range h.sizes {
		if s.Name == name {
			return s, true
		}
	}
	return SizeSpec{}, false
}

// RegenerateSizes renders every size tag the asset currently has from
// newSource. Known tags use their SizeSpec; unknown tags reproduce the
// recorded dimensions with a centre crop.
func (h *Host) RegenerateSizes(ctx context.Context, id models.AssetID, newSource string) (models.Metadata, error) {
	if h.renderer == nil {
		return models.Metadata{}, errors.New("no size renderer configured")
	}
	a, err := h.GetAsset(ctx, id)
	if err != nil {
		return models.Metadata{}, err
	}
	rel, err := h.layout.Rel(newSource)
	if err != nil {
		return models.Metadata{}, err
	}
	ext := path.Ext(rel)
	format := strings.TrimPrefix(ext, ".")
	mime := settings.MimeOf(format)

	w, hgt, err := h.renderer.Dimensions(ctx, newSource, format)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("read %s: %w", rel, err)
	}
	meta := models.Metadata{File: rel, Width: w, Height: hgt, FileSize: layout.FileSize(newSource)}

	stem := strings.TrimSuffix(path.Base(rel), ext)
	opts := encoder.EncodeOptions{Quality: h.SizeQuality, Method: 4, Speed: 6, Effort: 7}
	for _, old := range a.Meta.Sizes {
		spec, ok := h.spec(old.Name)
		if !ok {
			spec = SizeSpec{Name: old.Name, Width: old.Width, Height: old.Height, Crop: true}
		}
		tmpRel := meta.SizeRel(models.Size{File: stem + ".size" + ext})
		tmpAbs := h.layout.Abs(tmpRel)
		sw, sh, err := h.renderer.Render(ctx, newSource, tmpAbs, format, spec.Width, spec.Height, spec.Crop, opts)
		if err != nil {
			return models.Metadata{}, fmt.Errorf("render size %s: %w", old.Name, err)
		}
		s := models.Size{Name: old.Name, File: fmt.Sprintf("%s-%dx%d%s", stem, sw, sh, ext), Width: sw, Height: sh, MimeType: mime}
		if err := os.Rename(tmpAbs, h.layout.Abs(meta.SizeRel(s))); err != nil {
			return models.Metadata{}, err
		}
		meta.Sizes = append(meta.Sizes, s)
	}
	return meta, nil
}
