package models

import (
	"path"
	"strings"
)

// AssetID is the host's stable integer identifier for a media asset.
type AssetID int64

// Size is one derived (resized) variant of an asset. File is a bare
// filename living next to the original.
type Size struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type,omitempty"`
}

// Metadata is the host's description of an asset's files.
// File is relative to the uploads root, e.g. "2024/07/a.jpg".
type Metadata struct {
	File     string `json:"file"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"filesize,omitempty"`
	Sizes    []Size `json:"sizes,omitempty"`
}

// Dir returns the uploads-relative directory of the original ("" at root).
func (m Metadata) Dir() string {
	d := path.Dir(m.File)
	if d == "." {
		return ""
	}
	return d
}

// SizeRel returns the uploads-relative path of a derived size.
func (m Metadata) SizeRel(s Size) string {
	if d := m.Dir(); d != "" {
		return d + "/" + s.File
	}
	return s.File
}

// Size looks up a derived size by name tag.
func (m Metadata) Size(name string) (Size, bool) {
	for _, s := range m.Sizes {
		if s.Name == name {
			return s, true
		}
	}
	return Size{}, false
}

// Files returns every uploads-relative path the metadata references,
// original first, duplicates removed.
func (m Metadata) Files() []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	add(m.File)
	for _, s := range m.Sizes {
		add(m.SizeRel(s))
	}
	return out
}

// Asset is a media record as the host exposes it.
type Asset struct {
	ID       AssetID  `json:"id"`
	MimeType string   `json:"mime_type"`
	URL      string   `json:"url"`
	Parent   int64    `json:"parent,omitempty"`
	Title    string   `json:"title,omitempty"`
	Meta     Metadata `json:"meta"`
}

// Snapshot is the part of an asset that a migration changes and a
// rollback restores.
type Snapshot struct {
	Meta     Metadata `json:"meta"`
	MimeType string   `json:"mime_type"`
	URL      string   `json:"url"`
}

func (a *Asset) Snapshot() Snapshot {
	return Snapshot{Meta: a.Meta, MimeType: a.MimeType, URL: a.URL}
}

// Stem returns the original's filename without extension.
func (a *Asset) Stem() string {
	base := path.Base(a.Meta.File)
	return strings.TrimSuffix(base, path.Ext(base))
}
