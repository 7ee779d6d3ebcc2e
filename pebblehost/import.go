package pebblehost

import (
	"context"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"safemigrator/logger"
	"safemigrator/models"
)

var sizeSuffix = regexp.MustCompile(`^(.+)-(\d+)x(\d+)$`)

var importable = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// ImportTree registers every image under the uploads root that is not yet
// known as an asset. Files named <stem>-<w>x<h>.<ext> next to <stem>.<ext>
// become derived sizes of it. Directories whose root-relative path starts
// with one of skip are not walked. It returns the number of assets added.
func (h *Host) ImportTree(ctx context.Context, skip ...string) (int, error) {
	known := map[string]bool{}
	var next models.AssetID
	rows, err := h.scan(ctx, prefixAsset)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		var rec assetRecord
		if json.Unmarshal(row.val, &rec) != nil {
			continue
		}
		if rec.ID > next {
			next = rec.ID
		}
		if a, err := h.GetAsset(ctx, rec.ID); err == nil {
			for _, f := range a.Meta.Files() {
				known[f] = true
			}
		}
	}

	byDir := map[string][]string{}
	err = filepath.WalkDir(h.layout.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := h.layout.Rel(p)
		if rerr != nil {
			return rerr
		}
		if d.IsDir() {
			for _, s := range skip {
				if s != "" && (rel == s || strings.HasPrefix(rel, s+"/")) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if importable[strings.ToLower(path.Ext(rel))] && !known[rel] {
			byDir[path.Dir(rel)] = append(byDir[path.Dir(rel)], rel)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	added := 0
	for _, dir := range dirs {
		files := byDir[dir]
		sort.Strings(files)
		present := map[string]bool{}
		for _, f := range files {
			present[f] = true
		}
		sizes := map[string][]models.Size{}
		var originals []string
		for _, f := range files {
			ext := path.Ext(f)
			stem := strings.TrimSuffix(f, ext)
			if m := sizeSuffix.FindStringSubmatch(stem); m != nil && present[m[1]+ext] {
				w, _ := strconv.Atoi(m[2])
				hh, _ := strconv.Atoi(m[3])
				sizes[m[1]+ext] = append(sizes[m[1]+ext], models.Size{
					Name: m[2] + "x" + m[3], File: path.Base(f), Width: w, Height: hh,
				})
				continue
			}
			originals = append(originals, f)
		}
		for _, f := range originals {
			a, err := h.describe(f)
			if err != nil {
				logger.Warnw("import skipped", "file", f, "error", err)
				continue
			}
			next++
			a.ID = next
			a.Meta.Sizes = sizes[f]
			if err := h.PutAsset(ctx, a); err != nil {
				return added, err
			}
			added++
		}
	}
	return added, nil
}

func (h *Host) describe(rel string) (models.Asset, error) {
	abs := h.layout.Abs(rel)
	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return models.Asset{}, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return models.Asset{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return models.Asset{}, err
	}
	fi, err := f.Stat()
	if err != nil {
		return models.Asset{}, err
	}
	return models.Asset{
		MimeType: mt.String(),
		URL:      h.layout.URL(rel),
		Title:    strings.TrimSuffix(path.Base(rel), path.Ext(rel)),
		Meta:     models.Metadata{File: rel, Width: cfg.Width, Height: cfg.Height, FileSize: fi.Size()},
	}, nil
}
