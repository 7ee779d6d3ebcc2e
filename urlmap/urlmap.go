// Package urlmap builds the old -> new substitutions for one asset.
package urlmap

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"safemigrator/failures"
	"safemigrator/layout"
	"safemigrator/models"
	"safemigrator/value"
)

// Map is the ordered substitution set of one asset.
type Map struct {
	pairs []value.Pair
	index map[string]string
}

func newMap() *Map {
	return &Map{index: map[string]string{}}
}

// add appends old -> new. Identical duplicates are dropped, a key mapped to
// two different values is an error.
func (m *Map) add(old, new string) error {
	if old == "" || new == "" || old == new {
		return nil
	}
	if prev, ok := m.index[old]; ok {
		if prev == new {
			return nil
		}
		return failures.New(failures.KindMapAmbiguous, failures.StepMetadata,
			fmt.Sprintf("%q maps to both %q and %q", old, prev, new))
	}
	m.index[old] = new
	m.pairs = append(m.pairs, value.Pair{Old: old, New: new, Boundary: fileKey(old)})
	return nil
}

// fileKey reports whether old is a relative path or bare file name rather
// than a URL. Such keys only match at the start of a file name, so a.jpg
// never rewrites banana.jpg.
func fileKey(old string) bool {
	return !strings.HasPrefix(old, "/") && !strings.Contains(old, "://")
}

func (m *Map) Pairs() []value.Pair { return m.pairs }

func (m *Map) Len() int { return len(m.pairs) }

// Lookup returns the replacement for an exact old key.
func (m *Map) Lookup(old string) (string, bool) {
	v, ok := m.index[old]
	return v, ok
}

// Replacer returns a longest-key-first replacer over the map.
func (m *Map) Replacer() *value.Replacer {
	return value.NewReplacer(m.pairs)
}

// Olds returns every old key in map order.
func (m *Map) Olds() []string {
	out := make([]string, len(m.pairs))
	for i, p := range m.pairs {
		out[i] = p.Old
	}
	return out
}

// Inverse swaps every pair. It fails with map_ambiguous if two keys share a
// value, since the inverse would not be a function.
func (m *Map) Inverse() (*Map, error) {
	inv := newMap()
	for _, p := range m.pairs {
		if err := inv.add(p.New, p.Old); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// Export returns the pairs in a form suitable for persisting.
func (m *Map) Export() [][2]string {
	out := make([][2]string, len(m.pairs))
	for i, p := range m.pairs {
		out[i] = [2]string{p.Old, p.New}
	}
	return out
}

// FromPairs rebuilds a Map from Export output.
func FromPairs(pairs [][2]string) (*Map, error) {
	m := newMap()
	for _, p := range pairs {
		if err := m.add(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type sizePair struct {
	oldURL, newURL   string
	oldRel, newRel   string
	oldBase, newBase string
}

func byOldKey(get func(sizePair) string) func(a, b sizePair) bool {
	return func(a, b sizePair) bool {
		ka, kb := get(a), get(b)
		if len(ka) != len(kb) {
			return len(ka) > len(kb)
		}
		return ka < kb
	}
}

// Build produces the map for an asset migrating from old to newMeta.
// Every size tag of old must exist in newMeta. Order: original URL (and
// the stored display URL when it differs), size URLs by descending length,
// path pairs, then basename pairs; ties break on the old key.
func Build(l *layout.Layout, old models.Snapshot, newMeta models.Metadata, newURL string) (*Map, error) {
	if old.Meta.File == "" || newMeta.File == "" {
		return nil, failures.New(failures.KindMetadataRegenerateFailed, failures.StepMetadata, "metadata has no file")
	}
	orig := sizePair{
		oldURL: l.URL(old.Meta.File), newURL: l.URL(newMeta.File),
		oldRel: old.Meta.File, newRel: newMeta.File,
		oldBase: path.Base(old.Meta.File), newBase: path.Base(newMeta.File),
	}
	if newURL == "" {
		newURL = orig.newURL
	}

	var sizes []sizePair
	for _, s := range old.Meta.Sizes {
		ns, ok := newMeta.Size(s.Name)
		if !ok {
			return nil, failures.New(failures.KindMetadataRegenerateFailed, failures.StepMetadata,
				fmt.Sprintf("size %q missing after regeneration", s.Name))
		}
		oldRel, newRel := old.Meta.SizeRel(s), newMeta.SizeRel(ns)
		sizes = append(sizes, sizePair{
			oldURL: l.URL(oldRel), newURL: l.URL(newRel),
			oldRel: oldRel, newRel: newRel,
			oldBase: s.File, newBase: ns.File,
		})
	}

	m := newMap()
	if err := m.add(orig.oldURL, orig.newURL); err != nil {
		return nil, err
	}
	if old.URL != orig.oldURL {
		if err := m.add(old.URL, newURL); err != nil {
			return nil, err
		}
	}

	groups := []struct {
		get func(sizePair) string
		new func(sizePair) string
	}{
		{func(p sizePair) string { return p.oldURL }, func(p sizePair) string { return p.newURL }},
		{func(p sizePair) string { return p.oldRel }, func(p sizePair) string { return p.newRel }},
		{func(p sizePair) string { return p.oldBase }, func(p sizePair) string { return p.newBase }},
	}
	for i, g := range groups {
		if i > 0 {
			if err := m.add(g.get(orig), g.new(orig)); err != nil {
				return nil, err
			}
		}
		ordered := append([]sizePair(nil), sizes...)
		less := byOldKey(g.get)
		sort.SliceStable(ordered, func(a, b int) bool { return less(ordered[a], ordered[b]) })
		for _, p := range ordered {
			if err := m.add(g.get(p), g.new(p)); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
