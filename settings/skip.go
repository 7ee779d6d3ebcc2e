package settings

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SkipRules decides which assets the coordinator never touches.
type SkipRules struct {
	folders []string
	globs   []string
	mimes   map[string]bool
}

// Rules parses the skip_folders and skip_mimes settings.
func (s Settings) Rules() SkipRules {
	r := SkipRules{mimes: map[string]bool{}}
	for _, line := range strings.Split(s.SkipFolders, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "/")
		if line == "" {
			continue
		}
		line = strings.ToLower(line)
		if strings.ContainsAny(line, "*?[") {
			r.globs = append(r.globs, line)
		} else {
			r.folders = append(r.folders, line)
		}
	}
	for _, m := range strings.FieldsFunc(s.SkipMimes, func(c rune) bool {
		return c == ',' || c == ' ' || c == '\n' || c == '\t'
	}) {
		r.mimes[m] = true
	}
	return r
}

// SkipFolder reports whether an uploads-relative path matches a folder
// rule. Plain rules are case-insensitive substrings of the whole path,
// separators included; rules with glob characters are doublestar patterns.
func (r SkipRules) SkipFolder(rel string) bool {
	p := strings.ToLower(strings.TrimPrefix(rel, "/"))
	for _, f := range r.folders {
		if strings.Contains(p, f) {
			return true
		}
	}
	for _, g := range r.globs {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
	}
	return false
}

// SkipMime reports whether the media type is excluded. Matching is exact.
func (r SkipRules) SkipMime(mime string) bool {
	return r.mimes[mime]
}

// Skip combines both rule sets.
func (r SkipRules) Skip(rel, mime string) bool {
	return r.SkipMime(mime) || r.SkipFolder(rel)
}
