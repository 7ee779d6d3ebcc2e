// Package rewrite applies an asset's URL map to the host's documents,
// key/value metadata and options, in that order.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"

	"safemigrator/cms"
	"safemigrator/failures"
	"safemigrator/logger"
	"safemigrator/value"
)

// Counts records what one pass touched.
type Counts struct {
	Documents   []int64
	MetaKeys    map[int64][]string
	MetaUpdated int
	Options     []string
}

func (c Counts) DocsUpdated() int { return len(c.Documents) }

func (c Counts) OptionsUpdated() int { return len(c.Options) }

// Total is the number of individual updates written.
func (c Counts) Total() int { return len(c.Documents) + c.MetaUpdated + len(c.Options) }

// Rewriter rewrites the content stores of one host.
type Rewriter struct {
	content cms.Content
	codec   value.Codec
}

func New(content cms.Content) *Rewriter {
	return &Rewriter{content: content, codec: cms.Codec{C: content}}
}

// Needle returns the substring every document containing any of olds must
// contain: the longest common prefix of their base names.
func Needle(olds []string) string {
	if len(olds) == 0 {
		return ""
	}
	prefix := path.Base(olds[0])
	for _, o := range olds[1:] {
		b := path.Base(o)
		n := 0
		for n < len(prefix) && n < len(b) && prefix[n] == b[n] {
			n++
		}
		prefix = prefix[:n]
		if prefix == "" {
			break
		}
	}
	return prefix
}

// Apply runs documents -> metadata -> options. The first store that fails
// stops the pass; counts for the stores already done are still returned.
func (rw *Rewriter) Apply(ctx context.Context, r *value.Replacer) (Counts, error) {
	counts := Counts{MetaKeys: map[int64][]string{}}
	if r.Len() == 0 {
		return counts, nil
	}
	olds := make([]string, 0, r.Len())
	for _, p := range r.Pairs() {
		olds = append(olds, p.Old)
	}

	docs, err := rw.documents(ctx, r, Needle(olds))
	counts.Documents = docs
	if err != nil {
		return counts, err
	}
	if err := rw.metadata(ctx, r, &counts); err != nil {
		return counts, err
	}
	opts, err := rw.options(ctx, r)
	counts.Options = opts
	if err != nil {
		return counts, err
	}
	logger.Debugw("content rewritten", "docs", counts.DocsUpdated(), "meta", counts.MetaUpdated, "options", counts.OptionsUpdated())
	return counts, nil
}

func storeError(store string, err error) error {
	if failures.As(err) != nil {
		return err
	}
	return failures.Wrap(failures.KindRewriteFailed, failures.StepRewrite, store, err)
}

func (rw *Rewriter) documents(ctx context.Context, r *value.Replacer, needle string) ([]int64, error) {
	type update struct {
		id   int64
		body string
	}
	var pending []update
	err := rw.content.IterateDocumentsWith(ctx, needle, func(id int64, body string) error {
		out, changed := r.Replace(body)
		if changed {
			pending = append(pending, update{id, out})
		}
		return nil
	})
	if err != nil {
		return nil, storeError("documents", err)
	}
	var ids []int64
	for _, u := range pending {
		if err := rw.content.UpdateDocument(ctx, u.id, u.body); err != nil {
			return ids, storeError(fmt.Sprintf("document %d", u.id), err)
		}
		ids = append(ids, u.id)
	}
	return ids, nil
}

// rewriteRaw maps value.ErrRewriteFailed onto the rewrite_failed kind.
func (rw *Rewriter) rewriteRaw(raw []byte, r *value.Replacer, what string) ([]byte, bool, error) {
	out, changed, err := value.RewriteRaw(raw, rw.codec, r)
	if errors.Is(err, value.ErrRewriteFailed) {
		return raw, false, failures.Wrap(failures.KindRewriteFailed, failures.StepRewrite, what, err)
	}
	return out, changed, err
}

func (rw *Rewriter) metadata(ctx context.Context, r *value.Replacer, counts *Counts) error {
	type update struct {
		owner int64
		key   string
		raw   []byte
	}
	var pending []update
	err := rw.content.IterateMetadataRows(ctx, func(owner int64, key string, raw []byte) error {
		if !r.Contains(string(raw)) {
			return nil
		}
		out, changed, err := rw.rewriteRaw(raw, r, fmt.Sprintf("meta %d/%s", owner, key))
		if err != nil {
			return err
		}
		if changed {
			pending = append(pending, update{owner, key, out})
		}
		return nil
	})
	if err != nil {
		return storeError("metadata", err)
	}
	for _, u := range pending {
		if err := rw.content.UpdateMetadata(ctx, u.owner, u.key, u.raw); err != nil {
			return storeError(fmt.Sprintf("meta %d/%s", u.owner, u.key), err)
		}
		counts.MetaKeys[u.owner] = append(counts.MetaKeys[u.owner], u.key)
		counts.MetaUpdated++
	}
	for owner := range counts.MetaKeys {
		sort.Strings(counts.MetaKeys[owner])
	}
	return nil
}

func (rw *Rewriter) options(ctx context.Context, r *value.Replacer) ([]string, error) {
	type update struct {
		name string
		raw  []byte
	}
	var pending []update
	err := rw.content.IterateOptions(ctx, func(name string, raw []byte) error {
		if !r.Contains(string(raw)) {
			return nil
		}
		out, changed, err := rw.rewriteRaw(raw, r, "option "+name)
		if err != nil {
			return err
		}
		if changed {
			pending = append(pending, update{name, out})
		}
		return nil
	})
	if err != nil {
		return nil, storeError("options", err)
	}
	var names []string
	for _, u := range pending {
		if err := rw.content.UpdateOption(ctx, u.name, u.raw); err != nil {
			return names, storeError("option "+u.name, err)
		}
		names = append(names, u.name)
	}
	return names, nil
}

// HasAny reports whether any store still holds one of the replacer's old
// keys. Used to check that a relinked asset left no dangling references.
func (rw *Rewriter) HasAny(ctx context.Context, r *value.Replacer) (bool, error) {
	found := errors.New("found")
	check := func(s string) error {
		if r.Contains(s) {
			return found
		}
		return nil
	}
	olds := make([]string, 0, r.Len())
	for _, p := range r.Pairs() {
		olds = append(olds, p.Old)
	}
	err := rw.content.IterateDocumentsWith(ctx, Needle(olds), func(_ int64, body string) error { return check(body) })
	if err == nil {
		err = rw.content.IterateMetadataRows(ctx, func(_ int64, _ string, raw []byte) error { return check(string(raw)) })
	}
	if err == nil {
		err = rw.content.IterateOptions(ctx, func(_ string, raw []byte) error { return check(string(raw)) })
	}
	if errors.Is(err, found) {
		return true, nil
	}
	return false, err
}
