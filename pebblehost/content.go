package pebblehost

import (
	"context"
	"fmt"
	"strings"

	"safemigrator/phpserialize"
	"safemigrator/value"
)

func (h *Host) PutDocument(ctx context.Context, id int64, body string) error {
	return h.set(idKey(prefixDoc, id), []byte(body))
}

func (h *Host) GetDocument(ctx context.Context, id int64) (string, error) {
	data, err := h.get(idKey(prefixDoc, id))
	return string(data), err
}

func (h *Host) IterateDocumentsWith(ctx context.Context, substr string, fn func(id int64, body string) error) error {
	rows, err := h.scan(ctx, prefixDoc)
	if err != nil {
		return err
	}
	for _, row := range rows {
		body := string(row.val)
		if !strings.Contains(body, substr) {
			continue
		}
		id, err := parseID(row.key, prefixDoc)
		if err != nil {
			return err
		}
		if err := fn(id, body); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) UpdateDocument(ctx context.Context, id int64, body string) error {
	if _, err := h.get(idKey(prefixDoc, id)); err != nil {
		return fmt.Errorf("document %d: %w", id, err)
	}
	return h.set(idKey(prefixDoc, id), []byte(body))
}

func metaKey(owner int64, key string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixMeta, owner, key))
}

// PutMeta stores a raw metadata value.
func (h *Host) PutMeta(ctx context.Context, owner int64, key string, raw []byte) error {
	return h.set(metaKey(owner, key), raw)
}

func (h *Host) GetMeta(ctx context.Context, owner int64, key string) ([]byte, error) {
	return h.get(metaKey(owner, key))
}

func (h *Host) IterateMetadataRows(ctx context.Context, fn func(owner int64, key string, raw []byte) error) error {
	rows, err := h.scan(ctx, prefixMeta)
	if err != nil {
		return err
	}
	for _, row := range rows {
		owner, err := parseID(row.key, prefixMeta)
		if err != nil {
			return err
		}
		key := string(row.key[len(prefixMeta)+idWidth+1:])
		if err := fn(owner, key, row.val); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) UpdateMetadata(ctx context.Context, owner int64, key string, raw []byte) error {
	return h.set(metaKey(owner, key), raw)
}

// PutOption stores a raw option value.
func (h *Host) PutOption(ctx context.Context, name string, raw []byte) error {
	return h.set([]byte(prefixOpt+name), raw)
}

func (h *Host) GetOption(ctx context.Context, name string) ([]byte, error) {
	return h.get([]byte(prefixOpt + name))
}

func (h *Host) IterateOptions(ctx context.Context, fn func(name string, raw []byte) error) error {
	rows, err := h.scan(ctx, prefixOpt)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := fn(string(row.key[len(prefixOpt):]), row.val); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) UpdateOption(ctx context.Context, name string, raw []byte) error {
	return h.set([]byte(prefixOpt+name), raw)
}

func (h *Host) DecodeValue(raw []byte) (value.Value, bool) {
	return phpserialize.Codec{}.Decode(raw)
}

func (h *Host) EncodeValue(v value.Value) ([]byte, error) {
	return phpserialize.Encode(v)
}
