// Package archive implements the Cold tier: a durable object store holding
// gzip-compressed JSON snapshots of archived memory records.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/radiant-ai/radiant/internal/model"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("archive: object not found")

// Archive is the Cold-tier object store contract.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	// Get returns the object body, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Encode serializes a record into the gzip-compressed Cold payload.
func Encode(rec model.ColdRecord) ([]byte, error) {
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = model.ColdSchemaVersion
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(rec); err != nil {
		return nil, fmt.Errorf("archive: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode. Payloads written by a newer schema are rejected.
func Decode(data []byte) (model.ColdRecord, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return model.ColdRecord{}, fmt.Errorf("archive: decompress: %w", err)
	}
	defer func() { _ = zr.Close() }()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return model.ColdRecord{}, fmt.Errorf("archive: decompress: %w", err)
	}
	var rec model.ColdRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ColdRecord{}, fmt.Errorf("archive: decode: %w", err)
	}
	if rec.SchemaVersion > model.ColdSchemaVersion {
		return model.ColdRecord{}, fmt.Errorf("archive: unsupported schema version %d", rec.SchemaVersion)
	}
	return rec, nil
}
