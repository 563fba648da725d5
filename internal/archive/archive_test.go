package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiant-ai/radiant/internal/archive"
	"github.com/radiant-ai/radiant/internal/model"
)

func TestEncodeDecodeColdRecord(t *testing.T) {
	archivedAt := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	rec := model.ColdRecord{
		Record: model.MemoryRecord{
			ID:         uuid.New(),
			TenantID:   "T1",
			NodeType:   "fact",
			Label:      "Paris",
			Content:    "capital of France",
			Properties: map[string]any{"userId": "u1"},
			Confidence: 0.8,
			Status:     model.RecordArchived,
		},
		ArchivedAt: archivedAt,
	}

	data, err := archive.Encode(rec)
	require.NoError(t, err)
	// gzip magic header
	assert.Equal(t, []byte{0x1f, 0x8b}, data[:2])

	got, err := archive.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, model.ColdSchemaVersion, got.SchemaVersion)
	assert.Equal(t, rec.Record.ID, got.Record.ID)
	assert.Equal(t, "capital of France", got.Record.Content)
	assert.Equal(t, "u1", got.Record.Properties["userId"])
	assert.True(t, archivedAt.Equal(got.ArchivedAt))
}

func TestDecodeRejectsGarbageAndFutureSchema(t *testing.T) {
	_, err := archive.Decode([]byte("not gzip"))
	assert.Error(t, err)

	data, err := archive.Encode(model.ColdRecord{SchemaVersion: model.ColdSchemaVersion + 1})
	require.NoError(t, err)
	_, err = archive.Decode(data)
	assert.ErrorContains(t, err, "unsupported schema version")
}

func TestMemoryArchive(t *testing.T) {
	ctx := context.Background()
	m := archive.NewMemory()

	require.NoError(t, m.Put(ctx, "T1/2026/01/a.json.gz", []byte("a"), map[string]string{"tenant_id": "T1"}))
	require.NoError(t, m.Put(ctx, "T1/2026/02/b.json.gz", []byte("b"), nil))
	require.NoError(t, m.Put(ctx, "T2/2026/01/c.json.gz", []byte("c"), nil))

	keys, err := m.ListByPrefix(ctx, "T1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"T1/2026/01/a.json.gz", "T1/2026/02/b.json.gz"}, keys)
	assert.Equal(t, "T1", m.Metadata("T1/2026/01/a.json.gz")["tenant_id"])

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, archive.ErrNotFound)

	require.NoError(t, m.Delete(ctx, "T1/2026/01/a.json.gz"))
	require.NoError(t, m.Delete(ctx, "T1/2026/01/a.json.gz"))
	assert.Equal(t, 2, m.Len())
}
