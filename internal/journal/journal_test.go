package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "deliveries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)

	base := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	id1, err := j.Record(ctx, Entry{
		LogType:       "Noname_alerts",
		ContentLength: 13,
		Status:        StatusDelivered,
		StatusCode:    200,
		ReceivedAt:    base,
		CompletedAt:   base.Add(time.Second),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	id2, err := j.Record(ctx, Entry{
		ID:          "fixed-id",
		RequestID:   "req-2",
		Status:      StatusFailed,
		StatusCode:  403,
		Error:       "forwarding failed: 403 Forbidden",
		ReceivedAt:  base.Add(time.Minute),
		CompletedAt: base.Add(time.Minute + time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id2)

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "fixed-id", entries[0].ID)
	assert.Equal(t, "req-2", entries[0].RequestID)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, 403, entries[0].StatusCode)
	assert.Equal(t, "forwarding failed: 403 Forbidden", entries[0].Error)

	assert.Equal(t, id1, entries[1].ID)
	assert.Equal(t, "Noname_alerts", entries[1].LogType)
	assert.Equal(t, 13, entries[1].ContentLength)
	assert.Empty(t, entries[1].RequestID)
	assert.True(t, base.Equal(entries[1].ReceivedAt))

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)

	_, err := j.Record(ctx, Entry{ID: "dup", Status: StatusRejected})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{ID: "dup", Status: StatusRejected})
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	j := openTest(t)

	old := time.Now().UTC().Add(-48 * time.Hour)
	_, err := j.Record(ctx, Entry{Status: StatusDelivered, ReceivedAt: old, CompletedAt: old})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Status: StatusDelivered})
	require.NoError(t, err)

	n, err := j.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "deliveries.db")

	j, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Status: StatusDelivered})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(ctx, path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
