package dlq

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fryguy04/evtx-to-json/internal/logger"
	"github.com/fryguy04/evtx-to-json/internal/model"
)

func readEntries(t *testing.T, path string) []FailedRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []FailedRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec struct {
			FailedRecord
			Partial map[string]any `json:"partial"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec.FailedRecord)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestQueueWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "failed.jsonl")
	q, err := NewQueue(path)
	require.NoError(t, err)

	ctx := logger.WithRunID(context.Background(), "run-42")
	partial := ordereddict.NewDict().Set(model.KeyEvent, "x")
	rerr := model.NewRecordError(
		model.Handle{Path: "Security.evtx", Index: 7, RecordID: "1207"},
		partial,
		fmt.Errorf("%w: unrecognized creation time %q", model.ErrFormat, "bad"),
	)

	require.NoError(t, q.Write(ctx, rerr, []byte("<Event/>")))
	require.NoError(t, q.Write(ctx, model.NewRecordError(model.Handle{Index: 8}, nil, errors.New("boom")), nil))
	require.NoError(t, q.Close())
	assert.Equal(t, uint64(2), q.Written())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "run-42", first.RunID)
	assert.Equal(t, "format_error", first.Kind)
	assert.Equal(t, 7, first.Record.Index)
	assert.Equal(t, "1207", first.Record.RecordID)
	assert.Equal(t, "<Event/>", first.XML)
	assert.Contains(t, first.Error, "unrecognized creation time")
	assert.False(t, first.Timestamp.IsZero())

	assert.Equal(t, "structural_error", entries[1].Kind)
	assert.Empty(t, entries[1].XML)
}

func TestQueueAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.jsonl")
	for i := 0; i < 2; i++ {
		q, err := NewQueue(path)
		require.NoError(t, err)
		require.NoError(t, q.Write(context.Background(), model.NewRecordError(model.Handle{Index: i}, nil, model.ErrStructure), nil))
		require.NoError(t, q.Close())
	}
	assert.Len(t, readEntries(t, path), 2)
}

func TestNilQueue(t *testing.T) {
	var q *Queue
	assert.NoError(t, q.Write(context.Background(), &model.RecordError{}, nil))
	assert.NoError(t, q.Close())
	assert.Equal(t, false, q.Stats()["enabled"])
	assert.Zero(t, q.Written())
}

func TestStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.jsonl")
	q, err := NewQueue(path)
	require.NoError(t, err)
	defer q.Close()

	stats := q.Stats()
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, path, stats["path"])
}
