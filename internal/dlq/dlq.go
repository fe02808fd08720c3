// Package dlq keeps failed records for later analysis or replay.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Velocidex/ordereddict"

	"github.com/fryguy04/evtx-to-json/internal/logger"
	"github.com/fryguy04/evtx-to-json/internal/model"
)

// FailedRecord captures one normalization failure.
type FailedRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	RunID     string            `json:"run_id,omitempty"`
	Kind      string            `json:"kind"`
	Error     string            `json:"error"`
	Record    model.Handle      `json:"record"`
	Partial   *ordereddict.Dict `json:"partial,omitempty"`
	XML       string            `json:"xml,omitempty"`
}

// Queue appends failed records to a JSONL file, one object per line.
type Queue struct {
	path    string
	mu      sync.Mutex
	f       *os.File
	written uint64
}

// NewQueue opens (or creates) the dead-letter file at path in append mode.
func NewQueue(path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dlq: %w", err)
	}
	return &Queue{path: path, f: f}, nil
}

// Write records a failed record. rawXML is the record text when the source
// provided it. A nil Queue discards.
func (q *Queue) Write(ctx context.Context, rerr *model.RecordError, rawXML []byte) error {
	if q == nil || rerr == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	failed := FailedRecord{
		Timestamp: time.Now().UTC(),
		RunID:     logger.RunID(ctx),
		Kind:      rerr.Kind.String(),
		Error:     rerr.Error(),
		Record:    rerr.Handle,
		Partial:   rerr.Partial,
		XML:       string(rawXML),
	}

	data, err := json.Marshal(failed)
	if err != nil {
		logger.ErrorContext(ctx, "failed to marshal DLQ entry", "error", err)
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := q.f.Write(data); err != nil {
		logger.ErrorContext(ctx, "failed to write DLQ entry", "error", err, "path", q.path)
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	logger.DebugContext(ctx, "DLQ: wrote failed record", "index", rerr.Handle.Index, "kind", failed.Kind)
	return nil
}

// Written returns how many entries this queue has appended.
func (q *Queue) Written() uint64 {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written
}

// Stats returns DLQ metrics.
func (q *Queue) Stats() map[string]interface{} {
	if q == nil {
		return map[string]interface{}{
			"enabled": false,
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]interface{}{
		"enabled": true,
		"written": q.written,
		"path":    q.path,
	}
}

// Close closes the dead-letter file.
func (q *Queue) Close() error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.f == nil {
		return nil
	}
	err := q.f.Close()
	q.f = nil
	return err
}
