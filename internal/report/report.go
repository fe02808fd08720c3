package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

// Report aggregates conversion statistics for one run.
type Report struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Attempted  int            `json:"attempted" yaml:"attempted"`
	Succeeded  int            `json:"succeeded" yaml:"succeeded"`
	Failed     int            `json:"failed" yaml:"failed"`
	Filtered   int            `json:"filtered" yaml:"filtered"`
	ByKind     map[string]int `json:"by_kind" yaml:"by_kind"`
	ByShape    map[string]int `json:"by_shape" yaml:"by_shape"`
	ByChannel  map[string]int `json:"by_channel" yaml:"by_channel"`
	ByEventID  map[string]int `json:"by_event_id" yaml:"by_event_id"`
	Files      []FileReport   `json:"files" yaml:"files"`
}

// FileReport summarizes one input file.
type FileReport struct {
	Path      string `json:"path" yaml:"path"`
	Output    string `json:"output,omitempty" yaml:"output,omitempty"`
	Attempted int    `json:"attempted" yaml:"attempted"`
	Succeeded int    `json:"succeeded" yaml:"succeeded"`
	Failed    int    `json:"failed" yaml:"failed"`
	Filtered  int    `json:"filtered" yaml:"filtered"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReport initializes a Report with maps ready to use.
func NewReport(runID string) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		ByKind:    make(map[string]int),
		ByShape:   make(map[string]int),
		ByChannel: make(map[string]int),
		ByEventID: make(map[string]int),
	}
}

// AddEvent counts a written event by shape, channel and event ID.
func (r *Report) AddEvent(e *model.Event) {
	if e == nil {
		return
	}
	if e.Shape != "" {
		r.ByShape[e.Shape]++
	}
	sys, ok := model.TreeAt(e.Doc, model.KeyEvent, model.KeySystem)
	if !ok {
		sys, _ = model.TreeAt(e.Doc, model.KeySystem)
	}
	if ch, ok := model.StringAt(sys, model.KeyChannel); ok && ch != "" {
		r.ByChannel[ch]++
	}
	if id, ok := model.StringAt(sys, model.KeyEventID); ok && id != "" {
		r.ByEventID[id]++
	}
}

// AddFailure counts a failed record by kind.
func (r *Report) AddFailure(kind model.ErrorKind) {
	r.ByKind[kind.String()]++
}

// AddFile appends a file summary and rolls it into the run totals.
func (r *Report) AddFile(f FileReport) {
	r.Files = append(r.Files, f)
	r.Attempted += f.Attempted
	r.Succeeded += f.Succeeded
	r.Failed += f.Failed
	r.Filtered += f.Filtered
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Write stores the report at path, as YAML for .yaml/.yml and JSON otherwise.
func (r *Report) Write(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return r.WriteYAML(path)
	default:
		return r.WriteJSON(path)
	}
}

// WriteJSON writes the report to a JSON file at the given path.
func (r *Report) WriteJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return f.Close()
}

// WriteYAML writes the report to a YAML file at the given path.
func (r *Report) WriteYAML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return f.Close()
}
