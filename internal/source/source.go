// Package source yields the records of one event-log container in file order.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

// Source produces records one at a time. Next returns io.EOF once the
// container is exhausted; any other error wraps model.ErrDecode and ends the
// file.
type Source interface {
	Next(ctx context.Context) (model.RawRecord, error)
	Close() error
}

// Options tune how a container is opened.
type Options struct {
	// Dirty opens .evtx files whose header was not cleanly closed.
	Dirty bool
}

// Opener opens a container at path.
type Opener func(path string, opts Options) (Source, error)

var registry = map[string]Opener{}

// Register adds an opener under a kind name.
func Register(kind string, open Opener) {
	registry[strings.ToLower(kind)] = open
}

// Kinds returns the registered kind names.
func Kinds() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DetectKind maps a file extension to a source kind.
func DetectKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return KindXML
	default:
		return KindEVTX
	}
}

// Open opens path with the named kind, or by extension when kind is "" or
// "auto".
func Open(path, kind string, opts Options) (Source, error) {
	kind = strings.ToLower(kind)
	if kind == "" || kind == "auto" {
		kind = DetectKind(path)
	}
	open, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown source kind %q (known: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return open(path, opts)
}
