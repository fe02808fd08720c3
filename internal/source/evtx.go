package source

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/0xrawsec/golang-evtx/evtx"
	"github.com/Velocidex/ordereddict"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

// KindEVTX reads binary .evtx containers.
const KindEVTX = "evtx"

// SystemTimeLayout is how creation times are rendered into the tree, matching
// the text form other EVTX decoders emit.
const SystemTimeLayout = "2006-01-02 15:04:05.000000"

func init() {
	Register(KindEVTX, func(path string, opts Options) (Source, error) {
		return OpenEVTX(path, opts)
	})
}

// EVTXSource walks the chunks of a binary container in order.
type EVTXSource struct {
	path   string
	file   evtx.File
	events chan *evtx.GoEvtxMap
	index  int
}

// OpenEVTX opens path, verifying the file header unless opts.Dirty is set.
func OpenEVTX(path string, opts Options) (*EVTXSource, error) {
	s := &EVTXSource{path: path}

	var err error
	if opts.Dirty {
		s.file, err = evtx.OpenDirty(path)
	} else {
		s.file, err = evtx.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", model.ErrDecode, path, err)
	}

	s.events = s.file.Events()
	return s, nil
}

// Next returns the next decoded record as a tree.
func (s *EVTXSource) Next(ctx context.Context) (model.RawRecord, error) {
	for {
		select {
		case <-ctx.Done():
			return model.RawRecord{}, ctx.Err()
		case e, ok := <-s.events:
			if !ok {
				return model.RawRecord{}, io.EOF
			}
			if e == nil {
				continue
			}
			s.index++
			return model.RawRecord{
				Tree:   TreeFromMap(map[string]interface{}(*e)),
				Handle: model.Handle{Path: s.path, Index: s.index},
			}, nil
		}
	}
}

// Close closes the underlying file.
func (s *EVTXSource) Close() error {
	return s.file.Close()
}

// TreeFromMap converts a decoded record into the tree layout the normalizer
// expects. The decoder drops the attribute/element distinction and already
// folds named <Data> elements into a map, so the known attribute locations
// are restored here:
//   - children of System elements (Provider, TimeCreated, Execution, ...) are
//     attributes and get the "@" prefix;
//   - a name->value EventData map becomes a Data sequence of {@Name, #text}.
//
// Go maps are unordered, so keys come out sorted.
func TreeFromMap(m map[string]interface{}) *ordereddict.Dict {
	out := ordereddict.NewDict()
	for _, k := range sortedKeys(m) {
		v := m[k]
		if k != model.KeyEvent {
			out.Set(k, convert(v, ""))
			continue
		}
		ev, ok := asMap(v)
		if !ok {
			out.Set(k, convert(v, ""))
			continue
		}
		out.Set(k, eventTree(ev))
	}
	return out
}

func eventTree(ev map[string]interface{}) *ordereddict.Dict {
	out := ordereddict.NewDict()
	for _, k := range sortedKeys(ev) {
		v := ev[k]
		switch k {
		case model.KeySystem:
			if sys, ok := asMap(v); ok {
				out.Set(k, systemTree(sys))
				continue
			}
		case model.KeyEventData:
			if data, ok := asMap(v); ok {
				out.Set(k, eventDataTree(data))
				continue
			}
		}
		out.Set(k, convert(v, ""))
	}
	return out
}

func systemTree(sys map[string]interface{}) *ordereddict.Dict {
	out := ordereddict.NewDict()
	for _, k := range sortedKeys(sys) {
		out.Set(k, convert(sys[k], "@"))
	}
	if tc, ok := model.TreeAt(out, model.KeyTimeCreated); ok {
		if st, ok := tc.Get(model.KeySystemTime); ok {
			tc.Update(model.KeySystemTime, systemTime(st))
		}
	}
	return out
}

// systemTime rewrites RFC 3339 renderings into SystemTimeLayout.
func systemTime(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return v
	}
	return t.UTC().Format(SystemTimeLayout)
}

func eventDataTree(data map[string]interface{}) *ordereddict.Dict {
	out := ordereddict.NewDict()
	if _, ok := data[model.KeyData]; ok {
		for _, k := range sortedKeys(data) {
			out.Set(k, convert(data[k], ""))
		}
		return out
	}

	pairs := make([]any, 0, len(data))
	for _, k := range sortedKeys(data) {
		pair := ordereddict.NewDict().Set(model.KeyName, k)
		if text := scalar(data[k]); text != nil {
			pair.Set(model.KeyText, text)
		}
		pairs = append(pairs, pair)
	}
	return out.Set(model.KeyData, pairs)
}

// convert copies a decoded value; nested map keys get prefix.
func convert(v interface{}, prefix string) any {
	if m, ok := asMap(v); ok {
		out := ordereddict.NewDict()
		for _, k := range sortedKeys(m) {
			out.Set(prefix+k, convert(m[k], ""))
		}
		return out
	}
	if list, ok := v.([]interface{}); ok {
		items := make([]any, 0, len(list))
		for _, item := range list {
			items = append(items, convert(item, prefix))
		}
		return items
	}
	return scalar(v)
}

// scalar renders leaf values as text; the tree only holds strings and nil.
func scalar(v interface{}) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case time.Time:
		return t.UTC().Format(SystemTimeLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(SystemTimeLayout)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case evtx.GoEvtxMap:
		return map[string]interface{}(t), true
	case *evtx.GoEvtxMap:
		if t == nil {
			return nil, false
		}
		return map[string]interface{}(*t), true
	case map[string]interface{}:
		return t, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
