package model

import (
	"github.com/Velocidex/ordereddict"
)

// Keys of the record tree. The attribute/text naming follows the upstream
// XML decoder: attributes are prefixed with "@", mixed text lives in "#text".
const (
	KeyEvent       = "Event"
	KeySystem      = "System"
	KeyTimeCreated = "TimeCreated"
	KeySystemTime  = "@SystemTime"
	KeyEventData   = "EventData"
	KeyData        = "Data"
	KeyName        = "@Name"
	KeyText        = "#text"
	KeyRawData     = "RawData"
	KeyTimestamp   = "@timestamp"

	KeyEventID       = "EventID"
	KeyChannel       = "Channel"
	KeyProvider      = "Provider"
	KeyEventRecordID = "EventRecordID"
)

// Event is one normalized record. Only Doc is serialized.
type Event struct {
	Doc    *ordereddict.Dict
	Handle Handle
	Shape  string
}

// MarshalJSON emits the normalized document with its original key order.
func (e *Event) MarshalJSON() ([]byte, error) {
	if e == nil || e.Doc == nil {
		return []byte("null"), nil
	}
	return MarshalJSON(e.Doc)
}

// Timestamp returns the canonical @timestamp value.
func (e *Event) Timestamp() string {
	if e == nil || e.Doc == nil {
		return ""
	}
	s, _ := StringAt(e.Doc, KeyTimestamp)
	return s
}

// Handle identifies a record inside its container. Diagnostics only.
type Handle struct {
	Path     string `json:"path"`
	Index    int    `json:"index"`
	RecordID string `json:"record_id,omitempty"`
	Offset   int64  `json:"offset,omitempty"`
}

// RawRecord is a decoded record as handed to the normalizer. Sources fill XML,
// Tree, or both; the pipeline builds Tree from XML when it is missing.
type RawRecord struct {
	XML    []byte
	Tree   *ordereddict.Dict
	Handle Handle
}

// Lookup walks nested trees by key. It reports false when a key is missing or
// an intermediate value is not a tree.
func Lookup(d *ordereddict.Dict, path ...string) (any, bool) {
	var cur any = d
	for _, key := range path {
		node, ok := cur.(*ordereddict.Dict)
		if !ok || node == nil {
			return nil, false
		}
		cur, ok = node.Get(key)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// TreeAt returns the tree stored at path.
func TreeAt(d *ordereddict.Dict, path ...string) (*ordereddict.Dict, bool) {
	v, ok := Lookup(d, path...)
	if !ok {
		return nil, false
	}
	t, ok := v.(*ordereddict.Dict)
	return t, ok && t != nil
}

// StringAt returns the text stored at path. Elements carrying attributes keep
// their text under "#text", which is unwrapped here.
func StringAt(d *ordereddict.Dict, path ...string) (string, bool) {
	v, ok := Lookup(d, path...)
	if !ok {
		return "", false
	}
	return Text(v)
}

// Text returns the text content of a tree value.
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case *ordereddict.Dict:
		if t == nil {
			return "", false
		}
		inner, ok := t.Get(KeyText)
		if !ok {
			return "", false
		}
		s, ok := inner.(string)
		return s, ok
	default:
		return "", false
	}
}
