package stages

import (
	"fmt"

	"github.com/fryguy04/evtx-to-json/internal/model"
	"github.com/fryguy04/evtx-to-json/internal/xmltree"
)

// Outcome is the result of normalizing one record: either Event or Err is set.
type Outcome struct {
	Event *model.Event
	Err   *model.RecordError
}

// Ok reports whether the record normalized cleanly.
func (o Outcome) Ok() bool {
	return o.Err == nil && o.Event != nil
}

// Normalize turns a decoded record into a normalized event. It performs no
// I/O; failures come back in the Outcome together with the tree as far as it
// was rewritten.
func Normalize(rec model.RawRecord) Outcome {
	h := rec.Handle

	tree := rec.Tree
	if tree == nil {
		built, err := xmltree.Build(rec.XML)
		if err != nil {
			return Outcome{Err: model.NewRecordError(h, nil, fmt.Errorf("%w: build tree: %v", model.ErrStructure, err))}
		}
		tree = built
	}

	if h.RecordID == "" {
		if id, ok := model.StringAt(tree, model.KeyEvent, model.KeySystem, model.KeyEventRecordID); ok {
			h.RecordID = id
		}
	}

	if err := ApplyTimestamp(tree); err != nil {
		return Outcome{Err: model.NewRecordError(h, tree, err)}
	}

	doc, shape, err := FlattenPayload(tree)
	if err != nil {
		return Outcome{Err: model.NewRecordError(h, doc, err)}
	}

	return Outcome{Event: &model.Event{Doc: doc, Handle: h, Shape: shape.Name()}}
}
