package stages

import (
	"fmt"

	"github.com/Velocidex/ordereddict"

	"github.com/fryguy04/evtx-to-json/internal/logger"
	"github.com/fryguy04/evtx-to-json/internal/model"
)

// PayloadShape is the layout found under Event.EventData. Exactly one of
// ShapeSequence, ShapeSingle, ShapeOpaque or ShapeAbsent is produced per
// record by ClassifyPayload.
type PayloadShape interface {
	// Name is the label recorded on the event and in reports.
	Name() string
	isPayloadShape()
}

// ShapeSequence: EventData.Data holds a list of name/text pairs.
type ShapeSequence struct {
	Container *ordereddict.Dict
	Items     []any
}

// ShapeSingle: EventData.Data holds one item that is not a list.
type ShapeSingle struct {
	Container *ordereddict.Dict
	Item      any
}

// ShapeOpaque: EventData exists but carries no Data entry, or is plain text.
type ShapeOpaque struct {
	Event   *ordereddict.Dict
	Content any
}

// ShapeAbsent: there is no EventData. Content is the value under Event.
type ShapeAbsent struct {
	Content any
	// Missing is set when the document has no Event key at all.
	Missing bool
}

func (ShapeSequence) Name() string { return "sequence" }
func (ShapeSingle) Name() string   { return "single" }
func (ShapeOpaque) Name() string   { return "opaque" }
func (ShapeAbsent) Name() string   { return "absent" }

func (ShapeSequence) isPayloadShape() {}
func (ShapeSingle) isPayloadShape()   {}
func (ShapeOpaque) isPayloadShape()   {}
func (ShapeAbsent) isPayloadShape()   {}

// ClassifyPayload inspects tree once and reports which payload layout it has.
// An empty EventData element counts as absent.
func ClassifyPayload(tree *ordereddict.Dict) PayloadShape {
	ev, ok := tree.Get(model.KeyEvent)
	if !ok {
		return ShapeAbsent{Missing: true}
	}
	event, ok := ev.(*ordereddict.Dict)
	if !ok || event == nil {
		return ShapeAbsent{Content: ev}
	}

	payload, ok := event.Get(model.KeyEventData)
	if !ok || payload == nil {
		return ShapeAbsent{Content: event}
	}

	container, ok := payload.(*ordereddict.Dict)
	if !ok {
		return ShapeOpaque{Event: event, Content: payload}
	}

	data, ok := container.Get(model.KeyData)
	if !ok || data == nil {
		return ShapeOpaque{Event: event, Content: container}
	}
	if items, ok := data.([]any); ok {
		return ShapeSequence{Container: container, Items: items}
	}
	return ShapeSingle{Container: container, Item: data}
}

// FlattenPayload rewrites the payload of tree into one canonical
// representation and returns the resulting document, which is tree itself
// except when the Event content is hoisted.
func FlattenPayload(tree *ordereddict.Dict) (*ordereddict.Dict, PayloadShape, error) {
	shape := ClassifyPayload(tree)

	switch s := shape.(type) {
	case ShapeSequence:
		s.Container.Update(model.KeyData, flattenPairs(s.Items))
		return tree, shape, nil

	case ShapeSingle:
		raw, err := rawData(s.Item)
		if err != nil {
			return tree, shape, err
		}
		s.Container.Update(model.KeyRawData, raw)
		s.Container.Delete(model.KeyData)
		return tree, shape, nil

	case ShapeOpaque:
		raw, err := rawData(s.Content)
		if err != nil {
			return tree, shape, err
		}
		s.Event.Update(model.KeyRawData, raw)
		s.Event.Delete(model.KeyEventData)
		return tree, shape, nil

	case ShapeAbsent:
		if s.Missing {
			return tree, shape, fmt.Errorf("%w: document has no %s element", model.ErrStructure, model.KeyEvent)
		}
		if inner, ok := s.Content.(*ordereddict.Dict); ok {
			return hoist(tree, inner), shape, nil
		}
		raw, err := rawData(s.Content)
		if err != nil {
			return tree, shape, err
		}
		tree.Update(model.KeyRawData, raw)
		tree.Delete(model.KeyEvent)
		return tree, shape, nil

	default:
		return tree, shape, fmt.Errorf("%w: unhandled payload shape %T", model.ErrStructure, shape)
	}
}

// flattenPairs maps each pair's @Name to its text. A repeated name keeps the
// position of its first occurrence and the value of its last.
func flattenPairs(items []any) *ordereddict.Dict {
	out := ordereddict.NewDict()
	for i, item := range items {
		pair, ok := item.(*ordereddict.Dict)
		if !ok || pair == nil {
			logger.Debug("skipping payload item without a name", "position", i, "type", fmt.Sprintf("%T", item))
			continue
		}
		nv, ok := pair.Get(model.KeyName)
		name, isText := nv.(string)
		if !ok || !isText {
			logger.Debug("skipping payload item without a name", "position", i)
			continue
		}
		text, _ := model.Text(pair)
		out.Update(name, text)
	}
	return out
}

// hoist makes the Event content the document, keeping @timestamp first.
func hoist(tree, inner *ordereddict.Dict) *ordereddict.Dict {
	out := ordereddict.NewDict()
	if ts, ok := tree.Get(model.KeyTimestamp); ok {
		out.Set(model.KeyTimestamp, ts)
	}
	for _, k := range inner.Keys() {
		v, _ := inner.Get(k)
		out.Set(k, v)
	}
	return out
}

// rawData renders v losslessly: trees and lists as compact JSON, text as is.
func rawData(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		b, err := model.MarshalJSON(t)
		if err != nil {
			return "", fmt.Errorf("%w: serialize payload: %v", model.ErrStructure, err)
		}
		return string(b), nil
	}
}
