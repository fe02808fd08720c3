// Package xmltree turns the XML text of one event record into an ordered
// key/value tree.
//
// The layout matches what Python's xmltodict produces, which is what the
// normalizer keys on:
//
//	<Data Name="User">alice</Data>  ->  {"Data": {"@Name": "User", "#text": "alice"}}
//	<Channel>Security</Channel>     ->  {"Channel": "Security"}
//	<Opcode/>                       ->  {"Opcode": nil}
//
// Repeated siblings collapse into a []any in document order.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Velocidex/ordereddict"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	AttrPrefix = "@"
	TextKey    = "#text"
)

// ErrEmpty is returned when the input holds no element.
var ErrEmpty = errors.New("xmltree: no root element")

type frame struct {
	name     string
	attrs    *ordereddict.Dict
	children *ordereddict.Dict
	text     strings.Builder
}

// Build parses data and returns {rootName: content}.
func Build(data []byte) (*ordereddict.Dict, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.CharsetReader = charsetReader

	var stack []*frame
	var root *ordereddict.Dict

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmltree: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, fmt.Errorf("xmltree: unexpected second root element %q", t.Name.Local)
			}
			f := &frame{name: t.Name.Local, children: ordereddict.NewDict()}
			if len(t.Attr) > 0 {
				f.attrs = ordereddict.NewDict()
				for _, a := range t.Attr {
					f.attrs.Set(AttrPrefix+attrName(a.Name), a.Value)
				}
			}
			stack = append(stack, f)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("xmltree: unbalanced end element %q", t.Name.Local)
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			value := f.value()

			if len(stack) == 0 {
				root = ordereddict.NewDict().Set(f.name, value)
				continue
			}
			appendChild(stack[len(stack)-1].children, f.name, value)
		}
	}

	if root == nil {
		return nil, ErrEmpty
	}
	return root, nil
}

// charsetReader decodes records whose prolog declares a non-UTF-8 charset.
func charsetReader(label string, r io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("xmltree: charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("xmltree: charset %q is not supported", label)
	}
	return enc.NewDecoder().Reader(r), nil
}

// value folds a closed element into its tree representation.
func (f *frame) value() any {
	text := strings.TrimSpace(f.text.String())

	if f.attrs == nil && f.children.Len() == 0 {
		if text == "" {
			return nil
		}
		return text
	}

	out := ordereddict.NewDict()
	if f.attrs != nil {
		for _, k := range f.attrs.Keys() {
			v, _ := f.attrs.Get(k)
			out.Set(k, v)
		}
	}
	for _, k := range f.children.Keys() {
		v, _ := f.children.Get(k)
		out.Set(k, v)
	}
	if text != "" {
		out.Set(TextKey, text)
	}
	return out
}

// appendChild stores value under name, turning repeated names into a list
// that stays at the position of the first occurrence. Element values are never lists themselves, so an existing []any can only
// come from an earlier repetition.
func appendChild(children *ordereddict.Dict, name string, value any) {
	existing, ok := children.Get(name)
	if !ok {
		children.Set(name, value)
		return
	}
	if list, ok := existing.([]any); ok {
		children.Update(name, append(list, value))
		return
	}
	children.Update(name, []any{existing, value})
}

// attrName keeps namespace declarations recognizable and drops resolved
// namespace URLs from other attributes.
func attrName(n xml.Name) string {
	if n.Space == "xmlns" {
		return "xmlns:" + n.Local
	}
	return n.Local
}
