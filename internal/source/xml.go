package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

// KindXML reads XML exports such as `wevtutil qe <log> /f:xml [/e:Events]`:
// either a wrapping root with <Event> children or bare concatenated <Event>
// documents.
const KindXML = "xml"

const eventElement = "Event"

func init() {
	Register(KindXML, func(path string, _ Options) (Source, error) {
		return OpenXML(path)
	})
}

// XMLSource frames <Event> elements out of an XML export.
type XMLSource struct {
	path  string
	data  []byte
	dec   *xml.Decoder
	index int
}

// OpenXML reads the whole export. UTF-16 exports (with BOM) are transcoded to
// UTF-8 first.
func OpenXML(path string) (*XMLSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrDecode, path, err)
	}
	return NewXML(path, raw)
}

// NewXML frames records from an in-memory export; path is used for handles.
func NewXML(path string, raw []byte) (*XMLSource, error) {
	data, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: transcode %s: %v", model.ErrDecode, path, err)
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	// The bytes are UTF-8 by now whatever the prolog declares.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	return &XMLSource{path: path, data: data, dec: dec}, nil
}

// Next returns the raw text of the next <Event> element.
func (s *XMLSource) Next(ctx context.Context) (model.RawRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.RawRecord{}, err
		}

		start := s.dec.InputOffset()
		tok, err := s.dec.Token()
		if err == io.EOF {
			return model.RawRecord{}, io.EOF
		}
		if err != nil {
			return model.RawRecord{}, fmt.Errorf("%w: %s at offset %d: %v", model.ErrDecode, s.path, start, err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != eventElement {
			continue
		}

		if err := s.dec.Skip(); err != nil {
			return model.RawRecord{}, fmt.Errorf("%w: %s: record at offset %d: %v", model.ErrDecode, s.path, start, err)
		}
		end := s.dec.InputOffset()

		s.index++
		return model.RawRecord{
			XML: s.data[start:end],
			Handle: model.Handle{
				Path:   s.path,
				Index:  s.index,
				Offset: start,
			},
		}, nil
	}
}

// Close releases the buffered export.
func (s *XMLSource) Close() error {
	s.data = nil
	return nil
}
