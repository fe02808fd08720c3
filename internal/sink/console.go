package sink

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

// Console pretty-prints each event to a stream. Nothing is persisted.
type Console struct {
	enc *json.Encoder
}

// NewConsole writes indented JSON to w. Closing it leaves w open.
func NewConsole(w io.Writer) *Console {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return &Console{enc: enc}
}

func (c *Console) Write(e *model.Event) error {
	if err := c.enc.Encode(e); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteSink, err)
	}
	return nil
}

func (c *Console) Close() error {
	return nil
}
