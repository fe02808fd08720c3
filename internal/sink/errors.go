package sink

import (
	"fmt"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

// Sink failures all count as destination I/O errors and end the file.
var (
	ErrOpenSink   = fmt.Errorf("%w: open sink", model.ErrIO)
	ErrWriteSink  = fmt.Errorf("%w: write sink", model.ErrIO)
	ErrRotateSink = fmt.Errorf("%w: rotate sink", model.ErrIO)
)
