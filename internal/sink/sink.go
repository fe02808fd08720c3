// Package sink writes normalized events to their destination, one record per
// Write and in the order received.
package sink

import "github.com/fryguy04/evtx-to-json/internal/model"

// Writer receives normalized events.
type Writer interface {
	Write(e *model.Event) error
	Close() error
}
