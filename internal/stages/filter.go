package stages

import (
	"strings"

	"github.com/Velocidex/ordereddict"

	"github.com/fryguy04/evtx-to-json/internal/config"
	"github.com/fryguy04/evtx-to-json/internal/model"
)

// Redacted replaces the values of redacted payload keys.
const Redacted = "[REDACTED]"

// FilterStage applies event ID/channel/provider allowlists and redacts
// payload fields.
type FilterStage struct {
	eventIDs  map[string]struct{}
	channels  map[string]struct{}
	providers map[string]struct{}
	redact    map[string]struct{}
}

// NewFilterStage constructs a FilterStage from config.
func NewFilterStage(cfg config.Config) *FilterStage {
	return &FilterStage{
		eventIDs:  buildExactSet(cfg.FilterEventIDs),
		channels:  buildLowerSet(cfg.FilterChannels),
		providers: buildLowerSet(cfg.FilterProviders),
		redact:    buildExactSet(cfg.RedactKeys),
	}
}

// Apply returns true when the event should be written, redacting payload
// values in place. The reason names the rule that dropped the event.
func (f *FilterStage) Apply(e *model.Event) (bool, string) {
	sys := systemOf(e.Doc)

	if len(f.eventIDs) > 0 {
		id, _ := model.StringAt(sys, model.KeyEventID)
		if _, ok := f.eventIDs[id]; !ok {
			return false, "event_id"
		}
	}
	if len(f.channels) > 0 {
		ch, _ := model.StringAt(sys, model.KeyChannel)
		if !containsLower(f.channels, ch) {
			return false, "channel"
		}
	}
	if len(f.providers) > 0 && !containsLower(f.providers, providerName(sys)) {
		return false, "provider"
	}

	if len(f.redact) > 0 {
		f.redactPayload(e.Doc)
	}
	return true, ""
}

// redactPayload masks flattened EventData.Data values.
func (f *FilterStage) redactPayload(doc *ordereddict.Dict) {
	data, ok := model.TreeAt(doc, model.KeyEvent, model.KeyEventData, model.KeyData)
	if !ok {
		data, ok = model.TreeAt(doc, model.KeyEventData, model.KeyData)
	}
	if !ok {
		return
	}
	// Keys aliases the dict's own slice, so iterate a copy.
	for _, k := range append([]string(nil), data.Keys()...) {
		if _, hit := f.redact[k]; hit {
			data.Update(k, Redacted)
		}
	}
}

// systemOf finds the System block of a normalized document, which sits at the
// top level when the Event content was hoisted.
func systemOf(doc *ordereddict.Dict) *ordereddict.Dict {
	if sys, ok := model.TreeAt(doc, model.KeyEvent, model.KeySystem); ok {
		return sys
	}
	sys, _ := model.TreeAt(doc, model.KeySystem)
	return sys
}

func providerName(sys *ordereddict.Dict) string {
	if name, ok := model.StringAt(sys, model.KeyProvider, model.KeyName); ok {
		return name
	}
	name, _ := model.StringAt(sys, model.KeyProvider)
	return name
}

func buildLowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}

func buildExactSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

func containsLower(set map[string]struct{}, v string) bool {
	_, ok := set[strings.ToLower(v)]
	return ok
}
