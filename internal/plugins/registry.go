package plugins

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fryguy04/evtx-to-json/internal/config"
	"github.com/fryguy04/evtx-to-json/internal/model"
	"github.com/fryguy04/evtx-to-json/internal/stages"
)

// Transform applies a mutation to a normalized event and can drop it with a
// reason. A returned error fails the record.
type Transform func(*model.Event) (drop bool, reason string, err error)

var transformRegistry = map[string]func(config.Config) Transform{}

// RegisterTransform registers a transform factory by name.
func RegisterTransform(name string, builder func(config.Config) Transform) {
	transformRegistry[strings.ToLower(name)] = builder
}

// Names lists the registered transforms.
func Names() []string {
	names := make([]string, 0, len(transformRegistry))
	for name := range transformRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildTransforms constructs the transforms specified in config.Transforms.
func BuildTransforms(cfg config.Config) ([]Transform, error) {
	var result []Transform
	for _, name := range cfg.Transforms {
		builder, ok := transformRegistry[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown transform %q (known: %s)", name, strings.Join(Names(), ", "))
		}
		result = append(result, builder(cfg))
	}
	return result, nil
}

func init() {
	// Built-in filter+redact plugin using FilterStage.
	RegisterTransform("filter_redact", func(cfg config.Config) Transform {
		fs := stages.NewFilterStage(cfg)
		return func(e *model.Event) (bool, string, error) {
			if ok, reason := fs.Apply(e); !ok {
				return true, reason, nil
			}
			return false, "", nil
		}
	})

	// strip_xmlns removes the schema namespace attribute from the Event
	// element.
	RegisterTransform("strip_xmlns", func(config.Config) Transform {
		return func(e *model.Event) (bool, string, error) {
			if ev, ok := model.TreeAt(e.Doc, model.KeyEvent); ok {
				ev.Delete("@xmlns")
			} else {
				e.Doc.Delete("@xmlns")
			}
			return false, "", nil
		}
	})
}
