package stages

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Velocidex/ordereddict"

	"github.com/fryguy04/evtx-to-json/internal/model"
)

const (
	systemTimeLayout = "2006-01-02 15:04:05"
	canonicalLayout  = "2006-01-02T15:04:05"
)

// Creation times come in two forms: with and without up to six fractional
// digits. Anything else is a format error.
var systemTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(\.\d{1,6})?$`)

// NormalizeTimestamp converts a record creation time into the canonical form
// YYYY-MM-DDTHH:MM:SS[.ffffff]. The fraction is written with six digits and
// only when the microsecond part is non-zero. The value is not shifted between
// zones.
func NormalizeTimestamp(raw string) (string, error) {
	if !systemTimePattern.MatchString(raw) {
		return "", fmt.Errorf("%w: unrecognized creation time %q", model.ErrFormat, raw)
	}

	// time.Parse accepts a trailing fraction after the seconds field even
	// when the layout has none.
	t, err := time.Parse(systemTimeLayout, raw)
	if err != nil {
		return "", fmt.Errorf("%w: creation time %q: %v", model.ErrFormat, raw, err)
	}

	out := t.Format(canonicalLayout)
	if micro := t.Nanosecond() / int(time.Microsecond); micro != 0 {
		out += fmt.Sprintf(".%06d", micro)
	}
	return out, nil
}

// ApplyTimestamp normalizes Event.System.TimeCreated.@SystemTime in place and
// copies the result to the top-level @timestamp key.
func ApplyTimestamp(tree *ordereddict.Dict) error {
	created, ok := model.TreeAt(tree, model.KeyEvent, model.KeySystem, model.KeyTimeCreated)
	if !ok {
		return fmt.Errorf("%w: missing %s.%s.%s", model.ErrStructure, model.KeyEvent, model.KeySystem, model.KeyTimeCreated)
	}

	v, ok := created.Get(model.KeySystemTime)
	if !ok {
		return fmt.Errorf("%w: %s has no %s", model.ErrStructure, model.KeyTimeCreated, model.KeySystemTime)
	}
	raw, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %s is %T, want text", model.ErrStructure, model.KeySystemTime, v)
	}

	ts, err := NormalizeTimestamp(raw)
	if err != nil {
		return err
	}

	tree.Update(model.KeyTimestamp, ts)
	created.Update(model.KeySystemTime, ts)
	return nil
}
