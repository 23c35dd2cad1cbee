// Package catkey encodes and parses the category key carried in extent and
// library filenames, e.g. "action_24p0ft", "major_30p5fti" or "moderate".
package catkey

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catfim/internal/model"
)

// ErrInvalidKey is returned for names that do not follow the key grammar.
var ErrInvalidKey = eris.New("catkey: invalid category key")

var keyPattern = regexp.MustCompile(`^(action|minor|moderate|major|record)(?:_(\d+)p(\d+)ft(i?))?$`)

// Key identifies one inundation product of a gauge.
type Key struct {
	Category model.Category
	// Stage is only meaningful when HasStage is set (stage-based products).
	Stage    float64
	HasStage bool
	Interval bool
}

// Flow returns the key of a flow-based product.
func Flow(c model.Category) Key {
	return Key{Category: c}
}

// Stage returns the key of a stage-based product.
func Stage(c model.Category, stage float64, interval bool) Key {
	return Key{Category: c, Stage: stage, HasStage: true, Interval: interval}
}

// String renders the key.
func (k Key) String() string {
	if !k.HasStage {
		return string(k.Category)
	}
	var b strings.Builder
	b.WriteString(string(k.Category))
	b.WriteByte('_')
	b.WriteString(FormatStage(k.Stage))
	b.WriteString("ft")
	if k.Interval {
		b.WriteByte('i')
	}
	return b.String()
}

// IntervalStage returns the interval stage and whether the key is an
// interval product.
func (k Key) IntervalStage() (float64, bool) {
	if !k.HasStage || !k.Interval {
		return 0, false
	}
	return k.Stage, true
}

// FormatStage writes a stage with "p" as the decimal separator and at least
// one fractional digit: 24 -> "24p0", 30.5 -> "30p5".
func FormatStage(stage float64) string {
	s := strconv.FormatFloat(stage, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return strings.Replace(s, ".", "p", 1)
}

// Parse reads a key produced by Key.String.
func Parse(s string) (Key, error) {
	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return Key{}, eris.Wrapf(ErrInvalidKey, "%q", s)
	}
	k := Key{Category: model.Category(m[1])}
	if m[2] == "" {
		return k, nil
	}
	v, err := strconv.ParseFloat(m[2]+"."+m[3], 64)
	if err != nil {
		return Key{}, eris.Wrapf(ErrInvalidKey, "%q: %v", s, err)
	}
	k.Stage = v
	k.HasStage = true
	k.Interval = m[4] == "i"
	return k, nil
}
