// Package sites decides which gauges are eligible for mapping: the
// restricted-sites list and the data-quality acceptance rules.
package sites

import (
	"bufio"
	"bytes"
	_ "embed"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed ahps_restricted_sites.csv
var packagedRestricted []byte

// Restriction scopes.
const (
	ScopeStage = "stage"
	ScopeFlow  = "flow"
	ScopeBoth  = "both"
)

// DefaultReason replaces an empty restricted_reason.
const DefaultReason = "Restricted site, the site will not be mapped but a reason has not been provided"

// Restricted is one restricted-sites entry.
type Restricted struct {
	LID    string `csv:"nws_lid"`
	Reason string `csv:"restricted_reason"`
	Scope  string `csv:"catfim_type"`
}

// Registry is a validated restricted-sites list.
type Registry struct {
	entries []Restricted
}

// LoadRestricted reads the list at path, or the packaged list when path is
// empty.
func LoadRestricted(path string) (*Registry, error) {
	if path == "" {
		return ParseRestricted(bytes.NewReader(packagedRestricted))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sites: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	reg, err := ParseRestricted(f)
	return reg, eris.Wrapf(err, "sites: load %s", path)
}

// ParseRestricted decodes a restricted-sites CSV. Comment lines are skipped,
// fields are trimmed and lids upper-cased. Rows whose lid is not 5
// characters are dropped, unknown scopes count as both, and a lid may only
// repeat with a different scope.
func ParseRestricted(r io.Reader) (*Registry, error) {
	var buf bytes.Buffer
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "sites: read restricted list")
	}

	var rows []Restricted
	if err := csvutil.Unmarshal(buf.Bytes(), &rows); err != nil {
		return nil, eris.Wrap(err, "sites: decode restricted list")
	}

	log := zap.L().With(zap.String("component", "sites"))
	type key struct{ lid, scope string }
	seen := make(map[key]bool)
	var unknown []string
	reg := &Registry{}
	for _, row := range rows {
		row.LID = strings.ToUpper(strings.TrimSpace(row.LID))
		row.Reason = strings.TrimSpace(row.Reason)
		row.Scope = strings.ToLower(strings.TrimSpace(row.Scope))

		if len(row.LID) != 5 {
			log.Warn("dropping restricted site with invalid lid", zap.String("lid", row.LID))
			continue
		}
		if row.Reason == "" {
			log.Warn("restricted site has no reason", zap.String("lid", row.LID))
			row.Reason = DefaultReason
		}
		switch row.Scope {
		case ScopeStage, ScopeFlow, ScopeBoth:
		default:
			unknown = append(unknown, row.LID+"="+row.Scope)
			row.Scope = ScopeBoth
		}
		k := key{row.LID, row.Scope}
		if seen[k] {
			log.Warn("dropping duplicate restricted site", zap.String("lid", row.LID), zap.String("scope", row.Scope))
			continue
		}
		seen[k] = true
		reg.entries = append(reg.entries, row)
	}
	if len(unknown) > 0 {
		log.Warn("restricted sites with unknown catfim_type treated as both", zap.Strings("sites", unknown))
	}
	return reg, nil
}

// ForScope returns the entries that apply to scope, ordered by lid.
func (r *Registry) ForScope(scope string) []Restricted {
	var out []Restricted
	for _, e := range r.entries {
		if e.Scope == scope || e.Scope == ScopeBoth {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LID < out[j].LID })
	return out
}

// Lookup returns the reason lid is restricted under scope. The first
// matching entry wins.
func (r *Registry) Lookup(lid, scope string) (string, bool) {
	if r == nil {
		return "", false
	}
	lid = strings.ToUpper(strings.TrimSpace(lid))
	for _, e := range r.entries {
		if e.LID == lid && (e.Scope == scope || e.Scope == ScopeBoth) {
			return e.Reason, true
		}
	}
	return "", false
}

// Len is the number of valid entries.
func (r *Registry) Len() int { return len(r.entries) }
