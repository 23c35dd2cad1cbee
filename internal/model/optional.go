package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// OptFloat is a number the remote services may send as null, "", a JSON
// number or a numeric string.
type OptFloat struct {
	Value float64
	Valid bool
}

// Float returns a valid OptFloat.
func Float(v float64) OptFloat { return OptFloat{Value: v, Valid: true} }

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptFloat) UnmarshalJSON(b []byte) error {
	*o = OptFloat{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "optfloat: decode string")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Non-numeric text is treated as missing.
			return nil
		}
		*o = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return eris.Wrap(err, "optfloat: decode number")
	}
	*o = Float(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalCSV implements csvutil.Unmarshaler. Empty and non-numeric
// cells decode as missing.
func (o *OptFloat) UnmarshalCSV(b []byte) error {
	*o = OptFloat{}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*o = Float(v)
	}
	return nil
}

// MarshalCSV implements csvutil.Marshaler.
func (o OptFloat) MarshalCSV() ([]byte, error) {
	return []byte(o.String()), nil
}

// Positive reports whether the value is present and greater than zero.
func (o OptFloat) Positive() bool { return o.Valid && o.Value > 0 }

// String renders the value, or "" when absent.
func (o OptFloat) String() string {
	if !o.Valid {
		return ""
	}
	return strconv.FormatFloat(o.Value, 'f', -1, 64)
}

// FlexString accepts either a JSON string or a JSON number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "flexstring: decode")
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Wrap(err, "flexstring: decode number")
	}
	*f = FlexString(n.String())
	return nil
}
