package model

import "strings"

// Category is a flood magnitude. The zero value is not a valid category.
type Category string

// The five flood categories in ascending severity.
const (
	Action   Category = "action"
	Minor    Category = "minor"
	Moderate Category = "moderate"
	Major    Category = "major"
	Record   Category = "record"
)

// Categories lists every category in ascending severity.
var Categories = []Category{Action, Minor, Moderate, Major, Record}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Rank returns the position of c in Categories, or -1.
func (c Category) Rank() int {
	for i, known := range Categories {
		if c == known {
			return i
		}
	}
	return -1
}

func (c Category) String() string { return string(c) }

// Mode selects whether categories are resolved from stages or flows.
type Mode string

const (
	StageBased Mode = "stage_based"
	FlowBased  Mode = "flow_based"
)

// Scope is the restricted-sites label a mode filters on.
func (m Mode) Scope() string {
	if m == StageBased {
		return "stage"
	}
	return "flow"
}
