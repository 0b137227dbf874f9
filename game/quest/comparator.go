package quest

import (
	"fmt"
	"strings"
)

// Comparator is the predicate a Requirement applies to an attribute and its
// reference value.
type Comparator uint8

const (
	// CompareNone always holds.
	CompareNone Comparator = iota
	CompareLess
	CompareGreater
	CompareEqual
	CompareNotEqual
	// CompareNot negates an existence check; it is not a scalar comparison.
	CompareNot
)

var comparatorNames = map[Comparator]string{
	CompareNone:     "none",
	CompareLess:     "less",
	CompareGreater:  "greater",
	CompareEqual:    "equal",
	CompareNotEqual: "not_equal",
	CompareNot:      "not",
}

func (c Comparator) String() string {
	if s, ok := comparatorNames[c]; ok {
		return s
	}
	return fmt.Sprintf("comparator(%d)", uint8(c))
}

// Compare applies c to (a, b). CompareNot never holds as a scalar comparison.
func (c Comparator) Compare(a, b int64) bool {
	switch c {
	case CompareNone:
		return true
	case CompareLess:
		return a < b
	case CompareGreater:
		return a > b
	case CompareEqual:
		return a == b
	case CompareNotEqual:
		return a != b
	default:
		return false
	}
}

// scalar reports whether c may be used with Compare.
func (c Comparator) scalar() bool {
	return c <= CompareNotEqual
}

// ParseComparator accepts the names above and the symbols <, >, =, ==, !=.
// The empty string is CompareNone.
func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "always":
		return CompareNone, nil
	case "<", "less":
		return CompareLess, nil
	case ">", "greater":
		return CompareGreater, nil
	case "=", "==", "equal":
		return CompareEqual, nil
	case "!=", "<>", "not_equal":
		return CompareNotEqual, nil
	case "!", "not":
		return CompareNot, nil
	}
	return CompareNone, fmt.Errorf("unknown comparator %q: %w", s, ErrInvalidDefinition)
}
