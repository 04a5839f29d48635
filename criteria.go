package formula

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Criteria is a parsed SUMIF/COUNTIF-style condition: an optional
// operator prefix followed by a literal. Text with wildcards matches
// through a compiled pattern.
type Criteria struct {
	Op    string
	Value Primitive
	re    *regexp.Regexp
}

var criteriaOps = []string{"<>", "<=", ">=", "=", "<", ">"}

// ParseCriteria parses a criteria string. TRUE/FALSE become booleans,
// #...! spellings errors, numeric text numbers, everything else text.
func ParseCriteria(s string) Criteria {
	op := "="
	rest := s
	for _, prefix := range criteriaOps {
		if strings.HasPrefix(s, prefix) {
			op = prefix
			rest = s[len(prefix):]
			break
		}
	}
	c := Criteria{Op: op}
	switch strings.ToUpper(rest) {
	case "TRUE":
		c.Value = true
		return c
	case "FALSE":
		c.Value = false
		return c
	}
	if e, ok := errorFromCode(rest); ok {
		c.Value = e
		return c
	}
	if f, err := strconv.ParseFloat(rest, 64); err == nil {
		c.Value = f
		return c
	}
	c.Value = rest
	if (op == "=" || op == "<>") && HasWildcard(rest) {
		c.re = WildcardToRegexp(rest)
	}
	return c
}

// CriteriaFor builds a Criteria from any primitive: strings are parsed
// through the criteria grammar, other scalars compare for equality.
func CriteriaFor(v Primitive) Criteria {
	if s, ok := v.(string); ok {
		return ParseCriteria(s)
	}
	return Criteria{Op: "=", Value: v}
}

// Match reports whether a cell value satisfies the criteria. Text
// comparison is case-insensitive; mismatched types only satisfy "<>".
func (c Criteria) Match(v Primitive) bool {
	if c.re != nil {
		s, ok := v.(string)
		matched := ok && c.re.MatchString(s)
		if c.Op == "<>" {
			return !matched
		}
		return matched
	}
	switch want := c.Value.(type) {
	case float64:
		got, ok := v.(float64)
		if !ok {
			return c.Op == "<>"
		}
		return relationHolds(c.Op, compareFloats(got, want))
	case string:
		got, ok := v.(string)
		if !ok {
			if want == "" && v == nil {
				return c.Op == "="
			}
			return c.Op == "<>"
		}
		return relationHolds(c.Op, compareFolded(got, want))
	case bool:
		got, ok := v.(bool)
		if !ok {
			return c.Op == "<>"
		}
		return relationHolds(c.Op, compareInts(boolInt(got), boolInt(want)))
	case *FormulaError:
		got, ok := v.(*FormulaError)
		if !ok {
			return c.Op == "<>"
		}
		if c.Op == "<>" {
			return !got.EqualTo(want)
		}
		return c.Op == "=" && got.EqualTo(want)
	}
	return false
}

func relationHolds(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareFolded compares text case-insensitively via Unicode case
// folding.
func compareFolded(a, b string) int {
	fa := cases.Fold().String(a)
	fb := cases.Fold().String(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
}
