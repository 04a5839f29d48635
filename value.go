package formula

import (
	"math"
	"strconv"
	"strings"
)

// Primitive represents the dynamic value types of the evaluation algebra.
// types:
//   - float64: numeric values
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: blank cells and omitted values
//   - *FormulaError: error values (#DIV/0!, #VALUE!, etc.)
//   - [][]Primitive: rectangular 2-D arrays, rows >= 1
//   - *CellRef, *RangeRef: references, prior to retrieval
//   - *Collection: union of references, only legal as an argument
type Primitive any

// Argument is the shape a function receives for each parameter: the
// value after any dereferencing, the raw reference when one was given,
// and flags distinguishing a literal zero from an omitted slot.
type Argument struct {
	Value      Primitive
	Ref        Primitive // *CellRef or *RangeRef when the operand was a reference
	IsArray    bool
	IsCellRef  bool
	IsRangeRef bool
	Omitted    bool
}

// host is what the parser recursion evaluates against: the real engine
// retrieves values and calls functions, the dependency collector records
// references and returns stubs.
type host interface {
	cellValue(ref *CellRef) Primitive
	rangeValue(ref *RangeRef) [][]Primitive
	variable(name string) Primitive
	callFunction(name string, args []Argument) Primitive
}

// retrieveRef resolves a reference through the host: a range yields its
// 2-D value array, a cell its scalar. Anything else passes through.
func retrieveRef(h host, v Primitive) Primitive {
	switch r := v.(type) {
	case *RangeRef:
		return h.rangeValue(r)
	case *CellRef:
		return h.cellValue(r)
	}
	return v
}

// extractRefValue resolves an operand for an operator: references are
// retrieved, and the second return reports whether the result is an
// array.
func extractRefValue(h host, v Primitive) (Primitive, bool) {
	switch r := v.(type) {
	case *RangeRef:
		return h.rangeValue(r), true
	case *CellRef:
		return h.cellValue(r), false
	case [][]Primitive:
		return r, true
	}
	return v, false
}

// checkFormulaResult normalizes the final value of an evaluation before
// it is handed to the caller.
func checkFormulaResult(h host, result Primitive, allowReturnArray bool) Primitive {
	switch v := result.(type) {
	case float64:
		return checkNumberResult(v)
	case *FormulaError:
		return v
	case *CellRef:
		return checkFormulaResult(h, h.cellValue(v), allowReturnArray)
	case *RangeRef:
		if allowReturnArray {
			return h.rangeValue(v)
		}
		// a single-column range collapses to its top cell
		if v.FromCol != 0 && v.FromCol == v.ToCol {
			fromRow, fromCol, _, _ := v.Bounds()
			return checkFormulaResult(h, h.cellValue(&CellRef{Sheet: v.Sheet, Row: fromRow, Col: fromCol}), false)
		}
		return ErrValue
	case [][]Primitive:
		if allowReturnArray {
			return v
		}
		if len(v) > 0 && len(v[0]) > 0 {
			return checkFormulaResult(h, v[0][0], false)
		}
		return ErrValue
	case *Collection:
		// a stray union is never a formula result
		return ErrValue
	}
	return result
}

// checkNumberResult maps the float special cases onto error values and
// collapses negative zero.
func checkNumberResult(v float64) Primitive {
	if math.IsNaN(v) {
		return ErrValue
	}
	if math.IsInf(v, 0) {
		return ErrNum
	}
	if v == 0 {
		return 0.0 // collapse -0
	}
	return v
}

// acceptNumber coerces an operand value to a number for the arithmetic
// operators: booleans map to 1/0 (unless disabled), decimal strings
// parse, blanks count as zero, arrays contribute their first element.
func acceptNumber(v Primitive, isArray bool, allowBoolean bool) (float64, *FormulaError) {
	if isArray {
		if arr, ok := v.([][]Primitive); ok {
			if len(arr) == 0 || len(arr[0]) == 0 {
				return 0, ErrValue
			}
			v = arr[0][0]
		}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case bool:
		if !allowBoolean {
			return 0, ErrValue
		}
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		if n == "" {
			return 0, ErrValue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, ErrValue
		}
		return f, nil
	case nil:
		return 0, nil
	case *FormulaError:
		return 0, n
	case [][]Primitive:
		// without the array flag only a 1x1 array is acceptable
		if len(n) == 1 && len(n[0]) == 1 {
			return acceptNumber(n[0][0], false, allowBoolean)
		}
		return 0, ErrValue
	}
	return 0, ErrValue
}

// toText renders a value the way the concatenation operator does:
// blanks become empty text and booleans serialize as TRUE/FALSE.
func toText(v Primitive) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return formatNumber(t)
	case *FormulaError:
		return t.Code()
	}
	return ""
}

// formatNumber renders a float the way cells display it
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'G', -1, 64)
}

// isTruthy evaluates a value as a condition: nonzero numbers and TRUE
// are truthy, blanks falsy.
func isTruthy(v Primitive) (bool, *FormulaError) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case nil:
		return false, nil
	case string:
		switch strings.ToUpper(t) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, ErrValue
	case *FormulaError:
		return false, t
	case [][]Primitive:
		if len(t) > 0 && len(t[0]) > 0 {
			return isTruthy(t[0][0])
		}
		return false, ErrValue
	}
	return false, ErrValue
}
