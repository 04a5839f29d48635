package formula

import (
	"math"
)

// precedenceGroups is the fold order for the flattened binary-operator
// list: exponentiation first, comparisons last. Folding within a group
// is left to right.
var precedenceGroups = [][]string{
	{"^"},
	{"*", "/"},
	{"+", "-"},
	{"&"},
	{"=", "<>", "<", "<=", ">", ">="},
}

// foldBinary re-precedences a flat values/operators list: at each fold
// step values[i] and values[i+1] are rewritten with the operator's
// result and the operator is deleted.
func foldBinary(h host, values []Primitive, ops []string) Primitive {
	for _, group := range precedenceGroups {
		i := 0
		for i < len(ops) {
			if !contains(group, ops[i]) {
				i++
				continue
			}
			values[i] = applyInfix(h, ops[i], values[i], values[i+1])
			values = append(values[:i+1], values[i+2:]...)
			ops = append(ops[:i], ops[i+1:]...)
		}
	}
	return values[0]
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// applyInfix resolves both operands and dispatches on the operator.
// An error on either side propagates unchanged, left first.
func applyInfix(h host, op string, a, b Primitive) Primitive {
	av, aArr := extractRefValue(h, a)
	bv, bArr := extractRefValue(h, b)
	if e, ok := av.(*FormulaError); ok {
		return e
	}
	if e, ok := bv.(*FormulaError); ok {
		return e
	}
	switch op {
	case "+", "-", "*", "/", "^":
		return applyMath(op, av, aArr, bv, bArr)
	case "&":
		return applyConcat(av, aArr, bv, bArr)
	default:
		return applyCompare(op, av, aArr, bv, bArr)
	}
}

func applyMath(op string, a Primitive, aArr bool, b Primitive, bArr bool) Primitive {
	x, err := acceptNumber(a, aArr, true)
	if err != nil {
		return err
	}
	y, err := acceptNumber(b, bArr, true)
	if err != nil {
		return err
	}
	var r float64
	switch op {
	case "+":
		r = x + y
	case "-":
		r = x - y
	case "*":
		r = x * y
	case "/":
		if y == 0 {
			return ErrDiv0
		}
		r = x / y
	case "^":
		r = math.Pow(x, y)
	}
	return checkNumberResult(r)
}

func applyConcat(a Primitive, aArr bool, b Primitive, bArr bool) Primitive {
	return toText(collapseFirst(a, aArr)) + toText(collapseFirst(b, bArr))
}

// type ranks for cross-type comparison: bool > text > number
const (
	rankNumber = 1
	rankText   = 2
	rankBool   = 3
)

func applyCompare(op string, a Primitive, aArr bool, b Primitive, bArr bool) Primitive {
	av := collapseFirst(a, aArr)
	bv := collapseFirst(b, bArr)
	if av == nil {
		av = 0.0
	}
	if bv == nil {
		bv = 0.0
	}
	ra, ok := compareRank(av)
	if !ok {
		return ErrValue
	}
	rb, ok := compareRank(bv)
	if !ok {
		return ErrValue
	}
	if ra != rb {
		// cross-type: equality is always false, inequality always true,
		// relational operators follow the type ordering
		switch op {
		case "=":
			return false
		case "<>":
			return true
		}
		return relation(op, compareInts(ra, rb))
	}
	var cmp int
	switch x := av.(type) {
	case float64:
		y := bv.(float64)
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case string:
		y := bv.(string)
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case bool:
		cmp = compareInts(boolInt(x), boolInt(bv.(bool)))
	}
	return relation(op, cmp)
}

func compareRank(v Primitive) (int, bool) {
	switch v.(type) {
	case float64:
		return rankNumber, true
	case string:
		return rankText, true
	case bool:
		return rankBool, true
	}
	return 0, false
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func relation(op string, cmp int) Primitive {
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
	return ErrValue
}

// collapseFirst reduces an array operand to its first element
func collapseFirst(v Primitive, isArr bool) Primitive {
	if !isArr {
		return v
	}
	if arr, ok := v.([][]Primitive); ok {
		if len(arr) > 0 && len(arr[0]) > 0 {
			return arr[0][0]
		}
		return ErrValue
	}
	return v
}

// applySign applies a folded run of prefix signs. A minus count of
// zero means the run was all '+', which leaves non-numeric values
// unchanged.
func applySign(h host, v Primitive, minusCount int) Primitive {
	val, isArr := extractRefValue(h, v)
	if e, ok := val.(*FormulaError); ok {
		return e
	}
	val = collapseFirst(val, isArr)
	if minusCount == 0 {
		if f, err := acceptNumber(val, false, true); err == nil {
			return f
		}
		return val
	}
	f, err := acceptNumber(val, false, true)
	if err != nil {
		return err
	}
	if minusCount%2 == 1 {
		f = -f
	}
	return checkNumberResult(f)
}

// applyPercent coerces to number and divides by 100
func applyPercent(h host, v Primitive) Primitive {
	val, isArr := extractRefValue(h, v)
	if e, ok := val.(*FormulaError); ok {
		return e
	}
	f, err := acceptNumber(val, isArr, true)
	if err != nil {
		return err
	}
	return checkNumberResult(f / 100)
}

// refBox is the running bounding box of the intersection operator
type refBox struct {
	sheet string
	rows  rangeAxis
	cols  rangeAxis
}

func boxOf(v Primitive) (refBox, *FormulaError) {
	switch ref := v.(type) {
	case *CellRef:
		return refBox{
			sheet: ref.Sheet,
			rows:  rangeAxis{lo: ref.Row, hi: ref.Row},
			cols:  rangeAxis{lo: ref.Col, hi: ref.Col},
		}, nil
	case *RangeRef:
		return refBox{
			sheet: ref.Sheet,
			rows:  rangeAxis{lo: ref.FromRow, hi: ref.ToRow, absent: ref.WholeColumn()},
			cols:  rangeAxis{lo: ref.FromCol, hi: ref.ToCol, absent: ref.WholeRow()},
		}, nil
	case *FormulaError:
		return refBox{}, ref
	}
	return refBox{}, ErrValue
}

// applyIntersect shrinks a bounding box over the operand references.
// Disjoint operands or differing sheets yield #NULL!; two whole-row or
// two whole-column operands cannot form a finite box and are rejected.
// A 1x1 result collapses to a cell reference.
func applyIntersect(parts []Primitive) Primitive {
	box, err := boxOf(parts[0])
	if err != nil {
		return err
	}
	for _, part := range parts[1:] {
		next, err := boxOf(part)
		if err != nil {
			return err
		}
		if box.rows.absent && next.rows.absent {
			return NewFormulaError(KindError, "cannot intersect two whole-column references")
		}
		if box.cols.absent && next.cols.absent {
			return NewFormulaError(KindError, "cannot intersect two whole-row references")
		}
		if box.sheet != next.sheet {
			if box.sheet != "" && next.sheet != "" {
				return ErrNull
			}
			if box.sheet == "" {
				box.sheet = next.sheet
			}
		}
		var ok bool
		box.rows, ok = overlapAxis(box.rows, next.rows, MaxRow)
		if !ok {
			return ErrNull
		}
		box.cols, ok = overlapAxis(box.cols, next.cols, MaxColumn)
		if !ok {
			return ErrNull
		}
	}
	out := NewRangeRef(box.sheet, box.rows.lo, box.cols.lo, box.rows.hi, box.cols.hi)
	if box.rows.absent {
		out.FromRow, out.ToRow = 0, 0
	}
	if box.cols.absent {
		out.FromCol, out.ToCol = 0, 0
	}
	if cell := out.SingleCell(); cell != nil {
		return cell
	}
	return out
}

// overlapAxis intersects two spans, materializing an absent side
// against a concrete one.
func overlapAxis(a, b rangeAxis, max int) (rangeAxis, bool) {
	if a.absent && b.absent {
		return rangeAxis{absent: true}, true
	}
	if a.absent {
		a = rangeAxis{lo: 1, hi: max}
	}
	if b.absent {
		b = rangeAxis{lo: 1, hi: max}
	}
	lo, hi := a.lo, a.hi
	if b.lo > lo {
		lo = b.lo
	}
	if b.hi < hi {
		hi = b.hi
	}
	if lo > hi {
		return rangeAxis{}, false
	}
	return rangeAxis{lo: lo, hi: hi}, true
}
