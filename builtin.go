package formula

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Clock provides time to the volatile date functions, injectable for
// testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// RandomGenerator provides random numbers for RAND, injectable for
// testing
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses the standard library's rand package
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// Excel date/time constants
const (
	// Excel epoch in Unix milliseconds: December 30, 1899 00:00:00 UTC
	EXCEL_EPOCH_MS = -2209161600000
	MS_PER_DAY     = 86400000
)

// The default registry: enough of the catalogue to exercise every
// protocol class. Hosts override or extend it through Config.

func builtinFunctions() map[string]Function {
	return map[string]Function{
		"SUM":         fnSum,
		"AVERAGE":     fnAverage,
		"COUNT":       fnCount,
		"COUNTA":      fnCountA,
		"COUNTIF":     fnCountIf,
		"MIN":         fnMin,
		"MAX":         fnMax,
		"MEDIAN":      fnMedian,
		"MODE":        fnMode,
		"PRODUCT":     fnProduct,
		"ABS":         fnAbs,
		"ROUND":       fnRound,
		"FLOOR":       fnFloor,
		"CEILING":     fnCeiling,
		"SQRT":        fnSqrt,
		"POWER":       fnPower,
		"MOD":         fnMod,
		"PI":          fnPi,
		"AND":         fnAnd,
		"OR":          fnOr,
		"XOR":         fnXor,
		"NOT":         fnNot,
		"TRUE":        fnTrue,
		"FALSE":       fnFalse,
		"IFERROR":     fnIfError,
		"IFNA":        fnIfNA,
		"CONCATENATE": fnConcatenate,
		"CONCAT":      fnConcat,
		"LEN":         fnLen,
		"UPPER":       fnUpper,
		"LOWER":       fnLower,
		"TRIM":        fnTrim,
		"LEFT":        fnLeft,
		"RIGHT":       fnRight,
		"MID":         fnMid,
		"EXACT":       fnExact,
		"ISBLANK":     fnIsBlank,
		"ISERR":       fnIsErr,
		"ISERROR":     fnIsError,
		"ISNA":        fnIsNA,
		"ISNUMBER":    fnIsNumber,
		"ISTEXT":      fnIsText,
		"ISLOGICAL":   fnIsLogical,
		"ISREF":       fnIsRef,
		"NA":          fnNA,
	}
}

func builtinContextFunctions() map[string]ContextFunction {
	return map[string]ContextFunction{
		"IF":        fnIf,
		"CHOOSE":    fnChoose,
		"INDEX":     fnIndex,
		"ROW":       fnRow,
		"ROWS":      fnRows,
		"COLUMN":    fnColumn,
		"COLUMNS":   fnColumns,
		"SUMIF":     fnSumIf,
		"AVERAGEIF": fnAverageIf,
		"OFFSET":    fnOffset,
		"INDIRECT":  fnIndirect,
		"NOW":       fnNow,
		"TODAY":     fnToday,
		"RAND":      fnRand,
	}
}

// numericItem applies the sum-family convention: literal items were
// already coerced, cells inside ranges contribute only when numeric,
// errors propagate.
func numericItem(item Primitive, info ParamInfo) (float64, bool, *FormulaError) {
	if e, ok := item.(*FormulaError); ok {
		return 0, false, e
	}
	if f, ok := item.(float64); ok {
		return f, true, nil
	}
	if info.IsLiteral {
		if b, ok := item.(bool); ok {
			if b {
				return 1, true, nil
			}
			return 0, true, nil
		}
	}
	return 0, false, nil
}

func fnSum(args ...Argument) Primitive {
	sum := 0.0
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		f, ok, err := numericItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			sum += f
		}
		return nil
	}, 0.0, 1)
	if err != nil {
		return err
	}
	return sum
}

func fnAverage(args ...Argument) Primitive {
	sum, count := 0.0, 0
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		f, ok, err := numericItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			sum += f
			count++
		}
		return nil
	}, 0.0, 1)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrDiv0
	}
	return sum / float64(count)
}

func fnCount(args ...Argument) Primitive {
	count := 0
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		// errors inside ranges are skipped, not propagated
		if _, ok := item.(float64); ok {
			count++
		}
		return nil
	}, nil, 1)
	if err != nil {
		return err
	}
	return float64(count)
}

func fnCountA(args ...Argument) Primitive {
	count := 0
	err := FlattenParams(args, TypeString, true, func(item Primitive, info ParamInfo) *FormulaError {
		if item != nil {
			count++
		}
		return nil
	}, nil, 1)
	if err != nil {
		return err
	}
	return float64(count)
}

func fnCountIf(args ...Argument) Primitive {
	if len(args) != 2 {
		return NewFormulaError(KindNA, "COUNTIF requires 2 arguments")
	}
	cv := Accept(args[1], TypeString, "", false, false)
	if e, ok := cv.(*FormulaError); ok {
		return e
	}
	crit := CriteriaFor(cv)
	count := 0
	err := FlattenParams(args[:1], TypeNumber, false, func(item Primitive, info ParamInfo) *FormulaError {
		if crit.Match(item) {
			count++
		}
		return nil
	}, nil, 1)
	if err != nil {
		return err
	}
	return float64(count)
}

func fnMin(args ...Argument) Primitive {
	best := math.Inf(1)
	found := false
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		f, ok, err := numericItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			if f < best {
				best = f
			}
			found = true
		}
		return nil
	}, 0.0, 1)
	if err != nil {
		return err
	}
	if !found {
		return 0.0
	}
	return best
}

func fnMax(args ...Argument) Primitive {
	best := math.Inf(-1)
	found := false
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		f, ok, err := numericItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			if f > best {
				best = f
			}
			found = true
		}
		return nil
	}, 0.0, 1)
	if err != nil {
		return err
	}
	if !found {
		return 0.0
	}
	return best
}

func fnProduct(args ...Argument) Primitive {
	product := 1.0
	found := false
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		f, ok, err := numericItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			product *= f
			found = true
		}
		return nil
	}, 0.0, 1)
	if err != nil {
		return err
	}
	if !found {
		return 0.0
	}
	return product
}

func fnAbs(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ABS requires exactly 1 argument")
	}
	n := Accept(args[0], TypeNumber, nil, false, false)
	if e, ok := n.(*FormulaError); ok {
		return e
	}
	return math.Abs(n.(float64))
}

func fnRound(args ...Argument) Primitive {
	if len(args) < 1 || len(args) > 2 {
		return NewFormulaError(KindNA, "ROUND requires 1 or 2 arguments")
	}
	n := Accept(args[0], TypeNumber, nil, false, false)
	if e, ok := n.(*FormulaError); ok {
		return e
	}
	digits := 0.0
	if len(args) == 2 {
		d := Accept(args[1], TypeNumber, 0.0, false, false)
		if e, ok := d.(*FormulaError); ok {
			return e
		}
		digits = math.Trunc(d.(float64))
	}
	multiplier := math.Pow(10, digits)
	return math.Round(n.(float64)*multiplier) / multiplier
}

// roundToMultiple rounds n to a multiple of significance using the
// given rounding function; the FLOOR/CEILING sign rules apply.
func roundToMultiple(args []Argument, name string, round func(float64) float64) Primitive {
	if len(args) < 1 || len(args) > 2 {
		return NewFormulaError(KindNA, name+" requires 1 or 2 arguments")
	}
	n := Accept(args[0], TypeNumber, nil, false, false)
	if e, ok := n.(*FormulaError); ok {
		return e
	}
	sig := 1.0
	if len(args) == 2 {
		s := Accept(args[1], TypeNumber, 1.0, false, false)
		if e, ok := s.(*FormulaError); ok {
			return e
		}
		sig = s.(float64)
	}
	x := n.(float64)
	if sig == 0 {
		if x == 0 {
			return 0.0
		}
		return ErrDiv0
	}
	if x > 0 && sig < 0 {
		return ErrNum
	}
	return round(x/sig) * sig
}

func fnFloor(args ...Argument) Primitive {
	return roundToMultiple(args, "FLOOR", math.Floor)
}

func fnCeiling(args ...Argument) Primitive {
	return roundToMultiple(args, "CEILING", math.Ceil)
}

func fnSqrt(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "SQRT requires exactly 1 argument")
	}
	n := Accept(args[0], TypeNumber, nil, false, false)
	if e, ok := n.(*FormulaError); ok {
		return e
	}
	if n.(float64) < 0 {
		return ErrNum
	}
	return math.Sqrt(n.(float64))
}

func fnPower(args ...Argument) Primitive {
	if len(args) != 2 {
		return NewFormulaError(KindNA, "POWER requires exactly 2 arguments")
	}
	base := Accept(args[0], TypeNumber, nil, false, false)
	if e, ok := base.(*FormulaError); ok {
		return e
	}
	exp := Accept(args[1], TypeNumber, nil, false, false)
	if e, ok := exp.(*FormulaError); ok {
		return e
	}
	return math.Pow(base.(float64), exp.(float64))
}

func fnMod(args ...Argument) Primitive {
	if len(args) != 2 {
		return NewFormulaError(KindNA, "MOD requires exactly 2 arguments")
	}
	dividend := Accept(args[0], TypeNumber, nil, false, false)
	if e, ok := dividend.(*FormulaError); ok {
		return e
	}
	divisor := Accept(args[1], TypeNumber, nil, false, false)
	if e, ok := divisor.(*FormulaError); ok {
		return e
	}
	y := divisor.(float64)
	if y == 0 {
		return ErrDiv0
	}
	// the result carries the sign of the divisor
	r := math.Mod(dividend.(float64), y)
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return r
}

func fnPi(args ...Argument) Primitive {
	if len(args) != 0 {
		return NewFormulaError(KindNA, "PI takes no arguments")
	}
	return math.Pi
}

// booleanItem filters range cells for the logical family: booleans and
// numbers participate, text and blanks are skipped.
func booleanItem(item Primitive, info ParamInfo) (bool, bool, *FormulaError) {
	switch v := item.(type) {
	case *FormulaError:
		return false, false, v
	case bool:
		return v, true, nil
	case float64:
		return v != 0, true, nil
	}
	if info.IsLiteral {
		return false, false, ErrValue
	}
	return false, false, nil
}

func logicalFold(args []Argument, init bool, fold func(acc, v bool) bool) Primitive {
	acc := init
	found := false
	err := FlattenParams(args, TypeBoolean, false, func(item Primitive, info ParamInfo) *FormulaError {
		v, ok, err := booleanItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			acc = fold(acc, v)
			found = true
		}
		return nil
	}, false, 1)
	if err != nil {
		return err
	}
	if !found {
		return ErrValue
	}
	return acc
}

func fnAnd(args ...Argument) Primitive {
	return logicalFold(args, true, func(acc, v bool) bool { return acc && v })
}

func fnOr(args ...Argument) Primitive {
	return logicalFold(args, false, func(acc, v bool) bool { return acc || v })
}

func fnXor(args ...Argument) Primitive {
	return logicalFold(args, false, func(acc, v bool) bool { return acc != v })
}

func fnNot(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "NOT requires exactly 1 argument")
	}
	b := Accept(args[0], TypeBoolean, nil, false, false)
	if e, ok := b.(*FormulaError); ok {
		return e
	}
	return !b.(bool)
}

func fnTrue(args ...Argument) Primitive { return true }
func fnFalse(args ...Argument) Primitive { return false }

func fnIfError(args ...Argument) Primitive {
	if len(args) != 2 {
		return NewFormulaError(KindNA, "IFERROR requires 2 arguments")
	}
	if _, ok := args[0].Value.(*FormulaError); ok {
		return args[1].Value
	}
	return args[0].Value
}

func fnIfNA(args ...Argument) Primitive {
	if len(args) != 2 {
		return NewFormulaError(KindNA, "IFNA requires 2 arguments")
	}
	if e, ok := args[0].Value.(*FormulaError); ok && e.Kind == KindNA {
		return args[1].Value
	}
	return args[0].Value
}

func fnConcatenate(args ...Argument) Primitive {
	var b strings.Builder
	for _, a := range args {
		s := Accept(a, TypeString, "", false, false)
		if e, ok := s.(*FormulaError); ok {
			return e
		}
		b.WriteString(s.(string))
	}
	return b.String()
}

func fnConcat(args ...Argument) Primitive {
	var b strings.Builder
	err := FlattenParams(args, TypeString, false, func(item Primitive, info ParamInfo) *FormulaError {
		if e, ok := item.(*FormulaError); ok {
			return e
		}
		b.WriteString(toText(item))
		return nil
	}, "", 1)
	if err != nil {
		return err
	}
	return b.String()
}

// acceptText unwraps one required string argument
func acceptText(arg Argument) (string, *FormulaError) {
	s := Accept(arg, TypeString, nil, false, false)
	if e, ok := s.(*FormulaError); ok {
		return "", e
	}
	return s.(string), nil
}

func fnLen(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "LEN requires exactly 1 argument")
	}
	s, err := acceptText(args[0])
	if err != nil {
		return err
	}
	return float64(utf8.RuneCountInString(s))
}

func fnUpper(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "UPPER requires exactly 1 argument")
	}
	s, err := acceptText(args[0])
	if err != nil {
		return err
	}
	return strings.ToUpper(s)
}

func fnLower(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "LOWER requires exactly 1 argument")
	}
	s, err := acceptText(args[0])
	if err != nil {
		return err
	}
	return strings.ToLower(s)
}

func fnTrim(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "TRIM requires exactly 1 argument")
	}
	s, err := acceptText(args[0])
	if err != nil {
		return err
	}
	// interior runs collapse to a single space
	return strings.Join(strings.Fields(s), " ")
}

func textSlice(args []Argument, name string, fromRight bool) Primitive {
	if len(args) < 1 || len(args) > 2 {
		return NewFormulaError(KindNA, name+" requires 1 or 2 arguments")
	}
	s, err := acceptText(args[0])
	if err != nil {
		return err
	}
	count := 1.0
	if len(args) == 2 {
		n := Accept(args[1], TypeNumber, 1.0, false, false)
		if e, ok := n.(*FormulaError); ok {
			return e
		}
		count = math.Trunc(n.(float64))
	}
	if count < 0 {
		return ErrValue
	}
	runes := []rune(s)
	if int(count) >= len(runes) {
		return s
	}
	if fromRight {
		return string(runes[len(runes)-int(count):])
	}
	return string(runes[:int(count)])
}

func fnLeft(args ...Argument) Primitive {
	return textSlice(args, "LEFT", false)
}

func fnRight(args ...Argument) Primitive {
	return textSlice(args, "RIGHT", true)
}

func fnMid(args ...Argument) Primitive {
	if len(args) != 3 {
		return NewFormulaError(KindNA, "MID requires exactly 3 arguments")
	}
	s, err := acceptText(args[0])
	if err != nil {
		return err
	}
	start := Accept(args[1], TypeNumber, nil, false, false)
	if e, ok := start.(*FormulaError); ok {
		return e
	}
	count := Accept(args[2], TypeNumber, nil, false, false)
	if e, ok := count.(*FormulaError); ok {
		return e
	}
	from := int(math.Trunc(start.(float64)))
	n := int(math.Trunc(count.(float64)))
	if from < 1 || n < 0 {
		return ErrValue
	}
	runes := []rune(s)
	if from > len(runes) {
		return ""
	}
	end := from - 1 + n
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[from-1 : end])
}

func fnExact(args ...Argument) Primitive {
	if len(args) != 2 {
		return NewFormulaError(KindNA, "EXACT requires exactly 2 arguments")
	}
	a, err := acceptText(args[0])
	if err != nil {
		return err
	}
	b, err := acceptText(args[1])
	if err != nil {
		return err
	}
	return a == b
}

// information family: these see the raw reference of their argument

func fnIsBlank(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISBLANK requires exactly 1 argument")
	}
	return args[0].Value == nil
}

func fnIsErr(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISERR requires exactly 1 argument")
	}
	e, ok := args[0].Value.(*FormulaError)
	return ok && e.Kind != KindNA
}

func fnIsError(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISERROR requires exactly 1 argument")
	}
	_, ok := args[0].Value.(*FormulaError)
	return ok
}

func fnIsNA(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISNA requires exactly 1 argument")
	}
	e, ok := args[0].Value.(*FormulaError)
	return ok && e.Kind == KindNA
}

func infoValue(arg Argument) Primitive {
	v := arg.Value
	if arr, ok := v.([][]Primitive); ok && len(arr) > 0 && len(arr[0]) > 0 {
		v = arr[0][0]
	}
	return v
}

func fnIsNumber(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISNUMBER requires exactly 1 argument")
	}
	_, ok := infoValue(args[0]).(float64)
	return ok
}

func fnIsText(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISTEXT requires exactly 1 argument")
	}
	_, ok := infoValue(args[0]).(string)
	return ok
}

func fnIsLogical(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISLOGICAL requires exactly 1 argument")
	}
	_, ok := infoValue(args[0]).(bool)
	return ok
}

func fnIsRef(args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ISREF requires exactly 1 argument")
	}
	return args[0].IsCellRef || args[0].IsRangeRef
}

func fnNA(args ...Argument) Primitive {
	return ErrNA
}

// context functions: these receive the engine context and, for the
// no-data-retrieve subset, raw references

func fnIf(ctx *Context, args ...Argument) Primitive {
	if len(args) < 2 || len(args) > 3 {
		return NewFormulaError(KindNA, "IF requires 2 or 3 arguments")
	}
	cond, isArr := ctx.ExtractValue(args[0].Value)
	cond = collapseFirst(cond, isArr)
	truthy, err := isTruthy(cond)
	if err != nil {
		return err
	}
	if truthy {
		return args[1].Value
	}
	if len(args) == 3 {
		return args[2].Value
	}
	return false
}

func fnChoose(ctx *Context, args ...Argument) Primitive {
	if len(args) < 2 {
		return NewFormulaError(KindNA, "CHOOSE requires at least 2 arguments")
	}
	kv, isArr := ctx.ExtractValue(args[0].Value)
	k, err := acceptNumber(collapseFirst(kv, isArr), false, true)
	if err != nil {
		return err
	}
	idx := int(math.Trunc(k))
	if idx < 1 || idx >= len(args) {
		return ErrValue
	}
	return args[idx].Value
}

func fnIndex(ctx *Context, args ...Argument) Primitive {
	if len(args) < 2 || len(args) > 3 {
		return NewFormulaError(KindNA, "INDEX requires 2 or 3 arguments")
	}
	rowNum, err := contextNumber(ctx, args[1])
	if err != nil {
		return err
	}
	colNum := 1
	if len(args) == 3 {
		colNum, err = contextNumber(ctx, args[2])
		if err != nil {
			return err
		}
	}
	if rowNum < 1 || colNum < 1 {
		return ErrValue
	}
	switch ref := args[0].Value.(type) {
	case *RangeRef:
		fromRow, fromCol, toRow, toCol := ref.Bounds()
		// on a single row the first index walks the columns
		if fromRow == toRow && len(args) == 2 && toCol > fromCol {
			rowNum, colNum = 1, rowNum
		}
		row := fromRow + rowNum - 1
		col := fromCol + colNum - 1
		if row > toRow || col > toCol {
			return ErrRef
		}
		return &CellRef{Sheet: ref.Sheet, Row: row, Col: col}
	case *CellRef:
		if rowNum != 1 || colNum != 1 {
			return ErrRef
		}
		return ref
	case [][]Primitive:
		if rowNum > len(ref) || colNum > len(ref[0]) {
			return ErrRef
		}
		return ref[rowNum-1][colNum-1]
	case *FormulaError:
		return ref
	}
	return ErrValue
}

// contextNumber retrieves and truncates a numeric argument of a
// no-data-retrieve function.
func contextNumber(ctx *Context, arg Argument) (int, *FormulaError) {
	v, isArr := ctx.ExtractValue(arg.Value)
	f, err := acceptNumber(collapseFirst(v, isArr), false, true)
	if err != nil {
		return 0, err
	}
	return int(math.Trunc(f)), nil
}

func fnRow(ctx *Context, args ...Argument) Primitive {
	if len(args) == 0 || args[0].Omitted {
		return float64(ctx.Position.Row)
	}
	switch ref := args[0].Value.(type) {
	case *CellRef:
		return float64(ref.Row)
	case *RangeRef:
		fromRow, _, _, _ := ref.Bounds()
		return float64(fromRow)
	case *FormulaError:
		return ref
	}
	return ErrValue
}

func fnRows(ctx *Context, args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "ROWS requires exactly 1 argument")
	}
	switch ref := args[0].Value.(type) {
	case *CellRef:
		return 1.0
	case *RangeRef:
		fromRow, _, toRow, _ := ref.Bounds()
		return float64(toRow - fromRow + 1)
	case [][]Primitive:
		return float64(len(ref))
	case *FormulaError:
		return ref
	}
	return ErrValue
}

func fnColumn(ctx *Context, args ...Argument) Primitive {
	if len(args) == 0 || args[0].Omitted {
		return float64(ctx.Position.Col)
	}
	switch ref := args[0].Value.(type) {
	case *CellRef:
		return float64(ref.Col)
	case *RangeRef:
		_, fromCol, _, _ := ref.Bounds()
		return float64(fromCol)
	case *FormulaError:
		return ref
	}
	return ErrValue
}

func fnColumns(ctx *Context, args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "COLUMNS requires exactly 1 argument")
	}
	switch ref := args[0].Value.(type) {
	case *CellRef:
		return 1.0
	case *RangeRef:
		_, fromCol, _, toCol := ref.Bounds()
		return float64(toCol - fromCol + 1)
	case [][]Primitive:
		if len(ref) == 0 {
			return ErrValue
		}
		return float64(len(ref[0]))
	case *FormulaError:
		return ref
	}
	return ErrValue
}

// conditionalFold drives SUMIF and AVERAGEIF: walk the criteria range,
// and for each matching cell take the aligned cell of the value range.
func conditionalFold(ctx *Context, args []Argument, name string) (sum float64, count int, err Primitive) {
	if len(args) < 2 || len(args) > 3 {
		return 0, 0, NewFormulaError(KindNA, name+" requires 2 or 3 arguments")
	}
	critValues, ok := contextArray(ctx, args[0].Value)
	if !ok {
		return 0, 0, ErrValue
	}
	cv, isArr := ctx.ExtractValue(args[1].Value)
	cv = collapseFirst(cv, isArr)
	if e, ok := cv.(*FormulaError); ok {
		return 0, 0, e
	}
	crit := CriteriaFor(cv)
	values := critValues
	if len(args) == 3 && !args[2].Omitted {
		values, ok = contextArray(ctx, args[2].Value)
		if !ok {
			return 0, 0, ErrValue
		}
	}
	for i, row := range critValues {
		for j, item := range row {
			if !crit.Match(item) {
				continue
			}
			if i >= len(values) || j >= len(values[i]) {
				continue
			}
			if f, ok := values[i][j].(float64); ok {
				sum += f
				count++
			}
		}
	}
	return sum, count, nil
}

// contextArray materializes a raw argument into a 2-D array
func contextArray(ctx *Context, v Primitive) ([][]Primitive, bool) {
	switch ref := v.(type) {
	case *RangeRef:
		return ctx.RetrieveRef(ref).([][]Primitive), true
	case *CellRef:
		return [][]Primitive{{ctx.RetrieveRef(ref)}}, true
	case [][]Primitive:
		return ref, true
	}
	return nil, false
}

func fnSumIf(ctx *Context, args ...Argument) Primitive {
	sum, _, err := conditionalFold(ctx, args, "SUMIF")
	if err != nil {
		return err
	}
	return sum
}

func fnAverageIf(ctx *Context, args ...Argument) Primitive {
	sum, count, err := conditionalFold(ctx, args, "AVERAGEIF")
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrDiv0
	}
	return sum / float64(count)
}

func fnOffset(ctx *Context, args ...Argument) Primitive {
	if len(args) < 3 || len(args) > 5 {
		return NewFormulaError(KindNA, "OFFSET requires 3 to 5 arguments")
	}
	base := args[0].Ref
	if base == nil {
		return ErrValue
	}
	rows, err := contextNumber(ctx, args[1])
	if err != nil {
		return err
	}
	cols, err := contextNumber(ctx, args[2])
	if err != nil {
		return err
	}
	var fromRow, fromCol, toRow, toCol int
	sheet := ""
	switch ref := base.(type) {
	case *CellRef:
		fromRow, fromCol, toRow, toCol = ref.Row, ref.Col, ref.Row, ref.Col
		sheet = ref.Sheet
	case *RangeRef:
		fromRow, fromCol, toRow, toCol = ref.Bounds()
		sheet = ref.Sheet
	default:
		return ErrValue
	}
	fromRow, toRow = fromRow+rows, toRow+rows
	fromCol, toCol = fromCol+cols, toCol+cols
	if len(args) >= 4 && !args[3].Omitted {
		h, err := contextNumber(ctx, args[3])
		if err != nil {
			return err
		}
		if h < 1 {
			return ErrRef
		}
		toRow = fromRow + h - 1
	}
	if len(args) == 5 && !args[4].Omitted {
		w, err := contextNumber(ctx, args[4])
		if err != nil {
			return err
		}
		if w < 1 {
			return ErrRef
		}
		toCol = fromCol + w - 1
	}
	if fromRow < 1 || fromCol < 1 || toRow > MaxRow || toCol > MaxColumn {
		return ErrRef
	}
	if fromRow == toRow && fromCol == toCol {
		return &CellRef{Sheet: sheet, Row: fromRow, Col: fromCol}
	}
	return NewRangeRef(sheet, fromRow, fromCol, toRow, toCol)
}

func fnMedian(args ...Argument) Primitive {
	var values []float64
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		f, ok, err := numericItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			values = append(values, f)
		}
		return nil
	}, 0.0, 1)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return ErrNum
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

func fnMode(args ...Argument) Primitive {
	frequency := map[float64]int{}
	err := FlattenParams(args, TypeNumber, true, func(item Primitive, info ParamInfo) *FormulaError {
		f, ok, err := numericItem(item, info)
		if err != nil {
			return err
		}
		if ok {
			frequency[f]++
		}
		return nil
	}, 0.0, 1)
	if err != nil {
		return err
	}
	if len(frequency) == 0 {
		return ErrNum
	}
	maxFreq := 0
	for _, freq := range frequency {
		if freq > maxFreq {
			maxFreq = freq
		}
	}
	if maxFreq == 1 {
		return ErrNA // no value appears more than once
	}
	// ties resolve to the smallest value
	best := math.Inf(1)
	for value, freq := range frequency {
		if freq == maxFreq && value < best {
			best = value
		}
	}
	return best
}

func fnNow(ctx *Context, args ...Argument) Primitive {
	if len(args) != 0 {
		return NewFormulaError(KindNA, "NOW takes no arguments")
	}
	now := ctx.Clock.Now()
	return float64(now.UnixMilli()-EXCEL_EPOCH_MS) / MS_PER_DAY
}

func fnToday(ctx *Context, args ...Argument) Primitive {
	if len(args) != 0 {
		return NewFormulaError(KindNA, "TODAY takes no arguments")
	}
	now := ctx.Clock.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	// integer day arithmetic from UTC midnight keeps the serial exact
	return math.Floor(float64(midnight.UnixMilli()-EXCEL_EPOCH_MS) / MS_PER_DAY)
}

func fnRand(ctx *Context, args ...Argument) Primitive {
	if len(args) != 0 {
		return NewFormulaError(KindNA, "RAND takes no arguments")
	}
	return ctx.Rand.Float64()
}

func fnIndirect(ctx *Context, args ...Argument) Primitive {
	if len(args) != 1 {
		return NewFormulaError(KindNA, "INDIRECT requires exactly 1 argument")
	}
	v, isArr := ctx.ExtractValue(args[0].Value)
	s, ok := collapseFirst(v, isArr).(string)
	if !ok {
		return ErrRef
	}
	ref, err := ParseAddress(s)
	if err != nil {
		return ErrRef
	}
	return ref
}
