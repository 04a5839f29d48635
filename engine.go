package formula

import (
	"errors"
	"fmt"
	"strings"
)

// Config supplies the host capabilities of an engine. Every field is
// optional: a missing callback means the engine runs without a host,
// blank cells everywhere and no defined names.
type Config struct {
	// OnCell returns the scalar value of a cell.
	OnCell func(ref CellRef) Primitive

	// OnRange returns the 2-D value array of a range, rectangular with
	// at least one row and one column.
	OnRange func(ref RangeRef) [][]Primitive

	// OnVariable resolves a defined name to a *CellRef, *RangeRef, or
	// nil when the name is unknown.
	OnVariable func(name string, position *CellRef) Primitive

	// Functions adds or overrides plain functions by name.
	Functions map[string]Function

	// FunctionsNeedContext adds or overrides functions that receive
	// the evaluation context as their first argument.
	FunctionsNeedContext map[string]ContextFunction

	// Clock supplies time to NOW and TODAY; defaults to the wall clock.
	Clock Clock

	// Rand supplies randomness to RAND; defaults to math/rand.
	Rand RandomGenerator
}

// FormulaParser evaluates Excel-dialect formulas against the host
// callbacks it was constructed with. The engine itself holds no
// workbook state; per-evaluation state lives on the instance, so
// concurrent Parse calls on one instance must be serialized by the
// caller.
type FormulaParser struct {
	cfg              Config
	functions        map[string]Function
	contextFunctions map[string]ContextFunction
	position         *CellRef
	testMode         bool
	unknownFunctions []string
}

// NewFormulaParser creates an engine with the built-in function set
// merged under any user-supplied functions.
func NewFormulaParser(cfg Config) *FormulaParser {
	fp := &FormulaParser{
		cfg:              cfg,
		functions:        builtinFunctions(),
		contextFunctions: builtinContextFunctions(),
	}
	for name, fn := range cfg.Functions {
		fp.functions[strings.ToUpper(name)] = fn
	}
	for name, fn := range cfg.FunctionsNeedContext {
		fp.contextFunctions[strings.ToUpper(name)] = fn
	}
	if fp.cfg.Clock == nil {
		fp.cfg.Clock = &WallClock{}
	}
	if fp.cfg.Rand == nil {
		fp.cfg.Rand = &DefaultRandomGenerator{}
	}
	return fp
}

// NewCompatibilityProbe creates an engine in test mode: calls to
// unknown functions return zero instead of #NAME? and the names are
// recorded for inspection through UnknownFunctions.
func NewCompatibilityProbe(cfg Config) *FormulaParser {
	fp := NewFormulaParser(cfg)
	fp.testMode = true
	return fp
}

// UnknownFunctions returns the names the probe substituted, in call
// order with duplicates.
func (fp *FormulaParser) UnknownFunctions() []string {
	return fp.unknownFunctions
}

// Parse evaluates a formula. The leading '=' may be present or already
// stripped. Formula-level failures come back as a *FormulaError value,
// never as a Go error; the error return is reserved for caller misuse
// such as empty input. With allowReturnArray false a single-column
// range collapses to its top cell and an array to its first element;
// a range spanning several columns is #VALUE!.
func (fp *FormulaParser) Parse(text string, position *CellRef, allowReturnArray bool) (result Primitive, err error) {
	text = strings.TrimSpace(text)
	if strings.TrimSpace(strings.TrimPrefix(text, "=")) == "" {
		return nil, errors.New("empty formula")
	}
	if position == nil {
		position = &CellRef{Row: 1, Col: 1}
	}
	fp.position = position
	defer func() {
		if r := recover(); r != nil {
			result = NewFormulaError(KindError, fmt.Sprint(r))
			err = nil
		}
	}()
	v, ferr := evalFormula(fp, text)
	if ferr != nil {
		return ferr, nil
	}
	return checkFormulaResult(fp, v, allowReturnArray), nil
}

// host implementation

func (fp *FormulaParser) cellValue(ref *CellRef) Primitive {
	r := *ref
	if r.Sheet == "" {
		r.Sheet = fp.position.Sheet
	}
	if !r.Valid() {
		return ErrRef
	}
	if fp.cfg.OnCell == nil {
		return nil
	}
	return fp.cfg.OnCell(r)
}

func (fp *FormulaParser) rangeValue(ref *RangeRef) [][]Primitive {
	r := *ref
	if r.Sheet == "" {
		r.Sheet = fp.position.Sheet
	}
	if fp.cfg.OnRange == nil {
		return [][]Primitive{{nil}}
	}
	v := fp.cfg.OnRange(r)
	if len(v) == 0 || len(v[0]) == 0 {
		return [][]Primitive{{nil}}
	}
	return v
}

func (fp *FormulaParser) variable(name string) Primitive {
	if fp.cfg.OnVariable == nil {
		return nil
	}
	return fp.cfg.OnVariable(name, fp.position)
}
