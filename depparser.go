package formula

import (
	"errors"
	"strings"
)

// DepParser enumerates the cells and ranges a formula references
// without computing anything. It drives the same parser recursion as
// the evaluating engine, but its host records every reference lookup
// and hands back stub values.
type DepParser struct {
	onVariable func(name string, position *CellRef) Primitive
	position   *CellRef
	refs       []Primitive
}

// NewDepParser creates a dependency collector. The callback resolves
// defined names the same way the evaluating engine's OnVariable does
// and may be nil.
func NewDepParser(onVariable func(name string, position *CellRef) Primitive) *DepParser {
	return &DepParser{onVariable: onVariable}
}

// Parse returns the formula's references in discovery order,
// deduplicated. With ignoreError set, a syntax failure returns the
// references collected up to that point instead of the error.
func (dp *DepParser) Parse(text string, position *CellRef, ignoreError bool) (refs []Primitive, err error) {
	text = strings.TrimSpace(text)
	if strings.TrimSpace(strings.TrimPrefix(text, "=")) == "" {
		return nil, errors.New("empty formula")
	}
	if position == nil {
		position = &CellRef{Row: 1, Col: 1}
	}
	dp.position = position
	dp.refs = nil
	defer func() {
		if r := recover(); r != nil {
			if ignoreError {
				refs, err = dp.refs, nil
				return
			}
			refs, err = nil, NewFormulaError(KindError, "dependency parse failed")
		}
	}()
	_, ferr := evalFormula(dp, text)
	if ferr != nil && !ignoreError {
		return nil, ferr
	}
	return dp.refs, nil
}

// record appends a reference unless it duplicates one already seen: an
// exact cell or range repeat, or a cell inside a recorded range.
func (dp *DepParser) record(ref Primitive) {
	switch r := ref.(type) {
	case *CellRef:
		for _, seen := range dp.refs {
			switch s := seen.(type) {
			case *CellRef:
				if *s == *r {
					return
				}
			case *RangeRef:
				if s.Contains(r) {
					return
				}
			}
		}
	case *RangeRef:
		for _, seen := range dp.refs {
			if s, ok := seen.(*RangeRef); ok && *s == *r {
				return
			}
		}
	default:
		return
	}
	dp.refs = append(dp.refs, ref)
}

// host implementation: record and return stubs

func (dp *DepParser) cellValue(ref *CellRef) Primitive {
	r := *ref
	if r.Sheet == "" {
		r.Sheet = dp.position.Sheet
	}
	dp.record(&r)
	return 0.0
}

func (dp *DepParser) rangeValue(ref *RangeRef) [][]Primitive {
	r := *ref
	if r.Sheet == "" {
		r.Sheet = dp.position.Sheet
	}
	dp.record(&r)
	return [][]Primitive{{0.0}}
}

func (dp *DepParser) variable(name string) Primitive {
	if dp.onVariable == nil {
		return 0.0
	}
	v := dp.onVariable(name, dp.position)
	switch v.(type) {
	case *CellRef, *RangeRef:
		retrieveRef(dp, v)
	}
	return 0.0
}

// callFunction ignores the name and traverses every argument so that
// referenced ranges are recorded.
func (dp *DepParser) callFunction(name string, args []Argument) Primitive {
	for _, a := range args {
		if !a.Omitted {
			extractRefValue(dp, a.Value)
			if c, ok := a.Value.(*Collection); ok {
				for _, ref := range c.Refs {
					retrieveRef(dp, ref)
				}
			}
		}
	}
	return 0.0
}
