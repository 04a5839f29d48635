package formula

// Type identifies the coercion target of Accept and FlattenParams
type Type int

const (
	TypeNumber Type = iota
	TypeArray
	TypeBoolean
	TypeString
	TypeNumberNoBoolean
	TypeCollection
)

// Accept is the canonical argument-coercion helper for function
// implementations. A missing argument without a default is #N/A; an
// error argument re-raises; TypeArray shapes the value into a 2-D
// array ([]Primitive when flat is set), and the scalar targets collapse
// arrays to their first element before coercing. Raw references must be
// retrieved by the caller first.
func Accept(arg Argument, typ Type, def Primitive, flat, allowSingleValue bool) Primitive {
	if arg.Omitted {
		if def == nil {
			return NewFormulaError(KindNA, "argument missing")
		}
		return def
	}
	v := arg.Value
	if e, ok := v.(*FormulaError); ok {
		return e
	}
	if typ == TypeArray {
		switch arr := v.(type) {
		case [][]Primitive:
			if flat {
				return flatten2D(arr)
			}
			return arr
		case *Collection:
			return ErrValue
		default:
			if !allowSingleValue {
				return ErrValue
			}
			if flat {
				return []Primitive{v}
			}
			return [][]Primitive{{v}}
		}
	}
	if arr, ok := v.([][]Primitive); ok {
		if len(arr) == 0 || len(arr[0]) == 0 {
			return ErrValue
		}
		v = arr[0][0]
		if e, ok := v.(*FormulaError); ok {
			return e
		}
	}
	if _, ok := v.(*Collection); ok {
		return ErrValue
	}
	switch typ {
	case TypeNumber:
		f, err := acceptNumber(v, false, true)
		if err != nil {
			return err
		}
		return f
	case TypeNumberNoBoolean:
		f, err := acceptNumber(v, false, false)
		if err != nil {
			return err
		}
		return f
	case TypeString:
		return toText(v)
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case float64:
			return b != 0
		case nil:
			return false
		}
		return ErrValue
	}
	return ErrValue
}

func flatten2D(arr [][]Primitive) []Primitive {
	var out []Primitive
	for _, row := range arr {
		out = append(out, row...)
	}
	return out
}

// ParamInfo tells a FlattenParams hook what shape its item came from,
// so the hook can apply the Excel convention of coercing literal
// arguments strictly while silently skipping mismatched cells inside
// ranges and arrays.
type ParamInfo struct {
	IsLiteral  bool
	IsCellRef  bool
	IsRangeRef bool
	IsArray    bool
	IsUnion    bool
}

// FlattenParams iterates every element of every argument, calling the
// hook once per item. Literal scalars are coerced to the target type
// first (a non-coercible literal aborts with its error); elements of
// ranges, arrays and unions are passed raw. Unions flatten only when
// allowUnion is set, otherwise they are #VALUE!. A non-nil error from
// the hook aborts the iteration.
func FlattenParams(args []Argument, typ Type, allowUnion bool,
	hook func(item Primitive, info ParamInfo) *FormulaError,
	def Primitive, minSize int) *FormulaError {

	if len(args) < minSize {
		return NewFormulaError(KindNA, "argument missing")
	}
	for _, a := range args {
		info := ParamInfo{
			IsCellRef:  a.IsCellRef,
			IsRangeRef: a.IsRangeRef,
			IsArray:    a.IsArray,
		}
		info.IsLiteral = !info.IsCellRef && !info.IsRangeRef && !info.IsArray
		if a.Omitted {
			item := def
			if item == nil {
				item = a.Value
			}
			if err := hook(item, ParamInfo{IsLiteral: true}); err != nil {
				return err
			}
			continue
		}
		switch v := a.Value.(type) {
		case *FormulaError:
			return v
		case nil:
			// a blank cell stays blank; hooks decide whether it counts
			if err := hook(nil, info); err != nil {
				return err
			}
		case *Collection:
			if !allowUnion {
				return ErrValue
			}
			info.IsUnion = true
			info.IsLiteral = false
			for _, val := range v.Values {
				if arr, ok := val.([][]Primitive); ok {
					arrInfo := info
					arrInfo.IsArray = true
					if err := hookEach(arr, arrInfo, hook); err != nil {
						return err
					}
					continue
				}
				if err := hook(val, info); err != nil {
					return err
				}
			}
		case [][]Primitive:
			if err := hookEach(v, info, hook); err != nil {
				return err
			}
		default:
			item := Accept(Argument{Value: a.Value}, typ, nil, false, false)
			if e, ok := item.(*FormulaError); ok {
				return e
			}
			if err := hook(item, info); err != nil {
				return err
			}
		}
	}
	return nil
}

func hookEach(arr [][]Primitive, info ParamInfo, hook func(item Primitive, info ParamInfo) *FormulaError) *FormulaError {
	for _, row := range arr {
		for _, item := range row {
			if err := hook(item, info); err != nil {
				return err
			}
		}
	}
	return nil
}
