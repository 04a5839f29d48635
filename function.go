package formula

// Function is a plain registry entry: it receives shaped arguments and
// returns its result. Errors are returned (or panicked) as
// *FormulaError values.
type Function func(args ...Argument) Primitive

// ContextFunction additionally receives the evaluation context and may
// retrieve values through it.
type ContextFunction func(ctx *Context, args ...Argument) Primitive

// Context is handed to context functions: the current evaluation
// position plus access to the host for retrieving references.
type Context struct {
	h        host
	Position *CellRef
	Clock    Clock
	Rand     RandomGenerator
}

// RetrieveRef resolves a reference to its value through the host
func (c *Context) RetrieveRef(v Primitive) Primitive {
	return retrieveRef(c.h, v)
}

// ExtractValue resolves an operand, reporting whether it is an array
func (c *Context) ExtractValue(v Primitive) (Primitive, bool) {
	return extractRefValue(c.h, v)
}

// nullAsZero holds the functions whose omitted arguments become 0; all
// others receive empty text. The set spans the math, logical,
// statistical, engineering and date families, including catalogue names
// not shipped in the default registry so that user-supplied
// implementations inherit the policy.
var nullAsZero = stringSet(
	"SUM", "AVERAGE", "AVERAGEIF", "COUNT", "COUNTA", "COUNTIF", "MIN",
	"MAX", "ABS", "ROUND", "ROUNDUP", "ROUNDDOWN", "FLOOR", "CEILING",
	"SQRT", "POWER", "MOD", "PI", "PRODUCT", "SUMIF", "SUMPRODUCT",
	"AND", "OR", "XOR", "NOT", "IF", "IFS", "CHOOSE", "INDEX", "ROW",
	"ROWS", "COLUMN", "COLUMNS", "OFFSET", "EXP", "LN", "LOG", "LOG10",
	"SIN", "COS", "TAN", "ASIN", "ACOS", "ATAN", "ATAN2", "SINH",
	"COSH", "TANH", "INT", "TRUNC", "SIGN", "RAND", "RANDBETWEEN",
	"MEDIAN", "MODE", "STDEV", "STDEVP", "VAR", "VARP", "LARGE",
	"SMALL", "RANK", "PERCENTILE", "QUARTILE", "DATE", "DAY", "MONTH",
	"YEAR", "HOUR", "MINUTE", "SECOND", "NOW", "TODAY", "WEEKDAY",
	"DATEDIF", "YEARFRAC", "NETWORKDAYS", "NETWORKDAYS.INTL", "WORKDAY",
	"EDATE", "EOMONTH", "BITAND", "BITOR", "BITXOR", "BITLSHIFT",
	"BITRSHIFT", "DEC2BIN", "DEC2HEX", "DEC2OCT", "BIN2DEC", "HEX2DEC",
	"OCT2DEC", "DELTA", "GESTEP",
)

// preserveRef holds the information family: these receive the raw
// reference of each argument alongside its value.
var preserveRef = stringSet(
	"ISBLANK", "ISERR", "ISERROR", "ISNA", "ISREF", "ISNUMBER",
	"ISTEXT", "ISLOGICAL", "ISNONTEXT", "ISEVEN", "ISODD",
	"ERROR.TYPE", "NA",
)

// functionsNeedContext holds the functions that receive the evaluation
// context as their first argument.
var functionsNeedContext = stringSet(
	"IF", "INDEX", "OFFSET", "INDIRECT", "CHOOSE", "WEBSERVICE",
	"ROW", "ROWS", "COLUMN", "COLUMNS", "SUMIF", "AVERAGEIF",
)

// noDataRetrieve is the subset of context functions whose arguments
// stay raw references: they decide themselves what to retrieve.
var noDataRetrieve = stringSet(
	"ROW", "ROWS", "COLUMN", "COLUMNS", "SUMIF", "INDEX", "AVERAGEIF", "IF",
)

func stringSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// callFunction implements the call protocol: shape the arguments per
// the function's sets, invoke, and capture a panicked *FormulaError as
// the call's value. Unknown functions raise #NAME? unless the engine
// is a compatibility probe.
func (fp *FormulaParser) callFunction(name string, args []Argument) Primitive {
	if fn, ok := fp.contextFunctions[name]; ok {
		// context functions always keep the raw reference on the argument
		shaped := fp.shapeArgs(name, args, true)
		ctx := &Context{h: fp, Position: fp.position, Clock: fp.cfg.Clock, Rand: fp.cfg.Rand}
		return fp.invoke(func() Primitive { return fn(ctx, shaped...) })
	}
	if fn, ok := fp.functions[name]; ok && !functionsNeedContext[name] {
		// a name declared context never resolves through the plain map
		shaped := fp.shapeArgs(name, args, false)
		return fp.invoke(func() Primitive { return fn(shaped...) })
	}
	if fp.testMode {
		fp.unknownFunctions = append(fp.unknownFunctions, name)
		return 0.0
	}
	return NewFormulaError(KindName, "Function "+name+" is not implemented.")
}

// shapeArgs applies the omitted-argument policy and the reference
// handling of the function's sets. Errors in arguments are not
// short-circuited here; they stay in the list for the function to
// inspect.
func (fp *FormulaParser) shapeArgs(name string, args []Argument, isContext bool) []Argument {
	raw := noDataRetrieve[name]
	keepRef := raw || isContext || preserveRef[name]
	out := make([]Argument, len(args))
	for i, a := range args {
		if a.Omitted {
			if nullAsZero[name] {
				a.Value = 0.0
			} else {
				a.Value = ""
			}
			out[i] = a
			continue
		}
		switch ref := a.Value.(type) {
		case *CellRef:
			a.IsCellRef = true
			if keepRef {
				a.Ref = ref
			}
			if !raw {
				a.Value = fp.cellValue(ref)
			}
		case *RangeRef:
			a.IsRangeRef = true
			if keepRef {
				a.Ref = ref
			}
			if !raw {
				a.Value = fp.rangeValue(ref)
				a.IsArray = true
			}
		case [][]Primitive:
			a.IsArray = true
		}
		out[i] = a
	}
	return out
}

// invoke runs a function, converting a panicked *FormulaError into the
// call's return value. Any other panic propagates to Parse, where it
// becomes #ERROR!.
func (fp *FormulaParser) invoke(fn func() Primitive) (out Primitive) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FormulaError); ok {
				out = fe
				return
			}
			panic(r)
		}
	}()
	out = fn()
	if f, ok := out.(float64); ok {
		out = checkNumberResult(f)
	}
	return out
}
