package formula

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type gridCell struct {
	sheet string
	row   int
	col   int
}

// gridConfig builds a host over a fixed cell map. Whole-row and
// whole-column ranges clip to the populated extent of the sheet.
func gridConfig(cells map[gridCell]Primitive) Config {
	return Config{
		OnCell: func(ref CellRef) Primitive {
			return cells[gridCell{ref.Sheet, ref.Row, ref.Col}]
		},
		OnRange: func(ref RangeRef) [][]Primitive {
			maxRow, maxCol := 0, 0
			for key := range cells {
				if key.sheet != ref.Sheet {
					continue
				}
				if key.row > maxRow {
					maxRow = key.row
				}
				if key.col > maxCol {
					maxCol = key.col
				}
			}
			fromRow, fromCol, toRow, toCol := ref.Bounds()
			if toRow > maxRow {
				toRow = maxRow
			}
			if toCol > maxCol {
				toCol = maxCol
			}
			if toRow < fromRow || toCol < fromCol {
				return [][]Primitive{{nil}}
			}
			out := [][]Primitive{}
			for row := fromRow; row <= toRow; row++ {
				line := []Primitive{}
				for col := fromCol; col <= toCol; col++ {
					line = append(line, cells[gridCell{ref.Sheet, row, col}])
				}
				out = append(out, line)
			}
			return out
		},
	}
}

func mustParse(t *testing.T, fp *FormulaParser, text string, position *CellRef, allowArray bool) Primitive {
	t.Helper()
	got, err := fp.Parse(text, position, allowArray)
	if err != nil {
		t.Fatalf("Parse(%q) returned caller error: %v", text, err)
	}
	return got
}

// checkResult compares a result against the expectation; an expected
// *FormulaError compares by kind only.
func checkResult(t *testing.T, text string, got, want Primitive) {
	t.Helper()
	if wantErr, ok := want.(*FormulaError); ok {
		gotErr, ok := got.(*FormulaError)
		if !ok {
			t.Fatalf("%s = %v (%T), want error %s", text, got, got, wantErr.Code())
		}
		if !gotErr.EqualTo(wantErr) {
			t.Fatalf("%s = %s, want %s", text, gotErr.Code(), wantErr.Code())
		}
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("%s mismatch (-want +got):\n%s", text, diff)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	fp := NewFormulaParser(Config{})
	tests := []struct {
		formula string
		want    Primitive
	}{
		{"=2+3*4", 14.0},
		{"=-2^2", 4.0},
		{"=2^3^2", 64.0}, // left associative
		{"=1&2+3", "15"},
		{"=1+2&3", "33"},
		{"=5%", 0.05},
		{"=-5%", -0.05},
		{"=50%%", 0.005},
		{"=--5", 5.0},
		{"=2*-3", -6.0},
		{"=(1+2)*3", 9.0},
		{"=1+2=3", true},
		{"=10/4", 2.5},
		{"=3.5e+2", 350.0},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			checkResult(t, tt.formula, mustParse(t, fp, tt.formula, nil, false), tt.want)
		})
	}
}

func TestComparisons(t *testing.T) {
	fp := NewFormulaParser(Config{})
	tests := []struct {
		formula string
		want    Primitive
	}{
		{"=1=1", true},
		{"=1<>1", false},
		{`="a"<"b"`, true},
		{`="b"<="a"`, false},
		{"=TRUE>FALSE", true},
		// cross-type: equality is always false, inequality always true,
		// relational follows bool > text > number
		{`=1="1"`, false},
		{`=1<>"1"`, true},
		{`=TRUE>"z"`, true},
		{`="a">5`, true},
		{`=5<"a"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			checkResult(t, tt.formula, mustParse(t, fp, tt.formula, nil, false), tt.want)
		})
	}
}

func TestErrorPropagation(t *testing.T) {
	fp := NewFormulaParser(Config{})
	tests := []struct {
		formula string
		want    *FormulaError
	}{
		{"=1/0", ErrDiv0},
		{"=1/0+1", ErrDiv0},
		{"=1+#REF!", ErrRef},
		{"=#NUM!+#DIV/0!", ErrNum}, // left operand wins
		{"=#N/A", ErrNA},
		{`=-"abc"`, ErrValue},
		{`="abc"%`, ErrValue},
		{"=2^1024", ErrNum}, // overflow to infinity
		{`=""+1`, ErrValue},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			checkResult(t, tt.formula, mustParse(t, fp, tt.formula, nil, false), tt.want)
		})
	}
}

func TestConcatenation(t *testing.T) {
	cfg := gridConfig(map[gridCell]Primitive{})
	fp := NewFormulaParser(cfg)
	tests := []struct {
		formula string
		want    Primitive
	}{
		{`="abc"&TRUE`, "abcTRUE"},
		{`="a"&1`, "a1"},
		{`=A1&"x"`, "x"}, // blank cell concatenates as empty text
		{`=1.5&"!"`, "1.5!"},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			checkResult(t, tt.formula, mustParse(t, fp, tt.formula, nil, false), tt.want)
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	fp := NewFormulaParser(Config{})
	tests := []string{
		"=1+",
		"=(1,2",
		"=SUM(1",
		`="abc`,
		"=1 $ 2",
		"={1,2",
		"=)",
		"=A1 A2:", // truncated range after intersection
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			got := mustParse(t, fp, text, nil, false)
			e, ok := got.(*FormulaError)
			if !ok || e.Kind != KindError {
				t.Fatalf("%s = %v, want #ERROR!", text, got)
			}
			if !strings.Contains(e.Details, "^") {
				t.Errorf("%s details missing caret:\n%s", text, e.Details)
			}
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	fp := NewFormulaParser(Config{})
	got := mustParse(t, fp, "=1+", nil, false)
	e, ok := got.(*FormulaError)
	if !ok || e.Kind != KindError {
		t.Fatalf("=1+ returned %v, want #ERROR!", got)
	}
	if !strings.Contains(e.Details, "at 1:3") {
		t.Errorf("details should point at 1:3:\n%s", e.Details)
	}
}

func TestCellAndRangeReferences(t *testing.T) {
	cells := map[gridCell]Primitive{
		{"Sheet1", 1, 1}: 1.0, {"Sheet1", 1, 2}: 2.0,
		{"Sheet1", 2, 1}: 3.0, {"Sheet1", 2, 2}: 4.0,
		{"My Sheet", 1, 1}: 5.0,
	}
	fp := NewFormulaParser(gridConfig(cells))
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}
	tests := []struct {
		formula string
		want    Primitive
	}{
		{"=A1", 1.0},
		{"=B2+1", 5.0},
		{"=SUM(A1:B2)", 10.0},
		{"=SUM(A:A)", 4.0},
		{"=SUM(1:1)", 3.0},
		{"=SUM(A1:B)", 10.0}, // cell to whole-column covers the rows below
		{"='My Sheet'!A1 + 2", 7.0},
		{"=$A$1+$B1", 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			checkResult(t, tt.formula, mustParse(t, fp, tt.formula, position, false), tt.want)
		})
	}
}

func TestIntersection(t *testing.T) {
	cells := map[gridCell]Primitive{}
	for row := 1; row <= 4; row++ {
		for col := 1; col <= 4; col++ {
			cells[gridCell{"Sheet1", row, col}] = 10.0
		}
	}
	fp := NewFormulaParser(gridConfig(cells))
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}

	// a single-cell overlap dereferences to its value
	checkResult(t, "=A1:B2 B2:C3", mustParse(t, fp, "=A1:B2 B2:C3", position, false), 10.0)

	// disjoint boxes have no cells in common
	checkResult(t, "=A1:B2 C3:D4", mustParse(t, fp, "=A1:B2 C3:D4", position, false), ErrNull)

	// a multi-column overlap cannot collapse to a scalar
	checkResult(t, "=A1:C3 B2:D4", mustParse(t, fp, "=A1:C3 B2:D4", position, false), ErrValue)

	// but it is a fine array result
	got := mustParse(t, fp, "=A1:C3 B2:D4", position, true)
	want := [][]Primitive{{10.0, 10.0}, {10.0, 10.0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("array intersection mismatch (-want +got):\n%s", diff)
	}

	// whole-column against whole-row pins a single cell
	checkResult(t, "=B:B 2:2", mustParse(t, fp, "=B:B 2:2", position, false), 10.0)

	// two whole-column operands cannot form a finite box
	checkResult(t, "=A:A B:B", mustParse(t, fp, "=A:A B:B", position, false), ErrError)

	// non-reference operands cannot intersect
	checkResult(t, "=1 2", mustParse(t, fp, "=1 2", position, false), ErrValue)
}

func TestUnion(t *testing.T) {
	cells := map[gridCell]Primitive{
		{"Sheet1", 1, 1}: 1.0,
		{"Sheet1", 3, 3}: 2.0,
	}
	fp := NewFormulaParser(gridConfig(cells))
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}

	// a union is only legal as a function argument
	checkResult(t, "=(A1,C3)", mustParse(t, fp, "=(A1,C3)", position, false), ErrValue)
	checkResult(t, "=SUM((A1,C3))", mustParse(t, fp, "=SUM((A1,C3))", position, false), 3.0)
	checkResult(t, "=SUM((A1,C3),4)", mustParse(t, fp, "=SUM((A1,C3),4)", position, false), 7.0)

	// non-reference union operands are rejected
	checkResult(t, "=SUM((A1,1))", mustParse(t, fp, "=SUM((A1,1))", position, false), ErrValue)
}

func TestArrayLiteral(t *testing.T) {
	fp := NewFormulaParser(Config{})
	got := mustParse(t, fp, "={1,2;3,4}", nil, true)
	want := [][]Primitive{{1.0, 2.0}, {3.0, 4.0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("array literal mismatch (-want +got):\n%s", diff)
	}

	got = mustParse(t, fp, `={-1,"x";TRUE,#N/A}`, nil, true)
	want = [][]Primitive{{-1.0, "x"}, {true, ErrNA}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mixed array literal mismatch (-want +got):\n%s", diff)
	}

	// jagged rows are rejected
	checkResult(t, "={1,2;3}", mustParse(t, fp, "={1,2;3}", nil, true), ErrValue)

	// scalar context takes the first element
	checkResult(t, "={1,2;3,4}", mustParse(t, fp, "={1,2;3,4}", nil, false), 1.0)
}

func TestIfScenario(t *testing.T) {
	cells := map[gridCell]Primitive{{"Sheet1", 1, 1}: -3.0}
	fp := NewFormulaParser(gridConfig(cells))
	position := &CellRef{Sheet: "Sheet1", Row: 2, Col: 2}
	got := mustParse(t, fp, `=IF(A1>0,"pos","nonpos")`, position, false)
	checkResult(t, "IF", got, "nonpos")
}

func TestOmittedArguments(t *testing.T) {
	fp := NewFormulaParser(Config{})
	tests := []struct {
		formula string
		want    Primitive
	}{
		{"=ROUND(1.5,)", 2.0},
		{"=SUM(,1)", 1.0},
		{"=SUM(1,,2)", 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			checkResult(t, tt.formula, mustParse(t, fp, tt.formula, nil, false), tt.want)
		})
	}
}

func TestFunctionNameNormalization(t *testing.T) {
	fp := NewFormulaParser(Config{})
	checkResult(t, "=sum(1,2)", mustParse(t, fp, "=sum(1,2)", nil, false), 3.0)
	checkResult(t, "=_xlfn.SUM(1,2)", mustParse(t, fp, "=_xlfn.SUM(1,2)", nil, false), 3.0)
}

func TestUnknownFunction(t *testing.T) {
	fp := NewFormulaParser(Config{})
	got := mustParse(t, fp, "=NOPE(1)", nil, false)
	e, ok := got.(*FormulaError)
	if !ok || e.Kind != KindName {
		t.Fatalf("=NOPE(1) = %v, want #NAME?", got)
	}
	if !strings.Contains(e.Details, "NOPE is not implemented") {
		t.Errorf("details = %q", e.Details)
	}
}

func TestCompatibilityProbe(t *testing.T) {
	fp := NewCompatibilityProbe(Config{})
	got := mustParse(t, fp, "=NOPE(1)+MISSING.TOO(2)", nil, false)
	checkResult(t, "probe", got, 0.0)
	if diff := cmp.Diff([]string{"NOPE", "MISSING.TOO"}, fp.UnknownFunctions()); diff != "" {
		t.Errorf("unknown functions mismatch (-want +got):\n%s", diff)
	}
}

func TestUserFunctions(t *testing.T) {
	fp := NewFormulaParser(Config{
		Functions: map[string]Function{
			"DOUBLE": func(args ...Argument) Primitive {
				n := Accept(args[0], TypeNumber, nil, false, false)
				if e, ok := n.(*FormulaError); ok {
					return e
				}
				return n.(float64) * 2
			},
		},
	})
	checkResult(t, "=DOUBLE(21)", mustParse(t, fp, "=DOUBLE(21)", nil, false), 42.0)
}

func TestDefinedNames(t *testing.T) {
	cells := map[gridCell]Primitive{{"Sheet1", 5, 2}: 99.0}
	cfg := gridConfig(cells)
	cfg.OnVariable = func(name string, position *CellRef) Primitive {
		if name == "Target" {
			return &CellRef{Sheet: "Sheet1", Row: 5, Col: 2}
		}
		return nil
	}
	fp := NewFormulaParser(cfg)
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}
	checkResult(t, "=Target+1", mustParse(t, fp, "=Target+1", position, false), 100.0)
	checkResult(t, "=Nothing+1", mustParse(t, fp, "=Nothing+1", position, false), ErrName)
}

func TestParseCallerErrors(t *testing.T) {
	fp := NewFormulaParser(Config{})
	for _, text := range []string{"", "=", "   "} {
		if _, err := fp.Parse(text, nil, false); err == nil {
			t.Errorf("Parse(%q) should return a caller error", text)
		}
	}
}

func TestHostPanicBecomesError(t *testing.T) {
	fp := NewFormulaParser(Config{
		OnCell: func(ref CellRef) Primitive { panic("backend exploded") },
	})
	got := mustParse(t, fp, "=A1+1", nil, false)
	e, ok := got.(*FormulaError)
	if !ok || e.Kind != KindError {
		t.Fatalf("got %v, want #ERROR!", got)
	}
	if !strings.Contains(e.Details, "backend exploded") {
		t.Errorf("details = %q", e.Details)
	}
}

func TestErrorsCapturedIntoArguments(t *testing.T) {
	fp := NewFormulaParser(Config{})
	// an error argument does not stop the later arguments from being
	// evaluated; the function decides what to propagate
	checkResult(t, "=IFERROR(1/0,42)", mustParse(t, fp, "=IFERROR(1/0,42)", nil, false), 42.0)
	checkResult(t, "=ISERROR(1/0)", mustParse(t, fp, "=ISERROR(1/0)", nil, false), true)
	checkResult(t, "=SUM(1/0,1)", mustParse(t, fp, "=SUM(1/0,1)", nil, false), ErrDiv0)
}
