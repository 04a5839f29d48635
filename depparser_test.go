package formula

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDepParserBasic(t *testing.T) {
	dp := NewDepParser(nil)
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}
	refs, err := dp.Parse("=A1+Sheet2!B2:C3", position, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Primitive{
		&CellRef{Sheet: "Sheet1", Row: 1, Col: 1},
		NewRangeRef("Sheet2", 2, 2, 3, 3),
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
}

func TestDepParserDedup(t *testing.T) {
	dp := NewDepParser(nil)
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}

	// repeated cells collapse
	refs, err := dp.Parse("=A1+A1+B2", position, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Primitive{
		&CellRef{Sheet: "Sheet1", Row: 1, Col: 1},
		&CellRef{Sheet: "Sheet1", Row: 2, Col: 2},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}

	// identical ranges collapse, and a cell inside an already recorded
	// range is skipped
	refs, err = dp.Parse("=SUM(A1:B2)+SUM(A1:B2)+A2", position, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want = []Primitive{NewRangeRef("Sheet1", 1, 1, 2, 2)}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
}

func TestDepParserFunctionsAndUnions(t *testing.T) {
	dp := NewDepParser(nil)
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}
	refs, err := dp.Parse("=SUM((A1,C3),Sheet2!D4)", position, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Primitive{
		&CellRef{Sheet: "Sheet1", Row: 1, Col: 1},
		&CellRef{Sheet: "Sheet1", Row: 3, Col: 3},
		&CellRef{Sheet: "Sheet2", Row: 4, Col: 4},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
}

func TestDepParserVariables(t *testing.T) {
	dp := NewDepParser(func(name string, position *CellRef) Primitive {
		if name == "Target" {
			return NewRangeRef("Sheet3", 1, 1, 2, 2)
		}
		return nil
	})
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}
	refs, err := dp.Parse("=SUM(Target)+B1", position, false)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []Primitive{
		NewRangeRef("Sheet3", 1, 1, 2, 2),
		&CellRef{Sheet: "Sheet1", Row: 1, Col: 2},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
}

func TestDepParserIgnoreError(t *testing.T) {
	dp := NewDepParser(nil)
	position := &CellRef{Sheet: "Sheet1", Row: 1, Col: 1}

	if _, err := dp.Parse("=SUM(A1)+", position, false); err == nil {
		t.Fatal("expected an error for a truncated formula")
	}

	refs, err := dp.Parse("=SUM(A1)+", position, true)
	if err != nil {
		t.Fatalf("ignoreError should suppress the failure: %v", err)
	}
	want := []Primitive{&CellRef{Sheet: "Sheet1", Row: 1, Col: 1}}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
}
