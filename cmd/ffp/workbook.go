package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	formula "github.com/uchwyt/fast-formula-parser"
)

// Workbook is a YAML-backed host: sheet names map to cell addresses and
// their values. It owns all cell state so the engine can stay
// stateless.
//
//	Sheet1:
//	  A1: 1
//	  A2: 2.5
//	  B1: hello
//	  B2: true
type Workbook struct {
	sheets map[string]*sheetData
}

type cellKey struct {
	row, col int
}

type sheetData struct {
	cells  map[cellKey]formula.Primitive
	maxRow int
	maxCol int
}

// LoadWorkbook reads a workbook fixture from a YAML file
func LoadWorkbook(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	wb := &Workbook{sheets: map[string]*sheetData{}}
	for sheetName, cells := range raw {
		sheet := &sheetData{cells: map[cellKey]formula.Primitive{}}
		for addr, value := range cells {
			ref, err := formula.ParseCellAddress(addr)
			if err != nil {
				return nil, fmt.Errorf("%s: sheet %s: %w", path, sheetName, err)
			}
			sheet.cells[cellKey{ref.Row, ref.Col}] = coerceValue(value)
			if ref.Row > sheet.maxRow {
				sheet.maxRow = ref.Row
			}
			if ref.Col > sheet.maxCol {
				sheet.maxCol = ref.Col
			}
		}
		wb.sheets[sheetName] = sheet
	}
	return wb, nil
}

// coerceValue maps YAML scalar types onto the engine's primitives
func coerceValue(v any) formula.Primitive {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float64:
		return t
	case bool:
		return t
	case string:
		return t
	case nil:
		return nil
	}
	return fmt.Sprint(v)
}

// Cell implements the engine's OnCell callback
func (wb *Workbook) Cell(ref formula.CellRef) formula.Primitive {
	sheet, ok := wb.sheets[ref.Sheet]
	if !ok {
		return nil
	}
	return sheet.cells[cellKey{ref.Row, ref.Col}]
}

// Range implements the engine's OnRange callback. Whole-row and
// whole-column references are clipped to the sheet's populated extent.
func (wb *Workbook) Range(ref formula.RangeRef) [][]formula.Primitive {
	sheet, ok := wb.sheets[ref.Sheet]
	if !ok {
		return [][]formula.Primitive{{nil}}
	}
	fromRow, fromCol, toRow, toCol := ref.Bounds()
	if toRow > sheet.maxRow {
		toRow = sheet.maxRow
	}
	if toCol > sheet.maxCol {
		toCol = sheet.maxCol
	}
	if toRow < fromRow || toCol < fromCol {
		return [][]formula.Primitive{{nil}}
	}
	out := make([][]formula.Primitive, 0, toRow-fromRow+1)
	for row := fromRow; row <= toRow; row++ {
		line := make([]formula.Primitive, 0, toCol-fromCol+1)
		for col := fromCol; col <= toCol; col++ {
			line = append(line, sheet.cells[cellKey{row, col}])
		}
		out = append(out, line)
	}
	return out
}
