package formula

import (
	"fmt"
	"strings"
)

// Sheet extents. Row and column indices are 1-based throughout.
const (
	MaxRow    = 1048576
	MaxColumn = 16384
)

// CellRef is a single cell address. Sheet is empty for the current
// sheet of the evaluation position.
type CellRef struct {
	Sheet string
	Row   int
	Col   int
}

// Valid reports whether the reference is inside the sheet extents
func (r *CellRef) Valid() bool {
	return r.Row >= 1 && r.Row <= MaxRow && r.Col >= 1 && r.Col <= MaxColumn
}

// String renders the canonical A1-style address, uppercase and without
// absolute markers.
func (r *CellRef) String() string {
	addr := ColumnNumberToName(r.Col) + fmt.Sprint(r.Row)
	if r.Sheet != "" {
		return quoteSheet(r.Sheet) + "!" + addr
	}
	return addr
}

// RangeRef is a rectangular block of cells. A zero FromRow/ToRow pair
// encodes a whole-column reference, a zero FromCol/ToCol pair a
// whole-row reference; the missing axis expands to the full sheet
// extent when the range is materialized.
type RangeRef struct {
	Sheet   string
	FromRow int
	FromCol int
	ToRow   int
	ToCol   int
}

// NewRangeRef builds a normalized range so that From <= To on each axis
func NewRangeRef(sheet string, fromRow, fromCol, toRow, toCol int) *RangeRef {
	r := &RangeRef{Sheet: sheet, FromRow: fromRow, FromCol: fromCol, ToRow: toRow, ToCol: toCol}
	r.normalize()
	return r
}

func (r *RangeRef) normalize() {
	if r.FromRow > r.ToRow {
		r.FromRow, r.ToRow = r.ToRow, r.FromRow
	}
	if r.FromCol > r.ToCol {
		r.FromCol, r.ToCol = r.ToCol, r.FromCol
	}
}

// WholeColumn reports whether the row axis is absent
func (r *RangeRef) WholeColumn() bool { return r.FromRow == 0 && r.ToRow == 0 }

// WholeRow reports whether the column axis is absent
func (r *RangeRef) WholeRow() bool { return r.FromCol == 0 && r.ToCol == 0 }

// Bounds returns the materialized extents, expanding absent axes to the
// full sheet.
func (r *RangeRef) Bounds() (fromRow, fromCol, toRow, toCol int) {
	fromRow, toRow = r.FromRow, r.ToRow
	if r.WholeColumn() {
		fromRow, toRow = 1, MaxRow
	}
	fromCol, toCol = r.FromCol, r.ToCol
	if r.WholeRow() {
		fromCol, toCol = 1, MaxColumn
	}
	return fromRow, fromCol, toRow, toCol
}

// SingleCell returns the sole cell of a 1x1 range, or nil
func (r *RangeRef) SingleCell() *CellRef {
	if r.FromRow != 0 && r.FromRow == r.ToRow && r.FromCol != 0 && r.FromCol == r.ToCol {
		return &CellRef{Sheet: r.Sheet, Row: r.FromRow, Col: r.FromCol}
	}
	return nil
}

// Contains reports whether the cell lies inside the range. Sheet names
// must match exactly; an empty sheet on either side matches only an
// empty sheet on the other.
func (r *RangeRef) Contains(c *CellRef) bool {
	if r.Sheet != c.Sheet {
		return false
	}
	fromRow, fromCol, toRow, toCol := r.Bounds()
	return c.Row >= fromRow && c.Row <= toRow && c.Col >= fromCol && c.Col <= toCol
}

func (r *RangeRef) String() string {
	var from, to string
	switch {
	case r.WholeColumn():
		from = ColumnNumberToName(r.FromCol)
		to = ColumnNumberToName(r.ToCol)
	case r.WholeRow():
		from = fmt.Sprint(r.FromRow)
		to = fmt.Sprint(r.ToRow)
	default:
		from = ColumnNumberToName(r.FromCol) + fmt.Sprint(r.FromRow)
		to = ColumnNumberToName(r.ToCol) + fmt.Sprint(r.ToRow)
	}
	addr := from + ":" + to
	if r.Sheet != "" {
		return quoteSheet(r.Sheet) + "!" + addr
	}
	return addr
}

// Collection is the result of the union operator: an ordered list of
// references with their retrieved values, in source order. A collection
// is only ever legal as a function argument; most functions reject it
// with #VALUE!. It always holds at least two entries because
// single-element unions collapse to their sole element before the
// collection is built.
type Collection struct {
	Values []Primitive // retrieved value of each reference
	Refs   []Primitive // *CellRef or *RangeRef, parallel to Values
}

// Size returns the number of references in the union
func (c *Collection) Size() int { return len(c.Refs) }

// quoteSheet wraps sheet names that need quoting in the display form
func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}
