package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnNameToNumber converts a column name to its 1-based number,
// base-26 with A=1, so AA=27 and XFD=16384.
func ColumnNameToNumber(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	n := 0
	for _, ch := range name {
		switch {
		case ch >= 'A' && ch <= 'Z':
			n = n*26 + int(ch-'A') + 1
		case ch >= 'a' && ch <= 'z':
			n = n*26 + int(ch-'a') + 1
		default:
			return 0, fmt.Errorf("invalid column name %q", name)
		}
		if n > MaxColumn {
			return 0, fmt.Errorf("column %q out of range", name)
		}
	}
	return n, nil
}

// ColumnNumberToName converts a 1-based column number to its name
func ColumnNumberToName(n int) string {
	if n < 1 {
		return ""
	}
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

// ParseCellAddress parses an A1-style address, tolerating absolute
// markers and lowercase letters. The sheet part is not accepted here;
// parse it off before calling.
func ParseCellAddress(s string) (CellRef, error) {
	rest := strings.TrimPrefix(s, "$")
	letterEnd := 0
	for letterEnd < len(rest) {
		ch := rest[letterEnd]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
			letterEnd++
		} else {
			break
		}
	}
	if letterEnd == 0 || letterEnd > 3 {
		return CellRef{}, fmt.Errorf("invalid cell address %q", s)
	}
	col, err := ColumnNameToNumber(rest[:letterEnd])
	if err != nil {
		return CellRef{}, fmt.Errorf("invalid cell address %q", s)
	}
	rowStr := strings.TrimPrefix(rest[letterEnd:], "$")
	row, err := strconv.Atoi(rowStr)
	if err != nil || row < 1 || row > MaxRow {
		return CellRef{}, fmt.Errorf("invalid cell address %q", s)
	}
	ref := CellRef{Row: row, Col: col}
	if !ref.Valid() {
		return CellRef{}, fmt.Errorf("cell address %q out of range", s)
	}
	return ref, nil
}

// ParseAddress parses a cell or range address, with an optional sheet
// prefix, into a *CellRef or *RangeRef.
func ParseAddress(s string) (Primitive, error) {
	sheet := ""
	rest := s
	if i := strings.LastIndex(rest, "!"); i >= 0 {
		sheet = rest[:i]
		rest = rest[i+1:]
		if strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") && len(sheet) >= 2 {
			sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
		}
	}
	if from, to, ok := strings.Cut(rest, ":"); ok {
		a, err := ParseCellAddress(from)
		if err != nil {
			// try whole-column (A:B) and whole-row (1:3) spellings
			if colFrom, cerr := ColumnNameToNumber(strings.TrimPrefix(from, "$")); cerr == nil {
				colTo, cerr2 := ColumnNameToNumber(strings.TrimPrefix(to, "$"))
				if cerr2 != nil {
					return nil, fmt.Errorf("invalid range address %q", s)
				}
				return NewRangeRef(sheet, 0, colFrom, 0, colTo), nil
			}
			rowFrom, rerr := strconv.Atoi(strings.TrimPrefix(from, "$"))
			rowTo, rerr2 := strconv.Atoi(strings.TrimPrefix(to, "$"))
			if rerr != nil || rerr2 != nil || rowFrom < 1 || rowTo < 1 || rowFrom > MaxRow || rowTo > MaxRow {
				return nil, fmt.Errorf("invalid range address %q", s)
			}
			return NewRangeRef(sheet, rowFrom, 0, rowTo, 0), nil
		}
		b, err := ParseCellAddress(to)
		if err != nil {
			return nil, fmt.Errorf("invalid range address %q", s)
		}
		return NewRangeRef(sheet, a.Row, a.Col, b.Row, b.Col), nil
	}
	ref, err := ParseCellAddress(rest)
	if err != nil {
		return nil, err
	}
	ref.Sheet = sheet
	return &ref, nil
}
