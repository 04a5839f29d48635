// Command ffp evaluates Excel-dialect formulas against a YAML workbook
// fixture.
//
//	ffp -w book.yaml -p Sheet1!B2 '=SUM(A1:A3)'
//	ffp -w book.yaml -deps '=A1+Sheet2!B2:C3'
//	echo '=1+2*3' | ffp
//
// With no formula argument, formulas are read line by line from stdin.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	formula "github.com/uchwyt/fast-formula-parser"
)

var (
	errColor = color.New(color.FgRed).SprintFunc()
	refColor = color.New(color.FgCyan).SprintFunc()
)

func main() {
	workbookPath := flag.String("w", "", "YAML workbook file")
	positionAddr := flag.String("p", "A1", "evaluation position, e.g. Sheet1!B2")
	deps := flag.Bool("deps", false, "list referenced cells and ranges instead of evaluating")
	array := flag.Bool("array", false, "allow array results")
	flag.Parse()

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	position, err := parsePosition(*positionAddr)
	if err != nil {
		fatal(err)
	}

	var wb *Workbook
	if *workbookPath != "" {
		wb, err = LoadWorkbook(*workbookPath)
		if err != nil {
			fatal(err)
		}
	}

	run := func(text string) {
		if *deps {
			listDeps(text, position)
			return
		}
		evaluate(wb, text, position, *array)
	}

	if flag.NArg() > 0 {
		for _, text := range flag.Args() {
			run(text)
		}
		return
	}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		run(line)
	}
}

func parsePosition(addr string) (*formula.CellRef, error) {
	ref, err := formula.ParseAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid position %q: %w", addr, err)
	}
	cell, ok := ref.(*formula.CellRef)
	if !ok {
		return nil, fmt.Errorf("position %q is not a single cell", addr)
	}
	return cell, nil
}

func evaluate(wb *Workbook, text string, position *formula.CellRef, array bool) {
	cfg := formula.Config{}
	if wb != nil {
		cfg.OnCell = wb.Cell
		cfg.OnRange = wb.Range
	}
	engine := formula.NewFormulaParser(cfg)
	result, err := engine.Parse(text, position, array)
	if err != nil {
		fatal(err)
	}
	fmt.Println(render(result))
}

func listDeps(text string, position *formula.CellRef) {
	dp := formula.NewDepParser(nil)
	refs, err := dp.Parse(text, position, false)
	if err != nil {
		fmt.Println(errColor(err.Error()))
		return
	}
	for _, ref := range refs {
		fmt.Println(refColor(fmt.Sprint(ref)))
	}
}

func render(v formula.Primitive) string {
	switch t := v.(type) {
	case *formula.FormulaError:
		if t.Details != "" {
			return errColor(t.Code()) + "\n" + t.Details
		}
		return errColor(t.Code())
	case [][]formula.Primitive:
		var rows []string
		for _, row := range t {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = renderScalar(cell)
			}
			rows = append(rows, strings.Join(cells, "\t"))
		}
		return strings.Join(rows, "\n")
	}
	return renderScalar(v)
}

func renderScalar(v formula.Primitive) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case *formula.FormulaError:
		return errColor(t.Code())
	}
	return fmt.Sprint(v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, errColor(err.Error()))
	os.Exit(1)
}
