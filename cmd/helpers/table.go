package helpers

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// tableRendition is the borderless layout every nxauth table uses: a
// single space between columns, no rules, no header underline
func tableRendition() tw.Rendition {
	symbols := tw.NewSymbolCustom("Nxauth").
		WithRow(" ").
		WithColumn(" ").
		WithTopLeft("").
		WithTopMid(" ").
		WithTopRight(" ").
		WithMidLeft(" ").
		WithCenter(" ").
		WithMidRight(" ").
		WithBottomLeft(" ").
		WithBottomMid(" ").
		WithBottomRight(" ")

	rd := tw.Rendition{Symbols: symbols}
	rd.Settings.Lines.ShowHeaderLine = tw.Off
	return rd
}

func renderTable(out io.Writer, headers []string, rows [][]any) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No data to display")
		return
	}

	cnf := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Row: tw.CellConfig{
			Merging:   tw.CellMerging{Mode: tw.MergeHierarchical},
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
	}

	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewBlueprint(tableRendition())),
		tablewriter.WithConfig(cnf),
	)

	headerAny := make([]any, len(headers))
	for i, h := range headers {
		headerAny[i] = h
	}
	table.Header(headerAny...)
	table.Bulk(rows)
	table.Render()
}

// PrintTable prints rows under the given column headers
func PrintTable(headers []string, rows [][]any) {
	renderTable(os.Stdout, headers, rows)
}

// PrintKeyValues prints ordered name/value pairs as a two-column
// table. Rows keep the order they were given in.
func PrintKeyValues(rows [][]any) {
	renderTable(os.Stdout, []string{"Key", "Value"}, rows)
}
