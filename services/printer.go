package services

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"listings-ingest/models"
)

// Printer renders report tables and run summaries for the console.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter writes to out. ANSI colours are used only when color is set.
func NewPrinter(out io.Writer, color bool) *Printer {
	return &Printer{out: out, color: color}
}

func (p *Printer) heading(s string) string {
	if !p.color {
		return s
	}
	return "\033[1;33m" + s + "\033[0m"
}

// PrintTable renders one report with its column headers.
func (p *Printer) PrintTable(tbl *models.Table) {
	fmt.Fprintf(p.out, "  %s\n", p.heading(tbl.Title))

	if len(tbl.Rows) == 0 {
		fmt.Fprintf(p.out, "  No rows\n\n")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(tbl.Headers))
	for i, h := range tbl.Headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, row := range tbl.Rows {
		t.AppendRow(table.Row(row))
	}
	t.Render()
	fmt.Fprintln(p.out)
}

// PrintTables renders reports in order.
func (p *Printer) PrintTables(tables []*models.Table) {
	for _, tbl := range tables {
		p.PrintTable(tbl)
	}
}

// PrintSummary renders the ingestion run report.
func (p *Printer) PrintSummary(strategy models.Strategy, r *models.IngestReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(p.out, "\n%s\n", sep)
	fmt.Fprintf(p.out, "  %s\n", p.heading("INGESTION SUMMARY"))
	fmt.Fprintf(p.out, "%s\n", sep)
	fmt.Fprintf(p.out, "  Strategy            : %s\n", Describe(strategy))
	fmt.Fprintf(p.out, "  %s\n", thin)
	fmt.Fprintf(p.out, "  Rows read           : %d\n", r.RowsRead)
	fmt.Fprintf(p.out, "  Normalized          : %d\n", r.Normalized)
	fmt.Fprintf(p.out, "  Skipped (malformed) : %d\n", r.Malformed)
	fmt.Fprintf(p.out, "  Duplicates in batch : %d\n", r.Duplicates)
	fmt.Fprintf(p.out, "  Already stored      : %d\n", r.ExistingSkipped)
	fmt.Fprintf(p.out, "  New / updated       : %d / %d\n", r.New, r.Updates)
	fmt.Fprintf(p.out, "  Committed           : %d of %d in %d sub-batches\n", r.Committed, r.Planned, r.SubBatches)
	if r.StoredRows >= 0 {
		fmt.Fprintf(p.out, "  Stored rows         : %d\n", r.StoredRows)
	}
	fmt.Fprintf(p.out, "%s\n\n", sep)
}
