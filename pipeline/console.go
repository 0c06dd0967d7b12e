package pipeline

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-scrape-editions/models"
)

// TextWriter prints the plain listing: a header block, then one
// "<edition>: <price>" line per listing.
type TextWriter struct {
	out io.Writer
}

// NewTextWriter writes to out.
func NewTextWriter(out io.Writer) *TextWriter {
	return &TextWriter{out: out}
}

func (tw *TextWriter) Write(report *models.Report) error {
	if _, err := io.WriteString(tw.out, Header(report)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, listing := range report.Listings {
		if _, err := fmt.Fprintf(tw.out, "%s: %s\n", listing.Edition, listing.Price); err != nil {
			return fmt.Errorf("write listing: %w", err)
		}
	}
	return nil
}

func (tw *TextWriter) Close() error    { return nil }
func (tw *TextWriter) Validate() error { return nil }

// Header returns the fixed text printed before the listing.
func Header(report *models.Report) string {
	return fmt.Sprintf("\n%s current pricing:\n(prices in %s before tax and other fees)\n\n",
		report.Product, report.TargetCurrency)
}

// TableWriter renders the listing as a table.
type TableWriter struct {
	out io.Writer
}

// NewTableWriter writes to out.
func NewTableWriter(out io.Writer) *TableWriter {
	return &TableWriter{out: out}
}

func (tw *TableWriter) Write(report *models.Report) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(tw.out)
	t.SetTitle("%s current pricing", report.Product)
	t.AppendHeader(table.Row{"Edition", report.SourceCurrency, report.TargetCurrency})
	for _, listing := range report.Listings {
		t.AppendRow(table.Row{listing.Edition, listing.SourcePrice, listing.Price})
	}
	t.SetCaption("rate %s, prices before tax and other fees", report.Rate.String())
	t.Render()
	return nil
}

func (tw *TableWriter) Close() error    { return nil }
func (tw *TableWriter) Validate() error { return nil }
