package monitor

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/jakopako/brandrank/internal/utils"
)

// Printer renders the event stream of a run for a terminal.
type Printer struct {
	out     io.Writer
	info    *color.Color
	warning *color.Color
	err     *color.Color
	heading *color.Color
	found   *color.Color
}

// NewPrinter returns a Printer writing to out. Colors are disabled if
// noColor is set or out is not a terminal.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	p := &Printer{
		out:     out,
		info:    color.New(color.FgCyan),
		warning: color.New(color.FgYellow),
		err:     color.New(color.FgRed, color.Bold),
		heading: color.New(color.Bold),
		found:   color.New(color.FgGreen),
	}
	if noColor {
		for _, c := range []*color.Color{p.info, p.warning, p.err, p.heading, p.found} {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) Event(ev events.Event) {
	switch ev := ev.(type) {
	case events.Message:
		switch ev.Level {
		case events.KindInfo:
			p.info.Fprintln(p.out, ev.Message)
		case events.KindWarning:
			p.warning.Fprintln(p.out, ev.Message)
		default:
			p.err.Fprintln(p.out, ev.Message)
		}
	case events.PageStart, events.ResultsHeader, events.Summary:
		p.heading.Fprintln(p.out, describe(ev))
	case events.ProductFound, events.ResultItem:
		p.found.Fprintln(p.out, describe(ev))
	default:
		fmt.Fprintln(p.out, describe(ev))
	}
}

// Raw prints a line that is not an event as it is.
func (p *Printer) Raw(line string) {
	fmt.Fprintln(p.out, line)
}

// Stderr prints a line the scraper wrote to its standard error.
func (p *Printer) Stderr(line string) {
	p.err.Fprintf(p.out, "[ERROR]: %s\n", line)
}

func describe(ev events.Event) string {
	switch ev := ev.(type) {
	case events.Message:
		return ev.Message
	case events.Config:
		return fmt.Sprintf("Looking for '%s' on pages %d to %d (%d pages) of %s", ev.TargetBrand, ev.StartPage, ev.EndPage, ev.PagesToProcess, ev.SearchURL)
	case events.PageStart:
		return fmt.Sprintf("=== Page %d of %d ===", ev.Page, ev.EndPage)
	case events.ScrollProgress:
		return fmt.Sprintf("Scroll %d/%d: %d products loaded (pause %.1fs)", ev.Scroll, ev.TotalScrolls, ev.ProductCount, ev.PauseTime)
	case events.PageAnalysis:
		return fmt.Sprintf("Analyzing %d products on page %d", ev.ProductCount, ev.Page)
	case events.ProductFound:
		return "Found " + product(ev.Product.GlobalPosition, ev.Product.Page, ev.Product.Brand, ev.Product.Name, ev.Product.PriceText)
	case events.Progress:
		return fmt.Sprintf("Processed %d/%d products on page %d", ev.Processed, ev.Total, ev.Page)
	case events.Navigation:
		return ev.Message
	case events.PageComplete:
		return fmt.Sprintf("Page %d complete: %d of %d products match", ev.Page, ev.ProductsFound, ev.ProductsOnPage)
	case events.Summary:
		return fmt.Sprintf("Summary: %d of %d products on %d pages belong to '%s'", ev.TargetBrandProductsFound, ev.TotalProductsAnalyzed, ev.PagesProcessed, ev.TargetBrand)
	case events.ResultsHeader:
		return "Results:"
	case events.ResultItem:
		return "  " + product(ev.Product.GlobalPosition, ev.Product.Page, ev.Product.Brand, ev.Product.Name, ev.Product.PriceText)
	case events.NoResults:
		return ev.Message
	case events.Unknown:
		return string(ev.Raw)
	}
	return fmt.Sprintf("%+v", ev)
}

func product(position, page int, brand, name, price string) string {
	name = utils.ShortenString(strings.TrimSpace(name), 50)
	return fmt.Sprintf("#%d (page %d): %s / %s, %s", position, page, brand, name, price)
}
