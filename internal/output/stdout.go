package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/jakopako/brandrank/internal/types"
	"github.com/jakopako/brandrank/internal/utils"
	"github.com/olekukonko/tablewriter"
)

const maxNameLength = 60

// StdoutWriter renders the results as tables.
type StdoutWriter struct {
	out    io.Writer
	logger *slog.Logger
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		out:    os.Stdout,
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

// NewTableWriter returns a StdoutWriter that renders to out.
func NewTableWriter(out io.Writer) *StdoutWriter {
	return &StdoutWriter{
		out:    out,
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

func (w *StdoutWriter) Write(products []types.Product, stats types.RunStats) error {
	if len(products) > 0 {
		table := tablewriter.NewWriter(w.out)
		table.Header("Position", "Page", "Brand", "Name", "Price")
		for _, p := range products {
			if err := table.Append([]string{
				strconv.Itoa(p.GlobalPosition),
				strconv.Itoa(p.Page),
				p.Brand,
				utils.ShortenString(p.Name, maxNameLength),
				p.PriceText,
			}); err != nil {
				return fmt.Errorf("error while adding product row: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("error while rendering products: %w", err)
		}
	} else {
		fmt.Fprintln(w.out, "No products found.")
	}

	average := "-"
	if stats.PriceCount > 0 {
		average = fmt.Sprintf("%d RUB", stats.AveragePrice)
	}
	table := tablewriter.NewWriter(w.out)
	table.Header("Products found", "Pages processed", "Average price")
	if err := table.Append([]string{
		strconv.Itoa(stats.ProductsFound),
		strconv.Itoa(stats.PagesProcessed),
		average,
	}); err != nil {
		return fmt.Errorf("error while adding stats row: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("error while rendering stats: %w", err)
	}
	w.logger.Debug(fmt.Sprintf("printed %d products", len(products)))
	return nil
}
