// Package monitor runs a ranking in a child process and follows its event
// stream, the way an external supervisor would.
package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/jakopako/brandrank/internal/types"
)

// maxLineSize bounds a single line of the child's output.
const maxLineSize = 1024 * 1024

// Monitor starts `scrape` runs of a brandrank executable.
type Monitor struct {
	// Executable is the brandrank binary, usually os.Executable().
	Executable string
	// Args are put in front of the scrape command, e.g. global flags.
	Args []string
	// Env is added to the environment of the child.
	Env []string
	// Grace is how long the child gets to stop after an interrupt before
	// it is killed.
	Grace   time.Duration
	Printer *Printer
}

// Report is what the monitor learned from a run.
type Report struct {
	Products []types.Product
	Stats    types.RunStats
	// Lines are the raw lines of the child's standard output.
	Lines   []string
	Summary *events.Summary
}

func (r *Report) add(ev events.Event) {
	switch ev := ev.(type) {
	case events.ProductFound:
		r.Products = append(r.Products, ev.Product)
		r.Stats.AddProduct(ev.Product)
	case events.PageComplete:
		r.Stats.PagesProcessed++
	case events.Summary:
		r.Stats.PagesProcessed = ev.PagesProcessed
		r.Summary = &ev
	}
}

type line struct {
	text   string
	stderr bool
}

// Run executes a scrape of rc and blocks until the child exited. Cancelling
// ctx interrupts the child. The report is returned even if the run failed.
func (m *Monitor) Run(ctx context.Context, rc config.RunConfig) (*Report, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	logger := slog.With(slog.String("component", "monitor"))

	args := append([]string{}, m.Args...)
	args = append(args, "scrape", rc.SearchURL, rc.TargetBrand, strconv.Itoa(rc.StartPage), strconv.Itoa(rc.EndPage))
	cmd := exec.CommandContext(ctx, m.Executable, args...)
	cmd.Env = append(os.Environ(), m.Env...)
	cmd.Cancel = func() error {
		logger.Info("interrupting scraper")
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = m.Grace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scraper: %w", err)
	}
	logger.Debug("started scraper", slog.Int("pid", cmd.Process.Pid), slog.Any("args", args))

	lines := make(chan line)
	var wg sync.WaitGroup
	wg.Add(2)
	go drain(stdout, false, lines, &wg, logger)
	go drain(stderr, true, lines, &wg, logger)
	go func() {
		wg.Wait()
		close(lines)
	}()

	report := &Report{}
	for l := range lines {
		if l.stderr {
			m.Printer.Stderr(l.text)
			continue
		}
		report.Lines = append(report.Lines, l.text)
		ev, err := events.Decode([]byte(l.text))
		if err != nil {
			logger.Debug("not an event", slog.String("line", l.text))
			m.Printer.Raw(l.text)
			continue
		}
		m.Printer.Event(ev)
		report.add(ev)
	}

	// all pipes are drained at this point
	err = cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return report, fmt.Errorf("scraper exited with code %d", exitErr.ExitCode())
	}
	return report, err
}

func drain(r io.Reader, stderr bool, lines chan<- line, wg *sync.WaitGroup, logger *slog.Logger) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines <- line{text: scanner.Text(), stderr: stderr}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("error while reading scraper output", slog.Bool("stderr", stderr), slog.String("err", err.Error()))
		// keep the child from blocking on a full pipe
		io.Copy(io.Discard, r)
	}
}
