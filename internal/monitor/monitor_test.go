package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/jakopako/brandrank/internal/types"
)

const helperEnv = "BRANDRANK_HELPER_PROCESS"

func price(i int) *int { return &i }

var (
	first  = types.Product{GlobalPosition: 3, Brand: "MediS", Name: "Маска", PriceText: "1 000 RUB", PriceNumeric: price(1000), Page: 1}
	second = types.Product{GlobalPosition: 120, Brand: "MediS", Name: "Бинт", PriceText: "N/A", Page: 2}
)

// TestHelperProcess is not a real test. It stands in for the scraper when
// started by the monitor.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	emitter := events.NewEmitter(os.Stdout)
	switch mode {
	case "ok":
		args := os.Args[len(os.Args)-5:]
		if args[0] != "scrape" {
			fmt.Fprintf(os.Stderr, "unexpected args %v\n", os.Args)
			os.Exit(2)
		}
		emitter.Emit(events.Info("Target brand: %s", args[2]))
		emitter.Emit(events.ProductFound{Product: first})
		emitter.Emit(events.PageComplete{Page: 1, ProductsFound: 1, ProductsOnPage: 100})
		fmt.Println("DevTools listening on ws://127.0.0.1")
		fmt.Fprintln(os.Stderr, "chrome crashed once")
		emitter.Emit(events.ProductFound{Product: second})
		emitter.Emit(events.PageComplete{Page: 2, ProductsFound: 1, ProductsOnPage: 100})
		emitter.Emit(events.Summary{TargetBrand: "MediS", PagesProcessed: 2, TotalProductsAnalyzed: 200, TargetBrandProductsFound: 2})
		os.Exit(0)
	case "fail":
		emitter.Emit(events.Critical("Critical error during execution: chrome not found"))
		os.Exit(1)
	case "interruptible":
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		emitter.Emit(events.Info("ready"))
		<-c
		emitter.Emit(events.Warning("Run cancelled, discarding results."))
		os.Exit(0)
	case "stubborn":
		signal.Ignore(os.Interrupt)
		emitter.Emit(events.Info("ready"))
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(3)
}

func newMonitor(mode string, out *bytes.Buffer) *Monitor {
	return &Monitor{
		Executable: os.Args[0],
		Args:       []string{"-test.run=TestHelperProcess", "--"},
		Env:        []string{helperEnv + "=" + mode},
		Grace:      200 * time.Millisecond,
		Printer:    NewPrinter(out, true),
	}
}

var rc = config.RunConfig{SearchURL: config.SearchURL("маска"), TargetBrand: "MediS", StartPage: 1, EndPage: 2}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	report, err := newMonitor("ok", &out).Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out.String())
	}

	if diff := cmp.Diff([]types.Product{first, second}, report.Products); diff != "" {
		t.Fatalf("unexpected products (-want +got):\n%s", diff)
	}
	want := types.RunStats{ProductsFound: 2, PagesProcessed: 2, TotalPrice: 1000, PriceCount: 1, AveragePrice: 1000}
	if diff := cmp.Diff(want, report.Stats); diff != "" {
		t.Fatalf("unexpected stats (-want +got):\n%s", diff)
	}
	if report.Summary == nil || report.Summary.TotalProductsAnalyzed != 200 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
	if len(report.Lines) != 7 {
		t.Fatalf("expected 7 stdout lines, got %d", len(report.Lines))
	}

	printed := out.String()
	for _, s := range []string{
		"Target brand: MediS",
		"Found #3 (page 1): MediS / Маска, 1 000 RUB",
		"DevTools listening on ws://127.0.0.1",
		"[ERROR]: chrome crashed once",
		"Summary: 2 of 200 products on 2 pages belong to 'MediS'",
	} {
		if !strings.Contains(printed, s) {
			t.Fatalf("expected %q in output:\n%s", s, printed)
		}
	}
}

func TestRunFailure(t *testing.T) {
	var out bytes.Buffer
	report, err := newMonitor("fail", &out).Run(context.Background(), rc)
	if err == nil || err.Error() != "scraper exited with code 1" {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil || len(report.Lines) != 1 {
		t.Fatalf("expected the critical error line in the report")
	}
	if !strings.Contains(out.String(), "Critical error during execution: chrome not found") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRunInvalidConfig(t *testing.T) {
	var out bytes.Buffer
	bad := rc
	bad.StartPage = 3
	if _, err := newMonitor("ok", &out).Run(context.Background(), bad); err == nil {
		t.Fatalf("expected an error")
	}
}

// notifyWriter calls fn the first time s is written.
type notifyWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	s    string
	fn   func()
	done bool
}

func (w *notifyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.buf.Write(p)
	if !w.done && strings.Contains(w.buf.String(), w.s) {
		w.done = true
		w.fn()
	}
	return n, err
}

func TestRunInterrupt(t *testing.T) {
	tests := []struct {
		mode    string
		warning bool
	}{
		{"interruptible", true},
		{"stubborn", false},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			w := &notifyWriter{s: "ready", fn: cancel}
			m := newMonitor(tt.mode, nil)
			m.Printer = NewPrinter(w, true)

			start := time.Now()
			report, err := m.Run(ctx, rc)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			if time.Since(start) > 30*time.Second {
				t.Fatalf("the child was not stopped")
			}
			got := false
			for _, l := range report.Lines {
				if strings.Contains(l, "Run cancelled") {
					got = true
				}
			}
			if got != tt.warning {
				t.Fatalf("expected cancellation warning %v, got lines %v", tt.warning, report.Lines)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		ev   events.Event
		want string
	}{
		{events.PageStart{Page: 2, EndPage: 3}, "=== Page 2 of 3 ==="},
		{events.ScrollProgress{Scroll: 4, TotalScrolls: 60, ProductCount: 80, PauseTime: 2.3}, "Scroll 4/60: 80 products loaded (pause 2.3s)"},
		{events.PageAnalysis{Page: 1, ProductCount: 100}, "Analyzing 100 products on page 1"},
		{events.Progress{Processed: 15, Total: 100, Page: 1}, "Processed 15/100 products on page 1"},
		{events.Navigation{Message: "Navigating to page 2...", Page: 2}, "Navigating to page 2..."},
		{events.PageComplete{Page: 1, ProductsFound: 2, ProductsOnPage: 100}, "Page 1 complete: 2 of 100 products match"},
		{events.ResultItem{Product: second}, "  #120 (page 2): MediS / Бинт, N/A"},
		{events.NoResults{Message: "No products found for brand 'X' across 1 pages."}, "No products found for brand 'X' across 1 pages."},
		{events.Unknown{Type: "heartbeat", Raw: []byte(`{"type":"heartbeat"}`)}, `{"type":"heartbeat"}`},
	}
	for _, tt := range tests {
		if got := describe(tt.ev); got != tt.want {
			t.Fatalf("describe(%+v) = %q, expected %q", tt.ev, got, tt.want)
		}
	}
}

func TestPrinterLevels(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, true)
	p.Event(events.Info("one"))
	p.Event(events.Warning("two"))
	p.Event(events.Error("three"))
	p.Raw("{not json")
	p.Stderr("boom")
	if diff := cmp.Diff("one\ntwo\nthree\n{not json\n[ERROR]: boom\n", out.String()); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}
}
