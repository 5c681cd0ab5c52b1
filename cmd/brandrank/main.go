/*
brandrank reports the positions of a brand's listings in the search results
of a marketplace.

Run `brandrank --help` for the available commands.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/jakopako/brandrank/internal/log"
	"github.com/jakopako/brandrank/internal/metrics"
	"github.com/jakopako/brandrank/internal/monitor"
	"github.com/jakopako/brandrank/internal/output"
	"github.com/jakopako/brandrank/internal/scraper"
)

var version = "dev"

const name = "brandrank"

const usage = "Usage: brandrank <search_url> <target_brand> <start_page> <end_page>"

// newLauncher is replaced in tests.
var newLauncher = func(cfg *config.EngineConfig) browser.Launcher {
	return browser.NewChromeLauncher(cfg.Browser, cfg.Selectors)
}

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Fprintln(app.Stdout, vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version     VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug       bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`
	Config      string      `short:"c" long:"config" help:"An optional yml file with engine settings. Without it the settings are read from the environment." type:"path"`
	MetricsFile string      `long:"metrics-file" help:"Write run metrics to this file in the prometheus text format." type:"path"`

	Scrape ScrapeCmd `cmd:"" default:"withargs" help:"Rank a brand and write the progress as json lines to stdout (default command)."`
	Watch  WatchCmd  `cmd:"" help:"Run a ranking in a child process and follow it in the terminal."`
	Show   ConfigCmd `cmd:"" name:"config" help:"Print the effective engine configuration."`
}

// streams are the standard streams of the process, swapped in tests.
type streams struct {
	stdout io.Writer
	stderr io.Writer
}

type ScrapeCmd struct {
	Args   []string `arg:"" optional:"" name:"args" help:"<search_url> <target_brand> <start_page> <end_page>"`
	Output string   `short:"o" help:"Also write the found products and stats to this json file." type:"path"`
}

func (s *ScrapeCmd) Run(ctx context.Context, c *cli, st *streams) error {
	emitter := events.NewEmitter(st.stdout)
	rc, err := config.NewRunConfig(s.Args)
	if err != nil {
		emitter.Emit(events.Error("%s (%v)", usage, err))
		return err
	}
	cfg, err := config.NewEngineConfig(c.Config)
	if err != nil {
		emitter.Emit(events.Error("Invalid engine configuration: %v", err))
		return err
	}

	m := metrics.NewMetrics()
	engine := scraper.NewEngine(cfg, newLauncher(cfg), emitter, m)
	start := time.Now()
	res, err := engine.Run(ctx, rc)
	m.SetRunDuration(time.Since(start).Seconds())
	if c.MetricsFile != "" {
		if werr := m.WriteToTextfile(c.MetricsFile); werr != nil {
			slog.Error(fmt.Sprintf("error while writing metrics: %v", werr))
		}
	}
	if err != nil {
		return err
	}
	if s.Output != "" {
		writer, err := output.NewWriter(&output.WriterConfig{Type: output.FILE_WRITER_TYPE, File: s.Output})
		if err != nil {
			emitter.Emit(events.Error("Could not save results: %v", err))
			return err
		}
		if err := writer.Write(res.Products, res.Stats); err != nil {
			emitter.Emit(events.Error("Could not save results: %v", err))
			return err
		}
	}
	return nil
}

type WatchCmd struct {
	Query     string        `arg:"" optional:"" help:"The search query. Ignored if --url is given."`
	URL       string        `short:"u" name:"url" help:"An already encoded search url."`
	Brand     string        `short:"b" required:"" help:"The brand to rank."`
	StartPage int           `short:"s" name:"start-page" default:"1" help:"The first page to process."`
	EndPage   int           `short:"e" name:"end-page" default:"3" help:"The last page to process."`
	Save      string        `short:"o" help:"Save the raw output of the run to this file. Files ending in .json get the found products instead." type:"path"`
	NoColor   bool          `name:"no-color" help:"Disable colored output."`
	Grace     time.Duration `default:"5s" help:"How long the run gets to stop after Ctrl-C before it is killed."`
}

func (w *WatchCmd) Run(ctx context.Context, c *cli, st *streams) error {
	searchURL := w.URL
	if searchURL == "" {
		if strings.TrimSpace(w.Query) == "" {
			return errors.New("either a search query or --url is required")
		}
		searchURL = config.SearchURL(w.Query)
	}
	rc := config.RunConfig{SearchURL: searchURL, TargetBrand: w.Brand, StartPage: w.StartPage, EndPage: w.EndPage}
	if err := rc.Validate(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate the brandrank executable: %w", err)
	}
	var args []string
	if c.Debug {
		args = append(args, "--debug")
	}
	if c.Config != "" {
		args = append(args, "--config", c.Config)
	}
	if c.MetricsFile != "" {
		args = append(args, "--metrics-file", c.MetricsFile)
	}

	fmt.Fprintf(st.stdout, "Search URL: %s\n", searchURL)
	m := &monitor.Monitor{
		Executable: exe,
		Args:       args,
		Grace:      w.Grace,
		Printer:    monitor.NewPrinter(st.stdout, w.NoColor),
	}
	report, runErr := m.Run(ctx, rc)
	if report == nil {
		return runErr
	}

	fmt.Fprintln(st.stdout)
	if err := output.NewTableWriter(st.stdout).Write(report.Products, report.Stats); err != nil {
		slog.Error(err.Error())
	}
	if w.Save != "" {
		if err := save(w.Save, report); err != nil {
			return err
		}
		fmt.Fprintf(st.stdout, "Results saved to %s\n", w.Save)
	}
	return runErr
}

func save(file string, report *monitor.Report) error {
	if strings.EqualFold(filepath.Ext(file), ".json") {
		writer, err := output.NewWriter(&output.WriterConfig{Type: output.FILE_WRITER_TYPE, File: file})
		if err != nil {
			return err
		}
		return writer.Write(report.Products, report.Stats)
	}
	if len(report.Lines) == 0 {
		return errors.New("no results to save")
	}
	return output.WriteLines(file, report.Lines)
}

type ConfigCmd struct {
	Env bool `short:"E" name:"env" help:"List the environment variables instead."`
}

func (e *ConfigCmd) Run(c *cli, st *streams) error {
	if e.Env {
		text, err := config.EnvUsage()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(st.stdout, text)
		return err
	}
	cfg, err := config.NewEngineConfig(c.Config)
	if err != nil {
		return err
	}
	return cfg.WriteYAML(st.stdout)
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

// run executes the command line args and returns the exit code.
func run(ctx context.Context, args []string, st *streams) int {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}
	parser, err := kong.New(&cli,
		kong.Name(name),
		kong.Description("Find the positions of a brand in marketplace search results."),
		kong.Writers(st.stdout, st.stderr),
		kong.Vars{
			"version": string(cli.Version),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(st),
	)
	if err != nil {
		panic(err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		events.NewEmitter(st.stdout).Emit(events.Error("%s (%v)", usage, err))
		return 1
	}

	log.Debug = cli.Debug
	// stdout carries the event stream
	log.InitializeDefaultLogger(st.stderr)

	if err := kctx.Run(&cli); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		// scrape reports its errors as events
		if !strings.HasPrefix(kctx.Command(), "scrape") {
			fmt.Fprintf(st.stderr, "%s: error: %v\n", name, err)
		}
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], &streams{stdout: os.Stdout, stderr: os.Stderr})
	stop()
	os.Exit(code)
}
