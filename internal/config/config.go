// Package config holds the parameters of a ranking run. The run parameters
// come from the command line, the engine parameters (selectors, timings and
// the scroll heuristics) from an optional yml file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// SearchURLTemplate is used to build a search url from a free text query.
const SearchURLTemplate = "https://www.wildberries.ru/catalog/0/search.aspx?search=%s"

// SearchURL returns the search url for query. Spaces are encoded as %20.
func SearchURL(query string) string {
	q := strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(query)), "+", "%20")
	return fmt.Sprintf(SearchURLTemplate, q)
}

// RunConfig defines what a single run is looking for.
type RunConfig struct {
	SearchURL   string
	TargetBrand string
	StartPage   int
	EndPage     int
}

// PagesToProcess returns the number of pages in the configured range.
func (c RunConfig) PagesToProcess() int {
	return c.EndPage - c.StartPage + 1
}

func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.SearchURL) == "" {
		return errors.New("search url must not be empty")
	}
	if strings.TrimSpace(c.TargetBrand) == "" {
		return errors.New("target brand must not be empty")
	}
	if c.StartPage < 1 {
		return fmt.Errorf("start page must be >= 1, got %d", c.StartPage)
	}
	if c.EndPage < c.StartPage {
		return fmt.Errorf("end page (%d) must be >= start page (%d)", c.EndPage, c.StartPage)
	}
	return nil
}

// NewRunConfig builds a RunConfig from the four positional arguments
// search url, brand, start page and end page.
func NewRunConfig(args []string) (RunConfig, error) {
	if len(args) != 4 {
		return RunConfig{}, fmt.Errorf("expected 4 arguments, got %d", len(args))
	}
	start, err := strconv.Atoi(strings.TrimSpace(args[2]))
	if err != nil {
		return RunConfig{}, fmt.Errorf("invalid start page %q: %w", args[2], err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(args[3]))
	if err != nil {
		return RunConfig{}, fmt.Errorf("invalid end page %q: %w", args[3], err)
	}
	c := RunConfig{
		SearchURL:   args[0],
		TargetBrand: args[1],
		StartPage:   start,
		EndPage:     end,
	}
	return c, c.Validate()
}

// BrowserConfig configures the browser session.
type BrowserConfig struct {
	Headless     bool   `yaml:"headless" env:"BRANDRANK_HEADLESS" env-default:"false" env-description:"run chrome without a window"`
	Stealth      bool   `yaml:"stealth" env:"BRANDRANK_STEALTH" env-default:"true" env-description:"inject the stealth evasion script into every document"`
	UserAgent    string `yaml:"user_agent" env:"BRANDRANK_USER_AGENT" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"`
	WindowWidth  int    `yaml:"window_width" env:"BRANDRANK_WINDOW_WIDTH" env-default:"1920"`
	WindowHeight int    `yaml:"window_height" env:"BRANDRANK_WINDOW_HEIGHT" env-default:"1080"`
	ExecPath     string `yaml:"exec_path" env:"BRANDRANK_CHROME_PATH" env-description:"path to the chrome binary, looked up if empty"`
}

// Selectors locate the parts of a results page.
type Selectors struct {
	Card     string `yaml:"card" env:"BRANDRANK_CARD_SELECTOR" env-default:"div.product-card-list > article.product-card"`
	Brand    string `yaml:"brand" env:"BRANDRANK_BRAND_SELECTOR" env-default:".product-card__brand"`
	Name     string `yaml:"name" env:"BRANDRANK_NAME_SELECTOR" env-default:".product-card__name"`
	Price    string `yaml:"price" env:"BRANDRANK_PRICE_SELECTOR" env-default:".price__lower-price"`
	NextPage string `yaml:"next_page" env:"BRANDRANK_NEXT_PAGE_SELECTOR" env-default:".pagination-next"`
}

// ScrollConfig holds the scroll completion heuristics. The defaults are tuned
// against a single site and should not be expected to fit other layouts.
type ScrollConfig struct {
	MaxScrolls      int           `yaml:"max_scrolls" env:"BRANDRANK_MAX_SCROLLS" env-default:"60"`
	ScrollIncrement int           `yaml:"scroll_increment" env:"BRANDRANK_SCROLL_INCREMENT" env-default:"600"`
	PauseMin        time.Duration `yaml:"pause_min" env:"BRANDRANK_PAUSE_MIN" env-default:"1.5s"`
	PauseMax        time.Duration `yaml:"pause_max" env:"BRANDRANK_PAUSE_MAX" env-default:"3s"`
	WarmupScrolls   int           `yaml:"warmup_scrolls" env:"BRANDRANK_WARMUP_SCROLLS" env-default:"3" env-description:"number of initial iterations with 1.5x longer pauses"`
	Settle          time.Duration `yaml:"settle" env:"BRANDRANK_SCROLL_SETTLE" env-default:"500ms"`
	SaturationCount int           `yaml:"saturation_count" env:"BRANDRANK_SATURATION_COUNT" env-default:"150"`
	FastTrackAfter  int           `yaml:"fast_track_after" env:"BRANDRANK_FAST_TRACK_AFTER" env-default:"40"`
	StableChecks    int           `yaml:"stable_checks" env:"BRANDRANK_STABLE_CHECKS" env-default:"2"`
}

// TimingConfig holds the remaining waits of a run.
type TimingConfig struct {
	InitialLoadWait  time.Duration `yaml:"initial_load_wait" env:"BRANDRANK_INITIAL_LOAD_WAIT" env-default:"5s"`
	LoadTimeout      time.Duration `yaml:"load_timeout" env:"BRANDRANK_LOAD_TIMEOUT" env-default:"40s"`
	FinalSettle      time.Duration `yaml:"final_settle" env:"BRANDRANK_FINAL_SETTLE" env-default:"2s"`
	NavigationSettle time.Duration `yaml:"navigation_settle" env:"BRANDRANK_NAVIGATION_SETTLE" env-default:"2s"`
	PageDelayMin     time.Duration `yaml:"page_delay_min" env:"BRANDRANK_PAGE_DELAY_MIN" env-default:"3s"`
	PageDelayMax     time.Duration `yaml:"page_delay_max" env:"BRANDRANK_PAGE_DELAY_MAX" env-default:"5s"`
	RetryAttempts    int           `yaml:"retry_attempts" env:"BRANDRANK_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelay       time.Duration `yaml:"retry_delay" env:"BRANDRANK_RETRY_DELAY" env-default:"800ms"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace" env:"BRANDRANK_SHUTDOWN_GRACE" env-default:"1s"`
}

// EngineConfig defines how the engine interacts with the site.
type EngineConfig struct {
	Browser      BrowserConfig `yaml:"browser"`
	Selectors    Selectors     `yaml:"selectors"`
	Scroll       ScrollConfig  `yaml:"scroll"`
	Timing       TimingConfig  `yaml:"timing"`
	RowTolerance float64       `yaml:"row_tolerance" env:"BRANDRANK_ROW_TOLERANCE" env-default:"10"`
	ProgressStep int           `yaml:"progress_step" env:"BRANDRANK_PROGRESS_STEP" env-default:"15"`
}

// NewEngineConfig reads the engine configuration from configPath, or from
// the environment only if configPath is empty. Missing values are filled
// with their defaults.
func NewEngineConfig(configPath string) (*EngineConfig, error) {
	var config EngineConfig
	var err error
	if configPath != "" {
		err = cleanenv.ReadConfig(configPath, &config)
	} else {
		err = cleanenv.ReadEnv(&config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read engine config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultEngineConfig returns the built in defaults, ignoring the environment.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Browser: BrowserConfig{
			Stealth:      true,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Selectors: Selectors{
			Card:     "div.product-card-list > article.product-card",
			Brand:    ".product-card__brand",
			Name:     ".product-card__name",
			Price:    ".price__lower-price",
			NextPage: ".pagination-next",
		},
		Scroll: ScrollConfig{
			MaxScrolls:      60,
			ScrollIncrement: 600,
			PauseMin:        1500 * time.Millisecond,
			PauseMax:        3 * time.Second,
			WarmupScrolls:   3,
			Settle:          500 * time.Millisecond,
			SaturationCount: 150,
			FastTrackAfter:  40,
			StableChecks:    2,
		},
		Timing: TimingConfig{
			InitialLoadWait:  5 * time.Second,
			LoadTimeout:      40 * time.Second,
			FinalSettle:      2 * time.Second,
			NavigationSettle: 2 * time.Second,
			PageDelayMin:     3 * time.Second,
			PageDelayMax:     5 * time.Second,
			RetryAttempts:    3,
			RetryDelay:       800 * time.Millisecond,
			ShutdownGrace:    time.Second,
		},
		RowTolerance: 10,
		ProgressStep: 15,
	}
}

func (c *EngineConfig) Validate() error {
	var errs []error
	if c.Selectors.Card == "" || c.Selectors.Brand == "" || c.Selectors.Name == "" {
		errs = append(errs, errors.New("card, brand and name selectors are required"))
	}
	if c.Scroll.MaxScrolls < 1 {
		errs = append(errs, fmt.Errorf("max_scrolls must be >= 1, got %d", c.Scroll.MaxScrolls))
	}
	if c.Scroll.StableChecks < 1 {
		errs = append(errs, fmt.Errorf("stable_checks must be >= 1, got %d", c.Scroll.StableChecks))
	}
	if c.Scroll.PauseMax < c.Scroll.PauseMin {
		errs = append(errs, fmt.Errorf("pause_max (%v) must be >= pause_min (%v)", c.Scroll.PauseMax, c.Scroll.PauseMin))
	}
	if c.Timing.PageDelayMax < c.Timing.PageDelayMin {
		errs = append(errs, fmt.Errorf("page_delay_max (%v) must be >= page_delay_min (%v)", c.Timing.PageDelayMax, c.Timing.PageDelayMin))
	}
	if c.Timing.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry_attempts must be >= 1, got %d", c.Timing.RetryAttempts))
	}
	if c.RowTolerance <= 0 {
		errs = append(errs, fmt.Errorf("row_tolerance must be > 0, got %v", c.RowTolerance))
	}
	if c.ProgressStep < 1 {
		errs = append(errs, fmt.Errorf("progress_step must be >= 1, got %d", c.ProgressStep))
	}
	return errors.Join(errs...)
}

// WriteYAML writes the configuration in the format NewEngineConfig reads.
func (c *EngineConfig) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// EnvUsage describes the environment variables understood by NewEngineConfig.
func EnvUsage() (string, error) {
	var config EngineConfig
	return cleanenv.GetDescription(&config, nil)
}
