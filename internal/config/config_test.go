package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewRunConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    RunConfig
		wantErr string
	}{
		{
			name: "valid",
			args: []string{"https://example.com/search?q=x", "MediS", "1", "3"},
			want: RunConfig{SearchURL: "https://example.com/search?q=x", TargetBrand: "MediS", StartPage: 1, EndPage: 3},
		},
		{
			name:    "wrong arity",
			args:    []string{"https://example.com", "MediS", "1"},
			wantErr: "expected 4 arguments",
		},
		{
			name:    "non integer page",
			args:    []string{"https://example.com", "MediS", "one", "3"},
			wantErr: "invalid start page",
		},
		{
			name:    "end before start",
			args:    []string{"https://example.com", "MediS", "4", "3"},
			wantErr: "must be >= start page",
		},
		{
			name:    "zero start",
			args:    []string{"https://example.com", "MediS", "0", "3"},
			wantErr: "start page must be >= 1",
		},
		{
			name:    "empty brand",
			args:    []string{"https://example.com", "  ", "1", "3"},
			wantErr: "target brand",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRunConfig(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
			if got.PagesToProcess() != 3 {
				t.Fatalf("expected 3 pages to process, got %d", got.PagesToProcess())
			}
		})
	}
}

func TestNewEngineConfigDefaults(t *testing.T) {
	c, err := NewEngineConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(DefaultEngineConfig(), c); diff != "" {
		t.Fatalf("env defaults differ from built in defaults (-want +got):\n%s", diff)
	}
}

func TestNewEngineConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yml")
	content := `
scroll:
  saturation_count: 90
  fast_track_after: 20
timing:
  load_timeout: 10s
selectors:
  next_page: "a.next"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := NewEngineConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Scroll.SaturationCount != 90 || c.Scroll.FastTrackAfter != 20 {
		t.Fatalf("expected overridden thresholds, got %+v", c.Scroll)
	}
	if c.Timing.LoadTimeout != 10*time.Second {
		t.Fatalf("expected load timeout 10s, got %v", c.Timing.LoadTimeout)
	}
	if c.Selectors.NextPage != "a.next" {
		t.Fatalf("expected next page selector a.next, got %s", c.Selectors.NextPage)
	}
	if c.Scroll.MaxScrolls != 60 || c.Selectors.Card != "div.product-card-list > article.product-card" {
		t.Fatalf("expected defaults for unset fields, got %+v", c)
	}
}

func TestEngineConfigValidate(t *testing.T) {
	c := DefaultEngineConfig()
	c.Scroll.PauseMax = time.Second
	c.RowTolerance = 0
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"pause_max", "row_tolerance"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := DefaultEngineConfig().WriteYAML(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "engine.yml")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := NewEngineConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(DefaultEngineConfig(), c); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchURL(t *testing.T) {
	tests := []struct {
		query, want string
	}{
		{"маска", "https://www.wildberries.ru/catalog/0/search.aspx?search=%D0%BC%D0%B0%D1%81%D0%BA%D0%B0"},
		{" face mask ", "https://www.wildberries.ru/catalog/0/search.aspx?search=face%20mask"},
		{"a&b+c", "https://www.wildberries.ru/catalog/0/search.aspx?search=a%26b%2Bc"},
	}
	for _, tt := range tests {
		if got := SearchURL(tt.query); got != tt.want {
			t.Fatalf("SearchURL(%q) = %q, expected %q", tt.query, got, tt.want)
		}
	}
}
