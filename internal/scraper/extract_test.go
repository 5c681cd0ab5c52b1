package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jakopako/brandrank/internal/browser"
	"github.com/jakopako/brandrank/internal/config"
	"github.com/jakopako/brandrank/internal/events"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func intPtr(i int) *int { return &i }

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"1 234 ₽", intPtr(1234)},
		{"1 234 ₽", intPtr(1234)},
		{"N/A", nil},
		{"", nil},
		{"от 99 RUB", intPtr(99)},
		{"99999999999999999999999", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParsePrice(tt.in)); diff != "" {
			t.Fatalf("ParsePrice(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1 234 ₽", "1 234 RUB"},
		{"Оригинал ✓", "Оригинал [CHECK]"},
		{"✓ ₽", "[CHECK] RUB"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Fatalf("CleanText(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}

func TestBrandMatches(t *testing.T) {
	for _, brand := range []string{"medis", "MEDIS", "MediS ", " MediS"} {
		if !BrandMatches(brand, "MediS") {
			t.Fatalf("expected %q to match MediS", brand)
		}
	}
	for _, brand := range []string{"Medisana", "", "Medi S"} {
		if BrandMatches(brand, "MediS") {
			t.Fatalf("expected %q not to match MediS", brand)
		}
	}
}

func TestParseCard(t *testing.T) {
	sel := config.DefaultEngineConfig().Selectors
	tests := []struct {
		name    string
		html    string
		want    CardFields
		wantErr bool
	}{
		{
			name: "all fields",
			html: cardHTML("MediS", "Маска  медицинская", "1 234 ₽"),
			want: CardFields{Brand: "MediS", Name: "/ Маска медицинская", PriceText: "1 234 ₽", PriceNumeric: intPtr(1234)},
		},
		{
			name: "no price",
			html: cardHTML("MediS", "Маска", ""),
			want: CardFields{Brand: "MediS", Name: "/ Маска", PriceText: "N/A"},
		},
		{
			name:    "no brand",
			html:    `<article class="product-card"><span class="product-card__name">Маска</span></article>`,
			wantErr: true,
		},
		{
			name:    "no name",
			html:    `<article class="product-card"><span class="product-card__brand">MediS</span></article>`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCard(tt.html, sel)
			if tt.wantErr {
				if !errors.Is(err, errMissingField) {
					t.Fatalf("expected errMissingField, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected fields (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractRetriesStaleCards(t *testing.T) {
	tests := []struct {
		name       string
		staleReads int
		wantBrand  string
		wantReads  int
	}{
		{"recovers on second attempt", 1, "MediS", 2},
		{"recovers on last attempt", 2, "MediS", 3},
		{"gives up after three attempts", 3, "", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(t, nil)
			card := &browser.MockCard{HTML: cardHTML("MediS", "Маска", "500 ₽"), StaleReads: tt.staleReads}

			f := te.extract(context.Background(), card)
			if f.Brand != tt.wantBrand {
				t.Fatalf("expected brand %q, got %q", tt.wantBrand, f.Brand)
			}
			if card.Reads() != tt.wantReads {
				t.Fatalf("expected %d reads, got %d", tt.wantReads, card.Reads())
			}
			if errs := te.recorder.OfKind(events.KindError); len(errs) != 0 {
				t.Fatalf("staleness must not be reported as error, got %v", errs)
			}
		})
	}
}

func TestExtractReportsUnexpectedErrors(t *testing.T) {
	te := newTestEngine(t, nil)
	card := &browser.MockCard{Err: errors.New("target closed")}

	f := te.extract(context.Background(), card)
	if f != (CardFields{}) {
		t.Fatalf("expected empty fields, got %+v", f)
	}
	if card.Reads() != 1 {
		t.Fatalf("unexpected errors must not be retried, got %d reads", card.Reads())
	}
	errs := messages(te.recorder, events.KindError)
	if len(errs) != 1 || !strings.HasPrefix(errs[0], "Unexpected error parsing product: target closed") {
		t.Fatalf("unexpected error events %v", errs)
	}
	if got := testutil.ToFloat64(te.Metrics.ExtractionFailures.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 extraction failure, got %v", got)
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryPolicy{MaxAttempts: 5}.Do(ctx, func() error {
		calls++
		cancel()
		return browser.ErrStale
	}, nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
