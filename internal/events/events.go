// Package events defines the line oriented event stream a run reports its
// progress on. Every event is a single JSON object carrying a "type" field.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jakopako/brandrank/internal/types"
)

// Kind is the value of the "type" field of an event.
type Kind string

const (
	KindInfo           Kind = "info"
	KindWarning        Kind = "warning"
	KindError          Kind = "error"
	KindCriticalError  Kind = "critical_error"
	KindConfig         Kind = "config"
	KindPageStart      Kind = "page_start"
	KindScrollProgress Kind = "scroll_progress"
	KindPageAnalysis   Kind = "page_analysis"
	KindProductFound   Kind = "product_found"
	KindProgress       Kind = "progress"
	KindNavigation     Kind = "navigation"
	KindPageComplete   Kind = "page_complete"
	KindSummary        Kind = "summary"
	KindResultsHeader  Kind = "results_header"
	KindResultItem     Kind = "result_item"
	KindNoResults      Kind = "no_results"
)

// Event is implemented by the event types of this package only.
type Event interface {
	Kind() Kind
	isEvent()
}

// Message is a free text event. Its Level is one of info, warning, error
// and critical_error.
type Message struct {
	Level   Kind
	Message string
}

type Config struct {
	TargetBrand    string `json:"target_brand"`
	SearchURL      string `json:"search_url"`
	StartPage      int    `json:"start_page"`
	EndPage        int    `json:"end_page"`
	PagesToProcess int    `json:"pages_to_process"`
}

type PageStart struct {
	Page        int  `json:"page"`
	EndPage     int  `json:"end_page"`
	IsFirstPage bool `json:"is_first_page"`
}

// ScrollProgress is reported after every scroll iteration. PauseTime is in
// seconds, rounded to one decimal.
type ScrollProgress struct {
	Scroll       int     `json:"scroll"`
	TotalScrolls int     `json:"total_scrolls"`
	ProductCount int     `json:"product_count"`
	PauseTime    float64 `json:"pause_time"`
}

type PageAnalysis struct {
	Page         int `json:"page"`
	ProductCount int `json:"product_count"`
}

type ProductFound struct {
	Product types.Product `json:"product"`
}

type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Page      int `json:"page"`
}

type Navigation struct {
	Message string `json:"message"`
	Page    int    `json:"page"`
}

type PageComplete struct {
	Page           int `json:"page"`
	ProductsFound  int `json:"products_found"`
	ProductsOnPage int `json:"products_on_page"`
}

type Summary struct {
	TargetBrand              string `json:"target_brand"`
	PagesProcessed           int    `json:"pages_processed"`
	TotalProductsAnalyzed    int    `json:"total_products_analyzed"`
	TargetBrandProductsFound int    `json:"target_brand_products_found"`
}

type ResultsHeader struct{}

type ResultItem struct {
	Product types.Product `json:"product"`
}

type NoResults struct {
	Message string `json:"message"`
}

// Unknown holds an event whose type this version does not know about.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Message) isEvent()        {}
func (Config) isEvent()         {}
func (PageStart) isEvent()      {}
func (ScrollProgress) isEvent() {}
func (PageAnalysis) isEvent()   {}
func (ProductFound) isEvent()   {}
func (Progress) isEvent()       {}
func (Navigation) isEvent()     {}
func (PageComplete) isEvent()   {}
func (Summary) isEvent()        {}
func (ResultsHeader) isEvent()  {}
func (ResultItem) isEvent()     {}
func (NoResults) isEvent()      {}
func (Unknown) isEvent()        {}

func (e Message) Kind() Kind      { return e.Level }
func (Config) Kind() Kind         { return KindConfig }
func (PageStart) Kind() Kind      { return KindPageStart }
func (ScrollProgress) Kind() Kind { return KindScrollProgress }
func (PageAnalysis) Kind() Kind   { return KindPageAnalysis }
func (ProductFound) Kind() Kind   { return KindProductFound }
func (Progress) Kind() Kind       { return KindProgress }
func (Navigation) Kind() Kind     { return KindNavigation }
func (PageComplete) Kind() Kind   { return KindPageComplete }
func (Summary) Kind() Kind        { return KindSummary }
func (ResultsHeader) Kind() Kind  { return KindResultsHeader }
func (ResultItem) Kind() Kind     { return KindResultItem }
func (NoResults) Kind() Kind      { return KindNoResults }
func (e Unknown) Kind() Kind      { return Kind(e.Type) }

func Info(format string, args ...any) Message {
	return Message{Level: KindInfo, Message: fmt.Sprintf(format, args...)}
}

func Warning(format string, args ...any) Message {
	return Message{Level: KindWarning, Message: fmt.Sprintf(format, args...)}
}

func Error(format string, args ...any) Message {
	return Message{Level: KindError, Message: fmt.Sprintf(format, args...)}
}

func Critical(format string, args ...any) Message {
	return Message{Level: KindCriticalError, Message: fmt.Sprintf(format, args...)}
}

// encode marshals v without escaping html characters. Product names regularly
// contain '&', '<' or '>'.
func encode(v any) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}

// tagged puts the "type" field in front of the fields of the event.
type tagged[T any] struct {
	Type    Kind `json:"type"`
	Payload T
}

func (t tagged[T]) MarshalJSON() ([]byte, error) {
	head, err := encode(struct {
		Type Kind `json:"type"`
	}{t.Type})
	if err != nil {
		return nil, err
	}
	body, err := encode(t.Payload)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}
	// splice {"type":"x"} and {"a":1} into {"type":"x","a":1}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

func (e Message) MarshalJSON() ([]byte, error) {
	return encode(struct {
		Type    Kind   `json:"type"`
		Message string `json:"message"`
	}{e.Level, e.Message})
}

func (e Config) MarshalJSON() ([]byte, error) {
	type plain Config
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e PageStart) MarshalJSON() ([]byte, error) {
	type plain PageStart
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e ScrollProgress) MarshalJSON() ([]byte, error) {
	type plain ScrollProgress
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e PageAnalysis) MarshalJSON() ([]byte, error) {
	type plain PageAnalysis
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e ProductFound) MarshalJSON() ([]byte, error) {
	type plain ProductFound
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e Progress) MarshalJSON() ([]byte, error) {
	type plain Progress
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e Navigation) MarshalJSON() ([]byte, error) {
	type plain Navigation
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e PageComplete) MarshalJSON() ([]byte, error) {
	type plain PageComplete
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e ResultsHeader) MarshalJSON() ([]byte, error) {
	type plain ResultsHeader
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e ResultItem) MarshalJSON() ([]byte, error) {
	type plain ResultItem
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e NoResults) MarshalJSON() ([]byte, error) {
	type plain NoResults
	return tagged[plain]{e.Kind(), plain(e)}.MarshalJSON()
}

func (e Unknown) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return encode(struct {
		Type string `json:"type"`
	}{e.Type})
}

// Decode parses a single line of the event stream. Lines that are not JSON
// objects result in an error, the caller is expected to display them as they
// are. Unrecognized types decode to Unknown.
func Decode(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return nil, fmt.Errorf("malformed event: %w", err)
	}
	if head.Type == nil {
		return nil, fmt.Errorf("malformed event: missing type")
	}
	kind := Kind(*head.Type)

	var ev Event
	var err error
	switch kind {
	case KindInfo, KindWarning, KindError, KindCriticalError:
		var m struct {
			Message string `json:"message"`
		}
		err = json.Unmarshal(line, &m)
		ev = Message{Level: kind, Message: m.Message}
	case KindConfig:
		ev, err = decodeAs[Config](line)
	case KindPageStart:
		ev, err = decodeAs[PageStart](line)
	case KindScrollProgress:
		ev, err = decodeAs[ScrollProgress](line)
	case KindPageAnalysis:
		ev, err = decodeAs[PageAnalysis](line)
	case KindProductFound:
		ev, err = decodeAs[ProductFound](line)
	case KindProgress:
		ev, err = decodeAs[Progress](line)
	case KindNavigation:
		ev, err = decodeAs[Navigation](line)
	case KindPageComplete:
		ev, err = decodeAs[PageComplete](line)
	case KindSummary:
		ev, err = decodeAs[Summary](line)
	case KindResultsHeader:
		ev = ResultsHeader{}
	case KindResultItem:
		ev, err = decodeAs[ResultItem](line)
	case KindNoResults:
		ev, err = decodeAs[NoResults](line)
	default:
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		ev = Unknown{Type: string(kind), Raw: raw}
	}
	if err != nil {
		return nil, fmt.Errorf("malformed %s event: %w", kind, err)
	}
	return ev, nil
}

func decodeAs[T Event](line []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(line, &v); err != nil {
		return nil, err
	}
	return v, nil
}
