// Package extract holds the page-level heuristics that turn a rendered
// document into presentational metadata: the font families in use and the
// computed style of the primary add-to-cart button.
package extract

import (
	"context"
	"encoding/json"
)

// Evaluator runs a JavaScript function inside a rendered document and decodes
// its JSON-serializable return value into out.
type Evaluator interface {
	Evaluate(ctx context.Context, fn string, out any, args ...any) error
}

// FontDescriptor describes one distinct computed font-family string.
type FontDescriptor struct {
	Family        string `json:"family"`
	Variants      string `json:"variants"`
	LetterSpacing string `json:"letterSpacing"`
	FontWeight    string `json:"fontWeight"`
	URL           string `json:"url"`
}

// ButtonStyle is the computed style of the primary call-to-action button.
type ButtonStyle struct {
	FontFamily      string `json:"fontFamily"`
	FontSize        string `json:"fontSize"`
	LineHeight      string `json:"lineHeight"`
	LetterSpacing   string `json:"letterSpacing"`
	TextTransform   string `json:"textTransform"`
	TextDecoration  string `json:"textDecoration"`
	TextAlign       string `json:"textAlign"`
	BackgroundColor string `json:"backgroundColor"`
	Color           string `json:"color"`
	BorderColor     string `json:"borderColor"`
	BorderWidth     string `json:"borderWidth"`
	BorderRadius    string `json:"borderRadius"`
}

// Result is the response body of a scrape. A nil PrimaryButton means no
// add-to-cart element was identified and serializes as an empty object.
type Result struct {
	Fonts         []FontDescriptor
	PrimaryButton *ButtonStyle
}

// HasPrimaryButton reports whether a button was identified.
func (r Result) HasPrimaryButton() bool {
	return r.PrimaryButton != nil
}

// MarshalJSON renders fonts as an array even when empty and a missing button as {}.
func (r Result) MarshalJSON() ([]byte, error) {
	fonts := r.Fonts
	if fonts == nil {
		fonts = []FontDescriptor{}
	}
	var button any = struct{}{}
	if r.PrimaryButton != nil {
		button = r.PrimaryButton
	}
	return json.Marshal(struct {
		Fonts         []FontDescriptor `json:"fonts"`
		PrimaryButton any              `json:"primaryButton"`
	}{
		Fonts:         fonts,
		PrimaryButton: button,
	})
}
