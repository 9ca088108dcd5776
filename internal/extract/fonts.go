package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

const (
	googleFontsBase = "https://fonts.googleapis.com/css2?"
	defaultWeight   = "400"
)

// knownFonts is matched against the cleaned family name by exact equality.
var knownFonts = []string{
	"Roboto",
	"Open Sans",
	"Lato",
	"Montserrat",
	"Source Sans Pro",
	"Nunito Sans",
	"Suisse Intl",
}

// FontSamplesScript returns [fontFamily, fontWeight, letterSpacing] for every
// element under body, in document order.
const FontSamplesScript = `() => Array.from(document.querySelectorAll("body *")).map((el) => {
	const cs = window.getComputedStyle(el);
	return [cs.fontFamily || "", cs.fontWeight || "", cs.letterSpacing || ""];
})`

// FontSample is the computed font data of a single element.
type FontSample struct {
	Family        string
	Weight        string
	LetterSpacing string
}

// UnmarshalJSON decodes the [family, weight, letterSpacing] tuple emitted by FontSamplesScript.
func (s *FontSample) UnmarshalJSON(data []byte) error {
	var tuple []string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decode font sample: %w", err)
	}
	if len(tuple) > 0 {
		s.Family = tuple[0]
	}
	if len(tuple) > 1 {
		s.Weight = tuple[1]
	}
	if len(tuple) > 2 {
		s.LetterSpacing = tuple[2]
	}
	return nil
}

// KnownFonts returns a copy of the Google Fonts allowlist.
func KnownFonts() []string {
	return slices.Clone(knownFonts)
}

// IsKnownFont reports whether a cleaned family name is on the allowlist.
func IsKnownFont(clean string) bool {
	return slices.Contains(knownFonts, clean)
}

// CleanFamily reduces a raw font-family value to its primary family name:
// every quote removed, text before the first comma, trimmed.
func CleanFamily(raw string) string {
	unquoted := strings.NewReplacer(`'`, "", `"`, "").Replace(raw)
	first, _, _ := strings.Cut(unquoted, ",")
	return strings.TrimSpace(first)
}

// GoogleFontsURL builds a css2 URL for family at the given weights.
func GoogleFontsURL(family string, weights ...string) string {
	return googleFontsBase +
		"family=" + url.PathEscape(family) + ":wght@" + strings.Join(weights, ";") +
		"&display=swap"
}

// CollectFonts groups samples by raw family string in order of first
// appearance. The first element seen for a family supplies the weight and
// letter-spacing reported for the whole group.
func CollectFonts(samples []FontSample) []FontDescriptor {
	fonts := make([]FontDescriptor, 0)
	seen := make(map[string]struct{})
	for _, sample := range samples {
		if sample.Family == "" {
			continue
		}
		if _, ok := seen[sample.Family]; ok {
			continue
		}
		seen[sample.Family] = struct{}{}
		fonts = append(fonts, describeFont(sample))
	}
	return fonts
}

func describeFont(sample FontSample) FontDescriptor {
	variants := sample.Weight
	if variants == "" {
		variants = defaultWeight
	}
	desc := FontDescriptor{
		Family:        sample.Family,
		Variants:      variants,
		LetterSpacing: sample.LetterSpacing,
		FontWeight:    sample.Weight,
	}
	if clean := CleanFamily(sample.Family); IsKnownFont(clean) {
		desc.URL = GoogleFontsURL(clean, variants)
	}
	return desc
}

// Fonts samples the rendered document and returns its font descriptors.
func Fonts(ctx context.Context, page Evaluator) ([]FontDescriptor, error) {
	var samples []FontSample
	if err := page.Evaluate(ctx, FontSamplesScript, &samples); err != nil {
		return nil, fmt.Errorf("sample fonts: %w", err)
	}
	return CollectFonts(samples), nil
}
