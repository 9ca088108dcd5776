package extract

import (
	"context"
	"fmt"
	"slices"
)

// addToCartSelectors is walked in order; the first selector matching any
// element wins even if that element is hidden or disabled.
var addToCartSelectors = []string{
	`form[action*="/cart/add"] [type="submit"]`,
	`button[name="add"]`,
	`button[type="submit"].product-form__submit`,
	`form[action*="/cart/add"] button`,
	`button.add-to-cart`,
	`button.AddToCart`,
	`button#AddToCart`,
	`input[type="submit"][value*="Add"]`,
	`button.btn--add-to-cart`,
	`button.product-form__cart-submit`,
	`button.product-form--atc-button`,
}

// ButtonStyleScript takes a selector list and returns the computed style of
// the first element matched by the first selector that matches anything.
const ButtonStyleScript = `(selectors) => {
	for (const selector of selectors) {
		const el = document.querySelector(selector);
		if (!el) {
			continue;
		}
		const cs = window.getComputedStyle(el);
		return {
			matched: true,
			selector: selector,
			style: {
				fontFamily: cs.fontFamily,
				fontSize: cs.fontSize,
				lineHeight: cs.lineHeight,
				letterSpacing: cs.letterSpacing,
				textTransform: cs.textTransform,
				textDecoration: cs.textDecorationLine,
				textAlign: cs.textAlign,
				backgroundColor: cs.backgroundColor,
				color: cs.color,
				borderColor: cs.borderColor,
				borderWidth: cs.borderWidth,
				borderRadius: cs.borderRadius,
			},
		};
	}
	return { matched: false, selector: "", style: null };
}`

// ButtonMatch is the outcome of the selector walk.
type ButtonMatch struct {
	Matched  bool         `json:"matched"`
	Selector string       `json:"selector"`
	Style    *ButtonStyle `json:"style"`
}

// AddToCartSelectors returns the selector fallbacks in priority order.
func AddToCartSelectors() []string {
	return slices.Clone(addToCartSelectors)
}

// PrimaryButton locates the add-to-cart button using the default selectors.
// A page without a match yields a zero ButtonMatch and no error.
func PrimaryButton(ctx context.Context, page Evaluator) (ButtonMatch, error) {
	return MatchButton(ctx, page, addToCartSelectors)
}

// MatchButton runs the selector walk with a caller-supplied priority list.
func MatchButton(ctx context.Context, page Evaluator, selectors []string) (ButtonMatch, error) {
	if len(selectors) == 0 {
		return ButtonMatch{}, nil
	}
	var match ButtonMatch
	if err := page.Evaluate(ctx, ButtonStyleScript, &match, selectors); err != nil {
		return ButtonMatch{}, fmt.Errorf("read button style: %w", err)
	}
	if !match.Matched || match.Style == nil {
		return ButtonMatch{}, nil
	}
	return match, nil
}
