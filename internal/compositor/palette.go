// Package compositor turns the categories projected on a word into the
// visual style a renderer paints behind it.
package compositor

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

var defaultColors = map[domain.Category]string{
	domain.CategoryRecap:    "#A7D8FF",
	domain.CategoryHomework: "#C8F7C5",
	domain.CategoryTajweed:  "#FFB3B3",
	domain.CategoryHaraka:   "#E0C3FC",
	domain.CategoryLetter:   "#FFD6A5",
}

const (
	defaultCompleted = "#FFD700"
	defaultSelection = "#B0BEC5"
	defaultHover     = "#ECEFF1"
	defaultText      = "#1B1B1B"
	defaultInk       = "#37474F"
)

// Palette holds the fixed colours of every category and of the
// non-category states
type Palette struct {
	categories map[domain.Category]colorful.Color
	completed  colorful.Color
	selection  colorful.Color
	hover      colorful.Color
	text       colorful.Color
	ink        colorful.Color
}

// DefaultPalette returns the built-in colours
func DefaultPalette() Palette {
	p, err := NewPalette(nil)
	if err != nil {
		panic(fmt.Sprintf("default palette: %v", err))
	}
	return p
}

// NewPalette builds a palette from the defaults and hex overrides keyed by
// category name or by one of "completed", "selection", "hover", "text", "ink".
func NewPalette(overrides map[string]string) (Palette, error) {
	p := Palette{categories: make(map[domain.Category]colorful.Color, len(defaultColors))}

	pick := func(name, fallback string) (colorful.Color, error) {
		hex := fallback
		if v, ok := overrides[name]; ok && v != "" {
			hex = v
		}
		c, err := colorful.Hex(hex)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("parse colour %s=%q: %w", name, hex, err)
		}
		return c, nil
	}

	for name := range overrides {
		if !domain.Category(name).Valid() && !isStateColor(name) {
			return Palette{}, fmt.Errorf("unknown palette entry %q", name)
		}
	}

	var err error
	for _, cat := range domain.Categories {
		if p.categories[cat], err = pick(string(cat), defaultColors[cat]); err != nil {
			return Palette{}, err
		}
	}
	if p.completed, err = pick("completed", defaultCompleted); err != nil {
		return Palette{}, err
	}
	if p.selection, err = pick("selection", defaultSelection); err != nil {
		return Palette{}, err
	}
	if p.hover, err = pick("hover", defaultHover); err != nil {
		return Palette{}, err
	}
	if p.text, err = pick("text", defaultText); err != nil {
		return Palette{}, err
	}
	if p.ink, err = pick("ink", defaultInk); err != nil {
		return Palette{}, err
	}
	return p, nil
}

func isStateColor(name string) bool {
	switch name {
	case "completed", "selection", "hover", "text", "ink":
		return true
	}
	return false
}

// Hex returns the colour of a category, empty for unknown categories
func (p Palette) Hex(c domain.Category) string {
	col, ok := p.categories[c]
	if !ok {
		return ""
	}
	return col.Hex()
}

// CompletedHex returns the colour every completed highlight renders with
func (p Palette) CompletedHex() string {
	return p.completed.Hex()
}

// TextHex returns the script colour
func (p Palette) TextHex() string {
	return p.text.Hex()
}

// blend mixes colours in equal parts
func blend(cols []colorful.Color) colorful.Color {
	out := cols[0]
	for i := 1; i < len(cols); i++ {
		out = out.BlendLab(cols[i], 1/float64(i+1)).Clamped()
	}
	return out
}
