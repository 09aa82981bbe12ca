package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Margin holds CSS lengths, e.g. "20mm" or "0.5in".
type Margin struct {
	Top    string `yaml:"top,omitempty"`
	Bottom string `yaml:"bottom,omitempty"`
	Left   string `yaml:"left,omitempty"`
	Right  string `yaml:"right,omitempty"`
}

// PrintOptions controls PDF export. Unset fields (empty string, nil
// pointer, zero scale) inherit from the options they are merged over.
type PrintOptions struct {
	Format              string  `yaml:"format,omitempty"`
	Landscape           *bool   `yaml:"landscape,omitempty"`
	PrintBackground     *bool   `yaml:"print_background,omitempty"`
	PreferCSSPageSize   *bool   `yaml:"prefer_css_page_size,omitempty"`
	DisplayHeaderFooter *bool   `yaml:"display_header_footer,omitempty"`
	Scale               float64 `yaml:"scale,omitempty"`
	Margin              Margin  `yaml:"margin,omitempty"`

	HeaderTemplate string `yaml:"-"`
	FooterTemplate string `yaml:"-"`
}

// Bool returns a pointer to b, for building PrintOptions literals.
func Bool(b bool) *bool { return &b }

// DefaultPrintOptions is A4 portrait with backgrounds and 20/20/10/10mm
// margins.
func DefaultPrintOptions() PrintOptions {
	return PrintOptions{
		Format:            "A4",
		Landscape:         Bool(false),
		PrintBackground:   Bool(true),
		PreferCSSPageSize: Bool(true),
		Scale:             1,
		Margin: Margin{
			Top:    "20mm",
			Bottom: "20mm",
			Left:   "10mm",
			Right:  "10mm",
		},
	}
}

// Merge returns o with every set field of over applied on top.
func (o PrintOptions) Merge(over PrintOptions) PrintOptions {
	if over.Format != "" {
		o.Format = over.Format
	}
	if over.Landscape != nil {
		o.Landscape = over.Landscape
	}
	if over.PrintBackground != nil {
		o.PrintBackground = over.PrintBackground
	}
	if over.PreferCSSPageSize != nil {
		o.PreferCSSPageSize = over.PreferCSSPageSize
	}
	if over.DisplayHeaderFooter != nil {
		o.DisplayHeaderFooter = over.DisplayHeaderFooter
	}
	if over.Scale != 0 {
		o.Scale = over.Scale
	}
	if over.Margin.Top != "" {
		o.Margin.Top = over.Margin.Top
	}
	if over.Margin.Bottom != "" {
		o.Margin.Bottom = over.Margin.Bottom
	}
	if over.Margin.Left != "" {
		o.Margin.Left = over.Margin.Left
	}
	if over.Margin.Right != "" {
		o.Margin.Right = over.Margin.Right
	}
	if over.HeaderTemplate != "" {
		o.HeaderTemplate = over.HeaderTemplate
	}
	if over.FooterTemplate != "" {
		o.FooterTemplate = over.FooterTemplate
	}
	return o
}

// WithHeaderFooter sets the header and footer markup. DisplayHeaderFooter is
// switched on when either is non-empty, unless it was explicitly disabled.
func (o PrintOptions) WithHeaderFooter(header, footer string) PrintOptions {
	o.HeaderTemplate = header
	o.FooterTemplate = footer
	if (header != "" || footer != "") && o.DisplayHeaderFooter == nil {
		o.DisplayHeaderFooter = Bool(true)
	}
	return o
}

func deref(b *bool) bool { return b != nil && *b }

// paperSizes in inches, portrait.
var paperSizes = map[string][2]float64{
	"a3":      {11.69, 16.54},
	"a4":      {8.27, 11.69},
	"a5":      {5.83, 8.27},
	"letter":  {8.5, 11},
	"legal":   {8.5, 14},
	"tabloid": {11, 17},
}

// PaperSize returns the width and height in inches for a named format,
// already swapped for landscape.
func (o PrintOptions) PaperSize() (w, h float64, err error) {
	format := o.Format
	if format == "" {
		format = "A4"
	}
	size, ok := paperSizes[strings.ToLower(format)]
	if !ok {
		return 0, 0, fmt.Errorf("engine: unknown paper format %q", o.Format)
	}
	w, h = size[0], size[1]
	if deref(o.Landscape) {
		w, h = h, w
	}
	return w, h, nil
}

var unitsPerInch = map[string]float64{
	"in": 1,
	"cm": 2.54,
	"mm": 25.4,
	"pt": 72,
	"px": 96,
}

// ParseLength converts a CSS length to inches. A bare number is pixels.
func ParseLength(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, nil
	}

	unit := "px"
	num := s
	if len(s) > 2 {
		if _, ok := unitsPerInch[s[len(s)-2:]]; ok {
			unit, num = s[len(s)-2:], s[:len(s)-2]
		}
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("engine: invalid length %q", s)
	}
	return v / unitsPerInch[unit], nil
}
