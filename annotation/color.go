// seehuhn.de/go/annotate - persistent annotations for PDF documents
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package annotation

import (
	"fmt"
	"strings"

	"seehuhn.de/go/annotate/pdf"
)

// ColorSpace identifies the color model of a Color.
type ColorSpace uint8

// These are the color models allowed for annotation colors.
const (
	ColorNone ColorSpace = iota
	ColorGray
	ColorRGB
	ColorCMYK
)

// Color is the color of an annotation.  The zero value means that no
// color is set, which makes some annotation types transparent.
type Color struct {
	Space  ColorSpace
	Values [4]float64

	// Alpha is the opacity, between 0 and 1.  Zero is treated as fully
	// opaque, so that colors can be written as struct literals.
	Alpha float64
}

// Gray returns an opaque gray color.
func Gray(g float64) Color {
	return Color{Space: ColorGray, Values: [4]float64{g}, Alpha: 1}
}

// RGB returns an opaque RGB color.
func RGB(r, g, b float64) Color {
	return Color{Space: ColorRGB, Values: [4]float64{r, g, b}, Alpha: 1}
}

// CMYK returns an opaque CMYK color.
func CMYK(c, m, y, k float64) Color {
	return Color{Space: ColorCMYK, Values: [4]float64{c, m, y, k}, Alpha: 1}
}

// Yellow is the default color for highlights and notes.
var Yellow = RGB(1, 1, 0)

// NumComponents returns the number of color values used by the color
// space.
func (s ColorSpace) NumComponents() int {
	switch s {
	case ColorGray:
		return 1
	case ColorRGB:
		return 3
	case ColorCMYK:
		return 4
	}
	return 0
}

// Opacity returns the effective opacity of the color.
func (c Color) Opacity() float64 {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return 1
	}
	return c.Alpha
}

// IsSet reports whether a color is set.
func (c Color) IsSet() bool {
	return c.Space != ColorNone
}

func decodeColor(r pdf.Getter, obj pdf.Object, alpha pdf.Object) (Color, error) {
	c, _ := pdf.GetArray(r, obj)
	if len(c) == 0 {
		return Color{}, nil
	}

	var res Color
	switch len(c) {
	case 1:
		res.Space = ColorGray
	case 3:
		res.Space = ColorRGB
	case 4:
		res.Space = ColorCMYK
	default:
		return Color{}, fmt.Errorf("invalid color array length: %d", len(c))
	}
	for i, val := range c {
		if x, err := pdf.GetNumber(r, val); err == nil {
			res.Values[i] = min(max(x, 0), 1)
		}
	}

	res.Alpha = 1
	if a, err := pdf.GetNumber(r, alpha); err == nil && alpha != nil && a >= 0 && a <= 1 {
		res.Alpha = a
	}
	return res, nil
}

// encode returns the /C array for the color, or nil if no color is set.
func (c Color) encode() pdf.Array {
	n := c.Space.NumComponents()
	if n == 0 {
		return nil
	}
	return pdf.NumberArray(c.Values[:n]...)
}

// fillOp returns the content stream operator which sets c as the fill
// color.
func (c Color) fillOp() string {
	return c.op(false)
}

// strokeOp returns the content stream operator which sets c as the
// stroke color.
func (c Color) strokeOp() string {
	return c.op(true)
}

func (c Color) op(stroke bool) string {
	var name string
	switch c.Space {
	case ColorGray:
		name = "g"
	case ColorRGB:
		name = "rg"
	case ColorCMYK:
		name = "k"
	default:
		return ""
	}
	if stroke {
		name = strings.ToUpper(name)
	}
	b := &strings.Builder{}
	for _, v := range c.Values[:c.Space.NumComponents()] {
		b.WriteString(pdf.Format(pdf.Number(v)))
		b.WriteByte(' ')
	}
	b.WriteString(name)
	b.WriteByte('\n')
	return b.String()
}
