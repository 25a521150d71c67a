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
	"bytes"
	"fmt"

	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
)

// Appearance returns the normal appearance of a as a form XObject, or nil
// if the annotation has no visible appearance.
//
// The form draws in display coordinates (see pagespace.Geometry), so
// that annotations keep their orientation on rotated pages.
//
// PDF 2.0 sections: 12.5.5
func Appearance(a Annotation, g pagespace.Geometry) (*pdf.Stream, error) {
	ap := &appearanceBuilder{
		g:    g,
		buf:  &bytes.Buffer{},
		bbox: g.RectToDisplay(a.Base().Rect),
		m:    g.DisplayMatrix(),
	}
	c := a.Base()

	switch a := a.(type) {
	case *Note:
		ap.icon(c.Color, Yellow, noteGlyph)
	case *FileAttachment:
		ap.icon(c.Color, RGB(0.6, 0.8, 1), clipGlyph)
	case *Sound:
		ap.icon(c.Color, RGB(0.6, 1, 0.6), speakerGlyph)
	case *TextMarkup:
		ap.textMarkup(a)
	case *Ink:
		ap.ink(a)
	case *StraightLine:
		ap.line(a)
	case *FreeText:
		if !a.OriginalRect.IsZero() {
			ap.bbox = g.RectToDisplay(a.OriginalRect)
			ap.m = g.TransformedDisplayMatrix(a.Matrix())
		}
		ap.freeText(a)
	default:
		return nil, nil
	}

	dict := pdf.Dict{
		"Type":    pdf.Name("XObject"),
		"Subtype": pdf.Name("Form"),
		"BBox":    pdf.RectArray(ap.bbox),
		"Matrix":  pdf.NumberArray(ap.m[:]...),
	}
	res := pdf.Dict{}
	if ap.gs != nil {
		res["ExtGState"] = pdf.Dict{"GS0": ap.gs}
	}
	if ap.font {
		res["Font"] = pdf.Dict{ap.fontName: HelveticaFont()}
	}
	if len(res) > 0 {
		dict["Resources"] = res
	}
	return pdf.Compress(dict, ap.buf.Bytes())
}

// HelveticaFont returns a font dictionary for the standard Helvetica font,
// using WinAnsiEncoding.
func HelveticaFont() pdf.Dict {
	return pdf.Dict{
		"Type":     pdf.Name("Font"),
		"Subtype":  pdf.Name("Type1"),
		"BaseFont": pdf.Name("Helvetica"),
		"Encoding": pdf.Name("WinAnsiEncoding"),
	}
}

type appearanceBuilder struct {
	g    pagespace.Geometry
	buf  *bytes.Buffer
	bbox rect.Rect
	m    [6]float64

	gs       pdf.Dict
	font     bool
	fontName pdf.Name
}

func (ap *appearanceBuilder) printf(format string, args ...any) {
	fmt.Fprintf(ap.buf, format, args...)
}

func (ap *appearanceBuilder) num(x float64) string {
	return pdf.Format(pdf.Number(x))
}

func (ap *appearanceBuilder) setAlpha(c Color, multiply bool) {
	alpha := c.Opacity()
	if alpha >= 1 && !multiply {
		return
	}
	ap.gs = pdf.Dict{
		"Type": pdf.Name("ExtGState"),
		"CA":   pdf.Number(alpha),
		"ca":   pdf.Number(alpha),
	}
	if multiply {
		ap.gs["BM"] = pdf.Name("Multiply")
	}
	ap.printf("/GS0 gs\n")
}

type glyph int

const (
	noteGlyph glyph = iota
	clipGlyph
	speakerGlyph
)

// icon draws a framed box with a simple symbol.
func (ap *appearanceBuilder) icon(c, def Color, sym glyph) {
	if !c.IsSet() {
		c = def
	}
	b := ap.bbox
	w, h := b.URx-b.LLx, b.URy-b.LLy
	ap.printf("q\n")
	ap.setAlpha(c, false)
	ap.printf("%s0 G 0.5 w\n", c.fillOp())
	ap.printf("%s %s %s %s re B\n",
		ap.num(b.LLx+0.25), ap.num(b.LLy+0.25), ap.num(w-0.5), ap.num(h-0.5))

	switch sym {
	case noteGlyph:
		for i := 1; i <= 3; i++ {
			y := b.LLy + h*float64(i)/4
			ap.printf("%s %s m %s %s l S\n",
				ap.num(b.LLx+w*0.2), ap.num(y), ap.num(b.URx-w*0.2), ap.num(y))
		}
	case clipGlyph:
		ap.printf("%s %s m %s %s l S\n",
			ap.num(b.LLx+w*0.3), ap.num(b.LLy+h*0.2), ap.num(b.URx-w*0.3), ap.num(b.URy-h*0.2))
	case speakerGlyph:
		ap.printf("%s %s m %s %s l %s %s l h S\n",
			ap.num(b.LLx+w*0.3), ap.num(b.LLy+h*0.3),
			ap.num(b.LLx+w*0.3), ap.num(b.URy-h*0.3),
			ap.num(b.URx-w*0.3), ap.num(b.LLy+h*0.5))
	}
	ap.printf("Q\n")
}

func (ap *appearanceBuilder) textMarkup(a *TextMarkup) {
	c := a.Color
	if !c.IsSet() {
		if a.Type == Highlight {
			c = Yellow
		} else {
			c = RGB(1, 0, 0)
		}
	}

	ap.printf("q\n")
	ap.setAlpha(c, a.Type == Highlight)
	if a.Type == Highlight {
		ap.printf("%s", c.fillOp())
	} else {
		ap.printf("%s", c.strokeOp())
	}
	for _, r := range a.Rects {
		d := ap.g.RectToDisplay(r)
		w, h := d.URx-d.LLx, d.URy-d.LLy
		switch a.Type {
		case Highlight:
			ap.printf("%s %s %s %s re f\n", ap.num(d.LLx), ap.num(d.LLy), ap.num(w), ap.num(h))
		case Underline, StrikeOut:
			lw := max(0.5, h/16)
			y := d.LLy + lw/2
			if a.Type == StrikeOut {
				y = d.LLy + h/2
			}
			ap.printf("%s w %s %s m %s %s l S\n", ap.num(lw), ap.num(d.LLx), ap.num(y), ap.num(d.URx), ap.num(y))
		}
	}
	ap.printf("Q\n")
}

func (ap *appearanceBuilder) ink(a *Ink) {
	c := a.Color
	if !c.IsSet() {
		c = Gray(0)
	}
	width := a.Width
	if width <= 0 {
		width = 1
	}
	ap.printf("q\n")
	ap.setAlpha(c, false)
	ap.printf("%s%s w 1 J 1 j\n", c.strokeOp(), ap.num(width))
	for _, path := range a.Paths {
		for i, p := range path {
			d := ap.g.ToDisplay(p)
			op := "l"
			if i == 0 {
				op = "m"
			}
			ap.printf("%s %s %s\n", ap.num(d.X), ap.num(d.Y), op)
			if len(path) == 1 {
				ap.printf("%s %s l\n", ap.num(d.X), ap.num(d.Y))
			}
		}
		ap.printf("S\n")
	}
	ap.printf("Q\n")
}

func (ap *appearanceBuilder) line(a *StraightLine) {
	c := a.Color
	if !c.IsSet() {
		c = Gray(0)
	}
	width := a.Width
	if width <= 0 {
		width = 1
	}
	p := ap.g.ToDisplay(a.Start)
	q := ap.g.ToDisplay(a.End)

	// make room for the line caps
	ap.bbox = rect.Rect{
		LLx: min(ap.bbox.LLx, min(p.X, q.X)-width),
		LLy: min(ap.bbox.LLy, min(p.Y, q.Y)-width),
		URx: max(ap.bbox.URx, max(p.X, q.X)+width),
		URy: max(ap.bbox.URy, max(p.Y, q.Y)+width),
	}

	ap.printf("q\n")
	ap.setAlpha(c, false)
	ap.printf("%s%s w 1 J\n", c.strokeOp(), ap.num(width))
	ap.printf("%s %s m %s %s l S\nQ\n", ap.num(p.X), ap.num(p.Y), ap.num(q.X), ap.num(q.Y))
}

// freeTextPadding is the distance between the text and the edge of the
// annotation rectangle.
const freeTextPadding = 2

func (ap *appearanceBuilder) freeText(a *FreeText) {
	c := a.Color
	if !c.IsSet() {
		c = Gray(0)
	}
	size := a.FontSize
	if size <= 0 {
		size = 12
	}
	ap.font = true
	ap.fontName = pdf.Name(a.FontName)
	if ap.fontName == "" {
		ap.fontName = "Helv"
	}

	b := ap.bbox
	width := b.URx - b.LLx - 2*freeTextPadding
	lines := WrapText(a.Contents, size, width)
	leading := 1.2 * size

	ap.printf("q\n")
	ap.setAlpha(c, false)
	ap.printf("%s %s %s %s re W n\n", ap.num(b.LLx), ap.num(b.LLy), ap.num(b.URx-b.LLx), ap.num(b.URy-b.LLy))
	ap.printf("BT\n%s", c.fillOp())
	buf := &bytes.Buffer{}
	_ = ap.fontName.PDF(buf)
	ap.printf("%s %s Tf\n", buf.String(), ap.num(size))

	y := b.URy - freeTextPadding - size*helveticaAscent/1000
	prev := vec.Vec2{}
	for _, line := range lines {
		x := b.LLx + freeTextPadding
		switch a.Justification {
		case Center:
			x += (width - TextWidth(line, size)) / 2
		case Right:
			x += width - TextWidth(line, size)
		}
		ap.printf("%s %s Td ", ap.num(x-prev.X), ap.num(y-prev.Y))
		buf.Reset()
		_ = pdf.String(line).PDF(buf)
		ap.printf("%s Tj\n", buf.String())
		prev = vec.Vec2{X: x, Y: y}
		y -= leading
	}
	ap.printf("ET\nQ\n")
}
