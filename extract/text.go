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

// Package extract reads the text of PDF pages, together with the location
// of every character.
package extract

import (
	"bytes"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
	"seehuhn.de/go/annotate/pdf/pagetree"
)

// Text is the text on a page.
type Text struct {
	// Text is the page text, in content stream order.  Spaces and line
	// breaks are inferred from the glyph positions.
	Text string

	// Boxes gives the location of each rune in Text, in page-space.
	// Inferred white space has a zero box.
	Boxes []pagespace.Rect
}

// Within returns the text of all characters whose center lies inside r.
func (t *Text) Within(r pagespace.Rect) string {
	var b strings.Builder
	pending := false
	i := 0
	for _, c := range t.Text {
		if i >= len(t.Boxes) {
			break
		}
		box := t.Boxes[i]
		i++
		if box.IsZero() {
			pending = b.Len() > 0
			continue
		}
		center := vec.Vec2{X: (box.Left + box.Right) / 2, Y: (box.Top + box.Bottom) / 2}
		if !r.Contains(center) {
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(c)
	}
	return strings.TrimSpace(b.String())
}

// Extractor reads text from the pages of one PDF file.  Fonts are cached
// between pages.  An Extractor must not be used concurrently.
type Extractor struct {
	r     pdf.Getter
	fonts map[pdf.Reference]*font
}

// NewExtractor returns a new Extractor for the given file.
func NewExtractor(r pdf.Getter) *Extractor {
	return &Extractor{
		r:     r,
		fonts: make(map[pdf.Reference]*font),
	}
}

// maxFormDepth limits the nesting of form XObjects.
const maxFormDepth = 12

// Page extracts the text of a page.
//
// PDF 2.0 sections: 9.4 9.2.4
func (e *Extractor) Page(page *pagetree.Page) (*Text, error) {
	data, err := pagetree.Contents(e.r, page)
	if err != nil {
		return nil, err
	}

	p := &interp{
		e: e,
		g: pagespace.Geometry{CropBox: page.CropBox, Rotate: page.Rotate},
	}
	p.ctm = matrix.Identity
	p.th = 1
	err = p.run(data, page.Resources, 0)
	if err != nil {
		return nil, err
	}
	return &Text{Text: p.out.String(), Boxes: p.boxes}, nil
}

func (e *Extractor) font(obj pdf.Object) *font {
	ref, isRef := obj.(pdf.Reference)
	if isRef {
		if f, ok := e.fonts[ref]; ok {
			return f
		}
	}
	f, err := loadFont(e.r, obj)
	if err != nil {
		f = fallbackFont
	}
	if isRef {
		e.fonts[ref] = f
	}
	return f
}

// fallbackFont is used when a font dictionary cannot be read.
var fallbackFont, _ = loadSimple(nil, pdf.Dict{})

type textState struct {
	ctm   matrix.Matrix
	tc    float64 // character spacing
	tw    float64 // word spacing
	th    float64 // horizontal scaling
	tl    float64 // leading
	tfs   float64 // font size
	trise float64
	font  *font
}

type interp struct {
	e *Extractor
	g pagespace.Geometry

	textState
	stack   []textState
	tm, tlm matrix.Matrix

	out   strings.Builder
	boxes []pagespace.Rect

	havePrev bool
	prevEnd  vec.Vec2
	prevDir  vec.Vec2
	prevSize float64
	lastRune rune
}

func (p *interp) run(data []byte, resources pdf.Dict, depth int) error {
	s := pdf.NewContentScanner(bytes.NewReader(data))
	for s.Scan() {
		args := s.Args()
		switch s.Op() {
		case "q":
			p.stack = append(p.stack, p.textState)
		case "Q":
			if n := len(p.stack); n > 0 {
				p.textState = p.stack[n-1]
				p.stack = p.stack[:n-1]
			}
		case "cm":
			if m, ok := getMatrix(args); ok {
				p.ctm = m.Mul(p.ctm)
			}

		case "BT":
			p.tm = matrix.Identity
			p.tlm = matrix.Identity
		case "ET":
		case "Tc":
			if x, ok := getNumbers(args, 1); ok {
				p.tc = x[0]
			}
		case "Tw":
			if x, ok := getNumbers(args, 1); ok {
				p.tw = x[0]
			}
		case "Tz":
			if x, ok := getNumbers(args, 1); ok {
				p.th = x[0] / 100
			}
		case "TL":
			if x, ok := getNumbers(args, 1); ok {
				p.tl = x[0]
			}
		case "Ts":
			if x, ok := getNumbers(args, 1); ok {
				p.trise = x[0]
			}
		case "Tf":
			if len(args) != 2 {
				break
			}
			name, _ := args[0].(pdf.Name)
			size, err := pdf.GetNumber(nil, args[1])
			if err != nil {
				break
			}
			fonts, _ := pdf.GetDict(p.e.r, resources["Font"])
			p.font = p.e.font(fonts[name])
			p.tfs = size
		case "Td":
			if x, ok := getNumbers(args, 2); ok {
				p.newLine(x[0], x[1])
			}
		case "TD":
			if x, ok := getNumbers(args, 2); ok {
				p.tl = -x[1]
				p.newLine(x[0], x[1])
			}
		case "Tm":
			if m, ok := getMatrix(args); ok {
				p.tm = m
				p.tlm = m
			}
		case "T*":
			p.newLine(0, -p.tl)

		case "Tj":
			if len(args) == 1 {
				p.show(args[0])
			}
		case "'":
			if len(args) == 1 {
				p.newLine(0, -p.tl)
				p.show(args[0])
			}
		case "\"":
			if len(args) == 3 {
				if x, ok := getNumbers(args[:2], 2); ok {
					p.tw, p.tc = x[0], x[1]
				}
				p.newLine(0, -p.tl)
				p.show(args[2])
			}
		case "TJ":
			if len(args) != 1 {
				break
			}
			arr, _ := args[0].(pdf.Array)
			for _, obj := range arr {
				if kern, err := pdf.GetNumber(nil, obj); err == nil {
					tx := -kern / 1000 * p.tfs * p.th
					p.tm = translate(tx, 0).Mul(p.tm)
					continue
				}
				p.show(obj)
			}

		case "Do":
			if len(args) != 1 || depth >= maxFormDepth {
				break
			}
			name, _ := args[0].(pdf.Name)
			if err := p.form(resources, name, depth); err != nil {
				return err
			}
		}
	}
	return s.Err()
}

// form shows the text contained in a form XObject.
func (p *interp) form(resources pdf.Dict, name pdf.Name, depth int) error {
	xObjects, _ := pdf.GetDict(p.e.r, resources["XObject"])
	stm, err := pdf.GetStream(p.e.r, xObjects[name])
	if err != nil || stm == nil {
		return nil
	}
	if subtype, _ := pdf.GetName(p.e.r, stm.Dict["Subtype"]); subtype != "Form" {
		return nil
	}
	data, err := pdf.DecodeStream(p.e.r, stm)
	if err != nil {
		return nil
	}

	formRes, _ := pdf.GetDict(p.e.r, stm.Dict["Resources"])
	if formRes == nil {
		formRes = resources
	}

	saved := p.textState
	savedStack := len(p.stack)
	if m, err := pdf.GetNumbers(p.e.r, stm.Dict["Matrix"]); err == nil && len(m) == 6 {
		p.ctm = matrix.Matrix(m).Mul(p.ctm)
	}
	err = p.run(data, formRes, depth+1)
	p.textState = saved
	p.stack = p.stack[:min(savedStack, len(p.stack))]
	return err
}

func (p *interp) newLine(tx, ty float64) {
	p.tlm = translate(tx, ty).Mul(p.tlm)
	p.tm = p.tlm
}

// show processes the glyphs in a string.
func (p *interp) show(obj pdf.Object) {
	s, ok := obj.(pdf.String)
	if !ok {
		return
	}
	f := p.font
	if f == nil {
		f = fallbackFont
	}

	for len(s) > 0 {
		code := f.split(s)
		s = s[len(code):]

		w0 := f.width(code) / 1000
		trm := matrix.Matrix{p.tfs * p.th, 0, 0, p.tfs, 0, p.trise}.Mul(p.tm).Mul(p.ctm)

		var glyphBox rect.Rect
		var advance vec.Vec2
		if f.vertical {
			glyphBox = rect.Rect{LLx: -0.5, LLy: -1, URx: 0.5, URy: 0}
			advance = vec.Vec2{Y: -1}
		} else {
			glyphBox = rect.Rect{LLx: 0, LLy: -0.2, URx: w0, URy: 0.8}
			advance = vec.Vec2{X: w0}
		}
		p.emit(f.text(code), trm, glyphBox, advance)

		isSpace := len(code) == 1 && code[0] == ' '
		if f.vertical {
			ty := -p.tfs + p.tc
			if isSpace {
				ty += p.tw
			}
			p.tm = translate(0, ty).Mul(p.tm)
		} else {
			tx := w0*p.tfs + p.tc
			if isSpace {
				tx += p.tw
			}
			p.tm = translate(tx*p.th, 0).Mul(p.tm)
		}
	}
}

// emit appends the text of one glyph to the output.
func (p *interp) emit(text []rune, trm matrix.Matrix, glyphBox rect.Rect, advance vec.Vec2) {
	origin := pagespace.Apply(trm, 0, 0)
	end := pagespace.Apply(trm, advance.X, advance.Y)
	up := pagespace.Apply(trm, 0, 1)
	size := length(up.X-origin.X, up.Y-origin.Y)

	dir := vec.Vec2{X: end.X - origin.X, Y: end.Y - origin.Y}
	if l := length(dir.X, dir.Y); l > 0 {
		dir = vec.Vec2{X: dir.X / l, Y: dir.Y / l}
	} else {
		dir = vec.Vec2{X: 1}
	}

	if len(text) > 0 && p.havePrev {
		dx := origin.X - p.prevEnd.X
		dy := origin.Y - p.prevEnd.Y
		along := dx*p.prevDir.X + dy*p.prevDir.Y
		across := math.Abs(dx*p.prevDir.Y - dy*p.prevDir.X)
		h := max(size, p.prevSize)
		switch {
		case across > 0.5*h || along < -h:
			p.separator('\n')
		case along > 0.2*h && !unicode.IsSpace(text[0]):
			p.separator(' ')
		}
	}

	if len(text) > 0 {
		box := p.g.RectToPage(pagespace.BoundingBox(trm, glyphBox))
		for _, c := range norm.NFKC.String(string(text)) {
			p.out.WriteRune(c)
			p.boxes = append(p.boxes, box)
			p.lastRune = c
		}
	}

	p.havePrev = true
	p.prevEnd = end
	p.prevDir = dir
	p.prevSize = size
}

// separator inserts inferred white space.
func (p *interp) separator(c rune) {
	if p.out.Len() == 0 || p.lastRune == '\n' || (c == ' ' && unicode.IsSpace(p.lastRune)) {
		return
	}
	p.out.WriteRune(c)
	p.boxes = append(p.boxes, pagespace.Rect{})
	p.lastRune = c
}

func translate(dx, dy float64) matrix.Matrix {
	return matrix.Matrix{1, 0, 0, 1, dx, dy}
}

func length(x, y float64) float64 {
	return math.Sqrt(x*x + y*y)
}

func getNumbers(args []pdf.Object, n int) ([]float64, bool) {
	if len(args) != n {
		return nil, false
	}
	res := make([]float64, n)
	for i, obj := range args {
		x, err := pdf.GetNumber(nil, obj)
		if err != nil {
			return nil, false
		}
		res[i] = x
	}
	return res, true
}

func getMatrix(args []pdf.Object) (matrix.Matrix, bool) {
	x, ok := getNumbers(args, 6)
	if !ok {
		return matrix.Matrix{}, false
	}
	return matrix.Matrix(x), true
}
