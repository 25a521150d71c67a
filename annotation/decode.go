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
	"errors"
	"math"
	"strings"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/destination"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
)

// Private keys used in annotation dictionaries.
const (
	keyText         pdf.Name = "AnnotateText"
	keyTransform    pdf.Name = "AnnotateTransform"
	keyOriginalRect pdf.Name = "AnnotateOriginalRect"
)

// ErrUnsupported is returned by Decode for annotation types which are not
// represented in the model.
var ErrUnsupported = errors.New("unsupported annotation type")

// IsModeled reports whether annotations with the given /Subtype are
// represented in the annotation model.  Sync and write operations replace
// these annotations, and keep all others.
func IsModeled(subtype pdf.Name) bool {
	switch subtype {
	case "Text", "Highlight", "Underline", "StrikeOut", "Ink",
		"FileAttachment", "Sound", "FreeText", "Line", "Link":
		return true
	}
	return false
}

// Decode reads an annotation from a PDF file.  Annotations with a
// subtype outside the model give ErrUnsupported.
//
// PDF 2.0 sections: 12.5
func Decode(r pdf.Getter, obj pdf.Object, pageNo int, pages destination.Pages) (Annotation, error) {
	dict, err := pdf.GetDict(r, obj)
	if err != nil {
		return nil, err
	}
	if dict == nil {
		return nil, pdf.Errorf("missing annotation dictionary")
	}
	subtype, err := pdf.GetName(r, dict["Subtype"])
	if err != nil {
		return nil, err
	}
	if !IsModeled(subtype) {
		return nil, ErrUnsupported
	}

	g := pages.Geometry(pageNo)
	var common Common
	if err := decodeCommon(r, dict, pageNo, g, &common); err != nil {
		return nil, err
	}

	switch subtype {
	case "Text":
		a := &Note{Common: common}
		decodeMarkup(r, dict, &a.Markup)
		icon, _ := pdf.GetName(r, dict["Name"])
		a.Icon = string(icon)
		open, _ := pdf.GetBool(r, dict["Open"])
		a.Open = bool(open)
		return a, nil

	case "Highlight", "Underline", "StrikeOut":
		a := &TextMarkup{Common: common}
		decodeMarkup(r, dict, &a.Markup)
		switch subtype {
		case "Underline":
			a.Type = Underline
		case "StrikeOut":
			a.Type = StrikeOut
		}
		q, _ := pdf.GetNumbers(r, dict["QuadPoints"])
		for i := 0; i+8 <= len(q); i += 8 {
			var quad [8]float64
			copy(quad[:], q[i:i+8])
			rect := clampRect(g.QuadToPage(quad))
			if !rect.IsEmpty() {
				a.Rects = append(a.Rects, rect)
			}
		}
		if len(a.Rects) == 0 {
			a.Rects = []pagespace.Rect{a.Rect}
		}
		text, _ := pdf.GetString(r, dict[keyText])
		a.Text = text.AsTextString()
		return a, nil

	case "Ink":
		a := &Ink{Common: common}
		decodeMarkup(r, dict, &a.Markup)
		a.Width = borderWidth(r, dict)
		inkList, err := pdf.GetArray(r, dict["InkList"])
		if err != nil {
			return nil, err
		}
		for _, pathObj := range inkList {
			coords, err := pdf.GetNumbers(r, pathObj)
			if err != nil {
				return nil, err
			}
			var path []vec.Vec2
			for i := 0; i+1 < len(coords); i += 2 {
				path = append(path, clampPoint(g.ToPage(coords[i], coords[i+1])))
			}
			if len(path) > 0 {
				a.Paths = append(a.Paths, path)
			}
		}
		if len(a.Paths) == 0 {
			return nil, pdf.Errorf("ink annotation without paths")
		}
		return a, nil

	case "FileAttachment":
		a := &FileAttachment{Common: common}
		decodeMarkup(r, dict, &a.Markup)
		if err := decodeFileSpec(r, dict["FS"], a); err != nil {
			return nil, err
		}
		return a, nil

	case "Sound":
		a := &Sound{Common: common}
		decodeMarkup(r, dict, &a.Markup)
		if err := decodeSound(r, dict["Sound"], a); err != nil {
			return nil, err
		}
		return a, nil

	case "FreeText":
		a := &FreeText{Common: common}
		decodeMarkup(r, dict, &a.Markup)
		da, _ := pdf.GetString(r, dict["DA"])
		a.FontName, a.FontSize = parseDA(string(da))
		q, _ := pdf.GetInteger(r, dict["Q"])
		if q >= 0 && q <= 2 {
			a.Justification = Justification(q)
		}
		if m, err := pdf.GetNumbers(r, dict[keyTransform]); err == nil && len(m) == 6 {
			a.Transform = matrix.Matrix(m)
		}
		if o, err := pdf.GetNumbers(r, dict[keyOriginalRect]); err == nil && len(o) == 4 {
			a.OriginalRect = pagespace.Rect{Left: o[0], Top: o[1], Right: o[2], Bottom: o[3]}
		}
		return a, nil

	case "Line":
		a := &StraightLine{Common: common}
		decodeMarkup(r, dict, &a.Markup)
		a.Width = borderWidth(r, dict)
		l, err := pdf.GetNumbers(r, dict["L"])
		if err != nil {
			return nil, err
		}
		if len(l) != 4 {
			return nil, pdf.Errorf("invalid /L in line annotation")
		}
		a.Start = clampPoint(g.ToPage(l[0], l[1]))
		a.End = clampPoint(g.ToPage(l[2], l[3]))
		return a, nil

	case "Link":
		action, err := destination.DecodeTarget(r, dict, pages)
		if err != nil {
			return nil, err
		}
		if action == nil {
			return nil, ErrUnsupported
		}
		return &Link{Common: common, URL: action.URL, Dest: action.Dest}, nil
	}
	return nil, ErrUnsupported
}

func decodeCommon(r pdf.Getter, dict pdf.Dict, pageNo int, g pagespace.Geometry, c *Common) error {
	box, err := pdf.GetRectangle(r, dict["Rect"])
	if err != nil {
		return err
	}
	if box == nil {
		return pdf.Errorf("annotation without /Rect")
	}
	c.Page = pageNo
	c.Rect = clampRect(g.RectToPage(*box))

	nm, _ := pdf.GetString(r, dict["NM"])
	c.ID = nm.AsTextString()

	f, _ := pdf.GetInteger(r, dict["F"])
	c.Flags = Flags(f)

	if m, _ := pdf.GetString(r, dict["M"]); m != nil {
		c.Modified, _ = m.AsDate()
	}

	c.Color, err = decodeColor(r, dict["C"], dict["CA"])
	if err != nil {
		// invalid colors are dropped
		c.Color = Color{}
	}
	return nil
}

func decodeMarkup(r pdf.Getter, dict pdf.Dict, m *Markup) {
	t, _ := pdf.GetString(r, dict["T"])
	m.Author = t.AsTextString()
	contents, _ := pdf.GetString(r, dict["Contents"])
	m.Contents = contents.AsTextString()
	if s, _ := pdf.GetString(r, dict["CreationDate"]); s != nil {
		m.Created, _ = s.AsDate()
	}
}

func borderWidth(r pdf.Getter, dict pdf.Dict) float64 {
	bs, _ := pdf.GetDict(r, dict["BS"])
	if w, err := pdf.GetNumber(r, bs["W"]); err == nil && bs["W"] != nil && w >= 0 {
		return w
	}
	if border, _ := pdf.GetNumbers(r, dict["Border"]); len(border) >= 3 && border[2] >= 0 {
		return border[2]
	}
	return 1
}

func decodeFileSpec(r pdf.Getter, obj pdf.Object, a *FileAttachment) error {
	obj, err := pdf.Resolve(r, obj)
	if err != nil {
		return err
	}
	switch fs := obj.(type) {
	case pdf.String:
		a.FileName = fs.AsTextString()
		return nil
	case pdf.Dict:
		for _, key := range []pdf.Name{"UF", "F", "Unix", "DOS", "Mac"} {
			if s, _ := pdf.GetString(r, fs[key]); len(s) > 0 {
				a.FileName = s.AsTextString()
				break
			}
		}
		desc, _ := pdf.GetString(r, fs["Desc"])
		a.Description = desc.AsTextString()

		ef, _ := pdf.GetDict(r, fs["EF"])
		stmObj := ef["UF"]
		if stmObj == nil {
			stmObj = ef["F"]
		}
		stm, err := pdf.GetStream(r, stmObj)
		if err != nil {
			return err
		}
		if stm != nil {
			mime, _ := pdf.GetName(r, stm.Dict["Subtype"])
			a.MimeType = string(mime)
			a.Data, err = pdf.DecodeStream(r, stm)
			if err != nil {
				return err
			}
		}
		if a.FileName == "" {
			a.FileName = "attachment"
		}
		return nil
	}
	return pdf.Errorf("invalid file specification")
}

func decodeSound(r pdf.Getter, obj pdf.Object, a *Sound) error {
	stm, err := pdf.GetStream(r, obj)
	if err != nil {
		return err
	}
	if stm == nil {
		return pdf.Errorf("sound annotation without sound")
	}
	a.SampleRate, err = pdf.GetNumber(r, stm.Dict["R"])
	if err != nil {
		return err
	}
	a.Channels = 1
	if c, err := pdf.GetInteger(r, stm.Dict["C"]); err == nil && c > 0 {
		a.Channels = int(c)
	}
	a.BitsPerSample = 8
	if b, err := pdf.GetInteger(r, stm.Dict["B"]); err == nil && b > 0 {
		a.BitsPerSample = int(b)
	}
	enc, _ := pdf.GetName(r, stm.Dict["E"])
	for i, name := range soundEncodings {
		if string(enc) == name {
			a.Encoding = SoundEncoding(i)
		}
	}
	co, _ := pdf.GetName(r, stm.Dict["CO"])
	a.Compression = string(co)
	if cp, err := pdf.Resolve(r, stm.Dict["CP"]); err == nil && cp != nil {
		a.CompressionParams = pdf.Format(cp)
	}
	a.Data, err = pdf.DecodeStream(r, stm)
	return err
}

// parseDA extracts the font name and size from a default appearance
// string like "/Helv 12 Tf 0 g".
func parseDA(da string) (string, float64) {
	fields := strings.Fields(da)
	for i := 2; i < len(fields); i++ {
		if fields[i] != "Tf" || !strings.HasPrefix(fields[i-2], "/") {
			continue
		}
		obj, err := pdf.Parse([]byte(fields[i-1]))
		if err != nil {
			continue
		}
		size, _ := pdf.GetNumber(nil, obj)
		return fields[i-2][1:], size
	}
	return "", 0
}

func clampRect(r pagespace.Rect) pagespace.Rect {
	r = r.Normalize()
	return pagespace.Rect{
		Left:   clamp01(r.Left),
		Top:    clamp01(r.Top),
		Right:  clamp01(r.Right),
		Bottom: clamp01(r.Bottom),
	}
}

func clampPoint(p vec.Vec2) vec.Vec2 {
	return vec.Vec2{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return min(max(x, 0), 1)
}

