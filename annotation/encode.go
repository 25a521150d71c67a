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
	"fmt"
	"time"

	"seehuhn.de/go/geom/matrix"

	"seehuhn.de/go/annotate/destination"
	"seehuhn.de/go/annotate/pdf"
)

// Writer stores indirect objects.  This is implemented by *pdf.Writer.
type Writer interface {
	Alloc() pdf.Reference
	Put(ref pdf.Reference, obj pdf.Object) error
}

var errBookmark = errors.New("bookmarks are not PDF annotations")

// Encode converts a into a PDF annotation dictionary.  Embedded files,
// sounds and the appearance stream are written to w as separate objects;
// the returned dictionary itself is not written.
//
// PDF 2.0 sections: 12.5
func Encode(w Writer, a Annotation, pages destination.Pages) (pdf.Dict, error) {
	if a.Kind() == KindBookmark {
		return nil, errBookmark
	}

	c := a.Base()
	g := pages.Geometry(c.Page)
	dict := pdf.Dict{
		"Type": pdf.Name("Annot"),
		"Rect": pdf.RectArray(g.RectFromPage(c.Rect)),
	}
	if pageRef, ok := pages.PageRef(c.Page); ok {
		dict["P"] = pageRef
	}
	if c.ID != "" {
		dict["NM"] = pdf.TextString(c.ID)
	}
	flags := c.Flags
	if a.Kind().IsMarkup() {
		flags |= FlagPrint
	}
	if flags != 0 {
		dict["F"] = pdf.Integer(flags)
	}
	if !c.Modified.IsZero() {
		dict["M"] = pdf.Date(c.Modified)
	}
	if col := c.Color.encode(); col != nil {
		dict["C"] = col
		if alpha := c.Color.Opacity(); alpha < 1 {
			dict["CA"] = pdf.Number(alpha)
		}
	}
	if m := GetMarkup(a); m != nil {
		encodeMarkup(dict, m)
	}

	switch a := a.(type) {
	case *Note:
		dict["Subtype"] = pdf.Name("Text")
		icon := a.Icon
		if icon == "" {
			icon = "Note"
		}
		dict["Name"] = pdf.Name(icon)
		if a.Open {
			dict["Open"] = pdf.Bool(true)
		}

	case *TextMarkup:
		dict["Subtype"] = pdf.Name(a.Type.String())
		var quads pdf.Array
		for _, r := range a.Rects {
			q := g.RectToQuad(r)
			quads = append(quads, pdf.NumberArray(q[:]...)...)
		}
		dict["QuadPoints"] = quads
		if a.Text != "" {
			dict[keyText] = pdf.TextString(a.Text)
		}

	case *Ink:
		dict["Subtype"] = pdf.Name("Ink")
		var inkList pdf.Array
		for _, path := range a.Paths {
			coords := make([]float64, 0, 2*len(path))
			for _, p := range path {
				q := g.FromPage(p)
				coords = append(coords, q.X, q.Y)
			}
			inkList = append(inkList, pdf.NumberArray(coords...))
		}
		dict["InkList"] = inkList
		dict["BS"] = borderStyle(a.Width)

	case *FileAttachment:
		dict["Subtype"] = pdf.Name("FileAttachment")
		dict["Name"] = pdf.Name("PushPin")
		fs, err := encodeFileSpec(w, a)
		if err != nil {
			return nil, err
		}
		dict["FS"] = fs

	case *Sound:
		dict["Subtype"] = pdf.Name("Sound")
		dict["Name"] = pdf.Name("Speaker")
		ref, err := encodeSound(w, a)
		if err != nil {
			return nil, err
		}
		dict["Sound"] = ref

	case *FreeText:
		dict["Subtype"] = pdf.Name("FreeText")
		size := a.FontSize
		if size <= 0 {
			size = 12
		}
		font := a.FontName
		if font == "" {
			font = "Helv"
		}
		col := a.Color
		if !col.IsSet() {
			col = Gray(0)
		}
		dict["DA"] = pdf.String(fmt.Sprintf("%s %s Tf %s",
			pdf.Format(pdf.Name(font)), pdf.Format(pdf.Number(size)), col.fillOp()))
		if a.Justification != Left {
			dict["Q"] = pdf.Integer(a.Justification)
		}
		if a.Transform != (matrix.Matrix{}) {
			dict[keyTransform] = pdf.NumberArray(a.Transform[:]...)
		}
		if !a.OriginalRect.IsZero() {
			o := a.OriginalRect
			dict[keyOriginalRect] = pdf.NumberArray(o.Left, o.Top, o.Right, o.Bottom)
		}
		dict["BS"] = borderStyle(0)

	case *StraightLine:
		dict["Subtype"] = pdf.Name("Line")
		p := g.FromPage(a.Start)
		q := g.FromPage(a.End)
		dict["L"] = pdf.NumberArray(p.X, p.Y, q.X, q.Y)
		dict["BS"] = borderStyle(a.Width)

	case *Link:
		dict["Subtype"] = pdf.Name("Link")
		dict["Border"] = pdf.Array{pdf.Integer(0), pdf.Integer(0), pdf.Integer(0)}
		action := &destination.Action{URL: a.URL, Dest: a.Dest}
		if err := action.Encode(dict, pages); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("cannot encode %s annotation", a.Kind())
	}

	ap, err := Appearance(a, g)
	if err != nil {
		return nil, err
	}
	if ap != nil {
		ref := w.Alloc()
		if err := w.Put(ref, ap); err != nil {
			return nil, err
		}
		dict["AP"] = pdf.Dict{"N": ref}
	}
	return dict, nil
}

func encodeMarkup(dict pdf.Dict, m *Markup) {
	if m.Author != "" {
		dict["T"] = pdf.TextString(m.Author)
	}
	if m.Contents != "" {
		dict["Contents"] = pdf.TextString(m.Contents)
	}
	if !m.Created.IsZero() {
		dict["CreationDate"] = pdf.Date(m.Created)
	}
}

func borderStyle(width float64) pdf.Dict {
	if width < 0 {
		width = 1
	}
	return pdf.Dict{
		"Type": pdf.Name("Border"),
		"W":    pdf.Number(width),
	}
}

func encodeFileSpec(w Writer, a *FileAttachment) (pdf.Dict, error) {
	params := pdf.Dict{"Size": pdf.Integer(len(a.Data))}
	stmDict := pdf.Dict{
		"Type":   pdf.Name("EmbeddedFile"),
		"Params": params,
	}
	if a.MimeType != "" {
		stmDict["Subtype"] = pdf.Name(a.MimeType)
	}
	stm, err := pdf.Compress(stmDict, a.Data)
	if err != nil {
		return nil, err
	}
	ref := w.Alloc()
	if err := w.Put(ref, stm); err != nil {
		return nil, err
	}

	fs := pdf.Dict{
		"Type": pdf.Name("Filespec"),
		"F":    pdf.TextString(a.FileName),
		"UF":   pdf.TextString(a.FileName),
		"EF":   pdf.Dict{"F": ref, "UF": ref},
	}
	if a.Description != "" {
		fs["Desc"] = pdf.TextString(a.Description)
	}
	return fs, nil
}

func encodeSound(w Writer, a *Sound) (pdf.Reference, error) {
	dict := pdf.Dict{
		"Type": pdf.Name("Sound"),
		"R":    pdf.Number(a.SampleRate),
		"C":    pdf.Integer(a.Channels),
		"B":    pdf.Integer(a.BitsPerSample),
		"E":    pdf.Name(a.Encoding.String()),
	}
	if a.Channels <= 0 {
		dict["C"] = pdf.Integer(1)
	}
	if a.BitsPerSample <= 0 {
		dict["B"] = pdf.Integer(8)
	}
	if a.Compression != "" {
		dict["CO"] = pdf.Name(a.Compression)
	}
	if a.CompressionParams != "" {
		cp, err := pdf.Parse([]byte(a.CompressionParams))
		if err != nil {
			return 0, fmt.Errorf("sound compression parameters: %w", err)
		}
		dict["CP"] = cp
	}
	stm, err := pdf.Compress(dict, a.Data)
	if err != nil {
		return 0, err
	}
	ref := w.Alloc()
	if err := w.Put(ref, stm); err != nil {
		return 0, err
	}
	return ref, nil
}

// Stamp prepares a new annotation: it sets the modification time and,
// for markup annotations, the creation time if this is not yet set.
func Stamp(a Annotation, now time.Time) {
	a.Base().Modified = now
	if m := GetMarkup(a); m != nil && m.Created.IsZero() {
		m.Created = now
	}
}
