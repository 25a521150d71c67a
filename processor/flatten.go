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

package processor

import (
	"bytes"
	"fmt"

	"seehuhn.de/go/geom/rect"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
)

// flattenPage draws the appearance streams of the annotations on top of
// the page content.  The original content is wrapped in q/Q, so that it
// cannot change the graphics state used for the annotations.  The form
// XObjects are added to the XObject resources, which must be a direct
// dictionary.
func (pw *pageWriter) flattenPage(contents pdf.Object, resources pdf.Dict, annots []annotation.Annotation, g pagespace.Geometry) (pdf.Object, error) {
	xobj, _ := resources["XObject"].(pdf.Dict)
	if xobj == nil {
		xobj = pdf.Dict{}
	}

	post := &bytes.Buffer{}
	post.WriteString("Q\n")
	k := 0
	for _, a := range annots {
		if !a.Base().Flags.Visible() {
			continue
		}
		form, err := annotation.Appearance(a, g)
		if err != nil {
			return nil, err
		}
		if form == nil {
			continue
		}

		var name pdf.Name
		for {
			name = pdf.Name(fmt.Sprintf("Annot%d", k))
			k++
			if _, taken := xobj[name]; !taken {
				break
			}
		}
		ref := pw.w.Alloc()
		if err := pw.w.Put(ref, form); err != nil {
			return nil, err
		}
		xobj[name] = ref
		fmt.Fprintf(post, "q %s Do Q\n", pdf.Format(name))
	}
	if len(xobj) > 0 {
		resources["XObject"] = xobj
	}

	pre, err := pw.putContent([]byte("q\n"))
	if err != nil {
		return nil, err
	}
	postRef, err := pw.putContent(post.Bytes())
	if err != nil {
		return nil, err
	}

	res := pdf.Array{pre}
	switch c := contents.(type) {
	case nil:
	case pdf.Array:
		res = append(res, c...)
	default:
		res = append(res, c)
	}
	return append(res, postRef), nil
}

func (pw *pageWriter) putContent(data []byte) (pdf.Reference, error) {
	stm, err := pdf.Compress(nil, data)
	if err != nil {
		return 0, err
	}
	ref := pw.w.Alloc()
	return ref, pw.w.Put(ref, stm)
}

// Layout of the pages which list the note texts.
const (
	notePageWidth  = 595
	notePageHeight = 842
	noteMargin     = 56
	noteFontSize   = 10
	noteTitleSize  = 14
	noteIndent     = 18
)

type noteLine struct {
	text   []byte
	size   float64
	indent float64
}

// notePages writes pages which list the texts of the markup annotations
// on a flattened page.  If no annotation has a text, no pages are
// written.
func (pw *pageWriter) notePages(pageNo int, annots []annotation.Annotation) ([]pdf.Reference, error) {
	width := float64(notePageWidth - 2*noteMargin)

	var lines []noteLine
	n := 0
	for _, a := range annots {
		m := annotation.GetMarkup(a)
		if m == nil || m.Contents == "" || a.Kind() == annotation.KindFreeText {
			// free text is visible on the page already
			continue
		}
		n++
		head := fmt.Sprintf("%d. %s", n, a.Kind())
		if m.Author != "" {
			head += " by " + m.Author
		}
		if !m.Created.IsZero() {
			head += ", " + m.Created.Format("2006-01-02 15:04")
		}
		lines = append(lines, noteLine{text: annotation.EncodeWinAnsi(head), size: noteFontSize})
		for _, l := range annotation.WrapText(m.Contents, noteFontSize, width-noteIndent) {
			lines = append(lines, noteLine{text: l, size: noteFontSize, indent: noteIndent})
		}
		lines = append(lines, noteLine{size: noteFontSize})
	}
	if n == 0 {
		return nil, nil
	}

	if pw.font == 0 {
		pw.font = pw.w.Alloc()
		if err := pw.w.Put(pw.font, annotation.HelveticaFont()); err != nil {
			return nil, err
		}
	}
	resources := pdf.Dict{"Font": pdf.Dict{"F1": pw.font}}
	title := annotation.EncodeWinAnsi(fmt.Sprintf("Notes on page %d", pageNo+1))

	var res []pdf.Reference
	for len(lines) > 0 {
		buf := &bytes.Buffer{}
		buf.WriteString("BT\n")
		y := float64(notePageHeight - noteMargin - noteTitleSize)
		fmt.Fprintf(buf, "/F1 %d Tf 1 0 0 1 %d %.2f Tm %s Tj\n",
			noteTitleSize, noteMargin, y, pdf.Format(pdf.String(title)))
		y -= 2 * noteTitleSize
		for len(lines) > 0 && y >= noteMargin {
			l := lines[0]
			lines = lines[1:]
			if len(l.text) > 0 {
				fmt.Fprintf(buf, "/F1 %g Tf 1 0 0 1 %.2f %.2f Tm %s Tj\n",
					l.size, noteMargin+l.indent, y, pdf.Format(pdf.String(l.text)))
			}
			y -= 1.3 * l.size
		}
		buf.WriteString("ET\n")

		contents, err := pw.putContent(buf.Bytes())
		if err != nil {
			return nil, err
		}
		ref := pw.w.Alloc()
		err = pw.w.Put(ref, pdf.Dict{
			"Type":      pdf.Name("Page"),
			"Parent":    pw.parent,
			"MediaBox":  pdf.RectArray(rect.Rect{URx: notePageWidth, URy: notePageHeight}),
			"Resources": resources,
			"Contents":  contents,
		})
		if err != nil {
			return nil, err
		}
		res = append(res, ref)
	}
	return res, nil
}
