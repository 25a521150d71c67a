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

// Package pagetree reads the page tree of a PDF document.
//
// Inheritable page attributes are resolved, so that every Page carries
// its effective MediaBox, CropBox, Rotate and Resources.
package pagetree

import (
	"errors"

	"seehuhn.de/go/geom/rect"

	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
)

// maxPages limits the number of pages, to protect against malicious
// page trees.
const maxPages = 1 << 20

var errInvalidPageTree = errors.New("invalid page tree")

// Page is a leaf of the page tree.
type Page struct {
	// Ref is the reference of the page object.
	Ref pdf.Reference

	// Dict is the page dictionary.  It must not be modified.
	Dict pdf.Dict

	MediaBox  rect.Rect
	CropBox   rect.Rect
	Rotate    int // one of 0, 90, 180, 270
	Resources pdf.Dict
}

// letter is used when a page has no valid MediaBox.
var letter = rect.Rect{URx: 612, URy: 792}

type inherited struct {
	mediaBox, cropBox *rect.Rect
	rotate            pdf.Object
	resources         pdf.Object
}

// Pages returns all pages of the document, in order.
func Pages(r pdf.Getter, catalog pdf.Dict) ([]*Page, error) {
	rootRef, ok := catalog["Pages"].(pdf.Reference)
	if !ok {
		return nil, pdf.Wrap(&pdf.MalformedFileError{Err: errInvalidPageTree}, "/Pages")
	}

	type todoItem struct {
		ref pdf.Reference
		inh inherited
	}

	var res []*Page
	todo := []todoItem{{ref: rootRef}}
	seen := map[pdf.Reference]bool{rootRef: true}
	for len(todo) > 0 {
		k := len(todo) - 1
		item := todo[k]
		todo = todo[:k]

		node, err := pdf.GetDict(r, item.ref)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}

		inh := item.inh
		if box, err := pdf.GetRectangle(r, node["MediaBox"]); err == nil && box != nil {
			inh.mediaBox = box
		}
		if box, err := pdf.GetRectangle(r, node["CropBox"]); err == nil && box != nil {
			inh.cropBox = box
		}
		if obj, ok := node["Rotate"]; ok {
			inh.rotate = obj
		}
		if obj, ok := node["Resources"]; ok {
			inh.resources = obj
		}

		kids, hasKids := node["Kids"]
		tp, _ := pdf.GetName(r, node["Type"])
		if tp == "Page" || (tp == "" && !hasKids) {
			page, err := newPage(r, item.ref, node, inh)
			if err != nil {
				return nil, err
			}
			res = append(res, page)
			if len(res) > maxPages {
				return nil, &pdf.MalformedFileError{Err: errors.New("too many pages")}
			}
			continue
		}

		kidsArr, err := pdf.GetArray(r, kids)
		if err != nil {
			return nil, err
		}
		var kidRefs []pdf.Reference
		for _, kid := range kidsArr {
			kidRef, ok := kid.(pdf.Reference)
			if !ok || seen[kidRef] {
				continue
			}
			seen[kidRef] = true
			kidRefs = append(kidRefs, kidRef)
		}
		for i := len(kidRefs) - 1; i >= 0; i-- {
			todo = append(todo, todoItem{ref: kidRefs[i], inh: inh})
		}
	}
	return res, nil
}

func newPage(r pdf.Getter, ref pdf.Reference, dict pdf.Dict, inh inherited) (*Page, error) {
	page := &Page{
		Ref:      ref,
		Dict:     dict,
		MediaBox: letter,
	}
	if inh.mediaBox != nil && !inh.mediaBox.IsZero() {
		page.MediaBox = *inh.mediaBox
	}
	page.CropBox = page.MediaBox
	if inh.cropBox != nil {
		page.CropBox = intersect(*inh.cropBox, page.MediaBox)
	}

	rot, err := pdf.GetInteger(r, inh.rotate)
	if err != nil {
		rot = 0
	}
	page.Rotate = normalizeRotation(int(rot))

	page.Resources, _ = pdf.GetDict(r, inh.resources)
	return page, nil
}

// normalizeRotation maps a /Rotate value to 0, 90, 180 or 270.
// Values which are not multiples of 90 are treated as 0.
func normalizeRotation(rot int) int {
	if rot%90 != 0 {
		return 0
	}
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	return rot
}

// intersect returns the intersection of two rectangles.  If the
// rectangles do not overlap, b is returned.
func intersect(a, b rect.Rect) rect.Rect {
	res := rect.Rect{
		LLx: max(a.LLx, b.LLx),
		LLy: max(a.LLy, b.LLy),
		URx: min(a.URx, b.URx),
		URy: min(a.URy, b.URy),
	}
	if res.LLx >= res.URx || res.LLy >= res.URy {
		return b
	}
	return res
}

// Contents returns the decoded content stream data of a page.  If the
// page has several content streams, these are concatenated with a
// separating newline.
func Contents(r pdf.Getter, page *Page) ([]byte, error) {
	obj, err := pdf.Resolve(r, page.Dict["Contents"])
	if err != nil {
		return nil, err
	}

	var streams []pdf.Object
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case pdf.Array:
		streams = x
	default:
		streams = []pdf.Object{x}
	}

	var res []byte
	for _, s := range streams {
		stm, err := pdf.GetStream(r, s)
		if err != nil {
			return nil, err
		}
		data, err := pdf.DecodeStream(r, stm)
		if err != nil {
			return nil, err
		}
		res = append(res, data...)
		res = append(res, '\n')
	}
	return res, nil
}

// Index maps between page objects and page numbers.
type Index struct {
	pages []*Page
	index map[pdf.Reference]int
}

// NewIndex creates an Index for the given pages.
func NewIndex(pages []*Page) *Index {
	idx := &Index{
		pages: pages,
		index: make(map[pdf.Reference]int, len(pages)),
	}
	for i, p := range pages {
		if _, seen := idx.index[p.Ref]; !seen {
			idx.index[p.Ref] = i
		}
	}
	return idx
}

// NumPages returns the number of pages.
func (idx *Index) NumPages() int {
	return len(idx.pages)
}

// Page returns the page with the given number, or nil if the number
// is out of range.
func (idx *Index) Page(pageNo int) *Page {
	if pageNo < 0 || pageNo >= len(idx.pages) {
		return nil
	}
	return idx.pages[pageNo]
}

// PageIndex returns the number of the page with the given reference.
func (idx *Index) PageIndex(ref pdf.Reference) (int, bool) {
	i, ok := idx.index[ref]
	return i, ok
}

// PageRef returns the reference of the page with the given number.
func (idx *Index) PageRef(pageNo int) (pdf.Reference, bool) {
	p := idx.Page(pageNo)
	if p == nil {
		return 0, false
	}
	return p.Ref, true
}

// Geometry returns the page-space geometry of a page.
func (idx *Index) Geometry(pageNo int) pagespace.Geometry {
	p := idx.Page(pageNo)
	if p == nil {
		return pagespace.Geometry{CropBox: letter}
	}
	return pagespace.Geometry{CropBox: p.CropBox, Rotate: p.Rotate}
}
