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

package outline

import (
	"errors"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/destination"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
)

// PDF 2.0 sections: 12.3.3

// Outline holds the document outline of a PDF file, together with the
// bookmarks stored in the reserved bookmark section.
type Outline struct {
	// Root is the root of the document outline, or nil if the document
	// has no outline.  The reserved bookmark section is not included.
	Root *Element

	// Bookmarks lists the user bookmarks, in outline order.
	Bookmarks []*annotation.Bookmark

	// BrokenElements and BrokenBookmarks count the outline items which
	// could not be decoded by Read.  Broken outline elements are kept
	// without a destination, broken bookmarks are dropped.
	BrokenElements  int
	BrokenBookmarks int
}

// Element is a node of the document outline.
// The outline is read-only: changes are not written back to PDF files.
type Element struct {
	Title string

	// IsRoot is set for the root of the outline tree.  The root has no
	// title and no destination.
	IsRoot bool

	// Open indicates whether the children are initially shown.
	Open bool

	// Dest is the destination within the document, if any.
	Dest *destination.Destination

	// URL is the target of outline items which link to a web page.
	URL string

	Children []*Element
}

// Title of the outline item which holds the user bookmarks.
const BookmarkSectionTitle = "Bookmarks"

// Private keys in outline item dictionaries.
const (
	keySection pdf.Name = "AnnotateBookmarks"
	keyRect    pdf.Name = "AnnotateRect"
)

// maxItems limits the number of outline items read from a file.
const maxItems = 65536

var errLoop = errors.New("outline tree contains a loop")

// Read reads the document outline from a PDF file.  If the document has
// no outline, an empty Outline is returned.
//
// Problems with individual outline items are counted in the
// BrokenElements and BrokenBookmarks fields.  An error is only returned
// if the structure of the outline tree is damaged.
func Read(r pdf.Getter, catalog pdf.Dict, pages destination.Pages) (*Outline, error) {
	res := &Outline{}

	rootDict, err := pdf.GetDict(r, catalog["Outlines"])
	if err != nil {
		return nil, pdf.Wrap(err, "/Outlines")
	}
	if rootDict == nil {
		return res, nil
	}

	rr := &reader{
		r:     r,
		pages: pages,
		seen:  map[pdf.Reference]bool{},
		out:   res,
	}
	if ref, ok := catalog["Outlines"].(pdf.Reference); ok {
		rr.seen[ref] = true
	}
	children, err := rr.readChildren(rootDict["First"], true)
	if err != nil {
		return nil, err
	}
	if len(children) > 0 {
		res.Root = &Element{IsRoot: true, Open: true, Children: children}
	}
	return res, nil
}

type reader struct {
	r     pdf.Getter
	pages destination.Pages
	seen  map[pdf.Reference]bool
	out   *Outline
}

func (rr *reader) readChildren(obj pdf.Object, topLevel bool) ([]*Element, error) {
	var res []*Element
	for obj != nil {
		ref, isRef := obj.(pdf.Reference)
		if !isRef {
			return nil, pdf.Errorf("outline item is not an indirect object")
		}
		if rr.seen[ref] {
			return nil, errLoop
		}
		rr.seen[ref] = true
		if len(rr.seen) > maxItems {
			return nil, errors.New("outline too large")
		}

		dict, err := pdf.GetDict(rr.r, ref)
		if err != nil {
			return nil, err
		}
		if dict == nil {
			break
		}

		if isSection, _ := pdf.GetBool(rr.r, dict[keySection]); bool(isSection) && topLevel {
			if err := rr.readBookmarks(dict["First"]); err != nil {
				return nil, err
			}
		} else {
			elem, err := rr.readItem(dict)
			if err != nil {
				return nil, err
			}
			res = append(res, elem)
		}

		obj = dict["Next"]
	}
	return res, nil
}

func (rr *reader) readItem(dict pdf.Dict) (*Element, error) {
	elem := &Element{}

	title, err := pdf.GetString(rr.r, dict["Title"])
	if err != nil {
		rr.out.BrokenElements++
	}
	elem.Title = title.AsTextString()

	count, _ := pdf.GetInteger(rr.r, dict["Count"])
	elem.Open = count > 0

	target, err := destination.DecodeTarget(rr.r, dict, rr.pages)
	if err != nil {
		rr.out.BrokenElements++
	} else if target != nil {
		elem.Dest = target.Dest
		elem.URL = target.URL
	}

	elem.Children, err = rr.readChildren(dict["First"], false)
	if err != nil {
		return nil, err
	}
	return elem, nil
}

// readBookmarks reads the children of the reserved bookmark section.
func (rr *reader) readBookmarks(obj pdf.Object) error {
	for obj != nil {
		ref, isRef := obj.(pdf.Reference)
		if !isRef {
			return pdf.Errorf("outline item is not an indirect object")
		}
		if rr.seen[ref] {
			return errLoop
		}
		rr.seen[ref] = true

		dict, err := pdf.GetDict(rr.r, ref)
		if err != nil {
			return err
		}
		if dict == nil {
			break
		}

		b, err := rr.readBookmark(dict)
		if err != nil {
			rr.out.BrokenBookmarks++
		} else {
			rr.out.Bookmarks = append(rr.out.Bookmarks, b)
		}

		obj = dict["Next"]
	}
	return nil
}

func (rr *reader) readBookmark(dict pdf.Dict) (*annotation.Bookmark, error) {
	title, err := pdf.GetString(rr.r, dict["Title"])
	if err != nil {
		return nil, err
	}
	dest, err := destination.Decode(rr.r, dict["Dest"], rr.pages)
	if err != nil {
		return nil, err
	}
	if dest == nil {
		return nil, pdf.Errorf("bookmark without destination")
	}

	b := &annotation.Bookmark{Name: title.AsTextString()}
	b.Page = dest.Page

	if r, _ := pdf.GetNumbers(rr.r, dict[keyRect]); len(r) == 4 {
		b.Rect = pagespace.Rect{Left: r[0], Top: r[1], Right: r[2], Bottom: r[3]}
	}
	if !b.Rect.Valid() {
		// Bookmarks written by other programs only carry a position.
		x := min(max(dest.TopLeft.X, 0), 0.99)
		y := min(max(dest.TopLeft.Y, 0), 0.99)
		b.Rect = pagespace.Rect{Left: x, Top: y, Right: x + 0.01, Bottom: y + 0.01}
	}

	nm, _ := pdf.GetString(rr.r, dict["NM"])
	b.ID = nm.AsTextString()
	if m, _ := pdf.GetString(rr.r, dict["M"]); m != nil {
		b.Modified, _ = m.AsDate()
	}
	return b, nil
}

// WriteStats reports the outline items which could not be written.
type WriteStats struct {
	SkippedElements  int
	SkippedBookmarks int
}

// Write writes the outline to w and returns the reference of the outline
// root, for use as /Outlines in the document catalog.  If there is
// nothing to write, the returned reference is 0.
//
// Items whose destination page is not part of pages are written without
// a destination.  Such bookmarks are omitted.
func (o *Outline) Write(w annotation.Writer, pages destination.Pages) (pdf.Reference, WriteStats, error) {
	ww := &writer{
		w:     w,
		pages: pages,
		count: map[*Element]int{},
	}
	if o == nil {
		return 0, ww.stats, nil
	}

	var items []*Element
	if o.Root != nil {
		items = append(items, o.Root.Children...)
	}

	var section *Element
	if len(o.Bookmarks) > 0 {
		section = &Element{Title: BookmarkSectionTitle, Open: true}
		items = append(items, section)
	}
	if len(items) == 0 {
		return 0, ww.stats, nil
	}

	var rootCount int
	for _, item := range items {
		rootCount += ww.getCount(item)
	}
	if section != nil {
		// The section item has no Element children, its entries are
		// written from the bookmark list.
		ww.count[section] = len(o.Bookmarks)
		rootCount += len(o.Bookmarks)
		ww.hasOpen = true
		ww.bookmarks = o.Bookmarks
		ww.section = section
	}

	rootRef := w.Alloc()
	first := w.Alloc()
	last := first
	if len(items) > 1 {
		last = w.Alloc()
	}
	rootDict := pdf.Dict{
		"Type":  pdf.Name("Outlines"),
		"First": first,
		"Last":  last,
	}
	if ww.hasOpen {
		rootDict["Count"] = pdf.Integer(rootCount)
	}
	if err := w.Put(rootRef, rootDict); err != nil {
		return 0, ww.stats, err
	}

	err := ww.writeChildren(rootRef, first, last, items)
	if err != nil {
		return 0, ww.stats, err
	}
	return rootRef, ww.stats, nil
}

type writer struct {
	w     annotation.Writer
	pages destination.Pages
	count map[*Element]int
	stats WriteStats

	hasOpen   bool
	section   *Element
	bookmarks []*annotation.Bookmark
}

// getCount computes the Count value for an item.
// Returns positive count if item is open, negative if closed.
func (ww *writer) getCount(item *Element) int {
	if item == nil || len(item.Children) == 0 {
		return 1
	}

	// count this item plus all descendants
	total := 1
	for _, child := range item.Children {
		childCount := ww.getCount(child)
		if childCount > 0 {
			total += childCount
		} else {
			total++ // closed child counts as 1
		}
	}

	descendantCount := total - 1
	if item.Open {
		ww.hasOpen = true
		ww.count[item] = descendantCount
	} else if descendantCount > 0 {
		ww.count[item] = -descendantCount
	}

	if item.Open {
		return total
	}
	return 1
}

func (ww *writer) writeItem(ref pdf.Reference, dict pdf.Dict, item *Element) error {
	dict["Title"] = pdf.TextString(item.Title)

	if item.Dest != nil || item.URL != "" {
		action := &destination.Action{Dest: item.Dest, URL: item.URL}
		if err := action.Encode(dict, ww.pages); err != nil {
			ww.stats.SkippedElements++
		}
	}

	children := item.Children
	n := len(children)
	if item == ww.section {
		dict[keySection] = pdf.Bool(true)
		n = len(ww.bookmarks)
	}

	var first, last pdf.Reference
	if n > 0 {
		first = ww.w.Alloc()
		last = first
		if n > 1 {
			last = ww.w.Alloc()
		}
		dict["First"] = first
		dict["Last"] = last
		if count, ok := ww.count[item]; ok {
			dict["Count"] = pdf.Integer(count)
		}
	}
	if err := ww.w.Put(ref, dict); err != nil {
		return err
	}

	if item == ww.section {
		return ww.writeBookmarks(ref, first, last)
	}
	if n > 0 {
		return ww.writeChildren(ref, first, last, children)
	}
	return nil
}

func (ww *writer) writeChildren(parent, first, last pdf.Reference, items []*Element) error {
	refs := allocRefs(ww.w, first, last, len(items))
	for i, item := range items {
		dict := pdf.Dict{
			"Parent": parent,
		}
		if i > 0 {
			dict["Prev"] = refs[i-1]
		}
		if i < len(items)-1 {
			dict["Next"] = refs[i+1]
		}
		err := ww.writeItem(refs[i], dict, item)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeBookmarks writes the entries of the reserved bookmark section.
// The number of entries was fixed when the section item was written, so
// bookmarks which cannot be encoded are written without a destination.
func (ww *writer) writeBookmarks(parent, first, last pdf.Reference) error {
	refs := allocRefs(ww.w, first, last, len(ww.bookmarks))
	for i, b := range ww.bookmarks {
		dict := pdf.Dict{
			"Parent": parent,
			"Title":  pdf.TextString(b.Name),
		}
		if i > 0 {
			dict["Prev"] = refs[i-1]
		}
		if i < len(refs)-1 {
			dict["Next"] = refs[i+1]
		}

		dest := &destination.Destination{
			Fit:     destination.FitXYZ,
			Page:    b.Page,
			TopLeft: b.Rect.TopLeft(),
		}
		if arr, err := dest.Encode(ww.pages); err == nil {
			dict["Dest"] = arr
		} else {
			ww.stats.SkippedBookmarks++
		}
		r := b.Rect
		dict[keyRect] = pdf.NumberArray(r.Left, r.Top, r.Right, r.Bottom)
		if b.ID != "" {
			dict["NM"] = pdf.TextString(b.ID)
		}
		if !b.Modified.IsZero() {
			dict["M"] = pdf.Date(b.Modified)
		}

		if err := ww.w.Put(refs[i], dict); err != nil {
			return err
		}
	}
	return nil
}

func allocRefs(w annotation.Writer, first, last pdf.Reference, n int) []pdf.Reference {
	refs := make([]pdf.Reference, n)
	for i := range refs {
		switch {
		case i == 0:
			refs[i] = first
		case i == n-1:
			refs[i] = last
		default:
			refs[i] = w.Alloc()
		}
	}
	return refs
}
