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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/destination"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
	"seehuhn.de/go/annotate/pdf/pagetree"
)

const numPages = 3

// writePages writes a page tree with numPages A5 pages, as objects
// 1, ..., numPages.  The page tree root and the catalog follow.
func writePages(t *testing.T, w *pdf.Writer) (pdf.Dict, pdf.Reference, *pagetree.Index) {
	t.Helper()
	box := rect.Rect{URx: 420, URy: 595}
	pageRefs := make([]pdf.Reference, numPages)
	for i := range pageRefs {
		pageRefs[i] = w.Alloc()
	}
	treeRef := w.Alloc()
	catRef := w.Alloc()
	var kids pdf.Array
	var pages []*pagetree.Page
	for _, ref := range pageRefs {
		err := w.Put(ref, pdf.Dict{
			"Type":     pdf.Name("Page"),
			"Parent":   treeRef,
			"MediaBox": pdf.RectArray(box),
		})
		if err != nil {
			t.Fatal(err)
		}
		kids = append(kids, ref)
		pages = append(pages, &pagetree.Page{Ref: ref, MediaBox: box, CropBox: box})
	}
	err := w.Put(treeRef, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  kids,
		"Count": pdf.Integer(numPages),
	})
	if err != nil {
		t.Fatal(err)
	}
	catalog := pdf.Dict{"Type": pdf.Name("Catalog"), "Pages": treeRef}
	return catalog, catRef, pagetree.NewIndex(pages)
}

func finish(t *testing.T, w *pdf.Writer, buf *bytes.Buffer, catalog pdf.Dict, catRef pdf.Reference) *pdf.Reader {
	t.Helper()
	if err := w.Put(catRef, catalog); err != nil {
		t.Fatal(err)
	}
	w.Trailer["Root"] = catRef
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRoundTrip(t *testing.T) {
	modified := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	in := &Outline{
		Root: &Element{
			IsRoot: true,
			Open:   true,
			Children: []*Element{
				{
					Title: "Chapter 1",
					Open:  true,
					Dest:  &destination.Destination{Fit: destination.FitPage, Page: 0},
					Children: []*Element{
						{Title: "Section 1.1", Dest: &destination.Destination{Fit: destination.FitH, Page: 1, TopLeft: vec.Vec2{Y: 0.5}}},
						{Title: "Section 1.2", URL: "https://example.com/"},
					},
				},
				{
					Title: "Chapter 2",
					Dest:  &destination.Destination{Fit: destination.FitXYZ, Page: 2, TopLeft: vec.Vec2{X: 0.1, Y: 0.2}},
					Children: []*Element{
						{Title: "Closed child"},
					},
				},
				{Title: "Ünïcode ☺"},
			},
		},
		Bookmarks: []*annotation.Bookmark{
			{
				Common: annotation.Common{
					ID:       "b1",
					Page:     1,
					Rect:     pagespace.Rect{Left: 0.1, Top: 0.2, Right: 0.3, Bottom: 0.25},
					Modified: modified,
				},
				Name: "important",
			},
			{
				Common: annotation.Common{
					ID:   "b2",
					Page: 2,
					Rect: pagespace.Rect{Left: 0.5, Top: 0.5, Right: 0.6, Bottom: 0.6},
				},
				Name: "later",
			},
		},
	}

	buf := &bytes.Buffer{}
	w, err := pdf.NewWriter(buf, pdf.V1_7)
	if err != nil {
		t.Fatal(err)
	}
	catalog, catRef, pages := writePages(t, w)
	ref, stats, err := in.Write(w, pages)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (WriteStats{}) {
		t.Errorf("unexpected skipped items: %v", stats)
	}
	catalog["Outlines"] = ref
	r := finish(t, w, buf, catalog, catRef)

	pageList, err := pagetree.Pages(r, catalog)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Read(r, catalog, pagetree.NewIndex(pageList))
	if err != nil {
		t.Fatal(err)
	}

	opts := []cmp.Option{cmpopts.EquateApprox(0, 1e-6), cmpopts.EquateEmpty()}
	if d := cmp.Diff(in, out, opts...); d != "" {
		t.Errorf("round trip failed (-want +got):\n%s", d)
	}

	count, _ := pdf.GetDict(r, ref)
	// 3 chapters, 2 open children, bookmark section with 2 entries
	if n, _ := pdf.GetInteger(r, count["Count"]); n != 8 {
		t.Errorf("wrong root count %d", n)
	}
}

func TestWriteMissingPage(t *testing.T) {
	in := &Outline{
		Root: &Element{IsRoot: true, Children: []*Element{
			{Title: "gone", Dest: &destination.Destination{Fit: destination.FitPage, Page: 7}},
		}},
		Bookmarks: []*annotation.Bookmark{{
			Common: annotation.Common{Page: 9, Rect: pagespace.Rect{Right: 0.1, Bottom: 0.1}},
			Name:   "gone too",
		}},
	}

	buf := &bytes.Buffer{}
	w, err := pdf.NewWriter(buf, pdf.V1_7)
	if err != nil {
		t.Fatal(err)
	}
	catalog, catRef, pages := writePages(t, w)
	ref, stats, err := in.Write(w, pages)
	if err != nil {
		t.Fatal(err)
	}
	want := WriteStats{SkippedElements: 1, SkippedBookmarks: 1}
	if stats != want {
		t.Errorf("got %v, want %v", stats, want)
	}
	catalog["Outlines"] = ref
	r := finish(t, w, buf, catalog, catRef)

	out, err := Read(r, catalog, pages)
	if err != nil {
		t.Fatal(err)
	}
	if out.BrokenBookmarks != 1 || len(out.Bookmarks) != 0 {
		t.Errorf("got %d bookmarks, %d broken", len(out.Bookmarks), out.BrokenBookmarks)
	}
	if out.Root == nil || len(out.Root.Children) != 1 || out.Root.Children[0].Dest != nil {
		t.Errorf("unexpected outline %v", out.Root)
	}
}

func TestEmpty(t *testing.T) {
	ref, _, err := (&Outline{}).Write(nil, nil)
	if err != nil || ref != 0 {
		t.Errorf("got %v, %v", ref, err)
	}
	out, err := Read(nil, pdf.Dict{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Root != nil || out.Bookmarks != nil {
		t.Errorf("unexpected outline %v", out)
	}
}

func TestReadLoop(t *testing.T) {
	for _, good := range []bool{true, false} {
		buf := &bytes.Buffer{}
		w, err := pdf.NewWriter(buf, pdf.V1_7)
		if err != nil {
			t.Fatal(err)
		}
		catalog, catRef, pages := writePages(t, w)

		// create a loop in the outline tree
		refRoot := w.Alloc()
		refA := w.Alloc()
		refB := w.Alloc()
		refC := w.Alloc()

		var A pdf.Dict
		if good {
			A = pdf.Dict{
				"Title":  pdf.TextString("A"),
				"Next":   refB,
				"Parent": refRoot,
			}
		} else {
			A = pdf.Dict{
				"Title":  pdf.TextString("A"),
				"Next":   refA,
				"Prev":   refA,
				"Parent": refRoot,
			}
		}
		B := pdf.Dict{
			"Title":  pdf.TextString("B"),
			"Prev":   refA,
			"Next":   refC,
			"Parent": refRoot,
		}
		C := pdf.Dict{
			"Title":  pdf.TextString("C"),
			"Prev":   refB,
			"Parent": refRoot,
		}
		root := pdf.Dict{
			"First": refA,
			"Last":  refC,
		}
		for ref, obj := range map[pdf.Reference]pdf.Dict{refA: A, refB: B, refC: C, refRoot: root} {
			if err := w.Put(ref, obj); err != nil {
				t.Fatal(err)
			}
		}
		catalog["Outlines"] = refRoot
		r := finish(t, w, buf, catalog, catRef)

		_, err = Read(r, catalog, pages)
		if (err == nil) != good {
			t.Errorf("good=%v, err=%v", good, err)
		}
		if !good && !errors.Is(err, errLoop) {
			t.Errorf("wrong error %v", err)
		}
	}
}
