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

package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/extract"
	"seehuhn.de/go/annotate/pagespace"
)

// makeText lays out s with one box per rune.  Each newline starts a new
// line of text.
func makeText(s string) *extract.Text {
	t := &extract.Text{Text: s}
	i, line := 0, 0
	for _, c := range s {
		if c == '\n' {
			t.Boxes = append(t.Boxes, pagespace.Rect{})
			i, line = 0, line+1
			continue
		}
		top := 0.1 + 0.05*float64(line)
		t.Boxes = append(t.Boxes, pagespace.Rect{
			Left:   0.01 * float64(i),
			Top:    top,
			Right:  0.01 * float64(i+1),
			Bottom: top + 0.02,
		})
		i++
	}
	return t
}

type testSource struct {
	pages  []*extract.Text
	annots map[int][]annotation.Annotation
}

func (s *testSource) NumPages() int                   { return len(s.pages) }
func (s *testSource) PageText(page int) *extract.Text { return s.pages[page] }

func (s *testSource) Annotations(page int) []annotation.Annotation {
	return s.annots[page]
}

var approx = cmpopts.EquateApprox(0, 1e-9)

// collect runs a search and returns the results and the pages reported
// as done.
func collect(t *testing.T, src Source, req *Request) ([]*Result, []int, error) {
	t.Helper()
	var results []*Result
	var pages []int
	err := Run(context.Background(), src, req, ObserverFuncs{
		OnResult: func(r *Result) { results = append(results, r) },
		OnPage:   func(p int) { pages = append(pages, p) },
	})
	return results, pages, err
}

func TestAlphaBeta(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("alpha beta alpha")}}
	req := &Request{Query: "alpha"}
	results, pages, err := collect(t, src, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Text != "alpha" || r.Page != 0 || r.Annotation != nil {
			t.Errorf("unexpected result %+v", r)
		}
	}
	if results[0].Bounds.Intersects(results[1].Bounds) {
		t.Error("result rectangles overlap")
	}
	if d := cmp.Diff([]int{0}, pages); d != "" {
		t.Errorf("wrong progress (-want +got):\n%s", d)
	}
	if req.NumResults() != 2 || req.InProgress() || req.Capped() {
		t.Error("wrong request state")
	}

	want := pagespace.Rect{Left: 0.11, Top: 0.1, Right: 0.16, Bottom: 0.12}
	if d := cmp.Diff(want, results[1].Bounds, approx); d != "" {
		t.Errorf("wrong bounds (-want +got):\n%s", d)
	}
	if results[1].Location != 11 {
		t.Errorf("wrong location %d", results[1].Location)
	}
}

func TestContext(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("one two three\nfour five")}}
	results, _, err := collect(t, src, &Request{Query: "three", ContextRunes: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Context != "two three fou" || r.Offset != 4 {
		t.Errorf("wrong context %q, offset %d", r.Context, r.Offset)
	}
}

func TestCaseFolding(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("Größe GRÖSSE größe")}}

	results, _, err := collect(t, src, &Request{Query: "größe"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) < 2 {
		t.Errorf("case-insensitive search found %d results", len(results))
	}

	results, _, err = collect(t, src, &Request{Query: "größe", CaseSensitive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Location != 13 {
		t.Errorf("case-sensitive search gave %d results", len(results))
	}
}

func TestRegexp(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("ab\ncd")}}
	results, _, err := collect(t, src, &Request{Query: `b\sc`, Regexp: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if len(r.Rects) != 2 {
		t.Fatalf("got %d rectangles, want one per line", len(r.Rects))
	}
	if d := cmp.Diff(r.Rects[0].Union(r.Rects[1]), r.Bounds, approx); d != "" {
		t.Errorf("wrong bounds (-want +got):\n%s", d)
	}

	for _, q := range []string{"", "("} {
		_, _, err := collect(t, src, &Request{Query: q, Regexp: true})
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("%q: expected ErrInvalidQuery, got %v", q, err)
		}
	}
}

func TestDirection(t *testing.T) {
	src := &testSource{pages: []*extract.Text{
		makeText("x1 x2"),
		nil,
		makeText("x3"),
	}}

	results, pages, err := collect(t, src, &Request{Query: "x", BasePage: 0, BaseLocation: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := locations(results); !cmp.Equal(got, []string{"0:3", "2:0"}) {
		t.Errorf("forward: got %v", got)
	}
	if !cmp.Equal(pages, []int{0, 1, 2}) {
		t.Errorf("forward: pages %v", pages)
	}

	results, pages, err = collect(t, src, &Request{Query: "x", BasePage: 2, BaseLocation: -1, Direction: Backward})
	if err != nil {
		t.Fatal(err)
	}
	if got := locations(results); !cmp.Equal(got, []string{"2:0", "0:3", "0:0"}) {
		t.Errorf("backward: got %v", got)
	}
	if !cmp.Equal(pages, []int{2, 1, 0}) {
		t.Errorf("backward: pages %v", pages)
	}
}

func locations(results []*Result) []string {
	var res []string
	for _, r := range results {
		res = append(res, string(rune('0'+r.Page))+":"+string(rune('0'+r.Location)))
	}
	return res
}

func TestCap(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("aaaa"), makeText("aaaa")}}
	req := &Request{Query: "a", MaxResults: 3}
	results, _, err := collect(t, src, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || !req.Capped() {
		t.Errorf("got %d results, capped=%t", len(results), req.Capped())
	}
}

func TestCancel(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("a"), makeText("a"), makeText("a")}}
	req := &Request{Query: "a"}
	var pages []int
	err := Run(context.Background(), src, req, ObserverFuncs{
		OnPage: func(p int) {
			pages = append(pages, p)
			req.Cancel()
		},
	})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if !cmp.Equal(pages, []int{0}) || req.NumResults() != 1 {
		t.Errorf("search continued after cancel: pages %v", pages)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, src, &Request{Query: "a"}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCancelBeforeStart(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("a"), makeText("a")}}
	req := &Request{Query: "a"}
	req.Cancel()

	var pages []int
	obs := ObserverFuncs{OnPage: func(p int) { pages = append(pages, p) }}
	err := Run(context.Background(), src, req, obs)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if len(pages) != 0 || req.NumResults() != 0 {
		t.Errorf("cancelled search scanned pages %v", pages)
	}

	req.Reset()
	if err := Run(context.Background(), src, req, obs); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(pages, []int{0, 1}) || req.NumResults() != 2 {
		t.Errorf("search after Reset: pages %v, %d results", pages, req.NumResults())
	}
}

func TestAnnotations(t *testing.T) {
	note := &annotation.Note{
		Common: annotation.Common{ID: "1", Rect: pagespace.Rect{Left: 0.5, Top: 0.5, Right: 0.6, Bottom: 0.6}},
		Markup: annotation.Markup{Contents: "see alpha here"},
	}
	link := &annotation.Link{Common: annotation.Common{ID: "2"}, URL: "alpha"}
	src := &testSource{
		pages:  []*extract.Text{makeText("alpha")},
		annots: map[int][]annotation.Annotation{0: {note, link}},
	}

	results, _, err := collect(t, src, &Request{Query: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("annotations searched without IncludeAnnotations")
	}

	results, _, err = collect(t, src, &Request{Query: "alpha", IncludeAnnotations: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	r := results[1]
	if r.Annotation == nil || r.Annotation.Base().ID != "1" {
		t.Fatalf("missing annotation back-reference")
	}
	if r.Context != "see alpha here" || r.Offset != 4 || r.Location != -1 {
		t.Errorf("wrong context %q, offset %d", r.Context, r.Offset)
	}
	if d := cmp.Diff(note.Rect, r.Bounds); d != "" {
		t.Errorf("wrong bounds (-want +got):\n%s", d)
	}
}

func TestAll(t *testing.T) {
	src := &testSource{pages: []*extract.Text{makeText("a a a")}}
	req := &Request{Query: "a"}
	n := 0
	for r := range All(context.Background(), src, req) {
		n++
		if r.Location != 0 {
			t.Errorf("wrong first result %+v", r)
		}
		break
	}
	if n != 1 || req.NumResults() != 1 || req.InProgress() {
		t.Errorf("iteration did not stop")
	}
}
