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

package information

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/search"
)

func newNote(page int) *annotation.Note {
	return &annotation.Note{
		Common: annotation.Common{Page: page, Rect: testRect},
		Markup: annotation.Markup{Author: "Ada", Contents: "note"},
	}
}

func TestAdd(t *testing.T) {
	d := testData()
	d.Annotations = nil
	d.Modified = false
	info := New("")
	info.Replace(d)

	if info.HasUserAnnotations() || info.IsModified() {
		t.Fatal("new store is not empty")
	}

	a := newNote(1)
	before := time.Now()
	if !info.Add(a) {
		t.Fatal("Add failed")
	}
	if a.ID == "" {
		t.Error("no ID assigned")
	}
	if a.Modified.Before(before) || a.Created.IsZero() {
		t.Error("timestamps not set")
	}
	if !info.IsModified() || !info.HasUserAnnotations() {
		t.Error("flags not updated")
	}

	got := info.AnnotationsOnPage(1)
	if diff := cmp.Diff([]annotation.Annotation{a}, got); diff != "" {
		t.Errorf("unexpected annotations (-want +got):\n%s", diff)
	}
	if len(info.AnnotationsOnPage(0)) != 0 {
		t.Error("annotation on wrong page")
	}

	// the store keeps its own copy
	a.Contents = "changed"
	if got := info.AnnotationsOnPage(1)[0].(*annotation.Note); got.Contents != "note" {
		t.Error("store shares memory with the caller")
	}

	if info.Add(a) {
		t.Error("duplicate ID accepted")
	}
	if info.Add(newNote(2)) {
		t.Error("annotation on missing page accepted")
	}
	bad := newNote(0)
	bad.Rect = pagespace.Rect{Left: 0.5, Right: 0.4, Top: 0, Bottom: 1}
	if info.Add(bad) {
		t.Error("invalid rectangle accepted")
	}
}

func TestUpdateRemove(t *testing.T) {
	info := New("")
	info.Replace(testData())

	foreign := newNote(0)
	foreign.ID = "not-from-here"
	if info.Update(foreign) || info.Remove(foreign) {
		t.Error("foreign annotation accepted")
	}

	a := info.AnnotationsOnPage(0)[0].(*annotation.Note)
	old := a.Modified
	a.Contents = "updated"
	a.Page = 1
	if !info.Update(a) {
		t.Fatal("Update failed")
	}
	if !a.Modified.After(old) {
		t.Error("modification time not refreshed")
	}
	var found bool
	for _, b := range info.AnnotationsOnPage(1) {
		if b.Base().ID == a.ID {
			found = b.(*annotation.Note).Contents == "updated"
		}
	}
	if !found {
		t.Error("annotation not moved to page 1")
	}
	for _, b := range info.AnnotationsOnPage(0) {
		if b.Base().ID == a.ID {
			t.Error("annotation still on page 0")
		}
	}

	if !info.Remove(a) {
		t.Fatal("Remove failed")
	}
	if info.Remove(a) {
		t.Error("annotation removed twice")
	}
}

func TestQueries(t *testing.T) {
	info := New("")
	info.Replace(testData())

	if !info.HasText() || !info.HasTextOnPage(0) || info.HasTextOnPage(1) || info.HasTextOnPage(7) {
		t.Error("wrong text flags")
	}
	if !info.HasOutline() || !info.HasBookmarks() || !info.HasUserAnnotations() {
		t.Error("wrong flags")
	}
	if n := len(info.AllAnnotations()); n != 8 {
		t.Errorf("got %d annotations, want 8", n)
	}
	bookmarks := info.Bookmarks()
	if len(bookmarks) != 1 || bookmarks[0].Name != "here" {
		t.Errorf("unexpected bookmarks %v", bookmarks)
	}
	if info.PageCount() != 2 {
		t.Errorf("wrong page count %d", info.PageCount())
	}

	if !info.RemoveOnPage(1) || info.RemoveOnPage(2) {
		t.Error("RemoveOnPage returned the wrong result")
	}
	if info.HasBookmarks() {
		t.Error("bookmark on page 1 not removed")
	}
	if !info.RemoveAll() {
		t.Error("RemoveAll failed")
	}
	if info.HasUserAnnotations() || len(info.AllAnnotations()) != 0 {
		t.Error("annotations left after RemoveAll")
	}
}

func TestLinksAreNotUserAnnotations(t *testing.T) {
	d := testData()
	var links []annotation.Annotation
	for _, a := range d.Annotations {
		if a.Kind() == annotation.KindLink {
			links = append(links, a)
		}
	}
	d.Annotations = links
	info := New("")
	info.Replace(d)
	if info.HasUserAnnotations() {
		t.Error("links counted as user annotations")
	}
}

func TestHold(t *testing.T) {
	info := New("")
	info.Replace(testData())

	release := info.Hold()
	done := make(chan bool)
	go func() {
		done <- info.Add(newNote(0))
	}()

	select {
	case <-done:
		t.Fatal("Add did not wait for Hold")
	case <-time.After(50 * time.Millisecond):
	}
	release()
	if !<-done {
		t.Error("Add failed")
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf"+Suffix)

	info := New(path)
	info.Replace(testData())
	if err := info.Save(); err != nil {
		t.Fatal(err)
	}
	if v := VersionOf(path); v != Version5 {
		t.Errorf("wrong version 0x%08x", v)
	}

	info2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(info.Snapshot(), info2.Snapshot(), codecOpts...); diff != "" {
		t.Errorf("load failed (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}

	if n := len(info2.AllAnnotations()); n == 0 || n != len(info.AllAnnotations()) {
		t.Errorf("got %d annotations after loading, want %d", n, len(info.AllAnnotations()))
	}
	if len(info2.Bookmarks()) != 1 {
		t.Error("bookmark not saved")
	}

	if v := VersionOf(filepath.Join(dir, "missing")); v != VersionUnknown {
		t.Errorf("wrong version 0x%08x for a missing file", v)
	}
}

func TestSaveAfterAdd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf"+Suffix)
	d := testData()
	d.Annotations = nil
	info := New(path)
	info.Replace(d)

	a := newNote(1)
	if !info.Add(a) {
		t.Fatal("Add failed")
	}
	if err := info.Save(); err != nil {
		t.Fatal(err)
	}

	info2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	got := info2.AnnotationsOnPage(1)
	if diff := cmp.Diff([]annotation.Annotation{a}, got, codecOpts...); diff != "" {
		t.Errorf("unexpected annotations (-want +got):\n%s", diff)
	}
	if !info2.IsModified() {
		t.Error("modified flag not saved")
	}
}

func TestCommit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf"+Suffix)
	info := New(path)

	d := testData()
	d.Annotations[0].Base().ID = ""
	if err := info.Commit(d); err != nil {
		t.Fatal(err)
	}
	if d.Annotations[0].Base().ID == "" {
		t.Error("no ID assigned")
	}
	info2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(info.Snapshot(), info2.Snapshot(), codecOpts...); diff != "" {
		t.Errorf("load failed (-want +got):\n%s", diff)
	}

	// a failed write leaves the store unchanged
	bad := New(filepath.Join(dir, "missing", "doc.pdf"+Suffix))
	if err := bad.Commit(testData()); err == nil {
		t.Fatal("write to a missing directory succeeded")
	}
	if bad.IsProcessed() || bad.PageCount() != 0 || len(bad.AllAnnotations()) != 0 {
		t.Error("store changed by a failed commit")
	}
}

func TestAddWithoutAuthor(t *testing.T) {
	info := New("")
	info.Replace(testData())

	a := newNote(0)
	a.Author = ""
	if info.Add(a) {
		t.Error("markup annotation without author accepted")
	}
	a.Author = "Ada"
	a.Contents = ""
	if !info.Add(a) {
		t.Error("markup annotation with empty contents rejected")
	}

	b := info.AnnotationsOnPage(0)[0]
	annotation.GetMarkup(b).Author = ""
	if info.Update(b) {
		t.Error("update removing the author accepted")
	}
}

func TestSearchCallbacksUseStore(t *testing.T) {
	info := New("")
	info.Replace(testData())

	added := make(chan bool)
	var seen []int
	obs := search.ObserverFuncs{
		OnResult: func(r *search.Result) {
			go func() { added <- info.Add(newNote(r.Page)) }()
			time.Sleep(20 * time.Millisecond)
			seen = append(seen, len(info.AnnotationsOnPage(r.Page)))
		},
	}

	done := make(chan bool)
	go func() {
		done <- info.Search(context.Background(), &search.Request{Query: "hi"}, obs)
	}()
	select {
	case found := <-done:
		if !found {
			t.Error("no match found")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search blocked by a callback")
	}
	if !<-added {
		t.Error("Add failed")
	}
	if len(seen) != 1 {
		t.Errorf("got %d results, want 1", len(seen))
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	info := New("")
	if info.Search(ctx, &search.Request{Query: "hi"}, nil) {
		t.Error("unprocessed document searched")
	}

	info.Replace(testData())
	var results []*search.Result
	obs := search.ObserverFuncs{OnResult: func(r *search.Result) { results = append(results, r) }}
	if !info.Search(ctx, &search.Request{Query: "hi"}, obs) {
		t.Fatal("no match found")
	}
	if len(results) != 1 || results[0].Text != "Hi" {
		t.Errorf("unexpected results %v", results)
	}

	req := &search.Request{Query: "remember", IncludeAnnotations: true}
	if !info.Search(ctx, req, nil) || req.NumResults() != 7 {
		t.Errorf("got %d matches in annotations, want 7", req.NumResults())
	}
	if info.Search(ctx, &search.Request{Query: "(", Regexp: true}, nil) {
		t.Error("invalid query accepted")
	}
}
