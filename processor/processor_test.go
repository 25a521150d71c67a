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
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/destination"
	"seehuhn.de/go/annotate/document"
	"seehuhn.de/go/annotate/information"
	"seehuhn.de/go/annotate/pagespace"
)

func process(t *testing.T, p *Processor, doc *document.Document, obs Observer) {
	t.Helper()
	if err := wait(t, p.Process(context.Background(), doc, nil, obs)); err != nil {
		t.Fatal(err)
	}
}

func TestProcess(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 3, outline: true, link: true}))
	rec := newRecorder()

	process(t, p, doc, rec)

	info := doc.Information()
	if !info.IsProcessed() {
		t.Error("document not processed")
	}
	if info.PageCount() != 3 {
		t.Errorf("wrong page count %d", info.PageCount())
	}
	if info.IsModified() {
		t.Error("freshly processed document is modified")
	}
	for i := range 3 {
		if !info.HasTextOnPage(i) {
			t.Errorf("page %d has no text", i)
		}
	}
	if text := info.PageText(0).Text; !strings.Contains(text, "alpha beta alpha 1") {
		t.Errorf("unexpected page text %q", text)
	}
	if info.Permissions() != information.PermAll {
		t.Errorf("wrong permissions %b", info.Permissions())
	}

	root := info.Outline()
	if root == nil || len(root.Children) != 3 || root.Children[2].Title != "Chapter 3" {
		t.Errorf("unexpected outline %#v", root)
	}

	var links []*annotation.Link
	for _, a := range info.AllAnnotations() {
		if l, ok := a.(*annotation.Link); ok {
			links = append(links, l)
		}
	}
	if len(links) != 1 || links[0].Page != 0 || links[0].Dest == nil || links[0].Dest.Page != 2 {
		t.Errorf("unexpected links %v", links)
	}
	if info.HasUserAnnotations() {
		t.Error("links counted as user annotations")
	}

	if d := cmp.Diff([]int{0, 1, 2}, rec.pages); d != "" {
		t.Errorf("page events (-want +got):\n%s", d)
	}
	if rec.annots[0] != 1 {
		t.Errorf("wrong annotation count %d for page 0", rec.annots[0])
	}
	if d := cmp.Diff([]Kind{KindProcess}, rec.finished); d != "" {
		t.Errorf("finished events (-want +got):\n%s", d)
	}
	if len(rec.failed) != 0 || len(rec.nonFatal) != 0 {
		t.Errorf("unexpected errors %v %v", rec.failed, rec.nonFatal)
	}
	if !strings.Contains(rec.log, "job finished") {
		t.Errorf("job log is missing the final message:\n%s", rec.log)
	}
}

func TestProcessIdempotent(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 2}))
	process(t, p, doc, nil)

	rec := newRecorder()
	process(t, p, doc, rec)
	if len(rec.pages) != 0 {
		t.Errorf("document was processed again: %v", rec.pages)
	}

	err := wait(t, p.Process(context.Background(), doc, &ProcessOptions{Strict: true}, nil))
	if CodeOf(err) != AlreadyProcessed {
		t.Errorf("expected AlreadyProcessed, got %v", err)
	}
	if !doc.Information().IsProcessed() {
		t.Error("failed job discarded the information")
	}

	rec = newRecorder()
	if err := wait(t, p.Process(context.Background(), doc, &ProcessOptions{Force: true}, rec)); err != nil {
		t.Fatal(err)
	}
	if len(rec.pages) != 2 {
		t.Errorf("forced processing visited pages %v", rec.pages)
	}
}

func TestProcessKeepsChanges(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 2}))
	process(t, p, doc, nil)

	info := doc.Information()
	note := &annotation.Note{
		Common: annotation.Common{Page: 1, Rect: pagespace.Rect{Left: 0.1, Top: 0.1, Right: 0.15, Bottom: 0.15}},
		Markup: annotation.Markup{Author: "Jo", Contents: "unsaved"},
	}
	if !info.Add(note) {
		t.Fatal("Add failed")
	}

	if err := wait(t, p.Process(context.Background(), doc, &ProcessOptions{Force: true}, nil)); err != nil {
		t.Fatal(err)
	}
	if !info.IsModified() || len(info.AnnotationsOnPage(1)) != 1 {
		t.Error("processing lost unsaved annotations")
	}
}

func TestProcessErrors(t *testing.T) {
	p := newProcessor(t)

	err := wait(t, p.Process(context.Background(), document.FromBytes([]byte("not a PDF file")), nil, nil))
	if CodeOf(err) != InvalidPDF {
		t.Errorf("expected InvalidPDF, got %v", err)
	}

	doc := document.FromBytes(makePDF(t, fixture{pages: 1}))
	rec := newRecorder()
	err = wait(t, p.Process(context.Background(), doc, &ProcessOptions{Force: true, Strict: true}, rec))
	if CodeOf(err) != InvalidProcessingOptions {
		t.Errorf("expected InvalidProcessingOptions, got %v", err)
	}
	if d := cmp.Diff([]Code{InvalidProcessingOptions}, rec.failed); d != "" {
		t.Errorf("failed events (-want +got):\n%s", d)
	}
	if !errors.Is(err, &Error{Code: InvalidProcessingOptions}) {
		t.Error("errors.Is does not match the code")
	}
}

func TestProcessCancel(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 3}))

	rec := newRecorder()
	rec.cancelAt = 0
	err := wait(t, p.Process(context.Background(), doc, nil, rec))
	if CodeOf(err) != Cancelled {
		t.Errorf("expected Cancelled, got %v", err)
	}
	if d := cmp.Diff([]int{0}, rec.pages); d != "" {
		t.Errorf("page events (-want +got):\n%s", d)
	}
	if doc.Information().IsProcessed() {
		t.Error("cancelled job changed the information")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = wait(t, p.Process(ctx, doc, nil, nil))
	if CodeOf(err) != Cancelled {
		t.Errorf("expected Cancelled, got %v", err)
	}
}

func TestPasswords(t *testing.T) {
	data := makePDF(t, fixture{
		pages:    1,
		user:     "user",
		owner:    "owner",
		protects: fpdf.CnProtectPrint | fpdf.CnProtectCopy | fpdf.CnProtectAnnotForms,
	})
	p := newProcessor(t)

	t.Run("declined", func(t *testing.T) {
		rec := newRecorder()
		err := wait(t, p.Process(context.Background(), document.FromBytes(data), nil, rec))
		if CodeOf(err) != InvalidDocumentPassword {
			t.Errorf("expected InvalidDocumentPassword, got %v", err)
		}
		if d := cmp.Diff([]PasswordType{PasswordUser}, rec.requests); d != "" {
			t.Errorf("password requests (-want +got):\n%s", d)
		}
	})

	t.Run("wrong", func(t *testing.T) {
		rec := newRecorder()
		rec.answers = map[PasswordType]string{PasswordUser: "wrong"}
		err := wait(t, p.Process(context.Background(), document.FromBytes(data), nil, rec))
		if CodeOf(err) != InvalidDocumentPassword {
			t.Errorf("expected InvalidDocumentPassword, got %v", err)
		}
		if len(rec.failedPw) != 3 {
			t.Errorf("expected 3 failed attempts, got %d", len(rec.failedPw))
		}
	})

	t.Run("user", func(t *testing.T) {
		doc := document.FromBytes(data)
		rec := newRecorder()
		rec.answers = map[PasswordType]string{PasswordUser: "user"}
		process(t, p, doc, rec)

		if d := cmp.Diff([]PasswordType{PasswordUser}, rec.validated); d != "" {
			t.Errorf("validated passwords (-want +got):\n%s", d)
		}
		perm := doc.Information().Permissions()
		if perm&information.PermTextSelection == 0 || perm&information.PermAnnotation == 0 {
			t.Errorf("wrong permissions %b", perm)
		}
		if !doc.Information().HasText() {
			t.Error("no text extracted")
		}

		// Writing requires the owner password.
		dest := filepath.Join(t.TempDir(), "out.pdf")
		rec = newRecorder()
		rec.answers = map[PasswordType]string{PasswordUser: "user"}
		err := wait(t, p.Write(context.Background(), doc, dest, nil, rec))
		if CodeOf(err) != Permissions {
			t.Errorf("expected Permissions, got %v", err)
		}
		if d := cmp.Diff([]PasswordType{PasswordOwner}, rec.requests); d != "" {
			t.Errorf("password requests (-want +got):\n%s", d)
		}

		rec = newRecorder()
		rec.answers = map[PasswordType]string{PasswordOwner: "owner"}
		if err := wait(t, p.Write(context.Background(), doc, dest, nil, rec)); err != nil {
			t.Fatal(err)
		}
		out, err := os.ReadFile(dest)
		if err != nil {
			t.Fatal(err)
		}
		if document.FromBytes(out).IsEncrypted() {
			t.Error("output file is encrypted")
		}
	})
}

func TestWriteFailureKeepsDest(t *testing.T) {
	data := makePDF(t, fixture{
		pages:    1,
		user:     "user",
		owner:    "owner",
		protects: fpdf.CnProtectPrint | fpdf.CnProtectCopy | fpdf.CnProtectAnnotForms,
	})
	p := newProcessor(t)
	doc := document.FromBytes(data)
	rec := newRecorder()
	rec.answers = map[PasswordType]string{PasswordUser: "user"}
	process(t, p, doc, rec)

	dest := filepath.Join(t.TempDir(), "out.pdf")
	old := []byte("previous output\n")
	if err := os.WriteFile(dest, old, 0o644); err != nil {
		t.Fatal(err)
	}

	err := wait(t, p.Write(context.Background(), doc, dest, nil, newRecorder()))
	if CodeOf(err) != Permissions {
		t.Errorf("expected Permissions, got %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(old, got); d != "" {
		t.Errorf("output file changed (-want +got):\n%s", d)
	}
}

func TestProcessSaveFailure(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(pdfPath, makePDF(t, fixture{pages: 2}), 0o644); err != nil {
		t.Fatal(err)
	}
	info := information.New(filepath.Join(dir, "missing", "doc.pdf"+information.Suffix))
	doc := document.Open(pdfPath, info)

	p := newProcessor(t)
	err := wait(t, p.Process(context.Background(), doc, nil, nil))
	if CodeOf(err) != Internal {
		t.Errorf("expected Internal, got %v", err)
	}
	if info.IsProcessed() || info.PageCount() != 0 {
		t.Error("store changed although saving failed")
	}
}

func TestOwnerPasswordForText(t *testing.T) {
	data := makePDF(t, fixture{
		pages:    1,
		user:     "user",
		owner:    "owner",
		protects: fpdf.CnProtectPrint,
	})
	p := newProcessor(t)

	rec := newRecorder()
	rec.answers = map[PasswordType]string{PasswordUser: "user"}
	err := wait(t, p.Process(context.Background(), document.FromBytes(data), nil, rec))
	if CodeOf(err) != Permissions {
		t.Errorf("expected Permissions, got %v", err)
	}

	doc := document.FromBytes(data)
	rec = newRecorder()
	rec.answers = map[PasswordType]string{PasswordUser: "user", PasswordOwner: "owner"}
	process(t, p, doc, rec)
	if d := cmp.Diff([]PasswordType{PasswordUser, PasswordOwner}, rec.validated); d != "" {
		t.Errorf("validated passwords (-want +got):\n%s", d)
	}
	if doc.Information().Permissions() != information.PermAll {
		t.Errorf("wrong permissions %b", doc.Information().Permissions())
	}
}

func TestCopyOriginal(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 2, outline: true, link: true}))
	process(t, p, doc, nil)

	info := doc.Information()
	note := &annotation.Note{
		Common: annotation.Common{
			Page:  1,
			Rect:  pagespace.Rect{Left: 0.1, Top: 0.2, Right: 0.15, Bottom: 0.25},
			Color: annotation.RGB(1, 0, 0),
			Flags: annotation.FlagPrint,
		},
		Markup: annotation.Markup{Author: "Jo", Contents: "hello"},
		Icon:   "Comment",
	}
	bookmark := &annotation.Bookmark{
		Common: annotation.Common{Page: 1, Rect: pagespace.Rect{Left: 0, Top: 0.5, Right: 0.1, Bottom: 0.6}},
		Name:   "here",
	}
	if !info.Add(note) || !info.Add(bookmark) {
		t.Fatal("Add failed")
	}

	dest := filepath.Join(t.TempDir(), "out.pdf")
	rec := newRecorder()
	err := wait(t, p.Write(context.Background(), doc, dest, &WriteOptions{Validate: true}, rec))
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.nonFatal) != 0 {
		t.Errorf("unexpected non-fatal errors %v", rec.nonFatal)
	}

	out := document.OpenPath(dest)
	process(t, p, out, nil)
	outInfo := out.Information()
	if outInfo.PageCount() != 2 {
		t.Fatalf("wrong page count %d", outInfo.PageCount())
	}
	if root := outInfo.Outline(); root == nil || len(root.Children) != 2 {
		t.Errorf("outline was not copied: %#v", root)
	}

	var got *annotation.Note
	var links int
	for _, a := range outInfo.AllAnnotations() {
		switch a := a.(type) {
		case *annotation.Note:
			got = a
		case *annotation.Link:
			links++
		}
	}
	if links != 1 {
		t.Errorf("expected one link, got %d", links)
	}
	if got == nil {
		t.Fatal("note is missing")
	}
	ignore := cmpopts.IgnoreFields(annotation.Common{}, "Modified")
	ignoreCreated := cmpopts.IgnoreFields(annotation.Markup{}, "Created")
	approx := cmpopts.EquateApprox(0, 1e-4)
	if d := cmp.Diff(note, got, ignore, ignoreCreated, approx); d != "" {
		t.Errorf("note changed (-want +got):\n%s", d)
	}

	bookmarks := outInfo.Bookmarks()
	if len(bookmarks) != 1 || bookmarks[0].Name != "here" || bookmarks[0].ID != bookmark.ID {
		t.Errorf("unexpected bookmarks %v", bookmarks)
	}
}

func TestPageSelection(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 3}))
	process(t, p, doc, nil)

	dir := t.TempDir()
	write := func(opts *WriteOptions) (int, error) {
		dest := filepath.Join(dir, "out.pdf")
		if err := wait(t, p.Write(context.Background(), doc, dest, opts, nil)); err != nil {
			return 0, err
		}
		out := document.FromBytes(mustRead(t, dest))
		return out.PageCount(), nil
	}

	_, err := write(&WriteOptions{Flags: AnnotatedPagesOnly})
	if CodeOf(err) != InvalidWriteOptions {
		t.Errorf("expected InvalidWriteOptions, got %v", err)
	}
	_, err = write(&WriteOptions{Flags: UsePageRange})
	if CodeOf(err) != InvalidWriteOptions {
		t.Errorf("expected InvalidWriteOptions, got %v", err)
	}
	_, err = write(&WriteOptions{Flags: 1 << 6})
	if CodeOf(err) != InvalidWriteOptions {
		t.Errorf("expected InvalidWriteOptions, got %v", err)
	}

	ink := &annotation.Ink{
		Common: annotation.Common{Page: 2, Rect: pagespace.Rect{Left: 0.1, Top: 0.1, Right: 0.3, Bottom: 0.3}},
		Markup: annotation.Markup{Author: "Jo"},
		Paths:  [][]vec.Vec2{{{X: 0.1, Y: 0.1}, {X: 0.3, Y: 0.3}}},
		Width:  2,
	}
	if !doc.Information().Add(ink) {
		t.Fatal("Add failed")
	}

	cases := []struct {
		opts *WriteOptions
		want int
	}{
		{&WriteOptions{}, 3},
		{&WriteOptions{Flags: AnnotatedPagesOnly}, 1},
		{&WriteOptions{Flags: UsePageRange, PageRange: PageRange{First: 1, Count: 5}}, 2},
		{&WriteOptions{Flags: UsePageRange | AnnotatedPagesOnly, PageRange: PageRange{First: 0, Count: 2}}, 0},
	}
	for i, c := range cases {
		got, err := write(c.opts)
		if c.want == 0 {
			if CodeOf(err) != InvalidWriteOptions {
				t.Errorf("%d: expected InvalidWriteOptions, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%d: %v", i, err)
		} else if got != c.want {
			t.Errorf("%d: expected %d pages, got %d", i, c.want, got)
		}
	}
}

func TestFlatten(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 1, link: true}))
	process(t, p, doc, nil)

	info := doc.Information()
	freeText := &annotation.FreeText{
		Common:   annotation.Common{Page: 0, Rect: pagespace.Rect{Left: 0.1, Top: 0.5, Right: 0.6, Bottom: 0.6}},
		Markup:   annotation.Markup{Author: "Jo", Contents: "flattened words"},
		FontSize: 14,
	}
	note := &annotation.Note{
		Common: annotation.Common{Page: 0, Rect: pagespace.Rect{Left: 0.8, Top: 0.1, Right: 0.85, Bottom: 0.15}},
		Markup: annotation.Markup{Author: "Jo", Contents: "see the summary"},
	}
	if !info.Add(freeText) || !info.Add(note) {
		t.Fatal("Add failed")
	}

	dest := filepath.Join(t.TempDir(), "flat.pdf")
	if err := wait(t, p.Write(context.Background(), doc, dest, &WriteOptions{Flags: Flatten, Validate: true}, nil)); err != nil {
		t.Fatal(err)
	}

	out := document.FromBytes(mustRead(t, dest))
	process(t, p, out, nil)
	outInfo := out.Information()
	if outInfo.HasUserAnnotations() {
		t.Errorf("flattened file has editable annotations: %v", outInfo.AllAnnotations())
	}
	if len(outInfo.AllAnnotations()) != 1 {
		t.Errorf("links were not kept: %v", outInfo.AllAnnotations())
	}
	if outInfo.PageCount() != 2 {
		t.Fatalf("expected a page listing the notes, got %d pages", outInfo.PageCount())
	}
	if text := outInfo.PageText(0).Text; !strings.Contains(text, "flattened words") {
		t.Errorf("free text not drawn on the page: %q", text)
	}
	text := outInfo.PageText(1).Text
	if !strings.Contains(text, "Notes on page 1") || !strings.Contains(text, "see the summary") {
		t.Errorf("unexpected note page text %q", text)
	}

	// Flatten together with StripUserAnnotations drops the annotations.
	if err := wait(t, p.Write(context.Background(), doc, dest, &WriteOptions{Flags: Flatten | StripUserAnnotations}, nil)); err != nil {
		t.Fatal(err)
	}
	out = document.FromBytes(mustRead(t, dest))
	process(t, p, out, nil)
	if n := out.Information().PageCount(); n != 1 {
		t.Errorf("expected 1 page, got %d", n)
	}
	if text := out.Information().PageText(0).Text; strings.Contains(text, "flattened") {
		t.Errorf("stripped annotation was drawn: %q", text)
	}
}

func TestWriteNotProcessed(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 1}))
	err := wait(t, p.Write(context.Background(), doc, filepath.Join(t.TempDir(), "x.pdf"), nil, nil))
	if CodeOf(err) != InvalidWriteOptions {
		t.Errorf("expected InvalidWriteOptions, got %v", err)
	}
}

func TestSyncBuffer(t *testing.T) {
	p := newProcessor(t)
	doc := document.FromBytes(makePDF(t, fixture{pages: 2, outline: true, link: true}))
	process(t, p, doc, nil)

	// without changes, sync does nothing
	rec := newRecorder()
	if err := wait(t, p.Sync(context.Background(), doc, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.synced != nil {
		t.Error("unchanged document was written")
	}

	info := doc.Information()
	markup := &annotation.TextMarkup{
		Common: annotation.Common{Page: 0, Rect: pagespace.Rect{Left: 0.05, Top: 0.08, Right: 0.4, Bottom: 0.11}},
		Markup: annotation.Markup{Author: "Jo", Contents: "important"},
		Type:   annotation.Underline,
		Rects:  []pagespace.Rect{{Left: 0.05, Top: 0.08, Right: 0.4, Bottom: 0.11}},
		Text:   "alpha beta",
	}
	bookmark := &annotation.Bookmark{
		Common: annotation.Common{Page: 1, Rect: pagespace.Rect{Left: 0, Top: 0.3, Right: 0.1, Bottom: 0.4}},
		Name:   "later",
	}
	if !info.Add(markup) || !info.Add(bookmark) {
		t.Fatal("Add failed")
	}
	orig := doc.Data()

	rec = newRecorder()
	if err := wait(t, p.Sync(context.Background(), doc, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.synced == nil {
		t.Fatal("Synced was not called")
	}
	synced := rec.synced
	if !strings.HasPrefix(string(synced), string(orig)) {
		t.Error("original data was not kept")
	}
	if info.IsModified() {
		t.Error("document still modified after sync")
	}
	if info.Source() != information.FingerprintOf(doc.Data()) {
		t.Error("fingerprint not updated")
	}

	// processing the new data must not change anything
	rec = newRecorder()
	process(t, p, doc, rec)
	if len(rec.pages) != 0 {
		t.Error("synced document was processed again")
	}

	fresh := document.FromBytes(synced)
	process(t, p, fresh, nil)
	freshInfo := fresh.Information()
	got := freshInfo.AnnotationsOnPage(0)
	var found bool
	for _, a := range got {
		if m, ok := a.(*annotation.TextMarkup); ok {
			found = m.ID == markup.ID && m.Text == "alpha beta" && m.Type == annotation.Underline
		}
	}
	if !found {
		t.Errorf("text markup not found in %v", got)
	}
	if b := freshInfo.Bookmarks(); len(b) != 1 || b[0].Name != "later" {
		t.Errorf("unexpected bookmarks %v", b)
	}
	if root := freshInfo.Outline(); root == nil || len(root.Children) != 2 {
		t.Errorf("outline damaged: %#v", root)
	}

	// removing the annotation again
	if !info.Remove(markup) {
		t.Fatal("Remove failed")
	}
	if err := wait(t, p.Sync(context.Background(), doc, nil)); err != nil {
		t.Fatal(err)
	}
	fresh = document.FromBytes(doc.Data())
	process(t, p, fresh, nil)
	for _, a := range fresh.Information().AllAnnotations() {
		if a.Kind() == annotation.KindTextMarkup {
			t.Error("removed annotation still present")
		}
	}
}

func TestSyncFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, makePDF(t, fixture{pages: 1}), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newProcessor(t)
	doc := document.OpenPath(path)
	process(t, p, doc, nil)
	if information.VersionOf(information.PathFor(path)) != information.CurrentVersion {
		t.Fatal("information file not written")
	}

	line := &annotation.StraightLine{
		Common: annotation.Common{Page: 0, Rect: pagespace.Rect{Left: 0.1, Top: 0.1, Right: 0.5, Bottom: 0.5}},
		Markup: annotation.Markup{Author: "Jo"},
		Start:  vec.Vec2{X: 0.1, Y: 0.1},
		End:    vec.Vec2{X: 0.5, Y: 0.5},
		Width:  1,
	}
	if !doc.Information().Add(line) {
		t.Fatal("Add failed")
	}
	if err := doc.Information().Save(); err != nil {
		t.Fatal(err)
	}

	if err := wait(t, p.Sync(context.Background(), doc, nil)); err != nil {
		t.Fatal(err)
	}

	// A new Document sees the synced state.
	again := document.OpenPath(path)
	info := again.Information()
	if !info.IsProcessed() || info.IsModified() {
		t.Errorf("wrong state processed=%t modified=%t", info.IsProcessed(), info.IsModified())
	}
	rec := newRecorder()
	process(t, p, again, rec)
	if len(rec.pages) != 0 {
		t.Error("file was processed again after sync")
	}
	if len(info.AnnotationsOnPage(0)) != 1 {
		t.Errorf("unexpected annotations %v", info.AnnotationsOnPage(0))
	}
}

func TestSyncEncrypted(t *testing.T) {
	data := makePDF(t, fixture{
		pages:    1,
		user:     "user",
		owner:    "owner",
		protects: fpdf.CnProtectPrint | fpdf.CnProtectCopy | fpdf.CnProtectAnnotForms,
	})
	p := newProcessor(t)
	doc := document.FromBytes(data)
	rec := newRecorder()
	rec.answers = map[PasswordType]string{PasswordUser: "user"}
	process(t, p, doc, rec)

	note := &annotation.Note{
		Common: annotation.Common{Page: 0, Rect: pagespace.Rect{Left: 0.5, Top: 0.5, Right: 0.55, Bottom: 0.55}},
		Markup: annotation.Markup{Author: "Jo", Contents: "secret note"},
	}
	if !doc.Information().Add(note) {
		t.Fatal("Add failed")
	}
	if err := wait(t, p.Sync(context.Background(), doc, rec)); err != nil {
		t.Fatal(err)
	}

	fresh := document.FromBytes(rec.synced)
	if !fresh.IsEncrypted() || fresh.IsDecrypted() {
		t.Fatal("synced file is not encrypted")
	}
	if !fresh.Decrypt("user") {
		t.Fatal("user password not accepted")
	}
	rec = newRecorder()
	process(t, p, fresh, rec)
	got := fresh.Information().AllAnnotations()
	if len(got) != 1 || annotation.GetMarkup(got[0]).Contents != "secret note" {
		t.Errorf("unexpected annotations %v", got)
	}
}

func TestSyncPermissions(t *testing.T) {
	data := makePDF(t, fixture{
		pages:    1,
		user:     "user",
		owner:    "owner",
		protects: fpdf.CnProtectPrint | fpdf.CnProtectCopy,
	})
	p := newProcessor(t)
	doc := document.FromBytes(data)
	rec := newRecorder()
	rec.answers = map[PasswordType]string{PasswordUser: "user"}
	process(t, p, doc, rec)

	link := &annotation.Link{
		Common: annotation.Common{Page: 0, Rect: pagespace.Rect{Left: 0.1, Top: 0.1, Right: 0.2, Bottom: 0.2}},
		Dest:   &destination.Destination{Fit: destination.FitPage},
	}
	if !doc.Information().Add(link) {
		t.Fatal("Add failed")
	}
	err := wait(t, p.Sync(context.Background(), doc, rec))
	if CodeOf(err) != Permissions {
		t.Errorf("expected Permissions, got %v", err)
	}
}

func TestConfig(t *testing.T) {
	if _, err := New(&Config{Workers: -1}); err == nil {
		t.Error("negative worker count accepted")
	}
	p, err := New(&Config{Workers: 4, MaxPasswordAttempts: 1, Producer: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if cap(p.slot) != 4 {
		t.Errorf("wrong number of worker slots %d", cap(p.slot))
	}

	// jobs on one processor run concurrently on different documents
	var jobs []*Job
	for range 4 {
		doc := document.FromBytes(makePDF(t, fixture{pages: 2}))
		jobs = append(jobs, p.Process(context.Background(), doc, nil, nil))
	}
	for _, job := range jobs {
		if err := wait(t, job); err != nil {
			t.Error(err)
		}
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Code: ProcessingPDFText, Page: 2, Err: errors.New("bad font")}
	if got, want := err.Error(), "error processing PDF text (page 3): bad font"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if SomeAnnotationsFailed.IsFatal() || !Cancelled.IsFatal() {
		t.Error("wrong IsFatal")
	}
	if CodeOf(nil) != 0 || CodeOf(errors.New("x")) != 0 {
		t.Error("CodeOf of non-processor errors")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
