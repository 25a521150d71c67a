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
	"context"
	"errors"
	"fmt"
	"time"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/document"
	"seehuhn.de/go/annotate/information"
	"seehuhn.de/go/annotate/outline"
	"seehuhn.de/go/annotate/pdf"
	"seehuhn.de/go/annotate/pdf/pagetree"
)

var errSourceChanged = errors.New("PDF file has changed since it was processed")

// Sync writes the annotation changes into the PDF file of doc.  The
// changes are appended to the file as an incremental update, so that the
// original data is kept.  Encrypted files stay encrypted.
//
// File-backed documents are replaced atomically.  For in-memory documents
// the new file contents are installed in the Document and passed to
// Observer.Synced.  On failure, the PDF file is not changed.
func (p *Processor) Sync(ctx context.Context, doc *document.Document, obs Observer) *Job {
	return p.start(ctx, KindSync, doc, obs, (*task).sync)
}

func (t *task) sync() *Error {
	info := t.doc.Information()
	if !info.IsProcessed() {
		return newError(InvalidProcessingOptions, errNotProcessed)
	}
	if !info.IsModified() {
		t.log.Info().Msg("no changes to write")
		return nil
	}
	if info.Permissions()&information.PermAnnotation == 0 {
		return newError(Permissions, errors.New("document does not permit annotations"))
	}

	fp, err := t.fingerprint()
	if err != nil {
		return newError(InvalidPDF, err)
	}
	if fp != info.Source() {
		return newError(InvalidPDF, errSourceChanged)
	}
	r, err := t.doc.Reader()
	if err != nil {
		return newError(InvalidPDF, err)
	}
	if e := t.unlock(r, PasswordUser); e != nil {
		return e
	}
	pages, err := t.doc.Pages()
	if err != nil {
		return newError(InvalidPDF, err)
	}
	numPages := pages.NumPages()
	if numPages != info.PageCount() {
		return newError(InvalidPDF, errSourceChanged)
	}
	catalogRef, ok := r.Trailer()["Root"].(pdf.Reference)
	if !ok {
		return newError(InvalidPDF, errors.New("missing document catalog"))
	}
	catalog, err := r.Catalog()
	if err != nil {
		return newError(InvalidPDF, err)
	}

	snap := info.Snapshot()
	byPage, bookmarks := splitAnnotations(snap.Annotations, numPages)

	buf := &bytes.Buffer{}
	w, err := pdf.NewUpdateWriter(buf, r)
	if err != nil {
		return newError(WritingAnnotations, err)
	}

	for i := range numPages {
		if e := t.job.cancelled(); e != nil {
			return e
		}

		page := pages.Page(i)
		old, _ := pdf.GetArray(r, page.Dict["Annots"])
		kept, replaced := keptAnnotations(r, old, i, pages)
		if replaced == 0 && len(byPage[i]) == 0 {
			if t.obs.PageProcessed(i, numPages) {
				t.job.Cancel()
				return newError(Cancelled, nil)
			}
			continue
		}

		annots := pdf.Array(kept)
		for _, a := range byPage[i] {
			dict, err := annotation.Encode(w, a, pages)
			if err != nil {
				return &Error{Code: WritingAnnotations, Page: i, Err: err}
			}
			ref := w.Alloc()
			if err := w.Put(ref, dict); err != nil {
				return &Error{Code: WritingAnnotations, Page: i, Err: err}
			}
			annots = append(annots, ref)
		}

		pageDict := page.Dict.Clone()
		if len(annots) > 0 {
			pageDict["Annots"] = annots
		} else {
			delete(pageDict, "Annots")
		}
		if err := w.Put(page.Ref, pageDict); err != nil {
			return &Error{Code: UpdatingWrittenAnnotations, Page: i, Err: err}
		}
		t.log.Debug().Int("page", i).Int("kept", len(kept)).Int("replaced", replaced).
			Int("written", len(byPage[i])).Msg("page annotations updated")

		t.obs.AnnotationsProcessed(i, len(byPage[i]))
		if t.obs.PageProcessed(i, numPages) {
			t.job.Cancel()
			return newError(Cancelled, nil)
		}
	}

	ol, err := outline.Read(r, catalog, pages)
	if err != nil {
		// A damaged outline is left alone, together with the bookmarks
		// stored in it.
		t.nonFatal(SomeBookmarksFailed, -1, err)
	} else if len(bookmarks) > 0 || len(ol.Bookmarks) > 0 || ol.BrokenBookmarks > 0 {
		ol.Bookmarks = bookmarks
		ref, stats, err := ol.Write(w, pages)
		if err != nil {
			return newError(UpdatingWrittenAnnotations, err)
		}
		t.reportSkipped(stats)

		newCatalog := catalog.Clone()
		if ref != 0 {
			newCatalog["Outlines"] = ref
		} else {
			delete(newCatalog, "Outlines")
		}
		if err := w.Put(catalogRef, newCatalog); err != nil {
			return newError(UpdatingWrittenAnnotations, err)
		}
	}

	if err := t.updateInfo(r, w); err != nil {
		return newError(UpdatingWrittenAnnotations, err)
	}
	if err := w.Close(); err != nil {
		return newError(WritingAnnotations, err)
	}

	out := buf.Bytes()
	if path := t.doc.Path(); path != "" {
		if err := information.WriteFileAtomic(path, out); err != nil {
			return newError(WritingAnnotations, err)
		}
		t.doc.Invalidate()
	} else {
		if err := t.doc.SetData(out); err != nil {
			return newError(Internal, err)
		}
		t.obs.Synced(out)
	}
	t.log.Info().Int("size", len(out)).Msg("annotations written to PDF file")

	info.MarkSynced(information.FingerprintOf(out))
	if err := info.Save(); err != nil {
		return newError(Internal, err)
	}
	return nil
}

// updateInfo sets the modification date and the producer in the document
// information dictionary.
func (t *task) updateInfo(r *pdf.Reader, w *pdf.Writer) error {
	infoObj := r.Trailer()["Info"]
	dict, err := pdf.GetDict(r, infoObj)
	if err != nil {
		t.log.Debug().Err(err).Msg("document information dictionary replaced")
	}
	dict = dict.Clone()
	if dict == nil {
		dict = pdf.Dict{}
	}
	dict["ModDate"] = pdf.Date(time.Now())
	dict["Producer"] = pdf.TextString(t.p.cfg.producer())

	ref, isRef := infoObj.(pdf.Reference)
	if !isRef {
		ref = w.Alloc()
		w.Trailer["Info"] = ref
	}
	return w.Put(ref, dict)
}

func (t *task) reportSkipped(stats outline.WriteStats) {
	if stats.SkippedElements > 0 {
		t.nonFatal(SomeOutlineElementsFailed, -1,
			fmt.Errorf("%d outline elements have no target", stats.SkippedElements))
	}
	if stats.SkippedBookmarks > 0 {
		t.nonFatal(SomeBookmarksFailed, -1,
			fmt.Errorf("%d bookmarks could not be written", stats.SkippedBookmarks))
	}
}

// splitAnnotations sorts annotations by page and separates the bookmarks.
func splitAnnotations(all []annotation.Annotation, numPages int) ([][]annotation.Annotation, []*annotation.Bookmark) {
	byPage := make([][]annotation.Annotation, numPages)
	var bookmarks []*annotation.Bookmark
	for _, a := range all {
		if b, ok := a.(*annotation.Bookmark); ok {
			bookmarks = append(bookmarks, b)
			continue
		}
		page := a.Base().Page
		if page >= 0 && page < numPages {
			byPage[page] = append(byPage[page], a)
		}
	}
	return byPage, bookmarks
}

// keptAnnotations returns the entries of a page's /Annots array which are
// not represented in the information store.  These are the annotations
// which cannot be decoded, together with their popups.  Replaced is the
// number of entries which are represented in the store.
func keptAnnotations(r pdf.Getter, annots pdf.Array, pageNo int, pages *pagetree.Index) (kept []pdf.Object, replaced int) {
	modeled := make(map[pdf.Reference]bool)
	var candidates []pdf.Object
	for _, obj := range annots {
		if _, err := annotation.Decode(r, obj, pageNo, pages); err == nil {
			if ref, ok := obj.(pdf.Reference); ok {
				modeled[ref] = true
			}
			replaced++
			continue
		}
		candidates = append(candidates, obj)
	}

	for _, obj := range candidates {
		dict, _ := pdf.GetDict(r, obj)
		if subtype, _ := pdf.GetName(r, dict["Subtype"]); subtype == "Popup" {
			if parent, ok := dict["Parent"].(pdf.Reference); ok && modeled[parent] {
				continue
			}
		}
		kept = append(kept, obj)
	}
	return kept, replaced
}
