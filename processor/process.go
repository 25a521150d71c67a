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
	"fmt"
	"os"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/document"
	"seehuhn.de/go/annotate/extract"
	"seehuhn.de/go/annotate/information"
	"seehuhn.de/go/annotate/outline"
	"seehuhn.de/go/annotate/pdf"
	"seehuhn.de/go/annotate/pdf/pagetree"
)

var errNotProcessed = errors.New("document has not been processed")

// Process reads the text, outline and annotations of a PDF file into the
// information store of doc.  The new information replaces the old one
// only when the whole file has been read.  For file-backed documents,
// the information file is saved.
//
// If the information store was built from the same file and opts.Force
// is not set, nothing is done.  With opts.Strict this case is reported
// as an AlreadyProcessed error.
//
// Annotation changes which have not yet been written to the PDF file are
// kept.
func (p *Processor) Process(ctx context.Context, doc *document.Document, opts *ProcessOptions, obs Observer) *Job {
	var o ProcessOptions
	if opts != nil {
		o = *opts
	}
	return p.start(ctx, KindProcess, doc, obs, func(t *task) *Error {
		return t.process(o)
	})
}

func (t *task) process(opts ProcessOptions) *Error {
	if err := checkStruct(&opts); err != nil {
		return newError(InvalidProcessingOptions, err)
	}

	fp, err := t.fingerprint()
	if err != nil {
		return newError(InvalidPDF, err)
	}
	info := t.doc.Information()
	if info.IsProcessed() && info.Source() == fp && !opts.Force {
		if opts.Strict {
			return newError(AlreadyProcessed, nil)
		}
		t.log.Info().Msg("information is up to date")
		return nil
	}

	r, err := t.doc.Reader()
	if err != nil {
		return newError(InvalidPDF, err)
	}
	if e := t.unlock(r, PasswordUser); e != nil {
		return e
	}
	if r.Permissions()&pdf.PermCopy == 0 {
		// text extraction needs the owner password
		if e := t.unlock(r, PasswordOwner); e != nil {
			return e
		}
	}

	pages, err := t.doc.Pages()
	if err != nil {
		return newError(InvalidPDF, err)
	}
	catalog, err := r.Catalog()
	if err != nil {
		return newError(InvalidPDF, err)
	}

	numPages := pages.NumPages()
	t.log.Info().Int("pages", numPages).Bool("encrypted", r.IsEncrypted()).Msg("processing")
	data := &information.Data{
		Permissions: t.doc.Permissions(),
		Processed:   true,
		Source:      fp,
		Pages:       make([]information.Page, numPages),
	}

	ex := extract.NewExtractor(r)
	failed := 0
	for i := range numPages {
		if e := t.job.cancelled(); e != nil {
			return e
		}

		page := pages.Page(i)
		text, err := ex.Page(page)
		if err != nil {
			return &Error{Code: ProcessingPDFText, Page: i, Err: err}
		}
		data.Pages[i] = information.Page{
			Geometry: pages.Geometry(i),
			Text:     text,
		}

		annots, n := t.readAnnotations(r, page, i, pages)
		failed += n
		data.Annotations = append(data.Annotations, annots...)
		t.obs.AnnotationsProcessed(i, len(annots))

		if t.obs.PageProcessed(i, numPages) {
			t.job.Cancel()
			return newError(Cancelled, nil)
		}
	}
	if failed > 0 {
		t.nonFatal(SomeAnnotationsFailed, -1, fmt.Errorf("%d annotations could not be read", failed))
	}

	ol, err := outline.Read(r, catalog, pages)
	if err != nil {
		t.nonFatal(SomeOutlineElementsFailed, -1, err)
	} else {
		data.Outline = ol.Root
		if ol.BrokenElements > 0 {
			t.nonFatal(SomeOutlineElementsFailed, -1,
				fmt.Errorf("%d outline elements could not be read", ol.BrokenElements))
		}
		if ol.BrokenBookmarks > 0 {
			t.nonFatal(SomeBookmarksFailed, -1,
				fmt.Errorf("%d bookmarks could not be read", ol.BrokenBookmarks))
		}
		for _, b := range ol.Bookmarks {
			data.Annotations = append(data.Annotations, b)
		}
	}

	if old := info.Snapshot(); old.Processed && old.Modified {
		t.log.Info().Int("annotations", len(old.Annotations)).Msg("keeping unsaved annotations")
		data.Annotations = data.Annotations[:0]
		for _, a := range old.Annotations {
			if a.Base().Page < numPages {
				data.Annotations = append(data.Annotations, a)
			}
		}
		data.Modified = true
	}

	if err := info.Commit(data); err != nil {
		return newError(Internal, err)
	}
	t.log.Info().Int("annotations", len(data.Annotations)).Msg("information store updated")
	return nil
}

// readAnnotations decodes the annotations of one page.  It returns the
// annotations and the number of annotations which could not be decoded.
// Annotation types outside the model are skipped silently.
func (t *task) readAnnotations(r pdf.Getter, page *pagetree.Page, pageNo int, pages *pagetree.Index) ([]annotation.Annotation, int) {
	annots, err := pdf.GetArray(r, page.Dict["Annots"])
	if err != nil {
		t.log.Debug().Err(err).Int("page", pageNo).Msg("invalid /Annots")
		return nil, 1
	}

	var res []annotation.Annotation
	failed := 0
	for _, obj := range annots {
		a, err := annotation.Decode(r, obj, pageNo, pages)
		if errors.Is(err, annotation.ErrUnsupported) {
			continue
		} else if err != nil {
			t.log.Debug().Err(err).Int("page", pageNo).Msg("annotation skipped")
			failed++
			continue
		}
		res = append(res, a)
	}
	return res, failed
}

// fingerprint identifies the current contents of the PDF file.
func (t *task) fingerprint() (information.Fingerprint, error) {
	if path := t.doc.Path(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return information.Fingerprint{}, err
		}
		return information.FingerprintOf(data), nil
	}
	return information.FingerprintOf(t.doc.Data()), nil
}
