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
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/document"
	"seehuhn.de/go/annotate/outline"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
	"seehuhn.de/go/annotate/pdf/pagetree"
)

var errNoPages = errors.New("no pages selected")

// Write generates a new PDF file at dest, which contains the pages of doc
// together with the annotations from the information store.  An existing
// file at dest is removed first.  The output is not encrypted; for
// encrypted documents the owner password is required.
//
// If the job fails before the output is started, an existing file at
// dest is left alone.  Otherwise a partial output file is removed.
func (p *Processor) Write(ctx context.Context, doc *document.Document, dest string, opts *WriteOptions, obs Observer) *Job {
	var o WriteOptions
	if opts != nil {
		o = *opts
	}
	return p.start(ctx, KindWrite, doc, obs, func(t *task) *Error {
		return t.write(dest, o)
	})
}

func (t *task) write(dest string, opts WriteOptions) (res *Error) {
	if err := checkStruct(&opts); err != nil {
		return newError(InvalidWriteOptions, err)
	}
	if dest == "" {
		return newError(InvalidWriteOptions, errors.New("missing output file name"))
	}
	info := t.doc.Information()
	if !info.IsProcessed() {
		return newError(InvalidWriteOptions, errNotProcessed)
	}

	r, err := t.doc.Reader()
	if err != nil {
		return newError(InvalidPDF, err)
	}
	if e := t.unlock(r, PasswordOwner); e != nil {
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

	strip := opts.Flags&StripUserAnnotations != 0
	flatten := opts.Flags&Flatten != 0 && !strip

	snap := info.Snapshot()
	byPage, bookmarks := splitAnnotations(snap.Annotations, numPages)
	var selected []int
	for i := range numPages {
		if opts.Flags&UsePageRange != 0 && !opts.PageRange.Contains(i) {
			continue
		}
		if opts.Flags&AnnotatedPagesOnly != 0 && !hasUserAnnotations(byPage[i]) {
			continue
		}
		selected = append(selected, i)
	}
	if len(selected) == 0 {
		return newError(InvalidWriteOptions, errNoPages)
	}

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return newError(WritingAnnotations, err)
	}
	fd, err := os.Create(dest)
	if err != nil {
		return newError(WritingAnnotations, err)
	}
	defer func() {
		if res != nil {
			os.Remove(dest)
		}
	}()
	defer fd.Close()
	bw := bufio.NewWriter(fd)

	w, err := pdf.NewWriter(bw, max(r.Version(), pdf.V1_7))
	if err != nil {
		return newError(WritingAnnotations, err)
	}

	c := newCopier(w, r)
	out := &outPages{
		src:  pages,
		refs: make(map[int]pdf.Reference, len(selected)),
		nums: make(map[pdf.Reference]int, len(selected)),
	}
	for _, i := range selected {
		ref := w.Alloc()
		c.Redirect(pages.Page(i).Ref, ref)
		out.refs[i] = ref
		out.nums[ref] = i
	}
	for i := range numPages {
		if _, ok := out.refs[i]; !ok {
			c.Omit(pages.Page(i).Ref)
		}
	}

	t.log.Info().Int("pages", len(selected)).Bool("flatten", flatten).Bool("strip", strip).
		Str("dest", dest).Msg("writing")

	pw := &pageWriter{
		t:       t,
		r:       r,
		w:       w,
		c:       c,
		out:     out,
		parent:  w.Alloc(),
		flatten: flatten,
		strip:   strip,
	}
	var kids pdf.Array
	for k, i := range selected {
		if e := t.job.cancelled(); e != nil {
			return e
		}
		refs, e := pw.writePage(pages.Page(i), i, out.refs[i], byPage[i])
		if e != nil {
			return e
		}
		for _, ref := range refs {
			kids = append(kids, ref)
		}

		t.obs.AnnotationsProcessed(i, len(byPage[i]))
		if t.obs.PageProcessed(k, len(selected)) {
			t.job.Cancel()
			return newError(Cancelled, nil)
		}
	}
	if pw.failedLinks > 0 {
		t.nonFatal(SomeAnnotationsFailed, -1,
			fmt.Errorf("%d links point to pages which are not included", pw.failedLinks))
	}

	err = w.Put(pw.parent, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  kids,
		"Count": pdf.Integer(len(kids)),
	})
	if err != nil {
		return newError(WritingAnnotations, err)
	}

	catalog, e := t.writeCatalog(r, w, c, pw.parent, snap.Outline, bookmarks, out, strip)
	if e != nil {
		return e
	}
	w.Trailer["Root"] = catalog

	infoRef := w.Alloc()
	docInfo, err := document.ReadInfo(r, r.Trailer()["Info"])
	if err != nil {
		docInfo = &document.Info{}
	}
	docInfo.Producer = t.p.cfg.producer()
	docInfo.ModDate = time.Now()
	if err := w.Put(infoRef, docInfo.Dict()); err != nil {
		return newError(WritingAnnotations, err)
	}
	w.Trailer["Info"] = infoRef

	if err := w.Close(); err != nil {
		return newError(WritingAnnotations, err)
	}
	if err := bw.Flush(); err != nil {
		return newError(WritingAnnotations, err)
	}
	if err := fd.Close(); err != nil {
		return newError(WritingAnnotations, err)
	}

	if opts.Validate {
		if err := validateFile(dest); err != nil {
			return newError(WritingAnnotations, fmt.Errorf("validation failed: %w", err))
		}
		t.log.Info().Msg("output file validated")
	}
	return nil
}

func (t *task) writeCatalog(r *pdf.Reader, w *pdf.Writer, c *copier, pagesRef pdf.Reference,
	root *outline.Element, bookmarks []*annotation.Bookmark, out *outPages, strip bool) (pdf.Reference, *Error) {
	catalog := pdf.Dict{
		"Type":  pdf.Name("Catalog"),
		"Pages": pagesRef,
	}
	if orig, err := r.Catalog(); err == nil {
		for _, key := range []pdf.Name{"PageLayout", "PageMode", "Lang", "ViewerPreferences"} {
			if orig[key] == nil {
				continue
			}
			val, err := c.Copy(orig[key])
			if err != nil {
				return 0, newError(WritingAnnotations, err)
			}
			catalog[key] = val
		}
	}

	ol := &outline.Outline{Root: root}
	if !strip {
		ol.Bookmarks = bookmarks
	}
	olRef, stats, err := ol.Write(w, out)
	if err != nil {
		return 0, newError(WritingAnnotations, err)
	}
	t.reportSkipped(stats)
	if olRef != 0 {
		catalog["Outlines"] = olRef
	}

	ref := w.Alloc()
	if err := w.Put(ref, catalog); err != nil {
		return 0, newError(WritingAnnotations, err)
	}
	return ref, nil
}

// pageWriter writes the pages of the output file.
type pageWriter struct {
	t   *task
	r   pdf.Getter
	w   *pdf.Writer
	c   *copier
	out *outPages

	parent  pdf.Reference
	flatten bool
	strip   bool

	font        pdf.Reference
	failedLinks int
}

// writePage writes one page, and for flattened pages the pages listing
// the notes.  It returns the references of all written pages.
func (pw *pageWriter) writePage(page *pagetree.Page, pageNo int, ref pdf.Reference, annots []annotation.Annotation) ([]pdf.Reference, *Error) {
	fail := func(err error) *Error {
		return &Error{Code: WritingAnnotations, Page: pageNo, Err: err}
	}

	dict := pdf.Dict{
		"Type":     pdf.Name("Page"),
		"Parent":   pw.parent,
		"MediaBox": pdf.RectArray(page.MediaBox),
	}
	if page.CropBox != page.MediaBox {
		dict["CropBox"] = pdf.RectArray(page.CropBox)
	}
	if page.Rotate != 0 {
		dict["Rotate"] = pdf.Integer(page.Rotate)
	}
	for key, val := range page.Dict {
		switch key {
		case "Type", "Parent", "MediaBox", "CropBox", "Rotate", "Resources",
			"Contents", "Annots", "B", "StructParents":
			continue
		}
		copied, err := pw.c.Copy(val)
		if err != nil {
			return nil, fail(err)
		}
		if copied != nil {
			dict[key] = copied
		}
	}

	var drawn []annotation.Annotation
	var written pdf.Array
	old, _ := pdf.GetArray(pw.r, page.Dict["Annots"])
	kept, _ := keptAnnotations(pw.r, old, pageNo, pw.out.src)
	for _, obj := range kept {
		if pw.strip && !isStructural(pw.r, obj) {
			continue
		}
		copied, err := pw.c.Copy(obj)
		if err != nil {
			return nil, fail(err)
		}
		if copied != nil {
			written = append(written, copied)
		}
	}
	for _, a := range annots {
		isLink := a.Kind() == annotation.KindLink
		switch {
		case pw.strip && !isLink:
			continue
		case pw.flatten && !isLink:
			drawn = append(drawn, a)
			continue
		}
		annotDict, err := annotation.Encode(pw.w, a, pw.out)
		if err != nil {
			if isLink {
				pw.failedLinks++
				continue
			}
			return nil, fail(err)
		}
		annotRef := pw.w.Alloc()
		if err := pw.w.Put(annotRef, annotDict); err != nil {
			return nil, fail(err)
		}
		written = append(written, annotRef)
	}
	if len(written) > 0 {
		dict["Annots"] = written
	}

	contents, err := pw.c.Copy(page.Dict["Contents"])
	if err != nil {
		return nil, fail(err)
	}
	resources, err := pw.resources(page.Resources, len(drawn) > 0)
	if err != nil {
		return nil, fail(err)
	}
	if len(drawn) > 0 {
		contents, err = pw.flattenPage(contents, resources, drawn, pw.out.Geometry(pageNo))
		if err != nil {
			return nil, fail(err)
		}
	}
	if contents != nil {
		dict["Contents"] = contents
	}
	if len(resources) > 0 {
		dict["Resources"] = resources
	}
	if err := pw.w.Put(ref, dict); err != nil {
		return nil, fail(err)
	}

	res := []pdf.Reference{ref}
	if len(drawn) > 0 {
		notes, err := pw.notePages(pageNo, drawn)
		if err != nil {
			return nil, fail(err)
		}
		res = append(res, notes...)
	}
	return res, nil
}

// resources copies the resource dictionary of a page.  If forFlatten is
// set, the XObject sub-dictionary is copied as a direct object, so that
// appearance streams can be added.
func (pw *pageWriter) resources(orig pdf.Dict, forFlatten bool) (pdf.Dict, error) {
	res := pdf.Dict{}
	for key, val := range orig {
		if forFlatten && key == "XObject" {
			xobj, err := pdf.GetDict(pw.r, val)
			if err != nil {
				return nil, err
			}
			copied, err := pw.c.CopyDict(xobj)
			if err != nil {
				return nil, err
			}
			res[key] = copied
			continue
		}
		copied, err := pw.c.Copy(val)
		if err != nil {
			return nil, err
		}
		if copied != nil {
			res[key] = copied
		}
	}
	return res, nil
}

// isStructural reports whether an annotation which is not represented in
// the information store is kept by StripUserAnnotations.
func isStructural(r pdf.Getter, obj pdf.Object) bool {
	dict, _ := pdf.GetDict(r, obj)
	subtype, _ := pdf.GetName(r, dict["Subtype"])
	return subtype == "Link" || subtype == "Widget"
}

func hasUserAnnotations(annots []annotation.Annotation) bool {
	for _, a := range annots {
		if a.Kind() != annotation.KindLink {
			return true
		}
	}
	return false
}

// outPages maps the pages of the source file to the pages of the output
// file.  Page numbers always refer to the source file.
type outPages struct {
	src  *pagetree.Index
	refs map[int]pdf.Reference
	nums map[pdf.Reference]int
}

func (o *outPages) PageIndex(ref pdf.Reference) (int, bool) {
	n, ok := o.nums[ref]
	return n, ok
}

func (o *outPages) PageRef(pageNo int) (pdf.Reference, bool) {
	ref, ok := o.refs[pageNo]
	return ref, ok
}

func (o *outPages) Geometry(pageNo int) pagespace.Geometry {
	return o.src.Geometry(pageNo)
}

func (o *outPages) NumPages() int {
	return o.src.NumPages()
}

var disableConfigDir sync.Once

// validateFile checks a PDF file with pdfcpu.
func validateFile(path string) error {
	disableConfigDir.Do(api.DisableConfigDir)

	fd, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fd.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.Validate(fd, conf)
}
