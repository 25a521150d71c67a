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

// Package document represents PDF documents which are processed and
// annotated.
//
// A Document is backed either by a file or by an in-memory buffer.  Every
// Document has an information store: for file-backed documents this is
// kept in the file next to the PDF file (see information.PathFor), for
// buffer-backed documents it lives in memory.
package document

import (
	"bytes"
	"errors"
	"sync"

	"github.com/phuslu/log"
	"seehuhn.de/go/geom/rect"

	"seehuhn.de/go/annotate/information"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
	"seehuhn.de/go/annotate/pdf/pagetree"
)

// Document is a PDF document together with its information store.
// All methods are safe for concurrent use.
type Document struct {
	path string
	info *information.Information

	mu       sync.Mutex
	data     []byte
	logger   *log.Logger
	cache    int64
	r        *pdf.Reader
	rErr     error
	pages    *pagetree.Index
	pagesErr error

	// password is the most recent password which was accepted.  It is
	// used again when the reader is re-opened.
	password string
}

// Open returns a Document for the PDF file at path, using the given
// information store.  If info is nil, this is the same as OpenPath.
func Open(path string, info *information.Information) *Document {
	if info == nil {
		return OpenPath(path)
	}
	return &Document{path: path, info: info}
}

// OpenPath returns a Document for the PDF file at path.  If a valid
// information file exists, it is loaded.  Otherwise a new, unprocessed
// information store is used.
func OpenPath(path string) *Document {
	infoPath := information.PathFor(path)
	info, err := information.Load(infoPath)
	if err != nil {
		info = information.New(infoPath)
	}
	return &Document{path: path, info: info}
}

// FromBytes returns a Document for a PDF file held in memory.  The
// Document takes ownership of buf.
func FromBytes(buf []byte) *Document {
	return &Document{data: buf, info: information.New("")}
}

// Path returns the path of the PDF file, or the empty string for
// in-memory documents.
func (d *Document) Path() string {
	return d.path
}

// Data returns the contents of an in-memory document, or nil for
// file-backed documents.  The returned slice must not be modified.
func (d *Document) Data() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}

// Information returns the information store of the document.
func (d *Document) Information() *information.Information {
	return d.info
}

// SetLogger sets the logger which receives warnings about damaged files.
func (d *Document) SetLogger(logger *log.Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// SetCacheSize sets the size of the object cache, in bytes, used when the
// file is next opened.  Zero selects the default size.
func (d *Document) SetCacheSize(size int64) {
	d.mu.Lock()
	d.cache = size
	d.mu.Unlock()
}

// Hold blocks annotation changes until release is called.
func (d *Document) Hold() (release func()) {
	return d.info.Hold()
}

// Reader returns a reader for the PDF file.  The reader is kept open
// until Close or Invalidate is called, and must not be closed by the
// caller.
func (d *Document) Reader() (*pdf.Reader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reader()
}

func (d *Document) reader() (*pdf.Reader, error) {
	if d.r != nil || d.rErr != nil {
		return d.r, d.rErr
	}

	opt := &pdf.ReaderOptions{
		Password:  d.password,
		Logger:    d.logger,
		CacheSize: d.cache,
	}
	var r *pdf.Reader
	var err error
	if d.path != "" {
		r, err = pdf.Open(d.path, opt)
	} else {
		r, err = pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)), opt)
	}
	if err != nil {
		d.rErr = err
		return nil, err
	}
	if d.password != "" {
		// restore owner access, if the password gave it before
		_ = r.Authenticate(d.password)
	}
	d.r = r
	return r, nil
}

// Invalidate closes the cached reader.  This must be called after the
// PDF file has been changed.
func (d *Document) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidate()
}

func (d *Document) invalidate() {
	if d.r != nil {
		d.r.Close()
	}
	d.r = nil
	d.rErr = nil
	d.pages = nil
	d.pagesErr = nil
}

// SetData replaces the contents of an in-memory document.
func (d *Document) SetData(buf []byte) error {
	if d.path != "" {
		return errors.New("document is not held in memory")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidate()
	d.data = buf
	return nil
}

// Close releases the resources held by the document.  The Document can
// still be used afterwards; the file is re-opened when needed.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.r != nil {
		err = d.r.Close()
	}
	d.r = nil
	d.rErr = nil
	d.pages = nil
	d.pagesErr = nil
	return err
}

// Pages returns the page index of the document.
func (d *Document) Pages() (*pagetree.Index, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageIndex()
}

func (d *Document) pageIndex() (*pagetree.Index, error) {
	if d.pages != nil || d.pagesErr != nil {
		return d.pages, d.pagesErr
	}
	r, err := d.reader()
	if err != nil {
		return nil, err
	}
	if !r.Authenticated() {
		// not cached, since this changes after Decrypt
		return nil, pdf.ErrNoAuth
	}
	catalog, err := r.Catalog()
	if err == nil {
		var pages []*pagetree.Page
		pages, err = pagetree.Pages(r, catalog)
		if err == nil {
			d.pages = pagetree.NewIndex(pages)
		}
	}
	d.pagesErr = err
	return d.pages, err
}

// PageCount returns the number of pages.  This is zero if the document
// cannot be read, or if it is encrypted and has not been decrypted.
func (d *Document) PageCount() int {
	idx, err := d.Pages()
	if err != nil {
		return 0
	}
	return idx.NumPages()
}

// CropBox returns the crop box of a page, in PDF default user space.  In
// page-space, the crop box always is the unit square.
func (d *Document) CropBox(page int) (rect.Rect, bool) {
	idx, err := d.Pages()
	if err != nil || page < 0 || page >= idx.NumPages() {
		return rect.Rect{}, false
	}
	return idx.Page(page).CropBox, true
}

// Geometry returns the page-space geometry of a page.
func (d *Document) Geometry(page int) (pagespace.Geometry, bool) {
	idx, err := d.Pages()
	if err != nil || page < 0 || page >= idx.NumPages() {
		return pagespace.Geometry{}, false
	}
	return idx.Geometry(page), true
}

// IsEncrypted reports whether the PDF file is encrypted.
func (d *Document) IsEncrypted() bool {
	r, err := d.Reader()
	return err == nil && r.IsEncrypted()
}

// IsDecrypted reports whether the PDF file is encrypted and a valid
// password has been supplied.
func (d *Document) IsDecrypted() bool {
	r, err := d.Reader()
	return err == nil && r.IsEncrypted() && r.Authenticated()
}

// IsOwner reports whether the owner password has been supplied, or the
// file is not encrypted.
func (d *Document) IsOwner() bool {
	r, err := d.Reader()
	return err == nil && r.IsOwner()
}

// Decrypt tries to unlock an encrypted document using the given password,
// which can be either the user or the owner password.  It returns false if
// the password is wrong and the document is still locked.  Decrypt
// succeeds without checking the password if the document is not
// encrypted, or if it has already been decrypted.  In the latter case, a
// correct owner password still upgrades the access level.
func (d *Document) Decrypt(password string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, err := d.reader()
	if err != nil {
		return false
	}
	if !r.IsEncrypted() {
		return true
	}
	wasOpen := r.Authenticated()
	if err := r.Authenticate(password); err != nil {
		return wasOpen
	}
	d.password = password
	d.pages = nil
	d.pagesErr = nil
	return true
}

// Permissions returns the permissions of the current user, in the form
// used by the information store.
func (d *Document) Permissions() information.Permissions {
	r, err := d.Reader()
	if err != nil {
		return 0
	}
	if r.IsOwner() {
		return information.PermAll
	}
	return ConvertPermissions(r.Permissions())
}

// ConvertPermissions maps PDF permission bits to the permissions of the
// information store.
func ConvertPermissions(p pdf.Perm) information.Permissions {
	var res information.Permissions
	if p&pdf.PermCopy != 0 {
		res |= information.PermTextSelection
	}
	if p&(pdf.PermAnnotate|pdf.PermModify) != 0 {
		res |= information.PermAnnotation
	}
	if p&pdf.PermAssemble != 0 {
		res |= information.PermAssembly
	}
	if p&(pdf.PermPrint|pdf.PermPrintHighRes) != 0 {
		res |= information.PermPrinting
	}
	return res
}
