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

// Package information implements the information store: the versioned
// cache of everything extracted from a PDF document, together with the
// user's annotations.
//
// The cache of a document at path p is stored in the file p+".metadata".
package information

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/extract"
	"seehuhn.de/go/annotate/outline"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/search"
)

// Versions of the information file format.
const (
	VersionUnknown uint32 = 0
	Version5       uint32 = 0x00050000

	CurrentVersion = Version5
)

// Suffix is appended to the path of a PDF file to get the path of its
// information file.
const Suffix = ".metadata"

// ErrInvalidFormat is returned when an information file cannot be read.
var ErrInvalidFormat = errors.New("invalid information file")

// Permissions describes what the user may do with a document.
type Permissions uint32

// Permission bits.
const (
	PermTextSelection Permissions = 1 << iota
	PermAnnotation
	PermAssembly
	PermPrinting

	PermAll = PermTextSelection | PermAnnotation | PermAssembly | PermPrinting
)

// Fingerprint identifies the contents of a PDF file.
type Fingerprint struct {
	Size int64
	Sum  [sha256.Size]byte
}

// FingerprintOf computes the fingerprint of a PDF file's contents.
func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint{Size: int64(len(data)), Sum: sha256.Sum256(data)}
}

// Page holds the information about one page.
type Page struct {
	Geometry pagespace.Geometry

	// Text is the extracted text, or nil if no text was found.
	Text *extract.Text
}

// Data is the content of an information store.
type Data struct {
	Permissions Permissions
	Processed   bool
	Modified    bool
	Source      Fingerprint

	Pages   []Page
	Outline *outline.Element

	// Annotations lists all annotations, including bookmarks, sorted by
	// page.  Within a page, the order is the insertion order.
	Annotations []annotation.Annotation
}

// Information is the information store of one document.
// All methods are safe for concurrent use.
type Information struct {
	path string

	// edit is held for every annotation change, and by Hold.
	edit sync.Mutex

	mu    sync.RWMutex
	data  Data
	pages [][]annotation.Annotation
	byID  map[string]int // annotation ID -> page

	numText      int
	numUser      int
	numBookmarks int
}

// New returns an empty, unprocessed information store.  If path is
// empty, the store lives in memory only.
func New(path string) *Information {
	info := &Information{path: path}
	info.setData(&Data{})
	return info
}

// PathFor returns the path of the information file for a PDF file.
func PathFor(pdfPath string) string {
	return pdfPath + Suffix
}

// Load reads an information file.
func Load(path string) (*Information, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	info := &Information{path: path}
	info.setData(data)
	return info, nil
}

// VersionOf returns the format version of an information file, or
// VersionUnknown if the file cannot be read.
func VersionOf(path string) uint32 {
	fd, err := os.Open(path)
	if err != nil {
		return VersionUnknown
	}
	defer fd.Close()
	var buf [4]byte
	if _, err := fd.ReadAt(buf[:], 0); err != nil {
		return VersionUnknown
	}
	return versionTag(buf[:])
}

// Save writes the information store to its file.  The file is replaced
// atomically.  For in-memory stores, Save does nothing.
func (info *Information) Save() error {
	if info.path == "" {
		return nil
	}

	buf, err := Encode(info.Snapshot())
	if err != nil {
		return err
	}
	return WriteFileAtomic(info.path, buf)
}

// WriteFileAtomic replaces the file at path with data.  The data is
// written to a temporary file in the same directory, synced to disk and
// then renamed over path.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if st, err := os.Stat(path); err == nil {
		// keep the permissions of the file we replace
		_ = os.Chmod(tmpName, st.Mode().Perm())
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	ok = true
	return nil
}

// Path returns the path of the information file, or the empty string for
// in-memory stores.
func (info *Information) Path() string {
	return info.path
}

// Version returns the format version of the store.
func (info *Information) Version() uint32 {
	return CurrentVersion
}

// setData installs new contents and rebuilds the indices.
// The caller must hold mu for writing, or have exclusive access.
func (info *Information) setData(d *Data) {
	info.data = *d
	info.data.Annotations = nil
	info.pages = make([][]annotation.Annotation, len(d.Pages))
	info.byID = make(map[string]int)
	info.numUser = 0
	info.numBookmarks = 0
	info.numText = 0
	for _, p := range d.Pages {
		if p.Text != nil && p.Text.Text != "" {
			info.numText++
		}
	}
	for _, a := range d.Annotations {
		c := a.Base()
		if c.Page < 0 || c.Page >= len(info.pages) {
			continue
		}
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, dup := info.byID[c.ID]; dup {
			continue
		}
		info.insert(a)
	}
}

func (info *Information) insert(a annotation.Annotation) {
	c := a.Base()
	info.pages[c.Page] = append(info.pages[c.Page], a)
	info.byID[c.ID] = c.Page
	info.count(a, 1)
}

func (info *Information) count(a annotation.Annotation, delta int) {
	switch a.Kind() {
	case annotation.KindBookmark:
		info.numBookmarks += delta
	case annotation.KindLink:
	default:
		info.numUser += delta
	}
}

// Replace installs new contents, for example after a document has been
// processed.  Replace does not wait for Hold, so that it can be used by
// the holder.
func (info *Information) Replace(d *Data) {
	info.mu.Lock()
	defer info.mu.Unlock()
	info.setData(d)
}

// Commit writes d to the information file and then installs it.  If
// writing fails, the store keeps its previous contents.  Annotations in
// d without an ID are given one.
func (info *Information) Commit(d *Data) error {
	for _, a := range d.Annotations {
		if c := a.Base(); c.ID == "" {
			c.ID = uuid.New().String()
		}
	}
	if info.path != "" {
		buf, err := Encode(d)
		if err != nil {
			return err
		}
		if err := WriteFileAtomic(info.path, buf); err != nil {
			return err
		}
	}
	info.Replace(d)
	return nil
}

// Snapshot returns a copy of the contents.  Annotations are deep copies,
// page text and the outline are shared and must not be modified.
func (info *Information) Snapshot() *Data {
	info.mu.RLock()
	defer info.mu.RUnlock()
	d := info.data
	d.Pages = slices.Clone(info.data.Pages)
	d.Annotations = info.collect(func(annotation.Annotation) bool { return true })
	return &d
}

// Hold blocks all annotation changes until release is called.  This is
// used by the processor while a job runs on the document.
func (info *Information) Hold() (release func()) {
	info.edit.Lock()
	return info.edit.Unlock
}

// SetModified sets or clears the modified flag.
func (info *Information) SetModified(modified bool) {
	info.mu.Lock()
	info.data.Modified = modified
	info.mu.Unlock()
}

// MarkSynced records that the annotations have been written into the PDF
// file, which now has the given fingerprint.
func (info *Information) MarkSynced(source Fingerprint) {
	info.mu.Lock()
	info.data.Modified = false
	info.data.Source = source
	info.mu.Unlock()
}

// IsProcessed reports whether the document has been processed.
func (info *Information) IsProcessed() bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.data.Processed
}

// IsModified reports whether annotations have changed since the PDF file
// was last written.
func (info *Information) IsModified() bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.data.Modified
}

// Permissions returns the permissions of the user.
func (info *Information) Permissions() Permissions {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.data.Permissions
}

// Source returns the fingerprint of the processed PDF file.
func (info *Information) Source() Fingerprint {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.data.Source
}

// PageCount returns the number of pages of the processed document.
func (info *Information) PageCount() int {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return len(info.data.Pages)
}

// Geometry returns the page-space geometry of a page.
func (info *Information) Geometry(page int) (pagespace.Geometry, bool) {
	info.mu.RLock()
	defer info.mu.RUnlock()
	if page < 0 || page >= len(info.data.Pages) {
		return pagespace.Geometry{}, false
	}
	return info.data.Pages[page].Geometry, true
}

// PageText returns the text of a page, or nil if the page has no text.
// The result must not be modified.
func (info *Information) PageText(page int) *extract.Text {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.pageText(page)
}

func (info *Information) pageText(page int) *extract.Text {
	if page < 0 || page >= len(info.data.Pages) {
		return nil
	}
	return info.data.Pages[page].Text
}

// Outline returns the document outline, or nil if there is none.
// The result must not be modified.
func (info *Information) Outline() *outline.Element {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.data.Outline
}

// HasText reports whether text was found on any page.
func (info *Information) HasText() bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.numText > 0
}

// HasTextOnPage reports whether text was found on the given page.
func (info *Information) HasTextOnPage(page int) bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	t := info.pageText(page)
	return t != nil && t.Text != ""
}

// HasOutline reports whether the document has an outline.
func (info *Information) HasOutline() bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.data.Outline != nil
}

// HasBookmarks reports whether there are any bookmarks.
func (info *Information) HasBookmarks() bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.numBookmarks > 0
}

// HasUserAnnotations reports whether there are any annotations other
// than links and bookmarks.
func (info *Information) HasUserAnnotations() bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.numUser > 0
}

// AllAnnotations returns copies of all annotations apart from bookmarks,
// ordered by page.
func (info *Information) AllAnnotations() []annotation.Annotation {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.collect(notBookmark)
}

// AnnotationsOnPage returns copies of the annotations on a page, apart
// from bookmarks.
func (info *Information) AnnotationsOnPage(page int) []annotation.Annotation {
	info.mu.RLock()
	defer info.mu.RUnlock()
	return info.pageAnnotations(page, notBookmark)
}

// Bookmarks returns copies of all bookmarks, ordered by page.
func (info *Information) Bookmarks() []*annotation.Bookmark {
	info.mu.RLock()
	defer info.mu.RUnlock()
	var res []*annotation.Bookmark
	for _, a := range info.collect(isBookmark) {
		res = append(res, a.(*annotation.Bookmark))
	}
	return res
}

func notBookmark(a annotation.Annotation) bool { return a.Kind() != annotation.KindBookmark }
func isBookmark(a annotation.Annotation) bool  { return a.Kind() == annotation.KindBookmark }

func (info *Information) collect(keep func(annotation.Annotation) bool) []annotation.Annotation {
	var res []annotation.Annotation
	for page := range info.pages {
		res = append(res, info.pageAnnotations(page, keep)...)
	}
	return res
}

func (info *Information) pageAnnotations(page int, keep func(annotation.Annotation) bool) []annotation.Annotation {
	if page < 0 || page >= len(info.pages) {
		return nil
	}
	var res []annotation.Annotation
	for _, a := range info.pages[page] {
		if keep(a) {
			res = append(res, a.Clone())
		}
	}
	return res
}

// Add adds a new annotation.  The annotation is assigned an ID, unless
// it already has one, and the last modification time is set.  Add fails
// if the annotation is invalid or if an annotation with the same ID is
// already present.
//
// On success, the ID and modification time are also set in a, so that
// a can be used for later calls to Update and Remove.
func (info *Information) Add(a annotation.Annotation) bool {
	info.edit.Lock()
	defer info.edit.Unlock()
	info.mu.Lock()
	defer info.mu.Unlock()

	if !info.valid(a) {
		return false
	}
	c := a.Base()
	if c.ID == "" {
		c.ID = uuid.New().String()
	} else if _, exists := info.byID[c.ID]; exists {
		return false
	}
	annotation.Stamp(a, time.Now())

	info.insert(a.Clone())
	info.data.Modified = true
	return true
}

// Update replaces a stored annotation by a, matched by ID.  Update fails
// if a did not originate from this store, or if a is invalid.
func (info *Information) Update(a annotation.Annotation) bool {
	info.edit.Lock()
	defer info.edit.Unlock()
	info.mu.Lock()
	defer info.mu.Unlock()

	if !info.valid(a) {
		return false
	}
	idx, old := info.find(a)
	if old == nil || old.Kind() != a.Kind() {
		return false
	}
	a.Base().Modified = time.Now()

	oldPage := old.Base().Page
	b := a.Clone()
	if b.Base().Page == oldPage {
		info.pages[oldPage][idx] = b
	} else {
		info.pages[oldPage] = slices.Delete(info.pages[oldPage], idx, idx+1)
		info.count(old, -1)
		info.insert(b)
	}
	info.data.Modified = true
	return true
}

// Remove removes the annotation with the same ID as a.  Remove fails if
// a did not originate from this store.
func (info *Information) Remove(a annotation.Annotation) bool {
	info.edit.Lock()
	defer info.edit.Unlock()
	info.mu.Lock()
	defer info.mu.Unlock()

	if a == nil {
		return false
	}
	idx, old := info.find(a)
	if old == nil {
		return false
	}
	page := old.Base().Page
	info.pages[page] = slices.Delete(info.pages[page], idx, idx+1)
	delete(info.byID, old.Base().ID)
	info.count(old, -1)
	info.data.Modified = true
	return true
}

// RemoveAll removes all annotations, including bookmarks.
func (info *Information) RemoveAll() bool {
	info.edit.Lock()
	defer info.edit.Unlock()
	info.mu.Lock()
	defer info.mu.Unlock()

	if len(info.byID) > 0 {
		info.data.Modified = true
	}
	for i := range info.pages {
		info.pages[i] = nil
	}
	clear(info.byID)
	info.numUser = 0
	info.numBookmarks = 0
	return true
}

// RemoveOnPage removes all annotations on one page, including bookmarks.
// This fails if the page does not exist.
func (info *Information) RemoveOnPage(page int) bool {
	info.edit.Lock()
	defer info.edit.Unlock()
	info.mu.Lock()
	defer info.mu.Unlock()

	if page < 0 || page >= len(info.pages) {
		return false
	}
	for _, a := range info.pages[page] {
		delete(info.byID, a.Base().ID)
		info.count(a, -1)
		info.data.Modified = true
	}
	info.pages[page] = nil
	return true
}

func (info *Information) valid(a annotation.Annotation) bool {
	if a == nil || annotation.Validate(a, len(info.pages)) != nil {
		return false
	}
	return a.Base().Page < len(info.pages)
}

// find locates the stored annotation with the same ID as a.
func (info *Information) find(a annotation.Annotation) (int, annotation.Annotation) {
	id := a.Base().ID
	page, ok := info.byID[id]
	if !ok || id == "" {
		return -1, nil
	}
	for i, b := range info.pages[page] {
		if b.Base().ID == id {
			return i, b
		}
	}
	return -1, nil
}

// Search runs a search over the text of the document and reports whether
// at least one match was found.  Each page is read under the read lock,
// and the observer is called without holding it, so that callbacks may
// use the store.  Changes made while the search runs are seen by the
// pages which are scanned afterwards.
//
// Search returns false if the document has not been processed or if the
// query is invalid.
func (info *Information) Search(ctx context.Context, req *search.Request, obs search.Observer) bool {
	if !info.IsProcessed() {
		return false
	}
	err := search.Run(ctx, (*source)(info), req, obs)
	if errors.Is(err, search.ErrInvalidQuery) {
		return false
	}
	return req.NumResults() > 0
}

// source gives the search engine access to the store.
type source Information

func (s *source) NumPages() int {
	return (*Information)(s).PageCount()
}

func (s *source) PageText(page int) *extract.Text {
	return (*Information)(s).PageText(page)
}

func (s *source) Annotations(page int) []annotation.Annotation {
	return (*Information)(s).AnnotationsOnPage(page)
}
