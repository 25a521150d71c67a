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

package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/phuslu/log"
)

// ReaderOptions provides additional information for opening a PDF file.
type ReaderOptions struct {
	// Password is tried after the empty password, for encrypted files.
	Password string

	// CacheSize is the memory budget for cached objects, in bytes.
	// If this is zero, a default value is used.
	CacheSize int64

	// Logger, if set, receives warnings about damaged files.
	Logger *log.Logger
}

// Reader represents a pdf file opened for reading.
// Use Open or NewReader to create a Reader.
//
// Objects returned by Get are shared with the cache and must be cloned
// before they are modified.
type Reader struct {
	r      io.ReaderAt
	size   int64
	closer io.Closer

	version  Version
	xref     map[uint32]*xrefEntry
	trailer  Dict
	lastXRef int64

	// xrefIsStream records whether the most recent cross-reference
	// section was a stream.  Updates use the same form.
	xrefIsStream bool

	// Repaired is set if the cross-reference information was damaged and
	// had to be reconstructed.
	Repaired bool

	secMu sync.RWMutex
	sec   *securityHandler

	objects *objectCache[Object]
	streams *objectCache[[]Object]
}

// Open opens the named PDF file for reading.  After use, Close must be
// called to close the file.
func Open(fname string, opt *ReaderOptions) (*Reader, error) {
	fd, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}
	r, err := NewReader(fd, fi.Size(), opt)
	if err != nil {
		fd.Close()
		return nil, err
	}
	r.closer = fd
	return r, nil
}

// NewReader creates a new Reader object.
//
// If the document is encrypted, the empty password and opt.Password are
// tried.  If neither works, the Reader is still returned, and reading
// objects fails with ErrNoAuth until Authenticate succeeds.
func NewReader(data io.ReaderAt, size int64, opt *ReaderOptions) (*Reader, error) {
	if opt == nil {
		opt = &ReaderOptions{}
	}

	r := &Reader{
		r:    data,
		size: size,
	}
	var err error
	r.objects, err = newObjectCache[Object](opt.CacheSize)
	if err != nil {
		return nil, err
	}
	r.streams, err = newObjectCache[[]Object](opt.CacheSize / 4)
	if err != nil {
		return nil, err
	}

	r.version, err = r.readHeaderVersion()
	if err != nil {
		return nil, err
	}

	err = r.readXRef()
	if err == nil {
		_, err = r.Get(r.catalogRef())
	}
	if err != nil && !errors.Is(err, ErrNoAuth) {
		if opt.Logger != nil {
			opt.Logger.Warn().Err(err).Msg("damaged cross-reference table, scanning file")
		}
		if err := r.reconstructXRef(); err != nil {
			return nil, err
		}
		r.objects.Clear()
		r.Repaired = true
	}

	if encObj, ok := r.trailer["Encrypt"]; ok {
		encDict, err := GetDict(r, encObj)
		if err != nil {
			return nil, Wrap(err, "encryption dictionary")
		}
		sec, err := newSecurityHandler(r, encDict, r.fileID())
		if err != nil {
			return nil, err
		}
		r.objects.Clear()
		r.sec = sec

		if sec.authenticate("") != nil && opt.Password != "" {
			// the error is reported on the first use of the file
			_ = sec.authenticate(opt.Password)
		}
	}

	return r, nil
}

// Close closes the Reader.  If the Reader was created using Open, the
// underlying file is closed as well.
func (r *Reader) Close() error {
	r.objects.Close()
	r.streams.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Version returns the PDF version from the file header.
func (r *Reader) Version() Version {
	return r.version
}

// Size returns the length of the underlying file in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Trailer returns the trailer dictionary of the file.
// The returned dictionary must not be modified.
func (r *Reader) Trailer() Dict {
	return r.trailer
}

func (r *Reader) catalogRef() Reference {
	ref, _ := r.trailer["Root"].(Reference)
	return ref
}

// Catalog returns the document catalog.
func (r *Reader) Catalog() (Dict, error) {
	cat, err := GetDictTyped(r, r.trailer["Root"], "Catalog")
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, Errorf("missing document catalog")
	}
	return cat, nil
}

func (r *Reader) fileID() []byte {
	id, _ := r.trailer["ID"].(Array)
	if len(id) == 0 {
		return nil
	}
	s, _ := id[0].(String)
	return []byte(s)
}

// IsEncrypted reports whether the file uses encryption.
func (r *Reader) IsEncrypted() bool {
	return r.sec != nil
}

// Authenticated reports whether the contents of the file can be read.
func (r *Reader) Authenticated() bool {
	r.secMu.RLock()
	defer r.secMu.RUnlock()
	return r.sec == nil || r.sec.key != nil
}

// IsOwner reports whether the owner password has been supplied, or the
// file is not encrypted.
func (r *Reader) IsOwner() bool {
	r.secMu.RLock()
	defer r.secMu.RUnlock()
	return r.sec == nil || r.sec.owner
}

// Permissions returns the operations the current user may perform.
// Unencrypted files allow all operations.
func (r *Reader) Permissions() Perm {
	r.secMu.RLock()
	defer r.secMu.RUnlock()
	if r.sec == nil {
		return PermAll
	}
	if r.sec.key == nil {
		return 0
	}
	return r.sec.permissions()
}

// Authenticate tries the given password, first as the owner password and
// then as the user password.  An AuthenticationError is returned if
// neither matches.  A successful call never reduces the access obtained
// by earlier calls.
func (r *Reader) Authenticate(passwd string) error {
	if r.sec == nil {
		return nil
	}
	r.secMu.Lock()
	defer r.secMu.Unlock()

	hadKey := r.sec.key != nil
	owner := r.sec.owner
	err := r.sec.authenticate(passwd)
	r.sec.owner = r.sec.owner || owner
	if err != nil {
		return err
	}
	if !hadKey {
		r.objects.Clear()
		r.streams.Clear()
	}
	return nil
}

// Get reads an indirect object from the PDF file.  If the object is not
// present, nil is returned without an error.
//
// The returned objects must not be modified.  Stream data can be read
// once per call to Get.
func (r *Reader) Get(ref Reference) (Object, error) {
	if obj, ok := r.objects.Get(uint64(ref)); ok {
		return r.freshStream(ref, obj), nil
	}

	entry := r.xref[ref.Number()]
	if entry == nil || entry.kind == xrefFree {
		return nil, nil
	}

	r.secMu.RLock()
	sec := r.sec
	locked := sec != nil && sec.key == nil
	r.secMu.RUnlock()
	if locked {
		return nil, ErrNoAuth
	}

	var obj Object
	switch entry.kind {
	case xrefInFile:
		if entry.generation != ref.Generation() {
			return nil, nil
		}
		p := r.parserAt(entry.pos)
		got, o, err := r.readIndirect(p)
		if err != nil {
			return nil, Wrap(err, "object "+ref.String())
		}
		if got != ref {
			return nil, &MalformedFileError{
				Pos: entry.pos,
				Err: fmt.Errorf("expected object %s but found %s", ref, got),
			}
		}
		if sec != nil {
			o, err = sec.decryptObject(ref, o)
			if err != nil {
				return nil, Wrap(err, "object "+ref.String())
			}
		}
		obj = o
	case xrefInStream:
		if ref.Generation() != 0 {
			return nil, nil
		}
		objs, err := r.objectStream(uint32(entry.pos))
		if err != nil {
			return nil, Wrap(err, fmt.Sprintf("object stream %d", entry.pos))
		}
		if entry.index < 0 || entry.index >= len(objs) {
			return nil, Errorf("object %s not found in object stream", ref)
		}
		obj = objs[entry.index]
	}

	r.objects.Put(uint64(ref), obj, objectCost(obj))
	return r.freshStream(ref, obj), nil
}

// freshStream gives every caller an independent reader for the stream
// data.
func (r *Reader) freshStream(ref Reference, obj Object) Object {
	stm, ok := obj.(*Stream)
	if !ok {
		return obj
	}
	sr, ok := stm.R.(*io.SectionReader)
	if !ok {
		return obj
	}
	_, off, n := sr.Outer()
	var data io.Reader = io.NewSectionReader(r.r, off, n)
	if r.sec != nil {
		if method := r.sec.streamMethod(stm.Dict); method != cipherIdentity {
			data = &decryptReader{
				r: data,
				decode: func(buf []byte) ([]byte, error) {
					return r.sec.decrypt(ref, method, buf)
				},
			}
		}
	}
	return &Stream{Dict: stm.Dict, R: data}
}

// decryptReader decrypts stream data on the first call to Read.
type decryptReader struct {
	r      io.Reader
	decode func([]byte) ([]byte, error)
	buf    []byte
	done   bool
	err    error
}

func (d *decryptReader) Read(p []byte) (int, error) {
	if !d.done {
		d.done = true
		var raw []byte
		raw, d.err = io.ReadAll(d.r)
		if d.err == nil {
			d.buf, d.err = d.decode(raw)
		}
	}
	if d.err != nil {
		return 0, d.err
	}
	if len(d.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

func (r *Reader) parserAt(pos int64) *parser {
	return newParser(io.NewSectionReader(r.r, pos, r.size-pos), pos)
}

// readIndirect reads an indirect object "n g obj ... endobj".  For
// streams, the stream data is not read; instead the returned Stream
// refers to the data in the file.
func (r *Reader) readIndirect(p *parser) (Reference, Object, error) {
	var nums [2]Integer
	for i := range nums {
		tok, err := p.nextToken()
		if err != nil {
			return 0, nil, err
		}
		x, ok := tok.obj.(Integer)
		if tok.kind != tokObject || !ok || x < 0 {
			return 0, nil, &MalformedFileError{Pos: tok.pos, Err: errors.New("invalid object header")}
		}
		nums[i] = x
	}
	if err := p.expectKeyword("obj"); err != nil {
		return 0, nil, err
	}
	ref := NewReference(uint32(nums[0]), uint16(nums[1]))

	obj, err := p.readObject()
	if err == io.EOF {
		return ref, nil, nil
	} else if err != nil {
		return ref, nil, err
	}
	if op, ok := obj.(Operator); ok {
		if op == "endobj" {
			return ref, nil, nil
		}
		return ref, nil, &MalformedFileError{Pos: p.lx.Pos(), Err: fmt.Errorf("unexpected keyword %q", op)}
	}

	tok, err := p.nextToken()
	if err != nil {
		return ref, nil, err
	}
	dict, isDict := obj.(Dict)
	if !isDict || tok.kind != tokKeyword || tok.kw != "stream" {
		// missing "endobj" is tolerated
		return ref, obj, nil
	}

	p.lx.skipEOL()
	start := p.lx.Pos()
	length := r.streamLength(ref, dict, start)
	return ref, &Stream{Dict: dict, R: io.NewSectionReader(r.r, start, length)}, nil
}

// streamLength determines the length of the stream data starting at
// start.  If /Length is missing or wrong, the data is scanned for the
// "endstream" keyword.
func (r *Reader) streamLength(ref Reference, dict Dict, start int64) int64 {
	var length int64 = -1
	switch x := dict["Length"].(type) {
	case Integer:
		length = int64(x)
	case Reference:
		if x.Number() != ref.Number() {
			if l, err := GetInteger(r, x); err == nil {
				length = int64(l)
			}
		}
	}
	if length >= 0 && start+length <= r.size && r.hasEndstream(start+length) {
		return length
	}

	const chunk = 4096
	buf := make([]byte, chunk+9)
	for pos := start; pos < r.size; pos += chunk {
		n, _ := r.r.ReadAt(buf, pos)
		if idx := bytes.Index(buf[:n], []byte("endstream")); idx >= 0 {
			end := pos + int64(idx)
			// remove the end-of-line marker before "endstream"
			var tail [2]byte
			if end-2 >= start {
				r.r.ReadAt(tail[:], end-2)
				if tail[1] == '\n' {
					end--
					if tail[0] == '\r' {
						end--
					}
				} else if tail[1] == '\r' {
					end--
				}
			} else if end-1 >= start {
				r.r.ReadAt(tail[1:], end-1)
				if tail[1] == '\n' || tail[1] == '\r' {
					end--
				}
			}
			return end - start
		}
		if n < len(buf) {
			break
		}
	}
	return max(r.size-start, 0)
}

func (r *Reader) hasEndstream(pos int64) bool {
	buf := make([]byte, 32)
	n, _ := r.r.ReadAt(buf, pos)
	buf = bytes.TrimLeft(buf[:n], " \t\r\n\f\x00")
	return bytes.HasPrefix(buf, []byte("endstream"))
}

// objectStream decodes the object stream with the given number and
// returns the objects it contains, in order.
//
// PDF 2.0 sections: 7.5.7
func (r *Reader) objectStream(num uint32) ([]Object, error) {
	if objs, ok := r.streams.Get(uint64(num)); ok {
		return objs, nil
	}

	if e := r.xref[num]; e == nil || e.kind != xrefInFile {
		return nil, Errorf("object stream %d not found", num)
	}
	stm, err := GetStream(r, NewReference(num, r.xref[num].generation))
	if err != nil {
		return nil, err
	}
	if stm == nil {
		return nil, Errorf("object stream %d not found", num)
	}
	n, err := GetInteger(r, stm.Dict["N"])
	if err != nil {
		return nil, err
	}
	first, err := GetInteger(r, stm.Dict["First"])
	if err != nil {
		return nil, err
	}
	data, err := DecodeStream(r, stm)
	if err != nil {
		return nil, err
	}
	if n < 0 || first < 0 || int(first) > len(data) || int(n) > len(data) {
		return nil, Errorf("invalid object stream header")
	}

	hp := newParser(bytes.NewReader(data[:first]), 0)
	offsets := make([]int, n)
	for i := range offsets {
		var pair [2]Integer
		for j := range pair {
			tok, err := hp.nextToken()
			if err != nil {
				return nil, err
			}
			x, ok := tok.obj.(Integer)
			if !ok || x < 0 {
				return nil, Errorf("invalid object stream header")
			}
			pair[j] = x
		}
		offsets[i] = int(first) + int(pair[1])
		if offsets[i] > len(data) {
			return nil, Errorf("invalid object stream offset")
		}
	}

	objs := make([]Object, n)
	cost := int64(0)
	for i, off := range offsets {
		p := newParser(bytes.NewReader(data[off:]), int64(off))
		obj, err := p.readObject()
		if err != nil && err != io.EOF {
			return nil, err
		}
		if _, isOp := obj.(Operator); isOp {
			obj = nil
		}
		objs[i] = obj
		cost += objectCost(obj)
	}
	r.streams.Put(uint64(num), objs, cost)
	return objs, nil
}

// readHeaderVersion reads the version from the "%PDF-x.y" header.
func (r *Reader) readHeaderVersion() (Version, error) {
	buf := make([]byte, 1024)
	n, err := r.r.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return 0, err
	}
	buf = buf[:n]
	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx < 0 || idx+8 > len(buf) {
		return 0, &MalformedFileError{Err: errors.New("PDF header not found")}
	}
	v, err := ParseVersion(string(buf[idx+5 : idx+8]))
	if err != nil {
		return 0, &MalformedFileError{Err: err}
	}
	return v, nil
}
