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
	"slices"
)

// Writer writes a PDF file, either as a complete new file or as an
// incremental update appended to an existing file.
type Writer struct {
	// Trailer holds additional entries for the trailer dictionary.
	// The entries Size and Prev are filled in by Close.  Root must be set
	// before Close is called.
	Trailer Dict

	w       *posWriter
	version Version

	offsets     map[uint32]int64
	generations map[uint32]uint16
	nextNum     uint32

	incremental bool
	prev        int64
	useStream   bool
	sec         *securityHandler
	closed      bool
}

// NewWriter prepares a new PDF file for writing.
// The output is not encrypted.
func NewWriter(w io.Writer, ver Version) (*Writer, error) {
	verString, err := ver.ToString()
	if err != nil {
		return nil, err
	}
	pdf := &Writer{
		Trailer:     Dict{},
		w:           &posWriter{w: w},
		version:     ver,
		offsets:     make(map[uint32]int64),
		generations: make(map[uint32]uint16),
		nextNum:     1,
		useStream:   ver >= V1_5,
	}
	_, err = fmt.Fprintf(pdf.w, "%%PDF-%s\n%%\x80\x80\x80\x80\n", verString)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// NewUpdateWriter copies the file underlying r to w and prepares an
// incremental update.  New and changed objects are written after the
// original data, so that the original bytes stay unchanged.
//
// If r is encrypted, the new objects are encrypted in the same way; this
// requires that r has been authenticated.
func NewUpdateWriter(w io.Writer, r *Reader) (*Writer, error) {
	if !r.Authenticated() {
		return nil, ErrNoAuth
	}

	pdf := &Writer{
		w:           &posWriter{w: w},
		version:     r.version,
		offsets:     make(map[uint32]int64),
		generations: make(map[uint32]uint16),
		incremental: true,
		prev:        r.lastXRef,
		useStream:   r.xrefIsStream,
		sec:         r.sec,
	}

	n, err := io.Copy(pdf.w, io.NewSectionReader(r.r, 0, r.size))
	if err != nil {
		return nil, err
	}
	if n > 0 {
		var last [1]byte
		if _, err := r.r.ReadAt(last[:], n-1); err == nil && last[0] != '\n' && last[0] != '\r' {
			if _, err := io.WriteString(pdf.w, "\n"); err != nil {
				return nil, err
			}
		}
	}

	if r.Repaired {
		// The original cross-reference data cannot be trusted, so the
		// new section lists every object.
		pdf.prev = 0
		for num, entry := range r.xref {
			if entry.kind == xrefInFile {
				pdf.offsets[num] = entry.pos
				pdf.generations[num] = entry.generation
			}
		}
	}

	pdf.nextNum = 1
	if size, ok := r.trailer["Size"].(Integer); ok && size > 0 {
		pdf.nextNum = uint32(size)
	}
	for num := range r.xref {
		pdf.nextNum = max(pdf.nextNum, num+1)
	}

	pdf.Trailer = Dict{}
	for key, val := range r.trailer {
		switch key {
		case "Size", "Prev", "XRefStm", "Type", "W", "Index", "Filter",
			"DecodeParms", "Length":
			continue
		}
		pdf.Trailer[key] = val
	}
	return pdf, nil
}

// Alloc allocates a new object number.
func (pdf *Writer) Alloc() Reference {
	ref := NewReference(pdf.nextNum, 0)
	pdf.nextNum++
	return ref
}

// Put writes obj as the indirect object ref.  In an incremental update,
// this replaces any previous version of the object.
func (pdf *Writer) Put(ref Reference, obj Object) error {
	if pdf.closed {
		return errors.New("pdf: write to closed Writer")
	}
	if ref.Number() == 0 {
		return errors.New("pdf: invalid object number 0")
	}
	pdf.nextNum = max(pdf.nextNum, ref.Number()+1)

	if pdf.sec != nil {
		var err error
		obj, err = pdf.encrypt(ref, obj)
		if err != nil {
			return err
		}
	}

	pdf.offsets[ref.Number()] = pdf.w.pos
	pdf.generations[ref.Number()] = ref.Generation()
	if _, err := fmt.Fprintf(pdf.w, "%d %d obj\n", ref.Number(), ref.Generation()); err != nil {
		return err
	}
	if err := writeObject(pdf.w, obj); err != nil {
		return err
	}
	_, err := io.WriteString(pdf.w, "\nendobj\n")
	return err
}

func (pdf *Writer) encrypt(ref Reference, obj Object) (Object, error) {
	obj, err := pdf.sec.encryptObject(ref, obj)
	if err != nil {
		return nil, err
	}
	stm, ok := obj.(*Stream)
	if !ok {
		return obj, nil
	}
	method := pdf.sec.streamMethod(stm.Dict)
	if method == cipherIdentity || stm.R == nil {
		return stm, nil
	}
	data, err := io.ReadAll(stm.R)
	if err != nil {
		return nil, err
	}
	data, err = pdf.sec.encrypt(ref, method, data)
	if err != nil {
		return nil, err
	}
	return &Stream{Dict: stm.Dict, R: bytes.NewReader(data)}, nil
}

// Close writes the cross-reference section and the trailer.  The
// underlying io.Writer is not closed.
func (pdf *Writer) Close() error {
	if pdf.closed {
		return nil
	}
	pdf.closed = true

	if pdf.Trailer["Root"] == nil {
		return errors.New("pdf: missing /Root in trailer")
	}

	trailer := pdf.Trailer.Clone()
	trailer["Size"] = Integer(pdf.nextNum)
	if pdf.useStream {
		// the xref stream takes up one more object number
		trailer["Size"] = Integer(pdf.nextNum + 1)
	}
	if pdf.incremental && pdf.prev > 0 {
		trailer["Prev"] = Integer(pdf.prev)
	}

	if pdf.useStream {
		return pdf.writeXRefStream(trailer)
	}
	return pdf.writeXRefTable(trailer)
}

func (pdf *Writer) sortedNumbers() []uint32 {
	nums := make([]uint32, 0, len(pdf.offsets))
	for num := range pdf.offsets {
		nums = append(nums, num)
	}
	slices.Sort(nums)
	return nums
}

func (pdf *Writer) generation(num uint32) uint16 {
	return pdf.generations[num]
}

type posWriter struct {
	w   io.Writer
	pos int64
}

func (w *posWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.pos += int64(n)
	return n, err
}
