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
	"math/bits"
	"regexp"
	"slices"
	"strconv"
)

type xrefKind uint8

const (
	xrefFree xrefKind = iota
	xrefInFile
	xrefInStream
)

// xrefEntry describes where an object is stored.
// For objects inside an object stream, pos is the number of the stream
// and index is the position of the object within the stream.
type xrefEntry struct {
	kind       xrefKind
	pos        int64
	generation uint16
	index      int
}

// findStartXRef locates the "startxref" keyword near the end of the file,
// and returns the offset of the last cross-reference section.
func (r *Reader) findStartXRef() (int64, error) {
	const window = 2048

	start := max(r.size-window, 0)
	buf := make([]byte, r.size-start)
	n, err := r.r.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return 0, err
	}
	buf = buf[:n]

	idx := bytes.LastIndex(buf, []byte("startxref"))
	if idx < 0 {
		return 0, &MalformedFileError{Err: errors.New("startxref not found")}
	}
	lx := newLexer(bytes.NewReader(buf[idx+9:]), start+int64(idx+9))
	tok, err := lx.next()
	if err != nil {
		return 0, err
	}
	pos, ok := tok.obj.(Integer)
	if !ok || pos <= 0 || int64(pos) >= r.size {
		return 0, &MalformedFileError{Pos: tok.pos, Err: errors.New("invalid startxref value")}
	}
	return int64(pos), nil
}

// readXRef reads the chain of cross-reference sections, starting with the
// most recent one.
func (r *Reader) readXRef() error {
	start, err := r.findStartXRef()
	if err != nil {
		return err
	}
	r.lastXRef = start

	xref := make(map[uint32]*xrefEntry)
	seen := make(map[int64]bool)
	var trailer Dict
	for {
		if seen[start] {
			break
		}
		seen[start] = true

		section := make(map[uint32]*xrefEntry)
		dict, isStream, err := r.readXRefSection(start, section)
		if err != nil {
			return err
		}
		if trailer == nil {
			trailer = dict
			r.xrefIsStream = isStream
		}

		if stmPos, ok := dict["XRefStm"].(Integer); ok && !isStream {
			hybrid := make(map[uint32]*xrefEntry)
			if _, _, err := r.readXRefSection(int64(stmPos), hybrid); err == nil {
				for num, entry := range hybrid {
					if old, ok := section[num]; !ok || old.kind == xrefFree {
						section[num] = entry
					}
				}
			}
		}

		for num, entry := range section {
			if _, ok := xref[num]; !ok {
				xref[num] = entry
			}
		}

		prev, ok := dict["Prev"].(Integer)
		if !ok {
			break
		}
		if prev <= 0 || int64(prev) >= r.size {
			return &MalformedFileError{Pos: start, Err: fmt.Errorf("invalid /Prev %d", prev)}
		}
		start = int64(prev)
	}

	if trailer == nil || trailer["Root"] == nil {
		return &MalformedFileError{Err: errors.New("trailer without /Root")}
	}
	r.xref = xref
	r.trailer = trailer
	return nil
}

func (r *Reader) readXRefSection(pos int64, xref map[uint32]*xrefEntry) (Dict, bool, error) {
	p := r.parserAt(pos)
	tok, err := p.nextToken()
	if err != nil {
		return nil, false, err
	}
	if tok.kind == tokKeyword && tok.kw == "xref" {
		dict, err := readXRefTable(p, xref)
		return dict, false, err
	}
	p.unread(tok)

	ref, obj, err := r.readIndirect(p)
	if err != nil {
		return nil, false, err
	}
	stm, ok := obj.(*Stream)
	if !ok {
		return nil, false, &MalformedFileError{Pos: pos, Err: errInvalidXref}
	}
	if err := r.decodeXRefStream(stm, xref); err != nil {
		return nil, false, Wrap(err, "xref stream "+ref.String())
	}
	return stm.Dict, true, nil
}

// readXRefTable reads a cross-reference table, starting after the "xref"
// keyword, and the following trailer dictionary.
//
// PDF 2.0 sections: 7.5.4
func readXRefTable(p *parser, xref map[uint32]*xrefEntry) (Dict, error) {
	for {
		tok, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokKeyword && tok.kw == "trailer" {
			break
		}
		start, ok1 := tok.obj.(Integer)
		tok, err = p.nextToken()
		if err != nil {
			return nil, err
		}
		count, ok2 := tok.obj.(Integer)
		if !ok1 || !ok2 || start < 0 || count < 0 || start+count > 1<<31 {
			return nil, &MalformedFileError{Pos: tok.pos, Err: errInvalidXref}
		}

		for i := Integer(0); i < count; i++ {
			var vals [2]Integer
			for j := range vals {
				tok, err := p.nextToken()
				if err != nil {
					return nil, err
				}
				x, ok := tok.obj.(Integer)
				if !ok {
					return nil, &MalformedFileError{Pos: tok.pos, Err: errInvalidXref}
				}
				vals[j] = x
			}
			tok, err := p.nextToken()
			if err != nil {
				return nil, err
			}
			num := uint32(start + i)
			if _, seen := xref[num]; seen {
				continue
			}

			// Some writers use "0000000000 65536 f" for the first entry.
			gen := uint16(min(vals[1], 65535))
			switch tok.kw {
			case "n":
				if vals[0] == 0 && num != 0 {
					xref[num] = &xrefEntry{kind: xrefFree, generation: gen}
				} else {
					xref[num] = &xrefEntry{kind: xrefInFile, pos: int64(vals[0]), generation: gen}
				}
			case "f":
				xref[num] = &xrefEntry{kind: xrefFree, generation: gen}
			default:
				return nil, &MalformedFileError{Pos: tok.pos, Err: errInvalidXref}
			}
		}
	}

	obj, err := p.readObject()
	if err != nil {
		return nil, err
	}
	dict, ok := obj.(Dict)
	if !ok {
		return nil, &MalformedFileError{Err: errors.New("invalid trailer dictionary")}
	}
	return dict, nil
}

// decodeXRefStream reads the entries of a cross-reference stream.
//
// PDF 2.0 sections: 7.5.8
func (r *Reader) decodeXRefStream(stm *Stream, xref map[uint32]*xrefEntry) error {
	size, ok := stm.Dict["Size"].(Integer)
	if !ok || size < 0 {
		return Errorf("missing /Size")
	}
	wArr, ok := stm.Dict["W"].(Array)
	if !ok || len(wArr) < 3 {
		return Errorf("invalid /W")
	}
	var w [3]int
	for i := range w {
		x, ok := wArr[i].(Integer)
		if !ok || x < 0 || x > 8 {
			return Errorf("invalid /W")
		}
		w[i] = int(x)
	}
	index := []Integer{0, size}
	if idx, ok := stm.Dict["Index"].(Array); ok {
		index = index[:0]
		for _, x := range idx {
			i, ok := x.(Integer)
			if !ok || i < 0 {
				return Errorf("invalid /Index")
			}
			index = append(index, i)
		}
		if len(index)%2 != 0 {
			return Errorf("invalid /Index")
		}
	}

	data, err := DecodeStream(r, stm)
	if err != nil {
		return err
	}

	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return Errorf("invalid /W")
	}
	for i := 0; i < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := Integer(0); j < count; j++ {
			if len(data) < rowLen {
				return Errorf("xref stream too short")
			}
			row := data[:rowLen]
			data = data[rowLen:]

			tp := uint64(1)
			if w[0] > 0 {
				tp = decodeUint(row[:w[0]])
			}
			f2 := decodeUint(row[w[0] : w[0]+w[1]])
			f3 := decodeUint(row[w[0]+w[1]:])

			num := uint32(start + j)
			if _, seen := xref[num]; seen {
				continue
			}
			switch tp {
			case 0:
				xref[num] = &xrefEntry{kind: xrefFree, generation: uint16(f3)}
			case 1:
				xref[num] = &xrefEntry{kind: xrefInFile, pos: int64(f2), generation: uint16(f3)}
			case 2:
				xref[num] = &xrefEntry{kind: xrefInStream, pos: int64(f2), index: int(f3)}
			}
		}
	}
	return nil
}

func decodeUint(buf []byte) uint64 {
	var res uint64
	for _, b := range buf {
		res = res<<8 | uint64(b)
	}
	return res
}

var (
	objHeaderPat = regexp.MustCompile(`(?m)(\d+)[ \t\r\n]+(\d+)[ \t\r\n]+obj\b`)
	trailerPat   = regexp.MustCompile(`trailer[ \t\r\n]*<<`)
)

// reconstructXRef rebuilds the cross-reference information by scanning the
// whole file for object headers.  This is used for damaged files.
func (r *Reader) reconstructXRef() error {
	data := make([]byte, r.size)
	n, err := r.r.ReadAt(data, 0)
	if err != nil && err != io.EOF {
		return err
	}
	data = data[:n]

	xref := make(map[uint32]*xrefEntry)
	for _, m := range objHeaderPat.FindAllSubmatchIndex(data, -1) {
		num, err1 := strconv.ParseUint(string(data[m[2]:m[3]]), 10, 32)
		gen, err2 := strconv.ParseUint(string(data[m[4]:m[5]]), 10, 16)
		if err1 != nil || err2 != nil {
			continue
		}
		// later definitions override earlier ones
		xref[uint32(num)] = &xrefEntry{kind: xrefInFile, pos: int64(m[0]), generation: uint16(gen)}
	}
	if len(xref) == 0 {
		return &MalformedFileError{Err: errors.New("no objects found")}
	}
	r.xref = xref

	var trailer Dict
	for _, m := range trailerPat.FindAllIndex(data, -1) {
		p := r.parserAt(int64(m[1] - 2))
		obj, err := p.readObject()
		if dict, ok := obj.(Dict); err == nil && ok && dict["Root"] != nil {
			trailer = dict
		}
	}
	if trailer == nil {
		// look for a catalog, and for xref stream dictionaries
		nums := make([]uint32, 0, len(xref))
		for num := range xref {
			nums = append(nums, num)
		}
		slices.Sort(nums)
		trailer = Dict{}
		for _, num := range nums {
			ref := NewReference(num, xref[num].generation)
			obj, err := r.Get(ref)
			if err != nil {
				continue
			}
			dict, _ := GetDict(nil, obj)
			switch dict["Type"] {
			case Name("Catalog"):
				trailer["Root"] = ref
			case Name("XRef"):
				for _, key := range []Name{"Root", "Info", "ID", "Encrypt"} {
					if val, ok := dict[key]; ok {
						trailer[key] = val
					}
				}
			}
		}
		if trailer["Root"] == nil {
			return &MalformedFileError{Err: errors.New("document catalog not found")}
		}
	}
	delete(trailer, "Prev")
	delete(trailer, "XRefStm")
	r.trailer = trailer
	r.lastXRef = 0
	r.xrefIsStream = false
	return nil
}

// xrefWidth returns the number of bytes needed to store x.
func xrefWidth(x uint64) int {
	return max((bits.Len64(x)+7)/8, 1)
}

// writeXRefTable writes a cross-reference table and trailer for the
// objects in w.offsets.
//
// PDF 2.0 sections: 7.5.4 7.5.5
func (w *Writer) writeXRefTable(trailer Dict) error {
	xrefPos := w.w.pos
	nums := w.sortedNumbers()
	if _, err := io.WriteString(w.w, "xref\n"); err != nil {
		return err
	}

	if !w.incremental {
		// full file: one subsection covering all object numbers
		size := uint32(0)
		if len(nums) > 0 {
			size = nums[len(nums)-1] + 1
		}
		if _, err := fmt.Fprintf(w.w, "0 %d\n", size); err != nil {
			return err
		}
		for num := uint32(0); num < size; num++ {
			pos, ok := w.offsets[num]
			var err error
			if ok {
				_, err = fmt.Fprintf(w.w, "%010d %05d n\r\n", pos, w.generation(num))
			} else if num == 0 {
				_, err = io.WriteString(w.w, "0000000000 65535 f\r\n")
			} else {
				_, err = io.WriteString(w.w, "0000000000 00001 f\r\n")
			}
			if err != nil {
				return err
			}
		}
	} else {
		for _, run := range consecutiveRuns(nums) {
			if _, err := fmt.Fprintf(w.w, "%d %d\n", run[0], len(run)); err != nil {
				return err
			}
			for _, num := range run {
				_, err := fmt.Fprintf(w.w, "%010d %05d n\r\n", w.offsets[num], w.generation(num))
				if err != nil {
					return err
				}
			}
		}
	}

	if _, err := io.WriteString(w.w, "trailer\n"); err != nil {
		return err
	}
	if err := trailer.PDF(w.w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w.w, "\nstartxref\n%d\n%%%%EOF\n", xrefPos)
	return err
}

// writeXRefStream writes a cross-reference stream, which also takes the
// role of the trailer dictionary.
//
// PDF 2.0 sections: 7.5.8
func (w *Writer) writeXRefStream(trailer Dict) error {
	ref := w.Alloc()
	w.offsets[ref.Number()] = w.w.pos
	nums := w.sortedNumbers()

	maxPos := uint64(0)
	for _, pos := range w.offsets {
		maxPos = max(maxPos, uint64(pos))
	}
	w2 := xrefWidth(maxPos)
	w3 := 1
	for _, num := range nums {
		w3 = max(w3, xrefWidth(uint64(w.generation(num))))
	}

	data := &bytes.Buffer{}
	var index Array
	for _, run := range consecutiveRuns(nums) {
		index = append(index, Integer(run[0]), Integer(len(run)))
		for _, num := range run {
			data.WriteByte(1)
			putUint(data, uint64(w.offsets[num]), w2)
			putUint(data, uint64(w.generation(num)), w3)
		}
	}

	dict := trailer.Clone()
	dict["Type"] = Name("XRef")
	dict["W"] = Array{Integer(1), Integer(w2), Integer(w3)}
	dict["Index"] = index
	stm, err := Compress(dict, data.Bytes())
	if err != nil {
		return err
	}

	xrefPos := w.w.pos
	if _, err := fmt.Fprintf(w.w, "%d %d obj\n", ref.Number(), ref.Generation()); err != nil {
		return err
	}
	if err := stm.PDF(w.w); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.w, "\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefPos)
	return err
}

func putUint(buf *bytes.Buffer, x uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		buf.WriteByte(byte(x >> (8 * i)))
	}
}

// consecutiveRuns splits a sorted list of object numbers into runs of
// consecutive numbers.
func consecutiveRuns(nums []uint32) [][]uint32 {
	var runs [][]uint32
	for i := 0; i < len(nums); {
		j := i + 1
		for j < len(nums) && nums[j] == nums[j-1]+1 {
			j++
		}
		runs = append(runs, nums[i:j])
		i = j
	}
	return runs
}
