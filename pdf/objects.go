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
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Object represents an object in a PDF file.  The nine native types of PDF
// objects implement this interface: Array, Bool, Dict, Integer, Name, Real,
// Reference, *Stream, and String.  The PDF null object is represented by a
// nil Object.
type Object interface {
	// PDF writes the PDF file representation of the object to w.
	PDF(w io.Writer) error
}

// Bool represents a boolean value in a PDF file.
type Bool bool

// PDF implements the Object interface.
func (x Bool) PDF(w io.Writer) error {
	s := "false"
	if x {
		s = "true"
	}
	_, err := io.WriteString(w, s)
	return err
}

// Integer represents an integer constant in a PDF file.
type Integer int64

// PDF implements the Object interface.
func (x Integer) PDF(w io.Writer) error {
	_, err := io.WriteString(w, strconv.FormatInt(int64(x), 10))
	return err
}

// Real represents a real number in a PDF file.
type Real float64

// PDF implements the Object interface.
func (x Real) PDF(w io.Writer) error {
	s := strconv.FormatFloat(float64(x), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += "."
	}
	_, err := io.WriteString(w, s)
	return err
}

// Number returns a PDF representation of x which uses an Integer where
// this is possible without loss of precision.
func Number(x float64) Object {
	if x == float64(int64(x)) && x > -1e15 && x < 1e15 {
		return Integer(x)
	}
	return Real(x)
}

// String represents a raw string in a PDF file.  The character set encoding,
// if any, is determined by the context.
type String []byte

// PDF implements the Object interface.
//
// Strings which consist mostly of printable ASCII characters are written in
// literal form, all other strings are written in hexadecimal form.
func (x String) PDF(w io.Writer) error {
	depth := 0
	balanced := true
	for _, c := range x {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				balanced = false
			}
		}
	}
	balanced = balanced && depth == 0

	special := 0
	for _, c := range x {
		if needsEscape(c, balanced) {
			special++
		}
	}

	buf := &bytes.Buffer{}
	if 3*special > len(x) {
		fmt.Fprintf(buf, "<%x>", []byte(x))
		_, err := w.Write(buf.Bytes())
		return err
	}

	buf.WriteByte('(')
	for _, c := range x {
		if !needsEscape(c, balanced) {
			buf.WriteByte(c)
			continue
		}
		switch c {
		case '\r':
			buf.WriteString(`\r`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		default:
			fmt.Fprintf(buf, `\%03o`, c)
		}
	}
	buf.WriteByte(')')
	_, err := w.Write(buf.Bytes())
	return err
}

func needsEscape(c byte, balanced bool) bool {
	switch {
	case c == '\n' || c == '\t':
		return false
	case c == '\r':
		// a bare CR in a literal string is read as a newline
		return true
	case c == '\\':
		return true
	case c == '(' || c == ')':
		return !balanced
	}
	return c < 32 || c >= 127
}

// Name represents a name object in a PDF file.
type Name string

// PDF implements the Object interface.
func (x Name) PDF(w io.Writer) error {
	buf := &bytes.Buffer{}
	buf.WriteByte('/')
	for i := 0; i < len(x); i++ {
		c := x[i]
		if c <= 32 || c >= 127 || c == '#' || isDelimiter[c] {
			fmt.Fprintf(buf, "#%02x", c)
		} else {
			buf.WriteByte(c)
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Array represents an array of objects in a PDF file.
type Array []Object

// PDF implements the Object interface.
func (x Array) PDF(w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	for i, obj := range x {
		if i > 0 {
			if _, err := io.WriteString(w, " "); err != nil {
				return err
			}
		}
		if err := writeObject(w, obj); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]")
	return err
}

func (x Array) String() string {
	buf := &bytes.Buffer{}
	_ = x.PDF(buf)
	return buf.String()
}

// Dict represents a dictionary object in a PDF file.
type Dict map[Name]Object

// PDF implements the Object interface.
// Keys are written in sorted order, entries with nil value are omitted.
func (x Dict) PDF(w io.Writer) error {
	keys := make([]Name, 0, len(x))
	for key, val := range x {
		if val != nil {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	if _, err := io.WriteString(w, "<<"); err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := key.PDF(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, " "); err != nil {
			return err
		}
		if err := x[key].PDF(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n>>")
	return err
}

func (x Dict) String() string {
	buf := &bytes.Buffer{}
	_ = x.PDF(buf)
	return buf.String()
}

// Clone returns a shallow copy of the dictionary.
// Objects obtained from a Reader may be shared, and must be cloned
// before they are modified.
func (x Dict) Clone() Dict {
	if x == nil {
		return nil
	}
	res := make(Dict, len(x))
	for k, v := range x {
		res[k] = v
	}
	return res
}

// Stream represents a stream object in a PDF file.
// R yields the stream data, with all filters still applied.
type Stream struct {
	Dict
	R io.Reader
}

// PDF implements the Object interface.
//
// The stream data is read from R, and the Length entry is set to the
// number of bytes read.  The stream can only be written once.
func (x *Stream) PDF(w io.Writer) error {
	var data []byte
	if x.R != nil {
		var err error
		data, err = io.ReadAll(x.R)
		if err != nil {
			return err
		}
	}
	dict := x.Dict.Clone()
	if dict == nil {
		dict = Dict{}
	}
	dict["Length"] = Integer(len(data))
	if err := dict.PDF(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\nstream\n"); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\nendstream")
	return err
}

// Reference represents a reference to an indirect object in a PDF file.
// The lower 32 bits hold the object number, the next 16 bits hold the
// generation number.
type Reference uint64

// NewReference returns a new reference to the given object.
func NewReference(number uint32, generation uint16) Reference {
	return Reference(uint64(number) | uint64(generation)<<32)
}

// Number returns the object number of the reference.
func (x Reference) Number() uint32 {
	return uint32(x)
}

// Generation returns the generation number of the reference.
func (x Reference) Generation() uint16 {
	return uint16(x >> 32)
}

func (x Reference) String() string {
	return fmt.Sprintf("%d %d R", x.Number(), x.Generation())
}

// PDF implements the Object interface.
func (x Reference) PDF(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d %d R", x.Number(), x.Generation())
	return err
}

// Operator is a keyword in a content stream.
// Operators only occur inside content streams, never as part of a PDF
// object.
type Operator string

// PDF implements the Object interface.
func (x Operator) PDF(w io.Writer) error {
	_, err := io.WriteString(w, string(x))
	return err
}

func writeObject(w io.Writer, obj Object) error {
	if obj == nil {
		_, err := io.WriteString(w, "null")
		return err
	}
	return obj.PDF(w)
}

// Format returns the PDF representation of obj as a string.
func Format(obj Object) string {
	buf := &bytes.Buffer{}
	_ = writeObject(buf, obj)
	return buf.String()
}

var isSpace = map[byte]bool{
	0:  true,
	9:  true,
	10: true,
	12: true,
	13: true,
	32: true,
}

var isDelimiter = map[byte]bool{
	'(': true,
	')': true,
	'<': true,
	'>': true,
	'[': true,
	']': true,
	'{': true,
	'}': true,
	'/': true,
	'%': true,
}
