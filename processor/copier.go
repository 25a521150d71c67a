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
	"seehuhn.de/go/annotate/pdf"
)

// A copier copies objects from the source file into the output file of
// a write job.  Every indirect object is copied at most once, and
// references are translated to the new object numbers.
type copier struct {
	r     pdf.Getter
	w     *pdf.Writer
	trans map[pdf.Reference]pdf.Reference
	omit  map[pdf.Reference]bool
}

func newCopier(w *pdf.Writer, r pdf.Getter) *copier {
	return &copier{
		r:     r,
		w:     w,
		trans: make(map[pdf.Reference]pdf.Reference),
		omit:  make(map[pdf.Reference]bool),
	}
}

// Copy copies an object, recursively.  References to omitted objects are
// replaced by null.
func (c *copier) Copy(obj pdf.Object) (pdf.Object, error) {
	switch x := obj.(type) {
	case pdf.Dict:
		return c.CopyDict(x)
	case pdf.Array:
		return c.CopyArray(x)
	case *pdf.Stream:
		dict, err := c.CopyDict(x.Dict)
		if err != nil {
			return nil, err
		}
		delete(dict, "Length") // set again when the stream is written
		return &pdf.Stream{Dict: dict, R: x.R}, nil
	case pdf.Reference:
		if c.omit[x] {
			return nil, nil
		}
		return c.CopyReference(x)
	default:
		return obj, nil
	}
}

// CopyDict copies a dictionary.  Entries which become null are dropped.
func (c *copier) CopyDict(obj pdf.Dict) (pdf.Dict, error) {
	res := pdf.Dict{}
	for key, val := range obj {
		repl, err := c.Copy(val)
		if err != nil {
			return nil, err
		}
		if repl != nil {
			res[key] = repl
		}
	}
	return res, nil
}

// CopyArray copies an array.
func (c *copier) CopyArray(obj pdf.Array) (pdf.Array, error) {
	res := make(pdf.Array, len(obj))
	for i, val := range obj {
		repl, err := c.Copy(val)
		if err != nil {
			return nil, err
		}
		res[i] = repl
	}
	return res, nil
}

// CopyReference copies an indirect object and returns its reference in
// the output file.
func (c *copier) CopyReference(obj pdf.Reference) (pdf.Reference, error) {
	newRef, ok := c.trans[obj]
	if ok {
		return newRef, nil
	}
	newRef = c.w.Alloc()
	c.trans[obj] = newRef

	val, err := pdf.Resolve(c.r, obj)
	if err != nil {
		return 0, err
	}
	trans, err := c.Copy(val)
	if err != nil {
		return 0, err
	}
	err = c.w.Put(newRef, trans)
	if err != nil {
		return 0, err
	}
	return newRef, nil
}

// Redirect makes references to origRef point to newRef.  The object
// itself is not copied; the caller writes newRef.
func (c *copier) Redirect(origRef, newRef pdf.Reference) {
	c.trans[origRef] = newRef
}

// Omit makes references to origRef become null.
func (c *copier) Omit(origRef pdf.Reference) {
	c.omit[origRef] = true
}
