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
	"io"
)

// ContentScanner splits a content stream into operators and their
// arguments.
//
// Inline images are returned as a single "BI" operator, with the image
// dictionary as the only argument.  The image data is skipped.
type ContentScanner struct {
	p    *parser
	op   Operator
	args []Object
	err  error
}

// NewContentScanner returns a scanner which reads content stream data
// from r.
func NewContentScanner(r io.Reader) *ContentScanner {
	return &ContentScanner{p: newParser(r, 0)}
}

// Scan advances to the next operator.  It returns false at the end of the
// input or when an error occurs.
func (s *ContentScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	s.args = s.args[:0]
	for {
		obj, err := s.p.readObject()
		if err == io.EOF {
			return false
		} else if err != nil {
			s.err = err
			return false
		}
		op, isOp := obj.(Operator)
		if !isOp {
			s.args = append(s.args, obj)
			continue
		}
		s.op = op
		if op == "BI" {
			dict, err := s.readInlineImage()
			if err != nil {
				s.err = err
				return false
			}
			s.args = append(s.args[:0], dict)
		}
		return true
	}
}

// Op returns the current operator.
func (s *ContentScanner) Op() Operator {
	return s.op
}

// Args returns the arguments of the current operator.  The slice is
// reused by the next call to Scan.
func (s *ContentScanner) Args() []Object {
	return s.args
}

// Err returns the first error encountered by Scan.
func (s *ContentScanner) Err() error {
	return s.err
}

// readInlineImage reads the image dictionary following "BI" and skips
// the image data up to and including "EI".
//
// PDF 2.0 sections: 8.9.7
func (s *ContentScanner) readInlineImage() (Dict, error) {
	dict := Dict{}
	for {
		obj, err := s.p.readObject()
		if err != nil {
			return nil, err
		}
		if op, ok := obj.(Operator); ok {
			if op == "ID" {
				break
			}
			return nil, Errorf("unexpected %q in inline image", op)
		}
		key, ok := obj.(Name)
		if !ok {
			return nil, Errorf("invalid inline image dictionary")
		}
		val, err := s.p.readObject()
		if err != nil {
			return nil, err
		}
		dict[key] = val
	}

	lx := s.p.lx
	lx.readByte() // single white-space character after "ID"
	var prev2, prev1 byte = ' ', ' '
	for {
		c, ok := lx.readByte()
		if !ok {
			return nil, Errorf("unterminated inline image")
		}
		if prev1 == 'E' && c == 'I' && isSpace[prev2] {
			next, ok := lx.peek()
			if !ok || isSpace[next] || isDelimiter[next] {
				return dict, nil
			}
		}
		prev2, prev1 = prev1, c
	}
}
