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
	"io"
	"strconv"
)

const lexerBufSize = 4096

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokObject
	tokKeyword
	tokArrayOpen
	tokArrayClose
	tokDictOpen
	tokDictClose
)

type token struct {
	kind tokenKind
	obj  Object // for tokObject
	kw   string // for tokKeyword
	pos  int64
}

// lexer splits PDF syntax into tokens.  It is used both for objects in
// PDF files and for content streams.
type lexer struct {
	r      io.Reader
	buf    []byte
	pos    int   // read position in buf
	end    int   // end of valid data in buf
	offset int64 // input position of buf[0]
	eof    bool
	err    error
}

func newLexer(r io.Reader, base int64) *lexer {
	return &lexer{
		r:      r,
		buf:    make([]byte, lexerBufSize),
		offset: base,
	}
}

// Pos returns the input position of the next unread byte.
func (lx *lexer) Pos() int64 {
	return lx.offset + int64(lx.pos)
}

// fill makes sure that at least n bytes are available in the buffer,
// unless the end of input is reached first.  The return value is the
// number of bytes available.
func (lx *lexer) fill(n int) int {
	for lx.end-lx.pos < n && !lx.eof {
		if lx.pos > 0 {
			copy(lx.buf, lx.buf[lx.pos:lx.end])
			lx.offset += int64(lx.pos)
			lx.end -= lx.pos
			lx.pos = 0
		}
		if lx.end == len(lx.buf) {
			newBuf := make([]byte, 2*len(lx.buf))
			copy(newBuf, lx.buf[:lx.end])
			lx.buf = newBuf
		}
		k, err := lx.r.Read(lx.buf[lx.end:])
		lx.end += k
		if err == io.EOF {
			lx.eof = true
		} else if err != nil {
			lx.eof = true
			lx.err = err
		}
	}
	return lx.end - lx.pos
}

func (lx *lexer) peek() (byte, bool) {
	if lx.fill(1) < 1 {
		return 0, false
	}
	return lx.buf[lx.pos], true
}

func (lx *lexer) readByte() (byte, bool) {
	c, ok := lx.peek()
	if ok {
		lx.pos++
	}
	return c, ok
}

// hasPrefix checks whether the unread input starts with pat.
func (lx *lexer) hasPrefix(pat string) bool {
	if lx.fill(len(pat)) < len(pat) {
		return false
	}
	return string(lx.buf[lx.pos:lx.pos+len(pat)]) == pat
}

// skipSpace skips white space and comments.
func (lx *lexer) skipSpace() {
	for {
		c, ok := lx.peek()
		if !ok {
			return
		}
		switch {
		case isSpace[c]:
			lx.pos++
		case c == '%':
			for {
				c, ok := lx.peek()
				if !ok || c == '\r' || c == '\n' {
					break
				}
				lx.pos++
			}
		default:
			return
		}
	}
}

// next returns the next token from the input.
func (lx *lexer) next() (token, error) {
	lx.skipSpace()
	pos := lx.Pos()
	c, ok := lx.peek()
	if !ok {
		if lx.err != nil {
			return token{}, lx.err
		}
		return token{kind: tokEOF, pos: pos}, nil
	}

	switch {
	case c == '/':
		lx.pos++
		name, err := lx.readName()
		return token{kind: tokObject, obj: name, pos: pos}, err
	case c == '(':
		lx.pos++
		s, err := lx.readLiteralString()
		return token{kind: tokObject, obj: s, pos: pos}, err
	case c == '<':
		if lx.hasPrefix("<<") {
			lx.pos += 2
			return token{kind: tokDictOpen, pos: pos}, nil
		}
		lx.pos++
		s, err := lx.readHexString()
		return token{kind: tokObject, obj: s, pos: pos}, err
	case c == '>':
		if lx.hasPrefix(">>") {
			lx.pos += 2
			return token{kind: tokDictClose, pos: pos}, nil
		}
		lx.pos++
		return token{}, &MalformedFileError{Pos: pos, Err: errors.New("unexpected '>'")}
	case c == '[':
		lx.pos++
		return token{kind: tokArrayOpen, pos: pos}, nil
	case c == ']':
		lx.pos++
		return token{kind: tokArrayClose, pos: pos}, nil
	case c == '{' || c == '}':
		lx.pos++
		return token{kind: tokKeyword, kw: string(c), pos: pos}, nil
	case c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.':
		return token{kind: tokObject, obj: lx.readNumber(), pos: pos}, nil
	case c == ')':
		lx.pos++
		return token{}, &MalformedFileError{Pos: pos, Err: errors.New("unexpected ')'")}
	}

	var kw []byte
	for {
		c, ok := lx.peek()
		if !ok || isSpace[c] || isDelimiter[c] {
			break
		}
		kw = append(kw, c)
		lx.pos++
	}
	switch string(kw) {
	case "true":
		return token{kind: tokObject, obj: Bool(true), pos: pos}, nil
	case "false":
		return token{kind: tokObject, obj: Bool(false), pos: pos}, nil
	case "null":
		return token{kind: tokObject, obj: nil, pos: pos}, nil
	}
	return token{kind: tokKeyword, kw: string(kw), pos: pos}, nil
}

func (lx *lexer) readNumber() Object {
	var raw []byte
	isReal := false
	for {
		c, ok := lx.peek()
		if !ok {
			break
		}
		if c == '.' {
			isReal = true
		} else if !(c >= '0' && c <= '9' || c == '+' || c == '-') {
			break
		}
		raw = append(raw, c)
		lx.pos++
	}

	// Be lenient with malformed numbers like "--5" or "5-", which occur in
	// files written by some buggy PDF generators.
	if k := bytes.LastIndexAny(raw, "+-"); k > 0 {
		digits := bytes.Trim(raw[:k], "+-")
		if len(digits) > 0 {
			raw = raw[:k]
		} else {
			raw = raw[k:]
		}
	}

	if !isReal {
		x, err := strconv.ParseInt(string(raw), 10, 64)
		if err == nil {
			return Integer(x)
		}
	}
	x, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return Integer(0)
	}
	return Real(x)
}

func (lx *lexer) readName() (Name, error) {
	var name []byte
	for {
		c, ok := lx.peek()
		if !ok || isSpace[c] || isDelimiter[c] {
			break
		}
		lx.pos++
		if c == '#' && lx.fill(2) >= 2 {
			x, err := strconv.ParseUint(string(lx.buf[lx.pos:lx.pos+2]), 16, 8)
			if err == nil {
				lx.pos += 2
				c = byte(x)
			}
		}
		name = append(name, c)
	}
	return Name(name), nil
}

func (lx *lexer) readLiteralString() (String, error) {
	start := lx.Pos()
	var res []byte
	depth := 0
	for {
		c, ok := lx.readByte()
		if !ok {
			return nil, &MalformedFileError{Pos: start, Err: errors.New("unterminated string")}
		}
		switch c {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return String(res), nil
			}
			depth--
		case '\r':
			if d, ok := lx.peek(); ok && d == '\n' {
				lx.pos++
			}
			c = '\n'
		case '\\':
			c, ok = lx.readByte()
			if !ok {
				continue
			}
			switch c {
			case 'n':
				c = '\n'
			case 'r':
				c = '\r'
			case 't':
				c = '\t'
			case 'b':
				c = '\b'
			case 'f':
				c = '\f'
			case '\r':
				if d, ok := lx.peek(); ok && d == '\n' {
					lx.pos++
				}
				continue
			case '\n':
				continue
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := c - '0'
				for i := 0; i < 2; i++ {
					d, ok := lx.peek()
					if !ok || d < '0' || d > '7' {
						break
					}
					val = val*8 + (d - '0')
					lx.pos++
				}
				c = val
			}
		}
		res = append(res, c)
	}
}

func (lx *lexer) readHexString() (String, error) {
	start := lx.Pos()
	var res []byte
	var hi byte
	half := false
	for {
		c, ok := lx.readByte()
		if !ok {
			return nil, &MalformedFileError{Pos: start, Err: errors.New("unterminated hex string")}
		}
		var d byte
		switch {
		case c == '>':
			if half {
				res = append(res, hi<<4)
			}
			return String(res), nil
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		case isSpace[c]:
			continue
		default:
			return nil, &MalformedFileError{Pos: lx.Pos() - 1, Err: errors.New("invalid hex string")}
		}
		if half {
			res = append(res, hi<<4|d)
		} else {
			hi = d
		}
		half = !half
	}
}

// skipEOL skips a single end-of-line marker, as found after the "stream"
// keyword.
func (lx *lexer) skipEOL() {
	c, ok := lx.peek()
	if !ok {
		return
	}
	if c == '\r' {
		lx.pos++
		c, ok = lx.peek()
	}
	if ok && c == '\n' {
		lx.pos++
	}
}

// parser assembles tokens into PDF objects.
type parser struct {
	lx      *lexer
	pending []token
}

func newParser(r io.Reader, base int64) *parser {
	return &parser{lx: newLexer(r, base)}
}

func (p *parser) nextToken() (token, error) {
	if n := len(p.pending); n > 0 {
		tok := p.pending[n-1]
		p.pending = p.pending[:n-1]
		return tok, nil
	}
	return p.lx.next()
}

func (p *parser) unread(tok token) {
	p.pending = append(p.pending, tok)
}

// maxDepth limits the nesting of arrays and dictionaries.
const maxDepth = 256

// readObject reads the next object.  Keywords which are not part of
// an object are returned as Operator values.
func (p *parser) readObject() (Object, error) {
	return p.readDepth(0)
}

func (p *parser) readDepth(depth int) (Object, error) {
	if depth > maxDepth {
		return nil, &MalformedFileError{Pos: p.lx.Pos(), Err: errors.New("objects nested too deeply")}
	}
	tok, err := p.nextToken()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokEOF:
		return nil, io.EOF
	case tokKeyword:
		return Operator(tok.kw), nil
	case tokArrayOpen:
		var arr Array
		for {
			tok, err := p.nextToken()
			if err != nil {
				return nil, err
			}
			switch tok.kind {
			case tokArrayClose:
				if arr == nil {
					arr = Array{}
				}
				return arr, nil
			case tokEOF:
				return nil, &MalformedFileError{Pos: tok.pos, Err: errors.New("unterminated array")}
			}
			p.unread(tok)
			obj, err := p.readDepth(depth + 1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, obj)
		}
	case tokDictOpen:
		dict := Dict{}
		for {
			tok, err := p.nextToken()
			if err != nil {
				return nil, err
			}
			if tok.kind == tokDictClose {
				return dict, nil
			}
			key, ok := tok.obj.(Name)
			if tok.kind != tokObject || !ok {
				return nil, &MalformedFileError{Pos: tok.pos, Err: errors.New("dictionary key is not a name")}
			}
			val, err := p.readDepth(depth + 1)
			if err != nil {
				return nil, err
			}
			if op, isOp := val.(Operator); isOp {
				return nil, &MalformedFileError{Pos: tok.pos, Err: errors.New("unexpected keyword " + string(op))}
			}
			if val != nil {
				dict[key] = val
			}
		}
	case tokObject:
		a, isInt := tok.obj.(Integer)
		if !isInt || a < 0 {
			return tok.obj, nil
		}
		// check for a reference "a b R"
		tok2, err := p.nextToken()
		if err != nil {
			return nil, err
		}
		if b, ok := tok2.obj.(Integer); ok && tok2.kind == tokObject && b >= 0 {
			tok3, err := p.nextToken()
			if err != nil {
				return nil, err
			}
			if tok3.kind == tokKeyword && tok3.kw == "R" {
				return NewReference(uint32(a), uint16(b)), nil
			}
			p.unread(tok3)
		}
		p.unread(tok2)
		return a, nil
	}
	return nil, &MalformedFileError{Pos: tok.pos, Err: errors.New("unexpected delimiter")}
}

// expectKeyword reads the next token and checks that it is the given
// keyword.
func (p *parser) expectKeyword(kw string) error {
	tok, err := p.nextToken()
	if err != nil {
		return err
	}
	if tok.kind != tokKeyword || tok.kw != kw {
		return &MalformedFileError{Pos: tok.pos, Err: errors.New("expected \"" + kw + "\"")}
	}
	return nil
}

// Parse reads a single direct object in PDF syntax, for example
// "<< /Type /Example >>".  Empty input gives a nil object.
func Parse(data []byte) (Object, error) {
	p := newParser(bytes.NewReader(data), 0)
	obj, err := p.readObject()
	if err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if op, ok := obj.(Operator); ok {
		return nil, &MalformedFileError{Err: errors.New("unexpected keyword " + string(op))}
	}
	return obj, nil
}
