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

package information

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/destination"
	"seehuhn.de/go/annotate/extract"
	"seehuhn.de/go/annotate/outline"
	"seehuhn.de/go/annotate/pagespace"
)

// The information file starts with a four byte, big-endian version tag.
// The rest of the file is a single zstd frame, containing the sections
// header, pages, outline and annotations in this order.  Each section
// starts with a one-byte tag.  Integers are varint encoded, floating
// point numbers use the IEEE 754 bit patterns.
const (
	tagHeader      = 'H'
	tagPages       = 'P'
	tagOutline     = 'O'
	tagAnnotations = 'A'
)

// Limits for decoding, to protect against corrupt files.
const (
	maxPayload      = 1 << 30
	maxOutlineDepth = 256
)

var (
	zEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zDecoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxPayload))
)

func versionTag(buf []byte) uint32 {
	if len(buf) < 4 {
		return VersionUnknown
	}
	return binary.BigEndian.Uint32(buf)
}

// Encode serializes the contents of an information store.
func Encode(d *Data) ([]byte, error) {
	e := &encoder{}
	e.header(d)
	e.pages(d.Pages)
	e.byte(tagOutline)
	e.element(d.Outline)
	if err := e.annotations(d.Annotations); err != nil {
		return nil, err
	}

	res := binary.BigEndian.AppendUint32(nil, CurrentVersion)
	return zEncoder.EncodeAll(e.buf, res), nil
}

// Decode reads data written by Encode.  Files with a different version
// give ErrInvalidFormat.
func Decode(buf []byte) (*Data, error) {
	if versionTag(buf) != CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version 0x%08x", ErrInvalidFormat, versionTag(buf))
	}
	payload, err := zDecoder.DecodeAll(buf[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	dec := &decoder{buf: payload}
	d := &Data{}
	dec.header(d)
	d.Pages = dec.pages()
	dec.expect(tagOutline)
	d.Outline = dec.element(0)
	d.Annotations = dec.annotations(len(d.Pages))
	if dec.err == nil && len(dec.buf) > 0 {
		dec.fail("trailing data")
	}
	if dec.err != nil {
		return nil, dec.err
	}
	return d, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) byte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) bool(b bool) {
	if b {
		e.byte(1)
	} else {
		e.byte(0)
	}
}

func (e *encoder) uint(x uint64) { e.buf = binary.AppendUvarint(e.buf, x) }
func (e *encoder) int(x int64)   { e.buf = binary.AppendVarint(e.buf, x) }

func (e *encoder) float(x float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(x))
}

func (e *encoder) float32(x float64) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(float32(x)))
}

func (e *encoder) bytes(b []byte) {
	e.uint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) string(s string) {
	e.uint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) time(t time.Time) {
	if t.IsZero() {
		e.bool(false)
		return
	}
	e.bool(true)
	e.int(t.UnixNano())
}

func (e *encoder) vec(v vec.Vec2) {
	e.float(v.X)
	e.float(v.Y)
}

func (e *encoder) rect(r pagespace.Rect) {
	e.float(r.Left)
	e.float(r.Top)
	e.float(r.Right)
	e.float(r.Bottom)
}

func (e *encoder) header(d *Data) {
	e.byte(tagHeader)
	e.uint(uint64(d.Permissions))
	e.bool(d.Processed)
	e.bool(d.Modified)
	e.int(d.Source.Size)
	e.buf = append(e.buf, d.Source.Sum[:]...)
}

func (e *encoder) pages(pages []Page) {
	e.byte(tagPages)
	e.uint(uint64(len(pages)))
	for _, p := range pages {
		box := p.Geometry.CropBox
		e.float(box.LLx)
		e.float(box.LLy)
		e.float(box.URx)
		e.float(box.URy)
		e.uint(uint64(p.Geometry.Rotate / 90))

		if p.Text == nil {
			e.bool(false)
			continue
		}
		e.bool(true)
		e.string(p.Text.Text)
		e.uint(uint64(len(p.Text.Boxes)))
		for _, b := range p.Text.Boxes {
			// box coordinates are stored with single precision
			e.float32(b.Left)
			e.float32(b.Top)
			e.float32(b.Right)
			e.float32(b.Bottom)
		}
	}
}

func (e *encoder) element(el *outline.Element) {
	if el == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	e.string(el.Title)
	e.bool(el.IsRoot)
	e.bool(el.Open)
	e.dest(el.Dest)
	e.string(el.URL)
	e.uint(uint64(len(el.Children)))
	for _, child := range el.Children {
		e.element(child)
	}
}

func (e *encoder) dest(d *destination.Destination) {
	if d == nil {
		e.bool(false)
		return
	}
	e.bool(true)
	e.byte(byte(d.Fit))
	e.uint(uint64(d.Page))
	e.vec(d.TopLeft)
	e.vec(d.BottomRight)
	e.float(d.Zoom)
}

func (e *encoder) color(c annotation.Color) {
	e.byte(byte(c.Space))
	for i := range c.Space.NumComponents() {
		e.float(c.Values[i])
	}
	e.float(c.Alpha)
}

func (e *encoder) annotations(annots []annotation.Annotation) error {
	e.byte(tagAnnotations)
	e.uint(uint64(len(annots)))
	for _, a := range annots {
		e.byte(byte(a.Kind()))

		c := a.Base()
		e.string(c.ID)
		e.uint(uint64(c.Page))
		e.rect(c.Rect)
		e.uint(uint64(c.Flags))
		e.time(c.Modified)
		e.color(c.Color)

		if m := annotation.GetMarkup(a); m != nil {
			e.string(m.Author)
			e.time(m.Created)
			e.string(m.Contents)
		}

		switch a := a.(type) {
		case *annotation.Note:
			e.string(a.Icon)
			e.bool(a.Open)
		case *annotation.TextMarkup:
			e.byte(byte(a.Type))
			e.uint(uint64(len(a.Rects)))
			for _, r := range a.Rects {
				e.rect(r)
			}
			e.string(a.Text)
		case *annotation.Ink:
			e.float(a.Width)
			e.uint(uint64(len(a.Paths)))
			for _, path := range a.Paths {
				e.uint(uint64(len(path)))
				for _, p := range path {
					e.vec(p)
				}
			}
		case *annotation.FileAttachment:
			e.string(a.FileName)
			e.string(a.Description)
			e.string(a.MimeType)
			e.bytes(a.Data)
		case *annotation.Sound:
			e.bytes(a.Data)
			e.float(a.SampleRate)
			e.uint(uint64(a.Channels))
			e.uint(uint64(a.BitsPerSample))
			e.byte(byte(a.Encoding))
			e.string(a.Compression)
			e.string(a.CompressionParams)
		case *annotation.FreeText:
			for _, x := range a.Transform {
				e.float(x)
			}
			e.rect(a.OriginalRect)
			e.byte(byte(a.Justification))
			e.string(a.FontName)
			e.float(a.FontSize)
		case *annotation.StraightLine:
			e.vec(a.Start)
			e.vec(a.End)
			e.float(a.Width)
		case *annotation.Link:
			e.string(a.URL)
			e.dest(a.Dest)
		case *annotation.Bookmark:
			e.string(a.Name)
		default:
			return fmt.Errorf("cannot encode annotation of type %T", a)
		}
	}
	return nil
}

// decoder reads the payload.  After the first error, all methods return
// zero values and the error is kept in err.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail(msg string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrInvalidFormat, msg)
	}
	d.buf = nil
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf) {
		d.fail("unexpected end of data")
		return nil
	}
	res := d.buf[:n]
	d.buf = d.buf[n:]
	return res
}

func (d *decoder) byte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) expect(tag byte) {
	if d.byte() != tag && d.err == nil {
		d.fail(fmt.Sprintf("missing section %q", tag))
	}
}

func (d *decoder) bool() bool {
	switch d.byte() {
	case 0:
		return false
	case 1:
		return true
	}
	d.fail("invalid boolean")
	return false
}

func (d *decoder) uint() uint64 {
	if d.err != nil {
		return 0
	}
	x, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail("invalid integer")
		return 0
	}
	d.buf = d.buf[n:]
	return x
}

func (d *decoder) int() int64 {
	if d.err != nil {
		return 0
	}
	x, n := binary.Varint(d.buf)
	if n <= 0 {
		d.fail("invalid integer")
		return 0
	}
	d.buf = d.buf[n:]
	return x
}

// count reads a length, which must be plausible given that each element
// occupies at least minSize bytes.
func (d *decoder) count(minSize int) int {
	n := d.uint()
	if n > uint64(len(d.buf)/minSize) {
		d.fail("invalid length")
		return 0
	}
	return int(n)
}

func (d *decoder) float() float64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (d *decoder) float32() float64 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

func (d *decoder) bytes() []byte {
	n := d.count(1)
	b := d.take(n)
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

func (d *decoder) string() string {
	return string(d.take(d.count(1)))
}

func (d *decoder) time() time.Time {
	if !d.bool() {
		return time.Time{}
	}
	return time.Unix(0, d.int())
}

func (d *decoder) vec() vec.Vec2 {
	return vec.Vec2{X: d.float(), Y: d.float()}
}

func (d *decoder) rect() pagespace.Rect {
	return pagespace.Rect{Left: d.float(), Top: d.float(), Right: d.float(), Bottom: d.float()}
}

func (d *decoder) header(data *Data) {
	d.expect(tagHeader)
	data.Permissions = Permissions(d.uint())
	data.Processed = d.bool()
	data.Modified = d.bool()
	data.Source.Size = d.int()
	copy(data.Source.Sum[:], d.take(len(data.Source.Sum)))
}

func (d *decoder) pages() []Page {
	d.expect(tagPages)
	n := d.count(34)
	if n == 0 {
		return nil
	}
	pages := make([]Page, n)
	for i := range pages {
		p := &pages[i]
		p.Geometry.CropBox = rect.Rect{LLx: d.float(), LLy: d.float(), URx: d.float(), URy: d.float()}
		rot := d.uint()
		if rot > 3 {
			d.fail("invalid rotation")
		}
		p.Geometry.Rotate = int(rot) * 90

		if !d.bool() {
			continue
		}
		text := &extract.Text{Text: d.string()}
		numBoxes := d.count(16)
		if numBoxes > 0 {
			text.Boxes = make([]pagespace.Rect, numBoxes)
			for j := range text.Boxes {
				text.Boxes[j] = pagespace.Rect{
					Left: d.float32(), Top: d.float32(), Right: d.float32(), Bottom: d.float32(),
				}
			}
		}
		p.Text = text
	}
	if d.err != nil {
		return nil
	}
	return pages
}

func (d *decoder) element(depth int) *outline.Element {
	if !d.bool() {
		return nil
	}
	if depth > maxOutlineDepth {
		d.fail("outline too deep")
		return nil
	}
	el := &outline.Element{
		Title:  d.string(),
		IsRoot: d.bool(),
		Open:   d.bool(),
		Dest:   d.dest(),
		URL:    d.string(),
	}
	n := d.count(1)
	for range n {
		child := d.element(depth + 1)
		if child == nil {
			d.fail("missing outline element")
			return nil
		}
		el.Children = append(el.Children, child)
	}
	return el
}

func (d *decoder) dest() *destination.Destination {
	if !d.bool() {
		return nil
	}
	return &destination.Destination{
		Fit:         destination.Fit(d.byte()),
		Page:        int(d.uint()),
		TopLeft:     d.vec(),
		BottomRight: d.vec(),
		Zoom:        d.float(),
	}
}

func (d *decoder) color() annotation.Color {
	var c annotation.Color
	c.Space = annotation.ColorSpace(d.byte())
	if c.Space > annotation.ColorCMYK {
		d.fail("invalid color space")
		return c
	}
	for i := range c.Space.NumComponents() {
		c.Values[i] = d.float()
	}
	c.Alpha = d.float()
	return c
}

var errUnknownKind = errors.New("unknown annotation kind")

func (d *decoder) annotations(numPages int) []annotation.Annotation {
	d.expect(tagAnnotations)
	n := d.count(8)
	var res []annotation.Annotation
	for range n {
		a := d.annotation()
		if d.err != nil {
			return nil
		}
		if page := a.Base().Page; page >= numPages {
			d.fail("annotation on missing page")
			return nil
		}
		res = append(res, a)
	}
	return res
}

func (d *decoder) annotation() annotation.Annotation {
	kind := annotation.Kind(d.byte())

	var c annotation.Common
	c.ID = d.string()
	page := d.uint()
	if page > math.MaxInt32 {
		d.fail("invalid page number")
	}
	c.Page = int(page)
	c.Rect = d.rect()
	c.Flags = annotation.Flags(d.uint())
	c.Modified = d.time()
	c.Color = d.color()

	var m annotation.Markup
	if kind.IsMarkup() {
		m.Author = d.string()
		m.Created = d.time()
		m.Contents = d.string()
	}

	switch kind {
	case annotation.KindNote:
		return &annotation.Note{Common: c, Markup: m, Icon: d.string(), Open: d.bool()}
	case annotation.KindTextMarkup:
		a := &annotation.TextMarkup{Common: c, Markup: m}
		a.Type = annotation.MarkupType(d.byte())
		if a.Type > annotation.StrikeOut {
			d.fail("invalid markup type")
		}
		numRects := d.count(32)
		for range numRects {
			a.Rects = append(a.Rects, d.rect())
		}
		a.Text = d.string()
		return a
	case annotation.KindInk:
		a := &annotation.Ink{Common: c, Markup: m}
		a.Width = d.float()
		numPaths := d.count(1)
		for range numPaths {
			numPoints := d.count(16)
			path := make([]vec.Vec2, numPoints)
			for i := range path {
				path[i] = d.vec()
			}
			a.Paths = append(a.Paths, path)
		}
		return a
	case annotation.KindFileAttachment:
		return &annotation.FileAttachment{
			Common:      c,
			Markup:      m,
			FileName:    d.string(),
			Description: d.string(),
			MimeType:    d.string(),
			Data:        d.bytes(),
		}
	case annotation.KindSound:
		return &annotation.Sound{
			Common:            c,
			Markup:            m,
			Data:              d.bytes(),
			SampleRate:        d.float(),
			Channels:          int(d.uint() & math.MaxInt32),
			BitsPerSample:     int(d.uint() & math.MaxInt32),
			Encoding:          annotation.SoundEncoding(d.byte()),
			Compression:       d.string(),
			CompressionParams: d.string(),
		}
	case annotation.KindFreeText:
		a := &annotation.FreeText{Common: c, Markup: m}
		var tf matrix.Matrix
		for i := range tf {
			tf[i] = d.float()
		}
		a.Transform = tf
		a.OriginalRect = d.rect()
		a.Justification = annotation.Justification(d.byte())
		if a.Justification > annotation.Right {
			d.fail("invalid justification")
		}
		a.FontName = d.string()
		a.FontSize = d.float()
		return a
	case annotation.KindStraightLine:
		return &annotation.StraightLine{Common: c, Markup: m, Start: d.vec(), End: d.vec(), Width: d.float()}
	case annotation.KindLink:
		return &annotation.Link{Common: c, URL: d.string(), Dest: d.dest()}
	case annotation.KindBookmark:
		return &annotation.Bookmark{Common: c, Name: d.string()}
	}
	if d.err == nil {
		d.err = fmt.Errorf("%w: %w %d", ErrInvalidFormat, errUnknownKind, kind)
	}
	return nil
}
