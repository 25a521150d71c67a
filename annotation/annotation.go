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

// Package annotation implements the annotation model.
//
// Annotations form a closed set of variants, each represented by a
// struct type implementing the Annotation interface.  Fields shared by all
// variants live in Common, fields shared by markup annotations in Markup.
// Code which needs to handle the variants separately switches on the
// concrete type, or on the value returned by Kind.
//
// All coordinates are in page-space, see package pagespace.
package annotation

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/destination"
	"seehuhn.de/go/annotate/pagespace"
)

// Kind identifies the variant of an annotation.
type Kind uint8

// These are the supported annotation variants.
const (
	KindNote Kind = iota + 1
	KindTextMarkup
	KindInk
	KindFileAttachment
	KindSound
	KindFreeText
	KindStraightLine
	KindLink
	KindBookmark
)

var kindNames = map[Kind]string{
	KindNote:           "note",
	KindTextMarkup:     "text markup",
	KindInk:            "ink",
	KindFileAttachment: "file attachment",
	KindSound:          "sound",
	KindFreeText:       "free text",
	KindStraightLine:   "line",
	KindLink:           "link",
	KindBookmark:       "bookmark",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("annotation.Kind(%d)", int(k))
}

// IsMarkup reports whether annotations of this kind carry Markup fields.
func (k Kind) IsMarkup() bool {
	switch k {
	case KindNote, KindTextMarkup, KindInk, KindFileAttachment, KindSound,
		KindFreeText, KindStraightLine:
		return true
	}
	return false
}

// Annotation is one of *Note, *TextMarkup, *Ink, *FileAttachment, *Sound,
// *FreeText, *StraightLine, *Link and *Bookmark.
type Annotation interface {
	// Kind returns the variant of the annotation.
	Kind() Kind

	// Base returns the fields common to all annotations.
	Base() *Common

	// Clone returns a deep copy of the annotation.
	Clone() Annotation

	isAnnotation()
}

// Common contains fields common to all annotations.
type Common struct {
	// ID identifies the annotation.  It is assigned when the annotation
	// is added to an information store, and is stored in the /NM entry of
	// the PDF annotation dictionary.
	ID string

	// Page is the zero-based page number.
	Page int

	// Rect is the location of the annotation on the page.
	Rect pagespace.Rect

	Flags Flags

	// Modified is the time of the last change.
	Modified time.Time

	Color Color
}

// Base implements the Annotation interface.
func (c *Common) Base() *Common {
	return c
}

// Markup contains fields common to all markup annotations.
type Markup struct {
	// Author is the user who created the annotation.
	// This corresponds to the /T entry in the PDF annotation dictionary.
	Author string

	// Created is the creation time of the annotation.
	Created time.Time

	// Contents is the note text of the annotation.
	Contents string
}

// GetMarkup returns the markup fields of a, or nil if a is not a markup
// annotation.
func GetMarkup(a Annotation) *Markup {
	switch a := a.(type) {
	case *Note:
		return &a.Markup
	case *TextMarkup:
		return &a.Markup
	case *Ink:
		return &a.Markup
	case *FileAttachment:
		return &a.Markup
	case *Sound:
		return &a.Markup
	case *FreeText:
		return &a.Markup
	case *StraightLine:
		return &a.Markup
	}
	return nil
}

// Transformable holds the placement of annotations which can be moved,
// scaled and rotated as a whole.
type Transformable struct {
	// Transform maps OriginalRect to the displayed position, in page-space
	// coordinates.  The zero matrix is treated as the identity.
	Transform matrix.Matrix

	// OriginalRect is the location of the annotation before the
	// transformation was applied.
	OriginalRect pagespace.Rect
}

// Matrix returns the transformation, with the zero value replaced by the
// identity matrix.
func (t *Transformable) Matrix() matrix.Matrix {
	if t.Transform == (matrix.Matrix{}) {
		return matrix.Identity
	}
	return t.Transform
}

// Note is a sticky note, shown as an icon on the page.
//
// This is stored as a /Text annotation in PDF files.
type Note struct {
	Common
	Markup

	// Icon is the name of the icon, e.g. "Comment" or "Note".
	// The empty string selects "Note".
	Icon string

	// Open specifies whether the note is initially shown expanded.
	Open bool
}

// MarkupType is the visual style of a text markup annotation.
type MarkupType uint8

// These are the supported text markup styles.
const (
	Highlight MarkupType = iota
	Underline
	StrikeOut
)

var markupSubtypes = [...]string{"Highlight", "Underline", "StrikeOut"}

func (t MarkupType) String() string {
	if int(t) < len(markupSubtypes) {
		return markupSubtypes[t]
	}
	return fmt.Sprintf("annotation.MarkupType(%d)", int(t))
}

// TextMarkup marks a piece of text on the page.
type TextMarkup struct {
	Common
	Markup

	Type MarkupType

	// Rects lists the covered areas, usually one per line of text.
	Rects []pagespace.Rect

	// Text optionally holds the marked text.
	Text string
}

// Ink is a freehand drawing.
type Ink struct {
	Common
	Markup

	// Paths are the strokes of the drawing.
	Paths [][]vec.Vec2

	// Width is the pen width in PDF units.
	Width float64
}

// FileAttachment is a file embedded in the document.
type FileAttachment struct {
	Common
	Markup

	FileName    string
	Description string
	MimeType    string
	Data        []byte
}

// SoundEncoding describes the sample format of a Sound annotation.
type SoundEncoding uint8

// These are the sample formats of the PDF standard.
const (
	SoundRaw SoundEncoding = iota
	SoundSigned
	SoundMuLaw
	SoundALaw
)

var soundEncodings = [...]string{"Raw", "Signed", "muLaw", "ALaw"}

func (e SoundEncoding) String() string {
	if int(e) < len(soundEncodings) {
		return soundEncodings[e]
	}
	return fmt.Sprintf("annotation.SoundEncoding(%d)", int(e))
}

// Sound is an embedded sound recording.
type Sound struct {
	Common
	Markup

	Data          []byte
	SampleRate    float64
	Channels      int
	BitsPerSample int
	Encoding      SoundEncoding

	// Compression is the name of the compression format, or the empty
	// string for uncompressed data.
	Compression string

	// CompressionParams holds the compression parameters in PDF syntax.
	CompressionParams string
}

// Justification is the horizontal alignment of text.
type Justification uint8

// These are the supported alignments.
const (
	Left Justification = iota
	Center
	Right
)

// FreeText is text which is shown directly on the page.
type FreeText struct {
	Common
	Markup
	Transformable

	Justification Justification

	// FontName is the name of the font.  The empty string selects
	// Helvetica.
	FontName string

	// FontSize is the font size in PDF units.  Zero selects 12.
	FontSize float64
}

// StraightLine is a single line segment.
//
// This is stored as a /Line annotation in PDF files.
type StraightLine struct {
	Common
	Markup

	Start, End vec.Vec2

	// Width is the line width in PDF units.
	Width float64
}

// Link is a clickable area which leads to another place in the document,
// or to an external URL.
type Link struct {
	Common

	// URL is the target for external links.
	URL string

	// Dest is the target for links inside the document.
	Dest *destination.Destination
}

// Bookmark is a named place in the document.  Bookmarks are stored in a
// reserved section of the document outline.
type Bookmark struct {
	Common
	Name string
}

func (*Note) Kind() Kind           { return KindNote }
func (*TextMarkup) Kind() Kind     { return KindTextMarkup }
func (*Ink) Kind() Kind            { return KindInk }
func (*FileAttachment) Kind() Kind { return KindFileAttachment }
func (*Sound) Kind() Kind          { return KindSound }
func (*FreeText) Kind() Kind       { return KindFreeText }
func (*StraightLine) Kind() Kind   { return KindStraightLine }
func (*Link) Kind() Kind           { return KindLink }
func (*Bookmark) Kind() Kind       { return KindBookmark }

func (*Note) isAnnotation()           {}
func (*TextMarkup) isAnnotation()     {}
func (*Ink) isAnnotation()            {}
func (*FileAttachment) isAnnotation() {}
func (*Sound) isAnnotation()          {}
func (*FreeText) isAnnotation()       {}
func (*StraightLine) isAnnotation()   {}
func (*Link) isAnnotation()           {}
func (*Bookmark) isAnnotation()       {}

func (a *Note) Clone() Annotation {
	res := *a
	return &res
}

func (a *TextMarkup) Clone() Annotation {
	res := *a
	res.Rects = slices.Clone(a.Rects)
	return &res
}

func (a *Ink) Clone() Annotation {
	res := *a
	res.Paths = make([][]vec.Vec2, len(a.Paths))
	for i, p := range a.Paths {
		res.Paths[i] = slices.Clone(p)
	}
	return &res
}

func (a *FileAttachment) Clone() Annotation {
	res := *a
	res.Data = bytes.Clone(a.Data)
	return &res
}

func (a *Sound) Clone() Annotation {
	res := *a
	res.Data = bytes.Clone(a.Data)
	return &res
}

func (a *FreeText) Clone() Annotation {
	res := *a
	return &res
}

func (a *StraightLine) Clone() Annotation {
	res := *a
	return &res
}

func (a *Link) Clone() Annotation {
	res := *a
	if a.Dest != nil {
		dest := *a.Dest
		res.Dest = &dest
	}
	return &res
}

func (a *Bookmark) Clone() Annotation {
	res := *a
	return &res
}

// Errors returned by Validate.
var (
	ErrPage    = errors.New("annotation page out of range")
	ErrRect    = errors.New("annotation rectangle not set or outside the page")
	ErrInvalid = errors.New("invalid annotation")
)

// Validate checks that the fields required for the annotation's variant
// are set.  Markup annotations need an author; their contents may be
// empty.  If numPages is positive, the page number is checked against
// it.
func Validate(a Annotation, numPages int) error {
	if a == nil {
		return ErrInvalid
	}
	c := a.Base()
	if c.Page < 0 || (numPages > 0 && c.Page >= numPages) {
		return ErrPage
	}
	if !c.Rect.Valid() {
		return ErrRect
	}
	if m := GetMarkup(a); m != nil && m.Author == "" {
		return fmt.Errorf("%w: markup without author", ErrInvalid)
	}

	switch a := a.(type) {
	case *TextMarkup:
		if len(a.Rects) == 0 {
			return fmt.Errorf("%w: text markup without rectangles", ErrInvalid)
		}
		for _, r := range a.Rects {
			if !r.Valid() {
				return fmt.Errorf("%w: text markup rectangle %v", ErrInvalid, r)
			}
		}
		if a.Type > StrikeOut {
			return fmt.Errorf("%w: markup type %d", ErrInvalid, a.Type)
		}
	case *Ink:
		if len(a.Paths) == 0 {
			return fmt.Errorf("%w: ink without paths", ErrInvalid)
		}
		for _, p := range a.Paths {
			if len(p) == 0 {
				return fmt.Errorf("%w: empty ink path", ErrInvalid)
			}
		}
	case *FileAttachment:
		if a.FileName == "" {
			return fmt.Errorf("%w: file attachment without file name", ErrInvalid)
		}
	case *Sound:
		if len(a.Data) == 0 || a.SampleRate <= 0 {
			return fmt.Errorf("%w: sound without samples", ErrInvalid)
		}
	case *FreeText:
		if a.FontSize < 0 {
			return fmt.Errorf("%w: negative font size", ErrInvalid)
		}
	case *Link:
		if (a.URL == "") == (a.Dest == nil) {
			return fmt.Errorf("%w: link needs exactly one of URL and destination", ErrInvalid)
		}
		if a.Dest != nil && numPages > 0 && (a.Dest.Page < 0 || a.Dest.Page >= numPages) {
			return fmt.Errorf("%w: link destination page %d", ErrInvalid, a.Dest.Page)
		}
	case *Bookmark:
		if a.Name == "" {
			return fmt.Errorf("%w: bookmark without name", ErrInvalid)
		}
	}
	return nil
}
