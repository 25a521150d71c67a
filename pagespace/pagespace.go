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

// Package pagespace converts between PDF user space and page-space.
//
// Page-space coordinates are fractions of the displayed page area: the
// top-left corner of the visible page is (0, 0) and the bottom-right
// corner is (1, 1).  The visible area is the crop box, turned by the
// page's /Rotate value.
package pagespace

import (
	"math"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"
)

// Rect is a rectangle in page-space.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Width returns the width of the rectangle.
func (r Rect) Width() float64 {
	return r.Right - r.Left
}

// Height returns the height of the rectangle.
func (r Rect) Height() float64 {
	return r.Bottom - r.Top
}

// TopLeft returns the top-left corner of r.
func (r Rect) TopLeft() vec.Vec2 {
	return vec.Vec2{X: r.Left, Y: r.Top}
}

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return !(r.Left < r.Right && r.Top < r.Bottom)
}

// IsZero reports whether all coordinates are zero.
func (r Rect) IsZero() bool {
	return r == Rect{}
}

// Union returns the smallest rectangle containing r and other.
// Zero rectangles are ignored.
func (r Rect) Union(other Rect) Rect {
	if r.IsZero() {
		return other
	}
	if other.IsZero() {
		return r
	}
	return Rect{
		Left:   min(r.Left, other.Left),
		Top:    min(r.Top, other.Top),
		Right:  max(r.Right, other.Right),
		Bottom: max(r.Bottom, other.Bottom),
	}
}

// Intersects reports whether the two rectangles overlap with non-zero
// area.
func (r Rect) Intersects(other Rect) bool {
	return r.Left < other.Right && other.Left < r.Right &&
		r.Top < other.Bottom && other.Top < r.Bottom
}

// Contains reports whether the point p lies inside r.
func (r Rect) Contains(p vec.Vec2) bool {
	return p.X >= r.Left && p.X <= r.Right && p.Y >= r.Top && p.Y <= r.Bottom
}

// Valid reports whether r is a non-empty rectangle within the unit
// square.  A small tolerance allows for rounding errors.
func (r Rect) Valid() bool {
	const eps = 1e-6
	for _, x := range []float64{r.Left, r.Top, r.Right, r.Bottom} {
		if math.IsNaN(x) || x < -eps || x > 1+eps {
			return false
		}
	}
	return r.Left <= r.Right && r.Top <= r.Bottom &&
		(r.Left < r.Right || r.Top < r.Bottom)
}

// Normalize returns r with the corners ordered.
func (r Rect) Normalize() Rect {
	return Rect{
		Left:   min(r.Left, r.Right),
		Top:    min(r.Top, r.Bottom),
		Right:  max(r.Left, r.Right),
		Bottom: max(r.Top, r.Bottom),
	}
}

// Geometry describes the visible area of one page.
type Geometry struct {
	CropBox rect.Rect
	Rotate  int // one of 0, 90, 180, 270
}

// Size returns the width and height of the displayed page in PDF units.
func (g Geometry) Size() (float64, float64) {
	w := g.CropBox.URx - g.CropBox.LLx
	h := g.CropBox.URy - g.CropBox.LLy
	if g.Rotate == 90 || g.Rotate == 270 {
		return h, w
	}
	return w, h
}

// affine holds the coefficients of c0*x + c1*y + c2.
type affine [3]float64

func (a affine) scale(s float64) affine {
	return affine{s * a[0], s * a[1], s * a[2]}
}

func (a affine) plus(c float64) affine {
	return affine{a[0], a[1], a[2] + c}
}

// ToPageMatrix returns the matrix which maps user space coordinates to
// page-space.
func (g Geometry) ToPageMatrix() matrix.Matrix {
	w := g.CropBox.URx - g.CropBox.LLx
	h := g.CropBox.URy - g.CropBox.LLy
	if w <= 0 || h <= 0 {
		return matrix.Matrix{}
	}

	// a runs left to right, b runs top to bottom, on the unrotated page
	a := affine{1 / w, 0, -g.CropBox.LLx / w}
	b := affine{0, -1 / h, g.CropBox.URy / h}

	var u, v affine
	switch g.Rotate {
	case 90:
		u, v = b.scale(-1).plus(1), a
	case 180:
		u, v = a.scale(-1).plus(1), b.scale(-1).plus(1)
	case 270:
		u, v = b, a.scale(-1).plus(1)
	default:
		u, v = a, b
	}
	return matrix.Matrix{u[0], v[0], u[1], v[1], u[2], v[2]}
}

// FromPageMatrix returns the matrix which maps page-space coordinates to
// user space.
func (g Geometry) FromPageMatrix() matrix.Matrix {
	return invert(g.ToPageMatrix())
}

func invert(m matrix.Matrix) matrix.Matrix {
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 {
		return matrix.Matrix{}
	}
	a := m[3] / det
	b := -m[1] / det
	c := -m[2] / det
	d := m[0] / det
	return matrix.Matrix{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

func apply(m matrix.Matrix, x, y float64) vec.Vec2 {
	return vec.Vec2{
		X: m[0]*x + m[2]*y + m[4],
		Y: m[1]*x + m[3]*y + m[5],
	}
}

// ToPage converts a point from user space to page-space.
func (g Geometry) ToPage(x, y float64) vec.Vec2 {
	return apply(g.ToPageMatrix(), x, y)
}

// FromPage converts a point from page-space to user space.
func (g Geometry) FromPage(p vec.Vec2) vec.Vec2 {
	return apply(g.FromPageMatrix(), p.X, p.Y)
}

// RectToPage converts a user space rectangle to page-space.
func (g Geometry) RectToPage(r rect.Rect) Rect {
	m := g.ToPageMatrix()
	p := apply(m, r.LLx, r.LLy)
	q := apply(m, r.URx, r.URy)
	return Rect{Left: p.X, Top: p.Y, Right: q.X, Bottom: q.Y}.Normalize()
}

// RectFromPage converts a page-space rectangle to user space.
func (g Geometry) RectFromPage(r Rect) rect.Rect {
	m := g.FromPageMatrix()
	p := apply(m, r.Left, r.Top)
	q := apply(m, r.Right, r.Bottom)
	return rect.Rect{
		LLx: min(p.X, q.X),
		LLy: min(p.Y, q.Y),
		URx: max(p.X, q.X),
		URy: max(p.Y, q.Y),
	}
}

// QuadToPage converts the four corners of a quadrilateral, as found in
// /QuadPoints arrays, to the page-space bounding rectangle.
func (g Geometry) QuadToPage(q [8]float64) Rect {
	m := g.ToPageMatrix()
	var res Rect
	for i := 0; i < 8; i += 2 {
		p := apply(m, q[i], q[i+1])
		if i == 0 {
			res = Rect{Left: p.X, Top: p.Y, Right: p.X, Bottom: p.Y}
			continue
		}
		res.Left = min(res.Left, p.X)
		res.Top = min(res.Top, p.Y)
		res.Right = max(res.Right, p.X)
		res.Bottom = max(res.Bottom, p.Y)
	}
	return res
}

// RectToQuad converts a page-space rectangle into /QuadPoints order:
// upper-left, upper-right, lower-left, lower-right, as seen on the
// displayed page.
func (g Geometry) RectToQuad(r Rect) [8]float64 {
	m := g.FromPageMatrix()
	corners := [4]vec.Vec2{
		apply(m, r.Left, r.Top),
		apply(m, r.Right, r.Top),
		apply(m, r.Left, r.Bottom),
		apply(m, r.Right, r.Bottom),
	}
	var res [8]float64
	for i, c := range corners {
		res[2*i] = c.X
		res[2*i+1] = c.Y
	}
	return res
}

// DisplayMatrix returns the matrix which maps display coordinates to
// user space.  Display coordinates are measured in PDF units on the
// displayed (rotated) page, with the origin in the bottom-left corner and
// y pointing up.
func (g Geometry) DisplayMatrix() matrix.Matrix {
	return g.displayToPage().Mul(g.FromPageMatrix())
}

func (g Geometry) displayToPage() matrix.Matrix {
	w, h := g.Size()
	if w <= 0 || h <= 0 {
		return matrix.Matrix{}
	}
	return matrix.Matrix{1 / w, 0, 0, -1 / h, 0, 1}
}

// ToDisplay converts a page-space point to display coordinates.
func (g Geometry) ToDisplay(p vec.Vec2) vec.Vec2 {
	w, h := g.Size()
	return vec.Vec2{X: p.X * w, Y: (1 - p.Y) * h}
}

// RectToDisplay converts a page-space rectangle to display coordinates.
func (g Geometry) RectToDisplay(r Rect) rect.Rect {
	p := g.ToDisplay(vec.Vec2{X: r.Left, Y: r.Bottom})
	q := g.ToDisplay(vec.Vec2{X: r.Right, Y: r.Top})
	return rect.Rect{LLx: p.X, LLy: p.Y, URx: q.X, URy: q.Y}
}

// TransformedDisplayMatrix is like DisplayMatrix, but applies the
// page-space transformation t before mapping to user space.
func (g Geometry) TransformedDisplayMatrix(t matrix.Matrix) matrix.Matrix {
	return g.displayToPage().Mul(t).Mul(g.FromPageMatrix())
}

// Apply applies the matrix m to the point (x, y).
func Apply(m matrix.Matrix, x, y float64) vec.Vec2 {
	return apply(m, x, y)
}

// BoundingBox returns the bounding box of r after applying m.
func BoundingBox(m matrix.Matrix, r rect.Rect) rect.Rect {
	var res rect.Rect
	for i, c := range [4][2]float64{{r.LLx, r.LLy}, {r.URx, r.LLy}, {r.LLx, r.URy}, {r.URx, r.URy}} {
		p := apply(m, c[0], c[1])
		if i == 0 {
			res = rect.Rect{LLx: p.X, LLy: p.Y, URx: p.X, URy: p.Y}
			continue
		}
		res.LLx = min(res.LLx, p.X)
		res.LLy = min(res.LLy, p.Y)
		res.URx = max(res.URx, p.X)
		res.URy = max(res.URy, p.Y)
	}
	return res
}
