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

package destination

import (
	"errors"
	"fmt"
	"math"

	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/pdf"
)

// Fit identifies how the target page is displayed.
type Fit uint8

// These are the explicit destination types of the PDF standard.
const (
	FitXYZ Fit = iota
	FitPage
	FitH
	FitV
	FitR
	FitB
	FitBH
	FitBV
)

var fitNames = [...]pdf.Name{"XYZ", "Fit", "FitH", "FitV", "FitR", "FitB", "FitBH", "FitBV"}

func (f Fit) String() string {
	if int(f) < len(fitNames) {
		return string(fitNames[f])
	}
	return fmt.Sprintf("destination.Fit(%d)", int(f))
}

func parseFit(name pdf.Name) (Fit, bool) {
	for i, n := range fitNames {
		if n == name {
			return Fit(i), true
		}
	}
	return 0, false
}

// Destination is a view of a page inside the document.
//
// Points are in page-space.  TopLeft is used by the XYZ, FitH, FitV, FitR,
// FitBH and FitBV types, BottomRight only by FitR.
type Destination struct {
	Fit         Fit
	Page        int
	TopLeft     vec.Vec2
	BottomRight vec.Vec2

	// Zoom is the magnification for FitXYZ.  Zero leaves the
	// magnification unchanged.
	Zoom float64
}

// Pages gives access to the page information needed to convert
// destinations.  This is implemented by *pagetree.Index.
type Pages interface {
	PageIndex(ref pdf.Reference) (int, bool)
	PageRef(pageNo int) (pdf.Reference, bool)
	Geometry(pageNo int) pagespace.Geometry
	NumPages() int
}

var errUnknownPage = errors.New("destination page not found")

// Decode reads an explicit destination array, a named destination, or a
// dictionary with a /D entry.
//
// PDF 2.0 sections: 12.3.2
func Decode(r pdf.Getter, obj pdf.Object, pages Pages) (*Destination, error) {
	obj, err := pdf.Resolve(r, obj)
	if err != nil {
		return nil, err
	}

	switch x := obj.(type) {
	case pdf.Name:
		return decodeNamed(r, pdf.String(x), pages, true)
	case pdf.String:
		return decodeNamed(r, x, pages, false)
	case pdf.Dict:
		return Decode(r, x["D"], pages)
	case pdf.Array:
		return decodeArray(r, x, pages)
	case nil:
		return nil, pdf.Errorf("missing destination")
	}
	return nil, pdf.Errorf("invalid destination %s", pdf.Format(obj))
}

func decodeArray(r pdf.Getter, a pdf.Array, pages Pages) (*Destination, error) {
	if len(a) < 1 {
		return nil, pdf.Errorf("empty destination array")
	}

	d := &Destination{Fit: FitPage}
	switch target := a[0].(type) {
	case pdf.Reference:
		idx, ok := pages.PageIndex(target)
		if !ok {
			return nil, errUnknownPage
		}
		d.Page = idx
	case pdf.Integer:
		if target < 0 || int(target) >= pages.NumPages() {
			return nil, errUnknownPage
		}
		d.Page = int(target)
	default:
		return nil, pdf.Errorf("invalid destination page %s", pdf.Format(a[0]))
	}

	if len(a) < 2 {
		return d, nil
	}
	name, err := pdf.GetName(r, a[1])
	if err != nil {
		return nil, err
	}
	fit, ok := parseFit(name)
	if !ok {
		return nil, pdf.Errorf("unknown destination type %q", name)
	}
	d.Fit = fit

	args := make([]float64, len(a)-2)
	for i, obj := range a[2:] {
		x, err := pdf.GetNumber(r, obj)
		if err != nil || obj == nil {
			x = math.NaN()
		}
		args[i] = x
	}
	arg := func(i int) float64 {
		if i < len(args) {
			return args[i]
		}
		return math.NaN()
	}

	g := pages.Geometry(d.Page)
	box := g.CropBox
	orDefault := func(x, def float64) float64 {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return def
		}
		return x
	}

	switch d.Fit {
	case FitXYZ:
		d.TopLeft = g.ToPage(orDefault(arg(0), box.LLx), orDefault(arg(1), box.URy))
		if z := arg(2); !math.IsNaN(z) && z > 0 {
			d.Zoom = z
		}
	case FitH, FitBH:
		d.TopLeft = g.ToPage(box.LLx, orDefault(arg(0), box.URy))
	case FitV, FitBV:
		d.TopLeft = g.ToPage(orDefault(arg(0), box.LLx), box.URy)
	case FitR:
		p := g.ToPage(orDefault(arg(0), box.LLx), orDefault(arg(3), box.URy))
		q := g.ToPage(orDefault(arg(2), box.URx), orDefault(arg(1), box.LLy))
		d.TopLeft = vec.Vec2{X: min(p.X, q.X), Y: min(p.Y, q.Y)}
		d.BottomRight = vec.Vec2{X: max(p.X, q.X), Y: max(p.Y, q.Y)}
	}
	return d, nil
}

// maxNameTreeDepth limits recursion in name trees.
const maxNameTreeDepth = 32

func decodeNamed(r pdf.Getter, name pdf.String, pages Pages, isName bool) (*Destination, error) {
	cat, err := catalog(r)
	if err != nil {
		return nil, err
	}

	var target pdf.Object
	if isName {
		// PDF 1.1 style: /Dests dictionary in the catalog
		dests, err := pdf.GetDict(r, cat["Dests"])
		if err != nil {
			return nil, err
		}
		target = dests[pdf.Name(name)]
	}
	if target == nil {
		names, err := pdf.GetDict(r, cat["Names"])
		if err != nil {
			return nil, err
		}
		target, err = lookupNameTree(r, names["Dests"], string(name), 0)
		if err != nil {
			return nil, err
		}
	}
	if target == nil {
		return nil, fmt.Errorf("named destination %q not found", string(name))
	}

	target, err = pdf.Resolve(r, target)
	if err != nil {
		return nil, err
	}
	switch x := target.(type) {
	case pdf.Array:
		return decodeArray(r, x, pages)
	case pdf.Dict:
		arr, err := pdf.GetArray(r, x["D"])
		if err != nil {
			return nil, err
		}
		return decodeArray(r, arr, pages)
	}
	return nil, pdf.Errorf("invalid named destination %q", string(name))
}

// CatalogGetter is implemented by readers which provide access to the
// document catalog.
type CatalogGetter interface {
	pdf.Getter
	Catalog() (pdf.Dict, error)
}

func catalog(r pdf.Getter) (pdf.Dict, error) {
	cg, ok := r.(CatalogGetter)
	if !ok {
		return nil, errors.New("named destinations need access to the catalog")
	}
	return cg.Catalog()
}

// lookupNameTree finds the value for key in a name tree.
//
// PDF 2.0 sections: 7.9.6
func lookupNameTree(r pdf.Getter, node pdf.Object, key string, depth int) (pdf.Object, error) {
	if depth > maxNameTreeDepth {
		return nil, pdf.Errorf("name tree too deep")
	}
	dict, err := pdf.GetDict(r, node)
	if err != nil || dict == nil {
		return nil, err
	}

	if names, err := pdf.GetArray(r, dict["Names"]); err == nil && names != nil {
		for i := 0; i+1 < len(names); i += 2 {
			k, err := pdf.GetString(r, names[i])
			if err == nil && string(k) == key {
				return names[i+1], nil
			}
		}
		return nil, nil
	}

	kids, err := pdf.GetArray(r, dict["Kids"])
	if err != nil {
		return nil, err
	}
	for _, kid := range kids {
		kidDict, err := pdf.GetDict(r, kid)
		if err != nil || kidDict == nil {
			continue
		}
		if limits, _ := pdf.GetArray(r, kidDict["Limits"]); len(limits) == 2 {
			lo, _ := pdf.GetString(r, limits[0])
			hi, _ := pdf.GetString(r, limits[1])
			if key < string(lo) || key > string(hi) {
				continue
			}
		}
		val, err := lookupNameTree(r, kid, key, depth+1)
		if err != nil || val != nil {
			return val, err
		}
	}
	return nil, nil
}

// Encode converts the destination into an explicit destination array.
func (d *Destination) Encode(pages Pages) (pdf.Array, error) {
	ref, ok := pages.PageRef(d.Page)
	if !ok {
		return nil, errUnknownPage
	}
	g := pages.Geometry(d.Page)
	tl := g.FromPage(d.TopLeft)

	res := pdf.Array{ref, pdf.Name(d.Fit.String())}
	switch d.Fit {
	case FitXYZ:
		var zoom pdf.Object
		if d.Zoom > 0 {
			zoom = pdf.Number(d.Zoom)
		}
		res = append(res, pdf.Number(tl.X), pdf.Number(tl.Y), zoom)
	case FitH, FitBH:
		res = append(res, pdf.Number(tl.Y))
	case FitV, FitBV:
		res = append(res, pdf.Number(tl.X))
	case FitR:
		box := g.RectFromPage(pagespace.Rect{
			Left: d.TopLeft.X, Top: d.TopLeft.Y,
			Right: d.BottomRight.X, Bottom: d.BottomRight.Y,
		})
		res = append(res, pdf.Number(box.LLx), pdf.Number(box.LLy),
			pdf.Number(box.URx), pdf.Number(box.URy))
	case FitPage, FitB:
		// no parameters
	default:
		return nil, fmt.Errorf("invalid destination type %d", d.Fit)
	}
	return res, nil
}

// Action is the target of a link or outline item: either a destination
// inside the document, or an external URL.
type Action struct {
	Dest *Destination
	URL  string
}

// DecodeTarget reads the target of a link annotation or outline item
// from the /Dest and /A entries of dict.  Unsupported action types
// result in a nil Action without an error.
//
// PDF 2.0 sections: 12.6.4.2 12.6.4.8
func DecodeTarget(r pdf.Getter, dict pdf.Dict, pages Pages) (*Action, error) {
	if destObj, ok := dict["Dest"]; ok {
		dest, err := Decode(r, destObj, pages)
		if err != nil {
			return nil, err
		}
		return &Action{Dest: dest}, nil
	}

	action, err := pdf.GetDict(r, dict["A"])
	if err != nil || action == nil {
		return nil, err
	}
	tp, err := pdf.GetName(r, action["S"])
	if err != nil {
		return nil, err
	}
	switch tp {
	case "GoTo":
		dest, err := Decode(r, action["D"], pages)
		if err != nil {
			return nil, err
		}
		return &Action{Dest: dest}, nil
	case "URI":
		uri, err := pdf.GetString(r, action["URI"])
		if err != nil {
			return nil, err
		}
		return &Action{URL: string(uri)}, nil
	}
	return nil, nil
}

// Encode stores the action in dict, using /Dest for internal
// destinations and a URI action for URLs.
func (a *Action) Encode(dict pdf.Dict, pages Pages) error {
	switch {
	case a.Dest != nil:
		arr, err := a.Dest.Encode(pages)
		if err != nil {
			return err
		}
		dict["Dest"] = arr
	case a.URL != "":
		dict["A"] = pdf.Dict{
			"S":   pdf.Name("URI"),
			"URI": pdf.String(a.URL),
		}
	default:
		return errors.New("action without target")
	}
	return nil
}
