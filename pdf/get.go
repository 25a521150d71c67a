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
	"errors"
	"fmt"
	"math"

	"seehuhn.de/go/geom/rect"
)

// Getter represents a PDF file opened for reading.
type Getter interface {
	// Get reads an indirect object.  Missing objects are returned as nil,
	// without an error.
	Get(ref Reference) (Object, error)
}

// maxRefChain limits the length of chains of references.
const maxRefChain = 16

// Resolve resolves references to indirect objects.
//
// If obj is a Reference, the corresponding object is read from r; this is
// repeated until a direct object is found.  If obj is not a reference,
// it is returned unchanged.
func Resolve(r Getter, obj Object) (Object, error) {
	for i := 0; i < maxRefChain; i++ {
		ref, isRef := obj.(Reference)
		if !isRef {
			return obj, nil
		}
		if r == nil {
			return nil, errors.New("cannot resolve reference without a reader")
		}
		var err error
		obj, err = r.Get(ref)
		if err != nil {
			return nil, err
		}
	}
	return nil, Errorf("too many levels of indirection")
}

// GetDict resolves references and returns the dictionary obj refers to.
// If obj is null, nil is returned without an error.  Streams are
// represented by their dictionary.
func GetDict(r Getter, obj Object) (Dict, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case Dict:
		return x, nil
	case *Stream:
		return x.Dict, nil
	}
	return nil, Errorf("expected dictionary but got %T", obj)
}

// GetDictTyped is like GetDict, but also checks the /Type entry where
// present.
func GetDictTyped(r Getter, obj Object, tp Name) (Dict, error) {
	dict, err := GetDict(r, obj)
	if err != nil || dict == nil {
		return dict, err
	}
	if val, ok := dict["Type"].(Name); ok && val != tp {
		return nil, Errorf("expected dictionary of type %q but got %q", tp, val)
	}
	return dict, nil
}

// GetArray resolves references and returns the array obj refers to.
func GetArray(r Getter, obj Object) (Array, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case Array:
		return x, nil
	}
	return nil, Errorf("expected array but got %T", obj)
}

// GetStream resolves references and returns the stream obj refers to.
func GetStream(r Getter, obj Object) (*Stream, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case *Stream:
		return x, nil
	}
	return nil, Errorf("expected stream but got %T", obj)
}

// GetName resolves references and returns the name obj refers to.
func GetName(r Getter, obj Object) (Name, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return "", err
	}
	switch x := obj.(type) {
	case nil:
		return "", nil
	case Name:
		return x, nil
	}
	return "", Errorf("expected name but got %T", obj)
}

// GetString resolves references and returns the string obj refers to.
func GetString(r Getter, obj Object) (String, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return nil, err
	}
	switch x := obj.(type) {
	case nil:
		return nil, nil
	case String:
		return x, nil
	}
	return nil, Errorf("expected string but got %T", obj)
}

// GetInteger resolves references and returns the integer obj refers to.
// Reals which represent whole numbers are accepted, too.
func GetInteger(r Getter, obj Object) (Integer, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return 0, err
	}
	switch x := obj.(type) {
	case nil:
		return 0, nil
	case Integer:
		return x, nil
	case Real:
		if y := math.Round(float64(x)); y == float64(x) {
			return Integer(y), nil
		}
	}
	return 0, Errorf("expected integer but got %s", Format(obj))
}

// GetNumber resolves references and returns the numeric value of obj.
func GetNumber(r Getter, obj Object) (float64, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return 0, err
	}
	switch x := obj.(type) {
	case nil:
		return 0, nil
	case Integer:
		return float64(x), nil
	case Real:
		return float64(x), nil
	}
	return 0, Errorf("expected number but got %T", obj)
}

// GetBool resolves references and returns the boolean obj refers to.
func GetBool(r Getter, obj Object) (Bool, error) {
	obj, err := Resolve(r, obj)
	if err != nil {
		return false, err
	}
	switch x := obj.(type) {
	case nil:
		return false, nil
	case Bool:
		return x, nil
	}
	return false, Errorf("expected boolean but got %T", obj)
}

// GetNumbers reads an array of numbers.
func GetNumbers(r Getter, obj Object) ([]float64, error) {
	arr, err := GetArray(r, obj)
	if err != nil {
		return nil, err
	}
	res := make([]float64, len(arr))
	for i, x := range arr {
		res[i], err = GetNumber(r, x)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// GetRectangle reads a PDF rectangle.  The corners are normalised so that
// LLx <= URx and LLy <= URy.
//
// PDF 2.0 sections: 7.9.5
func GetRectangle(r Getter, obj Object) (*rect.Rect, error) {
	nums, err := GetNumbers(r, obj)
	if err != nil {
		return nil, err
	}
	if nums == nil {
		return nil, nil
	}
	if len(nums) != 4 {
		return nil, Errorf("rectangle has %d entries, expected 4", len(nums))
	}
	for _, x := range nums {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, Errorf("invalid rectangle %v", nums)
		}
	}
	return &rect.Rect{
		LLx: math.Min(nums[0], nums[2]),
		LLy: math.Min(nums[1], nums[3]),
		URx: math.Max(nums[0], nums[2]),
		URy: math.Max(nums[1], nums[3]),
	}, nil
}

// RectArray converts a rectangle into a PDF array.
func RectArray(r rect.Rect) Array {
	return Array{Number(r.LLx), Number(r.LLy), Number(r.URx), Number(r.URy)}
}

// NumberArray converts a slice of numbers into a PDF array.
func NumberArray(x ...float64) Array {
	res := make(Array, len(x))
	for i, v := range x {
		res[i] = Number(v)
	}
	return res
}

// CheckType verifies that obj has the expected Go type.
func CheckType[T Object](obj Object, what string) (T, error) {
	x, ok := obj.(T)
	if !ok {
		var zero T
		return zero, Errorf("%s: unexpected type %T", what, obj)
	}
	return x, nil
}

// String implements fmt.Stringer for debugging output.
func (x *Stream) String() string {
	return fmt.Sprintf("stream %s", x.Dict)
}
