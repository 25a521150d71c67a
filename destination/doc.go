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

// Package destination implements PDF destinations as specified in section
// 12.3.2 of ISO 32000-2:2020.
//
// A destination defines a particular view of a document, consisting of:
//   - The page of the document to display
//   - The location of the document window on that page
//   - The magnification (zoom) factor
//
// # Explicit Destinations
//
// The eight explicit destination types of the PDF standard are
// represented by the Fit values FitXYZ, FitPage, FitH, FitV, FitR, FitB,
// FitBH and FitBV.
//
// # Named Destinations
//
// Named destinations are looked up in the catalog's /Dests dictionary or
// in the /Names /Dests name tree when they are decoded.  Encoding always
// produces explicit destinations.
//
// # Coordinates
//
// All coordinates are in page-space, see package pagespace.  Coordinates
// which are missing in the PDF file are replaced by the corresponding
// edge of the crop box:
//
//	dest := &destination.Destination{
//		Fit:     destination.FitXYZ,
//		Page:    3,
//		TopLeft: vec.Vec2{X: 0, Y: 0.25},
//	}
package destination
