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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type scannedOp struct {
	Op   Operator
	Args []Object
}

func scanAll(t *testing.T, in string) ([]scannedOp, error) {
	t.Helper()
	s := NewContentScanner(strings.NewReader(in))
	var res []scannedOp
	for s.Scan() {
		args := append([]Object(nil), s.Args()...)
		res = append(res, scannedOp{Op: s.Op(), Args: args})
	}
	return res, s.Err()
}

func TestContentScanner(t *testing.T) {
	in := `q 1 0 0 1 72 720 cm
BT /F1 12 Tf [(Hel) -20 (lo)] TJ ET
BI /W 2 /H 1 /BPC 8 /CS /G ID ` + "\x00\xff" + ` EI Q`
	got, err := scanAll(t, in)
	if err != nil {
		t.Fatal(err)
	}
	want := []scannedOp{
		{Op: "q", Args: []Object{}},
		{Op: "cm", Args: []Object{Integer(1), Integer(0), Integer(0), Integer(1), Integer(72), Integer(720)}},
		{Op: "BT", Args: []Object{}},
		{Op: "Tf", Args: []Object{Name("F1"), Integer(12)}},
		{Op: "TJ", Args: []Object{Array{String("Hel"), Integer(-20), String("lo")}}},
		{Op: "ET", Args: []Object{}},
		{Op: "BI", Args: []Object{Dict{"W": Integer(2), "H": Integer(1), "BPC": Integer(8), "CS": Name("G")}}},
		{Op: "Q", Args: []Object{}},
	}
	if d := cmp.Diff(want, got, cmpopts.EquateEmpty()); d != "" {
		t.Errorf("wrong operators (-want +got):\n%s", d)
	}
}

func TestContentScannerErrors(t *testing.T) {
	for _, in := range []string{
		"BI /W 1 ID abc",
		"BI /W 1 q ID x EI",
		"BI 7 8 ID x EI",
	} {
		if _, err := scanAll(t, in); err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}
}

func FuzzContentScanner(f *testing.F) {
	f.Add("BT (x) Tj ET")
	f.Add("BI /W 1 /H 1 ID \x00 EI")
	f.Fuzz(func(t *testing.T, in string) {
		s := NewContentScanner(strings.NewReader(in))
		for i := 0; s.Scan(); i++ {
			if i > len(in) {
				t.Fatal("too many operators")
			}
		}
	})
}
