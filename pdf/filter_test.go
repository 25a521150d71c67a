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
	"encoding/ascii85"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func TestCompress(t *testing.T) {
	for _, in := range []string{"", "12345", "BT /F1 12 Tf (Hello) Tj ET"} {
		stm, err := Compress(Dict{"Type": Name("Test"), "DecodeParms": Dict{}}, []byte(in))
		if err != nil {
			t.Fatal(err)
		}
		if stm.Dict["Filter"] != Name("FlateDecode") || stm.Dict["DecodeParms"] != nil {
			t.Errorf("wrong stream dictionary %s", stm.Dict)
		}
		out, err := DecodeStream(nil, stm)
		if err != nil {
			t.Fatal(err)
		}
		if string(out) != in {
			t.Errorf("wrong results: %q vs %q", out, in)
		}
	}
}

func TestFilters(t *testing.T) {
	a85 := make([]byte, ascii85.MaxEncodedLen(5))
	a85 = a85[:ascii85.Encode(a85, []byte("hello"))]

	flate := &bytes.Buffer{}
	zw := zlib.NewWriter(flate)
	zw.Write([]byte("hello"))
	zw.Close()

	cases := []struct {
		name   string
		filter Object
		parms  Object
		data   []byte
	}{
		{"hex", Name("ASCIIHexDecode"), nil, []byte("68 65 6c 6c 6f>")},
		{"hex odd", Name("AHx"), nil, []byte("68656c6c6")},
		{"ascii85", Name("ASCII85Decode"), nil, append(a85, "~>"...)},
		{"run length", Name("RunLengthDecode"), nil, []byte{1, 'h', 'e', 255, 'l', 0, 'o', 128}},
		{"flate", Name("FlateDecode"), nil, flate.Bytes()},
		{"chain", Array{Name("AHx"), Name("Fl")}, nil, []byte(hexString(flate.Bytes()))},
		{"identity crypt", Name("Crypt"), Dict{"Name": Name("Identity")}, []byte("hello")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stm := &Stream{
				Dict: Dict{"Filter": c.filter, "DecodeParms": c.parms},
				R:    bytes.NewReader(c.data),
			}
			out, err := DecodeStream(nil, stm)
			if err != nil {
				t.Fatal(err)
			}
			want := "hello"
			if c.name == "hex odd" {
				want = "hell`"
			}
			if string(out) != want {
				t.Errorf("got %q, want %q", out, want)
			}
		})
	}
}

func hexString(data []byte) string {
	const digits = "0123456789abcdef"
	buf := make([]byte, 0, 2*len(data))
	for _, c := range data {
		buf = append(buf, digits[c>>4], digits[c&15])
	}
	return string(buf)
}

func TestUnsupportedFilter(t *testing.T) {
	stm := &Stream{
		Dict: Dict{"Filter": Name("JBIG2Decode")},
		R:    bytes.NewReader([]byte("data")),
	}
	_, err := DecodeStream(nil, stm)
	if !errors.Is(err, errUnsupportedFilter) {
		t.Errorf("expected errUnsupportedFilter, got %v", err)
	}
}

func TestPNGPredictor(t *testing.T) {
	// two rows of three bytes: "None" and "Up"
	data := []byte{
		0, 1, 2, 3,
		2, 1, 1, 1,
	}
	parms := Dict{"Predictor": Integer(12), "Columns": Integer(3)}
	out, err := unpredict(data, parms)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 2, 3, 4}
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}

	// Sub filter
	out, err = unpredict([]byte{1, 5, 1, 1}, parms)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{5, 6, 7}; !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}

	if _, err := unpredict([]byte{7, 0, 0, 0}, parms); err == nil {
		t.Error("expected an error for filter type 7")
	}
}

func TestTIFFPredictor(t *testing.T) {
	parms := Dict{"Predictor": Integer(2), "Columns": Integer(2), "Colors": Integer(2)}
	out, err := unpredict([]byte{10, 20, 1, 2}, parms)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{10, 20, 11, 22}; !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestTruncatedFlate(t *testing.T) {
	// data which does not compress well
	in := make([]byte, 100000)
	x := uint32(1)
	for i := range in {
		x = x*1664525 + 1013904223
		in[i] = byte(x >> 24)
	}
	buf := &bytes.Buffer{}
	zw := zlib.NewWriter(buf)
	zw.Write(in)
	zw.Close()
	data := buf.Bytes()[:buf.Len()/2]

	stm := &Stream{Dict: Dict{"Filter": Name("FlateDecode")}, R: bytes.NewReader(data)}
	out, err := DecodeStream(nil, stm)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 || !bytes.HasPrefix(in, out) {
		t.Errorf("unexpected output of length %d", len(out))
	}
}
