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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"seehuhn.de/go/geom/rect"
)

const testContent = "BT /F1 12 Tf 72 720 Td (Hello) Tj ET"

// Object numbers used by writeTestFile.
var (
	testCatalog = NewReference(1, 0)
	testPages   = NewReference(2, 0)
	testPage    = NewReference(3, 0)
	testStream  = NewReference(4, 0)
	testInfo    = NewReference(5, 0)
)

func writeTestFile(t *testing.T, ver Version) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	w, err := NewWriter(buf, ver)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []Reference{testCatalog, testPages, testPage, testStream, testInfo} {
		if ref := w.Alloc(); ref != want {
			t.Fatalf("Alloc: got %s, want %s", ref, want)
		}
	}

	stm, err := Compress(nil, []byte(testContent))
	if err != nil {
		t.Fatal(err)
	}
	objects := []struct {
		ref Reference
		obj Object
	}{
		{testStream, stm},
		{testPage, Dict{
			"Type":     Name("Page"),
			"Parent":   testPages,
			"MediaBox": RectArray(rect.Rect{URx: 200, URy: 100}),
			"Contents": testStream,
		}},
		{testPages, Dict{"Type": Name("Pages"), "Kids": Array{testPage}, "Count": Integer(1)}},
		{testCatalog, Dict{"Type": Name("Catalog"), "Pages": testPages}},
		{testInfo, Dict{"Title": TextString("Test – File")}},
	}
	for _, o := range objects {
		if err := w.Put(o.ref, o.obj); err != nil {
			t.Fatal(err)
		}
	}
	w.Trailer["Root"] = testCatalog
	w.Trailer["Info"] = testInfo
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func openTestFile(t *testing.T, data []byte, opt *ReaderOptions) *Reader {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data), int64(len(data)), opt)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func readContent(t *testing.T, r Getter) string {
	t.Helper()
	stm, err := GetStream(r, testStream)
	if err != nil {
		t.Fatal(err)
	}
	data, err := DecodeStream(r, stm)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestWriteRead(t *testing.T) {
	for _, ver := range []Version{V1_4, V1_7, V2_0} {
		t.Run(ver.String(), func(t *testing.T) {
			data := writeTestFile(t, ver)
			if !bytes.HasPrefix(data, []byte("%PDF-"+ver.String()+"\n")) {
				t.Errorf("wrong header %q", data[:9])
			}
			hasStream := bytes.Contains(data, []byte("/XRef"))
			if hasStream != (ver >= V1_5) {
				t.Errorf("xref stream: got %t, want %t", hasStream, ver >= V1_5)
			}

			r := openTestFile(t, data, nil)
			if r.Version() != ver {
				t.Errorf("wrong version %s", r.Version())
			}
			if r.Repaired {
				t.Error("file was repaired")
			}
			if r.IsEncrypted() || !r.Authenticated() || !r.IsOwner() {
				t.Error("unexpected encryption state")
			}
			if r.Permissions() != PermAll {
				t.Errorf("wrong permissions %d", r.Permissions())
			}

			cat, err := r.Catalog()
			if err != nil {
				t.Fatal(err)
			}
			if cat["Pages"] != testPages {
				t.Errorf("wrong /Pages %s", Format(cat["Pages"]))
			}
			if got := readContent(t, r); got != testContent {
				t.Errorf("wrong content %q", got)
			}
			// stream data can be read again after a second Get
			if got := readContent(t, r); got != testContent {
				t.Errorf("wrong content %q on second read", got)
			}

			info, err := GetDict(r, r.Trailer()["Info"])
			if err != nil {
				t.Fatal(err)
			}
			title, _ := info["Title"].(String)
			if title.AsTextString() != "Test – File" {
				t.Errorf("wrong title %q", title.AsTextString())
			}

			if obj, err := r.Get(NewReference(99, 0)); obj != nil || err != nil {
				t.Errorf("missing object: got %v, %v", obj, err)
			}
		})
	}
}

func TestWriterErrors(t *testing.T) {
	w, err := NewWriter(io.Discard, V1_7)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Put(NewReference(0, 0), Integer(1)); err == nil {
		t.Error("object 0 was accepted")
	}
	if err := w.Close(); err == nil {
		t.Error("missing /Root was accepted")
	}
	if err := w.Put(w.Alloc(), Integer(1)); err == nil {
		t.Error("write to closed Writer was accepted")
	}

	if _, err := NewWriter(io.Discard, Version(99)); err == nil {
		t.Error("invalid version was accepted")
	}
}

func TestUpdate(t *testing.T) {
	for _, ver := range []Version{V1_4, V1_7} {
		t.Run(ver.String(), func(t *testing.T) {
			orig := writeTestFile(t, ver)
			r := openTestFile(t, orig, nil)

			buf := &bytes.Buffer{}
			w, err := NewUpdateWriter(buf, r)
			if err != nil {
				t.Fatal(err)
			}
			if w.Trailer["Root"] != testCatalog || w.Trailer["Info"] != testInfo {
				t.Errorf("trailer not copied: %s", w.Trailer)
			}
			extra := w.Alloc()
			if extra.Number() <= testInfo.Number() {
				t.Errorf("Alloc reused object number %d", extra.Number())
			}
			err = w.Put(extra, Array{Integer(1), Integer(2)})
			if err != nil {
				t.Fatal(err)
			}
			cat := Dict{"Type": Name("Catalog"), "Pages": testPages, "Lang": String("en"), "Extra": extra}
			if err := w.Put(testCatalog, cat); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			data := buf.Bytes()
			if !bytes.HasPrefix(data, orig) {
				t.Fatal("original data was modified")
			}
			if !bytes.Contains(data[len(orig):], []byte("/Prev "+strconv.Itoa(int(r.lastXRef)))) {
				t.Error("missing /Prev entry")
			}

			r2 := openTestFile(t, data, nil)
			got, err := r2.Catalog()
			if err != nil {
				t.Fatal(err)
			}
			if d := cmp.Diff(cat, got); d != "" {
				t.Errorf("wrong catalog (-want +got):\n%s", d)
			}
			arr, err := GetArray(r2, extra)
			if err != nil || len(arr) != 2 {
				t.Errorf("wrong new object %v, %v", arr, err)
			}
			if got := readContent(t, r2); got != testContent {
				t.Errorf("wrong content %q", got)
			}
		})
	}
}

func TestRepair(t *testing.T) {
	data := writeTestFile(t, V1_4)
	k := bytes.LastIndex(data, []byte("startxref"))
	if k < 0 {
		t.Fatal("startxref not found")
	}
	broken := string(data[:k]) + "startxref\n17\n%%EOF\n"

	r := openTestFile(t, []byte(broken), nil)
	if !r.Repaired {
		t.Error("Repaired not set")
	}
	if _, err := r.Catalog(); err != nil {
		t.Fatal(err)
	}
	if got := readContent(t, r); got != testContent {
		t.Errorf("wrong content %q", got)
	}

	// the update of a repaired file lists all objects
	buf := &bytes.Buffer{}
	w, err := NewUpdateWriter(buf, r)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r2 := openTestFile(t, buf.Bytes(), nil)
	if r2.Repaired {
		t.Error("updated file needed repair")
	}
	if got := readContent(t, r2); got != testContent {
		t.Errorf("wrong content %q", got)
	}
}

func TestNotPDF(t *testing.T) {
	for _, in := range []string{"", "hello world", "%PDF-1.7\n"} {
		_, err := NewReader(strings.NewReader(in), int64(len(in)), nil)
		if err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}
}

func FuzzReader(f *testing.F) {
	for _, ver := range []Version{V1_4, V1_7} {
		buf := &bytes.Buffer{}
		w, _ := NewWriter(buf, ver)
		ref := w.Alloc()
		w.Put(ref, Dict{"Type": Name("Catalog")})
		w.Trailer["Root"] = ref
		w.Close()
		f.Add(buf.Bytes())
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		r, err := NewReader(bytes.NewReader(data), int64(len(data)), nil)
		if err != nil {
			return
		}
		defer r.Close()
		_, err = r.Catalog()
		if errors.Is(err, ErrNoAuth) {
			return
		}
		for num := range r.xref {
			r.Get(NewReference(num, 0))
		}
	})
}
