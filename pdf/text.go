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
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// TextString creates a String object using the "text string" encoding,
// i.e. PDFDocEncoding where possible and UTF-16BE with a byte order mark
// otherwise.
//
// PDF 2.0 sections: 7.9.2.2
func TextString(s string) String {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		c, ok := pdfDocEncode(r)
		if !ok {
			enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
			out, err := enc.Bytes([]byte(s))
			if err != nil {
				break
			}
			return String(out)
		}
		buf = append(buf, c)
	}
	return String(buf)
}

// AsTextString interprets x as a PDF "text string" and returns
// the corresponding UTF-8 encoded string.
func (x String) AsTextString() string {
	switch {
	case len(x) >= 2 && x[0] == 0xFE && x[1] == 0xFF:
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(x)
		if err == nil {
			return string(out)
		}
	case len(x) >= 3 && x[0] == 0xEF && x[1] == 0xBB && x[2] == 0xBF:
		if utf8.Valid(x[3:]) {
			return string(x[3:])
		}
	}

	b := &strings.Builder{}
	for _, c := range x {
		b.WriteRune(pdfDocDecode(c))
	}
	return b.String()
}

// pdfDocHigh lists the code points for bytes 0x80-0xA0 in PDFDocEncoding.
var pdfDocHigh = [33]rune{
	0x2022, 0x2020, 0x2021, 0x2026, 0x2014, 0x2013, 0x0192, 0x2044,
	0x2039, 0x203A, 0x2212, 0x2030, 0x201E, 0x201C, 0x201D, 0x2018,
	0x2019, 0x201A, 0x2122, 0xFB01, 0xFB02, 0x0141, 0x0152, 0x0160,
	0x0178, 0x017D, 0x0131, 0x0142, 0x0153, 0x0161, 0x017E, 0xFFFD,
	0x20AC,
}

// pdfDocLow lists the code points for bytes 0x18-0x1F in PDFDocEncoding.
var pdfDocLow = [8]rune{
	0x02D8, 0x02C7, 0x02C6, 0x02D9, 0x02DD, 0x02DB, 0x02DA, 0x02DC,
}

func pdfDocDecode(c byte) rune {
	switch {
	case c >= 0x18 && c <= 0x1F:
		return pdfDocLow[c-0x18]
	case c >= 0x80 && c <= 0xA0:
		return pdfDocHigh[c-0x80]
	case c == 0x7F || c == 0xAD:
		return 0xFFFD
	}
	return rune(c)
}

func pdfDocEncode(r rune) (byte, bool) {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return byte(r), true
	case r >= 0x20 && r < 0x7F:
		return byte(r), true
	case r > 0xA0 && r <= 0xFF && r != 0xAD:
		return byte(r), true
	}
	for i, x := range pdfDocLow {
		if x == r {
			return byte(0x18 + i), true
		}
	}
	for i, x := range pdfDocHigh {
		if x == r && x != 0xFFFD {
			return byte(0x80 + i), true
		}
	}
	return 0, false
}

var errNoDate = errors.New("not a valid date string")

var dateFormats = []string{
	"D:20060102150405-0700",
	"D:20060102150405-07",
	"D:20060102150405Z0000",
	"D:20060102150405Z00",
	"D:20060102150405Z",
	"D:20060102150405",
	"D:200601021504",
	"D:2006010215",
	"D:20060102",
	"D:200601",
	"D:2006",
	"20060102150405-0700",
	"20060102150405Z",
	"20060102150405",
}

// AsDate converts a PDF date string to a time.Time object.
//
// PDF 2.0 sections: 7.9.4
func (x String) AsDate() (time.Time, error) {
	s := strings.TrimSpace(x.AsTextString())
	s = strings.ReplaceAll(s, "'", "")
	for _, format := range dateFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoDate
}

// Date creates a PDF String object encoding the given date and time.
func Date(t time.Time) String {
	s := t.Format("D:20060102150405-0700")
	k := len(s) - 2
	return String(s[:k] + "'" + s[k:] + "'")
}
