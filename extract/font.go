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

package extract

import (
	"bytes"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
	"seehuhn.de/go/postscript/psenc"
	"seehuhn.de/go/postscript/type1/names"

	"seehuhn.de/go/annotate/pdf"
)

// font holds the information needed to extract text from strings shown
// with a PDF font.
type font struct {
	codes    []codeRange
	toText   map[string][]rune // keyed by the raw character code
	simple   [256][]rune       // used if toText has no entry, simple fonts only
	isSimple bool

	widths       map[string]float64 // glyph space units
	defaultWidth float64
	vertical     bool
}

type codeRange struct {
	lo, hi []byte
}

// Standard fonts without /Widths are measured with these defaults.
const (
	defaultSimpleWidth    = 500
	defaultCompositeWidth = 1000
)

// loadFont reads a font dictionary.
//
// PDF 2.0 sections: 9.6 9.7 9.10
func loadFont(r pdf.Getter, obj pdf.Object) (*font, error) {
	dict, err := pdf.GetDictTyped(r, obj, "Font")
	if err != nil {
		return nil, err
	}
	if dict == nil {
		return nil, pdf.Errorf("missing font dictionary")
	}
	subtype, _ := pdf.GetName(r, dict["Subtype"])

	var f *font
	if subtype == "Type0" {
		f, err = loadComposite(r, dict)
	} else {
		f, err = loadSimple(r, dict)
	}
	if err != nil {
		return nil, err
	}

	if stm, _ := pdf.GetStream(r, dict["ToUnicode"]); stm != nil {
		data, err := pdf.DecodeStream(r, stm)
		if err == nil {
			codes, m := parseToUnicode(data)
			if len(codes) > 0 && !f.isSimple {
				f.codes = codes
			}
			f.toText = m
		}
	}
	return f, nil
}

func loadSimple(r pdf.Getter, dict pdf.Dict) (*font, error) {
	f := &font{
		isSimple:     true,
		codes:        []codeRange{{lo: []byte{0x00}, hi: []byte{0xFF}}},
		widths:       make(map[string]float64),
		defaultWidth: defaultSimpleWidth,
	}

	baseFont, _ := pdf.GetName(r, dict["BaseFont"])
	dingbats := baseFont == "ZapfDingbats"

	fd, _ := pdf.GetDict(r, dict["FontDescriptor"])
	if w, err := pdf.GetNumber(r, fd["MissingWidth"]); err == nil && w > 0 {
		f.defaultWidth = w
	}
	flags, _ := pdf.GetInteger(r, fd["Flags"])
	symbolic := flags&4 != 0 || dingbats || baseFont == "Symbol"

	firstChar, _ := pdf.GetInteger(r, dict["FirstChar"])
	widths, _ := pdf.GetNumbers(r, dict["Widths"])
	for i, w := range widths {
		code := int(firstChar) + i
		if code >= 0 && code < 256 {
			f.widths[string([]byte{byte(code)})] = w
		}
	}

	// Start from the base encoding, then apply the differences.
	subtype, _ := pdf.GetName(r, dict["Subtype"])
	base := pdf.Name("StandardEncoding")
	if subtype == "TrueType" || symbolic {
		base = "WinAnsiEncoding"
	}
	var differences pdf.Array
	encObj, _ := pdf.Resolve(r, dict["Encoding"])
	switch enc := encObj.(type) {
	case pdf.Name:
		base = enc
	case pdf.Dict:
		if b, _ := pdf.GetName(r, enc["BaseEncoding"]); b != "" {
			base = b
		}
		differences, _ = pdf.GetArray(r, enc["Differences"])
	}

	for code := range 256 {
		f.simple[code] = baseEncoding(base, byte(code))
	}
	code := 0
	for _, obj := range differences {
		obj, _ = pdf.Resolve(r, obj)
		switch x := obj.(type) {
		case pdf.Integer:
			code = int(x)
		case pdf.Name:
			if code >= 0 && code < 256 {
				f.simple[code] = []rune(names.ToUnicode(string(x), string(baseFont)))
			}
			code++
		}
	}
	return f, nil
}

func baseEncoding(name pdf.Name, c byte) []rune {
	switch name {
	case "WinAnsiEncoding":
		if c < 32 {
			return nil
		}
		return decodeCharmap(charmap.Windows1252, c)
	case "MacRomanEncoding":
		if c < 32 {
			return nil
		}
		return decodeCharmap(charmap.Macintosh, c)
	default:
		glyph := psenc.StandardEncoding[c]
		if glyph == "" || glyph == ".notdef" {
			return nil
		}
		return []rune(names.ToUnicode(glyph, ""))
	}
}

func decodeCharmap(cm *charmap.Charmap, c byte) []rune {
	r := cm.DecodeByte(c)
	if r == '�' {
		return nil
	}
	return []rune{r}
}

func loadComposite(r pdf.Getter, dict pdf.Dict) (*font, error) {
	f := &font{
		codes:        []codeRange{{lo: []byte{0x00, 0x00}, hi: []byte{0xFF, 0xFF}}},
		widths:       make(map[string]float64),
		defaultWidth: defaultCompositeWidth,
	}

	enc, _ := pdf.GetName(r, dict["Encoding"])
	f.vertical = enc == "Identity-V" || bytes.HasSuffix([]byte(enc), []byte("-V"))
	identity := enc == "Identity-H" || enc == "Identity-V"

	descendants, _ := pdf.GetArray(r, dict["DescendantFonts"])
	if len(descendants) == 0 {
		return f, nil
	}
	cidFont, err := pdf.GetDict(r, descendants[0])
	if err != nil {
		return nil, err
	}
	if dw, err := pdf.GetNumber(r, cidFont["DW"]); err == nil && cidFont["DW"] != nil {
		f.defaultWidth = dw
	}
	if !identity {
		// Without an identity encoding the CIDs are unknown, so that
		// only the default width can be used.
		return f, nil
	}

	w, _ := pdf.GetArray(r, cidFont["W"])
	for i := 0; i < len(w); {
		first, err := pdf.GetInteger(r, w[i])
		if err != nil || i+1 >= len(w) {
			break
		}
		next, _ := pdf.Resolve(r, w[i+1])
		if arr, ok := next.(pdf.Array); ok {
			for j, obj := range arr {
				width, _ := pdf.GetNumber(r, obj)
				f.widths[cidKey(int(first)+j)] = width
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			break
		}
		last, _ := pdf.GetInteger(r, w[i+1])
		width, _ := pdf.GetNumber(r, w[i+2])
		if last-first > 0xFFFF {
			break
		}
		for cid := first; cid <= last; cid++ {
			f.widths[cidKey(int(cid))] = width
		}
		i += 3
	}
	return f, nil
}

func cidKey(cid int) string {
	return string([]byte{byte(cid >> 8), byte(cid)})
}

// split returns the next character code from s.
func (f *font) split(s []byte) []byte {
	for n := 1; n <= 4 && n <= len(s); n++ {
		for _, rng := range f.codes {
			if len(rng.lo) != n {
				continue
			}
			if inRange(s[:n], rng) {
				return s[:n]
			}
		}
	}
	if !f.isSimple && len(s) >= 2 {
		return s[:2]
	}
	return s[:1]
}

func inRange(code []byte, rng codeRange) bool {
	for i, c := range code {
		if c < rng.lo[i] || c > rng.hi[i] {
			return false
		}
	}
	return true
}

// text returns the text for a character code.
func (f *font) text(code []byte) []rune {
	if rr, ok := f.toText[string(code)]; ok {
		return rr
	}
	if f.isSimple && len(code) == 1 {
		return f.simple[code[0]]
	}
	return nil
}

// width returns the advance width of a character code, in glyph space
// units.
func (f *font) width(code []byte) float64 {
	if w, ok := f.widths[string(code)]; ok {
		return w
	}
	return f.defaultWidth
}

// parseToUnicode reads a ToUnicode CMap.  The result maps raw character
// codes to text.
//
// PDF 2.0 sections: 9.10.3
func parseToUnicode(data []byte) ([]codeRange, map[string][]rune) {
	var codes []codeRange
	m := make(map[string][]rune)

	s := pdf.NewContentScanner(bytes.NewReader(data))
	for s.Scan() {
		args := s.Args()
		switch s.Op() {
		case "endcodespacerange":
			for i := 0; i+1 < len(args); i += 2 {
				lo, ok1 := args[i].(pdf.String)
				hi, ok2 := args[i+1].(pdf.String)
				if ok1 && ok2 && len(lo) == len(hi) && len(lo) > 0 && len(lo) <= 4 {
					codes = append(codes, codeRange{lo: []byte(lo), hi: []byte(hi)})
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(args); i += 2 {
				src, ok1 := args[i].(pdf.String)
				dst, ok2 := args[i+1].(pdf.String)
				if ok1 && ok2 {
					m[string(src)] = utf16Decode(dst)
				}
			}
		case "endbfrange":
			for i := 0; i+2 < len(args); i += 3 {
				lo, ok1 := args[i].(pdf.String)
				hi, ok2 := args[i+1].(pdf.String)
				if !ok1 || !ok2 || len(lo) != len(hi) || len(lo) == 0 {
					continue
				}
				addRange(m, []byte(lo), []byte(hi), args[i+2])
			}
		}
	}
	return codes, m
}

// maxRangeSize limits the number of codes in a single bfrange entry.
const maxRangeSize = 1 << 16

func addRange(m map[string][]rune, lo, hi []byte, dst pdf.Object) {
	n := len(lo)
	// Only the last byte varies within a range.
	if !bytes.Equal(lo[:n-1], hi[:n-1]) || lo[n-1] > hi[n-1] {
		return
	}
	code := bytes.Clone(lo)
	for k := 0; int(lo[n-1])+k <= int(hi[n-1]) && k < maxRangeSize; k++ {
		code[n-1] = lo[n-1] + byte(k)
		switch dst := dst.(type) {
		case pdf.String:
			text := utf16Decode(dst)
			if len(text) > 0 {
				text[len(text)-1] += rune(k)
			}
			m[string(code)] = text
		case pdf.Array:
			if k < len(dst) {
				if s, ok := dst[k].(pdf.String); ok {
					m[string(code)] = utf16Decode(s)
				}
			}
		}
	}
}

func utf16Decode(s pdf.String) []rune {
	buf := make([]uint16, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		buf = append(buf, uint16(s[i])<<8|uint16(s[i+1]))
	}
	return utf16.Decode(buf)
}
