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

package annotation

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// helveticaWidths holds the glyph widths of Helvetica for the printable
// ASCII range, in 1/1000 text space units.
var helveticaWidths = [95]uint16{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space - /
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // 0 - ?
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // @ - O
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // P - _
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // ` - o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, // p - ~
}

// defaultWidth is used for characters outside the ASCII range.
const defaultWidth = 556

// helveticaAscent is the ascent of Helvetica, in 1/1000 text space units.
const helveticaAscent = 718

// EncodeWinAnsi converts s to WinAnsiEncoding.  Characters which cannot
// be represented are replaced by '?'.
func EncodeWinAnsi(s string) []byte {
	res := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 128 {
			res = append(res, byte(r))
			continue
		}
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		res = append(res, b)
	}
	return res
}

// TextWidth returns the width of the WinAnsi-encoded text at the given
// font size.
func TextWidth(text []byte, size float64) float64 {
	w := 0
	for _, c := range text {
		if c >= 32 && c < 127 {
			w += int(helveticaWidths[c-32])
		} else {
			w += defaultWidth
		}
	}
	return float64(w) * size / 1000
}

// WrapText splits s into lines which fit into the given width.  Words
// longer than a line are split between characters.
func WrapText(s string, size, width float64) [][]byte {
	var lines [][]byte
	for _, para := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, nil)
			continue
		}
		var cur []byte
		for _, word := range words {
			w := EncodeWinAnsi(word)
			if cur != nil {
				candidate := append(append(append([]byte{}, cur...), ' '), w...)
				if TextWidth(candidate, size) <= width {
					cur = candidate
					continue
				}
				lines = append(lines, cur)
				cur = nil
			}
			for TextWidth(w, size) > width && len(w) > 1 {
				k := 1
				for k < len(w) && TextWidth(w[:k+1], size) <= width {
					k++
				}
				lines = append(lines, w[:k])
				w = w[k:]
			}
			cur = w
		}
		lines = append(lines, cur)
	}
	return lines
}
