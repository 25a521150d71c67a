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


package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"seehuhn.de/go/geom/vec"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/information"
	"seehuhn.de/go/annotate/outline"
	"seehuhn.de/go/annotate/processor"
	"seehuhn.de/go/annotate/search"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var permNames = []struct {
	perm information.Permissions
	name string
}{
	{information.PermTextSelection, "text selection"},
	{information.PermAnnotation, "annotation"},
	{information.PermAssembly, "assembly"},
	{information.PermPrinting, "printing"},
}

func formatPermissions(p information.Permissions) string {
	var names []string
	for _, pn := range permNames {
		if p&pn.perm != 0 {
			names = append(names, pn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// formatAnnotation returns a one-line description of an annotation.
func formatAnnotation(a annotation.Annotation) string {
	c := a.Base()
	r := c.Rect
	res := fmt.Sprintf("%s  page %d  %-14s [%.3f %.3f %.3f %.3f]",
		c.ID, c.Page+1, a.Kind(), r.Left, r.Top, r.Right, r.Bottom)

	var detail string
	switch a := a.(type) {
	case *annotation.TextMarkup:
		detail = strings.ToLower(a.Type.String())
		if a.Text != "" {
			detail += " " + strconv.Quote(a.Text)
		}
	case *annotation.FileAttachment:
		detail = a.FileName
	case *annotation.Link:
		if a.URL != "" {
			detail = a.URL
		} else if a.Dest != nil {
			detail = fmt.Sprintf("-> page %d", a.Dest.Page+1)
		}
	case *annotation.Bookmark:
		detail = strconv.Quote(a.Name)
	}
	if detail != "" {
		res += "  " + detail
	}
	if m := annotation.GetMarkup(a); m != nil && m.Contents != "" {
		text := m.Contents
		if m.Author != "" {
			text = m.Author + ": " + text
		}
		res += "  " + strconv.Quote(text)
	}
	return res
}

// formatResult returns a one-line description of a search result, with
// the match enclosed in brackets.
func formatResult(res *search.Result) string {
	ctx := []rune(res.Context)
	start := min(max(res.Offset, 0), len(ctx))
	end := min(start+len([]rune(res.Text)), len(ctx))
	text := string(ctx[:start]) + "[" + string(ctx[start:end]) + "]" + string(ctx[end:])
	text = strings.Join(strings.Fields(text), " ")

	where := "text"
	if res.Annotation != nil {
		where = res.Annotation.Kind().String()
	}
	return fmt.Sprintf("page %d (%s): %s", res.Page+1, where, text)
}

func printOutline(w io.Writer, items []*outline.Element, depth int) {
	for _, item := range items {
		indent := strings.Repeat("  ", depth)
		switch {
		case item.Dest != nil:
			fmt.Fprintf(w, "%s%s (page %d)\n", indent, item.Title, item.Dest.Page+1)
		case item.URL != "":
			fmt.Fprintf(w, "%s%s <%s>\n", indent, item.Title, item.URL)
		default:
			fmt.Fprintf(w, "%s%s\n", indent, item.Title)
		}
		printOutline(w, item.Children, depth+1)
	}
}

// parsePoint parses a page-space position of the form "x,y".
func parsePoint(s string) (vec.Vec2, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return vec.Vec2{}, fmt.Errorf("invalid position %q", s)
	}
	x, err1 := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	y, err2 := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err1 != nil || err2 != nil || x < 0 || x > 1 || y < 0 || y > 1 {
		return vec.Vec2{}, fmt.Errorf("invalid position %q", s)
	}
	return vec.Vec2{X: x, Y: y}, nil
}

var colorNames = map[string]annotation.Color{
	"yellow": annotation.RGB(1, 1, 0),
	"red":    annotation.RGB(1, 0, 0),
	"green":  annotation.RGB(0, 0.8, 0),
	"blue":   annotation.RGB(0, 0, 1),
	"orange": annotation.RGB(1, 0.6, 0),
	"black":  annotation.Gray(0),
	"gray":   annotation.Gray(0.5),
}

// parseColor parses a color name, or a color in the form "#rrggbb".
func parseColor(s string) (annotation.Color, error) {
	if col, ok := colorNames[strings.ToLower(s)]; ok {
		return col, nil
	}
	hex, ok := strings.CutPrefix(s, "#")
	if ok && len(hex) == 6 {
		v, err := strconv.ParseUint(hex, 16, 32)
		if err == nil {
			return annotation.RGB(
				float64(v>>16)/255,
				float64(v>>8&0xFF)/255,
				float64(v&0xFF)/255,
			), nil
		}
	}
	return annotation.Color{}, fmt.Errorf("invalid color %q", s)
}

// parsePageRange parses a range of one-based page numbers, "a-b" or "a".
func parsePageRange(s string) (processor.PageRange, error) {
	first, last, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || a < 1 {
		return processor.PageRange{}, fmt.Errorf("invalid page range %q", s)
	}
	b := a
	if found {
		b, err = strconv.Atoi(strings.TrimSpace(last))
		if err != nil || b < a {
			return processor.PageRange{}, fmt.Errorf("invalid page range %q", s)
		}
	}
	return processor.PageRange{First: a - 1, Count: b - a + 1}, nil
}
