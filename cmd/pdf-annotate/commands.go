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
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/information"
	"seehuhn.de/go/annotate/outline"
	"seehuhn.de/go/annotate/pagespace"
	"seehuhn.de/go/annotate/processor"
	"seehuhn.de/go/annotate/search"
)

func cmdProcess(e *env, args []string) error {
	fs := e.newFlags("process")
	force := fs.Bool("force", false, "process the file even if the information file is up to date")
	strict := fs.Bool("strict", false, "fail if the information file is up to date")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}

	doc, err := e.open(rest[0], false)
	if err != nil {
		return err
	}
	defer doc.Close()

	opts := &processor.ProcessOptions{Force: *force, Strict: *strict}
	if err := e.runJob(e.proc.Process(e.ctx, doc, opts, e.observer())); err != nil {
		return err
	}
	info := doc.Information()
	fmt.Fprintf(e.stdout, "%s: %d pages, %d annotations\n",
		rest[0], info.PageCount(), len(info.AllAnnotations()))
	return nil
}

func cmdInfo(e *env, args []string) error {
	fs := e.newFlags("info")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	doc, err := e.open(rest[0], false)
	if err != nil {
		return err
	}
	defer doc.Close()

	info := doc.Information()
	w := e.stdout
	fmt.Fprintf(w, "file:        %s\n", rest[0])
	fmt.Fprintf(w, "information: %s\n", info.Path())
	fmt.Fprintf(w, "processed:   %s\n", yesNo(info.IsProcessed()))
	if !info.IsProcessed() {
		return nil
	}
	fmt.Fprintf(w, "version:     0x%08x\n", info.Version())
	fmt.Fprintf(w, "modified:    %s\n", yesNo(info.IsModified()))
	fmt.Fprintf(w, "pages:       %d\n", info.PageCount())
	fmt.Fprintf(w, "permissions: %s\n", formatPermissions(info.Permissions()))
	fmt.Fprintf(w, "text:        %s\n", yesNo(info.HasText()))
	fmt.Fprintf(w, "outline:     %s\n", yesNo(info.HasOutline()))
	fmt.Fprintf(w, "annotations: %d\n", len(info.AllAnnotations()))
	fmt.Fprintf(w, "bookmarks:   %d\n", len(info.Bookmarks()))

	// The document information dictionary is not part of the
	// information file.  It cannot be read from encrypted files without a
	// password, and is omitted in this case.
	if docInfo, err := doc.Info(); err == nil {
		if docInfo.Title != "" {
			fmt.Fprintf(w, "title:       %s\n", docInfo.Title)
		}
		if docInfo.Author != "" {
			fmt.Fprintf(w, "author:      %s\n", docInfo.Author)
		}
	}
	return nil
}

func cmdList(e *env, args []string) error {
	fs := e.newFlags("list")
	page := fs.Int("page", 0, "only list annotations on page `n`")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	doc, err := e.open(rest[0], true)
	if err != nil {
		return err
	}
	defer doc.Close()
	info := doc.Information()

	pageNo := -1
	var annots []annotation.Annotation
	if *page != 0 {
		pageNo, err = checkPage(info, *page)
		if err != nil {
			return err
		}
		annots = info.AnnotationsOnPage(pageNo)
	} else {
		annots = info.AllAnnotations()
	}
	for _, b := range info.Bookmarks() {
		if pageNo < 0 || b.Page == pageNo {
			annots = append(annots, b)
		}
	}
	for _, a := range annots {
		fmt.Fprintln(e.stdout, formatAnnotation(a))
	}
	return nil
}

func cmdNote(e *env, args []string) error {
	fs := e.newFlags("note")
	page := fs.Int("page", 1, "page `n` of the note")
	at := fs.String("at", "0.05,0.05", "position `x,y` of the note icon")
	color := fs.String("color", "yellow", "note `color`, a name or #rrggbb")
	open := fs.Bool("open", false, "show the note text initially")
	fname, text, err := parseText(fs, args)
	if err != nil {
		return err
	}
	pos, err := parsePoint(*at)
	if err != nil {
		return err
	}
	col, err := parseColor(*color)
	if err != nil {
		return err
	}

	doc, err := e.open(fname, true)
	if err != nil {
		return err
	}
	defer doc.Close()
	info := doc.Information()
	pageNo, err := checkPage(info, *page)
	if err != nil {
		return err
	}

	g, _ := info.Geometry(pageNo)
	note := &annotation.Note{
		Common: annotation.Common{
			Page:  pageNo,
			Rect:  iconRect(g, pos.X, pos.Y),
			Flags: annotation.FlagPrint | annotation.FlagNoZoom | annotation.FlagNoRotate,
			Color: col,
		},
		Markup: annotation.Markup{
			Author:   e.author(),
			Contents: text,
		},
		Icon: "Comment",
		Open: *open,
	}
	if !info.Add(note) {
		return errors.New("cannot add note")
	}
	if err := e.save(doc); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, note.ID)
	return nil
}

// iconRect returns the area of a note icon with its top left corner at
// (x, y).  The icon is 24 PDF units wide and high.
func iconRect(g pagespace.Geometry, x, y float64) pagespace.Rect {
	const size = 24
	w, h := g.Size()
	dx := min(size/w, 1)
	dy := min(size/h, 1)
	x = min(max(x, 0), 1-dx)
	y = min(max(y, 0), 1-dy)
	return pagespace.Rect{Left: x, Top: y, Right: x + dx, Bottom: y + dy}
}

var markupTypes = map[string]annotation.MarkupType{
	"highlight": annotation.Highlight,
	"underline": annotation.Underline,
	"strikeout": annotation.StrikeOut,
}

func cmdHighlight(e *env, args []string) error {
	fs := e.newFlags("highlight")
	page := fs.Int("page", 0, "only mark text on page `n`")
	tp := fs.String("type", "highlight", "markup `type`: highlight, underline or strikeout")
	color := fs.String("color", "yellow", "markup `color`, a name or #rrggbb")
	comment := fs.String("comment", "", "note `text` attached to the markup")
	fname, query, err := parseText(fs, args)
	if err != nil {
		return err
	}
	markupType, ok := markupTypes[strings.ToLower(*tp)]
	if !ok {
		return fmt.Errorf("invalid markup type %q", *tp)
	}
	col, err := parseColor(*color)
	if err != nil {
		return err
	}

	doc, err := e.open(fname, true)
	if err != nil {
		return err
	}
	defer doc.Close()
	info := doc.Information()

	pageNo := -1
	if *page != 0 {
		pageNo, err = checkPage(info, *page)
		if err != nil {
			return err
		}
	}

	req := e.newRequest(query)
	if pageNo >= 0 {
		req.BasePage = pageNo
	}
	var found []*search.Result
	obs := search.ObserverFuncs{
		OnResult: func(res *search.Result) {
			if pageNo < 0 || res.Page == pageNo {
				found = append(found, res)
			}
		},
		OnPage: func(p int) {
			if pageNo >= 0 && p >= pageNo {
				req.Cancel()
			}
		},
	}
	info.Search(e.ctx, req, obs)
	if err := e.ctx.Err(); err != nil {
		return err
	}

	author := e.author()
	for _, res := range found {
		a := &annotation.TextMarkup{
			Common: annotation.Common{
				Page:  res.Page,
				Rect:  res.Bounds,
				Flags: annotation.FlagPrint,
				Color: col,
			},
			Markup: annotation.Markup{
				Author:   author,
				Contents: *comment,
			},
			Type:  markupType,
			Rects: res.Rects,
			Text:  res.Text,
		}
		if !info.Add(a) {
			return fmt.Errorf("page %d: cannot mark %q", res.Page+1, res.Text)
		}
	}
	if len(found) == 0 {
		return fmt.Errorf("%q not found", query)
	}
	if err := e.save(doc); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%d occurrences marked\n", len(found))
	return nil
}

func cmdBookmark(e *env, args []string) error {
	fs := e.newFlags("bookmark")
	page := fs.Int("page", 1, "page `n` of the bookmark")
	y := fs.Float64("y", 0, "vertical `position` on the page, between 0 and 1")
	fname, name, err := parseText(fs, args)
	if err != nil {
		return err
	}
	doc, err := e.open(fname, true)
	if err != nil {
		return err
	}
	defer doc.Close()
	info := doc.Information()
	pageNo, err := checkPage(info, *page)
	if err != nil {
		return err
	}

	top := min(max(*y, 0), 0.99)
	b := &annotation.Bookmark{
		Common: annotation.Common{
			Page: pageNo,
			Rect: pagespace.Rect{Left: 0, Top: top, Right: 0.01, Bottom: top + 0.01},
		},
		Name: name,
	}
	if !info.Add(b) {
		return errors.New("cannot add bookmark")
	}
	if err := e.save(doc); err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, b.ID)
	return nil
}

func cmdRemove(e *env, args []string) error {
	fs := e.newFlags("remove")
	id := fs.String("id", "", "remove the annotation with identifier `id`")
	page := fs.Int("page", 0, "remove all annotations on page `n`")
	all := fs.Bool("all", false, "remove all annotations")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	var modes int
	for _, set := range []bool{*id != "", *page != 0, *all} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		fs.Usage()
		return errors.New("remove: exactly one of -id, -page and -all is required")
	}

	doc, err := e.open(rest[0], true)
	if err != nil {
		return err
	}
	defer doc.Close()
	info := doc.Information()

	switch {
	case *all:
		info.RemoveAll()
	case *page != 0:
		pageNo, err := checkPage(info, *page)
		if err != nil {
			return err
		}
		info.RemoveOnPage(pageNo)
	default:
		a := findAnnotation(info, *id)
		if a == nil || !info.Remove(a) {
			return fmt.Errorf("no annotation with identifier %q", *id)
		}
	}
	return e.save(doc)
}

func findAnnotation(info *information.Information, id string) annotation.Annotation {
	for _, a := range info.AllAnnotations() {
		if a.Base().ID == id {
			return a
		}
	}
	return nil
}

func cmdSearch(e *env, args []string) error {
	fs := e.newFlags("search")
	useRegexp := fs.Bool("regexp", false, "interpret the query as a regular expression")
	caseSensitive := fs.Bool("case", false, "match upper and lower case exactly")
	annots := fs.Bool("annotations", false, "also search the text of annotations")
	backward := fs.Bool("backward", false, "search from the end of the document")
	maxResults := fs.Int("max", e.cfg.Search.MaxResults, "stop after `n` results")
	fname, query, err := parseText(fs, args)
	if err != nil {
		return err
	}
	if *useRegexp {
		if _, err := regexp.Compile(query); err != nil {
			return err
		}
	}

	doc, err := e.open(fname, true)
	if err != nil {
		return err
	}
	defer doc.Close()
	info := doc.Information()

	req := e.newRequest(query)
	req.Regexp = *useRegexp
	req.CaseSensitive = *caseSensitive
	req.IncludeAnnotations = *annots
	req.MaxResults = *maxResults
	if *backward {
		req.Direction = search.Backward
		req.BasePage = info.PageCount() - 1
		req.BaseLocation = -1
	}

	obs := search.ObserverFuncs{
		OnResult: func(res *search.Result) {
			fmt.Fprintln(e.stdout, formatResult(res))
		},
	}
	if !info.Search(e.ctx, req, obs) {
		if err := e.ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%q not found", query)
	}
	if req.Capped() {
		fmt.Fprintf(e.stderr, "stopped after %d results\n", req.NumResults())
	}
	return nil
}

func (e *env) newRequest(query string) *search.Request {
	return &search.Request{
		Query:        query,
		Language:     e.cfg.Search.language(),
		MaxResults:   e.cfg.Search.MaxResults,
		ContextRunes: e.cfg.Search.ContextRunes,
	}
}

func cmdOutline(e *env, args []string) error {
	fs := e.newFlags("outline")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	doc, err := e.open(rest[0], true)
	if err != nil {
		return err
	}
	defer doc.Close()
	info := doc.Information()

	if root := info.Outline(); root != nil {
		printOutline(e.stdout, root.Children, 0)
	}
	if bookmarks := info.Bookmarks(); len(bookmarks) > 0 {
		fmt.Fprintln(e.stdout, outline.BookmarkSectionTitle+":")
		for _, b := range bookmarks {
			fmt.Fprintf(e.stdout, "  %s (page %d)\n", b.Name, b.Page+1)
		}
	}
	return nil
}

func cmdSync(e *env, args []string) error {
	fs := e.newFlags("sync")
	rest, err := parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	doc, err := e.open(rest[0], false)
	if err != nil {
		return err
	}
	defer doc.Close()

	if !doc.Information().IsModified() {
		fmt.Fprintln(e.stdout, "no changes")
		return nil
	}
	return e.runJob(e.proc.Sync(e.ctx, doc, e.observer()))
}

func cmdWrite(e *env, args []string) error {
	fs := e.newFlags("write")
	flatten := fs.Bool("flatten", false, "draw the annotations into the page content")
	strip := fs.Bool("strip", false, "omit all annotations apart from links")
	annotated := fs.Bool("annotated", false, "only include pages with annotations")
	pages := fs.String("pages", "", "only include pages `a-b`")
	validate := fs.Bool("validate", false, "check the output file after writing")
	force := fs.Bool("f", false, "overwrite the output file if it exists")
	rest, err := parseArgs(fs, args, 2)
	if err != nil {
		return err
	}
	src, dest := rest[0], rest[1]

	opts := &processor.WriteOptions{Validate: *validate}
	if *flatten {
		opts.Flags |= processor.Flatten
	}
	if *strip {
		opts.Flags |= processor.StripUserAnnotations
	}
	if *annotated {
		opts.Flags |= processor.AnnotatedPagesOnly
	}
	if *pages != "" {
		opts.PageRange, err = parsePageRange(*pages)
		if err != nil {
			return err
		}
		opts.Flags |= processor.UsePageRange
	}

	if _, err := os.Stat(dest); err == nil && !*force {
		return fmt.Errorf("file %s already exists (use -f to overwrite)", dest)
	}

	doc, err := e.open(src, true)
	if err != nil {
		return err
	}
	defer doc.Close()
	return e.runJob(e.proc.Write(e.ctx, doc, dest, opts, e.observer()))
}

// checkPage converts a page number from the command line to a zero-based
// page number.
func checkPage(info *information.Information, page int) (int, error) {
	if page < 1 || page > info.PageCount() {
		return 0, fmt.Errorf("invalid page %d (the document has %d pages)", page, info.PageCount())
	}
	return page - 1, nil
}
