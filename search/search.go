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

// Package search implements full-text search over the extracted text of
// a document, and optionally over the text of its annotations.
//
// A search makes a single pass over the pages, starting at the base page
// of the request, and stops at the end (or, for backward searches, at the
// beginning) of the document.  Running a request again restarts the
// search from its base location.
package search

import (
	"context"
	"errors"
	"iter"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	textsearch "golang.org/x/text/search"
	"golang.org/x/text/language"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/extract"
	"seehuhn.de/go/annotate/pagespace"
)

// Default values for the limits of a Request.
const (
	DefaultMaxResults   = 500
	DefaultContextRunes = 20
)

var (
	// ErrInvalidQuery is returned for empty queries and for invalid
	// regular expressions.
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrCancelled is returned when a search was stopped using
	// Request.Cancel.
	ErrCancelled = errors.New("search cancelled")
)

// Direction is the order in which pages are scanned.
type Direction uint8

// These are the supported search directions.
const (
	Forward Direction = iota
	Backward
)

// Request describes a search.  While a search runs, the methods of the
// request can be called concurrently to observe or stop the search.
// A Request must not be copied after first use.
type Request struct {
	Query string

	// Regexp selects regular expression syntax for Query.  Otherwise the
	// query is matched literally.
	Regexp bool

	// CaseSensitive disables case folding for literal queries.  Regular
	// expressions are always case-sensitive, unless the (?i) flag is
	// used.
	CaseSensitive bool

	// Language selects the collation rules for literal matching.  The zero
	// value selects language-neutral rules.
	Language language.Tag

	// BasePage and BaseLocation give the starting point.  BaseLocation is
	// a rune offset into the text of BasePage.  For forward searches,
	// matches start at or after this location; for backward searches,
	// matches start before it.  A negative BaseLocation is treated as
	// the end of the page for backward searches.
	BasePage     int
	BaseLocation int

	// IncludeAnnotations extends the search to the text of markup
	// annotations.
	IncludeAnnotations bool

	Direction Direction

	// MaxResults limits the number of results.  Zero selects
	// DefaultMaxResults.
	MaxResults int

	// ContextRunes is the number of runes shown before and after a match
	// in Result.Context.  Zero selects DefaultContextRunes, negative
	// values disable the context.
	ContextRunes int

	cancel     atomic.Bool
	numResults atomic.Int64
	inProgress atomic.Bool
	capped     atomic.Bool
}

// Cancel asks a running search to stop.  The search stops after the
// current page.  A search started after Cancel stops before the first
// page, until Reset is called.
func (req *Request) Cancel() { req.cancel.Store(true) }

// Reset clears a previous Cancel, so that the request can be run again.
func (req *Request) Reset() { req.cancel.Store(false) }

// NumResults returns the number of results found so far.
func (req *Request) NumResults() int { return int(req.numResults.Load()) }

// InProgress reports whether the search is currently running.
func (req *Request) InProgress() bool { return req.inProgress.Load() }

// Capped reports whether the search was stopped because the maximum number
// of results was reached.
func (req *Request) Capped() bool { return req.capped.Load() }

// Result is a single match.
type Result struct {
	// Text is the matched text.
	Text string

	Page int

	// Location is the rune offset of the match in the page text, or -1
	// for matches in annotation text.
	Location int

	// Context is the matched text together with some surrounding text.
	// Offset is the rune offset of the match within Context.
	Context string
	Offset  int

	// Rects lists the matched areas, one per line of text, and Bounds is
	// their union.  For matches in annotation text, this is the area of
	// the annotation.
	Rects  []pagespace.Rect
	Bounds pagespace.Rect

	// Annotation is a copy of the annotation in which the match occurred,
	// or nil for matches in the page text.
	Annotation annotation.Annotation
}

// Source gives access to the data being searched.
type Source interface {
	NumPages() int

	// PageText returns the text of a page, or nil if the page has no
	// text.
	PageText(page int) *extract.Text

	// Annotations returns the annotations on a page.
	Annotations(page int) []annotation.Annotation
}

// Observer receives the results of a search.
type Observer interface {
	// Found is called for every match, in search order.
	Found(res *Result)

	// PageDone is called after a page has been searched.
	PageDone(page int)
}

// ObserverFuncs implements Observer using callback functions.  Nil fields
// are ignored.
type ObserverFuncs struct {
	OnResult func(*Result)
	OnPage   func(int)
}

// Found implements the Observer interface.
func (o ObserverFuncs) Found(res *Result) {
	if o.OnResult != nil {
		o.OnResult(res)
	}
}

// PageDone implements the Observer interface.
func (o ObserverFuncs) PageDone(page int) {
	if o.OnPage != nil {
		o.OnPage(page)
	}
}

// Run performs a search and reports the results to obs.
//
// If the search is stopped by Request.Cancel, ErrCancelled is returned.
// If ctx is cancelled, the context's error is returned.  Reaching the
// result limit is not an error, see Request.Capped.
func Run(ctx context.Context, src Source, req *Request, obs Observer) error {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	return run(ctx, src, req, func(res *Result) bool {
		obs.Found(res)
		return true
	}, obs.PageDone)
}

// All returns the results of a search as an iterator.  Stopping the
// iteration early stops the search.  Errors end the sequence silently;
// use Run to observe them.
func All(ctx context.Context, src Source, req *Request) iter.Seq[*Result] {
	return func(yield func(*Result) bool) {
		run(ctx, src, req, yield, nil)
	}
}

func run(ctx context.Context, src Source, req *Request, emit func(*Result) bool, pageDone func(int)) error {
	m, err := newMatcher(req)
	if err != nil {
		return err
	}

	req.numResults.Store(0)
	req.capped.Store(false)
	req.inProgress.Store(true)
	defer req.inProgress.Store(false)

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	contextRunes := req.ContextRunes
	if contextRunes == 0 {
		contextRunes = DefaultContextRunes
	}

	numPages := src.NumPages()
	step := 1
	if req.Direction == Backward {
		step = -1
	}
	first := min(max(req.BasePage, 0), numPages-1)
	for page := first; page >= 0 && page < numPages; page += step {
		if req.cancel.Load() {
			return ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s := &pageSearch{
			m:            m,
			page:         page,
			contextRunes: contextRunes,
		}
		if page == req.BasePage {
			s.from, s.to = req.BaseLocation, -1
			if req.Direction == Backward {
				s.from, s.to = 0, req.BaseLocation
			}
		} else {
			s.from, s.to = 0, -1
		}

		results := s.text(src.PageText(page))
		if req.IncludeAnnotations {
			results = append(results, s.annotations(src.Annotations(page))...)
		}
		if req.Direction == Backward {
			for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
				results[i], results[j] = results[j], results[i]
			}
		}

		for _, res := range results {
			if req.NumResults() >= maxResults {
				req.capped.Store(true)
				return nil
			}
			req.numResults.Add(1)
			if !emit(res) {
				return nil
			}
		}
		if pageDone != nil {
			pageDone(page)
		}
	}
	if req.cancel.Load() {
		return ErrCancelled
	}
	return ctx.Err()
}

// matcher finds all non-overlapping matches in a string, as byte ranges.
type matcher func(s string) [][2]int

func newMatcher(req *Request) (matcher, error) {
	if req.Query == "" {
		return nil, ErrInvalidQuery
	}

	if req.Regexp {
		re, err := regexp.Compile(req.Query)
		if err != nil {
			return nil, errors.Join(ErrInvalidQuery, err)
		}
		return func(s string) [][2]int {
			var res [][2]int
			for _, loc := range re.FindAllStringIndex(s, -1) {
				if loc[1] > loc[0] {
					res = append(res, [2]int{loc[0], loc[1]})
				}
			}
			return res
		}, nil
	}

	var opts []textsearch.Option
	if !req.CaseSensitive {
		opts = append(opts, textsearch.IgnoreCase)
	}
	pat := textsearch.New(req.Language, opts...).CompileString(req.Query)
	return func(s string) [][2]int {
		var res [][2]int
		pos := 0
		for pos < len(s) {
			start, end := pat.IndexString(s[pos:])
			if start < 0 || end <= start {
				break
			}
			res = append(res, [2]int{pos + start, pos + end})
			pos += end
		}
		return res
	}, nil
}

type pageSearch struct {
	m            matcher
	page         int
	contextRunes int

	// from and to limit the rune offsets of matches in the page text.
	// A negative value for to means no limit.
	from, to int
}

func (s *pageSearch) text(t *extract.Text) []*Result {
	if t == nil || t.Text == "" {
		return nil
	}

	// offsets[i] is the byte offset of rune i
	offsets := make([]int, 0, len(t.Text)+1)
	for i := range t.Text {
		offsets = append(offsets, i)
	}
	numRunes := len(offsets)
	offsets = append(offsets, len(t.Text))
	runeIndex := func(byteOffset int) int {
		return sort.SearchInts(offsets, byteOffset)
	}

	var res []*Result
	for _, loc := range s.m(t.Text) {
		start, end := runeIndex(loc[0]), runeIndex(loc[1])
		if start < s.from || (s.to >= 0 && start >= s.to) {
			continue
		}

		r := &Result{
			Text:     t.Text[loc[0]:loc[1]],
			Page:     s.page,
			Location: start,
		}
		r.Context, r.Offset = s.context(t.Text, offsets, numRunes, start, end)
		r.Rects = lineRects(t, start, end)
		for i, rect := range r.Rects {
			if i == 0 {
				r.Bounds = rect
			} else {
				r.Bounds = r.Bounds.Union(rect)
			}
		}
		res = append(res, r)
	}
	return res
}

func (s *pageSearch) context(text string, offsets []int, numRunes, start, end int) (string, int) {
	if s.contextRunes < 0 {
		return text[offsets[start]:offsets[end]], 0
	}
	from := max(start-s.contextRunes, 0)
	to := min(end+s.contextRunes, numRunes)
	ctx := strings.ReplaceAll(text[offsets[from]:offsets[to]], "\n", " ")
	return ctx, start - from
}

// lineRects returns the union of the glyph boxes of runes start to end-1,
// with one rectangle per line.
func lineRects(t *extract.Text, start, end int) []pagespace.Rect {
	var res []pagespace.Rect
	var cur pagespace.Rect
	haveCur := false
	i := 0
	for _, c := range t.Text {
		if i >= end {
			break
		}
		if i >= start {
			if c == '\n' {
				if haveCur {
					res = append(res, cur)
					haveCur = false
				}
			} else if i < len(t.Boxes) && !t.Boxes[i].IsZero() {
				box := t.Boxes[i]
				if haveCur {
					cur = cur.Union(box)
				} else {
					cur, haveCur = box, true
				}
			}
		}
		i++
	}
	if haveCur {
		res = append(res, cur)
	}
	return res
}

// annotations searches the text of the markup annotations on a page.
func (s *pageSearch) annotations(annots []annotation.Annotation) []*Result {
	var res []*Result
	for _, a := range annots {
		for _, text := range annotationTexts(a) {
			for _, loc := range s.m(text) {
				r := &Result{
					Text:       text[loc[0]:loc[1]],
					Page:       s.page,
					Location:   -1,
					Rects:      []pagespace.Rect{a.Base().Rect},
					Bounds:     a.Base().Rect,
					Annotation: a.Clone(),
				}
				r.Context, r.Offset = s.annotationContext(text, loc)
				res = append(res, r)
			}
		}
	}
	return res
}

func (s *pageSearch) annotationContext(text string, loc [2]int) (string, int) {
	if s.contextRunes < 0 {
		return text[loc[0]:loc[1]], 0
	}
	from := loc[0]
	for range s.contextRunes {
		if from == 0 {
			break
		}
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := loc[1]
	for range s.contextRunes {
		if to == len(text) {
			break
		}
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	ctx := strings.ReplaceAll(text[from:to], "\n", " ")
	return ctx, utf8.RuneCountInString(text[from:loc[0]])
}

// annotationTexts returns the searchable texts of a markup annotation.
func annotationTexts(a annotation.Annotation) []string {
	m := annotation.GetMarkup(a)
	if m == nil {
		return nil
	}
	var res []string
	if m.Contents != "" {
		res = append(res, m.Contents)
	}
	if tm, ok := a.(*annotation.TextMarkup); ok && tm.Text != "" {
		res = append(res, tm.Text)
	}
	return res
}
