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

package processor

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
)

type fixture struct {
	pages    int
	outline  bool
	link     bool
	user     string
	owner    string
	protects byte
}

// makePDF generates a test file.  Every page shows the text
// "alpha beta alpha" followed by the page number.
func makePDF(t testing.TB, f fixture) []byte {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCreationDate(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if f.user != "" || f.owner != "" {
		doc.SetProtection(f.protects, f.user, f.owner)
	}
	var link int
	if f.link {
		link = doc.AddLink()
	}
	for i := range f.pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		if f.outline {
			doc.Bookmark(fmt.Sprintf("Chapter %d", i+1), 0, 0)
		}
		doc.Text(20, 30, fmt.Sprintf("alpha beta alpha %d", i+1))
		doc.Text(20, 50, "The quick brown fox")
		if f.link && i == 0 {
			doc.Link(20, 60, 40, 10, link)
		}
		if f.link && i == f.pages-1 {
			doc.SetLink(link, 0, -1)
		}
	}

	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// recorder is an Observer which records the events of a job.
type recorder struct {
	BaseObserver

	// answers gives the passwords returned by PasswordRequest.  Missing
	// entries decline the request.
	answers map[PasswordType]string

	// cancelAt makes PageProcessed request cancellation on this page,
	// if positive.
	cancelAt int

	requests  []PasswordType
	validated []PasswordType
	failedPw  []PasswordType
	started   []Kind
	finished  []Kind
	failed    []Code
	nonFatal  []Code
	pages     []int
	annots    map[int]int
	log       string
	synced    []byte
}

func newRecorder() *recorder {
	return &recorder{cancelAt: -1, annots: map[int]int{}}
}

func (r *recorder) PasswordRequest(t PasswordType, attempt int) (string, bool) {
	r.requests = append(r.requests, t)
	pw, ok := r.answers[t]
	return pw, ok
}

func (r *recorder) PasswordValidated(t PasswordType) { r.validated = append(r.validated, t) }
func (r *recorder) PasswordFailed(t PasswordType)    { r.failedPw = append(r.failedPw, t) }
func (r *recorder) Started(k Kind)                   { r.started = append(r.started, k) }
func (r *recorder) Finished(k Kind)                  { r.finished = append(r.finished, k) }
func (r *recorder) Failed(k Kind, err *Error)        { r.failed = append(r.failed, err.Code) }
func (r *recorder) NonFatal(err *Error)              { r.nonFatal = append(r.nonFatal, err.Code) }
func (r *recorder) AnnotationsProcessed(page, n int) { r.annots[page] = n }
func (r *recorder) Log(text string)                  { r.log = text }
func (r *recorder) Synced(data []byte)               { r.synced = data }

func (r *recorder) PageProcessed(page, numPages int) bool {
	r.pages = append(r.pages, page)
	return page == r.cancelAt
}

// wait waits for a job with a timeout.
func wait(t *testing.T, job *Job) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	select {
	case <-job.Done():
	case <-ctx.Done():
		t.Fatal("job did not finish")
	}
	return job.Wait(ctx)
}

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
