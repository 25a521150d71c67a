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
	"errors"
	"fmt"
)

// Code classifies the errors reported by the processor.
type Code uint8

// These are the error codes.  SomeOutlineElementsFailed,
// SomeBookmarksFailed and SomeAnnotationsFailed are reported through
// Observer.NonFatal and do not stop the job.  All other codes end the job.
const (
	InvalidProcessingOptions Code = iota + 1
	InvalidWriteOptions
	SomeOutlineElementsFailed
	SomeBookmarksFailed
	SomeAnnotationsFailed
	InvalidPDF
	ProcessingPDFText
	WritingAnnotations
	UpdatingWrittenAnnotations
	AlreadyProcessed
	Internal
	Permissions
	InvalidDocumentPassword
	Cancelled
)

var codeNames = map[Code]string{
	InvalidProcessingOptions:   "invalid processing options",
	InvalidWriteOptions:        "invalid write options",
	SomeOutlineElementsFailed:  "some outline elements failed",
	SomeBookmarksFailed:        "some bookmarks failed",
	SomeAnnotationsFailed:      "some annotations failed",
	InvalidPDF:                 "invalid PDF",
	ProcessingPDFText:          "error processing PDF text",
	WritingAnnotations:         "error writing annotations",
	UpdatingWrittenAnnotations: "error updating written annotations",
	AlreadyProcessed:           "already processed",
	Internal:                   "internal error",
	Permissions:                "insufficient permissions",
	InvalidDocumentPassword:    "invalid document password",
	Cancelled:                  "cancelled",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("processor.Code(%d)", int(c))
}

// IsFatal reports whether errors with this code end a job.
func (c Code) IsFatal() bool {
	switch c {
	case SomeOutlineElementsFailed, SomeBookmarksFailed, SomeAnnotationsFailed:
		return false
	}
	return true
}

// Error is an error reported by the processor.
type Error struct {
	Code Code

	// Page is the zero-based page number the error refers to, or -1.
	Page int

	Err error
}

func newError(code Code, err error) *Error {
	return &Error{Code: code, Page: -1, Err: err}
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Page >= 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page+1)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.  This allows
// to use errors.Is(err, &processor.Error{Code: processor.Cancelled}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of an error returned by the processor, or 0 if
// err is nil or not a processor error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
