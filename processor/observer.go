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

import "fmt"

// Kind identifies the type of a job.
type Kind uint8

// These are the job types.
const (
	KindProcess Kind = iota + 1
	KindSync
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindSync:
		return "sync"
	case KindWrite:
		return "write"
	}
	return fmt.Sprintf("processor.Kind(%d)", int(k))
}

// PasswordType says which password is needed.
type PasswordType uint8

// These are the password types.
const (
	// PasswordUser asks for any password which opens the document.
	PasswordUser PasswordType = 1

	// PasswordOwner asks for the owner password, which gives full access.
	PasswordOwner PasswordType = 2
)

func (t PasswordType) String() string {
	switch t {
	case PasswordUser:
		return "user"
	case PasswordOwner:
		return "owner"
	}
	return fmt.Sprintf("processor.PasswordType(%d)", int(t))
}

// Observer receives the events of a job.  The methods are called from the
// goroutine which runs the job, one at a time.
//
// Types implementing Observer can embed BaseObserver and override only
// the methods they need.
type Observer interface {
	// PasswordRequest asks for a password.  Attempt counts the requests
	// for this password type, starting at 1.  If ok is false, the job
	// fails.
	PasswordRequest(t PasswordType, attempt int) (password string, ok bool)

	// PasswordValidated and PasswordFailed report whether a password
	// obtained from PasswordRequest was accepted.
	PasswordValidated(t PasswordType)
	PasswordFailed(t PasswordType)

	Started(kind Kind)

	// PageProcessed reports progress.  If the method returns true, the
	// job is cancelled.
	PageProcessed(page, numPages int) (cancel bool)

	// AnnotationsProcessed reports the number of annotations read from,
	// or written to, a page.
	AnnotationsProcessed(page, n int)

	// NonFatal reports problems which do not stop the job.
	NonFatal(err *Error)

	// Exactly one of Finished and Failed is called at the end of a job.
	Finished(kind Kind)
	Failed(kind Kind, err *Error)

	// Log delivers the log messages of the job, after the job has ended.
	Log(text string)

	// Synced delivers the new contents of an in-memory document after a
	// successful sync.
	Synced(data []byte)
}

// BaseObserver implements all Observer methods.  Password requests are
// declined and progress is ignored.
type BaseObserver struct{}

func (BaseObserver) PasswordRequest(PasswordType, int) (string, bool) { return "", false }
func (BaseObserver) PasswordValidated(PasswordType)                   {}
func (BaseObserver) PasswordFailed(PasswordType)                      {}
func (BaseObserver) Started(Kind)                                     {}
func (BaseObserver) PageProcessed(int, int) bool                      { return false }
func (BaseObserver) AnnotationsProcessed(int, int)                    {}
func (BaseObserver) NonFatal(*Error)                                  {}
func (BaseObserver) Finished(Kind)                                    {}
func (BaseObserver) Failed(Kind, *Error)                              {}
func (BaseObserver) Log(string)                                       {}
func (BaseObserver) Synced([]byte)                                    {}

var _ Observer = BaseObserver{}
