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
	"fmt"
	"strconv"
)

// MalformedFileError indicates that a PDF file could not be parsed.
type MalformedFileError struct {
	Pos int64
	Err error
}

func (err *MalformedFileError) Error() string {
	middle := ""
	if err.Err != nil {
		middle = ": " + err.Err.Error()
	}
	tail := ""
	if err.Pos > 0 {
		tail = " (at byte " + strconv.FormatInt(err.Pos, 10) + ")"
	}
	return "not a valid PDF file" + middle + tail
}

func (err *MalformedFileError) Unwrap() error {
	return err.Err
}

// Errorf returns a MalformedFileError with a formatted message.
func Errorf(format string, args ...any) error {
	return &MalformedFileError{Err: fmt.Errorf(format, args...)}
}

// Wrap adds context information to an error.
// MalformedFileErrors keep their type, so that callers can still
// recognise invalid input.
func Wrap(err error, where string) error {
	if err == nil {
		return nil
	}
	var mf *MalformedFileError
	if errors.As(err, &mf) {
		return &MalformedFileError{
			Pos: mf.Pos,
			Err: fmt.Errorf("%s: %w", where, mf.Err),
		}
	}
	return fmt.Errorf("%s: %w", where, err)
}

// IsMalformed reports whether err indicates a malformed PDF file.
func IsMalformed(err error) bool {
	var mf *MalformedFileError
	return errors.As(err, &mf)
}

// AuthenticationError indicates that a wrong password has been supplied,
// or that no password was supplied for an encrypted file.
type AuthenticationError struct {
	ID []byte
}

func (err *AuthenticationError) Error() string {
	return "authentication failed for document ID " + fmt.Sprintf("%x", err.ID)
}

var (
	// ErrNoAuth is returned when an object is read from an encrypted
	// document before the user password has been supplied.
	ErrNoAuth = errors.New("document is encrypted, password required")

	// ErrNoOwner is returned when an operation requires the owner
	// password, but only the user password has been supplied.
	ErrNoOwner = errors.New("operation requires the owner password")

	errVersion     = errors.New("unsupported PDF version")
	errCorrupted   = errors.New("corrupted ciphertext")
	errInvalidXref = errors.New("invalid cross-reference table")
)
