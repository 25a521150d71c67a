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
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
)

const (
	userPassword  = "secret"
	ownerPassword = "very secret"
)

// encryptedTestFile returns an RC4 encrypted file, which allows printing
// but not copying.
func encryptedTestFile(t *testing.T) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetProtection(fpdf.CnProtectPrint, userPassword, ownerPassword)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Text(20, 20, "encrypted text")
	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLocked(t *testing.T) {
	data := encryptedTestFile(t)
	r := openTestFile(t, data, nil)

	if !r.IsEncrypted() {
		t.Fatal("file not recognised as encrypted")
	}
	if r.Authenticated() || r.IsOwner() {
		t.Error("unexpected access without a password")
	}
	if r.Permissions() != 0 {
		t.Errorf("permissions without a password: %d", r.Permissions())
	}
	if _, err := r.Catalog(); !errors.Is(err, ErrNoAuth) {
		t.Errorf("expected ErrNoAuth, got %v", err)
	}
	if _, err := NewUpdateWriter(&bytes.Buffer{}, r); !errors.Is(err, ErrNoAuth) {
		t.Errorf("expected ErrNoAuth, got %v", err)
	}

	err := r.Authenticate("wrong")
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("expected an AuthenticationError, got %v", err)
	}
	if r.Authenticated() {
		t.Error("wrong password was accepted")
	}
}

func TestPasswords(t *testing.T) {
	data := encryptedTestFile(t)

	r := openTestFile(t, data, &ReaderOptions{Password: userPassword})
	if !r.Authenticated() {
		t.Fatal("user password not accepted")
	}
	if r.IsOwner() {
		t.Error("user password gave owner access")
	}
	perm := r.Permissions()
	if perm&PermPrint == 0 || perm&PermCopy != 0 || perm&PermModify != 0 {
		t.Errorf("wrong permissions %07b", perm)
	}
	info, err := GetDict(r, r.Trailer()["Info"])
	if err != nil {
		t.Fatal(err)
	}
	producer, _ := GetString(r, info["Producer"])
	if got := producer.AsTextString(); !strings.HasPrefix(got, "FPDF") {
		t.Errorf("string not decrypted: %q", got)
	}

	// the owner password upgrades access
	if err := r.Authenticate(ownerPassword); err != nil {
		t.Fatal(err)
	}
	if !r.IsOwner() || r.Permissions() != PermAll {
		t.Error("owner password did not give full access")
	}
	// and a later user password does not downgrade it
	if err := r.Authenticate(userPassword); err != nil {
		t.Fatal(err)
	}
	if !r.IsOwner() {
		t.Error("access was downgraded")
	}

	r2 := openTestFile(t, data, &ReaderOptions{Password: ownerPassword})
	if !r2.IsOwner() {
		t.Error("owner password not accepted")
	}
}

func TestEncryptedUpdate(t *testing.T) {
	data := encryptedTestFile(t)
	r := openTestFile(t, data, &ReaderOptions{Password: userPassword})

	buf := &bytes.Buffer{}
	w, err := NewUpdateWriter(buf, r)
	if err != nil {
		t.Fatal(err)
	}
	ref := w.Alloc()
	msg := "a note (with brackets)\n"
	if err := w.Put(ref, Dict{"Contents": TextString(msg)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(buf.Bytes()[len(data):], []byte("brackets")) {
		t.Error("new string was stored in clear text")
	}

	r2 := openTestFile(t, buf.Bytes(), &ReaderOptions{Password: userPassword})
	dict, err := GetDict(r2, ref)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := GetString(r2, dict["Contents"])
	if got.AsTextString() != msg {
		t.Errorf("wrong string %q", got.AsTextString())
	}
	if _, err := r2.Catalog(); err != nil {
		t.Error(err)
	}
}

func TestPadPassword(t *testing.T) {
	long := padPassword("0123456789012345678901234567890123456789")
	if len(long) != 32 || string(long) != "01234567890123456789012345678901" {
		t.Errorf("wrong padding %q", long)
	}
	empty := padPassword("")
	if len(empty) != 32 || empty[0] != 0x28 || empty[31] != 0x7A {
		t.Errorf("wrong padding %x", empty)
	}
}
