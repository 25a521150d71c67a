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
	"seehuhn.de/go/annotate/pdf"
)

// unlock asks the observer for passwords until the document can be read
// with the required access level.  Each password type is requested at
// most Config.MaxPasswordAttempts times.
//
// If the owner password is required but only the user password is known,
// the error code is Permissions.  Otherwise, a missing password gives
// InvalidDocumentPassword.
func (t *task) unlock(r *pdf.Reader, need PasswordType) *Error {
	if !r.IsEncrypted() || r.IsOwner() {
		return nil
	}
	if need == PasswordUser && r.Authenticated() {
		return nil
	}

	for attempt := 1; attempt <= t.p.cfg.maxAttempts(); attempt++ {
		pw, ok := t.obs.PasswordRequest(need, attempt)
		if !ok {
			t.log.Info().Str("type", need.String()).Msg("password request declined")
			break
		}
		if t.doc.Decrypt(pw) && (need == PasswordUser || t.doc.IsOwner()) {
			t.log.Info().Str("type", need.String()).Int("attempt", attempt).Msg("password accepted")
			t.obs.PasswordValidated(need)
			return nil
		}
		t.log.Info().Str("type", need.String()).Int("attempt", attempt).Msg("wrong password")
		t.obs.PasswordFailed(need)
		if err := t.job.cancelled(); err != nil {
			return err
		}
	}

	if need == PasswordOwner && r.Authenticated() {
		return newError(Permissions, pdf.ErrNoOwner)
	}
	return newError(InvalidDocumentPassword, pdf.ErrNoAuth)
}
