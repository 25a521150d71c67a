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
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/xdg-go/stringprep"
)

// Perm describes which operations are permitted on an encrypted document.
type Perm int

const (
	// PermPrint allows printing the document.
	PermPrint Perm = 1 << iota

	// PermModify allows modifying the document contents.
	PermModify

	// PermCopy allows copying and extracting text and graphics.
	PermCopy

	// PermAnnotate allows adding or modifying annotations and filling in
	// form fields.
	PermAnnotate

	// PermForms allows filling in form fields, even when PermAnnotate is
	// not set.
	PermForms

	// PermAssemble allows inserting, rotating and deleting pages, and
	// creating bookmarks.
	PermAssemble

	// PermPrintHighRes allows printing at full resolution.
	PermPrintHighRes

	// PermAll is the set of all permissions.
	PermAll = PermPrint | PermModify | PermCopy | PermAnnotate | PermForms |
		PermAssemble | PermPrintHighRes
)

// permFromP converts the /P entry of an encryption dictionary.
//
// PDF 2.0 sections: 7.6.4.2
func permFromP(R int, P uint32) Perm {
	var perm Perm
	if P&(1<<2) != 0 {
		perm |= PermPrint
		if R < 3 || P&(1<<11) != 0 {
			perm |= PermPrintHighRes
		}
	}
	if P&(1<<3) != 0 {
		perm |= PermModify
		if R < 3 {
			perm |= PermAssemble
		}
	}
	if P&(1<<4) != 0 {
		perm |= PermCopy
	}
	if P&(1<<5) != 0 {
		perm |= PermAnnotate
		if R < 3 {
			perm |= PermForms
		}
	}
	if R >= 3 {
		if P&(1<<8) != 0 {
			perm |= PermForms
		}
		if P&(1<<10) != 0 {
			perm |= PermAssemble
		}
	}
	return perm
}

type cipherMethod int

const (
	cipherIdentity cipherMethod = iota
	cipherRC4
	cipherAESV2
	cipherAESV3
)

// securityHandler implements the standard security handler.
//
// PDF 2.0 sections: 7.6.4
type securityHandler struct {
	V, R     int
	keyBytes int

	ID              []byte
	O, U, OE, UE    []byte
	Perms           []byte
	P               uint32
	encryptMetadata bool

	strF, stmF cipherMethod

	key   []byte // file encryption key, nil until authenticated
	owner bool   // whether the owner password was used
}

func newSecurityHandler(r Getter, dict Dict, id []byte) (*securityHandler, error) {
	filter, err := GetName(r, dict["Filter"])
	if err != nil {
		return nil, err
	}
	if filter != "Standard" {
		return nil, fmt.Errorf("unsupported security handler %q", filter)
	}

	sec := &securityHandler{
		ID:              id,
		encryptMetadata: true,
	}

	V, err := GetInteger(r, dict["V"])
	if err != nil {
		return nil, err
	}
	R, err := GetInteger(r, dict["R"])
	if err != nil {
		return nil, err
	}
	sec.V, sec.R = int(V), int(R)

	P, err := GetInteger(r, dict["P"])
	if err != nil {
		return nil, err
	}
	sec.P = uint32(int32(P))

	for key, dst := range map[Name]*[]byte{"O": &sec.O, "U": &sec.U, "OE": &sec.OE, "UE": &sec.UE, "Perms": &sec.Perms} {
		s, err := GetString(r, dict[key])
		if err != nil {
			return nil, err
		}
		*dst = []byte(s)
	}
	if b, ok := dict["EncryptMetadata"].(Bool); ok {
		sec.encryptMetadata = bool(b)
	}

	length := 40
	if l, err := GetInteger(r, dict["Length"]); err == nil && l != 0 {
		length = int(l)
	}

	switch sec.V {
	case 1:
		sec.keyBytes = 5
		sec.strF, sec.stmF = cipherRC4, cipherRC4
	case 2:
		if length < 40 || length > 128 || length%8 != 0 {
			return nil, Errorf("invalid key length %d", length)
		}
		sec.keyBytes = length / 8
		sec.strF, sec.stmF = cipherRC4, cipherRC4
	case 4, 5:
		cf, err := GetDict(r, dict["CF"])
		if err != nil {
			return nil, err
		}
		stmF, _ := GetName(r, dict["StmF"])
		strF, _ := GetName(r, dict["StrF"])
		var stmBytes, strBytes int
		sec.stmF, stmBytes, err = cryptFilterMethod(r, cf, stmF)
		if err != nil {
			return nil, err
		}
		sec.strF, strBytes, err = cryptFilterMethod(r, cf, strF)
		if err != nil {
			return nil, err
		}
		sec.keyBytes = max(stmBytes, strBytes)
		if sec.V == 5 {
			sec.keyBytes = 32
		} else if sec.keyBytes == 0 {
			sec.keyBytes = 16
		}
	default:
		return nil, fmt.Errorf("unsupported encryption algorithm V=%d", sec.V)
	}

	switch sec.R {
	case 2, 3, 4:
		if len(sec.O) < 32 || len(sec.U) < 32 {
			return nil, Errorf("invalid /O or /U in encryption dictionary")
		}
		sec.O, sec.U = sec.O[:32], sec.U[:32]
	case 5, 6:
		if len(sec.O) < 48 || len(sec.U) < 48 || len(sec.OE) < 32 || len(sec.UE) < 32 {
			return nil, Errorf("invalid /O or /U in encryption dictionary")
		}
		sec.O, sec.U = sec.O[:48], sec.U[:48]
		sec.OE, sec.UE = sec.OE[:32], sec.UE[:32]
	default:
		return nil, fmt.Errorf("unsupported security handler revision %d", sec.R)
	}
	return sec, nil
}

func cryptFilterMethod(r Getter, cf Dict, name Name) (cipherMethod, int, error) {
	if name == "" || name == "Identity" {
		return cipherIdentity, 0, nil
	}
	dict, err := GetDict(r, cf[name])
	if err != nil {
		return 0, 0, err
	}
	if dict == nil {
		return 0, 0, Errorf("missing crypt filter %q", name)
	}
	cfm, _ := GetName(r, dict["CFM"])
	length, _ := GetInteger(r, dict["Length"])
	if length > 32 {
		// some writers give the length in bits
		length /= 8
	}
	switch cfm {
	case "None", "":
		return cipherIdentity, 0, nil
	case "V2":
		if length == 0 {
			length = 16
		}
		return cipherRC4, int(length), nil
	case "AESV2":
		return cipherAESV2, 16, nil
	case "AESV3":
		return cipherAESV3, 32, nil
	}
	return 0, 0, fmt.Errorf("unsupported crypt filter method %q", cfm)
}

// authenticate tries the given password, first as owner password and then
// as user password.
func (sec *securityHandler) authenticate(passwd string) error {
	if sec.R >= 5 {
		pw, err := saslPassword(passwd)
		if err != nil {
			return err
		}
		if sec.authenticateOwner6(pw) == nil {
			return nil
		}
		return sec.authenticateUser6(pw)
	}

	pw := padPassword(passwd)
	if sec.authenticateOwner(pw) == nil {
		return nil
	}
	return sec.authenticateUser(pw)
}

var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// padPassword converts a password for revisions 2-4.
// Characters outside Latin-1 are dropped.
func padPassword(passwd string) []byte {
	res := make([]byte, 0, 32)
	for _, r := range passwd {
		if len(res) == 32 {
			break
		}
		if r < 256 {
			res = append(res, byte(r))
		}
	}
	return append(res, passwordPad[:32-len(res)]...)
}

// saslPassword converts a password for revisions 5 and 6.
func saslPassword(passwd string) ([]byte, error) {
	prepped, err := stringprep.SASLprep.Prepare(passwd)
	if err != nil {
		return nil, err
	}
	pw := []byte(prepped)
	if len(pw) > 127 {
		pw = pw[:127]
	}
	return pw, nil
}

// fileKey implements algorithm 2: computing the file encryption key from
// the padded user password.
func (sec *securityHandler) fileKey(paddedUser []byte) []byte {
	h := md5.New()
	h.Write(paddedUser)
	h.Write(sec.O)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], sec.P)
	h.Write(p[:])
	h.Write(sec.ID)
	if sec.R >= 4 && !sec.encryptMetadata {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)
	if sec.R >= 3 {
		for range 50 {
			sum := md5.Sum(key[:sec.keyBytes])
			key = sum[:]
		}
	}
	return key[:sec.keyBytes]
}

// computeU implements algorithms 4 and 5.
func (sec *securityHandler) computeU(key []byte) []byte {
	if sec.R == 2 {
		U := make([]byte, 32)
		c, _ := rc4.NewCipher(key)
		c.XORKeyStream(U, passwordPad)
		return U
	}

	h := md5.New()
	h.Write(passwordPad)
	h.Write(sec.ID)
	U := h.Sum(nil)
	rc4Rounds(key, U, false)
	return U
}

// rc4Rounds applies the 20 rounds of RC4 encryption used by algorithms 3,
// 5 and 7, with the key XORed by the round number.
func rc4Rounds(key, data []byte, reverse bool) {
	tmp := make([]byte, len(key))
	for round := range 20 {
		i := round
		if reverse {
			i = 19 - round
		}
		for j := range tmp {
			tmp[j] = key[j] ^ byte(i)
		}
		c, _ := rc4.NewCipher(tmp)
		c.XORKeyStream(data, data)
	}
}

func (sec *securityHandler) authenticateUser(paddedUser []byte) error {
	key := sec.fileKey(paddedUser)
	U := sec.computeU(key)
	n := 32
	if sec.R >= 3 {
		n = 16
	}
	if !bytes.Equal(U[:n], sec.U[:n]) {
		return &AuthenticationError{ID: sec.ID}
	}
	sec.key = key
	return nil
}

// authenticateOwner implements algorithm 7.
func (sec *securityHandler) authenticateOwner(paddedOwner []byte) error {
	sum := md5.Sum(paddedOwner)
	key := sum[:]
	if sec.R >= 3 {
		for range 50 {
			sum = md5.Sum(key[:sec.keyBytes])
			key = sum[:]
		}
	}
	key = key[:sec.keyBytes]

	user := bytes.Clone(sec.O)
	if sec.R == 2 {
		c, _ := rc4.NewCipher(key)
		c.XORKeyStream(user, user)
	} else {
		rc4Rounds(key, user, true)
	}

	if err := sec.authenticateUser(user); err != nil {
		return err
	}
	sec.owner = true
	return nil
}

// hash6 implements algorithm 2.B for revision 6, and the plain SHA-256
// hash used by revision 5.
func (sec *securityHandler) hash6(passwd, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(passwd)
	h.Write(salt)
	h.Write(udata)
	K := h.Sum(nil)
	if sec.R == 5 {
		return K
	}

	K1 := make([]byte, 0, 64*(len(passwd)+64+len(udata)))
	var E []byte
	for round := 0; round < 64 || int(E[len(E)-1]) > round-32; round++ {
		K1 = K1[:0]
		for range 64 {
			K1 = append(K1, passwd...)
			K1 = append(K1, K...)
			K1 = append(K1, udata...)
		}
		c, _ := aes.NewCipher(K[:16])
		cipher.NewCBCEncrypter(c, K[16:32]).CryptBlocks(K1, K1)
		E = K1

		mod := 0
		for _, b := range E[:16] {
			mod += int(b)
		}
		var next hash.Hash
		switch mod % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(E)
		K = next.Sum(nil)
	}
	return K[:32]
}

var zeroIV = make([]byte, 16)

func (sec *securityHandler) unwrapKey(intermediate, wrapped []byte) []byte {
	c, _ := aes.NewCipher(intermediate)
	key := make([]byte, 32)
	cipher.NewCBCDecrypter(c, zeroIV).CryptBlocks(key, wrapped)
	return key
}

// authenticateUser6 implements algorithm 11.
func (sec *securityHandler) authenticateUser6(pw []byte) error {
	if !bytes.Equal(sec.hash6(pw, sec.U[32:40], nil), sec.U[:32]) {
		return &AuthenticationError{ID: sec.ID}
	}
	key := sec.unwrapKey(sec.hash6(pw, sec.U[40:48], nil), sec.UE)
	if err := sec.checkPerms(key); err != nil {
		return err
	}
	sec.key = key
	return nil
}

// authenticateOwner6 implements algorithm 12.
func (sec *securityHandler) authenticateOwner6(pw []byte) error {
	if !bytes.Equal(sec.hash6(pw, sec.O[32:40], sec.U), sec.O[:32]) {
		return &AuthenticationError{ID: sec.ID}
	}
	key := sec.unwrapKey(sec.hash6(pw, sec.O[40:48], sec.U), sec.OE)
	if err := sec.checkPerms(key); err != nil {
		return err
	}
	sec.key = key
	sec.owner = true
	return nil
}

// checkPerms implements algorithm 13.
func (sec *securityHandler) checkPerms(key []byte) error {
	if len(sec.Perms) < 16 {
		// Revision 5 files sometimes omit /Perms.
		if sec.R == 5 {
			return nil
		}
		return &AuthenticationError{ID: sec.ID}
	}
	buf := make([]byte, 16)
	c, _ := aes.NewCipher(key)
	c.Decrypt(buf, sec.Perms[:16])
	if string(buf[9:12]) != "adb" || binary.LittleEndian.Uint32(buf[:4]) != sec.P {
		return &AuthenticationError{ID: sec.ID}
	}
	return nil
}

// permissions returns the operations allowed for the authenticated user.
func (sec *securityHandler) permissions() Perm {
	if sec.owner {
		return PermAll
	}
	return permFromP(sec.R, sec.P)
}

// objectKey implements algorithm 1: the key for an individual object.
func (sec *securityHandler) objectKey(ref Reference, method cipherMethod) []byte {
	if method == cipherAESV3 {
		return sec.key
	}
	h := md5.New()
	h.Write(sec.key)
	num := ref.Number()
	gen := ref.Generation()
	h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), byte(gen), byte(gen >> 8)})
	if method == cipherAESV2 {
		h.Write([]byte("sAlT"))
	}
	key := h.Sum(nil)
	return key[:min(sec.keyBytes+5, 16)]
}

func (sec *securityHandler) decrypt(ref Reference, method cipherMethod, data []byte) ([]byte, error) {
	if sec.key == nil {
		return nil, ErrNoAuth
	}
	switch method {
	case cipherIdentity:
		return data, nil
	case cipherRC4:
		out := make([]byte, len(data))
		c, _ := rc4.NewCipher(sec.objectKey(ref, method))
		c.XORKeyStream(out, data)
		return out, nil
	}

	if len(data) < 16 || len(data)%16 != 0 {
		if len(data) == 0 {
			return data, nil
		}
		return nil, errCorrupted
	}
	c, err := aes.NewCipher(sec.objectKey(ref, method))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data)-16)
	cipher.NewCBCDecrypter(c, data[:16]).CryptBlocks(out, data[16:])
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad < 1 || pad > 16 || pad > len(out) {
		return nil, errCorrupted
	}
	return out[:len(out)-pad], nil
}

func (sec *securityHandler) encrypt(ref Reference, method cipherMethod, data []byte) ([]byte, error) {
	if sec.key == nil {
		return nil, ErrNoAuth
	}
	switch method {
	case cipherIdentity:
		return data, nil
	case cipherRC4:
		out := make([]byte, len(data))
		c, _ := rc4.NewCipher(sec.objectKey(ref, method))
		c.XORKeyStream(out, data)
		return out, nil
	}

	c, err := aes.NewCipher(sec.objectKey(ref, method))
	if err != nil {
		return nil, err
	}
	pad := 16 - len(data)%16
	out := make([]byte, 16+len(data)+pad)
	if _, err := rand.Read(out[:16]); err != nil {
		return nil, err
	}
	copy(out[16:], data)
	for i := 16 + len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(c, out[:16]).CryptBlocks(out[16:], out[16:])
	return out, nil
}

// decryptObject returns a copy of obj with all strings decrypted.
// Streams are decrypted lazily, when their data is read.
func (sec *securityHandler) decryptObject(ref Reference, obj Object) (Object, error) {
	return sec.transform(ref, obj, sec.decrypt)
}

// encryptObject returns a copy of obj with all strings encrypted.
func (sec *securityHandler) encryptObject(ref Reference, obj Object) (Object, error) {
	return sec.transform(ref, obj, sec.encrypt)
}

type cryptFunc func(Reference, cipherMethod, []byte) ([]byte, error)

func (sec *securityHandler) transform(ref Reference, obj Object, f cryptFunc) (Object, error) {
	switch x := obj.(type) {
	case String:
		out, err := f(ref, sec.strF, x)
		if err != nil {
			return nil, err
		}
		return String(out), nil
	case Array:
		res := make(Array, len(x))
		for i, elem := range x {
			var err error
			res[i], err = sec.transform(ref, elem, f)
			if err != nil {
				return nil, err
			}
		}
		return res, nil
	case Dict:
		res := make(Dict, len(x))
		for key, val := range x {
			var err error
			res[key], err = sec.transform(ref, val, f)
			if err != nil {
				return nil, err
			}
		}
		return res, nil
	case *Stream:
		dict, err := sec.transform(ref, x.Dict, f)
		if err != nil {
			return nil, err
		}
		return &Stream{Dict: dict.(Dict), R: x.R}, nil
	}
	return obj, nil
}

// streamMethod returns the cipher used for the data of the given stream.
func (sec *securityHandler) streamMethod(dict Dict) cipherMethod {
	if tp, _ := dict["Type"].(Name); tp == "XRef" {
		return cipherIdentity
	} else if tp == "Metadata" && !sec.encryptMetadata {
		return cipherIdentity
	}
	if f, ok := dict["Filter"].(Array); ok && len(f) > 0 && f[0] == Name("Crypt") {
		return cipherIdentity
	}
	return sec.stmF
}
