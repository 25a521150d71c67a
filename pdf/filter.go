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
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// maxDecodedSize limits the size of decoded stream data.
const maxDecodedSize = 1 << 30

// filterInfo describes one filter in the filter pipeline of a stream.
type filterInfo struct {
	Name  Name
	Parms Dict
}

// streamFilters returns the filters of a stream, in the order they need to
// be applied for decoding.
func streamFilters(r Getter, dict Dict) ([]filterInfo, error) {
	filter, err := Resolve(r, dict["Filter"])
	if err != nil {
		return nil, err
	}
	parms, err := Resolve(r, dict["DecodeParms"])
	if err != nil {
		return nil, err
	}

	var res []filterInfo
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case Name:
		pDict, _ := GetDict(r, parms)
		res = append(res, filterInfo{Name: f, Parms: pDict})
	case Array:
		pArr, _ := parms.(Array)
		for i, fi := range f {
			name, err := GetName(r, fi)
			if err != nil {
				return nil, err
			}
			var pDict Dict
			if i < len(pArr) {
				pDict, _ = GetDict(r, pArr[i])
			}
			res = append(res, filterInfo{Name: name, Parms: pDict})
		}
	default:
		return nil, Errorf("invalid /Filter %s", Format(filter))
	}
	return res, nil
}

// DecodeStream returns the decoded data of a stream.
func DecodeStream(r Getter, stm *Stream) ([]byte, error) {
	if stm == nil || stm.R == nil {
		return nil, nil
	}
	filters, err := streamFilters(r, stm.Dict)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(stm.R, maxDecodedSize))
	if err != nil {
		return nil, err
	}
	for _, f := range filters {
		data, err = decodeFilter(f, data)
		if err != nil {
			return nil, Wrap(err, string(f.Name))
		}
	}
	return data, nil
}

var errUnsupportedFilter = errors.New("unsupported filter")

func decodeFilter(f filterInfo, data []byte) ([]byte, error) {
	switch f.Name {
	case "FlateDecode", "Fl":
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, &MalformedFileError{Err: err}
		}
		out, err := io.ReadAll(io.LimitReader(zr, maxDecodedSize))
		if err != nil && len(out) == 0 {
			return nil, &MalformedFileError{Err: err}
		}
		// Truncated streams are common in the wild; keep what we have.
		return unpredict(out, f.Parms)
	case "ASCIIHexDecode", "AHx":
		return decodeASCIIHex(data)
	case "ASCII85Decode", "A85":
		return decodeASCII85(data)
	case "RunLengthDecode", "RL":
		return decodeRunLength(data)
	case "Crypt":
		if name, _ := f.Parms["Name"].(Name); name != "" && name != "Identity" {
			return nil, fmt.Errorf("%w: crypt filter %q", errUnsupportedFilter, name)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w %q", errUnsupportedFilter, f.Name)
}

func paramInt(parms Dict, key Name, def int) int {
	if x, ok := parms[key].(Integer); ok {
		return int(x)
	}
	return def
}

// unpredict reverses the PNG and TIFF predictors.
//
// PDF 2.0 sections: 7.4.4.4
func unpredict(data []byte, parms Dict) ([]byte, error) {
	predictor := paramInt(parms, "Predictor", 1)
	if predictor == 1 {
		return data, nil
	}
	colors := paramInt(parms, "Colors", 1)
	bpc := paramInt(parms, "BitsPerComponent", 8)
	columns := paramInt(parms, "Columns", 1)
	if colors < 1 || colors > 32 || columns < 1 || columns > 1<<20 ||
		(bpc != 1 && bpc != 2 && bpc != 4 && bpc != 8 && bpc != 16) {
		return nil, Errorf("invalid predictor parameters")
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("%w: TIFF predictor with %d bits", errUnsupportedFilter, bpc)
		}
		out := bytes.Clone(data)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}
	if predictor < 10 {
		return nil, fmt.Errorf("%w: predictor %d", errUnsupportedFilter, predictor)
	}

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for len(data) > 0 {
		tp := data[0]
		n := min(rowLen, len(data)-1)
		cur := make([]byte, rowLen)
		copy(cur, data[1:1+n])
		data = data[1+n:]
		for i := range rowLen {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch tp {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, Errorf("invalid PNG filter type %d", tp)
			}
		}
		out = append(out, cur[:n]...)
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := absInt(p-int(a)), absInt(p-int(b)), absInt(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func decodeASCIIHex(data []byte) ([]byte, error) {
	clean := make([]byte, 0, len(data))
	for _, c := range data {
		if c == '>' {
			break
		}
		if !isSpace[c] {
			clean = append(clean, c)
		}
	}
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, len(clean)/2)
	_, err := hex.Decode(out, clean)
	if err != nil {
		return nil, &MalformedFileError{Err: err}
	}
	return out, nil
}

func decodeASCII85(data []byte) ([]byte, error) {
	if k := bytes.Index(data, []byte("~>")); k >= 0 {
		data = data[:k]
	}
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("<~"))
	out := make([]byte, 4*len(data)+4)
	n, _, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, &MalformedFileError{Err: err}
	}
	return out[:n], nil
}

func decodeRunLength(data []byte) ([]byte, error) {
	var out []byte
	for len(data) > 0 {
		n := int(data[0])
		data = data[1:]
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			if n+1 > len(data) {
				return nil, Errorf("truncated run length data")
			}
			out = append(out, data[:n+1]...)
			data = data[n+1:]
		default:
			if len(data) < 1 {
				return nil, Errorf("truncated run length data")
			}
			out = append(out, bytes.Repeat(data[:1], 257-n)...)
			data = data[1:]
		}
		if len(out) > maxDecodedSize {
			return nil, Errorf("run length data too large")
		}
	}
	return out, nil
}

// Compress returns a stream with Flate-compressed data.
func Compress(dict Dict, data []byte) (*Stream, error) {
	buf := &bytes.Buffer{}
	zw, err := zlib.NewWriterLevel(buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	dict = dict.Clone()
	if dict == nil {
		dict = Dict{}
	}
	dict["Filter"] = Name("FlateDecode")
	delete(dict, "DecodeParms")
	return &Stream{Dict: dict, R: bytes.NewReader(buf.Bytes())}, nil
}
