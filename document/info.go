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

package document

import (
	"time"

	"seehuhn.de/go/annotate/pdf"
)

// PDF 2.0 sections: 14.3.3

// Info represents a PDF document information dictionary.
//
// All fields are optional.  The zero value represents an empty
// information dictionary.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string

	// Creator gives the name of the application that created the original
	// document, if the document was converted to PDF from another format.
	Creator string

	// Producer gives the name of the application that converted the
	// document to PDF.
	Producer string

	CreationDate time.Time
	ModDate      time.Time

	// Custom contains non-standard text entries.
	Custom map[string]string
}

var infoKeys = []pdf.Name{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"}

func (info *Info) field(key pdf.Name) *string {
	switch key {
	case "Title":
		return &info.Title
	case "Author":
		return &info.Author
	case "Subject":
		return &info.Subject
	case "Keywords":
		return &info.Keywords
	case "Creator":
		return &info.Creator
	case "Producer":
		return &info.Producer
	}
	return nil
}

// Info reads the document information dictionary.  If the document has
// none, the zero Info is returned.
func (d *Document) Info() (*Info, error) {
	r, err := d.Reader()
	if err != nil {
		return nil, err
	}
	return ReadInfo(r, r.Trailer()["Info"])
}

// ReadInfo decodes a document information dictionary.  Malformed entries
// are ignored.
func ReadInfo(r pdf.Getter, obj pdf.Object) (*Info, error) {
	dict, err := pdf.GetDict(r, obj)
	if err != nil {
		return nil, err
	}

	info := &Info{}
	for key, val := range dict {
		s, err := pdf.GetString(r, val)
		if err != nil || len(s) == 0 {
			continue
		}
		switch key {
		case "CreationDate":
			info.CreationDate, _ = s.AsDate()
		case "ModDate":
			info.ModDate, _ = s.AsDate()
		default:
			if f := info.field(key); f != nil {
				*f = s.AsTextString()
			} else {
				if info.Custom == nil {
					info.Custom = make(map[string]string)
				}
				info.Custom[string(key)] = s.AsTextString()
			}
		}
	}
	return info, nil
}

// Dict converts the information to a PDF dictionary.
func (info *Info) Dict() pdf.Dict {
	dict := pdf.Dict{}
	for _, key := range infoKeys {
		if s := *info.field(key); s != "" {
			dict[key] = pdf.TextString(s)
		}
	}
	if !info.CreationDate.IsZero() {
		dict["CreationDate"] = pdf.Date(info.CreationDate)
	}
	if !info.ModDate.IsZero() {
		dict["ModDate"] = pdf.Date(info.ModDate)
	}
	for key, val := range info.Custom {
		dict[pdf.Name(key)] = pdf.TextString(val)
	}
	return dict
}
