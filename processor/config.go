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

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"
)

// Config holds the settings of a Processor.
type Config struct {
	// Workers is the number of jobs which may run at the same time.
	// Zero selects one worker, so that all jobs are serialized.
	Workers int `validate:"gte=0,lte=64" toml:"workers"`

	// MaxPasswordAttempts limits the number of password requests per
	// password type.  Zero selects 3.
	MaxPasswordAttempts int `validate:"gte=0,lte=100" toml:"max_password_attempts"`

	// CacheSize is the memory budget, in bytes, for the object cache of
	// each PDF reader.  Zero selects the default.
	CacheSize int64 `validate:"gte=0" toml:"cache_size"`

	// Producer is stored in the document information dictionary of
	// written files.
	Producer string `validate:"max=256" toml:"producer"`

	// Logger receives log messages.  If this is nil, messages are only
	// collected in the per-job logs.
	Logger *log.Logger `validate:"-" toml:"-"`
}

// ProcessOptions controls Processor.Process.
type ProcessOptions struct {
	// Force causes documents to be processed again, even if the
	// information store is up to date.
	Force bool

	// Strict makes Process fail with AlreadyProcessed if the information
	// store is up to date.  Otherwise, Process succeeds without doing
	// anything.
	Strict bool `validate:"excluded_with=Force"`
}

// WriteFlags selects how Processor.Write generates the output file.
type WriteFlags uint8

// The zero value CopyOriginal keeps the original PDF content and writes
// the annotations as editable PDF annotations.
const (
	CopyOriginal WriteFlags = 0

	// Flatten draws the annotations into the page content.  Pages which
	// list the note texts are added to the output.
	Flatten WriteFlags = 1 << (iota - 1)

	// AnnotatedPagesOnly restricts the output to pages with annotations.
	AnnotatedPagesOnly

	// StripUserAnnotations removes all annotations apart from links.
	// Together with Flatten, this has the same effect as
	// StripUserAnnotations alone.
	StripUserAnnotations

	// UsePageRange restricts the output to WriteOptions.PageRange.
	UsePageRange

	allWriteFlags = Flatten | AnnotatedPagesOnly | StripUserAnnotations | UsePageRange
)

// PageRange is a range of zero-based page numbers.
type PageRange struct {
	First int `validate:"gte=0"`
	Count int `validate:"gte=0"`
}

// Contains reports whether page is in the range.
func (r PageRange) Contains(page int) bool {
	return page >= r.First && page-r.First < r.Count
}

// WriteOptions controls Processor.Write.
type WriteOptions struct {
	Flags     WriteFlags
	PageRange PageRange

	// Validate checks the output file with an independent PDF parser
	// after writing.
	Validate bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		opt := sl.Current().Interface().(WriteOptions)
		if opt.Flags&^allWriteFlags != 0 {
			sl.ReportError(opt.Flags, "Flags", "Flags", "flags", "")
		}
		if opt.Flags&UsePageRange != 0 && opt.PageRange.Count < 1 {
			sl.ReportError(opt.PageRange.Count, "Count", "Count", "min", "1")
		}
	}, WriteOptions{})
	return v
}

// Check validates the configuration.
func (c *Config) Check() error {
	return checkStruct(c)
}

func checkStruct(s any) error {
	err := validate.Struct(s)
	var verr validator.ValidationErrors
	if errors.As(err, &verr) && len(verr) > 0 {
		fe := verr[0]
		return fmt.Errorf("invalid value %v for %s (%s)", fe.Value(), fe.Namespace(), fe.Tag())
	}
	return err
}

func (c *Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

func (c *Config) maxAttempts() int {
	if c.MaxPasswordAttempts <= 0 {
		return 3
	}
	return c.MaxPasswordAttempts
}

func (c *Config) producer() string {
	if c.Producer == "" {
		return "seehuhn.de/go/annotate"
	}
	return c.Producer
}
