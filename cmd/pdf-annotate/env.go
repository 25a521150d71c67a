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


package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/phuslu/log"
	"golang.org/x/term"

	"seehuhn.de/go/annotate/document"
	"seehuhn.de/go/annotate/processor"
)

// env holds the state shared by all commands.
type env struct {
	ctx    context.Context
	cfg    *config
	logger *log.Logger
	proc   *processor.Processor

	stdin          io.Reader
	stdout, stderr io.Writer

	// password is tried first when a PDF file asks for a password.
	password string
}

func newEnv(ctx context.Context, cfg *config, stdin io.Reader, stdout, stderr io.Writer) (*env, error) {
	logger := newLogger(cfg.Log, stderr)

	pcfg := cfg.Processor
	pcfg.Logger = logger
	proc, err := processor.New(&pcfg)
	if err != nil {
		return nil, err
	}

	e := &env{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		proc:   proc,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	return e, nil
}

func newLogger(cfg logConfig, w io.Writer) *log.Logger {
	var writer log.Writer
	if cfg.Format == "json" {
		writer = &log.IOWriter{Writer: w}
	} else {
		writer = &log.ConsoleWriter{Writer: w}
	}
	return &log.Logger{
		Level:  log.ParseLevel(cfg.Level),
		Writer: writer,
	}
}

// author returns the author name for new annotations.
func (e *env) author() string {
	if e.cfg.Author != "" {
		return e.cfg.Author
	}
	if u, err := user.Current(); err == nil {
		if u.Name != "" {
			return u.Name
		}
		return u.Username
	}
	return ""
}

// open returns the document for a PDF file.  If needProcessed is set and
// the file has no up to date information file, the file is processed
// first.
func (e *env) open(fname string, needProcessed bool) (*document.Document, error) {
	if _, err := os.Stat(fname); err != nil {
		return nil, err
	}
	doc := document.OpenPath(fname)
	if needProcessed && !doc.Information().IsProcessed() {
		e.logger.Info().Str("file", fname).Msg("processing file")
		err := e.runJob(e.proc.Process(e.ctx, doc, nil, e.observer()))
		if err != nil {
			doc.Close()
			return nil, err
		}
	}
	return doc, nil
}

// save writes the information file after an annotation change.
func (e *env) save(doc *document.Document) error {
	return doc.Information().Save()
}

// runJob waits for a processor job to end.
func (e *env) runJob(job *processor.Job) error {
	<-job.Done()
	if err := job.Err(); err != nil {
		return err
	}
	return nil
}

// observer returns the processor observer for a job.
func (e *env) observer() *observer {
	return &observer{e: e}
}

// observer reports job events on the terminal and asks for passwords.
type observer struct {
	processor.BaseObserver
	e *env
}

// PasswordRequest implements the processor.Observer interface.
// The password from the command line is tried first.  Further passwords
// are read from the terminal, if there is one.
func (o *observer) PasswordRequest(t processor.PasswordType, attempt int) (string, bool) {
	if attempt == 1 && o.e.password != "" {
		return o.e.password, true
	}
	f, ok := o.e.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", false
	}
	fmt.Fprintf(o.e.stderr, "%s password: ", t)
	passwd, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(o.e.stderr, "***")
	if err != nil {
		return "", false
	}
	return string(passwd), true
}

// PasswordFailed implements the processor.Observer interface.
func (o *observer) PasswordFailed(t processor.PasswordType) {
	fmt.Fprintf(o.e.stderr, "invalid %s password\n", t)
}

// PageProcessed implements the processor.Observer interface.
func (o *observer) PageProcessed(page, numPages int) bool {
	o.e.logger.Debug().Int("page", page+1).Int("pages", numPages).Msg("page done")
	return false
}

// NonFatal implements the processor.Observer interface.
func (o *observer) NonFatal(err *processor.Error) {
	fmt.Fprintln(o.e.stderr, "warning:", err)
}
