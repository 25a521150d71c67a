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

// Package processor runs the long-running operations on documents:
// processing a PDF file into its information store, writing annotation
// changes back into the PDF file, and generating annotated copies.
//
// Operations run as jobs on their own goroutine.  Results are reported
// through an Observer and through the returned Job.  The jobs submitted to
// one Processor share a bounded number of worker slots, and jobs on the
// same document never overlap with each other or with annotation changes.
package processor

import (
	"context"
	"fmt"
	"os"

	"github.com/phuslu/log"

	"seehuhn.de/go/annotate/document"
)

// Processor runs jobs on documents.
type Processor struct {
	cfg  Config
	slot chan struct{}
}

// New returns a Processor with the given configuration.  If cfg is nil,
// default values are used.
func New(cfg *Config) (*Processor, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}
	p := &Processor{
		cfg:  *cfg,
		slot: make(chan struct{}, cfg.workers()),
	}
	return p, nil
}

// task holds the state of a running job.
type task struct {
	p   *Processor
	job *Job
	doc *document.Document
	obs Observer
	log *log.Logger
}

// start runs a job on a new goroutine.
func (p *Processor) start(ctx context.Context, kind Kind, doc *document.Document, obs Observer, run func(*task) *Error) *Job {
	if obs == nil {
		obs = BaseObserver{}
	}
	ctx, stop := context.WithCancel(ctx)
	job := &Job{
		kind: kind,
		ctx:  ctx,
		stop: stop,
		done: make(chan struct{}),
	}

	w := &jobWriter{
		job: &log.IOWriter{Writer: &job.log},
	}
	level := log.DebugLevel
	if main := p.cfg.Logger; main != nil {
		w.main = main.Writer
		if w.main == nil {
			w.main = &log.IOWriter{Writer: os.Stderr}
		}
		w.level = main.Level
	}
	t := &task{
		p:   p,
		job: job,
		doc: doc,
		obs: obs,
		log: &log.Logger{
			Level:   level,
			Writer:  w,
			Context: log.NewContext(nil).Str("job", kind.String()).Str("document", docName(doc)).Value(),
		},
	}

	go func() {
		defer close(job.done)
		defer stop()

		err := t.run(run)
		job.err = err
		if err != nil {
			t.log.Error().Err(err).Int("code", int(err.Code)).Msg("job failed")
			obs.Failed(kind, err)
		} else {
			t.log.Info().Msg("job finished")
			obs.Finished(kind)
		}
		obs.Log(job.log.String())
	}()
	return job
}

func (t *task) run(run func(*task) *Error) (err *Error) {
	select {
	case t.p.slot <- struct{}{}:
	case <-t.job.ctx.Done():
		return newError(Cancelled, context.Cause(t.job.ctx))
	}
	defer func() { <-t.p.slot }()

	release := t.doc.Hold()
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = newError(Internal, fmt.Errorf("panic: %v", r))
		}
	}()

	t.doc.SetLogger(t.log)
	t.doc.SetCacheSize(t.p.cfg.CacheSize)
	t.log.Info().Msg("job started")
	t.obs.Started(t.job.kind)
	return run(t)
}

func (t *task) nonFatal(code Code, page int, err error) {
	e := &Error{Code: code, Page: page, Err: err}
	t.log.Warn().Err(err).Int("code", int(code)).Int("page", page).Msg(code.String())
	t.obs.NonFatal(e)
}

func docName(doc *document.Document) string {
	if p := doc.Path(); p != "" {
		return p
	}
	return "<memory>"
}
